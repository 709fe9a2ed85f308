package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// RecordFeeEntry appends one line to the fee journal and rolls it into the
// running fee_summary totals in the same transaction, so the summary row
// never drifts from the sum of its entries.
func (s *Store) RecordFeeEntry(e *FeeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO fee_entries (sig, txid, kind, amount_usdc_units, amount_usdd_units, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.Sig, e.Txid, e.Kind, e.AmountUSDCUnits, e.AmountUSDDUnits, e.Timestamp); err != nil {
		return fmt.Errorf("insert fee entry: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO fee_summary (id, total_collected_usdc, total_collected_usdd, last_updated)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			total_collected_usdc = total_collected_usdc + excluded.total_collected_usdc,
			total_collected_usdd = total_collected_usdd + excluded.total_collected_usdd,
			last_updated = excluded.last_updated
	`, e.AmountUSDCUnits, e.AmountUSDDUnits, e.Timestamp); err != nil {
		return fmt.Errorf("update fee summary: %w", err)
	}

	return tx.Commit()
}

// FeeSummary is the running total of fees collected, in each side's base
// units.
type FeeSummary struct {
	TotalCollectedUSDC int64
	TotalCollectedUSDD int64
	LastUpdated        int64
}

// GetFeeSummary returns the current running fee totals, zero-valued if no
// fee has ever been recorded.
func (s *Store) GetFeeSummary() (*FeeSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var f FeeSummary
	err := s.db.QueryRow(`
		SELECT total_collected_usdc, total_collected_usdd, last_updated
		FROM fee_summary WHERE id = 1
	`).Scan(&f.TotalCollectedUSDC, &f.TotalCollectedUSDD, &f.LastUpdated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &FeeSummary{}, nil
		}
		return nil, err
	}
	return &f, nil
}

// ListFeeEntries returns the most recent fee entries, newest first, bounded
// by limit.
func (s *Store) ListFeeEntries(limit int) ([]FeeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT id, sig, txid, kind, amount_usdc_units, amount_usdd_units, timestamp
		FROM fee_entries ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FeeEntry
	for rows.Next() {
		var e FeeEntry
		if err := rows.Scan(&e.ID, &e.Sig, &e.Txid, &e.Kind, &e.AmountUSDCUnits, &e.AmountUSDDUnits, &e.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
