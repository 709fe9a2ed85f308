package store

import (
	"database/sql"
	"fmt"
)

// InsertUnprocessedDepositS records a newly-observed Chain-S deposit
// signature, or overwrites it in place if already present (idempotent
// ingest: the same signature observed twice is a no-op update, not a
// duplicate row).
func (s *Store) InsertUnprocessedDepositS(d *UnprocessedDepositS) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO unprocessed_deposits_s
			(sig, timestamp, memo, from_address, amount_usdc_units, status, txid, pending_reference)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, d.Sig, d.Timestamp, d.Memo, d.FromAddress, d.AmountUSDCUnits, string(d.Status), d.Txid, d.PendingReference)
	if err != nil {
		return fmt.Errorf("insert unprocessed deposit: %w", err)
	}
	return nil
}

// IsUnprocessedDepositS reports whether sig is already tracked as
// unprocessed.
func (s *Store) IsUnprocessedDepositS(sig string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	err := s.db.QueryRow("SELECT 1 FROM unprocessed_deposits_s WHERE sig = ?", sig).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetUnprocessedDepositsS returns all unprocessed Chain-S deposits ordered
// oldest-first.
func (s *Store) GetUnprocessedDepositsS() ([]UnprocessedDepositS, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT sig, timestamp, memo, from_address, amount_usdc_units, status, txid, pending_reference
		FROM unprocessed_deposits_s
		ORDER BY timestamp ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UnprocessedDepositS
	for rows.Next() {
		var d UnprocessedDepositS
		var status string
		var pendingRef sql.NullInt64
		if err := rows.Scan(&d.Sig, &d.Timestamp, &d.Memo, &d.FromAddress, &d.AmountUSDCUnits, &status, &d.Txid, &pendingRef); err != nil {
			return nil, err
		}
		d.Status = DepositStatusS(status)
		d.PendingReference = pendingRef.Int64
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpdateUnprocessedDepositSStatus transitions the status of an unprocessed
// deposit row in place.
func (s *Store) UpdateUnprocessedDepositSStatus(sig string, status DepositStatusS) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("UPDATE unprocessed_deposits_s SET status = ? WHERE sig = ?", string(status), sig)
	return err
}

// SetDepositPendingDebit durably records the reference a Chain-N debit is
// about to be attempted with, before that debit is ever issued. This is the
// write that makes a crash between the debit call and its promotion
// recoverable: on restart, checkConfirmation can scan Chain-N for a contract
// already carrying this exact reference instead of issuing a second debit
// with a freshly allocated one.
func (s *Store) SetDepositPendingDebit(sig string, reference int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"UPDATE unprocessed_deposits_s SET status = ?, pending_reference = ? WHERE sig = ?",
		string(DepositStatusDebitPending), reference, sig,
	)
	return err
}

// UpdateUnprocessedDepositSMemo overwrites the memo field after a late
// resolution (e.g. a follow-up transaction carried the memo).
func (s *Store) UpdateUnprocessedDepositSMemo(sig, memo string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("UPDATE unprocessed_deposits_s SET memo = ? WHERE sig = ?", memo, sig)
	return err
}

// RemoveUnprocessedDepositS deletes the row outright. Callers should only do
// this as part of a promotion to a terminal table within the same logical
// transition.
func (s *Store) RemoveUnprocessedDepositS(sig string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM unprocessed_deposits_s WHERE sig = ?", sig)
	return err
}

// PromoteDepositToProcessed moves a deposit from unprocessed into the
// processed table and removes the unprocessed row. It is safe to call
// twice for the same signature: INSERT OR REPLACE makes the processed
// write idempotent, and a missing unprocessed row is not an error.
func (s *Store) PromoteDepositToProcessed(p *ProcessedDepositS) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO processed_deposits_s
			(sig, timestamp, amount_usdc_units, txid, amount_usdd_units, status, reference)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.Sig, p.Timestamp, p.AmountUSDCUnits, p.Txid, p.AmountUSDDUnits, string(p.Status), p.Reference); err != nil {
		return fmt.Errorf("insert processed deposit: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM unprocessed_deposits_s WHERE sig = ?", p.Sig); err != nil {
		return fmt.Errorf("remove unprocessed deposit: %w", err)
	}
	return tx.Commit()
}

// IsProcessedDepositS reports whether sig already has a terminal processed
// record. This is the exactly-once guard: callers must check this before
// debiting Chain-N.
func (s *Store) IsProcessedDepositS(sig string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	err := s.db.QueryRow("SELECT 1 FROM processed_deposits_s WHERE sig = ?", sig).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// LatestReference returns the highest reference number that has been
// recorded against a processed deposit, or 0 if none exist. This backstops
// the reference counter when seeding it for the first time.
func (s *Store) LatestReference() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ref sql.NullInt64
	err := s.db.QueryRow(`
		SELECT reference FROM processed_deposits_s
		WHERE reference IS NOT NULL
		ORDER BY reference DESC LIMIT 1
	`).Scan(&ref)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !ref.Valid {
		return 0, nil
	}
	return ref.Int64, nil
}

// PromoteDepositToRefunded moves a deposit from unprocessed into the
// refunded table (no resolvable memo, or resolution explicitly chose a
// refund) and removes the unprocessed row.
func (s *Store) PromoteDepositToRefunded(r *RefundedDepositS) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO refunded_deposits_s
			(sig, timestamp, from_address, amount_usdc_units, memo, refund_sig, refunded_units, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.Sig, r.Timestamp, r.FromAddress, r.AmountUSDCUnits, r.Memo, r.RefundSig, r.RefundedUnits, string(r.Status)); err != nil {
		return fmt.Errorf("insert refunded deposit: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM unprocessed_deposits_s WHERE sig = ?", r.Sig); err != nil {
		return fmt.Errorf("remove unprocessed deposit: %w", err)
	}
	return tx.Commit()
}

// IsRefundedDepositS reports whether sig has already been refunded.
func (s *Store) IsRefundedDepositS(sig string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM refunded_deposits_s WHERE sig = ?", sig).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// PromoteDepositToQuarantined moves a deposit from unprocessed into the
// quarantine table (e.g. below-minimum micro deposit, or a row stuck past
// its stale threshold) and removes the unprocessed row.
func (s *Store) PromoteDepositToQuarantined(q *QuarantinedDepositS) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO quarantined_deposits_s
			(sig, timestamp, from_address, amount_usdc_units, memo, quarantine_sig, quarantined_units, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, q.Sig, q.Timestamp, q.FromAddress, q.AmountUSDCUnits, q.Memo, q.QuarantineSig, q.QuarantinedUnits, string(q.Status)); err != nil {
		return fmt.Errorf("insert quarantined deposit: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM unprocessed_deposits_s WHERE sig = ?", q.Sig); err != nil {
		return fmt.Errorf("remove unprocessed deposit: %w", err)
	}
	return tx.Commit()
}

// GetQuarantinedDepositsS returns every quarantined Chain-S deposit ordered
// oldest-first, for operator review tooling.
func (s *Store) GetQuarantinedDepositsS() ([]QuarantinedDepositS, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT sig, timestamp, from_address, amount_usdc_units, memo, quarantine_sig, quarantined_units, status
		FROM quarantined_deposits_s
		ORDER BY timestamp ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []QuarantinedDepositS
	for rows.Next() {
		var q QuarantinedDepositS
		var status string
		if err := rows.Scan(&q.Sig, &q.Timestamp, &q.FromAddress, &q.AmountUSDCUnits, &q.Memo, &q.QuarantineSig, &q.QuarantinedUnits, &status); err != nil {
			return nil, err
		}
		q.Status = TerminalStatus(status)
		out = append(out, q)
	}
	return out, rows.Err()
}

// IsQuarantinedDepositS reports whether sig has already been quarantined.
func (s *Store) IsQuarantinedDepositS(sig string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	err := s.db.QueryRow("SELECT 1 FROM quarantined_deposits_s WHERE sig = ?", sig).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
