package store

import (
	"database/sql"
	"fmt"
)

// InsertUnprocessedCreditN records a newly-observed Chain-N transfer into
// the treasury account, or overwrites it in place if already present.
func (s *Store) InsertUnprocessedCreditN(c *UnprocessedCreditN) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO unprocessed_credits_n
			(txid, timestamp, amount_usdd_units, from_address, to_address, owner_from_address, confirmations, status, receival_account, pending_sig, pending_usdc_units)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.Txid, c.Timestamp, c.AmountUSDDUnits, c.FromAddress, c.ToAddress, c.OwnerFromAddress, c.Confirmations, string(c.Status), c.ReceivalAccount, c.PendingSig, c.PendingUSDCUnits)
	if err != nil {
		return fmt.Errorf("insert unprocessed credit: %w", err)
	}
	return nil
}

// IsUnprocessedCreditN reports whether txid is already tracked as
// unprocessed.
func (s *Store) IsUnprocessedCreditN(txid string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	err := s.db.QueryRow("SELECT 1 FROM unprocessed_credits_n WHERE txid = ?", txid).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetUnprocessedCreditsN returns all unprocessed Chain-N credits ordered
// oldest-first.
func (s *Store) GetUnprocessedCreditsN() ([]UnprocessedCreditN, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT txid, timestamp, amount_usdd_units, from_address, to_address, owner_from_address, confirmations, status, receival_account, pending_sig, pending_usdc_units
		FROM unprocessed_credits_n
		ORDER BY timestamp ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UnprocessedCreditN
	for rows.Next() {
		var c UnprocessedCreditN
		var status string
		var pendingSig sql.NullString
		var pendingUSDC sql.NullInt64
		if err := rows.Scan(&c.Txid, &c.Timestamp, &c.AmountUSDDUnits, &c.FromAddress, &c.ToAddress, &c.OwnerFromAddress, &c.Confirmations, &status, &c.ReceivalAccount, &pendingSig, &pendingUSDC); err != nil {
			return nil, err
		}
		c.Status = DepositStatusS(status)
		c.PendingSig = pendingSig.String
		c.PendingUSDCUnits = pendingUSDC.Int64
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateUnprocessedCreditNStatus transitions the status of an unprocessed
// credit row in place.
func (s *Store) UpdateUnprocessedCreditNStatus(txid string, status DepositStatusS) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("UPDATE unprocessed_credits_n SET status = ? WHERE txid = ?", string(status), txid)
	return err
}

// SetCreditPendingSend durably records the Chain-S signature and payout
// amount a D->S send was just submitted with, before that send is ever
// awaited for confirmation. This is the write that makes a crash between
// SendToken returning and the row's promotion recoverable: on restart,
// checkSendConfirmation can ask Chain-S for this exact signature's
// confirmation count instead of resending blind.
func (s *Store) SetCreditPendingSend(txid, sig string, amountUSDCUnits int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"UPDATE unprocessed_credits_n SET status = ?, pending_sig = ?, pending_usdc_units = ? WHERE txid = ?",
		string(DepositStatusSendPending), sig, amountUSDCUnits, txid,
	)
	return err
}

// RemoveUnprocessedCreditN deletes the row outright.
func (s *Store) RemoveUnprocessedCreditN(txid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM unprocessed_credits_n WHERE txid = ?", txid)
	return err
}

// PromoteCreditToProcessed moves a credit from unprocessed into the
// processed table and removes the unprocessed row.
func (s *Store) PromoteCreditToProcessed(p *ProcessedCreditN) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO processed_credits_n
			(txid, timestamp, amount_usdd_units, amount_usdc_units, from_address, to_address, owner, sig, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.Txid, p.Timestamp, p.AmountUSDDUnits, p.AmountUSDCUnits, p.FromAddress, p.ToAddress, p.Owner, p.Sig, string(p.Status)); err != nil {
		return fmt.Errorf("insert processed credit: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM unprocessed_credits_n WHERE txid = ?", p.Txid); err != nil {
		return fmt.Errorf("remove unprocessed credit: %w", err)
	}
	return tx.Commit()
}

// IsProcessedCreditN reports whether txid already has a terminal processed
// record. This is the exactly-once guard: callers must check this before
// sending on Chain-S.
func (s *Store) IsProcessedCreditN(txid string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	err := s.db.QueryRow("SELECT 1 FROM processed_credits_n WHERE txid = ?", txid).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// FindProcessedCreditBySig looks up a processed credit by its Chain-S send
// signature, used by the memo-scan recovery pass to detect a send that
// completed but whose promotion never landed before a crash.
func (s *Store) FindProcessedCreditBySig(sig string) (*ProcessedCreditN, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var p ProcessedCreditN
	var status string
	err := s.db.QueryRow(`
		SELECT txid, timestamp, amount_usdd_units, amount_usdc_units, from_address, to_address, owner, sig, status
		FROM processed_credits_n WHERE sig = ?
	`, sig).Scan(&p.Txid, &p.Timestamp, &p.AmountUSDDUnits, &p.AmountUSDCUnits, &p.FromAddress, &p.ToAddress, &p.Owner, &p.Sig, &status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Status = TerminalStatus(status)
	return &p, nil
}

// PromoteCreditToRefunded moves a credit from unprocessed into the refunded
// table (no resolvable Chain-S recipient) and removes the unprocessed row.
func (s *Store) PromoteCreditToRefunded(r *RefundedCreditN) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO refunded_credits_n
			(txid, timestamp, amount_usdd_units, from_address, to_address, owner_from_address, confirmations, status, sig)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.Txid, r.Timestamp, r.AmountUSDDUnits, r.FromAddress, r.ToAddress, r.OwnerFromAddress, r.Confirmations, string(r.Status), r.Sig); err != nil {
		return fmt.Errorf("insert refunded credit: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM unprocessed_credits_n WHERE txid = ?", r.Txid); err != nil {
		return fmt.Errorf("remove unprocessed credit: %w", err)
	}
	return tx.Commit()
}

// IsRefundedCreditN reports whether txid has already been refunded.
func (s *Store) IsRefundedCreditN(txid string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	err := s.db.QueryRow("SELECT 1 FROM refunded_credits_n WHERE txid = ?", txid).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PromoteCreditToQuarantined moves a credit from unprocessed into the
// quarantine table and removes the unprocessed row.
func (s *Store) PromoteCreditToQuarantined(q *QuarantinedCreditN) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO quarantined_credits_n
			(txid, timestamp, amount_usdd_units, from_address, to_address, owner, sig, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, q.Txid, q.Timestamp, q.AmountUSDDUnits, q.FromAddress, q.ToAddress, q.Owner, q.Sig, string(q.Status)); err != nil {
		return fmt.Errorf("insert quarantined credit: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM unprocessed_credits_n WHERE txid = ?", q.Txid); err != nil {
		return fmt.Errorf("remove unprocessed credit: %w", err)
	}
	return tx.Commit()
}

// GetQuarantinedCreditsN returns every quarantined Chain-N credit ordered
// oldest-first, for operator review tooling.
func (s *Store) GetQuarantinedCreditsN() ([]QuarantinedCreditN, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT txid, timestamp, amount_usdd_units, from_address, to_address, owner, sig, status
		FROM quarantined_credits_n
		ORDER BY timestamp ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []QuarantinedCreditN
	for rows.Next() {
		var q QuarantinedCreditN
		var status string
		if err := rows.Scan(&q.Txid, &q.Timestamp, &q.AmountUSDDUnits, &q.FromAddress, &q.ToAddress, &q.Owner, &q.Sig, &status); err != nil {
			return nil, err
		}
		q.Status = TerminalStatus(status)
		out = append(out, q)
	}
	return out, rows.Err()
}

// IsQuarantinedCreditN reports whether txid has already been quarantined.
func (s *Store) IsQuarantinedCreditN(txid string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	err := s.db.QueryRow("SELECT 1 FROM quarantined_credits_n WHERE txid = ?", txid).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
