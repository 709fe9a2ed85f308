package store

// The sums in this file back the balance reconciler's read-only cross-check
// between the terminal-table ledger and the chains' own reported balances.
// Each sum treats a row's presence in its table as proof the corresponding
// on-chain movement already happened, the same assumption the processors
// themselves rely on.

func (s *Store) sumInt64(query string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	if err := s.db.QueryRow(query).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// SumLandedDepositsSUSDC returns the total USDC, across every deposit signature
// the bridge has ever observed landing at the vault (unprocessed, processed,
// refunded, or quarantined), regardless of how it was later resolved.
func (s *Store) SumLandedDepositsSUSDC() (int64, error) {
	total, err := s.sumInt64(`SELECT
		COALESCE((SELECT SUM(amount_usdc_units) FROM unprocessed_deposits_s), 0) +
		COALESCE((SELECT SUM(amount_usdc_units) FROM processed_deposits_s), 0) +
		COALESCE((SELECT SUM(amount_usdc_units) FROM refunded_deposits_s), 0) +
		COALESCE((SELECT SUM(amount_usdc_units) FROM quarantined_deposits_s), 0)
	`)
	if err != nil {
		return 0, err
	}
	return total, nil
}

// SumVaultOutflowsUSDC returns the total USDC the bridge has ever paid back
// out of the vault: D->S swap payouts, S-side refunds, and quarantine
// transfers, each in the amount that actually left the vault (not the
// pre-fee deposit amount).
func (s *Store) SumVaultOutflowsUSDC() (int64, error) {
	total, err := s.sumInt64(`SELECT
		COALESCE((SELECT SUM(amount_usdc_units) FROM processed_credits_n), 0) +
		COALESCE((SELECT SUM(refunded_units) FROM refunded_deposits_s), 0) +
		COALESCE((SELECT SUM(quarantined_units) FROM quarantined_deposits_s), 0)
	`)
	if err != nil {
		return 0, err
	}
	return total, nil
}

// SumLandedCreditsNUSDD returns the total USDD, across every Chain-N credit
// the bridge has ever observed landing in the treasury, regardless of how it
// was later resolved.
func (s *Store) SumLandedCreditsNUSDD() (int64, error) {
	total, err := s.sumInt64(`SELECT
		COALESCE((SELECT SUM(amount_usdd_units) FROM unprocessed_credits_n), 0) +
		COALESCE((SELECT SUM(amount_usdd_units) FROM processed_credits_n), 0) +
		COALESCE((SELECT SUM(amount_usdd_units) FROM refunded_credits_n), 0) +
		COALESCE((SELECT SUM(amount_usdd_units) FROM quarantined_credits_n), 0)
	`)
	if err != nil {
		return 0, err
	}
	return total, nil
}

// SumTreasuryOutflowsUSDD returns the total USDD the bridge has ever debited
// out of the treasury: S->D swap debits, surplus minted to the fees
// account, and N-side refunds and quarantines, which transfer out of the
// treasury account. Tiny credits routed to the local account are recorded
// in processed_credits_n and are not counted here.
func (s *Store) SumTreasuryOutflowsUSDD() (int64, error) {
	total, err := s.sumInt64(`SELECT
		COALESCE((SELECT SUM(amount_usdd_units) FROM processed_deposits_s), 0) +
		COALESCE((SELECT SUM(amount_usdd_units) FROM fee_entries WHERE kind = 'surplus_mint'), 0) +
		COALESCE((SELECT SUM(amount_usdd_units) FROM refunded_credits_n), 0) +
		COALESCE((SELECT SUM(amount_usdd_units) FROM quarantined_credits_n), 0)
	`)
	if err != nil {
		return 0, err
	}
	return total, nil
}
