package store

import "database/sql"

// ProposeWaterlineS stages a candidate Chain-S waterline timestamp. The
// proposal is ephemeral: it is only committed to the heartbeat row once the
// current poll cycle finishes cleanly, by GetAndClearProposedWaterlines.
func (s *Store) ProposeWaterlineS(ts int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("INSERT OR REPLACE INTO waterline_proposals (chain, proposed_timestamp) VALUES ('chain_s', ?)", ts)
	return err
}

// ProposeWaterlineN stages a candidate Chain-N waterline timestamp.
func (s *Store) ProposeWaterlineN(ts int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("INSERT OR REPLACE INTO waterline_proposals (chain, proposed_timestamp) VALUES ('chain_n', ?)", ts)
	return err
}

// GetAndClearProposedWaterlines reads both staged waterline proposals and
// clears them atomically, so a proposal is applied to the heartbeat row at
// most once.
func (s *Store) GetAndClearProposedWaterlines() (wlineS, wlineN *int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	var sVal, nVal sql.NullInt64
	if err := tx.QueryRow("SELECT proposed_timestamp FROM waterline_proposals WHERE chain = 'chain_s'").Scan(&sVal); err != nil && err != sql.ErrNoRows {
		return nil, nil, err
	}
	if err := tx.QueryRow("SELECT proposed_timestamp FROM waterline_proposals WHERE chain = 'chain_n'").Scan(&nVal); err != nil && err != sql.ErrNoRows {
		return nil, nil, err
	}
	if _, err := tx.Exec("DELETE FROM waterline_proposals"); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}

	if sVal.Valid {
		v := sVal.Int64
		wlineS = &v
	}
	if nVal.Valid {
		v := nVal.Int64
		wlineN = &v
	}
	return wlineS, wlineN, nil
}

// ClearWaterlineProposals drops all staged proposals without applying them,
// e.g. when a poll cycle aborts partway through.
func (s *Store) ClearWaterlineProposals() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM waterline_proposals")
	return err
}
