package store

import "database/sql"

// NextReference returns the next unique debit reference number for Chain-N
// sends. It increments an atomic counter; on first use it seeds the
// counter from the highest reference already recorded against a processed
// deposit (or 0), so a fresh database continues a prior run's sequence
// rather than restarting at 1 and risking a reference collision.
func (s *Store) NextReference() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("UPDATE counters SET value = value + 1 WHERE name = 'reference'")
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		var currentMax sql.NullInt64
		err := s.db.QueryRow("SELECT MAX(reference) FROM processed_deposits_s WHERE reference IS NOT NULL").Scan(&currentMax)
		if err != nil {
			return 0, err
		}
		next := int64(1)
		if currentMax.Valid {
			next = currentMax.Int64 + 1
		}
		if _, err := s.db.Exec("INSERT OR REPLACE INTO counters (name, value) VALUES ('reference', ?)", next); err != nil {
			return 0, err
		}
		return next, nil
	}

	var next int64
	if err := s.db.QueryRow("SELECT value FROM counters WHERE name = 'reference'").Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}
