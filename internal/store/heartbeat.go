package store

import "database/sql"

const heartbeatName = "bridge"

// InsertHeartbeat creates or replaces the single heartbeat row outright.
func (s *Store) InsertHeartbeat(h *Heartbeat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO heartbeat (name, last_beat, wline_s, wline_n)
		VALUES (?, ?, ?, ?)
	`, h.Name, h.LastBeat, h.WlineS, h.WlineN)
	return err
}

// GetHeartbeat returns the bridge's heartbeat row, or nil if it has never
// beaten (first run).
func (s *Store) GetHeartbeat() (*Heartbeat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var h Heartbeat
	err := s.db.QueryRow(
		"SELECT name, last_beat, wline_s, wline_n FROM heartbeat WHERE name = ?", heartbeatName,
	).Scan(&h.Name, &h.LastBeat, &h.WlineS, &h.WlineN)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// UpdateHeartbeat beats the clock and, for any non-nil waterline, advances
// it. A nil waterline leaves the existing column untouched (COALESCE),
// since not every poll cycle produces a new waterline for both chains.
func (s *Store) UpdateHeartbeat(lastBeat int64, wlineS, wlineN *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE heartbeat
		SET last_beat = ?,
			wline_s = COALESCE(?, wline_s),
			wline_n = COALESCE(?, wline_n)
		WHERE name = ?
	`, lastBeat, wlineS, wlineN, heartbeatName)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var s0, n0 int64
		if wlineS != nil {
			s0 = *wlineS
		}
		if wlineN != nil {
			n0 = *wlineN
		}
		_, err = s.db.Exec(`
			INSERT INTO heartbeat (name, last_beat, wline_s, wline_n) VALUES (?, ?, ?, ?)
		`, heartbeatName, lastBeat, s0, n0)
	}
	return err
}
