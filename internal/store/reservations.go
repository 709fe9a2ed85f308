package store

import (
	"database/sql"
	"time"
)

// Reserve attempts to take out a short-TTL reservation for (kind, key),
// e.g. ("debit", sig) or ("send", txid). It first clears any reservation
// of the same kind+key that has expired, then tries to insert a fresh one.
// It returns true if the reservation was acquired, false if another
// in-flight attempt already holds it.
//
// Reservations are a belt-and-suspenders guard against two supervisory
// loop iterations racing to act on the same row; the real exactly-once
// guarantee comes from the primary key on the terminal tables.
func (s *Store) Reserve(kind, key string, ttlSec int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()

	if _, err := s.db.Exec("DELETE FROM reservations WHERE timestamp < ?", now-ttlSec); err != nil {
		return false, err
	}

	_, err := s.db.Exec("INSERT INTO reservations (kind, key, timestamp) VALUES (?, ?, ?)", kind, key, now)
	if err != nil {
		if isUniqueConstraintError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Release drops a reservation, e.g. after the reserved action completed or
// failed terminally.
func (s *Store) Release(kind, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM reservations WHERE kind = ? AND key = ?", kind, key)
	return err
}

// IsReserved reports whether (kind, key) currently holds a live
// reservation.
func (s *Store) IsReserved(kind, key string, ttlSec int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	var exists int
	err := s.db.QueryRow(
		"SELECT 1 FROM reservations WHERE kind = ? AND key = ? AND timestamp >= ?",
		kind, key, now-ttlSec,
	).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CleanupExpiredReservations removes all reservations older than ttlSec and
// returns the number of rows removed. Intended to be called periodically
// from the maintenance loop.
func (s *Store) CleanupExpiredReservations(ttlSec int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	res, err := s.db.Exec("DELETE FROM reservations WHERE timestamp < ?", now-ttlSec)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
