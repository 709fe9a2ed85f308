package store

import (
	"database/sql"
	"time"
)

// ShouldAttempt reports whether actionKey's recorded attempt count is below
// maxAttempts. A key with no attempts yet is always eligible.
func (s *Store) ShouldAttempt(actionKey string, maxAttempts int64) (bool, error) {
	return s.ShouldAttemptWithCooldown(actionKey, maxAttempts, 0)
}

// ShouldAttemptWithCooldown is ShouldAttempt plus ACTION_RETRY_COOLDOWN_SEC
// gating (spec §6): once an attempt has been recorded, the key is not
// eligible again until cooldownSec has elapsed since last_timestamp, even if
// it is still under maxAttempts. cooldownSec <= 0 disables the cooldown
// check, matching ShouldAttempt's count-only behavior.
func (s *Store) ShouldAttemptWithCooldown(actionKey string, maxAttempts, cooldownSec int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count, lastTimestamp int64
	err := s.db.QueryRow("SELECT count, last_timestamp FROM attempts WHERE action_key = ?", actionKey).Scan(&count, &lastTimestamp)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if count >= maxAttempts {
		return false, nil
	}
	if cooldownSec > 0 && time.Now().Unix()-lastTimestamp < cooldownSec {
		return false, nil
	}
	return true, nil
}

// RecordAttempt increments actionKey's attempt counter, creating the row on
// first use.
func (s *Store) RecordAttempt(actionKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	res, err := s.db.Exec("UPDATE attempts SET count = count + 1, last_timestamp = ? WHERE action_key = ?", now, actionKey)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		_, err = s.db.Exec("INSERT INTO attempts (action_key, count, last_timestamp) VALUES (?, 1, ?)", actionKey, now)
	}
	return err
}

// GetAttemptCount returns the current attempt count for actionKey, 0 if
// none recorded.
func (s *Store) GetAttemptCount(actionKey string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	err := s.db.QueryRow("SELECT count FROM attempts WHERE action_key = ?", actionKey).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return count, err
}

// ResetAttempts clears the attempt counter for actionKey, e.g. after a
// manual operator retry.
func (s *Store) ResetAttempts(actionKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM attempts WHERE action_key = ?", actionKey)
	return err
}
