package store

import (
	"database/sql"
	"errors"
)

// UpsertAccount writes a cached balance snapshot for a named account,
// replacing whatever was there before.
func (s *Store) UpsertAccount(a *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO accounts (nickname, chain, ticker, name, address, balance_units, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(nickname) DO UPDATE SET
			chain = excluded.chain,
			ticker = excluded.ticker,
			name = excluded.name,
			address = excluded.address,
			balance_units = excluded.balance_units,
			timestamp = excluded.timestamp
	`, a.Nickname, a.Chain, a.Ticker, a.Name, a.Address, a.BalanceUnits, a.Timestamp)
	return err
}

// GetAccount returns the cached snapshot for nickname, or nil if none has
// ever been recorded.
func (s *Store) GetAccount(nickname string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var a Account
	err := s.db.QueryRow(`
		SELECT nickname, chain, ticker, name, address, balance_units, timestamp
		FROM accounts WHERE nickname = ?
	`, nickname).Scan(&a.Nickname, &a.Chain, &a.Ticker, &a.Name, &a.Address, &a.BalanceUnits, &a.Timestamp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// SaveLastVaultBalance stamps the vault's Chain-S token balance as of the
// most recent observation, in base units. The S->D ingester and the
// reconciler both write it; the micro-batch-skip guard in the S->D
// ingester reads it back to decide whether the vault moved since the last
// cycle.
func (s *Store) SaveLastVaultBalance(balanceUnits int64, timestamp int64) error {
	return s.UpsertAccount(&Account{
		Nickname:     vaultLastBalanceNickname,
		Chain:        "chain_s",
		BalanceUnits: balanceUnits,
		Timestamp:    timestamp,
	})
}

// LoadLastVaultBalance returns the last saved vault balance and the
// timestamp it was saved at. ok is false if none has ever been saved.
func (s *Store) LoadLastVaultBalance() (balanceUnits int64, timestamp int64, ok bool, err error) {
	a, err := s.GetAccount(vaultLastBalanceNickname)
	if err != nil {
		return 0, 0, false, err
	}
	if a == nil {
		return 0, 0, false, nil
	}
	return a.BalanceUnits, a.Timestamp, true, nil
}
