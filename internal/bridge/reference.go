// Package bridge implements the custodial swap logic that sits between the
// two narrow Chain Adapters in internal/chains and the durable store in
// internal/store: deposit/credit ingestion, the S<->D state machines,
// heartbeat publication, backing reconciliation and startup recovery.
package bridge

import (
	"fmt"

	"github.com/usdbridge/bridge/internal/config"
	"github.com/usdbridge/bridge/internal/store"
)

// ReferenceTracker wraps the store's reference counter, reservation and
// attempt-tracking primitives behind the vocabulary the processors use,
// mirroring original_source/src/state_db.py's reserve_action/next_reference/
// should_attempt/record_attempt quartet.
type ReferenceTracker struct {
	store *store.Store
	retry config.RetryConfig
}

// NewReferenceTracker builds a ReferenceTracker over st, using retry's
// max-attempt and reservation-TTL policy.
func NewReferenceTracker(st *store.Store, retry config.RetryConfig) *ReferenceTracker {
	return &ReferenceTracker{store: st, retry: retry}
}

// NextReference allocates the next monotone debit reference used to tag a
// Chain-N send so a resend after a crash can be recognized as the same
// logical payout rather than a duplicate.
func (r *ReferenceTracker) NextReference() (int64, error) {
	return r.store.NextReference()
}

// Reserve takes out a short-TTL advisory reservation for (kind, key),
// returning false if another in-flight attempt already holds it. Callers
// should treat a false return as "skip this cycle", not as an error.
func (r *ReferenceTracker) Reserve(kind, key string) (bool, error) {
	return r.store.Reserve(kind, key, int64(r.retry.ReservationTTLSec))
}

// Release drops a reservation taken out by Reserve, e.g. once the action
// reached a terminal outcome or failed in a way that should let another
// cycle retry immediately.
func (r *ReferenceTracker) Release(kind, key string) error {
	return r.store.Release(kind, key)
}

// ShouldAttempt reports whether actionKey is still under the configured
// max-attempt ceiling and, once an attempt has been recorded, whether
// ACTION_RETRY_COOLDOWN_SEC has elapsed since the last one.
func (r *ReferenceTracker) ShouldAttempt(actionKey string) (bool, error) {
	return r.store.ShouldAttemptWithCooldown(actionKey, int64(r.retry.MaxActionAttempts), int64(r.retry.ActionRetryCooldown))
}

// RecordAttempt increments actionKey's attempt counter.
func (r *ReferenceTracker) RecordAttempt(actionKey string) error {
	return r.store.RecordAttempt(actionKey)
}

// DebitActionKey builds the action key used to gate/record Chain-N debit
// attempts for a single Chain-S deposit signature.
func DebitActionKey(sig string) string {
	return fmt.Sprintf("debit_n:%s", sig)
}

// SendActionKey builds the action key used to gate/record Chain-S send
// attempts for a single Chain-N credit txid.
func SendActionKey(txid string) string {
	return fmt.Sprintf("send_s:%s", txid)
}

// RefundActionKeyS builds the action key for a Chain-S refund attempt.
func RefundActionKeyS(sig string) string {
	return fmt.Sprintf("refund_s:%s", sig)
}

// RefundActionKeyN builds the action key for a Chain-N refund attempt.
func RefundActionKeyN(txid string) string {
	return fmt.Sprintf("refund_n:%s", txid)
}
