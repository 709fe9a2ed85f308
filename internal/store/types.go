package store

// DepositStatusS is the lifecycle status of a Chain-S deposit signature
// while it sits in the unprocessed table.
type DepositStatusS string

const (
	DepositStatusNew            DepositStatusS = "new"
	DepositStatusMemoResolved   DepositStatusS = "memo_resolved"
	DepositStatusMemoUnresolved DepositStatusS = "memo_unresolved"
	DepositStatusDebitPending   DepositStatusS = "debit_pending"
	DepositStatusSendPending    DepositStatusS = "send_pending"
	DepositStatusStale          DepositStatusS = "stale"
)

// TerminalStatus marks how a row in a terminal (processed/refunded/
// quarantined) table was resolved.
type TerminalStatus string

const (
	StatusCompleted       TerminalStatus = "completed"
	StatusRefunded        TerminalStatus = "refunded"
	StatusQuarantined     TerminalStatus = "quarantined"
	StatusRecoveredFromMemo TerminalStatus = "recovered_from_memo"
	StatusSkipped         TerminalStatus = "skipped"
)

// UnprocessedDepositS is a Chain-S deposit signature awaiting resolution.
// PendingReference is set durably before a Chain-N debit is attempted for
// this deposit, so a crash between the debit call and its promotion leaves
// behind the exact reference to reconcile against on restart, instead of
// allocating a fresh one and risking a second debit.
type UnprocessedDepositS struct {
	Sig              string
	Timestamp        int64
	Memo             string
	FromAddress      string
	AmountUSDCUnits  int64
	Status           DepositStatusS
	Txid             string
	PendingReference int64
}

// ProcessedDepositS is a completed S->D swap.
type ProcessedDepositS struct {
	Sig             string
	Timestamp       int64
	AmountUSDCUnits int64
	Txid            string
	AmountUSDDUnits int64
	Status          TerminalStatus
	Reference       int64
}

// RefundedDepositS is an S deposit that was refunded on Chain-S instead of
// swapped (no memo, or memo pointed nowhere resolvable).
type RefundedDepositS struct {
	Sig             string
	Timestamp       int64
	FromAddress     string
	AmountUSDCUnits int64
	Memo            string
	RefundSig       string
	RefundedUnits   int64
	Status          TerminalStatus
}

// QuarantinedDepositS is an S deposit parked for manual review (e.g. a
// below-minimum "micro" deposit or a stuck/stale row).
type QuarantinedDepositS struct {
	Sig              string
	Timestamp        int64
	FromAddress      string
	AmountUSDCUnits  int64
	Memo             string
	QuarantineSig    string
	QuarantinedUnits int64
	Status           TerminalStatus
}

// UnprocessedCreditN is a Chain-N transfer into the treasury account
// awaiting resolution to a Chain-S payout. PendingUSDCUnits is set durably
// before the Chain-S send is submitted and PendingSig as soon as SendToken
// returns, mirroring
// UnprocessedDepositS.PendingReference: a crash between SendToken returning
// and the row's promotion leaves behind the exact signature and amount to
// reconcile a confirmation against on restart, instead of resending blind.
type UnprocessedCreditN struct {
	Txid              string
	Timestamp         int64
	AmountUSDDUnits   int64
	FromAddress       string
	ToAddress         string
	OwnerFromAddress  string
	Confirmations     int64
	Status            DepositStatusS
	ReceivalAccount   string
	PendingSig        string
	PendingUSDCUnits  int64
}

// ProcessedCreditN is a completed D->S send. AmountUSDCUnits is the payout
// actually sent on Chain-S after the flat and dynamic fees (or 0 for a tiny credit
// routed to the local account rather than swapped).
type ProcessedCreditN struct {
	Txid            string
	Timestamp       int64
	AmountUSDDUnits int64
	AmountUSDCUnits int64
	FromAddress     string
	ToAddress       string
	Owner           string
	Sig             string
	Status          TerminalStatus
}

// RefundedCreditN is a Chain-N credit that could not be resolved to a
// Chain-S recipient and was refunded on Chain-N instead.
type RefundedCreditN struct {
	Txid             string
	Timestamp        int64
	AmountUSDDUnits  int64
	FromAddress      string
	ToAddress        string
	OwnerFromAddress string
	Confirmations    int64
	Status           TerminalStatus
	Sig              string
}

// QuarantinedCreditN is a Chain-N credit parked for manual review.
type QuarantinedCreditN struct {
	Txid            string
	Timestamp       int64
	AmountUSDDUnits int64
	FromAddress     string
	ToAddress       string
	Owner           string
	Sig             string
	Status          TerminalStatus
}

// Account is a cached, human-readable snapshot of a chain account balance.
type Account struct {
	Nickname     string
	Chain        string
	Ticker       string
	Name         string
	Address      string
	BalanceUnits int64
	Timestamp    int64
}

// Heartbeat records the bridge's last successful poll cycle and the
// watermarks it has committed to not reprocessing below.
type Heartbeat struct {
	Name      string
	LastBeat  int64
	WlineS    int64
	WlineN    int64
}

// FeeEntry is a single line in the fee journal.
type FeeEntry struct {
	ID              int64
	Sig             string
	Txid            string
	Kind            string
	AmountUSDCUnits int64
	AmountUSDDUnits int64
	Timestamp       int64
}

const vaultLastBalanceNickname = "vault_last_balance"
