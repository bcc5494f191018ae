// Package operations holds the append-only operation ledger.
//
// Every screened operation produces exactly one Record, written after the
// rule pipeline has run and never updated afterwards. The same store answers
// the history questions the rule evaluators depend on: has this operation id
// been seen, how many operations did the user submit in a trailing window,
// what is their historical average amount per operation type, and how many of
// their recent operations were blocked.
package operations

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrDuplicateOperation is returned by Append when a record with the
	// same operation id already exists. Callers treat this as a decision
	// outcome, not a fault.
	ErrDuplicateOperation = errors.New("operations: duplicate operation id")
)

// Type is the kind of financial operation being screened.
type Type string

const (
	TypeDeposit    Type = "DEPOSIT"
	TypeWithdrawal Type = "WITHDRAWAL"
	TypeTransfer   Type = "TRANSFER"
	TypePayment    Type = "PAYMENT"
)

// Known reports whether t is one of the supported operation types.
func (t Type) Known() bool {
	switch t {
	case TypeDeposit, TypeWithdrawal, TypeTransfer, TypePayment:
		return true
	}
	return false
}

// BlockReason identifies why an operation was blocked.
type BlockReason string

const (
	ReasonDuplicate     BlockReason = "DUPLICATE_OPERATION"
	ReasonAmountAnomaly BlockReason = "AMOUNT_ANOMALY"
	ReasonUnusualTime   BlockReason = "UNUSUAL_TIME"
	ReasonHighFrequency BlockReason = "HIGH_FREQUENCY"
	ReasonComposite     BlockReason = "COMPOSITE_RISK"
	// ReasonUnknown is a defensive fallback only; normal evaluation never
	// assigns it.
	ReasonUnknown BlockReason = "UNKNOWN"
	// ReasonNone marks an operation that was not blocked.
	ReasonNone BlockReason = ""
)

// CheckRequest is an operation submitted for screening. It is not persisted
// as-is; the Decision Service derives a Record from it.
type CheckRequest struct {
	OperationID string          `json:"operationId"`
	Type        Type            `json:"operationType"`
	UserID      string          `json:"userId"`
	AccountID   string          `json:"accountId"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	// Timestamp is the operation time as declared by the caller. Rule
	// evaluation uses it; audit ordering uses the server-side CreatedAt.
	Timestamp time.Time `json:"timestamp"`
}

// Record is the ledger's unit of storage, created once per accepted check.
// Records are immutable; corrections are new records.
type Record struct {
	ID          string          `json:"id"`
	OperationID string          `json:"operationId"`
	Type        Type            `json:"operationType"`
	UserID      string          `json:"userId"`
	AccountID   string          `json:"accountId"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Timestamp   time.Time       `json:"timestamp"`
	Blocked     bool            `json:"blocked"`
	BlockReason BlockReason     `json:"blockReasonCode,omitempty"`
	RiskScore   int             `json:"riskScore"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Store persists operation records and answers history queries.
//
// All reads are point-in-time against committed state. Append must enforce
// operation-id uniqueness atomically and return ErrDuplicateOperation on a
// conflict, so that two concurrent checks racing on the same id cannot both
// write.
type Store interface {
	// Append writes a new record. All-or-nothing: a cancelled or failed
	// append leaves no partial row visible.
	Append(ctx context.Context, rec *Record) error

	// Exists reports whether a record with the operation id is committed.
	Exists(ctx context.Context, operationID string) (bool, error)

	// CountSince counts the user's operations with a declared timestamp in
	// (since, now]. Blocked operations count too.
	CountSince(ctx context.Context, userID string, since time.Time) (int, error)

	// AverageAmount returns the mean amount of the user's prior operations
	// of the given type. ok is false when the user has no such history.
	AverageAmount(ctx context.Context, userID string, typ Type) (avg decimal.Decimal, ok bool, err error)

	// CountBlockedSince counts the user's blocked operations with a
	// declared timestamp in (since, now].
	CountBlockedSince(ctx context.Context, userID string, since time.Time) (int, error)

	// ListByUser returns the user's records, most recent first by receipt
	// time. limit caps the result; limit <= 0 means the store default.
	ListByUser(ctx context.Context, userID string, limit int) ([]*Record, error)
}
