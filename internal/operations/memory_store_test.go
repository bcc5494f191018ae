package operations

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func record(opID, userID string, typ Type, amount string, ts time.Time) *Record {
	return &Record{
		ID:          "id_" + opID,
		OperationID: opID,
		Type:        typ,
		UserID:      userID,
		AccountID:   "acct-1",
		Amount:      decimal.RequireFromString(amount),
		Currency:    "USD",
		Timestamp:   ts,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestAppendRejectsDuplicateOperationID(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	if err := store.Append(ctx, record("op-1", "u1", TypeDeposit, "10.00", now)); err != nil {
		t.Fatalf("first append: %v", err)
	}
	err := store.Append(ctx, record("op-1", "u1", TypeDeposit, "10.00", now))
	if err != ErrDuplicateOperation {
		t.Errorf("second append err = %v, want ErrDuplicateOperation", err)
	}

	// Exactly one record survives.
	recs, err := store.ListByUser(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("records = %d, want 1", len(recs))
	}
}

func TestOperationIDsMatchExactly(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	// Ids differing only in surrounding whitespace are distinct, matching
	// the database's exact-match unique index.
	if err := store.Append(ctx, record("op-1", "u1", TypeDeposit, "10.00", now)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Append(ctx, record("op-1 ", "u1", TypeDeposit, "10.00", now)); err != nil {
		t.Errorf("padded id rejected as duplicate: %v", err)
	}

	found, _ := store.Exists(ctx, " op-1")
	if found {
		t.Error("Exists matched a padded id against the exact one")
	}
}

func TestExists(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	found, err := store.Exists(ctx, "op-1")
	if err != nil || found {
		t.Errorf("Exists before append = (%v, %v), want (false, nil)", found, err)
	}

	_ = store.Append(ctx, record("op-1", "u1", TypeDeposit, "10.00", time.Now()))

	found, err = store.Exists(ctx, "op-1")
	if err != nil || !found {
		t.Errorf("Exists after append = (%v, %v), want (true, nil)", found, err)
	}
}

func TestCountSinceUsesDeclaredTimestamp(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	// 3 inside a 10-minute window, 2 outside.
	for i, age := range []time.Duration{time.Minute, 5 * time.Minute, 9 * time.Minute, 11 * time.Minute, time.Hour} {
		rec := record(fmt.Sprintf("op-%d", i), "u1", TypeTransfer, "1.00", now.Add(-age))
		if err := store.Append(ctx, rec); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	count, err := store.CountSince(ctx, "u1", now.Add(-10*time.Minute))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}

func TestAverageAmountPerType(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	_ = store.Append(ctx, record("op-1", "u1", TypeTransfer, "10.00", now))
	_ = store.Append(ctx, record("op-2", "u1", TypeTransfer, "20.00", now))
	_ = store.Append(ctx, record("op-3", "u1", TypeDeposit, "1000.00", now))

	avg, ok, err := store.AverageAmount(ctx, "u1", TypeTransfer)
	if err != nil {
		t.Fatalf("average: %v", err)
	}
	if !ok {
		t.Fatal("expected an average for TRANSFER")
	}
	if !avg.Equal(decimal.NewFromInt(15)) {
		t.Errorf("avg = %s, want 15", avg)
	}

	// Deposits must not leak into the transfer baseline, and a type with
	// no history reports ok=false.
	_, ok, err = store.AverageAmount(ctx, "u1", TypeWithdrawal)
	if err != nil {
		t.Fatalf("average: %v", err)
	}
	if ok {
		t.Error("expected no average for WITHDRAWAL")
	}
}

func TestAverageAmountIncludesBlocked(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	allowed := record("op-1", "u1", TypeTransfer, "10.00", now)
	blocked := record("op-2", "u1", TypeTransfer, "30.00", now)
	blocked.Blocked = true
	blocked.BlockReason = ReasonAmountAnomaly

	_ = store.Append(ctx, allowed)
	_ = store.Append(ctx, blocked)

	avg, ok, _ := store.AverageAmount(ctx, "u1", TypeTransfer)
	if !ok || !avg.Equal(decimal.NewFromInt(20)) {
		t.Errorf("avg = %s (ok=%v), want 20: blocked records are part of the baseline", avg, ok)
	}
}

func TestCountBlockedSince(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	blocked := record("op-1", "u1", TypeTransfer, "10.00", now.Add(-time.Hour))
	blocked.Blocked = true
	old := record("op-2", "u1", TypeTransfer, "10.00", now.Add(-48*time.Hour))
	old.Blocked = true
	allowed := record("op-3", "u1", TypeTransfer, "10.00", now.Add(-time.Hour))

	_ = store.Append(ctx, blocked)
	_ = store.Append(ctx, old)
	_ = store.Append(ctx, allowed)

	count, err := store.CountBlockedSince(ctx, "u1", now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("count blocked: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestListByUserOrderAndLimit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 5; i++ {
		rec := record(fmt.Sprintf("op-%d", i), "u1", TypePayment, "1.00", now)
		if err := store.Append(ctx, rec); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	recs, err := store.ListByUser(ctx, "u1", 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("len = %d, want 3", len(recs))
	}
	// Most recent first.
	if recs[0].OperationID != "op-4" || recs[2].OperationID != "op-2" {
		t.Errorf("order wrong: got %s .. %s, want op-4 .. op-2", recs[0].OperationID, recs[2].OperationID)
	}

	// Unknown user: empty, not an error.
	recs, err = store.ListByUser(ctx, "nobody", 10)
	if err != nil {
		t.Fatalf("list unknown user: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("len = %d, want 0", len(recs))
	}
}

func TestListByUserReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_ = store.Append(ctx, record("op-1", "u1", TypeDeposit, "10.00", time.Now()))

	recs, _ := store.ListByUser(ctx, "u1", 0)
	recs[0].RiskScore = 999

	again, _ := store.ListByUser(ctx, "u1", 0)
	if again[0].RiskScore != 0 {
		t.Error("ledger record mutated through a returned copy")
	}
}
