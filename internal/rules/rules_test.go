package rules

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finsentry/finsentry/internal/operations"
)

// daytime is a fixed timestamp at 14:30, well outside the night band.
var daytime = time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)

func newRequest(amount string, ts time.Time) *operations.CheckRequest {
	return &operations.CheckRequest{
		OperationID: "op-1",
		Type:        operations.TypeTransfer,
		UserID:      "user-1",
		AccountID:   "acct-1",
		Amount:      decimal.RequireFromString(amount),
		Currency:    "USD",
		Timestamp:   ts,
	}
}

func TestDuplicateShortCircuits(t *testing.T) {
	cfg := DefaultConfig()

	// History that would otherwise trip every rule: the duplicate answer
	// must win and nothing else may contribute.
	h := History{
		Duplicate:     true,
		RecentCount:   100,
		AverageAmount: decimal.NewFromInt(1),
		HasAverage:    true,
		RecentBlocked: 10,
	}

	v := cfg.Evaluate(newRequest("1000000.00", daytime), h)
	if !v.Blocked {
		t.Fatal("duplicate must be blocked")
	}
	if v.Reason != operations.ReasonDuplicate {
		t.Errorf("reason = %s, want %s", v.Reason, operations.ReasonDuplicate)
	}
	if v.RiskScore != DefaultDuplicateScore {
		t.Errorf("score = %d, want sentinel %d", v.RiskScore, DefaultDuplicateScore)
	}
	if len(v.Signals) != 0 {
		t.Errorf("duplicate verdict carries %d signals, want none", len(v.Signals))
	}
}

func TestAmountAnomalyBoundary(t *testing.T) {
	cfg := DefaultConfig()
	h := History{AverageAmount: decimal.NewFromInt(100), HasAverage: true}

	// Exactly 2x the average is NOT an anomaly; the comparison is strict.
	sig := cfg.AmountAnomaly(decimal.NewFromInt(200), h)
	if sig.Triggered {
		t.Error("amount exactly 2x average must not trigger")
	}

	sig = cfg.AmountAnomaly(decimal.RequireFromString("200.01"), h)
	if !sig.Triggered {
		t.Error("amount just above 2x average must trigger")
	}
	if sig.Points != DefaultAmountAnomalyPoints {
		t.Errorf("points = %d, want %d", sig.Points, DefaultAmountAnomalyPoints)
	}
}

func TestAmountAnomalyColdStart(t *testing.T) {
	cfg := DefaultConfig()

	// No baseline: even an enormous amount passes.
	sig := cfg.AmountAnomaly(decimal.RequireFromString("999999999.99"), History{})
	if sig.Triggered {
		t.Error("first operation of a type must never trigger the anomaly rule")
	}
}

func TestUnusualTimeBand(t *testing.T) {
	cfg := DefaultConfig()

	cases := []struct {
		hour, minute int
		want         bool
	}{
		{22, 59, false}, // last minute before the band
		{23, 0, true},   // band opens
		{0, 0, true},
		{5, 59, true}, // last minute inside
		{6, 0, false}, // band closes
		{12, 0, false},
	}

	for _, tc := range cases {
		ts := time.Date(2026, 3, 10, tc.hour, tc.minute, 0, 0, time.UTC)
		sig := cfg.UnusualTime(ts)
		if sig.Triggered != tc.want {
			t.Errorf("%02d:%02d triggered = %v, want %v", tc.hour, tc.minute, sig.Triggered, tc.want)
		}
	}
}

func TestHighFrequencyBoundary(t *testing.T) {
	cfg := DefaultConfig()

	// Exactly at the limit is fine; the comparison is strict.
	if sig := cfg.HighFrequency(History{RecentCount: DefaultFrequencyLimit}); sig.Triggered {
		t.Errorf("count of exactly %d must not trigger", DefaultFrequencyLimit)
	}
	sig := cfg.HighFrequency(History{RecentCount: DefaultFrequencyLimit + 1})
	if !sig.Triggered {
		t.Errorf("count of %d must trigger", DefaultFrequencyLimit+1)
	}
	if sig.Points != DefaultHighFrequencyPoints {
		t.Errorf("points = %d, want %d", sig.Points, DefaultHighFrequencyPoints)
	}
}

func TestBlockPressureCap(t *testing.T) {
	cfg := DefaultConfig()

	if sig := cfg.BlockPressure(History{RecentBlocked: 2}); sig.Points != 20 {
		t.Errorf("2 recent blocks = %d points, want 20", sig.Points)
	}
	// 5 blocks would be 50 points uncapped.
	if sig := cfg.BlockPressure(History{RecentBlocked: 5}); sig.Points != DefaultBlockPressureCap {
		t.Errorf("5 recent blocks = %d points, want cap %d", sig.Points, DefaultBlockPressureCap)
	}
	if sig := cfg.BlockPressure(History{RecentBlocked: 0}); sig.Triggered {
		t.Error("zero recent blocks must not trigger")
	}
}

func TestBlockPressureNeverBlocksAlone(t *testing.T) {
	cfg := DefaultConfig()

	// Maximum pressure, nothing else: 30 points, under the composite
	// threshold and carrying no reason code.
	v := cfg.Evaluate(newRequest("10.00", daytime), History{RecentBlocked: 10})
	if v.Blocked {
		t.Errorf("block pressure alone blocked the operation (score %d, reason %s)", v.RiskScore, v.Reason)
	}
	if v.RiskScore != DefaultBlockPressureCap {
		t.Errorf("score = %d, want %d", v.RiskScore, DefaultBlockPressureCap)
	}
}

func TestSinglePrimaryRuleBlocks(t *testing.T) {
	cfg := DefaultConfig()

	// Anomaly only: its 40 points clear the single-rule threshold, so it
	// blocks under its own code even though the sum is below composite.
	h := History{AverageAmount: decimal.NewFromInt(10), HasAverage: true}
	v := cfg.Evaluate(newRequest("25.00", daytime), h)
	if !v.Blocked {
		t.Fatal("anomaly alone must block")
	}
	if v.Reason != operations.ReasonAmountAnomaly {
		t.Errorf("reason = %s, want %s", v.Reason, operations.ReasonAmountAnomaly)
	}
	if v.RiskScore != DefaultAmountAnomalyPoints {
		t.Errorf("score = %d, want %d", v.RiskScore, DefaultAmountAnomalyPoints)
	}
}

func TestDominantRuleWinsOnPoints(t *testing.T) {
	cfg := DefaultConfig()

	// Anomaly (40) + unusual time (20): both clear the single-rule
	// threshold, anomaly has more points and names the block.
	night := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)
	h := History{AverageAmount: decimal.NewFromInt(10), HasAverage: true}
	v := cfg.Evaluate(newRequest("25.00", night), h)
	if v.Reason != operations.ReasonAmountAnomaly {
		t.Errorf("reason = %s, want %s", v.Reason, operations.ReasonAmountAnomaly)
	}
	if v.RiskScore != 60 {
		t.Errorf("score = %d, want 60", v.RiskScore)
	}
}

func TestExactPointsTieBreaksBySeverity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UnusualTimePoints = cfg.HighFrequencyPoints // force a tie

	night := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)
	v := cfg.Evaluate(newRequest("10.00", night), History{RecentCount: 10})
	if v.Reason != operations.ReasonHighFrequency {
		t.Errorf("tie at %d points resolved to %s, want %s",
			cfg.HighFrequencyPoints, v.Reason, operations.ReasonHighFrequency)
	}
}

func TestCompositeBlock(t *testing.T) {
	cfg := DefaultConfig()
	// Lower every primary rule below the single-rule threshold so none can
	// dominate; only the sum can block.
	cfg.AmountAnomalyPoints = 15
	cfg.HighFrequencyPoints = 15
	cfg.UnusualTimePoints = 15
	cfg.SingleRuleThreshold = 20

	night := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)
	h := History{
		RecentCount:   10,
		AverageAmount: decimal.NewFromInt(10),
		HasAverage:    true,
		RecentBlocked: 1,
	}

	// 15 + 15 + 15 + 10 = 55 > 50
	v := cfg.Evaluate(newRequest("25.00", night), h)
	if !v.Blocked {
		t.Fatalf("score %d must block as composite", v.RiskScore)
	}
	if v.Reason != operations.ReasonComposite {
		t.Errorf("reason = %s, want %s", v.Reason, operations.ReasonComposite)
	}
	if v.RiskScore != 55 {
		t.Errorf("score = %d, want 55", v.RiskScore)
	}
}

func TestCompositeThresholdIsStrict(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AmountAnomalyPoints = 15
	cfg.HighFrequencyPoints = 15
	cfg.UnusualTimePoints = 15
	cfg.SingleRuleThreshold = 20
	cfg.BlockPressureEnabled = false

	night := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)
	h := History{
		RecentCount:   10,
		AverageAmount: decimal.NewFromInt(10),
		HasAverage:    true,
	}
	// 15 + 15 + 15 = 45 <= 50: allowed with a nonzero score.
	v := cfg.Evaluate(newRequest("25.00", night), h)
	if v.Blocked {
		t.Errorf("score %d at or under the composite threshold must not block", v.RiskScore)
	}
	if v.RiskScore != 45 {
		t.Errorf("score = %d, want 45", v.RiskScore)
	}

	// Score exactly at the threshold still passes.
	cfg2 := cfg
	cfg2.UnusualTimePoints = 20
	cfg2.SingleRuleThreshold = 25
	v2 := cfg2.Evaluate(newRequest("25.00", night), h)
	if v2.RiskScore != 50 {
		t.Fatalf("score = %d, want exactly 50", v2.RiskScore)
	}
	if v2.Blocked {
		t.Error("score exactly at the composite threshold must not block")
	}
}

func TestDisabledRuleContributesNothing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AmountAnomalyEnabled = false

	h := History{AverageAmount: decimal.NewFromInt(10), HasAverage: true}
	v := cfg.Evaluate(newRequest("1000.00", daytime), h)
	if v.Blocked {
		t.Error("disabled anomaly rule must not block")
	}
	if v.RiskScore != 0 {
		t.Errorf("score = %d, want 0", v.RiskScore)
	}
}

func TestAllClearScoresZero(t *testing.T) {
	cfg := DefaultConfig()

	v := cfg.Evaluate(newRequest("10.00", daytime), History{})
	if v.Blocked {
		t.Errorf("clean operation blocked: reason %s", v.Reason)
	}
	if v.Reason != operations.ReasonNone {
		t.Errorf("reason = %q, want none", v.Reason)
	}
	if v.RiskScore != 0 {
		t.Errorf("score = %d, want 0", v.RiskScore)
	}
	if len(v.Signals) != 4 {
		t.Errorf("signals = %d, want all 4 reported", len(v.Signals))
	}
}
