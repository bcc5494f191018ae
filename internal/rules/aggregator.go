package rules

import (
	"github.com/finsentry/finsentry/internal/operations"
)

// Verdict is the aggregated outcome of one evaluation.
type Verdict struct {
	Blocked   bool
	Reason    operations.BlockReason
	RiskScore int
	Signals   []Signal
}

// severity orders the primary rules for exact-points tie-breaks, descending:
// AMOUNT_ANOMALY over HIGH_FREQUENCY over UNUSUAL_TIME.
var severity = map[operations.BlockReason]int{
	operations.ReasonAmountAnomaly: 3,
	operations.ReasonHighFrequency: 2,
	operations.ReasonUnusualTime:   1,
}

// Evaluate runs the full rule pipeline for one operation.
//
// Duplicate submission short-circuits everything: the verdict is a block
// with the fixed sentinel score and no other rule runs. Otherwise the three
// primary rules plus block pressure are summed into the risk score, and the
// decision is two-tier: a primary rule whose points reach the single-rule
// threshold blocks under its own code (ties go to the higher point value,
// then to severity), while an over-threshold sum with no dominant rule
// blocks as COMPOSITE_RISK.
func (c Config) Evaluate(req *operations.CheckRequest, h History) Verdict {
	if h.Duplicate {
		return Verdict{
			Blocked:   true,
			Reason:    operations.ReasonDuplicate,
			RiskScore: c.DuplicateScore,
		}
	}

	signals := []Signal{
		c.AmountAnomaly(req.Amount, h),
		c.UnusualTime(req.Timestamp),
		c.HighFrequency(h),
		c.BlockPressure(h),
	}

	score := 0
	var dominant *Signal
	for i := range signals {
		sig := &signals[i]
		if !sig.Triggered {
			continue
		}
		score += sig.Points

		// Block pressure has no code and cannot dominate.
		if sig.Code == operations.ReasonNone || sig.Points < c.SingleRuleThreshold {
			continue
		}
		if dominant == nil ||
			sig.Points > dominant.Points ||
			(sig.Points == dominant.Points && severity[sig.Code] > severity[dominant.Code]) {
			dominant = sig
		}
	}

	v := Verdict{RiskScore: score, Signals: signals}
	switch {
	case dominant != nil:
		v.Blocked = true
		v.Reason = dominant.Code
	case score > c.CompositeThreshold:
		v.Blocked = true
		v.Reason = operations.ReasonComposite
	}
	return v
}
