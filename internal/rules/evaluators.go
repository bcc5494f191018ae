package rules

import (
	"time"

	"github.com/finsentry/finsentry/internal/operations"
	"github.com/shopspring/decimal"
)

// The evaluators are pure functions of the request plus History: stateless,
// order-insensitive, and side-effect free.

// AmountAnomaly triggers when a historical average exists and the amount is
// strictly greater than multiplier × average. A user's first operation of a
// type has no baseline and never triggers (cold start is given the benefit
// of the doubt).
func (c Config) AmountAnomaly(amount decimal.Decimal, h History) Signal {
	sig := Signal{Rule: RuleAmountAnomaly, Code: operations.ReasonAmountAnomaly}
	if !c.AmountAnomalyEnabled || !h.HasAverage {
		return sig
	}
	if amount.GreaterThan(h.AverageAmount.Mul(c.AmountAnomalyMultiplier)) {
		sig.Triggered = true
		sig.Points = c.AmountAnomalyPoints
	}
	return sig
}

// UnusualTime triggers when the declared timestamp's local hour falls in the
// night band [23:00, 06:00). The band is fixed wall clock; any timezone
// normalization happens upstream.
func (c Config) UnusualTime(ts time.Time) Signal {
	sig := Signal{Rule: RuleUnusualTime, Code: operations.ReasonUnusualTime}
	if !c.UnusualTimeEnabled {
		return sig
	}
	hour := ts.Hour()
	if hour >= nightStartHour || hour < nightEndHour {
		sig.Triggered = true
		sig.Points = c.UnusualTimePoints
	}
	return sig
}

// HighFrequency triggers when the user already has strictly more than
// FrequencyLimit operations in the trailing window. The count excludes the
// operation under evaluation, which is not yet in the ledger.
func (c Config) HighFrequency(h History) Signal {
	sig := Signal{Rule: RuleHighFrequency, Code: operations.ReasonHighFrequency}
	if !c.HighFrequencyEnabled {
		return sig
	}
	if h.RecentCount > c.FrequencyLimit {
		sig.Triggered = true
		sig.Points = c.HighFrequencyPoints
	}
	return sig
}

// BlockPressure contributes points for each of the user's recently blocked
// operations, capped. It only ever feeds the composite score: it has no
// reason code and never blocks on its own.
func (c Config) BlockPressure(h History) Signal {
	sig := Signal{Rule: RuleBlockPressure}
	if !c.BlockPressureEnabled || h.RecentBlocked <= 0 {
		return sig
	}
	points := h.RecentBlocked * c.BlockPressurePoints
	if points > c.BlockPressureCap {
		points = c.BlockPressureCap
	}
	sig.Triggered = true
	sig.Points = points
	return sig
}
