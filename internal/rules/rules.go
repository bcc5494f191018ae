// Package rules implements the risk rule set for operation screening.
//
// Screening runs a fixed, closed set of rules against an incoming operation
// plus the submitter's ledger history: duplicate submission, amount anomaly,
// unusual time of day, high frequency, and recent-block pressure. Each rule
// yields an integer point contribution; the aggregator turns the signals
// into a single risk score and a block decision with a reason code. The rule
// set is deliberately not a plugin interface: the tie-break policy depends
// on knowing every member.
package rules

import (
	"time"

	"github.com/finsentry/finsentry/internal/operations"
	"github.com/shopspring/decimal"
)

// Rule names, used as signal identifiers in responses and metrics.
const (
	RuleAmountAnomaly = "amount_anomaly"
	RuleUnusualTime   = "unusual_time"
	RuleHighFrequency = "high_frequency"
	RuleBlockPressure = "block_pressure"
)

// Default point values and thresholds. Tunable via Config; these mirror the
// shipped rule table.
const (
	DefaultAmountAnomalyPoints = 40
	DefaultHighFrequencyPoints = 30
	DefaultUnusualTimePoints   = 20
	DefaultBlockPressurePoints = 10 // per prior blocked operation
	DefaultBlockPressureCap    = 30

	// DefaultSingleRuleThreshold is the lowest primary point value, so by
	// default any single triggered primary rule blocks on its own.
	DefaultSingleRuleThreshold = 20
	DefaultCompositeThreshold  = 50

	// DefaultDuplicateScore is the fixed sentinel risk score for duplicate
	// submissions.
	DefaultDuplicateScore = 100

	DefaultFrequencyLimit = 5
)

// Default windows.
const (
	DefaultFrequencyWindow     = 10 * time.Minute
	DefaultBlockPressureWindow = 24 * time.Hour

	// Night band for the unusual-time rule: [23:00, 06:00) wall clock,
	// evaluated on the caller-declared timestamp.
	nightStartHour = 23
	nightEndHour   = 6
)

// Config is the rule table: per-rule points and enablement plus the two
// block thresholds and the history windows. It is data, not logic, so
// operators can tune it without touching the evaluators.
type Config struct {
	AmountAnomalyPoints  int
	AmountAnomalyEnabled bool
	// AmountAnomalyMultiplier: trigger when amount > multiplier × average.
	AmountAnomalyMultiplier decimal.Decimal

	UnusualTimePoints  int
	UnusualTimeEnabled bool

	HighFrequencyPoints  int
	HighFrequencyEnabled bool
	FrequencyWindow      time.Duration
	// FrequencyLimit: trigger when the trailing-window count (excluding the
	// operation under evaluation) is strictly greater than this.
	FrequencyLimit int

	BlockPressurePoints  int
	BlockPressureCap     int
	BlockPressureEnabled bool
	BlockPressureWindow  time.Duration

	// SingleRuleThreshold: a triggered primary rule blocks on its own when
	// its points reach this value.
	SingleRuleThreshold int
	// CompositeThreshold: the summed score blocks as COMPOSITE_RISK when
	// strictly above this value.
	CompositeThreshold int

	// DuplicateScore is the sentinel risk score assigned to duplicates.
	DuplicateScore int
}

// DefaultConfig returns the shipped rule table.
func DefaultConfig() Config {
	return Config{
		AmountAnomalyPoints:     DefaultAmountAnomalyPoints,
		AmountAnomalyEnabled:    true,
		AmountAnomalyMultiplier: decimal.NewFromInt(2),

		UnusualTimePoints:  DefaultUnusualTimePoints,
		UnusualTimeEnabled: true,

		HighFrequencyPoints:  DefaultHighFrequencyPoints,
		HighFrequencyEnabled: true,
		FrequencyWindow:      DefaultFrequencyWindow,
		FrequencyLimit:       DefaultFrequencyLimit,

		BlockPressurePoints:  DefaultBlockPressurePoints,
		BlockPressureCap:     DefaultBlockPressureCap,
		BlockPressureEnabled: true,
		BlockPressureWindow:  DefaultBlockPressureWindow,

		SingleRuleThreshold: DefaultSingleRuleThreshold,
		CompositeThreshold:  DefaultCompositeThreshold,

		DuplicateScore: DefaultDuplicateScore,
	}
}

// Signal is one rule's contribution to a decision.
type Signal struct {
	Rule      string                 `json:"rule"`
	Triggered bool                   `json:"triggered"`
	Points    int                    `json:"points"`
	Code      operations.BlockReason `json:"code,omitempty"`
}

// History carries the ledger answers a single evaluation depends on. The
// Decision Service fills it from the store before the evaluators run; the
// evaluators themselves never touch storage.
type History struct {
	// Duplicate is true when a committed record already holds the
	// operation id.
	Duplicate bool
	// RecentCount is the user's operation count inside FrequencyWindow,
	// excluding the operation under evaluation.
	RecentCount int
	// AverageAmount is the user's mean historical amount for the
	// operation's type; HasAverage is false on cold start.
	AverageAmount decimal.Decimal
	HasAverage    bool
	// RecentBlocked is the user's blocked-operation count inside
	// BlockPressureWindow.
	RecentBlocked int
}
