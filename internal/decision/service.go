// Package decision implements the operation screening façade.
//
// Flow per check:
//  1. Validate the request (no ledger touch on failure)
//  2. Read history: idempotency lookup + three history queries, concurrently
//  3. Run the rule evaluators and aggregate a verdict
//  4. Append exactly one ledger record per non-duplicate operation id
//
// Blocked operations are recorded too: they feed the recent-block pressure
// rule for future checks and stay in the audit trail.
package decision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/finsentry/finsentry/internal/idgen"
	"github.com/finsentry/finsentry/internal/metrics"
	"github.com/finsentry/finsentry/internal/operations"
	"github.com/finsentry/finsentry/internal/rules"
	"github.com/finsentry/finsentry/internal/syncutil"
	"github.com/finsentry/finsentry/internal/traces"
	"github.com/finsentry/finsentry/internal/validation"
)

// ErrUnavailable wraps ledger read/write failures. The engine fails closed:
// a caller seeing this must treat the operation as unconfirmed, never as
// implicitly allowed.
var ErrUnavailable = errors.New("decision: ledger unavailable")

const defaultHistoryLimit = 50

// MaxHistoryLimit caps the audit feed page size.
const MaxHistoryLimit = 500

// CheckResponse is the engine's verdict on one operation.
type CheckResponse struct {
	OperationID string                 `json:"operationId"`
	Blocked     bool                   `json:"blocked"`
	ReasonCode  operations.BlockReason `json:"reasonCode,omitempty"`
	Description string                 `json:"description"`
	RiskScore   int                    `json:"riskScore"`
	Signals     []rules.Signal         `json:"signals,omitempty"`
}

// Service evaluates check requests against the operation ledger.
type Service struct {
	store  operations.Store
	cfg    rules.Config
	locks  *syncutil.ContextShardedMutex
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a decision service over the given ledger store.
func NewService(store operations.Store, cfg rules.Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		cfg:    cfg,
		locks:  syncutil.NewContextShardedMutex(),
		logger: logger,
		now:    time.Now,
	}
}

// Check screens one operation and appends its outcome to the ledger.
//
// Returns validation.ValidationErrors for malformed requests (nothing is
// written) and an ErrUnavailable-wrapped error when the ledger cannot be
// read or written. Duplicate submission is not an error: it yields a
// blocked response with DUPLICATE_OPERATION and no second ledger row.
func (s *Service) Check(ctx context.Context, req *operations.CheckRequest) (*CheckResponse, error) {
	if errs := validation.CheckRequest(req); len(errs) > 0 {
		return nil, errs
	}

	timer := prometheus.NewTimer(metrics.CheckDuration)
	defer timer.ObserveDuration()

	ctx, span := traces.StartSpan(ctx, "decision.Check",
		traces.OperationID(req.OperationID),
		traces.UserID(req.UserID),
		traces.OperationType(string(req.Type)),
	)
	defer span.End()

	// Serialize check-then-append per operation id so a racing resubmission
	// observes the committed record. The store's uniqueness guard remains
	// the backstop for writers that bypass this process.
	unlock, err := s.locks.LockContext(ctx, req.OperationID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	hist, err := s.loadHistory(ctx, req)
	if err != nil {
		metrics.ChecksTotal.WithLabelValues("unavailable").Inc()
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	verdict := s.cfg.Evaluate(req, hist)

	if verdict.Reason == operations.ReasonDuplicate {
		metrics.ChecksTotal.WithLabelValues("duplicate").Inc()
		metrics.BlocksTotal.WithLabelValues(string(operations.ReasonDuplicate)).Inc()
		return s.respond(req, verdict), nil
	}

	rec := &operations.Record{
		ID:          idgen.WithPrefix("op_"),
		OperationID: req.OperationID,
		Type:        req.Type,
		UserID:      req.UserID,
		AccountID:   req.AccountID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Timestamp:   req.Timestamp,
		Blocked:     verdict.Blocked,
		BlockReason: verdict.Reason,
		RiskScore:   verdict.RiskScore,
		CreatedAt:   s.now().UTC(),
	}

	if err := s.store.Append(ctx, rec); err != nil {
		if errors.Is(err, operations.ErrDuplicateOperation) {
			// Lost the race on the uniqueness guard: another writer
			// committed first. Same deterministic answer as any resubmission.
			verdict = s.cfg.Evaluate(req, rules.History{Duplicate: true})
			metrics.ChecksTotal.WithLabelValues("duplicate").Inc()
			metrics.BlocksTotal.WithLabelValues(string(operations.ReasonDuplicate)).Inc()
			return s.respond(req, verdict), nil
		}
		metrics.ChecksTotal.WithLabelValues("unavailable").Inc()
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if verdict.Blocked {
		metrics.ChecksTotal.WithLabelValues("blocked").Inc()
		metrics.BlocksTotal.WithLabelValues(string(verdict.Reason)).Inc()
		s.logger.Info("operation blocked",
			"operation_id", req.OperationID,
			"user_id", req.UserID,
			"reason", verdict.Reason,
			"risk_score", verdict.RiskScore,
		)
	} else {
		metrics.ChecksTotal.WithLabelValues("allowed").Inc()
	}
	metrics.RiskScore.Observe(float64(verdict.RiskScore))

	return s.respond(req, verdict), nil
}

// History returns the user's operation records, most recent first. Read-only
// audit feed; limit <= 0 means the default, and the cap bounds the response.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]*operations.Record, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	recs, err := s.store.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return recs, nil
}

// loadHistory issues the idempotency lookup and the three history queries
// concurrently. They are independent reads; any failure fails the check.
func (s *Service) loadHistory(ctx context.Context, req *operations.CheckRequest) (rules.History, error) {
	var (
		hist rules.History
		wg   sync.WaitGroup
		errs [4]error
	)

	wg.Add(4)
	go func() {
		defer wg.Done()
		hist.Duplicate, errs[0] = s.store.Exists(ctx, req.OperationID)
	}()
	go func() {
		defer wg.Done()
		since := req.Timestamp.Add(-s.cfg.FrequencyWindow)
		hist.RecentCount, errs[1] = s.store.CountSince(ctx, req.UserID, since)
	}()
	go func() {
		defer wg.Done()
		hist.AverageAmount, hist.HasAverage, errs[2] = s.store.AverageAmount(ctx, req.UserID, req.Type)
	}()
	go func() {
		defer wg.Done()
		since := req.Timestamp.Add(-s.cfg.BlockPressureWindow)
		hist.RecentBlocked, errs[3] = s.store.CountBlockedSince(ctx, req.UserID, since)
	}()
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return rules.History{}, err
		}
	}
	return hist, nil
}

func (s *Service) respond(req *operations.CheckRequest, v rules.Verdict) *CheckResponse {
	return &CheckResponse{
		OperationID: req.OperationID,
		Blocked:     v.Blocked,
		ReasonCode:  v.Reason,
		Description: describe(v.Reason),
		RiskScore:   v.RiskScore,
		Signals:     v.Signals,
	}
}

func describe(reason operations.BlockReason) string {
	switch reason {
	case operations.ReasonNone:
		return "operation allowed"
	case operations.ReasonDuplicate:
		return "operation id was already processed"
	case operations.ReasonAmountAnomaly:
		return "amount exceeds twice the user's historical average for this type"
	case operations.ReasonUnusualTime:
		return "operation time falls in the unusual-hours band"
	case operations.ReasonHighFrequency:
		return "too many operations in the trailing window"
	case operations.ReasonComposite:
		return "multiple risk signals combined above the composite threshold"
	default:
		return "operation blocked"
	}
}
