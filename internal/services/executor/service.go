// Package executor sequences approvals ahead of submission and turns a
// trade plan into exactly one signed transaction. It never retries:
// classification is returned to the caller, who decides whether to
// re-offer approval or re-route.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"hermes/internal/adapters/notify"
	"hermes/internal/chain"
	"hermes/internal/domain/trade"
	"hermes/internal/metrics"
	"hermes/internal/services/approval"
	"hermes/pkg/errors"
	"hermes/pkg/logger"
)

// SubmissionRepository persists submission records
type SubmissionRepository interface {
	Save(ctx context.Context, sub *trade.Submission) error
}

// Service submits trade plans
type Service struct {
	signer    chain.Signer
	approvals *approval.Service
	records   SubmissionRepository
	notifier  notify.Sink
	log       *logger.Logger

	mu       sync.Mutex
	inflight map[uuid.UUID]struct{}
}

// NewService constructs an executor
func NewService(signer chain.Signer, approvals *approval.Service, records SubmissionRepository, notifier notify.Sink) *Service {
	return &Service{
		signer:    signer,
		approvals: approvals,
		records:   records,
		notifier:  notifier,
		log:       logger.Get().With("component", "executor"),
		inflight:  make(map[uuid.UUID]struct{}),
	}
}

// Submit verifies approvals and broadcasts the plan's call. A plan with
// a missing allowance fails fast before the signer is touched, and a
// second submit for the same plan while one is pending is rejected, not
// queued.
func (s *Service) Submit(ctx context.Context, plan *trade.Plan) (*trade.Submission, error) {
	if plan == nil || plan.Call == nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "plan has no call parameters")
	}

	state, err := s.approvals.CheckPlan(ctx, plan)
	if err != nil {
		return nil, errors.Wrap(err, "check approvals")
	}
	if !state.Ready() {
		var missing []string
		for _, a := range state.Missing() {
			missing = append(missing, fmt.Sprintf("%s for %s (allowance %s)",
				a.Token.Hex(), a.Spender.Hex(), a.Allowance))
		}
		return nil, errors.Wrapf(errors.ErrApprovalRequired, "missing: %v", missing)
	}

	if err := s.acquire(plan.ID); err != nil {
		return nil, err
	}
	defer s.release(plan.ID)

	sub := &trade.Submission{
		ID:          uuid.New(),
		PlanID:      plan.ID,
		Operation:   plan.Operation,
		From:        s.signer.Address(),
		SubmittedAt: time.Now().UTC(),
	}

	hash, sendErr := s.signer.SendTransaction(ctx, plan.Call)
	sub.Hash = hash
	sub.Outcome = classify(sendErr)
	if sendErr != nil {
		sub.Error = sendErr.Error()
	}

	s.record(ctx, sub)
	metrics.RecordSubmission(plan.Operation.String(), string(sub.Outcome))

	if sendErr != nil {
		s.report(sub, plan)
		return sub, errors.Wrapf(sendErr, "submit %s", plan.Operation)
	}

	s.log.Infow("Transaction submitted",
		"operation", plan.Operation,
		"tx", hash.Hex(),
		"method", plan.Call.Method,
	)
	return sub, nil
}

func (s *Service) acquire(planID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, pending := s.inflight[planID]; pending {
		return errors.Wrapf(errors.ErrSubmissionInProgress, "plan %s", planID)
	}
	s.inflight[planID] = struct{}{}
	return nil
}

func (s *Service) release(planID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, planID)
}

func (s *Service) record(ctx context.Context, sub *trade.Submission) {
	if s.records == nil {
		return
	}
	if err := s.records.Save(ctx, sub); err != nil {
		s.log.Warnw("Failed to persist submission record",
			"submission", sub.ID,
			"error", err,
		)
	}
}

// report surfaces a terminal failure once, with enough context to
// reproduce the attempt
func (s *Service) report(sub *trade.Submission, plan *trade.Plan) {
	if s.notifier == nil {
		return
	}
	s.notifier.Report(notify.SeverityError,
		"Order failed",
		fmt.Sprintf("%s of %s base units (spender %s): %s",
			plan.Operation,
			humanize.BigComma(plan.InputAmount),
			plan.Spender.Hex(),
			sub.Error,
		),
	)
}

func classify(err error) trade.Outcome {
	switch {
	case err == nil:
		return trade.OutcomeSubmitted
	case errors.Is(err, errors.ErrTxRejected):
		return trade.OutcomeUserRejected
	case errors.Is(err, errors.ErrTxReverted):
		return trade.OutcomeReverted
	default:
		return trade.OutcomeNetworkError
	}
}
