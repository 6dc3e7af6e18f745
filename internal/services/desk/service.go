// Package desk holds the trader's current working selection: which
// option series is in focus and which operation is armed. Changing the
// selection re-reads the allowances the armed operation will need, so
// the approval prompt can be shown before any amount is typed.
package desk

import (
	"context"
	"sync"
	"time"

	domain "hermes/internal/domain/approval"
	"hermes/internal/domain/option"
	"hermes/internal/domain/trade"
	"hermes/internal/services/approval"
	"hermes/internal/services/router"
	"hermes/pkg/errors"
	"hermes/pkg/logger"
)

// Selection is the armed option and operation with its approval state
type Selection struct {
	Option    *option.Terms
	Operation trade.Operation
	Approvals *domain.State
	UpdatedAt time.Time
}

// Ready reports whether every allowance the operation needs is in place
func (s *Selection) Ready() bool {
	return s.Approvals != nil && s.Approvals.Ready()
}

// Service manages the working selection
type Service struct {
	router    *router.Service
	approvals *approval.Service
	log       *logger.Logger

	mu      sync.RWMutex
	current *Selection
}

// NewService constructs a desk service
func NewService(r *router.Service, a *approval.Service) *Service {
	return &Service{
		router:    r,
		approvals: a,
		log:       logger.Get().With("component", "desk"),
	}
}

// Select arms an operation on an option series. Allowances for the
// operation's spenders are read fresh; a read failure leaves the
// previous selection untouched.
func (s *Service) Select(ctx context.Context, terms *option.Terms, op trade.Operation) (*Selection, error) {
	if terms == nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "option terms are required")
	}
	if err := terms.Validate(); err != nil {
		return nil, err
	}
	if !op.Valid() || op == trade.OperationNone {
		return nil, errors.Wrapf(errors.ErrUnmappedOperation, "operation %q", op)
	}

	state, err := s.checkApprovals(ctx, terms, op)
	if err != nil {
		return nil, err
	}

	sel := &Selection{
		Option:    terms,
		Operation: op,
		Approvals: state,
		UpdatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.current = sel
	s.mu.Unlock()

	s.log.Infow("Selection armed",
		"option", terms.Address.Hex(),
		"operation", op,
		"approved", sel.Ready(),
	)
	return sel, nil
}

// Refresh re-reads the armed selection's allowances. A transaction in
// another window may have granted or spent an allowance since Select.
func (s *Service) Refresh(ctx context.Context) (*Selection, error) {
	s.mu.RLock()
	cur := s.current
	s.mu.RUnlock()
	if cur == nil {
		return nil, errors.Wrap(errors.ErrNoSelection, "refresh")
	}

	state, err := s.checkApprovals(ctx, cur.Option, cur.Operation)
	if err != nil {
		return nil, err
	}

	sel := &Selection{
		Option:    cur.Option,
		Operation: cur.Operation,
		Approvals: state,
		UpdatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.current = sel
	s.mu.Unlock()
	return sel, nil
}

// Current returns the armed selection, or nil when nothing is armed
func (s *Service) Current() *Selection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Clear disarms the selection
func (s *Service) Clear() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
	s.log.Debugw("Selection cleared")
}

func (s *Service) checkApprovals(ctx context.Context, terms *option.Terms, op trade.Operation) (*domain.State, error) {
	targets, err := s.router.PreviewApprovals(ctx, op, terms)
	if err != nil {
		return nil, err
	}

	approvals := make([]domain.Approval, 0, len(targets))
	for _, t := range targets {
		a, err := s.approvals.Check(ctx, t.Token, t.Spender, t.Required)
		if err != nil {
			return nil, err
		}
		approvals = append(approvals, a)
	}
	return domain.NewState(approvals), nil
}
