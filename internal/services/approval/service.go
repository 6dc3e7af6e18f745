// Package approval tracks token allowance sufficiency for trade plans.
// Allowance reads are always fresh: another wallet tab or an earlier
// transaction can change an allowance out-of-band at any time.
package approval

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"hermes/internal/chain"
	domain "hermes/internal/domain/approval"
	"hermes/internal/domain/trade"
	"hermes/internal/metrics"
	"hermes/pkg/errors"
	"hermes/pkg/logger"
)

// MaxAllowance is the unbounded allowance requested on approval, so a
// wallet does not have to re-approve before every trade.
var MaxAllowance = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Service checks and requests token approvals
type Service struct {
	reader chain.Reader
	signer chain.Signer
	log    *logger.Logger
}

// NewService constructs an approval service
func NewService(reader chain.Reader, signer chain.Signer) *Service {
	return &Service{
		reader: reader,
		signer: signer,
		log:    logger.Get().With("component", "approval"),
	}
}

// Check reads the wallet's current allowance and classifies it against
// the required amount. A nil required amount accepts any positive
// allowance.
func (s *Service) Check(ctx context.Context, token, spender common.Address, required *big.Int) (domain.Approval, error) {
	allowance, err := s.reader.GetAllowance(ctx, token, s.signer.Address(), spender)
	if err != nil {
		metrics.ApprovalChecks.WithLabelValues("error").Inc()
		return domain.Approval{}, errors.Wrapf(err, "read allowance of %s for %s", token.Hex(), spender.Hex())
	}
	a := domain.Approval{
		Token:     token,
		Spender:   spender,
		Allowance: allowance,
		Required:  required,
	}
	metrics.ApprovalChecks.WithLabelValues(string(a.Status())).Inc()
	return a, nil
}

// CheckPlan reads fresh allowances for every (token, spender) pair the
// plan depends on and returns the combined state.
func (s *Service) CheckPlan(ctx context.Context, plan *trade.Plan) (*domain.State, error) {
	targets := plan.ApprovalTargets()
	approvals := make([]domain.Approval, 0, len(targets))
	for _, t := range targets {
		a, err := s.Check(ctx, t.Token, t.Spender, t.Required)
		if err != nil {
			return nil, err
		}
		approvals = append(approvals, a)
	}
	return domain.NewState(approvals), nil
}

// Request submits an unbounded approval for the (token, spender) pair
// and resolves only after the transaction is confirmed on chain.
func (s *Service) Request(ctx context.Context, token, spender common.Address) error {
	s.log.Infow("Requesting token approval",
		"token", token.Hex(),
		"spender", spender.Hex(),
	)

	call := &trade.CallParameters{
		Contract: token,
		Method:   "approve",
		Args:     []interface{}{spender, new(big.Int).Set(MaxAllowance)},
		Value:    big.NewInt(0),
	}

	hash, err := s.signer.SendTransaction(ctx, call)
	if err != nil {
		if errors.Is(err, errors.ErrTxRejected) {
			metrics.ApprovalRequests.WithLabelValues("rejected").Inc()
			return errors.Wrapf(errors.ErrApprovalRejected, "token %s", token.Hex())
		}
		metrics.ApprovalRequests.WithLabelValues("failed").Inc()
		return errors.Wrapf(err, "send approval for %s", token.Hex())
	}

	receipt, err := s.signer.WaitMined(ctx, hash)
	if err != nil {
		metrics.ApprovalRequests.WithLabelValues("failed").Inc()
		return errors.Wrapf(err, "wait for approval %s", hash.Hex())
	}
	if !receipt.Succeeded() {
		metrics.ApprovalRequests.WithLabelValues("failed").Inc()
		return errors.Wrapf(errors.ErrApprovalFailed, "approval tx %s reverted", hash.Hex())
	}
	metrics.ApprovalRequests.WithLabelValues("success").Inc()

	s.log.Infow("Token approval confirmed",
		"token", token.Hex(),
		"spender", spender.Hex(),
		"tx", hash.Hex(),
	)
	return nil
}
