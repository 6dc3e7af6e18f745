// Package router maps an abstract trading operation onto a concrete,
// fully-parameterized protocol call. Every routing call reads a fresh
// pool snapshot before deriving amounts; the service holds no mutable
// state between calls and is safe to invoke concurrently.
package router

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"hermes/internal/chain"
	"hermes/internal/domain/market"
	"hermes/internal/domain/option"
	"hermes/internal/domain/trade"
	"hermes/internal/metrics"
	"hermes/pkg/errors"
	"hermes/pkg/logger"
)

// Contracts are the protocol endpoints a plan may be routed to
type Contracts struct {
	Factory common.Address
	// Router is the AMM swap router
	Router common.Address
	// Connector composes option minting with AMM swaps
	Connector common.Address
	// Trader is the protocol's position manager for direct calls
	Trader common.Address
}

// Service builds trade plans
type Service struct {
	reader    chain.Reader
	contracts Contracts
	settings  trade.Settings
	log       *logger.Logger
}

// NewService constructs a routing service
func NewService(reader chain.Reader, contracts Contracts, settings trade.Settings) *Service {
	return &Service{
		reader:    reader,
		contracts: contracts,
		settings:  settings,
		log:       logger.Get().With("component", "router"),
	}
}

// RouteParams describe one requested trading action. Amount is the
// fixed side the user typed; SecondaryAmount is only consulted for
// liquidity operations and must be positive there.
type RouteParams struct {
	Operation       trade.Operation
	Option          *option.Terms
	Amount          *big.Int
	SecondaryAmount *big.Int
}

// Route builds a complete trade plan for the requested operation.
// Reserve reads happen before derived-amount computation, which happens
// before call construction; partial plans are never returned.
func (s *Service) Route(ctx context.Context, p RouteParams) (*trade.Plan, error) {
	if !p.Operation.Valid() {
		return nil, errors.Wrapf(errors.ErrUnmappedOperation, "operation %q", p.Operation)
	}
	if p.Operation == trade.OperationNone {
		return nil, errors.Wrap(errors.ErrNoSelection, "route")
	}
	if p.Option == nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "option terms are required")
	}
	if err := p.Option.Validate(); err != nil {
		return nil, err
	}
	if p.Amount == nil || p.Amount.Sign() <= 0 {
		return nil, errors.Wrapf(errors.ErrZeroQuantity, "operation %s", p.Operation)
	}

	start := time.Now()
	var (
		plan *trade.Plan
		err  error
	)
	switch p.Operation {
	case trade.OperationLong:
		plan, err = s.routeLong(ctx, p)
	case trade.OperationShort:
		plan, err = s.routeShort(ctx, p)
	case trade.OperationWrite:
		plan, err = s.routeWrite(p)
	case trade.OperationCloseLong:
		plan, err = s.routeCloseLong(ctx, p)
	case trade.OperationCloseShort:
		plan, err = s.routeCloseShort(ctx, p)
	case trade.OperationAddLiquidity, trade.OperationAddLiquidityCustom:
		plan, err = s.routeAddLiquidity(ctx, p)
	case trade.OperationRemoveLiquidity, trade.OperationRemoveLiquidityClose:
		plan, err = s.routeRemoveLiquidity(ctx, p)
	case trade.OperationMint, trade.OperationExercise, trade.OperationRedeem, trade.OperationClose:
		plan, err = s.routeDirect(p)
	default:
		// Valid() filtered unknown values already; a new Operation constant
		// without a routing rule still must not fall through to a swap
		return nil, errors.Wrapf(errors.ErrUnmappedOperation, "operation %q", p.Operation)
	}
	metrics.RecordRoute(p.Operation.String(), time.Since(start), err)
	if err != nil {
		return nil, err
	}

	plan.ID = uuid.New()
	plan.Operation = p.Operation
	plan.Option = p.Option
	plan.CreatedAt = time.Now().UTC()

	s.log.Debugw("Routed operation",
		"operation", p.Operation,
		"option", p.Option.Address.Hex(),
		"input", plan.InputAmount,
		"output", plan.OutputAmount,
	)
	return plan, nil
}

// routeLong buys long option tokens. The pair lends the exact underlying
// amount out; the redeem cost is solved backward with AmountIn.
func (s *Service) routeLong(ctx context.Context, p RouteParams) (*trade.Plan, error) {
	pool, err := s.fetchPool(ctx, p.Option, false)
	if err != nil {
		return nil, err
	}

	reserveIn, reserveOut, err := pool.ReservesFor(p.Option.Redeem, p.Option.Underlying)
	if err != nil {
		return nil, err
	}
	redeemCost, err := market.AmountIn(reserveIn, reserveOut, p.Amount)
	if err != nil {
		return nil, err
	}

	plan := &trade.Plan{
		Path:         []common.Address{p.Option.Redeem, p.Option.Underlying},
		InputAmount:  redeemCost,
		OutputAmount: p.Amount,
		Pool:         pool,
		Spender:      s.contracts.Connector,
		Approvals: []trade.ApprovalTarget{
			// The wallet pays the flash premium in underlying; the exact
			// cost is settled on chain, so any positive allowance gates it
			{Token: p.Option.Underlying, Spender: s.contracts.Connector},
		},
	}
	plan.Call = &trade.CallParameters{
		Contract: s.contracts.Connector,
		Method:   "openFlashLong",
		Args: []interface{}{
			p.Option.Address,
			p.Amount,
			s.settings.MaximumIn(redeemCost),
		},
		Value:           big.NewInt(0),
		TokensToApprove: []common.Address{p.Option.Underlying},
	}
	return plan, nil
}

// routeShort purchases short option tokens from the pair for underlying.
// Exact output, so the underlying cost is the derived side.
func (s *Service) routeShort(ctx context.Context, p RouteParams) (*trade.Plan, error) {
	pool, err := s.fetchPool(ctx, p.Option, false)
	if err != nil {
		return nil, err
	}

	reserveIn, reserveOut, err := pool.ReservesFor(p.Option.Underlying, p.Option.Redeem)
	if err != nil {
		return nil, err
	}
	underlyingCost, err := market.AmountIn(reserveIn, reserveOut, p.Amount)
	if err != nil {
		return nil, err
	}

	path := []common.Address{p.Option.Underlying, p.Option.Redeem}
	plan := &trade.Plan{
		Path:         path,
		InputAmount:  underlyingCost,
		OutputAmount: p.Amount,
		Pool:         pool,
		Spender:      s.contracts.Router,
		Approvals: []trade.ApprovalTarget{
			{Token: p.Option.Underlying, Spender: s.contracts.Router, Required: underlyingCost},
		},
	}
	plan.Call = &trade.CallParameters{
		Contract: s.contracts.Router,
		Method:   "swapTokensForExactTokens",
		Args: []interface{}{
			p.Amount,
			s.settings.MaximumIn(underlyingCost),
			path,
			s.settings.Receiver,
			s.deadline(),
		},
		Value:           big.NewInt(0),
		TokensToApprove: []common.Address{p.Option.Underlying},
	}
	return plan, nil
}

// routeWrite mints option tokens against an underlying deposit. No AMM
// leg: the redeem side is the option's own proportional ratio.
func (s *Service) routeWrite(p RouteParams) (*trade.Plan, error) {
	redeemMinted := p.Option.ProportionalShort(p.Amount)

	plan := &trade.Plan{
		Path:         []common.Address{p.Option.Underlying, p.Option.Redeem},
		InputAmount:  p.Amount,
		OutputAmount: redeemMinted,
		Spender:      s.contracts.Connector,
		Approvals: []trade.ApprovalTarget{
			{Token: p.Option.Address, Spender: s.contracts.Connector},
			{Token: p.Option.Underlying, Spender: s.contracts.Connector, Required: p.Amount},
		},
	}
	plan.Call = &trade.CallParameters{
		Contract: s.contracts.Connector,
		Method:   "mintOptions",
		Args: []interface{}{
			p.Option.Address,
			p.Amount,
			s.settings.Receiver,
		},
		Value:           big.NewInt(0),
		TokensToApprove: []common.Address{p.Option.Address, p.Option.Underlying},
	}
	return plan, nil
}

// routeCloseLong sells long option tokens back. The short side that must
// be borrowed to close is the option quantity scaled by the quote/base
// ratio; the underlying cost of borrowing it is solved with AmountIn.
func (s *Service) routeCloseLong(ctx context.Context, p RouteParams) (*trade.Plan, error) {
	redeemToClose := p.Option.ProportionalShort(p.Amount)
	if redeemToClose.Sign() == 0 {
		return nil, errors.Wrap(errors.ErrZeroQuantity, "close amount rounds to zero short tokens")
	}

	pool, err := s.fetchPool(ctx, p.Option, false)
	if err != nil {
		return nil, err
	}

	reserveIn, reserveOut, err := pool.ReservesFor(p.Option.Underlying, p.Option.Redeem)
	if err != nil {
		return nil, err
	}
	underlyingCost, err := market.AmountIn(reserveIn, reserveOut, redeemToClose)
	if err != nil {
		return nil, err
	}

	plan := &trade.Plan{
		Path:         []common.Address{p.Option.Underlying, p.Option.Redeem},
		InputAmount:  underlyingCost,
		OutputAmount: redeemToClose,
		Pool:         pool,
		Spender:      s.contracts.Connector,
		Approvals: []trade.ApprovalTarget{
			{Token: p.Option.Address, Spender: s.contracts.Connector},
		},
	}
	plan.Call = &trade.CallParameters{
		Contract: s.contracts.Connector,
		Method:   "closeFlashLong",
		Args: []interface{}{
			p.Option.Address,
			redeemToClose,
			s.settings.MaximumIn(underlyingCost),
		},
		Value:           big.NewInt(0),
		TokensToApprove: []common.Address{p.Option.Address},
	}
	return plan, nil
}

// routeCloseShort sells short option tokens for underlying. Exact input,
// so the payout is the derived side, via AmountOut and never AmountIn.
func (s *Service) routeCloseShort(ctx context.Context, p RouteParams) (*trade.Plan, error) {
	pool, err := s.fetchPool(ctx, p.Option, false)
	if err != nil {
		return nil, err
	}

	reserveIn, reserveOut, err := pool.ReservesFor(p.Option.Redeem, p.Option.Underlying)
	if err != nil {
		return nil, err
	}
	payout, err := market.AmountOut(reserveIn, reserveOut, p.Amount)
	if err != nil {
		return nil, err
	}

	path := []common.Address{p.Option.Redeem, p.Option.Underlying}
	plan := &trade.Plan{
		Path:         path,
		InputAmount:  p.Amount,
		OutputAmount: payout,
		Pool:         pool,
		Spender:      s.contracts.Router,
		Approvals: []trade.ApprovalTarget{
			{Token: p.Option.Redeem, Spender: s.contracts.Router, Required: p.Amount},
		},
	}
	plan.Call = &trade.CallParameters{
		Contract: s.contracts.Router,
		Method:   "swapExactTokensForTokens",
		Args: []interface{}{
			p.Amount,
			s.settings.MinimumOut(payout),
			path,
			s.settings.Receiver,
			s.deadline(),
		},
		Value:           big.NewInt(0),
		TokensToApprove: []common.Address{p.Option.Redeem},
	}
	return plan, nil
}

// routeAddLiquidity deposits both sides into the redeem<>underlying pair.
// Both amounts come from the caller; reserves are fetched only to
// validate the deposit ratio. The custom variant skips the ratio check.
func (s *Service) routeAddLiquidity(ctx context.Context, p RouteParams) (*trade.Plan, error) {
	if p.SecondaryAmount == nil || p.SecondaryAmount.Sign() <= 0 {
		return nil, errors.Wrapf(errors.ErrZeroQuantity, "%s secondary amount", p.Operation)
	}

	pool, err := s.fetchPool(ctx, p.Option, true)
	if err != nil {
		return nil, err
	}

	if p.Operation == trade.OperationAddLiquidity && !pool.Empty() {
		reserveRedeem, reserveUnderlying, err := pool.ReservesFor(p.Option.Redeem, p.Option.Underlying)
		if err != nil {
			return nil, err
		}
		expected, err := market.Quote(p.Amount, reserveRedeem, reserveUnderlying)
		if err != nil {
			return nil, err
		}
		if p.SecondaryAmount.Cmp(s.settings.MinimumOut(expected)) < 0 ||
			p.SecondaryAmount.Cmp(s.settings.MaximumIn(expected)) > 0 {
			return nil, errors.Wrapf(errors.ErrInvalidInput,
				"deposit ratio off pool ratio: supplied %s, expected %s", p.SecondaryAmount, expected)
		}
	}

	plan := &trade.Plan{
		Path:            []common.Address{p.Option.Redeem, p.Option.Underlying},
		InputAmount:     p.Amount,
		OutputAmount:    big.NewInt(0),
		SecondaryAmount: p.SecondaryAmount,
		Pool:            pool,
		Spender:         s.contracts.Connector,
		Approvals: []trade.ApprovalTarget{
			{Token: p.Option.Underlying, Spender: s.contracts.Connector},
		},
	}
	plan.Call = &trade.CallParameters{
		Contract: s.contracts.Connector,
		Method:   "addShortLiquidityWithUnderlying",
		Args: []interface{}{
			p.Option.Address,
			p.Amount,
			p.SecondaryAmount,
			s.settings.MinimumOut(p.SecondaryAmount),
			s.settings.Receiver,
			s.deadline(),
		},
		Value:           big.NewInt(0),
		TokensToApprove: []common.Address{p.Option.Underlying},
	}
	return plan, nil
}

// routeRemoveLiquidity burns liquidity tokens for the pro-rata share of
// both reserves. The close variant additionally closes the released
// short position, which needs an approval on the option token itself.
func (s *Service) routeRemoveLiquidity(ctx context.Context, p RouteParams) (*trade.Plan, error) {
	pool, err := s.fetchPool(ctx, p.Option, true)
	if err != nil {
		return nil, err
	}

	reserveRedeem, reserveUnderlying, err := pool.ReservesFor(p.Option.Redeem, p.Option.Underlying)
	if err != nil {
		return nil, err
	}
	redeemShare, err := market.LiquidityValue(p.Amount, pool.TotalSupply, reserveRedeem)
	if err != nil {
		return nil, err
	}
	underlyingShare, err := market.LiquidityValue(p.Amount, pool.TotalSupply, reserveUnderlying)
	if err != nil {
		return nil, err
	}

	approvals := []trade.ApprovalTarget{
		{Token: pool.Pair, Spender: s.contracts.Connector, Required: p.Amount},
	}
	tokens := []common.Address{pool.Pair}
	method := "removeShortLiquidity"
	if p.Operation == trade.OperationRemoveLiquidityClose {
		approvals = append(approvals, trade.ApprovalTarget{
			Token: p.Option.Address, Spender: s.contracts.Connector,
		})
		tokens = append(tokens, p.Option.Address)
		method = "removeShortLiquidityThenCloseOptions"
	}

	plan := &trade.Plan{
		Path:         []common.Address{p.Option.Redeem, p.Option.Underlying},
		InputAmount:  p.Amount,
		OutputAmount: underlyingShare,
		Pool:         pool,
		Spender:      s.contracts.Connector,
		Approvals:    approvals,
	}
	plan.Call = &trade.CallParameters{
		Contract: s.contracts.Connector,
		Method:   method,
		Args: []interface{}{
			p.Option.Address,
			p.Amount,
			s.settings.MinimumOut(redeemShare),
			s.settings.MinimumOut(underlyingShare),
			s.settings.Receiver,
			s.deadline(),
		},
		Value:           big.NewInt(0),
		TokensToApprove: tokens,
	}
	return plan, nil
}

// routeDirect issues a plain protocol call through the position manager,
// bypassing the AMM entirely.
func (s *Service) routeDirect(p RouteParams) (*trade.Plan, error) {
	var (
		method    string
		approvals []trade.ApprovalTarget
	)
	switch p.Operation {
	case trade.OperationMint:
		method = "safeMint"
		approvals = []trade.ApprovalTarget{
			{Token: p.Option.Underlying, Spender: s.contracts.Trader, Required: p.Amount},
		}
	case trade.OperationExercise:
		method = "safeExercise"
		approvals = []trade.ApprovalTarget{
			{Token: p.Option.Address, Spender: s.contracts.Trader, Required: p.Amount},
			{Token: p.Option.Quote, Spender: s.contracts.Trader},
		}
	case trade.OperationRedeem:
		method = "safeRedeem"
		approvals = []trade.ApprovalTarget{
			{Token: p.Option.Redeem, Spender: s.contracts.Trader, Required: p.Amount},
		}
	case trade.OperationClose:
		method = "safeClose"
		approvals = []trade.ApprovalTarget{
			{Token: p.Option.Address, Spender: s.contracts.Trader, Required: p.Amount},
			{Token: p.Option.Redeem, Spender: s.contracts.Trader},
		}
	default:
		return nil, errors.Wrapf(errors.ErrUnmappedOperation, "direct operation %q", p.Operation)
	}

	tokens := make([]common.Address, 0, len(approvals))
	for _, a := range approvals {
		tokens = append(tokens, a.Token)
	}

	plan := &trade.Plan{
		Path:         []common.Address{approvals[0].Token},
		InputAmount:  p.Amount,
		OutputAmount: big.NewInt(0),
		Spender:      s.contracts.Trader,
		Approvals:    approvals,
	}
	plan.Call = &trade.CallParameters{
		Contract: s.contracts.Trader,
		Method:   method,
		Args: []interface{}{
			p.Option.Address,
			p.Amount,
			s.settings.Receiver,
		},
		Value:           big.NewInt(0),
		TokensToApprove: tokens,
	}
	return plan, nil
}

// PreviewApprovals lists the (token, spender) pairs an operation will
// need before any amount is known. Required amounts are left nil, so a
// preview check passes on any positive allowance. Liquidity removal
// needs the pair address, which costs one read.
func (s *Service) PreviewApprovals(ctx context.Context, op trade.Operation, terms *option.Terms) ([]trade.ApprovalTarget, error) {
	if !op.Valid() || op == trade.OperationNone {
		return nil, errors.Wrapf(errors.ErrUnmappedOperation, "operation %q", op)
	}
	if terms == nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "option terms are required")
	}

	switch op {
	case trade.OperationLong:
		return []trade.ApprovalTarget{
			{Token: terms.Underlying, Spender: s.contracts.Connector},
		}, nil
	case trade.OperationShort:
		return []trade.ApprovalTarget{
			{Token: terms.Underlying, Spender: s.contracts.Router},
		}, nil
	case trade.OperationWrite:
		return []trade.ApprovalTarget{
			{Token: terms.Address, Spender: s.contracts.Connector},
			{Token: terms.Underlying, Spender: s.contracts.Connector},
		}, nil
	case trade.OperationCloseLong:
		return []trade.ApprovalTarget{
			{Token: terms.Address, Spender: s.contracts.Connector},
		}, nil
	case trade.OperationCloseShort:
		return []trade.ApprovalTarget{
			{Token: terms.Redeem, Spender: s.contracts.Router},
		}, nil
	case trade.OperationAddLiquidity, trade.OperationAddLiquidityCustom:
		return []trade.ApprovalTarget{
			{Token: terms.Underlying, Spender: s.contracts.Connector},
		}, nil
	case trade.OperationRemoveLiquidity, trade.OperationRemoveLiquidityClose:
		pair, err := s.reader.GetPair(ctx, terms.Redeem, terms.Underlying)
		if err != nil {
			return nil, errors.Wrap(err, "resolve pair")
		}
		targets := []trade.ApprovalTarget{
			{Token: pair, Spender: s.contracts.Connector},
		}
		if op == trade.OperationRemoveLiquidityClose {
			targets = append(targets, trade.ApprovalTarget{
				Token: terms.Address, Spender: s.contracts.Connector,
			})
		}
		return targets, nil
	case trade.OperationMint:
		return []trade.ApprovalTarget{
			{Token: terms.Underlying, Spender: s.contracts.Trader},
		}, nil
	case trade.OperationExercise:
		return []trade.ApprovalTarget{
			{Token: terms.Address, Spender: s.contracts.Trader},
			{Token: terms.Quote, Spender: s.contracts.Trader},
		}, nil
	case trade.OperationRedeem:
		return []trade.ApprovalTarget{
			{Token: terms.Redeem, Spender: s.contracts.Trader},
		}, nil
	case trade.OperationClose:
		return []trade.ApprovalTarget{
			{Token: terms.Address, Spender: s.contracts.Trader},
			{Token: terms.Redeem, Spender: s.contracts.Trader},
		}, nil
	default:
		return nil, errors.Wrapf(errors.ErrUnmappedOperation, "operation %q", op)
	}
}

// PoolSnapshot reads a fresh reserve snapshot for the option's pair
func (s *Service) PoolSnapshot(ctx context.Context, terms *option.Terms) (*market.Pool, error) {
	if terms == nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "option terms are required")
	}
	return s.fetchPool(ctx, terms, false)
}

// fetchPool reads a fresh reserve snapshot for the option's pair. Total
// supply is only read for liquidity operations that need it.
func (s *Service) fetchPool(ctx context.Context, terms *option.Terms, withSupply bool) (*market.Pool, error) {
	pair, err := s.reader.GetPair(ctx, terms.Redeem, terms.Underlying)
	if err != nil {
		return nil, errors.Wrap(err, "resolve pair")
	}
	if pair == (common.Address{}) {
		return nil, errors.Wrapf(errors.ErrDegeneratePool,
			"no pair for option %s", terms.Address.Hex())
	}

	reserveRedeem, reserveUnderlying, err := s.reader.GetReserves(ctx, terms.Redeem, terms.Underlying)
	if err != nil {
		return nil, errors.Wrap(err, "read reserves")
	}

	pool := &market.Pool{
		Pair:      pair,
		Token0:    terms.Redeem,
		Token1:    terms.Underlying,
		Reserve0:  reserveRedeem,
		Reserve1:  reserveUnderlying,
		FetchedAt: time.Now().UTC(),
	}
	if withSupply {
		supply, err := s.reader.GetTotalSupply(ctx, pair)
		if err != nil {
			return nil, errors.Wrap(err, "read total supply")
		}
		pool.TotalSupply = supply
	}
	return pool, nil
}

func (s *Service) deadline() *big.Int {
	return big.NewInt(time.Now().Add(s.settings.Deadline).Unix())
}
