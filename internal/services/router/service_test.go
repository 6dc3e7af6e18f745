package router

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hermes/internal/domain/option"
	"hermes/internal/domain/trade"
	"hermes/pkg/errors"
)

var (
	optionAddr     = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	underlyingAddr = common.HexToAddress("0x0000000000000000000000000000000000000a02")
	quoteAddr      = common.HexToAddress("0x0000000000000000000000000000000000000a03")
	redeemAddr     = common.HexToAddress("0x0000000000000000000000000000000000000a04")
	pairAddr       = common.HexToAddress("0x0000000000000000000000000000000000000a05")

	connectorAddr = common.HexToAddress("0x0000000000000000000000000000000000000b01")
	routerAddr    = common.HexToAddress("0x0000000000000000000000000000000000000b02")
	traderAddr    = common.HexToAddress("0x0000000000000000000000000000000000000b03")
	receiverAddr  = common.HexToAddress("0x0000000000000000000000000000000000000b04")
)

// fakeReader serves canned pool state and counts reads, so tests can
// assert that every routing call fetches fresh reserves.
type fakeReader struct {
	pair              common.Address
	reserveRedeem     *big.Int
	reserveUnderlying *big.Int
	totalSupply       *big.Int

	pairCalls     int
	reserveCalls  int
	supplyCalls   int
	reservesErr   error
	allowances    map[common.Address]*big.Int
	allowanceErr  error
	balance       *big.Int
}

func (f *fakeReader) GetPair(ctx context.Context, tokenA, tokenB common.Address) (common.Address, error) {
	f.pairCalls++
	return f.pair, nil
}

func (f *fakeReader) GetReserves(ctx context.Context, tokenA, tokenB common.Address) (*big.Int, *big.Int, error) {
	f.reserveCalls++
	if f.reservesErr != nil {
		return nil, nil, f.reservesErr
	}
	// Routing always asks in (redeem, underlying) order
	return new(big.Int).Set(f.reserveRedeem), new(big.Int).Set(f.reserveUnderlying), nil
}

func (f *fakeReader) GetTotalSupply(ctx context.Context, token common.Address) (*big.Int, error) {
	f.supplyCalls++
	return new(big.Int).Set(f.totalSupply), nil
}

func (f *fakeReader) GetAllowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	if f.allowanceErr != nil {
		return nil, f.allowanceErr
	}
	if a, ok := f.allowances[token]; ok {
		return new(big.Int).Set(a), nil
	}
	return big.NewInt(0), nil
}

func (f *fakeReader) GetBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	if f.balance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(f.balance), nil
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		pair:              pairAddr,
		reserveRedeem:     big.NewInt(500_000),
		reserveUnderlying: big.NewInt(1_000_000),
		totalSupply:       big.NewInt(1000),
	}
}

func testTerms() *option.Terms {
	return &option.Terms{
		Address:          optionAddr,
		Underlying:       underlyingAddr,
		Quote:            quoteAddr,
		Redeem:           redeemAddr,
		BaseValue:        big.NewInt(1),
		QuoteValue:       big.NewInt(1),
		Strike:           decimal.NewFromInt(2000),
		Expiry:           time.Now().Add(30 * 24 * time.Hour),
		IsCall:           true,
		UnderlyingSymbol: "ETH",
	}
}

func newTestService(reader *fakeReader) *Service {
	return NewService(reader, Contracts{
		Router:    routerAddr,
		Connector: connectorAddr,
		Trader:    traderAddr,
	}, trade.Settings{
		SlippageBps: 100,
		Deadline:    20 * time.Minute,
		Receiver:    receiverAddr,
	})
}

func TestRouteValidation(t *testing.T) {
	svc := newTestService(newFakeReader())
	ctx := context.Background()

	t.Run("none is not routable", func(t *testing.T) {
		_, err := svc.Route(ctx, RouteParams{Operation: trade.OperationNone, Option: testTerms(), Amount: big.NewInt(1)})
		assert.ErrorIs(t, err, errors.ErrNoSelection)
	})

	t.Run("unknown operation never falls through to a swap", func(t *testing.T) {
		_, err := svc.Route(ctx, RouteParams{Operation: trade.Operation("swap"), Option: testTerms(), Amount: big.NewInt(1)})
		assert.ErrorIs(t, err, errors.ErrUnmappedOperation)
	})

	t.Run("zero quantity", func(t *testing.T) {
		_, err := svc.Route(ctx, RouteParams{Operation: trade.OperationShort, Option: testTerms(), Amount: big.NewInt(0)})
		assert.ErrorIs(t, err, errors.ErrZeroQuantity)

		_, err = svc.Route(ctx, RouteParams{Operation: trade.OperationShort, Option: testTerms()})
		assert.ErrorIs(t, err, errors.ErrZeroQuantity)
	})

	t.Run("missing option terms", func(t *testing.T) {
		_, err := svc.Route(ctx, RouteParams{Operation: trade.OperationShort, Amount: big.NewInt(1)})
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
	})
}

func TestRouteShort(t *testing.T) {
	reader := newFakeReader()
	svc := newTestService(reader)

	plan, err := svc.Route(context.Background(), RouteParams{
		Operation: trade.OperationShort,
		Option:    testTerms(),
		Amount:    big.NewInt(1000),
	})
	require.NoError(t, err)

	// Exact output of 1000 redeem from (underlying 1,000,000 / redeem 500,000)
	assert.Equal(t, int64(2011), plan.InputAmount.Int64())
	assert.Equal(t, int64(1000), plan.OutputAmount.Int64())
	assert.Equal(t, []common.Address{underlyingAddr, redeemAddr}, plan.Path)
	assert.Equal(t, routerAddr, plan.Spender)

	require.Len(t, plan.Approvals, 1)
	assert.Equal(t, underlyingAddr, plan.Approvals[0].Token)
	assert.Equal(t, int64(2011), plan.Approvals[0].Required.Int64())

	require.NotNil(t, plan.Call)
	assert.Equal(t, "swapTokensForExactTokens", plan.Call.Method)
	assert.Equal(t, routerAddr, plan.Call.Contract)
	require.Len(t, plan.Call.Args, 5)
	assert.Equal(t, int64(1000), plan.Call.Args[0].(*big.Int).Int64())
	assert.Equal(t, int64(2031), plan.Call.Args[1].(*big.Int).Int64(), "slippage-adjusted maximum input")
	assert.Equal(t, receiverAddr, plan.Call.Args[3])

	assert.NotEqual(t, [16]byte{}, [16]byte(plan.ID))
	assert.NotNil(t, plan.Pool)
}

func TestRouteLong(t *testing.T) {
	svc := newTestService(newFakeReader())

	plan, err := svc.Route(context.Background(), RouteParams{
		Operation: trade.OperationLong,
		Option:    testTerms(),
		Amount:    big.NewInt(1000),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(503), plan.InputAmount.Int64())
	assert.Equal(t, int64(1000), plan.OutputAmount.Int64())
	assert.Equal(t, connectorAddr, plan.Spender)
	assert.Equal(t, "openFlashLong", plan.Call.Method)
	assert.Equal(t, int64(508), plan.Call.Args[2].(*big.Int).Int64())

	// The flash premium settles on chain; the gate is existence, not size
	require.Len(t, plan.Approvals, 1)
	assert.Nil(t, plan.Approvals[0].Required)
}

func TestRouteCloseShort(t *testing.T) {
	svc := newTestService(newFakeReader())

	plan, err := svc.Route(context.Background(), RouteParams{
		Operation: trade.OperationCloseShort,
		Option:    testTerms(),
		Amount:    big.NewInt(1000),
	})
	require.NoError(t, err)

	// Exact input, so the payout side is derived with AmountOut
	assert.Equal(t, int64(1000), plan.InputAmount.Int64())
	assert.Equal(t, int64(1990), plan.OutputAmount.Int64())
	assert.Equal(t, []common.Address{redeemAddr, underlyingAddr}, plan.Path)
	assert.Equal(t, "swapExactTokensForTokens", plan.Call.Method)
	assert.Equal(t, int64(1970), plan.Call.Args[1].(*big.Int).Int64(), "slippage-adjusted minimum output")
}

func TestRouteWrite(t *testing.T) {
	reader := newFakeReader()
	svc := newTestService(reader)
	terms := testTerms()
	terms.BaseValue = big.NewInt(2)
	terms.QuoteValue = big.NewInt(1)

	plan, err := svc.Route(context.Background(), RouteParams{
		Operation: trade.OperationWrite,
		Option:    terms,
		Amount:    big.NewInt(1000),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1000), plan.InputAmount.Int64())
	assert.Equal(t, int64(500), plan.OutputAmount.Int64())
	assert.Equal(t, "mintOptions", plan.Call.Method)
	assert.Zero(t, reader.reserveCalls, "writing needs no pool state")
}

func TestRouteCloseLong(t *testing.T) {
	svc := newTestService(newFakeReader())

	t.Run("borrows the proportional short side", func(t *testing.T) {
		plan, err := svc.Route(context.Background(), RouteParams{
			Operation: trade.OperationCloseLong,
			Option:    testTerms(),
			Amount:    big.NewInt(1000),
		})
		require.NoError(t, err)

		assert.Equal(t, int64(1000), plan.OutputAmount.Int64())
		assert.Equal(t, "closeFlashLong", plan.Call.Method)
		require.Len(t, plan.Approvals, 1)
		assert.Equal(t, optionAddr, plan.Approvals[0].Token)
	})

	t.Run("dust that rounds to zero short tokens", func(t *testing.T) {
		terms := testTerms()
		terms.BaseValue = big.NewInt(1000)
		terms.QuoteValue = big.NewInt(1)
		_, err := svc.Route(context.Background(), RouteParams{
			Operation: trade.OperationCloseLong,
			Option:    terms,
			Amount:    big.NewInt(5),
		})
		assert.ErrorIs(t, err, errors.ErrZeroQuantity)
	})
}

func TestRouteAddLiquidity(t *testing.T) {
	svc := newTestService(newFakeReader())
	ctx := context.Background()

	t.Run("accepts a deposit on the pool ratio", func(t *testing.T) {
		plan, err := svc.Route(ctx, RouteParams{
			Operation:       trade.OperationAddLiquidity,
			Option:          testTerms(),
			Amount:          big.NewInt(1000),
			SecondaryAmount: big.NewInt(2000),
		})
		require.NoError(t, err)
		assert.Equal(t, "addShortLiquidityWithUnderlying", plan.Call.Method)
		assert.Equal(t, int64(2000), plan.SecondaryAmount.Int64())
	})

	t.Run("rejects a deposit off the pool ratio", func(t *testing.T) {
		_, err := svc.Route(ctx, RouteParams{
			Operation:       trade.OperationAddLiquidity,
			Option:          testTerms(),
			Amount:          big.NewInt(1000),
			SecondaryAmount: big.NewInt(2200),
		})
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
	})

	t.Run("custom variant skips the ratio check", func(t *testing.T) {
		plan, err := svc.Route(ctx, RouteParams{
			Operation:       trade.OperationAddLiquidityCustom,
			Option:          testTerms(),
			Amount:          big.NewInt(1000),
			SecondaryAmount: big.NewInt(2200),
		})
		require.NoError(t, err)
		assert.NotNil(t, plan.Call)
	})

	t.Run("missing secondary amount", func(t *testing.T) {
		_, err := svc.Route(ctx, RouteParams{
			Operation: trade.OperationAddLiquidity,
			Option:    testTerms(),
			Amount:    big.NewInt(1000),
		})
		assert.ErrorIs(t, err, errors.ErrZeroQuantity)
	})
}

func TestRouteRemoveLiquidity(t *testing.T) {
	reader := newFakeReader()
	svc := newTestService(reader)
	ctx := context.Background()

	t.Run("plain removal", func(t *testing.T) {
		plan, err := svc.Route(ctx, RouteParams{
			Operation: trade.OperationRemoveLiquidity,
			Option:    testTerms(),
			Amount:    big.NewInt(100),
		})
		require.NoError(t, err)

		// 100 of 1000 supply buys 10% of each reserve
		assert.Equal(t, int64(100_000), plan.OutputAmount.Int64())
		assert.Equal(t, "removeShortLiquidity", plan.Call.Method)
		require.Len(t, plan.Approvals, 1)
		assert.Equal(t, pairAddr, plan.Approvals[0].Token)
		assert.Equal(t, int64(100), plan.Approvals[0].Required.Int64())
	})

	t.Run("close variant also needs the option token", func(t *testing.T) {
		plan, err := svc.Route(ctx, RouteParams{
			Operation: trade.OperationRemoveLiquidityClose,
			Option:    testTerms(),
			Amount:    big.NewInt(100),
		})
		require.NoError(t, err)

		assert.Equal(t, "removeShortLiquidityThenCloseOptions", plan.Call.Method)
		require.Len(t, plan.Approvals, 2)
		assert.Equal(t, pairAddr, plan.Approvals[0].Token)
		assert.Equal(t, optionAddr, plan.Approvals[1].Token)
	})
}

func TestRouteDirect(t *testing.T) {
	reader := newFakeReader()
	svc := newTestService(reader)
	ctx := context.Background()

	cases := []struct {
		op      trade.Operation
		method  string
		primary common.Address
		extras  int
	}{
		{trade.OperationMint, "safeMint", underlyingAddr, 0},
		{trade.OperationExercise, "safeExercise", optionAddr, 1},
		{trade.OperationRedeem, "safeRedeem", redeemAddr, 0},
		{trade.OperationClose, "safeClose", optionAddr, 1},
	}
	for _, tc := range cases {
		t.Run(string(tc.op), func(t *testing.T) {
			plan, err := svc.Route(ctx, RouteParams{
				Operation: tc.op,
				Option:    testTerms(),
				Amount:    big.NewInt(50),
			})
			require.NoError(t, err)

			assert.Equal(t, tc.method, plan.Call.Method)
			assert.Equal(t, traderAddr, plan.Call.Contract)
			require.Len(t, plan.Approvals, 1+tc.extras)
			assert.Equal(t, tc.primary, plan.Approvals[0].Token)
			assert.Equal(t, int64(50), plan.Approvals[0].Required.Int64())
		})
	}

	assert.Zero(t, reader.reserveCalls, "direct calls bypass the AMM")
}

func TestRouteFetchesFreshReserves(t *testing.T) {
	reader := newFakeReader()
	svc := newTestService(reader)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Route(ctx, RouteParams{
			Operation: trade.OperationShort,
			Option:    testTerms(),
			Amount:    big.NewInt(1000),
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, reader.reserveCalls, "reserves must be re-read on every routing call")
}

func TestRoutePoolFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("no pair deployed", func(t *testing.T) {
		reader := newFakeReader()
		reader.pair = common.Address{}
		svc := newTestService(reader)

		_, err := svc.Route(ctx, RouteParams{
			Operation: trade.OperationShort,
			Option:    testTerms(),
			Amount:    big.NewInt(1000),
		})
		assert.ErrorIs(t, err, errors.ErrDegeneratePool)
	})

	t.Run("reserve read failure", func(t *testing.T) {
		reader := newFakeReader()
		reader.reservesErr = errors.ErrRPCUnavailable
		svc := newTestService(reader)

		_, err := svc.Route(ctx, RouteParams{
			Operation: trade.OperationShort,
			Option:    testTerms(),
			Amount:    big.NewInt(1000),
		})
		assert.ErrorIs(t, err, errors.ErrRPCUnavailable)
	})
}

func TestPreviewApprovals(t *testing.T) {
	reader := newFakeReader()
	svc := newTestService(reader)
	ctx := context.Background()

	t.Run("every operation has a mapping", func(t *testing.T) {
		ops := []trade.Operation{
			trade.OperationLong, trade.OperationShort, trade.OperationWrite,
			trade.OperationCloseLong, trade.OperationCloseShort,
			trade.OperationAddLiquidity, trade.OperationAddLiquidityCustom,
			trade.OperationRemoveLiquidity, trade.OperationRemoveLiquidityClose,
			trade.OperationMint, trade.OperationExercise, trade.OperationRedeem, trade.OperationClose,
		}
		for _, op := range ops {
			targets, err := svc.PreviewApprovals(ctx, op, testTerms())
			require.NoError(t, err, "%s", op)
			assert.NotEmpty(t, targets, "%s", op)
			for _, target := range targets {
				assert.Nil(t, target.Required, "preview amounts are unknown for %s", op)
			}
		}
	})

	t.Run("removal resolves the pair token", func(t *testing.T) {
		targets, err := svc.PreviewApprovals(ctx, trade.OperationRemoveLiquidity, testTerms())
		require.NoError(t, err)
		require.Len(t, targets, 1)
		assert.Equal(t, pairAddr, targets[0].Token)
	})

	t.Run("none has no approvals", func(t *testing.T) {
		_, err := svc.PreviewApprovals(ctx, trade.OperationNone, testTerms())
		assert.ErrorIs(t, err, errors.ErrUnmappedOperation)
	})
}
