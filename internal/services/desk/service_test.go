package desk

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hermes/internal/chain"
	"hermes/internal/domain/option"
	"hermes/internal/domain/trade"
	"hermes/internal/services/approval"
	"hermes/internal/services/router"
	"hermes/pkg/errors"
)

var (
	deskOption     = common.HexToAddress("0x0000000000000000000000000000000000000f01")
	deskUnderlying = common.HexToAddress("0x0000000000000000000000000000000000000f02")
	deskQuote      = common.HexToAddress("0x0000000000000000000000000000000000000f03")
	deskRedeem     = common.HexToAddress("0x0000000000000000000000000000000000000f04")
	deskPair       = common.HexToAddress("0x0000000000000000000000000000000000000f05")
	deskWallet     = common.HexToAddress("0x0000000000000000000000000000000000000f06")
	deskConnector  = common.HexToAddress("0x0000000000000000000000000000000000000f07")
)

type deskReader struct {
	allowances   map[common.Address]*big.Int
	allowanceErr error
}

func (r *deskReader) GetPair(ctx context.Context, a, b common.Address) (common.Address, error) {
	return deskPair, nil
}

func (r *deskReader) GetReserves(ctx context.Context, a, b common.Address) (*big.Int, *big.Int, error) {
	return big.NewInt(500_000), big.NewInt(1_000_000), nil
}

func (r *deskReader) GetTotalSupply(ctx context.Context, token common.Address) (*big.Int, error) {
	return big.NewInt(1000), nil
}

func (r *deskReader) GetAllowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	if r.allowanceErr != nil {
		return nil, r.allowanceErr
	}
	if a, ok := r.allowances[token]; ok {
		return new(big.Int).Set(a), nil
	}
	return big.NewInt(0), nil
}

func (r *deskReader) GetBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}

type deskSigner struct{}

func (deskSigner) Address() common.Address { return deskWallet }

func (deskSigner) SendTransaction(ctx context.Context, call *trade.CallParameters) (common.Hash, error) {
	return common.Hash{}, nil
}

func (deskSigner) WaitMined(ctx context.Context, hash common.Hash) (*chain.Receipt, error) {
	return &chain.Receipt{Hash: hash, Status: 1}, nil
}

func deskTerms() *option.Terms {
	return &option.Terms{
		Address:          deskOption,
		Underlying:       deskUnderlying,
		Quote:            deskQuote,
		Redeem:           deskRedeem,
		BaseValue:        big.NewInt(1),
		QuoteValue:       big.NewInt(1),
		Strike:           decimal.NewFromInt(2000),
		Expiry:           time.Now().Add(30 * 24 * time.Hour),
		IsCall:           true,
		UnderlyingSymbol: "ETH",
	}
}

func newDesk(reader *deskReader) *Service {
	routes := router.NewService(reader, router.Contracts{Connector: deskConnector}, trade.Settings{})
	approvals := approval.NewService(reader, deskSigner{})
	return NewService(routes, approvals)
}

func TestSelect(t *testing.T) {
	ctx := context.Background()

	t.Run("arms the operation with fresh allowances", func(t *testing.T) {
		reader := &deskReader{allowances: map[common.Address]*big.Int{
			deskUnderlying: big.NewInt(1),
		}}
		desk := newDesk(reader)

		sel, err := desk.Select(ctx, deskTerms(), trade.OperationLong)
		require.NoError(t, err)
		assert.True(t, sel.Ready())
		assert.Equal(t, trade.OperationLong, sel.Operation)
		assert.Same(t, sel, desk.Current())
	})

	t.Run("zero allowance arms but is not ready", func(t *testing.T) {
		desk := newDesk(&deskReader{})

		sel, err := desk.Select(ctx, deskTerms(), trade.OperationLong)
		require.NoError(t, err)
		assert.False(t, sel.Ready())
		assert.Len(t, sel.Approvals.Missing(), 1)
	})

	t.Run("none cannot be armed", func(t *testing.T) {
		desk := newDesk(&deskReader{})
		_, err := desk.Select(ctx, deskTerms(), trade.OperationNone)
		assert.ErrorIs(t, err, errors.ErrUnmappedOperation)
	})

	t.Run("read failure keeps the previous selection", func(t *testing.T) {
		reader := &deskReader{allowances: map[common.Address]*big.Int{
			deskUnderlying: big.NewInt(1),
		}}
		desk := newDesk(reader)

		sel, err := desk.Select(ctx, deskTerms(), trade.OperationLong)
		require.NoError(t, err)

		reader.allowanceErr = errors.ErrRPCUnavailable
		_, err = desk.Select(ctx, deskTerms(), trade.OperationShort)
		assert.ErrorIs(t, err, errors.ErrRPCUnavailable)
		assert.Same(t, sel, desk.Current(), "failed select must not disturb the armed state")
	})
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("sees allowances granted after select", func(t *testing.T) {
		reader := &deskReader{allowances: map[common.Address]*big.Int{}}
		desk := newDesk(reader)

		sel, err := desk.Select(ctx, deskTerms(), trade.OperationLong)
		require.NoError(t, err)
		require.False(t, sel.Ready())

		// An approval lands out-of-band
		reader.allowances[deskUnderlying] = big.NewInt(1)

		sel, err = desk.Refresh(ctx)
		require.NoError(t, err)
		assert.True(t, sel.Ready())
	})

	t.Run("nothing armed", func(t *testing.T) {
		desk := newDesk(&deskReader{})
		_, err := desk.Refresh(ctx)
		assert.ErrorIs(t, err, errors.ErrNoSelection)
	})
}

func TestClear(t *testing.T) {
	reader := &deskReader{allowances: map[common.Address]*big.Int{
		deskUnderlying: big.NewInt(1),
	}}
	desk := newDesk(reader)

	_, err := desk.Select(context.Background(), deskTerms(), trade.OperationLong)
	require.NoError(t, err)
	require.NotNil(t, desk.Current())

	desk.Clear()
	assert.Nil(t, desk.Current())
}
