// Package ethchain implements chain access over JSON-RPC. Reads are
// plain eth_call with hand-encoded calldata; the surface is a handful
// of view functions, which does not justify generated bindings.
package ethchain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"

	"hermes/internal/domain/market"
	"hermes/internal/metrics"
	"hermes/pkg/errors"
	"hermes/pkg/logger"
)

// 4-byte selectors of the view functions the engine reads
var (
	selGetPair     = common.Hex2Bytes("e6a43905") // getPair(address,address)
	selGetReserves = common.Hex2Bytes("0902f1ac") // getReserves()
	selTotalSupply = common.Hex2Bytes("18160ddd") // totalSupply()
	selAllowance   = common.Hex2Bytes("dd62ed3e") // allowance(address,address)
	selBalanceOf   = common.Hex2Bytes("70a08231") // balanceOf(address)
)

// Reader reads protocol state over RPC
type Reader struct {
	client  *ethclient.Client
	factory common.Address
	limiter *rate.Limiter
	log     *logger.Logger
}

// ReaderConfig bounds the RPC read rate
type ReaderConfig struct {
	Factory   common.Address
	RateLimit int
	RateBurst int
}

// NewReader creates an RPC-backed reader
func NewReader(client *ethclient.Client, cfg ReaderConfig) *Reader {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 20
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = cfg.RateLimit * 2
	}
	return &Reader{
		client:  client,
		factory: cfg.Factory,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		log:     logger.Get().With("component", "chain_reader"),
	}
}

// GetPair resolves the pair address for two tokens via the factory
func (r *Reader) GetPair(ctx context.Context, tokenA, tokenB common.Address) (common.Address, error) {
	data := make([]byte, 0, 4+64)
	data = append(data, selGetPair...)
	data = append(data, common.LeftPadBytes(tokenA.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(tokenB.Bytes(), 32)...)

	out, err := r.call(ctx, "getPair", r.factory, data)
	if err != nil {
		return common.Address{}, err
	}
	if len(out) < 32 {
		return common.Address{}, errors.Wrapf(errors.ErrRPCUnavailable, "short getPair response (%d bytes)", len(out))
	}
	return common.BytesToAddress(out[12:32]), nil
}

// GetReserves returns the pair's reserves ordered as (tokenA, tokenB).
// The pair stores them in token0/token1 sort order, so the words are
// swapped back when tokenA is not token0.
func (r *Reader) GetReserves(ctx context.Context, tokenA, tokenB common.Address) (*big.Int, *big.Int, error) {
	pair, err := r.GetPair(ctx, tokenA, tokenB)
	if err != nil {
		return nil, nil, err
	}
	if pair == (common.Address{}) {
		return nil, nil, errors.Wrapf(errors.ErrDegeneratePool, "no pair for %s / %s", tokenA.Hex(), tokenB.Hex())
	}

	out, err := r.call(ctx, "getReserves", pair, selGetReserves)
	if err != nil {
		return nil, nil, err
	}
	if len(out) < 64 {
		return nil, nil, errors.Wrapf(errors.ErrRPCUnavailable, "short getReserves response (%d bytes)", len(out))
	}

	reserve0 := new(big.Int).SetBytes(out[:32])
	reserve1 := new(big.Int).SetBytes(out[32:64])

	token0, _ := market.SortTokens(tokenA, tokenB)
	if tokenA == token0 {
		return reserve0, reserve1, nil
	}
	return reserve1, reserve0, nil
}

// GetTotalSupply reads an ERC20's total supply
func (r *Reader) GetTotalSupply(ctx context.Context, token common.Address) (*big.Int, error) {
	out, err := r.call(ctx, "totalSupply", token, selTotalSupply)
	if err != nil {
		return nil, err
	}
	if len(out) < 32 {
		return nil, errors.Wrapf(errors.ErrRPCUnavailable, "short totalSupply response (%d bytes)", len(out))
	}
	return new(big.Int).SetBytes(out[:32]), nil
}

// GetAllowance reads the owner's ERC20 allowance for a spender
func (r *Reader) GetAllowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	data := make([]byte, 0, 4+64)
	data = append(data, selAllowance...)
	data = append(data, common.LeftPadBytes(owner.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(spender.Bytes(), 32)...)

	out, err := r.call(ctx, "allowance", token, data)
	if err != nil {
		return nil, err
	}
	if len(out) < 32 {
		return nil, errors.Wrapf(errors.ErrRPCUnavailable, "short allowance response (%d bytes)", len(out))
	}
	return new(big.Int).SetBytes(out[:32]), nil
}

// GetBalance reads an ERC20 balance
func (r *Reader) GetBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	data := make([]byte, 0, 4+32)
	data = append(data, selBalanceOf...)
	data = append(data, common.LeftPadBytes(owner.Bytes(), 32)...)

	out, err := r.call(ctx, "balanceOf", token, data)
	if err != nil {
		return nil, err
	}
	if len(out) < 32 {
		return nil, errors.Wrapf(errors.ErrRPCUnavailable, "short balanceOf response (%d bytes)", len(out))
	}
	return new(big.Int).SetBytes(out[:32]), nil
}

func (r *Reader) call(ctx context.Context, method string, to common.Address, data []byte) ([]byte, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limiter wait failed")
	}

	start := time.Now()
	out, err := r.client.CallContract(ctx, ethereum.CallMsg{
		To:   &to,
		Data: data,
	}, nil)
	metrics.RecordRPCCall(method, time.Since(start), err)

	if err != nil {
		return nil, errors.Wrapf(errors.ErrRPCUnavailable, "%s: %v", method, err)
	}
	return out, nil
}
