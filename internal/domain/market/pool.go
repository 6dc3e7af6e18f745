package market

import (
	"bytes"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"hermes/pkg/errors"
)

// Pool is a snapshot of a two-asset constant-product pair. Snapshots are
// replaced wholesale on every refresh and never mutated in place, so a
// routing call can rely on a consistent view of both reserves.
type Pool struct {
	Pair        common.Address
	Token0      common.Address
	Token1      common.Address
	Reserve0    *big.Int
	Reserve1    *big.Int
	TotalSupply *big.Int
	FetchedAt   time.Time
}

// SortTokens returns the pair's tokens in contract order (ascending by
// address), matching how the factory assigns token0/token1.
func SortTokens(a, b common.Address) (common.Address, common.Address) {
	if bytes.Compare(a.Bytes(), b.Bytes()) < 0 {
		return a, b
	}
	return b, a
}

// ReservesFor orders the snapshot's reserves as (reserveIn, reserveOut)
// for a swap from tokenIn to tokenOut.
func (p *Pool) ReservesFor(tokenIn, tokenOut common.Address) (*big.Int, *big.Int, error) {
	switch {
	case tokenIn == p.Token0 && tokenOut == p.Token1:
		return p.Reserve0, p.Reserve1, nil
	case tokenIn == p.Token1 && tokenOut == p.Token0:
		return p.Reserve1, p.Reserve0, nil
	default:
		return nil, nil, errors.Wrapf(errors.ErrInvalidInput,
			"tokens %s/%s do not match pool %s", tokenIn.Hex(), tokenOut.Hex(), p.Pair.Hex())
	}
}

// ReserveOf returns the reserve of a single token in the pool
func (p *Pool) ReserveOf(token common.Address) (*big.Int, error) {
	switch token {
	case p.Token0:
		return p.Reserve0, nil
	case p.Token1:
		return p.Reserve1, nil
	default:
		return nil, errors.Wrapf(errors.ErrInvalidInput,
			"token %s is not in pool %s", token.Hex(), p.Pair.Hex())
	}
}

// Empty reports whether either reserve is zero
func (p *Pool) Empty() bool {
	return p.Reserve0 == nil || p.Reserve1 == nil ||
		p.Reserve0.Sign() == 0 || p.Reserve1.Sign() == 0
}
