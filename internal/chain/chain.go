// Package chain defines the injected boundaries to the blockchain: a
// read-only state reader and a transaction signer. Implementations live
// under internal/adapters; services depend only on these interfaces.
package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"hermes/internal/domain/trade"
)

// Reader provides fresh on-chain state. Every call hits the node; the
// engine never caches reserves or allowances across routing calls.
type Reader interface {
	// GetPair resolves the pool address for an unordered token pair
	GetPair(ctx context.Context, tokenA, tokenB common.Address) (common.Address, error)

	// GetReserves returns the pair reserves ordered as (reserveA, reserveB)
	// for the given token order, not the contract's token0/token1 order
	GetReserves(ctx context.Context, tokenA, tokenB common.Address) (*big.Int, *big.Int, error)

	// GetTotalSupply returns an ERC20 total supply
	GetTotalSupply(ctx context.Context, token common.Address) (*big.Int, error)

	// GetAllowance returns the owner's current allowance for a spender
	GetAllowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)

	// GetBalance returns the owner's ERC20 balance
	GetBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
}

// Receipt is the mined outcome of a transaction
type Receipt struct {
	Hash        common.Hash
	Status      uint64
	BlockNumber uint64
}

// Succeeded reports whether the transaction executed without reverting
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == 1
}

// Signer signs and submits prepared calls on behalf of the wallet
type Signer interface {
	// Address returns the wallet address
	Address() common.Address

	// SendTransaction encodes, signs and broadcasts a call
	SendTransaction(ctx context.Context, call *trade.CallParameters) (common.Hash, error)

	// WaitMined blocks until the transaction is mined or ctx is cancelled
	WaitMined(ctx context.Context, hash common.Hash) (*Receipt, error)
}
