package market

import (
	"math/big"

	"hermes/pkg/errors"
)

// Constant-product swap math with a 0.3% proportional fee. All amounts are
// base-unit big integers and every division truncates toward zero; the
// results must be bit-exact with the pair contract or the derived amounts
// will not be accepted on chain.

var (
	feeNumerator   = big.NewInt(997)
	feeDenominator = big.NewInt(1000)
	one            = big.NewInt(1)
)

// AmountOut returns the output amount a pool pays for an exact input:
//
//	out = reserveOut * in*997 / (reserveIn*1000 + in*997)
func AmountOut(reserveIn, reserveOut, amountIn *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, errors.Wrap(errors.ErrZeroQuantity, "amount in")
	}
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() == 0 || reserveOut.Sign() == 0 {
		return nil, errors.Wrap(errors.ErrDegeneratePool, "amount out")
	}

	amountInWithFee := new(big.Int).Mul(amountIn, feeNumerator)
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, feeDenominator)
	denominator.Add(denominator, amountInWithFee)

	out := numerator.Quo(numerator, denominator)
	if out.Cmp(reserveOut) >= 0 {
		return nil, errors.Wrapf(errors.ErrInsufficientReserves,
			"output %s would drain reserve %s", out, reserveOut)
	}
	return out, nil
}

// AmountIn returns the input amount a pool charges for an exact output,
// solved algebraically from the invariant:
//
//	in = reserveIn * out * 1000 / ((reserveOut - out) * 997) + 1
func AmountIn(reserveIn, reserveOut, amountOut *big.Int) (*big.Int, error) {
	if amountOut == nil || amountOut.Sign() <= 0 {
		return nil, errors.Wrap(errors.ErrZeroQuantity, "amount out")
	}
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() == 0 || reserveOut.Sign() == 0 {
		return nil, errors.Wrap(errors.ErrDegeneratePool, "amount in")
	}
	if amountOut.Cmp(reserveOut) >= 0 {
		return nil, errors.Wrapf(errors.ErrInsufficientReserves,
			"requested output %s exceeds reserve %s", amountOut, reserveOut)
	}

	numerator := new(big.Int).Mul(reserveIn, amountOut)
	numerator.Mul(numerator, feeDenominator)
	denominator := new(big.Int).Sub(reserveOut, amountOut)
	denominator.Mul(denominator, feeNumerator)

	in := numerator.Quo(numerator, denominator)
	return in.Add(in, one), nil
}

// ReservePair is one hop of a path, ordered in the direction of the swap
type ReservePair struct {
	ReserveIn  *big.Int
	ReserveOut *big.Int
}

// AmountsOut folds AmountOut across consecutive hops left-to-right.
// The result holds the input amount followed by the output of every hop.
func AmountsOut(hops []ReservePair, amountIn *big.Int) ([]*big.Int, error) {
	if len(hops) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "path has no hops")
	}
	amounts := make([]*big.Int, len(hops)+1)
	amounts[0] = amountIn
	for i, hop := range hops {
		out, err := AmountOut(hop.ReserveIn, hop.ReserveOut, amounts[i])
		if err != nil {
			return nil, err
		}
		amounts[i+1] = out
	}
	return amounts, nil
}

// AmountsIn folds AmountIn across consecutive hops right-to-left, because
// exact-output routing must be solved backward from the final leg.
func AmountsIn(hops []ReservePair, amountOut *big.Int) ([]*big.Int, error) {
	if len(hops) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "path has no hops")
	}
	amounts := make([]*big.Int, len(hops)+1)
	amounts[len(hops)] = amountOut
	for i := len(hops) - 1; i >= 0; i-- {
		in, err := AmountIn(hops[i].ReserveIn, hops[i].ReserveOut, amounts[i+1])
		if err != nil {
			return nil, err
		}
		amounts[i] = in
	}
	return amounts, nil
}

// Quote returns the second-side amount that preserves the pool ratio for
// a liquidity deposit: amountB = amountA * reserveB / reserveA.
func Quote(amountA, reserveA, reserveB *big.Int) (*big.Int, error) {
	if amountA == nil || amountA.Sign() <= 0 {
		return nil, errors.Wrap(errors.ErrZeroQuantity, "quote amount")
	}
	if reserveA == nil || reserveB == nil || reserveA.Sign() == 0 || reserveB.Sign() == 0 {
		return nil, errors.Wrap(errors.ErrDegeneratePool, "quote")
	}
	out := new(big.Int).Mul(amountA, reserveB)
	return out.Quo(out, reserveA), nil
}

// LiquidityValue returns the pro-rata share of a reserve redeemable for
// a liquidity-token amount: liquidity * reserve / totalSupply.
func LiquidityValue(liquidity, totalSupply, reserve *big.Int) (*big.Int, error) {
	if liquidity == nil || liquidity.Sign() <= 0 {
		return nil, errors.Wrap(errors.ErrZeroQuantity, "liquidity")
	}
	if totalSupply == nil || totalSupply.Sign() == 0 {
		return nil, errors.Wrap(errors.ErrDegeneratePool, "liquidity value")
	}
	if liquidity.Cmp(totalSupply) > 0 {
		return nil, errors.Wrapf(errors.ErrInsufficientReserves,
			"liquidity %s exceeds total supply %s", liquidity, totalSupply)
	}
	out := new(big.Int).Mul(liquidity, reserve)
	return out.Quo(out, totalSupply), nil
}
