package option

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"hermes/pkg/errors"
)

// Terms describes a deployed option contract. The fields are resolved once
// from the protocol registry and are read-only afterwards.
type Terms struct {
	// Address is the long option token
	Address common.Address

	// Underlying is the asset deposited to write the option
	Underlying common.Address

	// Quote is the strike asset (a stablecoin for calls)
	Quote common.Address

	// Redeem is the tokenized short claim
	Redeem common.Address

	// BaseValue is the amount of underlying per option, in base units
	BaseValue *big.Int

	// QuoteValue is the amount of quote asset per option, in base units
	QuoteValue *big.Int

	Strike decimal.Decimal
	Expiry time.Time
	IsCall bool

	// UnderlyingSymbol is used for spot price lookups
	UnderlyingSymbol string
}

// IsPut reports whether the option is a put
func (t *Terms) IsPut() bool {
	return !t.IsCall
}

// Expired reports whether the option is past expiry
func (t *Terms) Expired(now time.Time) bool {
	return !now.Before(t.Expiry)
}

// TimeToExpiry returns the remaining lifetime in years. Expired options
// return zero, never a negative value.
func (t *Terms) TimeToExpiry(now time.Time) float64 {
	if t.Expired(now) {
		return 0
	}
	return t.Expiry.Sub(now).Hours() / 24 / 365
}

// ProportionalShort converts an underlying quantity into the redeem
// quantity minted alongside it: quantity * quoteValue / baseValue.
// Division truncates toward zero to match the option contract.
func (t *Terms) ProportionalShort(underlyingQuantity *big.Int) *big.Int {
	out := new(big.Int).Mul(underlyingQuantity, t.QuoteValue)
	return out.Quo(out, t.BaseValue)
}

// ProportionalLong is the inverse conversion, redeem quantity to the
// underlying quantity it stands for.
func (t *Terms) ProportionalLong(redeemQuantity *big.Int) *big.Int {
	out := new(big.Int).Mul(redeemQuantity, t.BaseValue)
	return out.Quo(out, t.QuoteValue)
}

// Validate checks that the terms are complete enough to route against
func (t *Terms) Validate() error {
	zero := common.Address{}
	if t.Address == zero || t.Underlying == zero || t.Redeem == zero {
		return errors.Wrap(errors.ErrInvalidInput, "option terms missing token addresses")
	}
	if t.BaseValue == nil || t.BaseValue.Sign() <= 0 {
		return errors.Wrap(errors.ErrInvalidInput, "option base value must be positive")
	}
	if t.QuoteValue == nil || t.QuoteValue.Sign() <= 0 {
		return errors.Wrap(errors.ErrInvalidInput, "option quote value must be positive")
	}
	return nil
}
