// Package greeks derives option risk measures from live pool state.
// The premium is implied by the pair's reserves, so the solved
// volatility is the market's, not a model assumption.
package greeks

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"hermes/internal/domain/market"
	"hermes/internal/domain/option"
	"hermes/internal/domain/pricing"
	"hermes/internal/metrics"
	"hermes/pkg/errors"
	"hermes/pkg/logger"
)

// oneToken is a single option in base units. Pairs in this protocol
// are normalized to 18 decimals.
var oneToken = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Feed supplies the latest spot price for an underlying symbol
type Feed interface {
	Latest(symbol string) (decimal.Decimal, error)
}

// HistoryRepository persists computed snapshots
type HistoryRepository interface {
	Insert(ctx context.Context, snap *Snapshot) error
}

// Snapshot is one full risk picture for an option at a point in time
type Snapshot struct {
	Option     common.Address
	Symbol     string
	Spot       decimal.Decimal
	Strike     decimal.Decimal
	Premium    decimal.Decimal
	Expiry     time.Time
	IsCall     bool
	Greeks     pricing.Greeks
	ComputedAt time.Time
}

// Service computes option greeks from reserves and spot
type Service struct {
	feed     Feed
	riskFree float64
	history  HistoryRepository
	log      *logger.Logger
}

// NewService constructs a greeks service. history may be nil when no
// warehouse is configured.
func NewService(feed Feed, riskFreeRate float64, history HistoryRepository) *Service {
	return &Service{
		feed:     feed,
		riskFree: riskFreeRate,
		history:  history,
		log:      logger.Get().With("component", "greeks"),
	}
}

// Compute solves the implied volatility from the pool's premium and
// evaluates the full greek set at it. The snapshot is persisted on a
// best-effort basis; a history failure never fails the computation.
func (s *Service) Compute(ctx context.Context, terms *option.Terms, pool *market.Pool) (*Snapshot, error) {
	if terms == nil || pool == nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "terms and pool are required")
	}
	if err := terms.Validate(); err != nil {
		return nil, err
	}

	spot, err := s.feed.Latest(terms.UnderlyingSymbol)
	if err != nil {
		return nil, errors.Wrapf(err, "spot for %s", terms.UnderlyingSymbol)
	}
	if spot.Sign() <= 0 {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "non-positive spot for %s", terms.UnderlyingSymbol)
	}

	now := time.Now().UTC()
	premiumUnderlying, err := PremiumFromReserves(terms, pool)
	if err != nil {
		return nil, err
	}
	// Premium is quoted in underlying; the solver works in quote currency
	premium := decimal.NewFromBigInt(premiumUnderlying, -18).Mul(spot)

	in := pricing.Inputs{
		Spot:         spot.InexactFloat64(),
		Strike:       terms.Strike.InexactFloat64(),
		TimeToExpiry: terms.TimeToExpiry(now),
		RiskFreeRate: s.riskFree,
		IsCall:       terms.IsCall,
	}

	iv, err := pricing.ImpliedVolatility(in, premium.InexactFloat64(), 1.0)
	if err != nil {
		if errors.Is(err, errors.ErrNoConvergence) {
			metrics.PricingSolves.WithLabelValues("no_convergence").Inc()
		} else {
			metrics.PricingSolves.WithLabelValues("error").Inc()
		}
		return nil, errors.Wrapf(err, "implied volatility for %s", terms.Address.Hex())
	}
	metrics.PricingSolves.WithLabelValues("success").Inc()

	in.Volatility = iv
	greeks, err := pricing.Compute(in)
	if err != nil {
		return nil, err
	}
	greeks.ImpliedVolatility = iv

	snap := &Snapshot{
		Option:     terms.Address,
		Symbol:     terms.UnderlyingSymbol,
		Spot:       spot,
		Strike:     terms.Strike,
		Premium:    premium,
		Expiry:     terms.Expiry,
		IsCall:     terms.IsCall,
		Greeks:     *greeks,
		ComputedAt: now,
	}

	if s.history != nil {
		if err := s.history.Insert(ctx, snap); err != nil {
			s.log.Warnw("Failed to persist greeks snapshot",
				"option", terms.Address.Hex(),
				"error", err,
			)
		}
	}

	s.log.Debugw("Computed greeks",
		"option", terms.Address.Hex(),
		"spot", spot,
		"premium", premium,
		"iv", iv,
		"delta", greeks.Delta,
	)
	return snap, nil
}

// PremiumFromReserves is the underlying cost of flash-opening one
// option: a full underlying unit is escrowed to mint, the minted short
// tokens are sold back into the pair, and the shortfall is the premium.
func PremiumFromReserves(terms *option.Terms, pool *market.Pool) (*big.Int, error) {
	shortPerOption := terms.ProportionalShort(oneToken)
	if shortPerOption.Sign() == 0 {
		return nil, errors.Wrapf(errors.ErrInvalidInput,
			"option %s mints zero short tokens per unit", terms.Address.Hex())
	}

	reserveRedeem, reserveUnderlying, err := pool.ReservesFor(terms.Redeem, terms.Underlying)
	if err != nil {
		return nil, err
	}
	recovered, err := market.AmountOut(reserveRedeem, reserveUnderlying, shortPerOption)
	if err != nil {
		return nil, err
	}

	premium := new(big.Int).Sub(oneToken, recovered)
	if premium.Sign() < 0 {
		// The pair momentarily pays more for the short side than the
		// escrow costs; the option trades at zero premium
		premium.SetInt64(0)
	}
	return premium, nil
}
