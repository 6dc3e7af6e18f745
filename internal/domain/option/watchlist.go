package option

import (
	"encoding/json"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"hermes/pkg/errors"
)

// watchlistEntry is the on-disk form of one option series
type watchlistEntry struct {
	Address          string `json:"address"`
	Underlying       string `json:"underlying"`
	Quote            string `json:"quote"`
	Redeem           string `json:"redeem"`
	BaseValue        string `json:"base_value"`
	QuoteValue       string `json:"quote_value"`
	Strike           string `json:"strike"`
	Expiry           int64  `json:"expiry"`
	IsCall           bool   `json:"is_call"`
	UnderlyingSymbol string `json:"underlying_symbol"`
}

// LoadWatchlist reads the option series the engine tracks from a JSON
// file. Every entry is validated; one bad entry fails the whole load so
// a typo cannot silently drop a series.
func LoadWatchlist(path string) ([]*Terms, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read watchlist %s", path)
	}

	var entries []watchlistEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errors.Wrapf(err, "parse watchlist %s", path)
	}

	terms := make([]*Terms, 0, len(entries))
	for i, e := range entries {
		t, err := e.toTerms()
		if err != nil {
			return nil, errors.Wrapf(err, "watchlist entry %d", i)
		}
		if err := t.Validate(); err != nil {
			return nil, errors.Wrapf(err, "watchlist entry %d (%s)", i, e.Address)
		}
		terms = append(terms, t)
	}
	return terms, nil
}

func (e watchlistEntry) toTerms() (*Terms, error) {
	baseValue, ok := new(big.Int).SetString(e.BaseValue, 10)
	if !ok {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "base_value %q", e.BaseValue)
	}
	quoteValue, ok := new(big.Int).SetString(e.QuoteValue, 10)
	if !ok {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "quote_value %q", e.QuoteValue)
	}
	strike, err := decimal.NewFromString(e.Strike)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "strike %q", e.Strike)
	}

	return &Terms{
		Address:          common.HexToAddress(e.Address),
		Underlying:       common.HexToAddress(e.Underlying),
		Quote:            common.HexToAddress(e.Quote),
		Redeem:           common.HexToAddress(e.Redeem),
		BaseValue:        baseValue,
		QuoteValue:       quoteValue,
		Strike:           strike,
		Expiry:           time.Unix(e.Expiry, 0).UTC(),
		IsCall:           e.IsCall,
		UnderlyingSymbol: e.UnderlyingSymbol,
	}, nil
}
