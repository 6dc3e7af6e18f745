package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hermes/internal/adapters/notify"
	"hermes/internal/chain"
	"hermes/internal/domain/option"
	"hermes/internal/domain/trade"
	"hermes/internal/services/approval"
	"hermes/internal/services/desk"
	"hermes/internal/services/executor"
	"hermes/internal/services/greeks"
	"hermes/internal/services/router"
)

var (
	apiOption     = common.HexToAddress("0x0000000000000000000000000000000000002a01")
	apiUnderlying = common.HexToAddress("0x0000000000000000000000000000000000002a02")
	apiQuote      = common.HexToAddress("0x0000000000000000000000000000000000002a03")
	apiRedeem     = common.HexToAddress("0x0000000000000000000000000000000000002a04")
	apiPair       = common.HexToAddress("0x0000000000000000000000000000000000002a05")
	apiWallet     = common.HexToAddress("0x0000000000000000000000000000000000002a06")
	apiConnector  = common.HexToAddress("0x0000000000000000000000000000000000002a07")
)

type apiReader struct {
	allowances map[common.Address]*big.Int
}

func (r *apiReader) GetPair(ctx context.Context, a, b common.Address) (common.Address, error) {
	return apiPair, nil
}

func (r *apiReader) GetReserves(ctx context.Context, a, b common.Address) (*big.Int, *big.Int, error) {
	return apiWei(1000), apiWei(900), nil
}

func (r *apiReader) GetTotalSupply(ctx context.Context, token common.Address) (*big.Int, error) {
	return apiWei(1), nil
}

func (r *apiReader) GetAllowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	if a, ok := r.allowances[token]; ok {
		return new(big.Int).Set(a), nil
	}
	return big.NewInt(0), nil
}

func (r *apiReader) GetBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}

type apiSigner struct {
	sendCalls int
}

func (s *apiSigner) Address() common.Address { return apiWallet }

func (s *apiSigner) SendTransaction(ctx context.Context, call *trade.CallParameters) (common.Hash, error) {
	s.sendCalls++
	return common.HexToHash("0xbeef"), nil
}

func (s *apiSigner) WaitMined(ctx context.Context, hash common.Hash) (*chain.Receipt, error) {
	return &chain.Receipt{Hash: hash, Status: 1}, nil
}

type apiFeed struct {
	price decimal.Decimal
}

func (f apiFeed) Latest(symbol string) (decimal.Decimal, error) {
	return f.price, nil
}

type apiSubmissions struct {
	subs []*trade.Submission
}

func (m *apiSubmissions) Save(ctx context.Context, sub *trade.Submission) error {
	m.subs = append(m.subs, sub)
	return nil
}

func (m *apiSubmissions) ListRecent(ctx context.Context, limit int64) ([]*trade.Submission, error) {
	if int64(len(m.subs)) > limit {
		return m.subs[:limit], nil
	}
	return m.subs, nil
}

func apiWei(n int64) *big.Int {
	out := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return out.Mul(out, big.NewInt(n))
}

func apiTerms() *option.Terms {
	return &option.Terms{
		Address:          apiOption,
		Underlying:       apiUnderlying,
		Quote:            apiQuote,
		Redeem:           apiRedeem,
		BaseValue:        apiWei(1),
		QuoteValue:       apiWei(1),
		Strike:           decimal.NewFromInt(2000),
		Expiry:           time.Now().Add(91 * 24 * time.Hour),
		IsCall:           true,
		UnderlyingSymbol: "ETH",
	}
}

type apiFixture struct {
	server *Server
	reader *apiReader
	signer *apiSigner
	subs   *apiSubmissions
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	reader := &apiReader{allowances: map[common.Address]*big.Int{}}
	signer := &apiSigner{}
	subs := &apiSubmissions{}

	routes := router.NewService(reader, router.Contracts{Connector: apiConnector}, trade.Settings{
		SlippageBps: 100,
		Deadline:    20 * time.Minute,
	})
	approvals := approval.NewService(reader, signer)
	arm := desk.NewService(routes, approvals)
	exec := executor.NewService(signer, approvals, subs, notify.NewLogSink())
	greeksSvc := greeks.NewService(apiFeed{price: decimal.NewFromInt(2000)}, 0.02, nil)

	srv := New(":0", Deps{
		Router:      routes,
		Desk:        arm,
		Approvals:   approvals,
		Executor:    exec,
		Greeks:      greeksSvc,
		Submissions: subs,
		Watchlist:   []*option.Terms{apiTerms()},
	})
	return &apiFixture{server: srv, reader: reader, signer: signer, subs: subs}
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.server.http.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(out), "body: %s", rec.Body.String())
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	decodeBody(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestListOptions(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/options", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var views []map[string]interface{}
	decodeBody(t, rec, &views)
	require.Len(t, views, 1)
	assert.Equal(t, apiOption.Hex(), views[0]["address"])
	assert.Equal(t, "ETH", views[0]["underlying_symbol"])
	assert.Equal(t, true, views[0]["is_call"])
}

func TestSelection(t *testing.T) {
	t.Run("arms a watched option", func(t *testing.T) {
		f := newAPIFixture(t)
		f.reader.allowances[apiUnderlying] = big.NewInt(1)

		rec := f.do(t, http.MethodPost, "/api/selection", selectRequest{
			Option:    apiOption.Hex(),
			Operation: "LONG",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var view selectionView
		decodeBody(t, rec, &view)
		assert.Equal(t, "LONG", view.Operation)
		assert.True(t, view.Approved)
	})

	t.Run("rejects an unwatched option", func(t *testing.T) {
		f := newAPIFixture(t)

		rec := f.do(t, http.MethodPost, "/api/selection", selectRequest{
			Option:    apiWallet.Hex(),
			Operation: "LONG",
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("rejects an unknown operation", func(t *testing.T) {
		f := newAPIFixture(t)

		rec := f.do(t, http.MethodPost, "/api/selection", selectRequest{
			Option:    apiOption.Hex(),
			Operation: "swap",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("get with nothing armed is a miss", func(t *testing.T) {
		f := newAPIFixture(t)

		rec := f.do(t, http.MethodGet, "/api/selection", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("clear always succeeds", func(t *testing.T) {
		f := newAPIFixture(t)
		f.do(t, http.MethodPost, "/api/selection", selectRequest{
			Option:    apiOption.Hex(),
			Operation: "LONG",
		})

		rec := f.do(t, http.MethodDelete, "/api/selection", nil)
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = f.do(t, http.MethodGet, "/api/selection", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestRoute(t *testing.T) {
	t.Run("builds a long plan", func(t *testing.T) {
		f := newAPIFixture(t)

		rec := f.do(t, http.MethodPost, "/api/route", routeRequest{
			Option:    apiOption.Hex(),
			Operation: "LONG",
			Amount:    "1000",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var view planView
		decodeBody(t, rec, &view)
		assert.Equal(t, "LONG", view.Operation)
		assert.Equal(t, "openFlashLong", view.Method)
		assert.Equal(t, apiConnector.Hex(), view.Contract)
		assert.NotEmpty(t, view.InputAmount)
		_, err := uuid.Parse(view.ID)
		assert.NoError(t, err, "plan id should be a uuid")
	})

	t.Run("rejects a non-numeric amount", func(t *testing.T) {
		f := newAPIFixture(t)

		rec := f.do(t, http.MethodPost, "/api/route", routeRequest{
			Option:    apiOption.Hex(),
			Operation: "LONG",
			Amount:    "one thousand",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects a malformed body", func(t *testing.T) {
		f := newAPIFixture(t)

		req := httptest.NewRequest(http.MethodPost, "/api/route", bytes.NewBufferString("{not json"))
		rec := httptest.NewRecorder()
		f.server.http.Handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTrade(t *testing.T) {
	t.Run("routes and submits in one call", func(t *testing.T) {
		f := newAPIFixture(t)
		f.reader.allowances[apiUnderlying] = big.NewInt(1)

		rec := f.do(t, http.MethodPost, "/api/trade", routeRequest{
			Option:    apiOption.Hex(),
			Operation: "LONG",
			Amount:    "1000",
		})
		require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

		var sub trade.Submission
		decodeBody(t, rec, &sub)
		assert.Equal(t, trade.OutcomeSubmitted, sub.Outcome)
		assert.Equal(t, 1, f.signer.sendCalls)
		assert.Len(t, f.subs.subs, 1)
	})

	t.Run("blocks on a missing allowance", func(t *testing.T) {
		f := newAPIFixture(t)

		rec := f.do(t, http.MethodPost, "/api/trade", routeRequest{
			Option:    apiOption.Hex(),
			Operation: "LONG",
			Amount:    "1000",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, 0, f.signer.sendCalls, "gate should hold before signing")
	})
}

func TestApprove(t *testing.T) {
	t.Run("sends an approval transaction", func(t *testing.T) {
		f := newAPIFixture(t)

		rec := f.do(t, http.MethodPost, "/api/approve", approveRequest{
			Token:   apiUnderlying.Hex(),
			Spender: apiConnector.Hex(),
		})
		require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
		assert.Equal(t, 1, f.signer.sendCalls)
	})

	t.Run("rejects a non-address token", func(t *testing.T) {
		f := newAPIFixture(t)

		rec := f.do(t, http.MethodPost, "/api/approve", approveRequest{
			Token:   "not-an-address",
			Spender: apiConnector.Hex(),
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, 0, f.signer.sendCalls)
	})
}

func TestListSubmissions(t *testing.T) {
	t.Run("returns recent records", func(t *testing.T) {
		f := newAPIFixture(t)
		for i := 0; i < 3; i++ {
			f.subs.subs = append(f.subs.subs, &trade.Submission{
				ID:        uuid.New(),
				Operation: trade.OperationLong,
				Outcome:   trade.OutcomeSubmitted,
			})
		}

		rec := f.do(t, http.MethodGet, "/api/submissions?limit=2", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var subs []*trade.Submission
		decodeBody(t, rec, &subs)
		assert.Len(t, subs, 2)
	})

	t.Run("rejects a bad limit", func(t *testing.T) {
		f := newAPIFixture(t)

		rec := f.do(t, http.MethodGet, "/api/submissions?limit=zero", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGreeksEndpoint(t *testing.T) {
	t.Run("prices a watched option", func(t *testing.T) {
		f := newAPIFixture(t)

		rec := f.do(t, http.MethodGet, fmt.Sprintf("/api/greeks/%s", apiOption.Hex()), nil)
		require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

		var body map[string]interface{}
		decodeBody(t, rec, &body)
		assert.Equal(t, apiOption.Hex(), body["option"])

		delta, ok := body["delta"].(float64)
		require.True(t, ok)
		assert.Greater(t, delta, 0.0)
		assert.Less(t, delta, 1.0)
		assert.Greater(t, body["implied_volatility"].(float64), 0.0)
	})

	t.Run("misses on an unwatched option", func(t *testing.T) {
		f := newAPIFixture(t)

		rec := f.do(t, http.MethodGet, fmt.Sprintf("/api/greeks/%s", apiWallet.Hex()), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
