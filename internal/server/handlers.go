package server

import (
	"encoding/json"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"hermes/internal/domain/trade"
	"hermes/internal/services/desk"
	routersvc "hermes/internal/services/router"
	"hermes/pkg/errors"
)

type selectRequest struct {
	Option    string `json:"option"`
	Operation string `json:"operation"`
}

type routeRequest struct {
	Option          string `json:"option"`
	Operation       string `json:"operation"`
	Amount          string `json:"amount"`
	SecondaryAmount string `json:"secondary_amount,omitempty"`
}

type approveRequest struct {
	Token   string `json:"token"`
	Spender string `json:"spender"`
}

type approvalView struct {
	Token     string `json:"token"`
	Spender   string `json:"spender"`
	Allowance string `json:"allowance,omitempty"`
	Required  string `json:"required,omitempty"`
	Status    string `json:"status,omitempty"`
}

type planView struct {
	ID              string         `json:"id"`
	Operation       string         `json:"operation"`
	Option          string         `json:"option"`
	Path            []string       `json:"path"`
	InputAmount     string         `json:"input_amount"`
	OutputAmount    string         `json:"output_amount"`
	SecondaryAmount string         `json:"secondary_amount,omitempty"`
	Spender         string         `json:"spender"`
	Approvals       []approvalView `json:"approvals"`
	Contract        string         `json:"contract"`
	Method          string         `json:"method"`
	CreatedAt       time.Time      `json:"created_at"`
}

type selectionView struct {
	Option    string         `json:"option"`
	Operation string         `json:"operation"`
	Approved  bool           `json:"approved"`
	Approvals []approvalView `json:"approvals"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type errorView struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListOptions(w http.ResponseWriter, r *http.Request) {
	type optionView struct {
		Address          string    `json:"address"`
		UnderlyingSymbol string    `json:"underlying_symbol"`
		Strike           string    `json:"strike"`
		Expiry           time.Time `json:"expiry"`
		IsCall           bool      `json:"is_call"`
	}

	views := make([]optionView, 0, len(s.deps.Watchlist))
	for _, t := range s.deps.Watchlist {
		views = append(views, optionView{
			Address:          t.Address.Hex(),
			UnderlyingSymbol: t.UnderlyingSymbol,
			Strike:           t.Strike.String(),
			Expiry:           t.Expiry,
			IsCall:           t.IsCall,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(errors.ErrInvalidInput, "malformed request body"))
		return
	}

	terms, ok := s.resolveOption(common.HexToAddress(req.Option))
	if !ok {
		writeError(w, errors.Wrapf(errors.ErrNotFound, "option %s is not watched", req.Option))
		return
	}

	sel, err := s.deps.Desk.Select(r.Context(), terms, trade.Operation(req.Operation))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, selectionToView(sel))
}

func (s *Server) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	sel := s.deps.Desk.Current()
	if sel == nil {
		writeError(w, errors.Wrap(errors.ErrNoSelection, "nothing armed"))
		return
	}
	writeJSON(w, http.StatusOK, selectionToView(sel))
}

func (s *Server) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	s.deps.Desk.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	params, err := s.parseRouteRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	plan, err := s.deps.Router.Route(r.Context(), *params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, planToView(plan))
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	params, err := s.parseRouteRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	plan, err := s.deps.Router.Route(r.Context(), *params)
	if err != nil {
		writeError(w, err)
		return
	}

	sub, err := s.deps.Executor.Submit(r.Context(), plan)
	if err != nil {
		if sub != nil {
			// The attempt was made and classified; surface the record
			writeJSON(w, statusFor(err), sub)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(errors.ErrInvalidInput, "malformed request body"))
		return
	}
	if !common.IsHexAddress(req.Token) || !common.IsHexAddress(req.Spender) {
		writeError(w, errors.Wrap(errors.ErrInvalidInput, "token and spender must be addresses"))
		return
	}

	err := s.deps.Approvals.Request(r.Context(), common.HexToAddress(req.Token), common.HexToAddress(req.Spender))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	limit := int64(50)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			writeError(w, errors.Wrapf(errors.ErrInvalidInput, "limit %q", raw))
			return
		}
		limit = parsed
	}

	subs, err := s.deps.Submissions.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

func (s *Server) handleGreeks(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["option"]
	terms, ok := s.resolveOption(common.HexToAddress(raw))
	if !ok {
		writeError(w, errors.Wrapf(errors.ErrNotFound, "option %s is not watched", raw))
		return
	}

	pool, err := s.deps.Router.PoolSnapshot(r.Context(), terms)
	if err != nil {
		writeError(w, err)
		return
	}
	snap, err := s.deps.Greeks.Compute(r.Context(), terms, pool)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"option":             snap.Option.Hex(),
		"symbol":             snap.Symbol,
		"spot":               snap.Spot,
		"strike":             snap.Strike,
		"premium":            snap.Premium,
		"expiry":             snap.Expiry,
		"is_call":            snap.IsCall,
		"price":              snap.Greeks.Price,
		"delta":              snap.Greeks.Delta,
		"gamma":              snap.Greeks.Gamma,
		"theta":              snap.Greeks.Theta,
		"vega":               snap.Greeks.Vega,
		"rho":                snap.Greeks.Rho,
		"implied_volatility": snap.Greeks.ImpliedVolatility,
		"computed_at":        snap.ComputedAt,
	})
}

func (s *Server) parseRouteRequest(r *http.Request) (*routersvc.RouteParams, error) {
	var req routeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "malformed request body")
	}

	terms, ok := s.resolveOption(common.HexToAddress(req.Option))
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "option %s is not watched", req.Option)
	}

	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "amount %q", req.Amount)
	}

	params := &routersvc.RouteParams{
		Operation: trade.Operation(req.Operation),
		Option:    terms,
		Amount:    amount,
	}
	if req.SecondaryAmount != "" {
		secondary, ok := new(big.Int).SetString(req.SecondaryAmount, 10)
		if !ok {
			return nil, errors.Wrapf(errors.ErrInvalidInput, "secondary_amount %q", req.SecondaryAmount)
		}
		params.SecondaryAmount = secondary
	}
	return params, nil
}

func planToView(p *trade.Plan) planView {
	path := make([]string, len(p.Path))
	for i, hop := range p.Path {
		path[i] = hop.Hex()
	}

	approvals := make([]approvalView, len(p.Approvals))
	for i, a := range p.Approvals {
		approvals[i] = approvalView{
			Token:   a.Token.Hex(),
			Spender: a.Spender.Hex(),
		}
		if a.Required != nil {
			approvals[i].Required = a.Required.String()
		}
	}

	view := planView{
		ID:           p.ID.String(),
		Operation:    p.Operation.String(),
		Option:       p.Option.Address.Hex(),
		Path:         path,
		InputAmount:  p.InputAmount.String(),
		OutputAmount: p.OutputAmount.String(),
		Spender:      p.Spender.Hex(),
		Approvals:    approvals,
		Contract:     p.Call.Contract.Hex(),
		Method:       p.Call.Method,
		CreatedAt:    p.CreatedAt,
	}
	if p.SecondaryAmount != nil {
		view.SecondaryAmount = p.SecondaryAmount.String()
	}
	return view
}

func selectionToView(sel *desk.Selection) selectionView {
	approvals := make([]approvalView, 0, len(sel.Approvals.All()))
	for _, a := range sel.Approvals.All() {
		v := approvalView{
			Token:     a.Token.Hex(),
			Spender:   a.Spender.Hex(),
			Allowance: a.Allowance.String(),
			Status:    string(a.Status()),
		}
		if a.Required != nil {
			v.Required = a.Required.String()
		}
		approvals = append(approvals, v)
	}

	return selectionView{
		Option:    sel.Option.Address.Hex(),
		Operation: sel.Operation.String(),
		Approved:  sel.Ready(),
		Approvals: approvals,
		UpdatedAt: sel.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorView{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errors.ErrInvalidInput),
		errors.Is(err, errors.ErrZeroQuantity),
		errors.Is(err, errors.ErrUnmappedOperation),
		errors.Is(err, errors.ErrTxRejected):
		return http.StatusBadRequest
	case errors.Is(err, errors.ErrNoSelection),
		errors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrApprovalRequired),
		errors.Is(err, errors.ErrSubmissionInProgress):
		return http.StatusConflict
	case errors.Is(err, errors.ErrTxReverted):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errors.ErrRPCUnavailable),
		errors.Is(err, errors.ErrDegeneratePool),
		errors.Is(err, errors.ErrInsufficientReserves):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
