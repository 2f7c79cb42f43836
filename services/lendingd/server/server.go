package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"lendledger/native/lending"
	"lendledger/observability"
	"lendledger/services/lendingd/journal"
)

const maxBodyBytes = 1 << 16

// Engine abstracts the lending operations served over HTTP.
type Engine interface {
	Deposit(caller lending.AccountID, amount uint64) error
	Withdraw(caller lending.AccountID, amount uint64) error
	OpenLoan(caller lending.AccountID, principal, collateral uint64) (lending.LoanID, error)
	RepayLoan(caller lending.AccountID, id lending.LoanID, amount uint64) error
	LiquidateLoan(caller lending.AccountID, id lending.LoanID) error
	SetCollateralRatio(caller lending.AccountID, bps uint64) error
	SetInterestRate(caller lending.AccountID, bps uint32) error

	Loan(id lending.LoanID) (lending.LoanRecord, bool, error)
	Account(id lending.AccountID) (lending.AccountState, bool, error)
	Parameters() (lending.Parameters, error)
	AmountDue(id lending.LoanID) (lending.AmountDue, error)
}

// EventLister reads the persisted event journal.
type EventLister interface {
	List(ctx context.Context, filter journal.Filter) ([]journal.Entry, error)
}

// PauseSwitch reads and toggles module pause flags at runtime.
type PauseSwitch interface {
	IsPaused(module string) bool
	Set(module string, paused bool)
}

// Config captures the HTTP-facing settings.
type Config struct {
	Auth      AuthConfig
	RateLimit RateLimit
	// DisableRateLimit turns the per-caller limiter off.
	DisableRateLimit bool
	// WSOriginPatterns lists the origins allowed to open event streams.
	WSOriginPatterns []string
}

// Deps are the collaborators the server delegates to. Journal, Hub and
// Pauses are optional.
type Deps struct {
	Engine  Engine
	Journal EventLister
	Hub     *Hub
	Pauses  PauseSwitch
	Logger  *slog.Logger
}

// Server exposes the lending engine as a JSON API.
type Server struct {
	engine  Engine
	journal EventLister
	hub     *Hub
	pauses  PauseSwitch
	logger  *slog.Logger
	auth    *Authenticator
	limiter *RateLimiter
	metrics requestObserver
	origins []string

	router http.Handler
}

func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Engine == nil {
		return nil, errors.New("server: engine required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	authenticator, err := NewAuthenticator(cfg.Auth, logger)
	if err != nil {
		return nil, err
	}
	srv := &Server{
		engine:  deps.Engine,
		journal: deps.Journal,
		hub:     deps.Hub,
		pauses:  deps.Pauses,
		logger:  logger,
		auth:    authenticator,
		metrics: observability.HTTPMetrics(),
		origins: cfg.WSOriginPatterns,
	}
	if !cfg.DisableRateLimit {
		srv.limiter = NewRateLimiter(cfg.RateLimit, srv.metrics)
	}
	srv.router = otelhttp.NewHandler(srv.buildRouter(), "lendingd")
	return srv, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) limit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return s.limiter.Middleware(next)
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(chimw.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Group(func(public chi.Router) {
			public.Use(s.limit)
			public.Get("/params", s.handleParams)
			public.Get("/loans/count", s.handleLoanCount)
			public.Get("/loans/{id}", s.handleGetLoan)
			public.Get("/loans/{id}/due", s.handleAmountDue)
			public.Get("/accounts/{id}", s.handleGetAccount)
			public.Get("/events", s.handleListEvents)
			if s.hub != nil {
				public.Get("/events/ws", s.hub.ServeWS(s.origins))
			}
			if s.pauses != nil {
				public.Get("/pauses/{module}", s.handleGetPause)
			}
		})
		api.Group(func(protected chi.Router) {
			protected.Use(s.auth.Middleware)
			protected.Use(s.limit)
			protected.Post("/deposit", s.handleDeposit)
			protected.Post("/withdraw", s.handleWithdraw)
			protected.Post("/loans", s.handleOpenLoan)
			protected.Post("/loans/{id}/repay", s.handleRepay)
			protected.Post("/loans/{id}/liquidate", s.handleLiquidate)
			protected.Put("/params/collateral-ratio", s.handleSetCollateralRatio)
			protected.Put("/params/interest-rate", s.handleSetInterestRate)
			if s.pauses != nil {
				protected.Put("/pauses/{module}", s.handleSetPause)
			}
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.engine.Parameters(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, errBadRequest) {
			return err
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data after request body", errBadRequest)
	}
	return nil
}

func loanIDParam(r *http.Request) (lending.LoanID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "id"))
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid loan id %q", errBadRequest, raw)
	}
	return lending.LoanID(id), nil
}

// caller is set by the auth middleware on every protected route.
func caller(r *http.Request) lending.AccountID {
	id, _ := CallerFrom(r.Context())
	return id
}

type amountRequest struct {
	Amount amount `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.engine.Deposit(caller(r), uint64(req.Amount)); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeAccount(w, r, caller(r))
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.engine.Withdraw(caller(r), uint64(req.Amount)); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeAccount(w, r, caller(r))
}

func (s *Server) handleOpenLoan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Principal  amount `json:"principal"`
		Collateral amount `json:"collateral"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := s.engine.OpenLoan(caller(r), uint64(req.Principal), uint64(req.Collateral))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, ok, err := s.engine.Loan(id)
	if err != nil || !ok {
		writeJSON(w, http.StatusCreated, map[string]lending.LoanID{"id": id})
		return
	}
	writeJSON(w, http.StatusCreated, newLoanView(rec))
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) {
	id, err := loanIDParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req amountRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.engine.RepayLoan(caller(r), id, uint64(req.Amount)); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeLoan(w, r, id)
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	id, err := loanIDParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.engine.LiquidateLoan(caller(r), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeLoan(w, r, id)
}

type bpsRequest struct {
	Bps uint64 `json:"bps"`
}

func (s *Server) handleSetCollateralRatio(w http.ResponseWriter, r *http.Request) {
	var req bpsRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.engine.SetCollateralRatio(caller(r), req.Bps); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.handleParams(w, r)
}

func (s *Server) handleSetInterestRate(w http.ResponseWriter, r *http.Request) {
	var req bpsRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Bps > math.MaxUint32 {
		s.writeError(w, r, fmt.Errorf("%w: interest rate %d", lending.ErrParameterOutOfRange, req.Bps))
		return
	}
	if err := s.engine.SetInterestRate(caller(r), uint32(req.Bps)); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.handleParams(w, r)
}

type pauseView struct {
	Module string `json:"module"`
	Paused bool   `json:"paused"`
}

func moduleParam(r *http.Request) (string, error) {
	module := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "module")))
	if module == "" {
		return "", fmt.Errorf("%w: module required", errBadRequest)
	}
	return module, nil
}

func (s *Server) handleGetPause(w http.ResponseWriter, r *http.Request) {
	module, err := moduleParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pauseView{Module: module, Paused: s.pauses.IsPaused(module)})
}

// handleSetPause toggles a module pause. Only the protocol owner may do so.
func (s *Server) handleSetPause(w http.ResponseWriter, r *http.Request) {
	module, err := moduleParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req struct {
		Paused *bool `json:"paused"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Paused == nil {
		s.writeError(w, r, fmt.Errorf("%w: paused required", errBadRequest))
		return
	}
	params, err := s.engine.Parameters()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	who := caller(r).Canonical()
	if who.IsZero() || who != params.Owner.Canonical() {
		s.writeError(w, r, lending.ErrUnauthorized)
		return
	}
	s.pauses.Set(module, *req.Paused)
	s.logger.Info("module pause updated", "module", module, "paused", *req.Paused, "caller", who.String())
	writeJSON(w, http.StatusOK, pauseView{Module: module, Paused: *req.Paused})
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	params, err := s.engine.Parameters()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newParamsView(params))
}

func (s *Server) handleLoanCount(w http.ResponseWriter, r *http.Request) {
	params, err := s.engine.Parameters()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"count": params.LoanCount()})
}

func (s *Server) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	id, err := loanIDParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeLoan(w, r, id)
}

func (s *Server) handleAmountDue(w http.ResponseWriter, r *http.Request) {
	id, err := loanIDParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	due, err := s.engine.AmountDue(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dueView{
		LoanID:    id,
		Principal: formatUint(due.Principal),
		Interest:  formatUint(due.Interest),
		Total:     formatUint(due.Total),
		Elapsed:   due.Elapsed,
	})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id := lending.AccountID(strings.TrimSpace(chi.URLParam(r, "id")))
	if id.IsZero() {
		s.writeError(w, r, fmt.Errorf("%w: account required", errBadRequest))
		return
	}
	s.writeAccount(w, r, id)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: "event journal disabled"})
		return
	}
	q := r.URL.Query()
	filter := journal.Filter{
		Account: strings.TrimSpace(q.Get("account")),
		Type:    strings.TrimSpace(q.Get("type")),
	}
	for key, dst := range map[string]*uint64{"loan": &filter.LoanID, "after": &filter.AfterSeq} {
		raw := strings.TrimSpace(q.Get(key))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: invalid %s %q", errBadRequest, key, raw))
			return
		}
		*dst = v
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.writeError(w, r, fmt.Errorf("%w: invalid limit %q", errBadRequest, raw))
			return
		}
		filter.Limit = limit
	}
	entries, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": entries})
}

func (s *Server) writeLoan(w http.ResponseWriter, r *http.Request, id lending.LoanID) {
	rec, ok, err := s.engine.Loan(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		s.writeError(w, r, lending.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newLoanView(rec))
}

func (s *Server) writeAccount(w http.ResponseWriter, r *http.Request, id lending.AccountID) {
	acc, _, err := s.engine.Account(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAccountView(id, acc))
}
