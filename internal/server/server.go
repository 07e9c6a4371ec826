package server

import (
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"parimutuel/internal/app"
	"parimutuel/internal/config"
	"parimutuel/internal/contract"
	"parimutuel/internal/hmacauth"
	"parimutuel/internal/journal"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// actionTimeout bounds one action including the receipt wait. Actions are
// detached from the request so that leaving the page does not abandon a
// submitted transaction.
const actionTimeout = 3 * time.Minute

// WalletControl is the part of the local wallet the page drives directly,
// standing in for the wallet's own UI.
type WalletControl interface {
	Configured() []common.Address
	Select(addr common.Address) error
	Disconnect()
	Lock()
	Unlock()
}

// Deps are the collaborators the server needs. Wallet and RPC may be nil.
type Deps struct {
	Orchestrator *app.Orchestrator
	Wallet       WalletControl
	Journal      journal.Store
	RPC          contract.HealthChecker
	Metrics      *Metrics
	Logger       *zap.Logger
}

type Server struct {
	cfg         *config.AppConfig
	orch        *app.Orchestrator
	wallet      WalletControl
	journal     journal.Store
	hub         *Hub
	apiAuth     *hmacauth.Verifier
	httpServer  *http.Server
	metrics     *Metrics
	log         *zap.Logger
	dbHealthFn  func(context.Context) error
	rpcHealthFn func(context.Context) error
}

func NewServer(cfg *config.AppConfig, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}

	s := &Server{
		cfg:     cfg,
		orch:    deps.Orchestrator,
		wallet:  deps.Wallet,
		journal: deps.Journal,
		metrics: deps.Metrics,
		log:     deps.Logger,
		hub:     NewHub(deps.Logger, deps.Metrics),
		apiAuth: &hmacauth.Verifier{
			Secret:  cfg.Service.APISecret,
			MaxSkew: cfg.Service.APIMaxSkew,
		},
	}

	if checker, ok := deps.Journal.(interface{ Ping(context.Context) error }); ok {
		s.dbHealthFn = checker.Ping
	}
	if deps.RPC != nil {
		s.rpcHealthFn = deps.RPC.Ping
	}

	host := cfg.Service.HTTPHost
	if host == "" {
		host = "127.0.0.1"
	}
	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(host, strconv.Itoa(cfg.Service.HTTPPort)),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
	}
	return s
}

// Handler returns the routed handler wrapped in the request middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)

	mux.HandleFunc("POST /connect", s.action(func(ctx context.Context, _ *http.Request) error {
		return s.orch.Connect(ctx)
	}))
	mux.HandleFunc("POST /deposit", s.action(func(ctx context.Context, r *http.Request) error {
		return s.orch.Deposit(ctx, r.PostFormValue("amount"))
	}))
	mux.HandleFunc("POST /bet", s.action(func(ctx context.Context, r *http.Request) error {
		return s.orch.PlaceBet(ctx, app.BetDraft{
			Amount:  r.PostFormValue("amount"),
			Outcome: r.PostFormValue("outcome"),
		})
	}))
	mux.HandleFunc("POST /withdraw", s.action(func(ctx context.Context, _ *http.Request) error {
		return s.orch.Withdraw(ctx)
	}))
	mux.HandleFunc("POST /payout/fetch", s.action(func(ctx context.Context, _ *http.Request) error {
		return s.orch.FetchPayoutData(ctx)
	}))
	mux.HandleFunc("POST /payout/finalize", s.action(func(ctx context.Context, r *http.Request) error {
		return s.orch.FinalizePayout(ctx, app.PayoutDraft{
			WinningOutcome: r.PostFormValue("winningOutcome"),
			Winners:        r.PostFormValue("winners"),
			Amounts:        r.PostFormValue("amounts"),
		})
	}))
	mux.HandleFunc("POST /resolve", s.action(func(ctx context.Context, r *http.Request) error {
		return s.orch.ResolveOutcome(ctx, r.PostFormValue("outcome"))
	}))
	mux.HandleFunc("POST /notification/dismiss", s.action(func(context.Context, *http.Request) error {
		s.orch.Dismiss()
		return nil
	}))

	mux.HandleFunc("POST /wallet/select", s.handleWalletSelect)
	mux.HandleFunc("POST /wallet/disconnect", s.walletCommand(func(w WalletControl) { w.Disconnect() }))
	mux.HandleFunc("POST /wallet/lock", s.walletCommand(func(w WalletControl) { w.Lock() }))
	mux.HandleFunc("POST /wallet/unlock", s.walletCommand(func(w WalletControl) { w.Unlock() }))

	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/activity", s.handleActivity)
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		s.hub.Serve(w, r, func() any { return newStateView(s.orch.State()) })
	})
	mux.Handle("GET /metrics", s.metrics.handler())
	mux.HandleFunc("GET /health", s.handleHealth)

	return requestIDMiddleware(s.logMiddleware(s.guardMiddleware(mux)))
}

func (s *Server) Start() error {
	s.log.Info("console listening", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// StreamState pushes every state change to connected pages until ctx is done.
func (s *Server) StreamState(ctx context.Context) error {
	updates, unsubscribe := s.orch.Subscribe()
	defer unsubscribe()
	return s.hub.Stream(ctx, updates)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := pageData{
		State:    s.orch.State(),
		Outcomes: app.Outcomes,
	}
	if s.wallet != nil {
		data.HasWallet = true
		data.Accounts = s.wallet.Configured()
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := pageTemplate.Execute(w, data); err != nil {
		s.log.Error("render page", zap.Error(err))
	}
}

// action adapts an orchestrator call to a form POST. Browsers are redirected
// back to the page; clients asking for JSON get the resulting state.
func (s *Server) action(fn func(context.Context, *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form", http.StatusBadRequest)
			return
		}
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), actionTimeout)
		defer cancel()

		err := fn(ctx, r)
		if wantsJSON(r) {
			writeJSON(w, statusFor(err), newStateView(s.orch.State()))
			return
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

func (s *Server) handleWalletSelect(w http.ResponseWriter, r *http.Request) {
	if s.wallet == nil {
		http.Error(w, "no wallet configured", http.StatusServiceUnavailable)
		return
	}
	raw := strings.TrimSpace(r.PostFormValue("address"))
	if !common.IsHexAddress(raw) {
		http.Error(w, "invalid address", http.StatusBadRequest)
		return
	}
	if err := s.wallet.Select(common.HexToAddress(raw)); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.afterWalletCommand(w, r)
}

func (s *Server) walletCommand(fn func(WalletControl)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.wallet == nil {
			http.Error(w, "no wallet configured", http.StatusServiceUnavailable)
			return
		}
		fn(s.wallet)
		s.afterWalletCommand(w, r)
	}
}

// afterWalletCommand answers a wallet command. Account changes reach the
// orchestrator asynchronously through the wallet's notification stream.
func (s *Server) afterWalletCommand(w http.ResponseWriter, r *http.Request) {
	if wantsJSON(r) {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, newStateView(s.orch.State()))
}

type activityEntry struct {
	Action    string    `json:"action"`
	Account   string    `json:"account,omitempty"`
	Status    string    `json:"status"`
	Kind      string    `json:"kind,omitempty"`
	Message   string    `json:"message,omitempty"`
	TxHash    string    `json:"txHash,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeJSON(w, http.StatusOK, []activityEntry{})
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		s.log.Error("read journal", zap.Error(err))
		http.Error(w, "journal unavailable", http.StatusInternalServerError)
		return
	}
	out := make([]activityEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, activityEntry(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overallHealthy := true

	rpcInfo := struct {
		Connected bool    `json:"connected"`
		LatencyMs float64 `json:"latency_ms"`
		Simulated bool    `json:"simulated,omitempty"`
		Error     string  `json:"error,omitempty"`
	}{}

	if s.rpcHealthFn != nil {
		start := time.Now()
		rpcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.rpcHealthFn(rpcCtx); err != nil {
			rpcInfo.Error = err.Error()
			overallHealthy = false
		} else {
			rpcInfo.Connected = true
			rpcInfo.LatencyMs = float64(time.Since(start).Microseconds()) / 1000.0
		}
	} else {
		rpcInfo.Connected = true
		rpcInfo.Simulated = true
	}

	dbInfo := struct {
		Connected bool   `json:"connected"`
		Error     string `json:"error,omitempty"`
	}{Connected: true}

	if s.dbHealthFn != nil {
		dbCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.dbHealthFn(dbCtx); err != nil {
			dbInfo.Connected = false
			dbInfo.Error = err.Error()
			overallHealthy = false
		}
	}

	status := "healthy"
	if !overallHealthy {
		status = "degraded"
	}

	resp := struct {
		Status    string      `json:"status"`
		RPC       interface{} `json:"rpc"`
		Journal   interface{} `json:"journal"`
		Wallet    bool        `json:"wallet"`
		WSClients int         `json:"ws_clients"`
	}{
		Status:    status,
		RPC:       rpcInfo,
		Journal:   dbInfo,
		Wallet:    s.wallet != nil,
		WSClients: s.hub.Clients(),
	}

	code := http.StatusOK
	if !overallHealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// statusFor maps an action outcome onto an HTTP status for JSON clients.
func statusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch app.KindOf(err) {
	case app.KindValidationFailed, app.KindInsufficientBalance:
		return http.StatusUnprocessableEntity
	case app.KindNotOwner:
		return http.StatusForbidden
	case app.KindBusy:
		return http.StatusConflict
	case app.KindProviderUnavailable:
		return http.StatusServiceUnavailable
	case app.KindUserRejected, app.KindConnectionFailed:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
			r.Header.Set("X-Request-Id", id)
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

// guardMiddleware protects every state-changing request. Cross-origin
// browser posts are refused, and when an API secret is configured JSON
// clients must sign their requests.
func (s *Server) guardMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		if !sameOrigin(r) {
			s.log.Warn("cross-origin request refused",
				zap.String("path", r.URL.Path),
				zap.String("origin", r.Header.Get("Origin")),
				zap.String("referer", r.Header.Get("Referer")),
			)
			http.Error(w, "cross-origin request refused", http.StatusForbidden)
			return
		}
		if s.apiAuth.Enabled() && wantsJSON(r) {
			if err := s.apiAuth.Verify(r); err != nil {
				s.log.Warn("api request rejected", zap.String("path", r.URL.Path), zap.Error(err))
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		if r.URL.Path == "/metrics" || r.URL.Path == "/ws" {
			return
		}
		s.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", r.Header.Get("X-Request-Id")),
			zap.Duration("took", time.Since(start)),
		)
	})
}
