package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"famfunds/internal/cache"
	"famfunds/internal/core"
	"famfunds/internal/ledger"
	applog "famfunds/internal/log"
	"famfunds/internal/middleware/ratelimit"
	"famfunds/internal/middleware/security"
	"famfunds/internal/middleware/trace"
)

// Ledger is the engine surface the API needs.
type Ledger interface {
	RegisterMember(ctx context.Context, m core.Member) (core.Member, error)
	Member(id string) (core.Member, error)
	Members() []core.Member
	UpdateMember(ctx context.Context, id string, u ledger.MemberUpdate) (core.Member, error)

	Provision(ctx context.Context, req ledger.ProvisionRequest) (core.SubAccount, error)
	Account(id string) (core.SubAccount, error)
	AccountByMember(memberID string) (core.SubAccount, error)
	Accounts() []core.SubAccount
	UpdateAccount(ctx context.Context, id string, u ledger.AccountUpdate) (core.SubAccount, error)
	Activate(ctx context.Context, id string) (core.SubAccount, error)
	Deactivate(ctx context.Context, id string) (core.SubAccount, error)
	UpdateSpendLimit(ctx context.Context, id string, limit core.Money, period core.SpendPeriod) (core.SubAccount, error)
	SpendLimit(id string, asOf time.Time) (ledger.SpendLimitView, error)
	ApplyBalanceDelta(ctx context.Context, id string, delta core.Money) (core.Money, error)
	Remove(ctx context.Context, id string) (bool, error)

	Permissions(subAccountID string) (core.PermissionProfile, error)
	UpdatePermissions(ctx context.Context, subAccountID string, u ledger.PermissionUpdate) (core.PermissionProfile, error)

	Propose(ctx context.Context, req ledger.ProposeRequest) (core.Transaction, error)
	Approve(ctx context.Context, id string) (core.Transaction, error)
	Decline(ctx context.Context, id string) (core.Transaction, error)
	All() []core.Transaction
	BySubAccount(subAccountID string) []core.Transaction
	Pending() []core.Transaction
	ByID(id string) (core.Transaction, error)

	Overview(asOf time.Time) ledger.Overview
	Location() *time.Location
}

// Options tune the server. Zero values pick defaults.
type Options struct {
	Logger *applog.Logger
	// Ready reports whether dependencies are reachable; nil means always ready.
	Ready func(ctx context.Context) error
	// RateLimitPerMinute applies per client to /api; 0 disables it.
	RateLimitPerMinute int
	IdempotencyTTL     time.Duration
	IdempotencySize    int
	TrustedProxies     []string
	Now                func() time.Time
}

type Server struct {
	http.Server
	ledger  Ledger
	ready   func(ctx context.Context) error
	logger  *applog.Logger
	now     func() time.Time
	limiter *ratelimit.Limiter
	idem    *idempotencyStore
	tracer  *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, l Ledger, opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = applog.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	if opts.IdempotencySize <= 0 {
		opts.IdempotencySize = 10_000
	}

	ips, err := security.NewIPResolver(opts.TrustedProxies...)
	if err != nil {
		return nil, err
	}

	s := &Server{
		ledger: l,
		ready:  opts.Ready,
		logger: opts.Logger.WithComponent(applog.ComponentHTTP),
		now:    opts.Now,
		idem:   newIdempotencyStore(opts.IdempotencySize, opts.IdempotencyTTL),
		tracer: trace.NewMiddleware(opts.Logger, ips.ClientIP),
	}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("no route for " + r.URL.Path).Write(w)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		MethodNotAllowedError().Write(w)
	})

	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.NotFoundHandler = r.NotFoundHandler
	api.MethodNotAllowedHandler = r.MethodNotAllowedHandler
	if opts.RateLimitPerMinute > 0 {
		s.limiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute})
		api.Use(s.limiter.Middleware(ips.ClientIP, func(w http.ResponseWriter, r *http.Request) {
			s.logger.WarnContext(r.Context(), "Rate limit exceeded",
				applog.FieldClientIP, ips.ClientIP(r),
				applog.FieldPath, r.URL.Path)
			TooManyRequestsError().Write(w)
		}))
	}
	s.routes(api)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.tracer.Middleware(headers.Middleware(r)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) routes(api *mux.Router) {
	api.HandleFunc("/members", s.handleListMembers).Methods(http.MethodGet)
	api.HandleFunc("/members", s.handleCreateMember).Methods(http.MethodPost)
	api.HandleFunc("/members/{id}", s.handleGetMember).Methods(http.MethodGet)
	api.HandleFunc("/members/{id}", s.handleUpdateMember).Methods(http.MethodPatch)

	api.HandleFunc("/accounts", s.handleListAccounts).Methods(http.MethodGet)
	api.HandleFunc("/accounts", s.handleProvisionAccount).Methods(http.MethodPost)
	api.HandleFunc("/accounts/{id}", s.handleGetAccount).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{id}", s.handleUpdateAccount).Methods(http.MethodPatch)
	api.HandleFunc("/accounts/{id}", s.handleRemoveAccount).Methods(http.MethodDelete)
	api.HandleFunc("/accounts/{id}/activate", s.handleActivate).Methods(http.MethodPost)
	api.HandleFunc("/accounts/{id}/deactivate", s.handleDeactivate).Methods(http.MethodPost)
	api.HandleFunc("/accounts/{id}/spend-limit", s.handleGetSpendLimit).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{id}/spend-limit", s.handleSetSpendLimit).Methods(http.MethodPut)
	api.HandleFunc("/accounts/{id}/permissions", s.handleGetPermissions).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{id}/permissions", s.handleUpdatePermissions).Methods(http.MethodPatch)
	api.HandleFunc("/accounts/{id}/adjustments", s.handleAdjustBalance).Methods(http.MethodPost)
	api.HandleFunc("/accounts/{id}/transactions", s.handleAccountTransactions).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{id}/transactions", s.handlePropose).Methods(http.MethodPost)

	api.HandleFunc("/transactions", s.handleListTransactions).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{id}", s.handleGetTransaction).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{id}/approve", s.handleApprove).Methods(http.MethodPost)
	api.HandleFunc("/transactions/{id}/decline", s.handleDecline).Methods(http.MethodPost)

	api.HandleFunc("/overview", s.handleOverview).Methods(http.MethodGet)
}

// Caches returns the server caches for periodic expiry.
func (s *Server) Caches() []cache.Cleaner {
	return []cache.Cleaner{s.idem.cleaner()}
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.limiter != nil {
			s.limiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
			ErrorResponse(http.StatusServiceUnavailable, CodeUnavailable, "not ready").Write(w)
			return
		}
	}
	NewResponse().JSON(map[string]string{"status": "ready"}).Write(w)
}

// fail writes err as a response, logging anything that is not a client error.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	rb := DomainError(err)
	if rb.statusCode >= 500 {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			applog.FieldOperation, op,
			applog.FieldError, err)
	}
	rb.Write(w)
}
