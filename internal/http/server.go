// Package http is the JSON API surface. Handlers stay thin: parse,
// call a service, render. Identity comes from the auth middleware and
// every store access is scoped to it.
package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"budgetu/internal/cache"
	"budgetu/internal/middleware/auth"
	"budgetu/internal/middleware/ratelimit"
	"budgetu/internal/middleware/security"
	"budgetu/internal/middleware/trace"
	"budgetu/internal/services"
)

// Config carries everything the server needs; zero limits fall back to
// defaults.
type Config struct {
	Addr               string
	Transactions       *services.TransactionService
	Budgets            *services.BudgetService
	Verifier           auth.Verifier
	RateLimitPerMinute int
	SummaryCacheSize   int
	SummaryCacheTTL    time.Duration
}

type Server struct {
	http.Server

	transactions *services.TransactionService
	budgets      *services.BudgetService

	limiter *ratelimit.Limiter
	tracer  *trace.Middleware

	// summaryCache memoizes spending summaries per user and range; any
	// ledger mutation drops the whole user prefix.
	summaryCache *cache.LRUCache[services.SpendingSummary]
	cacheManager *cache.Manager

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(cfg Config) *Server {
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = 120
	}
	if cfg.SummaryCacheSize <= 0 {
		cfg.SummaryCacheSize = 1000
	}
	if cfg.SummaryCacheTTL <= 0 {
		cfg.SummaryCacheTTL = time.Minute
	}
	if cfg.Verifier == nil {
		cfg.Verifier = auth.NewHeaderVerifier("")
	}

	ipExtractor := security.NewIPExtractor()

	s := &Server{
		transactions: cfg.Transactions,
		budgets:      cfg.Budgets,
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: cfg.RateLimitPerMinute,
		}),
		tracer:       trace.NewMiddleware(ipExtractor.ExtractClientIP),
		summaryCache: cache.NewLRUCache[services.SpendingSummary](cfg.SummaryCacheSize, cfg.SummaryCacheTTL),
		cacheManager: cache.NewManager(),
	}
	s.cacheManager.Register(s.summaryCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	api := http.NewServeMux()
	api.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	api.HandleFunc("GET /api/transactions", s.handleListTransactions)
	api.HandleFunc("GET /api/transactions/summary", s.handleSpendingSummary)
	api.HandleFunc("GET /api/transactions/{id}", s.handleGetTransaction)
	api.HandleFunc("PUT /api/transactions/{id}", s.handleUpdateTransaction)
	api.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)

	api.HandleFunc("POST /api/budgets", s.handleCreateBudget)
	api.HandleFunc("GET /api/budgets", s.handleListBudgets)
	api.HandleFunc("GET /api/budgets/active", s.handleActiveBudget)
	api.HandleFunc("GET /api/budgets/{id}", s.handleGetBudget)
	api.HandleFunc("PUT /api/budgets/{id}", s.handleUpdateBudget)
	api.HandleFunc("DELETE /api/budgets/{id}", s.handleDeleteBudget)
	api.HandleFunc("POST /api/budgets/{id}/categories", s.handleAddCategory)
	api.HandleFunc("GET /api/budgets/{id}/summary", s.handleBudgetSummary)
	api.HandleFunc("POST /api/budgets/{id}/recur", s.handleRecurBudget)
	api.HandleFunc("POST /api/budgets/{id}/rebuild", s.handleRebuildBudget)

	authed := auth.Middleware(cfg.Verifier, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusUnauthorized, "missing or invalid identity")
	})(api)
	limited := s.limiter.Middleware(ipExtractor.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	})(authed)
	mux.Handle("/api/", limited)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	handler := headers.Middleware(s.tracer.Middleware(mux))

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Shutdown stops the HTTP server and the background cleanup goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		s.cacheManager.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// handleMetrics exposes plain-text counters; enough for a scrape or a
// curl, no metrics stack required.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	tm := s.tracer.GetMetrics()
	rm := s.limiter.GetMetrics()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "http_requests_total %d\n", tm.TotalRequests)
	fmt.Fprintf(w, "http_response_time_us %d\n", tm.AverageResponseTime)
	fmt.Fprintf(w, "ratelimit_rejected_total %d\n", rm.TotalHits)
	fmt.Fprintf(w, "ratelimit_tracked_clients %d\n", rm.ClientCount)
	fmt.Fprintf(w, "summary_cache_entries %d\n", s.summaryCache.Size())
}

func (s *Server) invalidateSummaries(userID string) {
	s.summaryCache.DeletePrefix(userID + ":")
}

func summaryCacheKey(userID string, from, to time.Time) string {
	return userID + ":" + from.Format("2006-01-02") + ":" + to.Format("2006-01-02")
}
