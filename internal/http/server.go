// Package http exposes the JSON API. Handlers stay thin: they parse, call a
// service, and translate errors; every rule lives below them.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"divvy/internal/cache"
	"divvy/internal/log"
	"divvy/internal/report"
	"divvy/internal/services"
	"divvy/internal/storage"
)

// Deps carries everything the server needs. Links may be nil when no bank
// provider is configured; the related endpoints then answer 503.
type Deps struct {
	Store  storage.Store
	Ledger *services.LedgerService
	Bills  *services.BillService
	Goals  *services.GoalService
	Links  *services.LinkService

	CacheSize int
	CacheTTL  time.Duration
}

type Server struct {
	http.Server

	store  storage.Store
	ledger *services.LedgerService
	bills  *services.BillService
	goals  *services.GoalService
	links  *services.LinkService

	rateLimiter  *rateLimiter
	summaryCache *cache.LRUCache[report.Summary]

	stopCacheCleanup chan struct{}
	shutdownOnce     sync.Once
}

func NewServer(addr string, deps Deps) *Server {
	mux := http.NewServeMux()

	cacheSize := deps.CacheSize
	if cacheSize < 1 {
		cacheSize = 256
	}
	cacheTTL := deps.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		store:            deps.Store,
		ledger:           deps.Ledger,
		bills:            deps.Bills,
		goals:            deps.Goals,
		links:            deps.Links,
		rateLimiter:      newRateLimiter(),
		summaryCache:     cache.NewLRUCache[report.Summary](cacheSize, cacheTTL),
		stopCacheCleanup: make(chan struct{}),
	}
	go s.startCacheCleanup()

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	s.handle(mux, "GET /api/orgs", s.handleListOrganizations)
	s.handle(mux, "POST /api/orgs", s.handleCreateOrganization)

	s.handle(mux, "GET /api/orgs/{org}/cost-centers", s.handleListCostCenters)
	s.handle(mux, "POST /api/orgs/{org}/cost-centers", s.handleCreateCostCenter)
	s.handle(mux, "PUT /api/orgs/{org}/cost-centers/{id}", s.handleUpdateCostCenter)

	s.handle(mux, "GET /api/orgs/{org}/transactions", s.handleListTransactions)
	s.handle(mux, "POST /api/orgs/{org}/transactions", s.handleCreateTransaction)
	s.handle(mux, "PUT /api/orgs/{org}/transactions/{id}", s.handleUpdateTransaction)
	s.handle(mux, "DELETE /api/orgs/{org}/transactions/{id}", s.handleDeleteTransaction)
	s.handle(mux, "POST /api/orgs/{org}/transactions/{id}/confirm", s.handleConfirmTransaction)

	s.handle(mux, "GET /api/orgs/{org}/summary", s.handleSummary)

	s.handle(mux, "GET /api/orgs/{org}/bills", s.handleListBills)
	s.handle(mux, "POST /api/orgs/{org}/bills", s.handleCreateBill)
	s.handle(mux, "PUT /api/orgs/{org}/bills/{id}", s.handleUpdateBill)
	s.handle(mux, "POST /api/orgs/{org}/bills/{id}/pay", s.handlePayBill)
	s.handle(mux, "POST /api/orgs/{org}/bills/{id}/revert", s.handleRevertBill)
	s.handle(mux, "POST /api/orgs/{org}/bills/{id}/cancel", s.handleCancelBill)

	s.handle(mux, "GET /api/orgs/{org}/goals", s.handleListGoals)
	s.handle(mux, "POST /api/orgs/{org}/goals", s.handleCreateGoal)
	s.handle(mux, "DELETE /api/orgs/{org}/goals/{id}", s.handleDeleteGoal)
	s.handle(mux, "POST /api/orgs/{org}/goals/{id}/contributions", s.handleContribute)
	s.handle(mux, "GET /api/orgs/{org}/badges", s.handleListBadges)

	s.handle(mux, "GET /api/orgs/{org}/accounts", s.handleListAccounts)
	s.handle(mux, "POST /api/orgs/{org}/accounts", s.handleCreateAccount)
	s.handle(mux, "POST /api/orgs/{org}/transfers", s.handleTransfer)

	s.handle(mux, "POST /api/orgs/{org}/bank-links/widget-session", s.handleWidgetSession)
	s.handle(mux, "GET /api/orgs/{org}/bank-links", s.handleListBankLinks)
	s.handle(mux, "POST /api/orgs/{org}/bank-links", s.handleRegisterBankLink)
	s.handle(mux, "POST /api/orgs/{org}/bank-links/{id}/sync", s.handleSyncBankLink)
	s.handle(mux, "DELETE /api/orgs/{org}/bank-links/{id}", s.handleRemoveBankLink)

	return s
}

func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, s.withMiddleware(h))
}

// withMiddleware adds security headers, rate limiting on writes, a request
// ID, and request logging.
func (s *Server) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "rate limit exceeded",
				log.FieldClientIP, clientIP, log.FieldMethod, r.Method, log.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			respondJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Request-ID", requestID)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		slog.InfoContext(ctx, "request completed",
			log.FieldRequestID, requestID,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldStatusCode, rw.statusCode,
			log.FieldDuration, time.Since(start).Milliseconds(),
			log.FieldClientIP, clientIP)
	}
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) startCacheCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if cleaned := s.summaryCache.CleanExpired(); cleaned > 0 {
				slog.Debug("summary cache cleanup", "entries_removed", cleaned)
			}
		case <-s.stopCacheCleanup:
			return
		}
	}
}

// Shutdown stops the cleanup goroutines along with the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		close(s.stopCacheCleanup)
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Simple in-memory rate limiter, 60 write requests per client per minute.
type rateLimiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type clientInfo struct {
	lastRequest time.Time
	requests    int
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		clients:     make(map[string]*clientInfo),
		stopCleanup: make(chan struct{}),
	}
	go rl.startCleanup()
	return rl
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, exists := rl.clients[clientIP]
	if !exists {
		rl.clients[clientIP] = &clientInfo{lastRequest: now, requests: 1}
		return true
	}
	if now.Sub(client.lastRequest) > time.Minute {
		client.requests = 1
		client.lastRequest = now
		return true
	}
	client.requests++
	client.lastRequest = now
	return client.requests <= 60
}

func (rl *rateLimiter) startCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *rateLimiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, client := range rl.clients {
		if client.lastRequest.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.shutdownOnce.Do(func() {
		close(rl.stopCleanup)
	})
}
