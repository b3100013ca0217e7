package server

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	authhandler "github.com/hearthbooks/hearthbooks/internal/domain/auth/handler"
	authservice "github.com/hearthbooks/hearthbooks/internal/domain/auth/service"
	"github.com/hearthbooks/hearthbooks/internal/httpx"
)

// TokenValidator validates an API bearer token into its claims.
type TokenValidator interface {
	ValidateAccessToken(ctx context.Context, accessToken string) (*authservice.Claims, error)
}

// RoleResolver resolves a user's effective role on a project, walking the
// project hierarchy.
type RoleResolver interface {
	ResolveRole(ctx context.Context, userID, projectID uuid.UUID) (string, error)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// loggingMiddleware emits one structured line per request.
func loggingMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"remote", clientIP(r),
			}
			if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
				attrs = append(attrs, "trace_id", sc.TraceID().String())
			}
			logger.InfoContext(r.Context(), "http request", attrs...)
		})
	}
}

// recoveryMiddleware turns handler panics into 500s instead of dropped
// connections.
func recoveryMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.ErrorContext(r.Context(), "handler panic",
						"panic", rec,
						"path", r.URL.Path,
						"stack", string(debug.Stack()),
					)
					httpx.Error(w, http.StatusInternalServerError, "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// ipRateLimiter keeps one token bucket per client IP. Stale entries are
// pruned so the map cannot grow without bound.
type ipRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiterEntry
	limit    rate.Limit
	burst    int
}

type ipLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPRateLimiter(perSecond, burst int) *ipRateLimiter {
	rl := &ipRateLimiter{
		limiters: make(map[string]*ipLimiterEntry),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
	go rl.prune()
	return rl
}

func (rl *ipRateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.limiters[ip]
	if !ok {
		entry = &ipLimiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[ip] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter.Allow()
}

func (rl *ipRateLimiter) prune() {
	for range time.Tick(5 * time.Minute) {
		rl.mu.Lock()
		for ip, entry := range rl.limiters {
			if time.Since(entry.lastSeen) > 10*time.Minute {
				delete(rl.limiters, ip)
			}
		}
		rl.mu.Unlock()
	}
}

func rateLimitMiddleware(perSecond, burst int) mux.MiddlewareFunc {
	rl := newIPRateLimiter(perSecond, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.allow(clientIP(r)) {
				httpx.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.Index(fwd, ","); idx > 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// authMiddleware resolves the caller from either the browser session cookie
// or an Authorization bearer token, and rejects the request otherwise.
func authMiddleware(store sessions.Store, tokens TokenValidator) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := resolveUser(r, store, tokens)
			if !ok {
				httpx.Error(w, http.StatusUnauthorized, "authentication required")
				return
			}
			next.ServeHTTP(w, r.WithContext(httpx.WithUserID(r.Context(), userID)))
		})
	}
}

func resolveUser(r *http.Request, store sessions.Store, tokens TokenValidator) (uuid.UUID, bool) {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		claims, err := tokens.ValidateAccessToken(r.Context(), strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			return uuid.Nil, false
		}
		id, err := uuid.Parse(claims.UserID)
		if err != nil {
			return uuid.Nil, false
		}
		return id, true
	}

	session, err := store.Get(r, authhandler.SessionName)
	if err != nil {
		return uuid.Nil, false
	}
	raw, ok := session.Values["user_id"].(string)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// projectScopeMiddleware resolves the caller's role on the routed project and
// enforces the write/read split: GET and HEAD need viewer, everything else
// needs editor. No role at all answers 404, indistinguishable from a missing
// project.
func projectScopeMiddleware(roles RoleResolver, logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := httpx.UserID(r.Context())
			if !ok {
				httpx.Error(w, http.StatusUnauthorized, "authentication required")
				return
			}

			projectID, err := httpx.PathUUID(mux.Vars(r), "projectID")
			if err != nil {
				httpx.NotFound(w)
				return
			}

			role, err := roles.ResolveRole(r.Context(), userID, projectID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					httpx.NotFound(w)
					return
				}
				logger.ErrorContext(r.Context(), "role resolution failed", "project_id", projectID, "error", err)
				httpx.Error(w, http.StatusInternalServerError, "internal error")
				return
			}

			if r.Method != http.MethodGet && r.Method != http.MethodHead && !roleAtLeastEditor(role) {
				httpx.NotFound(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(httpx.WithProjectRole(r.Context(), role)))
		})
	}
}

func roleAtLeastEditor(role string) bool {
	return role == "editor" || role == "owner"
}
