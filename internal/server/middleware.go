package server

import (
	"context"
	"log/slog"
	"net/http"

	"sentilytics/internal/alerts"
	"sentilytics/internal/app"
	"sentilytics/internal/auth"
	"sentilytics/internal/observability"
	"sentilytics/internal/preferences"
)

const sessionCookie = "sentilytics_session"

type ctxKey int

const (
	sessionKey ctxKey = iota
	userKey
	appKey
)

func sessionFrom(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey).(string)
	return id
}

func userFrom(ctx context.Context) *auth.User {
	u, _ := ctx.Value(userKey).(*auth.User)
	return u
}

func appFrom(ctx context.Context) *app.App {
	a, _ := ctx.Value(appKey).(*app.App)
	return a
}

// themeHint reads the browser's color-scheme client hint.
func (s *Server) themeHint(r *http.Request) preferences.Theme {
	if t, ok := preferences.ParseTheme(r.Header.Get("Sec-CH-Prefers-Color-Scheme")); ok {
		return t
	}
	return s.deps.DefaultTheme
}

// requireSession resolves the session cookie to a user and their App, and
// pushes alerts raised while handling the request to the client.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookie)
		if err != nil || cookie.Value == "" {
			s.respondError(w, http.StatusUnauthorized, "Please sign in to continue.")
			return
		}
		u, ok := s.sessions.Get(cookie.Value)
		if !ok {
			s.clearSessionCookie(w)
			s.respondError(w, http.StatusUnauthorized, "Your session has expired. Please sign in again.")
			return
		}

		a, err := s.appFor(r.Context(), cookie.Value, u, s.themeHint(r))
		if err != nil {
			s.log.Error("failed to start session", "user", u.ID, "error", err)
			s.respondError(w, http.StatusInternalServerError, "Failed to load your workspace.")
			return
		}

		ctx := context.WithValue(r.Context(), sessionKey, cookie.Value)
		ctx = context.WithValue(ctx, userKey, u)
		ctx = context.WithValue(ctx, appKey, a)
		ctx = observability.WithDistinctID(ctx, u.ID)

		tw := newToastWriter(w, a.Alerts, s.log)
		next.ServeHTTP(tw, r.WithContext(ctx))
		tw.flushHeader()
	})
}

// toastWriter adds an HX-Trigger showToast header for every alert raised
// before the response header is written.
type toastWriter struct {
	http.ResponseWriter
	queue       *alerts.Queue
	log         *slog.Logger
	before      map[string]bool
	wroteHeader bool
}

func newToastWriter(w http.ResponseWriter, q *alerts.Queue, log *slog.Logger) *toastWriter {
	before := make(map[string]bool)
	for _, a := range q.List() {
		before[a.ID] = true
	}
	return &toastWriter{ResponseWriter: w, queue: q, log: log, before: before}
}

func (tw *toastWriter) addToasts() {
	if tw.Header().Get("HX-Trigger") != "" {
		return
	}
	var raised []alerts.Alert
	for _, a := range tw.queue.List() {
		if !tw.before[a.ID] {
			raised = append(raised, a)
		}
	}
	if len(raised) > 0 {
		if err := showToasts(tw.ResponseWriter, raised); err != nil {
			tw.log.Error("Failed to encode toast header", "count", len(raised), "error", err)
		}
	}
}

func (tw *toastWriter) WriteHeader(status int) {
	if !tw.wroteHeader {
		tw.wroteHeader = true
		tw.addToasts()
	}
	tw.ResponseWriter.WriteHeader(status)
}

func (tw *toastWriter) Write(b []byte) (int, error) {
	if !tw.wroteHeader {
		tw.WriteHeader(http.StatusOK)
	}
	return tw.ResponseWriter.Write(b)
}

// flushHeader writes the header for handlers that wrote nothing.
func (tw *toastWriter) flushHeader() {
	if !tw.wroteHeader {
		tw.WriteHeader(http.StatusNoContent)
	}
}

// securityHeaders adds security headers to all responses
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; connect-src 'self' https://app.posthog.com;")
		// Ask the browser for its color scheme so first-visit theme follows the OS.
		w.Header().Set("Accept-CH", "Sec-CH-Prefers-Color-Scheme")

		next.ServeHTTP(w, r)
	})
}

// noCache adds headers to prevent caching (useful for HTMX partials)
func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")

		next.ServeHTTP(w, r)
	})
}
