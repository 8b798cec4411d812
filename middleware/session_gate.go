package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/structsense/dashboard/internal/gate"
	"go.uber.org/zap"
)

// DefaultSessionCookieName is the cookie that carries the dashboard access token
const DefaultSessionCookieName = "access_token"

// SessionGate adapts gate.Gate to HTTP: it runs before any page handler and
// either passes the request through or answers with a redirect.
type SessionGate struct {
	gate       *gate.Gate
	cookieName string
	cookiePath string
	now        func() time.Time
	ungated    map[string]struct{}
	logger     *zap.Logger
}

// SessionGateOption customizes a SessionGate.
type SessionGateOption func(*SessionGate)

// WithCookieName overrides the session cookie name
func WithCookieName(name string) SessionGateOption {
	return func(s *SessionGate) {
		s.cookieName = name
	}
}

// WithCookiePath sets the path attribute used when clearing the cookie
func WithCookiePath(path string) SessionGateOption {
	return func(s *SessionGate) {
		s.cookiePath = path
	}
}

// WithClock overrides the wall clock (tests)
func WithClock(now func() time.Time) SessionGateOption {
	return func(s *SessionGate) {
		s.now = now
	}
}

// WithUngated lets requests with the given method and exact path through
// without evaluation. The login form POST uses it: a 307 would replay the
// submission against the redirect target.
func WithUngated(method, path string) SessionGateOption {
	return func(s *SessionGate) {
		s.ungated[ungatedKey(method, path)] = struct{}{}
	}
}

func ungatedKey(method, path string) string {
	return method + " " + path
}

// NewSessionGate creates a new SessionGate
func NewSessionGate(g *gate.Gate, logger *zap.Logger, opts ...SessionGateOption) *SessionGate {
	s := &SessionGate{
		gate:       g,
		cookieName: DefaultSessionCookieName,
		cookiePath: "/",
		now:        time.Now,
		ungated:    make(map[string]struct{}),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler is the chi middleware
func (s *SessionGate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.ungated[ungatedKey(r.Method, r.URL.Path)]; ok {
			next.ServeHTTP(w, r)
			return
		}

		decision := s.gate.Evaluate(gate.Request{
			Path:       r.URL.Path,
			Credential: s.credential(r),
			Now:        s.now(),
		})

		fields := []zap.Field{
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("route_class", decision.Class.String()),
			zap.String("credential", decision.Credential.String()),
			zap.String("outcome", decision.Outcome.String()),
		}

		if decision.Outcome == gate.Allow {
			s.logger.Debug("session gate allow", fields...)
			next.ServeHTTP(w, r)
			return
		}

		s.logger.Debug("session gate redirect", append(fields, zap.String("location", decision.Location))...)

		if decision.ClearCredential {
			http.SetCookie(w, &http.Cookie{
				Name:     s.cookieName,
				Value:    "",
				Path:     s.cookiePath,
				MaxAge:   -1,
				Expires:  time.Unix(0, 0),
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}

		http.Redirect(w, r, decision.Location, http.StatusTemporaryRedirect)
	})
}

// credential returns the session cookie value, or "" when absent.
func (s *SessionGate) credential(r *http.Request) string {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
