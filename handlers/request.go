package handlers

import (
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/structsense/dashboard/middleware"
	"github.com/structsense/dashboard/services/audit"
)

// requestInfo collects the request metadata recorded with audit events
func requestInfo(r *http.Request) audit.RequestInfo {
	return audit.RequestInfo{
		RequestID: middleware.GetRequestIDFromContext(r.Context()),
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	}
}

// clientIP strips the port from RemoteAddr. chi's RealIP middleware has
// already replaced it with X-Forwarded-For / X-Real-IP when present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// currentUserID returns the authenticated user's ID or uuid.Nil
func currentUserID(r *http.Request) uuid.UUID {
	if id := middleware.GetUserIDFromContext(r.Context()); id != nil {
		return *id
	}
	return uuid.Nil
}

// deviceIDParam parses the {id} path parameter
func deviceIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// queryInt parses an optional non-negative integer query parameter
func queryInt(r *http.Request, key string, def int) (int, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
