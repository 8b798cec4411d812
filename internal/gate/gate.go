// Package gate decides, per navigation request, whether the dashboard shell
// may be served, must bounce to the login page, or should skip the login page.
//
// The decision is a pure function of (path, credential, now). It holds no
// state between requests, performs no I/O and never fails.
package gate

import (
	"sort"
	"strings"
	"time"

	"github.com/structsense/dashboard/internal/session"
)

// RouteClass is the protection class of a path.
type RouteClass int

const (
	// Unmatched paths are not intercepted.
	Unmatched RouteClass = iota
	// Protected paths require a valid credential.
	Protected
	// GuestOnly paths are hidden from sessions holding a valid credential.
	GuestOnly
)

func (c RouteClass) String() string {
	switch c {
	case Protected:
		return "protected"
	case GuestOnly:
		return "guest_only"
	default:
		return "unmatched"
	}
}

// Outcome is the single externally observable result of an evaluation.
type Outcome int

const (
	// Allow passes the request through untouched.
	Allow Outcome = iota
	// RedirectLogin sends the client to the login page and clears the credential.
	RedirectLogin
	// RedirectDashboard sends an authenticated client to the dashboard root.
	RedirectDashboard
)

func (o Outcome) String() string {
	switch o {
	case RedirectLogin:
		return "redirect_login"
	case RedirectDashboard:
		return "redirect_dashboard"
	default:
		return "allow"
	}
}

const (
	// DefaultDashboardPath is the protected root and the post-login landing page
	DefaultDashboardPath = "/dashboard"

	// DefaultLoginPath is the guest-only login page
	DefaultLoginPath = "/auth/login"
)

// Route binds a path prefix to a class.
type Route struct {
	Prefix string
	Class  RouteClass
}

// RouteTable classifies paths by longest matching prefix.
type RouteTable struct {
	routes []Route // sorted by descending prefix length
}

// NewRouteTable builds a table from routes. Trailing slashes on prefixes are ignored.
func NewRouteTable(routes ...Route) *RouteTable {
	normalized := make([]Route, 0, len(routes))
	for _, r := range routes {
		prefix := strings.TrimRight(r.Prefix, "/")
		if prefix == "" {
			prefix = "/"
		}
		normalized = append(normalized, Route{Prefix: prefix, Class: r.Class})
	}
	sort.SliceStable(normalized, func(i, j int) bool {
		return len(normalized[i].Prefix) > len(normalized[j].Prefix)
	})
	return &RouteTable{routes: normalized}
}

// DefaultRouteTable protects the dashboard and hides the login page from signed-in users
func DefaultRouteTable() *RouteTable {
	return NewRouteTable(
		Route{Prefix: DefaultDashboardPath, Class: Protected},
		Route{Prefix: DefaultLoginPath, Class: GuestOnly},
	)
}

// Classify returns the class of the longest prefix that matches path on a
// segment boundary: "/dashboard" matches "/dashboard" and "/dashboard/x" but
// not "/dashboards".
func (t *RouteTable) Classify(path string) RouteClass {
	for _, r := range t.routes {
		if matchesPrefix(path, r.Prefix) {
			return r.Class
		}
	}
	return Unmatched
}

func matchesPrefix(path, prefix string) bool {
	if prefix == "/" {
		return strings.HasPrefix(path, "/")
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}

// Request is everything an evaluation depends on.
type Request struct {
	Path       string
	Credential string // empty when the cookie is absent
	Now        time.Time
}

// Decision is the result of evaluating a Request.
type Decision struct {
	Outcome         Outcome
	Location        string // redirect target; empty for Allow
	ClearCredential bool   // delete the credential cookie on the response
	Class           RouteClass
	Credential      session.State // left as Missing for Unmatched paths, which are never inspected
}

// Gate evaluates requests against a route table.
type Gate struct {
	routes        *RouteTable
	loginPath     string
	dashboardPath string
}

// Option customizes a Gate.
type Option func(*Gate)

// WithRoutes replaces the default route table
func WithRoutes(routes *RouteTable) Option {
	return func(g *Gate) {
		g.routes = routes
	}
}

// WithLoginPath sets the redirect target for rejected protected requests
func WithLoginPath(path string) Option {
	return func(g *Gate) {
		g.loginPath = path
	}
}

// WithDashboardPath sets the redirect target for authenticated guest-only requests
func WithDashboardPath(path string) Option {
	return func(g *Gate) {
		g.dashboardPath = path
	}
}

// New creates a Gate with the default route table and paths
func New(opts ...Option) *Gate {
	g := &Gate{
		routes:        DefaultRouteTable(),
		loginPath:     DefaultLoginPath,
		dashboardPath: DefaultDashboardPath,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Evaluate decides the outcome for req.
func (g *Gate) Evaluate(req Request) Decision {
	class := g.routes.Classify(req.Path)
	if class == Unmatched {
		return Decision{Outcome: Allow, Class: class}
	}

	inspection := session.Inspect(req.Credential, req.Now)
	decision := Decision{Outcome: Allow, Class: class, Credential: inspection.State}

	switch class {
	case Protected:
		if !inspection.Valid() {
			decision.Outcome = RedirectLogin
			decision.Location = g.loginPath
			decision.ClearCredential = true
		}
	case GuestOnly:
		if inspection.Valid() {
			decision.Outcome = RedirectDashboard
			decision.Location = g.dashboardPath
		}
	}

	return decision
}
