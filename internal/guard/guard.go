// Package guard decides on every navigation whether a screen may render,
// based only on the current session.
package guard

import (
	"net/url"
	"strings"
	"sync"
)

// Route is a screen path.
type Route string

const (
	RouteRoot      Route = "/"
	RouteLogin     Route = "/login"
	RouteRegister  Route = "/register"
	RouteDashboard Route = "/dashboard"
	RouteDocuments Route = "/documents"
	RouteQA        Route = "/qa"
)

// State is the guard's view of the session.
type State int

const (
	Public State = iota
	Protected
)

func (s State) String() string {
	if s == Protected {
		return "protected"
	}
	return "public"
}

var (
	publicRoutes    = map[Route]bool{RouteLogin: true, RouteRegister: true}
	protectedRoutes = map[Route]bool{RouteDashboard: true, RouteDocuments: true, RouteQA: true}
)

// IsProtected reports whether r needs a session.
func IsProtected(r Route) bool { return protectedRoutes[r] }

// Authenticator is satisfied by *session.Store.
type Authenticator interface {
	IsAuthenticated() bool
}

// Decision is the outcome of resolving a path.
type Decision struct {
	Requested  string
	Route      Route
	Redirected bool
}

// Guard resolves navigations. It never caches a decision.
type Guard struct {
	auth Authenticator

	mu      sync.Mutex
	current Route
	expired bool
}

func New(auth Authenticator) *Guard {
	return &Guard{auth: auth}
}

// State reports Protected when a session exists.
func (g *Guard) State() State {
	if g.auth.IsAuthenticated() {
		return Protected
	}
	return Public
}

// Resolve maps a requested path to the screen that may render.
func (g *Guard) Resolve(path string) Decision {
	d := Decision{Requested: path}
	r := normalize(path)
	authed := g.auth.IsAuthenticated()
	switch {
	case publicRoutes[r]:
		if authed {
			r = RouteDashboard
		}
	case IsProtected(r):
		if !authed {
			r = RouteLogin
		}
	default:
		// "/" and unknown paths land on the default route for the current state
		if authed {
			r = RouteDashboard
		} else {
			r = RouteLogin
		}
	}
	d.Route = r
	d.Redirected = Route(path) != r
	return d
}

// Navigate resolves path and records the resulting screen as current.
func (g *Guard) Navigate(path string) Decision {
	d := g.Resolve(path)
	g.mu.Lock()
	g.current = d.Route
	g.mu.Unlock()
	return d
}

// Current returns the last navigated screen ("" before the first navigation).
func (g *Guard) Current() Route {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// SignalExpired records that the backend rejected the session. It is
// registered as a gateway hook.
func (g *Guard) SignalExpired() {
	g.mu.Lock()
	g.expired = true
	g.mu.Unlock()
}

// PendingRedirect returns the login route once after SignalExpired, and only
// if the current screen is protected or unknown. It resets the signal.
func (g *Guard) PendingRedirect() (Route, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.expired {
		return "", false
	}
	g.expired = false
	if publicRoutes[g.current] {
		return "", false
	}
	g.current = RouteLogin
	return RouteLogin, true
}

func normalize(path string) Route {
	p := strings.TrimSpace(path)
	if u, err := url.Parse(p); err == nil {
		p = u.Path
	}
	if p == "" {
		return RouteRoot
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}
	return Route(strings.ToLower(p))
}
