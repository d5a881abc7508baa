package guard_test

import (
	"testing"

	"github.com/KaramelBytes/docqa-cli/internal/guard"
	"github.com/KaramelBytes/docqa-cli/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuth struct{ ok bool }

func (f *fakeAuth) IsAuthenticated() bool { return f.ok }

func TestResolve(t *testing.T) {
	cases := []struct {
		name   string
		authed bool
		path   string
		want   guard.Route
		redir  bool
	}{
		{"login public", false, "/login", guard.RouteLogin, false},
		{"register public", false, "/register", guard.RouteRegister, false},
		{"login when authed", true, "/login", guard.RouteDashboard, true},
		{"register when authed", true, "/register", guard.RouteDashboard, true},
		{"dashboard without session", false, "/dashboard", guard.RouteLogin, true},
		{"documents without session", false, "/documents", guard.RouteLogin, true},
		{"qa without session", false, "/qa", guard.RouteLogin, true},
		{"qa with session", true, "/qa", guard.RouteQA, false},
		{"root without session", false, "/", guard.RouteLogin, true},
		{"root with session", true, "/", guard.RouteDashboard, true},
		{"unknown without session", false, "/nope", guard.RouteLogin, true},
		{"unknown with session", true, "/settings/x", guard.RouteDashboard, true},
		{"trailing slash and query", true, "/documents/?page=2", guard.RouteDocuments, true},
		{"bare name", true, "qa", guard.RouteQA, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			g := guard.New(&fakeAuth{ok: c.authed})
			d := g.Resolve(c.path)
			assert.Equal(t, c.want, d.Route)
			assert.Equal(t, c.redir, d.Redirected)
		})
	}
}

func TestIsProtected(t *testing.T) {
	for _, r := range []guard.Route{guard.RouteDashboard, guard.RouteDocuments, guard.RouteQA} {
		assert.True(t, guard.IsProtected(r), r)
	}
	for _, r := range []guard.Route{guard.RouteLogin, guard.RouteRegister, guard.RouteRoot, guard.Route("/nope")} {
		assert.False(t, guard.IsProtected(r), r)
	}
}

func TestResolveIsReevaluatedEveryTime(t *testing.T) {
	auth := &fakeAuth{ok: true}
	g := guard.New(auth)
	assert.Equal(t, guard.RouteDocuments, g.Resolve("/documents").Route)
	assert.Equal(t, guard.Protected, g.State())
	auth.ok = false
	assert.Equal(t, guard.RouteLogin, g.Resolve("/documents").Route)
	assert.Equal(t, guard.Public, g.State())
}

func TestClearSessionRedirectsProtectedNavigation(t *testing.T) {
	store, err := session.Open(nil)
	require.NoError(t, err)
	require.NoError(t, store.SetSession("tok", session.User{ID: "u"}))
	g := guard.New(store)
	assert.Equal(t, guard.RouteQA, g.Navigate("/qa").Route)

	require.NoError(t, store.ClearSession())
	assert.False(t, store.IsAuthenticated())
	for _, r := range []guard.Route{guard.RouteDashboard, guard.RouteDocuments, guard.RouteQA} {
		assert.Equal(t, guard.RouteLogin, g.Resolve(string(r)).Route)
	}
}

func TestPendingRedirectAfterExpiry(t *testing.T) {
	g := guard.New(&fakeAuth{ok: true})
	g.Navigate("/documents")

	_, ok := g.PendingRedirect()
	assert.False(t, ok)

	g.SignalExpired()
	r, ok := g.PendingRedirect()
	require.True(t, ok)
	assert.Equal(t, guard.RouteLogin, r)
	assert.Equal(t, guard.RouteLogin, g.Current())

	_, ok = g.PendingRedirect()
	assert.False(t, ok, "signal is consumed")
}

func TestPendingRedirectIgnoredOnPublicScreen(t *testing.T) {
	g := guard.New(&fakeAuth{ok: false})
	g.Navigate("/login")
	g.SignalExpired()
	_, ok := g.PendingRedirect()
	assert.False(t, ok)
}
