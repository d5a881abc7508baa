package session_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/KaramelBytes/docqa-cli/internal/session"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alice = session.User{ID: "u-1", Username: "alice", Email: "a@b.com"}

func TestStoreSetGetClear(t *testing.T) {
	s, err := session.Open(session.NewMemoryPersistence())
	require.NoError(t, err)
	assert.False(t, s.IsAuthenticated())

	require.NoError(t, s.SetSession("tok", alice))
	assert.True(t, s.IsAuthenticated())
	got, ok := s.Session()
	require.True(t, ok)
	assert.Equal(t, "tok", got.Token)
	assert.Equal(t, alice, got.User)

	require.NoError(t, s.ClearSession())
	assert.False(t, s.IsAuthenticated())
	_, ok = s.Session()
	assert.False(t, ok)
}

func TestSetSessionRejectsEmptyToken(t *testing.T) {
	s, err := session.Open(nil)
	require.NoError(t, err)
	require.Error(t, s.SetSession("", alice))
	assert.False(t, s.IsAuthenticated())
}

func TestGenerationDetectsStaleness(t *testing.T) {
	s, err := session.Open(nil)
	require.NoError(t, err)
	require.NoError(t, s.SetSession("tok", alice))

	gen := s.Generation()
	assert.True(t, s.Current(gen))

	require.NoError(t, s.ClearSession())
	assert.False(t, s.Current(gen), "result started before logout must be stale")

	require.NoError(t, s.SetSession("tok", alice))
	assert.False(t, s.Current(gen), "a new login is a new generation even with the same token")
}

func TestFilePersistenceRehydrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "session.json")
	s, err := session.Open(session.NewFilePersistence(path))
	require.NoError(t, err)
	require.NoError(t, s.SetSession("tok-file", alice))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reopened, err := session.Open(session.NewFilePersistence(path))
	require.NoError(t, err)
	got, ok := reopened.Session()
	require.True(t, ok)
	assert.Equal(t, "tok-file", got.Token)
	assert.Equal(t, "alice", got.User.Username)

	require.NoError(t, reopened.ClearSession())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestFilePersistenceCorruptRecordIsCleared(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s, err := session.Open(session.NewFilePersistence(path))
	require.Error(t, err)
	require.NotNil(t, s)
	assert.False(t, s.IsAuthenticated())
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestBadgerPersistenceRehydrates(t *testing.T) {
	dir := t.TempDir()
	p, err := session.OpenBadgerPersistence(dir)
	require.NoError(t, err)
	s, err := session.Open(p)
	require.NoError(t, err)
	require.NoError(t, s.SetSession("tok-badger", alice))
	require.NoError(t, p.Close())

	p2, err := session.OpenBadgerPersistence(dir)
	require.NoError(t, err)
	defer p2.Close()
	s2, err := session.Open(p2)
	require.NoError(t, err)
	assert.Equal(t, "tok-badger", s2.Token())

	require.NoError(t, s2.ClearSession())
	rec, err := p2.Load()
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, s2.ClearSession(), "clearing twice is fine")
}

func TestReloadPicksUpExternalLogout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	p := session.NewFilePersistence(path)
	s, err := session.Open(p)
	require.NoError(t, err)
	require.NoError(t, s.SetSession("tok", alice))
	gen := s.Generation()

	// another process logs out
	require.NoError(t, session.NewFilePersistence(path).Clear())
	require.NoError(t, s.Reload())
	assert.False(t, s.IsAuthenticated())
	assert.False(t, s.Current(gen))
}

func TestWatchFileNotifiesOnExternalWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.json")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 8)
	require.NoError(t, session.WatchFile(ctx, path, func() { changed <- struct{}{} }))

	other, err := session.Open(session.NewFilePersistence(path))
	require.NoError(t, err)
	require.NoError(t, other.SetSession("tok", alice))

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("expected change notification")
	}
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u-1", "exp": exp.Unix()}).SignedString([]byte("k"))
	require.NoError(t, err)

	got, ok := session.TokenExpiry(tok)
	require.True(t, ok)
	assert.True(t, got.Equal(exp))

	_, ok = session.TokenExpiry("opaque-token")
	assert.False(t, ok)
}
