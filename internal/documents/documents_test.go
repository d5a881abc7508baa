package documents_test

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/KaramelBytes/docqa-cli/internal/backendtest"
	"github.com/KaramelBytes/docqa-cli/internal/documents"
	"github.com/KaramelBytes/docqa-cli/internal/gateway"
	"github.com/KaramelBytes/docqa-cli/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	srv   *backendtest.Server
	store *session.Store
	gw    *gateway.Client
	lib   *documents.Library
}

func setup(t *testing.T) fixture {
	t.Helper()
	srv := backendtest.New(t)
	store, err := session.Open(nil)
	require.NoError(t, err)
	id := srv.AddUser("alice", "a@b.com", "secret1")
	require.NoError(t, store.SetSession(srv.Token(id), session.User{ID: id, Username: "alice", Email: "a@b.com"}))
	gw := gateway.New(srv.URL, store)
	return fixture{srv: srv, store: store, gw: gw, lib: documents.NewLibrary(documents.NewClient(gw), store)}
}

func textFile(name, body string) documents.File {
	return documents.File{
		Name: name,
		Size: int64(len(body)),
		MIME: documents.MIMEText,
		Open: func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader(body)), nil },
	}
}

func always(documents.Document) bool { return true }

const (
	defaultWait = 2 * time.Second
	tick        = 5 * time.Millisecond
)

func TestUploadRejectedLocally(t *testing.T) {
	f := setup(t)
	opened := false
	open := func() (io.ReadCloser, error) {
		opened = true
		return io.NopCloser(strings.NewReader("x")), nil
	}
	cases := []struct {
		name string
		file documents.File
		msg  string
	}{
		{"too large", documents.File{Name: "big.pdf", Size: documents.MaxUploadSize + 1, MIME: documents.MIMEPDF, Open: open}, "File size must be less than 1GB"},
		{"image", documents.File{Name: "cat.png", Size: 10, MIME: "image/png", Open: open}, "Only PDF, DOCX, and TXT files are allowed"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := f.lib.Upload(context.Background(), c.file)
			require.Error(t, err)
			assert.True(t, gateway.IsValidation(err))
			assert.Equal(t, c.msg, gateway.UserMessage(err))
		})
	}
	assert.Equal(t, 0, f.srv.TotalHits())
	assert.False(t, opened)
}

func TestValidateBoundary(t *testing.T) {
	assert.NoError(t, documents.Validate(documents.File{Size: documents.MaxUploadSize, MIME: documents.MIMEPDF}))
	assert.NoError(t, documents.Validate(documents.File{Size: 0, MIME: "text/plain; charset=utf-8"}))
	assert.NoError(t, documents.Validate(documents.File{Size: 1, MIME: documents.MIMEDOCX}))
}

func TestFileFromPathSniffsText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("plain words here. ", 100)), 0o644))
	file, err := documents.FileFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", file.Name)
	assert.Equal(t, int64(1800), file.Size)
	assert.NoError(t, documents.Validate(file))
}

func TestFileFromPathRejectsJSONAsText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"a": [1, 2, 3]}`), 0o644))
	file, err := documents.FileFromPath(path)
	require.NoError(t, err)
	assert.Error(t, documents.Validate(file))
}

func TestUploadThenRefresh(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	doc, err := f.lib.Upload(ctx, textFile("a.txt", strings.Repeat("x", 2048)))
	require.NoError(t, err)
	assert.Equal(t, "a.txt", doc.Filename)
	assert.Equal(t, 3, doc.ChunksCount)
	assert.False(t, doc.UploadedAt.IsZero())

	docs, loaded := f.lib.Documents()
	require.True(t, loaded)
	require.Len(t, docs, 1)
	assert.Equal(t, doc.ID, docs[0].ID)
	assert.Equal(t, 1, f.srv.Hits(http.MethodGet, "/api/documents/list"))
}

func TestDeleteClearsSelectionAndRefreshes(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	keep, err := f.lib.Upload(ctx, textFile("keep.txt", "one"))
	require.NoError(t, err)
	gone, err := f.lib.Upload(ctx, textFile("gone.txt", "two"))
	require.NoError(t, err)

	_, err = f.lib.Select(gone.ID)
	require.NoError(t, err)

	var asked documents.Document
	deleted, err := f.lib.Delete(ctx, gone.ID, func(d documents.Document) bool { asked = d; return true })
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, "gone.txt", asked.Filename)

	_, ok := f.lib.Selected()
	assert.False(t, ok)
	docs, _ := f.lib.Documents()
	require.Len(t, docs, 1)
	assert.Equal(t, keep.ID, docs[0].ID)

	listed, err := documents.NewClient(f.gw).List(ctx)
	require.NoError(t, err)
	for _, d := range listed {
		assert.NotEqual(t, gone.ID, d.ID)
	}
}

func TestDeleteDeclinedSendsNothing(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	doc, err := f.lib.Upload(ctx, textFile("a.txt", "body"))
	require.NoError(t, err)

	deleted, err := f.lib.Delete(ctx, doc.ID, func(documents.Document) bool { return false })
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Equal(t, 0, f.srv.Hits(http.MethodDelete, "/api/documents/:id"))
}

func TestFailedDeleteChangesNothing(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	doc, err := f.lib.Upload(ctx, textFile("a.txt", "body"))
	require.NoError(t, err)
	_, err = f.lib.Select(doc.ID)
	require.NoError(t, err)

	f.srv.FailNext(http.MethodDelete, "/api/documents/:id", http.StatusInternalServerError, nil)
	deleted, err := f.lib.Delete(ctx, doc.ID, always)
	require.Error(t, err)
	assert.False(t, deleted)
	assert.Equal(t, "Failed to delete document", gateway.UserMessage(err))

	docs, _ := f.lib.Documents()
	require.Len(t, docs, 1)
	sel, ok := f.lib.Selected()
	require.True(t, ok)
	assert.Equal(t, doc.ID, sel.ID)
}

func TestDeleteMissingDocumentCarriesBackendMessage(t *testing.T) {
	f := setup(t)
	_, err := f.lib.Delete(context.Background(), "nope", always)
	require.Error(t, err)
	assert.Equal(t, "Document not found", gateway.UserMessage(err))
}

func TestSelectUnknownIsValidation(t *testing.T) {
	f := setup(t)
	_, err := f.lib.Select("missing")
	assert.True(t, gateway.IsValidation(err))
}

func TestSelectionIsWeak(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	doc, err := f.lib.Upload(ctx, textFile("a.txt", "body"))
	require.NoError(t, err)
	_, err = f.lib.Select(doc.ID)
	require.NoError(t, err)

	// removed behind the library's back
	require.NoError(t, documents.NewClient(f.gw).Delete(ctx, doc.ID))
	_, err = f.lib.Refresh(ctx)
	require.NoError(t, err)
	_, ok := f.lib.Selected()
	assert.False(t, ok)
}

func TestRefreshFailureKeepsPreviousList(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.lib.Upload(ctx, textFile("a.txt", "body"))
	require.NoError(t, err)

	f.srv.FailNext(http.MethodGet, "/api/documents/list", http.StatusBadGateway, gin.H{"error": "upstream down"})
	_, err = f.lib.Refresh(ctx)
	require.Error(t, err)
	assert.Equal(t, "upstream down", gateway.UserMessage(err))
	docs, loaded := f.lib.Documents()
	assert.True(t, loaded)
	assert.Len(t, docs, 1)
}

func TestRefreshFromOlderSessionIsDiscarded(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	release := f.srv.Hold(http.MethodGet, "/api/documents/list")

	done := make(chan error, 1)
	go func() {
		_, err := f.lib.Refresh(ctx)
		done <- err
	}()
	// wait until the request is parked on the server
	require.Eventually(t, func() bool { return f.srv.Hits(http.MethodGet, "/api/documents/list") == 1 }, defaultWait, tick)
	require.NoError(t, f.store.ClearSession())
	f.lib.Invalidate()
	release()

	require.ErrorIs(t, <-done, gateway.ErrStale)
	docs, loaded := f.lib.Documents()
	assert.False(t, loaded)
	assert.Empty(t, docs)
}

func TestGetDocument(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	doc, err := f.lib.Upload(ctx, textFile("a.txt", "body"))
	require.NoError(t, err)
	got, err := documents.NewClient(f.gw).Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.Filename, got.Filename)
	assert.Equal(t, int64(4), got.FileSize)
}
