package documents

import (
	"context"
	"fmt"
	"sync"

	"github.com/KaramelBytes/docqa-cli/internal/gateway"
)

// Generations is satisfied by *session.Store.
type Generations interface {
	Generation() uint64
	Current(gen uint64) bool
}

// Confirmer asks the user whether doc may be deleted.
type Confirmer func(doc Document) bool

// Library is the documents screen state: the last authoritative list and a
// selection held by id only.
type Library struct {
	client *Client
	gens   Generations

	mu         sync.Mutex
	docs       []Document
	loaded     bool
	selectedID string
	issued     uint64
	applied    uint64
}

func NewLibrary(client *Client, gens Generations) *Library {
	return &Library{client: client, gens: gens}
}

// Refresh refetches the whole list. On failure the previous list stays.
func (l *Library) Refresh(ctx context.Context) ([]Document, error) {
	gen := l.gens.Generation()
	l.mu.Lock()
	l.issued++
	seq := l.issued
	l.mu.Unlock()

	docs, err := l.client.List(ctx)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.gens.Current(gen) {
		return nil, gateway.ErrStale
	}
	if seq > l.applied {
		l.docs = docs
		l.loaded = true
		l.applied = seq
	}
	return l.snapshot(), nil
}

// Documents returns the cached list and whether it has been loaded.
func (l *Library) Documents() ([]Document, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot(), l.loaded
}

// Select marks the cached document id as selected.
func (l *Library) Select(id string) (Document, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, d := range l.docs {
		if d.ID == id {
			l.selectedID = id
			return d, nil
		}
	}
	return Document{}, gateway.Invalid("document_id", "Document not found")
}

// Selected resolves the selection against the cached list. A selection whose
// document is no longer listed is dropped.
func (l *Library) Selected() (Document, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.selectedID == "" {
		return Document{}, false
	}
	for _, d := range l.docs {
		if d.ID == l.selectedID {
			return d, true
		}
	}
	l.selectedID = ""
	return Document{}, false
}

// ClearSelection drops the selection.
func (l *Library) ClearSelection() {
	l.mu.Lock()
	l.selectedID = ""
	l.mu.Unlock()
}

// Upload sends f and then refreshes the list. A refresh failure is returned
// alongside the created document.
func (l *Library) Upload(ctx context.Context, f File) (*Document, error) {
	doc, err := l.client.Upload(ctx, f)
	if err != nil {
		return nil, err
	}
	if _, err := l.Refresh(ctx); err != nil {
		return doc, fmt.Errorf("refresh after upload: %w", err)
	}
	return doc, nil
}

// Delete asks confirm, deletes id, clears a matching selection and refreshes.
// It reports false with a nil error when the user declined. A failed delete
// leaves the list and selection untouched.
func (l *Library) Delete(ctx context.Context, id string, confirm Confirmer) (bool, error) {
	target := Document{ID: id}
	l.mu.Lock()
	for _, d := range l.docs {
		if d.ID == id {
			target = d
			break
		}
	}
	l.mu.Unlock()

	if confirm == nil || !confirm(target) {
		return false, nil
	}
	if err := l.client.Delete(ctx, id); err != nil {
		return false, err
	}

	l.mu.Lock()
	if l.selectedID == id {
		l.selectedID = ""
	}
	l.mu.Unlock()

	if _, err := l.Refresh(ctx); err != nil {
		// the cached list still names the deleted document; drop it rather than patch it
		l.mu.Lock()
		l.docs = nil
		l.loaded = false
		l.mu.Unlock()
		return true, fmt.Errorf("refresh after delete: %w", err)
	}
	return true, nil
}

// Invalidate discards the cached list and selection.
func (l *Library) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.docs = nil
	l.loaded = false
	l.selectedID = ""
	l.applied = l.issued
}

func (l *Library) snapshot() []Document {
	out := make([]Document, len(l.docs))
	copy(out, l.docs)
	return out
}
