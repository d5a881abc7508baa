package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/KaramelBytes/docqa-cli/internal/utils"
	"github.com/timshannon/badgerhold/v4"
)

// MemoryPersistence keeps the record in process memory only.
type MemoryPersistence struct {
	mu  sync.Mutex
	rec *Session
}

func NewMemoryPersistence() *MemoryPersistence { return &MemoryPersistence{} }

func (m *MemoryPersistence) Load() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec == nil {
		return nil, nil
	}
	cp := *m.rec
	return &cp, nil
}

func (m *MemoryPersistence) Save(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.rec = &cp
	return nil
}

func (m *MemoryPersistence) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = nil
	return nil
}

// FilePersistence stores the session as a JSON file, written atomically with
// owner-only permissions.
type FilePersistence struct {
	path string
}

func NewFilePersistence(path string) *FilePersistence { return &FilePersistence{path: path} }

// Path returns the session file location.
func (f *FilePersistence) Path() string { return f.path }

func (f *FilePersistence) Load() (*Session, error) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session file: %w", err)
	}
	if len(b) == 0 {
		return nil, nil
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse session file: %w", err)
	}
	return &s, nil
}

func (f *FilePersistence) Save(s *Session) error {
	data, err := utils.PrettyJSON(s)
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(f.path, data, 0o600)
}

func (f *FilePersistence) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

const badgerSessionKey = "session"

// BadgerPersistence stores the session record in a badgerhold store.
type BadgerPersistence struct {
	store *badgerhold.Store
}

// OpenBadgerPersistence opens (or creates) a badger database in dir.
func OpenBadgerPersistence(dir string) (*BadgerPersistence, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create session database directory: %w", err)
	}
	options := badgerhold.DefaultOptions
	options.Dir = dir
	options.ValueDir = dir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}
	return &BadgerPersistence{store: store}, nil
}

func (b *BadgerPersistence) Load() (*Session, error) {
	var s Session
	if err := b.store.Get(badgerSessionKey, &s); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &s, nil
}

func (b *BadgerPersistence) Save(s *Session) error {
	if err := b.store.Upsert(badgerSessionKey, s); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (b *BadgerPersistence) Clear() error {
	if err := b.store.Delete(badgerSessionKey, &Session{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (b *BadgerPersistence) Close() error {
	if b.store != nil {
		return b.store.Close()
	}
	return nil
}
