package cleave

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrInvalidPath indicates a path that is empty or would escape the storage root.
var ErrInvalidPath = errors.New("invalid path: escapes storage root")

// cleanKey normalizes a store key to a relative, slash-separated path.
// Prefix keys may be empty; file keys may not.
func cleanKey(key string, allowEmpty bool) (string, error) {
	slashed := filepath.ToSlash(key)
	// Rooted cleaning would silently absorb "..", so reject it outright.
	for _, seg := range strings.Split(slashed, "/") {
		if seg == ".." {
			return "", ErrInvalidPath
		}
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+slashed), "/")
	if cleaned == "" && !allowEmpty {
		return "", ErrInvalidPath
	}
	return cleaned, nil
}

// -----------------------------------------------------------------------------
// Filesystem Store
// -----------------------------------------------------------------------------

type fsStore struct {
	root string
}

// NewFS creates a filesystem-backed Store rooted at dir. The directory must
// exist.
func NewFS(dir string) (Store, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &fs.PathError{Op: "open", Path: dir, Err: fs.ErrInvalid}
	}
	return &fsStore{root: dir}, nil
}

// NewFSFactory returns a StoreFactory for NewFS(dir).
func NewFSFactory(dir string) StoreFactory {
	return func() (Store, error) { return NewFS(dir) }
}

func (f *fsStore) full(key string) (string, error) {
	k, err := cleanKey(key, false)
	if err != nil {
		return "", err
	}
	return filepath.Join(f.root, filepath.FromSlash(k)), nil
}

func (f *fsStore) Put(_ context.Context, key string, r io.Reader) error {
	p, err := f.full(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}

	file, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrPathExists
		}
		return err
	}
	if _, err := io.Copy(file, r); err != nil {
		_ = file.Close()
		_ = os.Remove(p)
		return err
	}
	return file.Close()
}

func (f *fsStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := f.full(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return file, err
}

func (f *fsStore) Exists(_ context.Context, key string) (bool, error) {
	p, err := f.full(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// List walks the directory named by prefix. Unlike the memory store, prefix is
// matched on whole path segments.
func (f *fsStore) List(_ context.Context, prefix string) ([]string, error) {
	k, err := cleanKey(prefix, true)
	if err != nil {
		return nil, err
	}
	start := filepath.Join(f.root, filepath.FromSlash(k))

	var keys []string
	err = filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(f.root, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (f *fsStore) Delete(_ context.Context, key string) error {
	p, err := f.full(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------
// Memory Store
// -----------------------------------------------------------------------------

type memoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemory creates an in-memory Store. It is safe for concurrent use.
func NewMemory() Store {
	return &memoryStore{objects: make(map[string][]byte)}
}

// NewMemoryFactory returns a StoreFactory that creates a fresh memory store.
func NewMemoryFactory() StoreFactory {
	return func() (Store, error) { return NewMemory(), nil }
}

func (m *memoryStore) Put(_ context.Context, key string, r io.Reader) error {
	k, err := cleanKey(key, false)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[k]; ok {
		return ErrPathExists
	}
	m.objects[k] = data
	return nil
}

func (m *memoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	k, err := cleanKey(key, false)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	data, ok := m.objects[k]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(data))), nil
}

func (m *memoryStore) Exists(_ context.Context, key string) (bool, error) {
	k, err := cleanKey(key, false)
	if err != nil {
		return false, err
	}

	m.mu.RLock()
	_, ok := m.objects[k]
	m.mu.RUnlock()
	return ok, nil
}

func (m *memoryStore) List(_ context.Context, prefix string) ([]string, error) {
	k, err := cleanKey(prefix, true)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for key := range m.objects {
		if strings.HasPrefix(key, k) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	k, err := cleanKey(key, false)
	if err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.objects, k)
	m.mu.Unlock()
	return nil
}
