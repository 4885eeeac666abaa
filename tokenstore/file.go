package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/landslide-report/go-auth"
)

const (
	fileMode = 0o600
	dirMode  = 0o700
)

// FileStore keeps the token in a JSON document on disk, keyed by the
// namespace key so several apps can share one file.
type FileStore struct {
	mu   sync.Mutex
	path string
	key  string
}

// Option customizes the disk backed stores.
type Option func(*options)

type options struct {
	key string
}

// WithKey overrides the namespace key.
func WithKey(key string) Option {
	return func(o *options) {
		if strings.TrimSpace(key) != "" {
			o.key = key
		}
	}
}

func applyOptions(opts []Option) options {
	o := options{key: auth.DefaultTokenKey}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// NewFileStore returns a store backed by the file at path.
func NewFileStore(path string, opts ...Option) *FileStore {
	o := applyOptions(opts)
	return &FileStore{path: path, key: o.key}
}

// DefaultPath returns the per user location used when no path is configured.
func DefaultPath(name string) (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "landslide", name), nil
}

// Path returns the backing file location.
func (s *FileStore) Path() string {
	return s.path
}

// Save implements auth.TokenStore.
func (s *FileStore) Save(ctx context.Context, token string) error {
	if err := checkToken(token); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	doc[s.key] = token
	return s.write(doc)
}

// Load implements auth.TokenStore.
func (s *FileStore) Load(ctx context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return "", false, err
	}
	token, ok := doc[s.key]
	if !ok || token == "" {
		return "", false, nil
	}
	return token, true, nil
}

// Clear implements auth.TokenStore.
func (s *FileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := doc[s.key]; !ok {
		return nil
	}
	delete(doc, s.key)

	if len(doc) == 0 {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return storageError(err, "clear", map[string]any{"path": s.path})
		}
		return nil
	}
	return s.write(doc)
}

func (s *FileStore) read() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, storageError(err, "read", map[string]any{"path": s.path})
	}

	doc := map[string]string{}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, storageError(err, "decode", map[string]any{"path": s.path})
	}
	return doc, nil
}

func (s *FileStore) write(doc map[string]string) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return storageError(err, "encode", map[string]any{"path": s.path})
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return storageError(err, "write", map[string]any{"path": s.path})
	}
	return nil
}

// writeFileAtomic writes data to a temp file in the same directory and
// renames it over path so readers never observe a partial document.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(fileMode); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

var _ auth.TokenStore = (*FileStore)(nil)
