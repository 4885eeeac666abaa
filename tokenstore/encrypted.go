package tokenstore

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"sync"

	"github.com/landslide-report/go-auth"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	envelopeVersion = 1
	saltLength      = 16
)

// KDFParams are the Argon2id parameters used to derive the file key.
type KDFParams struct {
	Time        uint32 `json:"t"`
	Memory      uint32 `json:"m"`
	Parallelism uint8  `json:"p"`
}

// DefaultKDFParams follows the RFC 9106 second recommendation.
func DefaultKDFParams() KDFParams {
	return KDFParams{Time: 3, Memory: 64 * 1024, Parallelism: 4}
}

type envelope struct {
	Version    int       `json:"v"`
	KDF        KDFParams `json:"kdf"`
	Salt       []byte    `json:"salt"`
	Nonce      []byte    `json:"nonce"`
	Ciphertext []byte    `json:"ciphertext"`
}

// EncryptedFileStore keeps the token sealed with XChaCha20-Poly1305 under a
// key derived from a passphrase with Argon2id. A fresh salt and nonce are
// drawn on every save. A wrong passphrase is reported as a storage error,
// never as an absent token.
type EncryptedFileStore struct {
	mu         sync.Mutex
	path       string
	key        string
	passphrase []byte
	kdf        KDFParams
	random     io.Reader
}

// EncryptedOption customizes an EncryptedFileStore.
type EncryptedOption func(*EncryptedFileStore)

// WithKDFParams overrides the Argon2id cost for newly written files.
func WithKDFParams(p KDFParams) EncryptedOption {
	return func(s *EncryptedFileStore) {
		if p.Time > 0 && p.Memory > 0 && p.Parallelism > 0 {
			s.kdf = p
		}
	}
}

// WithEncryptedKey overrides the namespace key bound into the ciphertext.
func WithEncryptedKey(key string) EncryptedOption {
	return func(s *EncryptedFileStore) {
		o := applyOptions([]Option{WithKey(key)})
		s.key = o.key
	}
}

// NewEncryptedFileStore returns an encrypted store at path.
func NewEncryptedFileStore(path, passphrase string, opts ...EncryptedOption) (*EncryptedFileStore, error) {
	if passphrase == "" {
		return nil, auth.NewError(auth.ErrValidation, nil, map[string]any{"field": "passphrase"})
	}
	s := &EncryptedFileStore{
		path:       path,
		key:        auth.DefaultTokenKey,
		passphrase: []byte(passphrase),
		kdf:        DefaultKDFParams(),
		random:     rand.Reader,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Save implements auth.TokenStore.
func (s *EncryptedFileStore) Save(ctx context.Context, token string) error {
	if err := checkToken(token); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	env := envelope{
		Version: envelopeVersion,
		KDF:     s.kdf,
		Salt:    make([]byte, saltLength),
		Nonce:   make([]byte, chacha20poly1305.NonceSizeX),
	}
	if _, err := io.ReadFull(s.random, env.Salt); err != nil {
		return storageError(err, "save", map[string]any{"reason": "salt"})
	}
	if _, err := io.ReadFull(s.random, env.Nonce); err != nil {
		return storageError(err, "save", map[string]any{"reason": "nonce"})
	}

	aead, err := s.aead(env.Salt, env.KDF)
	if err != nil {
		return storageError(err, "save", map[string]any{"reason": "cipher"})
	}
	env.Ciphertext = aead.Seal(nil, env.Nonce, []byte(token), []byte(s.key))

	data, err := json.Marshal(env)
	if err != nil {
		return storageError(err, "encode", nil)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return storageError(err, "write", map[string]any{"path": s.path})
	}
	return nil
}

// Load implements auth.TokenStore.
func (s *EncryptedFileStore) Load(ctx context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, storageError(err, "read", map[string]any{"path": s.path})
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", false, storageError(err, "decode", map[string]any{"path": s.path})
	}
	if env.Version != envelopeVersion {
		return "", false, storageError(nil, "decode", map[string]any{"reason": "unsupported version", "version": env.Version})
	}
	if len(env.Nonce) != chacha20poly1305.NonceSizeX || len(env.Salt) == 0 {
		return "", false, storageError(nil, "decode", map[string]any{"reason": "corrupt envelope"})
	}

	aead, err := s.aead(env.Salt, env.KDF)
	if err != nil {
		return "", false, storageError(err, "load", map[string]any{"reason": "cipher"})
	}
	plain, err := aead.Open(nil, env.Nonce, env.Ciphertext, []byte(s.key))
	if err != nil {
		return "", false, storageError(err, "decrypt", map[string]any{"reason": "wrong passphrase or tampered file"})
	}
	if len(plain) == 0 {
		return "", false, nil
	}
	return string(plain), true, nil
}

// Clear implements auth.TokenStore.
func (s *EncryptedFileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return storageError(err, "clear", map[string]any{"path": s.path})
	}
	return nil
}

func (s *EncryptedFileStore) aead(salt []byte, p KDFParams) (cipher.AEAD, error) {
	if p.Time == 0 || p.Memory == 0 || p.Parallelism == 0 {
		p = DefaultKDFParams()
	}
	key := argon2.IDKey(s.passphrase, salt, p.Time, p.Memory, p.Parallelism, chacha20poly1305.KeySize)
	return chacha20poly1305.NewX(key)
}

var _ auth.TokenStore = (*EncryptedFileStore)(nil)
