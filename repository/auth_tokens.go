package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/landslide-report/go-auth"
	"github.com/uptrace/bun"
)

// AuthTokenModel is the Bun model for the persisted bearer token.
type AuthTokenModel struct {
	bun.BaseModel `bun:"table:auth_tokens"`

	Key       string    `bun:"token_key,pk"`
	Token     string    `bun:"token,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// TokenRepository implements auth.TokenStore on a SQL table via Bun.
// One row is kept per namespace key.
type TokenRepository struct {
	db  *bun.DB
	key string
	now func() time.Time
}

// TokenRepositoryOption customizes a TokenRepository.
type TokenRepositoryOption func(*TokenRepository)

// WithTokenKey overrides the namespace key.
func WithTokenKey(key string) TokenRepositoryOption {
	return func(r *TokenRepository) {
		if strings.TrimSpace(key) != "" {
			r.key = key
		}
	}
}

// WithTokenClock overrides the updated_at time source.
func WithTokenClock(now func() time.Time) TokenRepositoryOption {
	return func(r *TokenRepository) {
		if now != nil {
			r.now = now
		}
	}
}

// NewTokenRepository creates a new repository.
func NewTokenRepository(db *bun.DB, opts ...TokenRepositoryOption) *TokenRepository {
	r := &TokenRepository{
		db:  db,
		key: auth.DefaultTokenKey,
		now: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// CreateTable creates the auth_tokens table when missing.
func (r *TokenRepository) CreateTable(ctx context.Context) error {
	_, err := r.db.NewCreateTable().
		Model((*AuthTokenModel)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return auth.NewError(auth.ErrStorage, err, map[string]any{"operation": "create_table"})
	}
	return nil
}

// Save implements auth.TokenStore.
func (r *TokenRepository) Save(ctx context.Context, token string) error {
	if token == "" {
		return auth.NewError(auth.ErrValidation, nil, map[string]any{"field": "token"})
	}

	model := &AuthTokenModel{
		Key:       r.key,
		Token:     token,
		UpdatedAt: r.now(),
	}

	_, err := r.db.NewInsert().
		Model(model).
		On("CONFLICT (token_key) DO UPDATE").
		Set("token = EXCLUDED.token").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return auth.NewError(auth.ErrStorage, err, map[string]any{"operation": "save"})
	}
	return nil
}

// Load implements auth.TokenStore.
func (r *TokenRepository) Load(ctx context.Context) (string, bool, error) {
	var model AuthTokenModel
	err := r.db.NewSelect().
		Model(&model).
		Where("token_key = ?", r.key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, auth.NewError(auth.ErrStorage, err, map[string]any{"operation": "load"})
	}
	if model.Token == "" {
		return "", false, nil
	}
	return model.Token, true, nil
}

// Clear implements auth.TokenStore.
func (r *TokenRepository) Clear(ctx context.Context) error {
	_, err := r.db.NewDelete().
		Model((*AuthTokenModel)(nil)).
		Where("token_key = ?", r.key).
		Exec(ctx)
	if err != nil {
		return auth.NewError(auth.ErrStorage, err, map[string]any{"operation": "clear"})
	}
	return nil
}

// UpdatedAt returns when the token was last saved.
func (r *TokenRepository) UpdatedAt(ctx context.Context) (time.Time, bool, error) {
	var model AuthTokenModel
	err := r.db.NewSelect().
		Model(&model).
		Column("updated_at").
		Where("token_key = ?", r.key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, auth.NewError(auth.ErrStorage, err, map[string]any{"operation": "load"})
	}
	return model.UpdatedAt, true, nil
}
