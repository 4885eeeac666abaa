package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/landslide-report/go-auth/config"
	"github.com/landslide-report/go-auth/repository"
	"github.com/landslide-report/go-auth/tokenstore"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// openStore builds the token store selected by storage.driver.
func (a *App) openStore(ctx context.Context) error {
	s := a.cfg.Storage

	switch s.Driver {
	case config.DriverMemory:
		a.store = tokenstore.NewMemory()
		return nil

	case config.DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr: s.RedisAddr,
			DB:   s.RedisDB,
		})
		a.store = tokenstore.NewRedisStore(client, tokenstore.WithRedisKey(s.Key))
		a.closer = client
		return nil
	}

	path, err := a.cfg.StoragePath()
	if err != nil {
		return err
	}

	switch s.Driver {
	case config.DriverFile:
		a.store = tokenstore.NewFileStore(path, tokenstore.WithKey(s.Key))
		return nil

	case config.DriverEncrypted:
		store, err := tokenstore.NewEncryptedFileStore(path, s.Passphrase, tokenstore.WithEncryptedKey(s.Key))
		if err != nil {
			return err
		}
		a.store = store
		return nil

	case config.DriverSQLite:
		dsn := s.DSN
		if dsn == "" {
			if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
				return err
			}
			dsn = "file:" + path
		}

		sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
		if err != nil {
			return err
		}
		sqldb.SetMaxOpenConns(1)

		db := bun.NewDB(sqldb, sqlitedialect.New())
		repo := repository.NewTokenRepository(db, repository.WithTokenKey(s.Key))
		if err := repo.CreateTable(ctx); err != nil {
			_ = db.Close()
			return err
		}
		a.store = repo
		a.closer = db
		return nil
	}

	return fmt.Errorf("unknown storage driver %q", s.Driver)
}
