// Package config loads the client configuration from built in defaults, an
// optional YAML or JSON file, LANDSLIDE_ environment variables and command
// line flags, in that order of precedence.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/landslide-report/go-auth"
	"github.com/spf13/pflag"
)

const (
	EnvPrefix = "LANDSLIDE_"

	DriverMemory    = "memory"
	DriverFile      = "file"
	DriverEncrypted = "encrypted"
	DriverSQLite    = "sqlite"
	DriverRedis     = "redis"
)

// Config is the resolved client configuration
type Config struct {
	API     API     `koanf:"api" json:"api"`
	Storage Storage `koanf:"storage" json:"storage"`
	Content Content `koanf:"content" json:"content"`
	Session Session `koanf:"session" json:"session"`
	Log     Log     `koanf:"log" json:"log"`
}

type API struct {
	BaseURL string        `koanf:"base_url" json:"base_url"`
	Timeout time.Duration `koanf:"timeout" json:"timeout"`
}

type Storage struct {
	Driver     string `koanf:"driver" json:"driver"`
	Path       string `koanf:"path" json:"path"`
	Key        string `koanf:"key" json:"key"`
	Passphrase string `koanf:"passphrase" json:"-"`
	DSN        string `koanf:"dsn" json:"dsn"`
	RedisAddr  string `koanf:"redis_addr" json:"redis_addr"`
	RedisDB    int    `koanf:"redis_db" json:"redis_db"`
}

type Content struct {
	APIKey       string        `koanf:"api_key" json:"-"`
	Model        string        `koanf:"model" json:"model"`
	BaseURL      string        `koanf:"base_url" json:"base_url"`
	MaxAttempts  int           `koanf:"max_attempts" json:"max_attempts"`
	InitialDelay time.Duration `koanf:"initial_delay" json:"initial_delay"`
}

type Session struct {
	RehydrateAttempts int  `koanf:"rehydrate_attempts" json:"rehydrate_attempts"`
	CheckExpiry       bool `koanf:"check_expiry" json:"check_expiry"`
}

type Log struct {
	Level  string `koanf:"level" json:"level"`
	Pretty bool   `koanf:"pretty" json:"pretty"`
}

// Defaults returns the built in values.
func Defaults() map[string]any {
	return map[string]any{
		"api.base_url":               "http://127.0.0.1:8000",
		"api.timeout":                "10s",
		"storage.driver":             DriverFile,
		"storage.path":               "",
		"storage.key":                auth.DefaultTokenKey,
		"storage.redis_addr":         "127.0.0.1:6379",
		"storage.redis_db":           0,
		"content.model":              "gemini-2.5-flash-preview-05-20",
		"content.base_url":           "https://generativelanguage.googleapis.com",
		"content.max_attempts":       5,
		"content.initial_delay":      "1s",
		"session.rehydrate_attempts": 1,
		"session.check_expiry":       true,
		"log.level":                  "info",
		"log.pretty":                 true,
	}
}

var flagKeys = map[string]string{
	"api-url":        "api.base_url",
	"api-timeout":    "api.timeout",
	"storage-driver": "storage.driver",
	"storage-path":   "storage.path",
	"storage-dsn":    "storage.dsn",
	"redis-addr":     "storage.redis_addr",
	"log-level":      "log.level",
}

// Flags registers the overridable settings on fs.
func Flags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a YAML or JSON config file")
	fs.String("api-url", "", "backend base URL")
	fs.Duration("api-timeout", 0, "backend request timeout")
	fs.String("storage-driver", "", "token storage driver: memory, file, encrypted, sqlite, redis")
	fs.String("storage-path", "", "token file path for file, encrypted and sqlite drivers")
	fs.String("storage-dsn", "", "sqlite DSN, overrides storage-path")
	fs.String("redis-addr", "", "redis address for the redis driver")
	fs.String("log-level", "", "log level: trace, debug, info, warn, error")
}

// Load resolves the configuration. path may be empty; flags may be nil.
func Load(ctx context.Context, path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load config defaults")
	}

	if path == "" && flags != nil {
		if f := flags.Lookup("config"); f != nil && f.Changed {
			path = f.Value.String()
		}
	}

	if path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, fmt.Sprintf("failed to read config file %s", path))
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load environment")
	}

	if key := os.Getenv("GEMINI_API_KEY"); key != "" && k.String("content.api_key") == "" {
		_ = k.Set("content.api_key", key)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, flagKey(flags)), nil); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load flags")
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to decode config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate will run validation rules
func (c Config) Validate() error {
	if err := goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&c.API,
			validation.Field(&c.API.BaseURL, validation.Required, is.URL),
			validation.Field(&c.API.Timeout, validation.Min(time.Duration(0))),
		)
	}, "Invalid api configuration"); err != nil {
		return err
	}

	s := c.Storage
	if err := goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&s,
			validation.Field(&s.Driver, validation.Required, validation.In(
				DriverMemory, DriverFile, DriverEncrypted, DriverSQLite, DriverRedis,
			)),
			validation.Field(&s.Key, validation.Required),
			validation.Field(&s.Passphrase, requiredIf(s.Driver == DriverEncrypted)...),
			validation.Field(&s.RedisAddr, requiredIf(s.Driver == DriverRedis)...),
		)
	}, "Invalid storage configuration"); err != nil {
		return err
	}

	if err := goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&c.Content,
			validation.Field(&c.Content.BaseURL, validation.Required, is.URL),
			validation.Field(&c.Content.Model, validation.Required),
			validation.Field(&c.Content.MaxAttempts, validation.Required, validation.Min(1)),
		)
	}, "Invalid content configuration"); err != nil {
		return err
	}

	return nil
}

// StoragePath returns the configured token file, defaulting per driver under
// the user config directory.
func (c Config) StoragePath() (string, error) {
	if c.Storage.Path != "" {
		return c.Storage.Path, nil
	}
	name := "session.json"
	switch c.Storage.Driver {
	case DriverEncrypted:
		name = "session.enc"
	case DriverSQLite:
		name = "session.db"
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve user config dir")
	}
	return filepath.Join(dir, "landslide", name), nil
}

func requiredIf(cond bool) []validation.Rule {
	if cond {
		return []validation.Rule{validation.Required}
	}
	return nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, goerrors.New(fmt.Sprintf("unsupported config file extension %q", filepath.Ext(path)), goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"path": path})
	}
}

// envKey maps LANDSLIDE_STORAGE_REDIS_ADDR to storage.redis_addr: the first
// underscore separates the section.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, rest, found := strings.Cut(s, "_")
	if !found {
		return s
	}
	return section + "." + rest
}

func flagKey(fs *pflag.FlagSet) func(f *pflag.Flag) (string, any) {
	return func(f *pflag.Flag) (string, any) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(fs, f)
	}
}
