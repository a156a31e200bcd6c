// Package config loads promptvault settings from defaults, a YAML file,
// a .env file and PROMPTVAULT_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/nainya/promptvault/pkg/comment"
	"github.com/nainya/promptvault/pkg/storage"
	"github.com/nainya/promptvault/pkg/version"
)

// Config is the full server configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Versioning VersioningConfig `yaml:"versioning"`
	Comments   CommentsConfig   `yaml:"comments"`
	Log        LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	GRPCPort          int `yaml:"grpc_port"`
	ObservabilityPort int `yaml:"observability_port"` // 0 disables /metrics and pprof
	MaxMessageBytes   int `yaml:"max_message_bytes"`
}

type StorageConfig struct {
	Driver     string        `yaml:"driver"` // badger or sqlite
	Path       string        `yaml:"path"`
	InMemory   bool          `yaml:"in_memory"`
	SyncWrites bool          `yaml:"sync_writes"`
	GCInterval time.Duration `yaml:"gc_interval"`
}

type VersioningConfig struct {
	MaxAppendAttempts int           `yaml:"max_append_attempts"`
	RetryBackoff      time.Duration `yaml:"retry_backoff"`
}

type CommentsConfig struct {
	MaxLength int `yaml:"max_length"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Server: ServerConfig{
			GRPCPort:          50051,
			ObservabilityPort: 9090,
			MaxMessageBytes:   16 * 1024 * 1024,
		},
		Storage: StorageConfig{
			Driver:     storage.DriverBadger,
			Path:       "promptvault-data",
			SyncWrites: true,
			GCInterval: 5 * time.Minute,
		},
		Versioning: VersioningConfig{
			MaxAppendAttempts: version.DefaultMaxAttempts,
			RetryBackoff:      version.DefaultBackoff,
		},
		Comments: CommentsConfig{
			MaxLength: comment.DefaultMaxLength,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Options selects the files Load reads
type Options struct {
	// Path is a YAML config file. Empty skips it.
	Path string

	// EnvFile is loaded into the process environment if it exists.
	// Variables already set are not overridden.
	EnvFile string
}

// Load builds a Config from defaults, the YAML file, the env file and the environment
func Load(opts Options) (Config, error) {
	cfg := Default()

	if opts.Path != "" {
		data, err := os.ReadFile(opts.Path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", opts.Path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", opts.Path, err)
		}
	}

	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load env file %s: %w", opts.EnvFile, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) error {
	ints := map[string]*int{
		"PROMPTVAULT_GRPC_PORT":           &cfg.Server.GRPCPort,
		"PROMPTVAULT_OBSERVABILITY_PORT":  &cfg.Server.ObservabilityPort,
		"PROMPTVAULT_MAX_APPEND_ATTEMPTS": &cfg.Versioning.MaxAppendAttempts,
		"PROMPTVAULT_COMMENT_MAX_LENGTH":  &cfg.Comments.MaxLength,
	}
	for name, dst := range ints {
		if v, ok := os.LookupEnv(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*dst = n
		}
	}

	bools := map[string]*bool{
		"PROMPTVAULT_STORAGE_IN_MEMORY": &cfg.Storage.InMemory,
		"PROMPTVAULT_LOG_PRETTY":        &cfg.Log.Pretty,
	}
	for name, dst := range bools {
		if v, ok := os.LookupEnv(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*dst = b
		}
	}

	strs := map[string]*string{
		"PROMPTVAULT_STORAGE_DRIVER": &cfg.Storage.Driver,
		"PROMPTVAULT_STORAGE_PATH":   &cfg.Storage.Path,
		"PROMPTVAULT_LOG_LEVEL":      &cfg.Log.Level,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(name); ok {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv("PROMPTVAULT_RETRY_BACKOFF"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PROMPTVAULT_RETRY_BACKOFF: %w", err)
		}
		cfg.Versioning.RetryBackoff = d
	}
	return nil
}

// Validate checks that the configuration is usable
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case storage.DriverBadger, storage.DriverSQLite:
	default:
		return fmt.Errorf("storage.driver must be %q or %q, got %q", storage.DriverBadger, storage.DriverSQLite, c.Storage.Driver)
	}
	if c.Storage.Path == "" && !c.Storage.InMemory {
		return errors.New("storage.path is required unless storage.in_memory is set")
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port out of range: %d", c.Server.GRPCPort)
	}
	if c.Server.ObservabilityPort < 0 || c.Server.ObservabilityPort > 65535 {
		return fmt.Errorf("server.observability_port out of range: %d", c.Server.ObservabilityPort)
	}
	if c.Versioning.MaxAppendAttempts < 1 {
		return fmt.Errorf("versioning.max_append_attempts must be at least 1, got %d", c.Versioning.MaxAppendAttempts)
	}
	if c.Versioning.RetryBackoff < 0 {
		return errors.New("versioning.retry_backoff must not be negative")
	}
	if c.Comments.MaxLength < 1 {
		return fmt.Errorf("comments.max_length must be at least 1, got %d", c.Comments.MaxLength)
	}
	return nil
}

// StorageOpenConfig converts the storage section for storage.Open
func (c Config) StorageOpenConfig() storage.Config {
	return storage.Config{
		Driver:     c.Storage.Driver,
		Path:       c.Storage.Path,
		InMemory:   c.Storage.InMemory,
		SyncWrites: c.Storage.SyncWrites,
		GCInterval: c.Storage.GCInterval,
	}
}
