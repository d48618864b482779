// Package config holds the relmap CLI configuration.
//
//	dialect = "postgres"
//	dsn = "postgres://shop@localhost/shop?sslmode=disable"
//	model = "model.yaml"
//	operations = "operations.yaml"
//	log_level = "debug"
//	stmt_cache_capacity = 200
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/coregx/relmap/internal/cache"
	"github.com/coregx/relmap/internal/dialects"
	"github.com/coregx/relmap/internal/logger"
)

// ErrInvalidConfig is returned when a configuration value is missing or
// unsupported.
var ErrInvalidConfig = errors.New("invalid configuration")

// DefaultFile is the configuration file looked up in the working directory.
const DefaultFile = "relmap.toml"

// Config is the CLI configuration.
type Config struct {
	// Dialect selects SQL rendering: postgres, mysql or sqlite.
	Dialect string `toml:"dialect"`

	// Driver is the database/sql driver name. It defaults to the dialect's
	// usual driver.
	Driver string `toml:"driver"`

	DSN string `toml:"dsn"`

	// Model is the YAML entity model file.
	Model string `toml:"model"`

	// Operations is the YAML operation descriptor file.
	Operations string `toml:"operations"`

	LogLevel string `toml:"log_level"`

	StmtCacheCapacity int `toml:"stmt_cache_capacity"`
}

// drivers maps dialect names to their default database/sql driver.
var drivers = map[string]string{
	"postgres":   "postgres",
	"postgresql": "postgres",
	"mysql":      "mysql",
	"sqlite":     "sqlite",
	"sqlite3":    "sqlite3",
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Dialect:           "sqlite",
		LogLevel:          "info",
		StmtCacheCapacity: cache.DefaultCapacity,
	}
}

// Load reads path, or DefaultFile when path is empty. A missing default
// file yields Default; a missing explicit file is an error.
func Load(path string) (*Config, error) {
	if path == "" {
		if _, err := os.Stat(DefaultFile); os.IsNotExist(err) {
			return Default(), nil
		}
		path = DefaultFile
	}
	return LoadFrom(path)
}

// LoadFrom reads the configuration at path over Default. Relative model and
// operation files resolve against the directory of path.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: %s: unknown key %q", ErrInvalidConfig, path, undecoded[0].String())
	}

	dir := filepath.Dir(path)
	cfg.Model = resolve(dir, cfg.Model)
	cfg.Operations = resolve(dir, cfg.Operations)
	return cfg, nil
}

func resolve(dir, file string) string {
	if file == "" || filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(dir, file)
}

// Merge overrides c with the non-zero values of o.
func (c *Config) Merge(o Config) {
	if o.Dialect != "" {
		c.Dialect = o.Dialect
	}
	if o.Driver != "" {
		c.Driver = o.Driver
	}
	if o.DSN != "" {
		c.DSN = o.DSN
	}
	if o.Model != "" {
		c.Model = o.Model
	}
	if o.Operations != "" {
		c.Operations = o.Operations
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	if o.StmtCacheCapacity > 0 {
		c.StmtCacheCapacity = o.StmtCacheCapacity
	}
}

// DriverName returns the configured driver or the dialect's default one.
func (c *Config) DriverName() string {
	if c.Driver != "" {
		return c.Driver
	}
	return drivers[c.Dialect]
}

// Validate checks the values every command needs. Connection settings are
// checked separately by RequireDSN.
func (c *Config) Validate() error {
	if _, err := dialects.Lookup(c.Dialect); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.DriverName() == "" {
		return fmt.Errorf("%w: no driver for dialect %q", ErrInvalidConfig, c.Dialect)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model file is required", ErrInvalidConfig)
	}
	if c.Operations == "" {
		return fmt.Errorf("%w: operations file is required", ErrInvalidConfig)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.StmtCacheCapacity < 0 {
		return fmt.Errorf("%w: negative stmt_cache_capacity", ErrInvalidConfig)
	}
	return nil
}

// RequireDSN checks that a data source is configured.
func (c *Config) RequireDSN() error {
	if c.DSN == "" {
		return fmt.Errorf("%w: dsn is required", ErrInvalidConfig)
	}
	return nil
}
