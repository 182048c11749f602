package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DriverSQLite   = "sqlite"
	DriverJSONFile = "jsonfile"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Storage  StorageConfig  `toml:"storage"`
	Catalog  CatalogConfig  `toml:"catalog"`
	Upstream UpstreamConfig `toml:"upstream"`
	Log      LogConfig      `toml:"log"`
	Raw      map[string]any `toml:"-"`
	Path     string         `toml:"-"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type StorageConfig struct {
	Driver  string `toml:"driver"`
	DataDir string `toml:"data_dir"`
	DBPath  string `toml:"db_path"`
}

type CatalogConfig struct {
	SeedPath string `toml:"seed_path"`
}

type UpstreamConfig struct {
	Provider   string `toml:"provider"`
	Model      string `toml:"model"`
	BaseURL    string `toml:"base_url"`
	APIKey     string `toml:"api_key"`
	Structured *bool  `toml:"structured"`
}

func (u UpstreamConfig) StructuredReplies() bool {
	return u.Structured == nil || *u.Structured
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

func Default() Config {
	return Config{
		Server:  ServerConfig{Addr: "127.0.0.1:3001"},
		Storage: StorageConfig{Driver: DriverJSONFile, DataDir: "~/.agent_catalog/data"},
		Upstream: UpstreamConfig{
			Provider: "gemini",
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the TOML file at path on top of Default and applies
// environment overrides. An empty path means the default location, which
// may be absent.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	resolved := path
	if resolved == "" {
		resolved = defaultConfigPath()
	}
	resolved, err := expandHome(resolved)
	if err != nil {
		return Config{}, err
	}
	resolved = filepath.Clean(resolved)

	bytes, err := os.ReadFile(resolved)
	switch {
	case err == nil:
		if _, err := toml.Decode(string(bytes), &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config file: %w", err)
		}
		var raw map[string]any
		if _, err := toml.Decode(string(bytes), &raw); err != nil {
			return Config{}, fmt.Errorf("decode raw config: %w", err)
		}
		cfg.Raw = raw
		cfg.Path = resolved
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		cfg.Raw = map[string]any{}
	default:
		return Config{}, fmt.Errorf("read config file %s: %w", resolved, err)
	}

	cfg.applyEnv(os.Getenv)
	if err := cfg.finalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv("AGENT_CATALOG_ADDR")); v != "" {
		c.Server.Addr = v
	}
	if v := strings.TrimSpace(getenv("AGENT_CATALOG_DATA_DIR")); v != "" {
		c.Storage.DataDir = v
	}
	if v := strings.TrimSpace(getenv("AGENT_CATALOG_STORAGE")); v != "" {
		c.Storage.Driver = v
	}
	if v := strings.TrimSpace(getenv("AGENT_CATALOG_PROVIDER")); v != "" {
		c.Upstream.Provider = v
	}
	if v := strings.TrimSpace(getenv("AGENT_CATALOG_MODEL")); v != "" {
		c.Upstream.Model = v
	}
	if v := strings.TrimSpace(getenv("AGENT_CATALOG_STRUCTURED")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Upstream.Structured = &b
		}
	}
	if v := strings.TrimSpace(getenv("AGENT_CATALOG_API_KEY")); v != "" {
		c.Upstream.APIKey = v
	}
	if c.Upstream.APIKey == "" {
		if name := providerKeyEnv(c.Upstream.Provider); name != "" {
			c.Upstream.APIKey = strings.TrimSpace(getenv(name))
		}
	}
	if v := strings.TrimSpace(getenv("AGENT_CATALOG_LOG_LEVEL")); v != "" {
		c.Log.Level = v
	}
}

func providerKeyEnv(provider string) string {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", "gemini":
		return "GEMINI_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	default:
		return ""
	}
}

// finalize expands paths and checks the storage driver.
func (c *Config) finalize() error {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	switch c.Storage.Driver {
	case DriverSQLite, DriverJSONFile:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	var err error
	if c.Storage.DataDir, err = expandHome(c.Storage.DataDir); err != nil {
		return err
	}
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = filepath.Join(c.Storage.DataDir, "catalog.db")
	}
	if c.Storage.DBPath, err = expandHome(c.Storage.DBPath); err != nil {
		return err
	}
	if c.Catalog.SeedPath, err = expandHome(c.Catalog.SeedPath); err != nil {
		return err
	}
	return nil
}

// Redacted returns the raw file contents with secrets masked.
func (c Config) Redacted() map[string]any {
	return redact(c.Raw)
}

func redact(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch typed := v.(type) {
		case map[string]any:
			out[k] = redact(typed)
		default:
			if isSecretKey(k) {
				out[k] = "***"
				continue
			}
			out[k] = v
		}
	}
	return out
}

func isSecretKey(key string) bool {
	lower := strings.ToLower(key)
	return strings.Contains(lower, "key") || strings.Contains(lower, "token") || strings.Contains(lower, "secret") || strings.Contains(lower, "password")
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	trimmed := strings.TrimPrefix(path, "~")
	trimmed = strings.TrimPrefix(trimmed, "\\")
	trimmed = strings.TrimPrefix(trimmed, "/")
	return filepath.Join(home, trimmed), nil
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agent_catalog/config.toml"
	}
	return filepath.Join(home, ".agent_catalog", "config.toml")
}
