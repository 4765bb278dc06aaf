// Package config loads membank configuration from YAML and environment
// variables via viper.
//
// Precedence, highest first: environment (MEMBANK_*), config.yaml,
// built-in defaults. The config file is discovered by walking parent
// directories for .membank/config.yaml, falling back to
// ~/.membank/config.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/cognidao/membank/internal/types"
)

// Config is the resolved membank configuration.
type Config struct {
	// Branch is the Dolt branch all operations run against.
	Branch string `mapstructure:"branch" yaml:"branch"`
	// Namespace is the default namespace injected into tool calls that
	// omit one.
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
	// AutoCommit stages and commits after every successful mutation.
	AutoCommit bool `mapstructure:"auto_commit" yaml:"auto_commit"`

	Committer Committer       `mapstructure:"committer" yaml:"committer"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Vector    VectorConfig    `mapstructure:"vector" yaml:"vector"`
	Embedding EmbeddingConfig `mapstructure:"embedding" yaml:"embedding"`
	Schemas   SchemasConfig   `mapstructure:"schemas" yaml:"schemas"`

	// Socket is the daemon's Unix socket path.
	Socket string `mapstructure:"socket" yaml:"socket"`
}

// Committer is the identity recorded on Dolt commits.
type Committer struct {
	Name  string `mapstructure:"name" yaml:"name"`
	Email string `mapstructure:"email" yaml:"email"`
}

// StorageConfig selects embedded or server-mode Dolt.
type StorageConfig struct {
	// Path is the embedded-mode data directory.
	Path   string       `mapstructure:"path" yaml:"path"`
	Server ServerConfig `mapstructure:"server" yaml:"server"`
}

// ServerConfig connects to a running dolt sql-server instead of the
// embedded engine.
type ServerConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	Database string `mapstructure:"database" yaml:"database"`
}

// VectorConfig points at the Redis vector index.
type VectorConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
	// Collection is the Redis key prefix.
	Collection string `mapstructure:"collection" yaml:"collection"`
	Password   string `mapstructure:"password" yaml:"password,omitempty"`
	DB         int    `mapstructure:"db" yaml:"db,omitempty"`
}

// EmbeddingConfig pins the embedding dimension. The store rejects any
// value other than types.EmbeddingDim; the field exists so a mismatch
// is caught at startup rather than on first insert.
type EmbeddingConfig struct {
	Dim int `mapstructure:"dim" yaml:"dim"`
}

// SchemasConfig locates the TOML metadata-schema directory.
type SchemasConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// Default returns the built-in configuration. Storage path, socket, and
// schema dir default to locations under ~/.membank.
func Default() *Config {
	home := homeDir()
	return &Config{
		Branch:     "main",
		Namespace:  types.DefaultNamespace,
		AutoCommit: true,
		Committer: Committer{
			Name:  "membank",
			Email: "membank@localhost",
		},
		Storage: StorageConfig{
			Path: filepath.Join(home, ".membank", "data"),
			Server: ServerConfig{
				Host:     "127.0.0.1",
				Port:     3306,
				User:     "root",
				Database: "membank",
			},
		},
		Vector: VectorConfig{
			Addr:       "127.0.0.1:6379",
			Collection: "membank",
		},
		Embedding: EmbeddingConfig{Dim: types.EmbeddingDim},
		Schemas:   SchemasConfig{Dir: filepath.Join(home, ".membank", "schemas")},
		Socket:    filepath.Join(home, ".membank", "membank.sock"),
	}
}

// envBindings maps config keys to their environment variable names.
// Explicit bindings because the published env names do not follow a
// mechanical key-to-name mapping (MEMBANK_DB_HOST, not
// MEMBANK_STORAGE_SERVER_HOST).
var envBindings = map[string]string{
	"branch":                  "MEMBANK_BRANCH",
	"namespace":               "MEMBANK_NAMESPACE",
	"auto_commit":             "MEMBANK_AUTO_COMMIT",
	"committer.name":          "MEMBANK_COMMITTER_NAME",
	"committer.email":         "MEMBANK_COMMITTER_EMAIL",
	"storage.path":            "MEMBANK_STORAGE_PATH",
	"storage.server.enabled":  "MEMBANK_DB_SERVER",
	"storage.server.host":     "MEMBANK_DB_HOST",
	"storage.server.port":     "MEMBANK_DB_PORT",
	"storage.server.user":     "MEMBANK_DB_USER",
	"storage.server.password": "MEMBANK_DB_PASSWORD",
	"storage.server.database": "MEMBANK_DB_NAME",
	"vector.addr":             "MEMBANK_REDIS_ADDR",
	"vector.collection":       "MEMBANK_REDIS_COLLECTION",
	"vector.password":         "MEMBANK_REDIS_PASSWORD",
	"schemas.dir":             "MEMBANK_SCHEMAS_DIR",
	"socket":                  "MEMBANK_SOCKET",
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	def := Default()
	v.SetDefault("branch", def.Branch)
	v.SetDefault("namespace", def.Namespace)
	v.SetDefault("auto_commit", def.AutoCommit)
	v.SetDefault("committer.name", def.Committer.Name)
	v.SetDefault("committer.email", def.Committer.Email)
	v.SetDefault("storage.path", def.Storage.Path)
	v.SetDefault("storage.server.enabled", def.Storage.Server.Enabled)
	v.SetDefault("storage.server.host", def.Storage.Server.Host)
	v.SetDefault("storage.server.port", def.Storage.Server.Port)
	v.SetDefault("storage.server.user", def.Storage.Server.User)
	v.SetDefault("storage.server.database", def.Storage.Server.Database)
	v.SetDefault("vector.addr", def.Vector.Addr)
	v.SetDefault("vector.collection", def.Vector.Collection)
	v.SetDefault("embedding.dim", def.Embedding.Dim)
	v.SetDefault("schemas.dir", def.Schemas.Dir)
	v.SetDefault("socket", def.Socket)
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}
	return v
}

// Load reads configuration from path. An empty path triggers discovery;
// a discovered file that does not exist is not an error and yields
// defaults plus environment overrides.
func Load(path string) (*Config, error) {
	v := newViper()
	if path == "" {
		path = FindConfigFile()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Namespace = types.NormalizeNamespaceID(cfg.Namespace)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field invariants.
func (c *Config) Validate() error {
	if c.Branch == "" {
		return fmt.Errorf("branch must not be empty")
	}
	if c.Namespace == "" {
		return fmt.Errorf("namespace must not be empty")
	}
	if c.Embedding.Dim != 0 && c.Embedding.Dim != types.EmbeddingDim {
		return fmt.Errorf("embedding.dim must be %d (got %d)", types.EmbeddingDim, c.Embedding.Dim)
	}
	if c.Storage.Server.Enabled {
		if c.Storage.Server.Host == "" || c.Storage.Server.Port == 0 {
			return fmt.Errorf("storage.server requires host and port")
		}
	} else if c.Storage.Path == "" {
		return fmt.Errorf("storage.path must be set in embedded mode")
	}
	return nil
}

// FindConfigFile walks parent directories for .membank/config.yaml,
// then falls back to ~/.membank/config.yaml. Returns "" when neither
// exists.
func FindConfigFile() string {
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; ; dir = filepath.Dir(dir) {
			p := filepath.Join(dir, ".membank", "config.yaml")
			if _, err := os.Stat(p); err == nil {
				return p
			}
			if dir == filepath.Dir(dir) {
				break
			}
		}
	}
	p := filepath.Join(homeDir(), ".membank", "config.yaml")
	if _, err := os.Stat(p); err == nil {
		return p
	}
	return ""
}

// WriteFile writes the config as YAML to path, creating parent
// directories. Used by `membank init`.
func (c *Config) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	// Passwords never land on disk; they come in via environment.
	out := *c
	out.Storage.Server.Password = ""
	out.Vector.Password = ""
	out.Embedding.Dim = types.EmbeddingDim
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("render config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Watcher reloads the config file on change and delivers the refreshed
// Config to the registered callback. Only branch and namespace are
// expected to change at runtime; consumers decide what to do with the
// rest.
type Watcher struct {
	v        *viper.Viper
	mu       sync.Mutex
	onChange func(*Config)
}

// Watch starts watching path for changes. The callback runs on viper's
// watch goroutine; it must not block.
func Watch(path string, onChange func(*Config)) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config watch requires a file path")
	}
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	w := &Watcher{v: v, onChange: onChange}
	v.OnConfigChange(func(fsnotify.Event) {
		w.mu.Lock()
		defer w.mu.Unlock()
		cfg := &Config{}
		if err := w.v.Unmarshal(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "membank: config reload failed: %v\n", err)
			return
		}
		cfg.Namespace = types.NormalizeNamespaceID(cfg.Namespace)
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "membank: config reload rejected: %v\n", err)
			return
		}
		if w.onChange != nil {
			w.onChange(cfg)
		}
	})
	v.WatchConfig()
	return w, nil
}

func homeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "."
}
