package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the embedding lookup service.
type Config struct {
	Corpus  CorpusConfig  `yaml:"corpus"`
	Index   IndexConfig   `yaml:"index"`
	Lookup  LookupConfig  `yaml:"lookup"`
	Server  ServerConfig  `yaml:"server"`
	Client  ClientConfig  `yaml:"client"`
	Logging LoggingConfig `yaml:"logging"`
}

// CorpusConfig locates the embedding corpora.
type CorpusConfig struct {
	Root           string `yaml:"root"`
	Entities       string `yaml:"entities"`  // doublestar pattern, must match exactly one file
	Relations      string `yaml:"relations"` // doublestar pattern, all matches are merged
	Delimiter      string `yaml:"delimiter"`
	MaxRecordBytes int    `yaml:"max_record_bytes"`
}

// IndexConfig holds offset index configuration.
type IndexConfig struct {
	Persist  bool   `yaml:"persist"`
	Path     string `yaml:"path"` // default <root>/.kge/index.db
	Mmap     bool   `yaml:"mmap"`
	HashBits int    `yaml:"hash_bits"`
}

// LookupConfig holds batch resolution configuration.
type LookupConfig struct {
	Workers   int `yaml:"workers"`
	CacheSize int `yaml:"cache_size"` // 0 disables the record cache
}

// ServerConfig holds HTTP endpoint configuration.
type ServerConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	Path              string        `yaml:"path"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
}

// ClientConfig holds settings for calling a running server.
type ClientConfig struct {
	URL       string        `yaml:"url"`
	BatchSize int           `yaml:"batch_size"`
	Interval  time.Duration `yaml:"interval"` // pause between batches
	Timeout   time.Duration `yaml:"timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Corpus: CorpusConfig{
			Root:           ".",
			Entities:       "entities.tsv",
			Relations:      "relations.jsonl",
			Delimiter:      "\t",
			MaxRecordBytes: 4 << 20,
		},
		Index: IndexConfig{
			Persist:  true,
			Mmap:     false,
			HashBits: 64,
		},
		Lookup: LookupConfig{
			Workers:   1,
			CacheSize: 0,
		},
		Server: ServerConfig{
			Host:              "127.0.0.1",
			Port:              8080,
			Path:              "/embeddings",
			MaxBodyBytes:      1 << 20,
			ReadHeaderTimeout: 10 * time.Second,
		},
		Client: ClientConfig{
			URL:       "http://127.0.0.1:8080/embeddings",
			BatchSize: 20,
			Interval:  500 * time.Millisecond,
			Timeout:   30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for kge.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "kge.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".kge", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Corpus.Entities) == "" {
		errs = append(errs, errors.New("corpus.entities is required"))
	}
	if strings.TrimSpace(c.Corpus.Relations) == "" {
		errs = append(errs, errors.New("corpus.relations is required"))
	}
	if len(c.Corpus.Delimiter) != 1 || c.Corpus.Delimiter == "\n" {
		errs = append(errs, fmt.Errorf("corpus.delimiter must be a single byte other than newline, got %q", c.Corpus.Delimiter))
	}
	if c.Index.HashBits < 1 || c.Index.HashBits > 64 {
		errs = append(errs, fmt.Errorf("index.hash_bits must be within 1..64, got %d", c.Index.HashBits))
	}
	if c.Lookup.Workers < 1 {
		errs = append(errs, fmt.Errorf("lookup.workers must be at least 1, got %d", c.Lookup.Workers))
	}
	if c.Lookup.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("lookup.cache_size must not be negative, got %d", c.Lookup.CacheSize))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if !strings.HasPrefix(c.Server.Path, "/") {
		errs = append(errs, fmt.Errorf("server.path must start with '/', got %q", c.Server.Path))
	}
	if c.Client.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("client.batch_size must be at least 1, got %d", c.Client.BatchSize))
	}
	return errors.Join(errs...)
}

// DelimiterByte returns the entity key delimiter.
func (c *Config) DelimiterByte() byte {
	if c.Corpus.Delimiter == "" {
		return '\t'
	}
	return c.Corpus.Delimiter[0]
}

// IndexDBPath returns the path to the companion index database.
func (c *Config) IndexDBPath() string {
	if c.Index.Path != "" {
		return c.Index.Path
	}
	return IndexDBPath(c.Corpus.Root)
}

// IndexDBPath returns the default companion index path under root.
func IndexDBPath(root string) string {
	return filepath.Join(root, ".kge", "index.db")
}

// EnsureIndexDir ensures the directory holding the index database exists.
func EnsureIndexDir(dbPath string) error {
	return os.MkdirAll(filepath.Dir(dbPath), 0755)
}

// NewViper returns a viper instance reading KGE_* environment variables,
// e.g. KGE_CORPUS_ROOT or KGE_SERVER_PORT.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("KGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Overlay applies every key set in v (environment or bound flags) on top of cfg.
func Overlay(cfg *Config, v *viper.Viper) {
	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	num := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}
	flag := func(key string, dst *bool) {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v.IsSet(key) {
			*dst = v.GetDuration(key)
		}
	}

	str("corpus.root", &cfg.Corpus.Root)
	str("corpus.entities", &cfg.Corpus.Entities)
	str("corpus.relations", &cfg.Corpus.Relations)
	str("corpus.delimiter", &cfg.Corpus.Delimiter)
	num("corpus.max_record_bytes", &cfg.Corpus.MaxRecordBytes)

	flag("index.persist", &cfg.Index.Persist)
	str("index.path", &cfg.Index.Path)
	flag("index.mmap", &cfg.Index.Mmap)
	num("index.hash_bits", &cfg.Index.HashBits)

	num("lookup.workers", &cfg.Lookup.Workers)
	num("lookup.cache_size", &cfg.Lookup.CacheSize)

	str("server.host", &cfg.Server.Host)
	num("server.port", &cfg.Server.Port)
	str("server.path", &cfg.Server.Path)
	if v.IsSet("server.max_body_bytes") {
		cfg.Server.MaxBodyBytes = v.GetInt64("server.max_body_bytes")
	}
	dur("server.read_header_timeout", &cfg.Server.ReadHeaderTimeout)

	str("client.url", &cfg.Client.URL)
	num("client.batch_size", &cfg.Client.BatchSize)
	dur("client.interval", &cfg.Client.Interval)
	dur("client.timeout", &cfg.Client.Timeout)

	str("logging.level", &cfg.Logging.Level)
	str("logging.format", &cfg.Logging.Format)
}
