package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Corpus.Delimiter != "\t" {
		t.Errorf("expected tab delimiter, got %q", cfg.Corpus.Delimiter)
	}
	if cfg.Index.HashBits != 64 {
		t.Errorf("expected HashBits=64, got %d", cfg.Index.HashBits)
	}
	if !cfg.Index.Persist {
		t.Error("expected Persist=true")
	}
	if cfg.Lookup.Workers != 1 {
		t.Errorf("expected Workers=1, got %d", cfg.Lookup.Workers)
	}
	if cfg.Server.Path != "/embeddings" {
		t.Errorf("expected Path=/embeddings, got %s", cfg.Server.Path)
	}
	if cfg.Client.BatchSize != 20 {
		t.Errorf("expected BatchSize=20, got %d", cfg.Client.BatchSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Errorf("expected no error for non-existent file, got %v", err)
	}
	if cfg == nil {
		t.Error("expected default config, got nil")
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "kge.yaml")

	content := `
corpus:
  root: /data/kg
  entities: "embeddings/*.tsv"
  delimiter: " "
index:
  mmap: true
  hash_bits: 32
client:
  interval: 250ms
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Corpus.Root != "/data/kg" {
		t.Errorf("expected Root=/data/kg, got %s", cfg.Corpus.Root)
	}
	if cfg.DelimiterByte() != ' ' {
		t.Errorf("expected space delimiter, got %q", cfg.DelimiterByte())
	}
	if !cfg.Index.Mmap || cfg.Index.HashBits != 32 {
		t.Errorf("unexpected index config %+v", cfg.Index)
	}
	if cfg.Client.Interval != 250*time.Millisecond {
		t.Errorf("expected Interval=250ms, got %v", cfg.Client.Interval)
	}
	// untouched sections keep defaults
	if cfg.Corpus.Relations != "relations.jsonl" {
		t.Errorf("expected default relations pattern, got %s", cfg.Corpus.Relations)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "kge.yaml")
	if err := os.WriteFile(configPath, []byte("corpus: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(configPath); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadFromDir(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(tmpDir, ".kge"), 0755); err != nil {
		t.Fatal(err)
	}
	content := `
server:
  port: 9090
`
	if err := os.WriteFile(filepath.Join(tmpDir, ".kge", "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected Port=9090, got %d", cfg.Server.Port)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kge.yaml")
	cfg := DefaultConfig()
	cfg.Lookup.CacheSize = 500
	cfg.Client.Interval = 2 * time.Second

	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Lookup.CacheSize != 500 || loaded.Client.Interval != 2*time.Second {
		t.Errorf("round trip lost values: %+v %+v", loaded.Lookup, loaded.Client)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Corpus.Delimiter = "::"
	cfg.Index.HashBits = 0
	cfg.Lookup.Workers = 0
	cfg.Server.Path = "embeddings"

	if err := cfg.Validate(); err == nil {
		t.Error("expected validation errors")
	}
}

func TestIndexDBPath(t *testing.T) {
	path := IndexDBPath("/data/kg")
	expected := filepath.Join("/data/kg", ".kge", "index.db")
	if path != expected {
		t.Errorf("expected %s, got %s", expected, path)
	}

	cfg := DefaultConfig()
	cfg.Index.Path = "/var/lib/kge/index.db"
	if cfg.IndexDBPath() != "/var/lib/kge/index.db" {
		t.Errorf("explicit index path ignored: %s", cfg.IndexDBPath())
	}
}

func TestOverlayFromEnv(t *testing.T) {
	t.Setenv("KGE_CORPUS_ROOT", "/env/root")
	t.Setenv("KGE_SERVER_PORT", "7070")
	t.Setenv("KGE_INDEX_MMAP", "true")
	t.Setenv("KGE_CLIENT_INTERVAL", "1s")

	cfg := DefaultConfig()
	Overlay(cfg, NewViper())

	if cfg.Corpus.Root != "/env/root" {
		t.Errorf("expected Root from env, got %s", cfg.Corpus.Root)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("expected Port=7070, got %d", cfg.Server.Port)
	}
	if !cfg.Index.Mmap {
		t.Error("expected Mmap from env")
	}
	if cfg.Client.Interval != time.Second {
		t.Errorf("expected Interval=1s, got %v", cfg.Client.Interval)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("unset keys must keep defaults, got host %s", cfg.Server.Host)
	}
}
