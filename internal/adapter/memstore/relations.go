package memstore

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"kge/internal/adapter/analyzer"
	"kge/internal/adapter/fs"
	"kge/internal/domain"
)

// RelationStore holds the whole relation corpus in memory. It is read-only
// after construction and needs no locking.
type RelationStore struct {
	relations map[string]domain.RelationEmbedding
	stats     domain.RelationStats
}

type relationLine struct {
	Key string `json:"key"`
	domain.RelationEmbedding
}

// NewRelationStore builds a store from already parsed embeddings. Keys are
// normalized; on duplicates the first key in iteration order wins.
func NewRelationStore(relations map[string]domain.RelationEmbedding) *RelationStore {
	s := &RelationStore{relations: make(map[string]domain.RelationEmbedding, len(relations))}
	for k, emb := range relations {
		s.add(k, emb)
	}
	return s
}

// LoadRelations parses every file in paths into one store. Files ending in
// .jsonl (one object with a "key" field per line) and .json (an object
// mapping keys to embeddings) are supported, optionally compressed.
func LoadRelations(paths []string, logger *slog.Logger) (*RelationStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(paths) == 0 {
		return nil, domain.NewStartupError("relation store", "", domain.ErrCorpusNotFound)
	}

	s := &RelationStore{relations: make(map[string]domain.RelationEmbedding)}
	for _, path := range paths {
		if err := s.loadFile(path); err != nil {
			return nil, domain.NewStartupError("relation store", path, err)
		}
		s.stats.Files++
	}

	if s.stats.Duplicates > 0 {
		logger.Warn("duplicate relation keys ignored", "count", s.stats.Duplicates)
	}
	logger.Info("relation corpus loaded", "files", s.stats.Files, "relations", s.stats.Relations)
	return s, nil
}

func (s *RelationStore) loadFile(path string) error {
	rc, err := fs.OpenDecompressed(path)
	if err != nil {
		return err
	}
	defer rc.Close()

	switch ext := strings.ToLower(filepath.Ext(fs.TrimCompressionExt(path))); ext {
	case ".jsonl", ".ndjson":
		return s.parseLines(rc)
	case ".json":
		return s.parseObject(rc)
	default:
		return fmt.Errorf("unsupported relation corpus format %q", ext)
	}
}

func (s *RelationStore) parseLines(r io.Reader) error {
	br := bufio.NewReader(r)
	lineNo := 0
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			lineNo++
			if trimmed := strings.TrimSpace(string(line)); trimmed != "" {
				var rel relationLine
				if err := json.Unmarshal([]byte(trimmed), &rel); err != nil {
					return fmt.Errorf("line %d: %w", lineNo, err)
				}
				if rel.Key == "" {
					return fmt.Errorf("line %d: missing key", lineNo)
				}
				if err := validate(rel.RelationEmbedding); err != nil {
					return fmt.Errorf("line %d (%s): %w", lineNo, rel.Key, err)
				}
				s.add(rel.Key, rel.RelationEmbedding)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (s *RelationStore) parseObject(r io.Reader) error {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("expected a JSON object of relation embeddings")
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)

		var emb domain.RelationEmbedding
		if err := dec.Decode(&emb); err != nil {
			return fmt.Errorf("relation %s: %w", key, err)
		}
		if err := validate(emb); err != nil {
			return fmt.Errorf("relation %s: %w", key, err)
		}
		s.add(key, emb)
	}

	_, err = dec.Token()
	return err
}

func (s *RelationStore) add(rawKey string, emb domain.RelationEmbedding) {
	key := analyzer.NormalizeKey(rawKey)
	if _, exists := s.relations[key]; exists {
		s.stats.Duplicates++
		return
	}
	s.relations[key] = emb
	s.stats.Relations++
}

// validate requires all four components, each with the same dimension.
func validate(emb domain.RelationEmbedding) error {
	parts := []struct {
		name string
		vec  []float64
	}{
		{"lhs_real", emb.LHSReal},
		{"lhs_imag", emb.LHSImag},
		{"rhs_real", emb.RHSReal},
		{"rhs_imag", emb.RHSImag},
	}
	for _, p := range parts {
		if p.vec == nil {
			return fmt.Errorf("missing %s", p.name)
		}
		if len(p.vec) != len(emb.LHSReal) {
			return fmt.Errorf("%s has dimension %d, expected %d", p.name, len(p.vec), len(emb.LHSReal))
		}
	}
	return nil
}

// Resolve normalizes rawURI and looks it up.
func (s *RelationStore) Resolve(rawURI string) domain.RelationResult {
	key := analyzer.NormalizeKey(rawURI)
	emb, ok := s.relations[key]
	if !ok {
		return domain.RelationMiss(key)
	}
	return domain.RelationResult{Key: key, Found: true, Embedding: emb}
}

// ResolveRelation implements port.RelationResolver.
func (s *RelationStore) ResolveRelation(rawURI string) domain.RelationResult {
	return s.Resolve(rawURI)
}

func (s *RelationStore) Len() int {
	return len(s.relations)
}

func (s *RelationStore) Stats() domain.RelationStats {
	return s.stats
}
