package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kge/internal/domain"
	"kge/internal/logging"
)

func writeRuntimeFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "entities.tsv"),
		[]byte("resource/Germany\t0.1 0.2 0.3\nresource/France\t0.4 0.5 0.6\n"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "relations"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "relations", "part-0.jsonl"),
		[]byte(`{"key":"ontology/capital","lhs_real":[1],"lhs_imag":[2],"rhs_real":[3],"rhs_imag":[4]}`+"\n"), 0644))
	return dir
}

func runtimeOptions(root string) RuntimeOptions {
	return RuntimeOptions{
		Root:      root,
		Entities:  "entities.tsv",
		Relations: "relations/*.jsonl",
		Delimiter: '\t',
		HashBits:  64,
		Workers:   2,
	}
}

func TestOpen_ServesBatch(t *testing.T) {
	root := writeRuntimeFixture(t)
	opts := runtimeOptions(root)
	opts.IndexDBPath = filepath.Join(root, ".kge", "index.db")
	opts.CacheSize = 16

	rt, err := Open(context.Background(), opts, logging.Noop())
	require.NoError(t, err)
	defer rt.Close()

	assert.NotNil(t, rt.Cache)
	assert.Equal(t, 1, rt.Relations.Len())
	assert.EqualValues(t, 2, rt.Index.Stats.Records)

	res, err := rt.Lookup.Process(context.Background(), domain.BatchRequest{
		Entities:  []string{"http://dbpedia.org/resource/Germany", "http://dbpedia.org/resource/Spain"},
		Relations: []string{"http://dbpedia.org/ontology/capital"},
	})
	require.NoError(t, err)
	assert.Equal(t, "resource/Germany\t0.1 0.2 0.3", res.Entities[0].Record)
	assert.False(t, res.Entities[1].Found)
	assert.True(t, res.Relations[0].Found)

	_, err = os.Stat(opts.IndexDBPath)
	assert.NoError(t, err, "companion index written")
}

func TestOpen_StartupErrors(t *testing.T) {
	root := writeRuntimeFixture(t)

	tests := []struct {
		name   string
		mutate func(*RuntimeOptions)
		want   error
	}{
		{"missing entity corpus", func(o *RuntimeOptions) { o.Entities = "nope.tsv" }, domain.ErrCorpusNotFound},
		{"missing relation corpus", func(o *RuntimeOptions) { o.Relations = "nope/*.jsonl" }, domain.ErrCorpusNotFound},
		{"ambiguous entity corpus", func(o *RuntimeOptions) { o.Entities = "**/*.{tsv,jsonl}" }, domain.ErrAmbiguousCorpus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := runtimeOptions(root)
			tt.mutate(&opts)

			rt, err := Open(context.Background(), opts, logging.Noop())
			require.Error(t, err)
			assert.Nil(t, rt)

			var startupErr *domain.StartupError
			assert.True(t, errors.As(err, &startupErr))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRuntime_Stats(t *testing.T) {
	root := writeRuntimeFixture(t)
	rt, err := Open(context.Background(), runtimeOptions(root), logging.Noop())
	require.NoError(t, err)
	defer rt.Close()

	stats := rt.Stats()
	assert.Equal(t, "ok", stats.Status)
	assert.EqualValues(t, 2, stats.Index.Records)
	assert.False(t, stats.IndexReused)
	assert.Equal(t, 1, stats.Relations.Files)
	assert.Equal(t, 1, stats.Relations.Relations)
	assert.Zero(t, stats.CacheEntries)
}
