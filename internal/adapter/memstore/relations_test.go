package memstore

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kge/internal/domain"
)

const jsonlCorpus = `{"key":"ontology/birthPlace","lhs_real":[0.1,0.2],"lhs_imag":[0.3,0.4],"rhs_real":[0.5,0.6],"rhs_imag":[0.7,0.8]}

{"key":"http://dbpedia.org/ontology/spouse","lhs_real":[1],"lhs_imag":[2],"rhs_real":[3],"rhs_imag":[4]}
`

const jsonCorpus = `{
  "property/name": {"lhs_real":[0.1],"lhs_imag":[0.2],"rhs_real":[0.3],"rhs_imag":[0.4]},
  "ontology/birthPlace": {"lhs_real":[9],"lhs_imag":[9],"rhs_real":[9],"rhs_imag":[9]}
}`

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestLoadRelations_JSONL(t *testing.T) {
	path := writeTemp(t, "relations.jsonl", []byte(jsonlCorpus))

	st, err := LoadRelations([]string{path}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Len())

	res := st.Resolve("http://dbpedia.org/ontology/birthPlace")
	require.True(t, res.Found)
	assert.Equal(t, "ontology/birthPlace", res.Key)
	assert.Equal(t, []float64{0.1, 0.2}, res.Embedding.LHSReal)
	assert.Equal(t, []float64{0.7, 0.8}, res.Embedding.RHSImag)

	// stored keys are normalized too
	res = st.Resolve("https://example.org/ontology/spouse")
	require.True(t, res.Found)
	assert.Equal(t, []float64{3}, res.Embedding.RHSReal)

	miss := st.Resolve("http://dbpedia.org/ontology/unknown")
	assert.False(t, miss.Found)
	assert.Equal(t, domain.RelationEmbedding{}, miss.Embedding)
}

func TestLoadRelations_MergesFilesFirstWins(t *testing.T) {
	first := writeTemp(t, "a.jsonl", []byte(jsonlCorpus))

	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = enc.Write([]byte(jsonCorpus))
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	second := writeTemp(t, "b.json.zst", buf.Bytes())

	st, err := LoadRelations([]string{first, second}, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, st.Len())
	stats := st.Stats()
	assert.Equal(t, 2, stats.Files)
	assert.Equal(t, 3, stats.Relations)
	assert.Equal(t, 1, stats.Duplicates)

	assert.Equal(t, []float64{0.1, 0.2}, st.Resolve("ontology/birthPlace").Embedding.LHSReal)
	assert.True(t, st.Resolve("http://dbpedia.org/property/name").Found)
}

func TestLoadRelations_Errors(t *testing.T) {
	cases := map[string]string{
		"relations.jsonl": `{"key":"a","lhs_real":[1],"lhs_imag":[1],"rhs_real":[1]}`,
		"bad.jsonl":       `{"key":"a","lhs_real":[1],"lhs_imag":[1],"rhs_real":[1],"rhs_imag":[1,2]}`,
		"nokey.jsonl":     `{"lhs_real":[1],"lhs_imag":[1],"rhs_real":[1],"rhs_imag":[1]}`,
		"broken.jsonl":    `{"key":`,
		"array.json":      `[1,2,3]`,
		"corpus.csv":      `a,b`,
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeTemp(t, name, []byte(content))
			_, err := LoadRelations([]string{path}, nil)
			require.Error(t, err)

			var startupErr *domain.StartupError
			assert.True(t, errors.As(err, &startupErr))
			assert.Equal(t, path, startupErr.Path)
		})
	}
}

func TestLoadRelations_NoFiles(t *testing.T) {
	_, err := LoadRelations(nil, nil)
	assert.ErrorIs(t, err, domain.ErrCorpusNotFound)

	_, err = LoadRelations([]string{filepath.Join(t.TempDir(), "missing.jsonl")}, nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewRelationStore(t *testing.T) {
	st := NewRelationStore(map[string]domain.RelationEmbedding{
		"http://dbpedia.org/ontology/x": {LHSReal: []float64{1}},
	})
	assert.True(t, st.ResolveRelation("ontology/x").Found)
	assert.Equal(t, 1, st.Len())
}
