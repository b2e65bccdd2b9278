package vectorindex_test

import (
	"encoding/json"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deidaraiorek/campusrag/internal/vectorindex"
)

func entries(n int) []vectorindex.Entry {
	out := make([]vectorindex.Entry, n)
	for i := range out {
		out[i] = vectorindex.Entry{URL: "https://vntu.edu.ua/p" + string(rune('a'+i%26)), Text: "page " + string(rune('a'+i%26))}
	}
	return out
}

func randomVectors(r *rand.Rand, n, dim int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for j := range v {
			v[j] = float32(r.NormFloat64())
		}
		out[i] = v
	}
	return out
}

func bruteForce(vectors [][]float32, q []float32, k int) []float64 {
	type hit struct {
		idx  int
		dist float64
	}
	hits := make([]hit, len(vectors))
	for i, v := range vectors {
		var s float64
		for j := range v {
			d := float64(v[j] - q[j])
			s += d * d
		}
		hits[i] = hit{idx: i, dist: math.Sqrt(s)}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].dist < hits[b].dist })
	out := make([]float64, 0, k)
	for i := 0; i < k && i < len(hits); i++ {
		out = append(out, hits[i].dist)
	}
	return out
}

func TestBuild_Errors(t *testing.T) {
	_, err := vectorindex.Build(nil, nil, vectorindex.Manifest{})
	assert.ErrorIs(t, err, vectorindex.ErrEmptyCorpus)

	_, err = vectorindex.Build(entries(2), [][]float32{{1, 2}}, vectorindex.Manifest{})
	assert.ErrorIs(t, err, vectorindex.ErrInconsistent)

	_, err = vectorindex.Build(entries(2), [][]float32{{1, 2}, {1, 2, 3}}, vectorindex.Manifest{})
	assert.ErrorIs(t, err, vectorindex.ErrDimensionMismatch)
}

func TestBuild_FillsManifest(t *testing.T) {
	idx, err := vectorindex.Build(entries(3), [][]float32{{0, 0}, {1, 0}, {0, 1}}, vectorindex.Manifest{Model: "hashing-2"})
	require.NoError(t, err)

	m := idx.Manifest()
	assert.Equal(t, vectorindex.SchemaVersion, m.SchemaVersion)
	assert.Equal(t, "hashing-2", m.Model)
	assert.Equal(t, 2, m.Dimension)
	assert.Equal(t, 3, m.Count)
	assert.Equal(t, vectorindex.MetricL2, m.Metric)
	assert.False(t, m.BuiltAt.IsZero())
}

func TestSearch_KLargerThanCorpus(t *testing.T) {
	idx, err := vectorindex.Build(entries(3), [][]float32{{0, 0}, {3, 4}, {1, 0}}, vectorindex.Manifest{})
	require.NoError(t, err)

	hits, err := idx.Search([]float32{0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, 0, hits[0].Index)
	assert.Equal(t, 2, hits[1].Index)
	assert.Equal(t, 1, hits[2].Index)
	assert.InDelta(t, 0, hits[0].Distance, 1e-6)
	assert.InDelta(t, 1, hits[1].Distance, 1e-6)
	assert.InDelta(t, 5, hits[2].Distance, 1e-5)
}

func TestSearch_TiesKeepIndexOrder(t *testing.T) {
	vectors := [][]float32{{1, 0}, {0, 1}, {-1, 0}, {0, -1}, {5, 5}}
	idx, err := vectorindex.Build(entries(5), vectors, vectorindex.Manifest{})
	require.NoError(t, err)

	hits, err := idx.Search([]float32{0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, []int{0, 1, 2}, []int{hits[0].Index, hits[1].Index, hits[2].Index})
}

func TestSearch_SelfQuery(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	vectors := randomVectors(r, 40, 16)
	idx, err := vectorindex.Build(entries(40), vectors, vectorindex.Manifest{})
	require.NoError(t, err)

	for i, v := range vectors {
		hits, err := idx.Search(v, 1)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, i, hits[0].Index)
		assert.InDelta(t, 0, hits[0].Distance, 1e-6)
	}
}

func TestSearch_MatchesBruteForce(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	vectors := randomVectors(r, 200, 8)
	idx, err := vectorindex.Build(entries(200), vectors, vectorindex.Manifest{})
	require.NoError(t, err)

	for q := 0; q < 25; q++ {
		query := randomVectors(r, 1, 8)[0]
		for _, k := range []int{1, 5, 17} {
			hits, err := idx.Search(query, k)
			require.NoError(t, err)

			want := bruteForce(vectors, query, k)
			require.Len(t, hits, len(want))
			for i, h := range hits {
				assert.InDelta(t, want[i], float64(h.Distance), 1e-4)
				if i > 0 {
					assert.LessOrEqual(t, hits[i-1].Distance, h.Distance)
				}
			}
		}
	}
}

func TestSearch_DimensionMismatch(t *testing.T) {
	idx, err := vectorindex.Build(entries(1), [][]float32{{1, 2, 3}}, vectorindex.Manifest{})
	require.NoError(t, err)

	_, err = idx.Search([]float32{1, 2}, 1)
	assert.ErrorIs(t, err, vectorindex.ErrDimensionMismatch)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	vectors := randomVectors(r, 30, 12)
	ents := entries(30)
	ents[4].Text = "Кафедра <b>ПЗ</b> & лабораторії"

	idx, err := vectorindex.Build(ents, vectors, vectorindex.Manifest{Model: "ollama/nomic-embed-text", Normalized: true, NormalizeLanguage: "english"})
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "index")
	require.NoError(t, idx.Save(dir))

	loaded, err := vectorindex.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, idx.Len(), loaded.Len())
	assert.Equal(t, idx.Manifest().Model, loaded.Manifest().Model)
	assert.True(t, loaded.Manifest().Normalized)
	assert.Equal(t, ents[4], loaded.Entry(4))
	assert.Equal(t, vectors[9], loaded.Vector(9))

	for i := 0; i < loaded.Len(); i++ {
		hits, err := loaded.Search(loaded.Vector(i), 3)
		require.NoError(t, err)
		assert.Equal(t, i, hits[0].Index)
		assert.InDelta(t, 0, hits[0].Distance, 1e-6)

		before, err := idx.Search(vectors[i], 3)
		require.NoError(t, err)
		assert.Equal(t, before, hits)
	}
}

func TestSave_ReplacesExisting(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "index")

	first, err := vectorindex.Build(entries(2), [][]float32{{0, 1}, {1, 0}}, vectorindex.Manifest{Model: "m1"})
	require.NoError(t, err)
	require.NoError(t, first.Save(dir))

	second, err := vectorindex.Build(entries(3), [][]float32{{0, 1}, {1, 0}, {1, 1}}, vectorindex.Manifest{Model: "m2"})
	require.NoError(t, err)
	require.NoError(t, second.Save(dir))

	loaded, err := vectorindex.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Len())
	assert.Equal(t, "m2", loaded.Manifest().Model)

	names, err := os.ReadDir(parent)
	require.NoError(t, err)
	require.Len(t, names, 1, "temp or backup directories left behind")
	assert.Equal(t, "index", names[0].Name())
}

func TestLoad_MissingArtifacts(t *testing.T) {
	idx, err := vectorindex.Build(entries(2), [][]float32{{0, 1}, {1, 0}}, vectorindex.Manifest{})
	require.NoError(t, err)

	for _, name := range []string{vectorindex.IndexFile, vectorindex.VectorsFile, vectorindex.TextsFile, vectorindex.ManifestFile} {
		t.Run(name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "index")
			require.NoError(t, idx.Save(dir))
			require.NoError(t, os.Remove(filepath.Join(dir, name)))

			_, err := vectorindex.Load(dir)
			assert.ErrorIs(t, err, vectorindex.ErrMissingArtifact)
		})
	}
}

func TestLoad_Inconsistent(t *testing.T) {
	idx, err := vectorindex.Build(entries(3), [][]float32{{0, 1}, {1, 0}, {1, 1}}, vectorindex.Manifest{})
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "index")
	require.NoError(t, idx.Save(dir))

	// Drop one text so the counts disagree.
	texts := []vectorindex.Entry{idx.Entry(0), idx.Entry(1)}
	data, err := json.Marshal(texts)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, vectorindex.TextsFile), data, 0o644))

	_, err = vectorindex.Load(dir)
	assert.ErrorIs(t, err, vectorindex.ErrInconsistent)
}

func TestLoad_DimensionDisagrees(t *testing.T) {
	idx, err := vectorindex.Build(entries(2), [][]float32{{0, 1}, {1, 0}}, vectorindex.Manifest{})
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "index")
	require.NoError(t, idx.Save(dir))

	m := idx.Manifest()
	m.Dimension = 3
	data, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, vectorindex.ManifestFile), data, 0o644))

	_, err = vectorindex.Load(dir)
	assert.ErrorIs(t, err, vectorindex.ErrInconsistent)
}

func TestLoad_SchemaVersion(t *testing.T) {
	idx, err := vectorindex.Build(entries(1), [][]float32{{1}}, vectorindex.Manifest{})
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "index")
	require.NoError(t, idx.Save(dir))

	m := idx.Manifest()
	m.SchemaVersion = 99
	data, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, vectorindex.ManifestFile), data, 0o644))

	_, err = vectorindex.Load(dir)
	assert.ErrorIs(t, err, vectorindex.ErrSchemaVersion)
}
