// Package vectorindex is the embedding index: an ordered set of page
// entries, one vector per entry, and an exact L2 nearest-neighbour
// structure over those vectors. Position i is the same page in all three.
package vectorindex

import (
	"errors"
	"fmt"
	"time"
)

const (
	SchemaVersion = 1
	MetricL2      = "l2"
)

var (
	ErrEmptyCorpus       = errors.New("empty corpus")
	ErrMissingArtifact   = errors.New("missing index artifact")
	ErrInconsistent      = errors.New("inconsistent index artifacts")
	ErrSchemaVersion     = errors.New("unsupported index schema version")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

type Entry struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

type Manifest struct {
	SchemaVersion     int       `json:"schema_version"`
	Model             string    `json:"model"`
	Dimension         int       `json:"dimension"`
	Count             int       `json:"count"`
	Metric            string    `json:"metric"`
	Normalized        bool      `json:"normalized"`
	NormalizeLanguage string    `json:"normalize_language,omitempty"`
	BuiltAt           time.Time `json:"built_at"`
}

type Index struct {
	manifest Manifest
	entries  []Entry
	vectors  [][]float32
	tree     *vpTree
}

// Neighbor is one search hit: the position of the entry and its L2 distance to the query.
type Neighbor struct {
	Index    int
	Distance float32
}

// Build validates the inputs and constructs the search tree. Count,
// dimension, metric and schema version in meta are filled in from the data.
func Build(entries []Entry, vectors [][]float32, meta Manifest) (*Index, error) {
	if len(entries) == 0 || len(vectors) == 0 {
		return nil, ErrEmptyCorpus
	}
	if len(entries) != len(vectors) {
		return nil, fmt.Errorf("%w: %d entries, %d vectors", ErrInconsistent, len(entries), len(vectors))
	}

	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("%w: zero-length vector", ErrDimensionMismatch)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has %d dims, want %d", ErrDimensionMismatch, i, len(v), dim)
		}
	}

	meta.SchemaVersion = SchemaVersion
	meta.Dimension = dim
	meta.Count = len(entries)
	meta.Metric = MetricL2
	if meta.BuiltAt.IsZero() {
		meta.BuiltAt = time.Now().UTC()
	}

	idx := &Index{
		manifest: meta,
		entries:  append([]Entry(nil), entries...),
		vectors:  append([][]float32(nil), vectors...),
	}
	idx.tree = buildTree(idx.vectors)
	return idx, nil
}

func (x *Index) Len() int { return len(x.entries) }

func (x *Index) Dimension() int { return x.manifest.Dimension }

func (x *Index) Manifest() Manifest { return x.manifest }

func (x *Index) Entry(i int) Entry { return x.entries[i] }

func (x *Index) Vector(i int) []float32 { return x.vectors[i] }

// Search returns the min(k, Len()) nearest entries to query by ascending
// L2 distance; equal distances keep index order. Safe for concurrent use.
func (x *Index) Search(query []float32, k int) ([]Neighbor, error) {
	if len(query) != x.manifest.Dimension {
		return nil, fmt.Errorf("%w: query has %d dims, index has %d", ErrDimensionMismatch, len(query), x.manifest.Dimension)
	}
	if k <= 0 {
		return []Neighbor{}, nil
	}
	return x.tree.search(x.vectors, query, min(k, len(x.entries))), nil
}
