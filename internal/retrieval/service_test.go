package retrieval_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/deidaraiorek/campusrag/internal/middleware"
	"github.com/deidaraiorek/campusrag/internal/retrieval"
	"github.com/deidaraiorek/campusrag/internal/textprocessor"
	"github.com/deidaraiorek/campusrag/internal/vectorindex"
)

type MockEmbedder struct{ mock.Mock }

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockEmbedder) Model() string {
	return m.Called().String(0)
}

func threeEntryIndex(t *testing.T, meta vectorindex.Manifest) *vectorindex.Index {
	t.Helper()
	idx, err := vectorindex.Build(
		[]vectorindex.Entry{
			{URL: "https://uni.edu/a", Text: "alpha"},
			{URL: "https://uni.edu/b", Text: "beta"},
			{URL: "https://uni.edu/c", Text: "gamma"},
		},
		[][]float32{{0, 0}, {3, 4}, {1, 0}},
		meta,
	)
	require.NoError(t, err)
	return idx
}

func TestService_Search(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		k       int
		setup   func(*MockEmbedder)
		wantErr error
		check   func(*testing.T, []retrieval.Result)
	}{
		{
			name:  "k larger than index returns every entry in order",
			query: "where is alpha",
			k:     5,
			setup: func(e *MockEmbedder) {
				e.On("Embed", mock.Anything, "where is alpha").Return([]float32{0, 0}, nil)
			},
			check: func(t *testing.T, res []retrieval.Result) {
				require.Len(t, res, 3)
				assert.Equal(t, "https://uni.edu/a", res[0].URL)
				assert.Equal(t, "alpha", res[0].Text)
				assert.Equal(t, "https://uni.edu/c", res[1].URL)
				assert.Equal(t, "https://uni.edu/b", res[2].URL)
				assert.InDelta(t, 0, res[0].Distance, 1e-6)
				assert.InDelta(t, 1, res[1].Distance, 1e-6)
				assert.InDelta(t, 5, res[2].Distance, 1e-6)
			},
		},
		{
			name:  "k limits results",
			query: "beta",
			k:     1,
			setup: func(e *MockEmbedder) {
				e.On("Embed", mock.Anything, "beta").Return([]float32{3, 3}, nil)
			},
			check: func(t *testing.T, res []retrieval.Result) {
				require.Len(t, res, 1)
				assert.Equal(t, "https://uni.edu/b", res[0].URL)
			},
		},
		{
			name:    "zero k",
			query:   "alpha",
			k:       0,
			setup:   func(*MockEmbedder) {},
			wantErr: retrieval.ErrInvalidK,
		},
		{
			name:    "blank query",
			query:   "   ",
			k:       3,
			setup:   func(*MockEmbedder) {},
			wantErr: retrieval.ErrEmptyQuery,
		},
		{
			name:  "embedder failure",
			query: "alpha",
			k:     3,
			setup: func(e *MockEmbedder) {
				e.On("Embed", mock.Anything, "alpha").Return(nil, errors.New("offline"))
			},
		},
		{
			name:  "wrong query dimension",
			query: "alpha",
			k:     3,
			setup: func(e *MockEmbedder) {
				e.On("Embed", mock.Anything, "alpha").Return([]float32{1, 2, 3}, nil)
			},
			wantErr: vectorindex.ErrDimensionMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := new(MockEmbedder)
			e.On("Model").Return("test-model")
			tt.setup(e)

			svc, err := retrieval.NewService(e, threeEntryIndex(t, vectorindex.Manifest{Model: "test-model"}), nil, nil)
			require.NoError(t, err)

			res, err := svc.Search(context.Background(), tt.query, tt.k)
			if tt.check != nil {
				require.NoError(t, err)
				tt.check(t, res)
			} else {
				assert.Error(t, err)
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
				}
			}
			e.AssertExpectations(t)
		})
	}
}

func TestNewService_ModelMismatch(t *testing.T) {
	e := new(MockEmbedder)
	e.On("Model").Return("other-model")

	_, err := retrieval.NewService(e, threeEntryIndex(t, vectorindex.Manifest{Model: "test-model"}), nil, nil)
	assert.ErrorIs(t, err, retrieval.ErrModelMismatch)
}

func TestNewService_NormalizedIndexNeedsNormalizer(t *testing.T) {
	e := new(MockEmbedder)
	e.On("Model").Return("m")

	idx := threeEntryIndex(t, vectorindex.Manifest{Model: "m", Normalized: true, NormalizeLanguage: "english"})
	_, err := retrieval.NewService(e, idx, nil, nil)
	assert.ErrorIs(t, err, retrieval.ErrMissingNormalizer)
}

func TestService_NormalizesQueryForNormalizedIndex(t *testing.T) {
	e := new(MockEmbedder)
	e.On("Model").Return("m")
	e.On("Embed", mock.Anything, "student run").Return([]float32{1, 0}, nil)

	idx := threeEntryIndex(t, vectorindex.Manifest{Model: "m", Normalized: true, NormalizeLanguage: "english"})
	svc, err := retrieval.NewService(e, idx, textprocessor.NewTextProcessor("english", nil), nil)
	require.NoError(t, err)

	res, err := svc.Search(context.Background(), "The students are running", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "https://uni.edu/c", res[0].URL)
	e.AssertExpectations(t)
}

func TestService_PlainIndexIgnoresNormalizer(t *testing.T) {
	e := new(MockEmbedder)
	e.On("Model").Return("m")
	e.On("Embed", mock.Anything, "The students").Return([]float32{0, 0}, nil)

	svc, err := retrieval.NewService(e, threeEntryIndex(t, vectorindex.Manifest{Model: "m"}),
		textprocessor.NewTextProcessor("english", nil), nil)
	require.NoError(t, err)

	_, err = svc.Search(context.Background(), "The students", 1)
	require.NoError(t, err)
	e.AssertExpectations(t)
}

func TestService_LogsQueries(t *testing.T) {
	var buf bytes.Buffer
	e := new(MockEmbedder)
	e.On("Model").Return("m")
	e.On("Embed", mock.Anything, "alpha").Return([]float32{0, 0}, nil)

	svc, err := retrieval.NewService(e, threeEntryIndex(t, vectorindex.Manifest{Model: "m"}), nil, retrieval.NewQueryLogger(&buf))
	require.NoError(t, err)

	ctx := middleware.WithCorrelationID(context.Background(), "req-42")
	_, err = svc.Search(ctx, "alpha", 2)
	require.NoError(t, err)

	var entry retrieval.QueryLogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "alpha", entry.Query)
	assert.Equal(t, 2, entry.NumResults)
	assert.Equal(t, "req-42", entry.CorrelationID)
	assert.False(t, entry.Timestamp.IsZero())
}

func TestService_FailedQueryNotLogged(t *testing.T) {
	var buf bytes.Buffer
	e := new(MockEmbedder)
	e.On("Model").Return("m")
	e.On("Embed", mock.Anything, "alpha").Return(nil, errors.New("offline"))

	svc, err := retrieval.NewService(e, threeEntryIndex(t, vectorindex.Manifest{Model: "m"}), nil, retrieval.NewQueryLogger(&buf))
	require.NoError(t, err)

	_, err = svc.Search(context.Background(), "alpha", 2)
	require.Error(t, err)
	assert.Zero(t, buf.Len())
}

func TestService_QueryEmptiedByNormalization(t *testing.T) {
	e := new(MockEmbedder)
	e.On("Model").Return("m")

	idx := threeEntryIndex(t, vectorindex.Manifest{Model: "m", Normalized: true, NormalizeLanguage: "english"})
	svc, err := retrieval.NewService(e, idx, textprocessor.NewTextProcessor("english", nil), nil)
	require.NoError(t, err)

	_, err = svc.Search(context.Background(), "the and of 2025", 3)
	assert.ErrorIs(t, err, retrieval.ErrEmptyQuery)
	e.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
}
