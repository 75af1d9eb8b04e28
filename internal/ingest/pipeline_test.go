package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragtutor/internal/chunker"
	"ragtutor/internal/domain"
)

type fakeEmbedder struct {
	dim       int
	failAfter int // fail calls once this many have succeeded; -1 never fails
	calls     int
}

func (e *fakeEmbedder) Dimension() int { return e.dim }

func (e *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.failAfter >= 0 && e.calls > e.failAfter {
		return nil, fmt.Errorf("%w: backend down", domain.ErrEmbedding)
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, e.dim)
		v[0] = 1
		out[i] = v
	}
	return out, nil
}

type fakeIndex struct {
	ensured   map[string]int
	upserts   [][]domain.Point
	upsertErr error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{ensured: make(map[string]int)}
}

func (f *fakeIndex) EnsureCollection(ctx context.Context, name string, dim int) error {
	f.ensured[name] = dim
	return nil
}

func (f *fakeIndex) Upsert(ctx context.Context, name string, points []domain.Point) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts = append(f.upserts, points)
	return nil
}

func (f *fakeIndex) Search(ctx context.Context, name string, vector []float32, topK int) ([]domain.ScoredPoint, error) {
	return nil, nil
}

func (f *fakeIndex) Scroll(ctx context.Context, name string, limit int, cursor string) ([]domain.ScoredPoint, string, error) {
	return nil, "", nil
}

func (f *fakeIndex) DeletePoints(ctx context.Context, name string, ids []string) error { return nil }

func (f *fakeIndex) DeleteCollection(ctx context.Context, name string) error { return nil }

func newTestPipeline(t *testing.T, emb *fakeEmbedder, idx *fakeIndex) *Pipeline {
	t.Helper()
	ch, err := chunker.NewSentenceChunker(10, 2, nil)
	require.NoError(t, err)
	return NewPipeline(ch, emb, idx, "test", nil)
}

func TestIngestFileUpsertsAllChunks(t *testing.T) {
	emb := &fakeEmbedder{dim: 4, failAfter: -1}
	idx := newFakeIndex()
	p := newTestPipeline(t, emb, idx)

	text := strings.TrimSpace(strings.Repeat("one two three four five six seven eight nine ten. ", 3))
	n, err := p.IngestFile(context.Background(), "alice@example.com", "notes.txt", []byte(text))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Equal(t, map[string]int{"test_alice_example_com": 4}, idx.ensured)
	require.Len(t, idx.upserts, 1)
	points := idx.upserts[0]
	require.Len(t, points, 3)
	seen := map[string]struct{}{}
	for i, pt := range points {
		assert.NotEmpty(t, pt.ID)
		seen[pt.ID] = struct{}{}
		assert.Equal(t, i, pt.Payload.ChunkIndex)
		assert.Equal(t, "notes.txt", pt.Payload.Source)
		assert.Equal(t, "notes.txt", pt.Payload.FileName)
		assert.Equal(t, "alice@example.com", pt.Payload.Owner)
		assert.NotEmpty(t, pt.Payload.Text)
		assert.NotEmpty(t, pt.Payload.UploadedAt)
	}
	assert.Len(t, seen, 3)
}

func TestIngestFileEmptyDocument(t *testing.T) {
	emb := &fakeEmbedder{dim: 4, failAfter: -1}
	idx := newFakeIndex()
	p := newTestPipeline(t, emb, idx)

	n, err := p.IngestFile(context.Background(), "o", "empty.txt", []byte("   "))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, idx.ensured)
}

func TestIngestFileBatchesLargeDocuments(t *testing.T) {
	emb := &fakeEmbedder{dim: 4, failAfter: -1}
	idx := newFakeIndex()
	p := newTestPipeline(t, emb, idx)

	// 120 sentences of 10 tokens each yields 120 chunks, two batches
	var sb strings.Builder
	for i := 0; i < 120; i++ {
		sb.WriteString("one two three four five six seven eight nine ten. ")
	}
	n, err := p.IngestFile(context.Background(), "o", "big.txt", []byte(sb.String()))
	require.NoError(t, err)
	assert.Equal(t, 120, n)
	require.Len(t, idx.upserts, 2)
	assert.Len(t, idx.upserts[0], EmbedBatchSize)
	assert.Len(t, idx.upserts[1], 20)
	assert.Equal(t, 2, emb.calls)

	// chunk indices keep running across batches
	assert.Equal(t, EmbedBatchSize, idx.upserts[1][0].Payload.ChunkIndex)
}

func TestIngestFileDegradesToZeroVectorsOnEmbeddingFailure(t *testing.T) {
	emb := &fakeEmbedder{dim: 4, failAfter: 0}
	idx := newFakeIndex()
	p := newTestPipeline(t, emb, idx)

	n, err := p.IngestFile(context.Background(), "o", "doc.txt", []byte("some words worth keeping."))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, idx.upserts, 1)
	for _, pt := range idx.upserts[0] {
		assert.Equal(t, make([]float32, 4), pt.Vector)
		assert.NotEmpty(t, pt.Payload.Text)
	}
}

func TestIngestFileSurfacesUpsertFailure(t *testing.T) {
	emb := &fakeEmbedder{dim: 4, failAfter: -1}
	idx := newFakeIndex()
	idx.upsertErr = errors.New("index down")
	p := newTestPipeline(t, emb, idx)

	n, err := p.IngestFile(context.Background(), "o", "doc.txt", []byte("some words worth keeping."))
	require.Error(t, err)
	assert.Zero(t, n)
}
