package retriever

import (
	"context"
	"hash/fnv"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragtutor/internal/domain"
	"ragtutor/internal/embedding"
	"ragtutor/internal/vectorstore"
	"ragtutor/internal/vectorstore/memory"
)

// hashEmbedder produces deterministic unit vectors from word hashes, so
// identical texts embed identically and similar texts score high.
type hashEmbedder struct {
	dim  int
	fail bool
}

func (e *hashEmbedder) Dimension() int { return e.dim }

func (e *hashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.fail {
		return nil, domain.ErrEmbedding
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, e.dim)
		for _, word := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			h.Write([]byte(word))
			v[int(h.Sum32())%e.dim] += 1
		}
		out[i] = embedding.Normalize(v)
	}
	return out, nil
}

func seed(t *testing.T, idx *memory.Storage, emb *hashEmbedder, owner string, docs map[string][]string) {
	t.Helper()
	ctx := context.Background()
	name := vectorstore.CollectionName("test", owner)
	require.NoError(t, idx.EnsureCollection(ctx, name, emb.dim))
	id := 0
	for file, chunks := range docs {
		vectors, err := emb.Embed(ctx, chunks)
		require.NoError(t, err)
		points := make([]domain.Point, len(chunks))
		for i, text := range chunks {
			points[i] = domain.Point{
				ID:     string(rune('a' + id)),
				Vector: vectors[i],
				Payload: domain.Payload{
					Source:     file,
					FileName:   file,
					ChunkIndex: i,
					Text:       text,
					Owner:      owner,
				},
			}
			id++
		}
		require.NoError(t, idx.Upsert(ctx, name, points))
	}
}

func TestRetrieveRanksBySimilarity(t *testing.T) {
	emb := &hashEmbedder{dim: 32}
	idx := memory.NewStorage()
	seed(t, idx, emb, "alice@example.com", map[string][]string{
		"go.md": {
			"goroutines are lightweight threads managed by the runtime",
			"the capital of france is paris",
		},
	})
	r := New(emb, idx, "test", nil)

	docs, err := r.Retrieve(context.Background(), "alice@example.com", "goroutines lightweight threads runtime", 2)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Contains(t, docs[0].Text, "goroutines")
	assert.Greater(t, docs[0].Score, docs[1].Score)
	assert.Greater(t, docs[0].Score, 0.5)
	assert.Equal(t, "go.md", docs[0].Source)
	assert.Equal(t, "alice@example.com", docs[0].Metadata["email"])
}

func TestRetrieveTopKDefaultsAndValidation(t *testing.T) {
	emb := &hashEmbedder{dim: 8}
	idx := memory.NewStorage()
	seed(t, idx, emb, "o", map[string][]string{"f.txt": {"one", "two"}})
	r := New(emb, idx, "test", nil)
	ctx := context.Background()

	// zero means default, not an error
	docs, err := r.Retrieve(ctx, "o", "one", 0)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	_, err = r.Retrieve(ctx, "o", "one", -1)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestRetrieveMissingCollection(t *testing.T) {
	r := New(&hashEmbedder{dim: 8}, memory.NewStorage(), "test", nil)
	docs, err := r.Retrieve(context.Background(), "nobody", "anything", 3)
	require.NoError(t, err)
	assert.Nil(t, docs)
}

func TestRetrieveDegradesOnEmbeddingFailure(t *testing.T) {
	emb := &hashEmbedder{dim: 8}
	idx := memory.NewStorage()
	seed(t, idx, emb, "o", map[string][]string{"f.txt": {"alpha", "beta"}})
	emb.fail = true
	r := New(emb, idx, "test", nil)

	// zero query vector scores everything 0; the request still succeeds
	docs, err := r.Retrieve(context.Background(), "o", "alpha", 2)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Zero(t, docs[0].Score)
}

func TestListDocumentsDeduplicatesSources(t *testing.T) {
	emb := &hashEmbedder{dim: 8}
	idx := memory.NewStorage()
	seed(t, idx, emb, "o", map[string][]string{
		"a.md":  {"first chunk of a", "second chunk of a", "third chunk of a"},
		"b.txt": {"only chunk of b"},
	})
	r := New(emb, idx, "test", nil)

	docs, err := r.ListDocuments(context.Background(), "o", 10)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	sources := map[string]string{}
	for _, d := range docs {
		sources[d.Source] = d.Snippet
	}
	assert.Contains(t, sources, "a.md")
	assert.Contains(t, sources, "b.txt")
	assert.Equal(t, "only chunk of b", sources["b.txt"])

	// limit caps unique sources
	docs, err = r.ListDocuments(context.Background(), "o", 1)
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	_, err = r.ListDocuments(context.Background(), "o", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestListDocumentsMissingCollection(t *testing.T) {
	r := New(&hashEmbedder{dim: 8}, memory.NewStorage(), "test", nil)
	docs, err := r.ListDocuments(context.Background(), "nobody", 10)
	require.NoError(t, err)
	assert.Nil(t, docs)
}

func TestHasData(t *testing.T) {
	emb := &hashEmbedder{dim: 8}
	idx := memory.NewStorage()
	r := New(emb, idx, "test", nil)
	ctx := context.Background()

	has, err := r.HasData(ctx, "o")
	require.NoError(t, err)
	assert.False(t, has)

	seed(t, idx, emb, "o", map[string][]string{"f.txt": {"content"}})
	has, err = r.HasData(ctx, "o")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestDeleteDocuments(t *testing.T) {
	emb := &hashEmbedder{dim: 8}
	idx := memory.NewStorage()
	seed(t, idx, emb, "o", map[string][]string{
		"keep.md":  {"kept chunk"},
		"drop.txt": {"dropped one", "dropped two"},
	})
	r := New(emb, idx, "test", nil)
	ctx := context.Background()

	n, err := r.DeleteDocuments(ctx, "o", []string{"drop.txt"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	docs, err := r.ListDocuments(ctx, "o", 10)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "keep.md", docs[0].Source)

	// no file filter removes everything the owner has
	n, err = r.DeleteDocuments(ctx, "o", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	has, err := r.HasData(ctx, "o")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestDeleteDocumentsSkipsOtherOwners(t *testing.T) {
	// two raw owners landing in the same sanitized collection
	emb := &hashEmbedder{dim: 8}
	idx := memory.NewStorage()
	seed(t, idx, emb, "a.b", map[string][]string{"mine.md": {"mine"}})

	ctx := context.Background()
	name := vectorstore.CollectionName("test", "a@b")
	vectors, err := emb.Embed(ctx, []string{"theirs"})
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, name, []domain.Point{{
		ID:      "z",
		Vector:  vectors[0],
		Payload: domain.Payload{Source: "theirs.md", FileName: "theirs.md", Text: "theirs", Owner: "a@b"},
	}}))

	r := New(emb, idx, "test", nil)
	n, err := r.DeleteDocuments(ctx, "a.b", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	docs, err := r.ListDocuments(ctx, "a@b", 10)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "theirs.md", docs[0].Source)
}

func TestSnippetTruncation(t *testing.T) {
	short := "short text"
	assert.Equal(t, short, snippet(short))

	long := strings.Repeat("x", 600)
	assert.Len(t, snippet(long), 500)

	// never split a multi-byte rune at the cut
	runes := strings.Repeat("→", 200) // 3 bytes each, 500 falls mid-rune
	got := snippet(runes)
	assert.Equal(t, 498, len(got))
	assert.True(t, utf8.ValidString(got))
}
