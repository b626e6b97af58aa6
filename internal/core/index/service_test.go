package index

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/vuln-enrich/internal/core/vuln"
)

// stubEmbedder は決定的な疑似埋め込みを返すテスト用プロバイダー。
// 同一テキストは常に同一ベクトルになる。
type stubEmbedder struct {
	dim   int
	model string
	err   error
}

func (e *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = pseudoEmbed(text, e.dim)
	}
	return out, nil
}

func (e *stubEmbedder) Dimension() int    { return e.dim }
func (e *stubEmbedder) ModelName() string { return e.model }

// pseudoEmbed はテキストからL2正規化済みの決定的ベクトルを作る
func pseudoEmbed(text string, dim int) []float32 {
	vec := make([]float32, dim)
	for i, r := range text {
		vec[(i+int(r))%dim] += float32(int(r)%13) + 1
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

func newTestService(t *testing.T) (*Service, *stubEmbedder) {
	t.Helper()
	embedder := &stubEmbedder{dim: 8, model: "stub-embedding-v1"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(embedder, WithServiceLogger(logger)), embedder
}

func TestComputeNlist(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{1, 1},
		{4, 2},
		{9, 3},
		{100, 10},
		{2, 1},
		{3, 2},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, computeNlist(tt.n), "n=%d", tt.n)
	}
}

func TestBuild_NoValidRecords(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Build(context.Background(), []vuln.Record{
		{ID: "V1", Description: "   "},
	})

	require.ErrorIs(t, err, ErrNoRecords)
	assert.False(t, svc.Ready())
}

func TestBuild_DuplicateIDKeepsLastEntry(t *testing.T) {
	svc, _ := newTestService(t)

	stats, err := svc.Build(context.Background(), []vuln.Record{
		{ID: "DUP", Title: "first", Description: "heap overflow in parser"},
		{ID: "DUP", Title: "second", Description: "use after free in renderer"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Duplicates)

	pos, ok := svc.Position("DUP")
	require.True(t, ok)
	assert.Equal(t, 1, pos)
}

func TestBuild_FallbackIDsAssignedByPosition(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Build(context.Background(), []vuln.Record{
		{Description: "missing id record"},
	})
	require.NoError(t, err)

	pos, ok := svc.Position("vuln_0")
	require.True(t, ok)
	assert.Equal(t, 0, pos)
}

func TestQuery_BeforeBuildReturnsSentinel(t *testing.T) {
	svc, _ := newTestService(t)

	results, err := svc.Query(context.Background(), []string{"anything"}, 3)
	require.NoError(t, err)

	require.Len(t, results, 1)
	require.Len(t, results[0], 1)
	assert.True(t, results[0][0].IsSentinel())
	assert.Equal(t, "anything", results[0][0].Description)
}

func TestQuery_EmbedderFailureDegradesToSentinel(t *testing.T) {
	svc, embedder := newTestService(t)

	_, err := svc.Build(context.Background(), []vuln.Record{
		{ID: "V1", Description: "SQL injection in login"},
	})
	require.NoError(t, err)

	embedder.err = errors.New("provider unavailable")

	results, err := svc.Query(context.Background(), []string{"SQL injection"}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0][0].IsSentinel())
}

func TestBuildAndQuery_SingleRecord(t *testing.T) {
	svc, _ := newTestService(t)

	stats, err := svc.Build(context.Background(), []vuln.Record{
		{ID: "V1", Description: "SQL injection in login"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Nlist)
	assert.Equal(t, 1, stats.Indexed)

	results, err := svc.Query(context.Background(), []string{"SQL injection in login"}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0], 1)

	hit := results[0][0]
	assert.Equal(t, "V1", hit.ID)
	assert.InDelta(t, 0.0, hit.Distance, 1e-6)
}

func TestQuery_RanksExactMatchFirst(t *testing.T) {
	svc, _ := newTestService(t)

	records := []vuln.Record{
		{ID: "V1", Synopsis: "SQLi", Description: "SQL injection in login form"},
		{ID: "V2", Synopsis: "XSS", Description: "stored cross site scripting in comments"},
		{ID: "V3", Synopsis: "RCE", Description: "remote code execution via deserialization"},
	}
	_, err := svc.Build(context.Background(), records)
	require.NoError(t, err)

	results, err := svc.Query(context.Background(), []string{records[1].EmbeddingText()}, 3)
	require.NoError(t, err)
	require.NotEmpty(t, results[0])

	assert.Equal(t, "V2", results[0][0].ID)
	assert.InDelta(t, 0.0, results[0][0].Distance, 1e-6)

	// 距離は昇順
	for i := 1; i < len(results[0]); i++ {
		assert.GreaterOrEqual(t, results[0][i].Distance, results[0][i-1].Distance)
	}
}

func TestQuery_DropsMissingCandidatesInsteadOfPadding(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Build(context.Background(), []vuln.Record{
		{ID: "V1", Description: "buffer overflow"},
		{ID: "V2", Description: "path traversal"},
	})
	require.NoError(t, err)

	results, err := svc.Query(context.Background(), []string{"buffer overflow"}, 10)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results[0]), 2)
}

func TestSaveLoad_Roundtrip(t *testing.T) {
	dir := t.TempDir()

	builder, _ := newTestService(t)
	_, err := builder.Build(context.Background(), []vuln.Record{
		{ID: "V1", Description: "SQL injection in login", Solution: "use prepared statements"},
		{ID: "V2", Description: "cleartext credentials in config"},
	})
	require.NoError(t, err)
	require.NoError(t, builder.Save(dir))

	reader, _ := newTestService(t)
	require.NoError(t, reader.Load(dir))
	assert.Equal(t, 2, reader.Count())

	results, err := reader.Query(context.Background(), []string{"SQL injection in login"}, 1)
	require.NoError(t, err)
	require.Len(t, results[0], 1)
	assert.Equal(t, "V1", results[0][0].ID)
	assert.Equal(t, "use prepared statements", results[0][0].Solution)
}

func TestLoad_ProviderMismatch(t *testing.T) {
	dir := t.TempDir()

	builder, _ := newTestService(t)
	_, err := builder.Build(context.Background(), []vuln.Record{
		{ID: "V1", Description: "SQL injection in login"},
	})
	require.NoError(t, err)
	require.NoError(t, builder.Save(dir))

	other := &stubEmbedder{dim: 8, model: "different-model"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reader := NewService(other, WithServiceLogger(logger))

	err = reader.Load(dir)
	require.ErrorIs(t, err, ErrProviderMismatch)
	assert.False(t, reader.Ready())
}

func TestSave_BeforeBuildIsError(t *testing.T) {
	svc, _ := newTestService(t)
	require.ErrorIs(t, svc.Save(t.TempDir()), ErrIndexNotReady)
}
