package openai

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmbedderOptionsOverrideDefaults(t *testing.T) {
	embedder, err := NewEmbedder("dummy-key",
		WithEmbeddingModel("custom-model"),
		WithEmbeddingDimension(42),
	)
	require.NoError(t, err)

	assert.Equal(t, "custom-model", embedder.ModelName())
	assert.Equal(t, 42, embedder.Dimension())
}

func TestNewEmbedderRequiresAPIKey(t *testing.T) {
	_, err := NewEmbedder("")
	assert.ErrorIs(t, err, ErrAPIKeyNotSet)
}

func TestSplitBatchesRespectsItemLimit(t *testing.T) {
	embedder, err := NewEmbedder("dummy-key")
	require.NoError(t, err)

	texts := make([]string, 250)
	for i := range texts {
		texts[i] = "short text"
	}

	batches := embedder.splitBatches(texts)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 100)
	assert.Len(t, batches[1], 100)
	assert.Len(t, batches[2], 50)
}

func TestSplitBatchesRespectsTokenLimit(t *testing.T) {
	embedder, err := NewEmbedder("dummy-key", WithMaxBatchTokens(50))
	require.NoError(t, err)

	long := strings.Repeat("vulnerability ", 30)
	batches := embedder.splitBatches([]string{long, long, "short"})

	// 各テキストが単体で上限を超えるため単独バッチになる
	require.Len(t, batches, 3)
	for _, batch := range batches {
		assert.Len(t, batch, 1)
	}
}

func TestSplitBatchesKeepsInputOrder(t *testing.T) {
	embedder, err := NewEmbedder("dummy-key")
	require.NoError(t, err)

	texts := []string{"a", "b", "c"}
	batches := embedder.splitBatches(texts)
	require.Len(t, batches, 1)
	assert.Equal(t, texts, batches[0])
}

func TestNormalizeL2(t *testing.T) {
	vector := []float32{3, 4}
	normalizeL2(vector)

	var sum float64
	for _, v := range vector {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-6)

	// ゼロベクトルはそのまま
	zero := []float32{0, 0}
	normalizeL2(zero)
	assert.Equal(t, []float32{0, 0}, zero)
}
