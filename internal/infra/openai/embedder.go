package openai

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/pkoukk/tiktoken-go"

	"github.com/jinford/vuln-enrich/internal/core/index"
)

const (
	// DefaultEmbeddingModel はモデル未指定時のデフォルトモデル
	DefaultEmbeddingModel = "text-embedding-3-small"

	// DefaultEmbeddingDimension はOpenAI推奨のデフォルト次元
	DefaultEmbeddingDimension = 1536

	// DefaultMaxBatchTokens は1バッチあたりのトークン数上限。
	// 大規模コーパスでのリクエストサイズとピークメモリを抑える。
	DefaultMaxBatchTokens = 100000

	// DefaultEmbedMaxRetries は埋め込み呼び出しの最大リトライ回数
	DefaultEmbedMaxRetries = 5

	// DefaultEmbedRetryDelay はリトライ間の固定待機時間
	DefaultEmbedRetryDelay = 15 * time.Second

	// maxBatchItems はOpenAI Embeddings APIの1リクエスト上限件数
	maxBatchItems = 100

	// tokenEncoding はトークン数見積もりに使うエンコーディング
	tokenEncoding = "cl100k_base"
)

// Embedder は OpenAI API を使用してテキストをL2正規化済みベクトルに変換する。
// 次元は初期化時に固定され、以後変わらない。
type Embedder struct {
	client         openai.Client
	model          string
	dimension      int
	maxBatchTokens int
	maxRetries     int
	retryDelay     time.Duration
	encoding       *tiktoken.Tiktoken
	logger         *slog.Logger
}

type embedderOptions struct {
	model          string
	dimension      int
	maxBatchTokens int
	maxRetries     int
	retryDelay     time.Duration
	logger         *slog.Logger
}

// EmbedderOption は Embedder のオプション設定
type EmbedderOption func(*embedderOptions)

// WithEmbeddingModel はモデル名を上書きする
func WithEmbeddingModel(model string) EmbedderOption {
	return func(o *embedderOptions) {
		o.model = model
	}
}

// WithEmbeddingDimension はベクトル次元を上書きする
func WithEmbeddingDimension(dimension int) EmbedderOption {
	return func(o *embedderOptions) {
		o.dimension = dimension
	}
}

// WithMaxBatchTokens は1バッチあたりのトークン数上限を上書きする
func WithMaxBatchTokens(tokens int) EmbedderOption {
	return func(o *embedderOptions) {
		o.maxBatchTokens = tokens
	}
}

// WithEmbedRetry はリトライ回数と固定待機時間を上書きする
func WithEmbedRetry(maxRetries int, delay time.Duration) EmbedderOption {
	return func(o *embedderOptions) {
		o.maxRetries = maxRetries
		o.retryDelay = delay
	}
}

// WithEmbedderLogger はロガーを差し替える
func WithEmbedderLogger(logger *slog.Logger) EmbedderOption {
	return func(o *embedderOptions) {
		o.logger = logger
	}
}

// NewEmbedder は新しい Embedder を作成する
func NewEmbedder(apiKey string, opts ...EmbedderOption) (*Embedder, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	options := embedderOptions{
		model:          DefaultEmbeddingModel,
		dimension:      DefaultEmbeddingDimension,
		maxBatchTokens: DefaultMaxBatchTokens,
		maxRetries:     DefaultEmbedMaxRetries,
		retryDelay:     DefaultEmbedRetryDelay,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	encoding, err := tiktoken.GetEncoding(tokenEncoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load token encoding: %w", err)
	}

	return &Embedder{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
		),
		model:          options.model,
		dimension:      options.dimension,
		maxBatchTokens: options.maxBatchTokens,
		maxRetries:     options.maxRetries,
		retryDelay:     options.retryDelay,
		encoding:       encoding,
		logger:         options.logger,
	}, nil
}

// ModelName はモデル名を返す
func (e *Embedder) ModelName() string {
	return e.model
}

// Dimension はベクトル次元数を返す
func (e *Embedder) Dimension() int {
	return e.dimension
}

// EmbedBatch は任意件数のテキストの Embedding を生成する。
// 入力は件数上限とトークン数上限の両方を満たすチャンクに分割して順次処理する。
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts provided")
	}

	embeddings := make([][]float32, 0, len(texts))
	for _, batch := range e.splitBatches(texts) {
		vectors, err := e.embedWithRetry(ctx, batch)
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, vectors...)
	}

	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(embeddings), len(texts))
	}

	return embeddings, nil
}

// splitBatches は入力をAPIの件数上限とトークン数上限に収まるバッチに分割する。
// 単体でトークン上限を超えるテキストは単独バッチになる。
func (e *Embedder) splitBatches(texts []string) [][]string {
	var batches [][]string
	var current []string
	currentTokens := 0

	for _, text := range texts {
		tokens := len(e.encoding.Encode(text, nil, nil))

		if len(current) > 0 && (len(current) >= maxBatchItems || currentTokens+tokens > e.maxBatchTokens) {
			batches = append(batches, current)
			current = nil
			currentTokens = 0
		}

		current = append(current, text)
		currentTokens += tokens
	}

	if len(current) > 0 {
		batches = append(batches, current)
	}

	return batches
}

// embedWithRetry は1バッチをAPIに送る。失敗時は固定待機の後に再試行し、
// 回数上限に達したら ErrMaxRetriesExceeded を返す。
func (e *Embedder) embedWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	var lastErr error

	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			e.logger.Warn("retrying embedding request",
				slog.Int("attempt", attempt),
				slog.Int("max_retries", e.maxRetries),
				slog.Bool("rate_limited", isRateLimitError(lastErr)),
				slog.String("error", lastErr.Error()))

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.retryDelay):
			}
		}

		vectors, err := e.embedOnce(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		return vectors, nil
	}

	return nil, fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

func (e *Embedder) embedOnce(ctx context.Context, batch []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
	}

	if len(batch) == 1 {
		params.Input = openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(batch[0]),
		}
	} else {
		params.Input = openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: batch,
		}
	}

	if e.dimension > 0 {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}

	vectors := make([][]float32, 0, len(resp.Data))
	for _, data := range resp.Data {
		vector := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			vector[i] = float32(v)
		}
		normalizeL2(vector)
		vectors = append(vectors, vector)
	}

	return vectors, nil
}

// normalizeL2 はベクトルをインプレースでL2正規化する。
// ゼロベクトルはそのまま返す。
func normalizeL2(vector []float32) {
	var sum float64
	for _, v := range vector {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}

	norm := math.Sqrt(sum)
	for i := range vector {
		vector[i] = float32(float64(vector[i]) / norm)
	}
}

// インターフェース実装の確認
var _ index.Embedder = (*Embedder)(nil)
