package openai

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/jinford/vuln-enrich/internal/core/enrich"
)

const (
	// DefaultSolutionModel はデフォルトで使用するOpenAIモデル
	DefaultSolutionModel = "gpt-4o-mini"

	// DefaultSolutionTimeout はAPI呼び出しのデフォルトタイムアウト
	DefaultSolutionTimeout = 120 * time.Second

	// DefaultSolutionMaxTokens は生成する対策テキストのトークン数上限
	DefaultSolutionMaxTokens = 150

	// DefaultSolutionTemperature は生成時の温度パラメータ
	DefaultSolutionTemperature = 0.7

	// solutionMaxRetries はレート制限エラー時の最大リトライ回数
	solutionMaxRetries = 3

	// solutionBaseBackoff はExponential Backoffの基底時間
	solutionBaseBackoff = 2 * time.Second

	// solutionMaxBackoff はExponential Backoffの最大待機時間
	solutionMaxBackoff = 32 * time.Second
)

// solutionPromptTemplate は対策テキスト生成のプロンプト。
// 近傍レコードの既存対策をヒントとして渡す。
const solutionPromptTemplate = `You are a friendly security expert. Based on the following vulnerability description, CVSS context, and any existing solution, provide a concise remediation (2-3 sentences) that a system administrator can act on.

**Description**: %s

**CVSS Context**: %s

**Existing Solution (if any)**: %s

### Solution:`

// SolutionGenerator は OpenAI Chat Completions を使用して対策テキストを生成する
type SolutionGenerator struct {
	client      openai.Client
	model       string
	timeout     time.Duration
	maxTokens   int
	temperature float64
	logger      *slog.Logger
}

type generatorOptions struct {
	model       string
	timeout     time.Duration
	maxTokens   int
	temperature float64
	logger      *slog.Logger
}

// GeneratorOption は SolutionGenerator のオプション設定
type GeneratorOption func(*generatorOptions)

// WithSolutionModel はモデル名を上書きする
func WithSolutionModel(model string) GeneratorOption {
	return func(o *generatorOptions) {
		o.model = model
	}
}

// WithSolutionTimeout はAPI呼び出しのタイムアウトを上書きする
func WithSolutionTimeout(timeout time.Duration) GeneratorOption {
	return func(o *generatorOptions) {
		o.timeout = timeout
	}
}

// WithSolutionMaxTokens は生成トークン数上限を上書きする
func WithSolutionMaxTokens(maxTokens int) GeneratorOption {
	return func(o *generatorOptions) {
		o.maxTokens = maxTokens
	}
}

// WithSolutionTemperature は温度パラメータを上書きする
func WithSolutionTemperature(temperature float64) GeneratorOption {
	return func(o *generatorOptions) {
		o.temperature = temperature
	}
}

// WithGeneratorLogger はロガーを差し替える
func WithGeneratorLogger(logger *slog.Logger) GeneratorOption {
	return func(o *generatorOptions) {
		o.logger = logger
	}
}

// NewSolutionGenerator は新しい SolutionGenerator を作成する
func NewSolutionGenerator(apiKey string, opts ...GeneratorOption) (*SolutionGenerator, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	options := generatorOptions{
		model:       DefaultSolutionModel,
		timeout:     DefaultSolutionTimeout,
		maxTokens:   DefaultSolutionMaxTokens,
		temperature: DefaultSolutionTemperature,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &SolutionGenerator{
		client:      openai.NewClient(option.WithAPIKey(apiKey)),
		model:       options.model,
		timeout:     options.timeout,
		maxTokens:   options.maxTokens,
		temperature: options.temperature,
		logger:      options.logger,
	}, nil
}

// ModelName はモデル名を返す
func (g *SolutionGenerator) ModelName() string {
	return g.model
}

// GenerateSolution は OpenAI API を使用して対策テキストを生成する
func (g *SolutionGenerator) GenerateSolution(ctx context.Context, req enrich.SolutionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	matchedSolution := req.MatchedSolution
	if matchedSolution == "" {
		matchedSolution = "None"
	}

	prompt := fmt.Sprintf(solutionPromptTemplate, req.Description, req.CVSSContext, matchedSolution)

	return g.generateWithRetry(ctx, prompt)
}

// generateWithRetry はレート制限エラー時のみExponential Backoffで再試行する。
// それ以外のエラーは即座に返す。
func (g *SolutionGenerator) generateWithRetry(ctx context.Context, prompt string) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= solutionMaxRetries; attempt++ {
		if attempt > 0 {
			backoffDuration := time.Duration(math.Pow(2, float64(attempt-1))) * solutionBaseBackoff
			if backoffDuration > solutionMaxBackoff {
				backoffDuration = solutionMaxBackoff
			}

			g.logger.Warn("retrying solution generation",
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoffDuration))

			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoffDuration):
			}
		}

		params := openai.ChatCompletionNewParams{
			Model: shared.ChatModel(g.model),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(prompt),
			},
			Temperature: openai.Float(g.temperature),
		}

		if g.maxTokens > 0 {
			params.MaxTokens = openai.Int(int64(g.maxTokens))
		}

		completion, err := g.client.Chat.Completions.New(ctx, params)
		if err != nil {
			lastErr = err

			if isRateLimitError(err) {
				continue
			}

			return "", fmt.Errorf("OpenAI API call failed: %w", err)
		}

		if len(completion.Choices) == 0 {
			return "", fmt.Errorf("no completion choices returned")
		}

		return completion.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

// インターフェース実装の確認
var _ enrich.SolutionGenerator = (*SolutionGenerator)(nil)
