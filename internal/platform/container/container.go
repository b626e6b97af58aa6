package container

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jinford/vuln-enrich/internal/core/cvss"
	"github.com/jinford/vuln-enrich/internal/core/enrich"
	"github.com/jinford/vuln-enrich/internal/core/index"
	"github.com/jinford/vuln-enrich/internal/core/vuln"
	"github.com/jinford/vuln-enrich/internal/infra/cvss31"
	"github.com/jinford/vuln-enrich/internal/infra/openai"
	"github.com/jinford/vuln-enrich/pkg/config"
)

// ServiceContainer はアプリケーションの依存関係を保持する
type ServiceContainer struct {
	IndexService  *index.Service
	EnrichService *enrich.Service
	Resolver      *cvss.ResolveService
	Loader        *vuln.Loader

	logger *slog.Logger
}

type containerOptions struct {
	logger    *slog.Logger
	embedder  index.Embedder
	generator enrich.SolutionGenerator
	scorer    cvss.Scorer
}

// ContainerOption は ServiceContainer 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerEmbedder はカスタム Embedder を注入する
func WithContainerEmbedder(embedder index.Embedder) ContainerOption {
	return func(opts *containerOptions) {
		opts.embedder = embedder
	}
}

// WithContainerGenerator はカスタム SolutionGenerator を注入する
func WithContainerGenerator(generator enrich.SolutionGenerator) ContainerOption {
	return func(opts *containerOptions) {
		opts.generator = generator
	}
}

// WithContainerScorer はカスタム Scorer を注入する
func WithContainerScorer(scorer cvss.Scorer) ContainerOption {
	return func(opts *containerOptions) {
		opts.scorer = scorer
	}
}

// NewContainer は設定からコンテナを生成する。
func NewContainer(cfg *config.Config, opts ...ContainerOption) (*ServiceContainer, error) {
	options := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	// Embedder (OpenAI)
	embedder := options.embedder
	if embedder == nil {
		openaiEmbedder, err := openai.NewEmbedder(
			cfg.OpenAI.APIKey,
			openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
			openai.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
			openai.WithMaxBatchTokens(cfg.Index.MaxBatchTokens),
			openai.WithEmbedRetry(cfg.OpenAI.MaxRetries, time.Duration(cfg.OpenAI.RetryDelaySeconds)*time.Second),
			openai.WithEmbedderLogger(options.logger),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		embedder = openaiEmbedder
	}

	// SolutionGenerator (OpenAI)
	generator := options.generator
	if generator == nil {
		openaiGenerator, err := openai.NewSolutionGenerator(
			cfg.OpenAI.APIKey,
			openai.WithSolutionModel(cfg.OpenAI.SolutionModel),
			openai.WithSolutionMaxTokens(cfg.OpenAI.SolutionMaxTokens),
			openai.WithSolutionTemperature(cfg.OpenAI.SolutionTemperature),
			openai.WithGeneratorLogger(options.logger),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize solution generator: %w", err)
		}
		generator = openaiGenerator
	}

	// Scorer (go-cvss)
	scorer := options.scorer
	if scorer == nil {
		scorer = cvss31.NewScorer()
	}

	indexService := index.NewService(embedder, index.WithServiceLogger(options.logger))

	resolver := cvss.NewResolveService(
		scorer,
		cfg.Enrich.FallbackTemporalScore,
		cvss.WithResolveLogger(options.logger),
	)

	enrichService := enrich.NewService(
		indexService,
		resolver,
		generator,
		enrich.WithEnrichLogger(options.logger),
	)

	loader := vuln.NewLoader(vuln.WithLoaderLogger(options.logger))

	return &ServiceContainer{
		IndexService:  indexService,
		EnrichService: enrichService,
		Resolver:      resolver,
		Loader:        loader,
		logger:        options.logger,
	}, nil
}

// Logger はロガーを返す。
func (c *ServiceContainer) Logger() *slog.Logger {
	if c == nil || c.logger == nil {
		return slog.Default()
	}
	return c.logger
}
