package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// OpenAI設定（Embeddings + 対策テキスト生成）
	OpenAI OpenAIConfig

	// ベクトルインデックス設定
	Index IndexConfig

	// 強化パイプライン設定
	Enrich EnrichConfig

	// ログ設定
	Log LogConfig
}

// OpenAIConfig はOpenAI API設定
type OpenAIConfig struct {
	APIKey              string
	EmbeddingModel      string
	EmbeddingDimension  int
	SolutionModel       string // 対策テキスト生成に使用するモデル名
	SolutionMaxTokens   int
	SolutionTemperature float64
	MaxRetries          int
	RetryDelaySeconds   int
}

// IndexConfig はベクトルインデックスの構築・永続化設定
type IndexConfig struct {
	Dir            string
	MaxBatchTokens int
}

// EnrichConfig は強化パイプラインの設定
type EnrichConfig struct {
	OutputPath            string
	FallbackTemporalScore float64
}

// LogConfig はログ出力の設定
type LogConfig struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "json" or "text"
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		OpenAI: OpenAIConfig{
			APIKey:              getEnv("OPENAI_API_KEY", ""),
			EmbeddingModel:      getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension:  getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 1536),
			SolutionModel:       getEnv("OPENAI_SOLUTION_MODEL", "gpt-4o-mini"),
			SolutionMaxTokens:   getEnvAsInt("OPENAI_SOLUTION_MAX_TOKENS", 150),
			SolutionTemperature: getEnvAsFloat("OPENAI_SOLUTION_TEMPERATURE", 0.7),
			MaxRetries:          getEnvAsInt("OPENAI_MAX_RETRIES", 5),
			RetryDelaySeconds:   getEnvAsInt("OPENAI_RETRY_DELAY_SECONDS", 15),
		},
		Index: IndexConfig{
			Dir:            getEnv("INDEX_DIR", "./vector_db"),
			MaxBatchTokens: getEnvAsInt("INDEX_MAX_BATCH_TOKENS", 100000),
		},
		Enrich: EnrichConfig{
			OutputPath:            getEnv("ENRICH_OUTPUT_PATH", "./output/solutions/enriched_vulnerability_solutions.json"),
			FallbackTemporalScore: getEnvAsFloat("ENRICH_FALLBACK_TEMPORAL_SCORE", 6.5),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
