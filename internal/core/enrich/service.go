package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/jinford/vuln-enrich/internal/core/cvss"
	"github.com/jinford/vuln-enrich/internal/core/index"
	"github.com/jinford/vuln-enrich/internal/core/vuln"
)

// 生成テキストサービスが使えない場合の固定フォールバックメッセージ
const (
	// FallbackSolutionEmpty は応答が空だった場合のメッセージ
	FallbackSolutionEmpty = "Oops! No solution generated—please check with your security team!"

	// FallbackSolutionError は呼び出しが失敗した場合のメッセージ
	FallbackSolutionError = "Error generating solution—please consult your security team!"

	// defaultMatchedSolution は近傍に既存の対策がない場合のプロンプト用テキスト
	defaultMatchedSolution = "No pre-existing solution available"
)

// Matcher は類似脆弱性を検索するインターフェース
type Matcher interface {
	// Query はクエリ文字列ごとに距離昇順で最大k件のヒットを返す
	Query(ctx context.Context, texts []string, k int) ([][]index.Hit, error)
}

// SolutionRequest は対策テキスト生成のリクエスト
type SolutionRequest struct {
	// Description は脆弱性の説明
	Description string

	// CVSSContext はスコアとベクターの要約テキスト
	CVSSContext string

	// MatchedSolution は近傍レコードの既存対策テキスト
	MatchedSolution string
}

// SolutionGenerator は外部の生成テキストサービスのインターフェース
type SolutionGenerator interface {
	// GenerateSolution は対策テキストを生成する
	GenerateSolution(ctx context.Context, req SolutionRequest) (string, error)
}

// Service は強化パイプラインのオーケストレーター。
// レコードごとに 検索 → メトリクス解決 → 深刻度分類 → 対策生成 を順に実行する。
type Service struct {
	matcher   Matcher
	resolver  *cvss.ResolveService
	generator SolutionGenerator
	logger    *slog.Logger
}

type enrichOptions struct {
	logger *slog.Logger
}

// EnrichOption は Service のオプション設定
type EnrichOption func(*enrichOptions)

// WithEnrichLogger はロガーを差し替える
func WithEnrichLogger(logger *slog.Logger) EnrichOption {
	return func(o *enrichOptions) {
		o.logger = logger
	}
}

// NewService は新しい Service を作成する
func NewService(matcher Matcher, resolver *cvss.ResolveService, generator SolutionGenerator, opts ...EnrichOption) *Service {
	options := enrichOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Service{
		matcher:   matcher,
		resolver:  resolver,
		generator: generator,
		logger:    options.logger,
	}
}

// Run は候補レコードのバッチを強化する。
// 個々のレコードの失敗（description なし、Baseスコア解決不能）は
// 診断ログを出してスキップし、バッチ全体は継続する。
func (s *Service) Run(ctx context.Context, records []vuln.Record) (*RunResult, error) {
	result := &RunResult{
		RunID:    uuid.New(),
		Enriched: make([]Enriched, 0, len(records)),
	}

	s.logger.Info("starting enrichment run",
		slog.String("run_id", result.RunID.String()),
		slog.Int("records", len(records)))

	for i, record := range records {
		if !record.HasDescription() {
			s.logger.Warn("skipping record with no description",
				slog.Int("position", i),
				slog.String("id", record.ID))
			result.Skipped++
			continue
		}

		matched, matchedSolution, err := s.match(ctx, record.Description)
		if err != nil {
			return nil, err
		}

		scored := s.resolver.ScoreRecord(record.Description, record.Metrics, matched)
		if scored.BaseScore == nil {
			s.logger.Warn("skipping record with unresolvable base score",
				slog.Int("position", i),
				slog.String("id", record.ID))
			result.Skipped++
			continue
		}

		severity := cvss.Severity(scored.BaseScore)
		solution := s.generateSolution(ctx, scored, matchedSolution)

		result.Enriched = append(result.Enriched, Enriched{
			Description:        scored.Description,
			CVSSVector:         scored.BaseVector,
			BaseScore:          scored.BaseScore,
			TemporalScore:      scored.TemporalScore,
			EnvironmentalScore: scored.EnvironmentalScore,
			Severity:           severity,
			Solution:           solution,
		})
	}

	s.logger.Info("enrichment run finished",
		slog.String("run_id", result.RunID.String()),
		slog.Int("enriched", len(result.Enriched)),
		slog.Int("skipped", result.Skipped))

	return result, nil
}

// match は最近傍の部分メトリクスと既存対策テキストを取得する。
// マッチなし・番兵・インデックス劣化時は空のメトリクスで続行する。
func (s *Service) match(ctx context.Context, description string) (cvss.MetricMap, string, error) {
	results, err := s.matcher.Query(ctx, []string{description}, 1)
	if err != nil {
		return nil, "", fmt.Errorf("index query failed: %w", err)
	}

	if len(results) == 0 || len(results[0]) == 0 {
		return cvss.MetricMap{}, defaultMatchedSolution, nil
	}

	hit := results[0][0]
	if hit.IsSentinel() {
		return cvss.MetricMap{}, defaultMatchedSolution, nil
	}

	matchedSolution := hit.Solution
	if matchedSolution == "" {
		matchedSolution = defaultMatchedSolution
	}
	return hit.Metrics, matchedSolution, nil
}

// generateSolution は対策テキストを生成する。
// タイムアウト・エラー・空応答の場合は固定フォールバックメッセージに置き換える。
func (s *Service) generateSolution(ctx context.Context, scored cvss.Result, matchedSolution string) string {
	cvssContext := fmt.Sprintf(
		"Base Score: %s, Temporal Score: %s, Environmental Score: %s, Vector: %s",
		formatScore(scored.BaseScore),
		formatScore(scored.TemporalScore),
		formatScore(scored.EnvironmentalScore),
		scored.BaseVector,
	)

	solution, err := s.generator.GenerateSolution(ctx, SolutionRequest{
		Description:     scored.Description,
		CVSSContext:     cvssContext,
		MatchedSolution: matchedSolution,
	})
	if err != nil {
		s.logger.Error("failed to generate solution, using fallback",
			slog.String("error", err.Error()))
		return FallbackSolutionError
	}

	solution = strings.TrimSpace(solution)
	if solution == "" {
		return FallbackSolutionEmpty
	}
	return solution
}

func formatScore(score *float64) string {
	if score == nil {
		return "N/A"
	}
	return strconv.FormatFloat(*score, 'f', 1, 64)
}

// WriteOutput は強化済みレコードをJSON配列として書き出す（追記ではなく上書き）
func WriteOutput(path string, result *RunResult) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	data, err := json.MarshalIndent(result.Enriched, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal enriched records: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
