package cvss

import (
	"log/slog"
)

// Scorer はCVSS v3.1ベクター文字列からスコアを算出する外部スコアラーの
// インターフェース。構文的に不正なベクターには検証エラーを返す。
type Scorer interface {
	Score(vector string) (Scores, error)
}

// Scores はスコアラーが算出する3種類のスコア
type Scores struct {
	Base          float64
	Temporal      float64
	Environmental float64
}

// Result は1件の脆弱性に対するメトリクス解決・スコア算出の結果。
// スコアは [0,10] の値、または検証失敗時に nil になる。
type Result struct {
	Description         string
	BaseVector          string
	BaseScore           *float64
	TemporalVector      string // 空文字はTemporalベクター未構築を意味する
	TemporalScore       *float64
	EnvironmentalVector string
	EnvironmentalScore  *float64
}

// Resolve は fixed > matched > ドメイン既定値 の優先順位で
// 全メトリクスコードを解決する。戻り値のマップは常に全コードを含む。
// ドメイン外の値は無視され、次の優先順位にフォールスルーする。
func Resolve(fixed, matched MetricMap) MetricMap {
	resolved := make(MetricMap, len(allMetrics))
	for _, m := range allMetrics {
		if v, ok := fixed[m.Code]; ok && m.contains(v) {
			resolved[m.Code] = v
			continue
		}
		if v, ok := matched[m.Code]; ok && m.contains(v) {
			resolved[m.Code] = v
			continue
		}
		resolved[m.Code] = m.Values[0]
	}
	return resolved
}

// ResolveService はメトリクス解決とスコア算出のビジネスロジックを提供する
type ResolveService struct {
	scorer                Scorer
	fallbackTemporalScore float64
	logger                *slog.Logger
}

type resolveOptions struct {
	logger *slog.Logger
}

// ResolveOption は ResolveService のオプション設定
type ResolveOption func(*resolveOptions)

// WithResolveLogger はロガーを差し替える
func WithResolveLogger(logger *slog.Logger) ResolveOption {
	return func(o *resolveOptions) {
		o.logger = logger
	}
}

// NewResolveService は新しい ResolveService を作成する。
// fallbackTemporalScore はTemporalメトリクスに情報がない場合に報告するスコア。
func NewResolveService(scorer Scorer, fallbackTemporalScore float64, opts ...ResolveOption) *ResolveService {
	options := resolveOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &ResolveService{
		scorer:                scorer,
		fallbackTemporalScore: fallbackTemporalScore,
		logger:                options.logger,
	}
}

// ScoreRecord は1件の脆弱性についてメトリクスを解決し、
// Base / Temporal / Environmental のベクターとスコアを算出する。
// スコアラーの検証失敗はこのレコードのスコアを nil にするだけで、
// 呼び出し元には伝播しない。
func (s *ResolveService) ScoreRecord(description string, fixed, matched MetricMap) Result {
	resolved := Resolve(s.sanitize(fixed, "fixed"), s.sanitize(matched, "matched"))

	result := Result{
		Description:         description,
		BaseVector:          BuildBaseVector(resolved),
		EnvironmentalVector: BuildEnvironmentalVector(resolved),
	}

	temporalInformative := hasTemporalSignal(resolved)
	if temporalInformative {
		result.TemporalVector = BuildTemporalVector(resolved)
	}

	baseScores, err := s.scorer.Score(result.BaseVector)
	if err != nil {
		s.logger.Error("base vector failed scorer validation",
			slog.String("vector", result.BaseVector),
			slog.String("error", err.Error()))
		return result
	}

	base := baseScores.Base
	result.BaseScore = &base
	if base == 0.0 {
		s.logger.Warn("base score is 0.0, check impact metrics (C, I, A)",
			slog.String("vector", result.BaseVector))
	}

	if temporalInformative {
		temporalScores, err := s.scorer.Score(result.TemporalVector)
		if err != nil {
			s.logger.Error("temporal vector failed scorer validation",
				slog.String("vector", result.TemporalVector),
				slog.String("error", err.Error()))
		} else {
			temporal := temporalScores.Temporal
			result.TemporalScore = &temporal
		}
	} else {
		fallback := s.fallbackTemporalScore
		result.TemporalScore = &fallback
	}

	envScores, err := s.scorer.Score(result.EnvironmentalVector)
	if err != nil {
		s.logger.Error("environmental vector failed scorer validation",
			slog.String("vector", result.EnvironmentalVector),
			slog.String("error", err.Error()))
	} else {
		environmental := envScores.Environmental
		result.EnvironmentalScore = &environmental
	}

	return result
}

// sanitize はドメイン外の値を落としたコピーを返す
func (s *ResolveService) sanitize(metrics MetricMap, tier string) MetricMap {
	clean := make(MetricMap, len(metrics))
	for code, value := range metrics {
		if value == "" {
			continue
		}
		if !IsValidValue(code, value) {
			s.logger.Warn("dropping out-of-domain metric value",
				slog.String("tier", tier),
				slog.String("code", code),
				slog.String("value", value))
			continue
		}
		clean[code] = value
	}
	return clean
}
