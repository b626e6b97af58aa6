package enrich

import "github.com/google/uuid"

// Enriched は強化済み脆弱性レコード（出力スキーマ1件分）
type Enriched struct {
	Description        string   `json:"description"`
	CVSSVector         string   `json:"cvss_vector"`
	BaseScore          *float64 `json:"base_score"`
	TemporalScore      *float64 `json:"temporal_score"`
	EnvironmentalScore *float64 `json:"environmental_score"`
	Severity           string   `json:"severity"`
	Solution           string   `json:"solution"`
}

// RunResult は1回のパイプライン実行の結果
type RunResult struct {
	RunID    uuid.UUID
	Enriched []Enriched
	Skipped  int
}
