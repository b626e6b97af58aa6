package index

import (
	"math"

	"github.com/jinford/vuln-enrich/internal/core/cvss"
)

// MetadataEntry はインデックス位置に対応する表示用メタデータのコピー。
// 配列位置が挿入順（＝インデックス位置）に一致する。
type MetadataEntry struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Synopsis    string         `json:"synopsis"`
	Description string         `json:"description"`
	Solution    string         `json:"solution,omitempty"`
	Impact      string         `json:"impact,omitempty"`
	Metrics     cvss.MetricMap `json:"vector"`
}

// Hit は検索ヒット1件。マッチしたメタデータのコピーと数値距離を持つ。
type Hit struct {
	MetadataEntry
	Distance float64 `json:"distance"`
}

// sentinelHit はマッチなしを表す番兵エントリ（距離 +Inf）を返す
func sentinelHit(query string) Hit {
	return Hit{
		MetadataEntry: MetadataEntry{
			Description: query,
			Metrics:     cvss.MetricMap{},
		},
		Distance: math.Inf(1),
	}
}

// IsSentinel はヒットがマッチなしの番兵かを返す
func (h Hit) IsSentinel() bool {
	return math.IsInf(h.Distance, 1)
}

// Manifest は構築時の埋め込みプロバイダー構成の記録。
// 再読み込み時に互換性のある再埋め込みを保証するために使う。
type Manifest struct {
	EmbeddingModel string `json:"embedding_model"`
	Dimension      int    `json:"dimension"`
	Count          int    `json:"count"`
	Nlist          int    `json:"nlist"`
	Nprobe         int    `json:"nprobe"`
}

// BuildStats はインデックス構築結果の統計
type BuildStats struct {
	Total      int
	Indexed    int
	Dropped    int
	Duplicates int
	Nlist      int
	Nprobe     int
}
