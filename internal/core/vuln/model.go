package vuln

import (
	"strings"

	"github.com/jinford/vuln-enrich/internal/core/cvss"
)

// Record は取り込み済みの脆弱性レコードを表す。
// 取り込み後はコアにとって読み取り専用。
type Record struct {
	// ID は外部識別子（例: ベンダー通知ID）。省略可。
	ID string `json:"id,omitempty"`

	// Title は脆弱性のタイトル
	Title string `json:"title,omitempty"`

	// Synopsis は脆弱性の概要
	Synopsis string `json:"synopsis,omitempty"`

	// Description は脆弱性の詳細説明（必須・非空）
	Description string `json:"description"`

	// Solution は既知の対策テキスト
	Solution string `json:"solution,omitempty"`

	// Impact は影響の説明
	Impact string `json:"impact,omitempty"`

	// Metrics は部分的なCVSSメトリクス割り当て。
	// 解決時に最優先（fixed）の割り当てとして扱われる。
	Metrics cvss.MetricMap `json:"vector,omitempty"`
}

// EmbeddingText は埋め込み対象のテキストを返す。
// synopsis と description をスペースで連結しトリムしたもの。
func (r Record) EmbeddingText() string {
	return strings.TrimSpace(r.Synopsis + " " + r.Description)
}

// HasDescription は description が非空（空白のみでない）かを返す
func (r Record) HasDescription() bool {
	return strings.TrimSpace(r.Description) != ""
}
