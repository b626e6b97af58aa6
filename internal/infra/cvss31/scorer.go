// Package cvss31 は CVSS v3.1 ベクター文字列のスコア計算アダプタ
package cvss31

import (
	"fmt"

	gocvss31 "github.com/pandatix/go-cvss/31"

	"github.com/jinford/vuln-enrich/internal/core/cvss"
)

// Scorer は go-cvss による CVSS v3.1 スコア計算の実装
type Scorer struct{}

// NewScorer は新しい Scorer を作成する
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score はベクター文字列を検証し、Base / Temporal / Environmental の
// 3スコアを計算する。ベクターが仕様に適合しない場合はエラーを返す。
func (s *Scorer) Score(vector string) (cvss.Scores, error) {
	parsed, err := gocvss31.ParseVector(vector)
	if err != nil {
		return cvss.Scores{}, fmt.Errorf("invalid CVSS v3.1 vector %q: %w", vector, err)
	}

	return cvss.Scores{
		Base:          parsed.BaseScore(),
		Temporal:      parsed.TemporalScore(),
		Environmental: parsed.EnvironmentalScore(),
	}, nil
}

// インターフェース実装の確認
var _ cvss.Scorer = (*Scorer)(nil)
