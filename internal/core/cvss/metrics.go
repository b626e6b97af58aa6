package cvss

import "strings"

// VectorPrefix は構築するCVSSベクター文字列のスキームバージョン
const VectorPrefix = "CVSS:3.1"

// MetricMap はメトリクスコード（AV, AC など）から値へのマッピングを表す
type MetricMap map[string]string

// Clone はMetricMapのコピーを返す
func (m MetricMap) Clone() MetricMap {
	clone := make(MetricMap, len(m))
	for k, v := range m {
		clone[k] = v
	}
	return clone
}

// metricDomain は1つのメトリクスコードの値ドメインを表す。
// Values の先頭がそのコードの既定値になる。
type metricDomain struct {
	Code   string
	Values []string
}

func (d metricDomain) contains(value string) bool {
	for _, v := range d.Values {
		if v == value {
			return true
		}
	}
	return false
}

// CVSS v3.1 仕様に基づくメトリクス定義。
// ベクター文字列はこの宣言順で構築される。
var (
	baseMetrics = []metricDomain{
		{Code: "AV", Values: []string{"N", "A", "L", "P"}}, // Attack Vector
		{Code: "AC", Values: []string{"L", "H"}},           // Attack Complexity
		{Code: "PR", Values: []string{"N", "L", "H"}},      // Privileges Required
		{Code: "UI", Values: []string{"N", "R"}},           // User Interaction
		{Code: "S", Values: []string{"U", "C"}},            // Scope
		{Code: "C", Values: []string{"N", "L", "H"}},       // Confidentiality Impact
		{Code: "I", Values: []string{"N", "L", "H"}},       // Integrity Impact
		{Code: "A", Values: []string{"N", "L", "H"}},       // Availability Impact
	}

	temporalMetrics = []metricDomain{
		{Code: "E", Values: []string{"X", "U", "P", "F", "H"}},  // Exploit Code Maturity
		{Code: "RL", Values: []string{"X", "O", "T", "W", "U"}}, // Remediation Level
		{Code: "RC", Values: []string{"X", "U", "R", "C"}},      // Report Confidence
	}

	environmentalMetrics = []metricDomain{
		{Code: "CR", Values: []string{"L", "M", "H"}},
		{Code: "IR", Values: []string{"L", "M", "H"}},
		{Code: "AR", Values: []string{"L", "M", "H"}},
		{Code: "MAV", Values: []string{"X", "N", "A", "L", "P"}},
		{Code: "MAC", Values: []string{"X", "L", "H"}},
		{Code: "MPR", Values: []string{"X", "N", "L", "H"}},
		{Code: "MUI", Values: []string{"X", "N", "R"}},
		{Code: "MS", Values: []string{"X", "U", "C"}},
		{Code: "MC", Values: []string{"X", "N", "L", "H"}},
		{Code: "MI", Values: []string{"X", "N", "L", "H"}},
		{Code: "MA", Values: []string{"X", "N", "L", "H"}},
	}

	allMetrics = concatDomains(baseMetrics, temporalMetrics, environmentalMetrics)
)

func concatDomains(groups ...[]metricDomain) []metricDomain {
	var all []metricDomain
	for _, g := range groups {
		all = append(all, g...)
	}
	return all
}

// Codes は全メトリクスコードを宣言順で返す
func Codes() []string {
	codes := make([]string, 0, len(allMetrics))
	for _, m := range allMetrics {
		codes = append(codes, m.Code)
	}
	return codes
}

// DefaultValue はコードのドメイン既定値（ドメインの先頭値）を返す。
// 未知のコードの場合は空文字を返す。
func DefaultValue(code string) string {
	for _, m := range allMetrics {
		if m.Code == code {
			return m.Values[0]
		}
	}
	return ""
}

// IsValidValue は値がコードのドメインに含まれるかを返す
func IsValidValue(code, value string) bool {
	for _, m := range allMetrics {
		if m.Code == code {
			return m.contains(value)
		}
	}
	return false
}

// buildVector は宣言順でメトリクスを連結した正規ベクター文字列を構築する
func buildVector(resolved MetricMap, groups ...[]metricDomain) string {
	var b strings.Builder
	b.WriteString(VectorPrefix)
	for _, g := range groups {
		for _, m := range g {
			b.WriteString("/")
			b.WriteString(m.Code)
			b.WriteString(":")
			b.WriteString(resolved[m.Code])
		}
	}
	return b.String()
}

// BuildBaseVector はBaseメトリクスのみの正規ベクター文字列を構築する
func BuildBaseVector(resolved MetricMap) string {
	return buildVector(resolved, baseMetrics)
}

// BuildTemporalVector はBase+Temporalメトリクスの正規ベクター文字列を構築する
func BuildTemporalVector(resolved MetricMap) string {
	return buildVector(resolved, baseMetrics, temporalMetrics)
}

// BuildEnvironmentalVector はBase+Environmentalメトリクスの正規ベクター文字列を構築する
func BuildEnvironmentalVector(resolved MetricMap) string {
	return buildVector(resolved, baseMetrics, environmentalMetrics)
}

// hasTemporalSignal はTemporalメトリクスのいずれかが既定値と異なるかを返す。
// すべて既定値（情報なし）の場合、Temporalベクターは構築しない。
func hasTemporalSignal(resolved MetricMap) bool {
	for _, m := range temporalMetrics {
		if resolved[m.Code] != m.Values[0] {
			return true
		}
	}
	return false
}
