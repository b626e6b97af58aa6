package cvss

// 深刻度ラベル
const (
	SeverityUnknown  = "Unknown"
	SeverityCritical = "Critical"
	SeverityHigh     = "High"
	SeverityMedium   = "Medium"
	SeverityLow      = "Low"
)

// Severity はCVSS Baseスコアを深刻度ラベルに分類する。
// 境界は下限含み: 9.0以上 Critical、7.0以上 High、4.0以上 Medium、それ未満 Low。
func Severity(baseScore *float64) string {
	switch {
	case baseScore == nil:
		return SeverityUnknown
	case *baseScore >= 9.0:
		return SeverityCritical
	case *baseScore >= 7.0:
		return SeverityHigh
	case *baseScore >= 4.0:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
