package cvss

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeverity_Boundaries(t *testing.T) {
	score := func(v float64) *float64 { return &v }

	tests := []struct {
		name  string
		score *float64
		want  string
	}{
		{"nil score", nil, SeverityUnknown},
		{"critical lower bound", score(9.0), SeverityCritical},
		{"just below critical", score(8.999), SeverityHigh},
		{"high lower bound", score(7.0), SeverityHigh},
		{"medium lower bound", score(4.0), SeverityMedium},
		{"just below medium", score(3.999), SeverityLow},
		{"zero", score(0.0), SeverityLow},
		{"max", score(10.0), SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Severity(tt.score))
		})
	}
}
