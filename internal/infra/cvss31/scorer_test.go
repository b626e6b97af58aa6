package cvss31

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore_KnownVector(t *testing.T) {
	scorer := NewScorer()

	scores, err := scorer.Score("CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H")
	require.NoError(t, err)
	assert.InDelta(t, 9.8, scores.Base, 1e-9)
}

func TestScore_TemporalAndEnvironmental(t *testing.T) {
	scorer := NewScorer()

	scores, err := scorer.Score("CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H/E:F/RL:O/RC:C/CR:H/IR:H/AR:H")
	require.NoError(t, err)

	assert.Greater(t, scores.Base, 0.0)
	assert.Greater(t, scores.Temporal, 0.0)
	assert.LessOrEqual(t, scores.Temporal, scores.Base)
	assert.Greater(t, scores.Environmental, 0.0)
	assert.LessOrEqual(t, scores.Environmental, 10.0)
}

func TestScore_InvalidVector(t *testing.T) {
	scorer := NewScorer()

	_, err := scorer.Score("CVSS:3.1/AV:Z/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H")
	assert.Error(t, err)

	_, err = scorer.Score("not a vector")
	assert.Error(t, err)
}
