package cvss

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubScorer struct {
	scores Scores
	err    error
	calls  []string
}

func (s *stubScorer) Score(vector string) (Scores, error) {
	s.calls = append(s.calls, vector)
	if s.err != nil {
		return Scores{}, s.err
	}
	return s.scores, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolve_AllCodesAssignedFromDomain(t *testing.T) {
	resolved := Resolve(nil, nil)

	require.Len(t, resolved, len(Codes()))
	for _, code := range Codes() {
		value, ok := resolved[code]
		require.True(t, ok, "code %s missing", code)
		assert.NotEmpty(t, value)
		assert.True(t, IsValidValue(code, value), "code %s resolved to %s outside its domain", code, value)
	}
}

func TestResolve_FixedTakesPrecedenceOverMatched(t *testing.T) {
	fixed := MetricMap{"AV": "P", "C": "H"}
	matched := MetricMap{"AV": "N", "C": "L", "AC": "H"}

	resolved := Resolve(fixed, matched)

	assert.Equal(t, "P", resolved["AV"])
	assert.Equal(t, "H", resolved["C"])
	assert.Equal(t, "H", resolved["AC"]) // matched が適用される
	assert.Equal(t, DefaultValue("PR"), resolved["PR"])
}

func TestResolve_OutOfDomainValuesFallThrough(t *testing.T) {
	fixed := MetricMap{"AV": "Z"}
	matched := MetricMap{"AV": "A", "AC": "Q"}

	resolved := Resolve(fixed, matched)

	// fixed の不正値は matched へ、matched の不正値は既定値へフォールスルー
	assert.Equal(t, "A", resolved["AV"])
	assert.Equal(t, DefaultValue("AC"), resolved["AC"])
}

func TestScoreRecord_IdempotentVectorString(t *testing.T) {
	scorer := &stubScorer{scores: Scores{Base: 7.5, Temporal: 6.8, Environmental: 7.1}}
	svc := NewResolveService(scorer, 6.5, WithResolveLogger(discardLogger()))

	fixed := MetricMap{"AV": "N", "C": "H"}
	matched := MetricMap{"I": "L", "E": "F"}

	first := svc.ScoreRecord("heap overflow", fixed, matched)
	second := svc.ScoreRecord("heap overflow", fixed, matched)

	assert.Equal(t, first.BaseVector, second.BaseVector)
	assert.Equal(t, first.TemporalVector, second.TemporalVector)
	assert.Equal(t, first.EnvironmentalVector, second.EnvironmentalVector)
}

func TestScoreRecord_BaseVectorCanonicalOrder(t *testing.T) {
	scorer := &stubScorer{scores: Scores{Base: 9.8}}
	svc := NewResolveService(scorer, 6.5, WithResolveLogger(discardLogger()))

	result := svc.ScoreRecord("rce", MetricMap{"C": "H", "I": "H", "A": "H"}, nil)

	assert.Equal(t, "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H", result.BaseVector)
	require.NotNil(t, result.BaseScore)
	assert.InDelta(t, 9.8, *result.BaseScore, 0.001)
}

func TestScoreRecord_TemporalFallbackWhenNoSignal(t *testing.T) {
	scorer := &stubScorer{scores: Scores{Base: 7.5, Temporal: 7.0, Environmental: 7.2}}
	svc := NewResolveService(scorer, 6.5, WithResolveLogger(discardLogger()))

	// Temporal コードはすべて既定値のまま
	result := svc.ScoreRecord("desc", MetricMap{"C": "H"}, nil)

	assert.Empty(t, result.TemporalVector)
	require.NotNil(t, result.TemporalScore)
	assert.InDelta(t, 6.5, *result.TemporalScore, 0.001)

	// Temporal ベクターはスコアラーに渡されない（Base と Environmental のみ）
	assert.Len(t, scorer.calls, 2)
}

func TestScoreRecord_TemporalVectorWhenSignalPresent(t *testing.T) {
	scorer := &stubScorer{scores: Scores{Base: 7.5, Temporal: 6.8, Environmental: 7.2}}
	svc := NewResolveService(scorer, 6.5, WithResolveLogger(discardLogger()))

	result := svc.ScoreRecord("desc", MetricMap{"E": "F", "C": "H"}, nil)

	assert.Contains(t, result.TemporalVector, "/E:F/")
	require.NotNil(t, result.TemporalScore)
	assert.InDelta(t, 6.8, *result.TemporalScore, 0.001)
}

func TestScoreRecord_EnvironmentalAlwaysConstructed(t *testing.T) {
	scorer := &stubScorer{scores: Scores{Base: 5.0, Environmental: 5.5}}
	svc := NewResolveService(scorer, 6.5, WithResolveLogger(discardLogger()))

	result := svc.ScoreRecord("desc", nil, nil)

	assert.Contains(t, result.EnvironmentalVector, "/CR:L/IR:L/AR:L/")
	require.NotNil(t, result.EnvironmentalScore)
	assert.InDelta(t, 5.5, *result.EnvironmentalScore, 0.001)
}

func TestScoreRecord_ValidationFailureYieldsNilScores(t *testing.T) {
	scorer := &stubScorer{err: errors.New("invalid vector")}
	svc := NewResolveService(scorer, 6.5, WithResolveLogger(discardLogger()))

	result := svc.ScoreRecord("desc", MetricMap{"AV": "N"}, nil)

	assert.NotEmpty(t, result.BaseVector)
	assert.Nil(t, result.BaseScore)
	assert.Nil(t, result.TemporalScore)
	assert.Nil(t, result.EnvironmentalScore)
}
