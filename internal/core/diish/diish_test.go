package diish

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"recipe-substitution/internal/core/vocab"
	"recipe-substitution/internal/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name string
	fn   func(a, b string) (float64, error)
}

func (f fakeProvider) Name() string { return f.name }

func (f fakeProvider) Similarity(_ context.Context, a, b string) (float64, error) {
	return f.fn(a, b)
}

func constant(name string, v float64) fakeProvider {
	return fakeProvider{name: name, fn: func(string, string) (float64, error) { return v, nil }}
}

func testVocab() *vocab.Vocabulary {
	return vocab.Build([][]string{{"cheddar_cheese", "tofu", "butter", "flour", "milk"}})
}

// W 決定排序，其餘訊號為 0
func testSignals() Signals {
	w := map[string]float64{
		"tofu":   0.9,
		"butter": 0.5,
		"milk":   0.5,
		"flour":  -1,
	}
	return Signals{
		W: fakeProvider{name: "W", fn: func(a, b string) (float64, error) {
			if a == b {
				return 1, nil
			}
			if a == "cheddar_cheese" {
				return w[b], nil
			}
			if b == "cheddar_cheese" {
				return w[a], nil
			}
			return 0.1, nil
		}},
		S: constant("S", 0),
		D: constant("D", 0),
		P: fakeProvider{name: "P", fn: func(a, b string) (float64, error) {
			if (a == "cheddar_cheese" && b == "flour") || (a == "flour" && b == "cheddar_cheese") {
				return 0, common.ErrSignalUnavailable
			}
			return 0, nil
		}},
	}
}

func TestCombine(t *testing.T) {
	assert.InDelta(t, 4.5, Combine(1, 1, 1, 1), 1e-12)
	assert.InDelta(t, 0.0, Combine(0, 0, 0, 0), 1e-12)
	assert.InDelta(t, 0.25+0.5*math.Pow(0.0625, 0.25)+2*0.5, Combine(0, 0.5, 0.0625, 0.25), 1e-12)
	// D、P 為負時視為 0
	assert.InDelta(t, -0.5, Combine(-0.5, 0, -1, -1), 1e-12)
	assert.Equal(t, 1.0, Confidence(9))
}

func TestScoreUndefinedWhenSignalUnavailable(t *testing.T) {
	m, err := NewModel(testVocab(), testSignals())
	require.NoError(t, err)

	_, err = m.Score(context.Background(), "cheddar_cheese", "flour")
	assert.ErrorIs(t, err, common.ErrScoreUndefined)

	s, err := m.Score(context.Background(), "cheddar_cheese", "tofu")
	require.NoError(t, err)
	assert.InDelta(t, 0.9, s, 1e-12)
}

func TestScoreMissingSignalIsUndefined(t *testing.T) {
	sig := testSignals()
	sig.S = nil
	m, err := NewModel(testVocab(), sig)
	require.NoError(t, err)

	_, err = m.Score(context.Background(), "cheddar_cheese", "tofu")
	assert.ErrorIs(t, err, common.ErrScoreUndefined)

	_, err = m.TopCandidates(context.Background(), "cheddar_cheese", 3)
	assert.ErrorIs(t, err, common.ErrNoSignals)
	assert.False(t, m.Ready())
}

func TestScorePropagatesExternalFailure(t *testing.T) {
	sig := testSignals()
	sig.S = fakeProvider{name: "S", fn: func(string, string) (float64, error) {
		return 0, errors.Join(errors.New("timeout"), common.ErrExternalService)
	}}
	m, err := NewModel(testVocab(), sig)
	require.NoError(t, err)

	_, err = m.TopCandidates(context.Background(), "cheddar_cheese", 3)
	assert.ErrorIs(t, err, common.ErrExternalService)
}

func TestNewModelWithoutSignals(t *testing.T) {
	_, err := NewModel(testVocab(), Signals{})
	assert.ErrorIs(t, err, common.ErrNoSignals)
}

func TestTopCandidates(t *testing.T) {
	m, err := NewModel(testVocab(), testSignals(), WithWorkers(3))
	require.NoError(t, err)

	got, err := m.TopCandidates(context.Background(), "cheddar_cheese", 10)
	require.NoError(t, err)

	// flour 的分數未定義，自己不會出現
	require.Len(t, got, 3)
	assert.Equal(t, "tofu", got[0].Token)
	assert.Equal(t, "butter", got[1].Token)
	assert.Equal(t, "milk", got[2].Token)
	assert.InDelta(t, 0.9/ScoreCeiling, got[0].Confidence, 1e-12)

	for i, c := range got {
		assert.NotEqual(t, "cheddar_cheese", c.Token)
		assert.Greater(t, c.Confidence, 0.0)
		assert.LessOrEqual(t, c.Confidence, 1.0)
		if i > 0 {
			assert.LessOrEqual(t, c.Confidence, got[i-1].Confidence)
		}
	}

	top1, err := m.TopCandidates(context.Background(), "cheddar_cheese", 1)
	require.NoError(t, err)
	assert.Equal(t, got[:1], top1)
}

func TestTopCandidatesUnknownToken(t *testing.T) {
	m, err := NewModel(testVocab(), testSignals())
	require.NoError(t, err)

	_, err = m.TopCandidates(context.Background(), "saffron", 3)
	assert.ErrorIs(t, err, common.ErrUnknownToken)
}

func TestPrecomputeMatchesLiveScores(t *testing.T) {
	v := testVocab()
	live, err := NewModel(v, testSignals())
	require.NoError(t, err)

	cache, err := Precompute(context.Background(), live, 4)
	require.NoError(t, err)

	cheddar, _ := v.ID("cheddar_cheese")
	flour, _ := v.ID("flour")
	_, ok := cache.Lookup(cheddar, flour)
	assert.False(t, ok)

	path := filepath.Join(t.TempDir(), "DIISH_matrix.npy")
	require.NoError(t, cache.Save(path))
	loaded, err := LoadScoreCache(path)
	require.NoError(t, err)

	cached, err := NewModel(v, Signals{}, WithCache(loaded))
	require.NoError(t, err)
	assert.True(t, cached.HasCache())
	assert.True(t, cached.Ready())

	want, err := live.TopCandidates(context.Background(), "cheddar_cheese", 5)
	require.NoError(t, err)
	got, err := cached.TopCandidates(context.Background(), "cheddar_cheese", 5)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Token, got[i].Token)
		assert.InDelta(t, want[i].Confidence, got[i].Confidence, 1e-9)
	}
}

func TestCacheSizeMustMatchVocabulary(t *testing.T) {
	v := testVocab()
	live, err := NewModel(v, testSignals())
	require.NoError(t, err)
	cache, err := Precompute(context.Background(), live, 2)
	require.NoError(t, err)

	small := vocab.Build([][]string{{"tofu"}})
	_, err = NewModel(small, Signals{}, WithCache(cache))
	assert.Error(t, err)
}
