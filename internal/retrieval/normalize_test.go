package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizer(t *testing.T) {
	t.Run("Should map scores to z-scores", func(t *testing.T) {
		norm := Normalizer([]float64{1, 2, 3})
		// mean 2, population std sqrt(2/3)
		assert.InDelta(t, -1.224744871, norm(1), 1e-6)
		assert.InDelta(t, 0, norm(2), 1e-9)
		assert.InDelta(t, 1.224744871, norm(3), 1e-6)
	})

	t.Run("Should treat zero spread as unit std", func(t *testing.T) {
		norm := Normalizer([]float64{5, 5, 5})
		assert.Equal(t, 0.0, norm(5))
		assert.Equal(t, 1.0, norm(6))
	})

	t.Run("Should return identity for empty input", func(t *testing.T) {
		norm := Normalizer(nil)
		assert.Equal(t, 3.5, norm(3.5))
	})

	t.Run("Should handle a single score", func(t *testing.T) {
		norm := Normalizer([]float64{0.42})
		assert.Equal(t, 0.0, norm(0.42))
	})
}

func TestMergeNormalized(t *testing.T) {
	t.Run("Should keep the higher normalized score for duplicate ids", func(t *testing.T) {
		primary := []Hit{
			{ID: "a", Score: 10, Source: SourcePrimaryText},
			{ID: "b", Score: 0, Source: SourcePrimaryText},
		}
		vector := []Hit{
			{ID: "b", Score: 0.9, Source: SourceVector},
			{ID: "c", Score: 0.1, Source: SourceVector},
		}

		merged := mergeNormalized([][]Hit{primary, vector})
		assert.Len(t, merged, 3)

		byID := make(map[string]Hit)
		for _, h := range merged {
			byID[h.ID] = h
		}
		assert.InDelta(t, 1.0, byID["b"].Score, 1e-9)
		assert.Equal(t, SourceVector, byID["b"].Source)
		assert.InDelta(t, 1.0, byID["a"].Score, 1e-9)
		assert.InDelta(t, -1.0, byID["c"].Score, 1e-9)
	})

	t.Run("Should sort descending and keep input order on ties", func(t *testing.T) {
		merged := mergeNormalized([][]Hit{{
			{ID: "x", Score: 1},
			{ID: "y", Score: 3},
			{ID: "z", Score: 1},
		}})
		ids := []string{merged[0].ID, merged[1].ID, merged[2].ID}
		assert.Equal(t, []string{"y", "x", "z"}, ids)
	})

	t.Run("Should return nothing for no sets", func(t *testing.T) {
		assert.Empty(t, mergeNormalized(nil))
	})
}
