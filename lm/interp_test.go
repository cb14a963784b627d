// Copyright 2024 Tomas Machalek <tomas.machalek@gmail.com>
// Copyright 2024 Charles University, Faculty of Arts,
//                Institute of the Czech National Corpus
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package lm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/czcorpus/ngramlm/ngram"
	"github.com/czcorpus/ngramlm/vocab"
)

func findBigram(t *testing.T, m *ngram.Model, w1, w2 string) ngram.Index {
	t.Helper()
	h := m.Vector(1).Find(0, m.Vocab().Find(w1))
	require.NotEqual(t, ngram.InvalidIndex, h)
	i := m.Vector(2).Find(h, m.Vocab().Find(w2))
	require.NotEqual(t, ngram.InvalidIndex, i)
	return i
}

func TestLinearInterpolationMixesWithSoftmaxWeights(t *testing.T) {
	lm1 := buildLM(t, 2, "a b a b\n", "FixModKN")
	lm2 := buildLM(t, 2, "a c a c\n", "FixModKN")
	interp, err := NewInterpolatedLM([]LM{lm1, lm2}, true, false)
	require.NoError(t, err)
	require.NoError(t, interp.SetInterpolation(LinearInterpolation, nil))

	params := append([]float64{}, interp.DefParams()...)
	require.True(t, interp.Estimate(params, nil))

	// with bias 0 both components weigh 1/2
	iab := findBigram(t, interp.Model(), "a", "b")
	expected := 0.5*lm1.Probs(2)[iab] + 0.5*lm2.Probs(2)[iab]
	assert.InDelta(t, expected, interp.Probs(2)[iab], 1e-12)

	// full conditionals still sum to 1 at the top order
	model := interp.Model()
	for h := 0; h < model.Sizes(1); h++ {
		total := 0.0
		for w := 0; w < model.Sizes(1); w++ {
			i := model.Vector(2).Find(ngram.Index(h), vocab.ID(w))
			if i != ngram.InvalidIndex {
				total += interp.Probs(2)[i]
			} else {
				total += interp.Bows(1)[h] * interp.Probs(1)[w]
			}
		}
		assert.InDelta(t, 1.0, total, 1e-6, "history %d", h)
	}
}

func TestLinearInterpolationBiasShiftsWeights(t *testing.T) {
	lm1 := buildLM(t, 2, "a b a b\n", "FixModKN")
	lm2 := buildLM(t, 2, "a c a c\n", "FixModKN")
	interp, err := NewInterpolatedLM([]LM{lm1, lm2}, true, false)
	require.NoError(t, err)
	require.NoError(t, interp.SetInterpolation(LinearInterpolation, nil))

	params := append([]float64{}, interp.DefParams()...)
	bias := 2.0
	params[len(params)-1] = bias
	require.True(t, interp.Estimate(params, nil))

	w2 := math.Exp(bias) / (1 + math.Exp(bias))
	iab := findBigram(t, interp.Model(), "a", "b")
	expected := (1-w2)*lm1.Probs(2)[iab] + w2*lm2.Probs(2)[iab]
	assert.InDelta(t, expected, interp.Probs(2)[iab], 1e-12)
}

func TestCountMergingReproducesUniqueComponents(t *testing.T) {
	lm1 := buildLM(t, 2, "a b a b\na b\n", "FixModKN")
	lm2 := buildLM(t, 2, "c d c d\nc d\n", "FixModKN")
	interp, err := NewInterpolatedLM([]LM{lm1, lm2}, true, false)
	require.NoError(t, err)
	features, err := CountMergingFeatures([]LM{lm1, lm2})
	require.NoError(t, err)
	require.NoError(t, interp.SetInterpolation(CountMerging, features))

	params := append([]float64{}, interp.DefParams()...)
	require.True(t, interp.Estimate(params, nil))

	// "a b" exists only in component 1 and its history "a" has zero
	// count in component 2, so count merging must reproduce the
	// component-1 probability exactly
	iab := findBigram(t, interp.Model(), "a", "b")
	assert.InDelta(t, lm1.Probs(2)[iab], interp.Probs(2)[iab], 1e-9)

	icd := findBigram(t, interp.Model(), "c", "d")
	assert.InDelta(t, lm2.Probs(2)[icd], interp.Probs(2)[icd], 1e-9)
}

func TestInterpolationRequiresTwoComponents(t *testing.T) {
	lm1 := buildLM(t, 2, "a b\n", "FixModKN")
	_, err := NewInterpolatedLM([]LM{lm1}, true, false)
	assert.Error(t, err)
}

func TestGeneralizedLinearInterpolation(t *testing.T) {
	lm1 := buildLM(t, 2, "a b a b\n", "FixModKN")
	lm2 := buildLM(t, 2, "a c a c\n", "FixModKN")
	interp, err := NewInterpolatedLM([]LM{lm1, lm2}, true, false)
	require.NoError(t, err)
	features, err := CountMergingFeatures([]LM{lm1, lm2})
	require.NoError(t, err)
	require.NoError(t, interp.SetInterpolation(GeneralizedLinear, features))

	params := append([]float64{}, interp.DefParams()...)
	require.True(t, interp.Estimate(params, nil))

	// probabilities remain a proper distribution per unigram history
	model := interp.Model()
	for h := 0; h < model.Sizes(1); h++ {
		total := 0.0
		for w := 0; w < model.Sizes(1); w++ {
			i := model.Vector(2).Find(ngram.Index(h), vocab.ID(w))
			if i != ngram.InvalidIndex {
				total += interp.Probs(2)[i]
			} else {
				total += interp.Bows(1)[h] * interp.Probs(1)[w]
			}
		}
		assert.InDelta(t, 1.0, total, 1e-6, "history %d", h)
	}
}
