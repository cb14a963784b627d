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

package eval

import (
	"bufio"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/czcorpus/ngramlm/lm"
	"github.com/czcorpus/ngramlm/ngram"
	"github.com/czcorpus/ngramlm/optimize"
	"github.com/czcorpus/ngramlm/smooth"
)

func scanString(s string) ngram.LineScanner {
	return bufio.NewScanner(strings.NewReader(s))
}

func buildLM(t *testing.T, order int, corpus, smoothing string) *lm.NgramLM {
	t.Helper()
	model := lm.NewNgramLM(order)
	require.NoError(t, model.LoadCorpus(scanString(corpus)))
	smoothings := make([]smooth.Smoothing, order+1)
	for o := 1; o <= order; o++ {
		s, err := smooth.New(smoothing)
		require.NoError(t, err)
		smoothings[o] = s
	}
	require.NoError(t, model.SetSmoothings(smoothings))
	return model
}

const trainCorpus = "a b a b c\nb c a\na a b\nc a b a\nb b c a\n"

func TestComputeEntropyMatchesDirectScoring(t *testing.T) {
	model := buildLM(t, 2, trainCorpus, "FixModKN")
	opt := NewPerplexityOptimizer(model)
	require.NoError(t, opt.LoadCorpus(scanString("a b c\n")))

	entropy := opt.ComputeEntropy(model.DefParams())
	require.True(t, model.Estimate(model.DefParams(), nil))

	// direct scoring: p(a|<s>) p(b|a) p(c|b) p(</s>|c)
	m := model.Model()
	voc := m.Vocab()
	score := func(h, w string) float64 {
		hi := m.Vector(1).Find(0, voc.Find(h))
		i := m.Vector(2).Find(hi, voc.Find(w))
		if i != ngram.InvalidIndex {
			return model.Probs(2)[i]
		}
		wi := m.Vector(1).Find(0, voc.Find(w))
		return model.Bows(1)[hi] * model.Probs(1)[wi]
	}
	logProb := math.Log(score("<s>", "a")) + math.Log(score("a", "b")) +
		math.Log(score("b", "c")) + math.Log(score("c", "</s>"))
	assert.InDelta(t, -logProb/4, entropy, 1e-9)
	assert.Equal(t, 4, opt.NumWords())
	assert.Equal(t, 0, opt.NumOOV())
}

func TestMaskedEstimateMatchesFull(t *testing.T) {
	model := buildLM(t, 3, trainCorpus, "ModKN")
	opt := NewPerplexityOptimizer(model)
	testSet := "a b c\nb c a\nc a b\na a\nb b c\n"
	require.NoError(t, opt.LoadCorpus(scanString(testSet)))

	params := append([]float64{}, model.DefParams()...)
	// move the order-1 discounts slightly off their defaults so the
	// masked path cannot accidentally reuse stale values
	params[0] *= 0.9

	maskedEntropy := opt.ComputeEntropy(params)

	masked := make([][]float64, 0, 6)
	for o := 1; o <= 3; o++ {
		masked = append(masked, append([]float64{}, model.Probs(o)...))
	}
	for o := 0; o < 3; o++ {
		masked = append(masked, append([]float64{}, model.Bows(o)...))
	}

	require.True(t, model.Estimate(params, nil))

	// masked values must equal the full re-estimate at every index
	// the objective touches
	probCounts := opt.probCounts
	bowCounts := opt.bowCounts
	for o := 1; o <= 3; o++ {
		full := model.Probs(o)
		for i, c := range probCounts[o] {
			if c > 0 {
				assert.InEpsilon(t, full[i], masked[o-1][i], 1e-12,
					"prob order %d index %d", o, i)
			}
		}
	}
	for o := 0; o < 3; o++ {
		full := model.Bows(o)
		for i, c := range bowCounts[o] {
			if c > 0 {
				assert.InEpsilon(t, full[i], masked[3+o][i], 1e-12,
					"bow order %d index %d", o, i)
			}
		}
	}

	// and the entropy itself must match an unmasked scoring
	opt.msk = nil
	fullEntropy := opt.ComputeEntropy(params)
	assert.InDelta(t, fullEntropy, maskedEntropy, 1e-12)
}

func TestOptimizeImprovesPerplexity(t *testing.T) {
	model := buildLM(t, 2, trainCorpus, "ModKN")
	opt := NewPerplexityOptimizer(model)
	require.NoError(t, opt.LoadCorpus(scanString("a b c\nb c a\n")))

	params := append([]float64{}, model.DefParams()...)
	initial := opt.ComputeEntropy(params)
	final, err := opt.Optimize(params, optimize.Powell)
	require.NoError(t, err)
	assert.LessOrEqual(t, final, initial+1e-12)
}

func TestOutOfBoundsParamsYieldSentinel(t *testing.T) {
	model := buildLM(t, 2, trainCorpus, "ModKN")
	opt := NewPerplexityOptimizer(model)
	require.NoError(t, opt.LoadCorpus(scanString("a b\n")))
	params := append([]float64{}, model.DefParams()...)
	params[0] = -1
	assert.Equal(t, outOfBoundsEntropy, opt.ComputeEntropy(params))
}
