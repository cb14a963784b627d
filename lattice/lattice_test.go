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

package lattice

import (
	"bufio"
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/czcorpus/ngramlm/lm"
	"github.com/czcorpus/ngramlm/mask"
	"github.com/czcorpus/ngramlm/smooth"
	"github.com/czcorpus/ngramlm/vocab"
)

func buildLM(t *testing.T, order int, corpus string) *lm.NgramLM {
	t.Helper()
	model := lm.NewNgramLM(order)
	require.NoError(t, model.LoadCorpus(bufio.NewScanner(strings.NewReader(corpus))))
	smoothings := make([]smooth.Smoothing, order+1)
	for o := 1; o <= order; o++ {
		s, err := smooth.New("FixModKN")
		require.NoError(t, err)
		smoothings[o] = s
	}
	require.NoError(t, model.SetSmoothings(smoothings))
	require.True(t, model.Estimate(model.DefParams(), nil))
	return model
}

const testLattice = `utt1
ref a b
0 1 a 0.5
0 1 b 1.0
1 2 b 0.25
1 2 c 0.5

`

func loadLattice(t *testing.T, model lm.LM, text string) *Lattice {
	t.Helper()
	lat := New(model)
	require.NoError(t, lat.Load(bufio.NewScanner(strings.NewReader(text))))
	return lat
}

func TestLoadAndRescore(t *testing.T) {
	model := buildLM(t, 2, "a b a b c\nb c a\n")
	lat := loadLattice(t, model, testLattice)
	assert.Equal(t, "utt1", lat.Tag())

	lat.UpdateWeights()
	weights := lat.ArcWeights()
	require.Len(t, weights, 4)
	for _, w := range weights {
		assert.False(t, math.IsNaN(w))
		assert.False(t, math.IsInf(w, 0))
	}

	best, bestWeight := lat.BestPath()
	require.NotNil(t, best)
	assert.False(t, math.IsInf(bestWeight, 0))
	assert.Len(t, best, 2)
}

func TestUniformRescoringUsesModelProbs(t *testing.T) {
	model := buildLM(t, 1, "a b a b c\nb c a\n")
	lat := loadLattice(t, model, testLattice)
	lat.UpdateWeights()

	// with a unigram model every arc weight is the base weight plus
	// the negated unigram log-prob
	m := model.Model()
	voc := m.Vocab()
	probOf := func(w string) float64 {
		return model.Probs(1)[m.Vector(1).Find(0, voc.Find(w))]
	}
	expected := []float64{
		0.5 - math.Log(probOf("a")),
		1.0 - math.Log(probOf("b")),
		0.25 - math.Log(probOf("b")),
		0.5 - math.Log(probOf("c")),
	}
	for i, w := range lat.ArcWeights() {
		assert.InDelta(t, expected[i], w, 1e-12, "arc %d", i)
	}
}

func TestBestPathOrderingStableUnderScaling(t *testing.T) {
	model := buildLM(t, 2, "a b a b c\nb c a\n")
	lat := loadLattice(t, model, testLattice)
	lat.UpdateWeights()
	best1, _ := lat.BestPath()

	// multiplying all arc weights by a positive constant must keep
	// the best-path ordering
	weights := lat.ArcWeights()
	for i := range weights {
		weights[i] *= 3.5
	}
	best2, _ := lat.BestPath()
	assert.Equal(t, best1, best2)
}

func TestComputeWER(t *testing.T) {
	model := buildLM(t, 2, "a b a b c\nb c a\n")
	lat := loadLattice(t, model, testLattice)
	lat.UpdateWeights()
	wer := lat.ComputeWER()
	assert.GreaterOrEqual(t, wer, 0)
	assert.LessOrEqual(t, wer, 2)

	// the reference path itself exists in the lattice, so a perfect
	// best path yields WER 0
	refPath := []vocab.ID{
		model.Model().Vocab().Find("a"),
		model.Model().Vocab().Find("b"),
	}
	best, _ := lat.BestPath()
	if assert.NotNil(t, best) && assert.Len(t, best, 2) && best[0] == refPath[0] && best[1] == refPath[1] {
		assert.Equal(t, 0, wer)
	}
}

func TestMarginPositiveWhenReferenceWins(t *testing.T) {
	// train so heavily on "a b" that it is the best path
	model := buildLM(t, 2, "a b\na b\na b\na b\nb c\n")
	lat := loadLattice(t, model, testLattice)
	lat.UpdateWeights()
	margin := lat.ComputeMargin(-100)
	best, _ := lat.BestPath()
	voc := model.Model().Vocab()
	if len(best) == 2 && best[0] == voc.Find("a") && best[1] == voc.Find("b") {
		assert.GreaterOrEqual(t, margin, 0.0)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	model := buildLM(t, 2, "a b a b c\nb c a\n")
	lat := loadLattice(t, model, testLattice)
	lat.UpdateWeights()

	var buf bytes.Buffer
	require.NoError(t, lat.Save(&buf))

	lat2 := loadLattice(t, model, buf.String())
	assert.Equal(t, lat.Tag(), lat2.Tag())
	assert.Len(t, lat2.ArcWeights(), 4)
}

func TestUnsortedLatticeRejected(t *testing.T) {
	model := buildLM(t, 2, "a b a b c\n")
	lat := New(model)
	bad := "utt2\n1 0 a 0.5\n\n"
	err := lat.Load(bufio.NewScanner(strings.NewReader(bad)))
	assert.Error(t, err)
}

func TestSeedMaskCoversArcs(t *testing.T) {
	model := buildLM(t, 2, "a b a b c\nb c a\n")
	lat := loadLattice(t, model, testLattice)
	seed := mask.New(model.Order())
	lat.SeedMask(seed)
	total := uint64(0)
	for _, b := range seed.Probs {
		total += b.GetCardinality()
	}
	assert.Greater(t, total, uint64(0))
}
