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

// Package eval implements the training objectives: perplexity on a
// held-out corpus and lattice word-error-rate / margin, each driving
// a black-box minimizer over the estimator's parameter vector with an
// evaluation mask restricted to the indices the objective touches.
package eval

import (
	"math"

	"github.com/RoaringBitmap/roaring"
	"github.com/rs/zerolog/log"

	"github.com/czcorpus/ngramlm/lm"
	"github.com/czcorpus/ngramlm/mask"
	"github.com/czcorpus/ngramlm/ngram"
	"github.com/czcorpus/ngramlm/optimize"
)

// outOfBoundsEntropy is returned when the estimator rejects the
// parameters; it corresponds to a perplexity around 1100, bad enough
// to steer any minimizer away.
const outOfBoundsEntropy = 7.0

// PerplexityOptimizer evaluates and minimizes the entropy of an LM
// on a held-out corpus. Loading the corpus fixes the evaluation mask
// so that repeated estimates only touch the indices the corpus
// actually reads.
type PerplexityOptimizer struct {
	lm           lm.LM
	probCounts   [][]int
	bowCounts    [][]int
	numOOV       int
	numWords     int
	numZeroProbs int
	numCalls     int
	msk          *mask.LMMask
}

// NewPerplexityOptimizer creates an optimizer over the given model.
func NewPerplexityOptimizer(model lm.LM) *PerplexityOptimizer {
	return &PerplexityOptimizer{lm: model}
}

// NumOOV returns the out-of-vocabulary positions of the loaded corpus.
func (p *PerplexityOptimizer) NumOOV() int { return p.numOOV }

// NumWords returns the scored positions of the loaded corpus.
func (p *PerplexityOptimizer) NumWords() int { return p.numWords }

// NumZeroProbs returns the zero-probability positions of the last
// entropy computation.
func (p *PerplexityOptimizer) NumZeroProbs() int { return p.numZeroProbs }

// NumCalls returns the objective evaluations of the last Optimize.
func (p *PerplexityOptimizer) NumCalls() int { return p.numCalls }

// LoadCorpus scores the held-out corpus against the model's index
// space and builds the expanded evaluation mask.
func (p *PerplexityOptimizer) LoadCorpus(sc ngram.LineScanner) error {
	model := p.lm.Model()
	vocabMask := roaring.New()
	vocabMask.AddRange(0, uint64(model.Vocab().Size()))
	probCounts, bowCounts, numOOV, numWords, err := model.LoadEvalCorpus(vocabMask, sc)
	if err != nil {
		return err
	}
	p.probCounts = probCounts
	p.bowCounts = bowCounts
	p.numOOV = numOOV
	p.numWords = numWords
	p.msk = p.lm.GetMask(mask.Seed(p.lm.Order(), probCounts, bowCounts))
	return nil
}

// ComputeEntropy estimates the model with params and returns the
// per-word entropy of the loaded corpus. Zero-probability positions
// are counted and excluded from the denominator.
func (p *PerplexityOptimizer) ComputeEntropy(params []float64) float64 {
	if !p.lm.Estimate(params, p.msk) {
		return outOfBoundsEntropy
	}
	totLogProb := 0.0
	p.numZeroProbs = 0
	for o := 0; o < len(p.probCounts); o++ {
		probs := p.lm.Probs(o)
		for i, c := range p.probCounts[o] {
			if c > 0 {
				if probs[i] == 0 {
					p.numZeroProbs += c
				} else {
					totLogProb += math.Log(probs[i]) * float64(c)
				}
			}
		}
	}
	for o := 0; o < len(p.bowCounts); o++ {
		bows := p.lm.Bows(o)
		for i, c := range p.bowCounts[o] {
			if c > 0 && bows[i] > 0 {
				totLogProb += math.Log(bows[i]) * float64(c)
			}
		}
	}
	denom := p.numWords - p.numZeroProbs
	if denom <= 0 {
		return outOfBoundsEntropy
	}
	return -totLogProb / float64(denom)
}

// ComputePerplexity is exp(entropy).
func (p *PerplexityOptimizer) ComputePerplexity(params []float64) float64 {
	return math.Exp(p.ComputeEntropy(params))
}

// Optimize minimizes the corpus entropy over params in place and
// returns the final entropy.
func (p *PerplexityOptimizer) Optimize(params []float64, method optimize.Method) (float64, error) {
	p.numCalls = 0
	f := func(x []float64) float64 {
		p.numCalls++
		return p.ComputeEntropy(x)
	}
	result, err := optimize.Minimize(f, params, method, nil, nil)
	if err != nil {
		return 0, err
	}
	log.Info().
		Int("iterations", result.NumIters).
		Int("funcEvals", p.numCalls).
		Float64("perplexity", math.Exp(result.F)).
		Int("numOOV", p.numOOV).
		Int("numZeroProbs", p.numZeroProbs).
		Msg("perplexity optimization finished")
	return result.F, nil
}
