// Copyright 2023 Tomas Machalek <tomas.machalek@gmail.com>
// Copyright 2023 Charles University, Faculty of Arts,
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

package smooth

import (
	"math"

	"github.com/czcorpus/ngramlm/mask"
)

// maxFeatureParam bounds the log-linear n-gram weighting parameters;
// beyond it exp() overflows any useful probability range.
const maxFeatureParam = 100.0

// KneserNey implements interpolated Kneser-Ney smoothing with
// discOrder discount parameters: 1 reproduces the original
// formulation, 3 the modified one, higher values the extended
// variant. With tuneParams the discounts become free parameters of
// the optimizer; otherwise they stay at the count-statistics
// defaults. Attached n-gram weighting features append one log-linear
// parameter each.
type KneserNey struct {
	lm         LMView
	order      int
	discOrder  int
	tuneParams bool
	effCounts  []float64
	weights    []float64
	invHist    []float64
	discParams []float64
	defParams  []float64
}

// NewKneserNey creates the estimator; see the type comment for the
// meaning of discOrder and tuneParams.
func NewKneserNey(discOrder int, tuneParams bool) *KneserNey {
	return &KneserNey{discOrder: discOrder, tuneParams: tuneParams}
}

func (s *KneserNey) Initialize(lm LMView, order int) error {
	s.lm = lm
	s.order = order
	model := lm.Model()

	// Adjusted counts: below the top order, the number of distinct
	// left contexts the n-gram occurs in; raw counts for n-grams that
	// never appear as a suffix (e.g. those starting with a sentence
	// boundary) and at the top order.
	if order < lm.Order() {
		s.effCounts = make([]float64, model.Sizes(order))
		hoCounts := lm.Counts(order + 1)
		hoBackoffs := model.Backoffs(order + 1)
		for i, c := range hoCounts {
			if c > 0 {
				s.effCounts[hoBackoffs[i]]++
			}
		}
		counts := lm.Counts(order)
		for i := range s.effCounts {
			if s.effCounts[i] == 0 {
				s.effCounts[i] = float64(counts[i])
			}
		}
	} else {
		counts := lm.Counts(order)
		s.effCounts = make([]float64, len(counts))
		for i, c := range counts {
			s.effCounts[i] = float64(c)
		}
	}

	if len(lm.Features(order)) > 0 {
		// weighting features make history sums parameter-dependent
		s.invHist = make([]float64, model.Sizes(order-1))
		s.weights = make([]float64, model.Sizes(order))
	} else {
		s.weights = nil
		histCounts := make([]float64, model.Sizes(order-1))
		hists := model.Hists(order)
		for i, c := range s.effCounts {
			histCounts[hists[i]] += c
		}
		s.invHist = histCounts
		for h, c := range s.invHist {
			if c != 0 {
				s.invHist[h] = 1 / c
			}
		}
	}

	// Discount defaults from the count-of-counts statistics.
	n := make([]float64, s.discOrder+2)
	for _, c := range s.effCounts {
		k := int(c)
		if k >= 1 && k < len(n) {
			n[k]++
		}
	}
	y := n[1] / (n[1] + 2*n[2])
	s.discParams = make([]float64, s.discOrder+1)
	for k := 1; k <= s.discOrder; k++ {
		if n[k] == 0 {
			s.discParams[k] = float64(k)
		} else {
			s.discParams[k] = float64(k) - float64(k+1)*y*n[k+1]/n[k]
		}
		if s.discParams[k] < 0 {
			s.discParams[k] = 0
		}
		if s.discParams[k] > float64(k) {
			s.discParams[k] = float64(k)
		}
	}

	if s.tuneParams {
		s.defParams = append([]float64{}, s.discParams[1:]...)
	} else {
		s.defParams = nil
	}
	for range lm.Features(order) {
		s.defParams = append(s.defParams, 0)
	}
	return nil
}

func (s *KneserNey) DefaultParams() []float64 {
	return s.defParams
}

func (s *KneserNey) EffCounts() []float64 {
	return s.effCounts
}

// UpdateMask adds this order's transitive requirements: computing a
// masked prob needs the back-off prob and the history bow below, and
// any history with a set bow bit needs discounts (and hence probs)
// for all its completions.
func (s *KneserNey) UpdateMask(m *mask.LMMask) {
	model := s.lm.Model()
	hists := model.Hists(s.order)
	backoffs := model.Backoffs(s.order)

	probMask := m.Probs[s.order]
	boProbMask := m.Probs[s.order-1]
	boBowMask := m.Bows[s.order-1]

	it := probMask.Iterator()
	for it.HasNext() {
		i := it.Next()
		boProbMask.Add(uint32(backoffs[i]))
		boBowMask.Add(uint32(hists[i]))
	}

	discMask := m.Disc[s.order]
	for i, h := range hists {
		if boBowMask.Contains(uint32(h)) {
			discMask.Add(uint32(i))
			probMask.Add(uint32(i))
			boProbMask.Add(uint32(backoffs[i]))
		}
	}
}

func (s *KneserNey) Estimate(params []float64, msk *mask.LMMask, probs, bows []float64) bool {
	numDiscParams := 0
	if s.tuneParams {
		numDiscParams = s.discOrder
		for i := 0; i < s.discOrder; i++ {
			if params[i] < 0 || params[i] > float64(i+1) {
				return false
			}
		}
		copy(s.discParams[1:], params[:s.discOrder])
	}
	for _, p := range params[numDiscParams:] {
		if math.Abs(p) > maxFeatureParam {
			return false
		}
	}

	model := s.lm.Model()
	hists := model.Hists(s.order)
	backoffs := model.Backoffs(s.order)
	boProbs := s.lm.Probs(s.order - 1)

	if s.weights != nil {
		s.computeWeights(params[numDiscParams:])
		for h := range s.invHist {
			s.invHist[h] = 0
		}
		for i, c := range s.effCounts {
			s.invHist[hists[i]] += c * s.weights[i]
		}
		for h, c := range s.invHist {
			if c != 0 {
				s.invHist[h] = 1 / c
			}
		}
	}

	weightAt := func(i int) float64 {
		if s.weights == nil {
			return 1
		}
		return s.weights[i]
	}
	discAt := func(i int) float64 {
		k := int(s.effCounts[i])
		if k > s.discOrder {
			k = s.discOrder
		}
		return s.discParams[k]
	}

	// Back-off weights: the discounted mass of each history,
	// normalized by its (weighted) adjusted-count sum.
	if msk == nil {
		for h := range bows {
			bows[h] = 0
		}
		for i := range s.effCounts {
			bows[hists[i]] += weightAt(i) * discAt(i)
		}
		for h := range bows {
			if s.invHist[h] == 0 {
				bows[h] = 1
			} else {
				bows[h] *= s.invHist[h]
			}
		}
	} else {
		bowMask := msk.Bows[s.order-1]
		it := bowMask.Iterator()
		for it.HasNext() {
			bows[it.Next()] = 0
		}
		for i := range s.effCounts {
			h := uint32(hists[i])
			if bowMask.Contains(h) {
				bows[h] += weightAt(i) * discAt(i)
			}
		}
		it = bowMask.Iterator()
		for it.HasNext() {
			h := it.Next()
			if s.invHist[h] == 0 {
				bows[h] = 1
			} else {
				bows[h] *= s.invHist[h]
			}
		}
	}

	// Interpolated probabilities. At order 1 with an open vocabulary
	// the back-off term applies to seen words only (unseen ones keep
	// probability 0); otherwise the back-off mass covers every entry.
	mergeUnseen := s.order == 1 && !model.Vocab().IsFixed()
	estimateAt := func(i int) {
		seen := 0.0
		if s.effCounts[i] != 0 {
			seen = weightAt(i) * (s.effCounts[i] - discAt(i)) * s.invHist[hists[i]]
		}
		bo := boProbs[backoffs[i]] * bows[hists[i]]
		if mergeUnseen {
			if s.effCounts[i] == 0 {
				probs[i] = 0
			} else {
				probs[i] = seen + bo
			}
		} else {
			probs[i] = seen + bo
		}
	}
	if msk == nil {
		for i := range probs {
			estimateAt(i)
		}
	} else {
		it := msk.Probs[s.order].Iterator()
		for it.HasNext() {
			estimateAt(int(it.Next()))
		}
	}
	return true
}

func (s *KneserNey) computeWeights(featParams []float64) {
	for i := range s.weights {
		s.weights[i] = 0
	}
	features := s.lm.Features(s.order)
	for f, p := range featParams {
		if p == 0 {
			continue
		}
		vec := features[f]
		for i := range s.weights {
			s.weights[i] += vec[i] * p
		}
	}
	for i := range s.weights {
		s.weights[i] = math.Exp(s.weights[i])
	}
}
