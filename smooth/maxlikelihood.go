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
	"github.com/czcorpus/ngramlm/mask"
)

// MaxLikelihood estimates probabilities as relative frequencies
// within each history. There is no discounting, no parameters and
// all back-off weights are 1.
type MaxLikelihood struct {
	lm        LMView
	order     int
	effCounts []float64
	invHist   []float64
}

func (s *MaxLikelihood) Initialize(lm LMView, order int) error {
	s.lm = lm
	s.order = order
	counts := lm.Counts(order)
	s.effCounts = make([]float64, len(counts))
	for i, c := range counts {
		s.effCounts[i] = float64(c)
	}

	hists := lm.Model().Hists(order)
	histCounts := make([]float64, lm.Model().Sizes(order-1))
	for i, c := range counts {
		histCounts[hists[i]] += float64(c)
	}
	s.invHist = histCounts
	for h, c := range s.invHist {
		if c != 0 {
			s.invHist[h] = 1 / c
		}
	}
	return nil
}

func (s *MaxLikelihood) DefaultParams() []float64 {
	return nil
}

func (s *MaxLikelihood) UpdateMask(m *mask.LMMask) {
}

func (s *MaxLikelihood) Estimate(params []float64, msk *mask.LMMask, probs, bows []float64) bool {
	counts := s.lm.Counts(s.order)
	hists := s.lm.Model().Hists(s.order)
	for i := range probs {
		if msk != nil && !msk.Probs[s.order].Contains(uint32(i)) {
			continue
		}
		probs[i] = float64(counts[i]) * s.invHist[hists[i]]
	}
	for h := range bows {
		if msk != nil && !msk.Bows[s.order-1].Contains(uint32(h)) {
			continue
		}
		bows[h] = 1
	}
	return true
}

func (s *MaxLikelihood) EffCounts() []float64 {
	return s.effCounts
}
