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
	"fmt"
	"io"
	"math"

	"github.com/czcorpus/ngramlm/feature"
	"github.com/czcorpus/ngramlm/mask"
	"github.com/czcorpus/ngramlm/ngram"
	"github.com/czcorpus/ngramlm/vocab"
)

// Interpolation selects how component probabilities are combined.
type Interpolation int

const (
	// LinearInterpolation mixes components with per-history-constant
	// weights (softmax over the bias parameters).
	LinearInterpolation Interpolation = iota
	// CountMerging weighs each component by its history count
	// through a fixed log-count feature.
	CountMerging
	// GeneralizedLinear computes log-linear weights from arbitrary
	// history features.
	GeneralizedLinear
)

// ParseInterpolation maps the CLI names LI, CM, GLI.
func ParseInterpolation(name string) (Interpolation, error) {
	switch name {
	case "LI":
		return LinearInterpolation, nil
	case "CM":
		return CountMerging, nil
	case "GLI":
		return GeneralizedLinear, nil
	}
	return 0, fmt.Errorf("unknown interpolation mode %q", name)
}

// InterpolatedLM merges component LMs over a shared index universe
// and produces normalized mixture probabilities with matching
// back-off weights. The parameter vector concatenates the component
// parameter blocks, the bias parameters (one per component beyond the
// first, per order unless tied) and the feature weights.
type InterpolatedLM struct {
	model         *ngram.Model
	order         int
	lms           []LM
	probs         [][]float64
	bows          [][]float64
	features      [][]*feature.Bundle
	interpolation Interpolation
	tieParamOrder bool
	tieParamLM    bool
	paramStarts   []int
	defParams     []float64
	paramDefaults []float64
	paramMask     []bool
	weights       []float64
	totWeights    []float64
}

// NewInterpolatedLM builds the merged model: every component is
// extended into a fresh shared model, the result is sorted once, and
// each component is remapped into the final merged index space.
func NewInterpolatedLM(lms []LM, tieParamOrder, tieParamLM bool) (*InterpolatedLM, error) {
	if len(lms) < 2 {
		return nil, fmt.Errorf("interpolation requires at least two component models")
	}
	order := 0
	for _, l := range lms {
		if l.Order() > order {
			order = l.Order()
		}
	}
	m := &InterpolatedLM{
		model:         ngram.NewModel(order),
		order:         order,
		lms:           lms,
		tieParamOrder: tieParamOrder,
		tieParamLM:    tieParamLM,
	}

	vocabMaps := make([][]vocab.ID, len(lms))
	ngramMaps := make([][][]ngram.Index, len(lms))
	for l, component := range lms {
		vocabMaps[l], ngramMaps[l] = m.model.ExtendModel(component.Model())
	}
	vocabSortMap, ngramSortMaps, err := m.model.SortModel()
	if err != nil {
		return nil, err
	}
	for l, component := range lms {
		vm := make([]vocab.ID, len(vocabMaps[l]))
		for i, id := range vocabMaps[l] {
			vm[i] = vocabSortMap[id]
		}
		nm := make([][]ngram.Index, len(ngramMaps[l]))
		nm[0] = []ngram.Index{0}
		for o := 1; o < len(ngramMaps[l]); o++ {
			nm[o] = make([]ngram.Index, len(ngramMaps[l][o]))
			for i, idx := range ngramMaps[l][o] {
				nm[o][i] = ngramSortMaps[o][idx]
			}
		}
		if err := component.SetModel(m.model, vm, nm); err != nil {
			return nil, err
		}
	}
	for l, component := range lms {
		if component.Order() != order {
			return nil, fmt.Errorf(
				"component %d has order %d, the merged model requires %d",
				l, component.Order(), order)
		}
	}

	maxLen := 0
	m.probs = make([][]float64, order+1)
	m.bows = make([][]float64, order)
	for o := 0; o <= order; o++ {
		size := m.model.Sizes(o)
		m.probs[o] = make([]float64, size)
		if o < order {
			m.bows[o] = make([]float64, size)
		}
		if size > maxLen {
			maxLen = size
		}
	}
	m.weights = make([]float64, maxLen)
	m.totWeights = make([]float64, maxLen)

	m.paramStarts = make([]int, len(lms)+1)
	for l, component := range lms {
		m.paramStarts[l] = len(m.defParams)
		m.defParams = append(m.defParams, component.DefParams()...)
	}
	m.paramStarts[len(lms)] = len(m.defParams)
	numBias := (len(lms) - 1) * m.biasPerComponent()
	for i := 0; i < numBias; i++ {
		m.defParams = append(m.defParams, 0)
	}
	return m, nil
}

func (m *InterpolatedLM) biasPerComponent() int {
	if m.tieParamOrder {
		return 1
	}
	return m.order
}

// SetInterpolation installs the interpolation mode and the
// per-component history feature bundles (none for LI, exactly one
// per component for CM, any number for GLI).
func (m *InterpolatedLM) SetInterpolation(mode Interpolation, features [][]*feature.Bundle) error {
	m.interpolation = mode
	m.features = features
	orderMult := m.biasPerComponent()
	switch mode {
	case LinearInterpolation:
		for _, lmFeats := range features {
			if len(lmFeats) != 0 {
				return fmt.Errorf("linear interpolation accepts no features")
			}
		}
		m.paramDefaults = nil
		m.paramMask = nil
	case CountMerging:
		if len(features) != len(m.lms) {
			return fmt.Errorf("count merging requires one feature per component")
		}
		for _, lmFeats := range features {
			if len(lmFeats) != 1 {
				return fmt.Errorf("count merging requires exactly one feature per component")
			}
		}
		numParams := len(m.defParams) + len(m.lms)*orderMult
		m.paramDefaults = make([]float64, numParams)
		copy(m.paramDefaults, m.defParams)
		for i := len(m.defParams); i < numParams; i++ {
			m.paramDefaults[i] = 1
		}
		m.paramMask = make([]bool, numParams)
		for i := range m.defParams {
			m.paramMask[i] = true
		}
	case GeneralizedLinear:
		if len(features) != len(m.lms) {
			return fmt.Errorf("generalized linear interpolation requires features per component")
		}
		numFeatParams := 0
		if m.tieParamLM {
			numFeatParams = len(features[0])
			for _, lmFeats := range features[1:] {
				if len(lmFeats) != numFeatParams {
					return fmt.Errorf("tied feature parameters require the same feature count for every component")
				}
			}
		} else {
			for _, lmFeats := range features {
				numFeatParams += len(lmFeats)
			}
		}
		numParams := len(m.defParams) + numFeatParams*orderMult
		m.paramDefaults = make([]float64, numParams)
		copy(m.paramDefaults, m.defParams)
		for i := len(m.defParams); i < numParams; i++ {
			m.paramDefaults[i] = 1
		}
		m.paramMask = make([]bool, numParams)
		for i := range m.paramMask {
			m.paramMask[i] = true
		}
		m.defParams = append([]float64{}, m.paramDefaults...)
	}
	return nil
}

// Order returns the merged top order.
func (m *InterpolatedLM) Order() int { return m.order }

// Model returns the merged n-gram model.
func (m *InterpolatedLM) Model() *ngram.Model { return m.model }

// Probs returns the order-o mixture probabilities.
func (m *InterpolatedLM) Probs(o int) []float64 { return m.probs[o] }

// Bows returns the order-o normalizing back-off weights.
func (m *InterpolatedLM) Bows(o int) []float64 { return m.bows[o] }

// DefParams returns the default parameter vector in the layout
// described on the type.
func (m *InterpolatedLM) DefParams() []float64 { return m.defParams }

// GetMask expands a seed mask with the interpolation layer's
// requirements and derives a mask for each component.
func (m *InterpolatedLM) GetMask(seed *mask.LMMask) *mask.LMMask {
	expanded := mask.New(m.order)
	expanded.Probs[0] = seed.Probs[0].Clone()
	for o := 1; o <= m.order; o++ {
		expanded.Probs[o] = seed.Probs[o].Clone()
		hists := m.model.Hists(o)
		backoffs := m.model.Backoffs(o)
		bowMask := seed.Bows[o-1]
		for i := range hists {
			if bowMask.Contains(uint32(hists[i])) {
				expanded.Probs[o].Add(uint32(i))
				expanded.Probs[o-1].Add(uint32(backoffs[i]))
			}
		}
	}
	for o := 0; o < m.order; o++ {
		expanded.Bows[o] = seed.Bows[o].Clone()
		hoHists := m.model.Hists(o + 1)
		it := expanded.Probs[o+1].Iterator()
		for it.HasNext() {
			expanded.Weights[o].Add(uint32(hoHists[it.Next()]))
		}
	}
	expanded.Components = make([]*mask.LMMask, len(m.lms))
	for l, component := range m.lms {
		sub := mask.New(m.order)
		sub.Probs = expanded.Probs
		sub.Bows = expanded.Bows
		expanded.Components[l] = component.GetMask(sub)
	}
	return expanded
}

// Estimate re-estimates every component with its parameter block and
// interpolates: per history, component weights are the exponentiated
// bias + feature score, probabilities the normalized weighted sum,
// and the bows of the order below renormalize the left-over mass.
func (m *InterpolatedLM) Estimate(params []float64, msk *mask.LMMask) bool {
	var effective []float64
	if len(m.paramMask) > 0 {
		p := 0
		for i := range m.paramMask {
			if m.paramMask[i] {
				m.paramDefaults[i] = params[p]
				p++
			}
		}
		effective = m.paramDefaults
	} else {
		effective = params
	}

	for l, component := range m.lms {
		slice := effective[m.paramStarts[l]:m.paramStarts[l+1]]
		var sub *mask.LMMask
		if msk != nil {
			sub = msk.Components[l]
		}
		if !component.Estimate(slice, sub) {
			return false
		}
	}

	interpParams := effective[m.paramStarts[len(m.lms)]:]
	if !m.estimateProbs(interpParams, msk) {
		return false
	}
	m.estimateBows(msk)
	return true
}

func (m *InterpolatedLM) estimateProbs(params []float64, msk *mask.LMMask) bool {
	numLMs := len(m.lms)
	biasIdx := 0
	featIdx := (numLMs - 1) * m.biasPerComponent()
	for o := 1; o <= m.order; o++ {
		histSize := m.model.Sizes(o - 1)
		weights := m.weights[:histSize]
		totWeights := m.totWeights[:histSize]
		probs := m.probs[o]
		hists := m.model.Hists(o)

		var weightMask, probMask maskBitmap
		if msk != nil {
			weightMask = msk.Weights[o-1]
			probMask = msk.Probs[o]
		}

		for h := range totWeights {
			totWeights[h] = 0
		}
		if msk == nil {
			for i := range probs {
				probs[i] = 0
			}
		} else {
			it := msk.Probs[o].Iterator()
			for it.HasNext() {
				probs[it.Next()] = 0
			}
		}

		if m.tieParamOrder {
			biasIdx = 0
			featIdx = numLMs - 1
		}
		orderFeatStart := featIdx
		for l := 0; l < numLMs; l++ {
			if m.tieParamLM {
				featIdx = orderFeatStart
			}
			bias := 0.0
			if l > 0 {
				bias = params[biasIdx]
				biasIdx++
			}
			for h := range weights {
				weights[h] = bias
			}
			if len(m.features) > 0 {
				for _, b := range m.features[l] {
					p := params[featIdx]
					featIdx++
					if p == 0 {
						continue
					}
					vec := b.At(o - 1)
					if vec == nil {
						continue
					}
					if weightMask != nil {
						it := msk.Weights[o-1].Iterator()
						for it.HasNext() {
							h := it.Next()
							weights[h] += vec[h] * p
						}
					} else {
						for h := range weights {
							weights[h] += vec[h] * p
						}
					}
				}
			}
			if weightMask != nil {
				it := msk.Weights[o-1].Iterator()
				for it.HasNext() {
					h := it.Next()
					weights[h] = math.Exp(weights[h])
					totWeights[h] += weights[h]
				}
			} else {
				for h := range weights {
					weights[h] = math.Exp(weights[h])
					totWeights[h] += weights[h]
				}
			}

			lmProbs := m.lms[l].Probs(o)
			if probMask != nil {
				it := msk.Probs[o].Iterator()
				for it.HasNext() {
					i := it.Next()
					probs[i] += lmProbs[i] * weights[hists[i]]
				}
			} else {
				for i := range probs {
					probs[i] += lmProbs[i] * weights[hists[i]]
				}
			}
		}

		normalizeAt := func(i int) bool {
			tot := totWeights[hists[i]]
			if tot == 0 {
				return false
			}
			probs[i] /= tot
			return true
		}
		if probMask != nil {
			it := msk.Probs[o].Iterator()
			for it.HasNext() {
				if !normalizeAt(int(it.Next())) {
					return false
				}
			}
		} else {
			for i := range probs {
				if !normalizeAt(i) {
					return false
				}
			}
		}
	}
	return true
}

func (m *InterpolatedLM) estimateBows(msk *mask.LMMask) {
	for o := 1; o <= m.order; o++ {
		bows := m.bows[o-1]
		probs := m.probs[o]
		boProbs := m.probs[o-1]
		hists := m.model.Hists(o)
		backoffs := m.model.Backoffs(o)

		histSize := m.model.Sizes(o - 1)
		numerator := m.weights[:histSize]
		denominator := m.totWeights[:histSize]
		for h := range numerator {
			numerator[h] = 0
			denominator[h] = 0
		}

		if msk == nil {
			for i := range probs {
				numerator[hists[i]] += probs[i]
				denominator[hists[i]] += boProbs[backoffs[i]]
			}
			for h := range bows {
				bows[h] = (1 - numerator[h]) / (1 - denominator[h])
			}
		} else {
			bowMask := msk.Bows[o-1]
			for i := range probs {
				if bowMask.Contains(uint32(hists[i])) {
					numerator[hists[i]] += probs[i]
					denominator[hists[i]] += boProbs[backoffs[i]]
				}
			}
			it := bowMask.Iterator()
			for it.HasNext() {
				h := it.Next()
				bows[h] = (1 - numerator[h]) / (1 - denominator[h])
			}
		}
	}
}

// SetModel is not supported: an interpolated model is itself the
// merged universe.
func (m *InterpolatedLM) SetModel(newModel *ngram.Model, vocabMap []vocab.ID, ngramMaps [][]ngram.Index) error {
	return fmt.Errorf("an interpolated model cannot be re-homed")
}

// SaveArpa writes the interpolated model in the ARPA text format.
func (m *InterpolatedLM) SaveArpa(w io.Writer) error {
	return m.model.SaveArpa(m.probs, m.bows, w)
}

// SaveBin writes the interpolated model in the tagged binary format.
func (m *InterpolatedLM) SaveBin(w io.Writer) error {
	return saveBinLM(w, m.model, m.probs, m.bows)
}

type maskBitmap interface {
	Contains(x uint32) bool
}

// CountMergingFeatures derives the default count-merging feature for
// each component: the log history count at every order below the
// top. Components must be count-based models.
func CountMergingFeatures(lms []LM) ([][]*feature.Bundle, error) {
	features := make([][]*feature.Bundle, len(lms))
	for l, component := range lms {
		counted, ok := component.(*NgramLM)
		if !ok {
			return nil, fmt.Errorf("count merging requires count-based component models")
		}
		b := &feature.Bundle{Orders: make([][]float64, counted.Order())}
		total := 0
		for _, c := range counted.Counts(1) {
			total += c
		}
		b.Orders[0] = []float64{math.Log(float64(total) + 1e-99)}
		for o := 1; o < counted.Order(); o++ {
			counts := counted.Counts(o)
			vec := make([]float64, len(counts))
			for i, c := range counts {
				vec[i] = math.Log(float64(c) + 1e-99)
			}
			b.Orders[o] = vec
		}
		features[l] = []*feature.Bundle{b}
	}
	return features, nil
}
