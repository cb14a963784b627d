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

package lm

import (
	"fmt"
	"io"

	"github.com/czcorpus/ngramlm/bin"
	"github.com/czcorpus/ngramlm/feature"
	"github.com/czcorpus/ngramlm/fs"
	"github.com/czcorpus/ngramlm/mask"
	"github.com/czcorpus/ngramlm/ngram"
	"github.com/czcorpus/ngramlm/smooth"
	"github.com/czcorpus/ngramlm/vocab"
)

// NgramLM owns a shared n-gram model, per-order counts, features and
// one smoothing estimator per order. Estimate slices the parameter
// vector by the precomputed per-order starts and delegates in
// ascending order, each order reading the probabilities of the one
// below.
type NgramLM struct {
	model       *ngram.Model
	order       int
	probs       [][]float64
	bows        [][]float64
	counts      [][]int
	features    [][][]float64
	smoothings  []smooth.Smoothing
	paramStarts []int
	defParams   []float64
}

// NewNgramLM creates an empty model of the given top order.
func NewNgramLM(order int) *NgramLM {
	return &NgramLM{
		model:    ngram.NewModel(order),
		order:    order,
		features: make([][][]float64, order+1),
	}
}

// Order returns the top n-gram order.
func (m *NgramLM) Order() int { return m.order }

// Model returns the shared n-gram model.
func (m *NgramLM) Model() *ngram.Model { return m.model }

// Probs returns the order-o probability vector.
func (m *NgramLM) Probs(o int) []float64 { return m.probs[o] }

// Bows returns the order-o back-off weight vector.
func (m *NgramLM) Bows(o int) []float64 { return m.bows[o] }

// Counts returns the order-o raw count vector.
func (m *NgramLM) Counts(o int) []int { return m.counts[o] }

// Features returns the order-o n-gram weighting features.
func (m *NgramLM) Features(o int) [][]float64 { return m.features[o] }

// DefParams returns the concatenated default parameters of all
// per-order smoothings.
func (m *NgramLM) DefParams() []float64 { return m.defParams }

// LoadVocab restricts the model to a fixed vocabulary.
func (m *NgramLM) LoadVocab(r io.Reader) error {
	if err := m.model.Vocab().LoadText(r); err != nil {
		return err
	}
	m.model.Vocab().SetFixed(true)
	return nil
}

// LoadCorpus accumulates counts from a tokenized text corpus.
func (m *NgramLM) LoadCorpus(sc ngram.LineScanner) error {
	counts, err := m.model.LoadCorpus(m.counts, sc)
	if err != nil {
		return err
	}
	m.counts = counts
	return nil
}

// LoadVerticalCorpus accumulates counts from a corpus vertical file.
func (m *NgramLM) LoadVerticalCorpus(conf ngram.VerticalConf) error {
	counts, err := m.model.LoadVerticalCorpus(m.counts, conf)
	if err != nil {
		return err
	}
	m.counts = counts
	return nil
}

// LoadCounts accumulates counts from the text counts format.
func (m *NgramLM) LoadCounts(sc ngram.LineScanner) error {
	counts, err := m.model.LoadCounts(m.counts, sc)
	if err != nil {
		return err
	}
	m.counts = counts
	return nil
}

// SaveCounts writes the raw counts in the text format.
func (m *NgramLM) SaveCounts(w io.Writer) error {
	return m.model.SaveCounts(m.counts, w, false)
}

// SaveBinCounts writes the model and its raw counts in the tagged
// binary format.
func (m *NgramLM) SaveBinCounts(w io.Writer) error {
	if err := bin.WriteUInt64(w, bin.Magic); err != nil {
		return err
	}
	if err := bin.WriteHeader(w, "NgramCounts"); err != nil {
		return err
	}
	if err := m.model.Serialize(w); err != nil {
		return err
	}
	for o := 0; o <= m.order; o++ {
		if err := bin.WriteIntSlice(w, m.counts[o]); err != nil {
			return err
		}
	}
	return nil
}

// LoadBinCounts replaces the model and counts with a binary counts
// file written by SaveBinCounts.
func (m *NgramLM) LoadBinCounts(r io.Reader) error {
	magic, err := bin.ReadUInt64(r)
	if err != nil {
		return err
	}
	if magic != bin.Magic {
		return fmt.Errorf("unrecognized binary version stamp")
	}
	if err := bin.VerifyHeader(r, "NgramCounts"); err != nil {
		return err
	}
	if err := m.model.Deserialize(r); err != nil {
		return err
	}
	if m.model.Order() != m.order {
		return fmt.Errorf("counts file has order %d, expected %d",
			m.model.Order(), m.order)
	}
	m.counts = make([][]int, m.order+1)
	for o := 0; o <= m.order; o++ {
		if m.counts[o], err = bin.ReadIntSlice(r); err != nil {
			return err
		}
	}
	return nil
}

// SaveEffCounts writes the smoothings' adjusted counts.
func (m *NgramLM) SaveEffCounts(w io.Writer) error {
	effCounts := make([][]float64, m.order+1)
	effCounts[0] = []float64{0}
	for o := 1; o <= m.order; o++ {
		effCounts[o] = m.smoothings[o].EffCounts()
	}
	return m.model.SaveFloatCounts(effCounts, w)
}

// SetWeighting attaches n-gram weighting feature bundles; each adds
// one log-linear parameter per order to the KN smoothings.
func (m *NgramLM) SetWeighting(bundles []*feature.Bundle) {
	for o := 0; o <= m.order; o++ {
		m.features[o] = nil
		for _, b := range bundles {
			if vec := b.At(o); vec != nil {
				m.features[o] = append(m.features[o], vec)
			}
		}
	}
}

// SetSmoothings installs one estimator per order 1..order (slot 0 is
// unused), initializes them against the loaded counts and lays out
// the parameter vector.
func (m *NgramLM) SetSmoothings(smoothings []smooth.Smoothing) error {
	if len(smoothings) != m.order+1 {
		return fmt.Errorf("expected %d smoothings, got %d", m.order+1, len(smoothings))
	}
	m.smoothings = smoothings
	for o := 1; o <= m.order; o++ {
		if m.smoothings[o] == nil {
			return fmt.Errorf("missing smoothing for order %d", o)
		}
		if err := m.smoothings[o].Initialize(m, o); err != nil {
			return err
		}
	}

	m.probs = make([][]float64, m.order+1)
	m.bows = make([][]float64, m.order)
	for o := 0; o <= m.order; o++ {
		m.probs[o] = make([]float64, m.model.Sizes(o))
		if o < m.order {
			m.bows[o] = make([]float64, m.model.Sizes(o))
		}
	}

	// 0th order probability: uniform over unigrams actually observed
	numSeen := 0
	for _, c := range m.counts[1] {
		if c > 0 {
			numSeen++
		}
	}
	if numSeen > 0 {
		m.probs[0][0] = 1.0 / float64(numSeen)
	}

	m.paramStarts = make([]int, m.order+2)
	m.defParams = m.defParams[:0]
	for o := 1; o <= m.order; o++ {
		m.paramStarts[o] = len(m.defParams)
		m.defParams = append(m.defParams, m.smoothings[o].DefaultParams()...)
	}
	m.paramStarts[m.order+1] = len(m.defParams)
	return nil
}

// GetMask expands a seed mask with each smoothing's transitive
// requirements, from the top order downward.
func (m *NgramLM) GetMask(seed *mask.LMMask) *mask.LMMask {
	expanded := seed.Clone()
	for o := m.order; o >= 1; o-- {
		m.smoothings[o].UpdateMask(expanded)
	}
	return expanded
}

// Estimate fills the per-order probability and back-off vectors. It
// returns false as soon as one smoothing rejects its parameter
// slice.
func (m *NgramLM) Estimate(params []float64, msk *mask.LMMask) bool {
	for o := 1; o <= m.order; o++ {
		slice := params[m.paramStarts[o]:m.paramStarts[o+1]]
		var bows []float64
		if o-1 < len(m.bows) {
			bows = m.bows[o-1]
		}
		if !m.smoothings[o].Estimate(slice, msk, m.probs[o], bows) {
			return false
		}
	}
	return true
}

// SetModel re-homes the LM onto a merged model: counts and features
// are permuted into the new index space and the smoothings are
// re-initialized.
func (m *NgramLM) SetModel(newModel *ngram.Model, vocabMap []vocab.ID, ngramMaps [][]ngram.Index) error {
	for o := 1; o <= m.order; o++ {
		m.counts[o] = ngram.ApplySortInt(ngramMaps[o], m.counts[o], newModel.Sizes(o))
		for f := range m.features[o] {
			m.features[o][f] = ngram.ApplySortF64(
				ngramMaps[o], m.features[o][f], newModel.Sizes(o), 0)
		}
	}
	m.model = newModel
	return m.SetSmoothings(m.smoothings)
}

// SaveArpa writes the estimated model in the ARPA text format.
func (m *NgramLM) SaveArpa(w io.Writer) error {
	return m.model.SaveArpa(m.probs, m.bows, w)
}

// SaveBin writes the estimated model in the tagged binary format.
func (m *NgramLM) SaveBin(w io.Writer) error {
	return saveBinLM(w, m.model, m.probs, m.bows)
}

// LoadFeature resolves a feature spec against the model (see
// feature.Load).
func (m *NgramLM) LoadFeature(spec string, maxOrder int) (*feature.Bundle, error) {
	return feature.Load(m.model, spec, maxOrder, func(path string) (io.ReadCloser, error) {
		return fs.OpenRead(path)
	})
}

func saveBinLM(w io.Writer, model *ngram.Model, probs, bows [][]float64) error {
	if err := bin.WriteUInt64(w, bin.Magic); err != nil {
		return err
	}
	if err := bin.WriteHeader(w, "NgramLM"); err != nil {
		return err
	}
	if err := model.Serialize(w); err != nil {
		return err
	}
	for o := 0; o < len(probs); o++ {
		if err := bin.WriteF64Slice(w, probs[o]); err != nil {
			return err
		}
	}
	for o := 0; o < len(bows); o++ {
		if err := bin.WriteF64Slice(w, bows[o]); err != nil {
			return err
		}
	}
	return nil
}
