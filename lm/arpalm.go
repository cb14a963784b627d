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
	"bufio"
	"encoding/binary"
	"io"

	"github.com/czcorpus/ngramlm/bin"
	"github.com/czcorpus/ngramlm/mask"
	"github.com/czcorpus/ngramlm/ngram"
	"github.com/czcorpus/ngramlm/vocab"
)

// ArpaLM is a model loaded from an ARPA or binary LM file. Its
// probabilities are data, not estimates: Estimate is a no-op and the
// model carries no tunable parameters of its own.
type ArpaLM struct {
	model *ngram.Model
	order int
	probs [][]float64
	bows  [][]float64
}

// NewArpaLM creates an empty loaded-model shell.
func NewArpaLM() *ArpaLM {
	return &ArpaLM{model: ngram.NewModel(0)}
}

// LoadLM reads either the tagged binary format (detected by the
// leading magic stamp) or the ARPA text format.
func (m *ArpaLM) LoadLM(r io.Reader) error {
	br := bufio.NewReader(r)
	head, err := br.Peek(8)
	if err == nil && binary.LittleEndian.Uint64(head) == bin.Magic {
		if _, err := br.Discard(8); err != nil {
			return err
		}
		return m.deserialize(br)
	}
	sc := bufio.NewScanner(br)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	probs, bows, err := m.model.LoadArpa(sc)
	if err != nil {
		return err
	}
	m.probs = probs
	m.bows = bows
	m.order = m.model.Order()
	return nil
}

func (m *ArpaLM) deserialize(r io.Reader) error {
	if err := bin.VerifyHeader(r, "NgramLM"); err != nil {
		return err
	}
	if err := m.model.Deserialize(r); err != nil {
		return err
	}
	m.order = m.model.Order()
	m.probs = make([][]float64, m.order+1)
	m.bows = make([][]float64, m.order)
	var err error
	for o := 0; o <= m.order; o++ {
		if m.probs[o], err = bin.ReadF64Slice(r); err != nil {
			return err
		}
	}
	for o := 0; o < m.order; o++ {
		if m.bows[o], err = bin.ReadF64Slice(r); err != nil {
			return err
		}
	}
	return nil
}

// Order returns the top n-gram order.
func (m *ArpaLM) Order() int { return m.order }

// Model returns the shared n-gram model.
func (m *ArpaLM) Model() *ngram.Model { return m.model }

// Probs returns the order-o probability vector.
func (m *ArpaLM) Probs(o int) []float64 { return m.probs[o] }

// Bows returns the order-o back-off weight vector.
func (m *ArpaLM) Bows(o int) []float64 { return m.bows[o] }

// DefParams returns nil; a loaded model has no tunable parameters.
func (m *ArpaLM) DefParams() []float64 { return nil }

// GetMask returns the seed unchanged (cloned); there is nothing to
// expand.
func (m *ArpaLM) GetMask(seed *mask.LMMask) *mask.LMMask {
	return seed.Clone()
}

// Estimate is a no-op: the loaded values are already final.
func (m *ArpaLM) Estimate(params []float64, msk *mask.LMMask) bool {
	return true
}

// SetModel re-homes the LM onto a merged model. Entries absent from
// the original receive their back-off value so the model remains a
// total distribution.
func (m *ArpaLM) SetModel(newModel *ngram.Model, vocabMap []vocab.ID, ngramMaps [][]ngram.Index) error {
	if newModel.Order() > m.order {
		for o := m.order + 1; o <= newModel.Order(); o++ {
			m.probs = append(m.probs, nil)
			m.bows = append(m.bows, nil)
		}
		m.order = newModel.Order()
	}
	for o := 1; o <= m.order; o++ {
		var nm []ngram.Index
		if o < len(ngramMaps) {
			nm = ngramMaps[o]
		}
		m.probs[o] = ngram.ApplySortF64(nm, m.probs[o], newModel.Sizes(o), 0)
		if o < m.order {
			m.bows[o] = ngram.ApplySortF64(nm, m.bows[o], newModel.Sizes(o), 1)
		}
	}
	m.model = newModel

	// fill entries unknown to this component with back-off values
	for o := 1; o <= m.order; o++ {
		hists := newModel.Hists(o)
		backoffs := newModel.Backoffs(o)
		boProbs := m.probs[o-1]
		bows := m.bows[o-1]
		probs := m.probs[o]
		for i := range probs {
			if probs[i] == 0 {
				probs[i] = boProbs[backoffs[i]] * bows[hists[i]]
			}
		}
	}
	return nil
}

// SaveArpa writes the model in the ARPA text format.
func (m *ArpaLM) SaveArpa(w io.Writer) error {
	return m.model.SaveArpa(m.probs, m.bows, w)
}

// SaveBin writes the model in the tagged binary format.
func (m *ArpaLM) SaveBin(w io.Writer) error {
	return saveBinLM(w, m.model, m.probs, m.bows)
}
