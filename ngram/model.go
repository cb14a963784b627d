// Copyright 2022 Tomas Machalek <tomas.machalek@gmail.com>
// Copyright 2022 Charles University, Faculty of Arts,
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

package ngram

import (
	"fmt"
	"io"

	"github.com/czcorpus/ngramlm/bin"
	"github.com/czcorpus/ngramlm/vocab"
)

// Model is the ordered sequence of per-order Vectors plus the
// vocabulary and back-off links. Slot 0 holds a single sentinel entry
// carrying the 0th-order total.
type Model struct {
	vocab    *vocab.Vocab
	vectors  []*Vector
	backoffs [][]Index
}

// NewModel creates an empty model of the given top order.
func NewModel(order int) *Model {
	m := &Model{
		vocab:    vocab.New(),
		vectors:  make([]*Vector, order+1),
		backoffs: make([][]Index, order+1),
	}
	for o := range m.vectors {
		m.vectors[o] = NewVector()
	}
	m.vectors[0].Add(0, 0)
	return m
}

// Order returns the model's top n-gram order.
func (m *Model) Order() int {
	return len(m.vectors) - 1
}

// Vocab returns the owned vocabulary.
func (m *Model) Vocab() *vocab.Vocab {
	return m.vocab
}

// Sizes returns the number of n-grams at order o.
func (m *Model) Sizes(o int) int {
	return m.vectors[o].Size()
}

// Words returns the word ids at order o, aligned with indices.
func (m *Model) Words(o int) []vocab.ID {
	return m.vectors[o].Words()
}

// Hists returns the history indices at order o, aligned with indices.
func (m *Model) Hists(o int) []Index {
	return m.vectors[o].Hists()
}

// Backoffs returns, for each index at order o, the index at order o-1
// of the suffix n-gram (the oldest word dropped). Valid only after
// SortModel (or a loader, which sorts implicitly).
func (m *Model) Backoffs(o int) []Index {
	return m.backoffs[o]
}

// Vector exposes the raw per-order vector.
func (m *Model) Vector(o int) *Vector {
	return m.vectors[o]
}

// FindNgram resolves a word id sequence to its index at order
// len(words), or InvalidIndex.
func (m *Model) FindNgram(words []vocab.ID) Index {
	index := Index(0)
	for i, w := range words {
		if w == vocab.Invalid {
			return InvalidIndex
		}
		index = m.vectors[i+1].Find(index, w)
		if index == InvalidIndex {
			return InvalidIndex
		}
	}
	return index
}

// AddNgram inserts a word id sequence, creating all prefixes,
// and returns its index at order len(words).
func (m *Model) AddNgram(words []vocab.ID) Index {
	index := Index(0)
	for i, w := range words {
		index = m.vectors[i+1].Add(index, w)
	}
	return index
}

// NgramWords reconstructs the string form of the n-gram at (o, index)
// by walking the history chain. A leading boundary id renders as <s>.
func (m *Model) NgramWords(o int, index Index) []string {
	words := make([]string, o)
	word := vocab.Invalid
	for i := o; i > 0; i-- {
		v := m.vectors[i]
		word = v.words[index]
		words[i-1] = m.vocab.Word(word)
		index = v.hists[index]
	}
	if word == vocab.EndOfSentence {
		words[0] = "<s>"
	}
	return words
}

// SortModel sorts the vocabulary and every order (each higher order
// seeing the already remapped history map), then recomputes back-off
// links. It returns the vocabulary permutation and the per-order
// n-gram permutations.
func (m *Model) SortModel() (vocabMap []vocab.ID, ngramMaps [][]Index, err error) {
	vocabMap = m.vocab.Sort()
	ngramMaps = make([][]Index, len(m.vectors))
	ngramMaps[0] = []Index{0}
	for o := 1; o < len(m.vectors); o++ {
		ngramMaps[o] = m.vectors[o].Sort(vocabMap, ngramMaps[o-1])
	}
	if err = m.computeBackoffs(); err != nil {
		return nil, nil, err
	}
	return vocabMap, ngramMaps, nil
}

// ExtendModel merges all n-grams of other into m and returns the
// mapping from other's ids/indices into m. Back-off links are not
// recomputed; call SortModel afterwards.
func (m *Model) ExtendModel(other *Model) (vocabMap []vocab.ID, ngramMaps [][]Index) {
	vocabMap = make([]vocab.ID, other.vocab.Size())
	for i := range vocabMap {
		vocabMap[i] = m.vocab.Add(other.vocab.Word(vocab.ID(i)))
	}
	if len(m.vectors) < len(other.vectors) {
		for len(m.vectors) < len(other.vectors) {
			m.vectors = append(m.vectors, NewVector())
			m.backoffs = append(m.backoffs, nil)
		}
	}
	ngramMaps = make([][]Index, len(other.vectors))
	ngramMaps[0] = []Index{0}
	for o := 1; o < len(other.vectors); o++ {
		words := other.Words(o)
		hists := other.Hists(o)
		ngramMaps[o] = make([]Index, len(words))
		for i := range words {
			hist := ngramMaps[o-1][hists[i]]
			ngramMaps[o][i] = m.vectors[o].Add(hist, vocabMap[words[i]])
		}
	}
	return vocabMap, ngramMaps
}

// computeBackoffs fills the per-order back-off link arrays. For o=1
// all links point to the order-0 sentinel; for o=2 they resolve by
// vocabulary lookup; higher orders chain through the history's links.
func (m *Model) computeBackoffs() error {
	m.backoffs[0] = make([]Index, m.vectors[0].Size())
	if len(m.vectors) > 1 {
		m.backoffs[1] = make([]Index, m.vectors[1].Size())
	}
	if len(m.vectors) > 2 {
		words := m.vectors[2].words
		backoffs := make([]Index, m.vectors[2].Size())
		for i := range backoffs {
			backoffs[i] = m.vectors[1].Find(0, words[i])
			if backoffs[i] == InvalidIndex {
				return fmt.Errorf("unreachable back-off for bigram %d", i)
			}
		}
		m.backoffs[2] = backoffs
	}
	for o := 3; o < len(m.vectors); o++ {
		loBackoffs := m.backoffs[o-1]
		v := m.vectors[o]
		backoffs := make([]Index, v.Size())
		for i := range backoffs {
			backoffs[i] = m.vectors[o-1].Find(loBackoffs[v.hists[i]], v.words[i])
			if backoffs[i] == InvalidIndex {
				return fmt.Errorf("unreachable back-off at order %d, index %d", o, i)
			}
		}
		m.backoffs[o] = backoffs
	}
	return nil
}

// ApplySortF64 permutes an index-aligned float vector through
// ngramMap, growing it to length (filled with defValue) when the
// target model is larger than the source.
func ApplySortF64(ngramMap []Index, data []float64, length int, defValue float64) []float64 {
	if length == 0 {
		length = len(ngramMap)
	}
	sorted := make([]float64, length)
	if defValue != 0 {
		for i := range sorted {
			sorted[i] = defValue
		}
	}
	for i, j := range ngramMap {
		if i < len(data) {
			sorted[j] = data[i]
		}
	}
	return sorted
}

// ApplySortInt is ApplySortF64 for count vectors.
func ApplySortInt(ngramMap []Index, data []int, length int) []int {
	if length == 0 {
		length = len(ngramMap)
	}
	sorted := make([]int, length)
	for i, j := range ngramMap {
		if i < len(data) {
			sorted[j] = data[i]
		}
	}
	return sorted
}

// Serialize writes the tagged binary form of the model.
func (m *Model) Serialize(w io.Writer) error {
	if err := bin.WriteHeader(w, "NgramModel"); err != nil {
		return err
	}
	if err := m.vocab.Serialize(w); err != nil {
		return err
	}
	if err := bin.WriteUInt64(w, uint64(len(m.vectors))); err != nil {
		return err
	}
	for _, v := range m.vectors {
		if err := v.Serialize(w); err != nil {
			return err
		}
	}
	return nil
}

// Deserialize restores a model written by Serialize and recomputes
// back-off links.
func (m *Model) Deserialize(r io.Reader) error {
	if err := bin.VerifyHeader(r, "NgramModel"); err != nil {
		return err
	}
	if err := m.vocab.Deserialize(r); err != nil {
		return err
	}
	n, err := bin.ReadUInt64(r)
	if err != nil {
		return err
	}
	m.vectors = make([]*Vector, n)
	m.backoffs = make([][]Index, n)
	for o := range m.vectors {
		m.vectors[o] = NewVector()
		if err := m.vectors[o].Deserialize(r); err != nil {
			return err
		}
	}
	return m.computeBackoffs()
}
