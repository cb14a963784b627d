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

// Package ngram implements the per-order trie index of an n-gram
// model: associative vectors mapping (history index, word id) to a
// dense n-gram index, and the model composing them across orders
// together with corpus, counts and ARPA I/O.
package ngram

import (
	"io"
	"sort"

	"github.com/czcorpus/ngramlm/bin"
	"github.com/czcorpus/ngramlm/hashing"
	"github.com/czcorpus/ngramlm/vocab"
)

// Index identifies an n-gram within its order. Indices are dense
// in [0, Size).
type Index int32

// InvalidIndex marks an n-gram that is not present.
const InvalidIndex Index = -1

// Vector stores all n-grams of one order as two parallel arrays
// (word id, history index into the next lower order) plus an
// open-address hash with quadratic probing for lookup.
type Vector struct {
	words    []vocab.ID
	hists    []Index
	indices  []Index
	hashMask uint32
}

// NewVector creates an empty vector.
func NewVector() *Vector {
	v := &Vector{}
	v.reindex(64)
	return v
}

// Size returns the number of stored n-grams.
func (v *Vector) Size() int {
	return len(v.words)
}

// Words exposes the word id of each n-gram, aligned with indices.
func (v *Vector) Words() []vocab.ID {
	return v.words
}

// Hists exposes the history index of each n-gram, aligned with indices.
func (v *Vector) Hists() []Index {
	return v.hists
}

// Find returns the index of (hist, word), or InvalidIndex.
func (v *Vector) Find(hist Index, word vocab.ID) Index {
	skip := uint32(0)
	pos := hashing.PairHash(uint32(hist), uint32(word)) & v.hashMask
	for {
		idx := v.indices[pos]
		if idx == InvalidIndex || (v.words[idx] == word && v.hists[idx] == hist) {
			return idx
		}
		skip++
		pos = (pos + skip) & v.hashMask
	}
}

// Add returns the index of (hist, word), inserting it when absent.
func (v *Vector) Add(hist Index, word vocab.ID) Index {
	idx, _ := v.AddNew(hist, word)
	return idx
}

// AddNew behaves as Add and also reports whether the entry
// was inserted.
func (v *Vector) AddNew(hist Index, word vocab.ID) (Index, bool) {
	pos := v.findPos(hist, word)
	if v.indices[pos] != InvalidIndex {
		return v.indices[pos], false
	}
	if v.Size() >= len(v.indices)-len(v.indices)/5 {
		v.reindex(hashing.NextPowerOf2((v.Size() + 1) * 2))
		pos = v.findPos(hist, word)
	}
	idx := Index(len(v.words))
	v.indices[pos] = idx
	v.words = append(v.words, word)
	v.hists = append(v.hists, hist)
	return idx, true
}

// Sort first rewrites word ids and history indices through the
// provided maps, then orders entries lexicographically by
// (hist, word) and rebuilds the hash. It returns the permutation
// from old to new indices.
func (v *Vector) Sort(vocabMap []vocab.ID, histMap []Index) []Index {
	for i := range v.words {
		v.words[i] = vocabMap[v.words[i]]
		v.hists[i] = histMap[v.hists[i]]
	}

	order := make([]int, v.Size())
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		i, j := order[a], order[b]
		if v.hists[i] == v.hists[j] {
			return v.words[i] < v.words[j]
		}
		return v.hists[i] < v.hists[j]
	})

	newWords := make([]vocab.ID, v.Size())
	newHists := make([]Index, v.Size())
	ngramMap := make([]Index, v.Size())
	for i, old := range order {
		newWords[i] = v.words[old]
		newHists[i] = v.hists[old]
		ngramMap[old] = Index(i)
	}
	v.words = newWords
	v.hists = newHists
	v.reindex(len(v.indices))
	return ngramMap
}

func (v *Vector) findPos(hist Index, word vocab.ID) uint32 {
	skip := uint32(0)
	pos := hashing.PairHash(uint32(hist), uint32(word)) & v.hashMask
	for {
		idx := v.indices[pos]
		if idx == InvalidIndex || (v.words[idx] == word && v.hists[idx] == hist) {
			return pos
		}
		skip++
		pos = (pos + skip) & v.hashMask
	}
}

func (v *Vector) reindex(capacity int) {
	v.indices = make([]Index, capacity)
	for i := range v.indices {
		v.indices[i] = InvalidIndex
	}
	v.hashMask = uint32(capacity - 1)
	for i := range v.words {
		skip := uint32(0)
		pos := hashing.PairHash(uint32(v.hists[i]), uint32(v.words[i])) & v.hashMask
		for v.indices[pos] != InvalidIndex {
			skip++
			pos = (pos + skip) & v.hashMask
		}
		v.indices[pos] = Index(i)
	}
}

// Serialize writes the vector payload (words and hists; the hash
// is rebuilt on load).
func (v *Vector) Serialize(w io.Writer) error {
	words := make([]int32, len(v.words))
	for i, x := range v.words {
		words[i] = int32(x)
	}
	hists := make([]int32, len(v.hists))
	for i, x := range v.hists {
		hists[i] = int32(x)
	}
	if err := bin.WriteI32Slice(w, words); err != nil {
		return err
	}
	return bin.WriteI32Slice(w, hists)
}

// Deserialize restores a vector written by Serialize.
func (v *Vector) Deserialize(r io.Reader) error {
	words, err := bin.ReadI32Slice(r)
	if err != nil {
		return err
	}
	hists, err := bin.ReadI32Slice(r)
	if err != nil {
		return err
	}
	v.words = make([]vocab.ID, len(words))
	for i, x := range words {
		v.words[i] = vocab.ID(x)
	}
	v.hists = make([]Index, len(hists))
	for i, x := range hists {
		v.hists[i] = Index(x)
	}
	v.reindex(hashing.NextPowerOf2(v.Size() + v.Size()/4 + 1))
	return nil
}
