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
	"strings"

	"github.com/RoaringBitmap/roaring"

	"github.com/czcorpus/ngramlm/vocab"
)

// LineScanner is the minimal line-stream contract shared by
// bufio.Scanner and fs.MultiFileScanner.
type LineScanner interface {
	Scan() bool
	Text() string
	Err() error
}

func isDocMarker(line string) bool {
	return strings.HasPrefix(line, "<DOC ") || line == "</DOC>"
}

// accumulator adds whole sentences into a model while keeping the
// per-order count vectors aligned with the growing index space.
type accumulator struct {
	m      *Model
	counts [][]int
	hists  []Index
}

func newAccumulator(m *Model, counts [][]int) *accumulator {
	if counts == nil {
		counts = make([][]int, len(m.vectors))
	}
	if len(counts[0]) == 0 {
		counts[0] = []int{0}
	}
	return &accumulator{
		m:      m,
		counts: counts,
		hists:  make([]Index, len(m.vectors)),
	}
}

func (acc *accumulator) bump(o int, index Index) {
	for int(index) >= len(acc.counts[o]) {
		acc.counts[o] = append(acc.counts[o], 0)
	}
	acc.counts[o][index]++
}

// addSentence accumulates all n-grams of one sentence, wrapping it
// into boundary tokens. Tokens of an unknown word in a fixed
// vocabulary invalidate the n-grams spanning them.
func (acc *accumulator) addSentence(tokens []string) {
	words := make([]vocab.ID, 0, len(tokens)+2)
	words = append(words, vocab.EndOfSentence)
	for _, tok := range tokens {
		words = append(words, acc.m.vocab.Add(tok))
	}
	words = append(words, vocab.EndOfSentence)

	size := len(acc.m.vectors)
	acc.hists[1] = acc.m.vectors[1].Add(0, vocab.EndOfSentence)
	for o := 2; o < size; o++ {
		acc.hists[o] = InvalidIndex
	}
	for i := 1; i < len(words); i++ {
		word := words[i]
		hist := Index(0)
		maxOrder := i + 2
		if maxOrder > size {
			maxOrder = size
		}
		for j := 1; j < maxOrder; j++ {
			if word != vocab.Invalid && hist != InvalidIndex {
				index := acc.m.vectors[j].Add(hist, word)
				acc.bump(j, index)
				hist = acc.hists[j]
				acc.hists[j] = index
			} else {
				hist = acc.hists[j]
				acc.hists[j] = InvalidIndex
			}
		}
	}
}

// finish registers zero-count unigrams for any remaining vocabulary
// words, sorts the model and remaps the accumulated counts.
func (acc *accumulator) finish() ([][]int, error) {
	m := acc.m
	if m.vectors[1].Size() != m.vocab.Size() {
		for i := 0; i < m.vocab.Size(); i++ {
			m.vectors[1].Add(0, vocab.ID(i))
		}
	}
	_, ngramMaps, err := m.SortModel()
	if err != nil {
		return nil, err
	}
	for o := 1; o < len(acc.counts); o++ {
		acc.counts[o] = ApplySortInt(ngramMaps[o], acc.counts[o], m.Sizes(o))
	}
	return acc.counts, nil
}

// LoadCorpus accumulates raw n-gram counts from a whitespace-tokenized
// text corpus, one sentence per line. <DOC> markers are skipped. The
// model is sorted afterwards and the returned count vectors are
// aligned with the final index space. Passing non-nil counts (aligned
// with the model's current indices) accumulates onto an earlier load.
func (m *Model) LoadCorpus(counts [][]int, sc LineScanner) ([][]int, error) {
	acc := newAccumulator(m, counts)
	for sc.Scan() {
		line := sc.Text()
		if isDocMarker(line) {
			continue
		}
		tokens := strings.Fields(line)
		acc.addSentence(tokens)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return acc.finish()
}

// LoadEvalCorpus scores a held-out corpus against the (already
// sorted) model: for each running position it ascends to the longest
// n-gram present, bumping a prob count at the found index and a bow
// count at each history traversed while backing off. Words outside
// vocabMask count as OOVs and reset the order. It returns per-order
// prob counts, per-order bow counts, the number of OOVs and the
// number of scored words.
func (m *Model) LoadEvalCorpus(vocabMask *roaring.Bitmap, sc LineScanner) (
	probCounts [][]int, bowCounts [][]int, numOOV int, numWords int, err error,
) {
	size := len(m.vectors)
	probCounts = make([][]int, size)
	bowCounts = make([][]int, size-1)
	for o := 0; o < size; o++ {
		probCounts[o] = make([]int, m.Sizes(o))
	}
	for o := 0; o < size-1; o++ {
		bowCounts[o] = make([]int, m.Sizes(o))
	}

	words := make([]vocab.ID, 0, 256)
	for sc.Scan() {
		line := sc.Text()
		if isDocMarker(line) {
			continue
		}
		words = words[:0]
		words = append(words, vocab.EndOfSentence)
		for _, tok := range strings.Fields(line) {
			words = append(words, m.vocab.Find(tok))
		}
		words = append(words, vocab.EndOfSentence)

		ngramOrder := 2
		if ngramOrder > size-1 {
			ngramOrder = size - 1
		}
		for i := 1; i < len(words); i++ {
			w := words[i]
			if w == vocab.Invalid || !vocabMask.Contains(uint32(w)) {
				ngramOrder = 1
				numOOV++
				continue
			}
			boOrder := ngramOrder
			var index Index
			for {
				index = m.FindNgram(words[i-boOrder+1 : i+1])
				if index != InvalidIndex {
					break
				}
				boOrder--
				hist := m.FindNgram(words[i-boOrder : i])
				if hist != InvalidIndex {
					bowCounts[boOrder][hist]++
				}
			}
			if ngramOrder < size-1 {
				ngramOrder++
			}
			probCounts[boOrder][index]++
			numWords++
		}
	}
	if err = sc.Err(); err != nil {
		return nil, nil, 0, 0, err
	}
	return probCounts, bowCounts, numOOV, numWords, nil
}
