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

package feature

import (
	"bufio"
	"io"
	"math"
	"strings"

	"github.com/czcorpus/ngramlm/ngram"
	"github.com/czcorpus/ngramlm/vocab"
)

// docCounter walks a document-structured corpus (documents delimited
// by <DOC ...> / </DOC>) and hands per-document n-gram counts to a
// flush callback. N-grams absent from the model are ignored.
type docCounter struct {
	m        *ngram.Model
	maxOrder int
	counts   [][]int
	hists    []ngram.Index
	numDocs  int
}

func newDocCounter(m *ngram.Model, maxOrder int) *docCounter {
	dc := &docCounter{
		m:        m,
		maxOrder: maxOrder,
		counts:   make([][]int, maxOrder+1),
		hists:    make([]ngram.Index, maxOrder+1),
	}
	for o := 0; o <= maxOrder; o++ {
		dc.counts[o] = make([]int, m.Sizes(o))
	}
	return dc
}

func (dc *docCounter) addLine(line string) {
	words := []vocab.ID{vocab.EndOfSentence}
	for _, tok := range strings.Fields(line) {
		words = append(words, dc.m.Vocab().Find(tok))
	}
	words = append(words, vocab.EndOfSentence)

	dc.hists[1] = dc.m.Vector(1).Find(0, vocab.EndOfSentence)
	for o := 2; o <= dc.maxOrder; o++ {
		dc.hists[o] = ngram.InvalidIndex
	}
	for i := 1; i < len(words); i++ {
		word := words[i]
		hist := ngram.Index(0)
		maxOrder := i + 2
		if maxOrder > dc.maxOrder+1 {
			maxOrder = dc.maxOrder + 1
		}
		for j := 1; j < maxOrder; j++ {
			if word != vocab.Invalid && hist != ngram.InvalidIndex {
				index := dc.m.Vector(j).Find(hist, word)
				if index != ngram.InvalidIndex {
					dc.counts[j][index]++
				}
				hist = dc.hists[j]
				dc.hists[j] = index
			} else {
				hist = dc.hists[j]
				dc.hists[j] = ngram.InvalidIndex
			}
		}
	}
}

func (dc *docCounter) run(r io.Reader, flush func(counts [][]int)) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if line == "</DOC>" {
			dc.numDocs++
			flush(dc.counts)
			for o := 1; o <= dc.maxOrder; o++ {
				for i := range dc.counts[o] {
					dc.counts[o][i] = 0
				}
			}
			continue
		}
		if strings.HasPrefix(line, "<DOC ") {
			continue
		}
		dc.addLine(line)
	}
	return sc.Err()
}

// DocFrequency computes, per n-gram, the fraction of documents
// containing it.
func DocFrequency(m *ngram.Model, r io.Reader, maxOrder int) (*Bundle, error) {
	b := newBundle(m, maxOrder)
	dc := newDocCounter(m, maxOrder)
	err := dc.run(r, func(counts [][]int) {
		for o := 1; o <= maxOrder; o++ {
			for i, c := range counts[o] {
				if c > 0 {
					b.Orders[o][i]++
				}
			}
		}
	})
	if err != nil {
		return nil, err
	}
	if dc.numDocs > 0 {
		for o := 1; o <= maxOrder; o++ {
			for i := range b.Orders[o] {
				b.Orders[o][i] /= float64(dc.numDocs)
			}
		}
	}
	return b, nil
}

// DocEntropy computes the normalized entropy of each n-gram's
// per-document count distribution.
func DocEntropy(m *ngram.Model, r io.Reader, maxOrder int) (*Bundle, error) {
	b := newBundle(m, maxOrder)
	totCounts := make([][]int, maxOrder+1)
	for o := 0; o <= maxOrder; o++ {
		totCounts[o] = make([]int, m.Sizes(o))
	}
	dc := newDocCounter(m, maxOrder)
	err := dc.run(r, func(counts [][]int) {
		for o := 1; o <= maxOrder; o++ {
			for i, c := range counts[o] {
				if c > 0 {
					totCounts[o][i] += c
					b.Orders[o][i] += float64(c) * math.Log(float64(c))
				}
			}
		}
	})
	if err != nil {
		return nil, err
	}
	if dc.numDocs > 1 {
		invLogNumDocs := 1.0 / math.Log(float64(dc.numDocs))
		for o := 1; o <= maxOrder; o++ {
			for i := range b.Orders[o] {
				tot := totCounts[o][i]
				if tot == 0 {
					b.Orders[o][i] = 0
					continue
				}
				b.Orders[o][i] = (b.Orders[o][i]/float64(-tot) +
					math.Log(float64(tot))) * invLogNumDocs
			}
		}
	}
	return b, nil
}
