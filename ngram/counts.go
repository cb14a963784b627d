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
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/czcorpus/ngramlm/vocab"
)

// LoadCounts accumulates n-gram counts from the text counts format:
// one `word_1 ... word_k<TAB>count` entry per line, '#' comments and
// blank lines ignored, an optional leading `<TAB>total` line recording
// the 0th order. The model is sorted afterwards and the returned
// count vectors are aligned with the final index space.
func (m *Model) LoadCounts(counts [][]int, sc LineScanner) ([][]int, error) {
	acc := newAccumulator(m, counts)
	size := len(m.vectors)
	for sc.Scan() {
		line := sc.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		count, err := strconv.Atoi(fields[len(fields)-1])
		if err != nil {
			return nil, fmt.Errorf("invalid count in line %q", line)
		}
		tokens := fields[:len(fields)-1]
		if len(tokens) == 0 {
			// order-0 total
			acc.counts[0][0] += count
			continue
		}
		if len(tokens) >= size {
			return nil, fmt.Errorf("n-gram order %d exceeds model order %d",
				len(tokens), size-1)
		}
		index := Index(0)
		oov := false
		for i, tok := range tokens {
			id := m.vocab.Add(tok)
			if id == vocab.Invalid {
				oov = true
				break
			}
			index = m.vectors[i+1].Add(index, id)
		}
		if oov {
			continue
		}
		order := len(tokens)
		acc.bump(order, index)
		acc.counts[order][index] += count - 1
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return acc.finish()
}

// SaveCounts writes the text counts format. The 0th-order total is
// included only when includeZeroOrder is set.
func (m *Model) SaveCounts(counts [][]int, w io.Writer, includeZeroOrder bool) error {
	bw := bufio.NewWriter(w)
	if includeZeroOrder && len(counts[0]) == 1 {
		fmt.Fprintf(bw, "\t%d\n", counts[0][0])
	}
	for o := 1; o < len(counts); o++ {
		for i := range counts[o] {
			words := m.NgramWords(o, Index(i))
			fmt.Fprintf(bw, "%s\t%d\n", strings.Join(words, " "), counts[o][i])
		}
	}
	return bw.Flush()
}

// SaveFloatCounts writes effective (adjusted) counts, which are
// fractional once n-gram weighting is involved.
func (m *Model) SaveFloatCounts(counts [][]float64, w io.Writer) error {
	bw := bufio.NewWriter(w)
	for o := 1; o < len(counts); o++ {
		for i := range counts[o] {
			words := m.NgramWords(o, Index(i))
			fmt.Fprintf(bw, "%s\t%s\n", strings.Join(words, " "),
				strconv.FormatFloat(counts[o][i], 'g', -1, 64))
		}
	}
	return bw.Flush()
}
