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
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/czcorpus/ngramlm/vocab"
)

// LoadArpa reads a back-off model in the ARPA text format, resizing
// the model to the order found in the header. It returns probs[o]
// (o = 0..order) and bows[o] (o = 0..order-1), aligned with the
// sorted model. The `-99` placeholder line of <s> is not a
// distribution entry; it carries the back-off weight of the
// sentence-boundary unigram history.
func (m *Model) LoadArpa(sc LineScanner) (probs [][]float64, bows [][]float64, err error) {
	for sc.Scan() && sc.Text() != "\\data\\" {
	}
	ngramLengths := []int{1}
	for sc.Scan() {
		line := sc.Text()
		var o, n int
		if _, serr := fmt.Sscanf(line, "ngram %d=%d", &o, &n); serr != nil {
			break
		}
		if o != len(ngramLengths) {
			return nil, nil, fmt.Errorf("unexpected ngram order %d in ARPA header", o)
		}
		ngramLengths = append(ngramLengths, n)
	}
	order := len(ngramLengths) - 1
	if order < 1 {
		return nil, nil, fmt.Errorf("missing \\data\\ section")
	}
	m.vectors = m.vectors[:1]
	m.backoffs = make([][]Index, order+1)
	for o := 1; o <= order; o++ {
		m.vectors = append(m.vectors, NewVector())
	}

	probs = make([][]float64, order+1)
	bows = make([][]float64, order)
	probs[0] = []float64{0}
	bows[0] = []float64{0}

	for o := 1; o <= order; o++ {
		hasBow := o < order
		var line string
		for sc.Scan() {
			line = sc.Text()
			if strings.TrimSpace(line) != "" {
				break
			}
		}
		var so int
		if _, serr := fmt.Sscanf(line, "\\%d-grams:", &so); serr != nil || so != o {
			return nil, nil, fmt.Errorf("expected \\%d-grams: section, got %q", o, line)
		}
		for sc.Scan() {
			line = sc.Text()
			if line == "" {
				break
			}
			fields := strings.Fields(line)
			if len(fields) < o+1 {
				return nil, nil, fmt.Errorf("malformed ARPA entry %q", line)
			}
			logProb, perr := strconv.ParseFloat(fields[0], 64)
			if perr != nil {
				return nil, nil, fmt.Errorf("malformed ARPA probability in %q", line)
			}
			prob := math.Pow(10, logProb)
			index := Index(0)
			oov := false
			for i := 1; i <= o; i++ {
				id := m.vocab.Add(fields[i])
				if id == vocab.Invalid {
					oov = true
					break
				}
				index = m.vectors[i].Add(index, id)
			}
			if oov {
				log.Warn().Str("ngram", strings.Join(fields[1:o+1], " ")).
					Msg("skipping out-of-vocabulary ARPA entry")
				continue
			}
			bow := 1.0
			if len(fields) > o+1 {
				logBow, perr := strconv.ParseFloat(fields[o+1], 64)
				if perr != nil {
					return nil, nil, fmt.Errorf("malformed ARPA back-off weight in %q", line)
				}
				bow = math.Pow(10, logBow)
			}
			isBoundary := o == 1 && fields[1] == "<s>"
			if !isBoundary {
				probs[o] = growF64(probs[o], int(index)+1, 0)
				probs[o][index] = prob
			}
			if hasBow {
				bows[o] = growF64(bows[o], int(index)+1, 1)
				bows[o][index] = bow
			}
		}
	}
	for sc.Scan() && sc.Text() != "\\end\\" {
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}

	_, ngramMaps, err := m.SortModel()
	if err != nil {
		return nil, nil, err
	}
	for o := 1; o <= order; o++ {
		probs[o] = ApplySortF64(ngramMaps[o], probs[o], m.Sizes(o), 0)
		if o < order {
			bows[o] = ApplySortF64(ngramMaps[o], bows[o], m.Sizes(o), 1)
		}
	}
	return probs, bows, nil
}

func growF64(v []float64, n int, def float64) []float64 {
	for len(v) < n {
		v = append(v, def)
	}
	return v
}

func formatLogProb(p float64) string {
	if p <= 0 {
		return "-99"
	}
	return strconv.FormatFloat(math.Log10(p), 'f', 6, 64)
}

// SaveArpa writes the model in the ARPA text format. The boundary
// token appears as the usual `-99  <s>  bow` placeholder; the bow of
// the </s> unigram is emitted there, since the two share an id and a
// sentence-final token never acts as a history.
func (m *Model) SaveArpa(probs [][]float64, bows [][]float64, w io.Writer) error {
	order := m.Order()
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "\n\\data\\\n")
	fmt.Fprintf(bw, "ngram 1=%d\n", m.Sizes(1)+1)
	for o := 2; o <= order; o++ {
		fmt.Fprintf(bw, "ngram %d=%d\n", o, m.Sizes(o))
	}

	for o := 1; o <= order; o++ {
		fmt.Fprintf(bw, "\n\\%d-grams:\n", o)
		hasBow := o < order
		iStart := Index(0)
		if o == 1 {
			iStart = 1
			eos := Index(vocab.EndOfSentence)
			fmt.Fprintf(bw, "%s\t</s>\n", formatLogProb(probs[1][eos]))
			if hasBow {
				fmt.Fprintf(bw, "-99\t<s>\t%s\n", formatLogProb(bows[1][eos]))
			} else {
				fmt.Fprintf(bw, "-99\t<s>\n")
			}
		}
		for i := iStart; int(i) < m.Sizes(o); i++ {
			words := m.NgramWords(o, i)
			fmt.Fprintf(bw, "%s\t%s", formatLogProb(probs[o][i]), strings.Join(words, " "))
			if hasBow && bows[o][i] != 1 {
				fmt.Fprintf(bw, "\t%s", formatLogProb(bows[o][i]))
			}
			fmt.Fprintf(bw, "\n")
		}
	}

	fmt.Fprintf(bw, "\n\\end\\\n")
	return bw.Flush()
}
