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

// Package feature implements per-order n-gram feature bundles aligned
// with a model's index space: loading raw values from files, deriving
// document frequency / entropy statistics from corpora, and composable
// pointwise transforms selected through a `func1:func2:path` spec
// (the rightmost function is applied first).
package feature

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/czcorpus/ngramlm/ngram"
	"github.com/czcorpus/ngramlm/vocab"
)

// MaxFeatureValue is the largest magnitude a feature is expected to
// reach after transforms; larger values trigger a warning since they
// destabilize the log-linear weighting.
const MaxFeatureValue = 20.0

// Bundle holds one dense feature vector per order, index-aligned
// with the model.
type Bundle struct {
	Orders [][]float64
}

func newBundle(m *ngram.Model, maxOrder int) *Bundle {
	b := &Bundle{Orders: make([][]float64, maxOrder+1)}
	for o := 0; o <= maxOrder; o++ {
		b.Orders[o] = make([]float64, m.Sizes(o))
	}
	return b
}

// At returns the per-order vector, or nil past the bundle's top order.
func (b *Bundle) At(o int) []float64 {
	if o >= len(b.Orders) {
		return nil
	}
	return b.Orders[o]
}

// Remap permutes all per-order vectors into a new index space.
func (b *Bundle) Remap(m *ngram.Model, ngramMaps [][]ngram.Index) {
	for o := 1; o < len(b.Orders); o++ {
		b.Orders[o] = ngram.ApplySortF64(ngramMaps[o], b.Orders[o], m.Sizes(o), 0)
	}
}

// Load resolves a feature spec `[func[:func...]:]path` against the
// model. The functions freq and entropy read the path as a document-
// structured corpus; any other tail loads the per-n-gram value file.
// Remaining functions are pointwise transforms applied right to left.
func Load(m *ngram.Model, spec string, maxOrder int, open func(string) (io.ReadCloser, error)) (*Bundle, error) {
	if maxOrder <= 0 || maxOrder > m.Order() {
		maxOrder = m.Order()
	}
	parts := strings.Split(spec, ":")
	path := parts[len(parts)-1]
	funcs := parts[:len(parts)-1]

	src, err := open(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	var b *Bundle
	if len(funcs) > 0 {
		switch funcs[len(funcs)-1] {
		case "freq":
			b, err = DocFrequency(m, src, maxOrder)
			funcs = funcs[:len(funcs)-1]
		case "entropy":
			b, err = DocEntropy(m, src, maxOrder)
			funcs = funcs[:len(funcs)-1]
		default:
			b, err = LoadFile(m, src, maxOrder)
		}
	} else {
		b, err = LoadFile(m, src, maxOrder)
	}
	if err != nil {
		return nil, err
	}

	for i := len(funcs) - 1; i >= 0; i-- {
		if err := b.apply(m, funcs[i], maxOrder); err != nil {
			return nil, err
		}
	}

	for o := range b.Orders {
		for _, v := range b.Orders[o] {
			if math.Abs(v) > MaxFeatureValue {
				log.Warn().Str("feature", spec).
					Msg("feature values exceed 20, weighting may be unstable")
				return b, nil
			}
		}
	}
	return b, nil
}

func (b *Bundle) apply(m *ngram.Model, fn string, maxOrder int) error {
	switch fn {
	case "log":
		for o := range b.Orders {
			for i := range b.Orders[o] {
				b.Orders[o][i] = math.Log(b.Orders[o][i] + 1e-99)
			}
		}
	case "log1p":
		for o := range b.Orders {
			for i := range b.Orders[o] {
				b.Orders[o][i] = math.Log1p(b.Orders[o][i])
			}
		}
	case "pow2":
		for o := range b.Orders {
			for i := range b.Orders[o] {
				b.Orders[o][i] *= b.Orders[o][i]
			}
		}
	case "pow3":
		for o := range b.Orders {
			for i := range b.Orders[o] {
				b.Orders[o][i] = b.Orders[o][i] * b.Orders[o][i] * b.Orders[o][i]
			}
		}
	case "norm":
		for o := range b.Orders {
			maxVal := 0.0
			for _, v := range b.Orders[o] {
				if v > maxVal {
					maxVal = v
				}
			}
			if maxVal > 0 {
				for i := range b.Orders[o] {
					b.Orders[o][i] /= maxVal
				}
			}
		}
	case "sumhist":
		// lift order-o values onto order o-1 by summing over all
		// completions of each history; the top order is consumed
		for o := 0; o < len(b.Orders)-1; o++ {
			hists := m.Hists(o + 1)
			sums := make([]float64, m.Sizes(o))
			for i, v := range b.Orders[o+1] {
				sums[hists[i]] += v
			}
			b.Orders[o] = sums
		}
		if len(b.Orders) > maxOrder {
			b.Orders = b.Orders[:maxOrder]
		}
	default:
		return fmt.Errorf("unknown feature function: %s", fn)
	}
	return nil
}

// LoadFile reads one `word_1 ... word_k<TAB>value` entry per line.
// Entries whose n-gram is not present in the model are skipped with
// a warning.
func LoadFile(m *ngram.Model, r io.Reader, maxOrder int) (*Bundle, error) {
	b := newBundle(m, maxOrder)
	sc := bufio.NewScanner(r)
	numSkipped := 0
	for sc.Scan() {
		line := sc.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		value, err := strconv.ParseFloat(fields[len(fields)-1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid feature value in line %q", line)
		}
		tokens := fields[:len(fields)-1]
		if len(tokens) > maxOrder {
			continue
		}
		ids := make([]vocab.ID, len(tokens))
		for i, tok := range tokens {
			ids[i] = m.Vocab().Find(tok)
		}
		index := m.FindNgram(ids)
		if index == ngram.InvalidIndex {
			numSkipped++
			continue
		}
		b.Orders[len(tokens)][index] = value
	}
	if numSkipped > 0 {
		log.Warn().Int("numSkipped", numSkipped).Msg("feature entries not found in model")
	}
	return b, sc.Err()
}
