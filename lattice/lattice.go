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

// Package lattice implements the recognition-lattice collaborator of
// the WER and margin objectives: loading word lattices, mapping every
// arc onto the LM n-gram (and back-off weights) that scores it,
// re-scoring arcs after each estimate, and best-path / word-error
// computations.
package lattice

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/czcorpus/ngramlm/lm"
	"github.com/czcorpus/ngramlm/mask"
	"github.com/czcorpus/ngramlm/ngram"
	"github.com/czcorpus/ngramlm/vocab"
)

// ngramRef points an arc at a probability or back-off entry of the LM.
type ngramRef struct {
	arc   int
	order int
	index ngram.Index
}

// Lattice is a directed acyclic word graph. Node ids must be
// topologically ordered (every arc goes from a lower to a higher id);
// node 0 is initial and the largest id is final.
type Lattice struct {
	lm             lm.LM
	tag            string
	arcStarts      []int
	arcEnds        []int
	arcWords       []vocab.ID
	arcBaseWeights []float64
	arcWeights     []float64
	ref            []vocab.ID
	finalNode      int
	arcProbs       []ngramRef
	arcBows        []ngramRef
}

// New creates an empty lattice scored by the given LM.
func New(model lm.LM) *Lattice {
	return &Lattice{lm: model}
}

// Tag returns the lattice identifier.
func (l *Lattice) Tag() string { return l.tag }

// ArcWeights returns the current (rescored) arc weights.
func (l *Lattice) ArcWeights() []float64 { return l.arcWeights }

// Load reads the text form: a tag line, an optional `ref` line with
// the reference transcript, then one `start end word weight` arc per
// line. A blank line or EOF terminates the lattice.
func (l *Lattice) Load(sc *bufio.Scanner) error {
	l.tag = ""
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		l.tag = line
		break
	}
	if l.tag == "" {
		return io.EOF
	}
	voc := l.lm.Model().Vocab()
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			break
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if fields[0] == "ref" {
			l.ref = l.ref[:0]
			for _, w := range fields[1:] {
				id := voc.Find(w)
				if id == vocab.Invalid {
					return fmt.Errorf("lattice %s: reference word %q not in vocabulary", l.tag, w)
				}
				l.ref = append(l.ref, id)
			}
			continue
		}
		if len(fields) != 4 {
			return fmt.Errorf("lattice %s: malformed arc line %q", l.tag, line)
		}
		start, err1 := strconv.Atoi(fields[0])
		end, err2 := strconv.Atoi(fields[1])
		weight, err3 := strconv.ParseFloat(fields[3], 64)
		if err1 != nil || err2 != nil || err3 != nil {
			return fmt.Errorf("lattice %s: malformed arc line %q", l.tag, line)
		}
		if start >= end {
			return fmt.Errorf("lattice %s: nodes are not topologically sorted in %q", l.tag, line)
		}
		if len(l.arcStarts) > 0 && start < l.arcStarts[len(l.arcStarts)-1] {
			return fmt.Errorf("lattice %s: arcs are not sorted by start node", l.tag)
		}
		word := voc.Find(fields[2])
		if word == vocab.Invalid {
			return fmt.Errorf("lattice %s: word %q not in vocabulary", l.tag, fields[2])
		}
		l.arcStarts = append(l.arcStarts, start)
		l.arcEnds = append(l.arcEnds, end)
		l.arcWords = append(l.arcWords, word)
		l.arcBaseWeights = append(l.arcBaseWeights, weight)
		if end > l.finalNode {
			l.finalNode = end
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if len(l.arcStarts) == 0 {
		return fmt.Errorf("lattice %s: no arcs", l.tag)
	}
	l.arcWeights = make([]float64, len(l.arcStarts))
	return l.computeArcNgramMapping()
}

// Save writes the lattice with its current weights.
func (l *Lattice) Save(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s\n", l.tag)
	if len(l.ref) > 0 {
		words := make([]string, len(l.ref))
		voc := l.lm.Model().Vocab()
		for i, id := range l.ref {
			words[i] = voc.Word(id)
		}
		fmt.Fprintf(bw, "ref %s\n", strings.Join(words, " "))
	}
	voc := l.lm.Model().Vocab()
	for i := range l.arcStarts {
		fmt.Fprintf(bw, "%d %d %s %s\n",
			l.arcStarts[i], l.arcEnds[i], voc.Word(l.arcWords[i]),
			strconv.FormatFloat(l.arcWeights[i], 'g', -1, 64))
	}
	fmt.Fprintf(bw, "\n")
	return bw.Flush()
}

// computeArcNgramMapping assigns every arc the LM probability entry
// scoring it plus the back-off entries traversed to reach it. Each
// node carries the LM history state established by its first
// incoming arc.
func (l *Lattice) computeArcNgramMapping() error {
	model := l.lm.Model()
	order := l.lm.Order()
	l.arcProbs = l.arcProbs[:0]
	l.arcBows = l.arcBows[:0]

	states := make([]ctxState, l.finalNode+1)
	known := make([]bool, l.finalNode+1)
	// initial node: sentence-boundary history
	bos := model.Vector(1).Find(0, vocab.EndOfSentence)
	if bos == ngram.InvalidIndex {
		return fmt.Errorf("model has no sentence-boundary unigram")
	}
	states[0] = ctxState{1, bos}
	if order == 1 {
		states[0] = ctxState{0, 0}
	}
	known[0] = true

	for a := range l.arcStarts {
		s := l.arcStarts[a]
		if !known[s] {
			return fmt.Errorf("lattice %s: node %d has no incoming arc", l.tag, s)
		}
		ctx := states[s]
		word := l.arcWords[a]
		var probIndex ngram.Index
		for {
			probIndex = model.Vector(ctx.order + 1).Find(ctx.index, word)
			if probIndex != ngram.InvalidIndex {
				break
			}
			if ctx.order == 0 {
				return fmt.Errorf("lattice %s: word id %d has no unigram", l.tag, word)
			}
			// back off: charge the history's bow and shorten it
			l.arcBows = append(l.arcBows, ngramRef{a, ctx.order, ctx.index})
			ctx = ctxState{ctx.order - 1, model.Backoffs(ctx.order)[ctx.index]}
		}
		probOrder := ctx.order + 1
		l.arcProbs = append(l.arcProbs, ngramRef{a, probOrder, probIndex})

		next := ctxState{probOrder, probIndex}
		if probOrder == order {
			next = ctxState{probOrder - 1, model.Backoffs(probOrder)[probIndex]}
		}
		e := l.arcEnds[a]
		if !known[e] {
			states[e] = next
			known[e] = true
		}
	}
	return nil
}

// ctxState is an LM history: an n-gram index at a given order.
type ctxState struct {
	order int
	index ngram.Index
}

// SeedMask adds the arcs' probability and back-off references to an
// evaluation mask seed.
func (l *Lattice) SeedMask(seed *mask.LMMask) {
	for _, r := range l.arcProbs {
		seed.Probs[r.order].Add(uint32(r.index))
	}
	for _, r := range l.arcBows {
		seed.Bows[r.order].Add(uint32(r.index))
	}
}

// UpdateWeights re-scores every arc after an estimate: the base
// weight plus the negated log probability of the arc's n-gram,
// including the back-off weights traversed.
func (l *Lattice) UpdateWeights() {
	copy(l.arcWeights, l.arcBaseWeights)
	for _, r := range l.arcProbs {
		p := l.lm.Probs(r.order)[r.index]
		if p <= 0 {
			l.arcWeights[r.arc] = math.Inf(1)
			continue
		}
		l.arcWeights[r.arc] -= math.Log(p)
	}
	for _, r := range l.arcBows {
		b := l.lm.Bows(r.order)[r.index]
		if b > 0 {
			l.arcWeights[r.arc] -= math.Log(b)
		}
	}
}

// BestPath returns the minimum-weight path as word ids with its
// total weight.
func (l *Lattice) BestPath() ([]vocab.ID, float64) {
	numNodes := l.finalNode + 1
	dist := make([]float64, numNodes)
	back := make([]int, numNodes)
	for i := 1; i < numNodes; i++ {
		dist[i] = math.Inf(1)
		back[i] = -1
	}
	for a := range l.arcStarts {
		s, e := l.arcStarts[a], l.arcEnds[a]
		if d := dist[s] + l.arcWeights[a]; d < dist[e] {
			dist[e] = d
			back[e] = a
		}
	}
	var path []vocab.ID
	for node := l.finalNode; node != 0; {
		a := back[node]
		if a < 0 {
			return nil, math.Inf(1)
		}
		path = append(path, l.arcWords[a])
		node = l.arcStarts[a]
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, dist[l.finalNode]
}

// ComputeWER returns the edit distance between the best path and the
// reference transcript.
func (l *Lattice) ComputeWER() int {
	best, _ := l.BestPath()
	return editDistance(best, l.ref)
}

// RefWords returns the reference transcript length.
func (l *Lattice) RefWords() int { return len(l.ref) }

// ComputeMargin returns the weight advantage of the reference path
// over the best path: positive when the reference wins. Lattices
// without an exact reference path yield the worst margin.
func (l *Lattice) ComputeMargin(worstMargin float64) float64 {
	refWeight, ok := l.pathWeight(l.ref)
	if !ok {
		return worstMargin
	}
	_, bestWeight := l.BestPath()
	margin := bestWeight - refWeight
	if margin < worstMargin {
		return worstMargin
	}
	return margin
}

// pathWeight resolves the total weight of the path spelling the
// given word sequence, if one exists.
func (l *Lattice) pathWeight(words []vocab.ID) (float64, bool) {
	type cand struct {
		node   int
		weight float64
	}
	frontier := []cand{{0, 0}}
	for _, w := range words {
		var next []cand
		for _, c := range frontier {
			for a := range l.arcStarts {
				if l.arcStarts[a] == c.node && l.arcWords[a] == w {
					next = append(next, cand{l.arcEnds[a], c.weight + l.arcWeights[a]})
				}
			}
		}
		if len(next) == 0 {
			return 0, false
		}
		frontier = next
	}
	best := math.Inf(1)
	found := false
	for _, c := range frontier {
		if c.node == l.finalNode && c.weight < best {
			best = c.weight
			found = true
		}
	}
	return best, found
}

func editDistance(a, b []vocab.ID) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func minInt(values ...int) int {
	ans := values[0]
	for _, v := range values[1:] {
		if v < ans {
			ans = v
		}
	}
	return ans
}
