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

package eval

import (
	"bufio"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/czcorpus/ngramlm/lattice"
	"github.com/czcorpus/ngramlm/lm"
	"github.com/czcorpus/ngramlm/mask"
	"github.com/czcorpus/ngramlm/optimize"
)

// worstMargin floors per-lattice margins so a single unreachable
// reference cannot dominate the objective.
const worstMargin = -100.0

// WEROptimizer evaluates and minimizes the word error rate (or
// maximizes the discriminative margin) of an LM over a set of
// recognition lattices. The mask is derived from the arcs'
// probability and back-off references; each objective call
// re-estimates the masked entries and re-scores the arcs.
type WEROptimizer struct {
	lm       lm.LM
	lattices []*lattice.Lattice
	msk      *mask.LMMask
	numCalls int
}

// NewWEROptimizer creates an optimizer over the given model.
func NewWEROptimizer(model lm.LM) *WEROptimizer {
	return &WEROptimizer{lm: model}
}

// Lattices exposes the loaded lattices (e.g. for saving rescored
// copies or transcripts).
func (w *WEROptimizer) Lattices() []*lattice.Lattice { return w.lattices }

// NumCalls returns the objective evaluations of the last Optimize.
func (w *WEROptimizer) NumCalls() int { return w.numCalls }

// LoadLattices reads all lattices from the stream and builds the
// expanded evaluation mask from their arc references.
func (w *WEROptimizer) LoadLattices(r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for {
		lat := lattice.New(w.lm)
		err := lat.Load(sc)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		w.lattices = append(w.lattices, lat)
	}
	seed := mask.New(w.lm.Order())
	for _, lat := range w.lattices {
		lat.SeedMask(seed)
	}
	w.msk = w.lm.GetMask(seed)
	log.Info().Int("numLattices", len(w.lattices)).Msg("lattices loaded")
	return nil
}

// ComputeWER estimates the model, re-scores all lattices and returns
// the total word error rate over all references.
func (w *WEROptimizer) ComputeWER(params []float64) float64 {
	if !w.lm.Estimate(params, w.msk) {
		return 1 // out of bounds: every word wrong
	}
	totErrors, totWords := 0, 0
	for _, lat := range w.lattices {
		lat.UpdateWeights()
		totErrors += lat.ComputeWER()
		totWords += lat.RefWords()
	}
	if totWords == 0 {
		return 0
	}
	return float64(totErrors) / float64(totWords)
}

// ComputeMargin estimates the model, re-scores all lattices and
// returns the summed margin of the reference paths.
func (w *WEROptimizer) ComputeMargin(params []float64) float64 {
	if !w.lm.Estimate(params, w.msk) {
		return worstMargin * float64(len(w.lattices))
	}
	totMargin := 0.0
	for _, lat := range w.lattices {
		lat.UpdateWeights()
		totMargin += lat.ComputeMargin(worstMargin)
	}
	return totMargin
}

// OptimizeWER minimizes the word error rate over params in place.
func (w *WEROptimizer) OptimizeWER(params []float64, method optimize.Method) (float64, error) {
	w.numCalls = 0
	f := func(x []float64) float64 {
		w.numCalls++
		return w.ComputeWER(x)
	}
	result, err := optimize.Minimize(f, params, method, nil, nil)
	if err != nil {
		return 0, err
	}
	log.Info().
		Int("funcEvals", w.numCalls).
		Float64("wer", result.F).
		Msg("WER optimization finished")
	return result.F, nil
}

// OptimizeMargin maximizes the summed margin over params in place
// and returns the achieved margin.
func (w *WEROptimizer) OptimizeMargin(params []float64, method optimize.Method) (float64, error) {
	w.numCalls = 0
	f := func(x []float64) float64 {
		w.numCalls++
		return -w.ComputeMargin(x)
	}
	result, err := optimize.Minimize(f, params, method, nil, nil)
	if err != nil {
		return 0, err
	}
	log.Info().
		Int("funcEvals", w.numCalls).
		Float64("margin", -result.F).
		Msg("margin optimization finished")
	return -result.F, nil
}
