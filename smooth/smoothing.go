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

// Package smooth implements the per-order probability estimators:
// maximum likelihood and the interpolated Kneser-Ney family with
// tunable discounts and optional log-linear n-gram weighting.
package smooth

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/czcorpus/ngramlm/mask"
	"github.com/czcorpus/ngramlm/ngram"
)

// LMView is the read-only projection of an n-gram LM that estimators
// operate on. Estimators never hold the LM itself; order o reads the
// already estimated probabilities of order o-1 through this view.
type LMView interface {
	Order() int
	Model() *ngram.Model
	Counts(o int) []int
	Features(o int) [][]float64
	Probs(o int) []float64
}

// Smoothing estimates conditional probabilities and back-off weights
// for one n-gram order.
type Smoothing interface {
	// Initialize precomputes order-local quantities (adjusted counts,
	// history sums, default discounts).
	Initialize(lm LMView, order int) error

	// DefaultParams returns initial values of the tunable parameters.
	DefaultParams() []float64

	// UpdateMask expands an evaluation mask with this order's
	// transitive requirements.
	UpdateMask(m *mask.LMMask)

	// Estimate fills probs (this order) and bows (the history order
	// below). It returns false when params fall outside the
	// admissible region, which the optimizer treats as +Inf.
	Estimate(params []float64, msk *mask.LMMask, probs, bows []float64) bool

	// EffCounts exposes the adjusted counts driving the estimate
	// (raw counts for estimators without count adjustment).
	EffCounts() []float64
}

// New creates a smoothing estimator from its name: ML, KN, KN<d>,
// ModKN, FixKN, FixKN<d> or FixModKN.
func New(name string) (Smoothing, error) {
	switch {
	case name == "ML":
		return &MaxLikelihood{}, nil
	case name == "KN":
		return NewKneserNey(1, true), nil
	case name == "ModKN":
		return NewKneserNey(3, true), nil
	case name == "FixKN":
		return NewKneserNey(1, false), nil
	case name == "FixModKN":
		return NewKneserNey(3, false), nil
	case strings.HasPrefix(name, "FixKN"):
		d, err := strconv.Atoi(name[len("FixKN"):])
		if err != nil || d < 1 {
			return nil, fmt.Errorf("invalid smoothing %q", name)
		}
		return NewKneserNey(d, false), nil
	case strings.HasPrefix(name, "KN"):
		d, err := strconv.Atoi(name[len("KN"):])
		if err != nil || d < 1 {
			return nil, fmt.Errorf("invalid smoothing %q", name)
		}
		return NewKneserNey(d, true), nil
	}
	return nil, fmt.Errorf("unknown smoothing %q", name)
}
