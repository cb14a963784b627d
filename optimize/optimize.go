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

// Package optimize provides the black-box scalar minimizers driving
// parameter tuning: Powell's method and (bound-constrained) L-BFGS
// with finite-difference gradients.
package optimize

import (
	"fmt"
)

// Method selects the minimization technique.
type Method int

const (
	// Powell is a derivative-free direction-set method.
	Powell Method = iota
	// LBFGS is limited-memory BFGS with finite-difference gradients.
	LBFGS
	// LBFGSB is LBFGS constrained to the box given by lower and upper bounds.
	LBFGSB
)

// ParseMethod maps the CLI names powell, lbfgs, lbfgsb.
func ParseMethod(name string) (Method, error) {
	switch name {
	case "powell":
		return Powell, nil
	case "lbfgs":
		return LBFGS, nil
	case "lbfgsb":
		return LBFGSB, nil
	}
	return 0, fmt.Errorf("unknown optimization technique %q", name)
}

// MaxIterations is the hard iteration budget of all drivers.
const MaxIterations = 15000

// Result reports the minimization outcome.
type Result struct {
	F        float64
	NumIters int
}

// Minimize minimizes f over x in place using the selected method.
// Bounds apply only to LBFGSB; nil bounds constrain each parameter
// to [-1e20, 1e20].
func Minimize(f func([]float64) float64, x []float64, method Method, lower, upper []float64) (Result, error) {
	switch method {
	case Powell:
		return MinimizePowell(f, x)
	case LBFGS:
		return MinimizeLBFGS(f, x)
	case LBFGSB:
		return MinimizeLBFGSB(f, x, lower, upper)
	}
	return Result{}, fmt.Errorf("unsupported optimization method")
}
