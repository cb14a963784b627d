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

package optimize

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	gopt "gonum.org/v1/gonum/optimize"
)

// gradStep is the forward-difference step of the approximate
// gradients handed to L-BFGS.
const gradStep = 1e-8

func lbfgsProblem(f func([]float64) float64) gopt.Problem {
	return gopt.Problem{
		Func: f,
		Grad: func(grad, x []float64) {
			fd.Gradient(grad, f, x, &fd.Settings{
				Formula: fd.Forward,
				Step:    gradStep,
			})
		},
	}
}

func runLBFGS(f func([]float64) float64, x []float64) (Result, error) {
	settings := &gopt.Settings{
		Converger: &gopt.FunctionConverge{
			Relative:   1e-14,
			Absolute:   1e-14,
			Iterations: 20,
		},
		MajorIterations: MaxIterations,
	}
	result, err := gopt.Minimize(lbfgsProblem(f), x, settings, &gopt.LBFGS{})
	if result == nil {
		return Result{}, err
	}
	// linesearch failures near the optimum still carry the best
	// point found; only a missing result is fatal
	copy(x, result.X)
	return Result{F: result.F, NumIters: result.MajorIterations}, nil
}

// MinimizeLBFGS minimizes f over x in place with limited-memory BFGS
// using finite-difference gradients.
func MinimizeLBFGS(f func([]float64) float64, x []float64) (Result, error) {
	return runLBFGS(f, x)
}

// MinimizeLBFGSB minimizes f within the box [lower, upper]. The box
// is enforced by evaluating at the projection of the iterate and
// penalizing the violation, so interior minima coincide with the
// unconstrained solution.
func MinimizeLBFGSB(f func([]float64) float64, x []float64, lower, upper []float64) (Result, error) {
	if lower != nil && len(lower) != len(x) || upper != nil && len(upper) != len(x) {
		return Result{}, errors.New("bound vectors must match the parameter vector")
	}
	boundAt := func(bounds []float64, i int, def float64) float64 {
		if bounds == nil {
			return def
		}
		return bounds[i]
	}
	project := func(x []float64) ([]float64, float64) {
		proj := make([]float64, len(x))
		violation := 0.0
		for i, v := range x {
			lo := boundAt(lower, i, -1e20)
			hi := boundAt(upper, i, 1e20)
			proj[i] = math.Min(math.Max(v, lo), hi)
			d := v - proj[i]
			violation += d * d
		}
		return proj, violation
	}
	wrapped := func(x []float64) float64 {
		proj, violation := project(x)
		return f(proj) + violation
	}
	result, err := runLBFGS(wrapped, x)
	if err != nil {
		return result, err
	}
	proj, _ := project(x)
	copy(x, proj)
	result.F = f(x)
	return result, nil
}
