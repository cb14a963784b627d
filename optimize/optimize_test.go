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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rosenbrock is the classic banana-valley surrogate with minimum at
// the all-ones vector.
func rosenbrock(numCalls *int) func([]float64) float64 {
	return func(x []float64) float64 {
		*numCalls++
		sum := 0.0
		for i := 0; i+1 < len(x); i++ {
			a := x[i+1] - x[i]*x[i]
			b := 1 - x[i]
			sum += 100*a*a + b*b
		}
		return sum
	}
}

func maxDistFromOne(x []float64) float64 {
	maxDist := 0.0
	for _, v := range x {
		if d := math.Abs(v - 1); d > maxDist {
			maxDist = d
		}
	}
	return maxDist
}

func TestPowellRosenbrock(t *testing.T) {
	numCalls := 0
	x := []float64{-1.2, 1, 0.5}
	result, err := MinimizePowell(rosenbrock(&numCalls), x)
	require.NoError(t, err)
	assert.Less(t, result.F, 1e-12)
	assert.Less(t, maxDistFromOne(x), 1e-6)
	assert.Less(t, numCalls, 5000)
}

func TestLBFGSRosenbrock(t *testing.T) {
	numCalls := 0
	x := []float64{-1.2, 1, 0.5}
	result, err := MinimizeLBFGS(rosenbrock(&numCalls), x)
	require.NoError(t, err)
	assert.Less(t, result.F, 1e-8)
	assert.Less(t, maxDistFromOne(x), 1e-3)
}

func TestLBFGSBRosenbrockInteriorMinimum(t *testing.T) {
	numCalls := 0
	x := []float64{-1.2, 1, 0.5}
	lower := []float64{-5, -5, -5}
	upper := []float64{5, 5, 5}
	result, err := MinimizeLBFGSB(rosenbrock(&numCalls), x, lower, upper)
	require.NoError(t, err)
	assert.Less(t, result.F, 1e-8)
	assert.Less(t, maxDistFromOne(x), 1e-3)
}

func TestLBFGSBRespectsBounds(t *testing.T) {
	numCalls := 0
	// quadratic with unconstrained minimum at 3, box capped at 2
	f := func(x []float64) float64 {
		numCalls++
		return (x[0] - 3) * (x[0] - 3)
	}
	x := []float64{0}
	_, err := MinimizeLBFGSB(f, x, []float64{0}, []float64{2})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, x[0], 1e-2)
}

func TestParseMethod(t *testing.T) {
	for name, expected := range map[string]Method{
		"powell": Powell, "lbfgs": LBFGS, "lbfgsb": LBFGSB,
	} {
		m, err := ParseMethod(name)
		assert.NoError(t, err)
		assert.Equal(t, expected, m)
	}
	_, err := ParseMethod("annealing")
	assert.Error(t, err)
}
