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

import "math"

// Powell's direction-set method with Brent line minimization.

const (
	powellXTol = 1e-10
	powellFTol = 1e-12

	bracketGold   = 1.618034
	bracketGLimit = 100.0
	bracketTiny   = 1e-20

	brentItMax = 100
	brentCGold = 0.3819660
	brentZEps  = 1e-12
)

// MinimizePowell minimizes f over x in place. Each iteration line-
// minimizes along every direction of the set, then replaces the
// direction of largest decrease with the overall displacement when
// that is productive.
func MinimizePowell(f func([]float64) float64, x []float64) (Result, error) {
	n := len(x)
	maxIter := MaxIterations

	dirSet := make([][]float64, n)
	for i := range dirSet {
		dirSet[i] = make([]float64, n)
		dirSet[i][i] = 1
	}
	overallDir := make([]float64, n)
	xHyp := make([]float64, n)
	xStart := make([]float64, n)

	fx := f(x)
	numIter := 0
	for ; numIter < maxIter; numIter++ {
		argMaxDelta := 0
		maxDelta := 0.0
		fStart := fx
		copy(xStart, x)
		for i := 0; i < n; i++ {
			fPrev := fx
			fx = lineSearch(f, x, dirSet[i], powellXTol*100)
			if fPrev-fx > maxDelta {
				maxDelta = fPrev - fx
				argMaxDelta = i
			}
		}

		if 2*(fStart-fx) <= powellFTol*(math.Abs(fStart)+math.Abs(fx))+1e-25 {
			break
		}

		for i := 0; i < n; i++ {
			overallDir[i] = x[i] - xStart[i]
			xHyp[i] = x[i] + overallDir[i]
		}
		fHyp := f(xHyp)
		if fHyp < fStart {
			t1 := fStart - fx - maxDelta
			t2 := fStart - fHyp
			if 2*(fStart-2*fx+fHyp)*t1*t1-maxDelta*t2*t2 < 0 {
				fx = lineSearch(f, x, overallDir, powellXTol*100)
				copy(dirSet[argMaxDelta], dirSet[n-1])
				copy(dirSet[n-1], overallDir)
			}
		}
	}
	return Result{F: fx, NumIters: numIter}, nil
}

// lineSearch minimizes f along dir from x, updating x to the minimum.
func lineSearch(f func([]float64) float64, x, dir []float64, xTol float64) float64 {
	p := make([]float64, len(x))
	f1d := func(alpha float64) float64 {
		for i := range x {
			p[i] = x[i] + alpha*dir[i]
		}
		return f(p)
	}

	alphaA, alphaB, alphaC, _ := bracket(f1d, 0, 1)
	fMin, alphaMin := brent(f1d, alphaA, alphaB, alphaC, xTol)
	for i := range x {
		x[i] += alphaMin * dir[i]
	}
	return fMin
}

// bracket expands (a, b) until f(b) lies below both ends.
func bracket(f func(float64) float64, a, b float64) (float64, float64, float64, float64) {
	fa := f(a)
	fb := f(b)
	if fb > fa {
		a, b = b, a
		fa, fb = fb, fa
	}
	c := b + bracketGold*(b-a)
	fc := f(c)
	for fb > fc {
		r := (b - a) * (fb - fc)
		q := (b - c) * (fb - fa)
		denom := 2 * math.Copysign(math.Max(math.Abs(q-r), bracketTiny), q-r)
		u := b - ((b-c)*q-(b-a)*r)/denom
		uLim := b + bracketGLimit*(c-b)
		var fu float64
		switch {
		case (b-u)*(u-c) > 0:
			fu = f(u)
			if fu < fc {
				return b, u, c, fu
			} else if fu > fb {
				return a, b, u, fb
			}
			u = c + bracketGold*(c-b)
			fu = f(u)
		case (c-u)*(u-uLim) > 0:
			fu = f(u)
			if fu < fc {
				b, c, u = c, u, u+bracketGold*(u-c)
				fb, fc, fu = fc, fu, f(u)
			}
		case (u-uLim)*(uLim-c) >= 0:
			u = uLim
			fu = f(u)
		default:
			u = c + bracketGold*(c-b)
			fu = f(u)
		}
		a, b, c = b, c, u
		fa, fb, fc = fb, fc, fu
	}
	return a, b, c, fb
}

// brent performs Brent's parabolic-interpolation line minimization
// over the bracketed triple.
func brent(f func(float64) float64, ax, bx, cx, tol float64) (fMin, xMin float64) {
	a := math.Min(ax, cx)
	b := math.Max(ax, cx)
	x, w, v := bx, bx, bx
	fx := f(x)
	fw, fv := fx, fx
	d, e := 0.0, 0.0

	for iter := 0; iter < brentItMax; iter++ {
		xm := 0.5 * (a + b)
		tol1 := tol*math.Abs(x) + brentZEps
		tol2 := 2 * tol1
		if math.Abs(x-xm) <= tol2-0.5*(b-a) {
			return fx, x
		}
		useGolden := true
		if math.Abs(e) > tol1 {
			r := (x - w) * (fx - fv)
			q := (x - v) * (fx - fw)
			p := (x-v)*q - (x-w)*r
			q = 2 * (q - r)
			if q > 0 {
				p = -p
			}
			q = math.Abs(q)
			eTmp := e
			e = d
			if math.Abs(p) < math.Abs(0.5*q*eTmp) && p > q*(a-x) && p < q*(b-x) {
				d = p / q
				u := x + d
				if u-a < tol2 || b-u < tol2 {
					d = math.Copysign(tol1, xm-x)
				}
				useGolden = false
			}
		}
		if useGolden {
			if x >= xm {
				e = a - x
			} else {
				e = b - x
			}
			d = brentCGold * e
		}
		var u float64
		if math.Abs(d) >= tol1 {
			u = x + d
		} else {
			u = x + math.Copysign(tol1, d)
		}
		fu := f(u)
		if fu <= fx {
			if u >= x {
				a = x
			} else {
				b = x
			}
			v, w, x = w, x, u
			fv, fw, fx = fw, fx, fu
		} else {
			if u < x {
				a = u
			} else {
				b = u
			}
			if fu <= fw || w == x {
				v, w = w, u
				fv, fw = fw, fu
			} else if fu <= fv || v == x || v == w {
				v = u
				fv = fu
			}
		}
	}
	return fx, x
}
