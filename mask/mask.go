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

// Package mask implements the evaluation masks restricting partial
// re-estimation: per-order bitsets over n-gram indices marking which
// probabilities, back-off weights and interpolation weights an
// objective actually reads. Estimators only guarantee correct values
// at set bits (plus the transitive closure added by UpdateMask
// implementations).
package mask

import "github.com/RoaringBitmap/roaring"

// LMMask carries the per-order bitsets. Probs has order+1 entries
// (0th order included), Bows and Weights have order entries. Disc
// holds the per-order discount masks added by Kneser-Ney smoothing.
type LMMask struct {
	Probs   []*roaring.Bitmap
	Bows    []*roaring.Bitmap
	Weights []*roaring.Bitmap
	Disc    []*roaring.Bitmap

	// Components carries the expanded masks of component LMs when
	// the mask belongs to an interpolated model.
	Components []*LMMask
}

// New creates an all-empty mask for a model of the given order.
func New(order int) *LMMask {
	m := &LMMask{
		Probs:   make([]*roaring.Bitmap, order+1),
		Bows:    make([]*roaring.Bitmap, order),
		Weights: make([]*roaring.Bitmap, order),
		Disc:    make([]*roaring.Bitmap, order+1),
	}
	for i := range m.Probs {
		m.Probs[i] = roaring.New()
	}
	for i := range m.Bows {
		m.Bows[i] = roaring.New()
	}
	for i := range m.Weights {
		m.Weights[i] = roaring.New()
	}
	for i := range m.Disc {
		m.Disc[i] = roaring.New()
	}
	return m
}

// Seed fills the prob and bow bitsets from per-order usage counts,
// as collected by LoadEvalCorpus.
func Seed(order int, probCounts, bowCounts [][]int) *LMMask {
	m := New(order)
	for o := 0; o <= order && o < len(probCounts); o++ {
		for i, c := range probCounts[o] {
			if c > 0 {
				m.Probs[o].Add(uint32(i))
			}
		}
	}
	for o := 0; o < order && o < len(bowCounts); o++ {
		for i, c := range bowCounts[o] {
			if c > 0 {
				m.Bows[o].Add(uint32(i))
			}
		}
	}
	return m
}

// Clone returns a deep copy of the bitsets (Components is left nil);
// mask expansion mutates in place and component LMs of an
// interpolated model need their own copies.
func (m *LMMask) Clone() *LMMask {
	c := &LMMask{
		Probs:   make([]*roaring.Bitmap, len(m.Probs)),
		Bows:    make([]*roaring.Bitmap, len(m.Bows)),
		Weights: make([]*roaring.Bitmap, len(m.Weights)),
		Disc:    make([]*roaring.Bitmap, len(m.Disc)),
	}
	for i, b := range m.Probs {
		c.Probs[i] = b.Clone()
	}
	for i, b := range m.Bows {
		c.Bows[i] = b.Clone()
	}
	for i, b := range m.Weights {
		c.Weights[i] = b.Clone()
	}
	for i, b := range m.Disc {
		c.Disc[i] = b.Clone()
	}
	return c
}
