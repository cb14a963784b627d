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

// Package lm composes the trie index with per-order smoothing
// estimators into complete estimated language models, and merges
// multiple estimated models through linear, count-merging or
// generalized-linear interpolation.
package lm

import (
	"github.com/czcorpus/ngramlm/mask"
	"github.com/czcorpus/ngramlm/ngram"
	"github.com/czcorpus/ngramlm/vocab"
)

// LM is the estimation contract shared by plain, loaded and
// interpolated models. Estimate maps a parameter vector to
// per-order probability and back-off weight vectors; with a non-nil
// mask only the masked indices are guaranteed.
type LM interface {
	Order() int
	Model() *ngram.Model
	Probs(o int) []float64
	Bows(o int) []float64
	DefParams() []float64
	GetMask(seed *mask.LMMask) *mask.LMMask
	Estimate(params []float64, msk *mask.LMMask) bool
	SetModel(m *ngram.Model, vocabMap []vocab.ID, ngramMaps [][]ngram.Index) error
}
