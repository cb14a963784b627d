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

package db

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/czcorpus/ngramlm/ngram"
)

// ExportModel writes an estimated model into the database: one table
// per order holding the n-gram words, raw count (when available),
// probability and back-off weight.
func ExportModel(
	writer Writer,
	model *ngram.Model,
	counts [][]int,
	probs [][]float64,
	bows [][]float64,
	corpusID string,
	appendMode bool,
) error {
	order := model.Order()
	if err := writer.Initialize(order, appendMode); err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			writer.Rollback()
			writer.Close()
		}
	}()

	meta, err := writer.PrepareInsert("model_meta", []string{"key", "value"})
	if err != nil {
		return err
	}
	if err := meta.Exec("order", strconv.Itoa(order)); err != nil {
		return err
	}
	if err := meta.Exec("vocabSize", strconv.Itoa(model.Vocab().Size())); err != nil {
		return err
	}
	if err := meta.Exec("corpus", corpusID); err != nil {
		return err
	}

	for o := 1; o <= order; o++ {
		ins, err := writer.PrepareInsert(NgramTableName(o), NgramColNames(o))
		if err != nil {
			return err
		}
		for i := 0; i < model.Sizes(o); i++ {
			values := make([]any, 0, o+4)
			for _, w := range model.NgramWords(o, ngram.Index(i)) {
				values = append(values, w)
			}
			count := 0
			if counts != nil && o < len(counts) && i < len(counts[o]) {
				count = counts[o][i]
			}
			prob := 0.0
			if probs != nil && o < len(probs) && i < len(probs[o]) {
				prob = probs[o][i]
			}
			bow := 1.0
			if bows != nil && o < len(bows) && i < len(bows[o]) {
				bow = bows[o][i]
			}
			values = append(values, count, prob, bow, corpusID)
			if err := ins.Exec(values...); err != nil {
				return fmt.Errorf("failed to insert %s: %w",
					strings.Join(model.NgramWords(o, ngram.Index(i)), " "), err)
			}
		}
		log.Info().
			Int("order", o).
			Int("numRows", model.Sizes(o)).
			Msg("exported n-gram table")
	}

	if err := writer.Commit(); err != nil {
		return err
	}
	committed = true
	writer.Close()
	return nil
}
