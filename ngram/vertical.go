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

package ngram

import (
	"github.com/rs/zerolog/log"
	"github.com/tomachalek/vertigo/v5"
)

// VerticalConf configures corpus input from a corpus vertical file.
type VerticalConf struct {
	Path string `json:"path"`

	// Encoding of the vertical file (empty means UTF-8)
	Encoding string `json:"encoding"`

	// AttrColumn selects the positional attribute used as the word
	// (0 = word form, 1 = first additional attribute, e.g. lemma)
	AttrColumn int `json:"attrColumn"`

	// SentenceStructure is the structure delimiting sentences
	// (typically "s")
	SentenceStructure string `json:"sentenceStructure"`
}

// verticalHandler implements vertigo.LineProcessor and feeds
// sentences into an accumulator.
type verticalHandler struct {
	acc        *accumulator
	attrColumn int
	sentStruct string
	tokens     []string
}

func (vh *verticalHandler) flush() {
	if len(vh.tokens) > 0 {
		vh.acc.addSentence(vh.tokens)
		vh.tokens = vh.tokens[:0]
	}
}

// ProcToken is a part of vertigo.LineProcessor implementation.
func (vh *verticalHandler) ProcToken(tk *vertigo.Token, line int, err error) error {
	if err != nil {
		return err
	}
	vh.tokens = append(vh.tokens, tk.PosAttrByIndex(vh.attrColumn))
	return nil
}

// ProcStruct is a part of vertigo.LineProcessor implementation.
func (vh *verticalHandler) ProcStruct(st *vertigo.Structure, line int, err error) error {
	return err
}

// ProcStructClose is a part of vertigo.LineProcessor implementation.
func (vh *verticalHandler) ProcStructClose(st *vertigo.StructureClose, line int, err error) error {
	if err != nil {
		return err
	}
	if st.Name == vh.sentStruct {
		vh.flush()
	}
	return nil
}

// LoadVerticalCorpus accumulates n-gram counts from a corpus vertical
// file, one sentence per enclosing sentence structure. The model is
// sorted afterwards, as with LoadCorpus.
func (m *Model) LoadVerticalCorpus(counts [][]int, conf VerticalConf) ([][]int, error) {
	if conf.SentenceStructure == "" {
		conf.SentenceStructure = "s"
	}
	log.Info().
		Str("vertical", conf.Path).
		Str("sentenceStructure", conf.SentenceStructure).
		Msg("Loading corpus vertical file")
	handler := &verticalHandler{
		acc:        newAccumulator(m, counts),
		attrColumn: conf.AttrColumn,
		sentStruct: conf.SentenceStructure,
	}
	parserConf := &vertigo.ParserConf{
		InputFilePath:         conf.Path,
		StructAttrAccumulator: "nil",
		Encoding:              conf.Encoding,
	}
	if err := vertigo.ParseVerticalFile(parserConf, handler); err != nil {
		return nil, err
	}
	handler.flush()
	return handler.acc.finish()
}
