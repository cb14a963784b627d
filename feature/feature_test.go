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

package feature

import (
	"bufio"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/czcorpus/ngramlm/ngram"
)

func buildModel(t *testing.T, order int, corpus string) *ngram.Model {
	t.Helper()
	m := ngram.NewModel(order)
	_, err := m.LoadCorpus(nil, bufio.NewScanner(strings.NewReader(corpus)))
	require.NoError(t, err)
	return m
}

func openString(content string) func(string) (io.ReadCloser, error) {
	return func(string) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(content)), nil
	}
}

func TestLoadFile(t *testing.T) {
	m := buildModel(t, 2, "a b a b c\n")
	featFile := "a\t1.5\na b\t2.25\nz q\t9\n"
	b, err := LoadFile(m, strings.NewReader(featFile), 2)
	require.NoError(t, err)

	voc := m.Vocab()
	ia := m.Vector(1).Find(0, voc.Find("a"))
	assert.Equal(t, 1.5, b.At(1)[ia])
	iab := m.Vector(2).Find(ia, voc.Find("b"))
	assert.Equal(t, 2.25, b.At(2)[iab])
}

func TestTransformChain(t *testing.T) {
	m := buildModel(t, 2, "a b a b c\n")
	// log applied after the file is loaded
	b, err := Load(m, "log:feat.txt", 2, openString("a\t4\n"))
	require.NoError(t, err)
	voc := m.Vocab()
	ia := m.Vector(1).Find(0, voc.Find("a"))
	assert.InDelta(t, math.Log(4), b.At(1)[ia], 1e-9)

	// rightmost function applies first: pow2 then log
	b, err = Load(m, "log:pow2:feat.txt", 2, openString("a\t4\n"))
	require.NoError(t, err)
	assert.InDelta(t, math.Log(16), b.At(1)[ia], 1e-9)
}

func TestNormTransform(t *testing.T) {
	m := buildModel(t, 2, "a b a b c\n")
	b, err := Load(m, "norm:feat.txt", 2, openString("a\t4\nb\t2\n"))
	require.NoError(t, err)
	voc := m.Vocab()
	ia := m.Vector(1).Find(0, voc.Find("a"))
	ib := m.Vector(1).Find(0, voc.Find("b"))
	assert.InDelta(t, 1.0, b.At(1)[ia], 1e-9)
	assert.InDelta(t, 0.5, b.At(1)[ib], 1e-9)
}

func TestSumhistLiftsToLowerOrder(t *testing.T) {
	m := buildModel(t, 2, "a b a b c\n")
	featFile := "a b\t2\nb c\t3\nb a\t1\n"
	b, err := Load(m, "sumhist:feat.txt", 2, openString(featFile))
	require.NoError(t, err)
	voc := m.Vocab()
	ia := m.Vector(1).Find(0, voc.Find("a"))
	ib := m.Vector(1).Find(0, voc.Find("b"))
	// completions of history "a": only (a,b)
	assert.InDelta(t, 2.0, b.At(1)[ia], 1e-9)
	// completions of history "b": (b,a) and (b,c)
	assert.InDelta(t, 4.0, b.At(1)[ib], 1e-9)
}

func TestUnknownFunctionRejected(t *testing.T) {
	m := buildModel(t, 2, "a b\n")
	_, err := Load(m, "sqrt:feat.txt", 2, openString("a\t1\n"))
	assert.Error(t, err)
}

func TestDocFrequency(t *testing.T) {
	m := buildModel(t, 2, "a b a b c\nb c a\n")
	corpus := "<DOC 1>\na b\n</DOC>\n<DOC 2>\nb c\n</DOC>\n"
	b, err := DocFrequency(m, strings.NewReader(corpus), 2)
	require.NoError(t, err)
	voc := m.Vocab()
	ia := m.Vector(1).Find(0, voc.Find("a"))
	ib := m.Vector(1).Find(0, voc.Find("b"))
	ic := m.Vector(1).Find(0, voc.Find("c"))
	assert.InDelta(t, 0.5, b.At(1)[ia], 1e-9)
	assert.InDelta(t, 1.0, b.At(1)[ib], 1e-9)
	assert.InDelta(t, 0.5, b.At(1)[ic], 1e-9)
}

func TestDocEntropy(t *testing.T) {
	m := buildModel(t, 2, "a b a b c\nb c a\n")
	corpus := "<DOC 1>\nb a\n</DOC>\n<DOC 2>\nb c\n</DOC>\n"
	b, err := DocEntropy(m, strings.NewReader(corpus), 2)
	require.NoError(t, err)
	voc := m.Vocab()
	ib := m.Vector(1).Find(0, voc.Find("b"))
	ia := m.Vector(1).Find(0, voc.Find("a"))
	// "b" occurs once in each of the two documents: entropy 1
	assert.InDelta(t, 1.0, b.At(1)[ib], 1e-9)
	// "a" occurs in a single document: entropy 0
	assert.InDelta(t, 0.0, b.At(1)[ia], 1e-9)
}
