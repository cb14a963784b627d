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
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/RoaringBitmap/roaring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/czcorpus/ngramlm/vocab"
)

func scanString(s string) LineScanner {
	return bufio.NewScanner(strings.NewReader(s))
}

func loadTestCorpus(t *testing.T, order int, corpus string) (*Model, [][]int) {
	t.Helper()
	m := NewModel(order)
	counts, err := m.LoadCorpus(nil, scanString(corpus))
	require.NoError(t, err)
	return m, counts
}

func TestLoadCorpusCounts(t *testing.T) {
	m, counts := loadTestCorpus(t, 2, "a b a b c\n")
	// unigrams: </s>, a, b, c
	assert.Equal(t, 4, m.Sizes(1))
	voc := m.Vocab()
	assert.Equal(t, 2, counts[1][voc.Find("a")])
	assert.Equal(t, 2, counts[1][voc.Find("b")])
	assert.Equal(t, 1, counts[1][voc.Find("c")])
	assert.Equal(t, 1, counts[1][vocab.EndOfSentence])

	// bigram (a,b) seen twice
	a := voc.Find("a")
	b := voc.Find("b")
	ia := m.Vector(1).Find(0, a)
	iab := m.Vector(2).Find(ia, b)
	require.NotEqual(t, InvalidIndex, iab)
	assert.Equal(t, 2, counts[2][iab])

	// bigram (<s>,a) seen once
	ieos := m.Vector(1).Find(0, vocab.EndOfSentence)
	isa := m.Vector(2).Find(ieos, a)
	require.NotEqual(t, InvalidIndex, isa)
	assert.Equal(t, 1, counts[2][isa])
}

func TestSortStabilityInvariant(t *testing.T) {
	m, _ := loadTestCorpus(t, 3, "a b a b c\nb c a\na a b\n")
	for o := 1; o <= m.Order(); o++ {
		hists := m.Hists(o)
		words := m.Words(o)
		for i := 1; i < m.Sizes(o); i++ {
			ok := hists[i-1] < hists[i] ||
				(hists[i-1] == hists[i] && words[i-1] < words[i])
			assert.True(t, ok, "order %d entries %d, %d", o, i-1, i)
		}
	}
}

func TestBackoffConsistencyInvariant(t *testing.T) {
	m, _ := loadTestCorpus(t, 3, "a b a b c\nb c a\na a b\n")
	for o := 2; o <= m.Order(); o++ {
		hists := m.Hists(o)
		words := m.Words(o)
		loBackoffs := m.Backoffs(o - 1)
		backoffs := m.Backoffs(o)
		for i := 0; i < m.Sizes(o); i++ {
			expected := m.Vector(o - 1).Find(loBackoffs[hists[i]], words[i])
			assert.Equal(t, expected, backoffs[i], "order %d index %d", o, i)
		}
	}
}

func TestCountsRoundTrip(t *testing.T) {
	m, counts := loadTestCorpus(t, 2, "a b a b c\n")
	var buf bytes.Buffer
	require.NoError(t, m.SaveCounts(counts, &buf, false))
	saved := buf.String()

	m2 := NewModel(2)
	counts2, err := m2.LoadCounts(nil, scanString(saved))
	require.NoError(t, err)

	var buf2 bytes.Buffer
	require.NoError(t, m2.SaveCounts(counts2, &buf2, false))
	assert.Equal(t, saved, buf2.String())
}

func TestLoadCountsAccumulates(t *testing.T) {
	m := NewModel(2)
	counts, err := m.LoadCounts(nil, scanString("a b\t2\n"))
	require.NoError(t, err)
	counts, err = m.LoadCounts(counts, scanString("a b\t3\nb c\t1\n"))
	require.NoError(t, err)
	voc := m.Vocab()
	ia := m.Vector(1).Find(0, voc.Find("a"))
	iab := m.Vector(2).Find(ia, voc.Find("b"))
	assert.Equal(t, 5, counts[2][iab])
}

func TestExtendModelMapsIndices(t *testing.T) {
	m1, _ := loadTestCorpus(t, 2, "a b\n")
	m2, _ := loadTestCorpus(t, 2, "b c\n")

	merged := NewModel(2)
	vm1, nm1 := merged.ExtendModel(m1)
	vm2, nm2 := merged.ExtendModel(m2)
	vs, ns, err := merged.SortModel()
	require.NoError(t, err)

	// compose maps and verify every component n-gram resolves to the
	// same word sequence in the merged model
	check := func(src *Model, vm []vocab.ID, nm [][]Index) {
		for o := 1; o <= 2; o++ {
			for i := 0; i < src.Sizes(o); i++ {
				mergedIdx := ns[o][nm[o][i]]
				assert.Equal(t,
					src.NgramWords(o, Index(i)),
					merged.NgramWords(o, mergedIdx))
			}
		}
		for w := 0; w < len(vm); w++ {
			mergedID := vs[vm[w]]
			assert.Equal(t, src.Vocab().Word(vocab.ID(w)), merged.Vocab().Word(mergedID))
		}
	}
	check(m1, vm1, nm1)
	check(m2, vm2, nm2)
}

func TestBinaryModelRoundTrip(t *testing.T) {
	m, _ := loadTestCorpus(t, 3, "a b a b c\nb c a\n")
	var buf bytes.Buffer
	require.NoError(t, m.Serialize(&buf))
	payload := buf.Bytes()

	m2 := NewModel(3)
	require.NoError(t, m2.Deserialize(bytes.NewReader(payload)))
	assert.Equal(t, m.Order(), m2.Order())
	for o := 1; o <= m.Order(); o++ {
		assert.Equal(t, m.Words(o), m2.Words(o))
		assert.Equal(t, m.Hists(o), m2.Hists(o))
		assert.Equal(t, m.Backoffs(o), m2.Backoffs(o))
	}

	var buf2 bytes.Buffer
	require.NoError(t, m2.Serialize(&buf2))
	assert.Equal(t, payload, buf2.Bytes())
}

func TestLoadEvalCorpus(t *testing.T) {
	m, _ := loadTestCorpus(t, 2, "a b a b c\n")
	vocabMask := roaring.New()
	for i := 0; i < m.Vocab().Size(); i++ {
		vocabMask.Add(uint32(i))
	}
	probCounts, bowCounts, numOOV, numWords, err :=
		m.LoadEvalCorpus(vocabMask, scanString("a b\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, numOOV)
	// a, b, </s>
	assert.Equal(t, 3, numWords)

	voc := m.Vocab()
	ieos := m.Vector(1).Find(0, vocab.EndOfSentence)
	isa := m.Vector(2).Find(ieos, voc.Find("a"))
	ia := m.Vector(1).Find(0, voc.Find("a"))
	iab := m.Vector(2).Find(ia, voc.Find("b"))
	assert.Equal(t, 1, probCounts[2][isa])
	assert.Equal(t, 1, probCounts[2][iab])

	// "b </s>" was never seen: prob comes from the </s> unigram after
	// backing off through history "b"
	ib := m.Vector(1).Find(0, voc.Find("b"))
	assert.Equal(t, 1, probCounts[1][ieos])
	assert.Equal(t, 1, bowCounts[1][ib])

	// an OOV word resets the order
	_, _, numOOV, numWords, err = m.LoadEvalCorpus(vocabMask, scanString("a z b\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, numOOV)
	assert.Equal(t, 3, numWords)
}

func TestArpaRoundTrip(t *testing.T) {
	arpa := `
\data\
ngram 1=4
ngram 2=3

\1-grams:
-0.522879	</s>
-99	<s>	-0.397940
-0.397940	a	-0.154902
-0.698970	b

\2-grams:
-0.154902	<s> a
-0.301030	a b
-0.397940	b </s>

\end\
`
	m := NewModel(2)
	probs, bows, err := m.LoadArpa(scanString(arpa))
	require.NoError(t, err)
	assert.Equal(t, 3, m.Sizes(1))
	assert.Equal(t, 3, m.Sizes(2))

	var buf bytes.Buffer
	require.NoError(t, m.SaveArpa(probs, bows, &buf))
	saved := buf.String()

	m2 := NewModel(2)
	probs2, bows2, err := m2.LoadArpa(scanString(saved))
	require.NoError(t, err)
	for o := 1; o <= 2; o++ {
		require.Equal(t, len(probs[o]), len(probs2[o]))
		for i := range probs[o] {
			assert.InDelta(t, probs[o][i], probs2[o][i], 1e-5)
		}
	}
	for i := range bows[1] {
		assert.InDelta(t, bows[1][i], bows2[1][i], 1e-5)
	}
}
