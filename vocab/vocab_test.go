// Copyright 2022 Tomas Machalek <tomas.machalek@gmail.com>
// Copyright 2022 Charles University, Faculty of Arts,
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

package vocab

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoundaryIsPreRegistered(t *testing.T) {
	v := New()
	assert.Equal(t, 1, v.Size())
	assert.Equal(t, EndOfSentence, v.Find("</s>"))
	assert.Equal(t, EndOfSentence, v.Find("<s>"))
}

func TestAddAndFind(t *testing.T) {
	v := New()
	id1 := v.Add("the")
	id2 := v.Add("a")
	assert.Equal(t, ID(1), id1)
	assert.Equal(t, ID(2), id2)
	assert.Equal(t, id1, v.Add("the"))
	assert.Equal(t, id1, v.Find("the"))
	assert.Equal(t, Invalid, v.Find("missing"))
}

func TestSortKeepsSentinels(t *testing.T) {
	v := New()
	v.Add("the")
	v.Add("a")
	v.Add("<background>")
	sortMap := v.Sort()
	assert.Equal(t, ID(0), v.Find("</s>"))
	assert.Equal(t, ID(1), v.Find("<background>"))
	assert.Equal(t, ID(2), v.Find("a"))
	assert.Equal(t, ID(3), v.Find("the"))
	// old "the"=1 -> 3, old "a"=2 -> 2, old "<background>"=3 -> 1
	assert.Equal(t, []ID{0, 3, 2, 1}, sortMap)
}

func TestSortWithUnknown(t *testing.T) {
	v := New()
	v.UseUnknown()
	v.Add("zebra")
	v.Add("apple")
	v.Sort()
	assert.Equal(t, ID(0), v.Find("</s>"))
	assert.Equal(t, ID(1), v.Find("<unk>"))
	assert.Equal(t, ID(2), v.Find("apple"))
	assert.Equal(t, ID(3), v.Find("zebra"))
}

func TestSortAlreadySortedReturnsIdentity(t *testing.T) {
	v := New()
	v.Add("a")
	v.Add("b")
	sortMap := v.Sort()
	assert.Equal(t, []ID{0, 1, 2}, sortMap)
}

func TestFixedVocabAddBehavesAsFind(t *testing.T) {
	v := New()
	v.Add("known")
	v.SetFixed(true)
	assert.Equal(t, Invalid, v.Add("unknown"))
	assert.Equal(t, v.Find("known"), v.Add("known"))
	assert.Equal(t, 2, v.Size())
}

func TestFixedVocabWithUnknownToken(t *testing.T) {
	v := New()
	v.UseUnknown()
	v.Add("known")
	v.SetFixed(true)
	assert.Equal(t, v.UnknownID(), v.Add("oov"))
	assert.Equal(t, v.UnknownID(), v.Find("oov"))
}

func TestManyWordsTriggerRehash(t *testing.T) {
	v := New()
	words := make([]string, 0, 2000)
	for i := 0; i < 2000; i++ {
		w := strings.Repeat("x", 1+i%7) + string(rune('a'+i%26)) + strings.Repeat("y", i%5)
		words = append(words, w)
		v.Add(w)
	}
	for _, w := range words {
		assert.NotEqual(t, Invalid, v.Find(w))
	}
}

func TestTextRoundTrip(t *testing.T) {
	v := New()
	v.Add("alpha")
	v.Add("beta")
	var buf bytes.Buffer
	assert.NoError(t, v.SaveText(&buf))

	v2 := New()
	assert.NoError(t, v2.LoadText(&buf))
	assert.Equal(t, v.Size(), v2.Size())
	assert.Equal(t, v.Find("alpha"), v2.Find("alpha"))
	assert.Equal(t, v.Find("beta"), v2.Find("beta"))
}

func TestLoadTextSkipsComments(t *testing.T) {
	v := New()
	input := "# a comment\nalpha\n\nbeta\n"
	assert.NoError(t, v.LoadText(strings.NewReader(input)))
	assert.Equal(t, 3, v.Size())
}

func TestBinaryRoundTrip(t *testing.T) {
	v := New()
	v.UseUnknown()
	v.Add("gamma")
	v.Add("delta")
	var buf bytes.Buffer
	assert.NoError(t, v.Serialize(&buf))

	v2 := New()
	assert.NoError(t, v2.Deserialize(&buf))
	assert.Equal(t, v.Size(), v2.Size())
	for i := 0; i < v.Size(); i++ {
		assert.Equal(t, v.Word(ID(i)), v2.Word(ID(i)))
	}
	assert.Equal(t, ID(1), v2.UnknownID())
	assert.Equal(t, v.Find("delta"), v2.Find("delta"))
}
