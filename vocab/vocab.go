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

// Package vocab interns words into small dense integer ids. Words are
// stored in a single packed byte buffer with per-entry offsets and an
// open-address hash with quadratic probing on top. The sentence
// boundary </s> always occupies id 0; <s> is mapped onto the same id
// for counting purposes. An optional unknown token occupies id 1.
package vocab

import (
	"sort"

	"github.com/czcorpus/ngramlm/hashing"
)

// ID is a word id. Ids are dense in [0, Size).
type ID int32

const (
	// Invalid is returned for words not present in a fixed vocabulary.
	Invalid ID = -1
	// EndOfSentence is the sentence boundary token </s> (and <s>).
	EndOfSentence ID = 0
)

const (
	boundaryWord = "</s>"
	beginWord    = "<s>"
	unknownWord  = "<unk>"
)

type offsetLen struct {
	offset uint32
	length uint32
}

// Vocab is the word <-> id mapping.
type Vocab struct {
	buffer     []byte
	offsetLens []offsetLen
	indices    []ID
	hashMask   uint32
	fixed      bool
	unkID      ID
}

// New creates a vocabulary with </s> pre-registered at id 0.
func New() *Vocab {
	v := &Vocab{unkID: Invalid}
	v.reindex(64)
	v.Add(boundaryWord)
	return v
}

// Size returns the number of interned words.
func (v *Vocab) Size() int {
	return len(v.offsetLens)
}

// Word returns the string form of id.
func (v *Vocab) Word(id ID) string {
	ol := v.offsetLens[id]
	return string(v.buffer[ol.offset : ol.offset+ol.length])
}

// SetFixed freezes (or unfreezes) the vocabulary. Once fixed,
// Add behaves as Find.
func (v *Vocab) SetFixed(fixed bool) {
	v.fixed = fixed
}

// IsFixed reports whether the vocabulary is frozen.
func (v *Vocab) IsFixed() bool {
	return v.fixed
}

// UseUnknown registers the <unk> token. It must be called before
// the vocabulary grows past the boundary token so that <unk>
// obtains id 1.
func (v *Vocab) UseUnknown() {
	if v.unkID == Invalid {
		v.unkID = v.Add(unknownWord)
	}
}

// UnknownID returns the id of <unk>, or Invalid when not configured.
func (v *Vocab) UnknownID() ID {
	return v.unkID
}

// Find returns the id of word, the unknown id for absent words when
// <unk> is configured, or Invalid otherwise.
func (v *Vocab) Find(word string) ID {
	if word == beginWord {
		return EndOfSentence
	}
	pos := v.findPos(word)
	if v.indices[pos] == Invalid {
		return v.unkID
	}
	return v.indices[pos]
}

// Add interns word and returns its id. On a fixed vocabulary it
// behaves exactly as Find.
func (v *Vocab) Add(word string) ID {
	if word == beginWord {
		return EndOfSentence
	}
	pos := v.findPos(word)
	if v.indices[pos] == Invalid && !v.fixed {
		if v.needsGrow() {
			v.reindex(hashCapacity(v.Size() * 2))
			pos = v.findPos(word)
		}
		id := ID(len(v.offsetLens))
		v.indices[pos] = id
		v.offsetLens = append(v.offsetLens, offsetLen{uint32(len(v.buffer)), uint32(len(word))})
		v.buffer = append(v.buffer, word...)
		v.buffer = append(v.buffer, 0)
		return id
	}
	if v.indices[pos] == Invalid {
		return v.unkID
	}
	return v.indices[pos]
}

// Sort reorders words lexicographically, keeping </s> (and <unk>, if
// present) at their fixed positions, and returns the mapping from old
// to new ids. The identity mapping is returned when already sorted.
func (v *Vocab) Sort() []ID {
	numFixed := 1
	if v.unkID != Invalid {
		numFixed = 2
	}
	order := make([]int, v.Size())
	for i := range order {
		order[i] = i
	}
	tail := order[numFixed:]
	sorted := sort.SliceIsSorted(tail, func(i, j int) bool {
		return v.Word(ID(tail[i])) < v.Word(ID(tail[j]))
	})
	sortMap := make([]ID, v.Size())
	if sorted {
		for i := range sortMap {
			sortMap[i] = ID(i)
		}
		return sortMap
	}
	sort.SliceStable(tail, func(i, j int) bool {
		return v.Word(ID(tail[i])) < v.Word(ID(tail[j]))
	})

	newBuffer := make([]byte, 0, len(v.buffer))
	newOffsetLens := make([]offsetLen, v.Size())
	for i, old := range order {
		ol := v.offsetLens[old]
		newOffsetLens[i] = offsetLen{uint32(len(newBuffer)), ol.length}
		newBuffer = append(newBuffer, v.buffer[ol.offset:ol.offset+ol.length]...)
		newBuffer = append(newBuffer, 0)
		sortMap[old] = ID(i)
	}
	v.buffer = newBuffer
	v.offsetLens = newOffsetLens
	for i, idx := range v.indices {
		if idx != Invalid {
			v.indices[i] = sortMap[idx]
		}
	}
	return sortMap
}

func (v *Vocab) needsGrow() bool {
	return v.Size() >= len(v.indices)-len(v.indices)/5
}

func (v *Vocab) findPos(word string) uint32 {
	skip := uint32(0)
	pos := hashing.StringHash([]byte(word)) & v.hashMask
	for {
		idx := v.indices[pos]
		if idx == Invalid || v.Word(idx) == word {
			return pos
		}
		skip++
		pos = (pos + skip) & v.hashMask
	}
}

// hashCapacity returns the hash table capacity for n entries:
// the next power of two >= 1.25 * n.
func hashCapacity(n int) int {
	c := hashing.NextPowerOf2(n + n/4)
	if c < 64 {
		c = 64
	}
	return c
}

// reindex rebuilds the hash table with the given power-of-two capacity.
func (v *Vocab) reindex(capacity int) {
	v.indices = make([]ID, capacity)
	for i := range v.indices {
		v.indices[i] = Invalid
	}
	v.hashMask = uint32(capacity - 1)
	for i := range v.offsetLens {
		ol := v.offsetLens[i]
		word := v.buffer[ol.offset : ol.offset+ol.length]
		skip := uint32(0)
		pos := hashing.StringHash(word) & v.hashMask
		for v.indices[pos] != Invalid {
			skip++
			pos = (pos + skip) & v.hashMask
		}
		v.indices[pos] = ID(i)
	}
}
