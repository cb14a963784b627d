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

// Package hashing provides the deterministic mixers used by the
// open-address hash tables of the vocabulary and the n-gram index.
// Adopted from Paul Hsieh's SuperFastHash
// (http://www.azillionmonkeys.com/qed/hash.html).
package hashing

// StringHash mixes an arbitrary byte string into a 32-bit value.
func StringHash(data []byte) uint32 {
	n := len(data)
	if n == 0 {
		return 0
	}
	hash := uint32(n)
	var tmp uint32

	get16 := func(i int) uint32 {
		return uint32(data[i]) | uint32(data[i+1])<<8
	}

	rem := n & 3
	i := 0
	for ; n >= 4; n -= 4 {
		hash += get16(i)
		tmp = (get16(i+2) << 11) ^ hash
		hash = (hash << 16) ^ tmp
		i += 4
		hash += hash >> 11
	}

	switch rem {
	case 3:
		hash += get16(i)
		hash ^= hash << 16
		hash ^= uint32(data[i+2]) << 18
		hash += hash >> 11
	case 2:
		hash += get16(i)
		hash ^= hash << 11
		hash += hash >> 17
	case 1:
		hash += uint32(data[i])
		hash ^= hash << 10
		hash += hash >> 1
	}

	hash ^= hash << 3
	hash += hash >> 5
	hash ^= hash << 4
	hash += hash >> 17
	hash ^= hash << 25
	hash += hash >> 6
	return hash
}

// PairHash mixes two 32-bit keys (history index, word id)
// into a 32-bit value.
func PairHash(key1, key2 uint32) uint32 {
	var hash, tmp uint32

	hash += key1 >> 16
	tmp = ((key1 & 0xFFFF) << 11) ^ hash
	hash = (hash << 16) ^ tmp
	hash += hash >> 11

	hash += key2 >> 16
	tmp = ((key2 & 0xFFFF) << 11) ^ hash
	hash = (hash << 16) ^ tmp
	hash += hash >> 11

	hash ^= hash << 3
	hash += hash >> 5
	hash ^= hash << 4
	hash += hash >> 17
	hash ^= hash << 25
	hash += hash >> 6
	return hash
}

// NextPowerOf2 returns the smallest power of two >= n (min. 1).
func NextPowerOf2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
