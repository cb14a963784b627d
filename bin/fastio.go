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

// Package bin implements the binary framing shared by all serialized
// structures: a magic version stamp, short ASCII section tags, and
// length-prefixed payloads padded to 8-byte boundaries, all fixed-width
// little-endian.
package bin

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Magic is the version stamp written at the start of every binary
// file produced by this toolkit. It deliberately differs from any
// historical stamp; older files are refused with a clear error.
const Magic uint64 = 0x314d4c4d4152474e // "NGRAMLM1" LE

var pad [8]byte

func padding(n int) int {
	return (8 - n&7) & 7
}

func WriteUInt64(w io.Writer, v uint64) error {
	return binary.Write(w, binary.LittleEndian, v)
}

func ReadUInt64(r io.Reader) (uint64, error) {
	var v uint64
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

// WriteHeader writes a section tag as a length-prefixed string.
func WriteHeader(w io.Writer, tag string) error {
	return WriteString(w, tag)
}

// VerifyHeader reads a section tag and fails unless it matches.
func VerifyHeader(r io.Reader, tag string) error {
	s, err := ReadString(r)
	if err != nil {
		return err
	}
	if s != tag {
		return fmt.Errorf("unexpected section %q (expected %q)", s, tag)
	}
	return nil
}

// WriteString writes a length-prefixed non-terminated string
// padded to the next 8-byte boundary.
func WriteString(w io.Writer, s string) error {
	if err := WriteUInt64(w, uint64(len(s))); err != nil {
		return err
	}
	if _, err := w.Write([]byte(s)); err != nil {
		return err
	}
	_, err := w.Write(pad[:padding(len(s))])
	return err
}

func ReadString(r io.Reader) (string, error) {
	n, err := ReadUInt64(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, int(n)+padding(int(n)))
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf[:n]), nil
}

// WriteI32Slice writes a vector of 32-bit integers as
// length prefix + raw payload + padding.
func WriteI32Slice(w io.Writer, v []int32) error {
	if err := WriteUInt64(w, uint64(len(v))); err != nil {
		return err
	}
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(x))
	}
	if _, err := w.Write(buf); err != nil {
		return err
	}
	_, err := w.Write(pad[:padding(len(buf))])
	return err
}

func ReadI32Slice(r io.Reader) ([]int32, error) {
	n, err := ReadUInt64(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 4*int(n)+padding(4*int(n)))
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	v := make([]int32, n)
	for i := range v {
		v[i] = int32(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v, nil
}

// WriteF64Slice writes a vector of 64-bit floats as
// length prefix + raw payload (already 8-byte aligned).
func WriteF64Slice(w io.Writer, v []float64) error {
	if err := WriteUInt64(w, uint64(len(v))); err != nil {
		return err
	}
	buf := make([]byte, 8*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(x))
	}
	_, err := w.Write(buf)
	return err
}

func ReadF64Slice(r io.Reader) ([]float64, error) {
	n, err := ReadUInt64(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 8*int(n))
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	v := make([]float64, n)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:]))
	}
	return v, nil
}

// WriteIntSlice writes integer counts as 64-bit values.
func WriteIntSlice(w io.Writer, v []int) error {
	if err := WriteUInt64(w, uint64(len(v))); err != nil {
		return err
	}
	buf := make([]byte, 8*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint64(buf[8*i:], uint64(x))
	}
	_, err := w.Write(buf)
	return err
}

func ReadIntSlice(r io.Reader) ([]int, error) {
	n, err := ReadUInt64(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 8*int(n))
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	v := make([]int, n)
	for i := range v {
		v[i] = int(binary.LittleEndian.Uint64(buf[8*i:]))
	}
	return v, nil
}
