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

package lm

import (
	"fmt"
	"io"

	"github.com/czcorpus/ngramlm/bin"
)

// SaveParams writes a parameter vector in the tagged binary format.
func SaveParams(w io.Writer, params []float64) error {
	if err := bin.WriteUInt64(w, bin.Magic); err != nil {
		return err
	}
	if err := bin.WriteHeader(w, "Param"); err != nil {
		return err
	}
	return bin.WriteF64Slice(w, params)
}

// LoadParams reads a parameter vector written by SaveParams.
func LoadParams(r io.Reader) ([]float64, error) {
	magic, err := bin.ReadUInt64(r)
	if err != nil {
		return nil, err
	}
	if magic != bin.Magic {
		return nil, fmt.Errorf("unrecognized binary version stamp")
	}
	if err := bin.VerifyHeader(r, "Param"); err != nil {
		return nil, err
	}
	return bin.ReadF64Slice(r)
}
