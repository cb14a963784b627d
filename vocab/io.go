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
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/czcorpus/ngramlm/bin"
)

// LoadText reads one word per line, skipping blank lines and lines
// starting with '#'.
func (v *Vocab) LoadText(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		v.Add(line)
	}
	return scanner.Err()
}

// SaveText writes one word per line in id order.
func (v *Vocab) SaveText(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for i := 0; i < v.Size(); i++ {
		if _, err := bw.WriteString(v.Word(ID(i))); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Serialize writes the tagged binary form: the packed buffer only;
// offsets and the hash are rebuilt on load.
func (v *Vocab) Serialize(w io.Writer) error {
	if err := bin.WriteHeader(w, "Vocab"); err != nil {
		return err
	}
	return bin.WriteString(w, string(v.buffer))
}

// Deserialize restores a vocabulary written by Serialize.
func (v *Vocab) Deserialize(r io.Reader) error {
	if err := bin.VerifyHeader(r, "Vocab"); err != nil {
		return err
	}
	buf, err := bin.ReadString(r)
	if err != nil {
		return err
	}
	v.buffer = []byte(buf)
	v.offsetLens = v.offsetLens[:0]
	offset := 0
	for i := 0; i < len(v.buffer); i++ {
		if v.buffer[i] == 0 {
			v.offsetLens = append(
				v.offsetLens, offsetLen{uint32(offset), uint32(i - offset)})
			offset = i + 1
		}
	}
	if offset != len(v.buffer) {
		return fmt.Errorf("corrupted vocabulary buffer")
	}
	if v.Size() > 0 && v.Word(0) != boundaryWord {
		return fmt.Errorf("vocabulary does not start with %s", boundaryWord)
	}
	v.unkID = Invalid
	if v.Size() > 1 && v.Word(1) == unknownWord {
		v.unkID = 1
	}
	v.reindex(hashCapacity(v.Size()))
	return nil
}
