// Copyright 2025 Tomas Machalek <tomas.machalek@gmail.com>
// Copyright 2025 Charles University, Faculty of Arts,
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

package fs

import (
	"bufio"
	"fmt"
	"io"
)

// MultiFileScanner reads lines from multiple (possibly compressed)
// files as if they were a single stream. Corpus loaders use it to
// estimate one model from several text files.
type MultiFileScanner struct {
	filePaths    []string
	currentIndex int
	currentFile  io.ReadCloser
	scanner      *bufio.Scanner
	err          error
}

// NewMultiFileScanner creates a scanner that reads through
// the provided files sequentially.
func NewMultiFileScanner(filePaths ...string) (*MultiFileScanner, error) {
	if len(filePaths) == 0 {
		return nil, fmt.Errorf("at least one file path required")
	}
	mfs := &MultiFileScanner{
		filePaths:    filePaths,
		currentIndex: -1,
	}
	if !mfs.openNextFile() {
		return nil, mfs.err
	}
	return mfs, nil
}

func (mfs *MultiFileScanner) openNextFile() bool {
	if mfs.currentFile != nil {
		mfs.currentFile.Close()
		mfs.currentFile = nil
		mfs.scanner = nil
	}
	mfs.currentIndex++
	if mfs.currentIndex >= len(mfs.filePaths) {
		return false
	}
	file, err := OpenRead(mfs.filePaths[mfs.currentIndex])
	if err != nil {
		mfs.err = err
		return false
	}
	mfs.currentFile = file
	mfs.scanner = bufio.NewScanner(file)
	mfs.scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return true
}

// Scan advances to the next line, returning false when finished or on error
func (mfs *MultiFileScanner) Scan() bool {
	if mfs.scanner == nil {
		return false
	}
	if mfs.scanner.Scan() {
		return true
	}
	if err := mfs.scanner.Err(); err != nil {
		mfs.err = err
		return false
	}
	return mfs.openNextFile() && mfs.Scan()
}

// Text returns the current line
func (mfs *MultiFileScanner) Text() string {
	if mfs.scanner == nil {
		return ""
	}
	return mfs.scanner.Text()
}

// Err returns the first error encountered during scanning
func (mfs *MultiFileScanner) Err() error {
	return mfs.err
}

// Close closes any open file handle
func (mfs *MultiFileScanner) Close() error {
	if mfs.currentFile != nil {
		err := mfs.currentFile.Close()
		mfs.currentFile = nil
		mfs.scanner = nil
		return err
	}
	return nil
}
