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

package fs

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Compressed files are piped through an external (de)compressor
// so that loaders can treat any input as a plain line stream.
// The child process lifetime is bound to the returned handle.

type pipeReader struct {
	io.ReadCloser
	cmd  *exec.Cmd
	file *os.File
}

func (r *pipeReader) Close() error {
	err := r.ReadCloser.Close()
	if werr := r.cmd.Wait(); werr != nil && err == nil {
		err = werr
	}
	if r.file != nil {
		r.file.Close()
	}
	return err
}

type pipeWriter struct {
	io.WriteCloser
	cmd  *exec.Cmd
	file *os.File
}

func (w *pipeWriter) Close() error {
	err := w.WriteCloser.Close()
	if werr := w.cmd.Wait(); werr != nil && err == nil {
		err = werr
	}
	if w.file != nil {
		if cerr := w.file.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func decompressorFor(path string) []string {
	switch {
	case strings.HasSuffix(path, ".gz") || strings.HasSuffix(path, ".tgz") || strings.HasSuffix(path, ".Z"):
		return []string{"gzip", "-dc"}
	case strings.HasSuffix(path, ".bz2"):
		return []string{"bzip2", "-dc"}
	case strings.HasSuffix(path, ".xz"):
		return []string{"xz", "-dc"}
	}
	return nil
}

func compressorFor(path string) []string {
	switch {
	case strings.HasSuffix(path, ".gz") || strings.HasSuffix(path, ".Z"):
		return []string{"gzip", "-c"}
	case strings.HasSuffix(path, ".bz2"):
		return []string{"bzip2", "-c"}
	case strings.HasSuffix(path, ".xz"):
		return []string{"xz", "-c"}
	}
	return nil
}

type nopCloser struct{ io.Reader }

func (nopCloser) Close() error { return nil }

type nopWCloser struct{ io.Writer }

func (nopWCloser) Close() error { return nil }

// OpenRead opens path for reading. The path "-" means stdin and
// recognized compressed suffixes are streamed through the matching
// decompressor child process.
func OpenRead(path string) (io.ReadCloser, error) {
	if path == "-" {
		return nopCloser{os.Stdin}, nil
	}
	args := decompressorFor(path)
	if args == nil {
		return os.Open(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdin = f
	out, err := cmd.StdoutPipe()
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to start %s: %w", args[0], err)
	}
	return &pipeReader{ReadCloser: out, cmd: cmd, file: f}, nil
}

// CreateWrite creates path for writing, compressing through a child
// process when the suffix asks for it. The path "-" means stdout.
func CreateWrite(path string) (io.WriteCloser, error) {
	if path == "-" {
		return nopWCloser{os.Stdout}, nil
	}
	args := compressorFor(path)
	if args == nil {
		return os.Create(path)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdout = f
	in, err := cmd.StdinPipe()
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to start %s: %w", args[0], err)
	}
	return &pipeWriter{WriteCloser: in, cmd: cmd, file: f}, nil
}
