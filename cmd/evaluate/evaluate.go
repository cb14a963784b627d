// Copyright 2024 Tomas Machalek <tomas.machalek@gmail.com>
// Copyright 2024 Charles University, Faculty of Arts,
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

package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/czcorpus/cnc-gokit/collections"

	"github.com/czcorpus/ngramlm/eval"
	"github.com/czcorpus/ngramlm/fs"
	"github.com/czcorpus/ngramlm/lm"
)

var (
	version   string
	build     string
	gitCommit string
)

type stringList []string

func (s *stringList) String() string {
	return fmt.Sprintf("%v", []string(*s))
}

func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func evaluatePerplexity(model lm.LM, corpora []string) error {
	for _, corpus := range corpora {
		opt := eval.NewPerplexityOptimizer(model)
		sc, err := fs.NewMultiFileScanner(corpus)
		if err != nil {
			return err
		}
		err = opt.LoadCorpus(sc)
		sc.Close()
		if err != nil {
			return err
		}
		entropy := opt.ComputeEntropy(nil)
		fmt.Printf("%s\tperplexity=%f\twords=%d\tOOVs=%d\tzeroProbs=%d\n",
			corpus, math.Exp(entropy), opt.NumWords(), opt.NumOOV(), opt.NumZeroProbs())
	}
	return nil
}

func evaluateLattices(model lm.LM, latticesPath, metric, writeLattices string) error {
	opt := eval.NewWEROptimizer(model)
	f, err := fs.OpenRead(latticesPath)
	if err != nil {
		return err
	}
	err = opt.LoadLattices(f)
	f.Close()
	if err != nil {
		return err
	}
	switch metric {
	case "wer":
		fmt.Printf("%s\tWER=%f\n", latticesPath, opt.ComputeWER(nil))
	case "margin":
		fmt.Printf("%s\tmargin=%f\n", latticesPath, opt.ComputeMargin(nil))
	}
	if writeLattices != "" {
		out, err := fs.CreateWrite(writeLattices)
		if err != nil {
			return err
		}
		defer out.Close()
		for _, lat := range opt.Lattices() {
			if err := lat.Save(out); err != nil {
				return err
			}
		}
	}
	return nil
}

func main() {
	lmPath := flag.String("lm", "", "language model to evaluate (ARPA or binary)")
	latticesPath := flag.String("lattices", "", "lattice file for WER/margin evaluation")
	metric := flag.String("metric", "wer", "lattice metric (wer or margin)")
	writeLattices := flag.String("write-lattices", "", "write rescored lattices to a file")
	var evalCorpora stringList
	flag.Var(&evalCorpora, "eval", "test corpus for perplexity computation (repeatable)")
	showVersion := flag.Bool("version", false, "show version information")
	flag.Usage = func() {
		fmt.Println("ngramlm-evaluate - perplexity and lattice rescoring evaluation")
		fmt.Println("\nUsage:")
		fmt.Println("ngramlm-evaluate -lm model.lm -eval test.txt [-eval test2.txt]")
		fmt.Println("ngramlm-evaluate -lm model.lm -lattices utts.lat -metric wer")
		fmt.Println("\nOptions:")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("ngramlm-evaluate %s\nbuild date: %s\nlast commit: %s\n",
			version, build, gitCommit)
		return
	}
	if *lmPath == "" {
		flag.Usage()
		os.Exit(1)
	}
	if !collections.SliceContains([]string{"wer", "margin"}, *metric) {
		fmt.Fprintf(os.Stderr, "unknown metric %q\n", *metric)
		os.Exit(1)
	}

	model := lm.NewArpaLM()
	f, err := fs.OpenRead(*lmPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(2)
	}
	err = model.LoadLM(f)
	f.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(2)
	}

	if len(evalCorpora) > 0 {
		if err := evaluatePerplexity(model, evalCorpora); err != nil {
			fmt.Fprintf(os.Stderr, "%s\n", err)
			os.Exit(2)
		}
	}
	if *latticesPath != "" {
		if err := evaluateLattices(model, *latticesPath, *metric, *writeLattices); err != nil {
			fmt.Fprintf(os.Stderr, "%s\n", err)
			os.Exit(2)
		}
	}
}
