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

package main

import (
	"flag"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"

	"github.com/czcorpus/ngramlm/cnf"
	"github.com/czcorpus/ngramlm/db"
	dbfactory "github.com/czcorpus/ngramlm/db/factory"
	"github.com/czcorpus/ngramlm/eval"
	"github.com/czcorpus/ngramlm/feature"
	"github.com/czcorpus/ngramlm/fs"
	"github.com/czcorpus/ngramlm/lm"
	"github.com/czcorpus/ngramlm/optimize"
	"github.com/czcorpus/ngramlm/smooth"
)

var (
	version   string
	build     string
	gitCommit string
)

func dumpNewConf() {
	conf := cnf.EstimateConf{}
	conf.Order = 3
	conf.Smoothing = "ModKN"
	conf.TextFiles = []string{"train.txt"}
	conf.Optimization = "powell"
	b, err := sonic.MarshalIndent(conf, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to dump a new config")
	}
	fmt.Println(string(b))
}

func loadInputs(model *lm.NgramLM, conf *cnf.EstimateConf) error {
	if conf.Vocab != "" {
		f, err := fs.OpenRead(conf.Vocab)
		if err != nil {
			return err
		}
		defer f.Close()
		if conf.UseUnknown {
			model.Model().Vocab().UseUnknown()
		}
		if err := model.LoadVocab(f); err != nil {
			return err
		}
	} else if conf.UseUnknown {
		model.Model().Vocab().UseUnknown()
	}
	if len(conf.TextFiles) > 0 {
		sc, err := fs.NewMultiFileScanner(conf.TextFiles...)
		if err != nil {
			return err
		}
		defer sc.Close()
		if err := model.LoadCorpus(sc); err != nil {
			return err
		}
	}
	if len(conf.CountFiles) > 0 {
		sc, err := fs.NewMultiFileScanner(conf.CountFiles...)
		if err != nil {
			return err
		}
		defer sc.Close()
		if err := model.LoadCounts(sc); err != nil {
			return err
		}
	}
	if conf.Vertical != nil {
		if err := model.LoadVerticalCorpus(*conf.Vertical); err != nil {
			return err
		}
	}
	return nil
}

func writeOutput(path string, write func(w io.Writer) error) error {
	f, err := fs.CreateWrite(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func runEstimate(confPath string) error {
	conf, err := cnf.LoadEstimateConf(confPath)
	if err != nil {
		return err
	}
	if !conf.HasInput() {
		return fmt.Errorf("no corpus or counts input configured")
	}
	order := conf.Order
	if order == 0 {
		order = 3
	}
	model := lm.NewNgramLM(order)
	if err := loadInputs(model, conf); err != nil {
		return err
	}

	if len(conf.Features) > 0 {
		bundles := make([]*feature.Bundle, 0, len(conf.Features))
		for _, spec := range conf.Features {
			b, err := model.LoadFeature(spec, 0)
			if err != nil {
				return err
			}
			bundles = append(bundles, b)
		}
		model.SetWeighting(bundles)
	}

	smoothings := make([]smooth.Smoothing, order+1)
	for o := 1; o <= order; o++ {
		name := conf.SmoothingFor(o)
		log.Info().Int("order", o).Str("smoothing", name).Msg("selected estimator")
		s, err := smooth.New(name)
		if err != nil {
			return err
		}
		smoothings[o] = s
	}
	if err := model.SetSmoothings(smoothings); err != nil {
		return err
	}

	params := append([]float64{}, model.DefParams()...)
	if conf.ReadParams != "" {
		f, err := fs.OpenRead(conf.ReadParams)
		if err != nil {
			return err
		}
		params, err = lm.LoadParams(f)
		f.Close()
		if err != nil {
			return err
		}
	}

	if conf.OptimizeCorpus != "" {
		method := optimize.Powell
		if conf.Optimization != "" {
			if method, err = optimize.ParseMethod(conf.Optimization); err != nil {
				return err
			}
		}
		opt := eval.NewPerplexityOptimizer(model)
		sc, err := fs.NewMultiFileScanner(conf.OptimizeCorpus)
		if err != nil {
			return err
		}
		if err := opt.LoadCorpus(sc); err != nil {
			sc.Close()
			return err
		}
		sc.Close()
		if _, err := opt.Optimize(params, method); err != nil {
			return err
		}
	}

	if !model.Estimate(params, nil) {
		return fmt.Errorf("parameters out of range")
	}

	for _, corpus := range conf.EvalCorpora {
		opt := eval.NewPerplexityOptimizer(model)
		sc, err := fs.NewMultiFileScanner(corpus)
		if err != nil {
			return err
		}
		if err := opt.LoadCorpus(sc); err != nil {
			sc.Close()
			return err
		}
		sc.Close()
		entropy := opt.ComputeEntropy(params)
		fmt.Printf("%s\tperplexity=%f\tOOVs=%d\tzeroProbs=%d\n",
			corpus, math.Exp(entropy), opt.NumOOV(), opt.NumZeroProbs())
	}

	if conf.WriteParams != "" {
		err := writeOutput(conf.WriteParams, func(f io.Writer) error {
			return lm.SaveParams(f, params)
		})
		if err != nil {
			return err
		}
	}
	if conf.WriteCounts != "" {
		err := writeOutput(conf.WriteCounts, func(f io.Writer) error {
			return model.SaveCounts(f)
		})
		if err != nil {
			return err
		}
	}
	if conf.WriteBinCounts != "" {
		err := writeOutput(conf.WriteBinCounts, func(f io.Writer) error {
			return model.SaveBinCounts(f)
		})
		if err != nil {
			return err
		}
	}
	if conf.WriteEffCounts != "" {
		err := writeOutput(conf.WriteEffCounts, func(f io.Writer) error {
			return model.SaveEffCounts(f)
		})
		if err != nil {
			return err
		}
	}
	if conf.WriteLM != "" {
		err := writeOutput(conf.WriteLM, func(f io.Writer) error {
			return model.SaveArpa(f)
		})
		if err != nil {
			return err
		}
	}
	if conf.WriteBinLM != "" {
		err := writeOutput(conf.WriteBinLM, func(f io.Writer) error {
			return model.SaveBin(f)
		})
		if err != nil {
			return err
		}
	}
	if conf.DB.IsConfigured() {
		writer, err := dbfactory.NewDatabaseWriter(conf.DB)
		if err != nil {
			return err
		}
		counts := make([][]int, order+1)
		for o := 1; o <= order; o++ {
			counts[o] = model.Counts(o)
		}
		probs := make([][]float64, order+1)
		bows := make([][]float64, order)
		for o := 1; o <= order; o++ {
			probs[o] = model.Probs(o)
			if o < order {
				bows[o] = model.Bows(o)
			}
		}
		if err := db.ExportModel(writer, model.Model(), counts, probs, bows, conf.Corpus, false); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	flag.Usage = func() {
		fmt.Println("\n+----------------------------------------------------------------+")
		fmt.Println("| ngramlm-estimate - back-off n-gram language model estimation   |")
		fmt.Printf("|                       version %s                            |\n", version)
		fmt.Println("|          (c) Institute of the Czech National Corpus            |")
		fmt.Println("+----------------------------------------------------------------+")
		fmt.Println("\nUsage:")
		fmt.Println("ngramlm-estimate run config.json\n\t(estimate a model as configured in config.json)")
		fmt.Println("ngramlm-estimate template\n\t(create a half empty sample config and write it to stdout)")
		fmt.Println("ngramlm-estimate version\n\tshow detailed version information")
		fmt.Println("\nOptions:")
		flag.PrintDefaults()
	}

	runCommand := flag.NewFlagSet("run", flag.ExitOnError)
	runCommand.Usage = func() {
		fmt.Println("Usage: ngramlm-estimate run conf.json")
	}
	templateCommand := flag.NewFlagSet("template", flag.ExitOnError)
	templateCommand.Usage = func() {
		fmt.Println("Usage: ngramlm-estimate template [> conf.json]")
	}
	flag.Parse()
	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runCommand.Parse(os.Args[2:])
		if err := runEstimate(runCommand.Arg(0)); err != nil {
			fmt.Fprintf(os.Stderr, "%s\n", err)
			os.Exit(2)
		}
	case "template":
		templateCommand.Parse(os.Args[2:])
		dumpNewConf()
	case "version":
		fmt.Printf("ngramlm-estimate %s\nbuild date: %s\nlast commit: %s\n",
			version, build, gitCommit)
	default:
		log.Fatal().Msgf("Unknown command '%s'", os.Args[1])
	}
}
