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
	"io"
	"math"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/czcorpus/ngramlm/cnf"
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

func loadComponents(conf *cnf.InterpolateConf) ([]lm.LM, error) {
	components := make([]lm.LM, 0, len(conf.LMFiles)+len(conf.CountFiles))
	for _, path := range conf.LMFiles {
		f, err := fs.OpenRead(path)
		if err != nil {
			return nil, err
		}
		component := lm.NewArpaLM()
		err = component.LoadLM(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		log.Info().Str("lm", path).Int("order", component.Order()).Msg("component loaded")
		components = append(components, component)
	}
	for _, path := range conf.CountFiles {
		order := conf.Order
		if order == 0 {
			order = 3
		}
		component := lm.NewNgramLM(order)
		sc, err := fs.NewMultiFileScanner(path)
		if err != nil {
			return nil, err
		}
		err = component.LoadCounts(sc)
		sc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		smoothingName := conf.Smoothing
		if smoothingName == "" {
			smoothingName = "FixModKN"
		}
		smoothings := make([]smooth.Smoothing, order+1)
		for o := 1; o <= order; o++ {
			s, err := smooth.New(smoothingName)
			if err != nil {
				return nil, err
			}
			smoothings[o] = s
		}
		if err := component.SetSmoothings(smoothings); err != nil {
			return nil, err
		}
		log.Info().Str("counts", path).Int("order", order).Msg("component estimated from counts")
		components = append(components, component)
	}
	return components, nil
}

func runInterpolate(confPath string) error {
	conf, err := cnf.LoadInterpolateConf(confPath)
	if err != nil {
		return err
	}
	mode, err := lm.ParseInterpolation(conf.Mode)
	if err != nil {
		return err
	}
	components, err := loadComponents(conf)
	if err != nil {
		return err
	}
	interp, err := lm.NewInterpolatedLM(components, conf.TieParamOrder, conf.TieParamLM)
	if err != nil {
		return err
	}

	var features [][]*feature.Bundle
	switch mode {
	case lm.CountMerging:
		if features, err = lm.CountMergingFeatures(components); err != nil {
			return err
		}
	case lm.GeneralizedLinear:
		if len(conf.Features) != len(components) {
			return fmt.Errorf("GLI requires one feature list per component")
		}
		features = make([][]*feature.Bundle, len(components))
		for l, specs := range conf.Features {
			for _, spec := range specs {
				b, err := feature.Load(interp.Model(), spec, interp.Order()-1,
					func(path string) (io.ReadCloser, error) { return fs.OpenRead(path) })
				if err != nil {
					return err
				}
				features[l] = append(features[l], b)
			}
		}
	}
	if err := interp.SetInterpolation(mode, features); err != nil {
		return err
	}

	params := append([]float64{}, interp.DefParams()...)
	if conf.OptimizeCorpus != "" {
		method := optimize.Powell
		if conf.Optimization != "" {
			if method, err = optimize.ParseMethod(conf.Optimization); err != nil {
				return err
			}
		}
		opt := eval.NewPerplexityOptimizer(interp)
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

	if !interp.Estimate(params, nil) {
		return fmt.Errorf("parameters out of range")
	}

	for _, corpus := range conf.EvalCorpora {
		opt := eval.NewPerplexityOptimizer(interp)
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
		fmt.Printf("%s\tperplexity=%f\tOOVs=%d\n", corpus, math.Exp(entropy), opt.NumOOV())
	}

	writeOut := func(path string, write func(w io.Writer) error) error {
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
	if conf.WriteParams != "" {
		if err := writeOut(conf.WriteParams, func(w io.Writer) error {
			return lm.SaveParams(w, params)
		}); err != nil {
			return err
		}
	}
	if conf.WriteLM != "" {
		if err := writeOut(conf.WriteLM, interp.SaveArpa); err != nil {
			return err
		}
	}
	if conf.WriteBinLM != "" {
		if err := writeOut(conf.WriteBinLM, interp.SaveBin); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	flag.Usage = func() {
		fmt.Println("ngramlm-interpolate - static interpolation of n-gram language models")
		fmt.Printf("version %s\n", version)
		fmt.Println("\nUsage:")
		fmt.Println("ngramlm-interpolate run config.json")
		fmt.Println("ngramlm-interpolate version")
		fmt.Println("\nOptions:")
		flag.PrintDefaults()
	}
	flag.Parse()
	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "run":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: ngramlm-interpolate run conf.json")
			os.Exit(1)
		}
		if err := runInterpolate(os.Args[2]); err != nil {
			fmt.Fprintf(os.Stderr, "%s\n", err)
			os.Exit(2)
		}
	case "version":
		fmt.Printf("ngramlm-interpolate %s\nbuild date: %s\nlast commit: %s\n",
			version, build, gitCommit)
	default:
		log.Fatal().Msgf("Unknown command '%s'", os.Args[1])
	}
}
