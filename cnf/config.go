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

// Package cnf holds configuration for concrete estimation and
// interpolation tasks, loadable from JSON files.
package cnf

import (
	"fmt"
	"os"
	"strconv"

	"github.com/bytedance/sonic"

	"github.com/czcorpus/ngramlm/db"
	"github.com/czcorpus/ngramlm/ngram"
)

// EstimateConf configures one model estimation task.
type EstimateConf struct {
	Corpus string `json:"corpus"`
	Order  int    `json:"order"`

	// Vocab restricts the model to a fixed vocabulary file
	Vocab      string `json:"vocab,omitempty"`
	UseUnknown bool   `json:"useUnknown"`

	// TextFiles are tokenized corpus files (one sentence per line)
	TextFiles []string `json:"textFiles,omitempty"`

	// CountFiles are n-gram count files
	CountFiles []string `json:"countFiles,omitempty"`

	// Vertical reads a corpus vertical file instead of plain text
	Vertical *ngram.VerticalConf `json:"vertical,omitempty"`

	// Smoothing selects the default estimator (ML, KN, ModKN, KNd,
	// FixKN, FixModKN, FixKNd)
	Smoothing string `json:"smoothing"`

	// SmoothingByOrder overrides the estimator per order
	// (keys are order numbers)
	SmoothingByOrder map[string]string `json:"smoothingByOrder,omitempty"`

	// Features attaches n-gram weighting feature specs
	// (func1:func2:path)
	Features []string `json:"features,omitempty"`

	// OptimizeCorpus tunes parameters on a development corpus
	OptimizeCorpus string `json:"optimizeCorpus,omitempty"`

	// Optimization selects powell, lbfgs or lbfgsb
	Optimization string `json:"optimization,omitempty"`

	// EvalCorpora are test corpora for perplexity evaluation
	EvalCorpora []string `json:"evalCorpora,omitempty"`

	ReadParams     string `json:"readParams,omitempty"`
	WriteParams    string `json:"writeParams,omitempty"`
	WriteLM        string `json:"writeLM,omitempty"`
	WriteBinLM     string `json:"writeBinLM,omitempty"`
	WriteCounts    string `json:"writeCounts,omitempty"`
	WriteBinCounts string `json:"writeBinCounts,omitempty"`
	WriteEffCounts string `json:"writeEffCounts,omitempty"`

	// DB, when configured, exports the estimated model into SQL
	DB db.Conf `json:"db"`
}

func (c *EstimateConf) HasInput() bool {
	return len(c.TextFiles) > 0 || len(c.CountFiles) > 0 || c.Vertical != nil
}

// SmoothingFor resolves the estimator name for an order.
func (c *EstimateConf) SmoothingFor(order int) string {
	if s, ok := c.SmoothingByOrder[strconv.Itoa(order)]; ok {
		return s
	}
	if c.Smoothing != "" {
		return c.Smoothing
	}
	return "ModKN"
}

// InterpolateConf configures one model interpolation task.
type InterpolateConf struct {
	Corpus string `json:"corpus"`
	Order  int    `json:"order"`

	// LMFiles are component models (ARPA or binary)
	LMFiles []string `json:"lmFiles"`

	// CountFiles estimate count-based components instead of loading
	// ready-made LMs (required for CM)
	CountFiles []string `json:"countFiles,omitempty"`
	Smoothing  string   `json:"smoothing,omitempty"`

	// Mode is LI, CM or GLI
	Mode string `json:"mode"`

	// Features lists per-component feature specs (GLI)
	Features [][]string `json:"features,omitempty"`

	TieParamOrder bool `json:"tieParamOrder"`
	TieParamLM    bool `json:"tieParamLM"`

	OptimizeCorpus string `json:"optimizeCorpus,omitempty"`
	Optimization   string `json:"optimization,omitempty"`
	EvalCorpora    []string `json:"evalCorpora,omitempty"`

	WriteParams string `json:"writeParams,omitempty"`
	WriteLM     string `json:"writeLM,omitempty"`
	WriteBinLM  string `json:"writeBinLM,omitempty"`

	DB db.Conf `json:"db"`
}

// LoadEstimateConf reads an estimation task configuration.
func LoadEstimateConf(confPath string) (*EstimateConf, error) {
	rawData, err := os.ReadFile(confPath)
	if err != nil {
		return nil, err
	}
	var conf EstimateConf
	if err := sonic.Unmarshal(rawData, &conf); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", confPath, err)
	}
	return &conf, nil
}

// LoadInterpolateConf reads an interpolation task configuration.
func LoadInterpolateConf(confPath string) (*InterpolateConf, error) {
	rawData, err := os.ReadFile(confPath)
	if err != nil {
		return nil, err
	}
	var conf InterpolateConf
	if err := sonic.Unmarshal(rawData, &conf); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", confPath, err)
	}
	return &conf, nil
}
