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

package cnf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEstimateConf(t *testing.T) {
	content := `{
		"corpus": "testcorp",
		"order": 3,
		"textFiles": ["train.txt"],
		"smoothing": "ModKN",
		"smoothingByOrder": {"1": "ML"},
		"optimizeCorpus": "dev.txt",
		"optimization": "powell",
		"db": {"type": "sqlite", "name": "model.sqlite"}
	}`
	path := filepath.Join(t.TempDir(), "estimate.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	conf, err := LoadEstimateConf(path)
	require.NoError(t, err)
	assert.Equal(t, "testcorp", conf.Corpus)
	assert.Equal(t, 3, conf.Order)
	assert.True(t, conf.HasInput())
	assert.Equal(t, "ML", conf.SmoothingFor(1))
	assert.Equal(t, "ModKN", conf.SmoothingFor(2))
	assert.Equal(t, "sqlite", conf.DB.Type)
	assert.True(t, conf.DB.IsConfigured())
}

func TestSmoothingDefault(t *testing.T) {
	conf := EstimateConf{}
	assert.Equal(t, "ModKN", conf.SmoothingFor(2))
}

func TestLoadInterpolateConf(t *testing.T) {
	content := `{
		"order": 3,
		"lmFiles": ["lm1.arpa", "lm2.arpa"],
		"mode": "GLI",
		"features": [["log:c1.counts"], ["log:c2.counts"]],
		"tieParamOrder": true
	}`
	path := filepath.Join(t.TempDir(), "interpolate.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	conf, err := LoadInterpolateConf(path)
	require.NoError(t, err)
	assert.Len(t, conf.LMFiles, 2)
	assert.Equal(t, "GLI", conf.Mode)
	assert.True(t, conf.TieParamOrder)
	assert.False(t, conf.TieParamLM)
}

func TestLoadConfMissingFile(t *testing.T) {
	_, err := LoadEstimateConf("/nonexistent/conf.json")
	assert.Error(t, err)
}
