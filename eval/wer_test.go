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

package eval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testLattices = `utt1
ref a b
0 1 a 0.5
0 1 b 1.0
1 2 b 0.25
1 2 c 0.5

utt2
ref b c
0 1 b 0.5
1 2 c 0.25
1 2 a 0.5

`

func TestWEROptimizer(t *testing.T) {
	model := buildLM(t, 2, trainCorpus, "ModKN")
	opt := NewWEROptimizer(model)
	require.NoError(t, opt.LoadLattices(strings.NewReader(testLattices)))
	require.Len(t, opt.Lattices(), 2)

	params := append([]float64{}, model.DefParams()...)
	wer := opt.ComputeWER(params)
	assert.GreaterOrEqual(t, wer, 0.0)
	assert.LessOrEqual(t, wer, 1.0)

	margin := opt.ComputeMargin(params)
	assert.False(t, margin < 2*worstMargin)

	// out-of-bounds parameters hit the sentinel
	bad := append([]float64{}, params...)
	bad[0] = -5
	assert.Equal(t, 1.0, opt.ComputeWER(bad))
}
