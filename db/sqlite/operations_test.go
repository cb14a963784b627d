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

package sqlite

import (
	"bufio"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/czcorpus/ngramlm/db"
	"github.com/czcorpus/ngramlm/ngram"
)

func TestExportModel(t *testing.T) {
	model := ngram.NewModel(2)
	counts, err := model.LoadCorpus(nil, bufio.NewScanner(strings.NewReader("a b a b c\n")))
	require.NoError(t, err)

	dbPath := filepath.Join(t.TempDir(), "model.sqlite")
	writer := &Writer{Path: dbPath}
	require.NoError(t, db.ExportModel(writer, model, counts, nil, nil, "testcorp", false))

	conn, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer conn.Close()

	var numUnigrams int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM ngram_1").Scan(&numUnigrams))
	assert.Equal(t, model.Sizes(1), numUnigrams)

	var count int
	require.NoError(t, conn.QueryRow(
		"SELECT count FROM ngram_2 WHERE word1 = 'a' AND word2 = 'b'").Scan(&count))
	assert.Equal(t, 2, count)

	var orderValue string
	require.NoError(t, conn.QueryRow(
		"SELECT value FROM model_meta WHERE key = 'order'").Scan(&orderValue))
	assert.Equal(t, "2", orderValue)
}
