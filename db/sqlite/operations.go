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

/*
This file contains the database operations required to create
the model export schema (per-order n-gram tables, metadata).
*/

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/czcorpus/ngramlm/db"
)

func openDatabase(dbPath string) (*sql.DB, error) {
	if database, err := sql.Open("sqlite3", dbPath); err == nil {
		return database, nil
	} else {
		return nil, fmt.Errorf("failed to open model db: %w", err)
	}
}

func prepareInsert(tx *sql.Tx, table string, cols []string) (*sql.Stmt, error) {
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = "?"
	}
	stmt, err := tx.Prepare(
		fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			table, strings.Join(cols, ", "), strings.Join(placeholders, ", ")))
	if err != nil {
		return nil, fmt.Errorf("failed to prepare INSERT: %w", err)
	}
	return stmt, nil
}

func dropExisting(database *sql.DB, order int) error {
	if _, err := database.Exec("DROP TABLE IF EXISTS model_meta"); err != nil {
		return fmt.Errorf("failed to drop table 'model_meta': %w", err)
	}
	for o := 1; o <= order; o++ {
		q := fmt.Sprintf("DROP TABLE IF EXISTS %s", db.NgramTableName(o))
		if _, err := database.Exec(q); err != nil {
			return fmt.Errorf("failed to drop table '%s': %w", db.NgramTableName(o), err)
		}
	}
	return nil
}

func createSchema(database *sql.DB, order int) error {
	_, err := database.Exec("CREATE TABLE model_meta (key TEXT PRIMARY KEY, value TEXT)")
	if err != nil {
		return fmt.Errorf("failed to create table 'model_meta': %w", err)
	}
	for o := 1; o <= order; o++ {
		cols := make([]string, 0, o+4)
		for i := 1; i <= o; i++ {
			cols = append(cols, fmt.Sprintf("word%d TEXT", i))
		}
		cols = append(cols,
			"count INTEGER", "prob REAL", "bow REAL", "corpus_id TEXT")
		q := fmt.Sprintf("CREATE TABLE %s (%s)",
			db.NgramTableName(o), strings.Join(cols, ", "))
		if _, err := database.Exec(q); err != nil {
			return fmt.Errorf("failed to create table '%s': %w", db.NgramTableName(o), err)
		}
		idx := fmt.Sprintf(
			"CREATE INDEX %s_word1_idx ON %s(word1)",
			db.NgramTableName(o), db.NgramTableName(o))
		if _, err := database.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index on '%s': %w", db.NgramTableName(o), err)
		}
	}
	return nil
}
