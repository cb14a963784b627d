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

// Package db exports estimated models and count tables into a SQL
// database (sqlite3 or MySQL), one table per n-gram order plus a
// metadata table, so downstream tools can query the model without
// parsing LM files.
package db

import (
	"database/sql"
	"fmt"
)

// Conf selects and configures the target database.
type Conf struct {
	Type           string   `json:"type"`
	Name           string   `json:"name"`
	Host           string   `json:"host"`
	User           string   `json:"user"`
	Password       string   `json:"password"`
	PreconfQueries []string `json:"preconfSettings"`
}

func (c *Conf) IsConfigured() bool {
	return c.Type != ""
}

// Writer is the database-agnostic contract of the export target.
type Writer interface {
	DatabaseExists() bool
	Initialize(order int, appendMode bool) error
	PrepareInsert(table string, attrs []string) (InsertOperation, error)
	Commit() error
	Rollback() error
	Close()
}

// InsertOperation executes one prepared row insert.
type InsertOperation interface {
	Exec(values ...any) error
}

// ---------------------------

type Insert struct {
	Stmt *sql.Stmt
}

func (ins *Insert) Exec(values ...any) error {
	_, err := ins.Stmt.Exec(values...)
	return err
}

// ---------------------------

// NgramTableName names the per-order tables.
func NgramTableName(order int) string {
	return fmt.Sprintf("ngram_%d", order)
}

// NgramColNames lists the columns of a per-order table.
func NgramColNames(order int) []string {
	cols := make([]string, 0, order+4)
	for i := 1; i <= order; i++ {
		cols = append(cols, fmt.Sprintf("word%d", i))
	}
	return append(cols, "count", "prob", "bow", "corpus_id")
}
