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

package mysql

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/czcorpus/ngramlm/db"

	_ "github.com/go-sql-driver/mysql" // load the driver
)

// Writer stores model tables in a MySQL database.
type Writer struct {
	database       *sql.DB
	tx             *sql.Tx
	Conf           db.Conf
	PreconfQueries []string
}

func (w *Writer) connect() error {
	if w.database != nil {
		return nil
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s)/%s", w.Conf.User, w.Conf.Password,
		w.Conf.Host, w.Conf.Name)
	database, err := sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("failed to open model db: %w", err)
	}
	w.database = database
	return nil
}

func (w *Writer) DatabaseExists() bool {
	if err := w.connect(); err != nil {
		return false
	}
	row := w.database.QueryRow(
		"SELECT COUNT(*) FROM information_schema.tables "+
			"WHERE table_schema = ? AND table_name = 'model_meta'", w.Conf.Name)
	var num int
	if err := row.Scan(&num); err != nil {
		return false
	}
	return num > 0
}

func (w *Writer) Initialize(order int, appendMode bool) error {
	if err := w.connect(); err != nil {
		return err
	}
	if !appendMode {
		if w.DatabaseExists() {
			log.Warn().Str("database", w.Conf.Name).
				Msg("model tables already exist, existing data will be deleted")
			if err := w.dropExisting(order); err != nil {
				return err
			}
		}
		if err := w.createSchema(order); err != nil {
			return err
		}
	}
	for _, q := range w.PreconfQueries {
		log.Info().Str("query", q).Msg("applying database pre-configuration")
		w.database.Exec(q)
	}
	var err error
	w.tx, err = w.database.Begin()
	return err
}

func (w *Writer) dropExisting(order int) error {
	if _, err := w.database.Exec("DROP TABLE IF EXISTS model_meta"); err != nil {
		return fmt.Errorf("failed to drop table 'model_meta': %w", err)
	}
	for o := 1; o <= order; o++ {
		q := fmt.Sprintf("DROP TABLE IF EXISTS %s", db.NgramTableName(o))
		if _, err := w.database.Exec(q); err != nil {
			return fmt.Errorf("failed to drop table '%s': %w", db.NgramTableName(o), err)
		}
	}
	return nil
}

func (w *Writer) createSchema(order int) error {
	_, err := w.database.Exec(
		"CREATE TABLE model_meta (`key` VARCHAR(63) PRIMARY KEY, value TEXT)")
	if err != nil {
		return fmt.Errorf("failed to create table 'model_meta': %w", err)
	}
	for o := 1; o <= order; o++ {
		cols := make([]string, 0, o+4)
		for i := 1; i <= o; i++ {
			cols = append(cols, fmt.Sprintf("word%d VARCHAR(255)", i))
		}
		cols = append(cols,
			"count INT", "prob DOUBLE", "bow DOUBLE", "corpus_id VARCHAR(63)")
		q := fmt.Sprintf("CREATE TABLE %s (%s, INDEX(word1))",
			db.NgramTableName(o), strings.Join(cols, ", "))
		if _, err := w.database.Exec(q); err != nil {
			return fmt.Errorf("failed to create table '%s': %w", db.NgramTableName(o), err)
		}
	}
	return nil
}

func (w *Writer) PrepareInsert(table string, attrs []string) (db.InsertOperation, error) {
	if w.tx == nil {
		return nil, fmt.Errorf("cannot prepare insert - no transaction active")
	}
	placeholders := make([]string, len(attrs))
	quoted := make([]string, len(attrs))
	for i, a := range attrs {
		placeholders[i] = "?"
		quoted[i] = "`" + a + "`"
	}
	stmt, err := w.tx.Prepare(
		fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			table, strings.Join(quoted, ", "), strings.Join(placeholders, ", ")))
	if err != nil {
		return nil, fmt.Errorf("failed to prepare INSERT: %w", err)
	}
	return &db.Insert{Stmt: stmt}, nil
}

func (w *Writer) Commit() error {
	return w.tx.Commit()
}

func (w *Writer) Rollback() error {
	return w.tx.Rollback()
}

func (w *Writer) Close() {
	if err := w.database.Close(); err != nil {
		log.Warn().Err(err).Msg("error closing database")
	}
}
