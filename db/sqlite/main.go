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
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/czcorpus/ngramlm/db"
	"github.com/czcorpus/ngramlm/fs"

	_ "github.com/mattn/go-sqlite3" // load the driver
)

// Writer stores model tables in a sqlite3 database file.
type Writer struct {
	database       *sql.DB
	tx             *sql.Tx
	Path           string
	PreconfQueries []string
}

func (w *Writer) DatabaseExists() bool {
	return fs.IsFile(w.Path)
}

func (w *Writer) Initialize(order int, appendMode bool) error {
	var err error
	dbExisted := fs.IsFile(w.Path)
	w.database, err = openDatabase(w.Path)
	if err != nil {
		return err
	}

	if !appendMode {
		if dbExisted {
			log.Warn().Str("path", w.Path).
				Msg("database already exists, existing data will be deleted")
			if err := dropExisting(w.database, order); err != nil {
				return err
			}
		}
		if err := createSchema(w.database, order); err != nil {
			return err
		}
	}

	dbConf := w.PreconfQueries
	if len(dbConf) == 0 {
		dbConf = []string{
			"PRAGMA synchronous = OFF",
			"PRAGMA journal_mode = MEMORY",
		}
	}
	for _, q := range dbConf {
		log.Info().Str("query", q).Msg("applying database pre-configuration")
		w.database.Exec(q)
	}
	w.tx, err = w.database.Begin()
	return err
}

func (w *Writer) PrepareInsert(table string, attrs []string) (db.InsertOperation, error) {
	if w.tx == nil {
		return nil, fmt.Errorf("cannot prepare insert - no transaction active")
	}
	stmt, err := prepareInsert(w.tx, table, attrs)
	if err != nil {
		return nil, err
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
