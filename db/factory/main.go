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

package factory

import (
	"fmt"

	"github.com/czcorpus/ngramlm/db"
	"github.com/czcorpus/ngramlm/db/mysql"
	"github.com/czcorpus/ngramlm/db/sqlite"
)

// NewDatabaseWriter creates a model export writer matching the
// configured database type.
func NewDatabaseWriter(conf db.Conf) (db.Writer, error) {
	switch conf.Type {
	case "sqlite":
		return &sqlite.Writer{
			Path:           conf.Name,
			PreconfQueries: conf.PreconfQueries,
		}, nil
	case "mysql":
		return &mysql.Writer{
			Conf:           conf,
			PreconfQueries: conf.PreconfQueries,
		}, nil
	}
	return nil, fmt.Errorf("unsupported database type %q", conf.Type)
}
