// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package badger

import (
	"context"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/threatgraph/core"
)

// RunRepository stores run summaries.
type RunRepository struct {
	backend *Backend
}

// NewRunRepository creates a new RunRepository.
func NewRunRepository(backend *Backend) *RunRepository {
	return &RunRepository{
		backend: backend,
	}
}

// SaveRun persists a run summary. Saving the same run again replaces it.
func (r *RunRepository) SaveRun(ctx context.Context, run *core.RunRecord) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		return classify(tx.Set(makeRunKey(run), marshal(runMUS, *run)))
	}, true)
}

// ListRuns returns up to limit run summaries, newest first.
// A limit of 0 or less returns every run.
func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]*core.RunRecord, error) {
	var runs []*core.RunRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(runPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		// Reverse iteration must seek past the end of the prefix.
		seek := append([]byte(runPrefix), 0xff)
		for iter.Seek(seek); iter.Valid(); iter.Next() {
			if limit > 0 && len(runs) >= limit {
				break
			}
			err := iter.Item().Value(func(val []byte) error {
				run, err := unmarshal(runMUS, val)
				if err != nil {
					return err
				}
				runs = append(runs, &run)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)

	return runs, err
}
