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
	"bytes"
	"context"
	"time"

	"github.com/cyclicism/crunch/core"
	"github.com/cyclicism/crunch/storage"
	"github.com/dgraph-io/badger/v4"
)

// CheckpointRepository implements storage.CheckpointRepository for BadgerDB.
type CheckpointRepository struct {
	backend *Backend
}

var _ storage.CheckpointRepository = (*CheckpointRepository)(nil)

type checkpoint struct {
	Year        int       `json:"year"`
	Month       int       `json:"month"`
	CompletedAt time.Time `json:"completed_at"`
}

// NewCheckpointRepository creates a new CheckpointRepository.
func NewCheckpointRepository(backend *Backend) *CheckpointRepository {
	return &CheckpointRepository{
		backend: backend,
	}
}

// MarkComplete records that job finished key.
func (r *CheckpointRepository) MarkComplete(ctx context.Context, job string, key core.PartitionKey) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		value := checkpoint{Year: key.Year, Month: key.Month, CompletedAt: time.Now().UTC()}
		return putJSON(tx, makeCheckpointKey(job, key), value)
	}, true)
}

// Completed returns every partition recorded for job.
func (r *CheckpointRepository) Completed(ctx context.Context, job string) (map[core.PartitionKey]bool, error) {
	done := make(map[core.PartitionKey]bool)
	prefix := makeCheckpointPrefix(job)
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefix(tx, prefix, func(key, val []byte) (bool, error) {
			// skip jobs nested under this one, such as "index:Snippet"
			if bytes.IndexByte(key[len(prefix):], ':') >= 0 {
				return true, nil
			}
			var c checkpoint
			if err := decodeJSON(val, &c); err != nil {
				return false, err
			}
			done[core.PartitionKey{Year: c.Year, Month: c.Month}] = true
			return true, nil
		})
	}, false)
	return done, err
}
