// Copyright 2025 walteh LLC
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

package state

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/walteh/gitdigger/pkg/record"
	"github.com/walteh/gitdigger/pkg/ref"
	"gitlab.com/tozd/go/errors"
	"go.etcd.io/bbolt"
)

const bucketSyncState = "sync_state" // key: kind/owner/name -> SyncState JSON

// SyncState is the per-repository bookkeeping kept between runs. It is
// created on the first successful fetch and updated on every later attempt,
// success or failure. It is never removed implicitly; Delete is an explicit
// caller action, so the history of past failures stays inspectable.
type SyncState struct {
	Identity    ref.Identity       `json:"identity"`
	LastFetched time.Time          `json:"last_fetched"`
	LastRef     string             `json:"last_ref,omitempty"`
	ClonePath   string             `json:"clone_path,omitempty"`
	LastError   string             `json:"last_error,omitempty"`
	Record      *record.RepoRecord `json:"record,omitempty"`
}

// 💾 Store persists SyncState records in a bbolt database. Writes are atomic
// per identity (bbolt transactions), last-writer-wins, and the file survives
// process restarts.
type Store struct {
	db *bbolt.DB
}

// Open opens (or creates) the state database at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Errorf("opening state database %s: %w", path, err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketSyncState))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, errors.Errorf("creating state bucket: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the stored state for an identity, or nil when none exists.
func (s *Store) Get(ctx context.Context, id ref.Identity) (*SyncState, error) {
	var st *SyncState
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketSyncState)).Get([]byte(id.String()))
		if data == nil {
			return nil
		}
		var decoded SyncState
		if err := json.Unmarshal(data, &decoded); err != nil {
			return errors.Errorf("decoding state for %s: %w", id, err)
		}
		st = &decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Put upserts the state for its identity.
func (s *Store) Put(ctx context.Context, st SyncState) error {
	if st.Identity.IsZero() {
		return errors.New("sync state has no identity")
	}

	data, err := json.Marshal(st)
	if err != nil {
		return errors.Errorf("encoding state for %s: %w", st.Identity, err)
	}

	zerolog.Ctx(ctx).Debug().
		Stringer("identity", st.Identity).
		Str("last_ref", st.LastRef).
		Msg("writing sync state")

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketSyncState)).Put([]byte(st.Identity.String()), data)
	})
}

// All returns every stored state, ordered by identity key.
func (s *Store) All(ctx context.Context) ([]SyncState, error) {
	var out []SyncState
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketSyncState)).ForEach(func(k, v []byte) error {
			var st SyncState
			if err := json.Unmarshal(v, &st); err != nil {
				return errors.Errorf("decoding state for %s: %w", string(k), err)
			}
			out = append(out, st)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the state for an identity. The library never calls this on
// its own; removal is always an explicit caller action.
func (s *Store) Delete(ctx context.Context, id ref.Identity) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketSyncState)).Delete([]byte(id.String()))
	})
}
