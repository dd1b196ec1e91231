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

package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/walteh/gitdigger/pkg/clone"
	"github.com/walteh/gitdigger/pkg/record"
	"github.com/walteh/gitdigger/pkg/ref"
	"github.com/walteh/gitdigger/pkg/remote"
	"github.com/walteh/gitdigger/pkg/state"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"
)

// Options tunes one Syncer. Zero values fall back to sensible defaults in
// New.
type Options struct {
	// Concurrency bounds the worker pool. Kept small by default so a batch
	// doesn't chew through provider rate limits.
	Concurrency int

	// Clone materializes local working copies after each successful fetch.
	Clone bool

	// Backoff governs retries of rate-limited and transient failures.
	Backoff BackoffPolicy

	// Classifier resolves references; nil means the bare github.com /
	// gitlab.com classifier.
	Classifier *ref.Classifier
}

// 🎯 Failure pairs one input reference with the error that sank it.
type Failure struct {
	Ref ref.RepoReference
	Err error
}

// Synced is one successfully processed repository: its normalized record
// plus what happened to the local working copy. Action is empty when local
// clones are disabled.
type Synced struct {
	Record    record.RepoRecord
	ClonePath string
	Action    clone.Action
}

// Result is the outcome of one batch. A batch always produces a Result;
// individual failures never abort the remaining repositories.
type Result struct {
	Succeeded []Synced
	Failed    []Failure
}

// 🔁 Syncer drives the classify → fetch → normalize → persist → clone
// pipeline across a batch of references with bounded parallelism.
type Syncer struct {
	registry *remote.Registry
	store    *state.Store
	cloner   *clone.Manager
	opts     Options

	// sleep is swapped out by tests to observe retry delays.
	sleep func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(registry *remote.Registry, store *state.Store, cloner *clone.Manager, opts Options) *Syncer {
	if opts.Concurrency < 1 {
		opts.Concurrency = 4
	}
	if opts.Backoff.BaseDelay <= 0 {
		opts.Backoff.BaseDelay = 500 * time.Millisecond
	}
	if opts.Backoff.MaxAttempts < 1 {
		opts.Backoff.MaxAttempts = 4
	}
	if opts.Classifier == nil {
		opts.Classifier = &ref.Classifier{}
	}
	return &Syncer{
		registry: registry,
		store:    store,
		cloner:   cloner,
		opts:     opts,
		sleep:    sleepContext,
		locks:    map[string]*sync.Mutex{},
	}
}

// task is one deduplicated unit of work: a single identity plus every input
// reference that resolved to it.
type task struct {
	id   ref.Identity
	refs []ref.RepoReference
}

// Sync processes a batch of references. Each repository runs its pipeline
// independently; the returned Result separates what succeeded from what
// failed. The error return is reserved for a cancelled context — even then
// the partial Result is valid.
func (s *Syncer) Sync(ctx context.Context, references []ref.RepoReference) (*Result, error) {
	logger := zerolog.Ctx(ctx)
	result := &Result{}

	// Classify and collapse duplicates before any network traffic: one
	// fetch per identity, reflected for every reference that mapped to it.
	var tasks []*task
	byIdentity := map[string]*task{}
	for _, r := range references {
		classified := s.opts.Classifier.Classify(r)
		if classified.Kind == ref.Unknown {
			logger.Warn().Stringer("reference", r).Msg("no provider match for reference")
			result.Failed = append(result.Failed, Failure{
				Ref: r,
				Err: remote.NewError(remote.KindProviderError, nil, "unsupported reference %s", r),
			})
			continue
		}
		id := classified.Identity()
		key := id.String()
		if existing, ok := byIdentity[key]; ok {
			existing.refs = append(existing.refs, r)
			continue
		}
		tsk := &task{id: id, refs: []ref.RepoReference{r}}
		byIdentity[key] = tsk
		tasks = append(tasks, tsk)
	}

	logger.Info().
		Int("references", len(references)).
		Int("repositories", len(tasks)).
		Int("concurrency", s.opts.Concurrency).
		Msg("starting sync batch")

	var resultMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	for i, tsk := range tasks {
		// Cancellation is honored between repositories only; in-flight
		// pipelines run to completion.
		if ctx.Err() != nil {
			resultMu.Lock()
			for _, remaining := range tasks[i:] {
				for _, r := range remaining.refs {
					result.Failed = append(result.Failed, Failure{
						Ref: r,
						Err: errors.Errorf("batch cancelled: %w", ctx.Err()),
					})
				}
			}
			resultMu.Unlock()
			break
		}

		tsk := tsk
		g.Go(func() error {
			// An in-flight repository always runs its pipeline to completion;
			// the gate between repositories above is the only cancellation
			// point.
			synced, err := s.syncOne(context.WithoutCancel(gctx), tsk.id)

			resultMu.Lock()
			defer resultMu.Unlock()
			if err != nil {
				for _, r := range tsk.refs {
					result.Failed = append(result.Failed, Failure{Ref: r, Err: err})
				}
				return nil
			}
			result.Succeeded = append(result.Succeeded, synced)
			return nil
		})
	}

	_ = g.Wait()

	logger.Info().
		Int("succeeded", len(result.Succeeded)).
		Int("failed", len(result.Failed)).
		Msg("sync batch finished")

	if ctx.Err() != nil {
		return result, errors.Errorf("sync batch cancelled: %w", ctx.Err())
	}
	return result, nil
}

// syncOne runs the strictly sequential pipeline for a single repository:
// fetch (with retries) → normalize → persist → clone.
func (s *Syncer) syncOne(ctx context.Context, id ref.Identity) (Synced, error) {
	logger := zerolog.Ctx(ctx).With().Stringer("identity", id).Logger()
	ctx = logger.WithContext(ctx)

	provider, err := s.registry.Get(id.Kind)
	if err != nil {
		return Synced{}, errors.Errorf("resolving provider: %w", err)
	}

	var raw remote.RawRepo
	err = s.retry(ctx, func() error {
		var ferr error
		raw, ferr = provider.GetRepository(ctx, id.Owner, id.Name)
		return ferr
	})
	if err != nil {
		s.recordFailure(ctx, id, err)
		return Synced{}, err
	}

	rec, err := record.Normalize(id.Kind, raw)
	if err != nil {
		s.recordFailure(ctx, id, err)
		return Synced{}, err
	}

	// Writes for one identity are serialized; different identities may
	// commit concurrently.
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	prior, err := s.store.Get(ctx, id)
	if err != nil {
		return Synced{}, errors.Errorf("reading prior state: %w", err)
	}

	st := state.SyncState{
		Identity:    id,
		LastFetched: time.Now().UTC(),
		LastRef:     rec.SyncRef(),
		Record:      &rec,
	}
	if prior != nil {
		st.ClonePath = prior.ClonePath
	}

	synced := Synced{Record: rec}
	if s.opts.Clone && s.cloner != nil {
		path, action, cloneErr := s.cloner.EnsureLocal(ctx, rec, prior)
		if cloneErr != nil {
			st.LastError = cloneErr.Error()
			if perr := s.store.Put(ctx, st); perr != nil {
				logger.Err(perr).Msg("persisting state after clone failure")
			}
			return Synced{}, cloneErr
		}
		st.ClonePath = path
		synced.ClonePath = path
		synced.Action = action
	}

	if err := s.store.Put(ctx, st); err != nil {
		return Synced{}, errors.Errorf("persisting state: %w", err)
	}
	return synced, nil
}

// recordFailure stamps the last error onto existing state. State is created
// only by a successful fetch, so a repository that never succeeded leaves no
// record behind.
func (s *Syncer) recordFailure(ctx context.Context, id ref.Identity, cause error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	prior, err := s.store.Get(ctx, id)
	if err != nil || prior == nil {
		return
	}
	prior.LastError = cause.Error()
	if err := s.store.Put(ctx, *prior); err != nil {
		zerolog.Ctx(ctx).Err(err).Stringer("identity", id).Msg("persisting failure state")
	}
}

func (s *Syncer) lockFor(id ref.Identity) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := id.String()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
