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

package remote

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/walteh/gitdigger/pkg/ref"
	"gitlab.com/tozd/go/errors"
)

// 📦 RawRepo is a provider's native view of one repository, pre-normalization.
// Owner and Name are the only required fields; everything else is best-effort.
// Extra preserves provider-specific fields the unified model has no slot for.
type RawRepo struct {
	Owner         string
	Name          string
	CloneURL      string
	DefaultBranch string
	Description   string
	Private       *bool
	UpdatedAt     *time.Time
	Size          int64
	Stars         *int
	Forks         *int
	Extra         map[string]string
}

// 🔌 Provider is the capability interface every hosting adapter implements.
// Implementations are stateless and safe to share across concurrent sync
// workers; all outbound traffic goes through the HTTP client injected at
// construction time.
type Provider interface {
	// Kind returns the provider kind this adapter serves.
	Kind() ref.ProviderKind

	// ListRepositories starts a fresh lazy paginated walk over the owner's
	// repositories. Each call restarts from the first page.
	ListRepositories(ctx context.Context, owner string) RepoIterator

	// GetRepository fetches a single repository. Failures carry one of the
	// Kind* error kinds (NotFound, RateLimited, AuthRequired,
	// TransientNetwork, ProviderError).
	GetRepository(ctx context.Context, owner, name string) (RawRepo, error)
}

// RepoIterator walks a paginated repository listing one item at a time,
// fetching pages on demand. The pagination cursor stays opaque inside the
// adapter. Usage follows the bufio.Scanner shape:
//
//	it := p.ListRepositories(ctx, "acme")
//	for it.Next(ctx) {
//		use(it.Repo())
//	}
//	if err := it.Err(); err != nil { ... }
type RepoIterator interface {
	Next(ctx context.Context) bool
	Repo() RawRepo
	Err() error
}

// 🗺️ Registry holds the configured provider adapters, keyed by kind.
// Adding a provider means registering one more implementation; nothing in
// the orchestrator changes.
type Registry struct {
	mu        sync.RWMutex
	providers map[ref.ProviderKind]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[ref.ProviderKind]Provider)}
}

// Register adds (or replaces) the adapter for its kind.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Kind()] = p
}

// Get returns the adapter for a kind, or an error naming the registered
// options when none matches.
func (r *Registry) Get(kind ref.ProviderKind) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[kind]
	if !ok {
		options := make([]string, 0, len(r.providers))
		for k := range r.providers {
			options = append(options, k.String())
		}
		sort.Strings(options)
		return nil, errors.Errorf("no provider registered for %s, options: %s",
			kind, strings.Join(options, ", "))
	}
	return p, nil
}

// Kinds returns the registered kinds, sorted for stable output.
func (r *Registry) Kinds() []ref.ProviderKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]ref.ProviderKind, 0, len(r.providers))
	for k := range r.providers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// SliceIterator serves a fixed set of repositories. Adapters use it for
// single-page results; tests use it as a canned listing.
type SliceIterator struct {
	repos []RawRepo
	pos   int
	err   error
}

func NewSliceIterator(repos []RawRepo) *SliceIterator {
	return &SliceIterator{repos: repos}
}

// NewErrIterator returns an iterator that fails immediately.
func NewErrIterator(err error) *SliceIterator {
	return &SliceIterator{err: err}
}

func (it *SliceIterator) Next(ctx context.Context) bool {
	if it.err != nil || it.pos >= len(it.repos) {
		return false
	}
	it.pos++
	return true
}

func (it *SliceIterator) Repo() RawRepo {
	return it.repos[it.pos-1]
}

func (it *SliceIterator) Err() error {
	return it.err
}
