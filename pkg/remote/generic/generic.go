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

// Package generic talks to self-hosted forges exposing a gitea-compatible
// REST API (/api/v1). Unlike the github and gitlab adapters it has no SDK;
// requests go straight through the injected HTTP client.
package generic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/walteh/gitdigger/pkg/ref"
	"github.com/walteh/gitdigger/pkg/remote"
	"gitlab.com/tozd/go/errors"

	stderrors "errors"
)

const pageSize = 50

// Options configures the adapter. BaseURL is required (there is no
// well-known host for a generic forge).
type Options struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Counter    *remote.RateCounter
}

// Provider speaks the gitea-style API directly.
type Provider struct {
	base    string
	token   string
	client  *http.Client
	counter *remote.RateCounter
}

func New(opts Options) (*Provider, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("generic provider requires a base URL")
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, errors.Errorf("parsing base URL: %w", err)
	}

	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	counter := opts.Counter
	if counter == nil {
		counter = &remote.RateCounter{}
	}

	return &Provider{
		base:    opts.BaseURL,
		token:   opts.Token,
		client:  client,
		counter: counter,
	}, nil
}

func (p *Provider) Kind() ref.ProviderKind {
	return ref.Generic
}

// apiRepo is the subset of the forge's repository payload we consume. The
// full decoded object is preserved in RawRepo.Extra for consumers that need
// provider-specific fields.
type apiRepo struct {
	Name          string    `json:"name"`
	Owner         apiOwner  `json:"owner"`
	CloneURL      string    `json:"clone_url"`
	DefaultBranch string    `json:"default_branch"`
	Description   string    `json:"description"`
	Private       *bool     `json:"private"`
	UpdatedAt     time.Time `json:"updated_at"`
	Size          int64     `json:"size"`
	StarsCount    *int      `json:"stars_count"`
	ForksCount    *int      `json:"forks_count"`
}

type apiOwner struct {
	Login string `json:"login"`
}

func (p *Provider) GetRepository(ctx context.Context, owner, name string) (remote.RawRepo, error) {
	endpoint := fmt.Sprintf("%s/api/v1/repos/%s/%s", p.base, url.PathEscape(owner), url.PathEscape(name))

	body, err := p.get(ctx, endpoint)
	if err != nil {
		return remote.RawRepo{}, err
	}
	return decodeRepo(body)
}

func (p *Provider) ListRepositories(ctx context.Context, owner string) remote.RepoIterator {
	return &repoIterator{provider: p, owner: owner, page: 1}
}

// get issues one request and maps transport/status failures onto the fetch
// error taxonomy.
func (p *Provider) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "token "+p.token)
	}

	if gerr := p.counter.Gate(time.Now()); gerr != nil {
		return nil, gerr
	}
	p.counter.Tick()
	resp, err := p.client.Do(req)
	if err != nil {
		if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
			return nil, errors.Errorf("generic request cancelled: %w", err)
		}
		return nil, remote.NewError(remote.KindTransientNetwork, err, "requesting %s", endpoint)
	}
	defer resp.Body.Close()

	p.observe(resp)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, remote.NewError(remote.KindTransientNetwork, err, "reading response from %s", endpoint)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, remote.NewError(remote.KindNotFound, nil, "%s not found", endpoint)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, remote.NewError(remote.KindAuthRequired, nil, "credentials rejected for %s", endpoint)
	case resp.StatusCode == http.StatusTooManyRequests:
		e := remote.NewError(remote.KindRateLimited, nil, "rate limited on %s", endpoint)
		if secs, perr := strconv.Atoi(resp.Header.Get("Retry-After")); perr == nil && secs > 0 {
			e = e.WithRetryAfter(time.Duration(secs) * time.Second)
		}
		return nil, e
	case resp.StatusCode >= 500:
		return nil, remote.NewError(remote.KindTransientNetwork, nil, "server error from %s", endpoint).
			WithStatus(resp.StatusCode, string(body))
	default:
		return nil, remote.NewError(remote.KindProviderError, nil, "unexpected status from %s", endpoint).
			WithStatus(resp.StatusCode, string(body))
	}
}

func (p *Provider) observe(resp *http.Response) {
	remaining, err := strconv.Atoi(resp.Header.Get("X-RateLimit-Remaining"))
	if err != nil {
		return
	}
	var resetAt time.Time
	if reset, err := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64); err == nil {
		resetAt = time.Unix(reset, 0)
	}
	p.counter.Observe(remaining, resetAt)
}

func decodeRepo(body []byte) (remote.RawRepo, error) {
	var repo apiRepo
	if err := json.Unmarshal(body, &repo); err != nil {
		return remote.RawRepo{}, remote.NewError(remote.KindMalformedResponse, err, "decoding repository payload")
	}
	return toRawRepo(body, repo), nil
}

func toRawRepo(body []byte, repo apiRepo) remote.RawRepo {
	raw := remote.RawRepo{
		Owner:         repo.Owner.Login,
		Name:          repo.Name,
		CloneURL:      repo.CloneURL,
		DefaultBranch: repo.DefaultBranch,
		Description:   repo.Description,
		Private:       repo.Private,
		Size:          repo.Size * 1024, // forge reports KiB
		Stars:         repo.StarsCount,
		Forks:         repo.ForksCount,
	}
	if !repo.UpdatedAt.IsZero() {
		t := repo.UpdatedAt
		raw.UpdatedAt = &t
	}

	// Preserve scalar fields the unified model has no slot for.
	var full map[string]any
	if err := json.Unmarshal(body, &full); err == nil {
		extra := map[string]string{}
		for k, v := range full {
			switch val := v.(type) {
			case string:
				extra[k] = val
			case float64:
				extra[k] = strconv.FormatFloat(val, 'f', -1, 64)
			case bool:
				extra[k] = strconv.FormatBool(val)
			}
		}
		if len(extra) > 0 {
			raw.Extra = extra
		}
	}
	return raw
}

// repoIterator pages with plain page numbers; the walk ends at the first
// short page.
type repoIterator struct {
	provider *Provider
	owner    string
	page     int
	buf      []remote.RawRepo
	pos      int
	done     bool
	err      error
}

func (it *repoIterator) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}
	for it.pos >= len(it.buf) {
		if it.done {
			return false
		}
		if !it.fetchPage(ctx) {
			return false
		}
	}
	it.pos++
	return true
}

func (it *repoIterator) fetchPage(ctx context.Context) bool {
	endpoint := fmt.Sprintf("%s/api/v1/users/%s/repos?page=%d&limit=%d",
		it.provider.base, url.PathEscape(it.owner), it.page, pageSize)

	body, err := it.provider.get(ctx, endpoint)
	if err != nil {
		it.err = err
		return false
	}

	var page []json.RawMessage
	if err := json.Unmarshal(body, &page); err != nil {
		it.err = remote.NewError(remote.KindMalformedResponse, err, "decoding repository listing")
		return false
	}

	it.buf = it.buf[:0]
	it.pos = 0
	for _, item := range page {
		raw, err := decodeRepo(item)
		if err != nil {
			it.err = err
			return false
		}
		it.buf = append(it.buf, raw)
	}

	if len(page) < pageSize {
		it.done = true
	} else {
		it.page++
	}
	return len(it.buf) > 0 || !it.done
}

func (it *repoIterator) Repo() remote.RawRepo {
	return it.buf[it.pos-1]
}

func (it *repoIterator) Err() error {
	return it.err
}
