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

package github

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/google/go-github/v60/github"
	"github.com/walteh/gitdigger/pkg/ref"
	"github.com/walteh/gitdigger/pkg/remote"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/oauth2"

	stderrors "errors"
)

const pageSize = 100

// Options configures the adapter. HTTPClient is the injected transport
// capability; Counter is the batch-wide rate counter shared with every
// worker talking to this provider.
type Options struct {
	Token      string
	BaseURL    string // enterprise installs; empty means github.com
	HTTPClient *http.Client
	Counter    *remote.RateCounter
}

// 🐙 Provider adapts the GitHub REST API to the provider capability
// interface. It holds no mutable state beyond the shared rate counter and is
// safe for concurrent use.
type Provider struct {
	client  *github.Client
	counter *remote.RateCounter
}

func New(opts Options) (*Provider, error) {
	hc := opts.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	if opts.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token})
		tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, hc)
		hc = oauth2.NewClient(tokenCtx, ts)
	}

	client := github.NewClient(hc)
	if opts.BaseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(opts.BaseURL, opts.BaseURL)
		if err != nil {
			return nil, errors.Errorf("setting enterprise base URL: %w", err)
		}
	}

	counter := opts.Counter
	if counter == nil {
		counter = &remote.RateCounter{}
	}

	return &Provider{client: client, counter: counter}, nil
}

func (p *Provider) Kind() ref.ProviderKind {
	return ref.GitHubLike
}

func (p *Provider) ListRepositories(ctx context.Context, owner string) remote.RepoIterator {
	return &repoIterator{provider: p, owner: owner, page: 1}
}

func (p *Provider) GetRepository(ctx context.Context, owner, name string) (remote.RawRepo, error) {
	if err := p.counter.Gate(time.Now()); err != nil {
		return remote.RawRepo{}, err
	}
	p.counter.Tick()
	repo, resp, err := p.client.Repositories.Get(ctx, owner, name)
	p.observe(resp)
	if err != nil {
		return remote.RawRepo{}, mapError(err, "getting repository %s/%s", owner, name)
	}
	return toRawRepo(repo), nil
}

func (p *Provider) observe(resp *github.Response) {
	if resp == nil {
		return
	}
	p.counter.Observe(resp.Rate.Remaining, resp.Rate.Reset.Time)
}

// repoIterator pages through a user's or organization's repositories using
// the API's NextPage cursor.
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
	if err := it.provider.counter.Gate(time.Now()); err != nil {
		it.err = err
		return false
	}
	it.provider.counter.Tick()
	repos, resp, err := it.provider.client.Repositories.List(ctx, it.owner, &github.RepositoryListOptions{
		ListOptions: github.ListOptions{Page: it.page, PerPage: pageSize},
	})
	it.provider.observe(resp)
	if err != nil {
		it.err = mapError(err, "listing repositories for %s", it.owner)
		return false
	}

	it.buf = it.buf[:0]
	it.pos = 0
	for _, r := range repos {
		it.buf = append(it.buf, toRawRepo(r))
	}

	if resp.NextPage == 0 {
		it.done = true
	} else {
		it.page = resp.NextPage
	}
	return len(it.buf) > 0 || !it.done
}

func (it *repoIterator) Repo() remote.RawRepo {
	return it.buf[it.pos-1]
}

func (it *repoIterator) Err() error {
	return it.err
}

func toRawRepo(r *github.Repository) remote.RawRepo {
	private := r.GetPrivate()
	stars := r.GetStargazersCount()
	forks := r.GetForksCount()

	raw := remote.RawRepo{
		Owner:         r.GetOwner().GetLogin(),
		Name:          r.GetName(),
		CloneURL:      r.GetCloneURL(),
		DefaultBranch: r.GetDefaultBranch(),
		Description:   r.GetDescription(),
		Private:       &private,
		Size:          int64(r.GetSize()) * 1024, // API reports KiB
		Stars:         &stars,
		Forks:         &forks,
		Extra:         map[string]string{},
	}
	if ts := r.GetUpdatedAt(); !ts.IsZero() {
		t := ts.Time
		raw.UpdatedAt = &t
	}
	if ts := r.GetPushedAt(); !ts.IsZero() {
		raw.Extra["pushed_at"] = ts.Time.UTC().Format(time.RFC3339)
	}
	if lang := r.GetLanguage(); lang != "" {
		raw.Extra["language"] = lang
	}
	if htmlURL := r.GetHTMLURL(); htmlURL != "" {
		raw.Extra["html_url"] = htmlURL
	}
	return raw
}

// mapError translates go-github failures into the fetch-error taxonomy.
func mapError(err error, format string, args ...any) error {
	var rateErr *github.RateLimitError
	if stderrors.As(err, &rateErr) {
		hint := time.Until(rateErr.Rate.Reset.Time)
		if hint < 0 {
			hint = 0
		}
		return remote.NewError(remote.KindRateLimited, err, format, args...).WithRetryAfter(hint)
	}

	var abuseErr *github.AbuseRateLimitError
	if stderrors.As(err, &abuseErr) {
		e := remote.NewError(remote.KindRateLimited, err, format, args...)
		if abuseErr.RetryAfter != nil {
			e = e.WithRetryAfter(*abuseErr.RetryAfter)
		}
		return e
	}

	var respErr *github.ErrorResponse
	if stderrors.As(err, &respErr) && respErr.Response != nil {
		switch respErr.Response.StatusCode {
		case http.StatusNotFound:
			return remote.NewError(remote.KindNotFound, err, format, args...)
		case http.StatusUnauthorized, http.StatusForbidden:
			return remote.NewError(remote.KindAuthRequired, err, format, args...)
		default:
			return remote.NewError(remote.KindProviderError, err, format, args...).
				WithStatus(respErr.Response.StatusCode, respErr.Message)
		}
	}

	var urlErr *url.Error
	if stderrors.As(err, &urlErr) {
		return remote.NewError(remote.KindTransientNetwork, err, format, args...)
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Errorf("github request cancelled: %w", err)
	}

	return remote.NewError(remote.KindProviderError, err, format, args...)
}
