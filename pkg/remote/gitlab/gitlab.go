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

package gitlab

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/walteh/gitdigger/pkg/ref"
	"github.com/walteh/gitdigger/pkg/remote"
	"github.com/xanzy/go-gitlab"
	"gitlab.com/tozd/go/errors"

	stderrors "errors"
)

const pageSize = 100

// Options configures the adapter. BaseURL selects a self-managed install;
// empty means gitlab.com.
type Options struct {
	Token      string
	BaseURL    string
	HTTPClient *http.Client
	Counter    *remote.RateCounter
}

// 🦊 Provider adapts the GitLab REST API to the provider capability
// interface.
type Provider struct {
	client  *gitlab.Client
	counter *remote.RateCounter
}

func New(opts Options) (*Provider, error) {
	// Retry policy lives in the sync orchestrator; disable the client's own.
	clientOpts := []gitlab.ClientOptionFunc{gitlab.WithoutRetries()}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, gitlab.WithBaseURL(opts.BaseURL))
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, gitlab.WithHTTPClient(opts.HTTPClient))
	}

	client, err := gitlab.NewClient(opts.Token, clientOpts...)
	if err != nil {
		return nil, errors.Errorf("creating gitlab client: %w", err)
	}

	counter := opts.Counter
	if counter == nil {
		counter = &remote.RateCounter{}
	}

	return &Provider{client: client, counter: counter}, nil
}

func (p *Provider) Kind() ref.ProviderKind {
	return ref.GitLabLike
}

func (p *Provider) ListRepositories(ctx context.Context, owner string) remote.RepoIterator {
	return &repoIterator{provider: p, owner: owner, page: 1}
}

func (p *Provider) GetRepository(ctx context.Context, owner, name string) (remote.RawRepo, error) {
	if err := p.counter.Gate(time.Now()); err != nil {
		return remote.RawRepo{}, err
	}
	p.counter.Tick()
	project, resp, err := p.client.Projects.GetProject(owner+"/"+name, &gitlab.GetProjectOptions{
		Statistics: gitlab.Ptr(true),
	}, gitlab.WithContext(ctx))
	p.observe(resp)
	if err != nil {
		return remote.RawRepo{}, mapError(err, "getting project %s/%s", owner, name)
	}
	return toRawRepo(project), nil
}

func (p *Provider) observe(resp *gitlab.Response) {
	if resp == nil || resp.Response == nil {
		return
	}
	remaining, err := strconv.Atoi(resp.Header.Get("RateLimit-Remaining"))
	if err != nil {
		return
	}
	var resetAt time.Time
	if reset, err := strconv.ParseInt(resp.Header.Get("RateLimit-Reset"), 10, 64); err == nil {
		resetAt = time.Unix(reset, 0)
	}
	p.counter.Observe(remaining, resetAt)
}

// repoIterator walks an owner's projects. GitLab owners can be users or
// groups; the walk tries the user listing first and falls back to the group
// listing on 404.
type repoIterator struct {
	provider *Provider
	owner    string
	page     int
	asGroup  bool
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
	listOpts := gitlab.ListOptions{Page: it.page, PerPage: pageSize}

	var (
		projects []*gitlab.Project
		resp     *gitlab.Response
		err      error
	)
	if gerr := it.provider.counter.Gate(time.Now()); gerr != nil {
		it.err = gerr
		return false
	}
	it.provider.counter.Tick()
	if it.asGroup {
		projects, resp, err = it.provider.client.Groups.ListGroupProjects(it.owner,
			&gitlab.ListGroupProjectsOptions{ListOptions: listOpts}, gitlab.WithContext(ctx))
	} else {
		projects, resp, err = it.provider.client.Projects.ListUserProjects(it.owner,
			&gitlab.ListProjectsOptions{ListOptions: listOpts}, gitlab.WithContext(ctx))
	}
	it.provider.observe(resp)

	if err != nil {
		// An owner that is a group 404s on the user listing.
		if !it.asGroup && it.page == 1 && isNotFound(err) {
			it.asGroup = true
			return it.fetchPage(ctx)
		}
		it.err = mapError(err, "listing projects for %s", it.owner)
		return false
	}

	it.buf = it.buf[:0]
	it.pos = 0
	for _, project := range projects {
		it.buf = append(it.buf, toRawRepo(project))
	}

	if resp == nil || resp.NextPage == 0 {
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

func toRawRepo(project *gitlab.Project) remote.RawRepo {
	owner, name := splitNamespace(project)
	stars := project.StarCount
	forks := project.ForksCount

	raw := remote.RawRepo{
		Owner:         owner,
		Name:          name,
		CloneURL:      project.HTTPURLToRepo,
		DefaultBranch: project.DefaultBranch,
		Description:   project.Description,
		Stars:         &stars,
		Forks:         &forks,
		Extra:         map[string]string{},
	}
	if project.Visibility != "" {
		private := project.Visibility != gitlab.PublicVisibility
		raw.Private = &private
		raw.Extra["visibility"] = string(project.Visibility)
	}
	if project.LastActivityAt != nil {
		t := *project.LastActivityAt
		raw.UpdatedAt = &t
	}
	if project.Statistics != nil {
		raw.Size = project.Statistics.RepositorySize
	}
	if project.WebURL != "" {
		raw.Extra["html_url"] = project.WebURL
	}
	if project.ID != 0 {
		raw.Extra["project_id"] = strconv.Itoa(project.ID)
	}
	return raw
}

func splitNamespace(project *gitlab.Project) (owner, name string) {
	full := project.PathWithNamespace
	if idx := strings.LastIndex(full, "/"); idx != -1 {
		return full[:idx], full[idx+1:]
	}
	return full, project.Path
}

// isNotFound matches both shapes go-gitlab uses for a 404: the
// gitlab.ErrNotFound sentinel and a raw 404 ErrorResponse.
func isNotFound(err error) bool {
	if stderrors.Is(err, gitlab.ErrNotFound) {
		return true
	}
	var respErr *gitlab.ErrorResponse
	return stderrors.As(err, &respErr) &&
		respErr.Response != nil &&
		respErr.Response.StatusCode == http.StatusNotFound
}

// mapError translates go-gitlab failures into the fetch-error taxonomy.
func mapError(err error, format string, args ...any) error {
	if stderrors.Is(err, gitlab.ErrNotFound) {
		return remote.NewError(remote.KindNotFound, err, format, args...)
	}

	var respErr *gitlab.ErrorResponse
	if stderrors.As(err, &respErr) && respErr.Response != nil {
		status := respErr.Response.StatusCode
		switch status {
		case http.StatusNotFound:
			return remote.NewError(remote.KindNotFound, err, format, args...)
		case http.StatusUnauthorized, http.StatusForbidden:
			return remote.NewError(remote.KindAuthRequired, err, format, args...)
		case http.StatusTooManyRequests:
			e := remote.NewError(remote.KindRateLimited, err, format, args...)
			if secs, perr := strconv.Atoi(respErr.Response.Header.Get("Retry-After")); perr == nil && secs > 0 {
				e = e.WithRetryAfter(time.Duration(secs) * time.Second)
			}
			return e
		default:
			return remote.NewError(remote.KindProviderError, err, format, args...).
				WithStatus(status, respErr.Message)
		}
	}

	var urlErr *url.Error
	if stderrors.As(err, &urlErr) {
		return remote.NewError(remote.KindTransientNetwork, err, format, args...)
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Errorf("gitlab request cancelled: %w", err)
	}

	return remote.NewError(remote.KindProviderError, err, format, args...)
}
