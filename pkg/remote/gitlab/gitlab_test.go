package gitlab

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/gitdigger/pkg/ref"
	"github.com/walteh/gitdigger/pkg/remote"
)

const projectJSON = `{
	"id": 278964,
	"path": "widgets",
	"path_with_namespace": "acme/widgets",
	"http_url_to_repo": "https://gitlab.com/acme/widgets.git",
	"default_branch": "main",
	"description": "widget factory",
	"visibility": "public",
	"last_activity_at": "2025-03-14T09:26:53Z",
	"star_count": 41,
	"forks_count": 7,
	"statistics": {"repository_size": 2048}
}`

func newTestProvider(t *testing.T, handler http.Handler) (*Provider, *remote.RateCounter) {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	counter := &remote.RateCounter{}
	p, err := New(Options{BaseURL: srv.URL, Counter: counter})
	require.NoError(t, err, "creating provider")
	return p, counter
}

func TestKind(t *testing.T) {
	p, _ := newTestProvider(t, http.NotFoundHandler())
	assert.Equal(t, ref.GitLabLike, p.Kind())
}

func TestGetRepository(t *testing.T) {
	t.Run("maps_fields", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Contains(t, r.URL.EscapedPath(), "/projects/acme%2Fwidgets")
			w.Header().Set("RateLimit-Remaining", "1999")
			fmt.Fprint(w, projectJSON)
		})
		p, counter := newTestProvider(t, handler)

		raw, err := p.GetRepository(context.Background(), "acme", "widgets")
		require.NoError(t, err)

		assert.Equal(t, "acme", raw.Owner)
		assert.Equal(t, "widgets", raw.Name)
		assert.Equal(t, "https://gitlab.com/acme/widgets.git", raw.CloneURL)
		assert.Equal(t, "main", raw.DefaultBranch)
		require.NotNil(t, raw.Private)
		assert.False(t, *raw.Private)
		assert.Equal(t, int64(2048), raw.Size)
		require.NotNil(t, raw.Stars)
		assert.Equal(t, 41, *raw.Stars)
		assert.Equal(t, "public", raw.Extra["visibility"])
		assert.Equal(t, "278964", raw.Extra["project_id"])
		require.NotNil(t, raw.UpdatedAt)
		assert.Equal(t, time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC), raw.UpdatedAt.UTC())

		snap := counter.Snapshot()
		assert.Equal(t, int64(1), snap.Requests)
		assert.Equal(t, 1999, snap.Remaining)
	})

	t.Run("internal_visibility_is_private", func(t *testing.T) {
		p, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, strings.Replace(projectJSON, `"public"`, `"internal"`, 1))
		}))
		raw, err := p.GetRepository(context.Background(), "acme", "widgets")
		require.NoError(t, err)
		require.NotNil(t, raw.Private)
		assert.True(t, *raw.Private)
	})

	t.Run("404_is_not_found", func(t *testing.T) {
		p, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"message": "404 Project Not Found"}`, http.StatusNotFound)
		}))
		_, err := p.GetRepository(context.Background(), "acme", "gone")
		require.Error(t, err)
		assert.Equal(t, remote.KindNotFound, remote.KindOf(err))
	})

	t.Run("401_is_auth_required", func(t *testing.T) {
		p, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"message": "401 Unauthorized"}`, http.StatusUnauthorized)
		}))
		_, err := p.GetRepository(context.Background(), "acme", "private")
		require.Error(t, err)
		assert.Equal(t, remote.KindAuthRequired, remote.KindOf(err))
	})

	t.Run("429_carries_retry_after", func(t *testing.T) {
		p, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "42")
			http.Error(w, `{"message": "rate limited"}`, http.StatusTooManyRequests)
		}))
		_, err := p.GetRepository(context.Background(), "acme", "widgets")
		require.Error(t, err)
		assert.Equal(t, remote.KindRateLimited, remote.KindOf(err))

		hint, ok := remote.RetryAfterHint(err)
		require.True(t, ok)
		assert.Equal(t, 42*time.Second, hint)
	})

	t.Run("exhausted_quota_short_circuits", func(t *testing.T) {
		requests := 0
		p, counter := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests++
		}))
		counter.Observe(0, time.Now().Add(time.Hour))

		_, err := p.GetRepository(context.Background(), "acme", "widgets")
		assert.Equal(t, remote.KindRateLimited, remote.KindOf(err))

		_, ok := remote.RetryAfterHint(err)
		require.True(t, ok)
		assert.Equal(t, 0, requests, "no request spent while the shared quota is exhausted")
	})
}

func TestListRepositories(t *testing.T) {
	t.Run("walks_user_pages", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Contains(t, r.URL.Path, "/users/acme/projects")
			switch r.URL.Query().Get("page") {
			case "", "1":
				w.Header().Set("X-Next-Page", "2")
				w.Header().Set("X-Page", "1")
				fmt.Fprint(w, `[`+projectJSON+`]`)
			case "2":
				w.Header().Set("X-Page", "2")
				fmt.Fprint(w, `[`+strings.Replace(projectJSON, "widgets", "gadgets", -1)+`]`)
			default:
				t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
			}
		})
		p, counter := newTestProvider(t, handler)

		it := p.ListRepositories(context.Background(), "acme")
		var names []string
		for it.Next(context.Background()) {
			names = append(names, it.Repo().Name)
		}
		require.NoError(t, it.Err())
		assert.Equal(t, []string{"widgets", "gadgets"}, names)
		assert.Equal(t, int64(2), counter.Snapshot().Requests)
	})

	t.Run("falls_back_to_group_listing", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.Contains(r.URL.Path, "/users/") {
				http.Error(w, `{"message": "404 User Not Found"}`, http.StatusNotFound)
				return
			}
			require.Contains(t, r.URL.Path, "/groups/acme/projects")
			fmt.Fprint(w, `[`+projectJSON+`]`)
		})
		p, _ := newTestProvider(t, handler)

		it := p.ListRepositories(context.Background(), "acme")
		require.True(t, it.Next(context.Background()))
		assert.Equal(t, "widgets", it.Repo().Name)
		assert.False(t, it.Next(context.Background()))
		require.NoError(t, it.Err())
	})

	t.Run("error_surfaces_through_err", func(t *testing.T) {
		p, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"message": "boom"}`, http.StatusBadGateway)
		}))
		it := p.ListRepositories(context.Background(), "acme")
		assert.False(t, it.Next(context.Background()))
		require.Error(t, it.Err())
		assert.Equal(t, remote.KindProviderError, remote.KindOf(it.Err()))
	})
}
