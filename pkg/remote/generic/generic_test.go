package generic

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/gitdigger/pkg/ref"
	"github.com/walteh/gitdigger/pkg/remote"
)

const repoJSON = `{
	"name": "tools",
	"owner": {"login": "infra"},
	"clone_url": "https://git.example.org/infra/tools.git",
	"default_branch": "main",
	"description": "infra tooling",
	"private": true,
	"updated_at": "2025-03-14T09:26:53Z",
	"size": 2,
	"stars_count": 3,
	"forks_count": 1,
	"archived": false
}`

func newTestProvider(t *testing.T, handler http.Handler) (*Provider, *remote.RateCounter) {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	counter := &remote.RateCounter{}
	p, err := New(Options{BaseURL: srv.URL, Token: "sekrit", Counter: counter})
	require.NoError(t, err, "creating provider")
	return p, counter
}

func TestNew(t *testing.T) {
	t.Run("requires_base_url", func(t *testing.T) {
		_, err := New(Options{})
		require.Error(t, err)
	})

	t.Run("kind_is_generic", func(t *testing.T) {
		p, _ := newTestProvider(t, http.NotFoundHandler())
		assert.Equal(t, ref.Generic, p.Kind())
	})
}

func TestGetRepository(t *testing.T) {
	t.Run("maps_fields_and_sends_token", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/repos/infra/tools", r.URL.Path)
			assert.Equal(t, "token sekrit", r.Header.Get("Authorization"))
			w.Header().Set("X-RateLimit-Remaining", "99")
			fmt.Fprint(w, repoJSON)
		})
		p, counter := newTestProvider(t, handler)

		raw, err := p.GetRepository(context.Background(), "infra", "tools")
		require.NoError(t, err)

		assert.Equal(t, "infra", raw.Owner)
		assert.Equal(t, "tools", raw.Name)
		assert.Equal(t, "https://git.example.org/infra/tools.git", raw.CloneURL)
		require.NotNil(t, raw.Private)
		assert.True(t, *raw.Private)
		assert.Equal(t, int64(2048), raw.Size)
		require.NotNil(t, raw.UpdatedAt)
		assert.Equal(t, time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC), raw.UpdatedAt.UTC())
		assert.Equal(t, "false", raw.Extra["archived"], "unknown fields preserved")

		assert.Equal(t, 99, counter.Snapshot().Remaining)
	})

	t.Run("404_is_not_found", func(t *testing.T) {
		p, _ := newTestProvider(t, http.NotFoundHandler())
		_, err := p.GetRepository(context.Background(), "infra", "gone")
		assert.Equal(t, remote.KindNotFound, remote.KindOf(err))
	})

	t.Run("403_is_auth_required", func(t *testing.T) {
		p, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "forbidden", http.StatusForbidden)
		}))
		_, err := p.GetRepository(context.Background(), "infra", "secret")
		assert.Equal(t, remote.KindAuthRequired, remote.KindOf(err))
	})

	t.Run("429_carries_retry_after", func(t *testing.T) {
		p, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "17")
			http.Error(w, "slow down", http.StatusTooManyRequests)
		}))
		_, err := p.GetRepository(context.Background(), "infra", "tools")
		assert.Equal(t, remote.KindRateLimited, remote.KindOf(err))

		hint, ok := remote.RetryAfterHint(err)
		require.True(t, ok)
		assert.Equal(t, 17*time.Second, hint)
	})

	t.Run("5xx_is_transient", func(t *testing.T) {
		p, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad gateway", http.StatusBadGateway)
		}))
		_, err := p.GetRepository(context.Background(), "infra", "tools")
		assert.Equal(t, remote.KindTransientNetwork, remote.KindOf(err))
		assert.True(t, remote.IsRetryable(err))
	})

	t.Run("garbage_payload_is_malformed", func(t *testing.T) {
		p, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "<html>not json</html>")
		}))
		_, err := p.GetRepository(context.Background(), "infra", "tools")
		assert.Equal(t, remote.KindMalformedResponse, remote.KindOf(err))
	})

	t.Run("exhausted_quota_short_circuits", func(t *testing.T) {
		requests := 0
		p, counter := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests++
		}))
		counter.Observe(0, time.Now().Add(time.Hour))

		_, err := p.GetRepository(context.Background(), "infra", "tools")
		assert.Equal(t, remote.KindRateLimited, remote.KindOf(err))

		_, ok := remote.RetryAfterHint(err)
		require.True(t, ok)
		assert.Equal(t, 0, requests, "no request spent while the shared quota is exhausted")
	})

	t.Run("connection_refused_is_transient", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close() // dead endpoint
		p, err := New(Options{BaseURL: srv.URL})
		require.NoError(t, err)

		_, err = p.GetRepository(context.Background(), "infra", "tools")
		assert.Equal(t, remote.KindTransientNetwork, remote.KindOf(err))
	})
}

func TestListRepositories(t *testing.T) {
	t.Run("pages_until_short_page", func(t *testing.T) {
		var pagesServed []string
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/users/infra/repos", r.URL.Path)
			page := r.URL.Query().Get("page")
			pagesServed = append(pagesServed, page)
			if page == "1" {
				// full page keeps the walk going
				fmt.Fprint(w, "[")
				for i := 0; i < pageSize; i++ {
					if i > 0 {
						fmt.Fprint(w, ",")
					}
					fmt.Fprintf(w, `{"name": "repo-%03d", "owner": {"login": "infra"}}`, i)
				}
				fmt.Fprint(w, "]")
				return
			}
			fmt.Fprint(w, `[{"name": "last", "owner": {"login": "infra"}}]`)
		})
		p, _ := newTestProvider(t, handler)

		it := p.ListRepositories(context.Background(), "infra")
		count := 0
		var lastName string
		for it.Next(context.Background()) {
			count++
			lastName = it.Repo().Name
		}
		require.NoError(t, it.Err())
		assert.Equal(t, pageSize+1, count)
		assert.Equal(t, "last", lastName)
		assert.Equal(t, []string{"1", "2"}, pagesServed)
	})

	t.Run("empty_listing", func(t *testing.T) {
		p, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `[]`)
		}))
		it := p.ListRepositories(context.Background(), "infra")
		assert.False(t, it.Next(context.Background()))
		require.NoError(t, it.Err())
	})
}
