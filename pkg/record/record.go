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

package record

import (
	"fmt"
	"strings"
	"time"

	"github.com/walteh/gitdigger/pkg/ref"
	"github.com/walteh/gitdigger/pkg/remote"
)

// Visibility of a repository as reported by its provider.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
	VisibilityUnknown Visibility = "unknown"
)

// 📇 RepoRecord is the unified, provider-agnostic view of one repository.
// Identity is unique within a sync run; two references resolving to the same
// identity collapse into one record, most recently fetched data winning.
type RepoRecord struct {
	Identity      ref.Identity      `json:"identity"`
	CloneURL      string            `json:"clone_url"`
	DefaultBranch string            `json:"default_branch"`
	Description   string            `json:"description,omitempty"`
	Visibility    Visibility        `json:"visibility"`
	UpdatedAt     time.Time         `json:"updated_at"`
	Size          int64             `json:"size"`
	Stars         *int              `json:"stars,omitempty"`
	Forks         *int              `json:"forks,omitempty"`
	Extra         map[string]string `json:"extra,omitempty"`
}

// SyncRef is the change marker the clone manager compares against the last
// synced state: the head commit when the provider exposed one, then the
// last-push timestamp, then the last-updated timestamp.
func (r RepoRecord) SyncRef() string {
	if sha, ok := r.Extra["head_sha"]; ok && sha != "" {
		return sha
	}
	if pushed, ok := r.Extra["pushed_at"]; ok && pushed != "" {
		return pushed
	}
	if r.UpdatedAt.IsZero() {
		return ""
	}
	return r.UpdatedAt.UTC().Format(time.RFC3339)
}

// Normalize maps a provider's raw response into the unified record shape.
// It is pure and deterministic. Missing optional fields map to zero values
// and VisibilityUnknown, never an error; the one failure mode is a raw repo
// missing its required owner or name, which surfaces as a
// malformed_response fetch error.
func Normalize(kind ref.ProviderKind, raw remote.RawRepo) (RepoRecord, error) {
	owner := strings.ToLower(strings.TrimSpace(raw.Owner))
	name := strings.ToLower(strings.TrimSpace(raw.Name))
	if owner == "" || name == "" {
		return RepoRecord{}, remote.NewError(remote.KindMalformedResponse, nil,
			"raw repository missing owner or name (owner=%q, name=%q)", raw.Owner, raw.Name)
	}

	rec := RepoRecord{
		Identity:      ref.Identity{Kind: kind, Owner: owner, Name: name},
		CloneURL:      raw.CloneURL,
		DefaultBranch: raw.DefaultBranch,
		Description:   raw.Description,
		Visibility:    VisibilityUnknown,
		Size:          raw.Size,
		Stars:         raw.Stars,
		Forks:         raw.Forks,
	}

	if raw.Private != nil {
		if *raw.Private {
			rec.Visibility = VisibilityPrivate
		} else {
			rec.Visibility = VisibilityPublic
		}
	}
	if raw.UpdatedAt != nil {
		rec.UpdatedAt = raw.UpdatedAt.UTC()
	}
	if rec.CloneURL == "" {
		rec.CloneURL = deriveCloneURL(kind, owner, name)
	}
	if len(raw.Extra) > 0 {
		rec.Extra = make(map[string]string, len(raw.Extra))
		for k, v := range raw.Extra {
			rec.Extra[k] = v
		}
	}

	return rec, nil
}

// deriveCloneURL fills in the canonical clone URL for the hosted providers
// when the response omitted one. Generic providers have no well-known host,
// so the URL stays empty and cloning is refused downstream.
func deriveCloneURL(kind ref.ProviderKind, owner, name string) string {
	switch kind {
	case ref.GitHubLike:
		return fmt.Sprintf("https://github.com/%s/%s.git", owner, name)
	case ref.GitLabLike:
		return fmt.Sprintf("https://gitlab.com/%s/%s.git", owner, name)
	}
	return ""
}
