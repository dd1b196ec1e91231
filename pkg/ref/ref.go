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

package ref

import (
	"fmt"
	"regexp"
	"strings"

	"gitlab.com/tozd/go/errors"
)

// 🏷️ ProviderKind identifies which hosting service a reference belongs to
type ProviderKind int

const (
	Unknown ProviderKind = iota
	GitHubLike
	GitLabLike
	Generic
)

var kindNames = map[ProviderKind]string{
	Unknown:    "unknown",
	GitHubLike: "github",
	GitLabLike: "gitlab",
	Generic:    "generic",
}

func (k ProviderKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler so identities survive JSON round-trips.
func (k ProviderKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *ProviderKind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind parses a provider kind name. Accepts the aliases used in config
// files ("github-like", "gitlab-like") alongside the canonical names.
func ParseKind(s string) (ProviderKind, error) {
	switch strings.ToLower(strings.TrimSuffix(s, "-like")) {
	case "github":
		return GitHubLike, nil
	case "gitlab":
		return GitLabLike, nil
	case "generic":
		return Generic, nil
	case "unknown", "":
		return Unknown, nil
	}
	return Unknown, errors.Errorf("unknown provider kind: %q", s)
}

// 📦 RepoReference is a caller-supplied pointer at one repository: either a
// full URL, or an owner/name pair with an optional provider hint.
type RepoReference struct {
	URL   string
	Hint  ProviderKind
	Owner string
	Name  string
}

func (r RepoReference) String() string {
	if r.URL != "" {
		return r.URL
	}
	return fmt.Sprintf("%s:%s/%s", r.Hint, r.Owner, r.Name)
}

// 🆔 Identity uniquely names one repository across the whole system.
type Identity struct {
	Kind  ProviderKind `json:"kind"`
	Owner string       `json:"owner"`
	Name  string       `json:"name"`
}

func (id Identity) String() string {
	return fmt.Sprintf("%s/%s/%s", id.Kind, id.Owner, id.Name)
}

func (id Identity) IsZero() bool {
	return id.Owner == "" && id.Name == ""
}

// Classified is the best-effort decomposition of a reference.
type Classified struct {
	Kind  ProviderKind
	Owner string
	Name  string
	Host  string // non-empty only when the URL carried a host override
}

func (c Classified) Identity() Identity {
	return Identity{Kind: c.Kind, Owner: c.Owner, Name: c.Name}
}

// The original host patterns, anchored so trailing paths like
// /tree/main/subdir still classify.
var urlPatterns = []struct {
	kind ProviderKind
	re   *regexp.Regexp
}{
	{GitHubLike, regexp.MustCompile(`^https?://(github)\.com/([^/]+)/([^/]+)/?.*$`)},
	{GitLabLike, regexp.MustCompile(`^https?://(gitlab)\.com/([^/]+)/([^/]+)/?.*$`)},
}

var genericURLPattern = regexp.MustCompile(`^https?://([^/]+)/([^/]+)/([^/]+)/?.*$`)

// 🔍 Classifier maps raw references onto known providers. The zero value
// recognizes github.com and gitlab.com only; GenericHosts extends the match
// set for self-hosted forges, and DefaultKind resolves bare owner/name pairs
// that arrive without a hint.
type Classifier struct {
	GenericHosts []string
	DefaultKind  ProviderKind
}

// Classify decomposes a reference. It is total: anything unrecognizable comes
// back as Unknown rather than an error, so callers can report "unsupported"
// instead of crashing.
func (c *Classifier) Classify(r RepoReference) Classified {
	if r.URL != "" {
		return c.classifyURL(r.URL)
	}
	if r.Owner == "" || r.Name == "" {
		return Classified{Kind: Unknown}
	}
	kind := r.Hint
	if kind == Unknown {
		kind = c.DefaultKind
	}
	return Classified{
		Kind:  kind,
		Owner: strings.ToLower(r.Owner),
		Name:  strings.ToLower(strings.TrimSuffix(r.Name, ".git")),
	}
}

func (c *Classifier) classifyURL(raw string) Classified {
	for _, p := range urlPatterns {
		m := p.re.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		return Classified{
			Kind:  p.kind,
			Owner: strings.ToLower(m[2]),
			Name:  strings.ToLower(strings.TrimSuffix(m[3], ".git")),
		}
	}
	if m := genericURLPattern.FindStringSubmatch(raw); m != nil {
		host := strings.ToLower(m[1])
		for _, h := range c.GenericHosts {
			if strings.EqualFold(h, host) {
				return Classified{
					Kind:  Generic,
					Owner: strings.ToLower(m[2]),
					Name:  strings.ToLower(strings.TrimSuffix(m[3], ".git")),
					Host:  host,
				}
			}
		}
	}
	return Classified{Kind: Unknown}
}

// Classify is the hint-free package-level entry point for callers that only
// need github.com / gitlab.com recognition.
func Classify(r RepoReference) Classified {
	var c Classifier
	return c.Classify(r)
}
