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

package clone

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/walteh/gitdigger/pkg/record"
	"github.com/walteh/gitdigger/pkg/remote"
	"github.com/walteh/gitdigger/pkg/state"
	"gitlab.com/tozd/go/errors"
)

// 🔧 Runner is the external git-capable collaborator. The library never
// speaks the git protocol itself.
type Runner interface {
	Clone(ctx context.Context, url, dest string) error
	Update(ctx context.Context, path string) error
}

// GitRunner shells out to the git binary.
type GitRunner struct{}

func (GitRunner) Clone(ctx context.Context, url, dest string) error {
	cmd := exec.CommandContext(ctx, "git", "clone", url, dest)
	if output, err := cmd.CombinedOutput(); err != nil {
		return errors.Errorf("git clone: %w - %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// Update fast-forwards only. A diverged local copy is surfaced as an error
// for the caller to resolve, never merged automatically.
func (GitRunner) Update(ctx context.Context, path string) error {
	cmd := exec.CommandContext(ctx, "git", "-C", path, "pull", "--ff-only")
	if output, err := cmd.CombinedOutput(); err != nil {
		return errors.Errorf("git pull: %w - %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// Action says what EnsureLocal did to the working copy.
type Action string

const (
	ActionCloned  Action = "cloned"
	ActionUpdated Action = "updated"
	ActionNone    Action = "none" // already current
)

// 📂 Manager maintains local working copies under one root directory, keyed
// by repository identity.
type Manager struct {
	root   string
	runner Runner
}

func NewManager(root string, runner Runner) *Manager {
	if runner == nil {
		runner = GitRunner{}
	}
	return &Manager{root: root, runner: runner}
}

// PathFor returns the working-copy location for a record:
// <root>/<kind>/<owner>/<name>.
func (m *Manager) PathFor(rec record.RepoRecord) string {
	id := rec.Identity
	return filepath.Join(m.root, id.Kind.String(), id.Owner, id.Name)
}

// EnsureLocal materializes a working copy for rec, returning its path and
// the action taken.
//
// Decision table:
//   - no prior state, or no clone on disk       -> fresh clone
//   - prior ref matches the record's sync ref   -> no-op
//   - anything else                             -> incremental update
//
// Failures come back as clone_failed / update_failed and are non-fatal to
// the rest of a batch.
func (m *Manager) EnsureLocal(ctx context.Context, rec record.RepoRecord, prior *state.SyncState) (string, Action, error) {
	logger := zerolog.Ctx(ctx).With().Stringer("identity", rec.Identity).Logger()
	dest := m.PathFor(rec)

	if prior == nil || prior.ClonePath == "" || !dirExists(prior.ClonePath) {
		if rec.CloneURL == "" {
			return "", "", remote.NewError(remote.KindCloneFailed, nil,
				"no clone URL known for %s", rec.Identity)
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return "", "", remote.NewError(remote.KindCloneFailed, err,
				"creating clone directory for %s", rec.Identity)
		}
		logger.Info().Str("dest", dest).Msg("cloning repository")
		if err := m.runner.Clone(ctx, rec.CloneURL, dest); err != nil {
			return "", "", remote.NewError(remote.KindCloneFailed, err,
				"cloning %s", rec.Identity)
		}
		return dest, ActionCloned, nil
	}

	dest = prior.ClonePath

	if prior.LastRef != "" && prior.LastRef == rec.SyncRef() {
		logger.Debug().Str("ref", prior.LastRef).Msg("working copy already current")
		return dest, ActionNone, nil
	}

	logger.Info().Str("path", dest).Msg("updating repository")
	if err := m.runner.Update(ctx, dest); err != nil {
		return "", "", remote.NewError(remote.KindUpdateFailed, err,
			"updating %s", rec.Identity)
	}
	return dest, ActionUpdated, nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
