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

package log

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

// 🎨 Display configuration
const (
	identityWidth = 40 // base width for repository identities
)

// Outcome of one repository within a batch.
type Outcome string

const (
	OutcomeSynced  Outcome = "synced"  // metadata stored, no local copy requested
	OutcomeCloned  Outcome = "cloned"  // fresh working copy created
	OutcomeUpdated Outcome = "updated" // existing working copy fast-forwarded
	OutcomeCurrent Outcome = "current" // nothing to do, already up to date
	OutcomeFailed  Outcome = "failed"
)

// 📦 RepoLine is one repository's row in the console report.
type RepoLine struct {
	Identity string
	Outcome  Outcome
	Detail   string // clone path, or the error text on failure
}

// 🎯 Reporter mirrors batch progress to a console writer while feeding the
// same events into zerolog. Safe for the orchestrator's concurrent workers.
type Reporter struct {
	zlog    zerolog.Logger
	console io.Writer
	mu      sync.Mutex
	lines   []RepoLine
}

// 🏭 New creates a reporter writing human output to console.
func New(console io.Writer, level zerolog.Level) *Reporter {
	zlog := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger().Level(level)
	return &Reporter{
		zlog:    zlog,
		console: console,
	}
}

// 🔑 contextKey is the type for context values
type contextKey struct{}

// FromContext gets the reporter from context, or nil when none was attached
// so library callers without a console keep working.
func FromContext(ctx context.Context) *Reporter {
	reporter, _ := ctx.Value(contextKey{}).(*Reporter)
	return reporter
}

// NewContext adds the reporter to context
func NewContext(ctx context.Context, r *Reporter) context.Context {
	return context.WithValue(ctx, contextKey{}, r)
}

func (r *Reporter) formatLine(line RepoLine) string {
	var symbol rune
	var symbolColor color.Attribute
	switch line.Outcome {
	case OutcomeFailed:
		symbol = '✗'
		symbolColor = color.FgRed
	case OutcomeCloned:
		symbol = '✓'
		symbolColor = color.FgGreen
	case OutcomeUpdated:
		symbol = '⟳'
		symbolColor = color.FgBlue
	case OutcomeCurrent:
		symbol = '•'
		symbolColor = color.FgCyan
	default:
		symbol = '✓'
		symbolColor = color.FgGreen
	}

	out := fmt.Sprintf("  %s %s %s",
		color.New(symbolColor).Sprint(string(symbol)),
		fmt.Sprintf("%-*s", identityWidth, line.Identity),
		color.New(color.Faint).Sprint(string(line.Outcome)))
	if line.Detail != "" {
		out += " " + line.Detail
	}
	return out
}

// 📝 RepoDone records and prints one repository's outcome.
func (r *Reporter) RepoDone(ctx context.Context, line RepoLine) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lines = append(r.lines, line)
	fmt.Fprintln(r.console, r.formatLine(line))

	r.zlog.Info().
		Str("identity", line.Identity).
		Str("outcome", string(line.Outcome)).
		Str("detail", line.Detail).
		Msg("repository done")
}

// 📝 Header prints the batch banner.
func (r *Reporter) Header(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := color.New(color.Bold, color.FgCyan).Sprint("gitdigger")
	fmt.Fprintf(r.console, "\n%s %s\n\n", name, color.New(color.Faint).Sprint("• "+msg))
	r.zlog.Info().Msg(msg)
}

// 📝 Summary prints the batch footer and resets the line buffer.
func (r *Reporter) Summary() {
	r.mu.Lock()
	defer r.mu.Unlock()

	succeeded, failed := 0, 0
	for _, line := range r.lines {
		if line.Outcome == OutcomeFailed {
			failed++
		} else {
			succeeded++
		}
	}

	fmt.Fprintln(r.console)
	if failed == 0 {
		fmt.Fprintf(r.console, "✅ %s\n",
			color.New(color.FgGreen).Sprintf("%d repositories synced", succeeded))
	} else {
		fmt.Fprintf(r.console, "❌ %s\n",
			color.New(color.FgRed).Sprintf("%d synced, %d failed", succeeded, failed))
	}

	r.zlog.Info().Int("succeeded", succeeded).Int("failed", failed).Msg("batch complete")
	r.lines = nil
}

// 📝 Warning logs a warning message
func (r *Reporter) Warning(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.console, "⚠️  %s\n", color.New(color.FgYellow).Sprint(msg))
	r.zlog.Warn().Msg(msg)
}

// 📝 Error logs an error message
func (r *Reporter) Error(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.console, "❌ %s\n", color.New(color.FgRed).Sprint(msg))
	r.zlog.Error().Msg(msg)
}

// 📝 Errorf logs a formatted error message
func (r *Reporter) Errorf(format string, args ...interface{}) {
	r.Error(fmt.Sprintf(format, args...))
}

// 📝 Warningf logs a formatted warning message
func (r *Reporter) Warningf(format string, args ...interface{}) {
	r.Warning(fmt.Sprintf(format, args...))
}
