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
	"fmt"
	"time"

	stderrors "errors"
)

// ErrorKind is the closed taxonomy of per-repository fetch failures.
type ErrorKind int

const (
	// KindNotFound: the provider reported a 404-equivalent.
	KindNotFound ErrorKind = iota + 1
	// KindRateLimited: provider quota exhausted. Retryable; may carry a
	// retry-after hint.
	KindRateLimited
	// KindAuthRequired: missing or invalid credentials for a private
	// resource. A configuration problem, never retried.
	KindAuthRequired
	// KindTransientNetwork: retryable I/O failure.
	KindTransientNetwork
	// KindProviderError: any other non-2xx response; carries raw status and
	// body for diagnostics.
	KindProviderError
	// KindMalformedResponse: the provider answered but the payload is
	// missing required fields.
	KindMalformedResponse
	// KindCloneFailed / KindUpdateFailed: the external git collaborator
	// reported an error materializing the working copy.
	KindCloneFailed
	KindUpdateFailed
)

var errorKindNames = map[ErrorKind]string{
	KindNotFound:          "not_found",
	KindRateLimited:       "rate_limited",
	KindAuthRequired:      "auth_required",
	KindTransientNetwork:  "transient_network",
	KindProviderError:     "provider_error",
	KindMalformedResponse: "malformed_response",
	KindCloneFailed:       "clone_failed",
	KindUpdateFailed:      "update_failed",
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("error_kind(%d)", int(k))
}

// Retryable reports whether the orchestrator may retry after backoff.
func (k ErrorKind) Retryable() bool {
	return k == KindRateLimited || k == KindTransientNetwork
}

// 🚨 Error is the typed failure attached to one repository's result. It never
// aborts the rest of a batch.
type Error struct {
	Kind       ErrorKind
	Message    string
	Status     int           // raw HTTP status, when known
	Body       string        // raw response body, for provider_error diagnostics
	RetryAfter time.Duration // rate-limit hint, zero when the provider gave none
	cause      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.cause
}

// NewError builds a taxonomy error wrapping an underlying cause (which may
// be nil).
func NewError(kind ErrorKind, cause error, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		cause:   cause,
	}
}

// WithStatus attaches the raw HTTP status and body.
func (e *Error) WithStatus(status int, body string) *Error {
	e.Status = status
	e.Body = body
	return e
}

// WithRetryAfter attaches the provider's retry-after hint.
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	e.RetryAfter = d
	return e
}

// KindOf extracts the taxonomy kind from an error chain, or zero when the
// error is not a *Error.
func KindOf(err error) ErrorKind {
	var re *Error
	if stderrors.As(err, &re) {
		return re.Kind
	}
	return 0
}

// IsRetryable reports whether the error chain carries a retryable kind.
func IsRetryable(err error) bool {
	return KindOf(err).Retryable()
}

// RetryAfterHint returns the provider-supplied retry-after hint, if any.
func RetryAfterHint(err error) (time.Duration, bool) {
	var re *Error
	if stderrors.As(err, &re) && re.RetryAfter > 0 {
		return re.RetryAfter, true
	}
	return 0, false
}
