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

package syncer

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/walteh/gitdigger/pkg/remote"
)

// BackoffPolicy caps retries of retryable fetch failures. An attempt count
// of 1 disables retries entirely.
type BackoffPolicy struct {
	BaseDelay   time.Duration
	MaxAttempts int
}

// retry runs fn up to MaxAttempts times, sleeping an exponentially growing
// delay between attempts. Only retryable errors (rate limits, transient
// network faults) trigger another attempt; a provider-supplied retry-after
// hint overrides the computed delay.
func (s *Syncer) retry(ctx context.Context, fn func() error) error {
	logger := zerolog.Ctx(ctx)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.opts.Backoff.BaseDelay
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()

	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !remote.IsRetryable(err) || attempt >= s.opts.Backoff.MaxAttempts {
			return err
		}

		delay := bo.NextBackOff()
		if hint, ok := remote.RetryAfterHint(err); ok {
			delay = hint
		}
		logger.Debug().
			Int("attempt", attempt).
			Dur("delay", delay).
			Err(err).
			Msg("retrying after backoff")

		if serr := s.sleep(ctx, delay); serr != nil {
			return err
		}
	}
}
