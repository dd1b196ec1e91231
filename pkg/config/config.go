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

package config

import (
	"time"

	"github.com/walteh/gitdigger/pkg/ref"
	"gitlab.com/tozd/go/errors"
)

// 🔧 ProviderConfig holds one provider's credentials and endpoints.
type ProviderConfig struct {
	Kind    string `json:"kind" yaml:"kind" hcl:"kind,label"`
	Token   string `json:"token,omitempty" yaml:"token,omitempty" hcl:"token,optional"`
	Host    string `json:"host,omitempty" yaml:"host,omitempty" hcl:"host,optional"`
	APIBase string `json:"api_base,omitempty" yaml:"api_base,omitempty" hcl:"api_base,optional"`
}

// BackoffConfig tunes the retry policy for rate-limited and transient
// failures. BaseDelay is a duration string ("500ms", "2s").
type BackoffConfig struct {
	BaseDelay   string `json:"base_delay,omitempty" yaml:"base_delay,omitempty" hcl:"base_delay,optional"`
	MaxAttempts int    `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty" hcl:"max_attempts,optional"`

	baseDelay time.Duration
}

// Delay returns the parsed base delay. Valid only after Validate.
func (b *BackoffConfig) Delay() time.Duration {
	return b.baseDelay
}

// 📚 Config is the complete library configuration.
type Config struct {
	Providers       []ProviderConfig `json:"providers,omitempty" yaml:"providers,omitempty" hcl:"provider,block"`
	DefaultProvider string           `json:"default_provider,omitempty" yaml:"default_provider,omitempty" hcl:"default_provider,optional"`
	Concurrency     int              `json:"concurrency,omitempty" yaml:"concurrency,omitempty" hcl:"concurrency,optional"`
	Clone           bool             `json:"clone,omitempty" yaml:"clone,omitempty" hcl:"clone,optional"`
	CloneDir        string           `json:"clone_dir,omitempty" yaml:"clone_dir,omitempty" hcl:"clone_dir,optional"`
	StatePath       string           `json:"state_path,omitempty" yaml:"state_path,omitempty" hcl:"state_path,optional"`
	Backoff         *BackoffConfig   `json:"backoff,omitempty" yaml:"backoff,omitempty" hcl:"backoff,block"`
}

// Validate checks the configuration and fills in defaults.
func (cfg *Config) Validate() error {
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 4
	}
	if cfg.Concurrency < 1 {
		return errors.Errorf("concurrency must be positive, got %d", cfg.Concurrency)
	}
	if cfg.CloneDir == "" {
		cfg.CloneDir = "repos"
	}
	if cfg.StatePath == "" {
		cfg.StatePath = ".gitdigger.db"
	}

	if cfg.Backoff == nil {
		cfg.Backoff = &BackoffConfig{}
	}
	if cfg.Backoff.BaseDelay == "" {
		cfg.Backoff.BaseDelay = "500ms"
	}
	delay, err := time.ParseDuration(cfg.Backoff.BaseDelay)
	if err != nil {
		return errors.Errorf("parsing backoff.base_delay: %w", err)
	}
	cfg.Backoff.baseDelay = delay
	if cfg.Backoff.MaxAttempts == 0 {
		cfg.Backoff.MaxAttempts = 4
	}
	if cfg.Backoff.MaxAttempts < 1 || cfg.Backoff.MaxAttempts > 5 {
		return errors.Errorf("backoff.max_attempts must be between 1 and 5, got %d", cfg.Backoff.MaxAttempts)
	}

	seen := map[ref.ProviderKind]bool{}
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		kind, err := ref.ParseKind(p.Kind)
		if err != nil {
			return errors.Errorf("providers[%d]: %w", i, err)
		}
		if kind == ref.Unknown {
			return errors.Errorf("providers[%d]: kind is required", i)
		}
		if seen[kind] {
			return errors.Errorf("providers[%d]: duplicate provider %s", i, kind)
		}
		seen[kind] = true
		if kind == ref.Generic && p.APIBase == "" {
			return errors.Errorf("providers[%d]: generic provider requires api_base", i)
		}
	}

	if cfg.DefaultProvider != "" {
		if _, err := ref.ParseKind(cfg.DefaultProvider); err != nil {
			return errors.Errorf("default_provider: %w", err)
		}
	}

	return nil
}

// Provider returns the configuration for a kind, or nil when absent.
func (cfg *Config) Provider(kind ref.ProviderKind) *ProviderConfig {
	for i := range cfg.Providers {
		if parsed, err := ref.ParseKind(cfg.Providers[i].Kind); err == nil && parsed == kind {
			return &cfg.Providers[i]
		}
	}
	return nil
}

// GenericHosts lists the hosts URL classification should treat as generic
// forges.
func (cfg *Config) GenericHosts() []string {
	var hosts []string
	for _, p := range cfg.Providers {
		if parsed, err := ref.ParseKind(p.Kind); err == nil && parsed == ref.Generic && p.Host != "" {
			hosts = append(hosts, p.Host)
		}
	}
	return hosts
}

// DefaultKind returns the parsed default provider kind (Unknown when unset).
func (cfg *Config) DefaultKind() ref.ProviderKind {
	kind, err := ref.ParseKind(cfg.DefaultProvider)
	if err != nil {
		return ref.Unknown
	}
	return kind
}
