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

// Package gitdigger syncs repository metadata (and optionally working
// copies) from multiple git hosting providers into a local state database.
package gitdigger

import (
	"context"

	"github.com/walteh/gitdigger/pkg/clone"
	"github.com/walteh/gitdigger/pkg/config"
	"github.com/walteh/gitdigger/pkg/ref"
	"github.com/walteh/gitdigger/pkg/remote"
	"github.com/walteh/gitdigger/pkg/remote/generic"
	"github.com/walteh/gitdigger/pkg/remote/github"
	"github.com/walteh/gitdigger/pkg/remote/gitlab"
	"github.com/walteh/gitdigger/pkg/state"
	"github.com/walteh/gitdigger/pkg/syncer"
	"gitlab.com/tozd/go/errors"
)

// Client bundles a fully wired sync pipeline: registered providers, the
// durable state store, the clone manager, and the orchestrator on top.
type Client struct {
	Registry *remote.Registry
	Store    *state.Store
	Cloner   *clone.Manager
	Syncer   *syncer.Syncer

	cfg *config.Config
}

// New builds a Client from a validated configuration. The caller owns the
// returned Client and must Close it to release the state database.
func New(ctx context.Context, cfg *config.Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Errorf("validating config: %w", err)
	}

	registry := remote.NewRegistry()
	for _, pc := range cfg.Providers {
		provider, err := buildProvider(pc)
		if err != nil {
			return nil, errors.Errorf("configuring %s provider: %w", pc.Kind, err)
		}
		registry.Register(provider)
	}

	store, err := state.Open(cfg.StatePath)
	if err != nil {
		return nil, errors.Errorf("opening state store: %w", err)
	}

	cloner := clone.NewManager(cfg.CloneDir, nil)

	s := syncer.New(registry, store, cloner, syncer.Options{
		Concurrency: cfg.Concurrency,
		Clone:       cfg.Clone,
		Backoff: syncer.BackoffPolicy{
			BaseDelay:   cfg.Backoff.Delay(),
			MaxAttempts: cfg.Backoff.MaxAttempts,
		},
		Classifier: &ref.Classifier{
			GenericHosts: cfg.GenericHosts(),
			DefaultKind:  cfg.DefaultKind(),
		},
	})

	return &Client{
		Registry: registry,
		Store:    store,
		Cloner:   cloner,
		Syncer:   s,
		cfg:      cfg,
	}, nil
}

func buildProvider(pc config.ProviderConfig) (remote.Provider, error) {
	kind, err := ref.ParseKind(pc.Kind)
	if err != nil {
		return nil, err
	}

	switch kind {
	case ref.GitHubLike:
		return github.New(github.Options{Token: pc.Token, BaseURL: pc.APIBase})
	case ref.GitLabLike:
		return gitlab.New(gitlab.Options{Token: pc.Token, BaseURL: pc.APIBase})
	case ref.Generic:
		return generic.New(generic.Options{Token: pc.Token, BaseURL: pc.APIBase})
	}
	return nil, errors.Errorf("no adapter for provider kind %q", pc.Kind)
}

// Sync runs one batch of references through the pipeline.
func (c *Client) Sync(ctx context.Context, refs []ref.RepoReference) (*syncer.Result, error) {
	return c.Syncer.Sync(ctx, refs)
}

// Close releases the state database.
func (c *Client) Close() error {
	return c.Store.Close()
}
