// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/modelsmith-dev/modelsmith/internal/agent"
	"github.com/modelsmith-dev/modelsmith/internal/config"
	"github.com/modelsmith-dev/modelsmith/internal/generate"
	"github.com/modelsmith-dev/modelsmith/internal/guard"
	"github.com/modelsmith-dev/modelsmith/internal/hosting"
	"github.com/modelsmith-dev/modelsmith/internal/hosting/github"
	"github.com/modelsmith-dev/modelsmith/internal/hosting/local"
	"github.com/modelsmith-dev/modelsmith/internal/lint"
	"github.com/modelsmith-dev/modelsmith/internal/provider"
	anthropicprov "github.com/modelsmith-dev/modelsmith/internal/provider/anthropic"
	googleprov "github.com/modelsmith-dev/modelsmith/internal/provider/google"
	openaiprov "github.com/modelsmith-dev/modelsmith/internal/provider/openai"
	openrouterprov "github.com/modelsmith-dev/modelsmith/internal/provider/openrouter"
	"github.com/modelsmith-dev/modelsmith/internal/resolver"
	"github.com/modelsmith-dev/modelsmith/internal/retry"
	"github.com/modelsmith-dev/modelsmith/internal/server"
	"github.com/modelsmith-dev/modelsmith/internal/store"
	_ "github.com/modelsmith-dev/modelsmith/internal/store/memory" // register memory backend
	_ "github.com/modelsmith-dev/modelsmith/internal/store/sqlite" // register sqlite backend
	"github.com/modelsmith-dev/modelsmith/internal/updater"
	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
)

// App holds the wired subsystems and owns their lifecycle.
type App struct {
	Server    *server.Server
	Sessions  store.SessionStore
	Providers *provider.Registry
	Host      hosting.Host
}

// Wire builds every subsystem from cfg. On error, anything already opened
// is closed.
func Wire(_ context.Context, cfg *config.Config) (_ *App, err error) {
	a := &App{}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	policy := retry.Policy{
		MaxAttempts: cfg.Generation.MaxAttempts,
		BaseDelay:   cfg.Generation.BackoffBase,
		MaxDelay:    cfg.Generation.BackoffCap,
	}

	// 1. Repository host.
	host, err := newHost(cfg.Repository)
	if err != nil {
		return nil, err
	}
	a.Host = hosting.WithRetry(host, policy)

	// 2. Session store.
	a.Sessions, err = store.Open(store.Config{Backend: cfg.Storage.Backend, Path: cfg.Storage.Path})
	if err != nil {
		return nil, mserr.Wrap(err, mserr.CodeCLISetupFailure, "opening session store")
	}

	// 3. Provider registry and routing.
	a.Providers = provider.NewRegistry()
	registerBuiltinProviders(cfg, a.Providers)
	if len(a.Providers.Names()) == 0 {
		return nil, mserr.New(mserr.CodeCLISetupFailure,
			"no model provider configured; set providers.<name>.api_key or run 'modelsmith init'")
	}
	if err := a.Providers.SetDefault(cfg.Models.Default); err != nil {
		return nil, mserr.Wrapf(err, mserr.CodeCLISetupFailure, "setting default model %s", cfg.Models.Default)
	}
	if err := a.Providers.SetFailover(cfg.Models.Failover); err != nil {
		return nil, mserr.Wrapf(err, mserr.CodeCLISetupFailure, "setting failover chain")
	}

	// 4. Model calls, linting and the edit pipeline.
	llm := generate.New(a.Providers, generate.Config{
		Temperature: float32(cfg.Models.Temperature),
		MaxTokens:   cfg.Models.MaxTokens,
		Retry:       policy,
	})
	mode := guard.ModeBlock
	if cfg.Guard.Mode != "" {
		if mode, err = guard.ParseMode(cfg.Guard.Mode); err != nil {
			return nil, err
		}
	}
	g, err := guard.New(mode)
	if err != nil {
		return nil, err
	}
	applier := updater.New(a.Host, llm, newFixer(cfg.Lint), updater.WithGuard(g))

	// 5. Session state machine.
	opts := []agent.Option{}
	if cfg.Repository.BranchPrefix != "" {
		opts = append(opts, agent.WithBranchPrefix(cfg.Repository.BranchPrefix))
	}
	orch, err := agent.New(agent.Deps{
		Host:     a.Host,
		Store:    a.Sessions,
		Resolver: resolver.New(resolver.WithModelsRoot(cfg.Repository.ModelsRoot)),
		Applier:  applier,
		Titler:   llm,
	}, opts...)
	if err != nil {
		return nil, err
	}

	// 6. HTTP server.
	var validator server.TokenValidator
	if len(cfg.Auth.Tokens) > 0 {
		tokens := make([]server.Token, len(cfg.Auth.Tokens))
		for i, t := range cfg.Auth.Tokens {
			tokens[i] = server.Token{Name: t.Name, Token: t.Token}
		}
		static, err := server.NewStaticTokens(tokens)
		if err != nil {
			return nil, err
		}
		validator = static
	} else {
		slog.Warn("authentication disabled: no auth.tokens configured")
	}

	server.Version = version
	a.Server, err = server.New(server.Config{
		ListenAddr:     cfg.Networking.Listen,
		CORSOrigins:    cfg.Networking.CORSOrigins,
		TokenValidator: validator,
		RateLimit: server.RateLimitConfig{
			RequestsPerSecond: cfg.Networking.RateLimitRPS,
			Burst:             cfg.Networking.RateLimitBurst,
		},
	}, server.Deps{
		Agent:      orch,
		Translator: llm,
		Sessions:   a.Sessions,
		Providers:  a.Providers,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Start serves until ctx is cancelled.
func (a *App) Start(ctx context.Context) error {
	return a.Server.Start(ctx)
}

// Close releases everything Wire opened.
func (a *App) Close() error {
	if a.Server != nil {
		a.Server.Close()
	}
	var errs []error
	if a.Providers != nil {
		if err := a.Providers.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Sessions != nil {
		if err := a.Sessions.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// newHost builds the configured repository host.
func newHost(rc config.RepositoryConfig) (hosting.Host, error) {
	switch rc.Host {
	case "github":
		h, err := github.New(github.Config{
			Owner:         rc.Owner,
			Repo:          rc.Name,
			Token:         rc.Token,
			BaseURL:       rc.BaseURL,
			DefaultBranch: rc.DefaultBranch,
		})
		if err != nil {
			return nil, mserr.Wrap(err, mserr.CodeCLISetupFailure, "configuring github host")
		}
		slog.Info("repository host", "host", "github", "repository", rc.Owner+"/"+rc.Name)
		return h, nil
	case "local":
		opts := []local.Option{}
		if rc.DefaultBranch != "" {
			opts = append(opts, local.WithDefaultBranch(rc.DefaultBranch))
		}
		if rc.BaseURL != "" {
			opts = append(opts, local.WithBaseURL(rc.BaseURL))
		}
		h, err := local.Open(rc.LocalPath, opts...)
		if err != nil {
			return nil, mserr.Wrap(err, mserr.CodeCLISetupFailure, "opening local repository")
		}
		slog.Info("repository host", "host", "local", "path", rc.LocalPath)
		return h, nil
	default:
		return nil, mserr.Errorf(mserr.CodeCLISetupFailure, "unknown repository host %q", rc.Host)
	}
}

func newFixer(lc config.LintConfig) lint.Fixer {
	if lc.Fixer == "none" {
		return lint.Noop{}
	}
	return lint.NewSQLFluff(lint.SQLFluffConfig{
		Command: lc.Command,
		Dialect: lc.Dialect,
		Timeout: lc.Timeout,
	})
}

// providerFactory builds a provider.Provider from a ProviderConfig.
type providerFactory func(config.ProviderConfig) (provider.Provider, error)

// builtinProviderFactories maps provider names to their constructors.
// Tests replace entries to avoid real SDK clients.
var builtinProviderFactories = map[string]providerFactory{
	"anthropic": func(pc config.ProviderConfig) (provider.Provider, error) {
		return anthropicprov.New(anthropicprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	},
	"google": func(pc config.ProviderConfig) (provider.Provider, error) {
		return googleprov.New(googleprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	},
	"openai": func(pc config.ProviderConfig) (provider.Provider, error) {
		return openaiprov.New(openaiprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	},
	"openrouter": func(pc config.ProviderConfig) (provider.Provider, error) {
		return openrouterprov.New(openrouterprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	},
}

// registerBuiltinProviders registers every configured provider with a key.
// Unknown names, empty keys and constructor failures are logged and skipped.
func registerBuiltinProviders(cfg *config.Config, reg *provider.Registry) {
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		pc := cfg.Providers[name]
		if pc.APIKey == "" {
			slog.Warn("skipping provider with empty API key", "provider", name)
			continue
		}
		factory, ok := builtinProviderFactories[name]
		if !ok {
			slog.Warn("unknown provider in config, skipping", "provider", name)
			continue
		}
		p, err := factory(pc)
		if err != nil {
			slog.Warn("failed to create provider", "provider", name, "error", err)
			continue
		}
		reg.Register(name, p)
		slog.Info("registered provider", "provider", name)
	}
}
