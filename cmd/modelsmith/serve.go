// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/modelsmith-dev/modelsmith/internal/config"
	"github.com/modelsmith-dev/modelsmith/internal/secrets"
)

// secretLookup resolves keyring:// references in config. Tests replace it.
var secretLookup secrets.Lookup = secrets.KeyringLookup

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the modelsmith server",
		Long:  "Load configuration, connect to the repository and model providers, and serve the HTTP API.",
		Args:  cobra.NoArgs,
		RunE:  a.runServe,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")
	_ = a.v.BindPFlag("networking.listen", cmd.Flags().Lookup("listen"))
	return cmd
}

func (a *app) runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := Wire(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "modelsmith %s listening on %s\n", version, cfg.Networking.Listen)
	return w.Start(ctx)
}

// loadConfig resolves and validates the full configuration, then reinstalls
// the logger from it.
func (a *app) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	config.WarnInsecurePermissions(a.configFile)

	cfg, err := config.FromViper(a.v, secretLookup)
	if err != nil {
		return nil, err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	if err := setupLogging(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format, verbose); err != nil {
		return nil, err
	}
	return cfg, nil
}

// commandContext returns cmd's context, or Background when run outside
// Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
