// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package main

import (
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/modelsmith-dev/modelsmith/internal/config"
	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
)

// annotationNoConfig marks commands that run without reading a config
// file.
const annotationNoConfig = "modelsmith/no-config"

// app carries the state shared by subcommands. Each root command owns its
// own viper so tests do not leak settings into each other.
type app struct {
	v *viper.Viper
	// configFile is the file read, empty when running on defaults.
	configFile string
}

// NewRootCmd creates the root modelsmith command with all subcommands.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "modelsmith",
		Short: "modelsmith: draft pull requests for analytics models",
		Long: "modelsmith turns natural-language change requests into edits of SQL and YAML model\n" +
			"files, commits them to a session branch and keeps a draft pull request open\n" +
			"until the analyst confirms it.",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().StringSlice("env-file", nil, "KEY=value files to load before reading config (default .env)")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(a),
		newRequestCmd(a),
		newTranslateCmd(a),
		newSessionsCmd(a),
		newInitCmd(a),
		newSecretCmd(a),
		newDoctorCmd(a),
		newVersionCmd(),
	)
	return root
}

// setup loads .env files, then defaults, environment and the config file
// into a.v, and installs the default logger. Precedence is
// flag > env > file > defaults.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	envFiles, _ := cmd.Flags().GetStringSlice("env-file")
	if _, err := config.LoadDotEnv(envFiles...); err != nil {
		return err
	}

	config.SetDefaults(a.v)
	config.SetupEnv(a.v)
	if err := a.v.BindEnv("client.token", config.EnvPrefix+"_API_TOKEN"); err != nil {
		return mserr.Errorf(mserr.CodeCLISetupFailure, "binding client token: %w", err)
	}

	// init writes the file that --config names, so it must not read it.
	if cmd.Annotations[annotationNoConfig] == "" {
		cfgFile, _ := cmd.Flags().GetString("config")
		used, err := config.ReadInConfig(a.v, cfgFile)
		if err != nil {
			return err
		}
		a.configFile = used
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	return setupLogging(cmd.ErrOrStderr(), a.v.GetString("logging.level"), a.v.GetString("logging.format"), verbose)
}

// setupLogging installs a text or JSON slog handler at level. verbose
// forces debug.
func setupLogging(w io.Writer, level, format string, verbose bool) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return mserr.Errorf(mserr.CodeConfigValidateInvalidValue, "logging.level: %w", err)
	}
	if verbose {
		lvl = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	switch strings.ToLower(format) {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	default:
		return mserr.Errorf(mserr.CodeConfigValidateInvalidValue, "logging.format: unknown format %q", format)
	}
	slog.SetDefault(slog.New(h))
	return nil
}
