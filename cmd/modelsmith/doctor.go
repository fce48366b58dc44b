// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/modelsmith-dev/modelsmith/internal/config"
	"github.com/modelsmith-dev/modelsmith/internal/provider"
	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
)

// doctorHTTPClient is used for key validation. Tests point it at a fake.
var doctorHTTPClient = &http.Client{Timeout: 10 * time.Second}

const doctorCheckTimeout = 15 * time.Second

// lowDiskBytes is the free space below which the sqlite store is flagged.
const lowDiskBytes = 100 << 20

type doctorCheck struct {
	name string
	fn   func(context.Context) string
}

func newDoctorCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check configuration, repository access, session storage, provider keys, the SQL linter and the running server.",
		Args:  cobra.NoArgs,
		RunE:  a.runDoctor,
	}
	addClientFlags(cmd)
	cmd.Flags().Bool("skip-keys", false, "do not call provider APIs to validate keys")
	return cmd
}

func (a *app) runDoctor(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()
	skipKeys, _ := cmd.Flags().GetBool("skip-keys")

	cfg, cfgErr := config.FromViper(a.v, secretLookup)

	checks := []doctorCheck{
		{"Binary", func(context.Context) string { return checkBinary() }},
		{"Platform", func(context.Context) string { return checkPlatform() }},
		{"Config", func(context.Context) string { return a.checkConfig(cfgErr) }},
		{"Permissions", func(context.Context) string { return a.checkPermissions() }},
	}
	if cfg != nil {
		checks = append(checks,
			doctorCheck{"Repository", func(ctx context.Context) string { return checkRepository(ctx, cfg.Repository) }},
			doctorCheck{"SQL linter", func(context.Context) string { return checkLinter(cfg.Lint) }},
			doctorCheck{"Session storage", func(context.Context) string { return checkStorage(cfg.Storage) }},
		)
		for _, name := range providerNames(cfg) {
			pc := cfg.Providers[name]
			checks = append(checks, doctorCheck{"Provider " + name, func(ctx context.Context) string {
				return checkProviderKey(ctx, name, pc, skipKeys)
			}})
		}
	}
	client := a.clientFor(cmd)
	checks = append(checks, doctorCheck{"Server", func(ctx context.Context) string { return checkServer(ctx, client) }})

	for _, c := range checks {
		ctx, cancel := context.WithTimeout(commandContext(cmd), doctorCheckTimeout)
		result := c.fn(ctx)
		cancel()
		if _, err := fmt.Fprintf(w, "%-20s %s\n", c.name+":", result); err != nil {
			return err
		}
	}
	return nil
}

func checkBinary() string {
	return fmt.Sprintf("modelsmith %s (%s/%s)", version, runtime.GOOS, runtime.GOARCH)
}

func checkPlatform() string {
	return fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func (a *app) checkConfig(err error) string {
	source := "defaults (no config file found)"
	if a.configFile != "" {
		source = a.configFile
	}
	if err != nil {
		return fmt.Sprintf("invalid (%s): %s", source, err)
	}
	return "ok, loaded from " + source
}

func (a *app) checkPermissions() string {
	switch {
	case a.configFile == "":
		return "skipped (no config file)"
	case config.InsecurePermissions(a.configFile):
		return "readable by other users; run chmod 600 " + a.configFile
	default:
		return "ok"
	}
}

func checkRepository(ctx context.Context, rc config.RepositoryConfig) string {
	host, err := newHost(rc)
	if err != nil {
		return "error: " + err.Error()
	}
	branch, err := host.DefaultBranch(ctx)
	if err != nil {
		return "error: " + err.Error()
	}
	if rc.Host == "github" {
		return fmt.Sprintf("ok, github %s/%s (default branch %s)", rc.Owner, rc.Name, branch)
	}
	return fmt.Sprintf("ok, local %s (default branch %s)", rc.LocalPath, branch)
}

func checkStorage(sc config.StorageConfig) string {
	if sc.Backend != "sqlite" {
		return "in memory; sessions are lost on restart"
	}

	// The database may not exist yet; measure the nearest existing parent.
	dir := filepath.Dir(sc.Path)
	for {
		if _, err := os.Stat(dir); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		return fmt.Sprintf("unable to check %s: %s", dir, err)
	}
	avail := stat.Bavail * uint64(stat.Bsize)
	if avail < lowDiskBytes {
		return fmt.Sprintf("low disk space: %s available for %s; session writes may fail", formatBytes(avail), sc.Path)
	}
	return fmt.Sprintf("ok, sqlite %s (%s available)", sc.Path, formatBytes(avail))
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b uint64) string {
	const (
		gb = 1 << 30
		mb = 1 << 20
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}

func checkLinter(lc config.LintConfig) string {
	if lc.Fixer == "none" {
		return "disabled"
	}
	path, err := exec.LookPath(lc.Command)
	if err != nil {
		return fmt.Sprintf("%s not found on PATH; SQL edits will be committed unformatted", lc.Command)
	}
	return "ok, " + path
}

func checkProviderKey(ctx context.Context, name string, pc config.ProviderConfig, skip bool) string {
	switch {
	case pc.APIKey == "":
		return "no API key"
	case skip:
		return "key configured (not validated)"
	case pc.Endpoint != "":
		return "key configured (custom endpoint " + pc.Endpoint + ", not validated)"
	}
	if err := provider.ValidateKey(ctx, doctorHTTPClient, provider.ProviderName(name), pc.APIKey); err != nil {
		return "error: " + err.Error()
	}
	return "ok, key accepted"
}

func checkServer(ctx context.Context, c *apiClient) string {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.getJSON(ctx, "/health", &body); err != nil {
		if mserr.HasCode(err, mserr.CodeCLIServerNotRunning) {
			return fmt.Sprintf("not running at %s (run 'modelsmith serve')", c.baseURL)
		}
		return "error: " + err.Error()
	}
	return fmt.Sprintf("%s at %s", body.Status, c.baseURL)
}

func providerNames(cfg *config.Config) []string {
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
