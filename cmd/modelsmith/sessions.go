// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package main

import (
	"fmt"
	"net/url"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/modelsmith-dev/modelsmith/internal/server"
)

func newSessionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List open draft PR sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var body struct {
				Sessions []server.SessionView `json:"sessions"`
			}
			if err := a.clientFor(cmd).getJSON(commandContext(cmd), "/api/v1/sessions", &body); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(body.Sessions) == 0 {
				_, _ = fmt.Fprintln(out, "No open sessions")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tBRANCH\tPR\tUPDATED")
			for _, s := range body.Sessions {
				pr := "-"
				if s.PRNumber > 0 {
					pr = fmt.Sprintf("#%d", s.PRNumber)
				}
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.Branch, pr, s.UpdatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
	addClientFlags(cmd)
	cmd.AddCommand(newSessionShowCmd(a))
	return cmd
}

func newSessionShowCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var s server.SessionView
			if err := a.clientFor(cmd).getJSON(commandContext(cmd), "/api/v1/sessions/"+url.PathEscape(args[0]), &s); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Session:  %s\n", s.ID)
			_, _ = fmt.Fprintf(out, "Branch:   %s (from %s)\n", s.Branch, s.BaseBranch)
			if s.PRURL != "" {
				_, _ = fmt.Fprintf(out, "Draft PR: #%d %s\n", s.PRNumber, s.PRURL)
			} else {
				_, _ = fmt.Fprintln(out, "Draft PR: not opened yet")
			}
			_, _ = fmt.Fprintf(out, "Prompt:   %s\n", s.OriginalPrompt)
			_, err := fmt.Fprintf(out, "Updated:  %s\n", s.UpdatedAt.Format(time.RFC3339))
			return err
		},
	}
	addClientFlags(cmd)
	return cmd
}
