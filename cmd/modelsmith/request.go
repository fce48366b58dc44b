// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package main

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/modelsmith-dev/modelsmith/internal/server"
	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
)

func newRequestCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request <prompt>",
		Short: "Send one turn to a running server",
		Long: `Send a change request, or a confirmation such as "looks good", to a running
modelsmith server. Pass --session to continue a draft PR session; the session
id to reuse is printed after every turn.`,
		Example: `  modelsmith request "add a total_value column to orders.sql"
  modelsmith request --session 3f2a... --file models/orders.sql "round amounts to 2 places"
  modelsmith request --session 3f2a... confirm`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, _ := cmd.Flags().GetString("session")
			files, _ := cmd.Flags().GetStringSlice("file")
			prompt := strings.Join(args, " ")
			if strings.TrimSpace(prompt) == "" {
				return mserr.New(mserr.CodeCLIInputInvalid, "prompt must not be empty")
			}

			var reply server.TurnReply
			err := a.clientFor(cmd).postJSON(commandContext(cmd), "/requests", server.TurnRequest{
				SessionID:     session,
				FileNames:     files,
				AnalystPrompt: prompt,
			}, &reply)
			if err != nil {
				return err
			}
			return printTurnReply(cmd.OutOrStdout(), reply)
		},
	}

	cmd.Flags().StringP("session", "s", "", "session id to continue")
	cmd.Flags().StringSliceP("file", "f", nil, "target file (repeatable); extracted from the prompt when omitted")
	addClientFlags(cmd)
	return cmd
}

func printTurnReply(w io.Writer, r server.TurnReply) error {
	if _, err := fmt.Fprintln(w, r.Message); err != nil {
		return err
	}
	paths := make([]string, 0, len(r.LintWarnings))
	for p := range r.LintWarnings {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	for _, p := range paths {
		if _, err := fmt.Fprintf(w, "lint warning %s: %s\n", p, r.LintWarnings[p]); err != nil {
			return err
		}
	}
	if !r.Finalized && r.SessionID != "" {
		_, err := fmt.Fprintf(w, "Continue with: modelsmith request --session %s \"...\"\n", r.SessionID)
		return err
	}
	return nil
}
