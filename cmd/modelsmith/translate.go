// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/modelsmith-dev/modelsmith/internal/server"
	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
)

func newTranslateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "translate <business request>",
		Short: "Translate a business request into file edits and run it",
		Long: `Ask the server to map a high-level request onto model files and a technical
instruction, then run that as a turn of the session.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, _ := cmd.Flags().GetString("session")
			prompt := strings.Join(args, " ")
			if strings.TrimSpace(prompt) == "" {
				return mserr.New(mserr.CodeCLIInputInvalid, "prompt must not be empty")
			}

			var reply server.TranslateReply
			err := a.clientFor(cmd).postJSON(commandContext(cmd), "/translate-and-forward", server.TranslateRequest{
				Prompt:    prompt,
				SessionID: session,
			}, &reply)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(reply.Files) > 0 {
				_, _ = fmt.Fprintf(out, "Files: %s\n", strings.Join(reply.Files, ", "))
			}
			_, _ = fmt.Fprintf(out, "Instruction: %s\n", reply.Prompt)
			return printTurnReply(out, reply.TurnReply)
		},
	}

	cmd.Flags().StringP("session", "s", "", "session id to continue")
	addClientFlags(cmd)
	return cmd
}
