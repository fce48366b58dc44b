// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/modelsmith-dev/modelsmith/internal/secrets"
	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
)

// secretStoreFactory creates the secrets.Store the secret commands use.
// Tests substitute an in-memory implementation.
var secretStoreFactory = func() secrets.Store {
	return secrets.NewKeyringStore(secrets.DefaultService)
}

func newSecretCmd(_ *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage secrets stored in the OS keyring",
		Long: "Store provider keys and the repository token in the operating system keyring.\n" +
			"Reference them from config as keyring://" + secrets.DefaultService + "/<name>.",
	}

	cmd.AddCommand(
		newSecretSetCmd(),
		newSecretGetCmd(),
		newSecretListCmd(),
		newSecretDeleteCmd(),
	)
	return cmd
}

func newSecretSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <name> [value]",
		Short: "Store a secret; reads the value from stdin when omitted",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			var value string
			if len(args) == 2 {
				value = args[1]
			} else {
				v, err := readSecretValue(cmd.InOrStdin())
				if err != nil {
					return err
				}
				value = v
			}
			if value == "" {
				return mserr.New(mserr.CodeSecretInputInvalid, "secret value must not be empty")
			}

			if err := secretStoreFactory().Set(name, value); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Stored secret: %s\n", name)
			_, _ = fmt.Fprintf(out, "Reference it as %s\n", secrets.KeyringURI(secrets.DefaultService, name))
			return nil
		},
	}
}

func newSecretGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Print a secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := secretStoreFactory().Get(args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
}

func newSecretListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored secret names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			keys, err := secretStoreFactory().Keys()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(keys) == 0 {
				_, _ = fmt.Fprintln(out, "No secrets stored.")
				return nil
			}
			for _, k := range keys {
				_, _ = fmt.Fprintln(out, k)
			}
			return nil
		},
	}
}

func newSecretDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := secretStoreFactory().Delete(args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted secret: %s\n", args[0])
			return nil
		},
	}
}

// readSecretValue reads the first line of r.
func readSecretValue(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", mserr.Errorf(mserr.CodeSecretInputInvalid, "reading secret from stdin: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
