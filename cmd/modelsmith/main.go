// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

// Command modelsmith serves and drives the draft pull request bot.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
