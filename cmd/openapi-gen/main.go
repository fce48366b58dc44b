// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

// Command openapi-gen writes the modelsmith HTTP API description as JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/modelsmith-dev/modelsmith/internal/agent"
	"github.com/modelsmith-dev/modelsmith/internal/server"
	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
)

func main() {
	spec, err := generateSpec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := "api/openapi/openapi.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("OpenAPI description written to %s\n", outPath)
}

// generateSpec registers every route on a server whose dependencies are
// stubs and returns the OpenAPI document huma derives from the handler
// types. No handler runs.
func generateSpec() ([]byte, error) {
	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"}, server.Deps{Agent: stubAgent{}})
	if err != nil {
		return nil, mserr.Wrap(err, mserr.CodeCLISetupFailure, "creating server")
	}
	defer srv.Close()

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}

type stubAgent struct{}

func (stubAgent) HandleTurn(context.Context, agent.Turn) (*agent.Reply, error) {
	return &agent.Reply{}, nil
}
