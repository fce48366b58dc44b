// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
)

// defaultHTTPClient is used by every server command. Turns wait on model
// calls, so the timeout is generous.
var defaultHTTPClient = &http.Client{Timeout: 5 * time.Minute}

// apiClient talks to a running modelsmith server.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// newAPIClient targets addr, either host:port or a full URL.
func newAPIClient(addr, token string) *apiClient {
	base := strings.TrimSuffix(addr, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &apiClient{baseURL: base, token: token, http: defaultHTTPClient}
}

// clientFor builds an apiClient from the --address and --token flags,
// falling back to networking.listen and MODELSMITH_API_TOKEN.
func (a *app) clientFor(cmd *cobra.Command) *apiClient {
	addr, _ := cmd.Flags().GetString("address")
	if addr == "" {
		addr = a.v.GetString("networking.listen")
	}
	token, _ := cmd.Flags().GetString("token")
	if token == "" {
		token = a.v.GetString("client.token")
	}
	return newAPIClient(addr, token)
}

func addClientFlags(cmd *cobra.Command) {
	cmd.Flags().String("address", "", "server address (default networking.listen)")
	cmd.Flags().String("token", "", "bearer token (default $MODELSMITH_API_TOKEN)")
}

// remoteError is a problem+json error returned by the server.
type remoteError struct {
	Status int
	Code   string
	Detail string
}

func (e *remoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server returned %d (%s): %s", e.Status, e.Code, e.Detail)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Detail)
}

func (c *apiClient) getJSON(ctx context.Context, path string, dest any) error {
	return c.do(ctx, http.MethodGet, path, nil, dest)
}

func (c *apiClient) postJSON(ctx context.Context, path string, body, dest any) error {
	return c.do(ctx, http.MethodPost, path, body, dest)
}

func (c *apiClient) do(ctx context.Context, method, path string, body, dest any) error {
	var payload io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return mserr.Errorf(mserr.CodeCLIInputInvalid, "encoding request: %w", err)
		}
		payload = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return mserr.Errorf(mserr.CodeCLIInputInvalid, "building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isDialError(err) {
			return mserr.New(mserr.CodeCLIServerNotRunning,
				"modelsmith server is not running at "+c.baseURL+" (run 'modelsmith serve')")
		}
		return mserr.Errorf(mserr.CodeCLIRequestFailure, "%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return mserr.Errorf(mserr.CodeCLIResponseInvalid, "reading response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return mserr.Wrap(decodeRemoteError(resp.StatusCode, raw), mserr.CodeCLIRequestFailure,
			method+" "+path, mserr.Field("status", resp.StatusCode))
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return mserr.Errorf(mserr.CodeCLIResponseInvalid, "decoding response: %w", err)
	}
	return nil
}

// decodeRemoteError reads huma's problem body. The code sits either at the
// top level (middleware rejections) or in the first error detail.
func decodeRemoteError(status int, raw []byte) *remoteError {
	var p struct {
		Detail string `json:"detail"`
		Code   string `json:"code"`
		Errors []struct {
			Location string `json:"location"`
			Value    any    `json:"value"`
		} `json:"errors"`
	}
	e := &remoteError{Status: status}
	if err := json.Unmarshal(raw, &p); err != nil {
		e.Detail = strings.TrimSpace(string(raw))
		return e
	}
	e.Detail, e.Code = p.Detail, p.Code
	for _, d := range p.Errors {
		if s, ok := d.Value.(string); ok && d.Location == "code" && e.Code == "" {
			e.Code = s
		}
	}
	return e
}

// isDialError reports a failure to connect, such as connection refused.
func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}
