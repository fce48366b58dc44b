// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package hosting_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelsmith-dev/modelsmith/internal/hosting"
	"github.com/modelsmith-dev/modelsmith/internal/hosting/local"
	"github.com/modelsmith-dev/modelsmith/internal/retry"
	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
)

// flakyHost throttles the first n calls to GetFile and PutFile.
type flakyHost struct {
	hosting.Host
	throttle int
	calls    int
	err      error
}

func (f *flakyHost) GetFile(ctx context.Context, path, ref string) (*hosting.File, error) {
	f.calls++
	if f.calls <= f.throttle {
		return nil, mserr.New(mserr.CodeHostingRateLimited, "secondary rate limit")
	}
	return f.Host.GetFile(ctx, path, ref)
}

func (f *flakyHost) PutFile(ctx context.Context, req hosting.PutFileRequest) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.Host.PutFile(ctx, req)
}

var fast = retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

func seeded(t *testing.T) hosting.Host {
	t.Helper()
	repo, err := local.InitMemory(map[string]string{"models/orders.sql": "select 1\n"})
	require.NoError(t, err)
	return local.New(repo)
}

func TestRetrying_RecoversFromThrottling(t *testing.T) {
	inner := &flakyHost{Host: seeded(t), throttle: 2}
	h := hosting.WithRetry(inner, fast)

	f, err := h.GetFile(context.Background(), "models/orders.sql", "main")
	require.NoError(t, err)
	assert.Equal(t, "select 1\n", f.Content)
	assert.Equal(t, 3, inner.calls)
}

func TestRetrying_GivesUp(t *testing.T) {
	inner := &flakyHost{Host: seeded(t), throttle: 10}
	_, err := hosting.WithRetry(inner, fast).GetFile(context.Background(), "models/orders.sql", "main")
	require.Error(t, err)
	assert.True(t, mserr.IsRateLimited(err))
	assert.Equal(t, 3, inner.calls)
}

func TestRetrying_ConflictIsNotRetried(t *testing.T) {
	inner := &flakyHost{Host: seeded(t), err: mserr.New(mserr.CodeHostingFileConflict, "stale")}
	_, err := hosting.WithRetry(inner, fast).PutFile(context.Background(), hosting.PutFileRequest{Path: "x.sql", Branch: "main"})
	require.Error(t, err)
	assert.True(t, mserr.IsConflict(err))
	assert.Equal(t, 1, inner.calls)
}
