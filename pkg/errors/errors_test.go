// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package errors_test

import (
	stderrors "errors"
	"net/http"
	"testing"

	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// New / Errorf
// ---------------------------------------------------------------------------

func TestNewIncludesCodeAndFields(t *testing.T) {
	err := mserr.New(
		mserr.CodeResolverPathNotFound,
		"no file matches orders.sql",
		mserr.FieldSessionID("s1"),
		mserr.Field("fragment", "orders.sql"),
	)

	require.Error(t, err)
	assert.Equal(t, mserr.CodeResolverPathNotFound, mserr.CodeOf(err))
	assert.True(t, mserr.HasCode(err, mserr.CodeResolverPathNotFound))

	fields := mserr.FieldsOf(err)
	assert.Equal(t, "s1", fields["session_id"])
	assert.Equal(t, "orders.sql", fields["fragment"])
}

func TestErrorfWrapsInnerError(t *testing.T) {
	inner := stderrors.New("disk full")
	err := mserr.Errorf(mserr.CodeStoreDatabaseFailure, "write failed: %w", inner)
	require.Error(t, err)
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "write failed")
}

// ---------------------------------------------------------------------------
// Wrap / Wrapf / With
// ---------------------------------------------------------------------------

func TestWrapPreservesChainAndCode(t *testing.T) {
	root := stderrors.New("sha mismatch")
	err := mserr.Wrap(root, mserr.CodeHostingFileConflict, "writing file",
		mserr.FieldPath("models/orders.sql"),
		mserr.FieldBranch("modelsmith/abcd1234"),
	)

	require.Error(t, err)
	assert.ErrorIs(t, err, root)
	assert.True(t, mserr.IsConflict(err))
	fields := mserr.FieldsOf(err)
	assert.Equal(t, "models/orders.sql", fields["path"])
	assert.Equal(t, "modelsmith/abcd1234", fields["branch"])
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, mserr.Wrap(nil, mserr.CodeServerInternalFailure, "ignored"))
	assert.NoError(t, mserr.Wrapf(nil, mserr.CodeServerInternalFailure, "ignored %s", "arg"))
	assert.NoError(t, mserr.With(nil, mserr.FieldPR(1)))
}

func TestWithKeepsCode(t *testing.T) {
	base := mserr.New(mserr.CodeHostingFileConflict, "stale revision")
	err := mserr.With(base, mserr.FieldPR(7))

	assert.Equal(t, mserr.CodeHostingFileConflict, mserr.CodeOf(err))
	assert.Equal(t, 7, mserr.FieldsOf(err)["pr_number"])
}

func TestWithPlainErrorFallsBackToInternal(t *testing.T) {
	err := mserr.With(stderrors.New("boom"), mserr.FieldPath("x.sql"))
	assert.Equal(t, mserr.CodeServerInternalFailure, mserr.CodeOf(err))
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, mserr.Code(""), mserr.CodeOf(stderrors.New("plain")))
	assert.Equal(t, mserr.Code(""), mserr.CodeOf(nil))
	assert.Nil(t, mserr.FieldsOf(stderrors.New("plain")))
}

// ---------------------------------------------------------------------------
// Classification
// ---------------------------------------------------------------------------

func TestPredicates(t *testing.T) {
	tests := []struct {
		name  string
		code  mserr.Code
		check func(error) bool
		want  bool
	}{
		{"no targets is invalid input", mserr.CodeAgentTurnNoTargetFiles, mserr.IsInvalidInput, true},
		{"unsupported kind is invalid input", mserr.CodeResolverKindUnsupported, mserr.IsInvalidInput, true},
		{"path not found", mserr.CodeResolverPathNotFound, mserr.IsNotFound, true},
		{"file conflict", mserr.CodeHostingFileConflict, mserr.IsConflict, true},
		{"provider rate limit", mserr.CodeProviderRateLimited, mserr.IsRateLimited, true},
		{"provider rate limit is upstream", mserr.CodeProviderRateLimited, mserr.IsUpstreamFailure, true},
		{"hosting failure is upstream", mserr.CodeHostingUpstreamFailure, mserr.IsUpstreamFailure, true},
		{"ready failure is upstream", mserr.CodeHostingPRReadyFailure, mserr.IsUpstreamFailure, true},
		{"lint unfixable", mserr.CodeLintFixUnfixable, mserr.IsUnfixable, true},
		{"server rate limit is not upstream", mserr.CodeServerRateLimited, mserr.IsUpstreamFailure, false},
		{"conflict is not not-found", mserr.CodeHostingFileConflict, mserr.IsNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.check(mserr.New(tt.code, "x")))
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code mserr.Code
		want int
	}{
		{mserr.CodeAgentTurnNoTargetFiles, http.StatusBadRequest},
		{mserr.CodeResolverKindUnsupported, http.StatusBadRequest},
		{mserr.CodeAgentSessionNoPR, http.StatusBadRequest},
		{mserr.CodeGuardSecretIntroduced, http.StatusBadRequest},
		{mserr.CodeConfigAlreadyExists, http.StatusConflict},
		{mserr.CodeResolverPathNotFound, http.StatusNotFound},
		{mserr.CodeAgentSessionNotFound, http.StatusNotFound},
		{mserr.CodeHostingFileConflict, http.StatusConflict},
		{mserr.CodeServerAuthUnauthorized, http.StatusUnauthorized},
		{mserr.CodeServerAuthForbidden, http.StatusForbidden},
		{mserr.CodeServerRateLimited, http.StatusTooManyRequests},
		{mserr.CodeProviderUpstreamFailure, http.StatusBadGateway},
		{mserr.CodeHostingPRReadyFailure, http.StatusBadGateway},
		{mserr.CodeStoreDatabaseFailure, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, mserr.HTTPStatus(mserr.New(tt.code, "x")))
		})
	}

	assert.Equal(t, http.StatusInternalServerError, mserr.HTTPStatus(stderrors.New("plain")))
}

func TestJoin(t *testing.T) {
	assert.NoError(t, mserr.Join(nil, nil))

	a := stderrors.New("a")
	b := stderrors.New("b")
	err := mserr.Join(a, b)
	require.Error(t, err)
	assert.ErrorIs(t, err, a)
	assert.ErrorIs(t, err, b)
}
