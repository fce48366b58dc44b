// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

// Package errors carries machine-readable codes on top of samber/oops.
//
// Codes follow <area>.<op>.<reason>. The reason suffix drives the Is*
// predicates and HTTPStatus, so new codes only need a well-chosen suffix.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeStoreSessionGetNotFound Code = "store.session.get.not_found"
	CodeStoreDatabaseFailure    Code = "store.database.failure"
	CodeStoreBackendUnsupported Code = "store.backend.unsupported"
	CodeStoreInvalidInput       Code = "store.invalid_input"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"
	CodeConfigAlreadyExists        Code = "config.init.conflict"

	CodeProviderRequestInvalid   Code = "provider.request.invalid"
	CodeProviderResponseInvalid  Code = "provider.response.invalid"
	CodeProviderUpstreamFailure  Code = "provider.upstream.failure"
	CodeProviderRateLimited      Code = "provider.upstream.rate_limited"
	CodeProviderNotFound         Code = "provider.registry.not_found"
	CodeProviderAllUnavailable   Code = "provider.routing.all_unavailable"
	CodeProviderNoDefault        Code = "provider.routing.no_default"
	CodeProviderInvalidModelRef  Code = "provider.routing.invalid_model_ref"
	CodeProviderKeyInvalid       Code = "provider.key.invalid"
	CodeProviderKeyCheckFailed   Code = "provider.key.upstream.failure"
	CodeGenerateOutputMalformed  Code = "generate.output.upstream.failure"
	CodeGenerateTranslateInvalid Code = "generate.translate.upstream.failure"

	CodeResolverKindUnsupported Code = "resolver.kind.invalid_input"
	CodeResolverPathNotFound    Code = "resolver.path.not_found"

	CodeLintFixUnfixable       Code = "lint.fix.unfixable"
	CodeLintToolFailure        Code = "lint.tool.failure"
	CodeHostingUpstreamFailure Code = "hosting.upstream.failure"
	CodeHostingRateLimited     Code = "hosting.upstream.rate_limited"
	CodeHostingFileConflict    Code = "hosting.file.conflict"
	CodeHostingFileNotFound    Code = "hosting.file.not_found"
	CodeHostingBranchNotFound  Code = "hosting.branch.not_found"
	CodeHostingBranchConflict  Code = "hosting.branch.conflict"
	CodeHostingPRNotFound      Code = "hosting.pr.not_found"
	CodeHostingPRReadyFailure  Code = "hosting.pr.ready.upstream.failure"
	CodeHostingConfigInvalid   Code = "hosting.config.invalid"

	CodeAgentTurnInvalidInput  Code = "agent.turn.invalid_input"
	CodeAgentTurnNoTargetFiles Code = "agent.turn.no_targets.invalid_input"
	CodeAgentSessionNotFound   Code = "agent.session.not_found"
	CodeAgentSessionNoPR       Code = "agent.session.no_pr.invalid_input"
	CodeAgentLaneClosed        Code = "agent.lane.closed.failure"
	CodeAgentLanePanic         Code = "agent.lane.panic.failure"

	CodeServerRequestInvalid   Code = "server.request.invalid"
	CodeServerAuthUnauthorized Code = "server.auth.unauthorized"
	CodeServerAuthForbidden    Code = "server.auth.forbidden"
	CodeServerInternalFailure  Code = "server.internal.failure"
	CodeServerEntityNotFound   Code = "server.entity.not_found"
	CodeServerConfigInvalid    Code = "server.config.invalid"
	CodeServerStartFailure     Code = "server.start.failure"
	CodeServerShutdownFailure  Code = "server.shutdown.failure"
	CodeServerRateLimited      Code = "server.request.rate_limited"

	CodeCLIServerNotRunning Code = "cli.server.not_running"
	CodeCLIRequestFailure   Code = "cli.request.failure"
	CodeCLIResponseInvalid  Code = "cli.response.invalid"
	CodeCLISetupFailure     Code = "cli.setup.failure"
	CodeCLIInputInvalid     Code = "cli.input.invalid"

	CodeSecretNotFound       Code = "secret.keyring.not_found"
	CodeSecretBackendFailure Code = "secret.keyring.failure"
	CodeSecretURIInvalid     Code = "secret.uri.invalid"
	CodeSecretInputInvalid   Code = "secret.input.invalid"

	CodeGuardSecretIntroduced Code = "guard.secret.invalid_input"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldSessionID(value string) Attr {
	return Field("session_id", value)
}

func FieldPath(value string) Attr {
	return Field("path", value)
}

func FieldBranch(value string) Attr {
	return Field("branch", value)
}

func FieldProvider(value string) Attr {
	return Field("provider", value)
}

func FieldPR(number int) Attr {
	return Field("pr_number", number)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain, keeping its code.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeServerInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	switch code := oopsErr.Code().(type) {
	case Code:
		return code
	case string:
		return Code(code)
	default:
		return Code(fmt.Sprintf("%v", code))
	}
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsConflict(err error) bool {
	return reason(CodeOf(err)) == "conflict"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

func IsUnauthorized(err error) bool {
	r := reason(CodeOf(err))
	return r == "unauthorized" || r == "forbidden" || r == "denied"
}

// IsRateLimited reports a transient throttling error that callers may retry.
func IsRateLimited(err error) bool {
	return reason(CodeOf(err)) == "rate_limited"
}

func IsUnfixable(err error) bool {
	return reason(CodeOf(err)) == "unfixable"
}

func IsUpstreamFailure(err error) bool {
	code := CodeOf(err)
	return strings.Contains(string(code), "upstream") && (reason(code) == "failure" || reason(code) == "rate_limited")
}

func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsConflict(err):
		return http.StatusConflict
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case IsUnauthorized(err):
		if r := reason(CodeOf(err)); r == "forbidden" || r == "denied" {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	case HasCode(err, CodeServerRateLimited):
		return http.StatusTooManyRequests
	case IsUpstreamFailure(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	joined := stderrors.Join(errs...)
	if joined == nil {
		return nil
	}
	return oops.Code(CodeServerInternalFailure).Wrap(joined)
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
