// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/modelsmith-dev/modelsmith/internal/agent"
	"github.com/modelsmith-dev/modelsmith/internal/store"
	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
	"github.com/modelsmith-dev/modelsmith/pkg/health"
)

// TurnRequest is the body of POST /requests.
type TurnRequest struct {
	SessionID     string   `json:"session_id,omitempty" doc:"Session to continue; a new one is started when empty"`
	FileNames     []string `json:"file_names,omitempty" doc:"Explicit target files; references are extracted from the prompt when empty"`
	AnalystPrompt string   `json:"analyst_prompt" doc:"Change request, or a confirmation such as 'looks good'"`
}

// TurnReply is the response of a turn.
type TurnReply struct {
	Message      string            `json:"message"`
	SessionID    string            `json:"session_id"`
	Branch       string            `json:"branch,omitempty"`
	PRNumber     int               `json:"pr_number,omitempty"`
	PRURL        string            `json:"pr_url,omitempty"`
	Updated      []string          `json:"updated,omitempty"`
	Unchanged    []string          `json:"unchanged,omitempty"`
	LintWarnings map[string]string `json:"lint_warnings,omitempty"`
	Finalized    bool              `json:"finalized"`
}

// TranslateRequest is the body of POST /translate-and-forward.
type TranslateRequest struct {
	Prompt    string `json:"prompt" doc:"High-level business request"`
	SessionID string `json:"session_id,omitempty"`
}

// TranslateReply is a turn reply plus the translation that drove it.
type TranslateReply struct {
	TurnReply
	Files  []string `json:"files"`
	Prompt string   `json:"prompt"`
}

// SessionView is the API form of a stored session.
type SessionView struct {
	ID             string    `json:"id"`
	Branch         string    `json:"branch"`
	BaseBranch     string    `json:"base_branch"`
	PRNumber       int       `json:"pr_number,omitempty"`
	PRURL          string    `json:"pr_url,omitempty"`
	OriginalPrompt string    `json:"original_prompt"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func sessionView(s *store.Session) SessionView {
	return SessionView{
		ID:             s.ID,
		Branch:         s.Branch,
		BaseBranch:     s.BaseBranch,
		PRNumber:       s.PRNumber,
		PRURL:          s.PRURL,
		OriginalPrompt: s.OriginalPrompt,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

type turnInput struct {
	Body TurnRequest
}

type turnOutput struct {
	Body TurnReply
}

type translateInput struct {
	Body TranslateRequest
}

type translateOutput struct {
	Body TranslateReply
}

type listSessionsOutput struct {
	Body struct {
		Sessions []SessionView `json:"sessions"`
	}
}

type getSessionInput struct {
	ID string `path:"id" doc:"Session ID"`
}

type getSessionOutput struct {
	Body SessionView
}

type providerHealthOutput struct {
	Body health.Report
}

type healthOutput struct {
	Body struct {
		Status string `json:"status" example:"ok" doc:"Health status"`
	}
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"system"},
	}, func(_ context.Context, _ *struct{}) (*healthOutput, error) {
		out := &healthOutput{}
		out.Body.Status = "ok"
		return out, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "submit-request",
		Method:      http.MethodPost,
		Path:        "/requests",
		Summary:     "Run one turn of a draft PR session",
		Tags:        []string{"requests"},
	}, s.handleTurn)

	huma.Register(s.api, huma.Operation{
		OperationID: "translate-and-forward",
		Method:      http.MethodPost,
		Path:        "/translate-and-forward",
		Summary:     "Translate a business request into file edits and run it as a turn",
		Tags:        []string{"requests"},
	}, s.handleTranslate)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions",
		Summary:     "List open sessions",
		Tags:        []string{"sessions"},
	}, s.handleListSessions)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{id}",
		Summary:     "Get an open session",
		Tags:        []string{"sessions"},
	}, s.handleGetSession)

	huma.Register(s.api, huma.Operation{
		OperationID: "provider-health",
		Method:      http.MethodGet,
		Path:        "/api/v1/providers/health",
		Summary:     "Health of the configured model providers",
		Tags:        []string{"providers"},
	}, s.handleProviderHealth)
}

func (s *Server) handleTurn(ctx context.Context, input *turnInput) (*turnOutput, error) {
	reply, err := s.runTurn(ctx, agent.Turn{
		SessionID: input.Body.SessionID,
		FileNames: input.Body.FileNames,
		Prompt:    input.Body.AnalystPrompt,
	})
	if err != nil {
		return nil, err
	}
	return &turnOutput{Body: turnReply(reply)}, nil
}

// handleTranslate forwards confirmations untouched; the translator would
// otherwise turn "looks good" into an edit instruction.
func (s *Server) handleTranslate(ctx context.Context, input *translateInput) (*translateOutput, error) {
	if s.deps.Translator == nil {
		return nil, huma.Error503ServiceUnavailable("translator not configured")
	}
	if strings.TrimSpace(input.Body.Prompt) == "" {
		return nil, apiError(mserr.New(mserr.CodeServerRequestInvalid, "prompt is required"))
	}

	files, prompt := []string{}, input.Body.Prompt
	if !agent.IsConfirmation(prompt) {
		tr, err := s.deps.Translator.Translate(ctx, prompt)
		if err != nil {
			return nil, apiError(err)
		}
		files, prompt = tr.Files, tr.Prompt
		slog.Debug("translated request", "files", files)
	}

	reply, err := s.runTurn(ctx, agent.Turn{
		SessionID: input.Body.SessionID,
		FileNames: files,
		Prompt:    prompt,
	})
	if err != nil {
		return nil, err
	}
	return &translateOutput{Body: TranslateReply{TurnReply: turnReply(reply), Files: files, Prompt: prompt}}, nil
}

// runTurn queues the turn on its session's lane. The lane is released
// once idle, so abandoned sessions do not pin a worker.
func (s *Server) runTurn(ctx context.Context, t agent.Turn) (*agent.Reply, error) {
	t.SessionID = strings.TrimSpace(t.SessionID)
	if t.SessionID == "" {
		t.SessionID = s.deps.NewSessionID()
	}

	var reply *agent.Reply
	err := s.lanes.Submit(ctx, t.SessionID, func(ctx context.Context) error {
		r, err := s.deps.Agent.HandleTurn(ctx, t)
		reply = r
		return err
	})
	s.lanes.Release(t.SessionID)
	if err != nil {
		slog.Warn("turn failed",
			"session_id", t.SessionID,
			"code", mserr.CodeOf(err),
			"error", err)
		return nil, apiError(mserr.With(err, mserr.FieldSessionID(t.SessionID)))
	}

	slog.Info("turn handled",
		"session_id", reply.SessionID,
		"pr_number", reply.PRNumber,
		"updated", len(reply.Updated),
		"finalized", reply.Finalized)
	return reply, nil
}

func turnReply(r *agent.Reply) TurnReply {
	return TurnReply{
		Message:      r.Message,
		SessionID:    r.SessionID,
		Branch:       r.Branch,
		PRNumber:     r.PRNumber,
		PRURL:        r.PRURL,
		Updated:      r.Updated,
		Unchanged:    r.Unchanged,
		LintWarnings: r.LintWarnings,
		Finalized:    r.Finalized,
	}
}

func (s *Server) handleListSessions(ctx context.Context, _ *struct{}) (*listSessionsOutput, error) {
	if s.deps.Sessions == nil {
		return nil, huma.Error503ServiceUnavailable("session store not configured")
	}
	sessions, err := s.deps.Sessions.List(ctx)
	if err != nil {
		return nil, apiError(err)
	}
	out := &listSessionsOutput{}
	out.Body.Sessions = make([]SessionView, 0, len(sessions))
	for _, sess := range sessions {
		out.Body.Sessions = append(out.Body.Sessions, sessionView(sess))
	}
	return out, nil
}

func (s *Server) handleGetSession(ctx context.Context, input *getSessionInput) (*getSessionOutput, error) {
	if s.deps.Sessions == nil {
		return nil, huma.Error503ServiceUnavailable("session store not configured")
	}
	sess, err := s.deps.Sessions.Get(ctx, input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return &getSessionOutput{Body: sessionView(sess)}, nil
}

func (s *Server) handleProviderHealth(ctx context.Context, _ *struct{}) (*providerHealthOutput, error) {
	if s.deps.Providers == nil {
		return nil, huma.Error503ServiceUnavailable("no providers configured")
	}
	return &providerHealthOutput{Body: health.Summarize(s.deps.Providers.Health(ctx))}, nil
}

// apiError maps a coded error onto a problem+json response. The code is
// reported as the first error detail.
func apiError(err error) error {
	status := mserr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "code", mserr.CodeOf(err), "error", err)
	}
	return huma.NewError(status, err.Error(), &huma.ErrorDetail{
		Message:  "error code",
		Location: "code",
		Value:    string(mserr.CodeOf(err)),
	})
}
