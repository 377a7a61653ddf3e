package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/itsm-triage/internal/domain"
	"github.com/spec-kit/itsm-triage/internal/events"
	"github.com/spec-kit/itsm-triage/internal/gateway"
	"github.com/spec-kit/itsm-triage/internal/llm"
	"github.com/spec-kit/itsm-triage/internal/observability"
	"github.com/spec-kit/itsm-triage/internal/service"
	apperrors "github.com/spec-kit/itsm-triage/pkg/util"
)

const (
	classificationReply  = `{"category":"VPN","priority":"P3","assignment_group":"CIS-VPN-Support","confidence":0.8,"reason":"single user vpn failure"}`
	troubleshootingReply = "```json\n" + `{"probable_cause":"stale profile","steps":["restart client","re-import profile","check account","collect logs"],"risk_level":"Low",}` + "\n```"
	communicationReply   = `Here it is: {"user_message":"We are on it.","ticket_update":"VPN P3, stale profile.","close_recommendation":false}`
)

func sampleTicket(t *testing.T) domain.Ticket {
	t.Helper()
	ticket, err := domain.ParseTicket(map[string]any{
		"ticket_id":         "INC-1",
		"short_description": "VPN not connecting",
		"description":       "Error 809",
		"impact":            "Single User",
		"urgency":           "Medium",
	})
	require.NoError(t, err)
	return ticket
}

func scriptedStages(replies ...string) (*service.TriageService, *llm.Scripted) {
	svc := llm.NewScripted(replies...)
	return service.NewTriageService(gateway.New(svc, llm.Params{Temperature: 0.2, MaxOutputTokens: 1200}), nil), svc
}

type recorder struct {
	mu    sync.Mutex
	types []events.EventType
}

func (r *recorder) handle(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, e.Type)
	return nil
}

type fakeSession struct {
	Stages
	closed bool
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func TestRunDirectEndToEnd(t *testing.T) {
	stages, svc := scriptedStages(classificationReply, troubleshootingReply, communicationReply)
	rec := &recorder{}
	dispatcher := events.NewInMemoryDispatcher()
	events.SubscribeAll(dispatcher, rec.handle)
	metrics := observability.NewMetrics()

	runner := NewRunner(Dependencies{Stages: stages, Dispatcher: dispatcher, Metrics: metrics})
	res, err := runner.RunDirect(context.Background(), sampleTicket(t))
	require.NoError(t, err)

	assert.Equal(t, RunnerDirect, res.Runner)
	assert.Equal(t, "INC-1", res.Ticket.TicketID)
	assert.Equal(t, domain.UnknownCaller, res.Ticket.Caller)
	assert.Equal(t, domain.CategoryVPN, res.Classification.Category)
	assert.Len(t, res.Troubleshooting.Steps, 4)
	assert.Equal(t, []string{}, res.Troubleshooting.DataNeeded)
	assert.False(t, res.Communication.CloseRecommendation)
	assert.Equal(t, 3, svc.Calls())

	m, err := domain.AsMap(res)
	require.NoError(t, err)
	assert.Equal(t, "direct", m["runner"])
	for key, parse := range map[string]func(map[string]any) error{
		"ticket":          func(v map[string]any) error { _, err := domain.ParseTicket(v); return err },
		"classification":  func(v map[string]any) error { _, err := domain.ParseClassification(v); return err },
		"troubleshooting": func(v map[string]any) error { _, err := domain.ParseTroubleshooting(v); return err },
		"communication":   func(v map[string]any) error { _, err := domain.ParseCommunication(v); return err },
	} {
		sub, ok := m[key].(map[string]any)
		require.True(t, ok, key)
		assert.NoError(t, parse(sub), key)
	}

	assert.Equal(t, []events.EventType{
		events.EventRunStarted,
		events.EventStageStarted, events.EventStageCompleted,
		events.EventStageStarted, events.EventStageCompleted,
		events.EventStageStarted, events.EventStageCompleted,
		events.EventRunCompleted,
	}, rec.types)
	assert.Len(t, metrics.Snapshot().Stages, 3)
}

func TestPromptsCarryPriorArtifacts(t *testing.T) {
	stages, svc := scriptedStages(classificationReply, troubleshootingReply, communicationReply)
	_, err := NewRunner(Dependencies{Stages: stages}).RunDirect(context.Background(), sampleTicket(t))
	require.NoError(t, err)

	prompts := svc.Prompts()
	require.Len(t, prompts, 3)
	assert.Contains(t, prompts[0], `"ticket_id": "INC-1"`)
	assert.NotContains(t, prompts[0], "CLASSIFICATION:")
	assert.Contains(t, prompts[1], `"assignment_group": "CIS-VPN-Support"`)
	assert.Contains(t, prompts[2], `"probable_cause": "stale profile"`)
	for _, p := range prompts {
		assert.Contains(t, p, gateway.Preamble)
	}
}

func TestRunMCPMatchesDirectExceptRunner(t *testing.T) {
	direct, _ := scriptedStages(classificationReply, troubleshootingReply, communicationReply)
	remote, _ := scriptedStages(classificationReply, troubleshootingReply, communicationReply)
	session := &fakeSession{Stages: remote}

	runner := NewRunner(Dependencies{
		Stages:      direct,
		OpenSession: func(context.Context) (Session, error) { return session, nil },
	})
	d, err := runner.Run(context.Background(), RunnerDirect, sampleTicket(t))
	require.NoError(t, err)
	m, err := runner.Run(context.Background(), RunnerMCP, sampleTicket(t))
	require.NoError(t, err)

	assert.Equal(t, RunnerMCP, m.Runner)
	assert.True(t, session.closed)
	m.Runner = d.Runner
	assert.Equal(t, d, m)
}

func TestGarbageClassificationStopsBeforeTroubleshooting(t *testing.T) {
	stages, svc := scriptedStages("I'm sorry, I can't produce JSON today.", troubleshootingReply, communicationReply)
	rec := &recorder{}
	dispatcher := events.NewInMemoryDispatcher()
	events.SubscribeAll(dispatcher, rec.handle)

	_, err := NewRunner(Dependencies{Stages: stages, Dispatcher: dispatcher}).RunDirect(context.Background(), sampleTicket(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrSchemaViolation)
	assert.ErrorIs(t, err, apperrors.ErrUnparsableOutput)
	assert.Equal(t, 1, svc.Calls())

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageClassify, se.Stage)
	assert.Equal(t, RunnerDirect, se.Runner)

	de := apperrors.ToDomainError(err)
	assert.Equal(t, apperrors.CodeUnparsableOutput, de.Code)
	assert.Equal(t, "classify", de.Details["stage"])
	assert.Equal(t, "classification", de.Details["model"])

	assert.Equal(t, []events.EventType{
		events.EventRunStarted, events.EventStageStarted, events.EventStageFailed, events.EventRunFailed,
	}, rec.types)
}

func TestSchemaViolationInTroubleshootingStopsCompose(t *testing.T) {
	stages, svc := scriptedStages(classificationReply, `{"probable_cause":"x","steps":"reboot"}`, communicationReply)
	_, err := NewRunner(Dependencies{Stages: stages}).RunDirect(context.Background(), sampleTicket(t))
	require.ErrorIs(t, err, apperrors.ErrSchemaViolation)
	assert.NotErrorIs(t, err, apperrors.ErrUnparsableOutput)
	assert.Equal(t, 2, svc.Calls())

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageTroubleshoot, se.Stage)
}

func TestCompletionFailurePropagates(t *testing.T) {
	stages, svc := scriptedStages()
	boom := errors.New("connection refused")
	svc.Err = boom

	_, err := NewRunner(Dependencies{Stages: stages}).RunDirect(context.Background(), sampleTicket(t))
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, apperrors.ErrCompletion)
	assert.True(t, strings.HasSuffix(err.Error(), ": connection refused"), err.Error())

	de := apperrors.ToDomainError(err)
	assert.Equal(t, apperrors.CodeCompletionFailure, de.Code)
	assert.Equal(t, "scripted", de.Details["provider"])
	assert.Equal(t, StageClassify, de.Details["stage"])
}

func TestRunMCPClosesSessionOnFailure(t *testing.T) {
	remote, _ := scriptedStages("garbage")
	session := &fakeSession{Stages: remote}
	runner := NewRunner(Dependencies{OpenSession: func(context.Context) (Session, error) { return session, nil }})

	_, err := runner.RunMCP(context.Background(), sampleTicket(t))
	require.Error(t, err)
	assert.True(t, session.closed)
}

func TestRunMCPSessionOpenFailure(t *testing.T) {
	spawn := errors.New("exec: not found")
	runner := NewRunner(Dependencies{OpenSession: func(context.Context) (Session, error) {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrTransport, spawn)
	}})

	_, err := runner.RunMCP(context.Background(), sampleTicket(t))
	assert.ErrorIs(t, err, spawn)
	assert.Equal(t, apperrors.CodeTransportFailure, apperrors.ToDomainError(err).Code)
	assert.Equal(t, "connect", apperrors.ToDomainError(err).Details["stage"])
}

func TestRunRejectsUnknownRunner(t *testing.T) {
	stages, _ := scriptedStages()
	_, err := NewRunner(Dependencies{Stages: stages}).Run(context.Background(), "batch", sampleTicket(t))
	assert.Equal(t, apperrors.CodeValidation, apperrors.ToDomainError(err).Code)

	_, err = NewRunner(Dependencies{}).RunMCP(context.Background(), sampleTicket(t))
	assert.Error(t, err)
}
