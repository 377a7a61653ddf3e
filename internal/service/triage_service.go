package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/itsm-triage/internal/domain"
)

// Completer turns system and user instructions into a JSON mapping. An
// empty mapping means the reply could not be parsed.
type Completer interface {
	CompleteJSON(ctx context.Context, system, user string) (map[string]any, error)
}

// TriageService runs the three pipeline stages. Each stage builds its prompt
// from earlier artifacts, asks the completer, and validates the reply; a
// validation failure is returned as is and ends the run.
type TriageService struct {
	completer Completer
	logger    *zap.Logger
}

// NewTriageService creates the service.
func NewTriageService(completer Completer, logger *zap.Logger) *TriageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TriageService{completer: completer, logger: logger}
}

// Classify assigns category, priority and assignment group to a ticket.
func (s *TriageService) Classify(ctx context.Context, ticket domain.Ticket) (domain.Classification, error) {
	m, err := s.complete(ctx, "classification", ticket.TicketID, classifySystem, classifyPrompt(ticket))
	if err != nil {
		return domain.Classification{}, err
	}
	return domain.ParseClassification(m)
}

// Troubleshoot derives a remediation plan from the ticket and its classification.
func (s *TriageService) Troubleshoot(ctx context.Context, ticket domain.Ticket, cls domain.Classification) (domain.Troubleshooting, error) {
	m, err := s.complete(ctx, "troubleshooting", ticket.TicketID, troubleshootSystem, troubleshootPrompt(ticket, cls))
	if err != nil {
		return domain.Troubleshooting{}, err
	}
	return domain.ParseTroubleshooting(m)
}

// Compose writes the user message and the work note.
func (s *TriageService) Compose(ctx context.Context, ticket domain.Ticket, cls domain.Classification, ts domain.Troubleshooting) (domain.Communication, error) {
	m, err := s.complete(ctx, "communication", ticket.TicketID, composeSystem, composePrompt(ticket, cls, ts))
	if err != nil {
		return domain.Communication{}, err
	}
	return domain.ParseCommunication(m)
}

func (s *TriageService) complete(ctx context.Context, model, ticketID, system, user string) (map[string]any, error) {
	start := time.Now()
	m, err := s.completer.CompleteJSON(ctx, system, user)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("stage reply",
		zap.String("model", model),
		zap.String("ticket_id", ticketID),
		zap.Int("keys", len(m)),
		zap.Duration("elapsed", time.Since(start)))
	if len(m) == 0 {
		return nil, domain.NewUnparsableOutput(model)
	}
	return m, nil
}
