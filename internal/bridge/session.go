package bridge

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/itsm-triage/internal/config"
	"github.com/spec-kit/itsm-triage/internal/domain"
)

// Tool names exposed by the server.
const (
	ToolClassify     = "classify_ticket_tool"
	ToolTroubleshoot = "troubleshoot_ticket_tool"
	ToolCompose      = "compose_response_tool"
)

// Argument keys shared by the tools.
const (
	argTicket          = "ticket"
	argClassification  = "classification"
	argTroubleshooting = "troubleshooting"
)

// Classify calls the classify tool and validates its reply.
func (c *Client) Classify(ctx context.Context, ticket domain.Ticket) (domain.Classification, error) {
	args, err := toolArgs(argTicket, ticket)
	if err != nil {
		return domain.Classification{}, err
	}
	m, err := c.CallTool(ctx, ToolClassify, args)
	if err != nil {
		return domain.Classification{}, err
	}
	return domain.ParseClassification(m)
}

// Troubleshoot calls the troubleshoot tool and validates its reply.
func (c *Client) Troubleshoot(ctx context.Context, ticket domain.Ticket, cls domain.Classification) (domain.Troubleshooting, error) {
	args, err := toolArgs(argTicket, ticket, argClassification, cls)
	if err != nil {
		return domain.Troubleshooting{}, err
	}
	m, err := c.CallTool(ctx, ToolTroubleshoot, args)
	if err != nil {
		return domain.Troubleshooting{}, err
	}
	return domain.ParseTroubleshooting(m)
}

// Compose calls the compose tool and validates its reply.
func (c *Client) Compose(ctx context.Context, ticket domain.Ticket, cls domain.Classification, ts domain.Troubleshooting) (domain.Communication, error) {
	args, err := toolArgs(argTicket, ticket, argClassification, cls, argTroubleshooting, ts)
	if err != nil {
		return domain.Communication{}, err
	}
	m, err := c.CallTool(ctx, ToolCompose, args)
	if err != nil {
		return domain.Communication{}, err
	}
	return domain.ParseCommunication(m)
}

// toolArgs builds an argument mapping from alternating keys and values.
func toolArgs(kv ...any) (map[string]any, error) {
	args := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key := kv[i].(string)
		m, err := domain.AsMap(kv[i+1])
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		args[key] = m
	}
	return args, nil
}

// WithSession dials the server, runs fn, and always releases the session,
// even when fn fails or panics.
func WithSession(ctx context.Context, cfg config.BridgeConfig, logger *zap.Logger, fn func(*Client) error) (err error) {
	client, err := Dial(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := client.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	return fn(client)
}
