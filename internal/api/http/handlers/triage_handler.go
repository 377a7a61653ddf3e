package handlers

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/itsm-triage/internal/api/dto"
	"github.com/spec-kit/itsm-triage/internal/domain"
	"github.com/spec-kit/itsm-triage/internal/pipeline"
	apperrors "github.com/spec-kit/itsm-triage/pkg/util"
)

// TriageHandler runs tickets through the pipeline.
type TriageHandler struct {
	runner *pipeline.Runner
}

// NewTriageHandler constructs handler.
func NewTriageHandler(runner *pipeline.Runner) *TriageHandler {
	return &TriageHandler{runner: runner}
}

// Triage POST /v1/triage?runner=direct|mcp.
func (h *TriageHandler) Triage(c *fiber.Ctx) error {
	var body map[string]any
	if err := json.Unmarshal(c.Body(), &body); err != nil || body == nil {
		return apperrors.NewValidationError("request body must be a JSON object", nil)
	}
	ticket, err := domain.ParseTicket(body)
	if err != nil {
		return err
	}

	runner := strings.ToLower(c.Query("runner", pipeline.RunnerDirect))
	start := time.Now()
	result, err := h.runner.Run(c.UserContext(), runner, ticket)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTriageResult(result, time.Since(start).Milliseconds())})
}
