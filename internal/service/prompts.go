package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spec-kit/itsm-triage/internal/domain"
	"github.com/spec-kit/itsm-triage/internal/llm"
)

const (
	classifySystem = "You are an ITSM Ticket Classification Agent for the CIS service desk. " +
		"You must return ONLY valid JSON and follow the schema strictly."
	troubleshootSystem = "You are a CIS Troubleshooting Agent (L1/L2). " +
		"You must return ONLY valid JSON and follow the schema strictly."
	composeSystem = "You are a Service Desk Communication Agent. " +
		"Your response should be professional, short, and action-oriented. " +
		"You must return ONLY valid JSON and follow the schema strictly."
)

func classifyPrompt(t domain.Ticket) string {
	var b strings.Builder
	fmt.Fprintf(&b, "TASK:\n%s and return ONLY valid JSON (no markdown, no ``` fences, no extra text).\n\n", llm.MarkerClassify)
	b.WriteString(`OUTPUT JSON SCHEMA (MUST follow exactly):
{
  "category": "` + joinCategories(" | ") + `",
  "priority": "P1 | P2 | P3 | P4",
  "assignment_group": "string",
  "confidence": 0.0,
  "reason": "short text"
}

STRICT RULES:
1) category MUST be exactly ONE of these values (case-sensitive):
   ` + quoteCategories() + `
   Do NOT shorten (example: do NOT output "Laptop"). Do NOT invent new values.
2) priority MUST be exactly one of: "P1","P2","P3","P4"
3) confidence MUST be a NUMBER between 0 and 1 (example: 0.72).
4) assignment_group should be a CIS-style group name. Use one of these patterns:
`)
	for _, g := range domain.AssignmentGroups {
		fmt.Fprintf(&b, "   - %q\n", g)
	}
	b.WriteString(`   If unsure, choose the closest one.
5) If not sure: set category="Other", priority="P3", confidence <= 0.6 and explain in reason.
6) Return ONLY JSON. No trailing commas.

`)
	section(&b, "TICKET", t)
	return strings.TrimSpace(b.String())
}

func troubleshootPrompt(t domain.Ticket, c domain.Classification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "TASK:\n%s that a service desk engineer can follow.\n\n", llm.MarkerTroubleshoot)
	b.WriteString(`OUTPUT JSON SCHEMA (MUST follow exactly):
{
  "probable_cause": "short text",
  "steps": ["step 1", "step 2", "step 3", "step 4"],
  "data_needed": ["optional question 1", "optional question 2"],
  "risk_level": "Low | Medium | High"
}

STRICT RULES:
1) steps MUST be a list of 4 to 7 short, clear steps (no more than 1-2 lines each).
2) data_needed MUST be a list (can be empty []).
3) risk_level MUST be exactly one of: "Low", "Medium", "High".
4) Return ONLY JSON. No markdown. No ` + "```" + ` fences. No trailing commas.

`)
	section(&b, "TICKET", t)
	section(&b, "CLASSIFICATION", c)
	return strings.TrimSpace(b.String())
}

func composePrompt(t domain.Ticket, c domain.Classification, ts domain.Troubleshooting) string {
	var b strings.Builder
	fmt.Fprintf(&b, "TASK:\nWrite (1) a message to the user and (2) a %s for the ticket.\n\n", llm.MarkerCompose)
	b.WriteString(`OUTPUT JSON SCHEMA (MUST follow exactly):
{
  "user_message": "short professional message",
  "ticket_update": "work notes text",
  "close_recommendation": false
}

STRICT RULES:
1) user_message: short and polite; include next steps and questions from data_needed (if any).
2) ticket_update: include classification + probable cause + steps summary in service desk tone.
3) close_recommendation MUST be true/false (boolean, not string).
4) Return ONLY JSON. No markdown. No ` + "```" + ` fences. No trailing commas.

`)
	section(&b, "TICKET", t)
	section(&b, "CLASSIFICATION", c)
	section(&b, "TROUBLESHOOTING", ts)
	return strings.TrimSpace(b.String())
}

// section embeds a prior artifact verbatim as indented JSON.
func section(b *strings.Builder, title string, v any) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		raw = []byte(fmt.Sprintf("%+v", v))
	}
	fmt.Fprintf(b, "%s:\n%s\n\n", title, raw)
}

func joinCategories(sep string) string {
	names := make([]string, 0, len(domain.Categories))
	for _, c := range domain.Categories {
		names = append(names, string(c))
	}
	return strings.Join(names, sep)
}

func quoteCategories() string {
	names := make([]string, 0, len(domain.Categories))
	for _, c := range domain.Categories {
		names = append(names, fmt.Sprintf("%q", string(c)))
	}
	return strings.Join(names, ",")
}
