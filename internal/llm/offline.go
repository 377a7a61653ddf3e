package llm

import (
	"context"
	"errors"
	"strings"
)

// Markers the stage prompts carry on their task line; Offline uses them to
// pick its reply.
const (
	MarkerClassify     = "Classify the ticket"
	MarkerTroubleshoot = "Create a troubleshooting plan"
	MarkerCompose      = "work-notes update"
)

// ErrUnrecognizedPrompt is returned by Offline for prompts no stage sent.
var ErrUnrecognizedPrompt = errors.New("offline completion: prompt matches no stage")

// Offline answers stage prompts with fixed payloads. It needs no network and
// no key, which makes it the provider of choice for demos and for the tool
// server in end-to-end tests. Replies are fenced the way real models tend to
// answer, so they still go through extraction.
type Offline struct{}

func NewOffline() *Offline { return &Offline{} }

func (Offline) Name() string { return ProviderOffline }
func (Offline) Close() error { return nil }

func (Offline) Complete(ctx context.Context, prompt string, _ Params) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	task := taskLine(prompt)
	switch {
	case strings.Contains(task, MarkerCompose):
		return fence(offlineCommunication), nil
	case strings.Contains(task, MarkerTroubleshoot):
		return fence(offlineTroubleshooting), nil
	case strings.Contains(task, MarkerClassify):
		return fence(offlineClassification), nil
	default:
		return "", ErrUnrecognizedPrompt
	}
}

// taskLine returns the line following the first "TASK:" header. Ticket text
// embedded later in the prompt never decides the stage.
func taskLine(prompt string) string {
	_, rest, ok := strings.Cut(prompt, taskHeader)
	if !ok {
		return ""
	}
	line, _, _ := strings.Cut(rest, "\n")
	return line
}

const taskHeader = "TASK:\n"

func fence(payload string) string {
	return "```json\n" + payload + "\n```"
}

const offlineClassification = `{
  "category": "VPN",
  "priority": "P3",
  "assignment_group": "CIS-VPN-Support",
  "confidence": 0.81,
  "reason": "User cannot establish a VPN session; single user affected."
}`

const offlineTroubleshooting = `{
  "probable_cause": "VPN client profile or credentials out of date",
  "steps": [
    "Confirm the user has working internet access without VPN",
    "Restart the VPN client and retry the connection",
    "Re-import the latest VPN profile from the self-service portal",
    "Verify the account is not locked and MFA is registered",
    "Collect client logs if the error persists"
  ],
  "data_needed": ["Exact error code shown by the client", "Time of last successful connection"],
  "risk_level": "Low",
}`

const offlineCommunication = `{
  "user_message": "Hello, we are looking into your VPN issue. Please restart the VPN client and try again, and let us know the exact error code if it persists.",
  "ticket_update": "Classified as VPN / P3, routed to CIS-VPN-Support. Probable cause: outdated VPN profile or credentials. Steps: restart client, re-import profile, verify account and MFA.",
  "close_recommendation": false
}`
