package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ppiankov/warden/internal/model"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, p Prompt) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(p)
	case "", "generic":
		return formatGeneric(p)
	default:
		return nil, fmt.Errorf("unknown webhook format %q", format)
	}
}

func formatGeneric(p Prompt) ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		Prompt
	}{Type: "approval_requested", Prompt: p})
}

func formatSlack(p Prompt) ([]byte, error) {
	c := p.Classification
	expires := "never"
	if p.ExpiresAt != nil {
		expires = p.ExpiresAt.UTC().Format(time.RFC3339)
	}

	payload := map[string]any{
		"text": fmt.Sprintf("warden: approval required for %s (%s)", p.ToolName, c.Level),
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("warden: approval required (%s)", c.Level),
				},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Tool:* %s", p.ToolName)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Level:* %s (%s)", c.Level, c.Level.Label())},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Reason:* %s", c.Reason)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Expires:* %s", expires)},
				},
			},
			map[string]any{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": fmt.Sprintf("```%s```", model.DescribeArgs(p.ToolArgs)),
				},
			},
			map[string]any{
				"type": "context",
				"elements": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("Reply `approve %s` or `deny %s`", p.Nonce, p.Nonce)},
				},
			},
		},
	}
	return json.Marshal(payload)
}
