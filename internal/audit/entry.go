package audit

import (
	"encoding/json"
	"time"

	"github.com/ppiankov/warden/internal/model"
)

// Actions recorded in AuditEntry.Action.
const (
	ActionExecuted        = "executed"
	ActionExecutionFailed = "execution_failed"
	ActionDenied          = "denied"
	ActionTimedOut        = "timed_out"
	ActionCancelled       = "cancelled"
	ActionBlocked         = "blocked"
)

// AuditEntry captures one governance decision and its outcome.
// All fields are structs or raw JSON (no map[string]any) so json.Marshal
// field order is fixed and the hash is reproducible.
type AuditEntry struct {
	Timestamp     time.Time       `json:"timestamp"`
	Action        string          `json:"action"`
	ToolName      string          `json:"tool_name"`
	ToolArgs      json.RawMessage `json:"tool_args,omitempty"`
	RiskLevel     model.RiskLevel `json:"risk_level"`
	Reason        string          `json:"reason,omitempty"`
	Deterministic bool            `json:"deterministic"`
	Approved      bool            `json:"approved"`
	Result        string          `json:"result,omitempty"`
	UserID        string          `json:"user_id,omitempty"`
	SessionID     string          `json:"session_id,omitempty"`
	Usage         *model.Usage    `json:"usage,omitempty"`
}

// StoredEntry is one line of a day file: the entry plus its chain links.
type StoredEntry struct {
	AuditEntry
	PrevHash string `json:"prev_hash"`
	Hash     string `json:"hash"`
}

// EncodeArgs canonicalizes tool arguments for an AuditEntry.
// Map keys are sorted by encoding/json.
func EncodeArgs(args map[string]any) (json.RawMessage, error) {
	if len(args) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}
