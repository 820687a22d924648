package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ToolCall is one proposed tool invocation.
type ToolCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// Classification is the risk verdict for exactly one ToolCall.
// Deterministic is true when a rule matched, false when a model supplied it.
type Classification struct {
	Level         RiskLevel `json:"level"`
	Reason        string    `json:"reason"`
	Deterministic bool      `json:"deterministic"`
}

func (c Classification) String() string {
	return fmt.Sprintf("%s (%s): %s", c.Level, c.Level.Label(), c.Reason)
}

// Usage is optional cost metadata attached to an audit entry.
type Usage struct {
	InputTokens  int     `json:"input_tokens,omitempty"`
	OutputTokens int     `json:"output_tokens,omitempty"`
	CostUSD      float64 `json:"cost_usd,omitempty"`
}

// ArgString returns the first string-valued argument among keys.
func ArgString(args map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := args[k]; ok {
			if s, ok := v.(string); ok {
				return s, true
			}
		}
	}
	return "", false
}

// ArgStrings collects string arguments for keys, flattening string slices.
func ArgStrings(args map[string]any, keys ...string) []string {
	var out []string
	for _, k := range keys {
		switch v := args[k].(type) {
		case string:
			out = append(out, v)
		case []string:
			out = append(out, v...)
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

// DescribeArgs renders args as stable "key=value" pairs for prompts and logs.
func DescribeArgs(args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		var val string
		switch v := args[k].(type) {
		case string:
			val = v
		default:
			b, err := json.Marshal(v)
			if err != nil {
				val = fmt.Sprintf("%v", v)
			} else {
				val = string(b)
			}
		}
		parts = append(parts, k+"="+val)
	}
	return strings.Join(parts, " ")
}
