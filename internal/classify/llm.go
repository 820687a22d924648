package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/warden/internal/model"
)

// Supported model APIs.
const (
	APIOllama = "ollama"
	APIOpenAI = "openai"
)

// ModelConfig holds parameters for the model fallback.
type ModelConfig struct {
	URL       string        `yaml:"url" json:"url"`
	API       string        `yaml:"api" json:"api"` // "ollama" or "openai"
	Name      string        `yaml:"name" json:"name"`
	APIKey    string        `yaml:"api_key" json:"-"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	MaxTokens int           `yaml:"max_tokens" json:"max_tokens"`
}

// ErrUnparseableReply is returned when the model answered but not in the
// expected shape.
var ErrUnparseableReply = errors.New("unparseable model reply")

// StatusError is a non-200 answer from the model host.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("model HTTP %d: %s", e.Code, e.Body)
}

// maxResponseBytes caps how much of the model host's response is read.
const maxResponseBytes = 1 << 20

const classifySystemPrompt = `You are a risk classifier for tool calls made by an autonomous agent on a user's machine.

Risk levels:
- L0: read-only, no side effects
- L1: routine and reversible changes
- L2: destructive or irreversible; a human must approve
- L3: forbidden; must never run (system compromise, credential theft, data destruction beyond recovery)

When unsure, choose the higher level.

Reply with exactly this XML and nothing else:
<classification><level>L0|L1|L2|L3</level><reason>one short sentence</reason></classification>`

// ClassifyWithLLM asks the configured model to classify a tool call. The
// result always has Deterministic=false. Any transport, status or parse
// failure is returned as an error; the caller decides the fallback level.
func ClassifyWithLLM(ctx context.Context, toolName string, args map[string]any, cfg ModelConfig) (model.Classification, model.Usage, error) {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 200
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	prompt := describeCall(toolName, args)

	var (
		reply string
		usage model.Usage
		err   error
	)
	switch cfg.API {
	case APIOpenAI:
		reply, usage, err = chatCompletion(ctx, cfg, prompt)
	case APIOllama, "":
		reply, usage, err = ollamaGenerate(ctx, cfg, prompt)
	default:
		return model.Classification{}, usage, fmt.Errorf("unknown model api %q", cfg.API)
	}
	if err != nil {
		return model.Classification{}, usage, err
	}

	c, ok := TryParseXMLClassification(reply)
	if !ok {
		return model.Classification{}, usage, fmt.Errorf("%w: %s", ErrUnparseableReply, truncate(reply, 200))
	}
	c.Deterministic = false
	return c, usage, nil
}

func describeCall(toolName string, args map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tool: %s\n", toolName)
	if cmd, ok := ShellCommand(args); ok && IsShellTool(toolName) {
		fmt.Fprintf(&b, "Shell command: %s\n", cmd)
	}
	argsJSON, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		argsJSON = []byte(model.DescribeArgs(args))
	}
	fmt.Fprintf(&b, "Arguments:\n%s\n", argsJSON)
	return b.String()
}

func ollamaGenerate(ctx context.Context, cfg ModelConfig, prompt string) (string, model.Usage, error) {
	body, _ := json.Marshal(map[string]any{
		"model":  cfg.Name,
		"system": classifySystemPrompt,
		"prompt": prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": 0,
			"num_predict": cfg.MaxTokens,
		},
	})

	respBody, err := post(ctx, cfg, body)
	if err != nil {
		return "", model.Usage{}, err
	}

	var result struct {
		Response        string `json:"response"`
		PromptEvalCount int    `json:"prompt_eval_count"`
		EvalCount       int    `json:"eval_count"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", model.Usage{}, fmt.Errorf("%w: decode ollama response: %v", ErrUnparseableReply, err)
	}
	return result.Response, model.Usage{InputTokens: result.PromptEvalCount, OutputTokens: result.EvalCount}, nil
}

func chatCompletion(ctx context.Context, cfg ModelConfig, prompt string) (string, model.Usage, error) {
	body, _ := json.Marshal(map[string]any{
		"model": cfg.Name,
		"messages": []map[string]string{
			{"role": "system", "content": classifySystemPrompt},
			{"role": "user", "content": prompt},
		},
		"max_tokens":  cfg.MaxTokens,
		"temperature": 0,
	})

	respBody, err := post(ctx, cfg, body)
	if err != nil {
		return "", model.Usage{}, err
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil || len(result.Choices) == 0 {
		return "", model.Usage{}, fmt.Errorf("%w: empty chat completion", ErrUnparseableReply)
	}
	usage := model.Usage{InputTokens: result.Usage.PromptTokens, OutputTokens: result.Usage.CompletionTokens}
	return result.Choices[0].Message.Content, usage, nil
}

func post(ctx context.Context, cfg ModelConfig, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: cfg.Timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read model response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: truncate(strings.TrimSpace(string(respBody)), 200)}
	}
	return respBody, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
