package executor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/warden/internal/model"
)

func newTestShell(t *testing.T, cfg Config) *Shell {
	t.Helper()
	if cfg.Dir == "" {
		cfg.Dir = t.TempDir()
	}
	if cfg.Env == nil {
		cfg.Env = []string{"PATH=/usr/bin:/bin"}
	}
	return New(cfg)
}

func TestRunCapturesOutput(t *testing.T) {
	s := newTestShell(t, Config{})
	res, err := s.Run(context.Background(), "echo hello; echo oops >&2")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", res.Stdout)
	assert.Equal(t, "oops\n", res.Stderr)
	assert.Equal(t, 0, res.ExitCode)
}

func TestRunExitCode(t *testing.T) {
	s := newTestShell(t, Config{})
	res, err := s.Run(context.Background(), "exit 3")
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
}

func TestRunWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	s := newTestShell(t, Config{Dir: dir})
	res, err := s.Run(context.Background(), "pwd")
	require.NoError(t, err)
	assert.Contains(t, strings.TrimSpace(res.Stdout), dir)
}

func TestRunTimeout(t *testing.T) {
	s := newTestShell(t, Config{Timeout: 100 * time.Millisecond})
	start := time.Now()
	_, err := s.Run(context.Background(), "sleep 5")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestRunContextCancelled(t *testing.T) {
	s := newTestShell(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Run(ctx, "echo never")
	require.Error(t, err)
}

func TestRunTruncatesOutput(t *testing.T) {
	s := newTestShell(t, Config{MaxOutput: 10})
	res, err := s.Run(context.Background(), "echo 0123456789abcdef")
	require.NoError(t, err)
	assert.Equal(t, "0123456789", res.Stdout)
	assert.True(t, res.StdoutTruncated)
	assert.False(t, res.StderrTruncated)
}

func TestRunRedactsSecrets(t *testing.T) {
	s := newTestShell(t, Config{})
	res, err := s.Run(context.Background(), "echo token sk-abcdefghijklmnopqrstuvwxyz")
	require.NoError(t, err)
	assert.Equal(t, "token [REDACTED]\n", res.Stdout)
	assert.Equal(t, 1, res.Redacted)
}

func TestRunStripsSensitiveEnv(t *testing.T) {
	s := newTestShell(t, Config{Env: []string{"PATH=/usr/bin:/bin", "WARDEN_MODEL_API_KEY=k", "VISIBLE=yes"}})
	res, err := s.Run(context.Background(), `echo "${WARDEN_MODEL_API_KEY:-unset} $VISIBLE"`)
	require.NoError(t, err)
	assert.Equal(t, "unset yes\n", res.Stdout)
}

func TestExecuteShellTool(t *testing.T) {
	s := newTestShell(t, Config{})
	out, err := s.Execute(context.Background(), model.ToolCall{Name: "shell", Args: map[string]any{"command": "echo hi"}})
	require.NoError(t, err)
	assert.Equal(t, "hi\n", out)
}

func TestExecuteArgv(t *testing.T) {
	s := newTestShell(t, Config{})
	out, err := s.Execute(context.Background(), model.ToolCall{Name: "exec", Args: map[string]any{"argv": []any{"echo", "a b", "$HOME"}}})
	require.NoError(t, err)
	assert.Equal(t, "a b $HOME\n", out)
}

func TestExecuteNonZeroExit(t *testing.T) {
	s := newTestShell(t, Config{})
	out, err := s.Execute(context.Background(), model.ToolCall{Name: "bash", Args: map[string]any{"command": "echo partial; exit 2"}})
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
	assert.Equal(t, "partial\nexit status 2", out)
}

func TestExecuteUnsupportedTool(t *testing.T) {
	s := newTestShell(t, Config{})
	_, err := s.Execute(context.Background(), model.ToolCall{Name: "write_file", Args: map[string]any{"path": "/tmp/x"}})
	assert.True(t, errors.Is(err, ErrUnsupportedTool))

	_, err = s.Execute(context.Background(), model.ToolCall{Name: "shell"})
	assert.ErrorIs(t, err, ErrUnsupportedTool)
}

func TestRender(t *testing.T) {
	r := &Result{Stdout: "out", Stderr: "err\n", ExitCode: 1, StdoutTruncated: true}
	assert.Equal(t, "out\n[stdout truncated]\nerr\nexit status 1", r.Render())
	assert.Equal(t, "", (&Result{}).Render())
}

func TestLimitedWriter(t *testing.T) {
	tests := []struct {
		name      string
		limit     int
		writes    []string
		want      string
		truncated bool
	}{
		{"under limit", 1024, []string{"hello world"}, "hello world", false},
		{"at limit", 5, []string{"helloworld"}, "hello", true},
		{"multiple writes", 10, []string{"12345", "67890", "overflow"}, "1234567890", true},
		{"exact fill", 10, []string{"12345", "67890"}, "1234567890", false},
		{"zero limit", 0, []string{"anything"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newLimitedWriter(tt.limit)
			for _, s := range tt.writes {
				n, err := w.Write([]byte(s))
				require.NoError(t, err)
				assert.Equal(t, len(s), n)
			}
			assert.Equal(t, tt.want, w.String())
			assert.Equal(t, tt.truncated, w.truncated)
		})
	}
}
