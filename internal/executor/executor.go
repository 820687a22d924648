// Package executor runs approved shell tool calls on the local host.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/ppiankov/warden/internal/classify"
	"github.com/ppiankov/warden/internal/model"
)

const (
	defaultShell     = "/bin/sh"
	defaultMaxOutput = 64 * 1024
)

// ErrUnsupportedTool is returned for tool calls the shell executor cannot run.
var ErrUnsupportedTool = errors.New("unsupported tool")

// Config controls how commands are run.
type Config struct {
	Shell     string        // defaults to /bin/sh
	Dir       string        // working directory, empty for the current one
	Timeout   time.Duration // zero means only the caller's context bounds the run
	MaxOutput int           // per stream, defaults to 64KiB
	Env       []string      // defaults to the process environment
}

// Result captures subprocess execution outcome.
type Result struct {
	Stdout          string        `json:"stdout"`
	Stderr          string        `json:"stderr"`
	ExitCode        int           `json:"exit_code"`
	StdoutTruncated bool          `json:"stdout_truncated,omitempty"`
	StderrTruncated bool          `json:"stderr_truncated,omitempty"`
	Redacted        int           `json:"redacted,omitempty"`
	Duration        time.Duration `json:"duration"`
}

// ExitError reports a command that ran but exited non-zero.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string { return fmt.Sprintf("exit status %d", e.Code) }

// Shell executes shell tool calls with `sh -c`.
type Shell struct {
	cfg Config
}

// New returns a Shell with defaults applied.
func New(cfg Config) *Shell {
	if cfg.Shell == "" {
		cfg.Shell = defaultShell
	}
	if cfg.MaxOutput <= 0 {
		cfg.MaxOutput = defaultMaxOutput
	}
	if cfg.Env == nil {
		cfg.Env = os.Environ()
	}
	cfg.Env = sanitizeEnv(cfg.Env)
	return &Shell{cfg: cfg}
}

// Run executes command and captures its output. A non-zero exit is not an
// error here; callers inspect ExitCode.
func (s *Shell) Run(ctx context.Context, command string) (*Result, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, s.cfg.Shell, "-c", command)
	cmd.Dir = s.cfg.Dir
	cmd.Env = s.cfg.Env
	cmd.WaitDelay = time.Second
	stdout := newLimitedWriter(s.cfg.MaxOutput)
	stderr := newLimitedWriter(s.cfg.MaxOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("run %s: %w", s.cfg.Shell, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("run %s: %w", s.cfg.Shell, ctxErr)
		}
		exitCode = exitErr.ExitCode()
	}

	out, n1 := ScanOutput(stdout.String())
	errOut, n2 := ScanOutput(stderr.String())
	return &Result{
		Stdout:          out,
		Stderr:          errOut,
		ExitCode:        exitCode,
		StdoutTruncated: stdout.truncated,
		StderrTruncated: stderr.truncated,
		Redacted:        n1 + n2,
		Duration:        time.Since(start),
	}, nil
}

// Execute runs a shell tool call and renders its result as text for the
// caller and the audit log. A non-zero exit returns the rendered text
// together with an *ExitError.
func (s *Shell) Execute(ctx context.Context, call model.ToolCall) (string, error) {
	command, ok := classify.ShellCommand(call.Args)
	if !ok || !classify.IsShellTool(call.Name) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedTool, call.Name)
	}
	res, err := s.Run(ctx, command)
	if err != nil {
		return "", err
	}
	text := res.Render()
	if res.ExitCode != 0 {
		return text, &ExitError{Code: res.ExitCode}
	}
	return text, nil
}

// Render formats the result the way a terminal would show it.
func (r *Result) Render() string {
	var b strings.Builder
	b.WriteString(r.Stdout)
	if r.StdoutTruncated {
		b.WriteString("\n[stdout truncated]\n")
	}
	if r.Stderr != "" {
		if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteByte('\n')
		}
		b.WriteString(r.Stderr)
	}
	if r.StderrTruncated {
		b.WriteString("\n[stderr truncated]\n")
	}
	if r.ExitCode != 0 {
		if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "exit status %d", r.ExitCode)
	}
	return b.String()
}

// limitedWriter keeps the first n bytes and silently discards the rest so
// the child never blocks on a full pipe.
type limitedWriter struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newLimitedWriter(limit int) *limitedWriter {
	return &limitedWriter{limit: limit}
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	room := w.limit - w.buf.Len()
	if room <= 0 {
		if len(p) > 0 {
			w.truncated = true
		}
		return len(p), nil
	}
	if len(p) > room {
		w.buf.Write(p[:room])
		w.truncated = true
		return len(p), nil
	}
	w.buf.Write(p)
	return len(p), nil
}

func (w *limitedWriter) String() string { return w.buf.String() }
