package notify

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/ppiankov/warden/internal/model"
)

// Console asks for approval on a terminal. When the input is not a
// terminal every prompt is denied immediately.
type Console struct {
	mu          sync.Mutex
	in          io.Reader
	out         io.Writer
	resolver    Resolver
	interactive bool

	once  sync.Once
	lines chan string
}

// NewConsole reads answers from in and writes prompts to out.
func NewConsole(in io.Reader, out io.Writer, r Resolver) *Console {
	return &Console{
		in:          in,
		out:         out,
		resolver:    r,
		interactive: isTerminal(in),
	}
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}

// Name identifies the console approver in logs and metrics.
func (c *Console) Name() string { return "console" }

// readLines starts the single reader of c.in. A prompt that expires must
// not leave a read behind that swallows the answer to the next one.
func (c *Console) readLines() <-chan string {
	c.once.Do(func() {
		c.lines = make(chan string)
		go func() {
			defer close(c.lines)
			sc := bufio.NewScanner(c.in)
			for sc.Scan() {
				c.lines <- sc.Text()
			}
		}()
	})
	return c.lines
}

// Notify prints the prompt, waits for one answer and resolves the nonce.
// Prompts are serialized so concurrent approvals do not interleave. A prompt
// that expires or is settled elsewhere returns without resolving, and one
// settled while queued is never shown.
func (c *Console) Notify(ctx context.Context, p Prompt) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-p.Resolved:
		return nil
	default:
	}

	if !c.interactive {
		fmt.Fprintf(c.out, "warden: denying %s (%s): no terminal for approval\n", p.ToolName, p.Classification.Level)
		c.resolver.Resolve(p.Nonce, false)
		return nil
	}

	fmt.Fprintln(c.out)
	fmt.Fprintf(c.out, "APPROVAL REQUIRED [%s]\n", p.Nonce)
	fmt.Fprintf(c.out, "  Tool:   %s\n", p.ToolName)
	if len(p.ToolArgs) > 0 {
		fmt.Fprintf(c.out, "  Args:   %s\n", model.DescribeArgs(p.ToolArgs))
	}
	fmt.Fprintf(c.out, "  Level:  %s (%s)\n", p.Classification.Level, p.Classification.Level.Label())
	fmt.Fprintf(c.out, "  Reason: %s\n", p.Classification.Reason)

	var expired <-chan time.Time
	if p.ExpiresAt != nil {
		left := time.Until(*p.ExpiresAt)
		fmt.Fprintf(c.out, "  Expires in %s\n", left.Round(time.Second))
		t := time.NewTimer(left)
		defer t.Stop()
		expired = t.C
	}

	lines := c.readLines()
	for {
		fmt.Fprint(c.out, "Approve? [y/n]: ")
		select {
		case line, ok := <-lines:
			if !ok {
				c.resolver.Resolve(p.Nonce, false)
				return errors.New("read answer: input closed")
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "y", "yes", "a", "approve":
				if !c.resolver.Resolve(p.Nonce, true) {
					fmt.Fprintln(c.out, "already resolved")
				}
				return nil
			case "n", "no", "d", "deny":
				c.resolver.Resolve(p.Nonce, false)
				return nil
			}
			fmt.Fprintln(c.out, "please answer y or n")
		case <-expired:
			fmt.Fprintln(c.out, "\nno answer before expiry")
			return nil
		case <-p.Resolved:
			fmt.Fprintf(c.out, "\n[%s] resolved elsewhere\n", p.Nonce)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
