package approval

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/warden/internal/model"
)

// Status is the terminal state of an approval.
type Status string

const (
	StatusApproved  Status = "approved"
	StatusDenied    Status = "denied"
	StatusTimedOut  Status = "timed_out"
	StatusCancelled Status = "cancelled"
)

// Outcome is delivered exactly once to the suspended caller.
type Outcome struct {
	Approved bool   `json:"approved"`
	Status   Status `json:"status"`
	Reason   string `json:"reason,omitempty"`
}

// PendingApproval describes a tool call waiting for a human decision.
// ID is internal; Nonce is the token shared with the approver.
type PendingApproval struct {
	ID             string               `json:"-"`
	Nonce          string               `json:"nonce"`
	ToolName       string               `json:"tool_name"`
	ToolArgs       map[string]any       `json:"tool_args,omitempty"`
	Classification model.Classification `json:"classification"`
	CreatedAt      time.Time            `json:"created_at"`
	ExpiresAt      *time.Time           `json:"expires_at,omitempty"`
	// Resolved is closed once the approval leaves the registry by any path.
	Resolved <-chan struct{} `json:"-"`
}

type entry struct {
	PendingApproval
	done     chan Outcome
	resolved chan struct{}
	timer    *time.Timer
}

// Registry holds the approvals currently awaiting a decision.
// Every terminal path (resolve, timeout, bulk rejection, caller
// cancellation) removes the entry under the lock before completing it,
// so exactly one of them delivers an Outcome.
type Registry struct {
	mu      sync.Mutex
	pending map[string]*entry
	now     func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		pending: make(map[string]*entry),
		now:     time.Now,
	}
}

// Ticket is the caller's handle on one pending approval.
type Ticket struct {
	pending  PendingApproval
	done     <-chan Outcome
	registry *Registry
}

// Nonce returns the externally visible correlation token.
func (t *Ticket) Nonce() string { return t.pending.Nonce }

// Pending returns the approval as registered.
func (t *Ticket) Pending() PendingApproval { return t.pending }

// Done is closed over a single Outcome once the approval resolves.
func (t *Ticket) Done() <-chan Outcome { return t.done }

// Wait blocks until the approval resolves or ctx ends. When ctx ends first
// the approval is withdrawn as cancelled and ctx.Err() is returned.
func (t *Ticket) Wait(ctx context.Context) (Outcome, error) {
	select {
	case out := <-t.done:
		return out, nil
	case <-ctx.Done():
		out := Outcome{Status: StatusCancelled, Reason: "caller stopped waiting"}
		if t.registry.complete(t.pending.Nonce, out) {
			<-t.done
			return out, ctx.Err()
		}
		// Someone else won the race; their outcome is already buffered.
		return <-t.done, nil
	}
}

// Create registers a new pending approval. A positive timeout arms a timer
// that resolves the approval as denied if nobody answers in time.
func (r *Registry) Create(toolName string, args map[string]any, c model.Classification, timeout time.Duration) (*Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	nonce, err := r.freshNonceLocked()
	if err != nil {
		return nil, err
	}

	now := r.now().UTC()
	resolved := make(chan struct{})
	e := &entry{
		PendingApproval: PendingApproval{
			ID:             uuid.NewString(),
			Nonce:          nonce,
			ToolName:       toolName,
			ToolArgs:       maps.Clone(args),
			Classification: c,
			CreatedAt:      now,
			Resolved:       resolved,
		},
		done:     make(chan Outcome, 1),
		resolved: resolved,
	}
	if timeout > 0 {
		exp := now.Add(timeout)
		e.ExpiresAt = &exp
		e.timer = time.AfterFunc(timeout, func() {
			r.complete(nonce, Outcome{
				Status: StatusTimedOut,
				Reason: fmt.Sprintf("no decision within %s", timeout),
			})
		})
	}
	r.pending[nonce] = e

	return &Ticket{pending: e.PendingApproval, done: e.done, registry: r}, nil
}

// Resolve delivers a human decision. It returns false, with no side effect,
// when the nonce is unknown or already resolved.
func (r *Registry) Resolve(nonce string, approved bool) bool {
	out := Outcome{Approved: approved, Status: StatusDenied, Reason: "denied by approver"}
	if approved {
		out = Outcome{Approved: true, Status: StatusApproved, Reason: "approved by approver"}
	}
	return r.complete(NormalizeNonce(nonce), out)
}

// RejectAll denies every pending approval and drains the registry.
// Safe to call with nothing pending. Returns the number rejected.
func (r *Registry) RejectAll(reason string) int {
	r.mu.Lock()
	drained := make([]*entry, 0, len(r.pending))
	for nonce, e := range r.pending {
		delete(r.pending, nonce)
		e.withdraw()
		drained = append(drained, e)
	}
	r.mu.Unlock()

	for _, e := range drained {
		e.done <- Outcome{Status: StatusCancelled, Reason: reason}
	}
	return len(drained)
}

// Get returns a copy of the pending approval for nonce.
func (r *Registry) Get(nonce string) (PendingApproval, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.pending[NormalizeNonce(nonce)]
	if !ok {
		return PendingApproval{}, false
	}
	return e.snapshot(), true
}

// Count returns the number of approvals awaiting a decision.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// List returns copies of all pending approvals, oldest first.
func (r *Registry) List() []PendingApproval {
	r.mu.Lock()
	list := make([]PendingApproval, 0, len(r.pending))
	for _, e := range r.pending {
		list = append(list, e.snapshot())
	}
	r.mu.Unlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list
}

// complete takes the entry out of the registry and, if it was still there,
// delivers out. The first caller wins; later callers see no entry.
func (r *Registry) complete(nonce string, out Outcome) bool {
	r.mu.Lock()
	e, ok := r.pending[nonce]
	if ok {
		delete(r.pending, nonce)
		e.withdraw()
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	e.done <- out
	return true
}

func (r *Registry) freshNonceLocked() (string, error) {
	for attempt := 0; attempt < 8; attempt++ {
		nonce, err := newNonce()
		if err != nil {
			return "", err
		}
		if _, taken := r.pending[nonce]; !taken {
			return nonce, nil
		}
	}
	return "", fmt.Errorf("generate nonce: repeated collisions")
}

// withdraw stops the timer and signals Resolved. Callers hold r.mu and have
// just removed e, so it runs once per entry.
func (e *entry) withdraw() {
	if e.timer != nil {
		e.timer.Stop()
	}
	close(e.resolved)
}

func (e *entry) snapshot() PendingApproval {
	p := e.PendingApproval
	p.ToolArgs = maps.Clone(e.ToolArgs)
	if e.ExpiresAt != nil {
		exp := *e.ExpiresAt
		p.ExpiresAt = &exp
	}
	return p
}
