package approval

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/warden/internal/model"
)

var destructive = model.Classification{Level: model.L2, Reason: "recursive delete", Deterministic: true}

func create(t *testing.T, r *Registry, timeout time.Duration) *Ticket {
	t.Helper()
	tk, err := r.Create("exec", map[string]any{"command": "rm -rf ./build"}, destructive, timeout)
	require.NoError(t, err)
	return tk
}

func TestNonceFormat(t *testing.T) {
	r := NewRegistry()
	seen := map[string]bool{}
	re := regexp.MustCompile(`^[a-z2-7]{16}$`)
	for i := 0; i < 200; i++ {
		tk := create(t, r, 0)
		assert.Regexp(t, re, tk.Nonce())
		assert.False(t, seen[tk.Nonce()], "duplicate nonce")
		seen[tk.Nonce()] = true
	}
	assert.Equal(t, 200, r.Count())
}

func TestResolveApproved(t *testing.T) {
	r := NewRegistry()
	tk := create(t, r, time.Minute)

	require.True(t, r.Resolve(tk.Nonce(), true))
	out, err := tk.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, out.Approved)
	assert.Equal(t, StatusApproved, out.Status)
	assert.Zero(t, r.Count())
}

func TestResolveDenied(t *testing.T) {
	r := NewRegistry()
	tk := create(t, r, time.Minute)

	require.True(t, r.Resolve(tk.Nonce(), false))
	out, err := tk.Wait(context.Background())
	require.NoError(t, err)
	assert.False(t, out.Approved)
	assert.Equal(t, StatusDenied, out.Status)
}

func TestResolveOnlyOnce(t *testing.T) {
	r := NewRegistry()
	tk := create(t, r, time.Minute)

	assert.True(t, r.Resolve(tk.Nonce(), false))
	assert.False(t, r.Resolve(tk.Nonce(), true), "second resolve must be a no-op")

	out, err := tk.Wait(context.Background())
	require.NoError(t, err)
	assert.False(t, out.Approved, "first decision stands")
}

func TestResolveUnknownNonce(t *testing.T) {
	r := NewRegistry()
	create(t, r, time.Minute)

	assert.False(t, r.Resolve("aaaaaaaaaaaaaaaa", true))
	assert.False(t, r.Resolve("", true))
	assert.Equal(t, 1, r.Count())
}

func TestResolveNormalizesNonce(t *testing.T) {
	r := NewRegistry()
	tk := create(t, r, time.Minute)

	assert.True(t, r.Resolve("  "+strings.ToUpper(tk.Nonce())+"\n", true))
}

func TestTimeoutDenies(t *testing.T) {
	r := NewRegistry()
	tk := create(t, r, 20*time.Millisecond)

	out, err := tk.Wait(context.Background())
	require.NoError(t, err)
	assert.False(t, out.Approved)
	assert.Equal(t, StatusTimedOut, out.Status)
	assert.Zero(t, r.Count())
	assert.False(t, r.Resolve(tk.Nonce(), true), "late resolve after timeout")
}

func TestResolveBeforeTimeoutStopsTimer(t *testing.T) {
	r := NewRegistry()
	tk := create(t, r, 30*time.Millisecond)
	require.True(t, r.Resolve(tk.Nonce(), true))

	time.Sleep(60 * time.Millisecond)
	out, err := tk.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, out.Status)
	select {
	case extra := <-tk.Done():
		t.Fatalf("unexpected second outcome: %+v", extra)
	default:
	}
}

func TestZeroTimeoutWaitsIndefinitely(t *testing.T) {
	r := NewRegistry()
	tk := create(t, r, 0)
	assert.Nil(t, tk.Pending().ExpiresAt)

	select {
	case <-tk.Done():
		t.Fatal("approval without timeout resolved on its own")
	case <-time.After(30 * time.Millisecond):
	}
	assert.Equal(t, 1, r.Count())
}

func TestRejectAll(t *testing.T) {
	r := NewRegistry()
	tickets := []*Ticket{create(t, r, time.Minute), create(t, r, time.Minute), create(t, r, 0)}

	assert.Equal(t, 3, r.RejectAll("shutting down"))
	assert.Zero(t, r.Count())
	for _, tk := range tickets {
		out, err := tk.Wait(context.Background())
		require.NoError(t, err)
		assert.False(t, out.Approved)
		assert.Equal(t, StatusCancelled, out.Status)
		assert.Equal(t, "shutting down", out.Reason)
		assert.False(t, r.Resolve(tk.Nonce(), true))
	}

	assert.Zero(t, r.RejectAll("again"), "empty registry")
}

func TestWaitContextCancelled(t *testing.T) {
	r := NewRegistry()
	tk := create(t, r, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := tk.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusCancelled, out.Status)
	assert.Zero(t, r.Count())
	assert.False(t, r.Resolve(tk.Nonce(), true))
}

func TestGetAndList(t *testing.T) {
	r := NewRegistry()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var tick int
	r.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	first := create(t, r, time.Minute)
	second := create(t, r, time.Minute)

	p, ok := r.Get(first.Nonce())
	require.True(t, ok)
	assert.Equal(t, "exec", p.ToolName)
	assert.Equal(t, model.L2, p.Classification.Level)
	assert.NotEmpty(t, p.ID)
	require.NotNil(t, p.ExpiresAt)
	assert.Equal(t, p.CreatedAt.Add(time.Minute), *p.ExpiresAt)

	p.ToolArgs["command"] = "mutated"
	again, _ := r.Get(first.Nonce())
	assert.Equal(t, "rm -rf ./build", again.ToolArgs["command"], "Get returns a copy")

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, first.Nonce(), list[0].Nonce)
	assert.Equal(t, second.Nonce(), list[1].Nonce)

	r.Resolve(first.Nonce(), true)
	_, ok = r.Get(first.Nonce())
	assert.False(t, ok)
	assert.Len(t, r.List(), 1)
}

func TestResolvedSignalClosesOnEveryPath(t *testing.T) {
	closed := func(ch <-chan struct{}) bool {
		select {
		case <-ch:
			return true
		case <-time.After(time.Second):
			return false
		}
	}

	r := NewRegistry()
	resolved := create(t, r, 0)
	require.NotNil(t, resolved.Pending().Resolved)
	select {
	case <-resolved.Pending().Resolved:
		t.Fatal("signalled while still pending")
	default:
	}
	require.True(t, r.Resolve(resolved.Nonce(), false))
	assert.True(t, closed(resolved.Pending().Resolved))

	timed := create(t, r, 10*time.Millisecond)
	assert.True(t, closed(timed.Pending().Resolved))

	bulk := create(t, r, 0)
	p, ok := r.Get(bulk.Nonce())
	require.True(t, ok)
	r.RejectAll("shutdown")
	assert.True(t, closed(p.Resolved), "copies share the signal")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	withdrawn := create(t, r, 0)
	_, err := withdrawn.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, closed(withdrawn.Pending().Resolved))
}

func TestConcurrentResolveSingleWinner(t *testing.T) {
	for round := 0; round < 50; round++ {
		r := NewRegistry()
		tk := create(t, r, 5*time.Millisecond)

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(approved bool) {
				defer wg.Done()
				if r.Resolve(tk.Nonce(), approved) {
					wins.Add(1)
				}
			}(i%2 == 0)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.RejectAll("bulk") > 0 {
				wins.Add(1)
			}
		}()
		wg.Wait()

		out, err := tk.Wait(context.Background())
		require.NoError(t, err)
		assert.NotEmpty(t, out.Status)
		assert.LessOrEqual(t, wins.Load(), int32(1))
		assert.Zero(t, r.Count())
		select {
		case extra := <-tk.Done():
			t.Fatalf("round %d: second outcome %+v", round, extra)
		default:
		}
	}
}
