package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/warden/internal/model"
)

func TestTailReturnsLastN(t *testing.T) {
	c, dir := newTestChain(t)
	stored := appendN(t, c, 5)

	tail, err := Tail(dir, "2026-03-14", 2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, stored[3].Hash, tail[0].Hash)
	assert.Equal(t, stored[4].Hash, tail[1].Hash)

	all, err := Tail(dir, "2026-03-14", 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestReplayFiltersAndSummarizes(t *testing.T) {
	c, dir := newTestChain(t)
	appendN(t, c, 2)

	blocked := testEntry(t, testDay.AddDate(0, 0, 1), "rm -rf /")
	blocked.Action = ActionBlocked
	blocked.RiskLevel = model.L3
	blocked.SessionID = "s-2"
	blocked.Usage = &model.Usage{InputTokens: 10, OutputTokens: 5, CostUSD: 0.01}
	_, err := c.Append(blocked)
	require.NoError(t, err)

	all, err := Replay(dir, ReplayFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, all.Summary.Total)
	assert.Equal(t, 2, all.Summary.Executed)
	assert.Equal(t, 1, all.Summary.Blocked)
	assert.Equal(t, "L3", all.Summary.MaxLevel)
	require.NotNil(t, all.Summary.Usage)
	assert.Equal(t, 10, all.Summary.Usage.InputTokens)

	session, err := Replay(dir, ReplayFilter{SessionID: "s-2"})
	require.NoError(t, err)
	require.Len(t, session.Entries, 1)
	assert.Equal(t, ActionBlocked, session.Entries[0].Action)

	firstDay, err := Replay(dir, ReplayFilter{To: testDay.Add(time.Hour)})
	require.NoError(t, err)
	assert.Len(t, firstDay.Entries, 2)
}

func TestFormatTimeline(t *testing.T) {
	c, dir := newTestChain(t)
	appendN(t, c, 2)

	result, err := Replay(dir, ReplayFilter{})
	require.NoError(t, err)
	out := FormatTimeline(result)
	assert.Contains(t, out, "EXECUTED")
	assert.Contains(t, out, "2 entries | max level L1 | 2 executed")

	assert.Equal(t, "No entries found.\n", FormatTimeline(&ReplayResult{}))
}
