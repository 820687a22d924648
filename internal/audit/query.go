package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// ReplayFilter holds filtering criteria for Replay.
type ReplayFilter struct {
	SessionID string
	ToolName  string
	From      time.Time // zero value = no lower bound
	To        time.Time // zero value = no upper bound
}

// ReplaySummary holds outcome counts for a replayed set of entries.
type ReplaySummary struct {
	Total     int            `json:"total"`
	Executed  int            `json:"executed"`
	Failed    int            `json:"failed"`
	Denied    int            `json:"denied"`
	TimedOut  int            `json:"timed_out"`
	Cancelled int            `json:"cancelled"`
	Blocked   int            `json:"blocked"`
	MaxLevel  string         `json:"max_level"`
	First     time.Time      `json:"first"`
	Last      time.Time      `json:"last"`
	ByTool    map[string]int `json:"by_tool"`
	Usage     *UsageTotals   `json:"usage,omitempty"`
}

// UsageTotals sums the optional cost metadata.
type UsageTotals struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// ReplayResult holds filtered entries and their summary.
type ReplayResult struct {
	Entries []StoredEntry `json:"entries"`
	Summary ReplaySummary `json:"summary"`
}

// Read returns every stored entry of one day file, in file order.
func Read(dir, date string) ([]StoredEntry, error) {
	f, err := os.Open(dayPath(dir, date))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w %s", ErrNoLogFile, date)
		}
		return nil, fmt.Errorf("audit: open: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var entries []StoredEntry
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var e StoredEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("audit: %s line %d: %w", date, lineNum, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: scan: %w", err)
	}
	return entries, nil
}

// Tail returns the last n entries of a day file (all when n <= 0).
func Tail(dir, date string, n int) ([]StoredEntry, error) {
	entries, err := Read(dir, date)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

// Replay reads every day file in [filter.From, filter.To] and returns the
// entries matching the filter, oldest day first.
func Replay(dir string, filter ReplayFilter) (*ReplayResult, error) {
	days, err := Days(dir)
	if err != nil {
		return nil, err
	}

	result := &ReplayResult{Entries: []StoredEntry{}}
	for _, day := range days {
		if !dayInRange(day, filter) {
			continue
		}
		entries, err := Read(dir, day)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if matchesFilter(e, filter) {
				result.Entries = append(result.Entries, e)
			}
		}
	}
	result.Summary = summarize(result.Entries)
	return result, nil
}

func dayInRange(day string, filter ReplayFilter) bool {
	d, err := time.Parse(DateLayout, day)
	if err != nil {
		return false
	}
	if !filter.From.IsZero() && d.Add(24*time.Hour).Before(filter.From.UTC()) {
		return false
	}
	if !filter.To.IsZero() && d.After(filter.To.UTC()) {
		return false
	}
	return true
}

func matchesFilter(e StoredEntry, filter ReplayFilter) bool {
	if filter.SessionID != "" && e.SessionID != filter.SessionID {
		return false
	}
	if filter.ToolName != "" && e.ToolName != filter.ToolName {
		return false
	}
	if !filter.From.IsZero() && e.Timestamp.Before(filter.From) {
		return false
	}
	if !filter.To.IsZero() && e.Timestamp.After(filter.To) {
		return false
	}
	return true
}

func summarize(entries []StoredEntry) ReplaySummary {
	s := ReplaySummary{Total: len(entries), ByTool: map[string]int{}}
	if len(entries) == 0 {
		return s
	}

	maxLevel := entries[0].RiskLevel
	for _, e := range entries {
		switch e.Action {
		case ActionExecuted:
			s.Executed++
		case ActionExecutionFailed:
			s.Failed++
		case ActionDenied:
			s.Denied++
		case ActionTimedOut:
			s.TimedOut++
		case ActionCancelled:
			s.Cancelled++
		case ActionBlocked:
			s.Blocked++
		}
		s.ByTool[e.ToolName]++
		if e.RiskLevel > maxLevel {
			maxLevel = e.RiskLevel
		}
		if s.First.IsZero() || e.Timestamp.Before(s.First) {
			s.First = e.Timestamp
		}
		if e.Timestamp.After(s.Last) {
			s.Last = e.Timestamp
		}
		if e.Usage != nil {
			if s.Usage == nil {
				s.Usage = &UsageTotals{}
			}
			s.Usage.InputTokens += e.Usage.InputTokens
			s.Usage.OutputTokens += e.Usage.OutputTokens
			s.Usage.CostUSD += e.Usage.CostUSD
		}
	}
	s.MaxLevel = maxLevel.String()
	return s
}
