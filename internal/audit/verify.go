package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrNoLogFile is returned when the requested day file does not exist.
var ErrNoLogFile = errors.New("audit: no log file for date")

// maxLineSize bounds a single JSONL line (tool args can be large).
const maxLineSize = 4 * 1024 * 1024

// VerifyResult holds the outcome of a day-file chain verification.
type VerifyResult struct {
	Date        string `json:"date"`
	Valid       bool   `json:"valid"`
	Entries     int    `json:"entries"`
	FirstBroken *int   `json:"first_broken,omitempty"`
	Reason      string `json:"reason,omitempty"`
	// Root is the prev_hash of the file's first entry: the genesis hash, or
	// the final hash of the closest earlier day file.
	Root string `json:"root,omitempty"`
}

// Verify replays one day file and validates every link. The first line must
// link to the final hash of the closest earlier non-empty day file, or to
// GenesisHash when there is none. Each line must recompute to its stored
// hash, each line after the first must link to the previous line's hash, and
// each line must be in canonical form. Verification
// stops at the first broken line. A missing file is ErrNoLogFile.
func Verify(dir, date string) (VerifyResult, error) {
	result := VerifyResult{Date: date}

	f, err := os.Open(dayPath(dir, date))
	if err != nil {
		if os.IsNotExist(err) {
			return result, fmt.Errorf("%w %s", ErrNoLogFile, date)
		}
		return result, fmt.Errorf("audit: open: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	index := 0
	var prevHash string
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		stored, reason := checkLine(line, index, prevHash)
		if index == 0 {
			result.Root = stored.PrevHash
			if reason == "" {
				reason = checkRoot(dir, date, stored.PrevHash)
			}
		}
		if reason != "" {
			broken := index
			result.FirstBroken = &broken
			result.Reason = reason
			result.Entries = index
			return result, nil
		}

		prevHash = stored.Hash
		index++
	}
	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("audit: scan: %w", err)
	}

	result.Valid = true
	result.Entries = index
	return result, nil
}

// checkLine parses one line and returns a non-empty reason when it breaks
// the chain.
func checkLine(line []byte, index int, prevHash string) (StoredEntry, string) {
	var stored StoredEntry
	if err := json.Unmarshal(line, &stored); err != nil {
		return stored, fmt.Sprintf("parse error: %v", err)
	}

	if index == 0 {
		if stored.PrevHash == "" {
			return stored, "first entry has no prev_hash"
		}
	} else if stored.PrevHash != prevHash {
		return stored, fmt.Sprintf("prev_hash mismatch: expected %s, got %s", prevHash, stored.PrevHash)
	}

	want, err := ComputeHash(stored.AuditEntry, stored.PrevHash)
	if err != nil {
		return stored, err.Error()
	}
	if stored.Hash != want {
		return stored, fmt.Sprintf("hash mismatch: stored %s, computed %s", stored.Hash, want)
	}

	canonical, err := json.Marshal(stored)
	if err != nil {
		return stored, fmt.Sprintf("re-encode: %v", err)
	}
	if !bytes.Equal(canonical, line) {
		return stored, "entry is not in canonical form"
	}
	return stored, ""
}

// checkRoot compares the first entry's prev_hash with the hash the chain
// held when the day began. An unreadable earlier day breaks the root too.
func checkRoot(dir, date, root string) string {
	want, err := expectedRoot(dir, date)
	if err != nil {
		return fmt.Sprintf("cannot establish root: %v", err)
	}
	if root != want {
		return fmt.Sprintf("root mismatch: expected %s, got %s", want, root)
	}
	return ""
}

// expectedRoot returns the final hash of the closest day file before date
// that holds entries, or GenesisHash.
func expectedRoot(dir, date string) (string, error) {
	days, err := Days(dir)
	if err != nil {
		return "", err
	}
	for i := len(days) - 1; i >= 0; i-- {
		if days[i] >= date {
			continue
		}
		last, err := lastLine(dayPath(dir, days[i]))
		if err != nil {
			return "", fmt.Errorf("read %s: %w", days[i], err)
		}
		if len(last) == 0 {
			continue
		}
		var stored StoredEntry
		if err := json.Unmarshal(last, &stored); err != nil || stored.Hash == "" {
			return "", fmt.Errorf("%s has no readable final hash", days[i])
		}
		return stored.Hash, nil
	}
	return GenesisHash, nil
}
