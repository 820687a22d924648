package audit

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// GenesisHash is the prev_hash of the first entry of a new chain.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// DateLayout names day files: <dir>/<DateLayout>.jsonl, always UTC.
const DateLayout = "2006-01-02"

const fileExt = ".jsonl"

// Chain is an append-only, SHA-256 hash-chained audit log spread over
// one JSONL file per UTC day. It owns the chain head; every Append reads
// and advances it under one lock so concurrent writers cannot fork the chain.
type Chain struct {
	dir      string
	mu       sync.Mutex
	lastHash string
	now      func() time.Time
}

// NewChain opens the audit directory and seeds the chain head from the most
// recent persisted entry (the genesis hash when the directory holds no log).
func NewChain(dir string) (*Chain, error) {
	if dir == "" {
		return nil, errors.New("audit: directory must not be empty")
	}
	c := &Chain{dir: dir, now: time.Now}
	if err := c.InitLastHash(); err != nil {
		return nil, err
	}
	return c, nil
}

// Dir returns the audit directory.
func (c *Chain) Dir() string { return c.dir }

// Head returns the hash the next appended entry will link to.
func (c *Chain) Head() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastHash
}

// InitLastHash re-derives the chain head from the lexicographically last
// day file. A corrupt final line is an error: continuing would fork the chain.
func (c *Chain) InitLastHash() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	days, err := Days(c.dir)
	if err != nil {
		return err
	}
	if len(days) == 0 {
		c.lastHash = GenesisHash
		return nil
	}

	path := dayPath(c.dir, days[len(days)-1])
	last, err := lastLine(path)
	if err != nil {
		return fmt.Errorf("audit: read chain tail: %w", err)
	}
	if len(last) == 0 {
		c.lastHash = GenesisHash
		return nil
	}

	var stored StoredEntry
	if err := json.Unmarshal(last, &stored); err != nil {
		return fmt.Errorf("audit: parse chain tail in %s: %w", filepath.Base(path), err)
	}
	if stored.Hash == "" {
		return fmt.Errorf("audit: chain tail in %s has no hash", filepath.Base(path))
	}
	c.lastHash = stored.Hash
	return nil
}

// Append links entry to the chain head, writes it to the day file matching
// the entry's own timestamp, and advances the head. A zero timestamp is
// replaced with the current time. The head only moves once the line is synced.
func (c *Chain) Append(entry AuditEntry) (StoredEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = c.now()
	}
	entry.Timestamp = entry.Timestamp.UTC()

	hash, err := ComputeHash(entry, c.lastHash)
	if err != nil {
		return StoredEntry{}, err
	}
	stored := StoredEntry{AuditEntry: entry, PrevHash: c.lastHash, Hash: hash}

	line, err := json.Marshal(stored)
	if err != nil {
		return StoredEntry{}, fmt.Errorf("audit: marshal entry: %w", err)
	}

	if err := os.MkdirAll(c.dir, 0700); err != nil {
		return StoredEntry{}, fmt.Errorf("audit: create directory: %w", err)
	}
	path := dayPath(c.dir, entry.Timestamp.Format(DateLayout))
	if err := appendLine(path, line); err != nil {
		return StoredEntry{}, err
	}

	c.lastHash = hash
	return stored, nil
}

// ComputeHash returns "sha256:<hex>" over the canonical JSON of entry
// followed by prevHash.
func ComputeHash(entry AuditEntry, prevHash string) (string, error) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("audit: marshal entry for hashing: %w", err)
	}
	h := sha256.New()
	h.Write(payload)
	h.Write([]byte(prevHash))
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}

// Days lists the dates (YYYY-MM-DD) that have a day file, sorted ascending.
// A missing directory yields no days.
func Days(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("audit: list directory: %w", err)
	}

	var days []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		day := strings.TrimSuffix(e.Name(), fileExt)
		if _, err := time.Parse(DateLayout, day); err != nil {
			continue
		}
		days = append(days, day)
	}
	sort.Strings(days)
	return days, nil
}

func dayPath(dir, date string) string {
	return filepath.Join(dir, date+fileExt)
}

func appendLine(path string, line []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("audit: open file: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("audit: write entry: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("audit: sync: %w", err)
	}
	return f.Close()
}

// lastLine returns the final non-empty line of the file.
func lastLine(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	var last []byte
	for scanner.Scan() {
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		last = append(last[:0], raw...)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return last, nil
}
