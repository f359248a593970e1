package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// JournalEntry records one committed reference update.
type JournalEntry struct {
	Timestamp time.Time `json:"ts"`
	Ref       string    `json:"ref"`
	Digest    string    `json:"digest"`
	Prev      string    `json:"prev,omitempty"` // digest the ref pointed at before, if any
}

// Journal is an append-only JSONL log of reference updates. It is advisory:
// refs/ is the source of truth and the journal may miss entries.
type Journal struct {
	path string
}

// NewJournal creates a Journal backed by path.
func NewJournal(path string) *Journal {
	return &Journal{path: path}
}

// Append writes e as one line.
func (j *Journal) Append(e JournalEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}
	if err := SafeAppend(j.path, append(data, '\n')); err != nil {
		return fmt.Errorf("write journal entry: %w", err)
	}
	return nil
}

// Tail returns the last n entries, oldest first. n <= 0 returns all.
// Malformed lines, such as a torn final line after a crash, are skipped.
func (j *Journal) Tail(n int) ([]JournalEntry, error) {
	f, err := os.Open(j.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	var entries []JournalEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e JournalEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
		if n > 0 && len(entries) > n {
			entries = entries[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	return entries, nil
}
