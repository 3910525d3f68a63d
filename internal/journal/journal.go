// Package journal keeps the durable, append-only record of conversation
// turns.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is one journaled conversation turn. Entries are written once and
// never mutated.
type Entry struct {
	TS               string `json:"ts"`
	UserText         string `json:"user_text"`
	MovementRequired string `json:"movement_required"`
	VerbalOutput     string `json:"verbal_output"`
	MotionInfo       string `json:"motion_info"`
}

// NewEntry stamps a turn with the current UTC time.
func NewEntry(userText string, movement bool, verbalOutput, motionInfo string) Entry {
	required := "False"
	if movement {
		required = "True"
	}
	return Entry{
		TS:               time.Now().UTC().Format(time.RFC3339),
		UserText:         userText,
		MovementRequired: required,
		VerbalOutput:     verbalOutput,
		MotionInfo:       motionInfo,
	}
}

// Journal persists entries as a single JSON array, rewritten wholesale on
// each append. Insertion order is the only ordering guarantee.
type Journal struct {
	path string

	mu      sync.Mutex
	entries []Entry
}

// New creates a journal backed by the given file path.
func New(path string) *Journal {
	return &Journal{path: path}
}

// Initialize ensures the backing store exists and is readable. An absent or
// corrupt store is treated as empty, not as an error.
func (j *Journal) Initialize() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if dir := filepath.Dir(j.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create journal directory %s: %w", dir, err)
		}
	}

	data, err := os.ReadFile(j.path)
	if err == nil {
		var entries []Entry
		if json.Unmarshal(data, &entries) == nil {
			j.entries = entries
			return nil
		}
	}

	j.entries = nil
	return j.flushLocked()
}

// Append adds one entry to the record. A write failure is reported but the
// entry is retained in memory; repeated appends append repeated entries.
func (j *Journal) Append(entry Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
	return j.flushLocked()
}

// LoadAll returns every appended entry in original insertion order.
func (j *Journal) LoadAll() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Entry, len(j.entries))
	copy(out, j.entries)
	return out
}

// Len reports the number of journaled entries.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

func (j *Journal) flushLocked() error {
	entries := j.entries
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(j.path, data, 0o644); err != nil {
		return fmt.Errorf("write journal %s: %w", j.path, err)
	}
	return nil
}
