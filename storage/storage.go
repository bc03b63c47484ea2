// Package storage provides file-backed persistence for the audit trail and
// for position rehydration across restarts. The engine only depends on the
// abstract contracts; swapping in a database is a matter of new
// implementations.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dkwon-io/regimebot/types"
)

// TradeLog appends one JSON line per trade event to a file. Entries are never
// rewritten; the file is the append-only audit trail.
type TradeLog struct {
	path string
	mu   sync.Mutex
}

func NewTradeLog(path string) (*TradeLog, error) {
	if path == "" {
		return nil, errors.New("empty trade log path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, err
	}
	return &TradeLog{path: abs}, nil
}

func (t *TradeLog) Append(entry types.TradeLogEntry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

// LastN reads back the most recent n entries, newest last.
func (t *TradeLog) LastN(n int) ([]types.TradeLogEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := os.ReadFile(t.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var out []types.TradeLogEntry
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var entry types.TradeLogEntry
		if err := dec.Decode(&entry); err != nil {
			return nil, fmt.Errorf("corrupt trade log: %w", err)
		}
		out = append(out, entry)
	}
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

// PositionFile snapshots the full position set as a JSON array, mirroring the
// load-on-start / save-on-mutation lifecycle the engine expects.
type PositionFile struct {
	path string
	mu   sync.Mutex
}

func NewPositionFile(path string) (*PositionFile, error) {
	if path == "" {
		return nil, errors.New("empty positions path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, err
	}
	return &PositionFile{path: abs}, nil
}

// Save overwrites the snapshot atomically (write temp, rename).
func (p *PositionFile) Save(positions []types.Position) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := json.MarshalIndent(positions, "", "  ")
	if err != nil {
		return err
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p.path)
}

// Load returns every persisted position; a missing file is an empty set.
func (p *PositionFile) Load() ([]types.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var positions []types.Position
	if err := json.Unmarshal(data, &positions); err != nil {
		return nil, fmt.Errorf("corrupt positions file: %w", err)
	}
	return positions, nil
}

// LoadOpen filters Load down to the open positions used for rehydration.
func (p *PositionFile) LoadOpen() ([]types.Position, error) {
	all, err := p.Load()
	if err != nil {
		return nil, err
	}
	var open []types.Position
	for _, pos := range all {
		if pos.Status == types.StatusOpen {
			open = append(open, pos)
		}
	}
	return open, nil
}
