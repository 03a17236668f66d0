package store

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// EpisodeLedger records which episodes have been flushed and which batch
// file holds them. It is an append-only text file, one
// "<episode_id>\t<file>" line per episode, fsynced after each append.
//
// A crash mid-append leaves at most one partial trailing line, which is
// cut off on the next open.
type EpisodeLedger struct {
	mu      sync.RWMutex
	path    string
	file    *os.File
	entries map[string]string
}

func OpenEpisodeLedger(path string) (*EpisodeLedger, error) {
	if path == "" {
		return nil, errors.New("ledger path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}

	entries := make(map[string]string)
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read ledger file: %w", err)
	}
	// Cut a torn trailing line so the next append starts on a fresh line.
	if n := len(data); n > 0 && data[n-1] != '\n' {
		keep := bytes.LastIndexByte(data, '\n') + 1
		if err := os.Truncate(path, int64(keep)); err != nil {
			return nil, fmt.Errorf("truncate torn ledger line: %w", err)
		}
		data = data[:keep]
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		id, file, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "\t")
		if !ok || id == "" || file == "" {
			continue
		}
		entries[id] = file
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger file: %w", err)
	}

	return &EpisodeLedger{path: path, file: file, entries: entries}, nil
}

func (l *EpisodeLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *EpisodeLedger) Has(episodeID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.entries[episodeID]
	return ok
}

// Lookup returns the batch file holding episodeID.
func (l *EpisodeLedger) Lookup(episodeID string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	file, ok := l.entries[episodeID]
	return file, ok
}

func (l *EpisodeLedger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Record appends episodeIDs as stored in file and syncs once. IDs already
// in the ledger are ignored.
func (l *EpisodeLedger) Record(file string, episodeIDs []string) error {
	if file == "" {
		return errors.New("file is empty")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return errors.New("ledger file is closed")
	}

	added := 0
	for _, id := range episodeIDs {
		if id == "" {
			continue
		}
		if _, ok := l.entries[id]; ok {
			continue
		}
		if _, err := l.file.WriteString(id + "\t" + file + "\n"); err != nil {
			return fmt.Errorf("append ledger: %w", err)
		}
		l.entries[id] = file
		added++
	}

	if added == 0 {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync ledger: %w", err)
	}
	return nil
}
