package repl

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/eapache/queue"
)

// DefaultHistorySize is the number of lines kept when no size is configured.
const DefaultHistorySize = 1000

// History is a bounded ring of previously entered lines, optionally
// persisted to a file. The oldest line is dropped once the ring is full.
type History struct {
	entries *queue.Queue
	maxSize int
	file    string
}

// NewHistory creates a history backed by file (empty means memory only).
func NewHistory(file string, maxSize int) *History {
	if maxSize <= 0 {
		maxSize = DefaultHistorySize
	}
	return &History{
		entries: queue.New(),
		maxSize: maxSize,
		file:    file,
	}
}

// Add appends a line. Blank lines and repeats of the previous line are
// not recorded.
func (h *History) Add(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if n := h.entries.Length(); n > 0 && h.entries.Get(-1).(string) == line {
		return
	}

	h.entries.Add(line)
	for h.entries.Length() > h.maxSize {
		h.entries.Remove()
	}
}

// Get returns the history entry at index (0 = most recent).
func (h *History) Get(index int) string {
	if index < 0 || index >= h.entries.Length() {
		return ""
	}
	return h.entries.Get(-1 - index).(string)
}

// Len returns the number of stored lines.
func (h *History) Len() int {
	return h.entries.Length()
}

// Entries returns the stored lines, oldest first.
func (h *History) Entries() []string {
	out := make([]string, h.entries.Length())
	for i := range out {
		out[i] = h.entries.Get(i).(string)
	}
	return out
}

// Load appends the lines of the history file. A missing file is not an error.
func (h *History) Load() error {
	if h.file == "" {
		return nil
	}

	file, err := os.Open(h.file)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		h.Add(scanner.Text())
	}
	return scanner.Err()
}

// Save writes the ring to the history file, readable by the owner only.
func (h *History) Save() error {
	if h.file == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(h.file), 0700); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}

	file, err := os.OpenFile(h.file, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create history: %w", err)
	}

	w := bufio.NewWriter(file)
	for _, entry := range h.Entries() {
		if _, err := w.WriteString(entry + "\n"); err != nil {
			file.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
