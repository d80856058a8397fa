package dispatch

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileSignalSender delivers control signals as one-shot files in a control
// directory the worker watches. The file name is the signal; the worker
// consumes and deletes it at its next task boundary.
type FileSignalSender struct {
	dir string
}

// NewFileSignalSender creates a sender writing into dir.
func NewFileSignalSender(dir string) *FileSignalSender {
	return &FileSignalSender{dir: dir}
}

// Send writes the signal file. An already-present file means the same
// signal is still pending; that is treated as delivered.
func (s *FileSignalSender) Send(signal Signal) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create control directory: %w", err)
	}

	path := filepath.Join(s.dir, string(signal))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return fmt.Errorf("failed to create signal file: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintln(f, time.Now().UTC().Format(time.RFC3339)); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to write signal file: %w", err)
	}
	return nil
}
