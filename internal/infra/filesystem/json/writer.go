package json

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Writer writes JSON documents and raw files, creating parent directories
type Writer struct{}

func NewWriter() *Writer {
	return &Writer{}
}

// WriteJSON writes data as JSON to the specified path
func (w *Writer) WriteJSON(path string, data any) error {
	content, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := w.ensureDir(path); err != nil {
		return err
	}

	return w.writeAtomic(path, append(content, '\n'))
}

// WriteBytes writes raw bytes to the specified path
func (w *Writer) WriteBytes(path string, data []byte) error {
	if err := w.ensureDir(path); err != nil {
		return err
	}

	return w.writeAtomic(path, data)
}

// writeAtomic writes to a temporary file next to path and renames it, so
// readers never observe a partial record.
func (w *Writer) writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("failed to chmod file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}

// ensureDir ensures the parent directory of a file exists
func (w *Writer) ensureDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}
