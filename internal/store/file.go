// Package store persists a single JSON document to disk.
//
// The document is always overwritten as a whole. Writes go to a temporary
// file in the same directory which is then renamed over the target, so a
// crash mid-write leaves either the previous document or the new one.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/moby/sys/atomicwriter"
)

// JSONFile stores one value of type T as a JSON file.
type JSONFile[T any] struct {
	path string
}

// NewJSONFile creates a store backed by path. The parent directory is created
// on the first Save.
func NewJSONFile[T any](path string) *JSONFile[T] {
	return &JSONFile[T]{path: path}
}

// Path returns the backing file path.
func (f *JSONFile[T]) Path() string {
	return f.path
}

// Save atomically replaces the stored document with v.
func (f *JSONFile[T]) Save(ctx context.Context, v *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", f.path, err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", f.path, err)
	}
	if err := atomicwriter.WriteFile(f.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", f.path, err)
	}
	return nil
}

// Load reads the stored document. A missing file returns (nil, nil).
func (f *JSONFile[T]) Load(ctx context.Context) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.path, err)
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("corrupt document %s: %w", f.path, err)
	}
	return &v, nil
}
