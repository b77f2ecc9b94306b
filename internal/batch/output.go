package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jackzampolin/longform/internal/checkpoint"
	"github.com/jackzampolin/longform/internal/document"
)

// WriteOutput writes results as one JSON array, replacing path atomically.
func WriteOutput(path string, results []*document.Result) error {
	if results == nil {
		results = []*document.Result{}
	}
	data, err := json.MarshalIndent(results, "", "    ")
	if err != nil {
		return fmt.Errorf("%w: encode output: %w", ErrFatal, err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: create output directory: %w", ErrFatal, err)
		}
	}
	if err := checkpoint.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("%w: write output: %w", ErrFatal, err)
	}
	return nil
}

// ReadOutput reads a file written by WriteOutput.
func ReadOutput(path string) ([]*document.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var results []*document.Result
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return results, nil
}
