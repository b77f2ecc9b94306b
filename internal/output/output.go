// Package output writes command results as YAML or JSON.
package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// ErrUnknownFormat is returned for a format other than yaml or json.
var ErrUnknownFormat = errors.New("unknown output format")

// Format defines the output format for CLI commands.
type Format string

const (
	YAML Format = "yaml"
	JSON Format = "json"
)

// Default is the format used when none is given.
const Default = YAML

// ParseFormat maps a --format flag value to a Format. Empty selects Default.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "":
		return Default, nil
	case string(YAML), "yml":
		return YAML, nil
	case string(JSON):
		return JSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Write encodes data to w in the given format.
func Write(w io.Writer, format Format, data any) error {
	switch format {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
}
