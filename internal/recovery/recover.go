// Package recovery turns free-form model output into JSON objects.
//
// Models wrap JSON in prose, code fences and comments, and frequently emit
// almost-JSON. Recover locates candidate objects, repairs them, parses, and
// checks that required fields are present.
package recovery

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRecovery is the parent of every recovery failure.
	ErrRecovery = errors.New("structured response recovery failed")
	// ErrNoObject means the text contains no '{'.
	ErrNoObject = fmt.Errorf("%w: no JSON object in response", ErrRecovery)
	// ErrUnparseable means candidates were found but none parsed.
	ErrUnparseable = fmt.Errorf("%w: could not parse JSON object", ErrRecovery)
	// ErrMissingFields means an object parsed but lacked required fields.
	ErrMissingFields = fmt.Errorf("%w: missing required fields", ErrRecovery)
	// ErrSchema means an object failed schema validation.
	ErrSchema = fmt.Errorf("%w: schema validation failed", ErrRecovery)
)

// Recoverer configures recovery. The zero value uses Balanced extraction
// and no schema.
type Recoverer struct {
	Mode   Mode
	Schema *Schema
}

// Recover extracts a JSON object from raw using the default Recoverer.
func Recover(raw string, required ...string) (*Object, error) {
	return Recoverer{}.Recover(raw, required...)
}

// Recover extracts a JSON object from raw and checks that every field in
// required is present. Each candidate is tried strictly first, then after
// Repair. The first candidate that parses and passes all checks wins; when
// none does, the error from the most promising candidate is returned.
func (r Recoverer) Recover(raw string, required ...string) (*Object, error) {
	text := stripCodeFences(raw)
	cands := candidates(text, r.Mode)
	if len(cands) == 0 {
		return nil, ErrNoObject
	}

	var best error
	for _, c := range cands {
		obj, err := r.tryCandidate(c, required)
		if err == nil {
			return obj, nil
		}
		// A candidate that parsed says more than one that did not.
		if best == nil || errors.Is(best, ErrUnparseable) {
			best = err
		}
	}
	return nil, best
}

func (r Recoverer) tryCandidate(c string, required []string) (*Object, error) {
	raw, ok := parseObject(c)
	if !ok {
		raw, ok = parseObject(Repair(c))
	}
	if !ok {
		return nil, ErrUnparseable
	}
	obj := &Object{raw: raw}
	var missing []string
	for _, f := range required {
		if !obj.Has(f) {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingFields, strings.Join(missing, ", "))
	}
	if r.Schema != nil {
		if err := r.Schema.Validate(raw); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

// parseObject reports whether s is a JSON object and returns it compacted.
func parseObject(s string) ([]byte, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(s)); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}
