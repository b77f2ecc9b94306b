// Package document holds the data model shared by the generation engine:
// requests read from a dataset, structural plans, generated units and the
// results written back out.
package document

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownKind means a dataset type tag did not name a known kind.
	ErrUnknownKind = errors.New("unknown document kind")
	// ErrInvalidDataset means the dataset could not be decoded.
	ErrInvalidDataset = errors.New("invalid dataset")
)

// Request is one dataset example. Every field of the source object is kept
// in Fields and written back verbatim with the result.
type Request struct {
	ID     string
	Prompt string
	Type   string
	Kind   Kind
	Fields map[string]json.RawMessage
}

// UnmarshalJSON decodes a dataset object. Only "prompt" is required. An
// unrecognised "type" leaves Kind as KindUnknown.
func (r *Request) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	req, err := requestFromFields(raw)
	if err != nil {
		return err
	}
	*r = req
	return nil
}

// MarshalJSON writes the original fields.
func (r Request) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.fields())
}

// fields returns the source fields, synthesising them for requests built
// in code.
func (r Request) fields() map[string]json.RawMessage {
	if r.Fields != nil {
		return r.Fields
	}
	out := make(map[string]json.RawMessage, 3)
	for k, v := range map[string]string{"id": r.ID, "prompt": r.Prompt, "type": r.Type} {
		if v == "" {
			continue
		}
		b, _ := json.Marshal(v)
		out[k] = b
	}
	return out
}

func requestFromFields(raw map[string]json.RawMessage) (Request, error) {
	fields := make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		var buf bytes.Buffer
		if err := json.Compact(&buf, v); err != nil {
			return Request{}, err
		}
		fields[k] = buf.Bytes()
	}

	req := Request{Fields: fields}
	if v, ok := fields["prompt"]; ok {
		if err := json.Unmarshal(v, &req.Prompt); err != nil {
			return Request{}, fmt.Errorf("prompt: %w", err)
		}
	} else {
		return Request{}, errors.New("missing prompt")
	}
	if v, ok := fields["id"]; ok {
		req.ID = scalarText(v)
	}
	if v, ok := fields["type"]; ok {
		req.Type = scalarText(v)
		req.Kind, _ = ParseKind(req.Type)
	}
	return req, nil
}

// scalarText renders a JSON string as its value and anything else as its
// JSON text, so numeric ids work.
func scalarText(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	return string(v)
}

// Key derives the checkpoint key: the SHA-256 of the id, or of the
// canonical JSON of the whole request when it has no id.
func (r Request) Key() string {
	var material []byte
	if r.ID != "" {
		material = []byte(r.ID)
	} else {
		// encoding/json sorts map keys, and values were compacted on load.
		material, _ = json.Marshal(r.fields())
	}
	sum := sha256.Sum256(material)
	return hex.EncodeToString(sum[:])
}

// Label is a short human-readable identity for logs.
func (r Request) Label() string {
	if r.ID != "" {
		return r.ID
	}
	k := r.Key()
	return k[:12]
}

// PlanUnit is one leaf of a structural plan.
type PlanUnit struct {
	ID    string `json:"unit_id"`
	Brief string `json:"brief"`
}

// Unit is a plan unit with its generated body.
type Unit struct {
	PlanUnit
	Body            string `json:"body"`
	TargetWords     int    `json:"target_words"`
	WordCount       int    `json:"word_count"`
	WithinTolerance bool   `json:"within_tolerance"`
	Iterations      int    `json:"refine_iterations"`
	Converged       bool   `json:"converged"`
	Failure         string `json:"failure,omitempty"`
}

// Status is a document outcome.
type Status string

const (
	// StatusCompleted means every unit converged.
	StatusCompleted Status = "completed"
	// StatusNonConverged means the document is whole but at least one unit
	// stayed outside the length tolerance.
	StatusNonConverged Status = "nonconverged"
	// StatusDegraded means generation failed; the result carries whatever
	// was produced and a failure reason.
	StatusDegraded Status = "degraded"
)

// Checkpointable reports whether a result with this status is final.
func (s Status) Checkpointable() bool {
	return s == StatusCompleted || s == StatusNonConverged
}

// Result is the outcome of generating one Request.
type Result struct {
	Request   Request
	Kind      Kind
	Status    Status
	Generator string
	Model     string
	Plan      []Unit
	FinalText string
	Elapsed   float64
	Failure   string

	// Baseline-only fields.
	Response     string
	OutputBlocks []string
	WordCount    int
}

type resultFields struct {
	Kind         Kind     `json:"kind"`
	Status       Status   `json:"status"`
	Generator    string   `json:"generator,omitempty"`
	Model        string   `json:"model,omitempty"`
	Plan         []Unit   `json:"plan,omitempty"`
	FinalText    string   `json:"final_text"`
	Elapsed      float64  `json:"elapsed_seconds"`
	Failure      string   `json:"failure,omitempty"`
	Response     string   `json:"response,omitempty"`
	OutputBlocks []string `json:"output_blocks,omitempty"`
	WordCount    int      `json:"word_count,omitempty"`
}

var resultKeys = []string{
	"kind", "status", "generator", "model", "plan", "final_text",
	"elapsed_seconds", "failure", "response", "output_blocks", "word_count",
}

// MarshalJSON merges the request's original fields with the result fields.
// Result fields win on collision.
func (r Result) MarshalJSON() ([]byte, error) {
	own, err := json.Marshal(resultFields{
		Kind:         r.Kind,
		Status:       r.Status,
		Generator:    r.Generator,
		Model:        r.Model,
		Plan:         r.Plan,
		FinalText:    r.FinalText,
		Elapsed:      r.Elapsed,
		Failure:      r.Failure,
		Response:     r.Response,
		OutputBlocks: r.OutputBlocks,
		WordCount:    r.WordCount,
	})
	if err != nil {
		return nil, err
	}
	var ownMap map[string]json.RawMessage
	if err := json.Unmarshal(own, &ownMap); err != nil {
		return nil, err
	}
	reqFields := r.Request.fields()
	merged := make(map[string]json.RawMessage, len(reqFields)+len(ownMap))
	for k, v := range reqFields {
		merged[k] = v
	}
	for k, v := range ownMap {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// UnmarshalJSON splits a stored result back into request and result
// fields.
func (r *Result) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var own resultFields
	if err := json.Unmarshal(b, &own); err != nil {
		return err
	}
	for _, k := range resultKeys {
		delete(raw, k)
	}
	req, err := requestFromFields(raw)
	if err != nil {
		return fmt.Errorf("request fields: %w", err)
	}
	*r = Result{
		Request:      req,
		Kind:         own.Kind,
		Status:       own.Status,
		Generator:    own.Generator,
		Model:        own.Model,
		Plan:         own.Plan,
		FinalText:    own.FinalText,
		Elapsed:      own.Elapsed,
		Failure:      own.Failure,
		Response:     own.Response,
		OutputBlocks: own.OutputBlocks,
		WordCount:    own.WordCount,
	}
	return nil
}

// Title is a display title for rendering.
func (r Result) Title() string {
	label := r.Request.Label()
	if r.Kind == KindUnknown {
		return label
	}
	return strings.ToUpper(r.Kind.String()[:1]) + r.Kind.String()[1:] + " " + label
}
