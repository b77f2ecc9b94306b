// Package prompts provides prompt management with embedded defaults and
// file-based overrides.
//
// The package supports a hybrid model where:
//   - Embedded .tmpl files in code are the source of truth for defaults
//   - An override directory may replace any prompt by key (<key>.tmpl)
//
// Every prompt is a text/template. Rendered prompts are identified by the
// SHA-256 of their template text so the call ledger can tie a call to the
// exact wording used.
package prompts

// EmbeddedPrompt represents a prompt loaded from an embedded .tmpl file.
type EmbeddedPrompt struct {
	Key         string   // Hierarchical key: plan.draft.diary
	Text        string   // The prompt text (Go template)
	Description string   // Human-readable description
	Variables   []string // Extracted template variables
	Hash        string   // SHA256 hash of the text for change detection
}

// Override is a prompt replacement read from the override directory.
type Override struct {
	Key  string `json:"key"`
	Text string `json:"text"`
	Path string `json:"path"`
}

// ResolvedPrompt is the result of resolving a prompt key.
type ResolvedPrompt struct {
	Key        string   `json:"key"`
	Text       string   `json:"text"`
	Variables  []string `json:"variables,omitempty"`
	IsOverride bool     `json:"is_override"`
	Hash       string   `json:"hash"`
}

// PlanData fills plan draft and revise templates.
type PlanData struct {
	Requirement string
	Plan        string // current plan, revise only
}

// UnitData fills unit draft templates.
type UnitData struct {
	UnitID      string
	Brief       string
	Plan        string
	Requirement string
	TargetWords int
}

// EditData fills the length-edit template.
type EditData struct {
	Direction string // "shorten" or "lengthen"
	Diff      int
	Text      string
}
