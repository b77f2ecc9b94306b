package prompts

import (
	"embed"
	"fmt"
	"log/slog"

	"github.com/jackzampolin/longform/internal/document"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// EditKey is the length-edit prompt shared by every kind.
const EditKey = "unit.edit"

// PlanDraftKey is the key of the kind's plan draft prompt.
func PlanDraftKey(k document.Kind) string { return "plan.draft." + k.String() }

// PlanReviseKey is the key of the kind's plan revision prompt.
func PlanReviseKey(k document.Kind) string { return "plan.revise." + k.String() }

// UnitDraftKey is the key of the kind's unit draft prompt.
func UnitDraftKey(k document.Kind) string { return "unit.draft." + k.String() }

// RegisterDefaults registers every embedded prompt with r.
func RegisterDefaults(r *Resolver) error {
	for _, k := range document.Kinds() {
		name := k.String()
		entries := []struct{ key, file, desc string }{
			{PlanDraftKey(k), "plan_draft_" + name, fmt.Sprintf("Initial %s plan", name)},
			{PlanReviseKey(k), "plan_revise_" + name, fmt.Sprintf("%s plan revision", name)},
			{UnitDraftKey(k), "unit_draft_" + name, fmt.Sprintf("%s unit body", name)},
		}
		for _, e := range entries {
			if err := registerFile(r, e.key, e.file, e.desc); err != nil {
				return err
			}
		}
	}
	return registerFile(r, EditKey, "unit_edit", "Shorten or lengthen a unit body")
}

func registerFile(r *Resolver, key, file, desc string) error {
	text, err := templateFS.ReadFile("templates/" + file + ".tmpl")
	if err != nil {
		return fmt.Errorf("embedded prompt %s: %w", key, err)
	}
	r.Register(EmbeddedPrompt{Key: key, Text: string(text), Description: desc})
	return nil
}

// NewDefaultResolver returns a resolver with every embedded prompt
// registered and overrides read from overrideDir (may be empty).
func NewDefaultResolver(overrideDir string, logger *slog.Logger) (*Resolver, error) {
	r := NewResolver(NewStore(overrideDir, logger), logger)
	if err := RegisterDefaults(r); err != nil {
		return nil, err
	}
	return r, nil
}
