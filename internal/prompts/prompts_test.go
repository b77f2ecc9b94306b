package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackzampolin/longform/internal/document"
)

func TestExtractVariables(t *testing.T) {
	got := ExtractVariables("Write {{.TargetWords}} words for {{ .UnitID }} ({{.TargetWords}})")
	if len(got) != 2 || got[0] != "TargetWords" || got[1] != "UnitID" {
		t.Errorf("ExtractVariables() = %v", got)
	}
}

func TestDefaults(t *testing.T) {
	r, err := NewDefaultResolver("", nil)
	if err != nil {
		t.Fatalf("NewDefaultResolver() error = %v", err)
	}
	if got := len(r.AllEmbedded()); got != 13 {
		t.Errorf("embedded prompts = %d, want 13", got)
	}

	for _, k := range document.Kinds() {
		spec := k.Spec()
		out, err := r.Render(UnitDraftKey(k), UnitData{
			UnitID:      "Unit 7",
			Brief:       "something happens",
			Plan:        "[]",
			Requirement: "the requirement",
			TargetWords: spec.TargetWords,
		})
		if err != nil {
			t.Fatalf("%v unit draft: %v", k, err)
		}
		for _, want := range []string{`"` + spec.IDField + `": "Unit 7"`, `"` + spec.BodyField + `"`, "the requirement"} {
			if !strings.Contains(out, want) {
				t.Errorf("%v unit draft missing %q", k, want)
			}
		}

		out, err = r.Render(PlanReviseKey(k), PlanData{Requirement: "req", Plan: "CURRENT"})
		if err != nil {
			t.Fatalf("%v plan revise: %v", k, err)
		}
		if !strings.Contains(out, spec.RevisedPlanField()) || !strings.Contains(out, "CURRENT") {
			t.Errorf("%v revise prompt lacks field or plan", k)
		}

		out, err = r.Render(PlanDraftKey(k), PlanData{Requirement: "req"})
		if err != nil {
			t.Fatalf("%v plan draft: %v", k, err)
		}
		if !strings.Contains(out, `"`+spec.PlanField+`"`) {
			t.Errorf("%v draft prompt lacks %s", k, spec.PlanField)
		}
	}

	out, err := r.Render(EditKey, EditData{Direction: "shorten", Diff: 42, Text: "BODY"})
	if err != nil {
		t.Fatal(err)
	}
	want := "You are an expert editor. The provided text need to be shorten by 42 words while maintaining the original meaning and coherence."
	if !strings.HasPrefix(out, want) || !strings.Contains(out, "BODY") || !strings.Contains(out, "Return only the refined text.") {
		t.Errorf("edit prompt = %q", out)
	}
}

func TestResolverOverride(t *testing.T) {
	dir := t.TempDir()
	r, err := NewDefaultResolver(dir, nil)
	if err != nil {
		t.Fatal(err)
	}

	p, err := r.Resolve(EditKey)
	if err != nil {
		t.Fatal(err)
	}
	if p.IsOverride {
		t.Error("no override written yet")
	}

	if err := os.WriteFile(filepath.Join(dir, EditKey+".tmpl"), []byte("Make it {{.Direction}}: {{.Text}}"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := r.Render(EditKey, EditData{Direction: "lengthen", Text: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "Make it lengthen: x" {
		t.Errorf("override render = %q", out)
	}

	p, _ = r.Resolve(EditKey)
	if !p.IsOverride || p.Hash != HashText("Make it {{.Direction}}: {{.Text}}") {
		t.Errorf("resolved = %+v", p)
	}

	if _, err := r.Resolve("nope.missing"); err == nil {
		t.Error("expected error for unknown key")
	}
	if _, err := r.Resolve("../escape"); err == nil {
		t.Error("expected error for invalid key")
	}
}

func TestRenderMissingField(t *testing.T) {
	dir := t.TempDir()
	r, _ := NewDefaultResolver(dir, nil)
	os.WriteFile(filepath.Join(dir, EditKey+".tmpl"), []byte("{{.Nope}}"), 0o644)
	if _, err := r.Render(EditKey, EditData{}); err == nil {
		t.Error("expected error for unknown template field")
	}
}

func TestExportAll(t *testing.T) {
	dir := t.TempDir()
	r, err := NewDefaultResolver(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	n, err := r.ExportAll(false)
	if err != nil || n != 13 {
		t.Fatalf("ExportAll() = %d, %v", n, err)
	}
	n, err = r.ExportAll(false)
	if err != nil || n != 0 {
		t.Errorf("second ExportAll() = %d, %v, want 0", n, err)
	}
	list, err := r.store.List()
	if err != nil || len(list) != 13 {
		t.Errorf("List() = %d, %v", len(list), err)
	}
}
