package planner

import (
	"encoding/json"
	"strings"

	"github.com/jackzampolin/longform/internal/document"
)

// PlanJSON renders units as the JSON array the kind's prompts describe,
// with the id field first.
func PlanJSON(spec document.KindSpec, units []document.PlanUnit) string {
	var b strings.Builder
	b.WriteString("[\n")
	for i, u := range units {
		id, _ := json.Marshal(u.ID)
		brief, _ := json.Marshal(u.Brief)
		b.WriteString(`    {"`)
		b.WriteString(spec.IDField)
		b.WriteString(`": `)
		b.Write(id)
		b.WriteString(`, "`)
		b.WriteString(spec.BriefField)
		b.WriteString(`": `)
		b.Write(brief)
		b.WriteString("}")
		if i < len(units)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString("]")
	return b.String()
}
