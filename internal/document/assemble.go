package document

import "strings"

// UnitMarker opens every unit in assembled text.
const UnitMarker = "#*#"

// Assemble joins units in plan order as "#*# <id>:<body>" and appends the
// kind terminator. Marker text inside an id or body is dropped so that
// CountMarkers equals the number of units.
func Assemble(spec KindSpec, units []Unit) string {
	var b strings.Builder
	for _, u := range units {
		b.WriteString(UnitMarker)
		b.WriteByte(' ')
		b.WriteString(strings.ReplaceAll(u.ID, UnitMarker, ""))
		b.WriteByte(':')
		b.WriteString(strings.ReplaceAll(u.Body, UnitMarker, ""))
	}
	b.WriteString(spec.Terminator)
	return b.String()
}

// SplitBlocks splits text on the unit marker.
func SplitBlocks(text string) []string {
	return strings.Split(text, UnitMarker)
}

// CountMarkers returns how many units text contains.
func CountMarkers(text string) int {
	return strings.Count(text, UnitMarker)
}

// StatusOf derives the document status from its finalized units.
func StatusOf(units []Unit) Status {
	for _, u := range units {
		if !u.Converged {
			return StatusNonConverged
		}
	}
	return StatusCompleted
}
