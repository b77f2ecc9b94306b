package document

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind is the closed set of document kinds.
type Kind int

const (
	KindUnknown Kind = iota
	KindDiary
	KindArchitecture
	KindMenu
	KindZoning
)

// KindSpec carries everything that varies by kind: the JSON field names the
// prompts ask for, the expected unit count and length, and the terminator
// appended to the assembled text.
type KindSpec struct {
	Kind Kind
	Name string
	// DatasetType is the canonical dataset "type" tag.
	DatasetType string

	PlanField  string // array of units in plan responses
	IDField    string // unit identity
	BriefField string // one-line unit description
	BodyField  string // generated unit text

	Units       int
	TargetWords int
	Terminator  string
}

// RevisedPlanField is the field a revision response carries the plan in.
func (s KindSpec) RevisedPlanField() string {
	return "revised_" + s.PlanField
}

var kindSpecs = map[Kind]KindSpec{
	KindDiary: {
		Kind:        KindDiary,
		Name:        "diary",
		DatasetType: "Week",
		PlanField:   "weekly_plan",
		IDField:     "week_id",
		BriefField:  "events",
		BodyField:   "diary_entry",
		Units:       52,
		TargetWords: 200,
		Terminator:  "*** finished ***",
	},
	KindArchitecture: {
		Kind:        KindArchitecture,
		Name:        "architecture",
		DatasetType: "Floor",
		PlanField:   "floor_plan",
		IDField:     "floor_id",
		BriefField:  "purpose",
		BodyField:   "plan",
		Units:       100,
		TargetWords: 150,
		Terminator:  "*** finished",
	},
	KindMenu: {
		Kind:        KindMenu,
		Name:        "menu",
		DatasetType: "Menu Week",
		PlanField:   "weekly_plan",
		IDField:     "week_id",
		BriefField:  "dishes",
		BodyField:   "week_menu",
		Units:       52,
		TargetWords: 200,
		Terminator:  "*** finished ***",
	},
	KindZoning: {
		Kind:        KindZoning,
		Name:        "zoning",
		DatasetType: "Block",
		PlanField:   "block_plan",
		IDField:     "block_id",
		BriefField:  "use",
		BodyField:   "plan",
		Units:       100,
		TargetWords: 150,
		Terminator:  "*** finished",
	},
}

// Kinds returns every known kind in declaration order.
func Kinds() []Kind {
	return []Kind{KindDiary, KindArchitecture, KindMenu, KindZoning}
}

// Spec returns the kind's parameters. The zero KindSpec is returned for
// KindUnknown.
func (k Kind) Spec() KindSpec {
	return kindSpecs[k]
}

func (k Kind) String() string {
	if s, ok := kindSpecs[k]; ok {
		return s.Name
	}
	return "unknown"
}

// ParseKind accepts a dataset type tag or a kind name, case-insensitively.
func ParseKind(tag string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "week", "diary":
		return KindDiary, nil
	case "floor", "architecture":
		return KindArchitecture, nil
	case "menu week", "menu":
		return KindMenu, nil
	case "block", "zoning":
		return KindZoning, nil
	}
	return KindUnknown, fmt.Errorf("%w: %q", ErrUnknownKind, tag)
}

// MarshalJSON encodes the kind by name.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes a kind name or dataset tag.
func (k *Kind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" || s == "unknown" {
		*k = KindUnknown
		return nil
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
