package recovery

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// Object is a recovered JSON object. Field lookups are by top-level key.
type Object struct {
	raw []byte
}

// NewObject wraps raw JSON. It does not validate.
func NewObject(raw []byte) *Object {
	return &Object{raw: raw}
}

// Raw returns the compact JSON encoding.
func (o *Object) Raw() json.RawMessage {
	return json.RawMessage(o.raw)
}

// Has reports whether field is present, including when its value is null.
func (o *Object) Has(field string) bool {
	return o.get(field).Exists()
}

// Field returns the raw JSON value of field, or nil.
func (o *Object) Field(field string) json.RawMessage {
	r := o.get(field)
	if !r.Exists() {
		return nil
	}
	return json.RawMessage(r.Raw)
}

// String returns field as text. Non-string scalars are rendered in their
// JSON form; missing fields yield "".
func (o *Object) String(field string) string {
	r := o.get(field)
	if !r.Exists() || r.Type == gjson.Null {
		return ""
	}
	if r.Type == gjson.String {
		return r.Str
	}
	return r.Raw
}

// Array returns field's elements as objects. Non-object elements are
// skipped. A missing or non-array field yields nil.
func (o *Object) Array(field string) []*Object {
	r := o.get(field)
	if !r.IsArray() {
		return nil
	}
	var out []*Object
	for _, el := range r.Array() {
		if el.IsObject() {
			out = append(out, &Object{raw: []byte(el.Raw)})
		}
	}
	return out
}

// Map decodes the object into a generic map with numbers kept exact.
func (o *Object) Map() (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(o.raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

// Decode unmarshals the object into v.
func (o *Object) Decode(v any) error {
	return json.Unmarshal(o.raw, v)
}

func (o *Object) get(field string) gjson.Result {
	return gjson.GetBytes(o.raw, escapePath(field))
}

// escapePath quotes gjson path metacharacters so field is matched literally.
func escapePath(field string) string {
	if !strings.ContainsAny(field, `.*?|#@\!=<>%`) {
		return field
	}
	var b strings.Builder
	for _, r := range field {
		if strings.ContainsRune(`.*?|#@\!=<>%`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
