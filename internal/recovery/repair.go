package recovery

import (
	"encoding/json"
	"strings"
)

// Repair rewrites a damaged JSON object or array into valid JSON where it
// can. It never fails: text it cannot make sense of is passed through and
// left for the parser to reject.
//
// Handled damage: // and /* */ comments, single-quoted strings, bare keys
// and bare string values, Python literals (True, False, None), numbers
// like .5 or +3, raw control characters and unescaped quotes inside
// strings, invalid escapes, missing or doubled commas, trailing commas,
// dangling keys, and unterminated strings or containers.
//
// Repair stops at the point where the first top-level container closes, so
// trailing commentary is dropped.
func Repair(s string) string {
	r := repairer{src: s}
	return r.run()
}

type repairer struct {
	src   string
	pos   int
	out   strings.Builder
	stack []byte
	// expectKey parallels stack; for objects it is true when the next
	// value written is a key.
	expectKey []bool

	// afterValue is set once a complete value (or key) has been written
	// and no separator has followed it yet.
	afterValue bool
	// pendingKey is set after a ':' until the value arrives.
	pendingKey bool
}

func (r *repairer) run() string {
	r.out.Grow(len(r.src) + 16)
	for r.pos < len(r.src) {
		c := r.src[r.pos]
		switch {
		case isSpace(c):
			r.out.WriteByte(c)
			r.pos++
		case c == '/' && r.peek(1) == '/':
			r.skipLineComment()
		case c == '/' && r.peek(1) == '*':
			r.skipBlockComment()
		case c == '{' || c == '[':
			r.beginValue()
			r.out.WriteByte(c)
			if c == '{' {
				r.push('}')
			} else {
				r.push(']')
			}
			r.afterValue = false
			r.pendingKey = false
			r.pos++
		case c == '}' || c == ']':
			r.pos++
			if r.close(c) && len(r.stack) == 0 {
				return r.out.String()
			}
		case c == ',':
			r.pos++
			if r.afterValue {
				r.out.WriteByte(',')
				r.afterValue = false
			}
		case c == ':':
			r.pos++
			r.out.WriteByte(':')
			r.afterValue = false
			r.pendingKey = true
		case c == '"' || c == '\'':
			r.beginValue()
			r.readString(c)
			r.valueDone()
		default:
			r.beginValue()
			if r.readBare() {
				r.valueDone()
			}
		}
		if len(r.stack) == 0 && r.out.Len() > 0 && r.afterValue {
			// A bare top-level scalar; nothing more to repair.
			return r.out.String()
		}
	}
	r.finish()
	return r.out.String()
}

func (r *repairer) peek(n int) byte {
	if r.pos+n < len(r.src) {
		return r.src[r.pos+n]
	}
	return 0
}

func (r *repairer) push(closer byte) {
	r.stack = append(r.stack, closer)
	r.expectKey = append(r.expectKey, closer == '}')
}

func (r *repairer) inObject() bool {
	return len(r.stack) > 0 && r.stack[len(r.stack)-1] == '}'
}

// valueDone records that a key or value was just written.
func (r *repairer) valueDone() {
	r.afterValue = true
	r.pendingKey = false
	if r.inObject() {
		n := len(r.expectKey) - 1
		r.expectKey[n] = !r.expectKey[n]
	}
}

// beginValue inserts a missing separator between two adjacent tokens: a
// colon after an object key, a comma anywhere else.
func (r *repairer) beginValue() {
	if !r.afterValue || len(r.stack) == 0 {
		return
	}
	if r.inObject() && !r.expectKey[len(r.expectKey)-1] {
		r.out.WriteByte(':')
	} else {
		r.out.WriteByte(',')
	}
	r.afterValue = false
}

// close handles a closing bracket. It returns false when the bracket did
// not match any open container and was dropped.
func (r *repairer) close(c byte) bool {
	idx := -1
	for i := len(r.stack) - 1; i >= 0; i-- {
		if r.stack[i] == c {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	for len(r.stack) > idx {
		r.closeTop()
	}
	return true
}

func (r *repairer) closeTop() {
	n := len(r.stack) - 1
	top, keyNext := r.stack[n], r.expectKey[n]
	r.stack, r.expectKey = r.stack[:n], r.expectKey[:n]
	r.trimTrailingComma()
	if top == '}' && !keyNext {
		// A key is waiting for its value.
		if !r.pendingKey {
			r.out.WriteByte(':')
		}
		r.out.WriteString("null")
	}
	r.pendingKey = false
	r.out.WriteByte(top)
	r.valueDone()
}

func (r *repairer) finish() {
	for len(r.stack) > 0 {
		r.closeTop()
	}
}

func (r *repairer) trimTrailingComma() {
	s := r.out.String()
	end := len(s)
	for end > 0 && isSpace(s[end-1]) {
		end--
	}
	if end > 0 && s[end-1] == ',' {
		trimmed := s[:end-1] + s[end:]
		r.out.Reset()
		r.out.WriteString(trimmed)
	}
}

func (r *repairer) skipLineComment() {
	for r.pos < len(r.src) && r.src[r.pos] != '\n' {
		r.pos++
	}
}

func (r *repairer) skipBlockComment() {
	r.pos += 2
	for r.pos < len(r.src) {
		if r.src[r.pos] == '*' && r.peek(1) == '/' {
			r.pos += 2
			return
		}
		r.pos++
	}
}

// readString copies a quoted string, normalising it to a double-quoted JSON
// string. A quote character only terminates the string when what follows
// looks like JSON structure; otherwise it is treated as content.
func (r *repairer) readString(quote byte) {
	r.pos++ // opening quote
	r.out.WriteByte('"')
	for r.pos < len(r.src) {
		c := r.src[r.pos]
		switch {
		case c == '\\':
			next := r.peek(1)
			switch {
			case next == 0:
				r.out.WriteString(`\\`)
				r.pos++
			case quote == '\'' && next == '\'':
				r.out.WriteByte('\'')
				r.pos += 2
			case strings.IndexByte(`"\/bfnrtu`, next) >= 0:
				r.out.WriteByte('\\')
				r.out.WriteByte(next)
				r.pos += 2
			default:
				r.out.WriteString(`\\`)
				r.pos++
			}
		case c == quote:
			if r.quoteTerminates() {
				r.pos++
				r.out.WriteByte('"')
				return
			}
			r.writeEscapedQuote(c)
			r.pos++
		case c == '"':
			r.out.WriteString(`\"`)
			r.pos++
		case c == '\n':
			r.out.WriteString(`\n`)
			r.pos++
		case c == '\r':
			r.out.WriteString(`\r`)
			r.pos++
		case c == '\t':
			r.out.WriteString(`\t`)
			r.pos++
		case c < 0x20:
			r.pos++
		default:
			r.out.WriteByte(c)
			r.pos++
		}
	}
	// Unterminated string.
	r.out.WriteByte('"')
}

func (r *repairer) writeEscapedQuote(c byte) {
	if c == '"' {
		r.out.WriteString(`\"`)
		return
	}
	r.out.WriteByte(c)
}

// quoteTerminates looks past the quote at r.pos to decide whether it ends
// the string.
func (r *repairer) quoteTerminates() bool {
	return quoteEnds(r.src, r.pos)
}

// quoteEnds reports whether the quote at src[pos] closes a string, judged by
// whether what follows looks like JSON structure.
func quoteEnds(src string, pos int) bool {
	i := skipSpace(src, pos+1)
	if i >= len(src) {
		return true
	}
	switch src[i] {
	case ':', '}', ']', '"':
		return true
	case ',':
		j := skipSpace(src, i+1)
		if j >= len(src) {
			return true
		}
		next := src[j]
		return strings.IndexByte(`"'{[]}-`, next) >= 0 || isDigit(next) || isIdentStart(next)
	case '/':
		return byteAt(src, i+1) == '/' || byteAt(src, i+1) == '*'
	}
	return false
}

func byteAt(s string, i int) byte {
	if i < len(s) {
		return s[i]
	}
	return 0
}

func skipSpace(s string, i int) int {
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	return i
}

// readBare consumes an unquoted token up to the next structural character
// and writes it as a literal, a number, or a quoted string. It reports
// whether anything was written.
func (r *repairer) readBare() bool {
	start := r.pos
	for r.pos < len(r.src) {
		c := r.src[r.pos]
		if strings.IndexByte(",:{}[]\"\n", c) >= 0 {
			break
		}
		if c == '/' && (r.peek(1) == '/' || r.peek(1) == '*') {
			break
		}
		r.pos++
	}
	token := strings.TrimSpace(r.src[start:r.pos])
	// Keep the whitespace we trimmed off the end so layout survives.
	trailing := r.src[start:r.pos][len(strings.TrimRight(r.src[start:r.pos], " \t\r")):]

	switch token {
	case "":
		return false
	case "true", "True":
		r.out.WriteString("true")
	case "false", "False":
		r.out.WriteString("false")
	case "null", "None", "undefined":
		r.out.WriteString("null")
	default:
		if num, ok := normalizeNumber(token); ok {
			r.out.WriteString(num)
		} else {
			b, _ := json.Marshal(token)
			r.out.Write(b)
		}
	}
	r.out.WriteString(trailing)
	return true
}

// normalizeNumber fixes number spellings models commonly emit (".5",
// "-.5", "+3") and reports whether the result is a valid JSON number.
func normalizeNumber(token string) (string, bool) {
	t := strings.TrimPrefix(token, "+")
	switch {
	case strings.HasPrefix(t, "."):
		t = "0" + t
	case strings.HasPrefix(t, "-."):
		t = "-0" + t[1:]
	}
	if t == "" || !json.Valid([]byte(t)) {
		return "", false
	}
	if t[0] != '-' && !isDigit(t[0]) {
		return "", false
	}
	return t, true
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
