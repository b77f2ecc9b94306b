package recovery

import "strings"

// Mode selects how candidate objects are located in a response.
type Mode int

const (
	// Balanced scans for brace-balanced top-level objects and tries each
	// in order. A trailing object that never closes runs to end of text.
	Balanced Mode = iota
	// Greedy takes the span from the first '{' to the last '}'.
	Greedy
)

func (m Mode) String() string {
	switch m {
	case Greedy:
		return "greedy"
	default:
		return "balanced"
	}
}

// ParseMode maps a config string onto a Mode. Unknown values are Balanced.
func ParseMode(s string) Mode {
	if strings.EqualFold(strings.TrimSpace(s), "greedy") {
		return Greedy
	}
	return Balanced
}

// stripCodeFences removes a surrounding markdown code fence if present.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

func candidates(text string, mode Mode) []string {
	if mode == Greedy {
		if c, ok := greedySpan(text); ok {
			return []string{c}
		}
		return nil
	}
	return balancedSpans(text)
}

func greedySpan(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	end := strings.LastIndexByte(text, '}')
	if end < start {
		// Opened but never closed: hand the tail to Repair.
		return text[start:], true
	}
	return text[start : end+1], true
}

// balancedSpans returns every top-level {...} span, honouring quoted
// strings so braces inside values do not count. Single-quoted strings only
// open where a key or value may start, and close by the same rule Repair
// uses, so apostrophes in prose do not confuse the scan.
func balancedSpans(text string) []string {
	var spans []string
	depth := 0
	start := -1
	var quote byte
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"' && quote == '"':
				quote = 0
			case c == '\'' && quote == '\'' && quoteEnds(text, i):
				quote = 0
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				quote = c
			}
		case '\'':
			if depth > 0 && valueMayStart(text, i) {
				quote = c
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				spans = append(spans, text[start:i+1])
				start = -1
			}
		}
	}
	if depth > 0 && start >= 0 {
		spans = append(spans, text[start:])
	}
	return spans
}

// valueMayStart reports whether the byte before pos, ignoring whitespace,
// is one after which a key or value begins.
func valueMayStart(text string, pos int) bool {
	for i := pos - 1; i >= 0; i-- {
		if isSpace(text[i]) {
			continue
		}
		return strings.IndexByte("{[,:", text[i]) >= 0
	}
	return false
}
