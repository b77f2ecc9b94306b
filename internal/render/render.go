// Package render turns document results into Markdown and HTML.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/jackzampolin/longform/internal/document"
)

var md = goldmark.New(goldmark.WithExtensions(extension.Table, extension.Strikethrough))

var page = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { max-width: 46rem; margin: 2rem auto; font-family: Georgia, serif; line-height: 1.5; }
blockquote { color: #8a3b12; border-left: 3px solid #d9a17a; margin-left: 0; padding-left: 1rem; }
</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// Markdown renders res as a Markdown document: a title, a metadata line,
// then one section per unit in plan order. Results without units render
// their raw response.
func Markdown(res *document.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", res.Title())

	meta := []string{string(res.Status)}
	if res.Generator != "" {
		meta = append(meta, res.Generator)
	}
	if res.Model != "" {
		meta = append(meta, res.Model)
	}
	meta = append(meta, fmt.Sprintf("%.1fs", res.Elapsed))
	fmt.Fprintf(&b, "_%s_\n\n", strings.Join(meta, " | "))

	if res.Failure != "" {
		fmt.Fprintf(&b, "> Generation failed: %s\n\n", oneLine(res.Failure))
	}

	if len(res.Plan) == 0 {
		if text := strings.TrimSpace(res.FinalText); text != "" {
			b.WriteString(text)
			b.WriteString("\n")
		}
		return b.String()
	}

	for _, u := range res.Plan {
		fmt.Fprintf(&b, "## %s\n\n", oneLine(u.ID))
		if u.Brief != "" {
			fmt.Fprintf(&b, "*%s*\n\n", oneLine(u.Brief))
		}
		if !u.Converged && u.Body != "" {
			fmt.Fprintf(&b, "> %d words, target %d (length not converged)\n\n", u.WordCount, u.TargetWords)
		}
		if u.Body == "" {
			b.WriteString("> No text generated.\n\n")
			continue
		}
		b.WriteString(strings.TrimSpace(u.Body))
		b.WriteString("\n\n")
	}
	return b.String()
}

// HTML renders res as a standalone HTML page.
func HTML(res *document.Result) ([]byte, error) {
	var body bytes.Buffer
	if err := md.Convert([]byte(Markdown(res)), &body); err != nil {
		return nil, fmt.Errorf("convert markdown: %w", err)
	}
	var out bytes.Buffer
	err := page.Execute(&out, struct {
		Title string
		Body  template.HTML
	}{res.Title(), template.HTML(body.String())})
	if err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileName is the page name for the i-th result (0-based).
func FileName(i int, res *document.Result) string {
	label := strings.Trim(unsafeName.ReplaceAllString(res.Request.Label(), "_"), "_")
	if label == "" {
		label = "document"
	}
	return fmt.Sprintf("%04d_%s.html", i+1, label)
}

// WriteHTML writes one page per result into dir and returns the paths.
func WriteHTML(dir string, results []*document.Result) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(results))
	for i, res := range results {
		data, err := HTML(res)
		if err != nil {
			return paths, fmt.Errorf("render %s: %w", res.Request.Label(), err)
		}
		path := filepath.Join(dir, FileName(i, res))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
