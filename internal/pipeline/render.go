package pipeline

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/raphaelgruber/chorus/internal/models"
)

// baseCSS styles every generated document; it follows the viewer's color scheme.
const baseCSS = `
:root { color-scheme: light dark; --fg: #1c1c1e; --bg: #ffffff; --muted: #6b7280; --accent: #4f46e5; --line: #e5e7eb; }
@media (prefers-color-scheme: dark) { :root { --fg: #f3f4f6; --bg: #111827; --muted: #9ca3af; --accent: #818cf8; --line: #374151; } }
body { margin: 0; padding: 1rem; font-family: system-ui, sans-serif; color: var(--fg); background: var(--bg); }
h1 { font-size: 1.25rem; margin: 0 0 1rem; }
.bar-row { display: grid; grid-template-columns: 8rem 1fr 4rem; align-items: center; gap: .5rem; margin: .25rem 0; }
.bar { display: block; height: 1rem; background: var(--accent); border-radius: .25rem; }
.value, .muted { color: var(--muted); font-variant-numeric: tabular-nums; }
table { border-collapse: collapse; width: 100%; }
th, td { border-bottom: 1px solid var(--line); padding: .4rem .6rem; text-align: left; }
ol.timeline { list-style: none; padding-left: 1rem; border-left: 2px solid var(--accent); }
ol.timeline li { margin: 0 0 .75rem; }
ul.checklist { list-style: none; padding: 0; }
.done { text-decoration: line-through; color: var(--muted); }
.error { border: 1px solid #dc2626; border-radius: .5rem; padding: 1rem; }
`

// defaultMarkup holds the built-in body pattern of each type. Data is the props map.
var defaultMarkup = map[string]string{
	TypeChart: `<h1>{{.title}}</h1>
<div class="chart" role="img" aria-label="{{.title}}">
{{- $max := maxOf .values}}{{range $i, $label := .labels}}
  <div class="bar-row"><span>{{$label}}</span><span class="bar" style="width: {{pct (index $.values $i) $max}}%"></span><span class="value">{{index $.values $i}}{{$.unit}}</span></div>
{{- end}}
</div>`,
	TypeScheduler: `<h1>{{.title}}</h1>
<table>
  <thead><tr><th>Day</th><th>Time</th><th>What</th><th>Where</th></tr></thead>
  <tbody>{{range .events}}
    <tr><td>{{title .day}}</td><td>{{.start}}{{if .end}} to {{.end}}{{end}}</td><td>{{.title}}</td><td>{{.location}}</td></tr>
  {{- end}}</tbody>
</table>`,
	TypeTimeline: `<h1>{{.title}}</h1>
<ol class="timeline">{{range .events}}
  <li><strong>{{.date}}</strong> {{.label}}{{if .description}}<div class="muted">{{.description}}</div>{{end}}</li>
{{- end}}</ol>`,
	TypeTable: `<h1>{{.title}}</h1>
<table>
  <thead><tr>{{range .columns}}<th>{{.}}</th>{{end}}</tr></thead>
  <tbody>{{range .rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>{{end}}</tbody>
</table>`,
	TypeChecklist: `<h1>{{.title}}</h1>
<ul class="checklist">{{range .items}}
  <li{{if .done}} class="done"{{end}}><input type="checkbox" disabled{{if .done}} checked{{end}}> {{.text}}{{if .assignee}} <span class="muted">({{.assignee}})</span>{{end}}</li>
{{- end}}</ul>`,
}

var documentShell = template.Must(template.New("document").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>{{.CSS}}</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

var errorBody = template.Must(template.New("error").Parse(`<div class="error" role="alert">
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
</div>`))

// Renderer turns props into HTML documents.
type Renderer struct{}

// NewRenderer creates a renderer.
func NewRenderer() *Renderer {
	return &Renderer{}
}

var funcs = template.FuncMap{
	"maxOf": maxOf,
	"pct":   pct,
	"title": title,
}

// title upper-cases the first rune of s.
func title(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// Render substitutes props into the template's markup pattern (or the type's
// built-in pattern) and returns a complete document.
func (r *Renderer) Render(t models.Template, vizType string, props map[string]any) (string, error) {
	pattern := t.Markup
	if strings.TrimSpace(pattern) == "" {
		var ok bool
		if pattern, ok = defaultMarkup[vizType]; !ok {
			return "", fmt.Errorf("no markup pattern for type %q", vizType)
		}
	}

	tmpl, err := template.New(t.Name).Funcs(funcs).Option("missingkey=error").Parse(pattern)
	if err != nil {
		return "", fmt.Errorf("parse markup of %q: %w", t.Name, err)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, props); err != nil {
		return "", fmt.Errorf("render %q: %w", t.Name, err)
	}

	docTitle, _ := props["title"].(string)
	if docTitle == "" {
		docTitle = t.Name
	}
	return document(docTitle, template.HTML(body.String()))
}

// RenderGeneration returns the document of a stored generation. Template
// generations are re-rendered from their props; when that fails and the template
// has fallback markup, the fallback is served instead.
func (r *Renderer) RenderGeneration(g models.Generation, t *models.Template) (string, error) {
	if g.RenderMethod == models.RenderFallbackIframe {
		if g.RawMarkup == nil {
			return "", models.ErrPayloadInvariant
		}
		return *g.RawMarkup, nil
	}
	if t == nil {
		return "", fmt.Errorf("generation %s: template missing", g.GenerationIDString())
	}

	doc, err := r.Render(*t, g.Type, g.Props)
	if err != nil && t.FallbackMarkup != nil && *t.FallbackMarkup != "" {
		return *t.FallbackMarkup, nil
	}
	return doc, err
}

// WrapDocument returns markup unchanged when it already is a full document and
// otherwise wraps the fragment in the standard shell.
func WrapDocument(markup, title string) (string, error) {
	trimmed := strings.TrimSpace(markup)
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "<!doctype") {
		return trimmed, nil
	}
	if strings.HasPrefix(lower, "<html") {
		return "<!DOCTYPE html>\n" + trimmed, nil
	}
	return document(title, template.HTML(trimmed))
}

// ErrorDocument renders the static error card for message.
func ErrorDocument(message string) string {
	var body bytes.Buffer
	if err := errorBody.Execute(&body, map[string]string{
		"Title":   "We couldn't build that visualization",
		"Message": message,
	}); err != nil {
		body.Reset()
		body.WriteString(`<div class="error" role="alert"><h1>We couldn't build that visualization</h1></div>`)
	}
	doc, err := document("Error", template.HTML(body.String()))
	if err != nil {
		return "<!DOCTYPE html><html><body>" + body.String() + "</body></html>"
	}
	return doc
}

func document(title string, body template.HTML) (string, error) {
	var out bytes.Buffer
	err := documentShell.Execute(&out, map[string]any{
		"Title": title,
		"CSS":   template.CSS(baseCSS),
		"Body":  body,
	})
	if err != nil {
		return "", fmt.Errorf("render document: %w", err)
	}
	return out.String(), nil
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

func maxOf(values any) float64 {
	list, _ := values.([]any)
	m := 0.0
	for _, v := range list {
		m = max(m, toFloat(v))
	}
	return m
}

func pct(v any, maxVal float64) float64 {
	if maxVal <= 0 {
		return 0
	}
	p := toFloat(v) / maxVal * 100
	return float64(int(p*10)) / 10
}
