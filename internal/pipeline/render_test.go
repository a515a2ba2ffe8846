package pipeline

import (
	"strings"
	"testing"

	"github.com/raphaelgruber/chorus/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validProps(t *testing.T, vizType string, raw map[string]any) map[string]any {
	t.Helper()
	props, err := NewRegistry().Validate(vizType, raw)
	require.NoError(t, err)
	return props
}

func TestRenderDefaultMarkup(t *testing.T) {
	tests := []struct {
		name    string
		vizType string
		raw     map[string]any
		want    []string
	}{
		{
			name:    "chart",
			vizType: TypeChart,
			raw:     map[string]any{"title": "Pizzas", "labels": []any{"ana", "ben"}, "values": []any{2, 4}, "unit": "pcs"},
			want:    []string{"<h1>Pizzas</h1>", "ana", "width: 50%", "width: 100%", "4pcs"},
		},
		{
			name:    "scheduler",
			vizType: TypeScheduler,
			raw: map[string]any{"title": "Week", "events": []any{
				map[string]any{"title": "Gym", "day": "tuesday", "start": "18:00", "end": "19:00"},
			}},
			want: []string{"Tuesday", "18:00", "19:00", "Gym"},
		},
		{
			name:    "timeline",
			vizType: TypeTimeline,
			raw: map[string]any{"title": "Space race", "events": []any{
				map[string]any{"date": "1957", "label": "Sputnik"},
			}},
			want: []string{"<strong>1957</strong>", "Sputnik"},
		},
		{
			name:    "table",
			vizType: TypeTable,
			raw:     map[string]any{"title": "Phones", "columns": []any{"model", "price"}, "rows": []any{[]any{"x1", "300"}}},
			want:    []string{"<th>model</th>", "<td>300</td>"},
		},
		{
			name:    "checklist",
			vizType: TypeChecklist,
			raw: map[string]any{"title": "Trip", "items": []any{
				map[string]any{"text": "tickets", "done": true, "assignee": "ana"},
			}},
			want: []string{`class="done"`, "checked", "(ana)"},
		},
	}

	r := NewRenderer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := r.Render(models.Template{Name: tt.name}, tt.vizType, validProps(t, tt.vizType, tt.raw))
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(doc, "<!DOCTYPE html>"))
			assert.Contains(t, doc, "prefers-color-scheme: dark")
			for _, w := range tt.want {
				assert.Contains(t, doc, w)
			}
		})
	}
}

func TestRenderEscapesProps(t *testing.T) {
	props := validProps(t, TypeChart, map[string]any{
		"title":  "<script>alert(1)</script>",
		"labels": []any{"a"},
		"values": []any{1},
	})

	doc, err := NewRenderer().Render(models.Template{Name: "x"}, TypeChart, props)
	require.NoError(t, err)
	assert.NotContains(t, doc, "<script>alert(1)</script>")
	assert.Contains(t, doc, "&lt;script&gt;")
}

func TestRenderCustomMarkupMissingKey(t *testing.T) {
	tmpl := models.Template{Name: "custom", Markup: `<p>{{.subtitle}}</p>`}
	_, err := NewRenderer().Render(tmpl, TypeChart, map[string]any{"title": "t"})
	require.Error(t, err)

	tmpl.Markup = `<p>{{.title}}</p>`
	doc, err := NewRenderer().Render(tmpl, TypeChart, map[string]any{"title": "t"})
	require.NoError(t, err)
	assert.Contains(t, doc, "<p>t</p>")
}

func TestRenderGeneration(t *testing.T) {
	markup := "<!DOCTYPE html><p>raw</p>"
	fallback := "<p>static</p>"
	r := NewRenderer()

	doc, err := r.RenderGeneration(models.Generation{RenderMethod: models.RenderFallbackIframe, RawMarkup: &markup}, nil)
	require.NoError(t, err)
	assert.Equal(t, markup, doc)

	_, err = r.RenderGeneration(models.Generation{RenderMethod: models.RenderFallbackIframe}, nil)
	assert.ErrorIs(t, err, models.ErrPayloadInvariant)

	broken := models.Template{Name: "broken", Markup: "{{.missing}}", FallbackMarkup: &fallback}
	doc, err = r.RenderGeneration(models.Generation{RenderMethod: models.RenderTemplate, Type: TypeChart, Props: map[string]any{}}, &broken)
	require.NoError(t, err)
	assert.Equal(t, fallback, doc)
}

func TestWrapDocument(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		want   string
	}{
		{"full document untouched", "<!doctype html><html></html>", "<!doctype html><html></html>"},
		{"html element gets doctype", "<html><body>x</body></html>", "<!DOCTYPE html>\n<html><body>x</body></html>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := WrapDocument(tt.markup, "t")
			require.NoError(t, err)
			assert.Equal(t, tt.want, doc)
		})
	}

	doc, err := WrapDocument("<div>frag</div>", "Title")
	require.NoError(t, err)
	assert.Contains(t, doc, "<title>Title</title>")
	assert.Contains(t, doc, "<div>frag</div>")
}

func TestErrorDocumentEscapesMessage(t *testing.T) {
	doc := ErrorDocument(`generate markup: <img src=x onerror=alert(1)>`)
	assert.Contains(t, doc, `role="alert"`)
	assert.Contains(t, doc, "&lt;img")
	assert.NotContains(t, doc, "<img")
}

func TestTitle(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"tasks", "Tasks"},
		{"ürün", "Ürün"},
		{"日程", "日程"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, title(tt.in))
		})
	}
}
