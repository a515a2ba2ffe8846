package pipeline

import (
	"slices"
	"strings"

	"github.com/raphaelgruber/chorus/internal/models"
)

// schemaNames maps declared schema names to types.
var schemaNames = map[string]string{
	"chartschema":     TypeChart,
	"schedulerschema": TypeScheduler,
	"scheduleschema":  TypeScheduler,
	"timelineschema":  TypeTimeline,
	"tableschema":     TypeTable,
	"checklistschema": TypeChecklist,
	"todoschema":      TypeChecklist,
}

// nameHints are substring heuristics over display names, tried in order.
var nameHints = []struct {
	words []string
	typ   string
}{
	{[]string{"chart", "graph"}, TypeChart},
	{[]string{"schedule", "calendar"}, TypeScheduler},
	{[]string{"timeline", "history"}, TypeTimeline},
}

// Resolution says how a template's type was found.
type Resolution string

// Resolution steps in the order they are tried.
const (
	ResolvedByTag        Resolution = "tag"
	ResolvedBySchemaName Resolution = "schema_name"
	ResolvedByName       Resolution = "name"
	ResolvedByDefault    Resolution = "default"
)

// ResolveType maps a template to a known visualization type: the type tag if
// known, then the declared schema name, then display-name heuristics, then
// DefaultType. It is pure and deterministic.
func ResolveType(t models.Template) (string, Resolution) {
	tag := strings.ToLower(strings.TrimSpace(t.Type))
	if slices.Contains(KnownTypes, tag) {
		return tag, ResolvedByTag
	}

	if t.SchemaName != nil {
		name := strings.ToLower(strings.TrimSpace(*t.SchemaName))
		name = strings.NewReplacer("_", "", "-", "", " ", "").Replace(name)
		if typ, ok := schemaNames[name]; ok {
			return typ, ResolvedBySchemaName
		}
		if slices.Contains(KnownTypes, name) {
			return name, ResolvedBySchemaName
		}
	}

	display := strings.ToLower(t.Name)
	for _, h := range nameHints {
		for _, w := range h.words {
			if strings.Contains(display, w) {
				return h.typ, ResolvedByName
			}
		}
	}

	return DefaultType, ResolvedByDefault
}
