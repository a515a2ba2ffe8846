package pipeline

import (
	"testing"

	"github.com/raphaelgruber/chorus/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestResolveType(t *testing.T) {
	schema := func(s string) *string { return &s }

	tests := []struct {
		name     string
		template models.Template
		wantType string
		wantHow  Resolution
	}{
		{"known tag", models.Template{Name: "Anything", Type: "timeline"}, TypeTimeline, ResolvedByTag},
		{"tag is case insensitive", models.Template{Type: " Checklist "}, TypeChecklist, ResolvedByTag},
		{"schema name", models.Template{Type: "viz", SchemaName: schema("SchedulerSchema")}, TypeScheduler, ResolvedBySchemaName},
		{"snake schema name", models.Template{Type: "viz", SchemaName: schema("table_schema")}, TypeTable, ResolvedBySchemaName},
		{"bare type as schema name", models.Template{SchemaName: schema("checklist")}, TypeChecklist, ResolvedBySchemaName},
		{"unknown schema falls to name", models.Template{SchemaName: schema("Mystery"), Name: "Team Calendar"}, TypeScheduler, ResolvedByName},
		{"graph name", models.Template{Type: "custom", Name: "Line Graph"}, TypeChart, ResolvedByName},
		{"history name", models.Template{Name: "Company History"}, TypeTimeline, ResolvedByName},
		{"chart wins over timeline in name order", models.Template{Name: "Timeline Chart"}, TypeChart, ResolvedByName},
		{"nothing matches", models.Template{Type: "mood", Name: "Vibes"}, DefaultType, ResolvedByDefault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ, how := ResolveType(tt.template)
			assert.Equal(t, tt.wantType, typ)
			assert.Equal(t, tt.wantHow, how)

			again, againHow := ResolveType(tt.template)
			assert.Equal(t, typ, again)
			assert.Equal(t, how, againHow)
		})
	}
}

func TestDefaultTemplatesResolveByTag(t *testing.T) {
	for _, in := range models.DefaultTemplates() {
		typ, how := ResolveType(models.Template{Name: in.Name, Type: in.Type, SchemaName: in.SchemaName})
		assert.Equal(t, ResolvedByTag, how, in.ID)
		assert.Equal(t, in.Type, typ, in.ID)
	}
}
