package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryValidate(t *testing.T) {
	tests := []struct {
		name     string
		vizType  string
		raw      map[string]any
		wantRule string // empty means valid
	}{
		{
			name:    "chart",
			vizType: TypeChart,
			raw:     map[string]any{"title": "t", "labels": []any{"a"}, "values": []any{1.5}},
		},
		{
			name:     "chart length mismatch",
			vizType:  TypeChart,
			raw:      map[string]any{"title": "t", "labels": []any{"a", "b"}, "values": []any{1}},
			wantRule: "eqfield",
		},
		{
			name:     "chart unknown kind",
			vizType:  TypeChart,
			raw:      map[string]any{"title": "t", "kind": "radar", "labels": []any{"a"}, "values": []any{1}},
			wantRule: "oneof",
		},
		{
			name:    "scheduler day is normalized",
			vizType: TypeScheduler,
			raw: map[string]any{"title": "t", "events": []any{
				map[string]any{"title": "standup", "day": "Monday", "start": "09:30"},
			}},
		},
		{
			name:    "scheduler bad time",
			vizType: TypeScheduler,
			raw: map[string]any{"title": "t", "events": []any{
				map[string]any{"title": "standup", "day": "monday", "start": "9.30am"},
			}},
			wantRule: "datetime",
		},
		{
			name:     "timeline needs events",
			vizType:  TypeTimeline,
			raw:      map[string]any{"title": "t", "events": []any{}},
			wantRule: "min",
		},
		{
			name:    "table row width",
			vizType: TypeTable,
			raw: map[string]any{"title": "t", "columns": []any{"a", "b"}, "rows": []any{
				[]any{"1", "2"},
				[]any{"3"},
			}},
			wantRule: "row_len",
		},
		{
			name:    "checklist",
			vizType: TypeChecklist,
			raw: map[string]any{"title": "t", "items": []any{
				map[string]any{"text": "buy milk", "done": true},
			}},
		},
		{
			name:     "missing title",
			vizType:  TypeChecklist,
			raw:      map[string]any{"items": []any{map[string]any{"text": "x"}}},
			wantRule: "required",
		},
	}

	reg := NewRegistry()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			props, err := reg.Validate(tt.vizType, tt.raw)
			if tt.wantRule == "" {
				require.NoError(t, err)
				assert.NotEmpty(t, props["title"])
				return
			}

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.vizType, ve.Type)
			rules := make([]string, len(ve.Fields))
			for i, f := range ve.Fields {
				rules[i] = f.Rule
			}
			assert.Contains(t, rules, tt.wantRule)
		})
	}
}

func TestRegistryValidateCanonicalProps(t *testing.T) {
	props, err := NewRegistry().Validate(TypeScheduler, map[string]any{"title": "t", "events": []any{
		map[string]any{"title": "standup", "day": " FRIDAY ", "start": "09:00"},
	}})
	require.NoError(t, err)

	events := props["events"].([]any)
	event := events[0].(map[string]any)
	assert.Equal(t, "friday", event["day"])
	assert.Equal(t, "", event["location"])
}

func TestRegistryUnknownType(t *testing.T) {
	_, err := NewRegistry().Validate("radar", map[string]any{})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, err.Error(), "unknown visualization type")
}

func TestEverySchemaHasPropsAndMarkup(t *testing.T) {
	for _, typ := range KnownTypes {
		_, ok := Schema(typ)
		assert.True(t, ok, typ)
		_, ok = newProps(typ)
		assert.True(t, ok, typ)
		assert.NotEmpty(t, defaultMarkup[typ], typ)
	}
}
