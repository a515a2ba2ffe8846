package models

import (
	"testing"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase", "hello", "hello"},
		{"uppercase", "Hello World", "hello-world"},
		{"underscores", "my_doc_name", "my-doc-name"},
		{"special chars stripped", "Hello, World!", "hello-world"},
		{"numbers preserved", "doc-v2.1", "doc-v21"},
		{"mixed", "My Cool_Doc (v3)", "my-cool-doc-v3"},
		{"empty string", "", ""},
		{"only special chars", "!@#$%", ""},
		{"consecutive spaces", "hello   world", "hello---world"},
		{"unicode stripped", "café résumé", "caf-rsum"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Slugify(tt.in)
			if got != tt.want {
				t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRecordIDStrings(t *testing.T) {
	msg := Message{ID: surrealmodels.NewRecordID("message", "m1")}
	if got := msg.MessageIDString(); got != "m1" {
		t.Errorf("MessageIDString() = %q, want %q", got, "m1")
	}

	gen := Generation{ID: surrealmodels.NewRecordID("generation", 42)}
	if got := gen.GenerationIDString(); got != "" {
		t.Errorf("GenerationIDString() for numeric id = %q, want empty", got)
	}

	if got := (Agent{}).AgentIDString(); got != "" {
		t.Errorf("AgentIDString() for unset id = %q, want empty", got)
	}
}
