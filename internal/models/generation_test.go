package models

import (
	"errors"
	"testing"
)

func TestGenerationInputValidate(t *testing.T) {
	markup := "<html></html>"
	empty := ""

	tests := []struct {
		name    string
		in      GenerationInput
		wantErr error
		ok      bool
	}{
		{"template with props", GenerationInput{RoomID: "r", RenderMethod: RenderTemplate, Props: map[string]any{"title": "x"}}, nil, true},
		{"template without props", GenerationInput{RoomID: "r", RenderMethod: RenderTemplate}, ErrPayloadInvariant, false},
		{"template with both", GenerationInput{RoomID: "r", RenderMethod: RenderTemplate, Props: map[string]any{}, RawMarkup: &markup}, ErrPayloadInvariant, false},
		{"iframe with markup", GenerationInput{RoomID: "r", RenderMethod: RenderFallbackIframe, RawMarkup: &markup}, nil, true},
		{"iframe with empty markup", GenerationInput{RoomID: "r", RenderMethod: RenderFallbackIframe, RawMarkup: &empty}, ErrPayloadInvariant, false},
		{"iframe with props", GenerationInput{RoomID: "r", RenderMethod: RenderFallbackIframe, RawMarkup: &markup, Props: map[string]any{}}, ErrPayloadInvariant, false},
		{"unknown method", GenerationInput{RoomID: "r", RenderMethod: "canvas"}, nil, false},
		{"missing room", GenerationInput{RenderMethod: RenderFallbackIframe, RawMarkup: &markup}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			if tt.ok {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTemplateEffectiveThreshold(t *testing.T) {
	if got := (Template{}).EffectiveThreshold(); got != DefaultTemplateThreshold {
		t.Errorf("EffectiveThreshold() = %v, want default %v", got, DefaultTemplateThreshold)
	}
	if got := (Template{Threshold: 0.5}).EffectiveThreshold(); got != 0.5 {
		t.Errorf("EffectiveThreshold() = %v, want 0.5", got)
	}
}
