package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/raphaelgruber/chorus/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGenerator answers GenerateObject with a canned JSON document or error.
type fakeGenerator struct {
	output string
	err    error
	calls  int
	last   llm.ObjectRequest
}

func (f *fakeGenerator) GenerateObject(_ context.Context, req llm.ObjectRequest, out any) error {
	f.calls++
	f.last = req
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.output), out)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		message   string
		output    string
		err       error
		want      float64
		wantCalls int
		wantErr   bool
	}{
		{"no keyword skips the call", "good morning everyone", "", nil, NoKeywordConfidence, 0, false},
		{"scored", "Can you make a chart of our votes?", `{"score": 85, "reason": "asks for chart"}`, nil, 0.85, 1, false},
		{"score above range is clamped", "draw it", `{"score": 140, "reason": "x"}`, nil, 1, 1, false},
		{"negative score is clamped", "draw it", `{"score": -5, "reason": "x"}`, nil, 0, 1, false},
		{"malformed falls back to keyword confidence", "please update the table", "", fmt.Errorf("generate object: %w", llm.ErrMalformedResult), KeywordOnlyConfidence, 1, false},
		{"transient is returned", "build a timeline", "", fmt.Errorf("x: %w", llm.ErrTransient), 0, 1, true},
		{"keyword match is case insensitive", "SHOW ME", `{"score": 50, "reason": "x"}`, nil, 0.5, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{output: tt.output, err: tt.err}
			c := New(gen, nil)

			res, err := c.Classify(context.Background(), Input{Message: tt.message, History: "alice: hi"})
			assert.Equal(t, tt.wantCalls, gen.calls)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, llm.IsTransient(err))
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, res.Confidence, 1e-9)
			assert.GreaterOrEqual(t, res.Confidence, 0.0)
			assert.LessOrEqual(t, res.Confidence, 1.0)
		})
	}
}

func TestClassifyPromptCarriesContext(t *testing.T) {
	gen := &fakeGenerator{output: `{"score": 70, "reason": "modify"}`}
	c := New(gen, nil)

	_, err := c.Classify(context.Background(), Input{
		Message:     "change the colors",
		PriorMarkup: "Bar Chart: pizzas",
		History:     "bob: nice chart",
	})
	require.NoError(t, err)
	assert.Contains(t, gen.last.Prompt, "Current canvas:\nBar Chart: pizzas")
	assert.Contains(t, gen.last.Prompt, "bob: nice chart")
	assert.Contains(t, gen.last.Prompt, "change the colors")
	assert.Equal(t, llm.HintFast, gen.last.Hint)
	assert.Equal(t, []string{"score", "reason"}, gen.last.Schema["required"])
}

func TestClassifyFatalIsReturned(t *testing.T) {
	gen := &fakeGenerator{err: fmt.Errorf("x: %w", llm.ErrFatalAPI)}
	_, err := New(gen, nil).Classify(context.Background(), Input{Message: "create"})
	assert.True(t, errors.Is(err, llm.ErrFatalAPI))
}

func TestMatchKeyword(t *testing.T) {
	assert.Equal(t, "", MatchKeyword("hello there"))
	assert.Equal(t, "build", MatchKeyword("let's build something"))
	assert.Equal(t, "chart", MatchKeyword("a pie chart?"))
}

func TestMeets(t *testing.T) {
	assert.True(t, Meets(0.6, 0.6), "threshold is inclusive")
	assert.False(t, Meets(0.59, 0.6))
}

func TestTruncateKeepsRunes(t *testing.T) {
	s := strings.Repeat("é", 10)
	got := truncate(s, 3)
	assert.Equal(t, "ééé...", got)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "short", truncate("short", 10))
}
