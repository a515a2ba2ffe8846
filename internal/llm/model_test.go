package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/raphaelgruber/chorus/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// fakeLLM replays canned outputs and records the last call.
type fakeLLM struct {
	outputs  []string
	err      error
	calls    int
	messages []llms.MessageContent
	opts     llms.CallOptions
}

func (f *fakeLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	f.opts = llms.CallOptions{}
	for _, o := range options {
		o(&f.opts)
	}
	if f.err != nil {
		return nil, f.err
	}
	out := f.outputs[f.calls%len(f.outputs)]
	f.calls++
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content:        out,
		GenerationInfo: map[string]any{"InputTokens": 12, "OutputTokens": 3},
	}}}, nil
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestIsFatalAPIError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"nil error", nil, false},
		{"generic error", errors.New("connection reset"), false},
		{"credit balance", errors.New("insufficient credit balance"), true},
		{"rate limit is retryable", errors.New("rate limit exceeded"), false},
		{"quota exceeded", errors.New("quota exceeded for model"), true},
		{"billing issue", errors.New("billing account inactive"), true},
		{"invalid api key", errors.New("invalid api key"), true},
		{"authentication failed", errors.New("authentication failed"), true},
		{"unauthorized", errors.New("unauthorized request"), true},
		{"401 status", errors.New("HTTP 401: not allowed"), true},
		{"403 status", errors.New("HTTP 403: forbidden"), true},
		{"wrapped error", fmt.Errorf("generate: %w", errors.New("credit balance too low")), true},
		{"404 not fatal", errors.New("HTTP 404: not found"), false},
		{"timeout not fatal", errors.New("context deadline exceeded"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isFatalAPIError(tt.err)
			if got != tt.fatal {
				t.Errorf("isFatalAPIError(%v) = %v, want %v", tt.err, got, tt.fatal)
			}
		})
	}
}

func TestWrapFatalError(t *testing.T) {
	t.Run("wraps fatal error", func(t *testing.T) {
		err := errors.New("invalid api key provided")
		wrapped := wrapFatalError(err)
		if !errors.Is(wrapped, ErrFatalAPI) {
			t.Errorf("expected wrapped error to match ErrFatalAPI")
		}
	})

	t.Run("passes through non-fatal error", func(t *testing.T) {
		err := errors.New("network timeout")
		result := wrapFatalError(err)
		if errors.Is(result, ErrFatalAPI) {
			t.Errorf("non-fatal error should not be wrapped with ErrFatalAPI")
		}
		if result != err {
			t.Errorf("expected original error returned, got %v", result)
		}
	})

	t.Run("nil error", func(t *testing.T) {
		result := wrapFatalError(nil)
		if result != nil {
			t.Errorf("expected nil, got %v", result)
		}
	})
}

func TestClassifyError(t *testing.T) {
	assert.Nil(t, classifyError(nil))

	transient := classifyError(errors.New("503 service unavailable"))
	assert.ErrorIs(t, transient, ErrTransient)
	assert.True(t, IsTransient(transient))
	assert.Equal(t, "transient", FailureKind(transient))

	fatal := classifyError(errors.New("invalid api key"))
	assert.ErrorIs(t, fatal, ErrFatalAPI)
	assert.False(t, IsTransient(fatal))
	assert.Equal(t, "fatal", FailureKind(fatal))

	already := fmt.Errorf("%w: x", ErrTransient)
	assert.Same(t, already, classifyError(already))

	assert.True(t, IsTransient(fmt.Errorf("call: %w", context.DeadlineExceeded)))
	assert.Equal(t, "malformed", FailureKind(fmt.Errorf("x: %w", ErrMalformedResult)))
}

func TestGenerateText(t *testing.T) {
	fake := &fakeLLM{outputs: []string{"  hello there \n"}}
	collector := metrics.NewCollector()
	m := NewModelWithLLM(fake, "main-model", "fast-model", collector, nil)

	out, err := m.GenerateText(context.Background(), TextRequest{
		System:      "be brief",
		Prompt:      "hi",
		MaxTokens:   150,
		Temperature: 0.8,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", out)

	require.Len(t, fake.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, fake.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, fake.messages[1].Role)
	assert.Equal(t, "main-model", fake.opts.Model)
	assert.Equal(t, 150, fake.opts.MaxTokens)
	assert.InDelta(t, 0.8, fake.opts.Temperature, 1e-9)

	snap := collector.Snapshot()
	require.NotNil(t, snap.LLMText)
	assert.Equal(t, int64(1), snap.LLMText.Count)
	require.NotNil(t, snap.LLMText.TotalInputTokens)
	assert.Equal(t, int64(12), *snap.LLMText.TotalInputTokens)
}

func TestGenerateTextUpstreamFailure(t *testing.T) {
	fake := &fakeLLM{err: errors.New("connection reset by peer")}
	m := NewModelWithLLM(fake, "main-model", "", nil, nil)

	_, err := m.GenerateText(context.Background(), TextRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestGenerateObject(t *testing.T) {
	schema := map[string]any{
		"type":     "object",
		"required": []string{"score", "reason"},
	}

	tests := []struct {
		name      string
		output    string
		wantScore float64
		wantErr   error
	}{
		{"direct", `{"score": 80, "reason": "asks for a chart"}`, 80, nil},
		{"nested", `{"object": {"score": 55, "reason": "maybe"}}`, 55, nil},
		{"fenced", "```json\n{\"score\": 10, \"reason\": \"chat\"}\n```", 10, nil},
		{"prose", `not json at all`, 0, ErrMalformedResult},
		{"wrong type", `{"score": "high", "reason": "x"}`, 0, ErrMalformedResult},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeLLM{outputs: []string{tt.output}}
			m := NewModelWithLLM(fake, "main-model", "fast-model", nil, nil)

			var out struct {
				Score  float64 `json:"score"`
				Reason string  `json:"reason"`
			}
			err := m.GenerateObject(context.Background(), ObjectRequest{
				System: "score it",
				Prompt: "draw a chart",
				Schema: schema,
				Hint:   HintFast,
			}, &out)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.wantScore, out.Score, 1e-9)
			assert.Equal(t, "fast-model", fake.opts.Model)
			assert.True(t, fake.opts.JSONMode)
			assert.Contains(t, fake.messages[0].Parts[0].(llms.TextContent).Text, `"required":["score","reason"]`)
		})
	}
}

func TestRequiredKeys(t *testing.T) {
	assert.Equal(t, []string{"a"}, requiredKeys(map[string]any{"required": []string{"a"}}))
	assert.Equal(t, []string{"a", "b"}, requiredKeys(map[string]any{"required": []any{"a", 3, "b"}}))
	assert.Nil(t, requiredKeys(nil))
}
