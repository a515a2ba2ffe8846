// Package llm provides the generative text and structured-object client using langchaingo.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/raphaelgruber/chorus/internal/config"
	"github.com/raphaelgruber/chorus/internal/metrics"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// ModelHint selects which configured model serves a call.
type ModelHint int

const (
	// HintDefault uses the main model (persona replies, markup generation).
	HintDefault ModelHint = iota
	// HintFast uses the cheaper model for scoring and ranking.
	HintFast
)

// TextRequest is a free-text generation call.
type TextRequest struct {
	System      string
	Prompt      string
	Hint        ModelHint
	MaxTokens   int
	Temperature float64 // 0 leaves the provider default
}

// ObjectRequest is a JSON-object generation call constrained by Schema.
type ObjectRequest struct {
	System    string
	Prompt    string
	Schema    map[string]any
	Hint      ModelHint
	MaxTokens int
}

// Model wraps a langchaingo model for text and object generation.
type Model struct {
	llm       llms.Model
	modelName string
	fastModel string
	timeout   time.Duration
	collector *metrics.Collector
	logger    *slog.Logger
}

// NewModel creates a model based on configuration.
func NewModel(ctx context.Context, cfg config.Config, collector *metrics.Collector, logger *slog.Logger) (*Model, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		opts := []openai.Option{
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		}
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
		}
		model, err = openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	case config.ProviderBedrock:
		awsCfg, awsErr := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if awsErr != nil {
			return nil, fmt.Errorf("load aws config: %w", awsErr)
		}
		model, err = bedrock.New(
			bedrock.WithClient(bedrockruntime.NewFromConfig(awsCfg)),
			bedrock.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	m := NewModelWithLLM(model, cfg.LLMModel, cfg.FastModel(), collector, logger)
	m.timeout = cfg.LLMTimeout
	return m, nil
}

// NewModelWithLLM wraps an already constructed langchaingo model.
func NewModelWithLLM(model llms.Model, modelName, fastModel string, collector *metrics.Collector, logger *slog.Logger) *Model {
	if logger == nil {
		logger = slog.Default()
	}
	if fastModel == "" {
		fastModel = modelName
	}
	return &Model{
		llm:       model,
		modelName: modelName,
		fastModel: fastModel,
		collector: collector,
		logger:    logger,
	}
}

// Model returns the main model name.
func (m *Model) Model() string {
	return m.modelName
}

func (m *Model) resolve(hint ModelHint) string {
	if hint == HintFast {
		return m.fastModel
	}
	return m.modelName
}

// GenerateText returns free text for req.
func (m *Model) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	opts := []llms.CallOption{llms.WithModel(m.resolve(req.Hint))}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(req.Temperature))
	}

	out, err := m.generate(ctx, metrics.OpLLMText, req.System, req.Prompt, opts...)
	if err != nil {
		return "", fmt.Errorf("generate text: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// GenerateObject asks for a JSON object matching req.Schema, unwraps it and decodes it into out.
// Output that cannot be unwrapped or decoded yields an error wrapping ErrMalformedResult.
func (m *Model) GenerateObject(ctx context.Context, req ObjectRequest, out any) error {
	system := req.System
	if req.Schema != nil {
		schema, err := json.Marshal(req.Schema)
		if err != nil {
			return fmt.Errorf("encode schema: %w", err)
		}
		system = strings.TrimSpace(system + "\n\nRespond with a single JSON object matching this JSON schema and nothing else:\n" + string(schema))
	}

	opts := []llms.CallOption{llms.WithModel(m.resolve(req.Hint)), llms.WithJSONMode()}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}

	raw, err := m.generate(ctx, metrics.OpLLMObject, system, req.Prompt, opts...)
	if err != nil {
		return fmt.Errorf("generate object: %w", err)
	}

	obj, err := Unwrap(raw, requiredKeys(req.Schema)...)
	if err != nil {
		m.logger.Warn("unusable object output", "output_len", len(raw), "error", err)
		return err
	}
	return decodeInto(obj, out)
}

func (m *Model) generate(ctx context.Context, op, system, prompt string, opts ...llms.CallOption) (string, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	var messages []llms.MessageContent
	if system != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, prompt))

	start := time.Now()
	resp, err := m.llm.GenerateContent(ctx, messages, opts...)
	duration := time.Since(start)
	if err != nil {
		err = classifyError(err)
		m.collector.RecordTiming(op, duration, err)
		m.logger.Warn("generation failed", "op", op, "duration_ms", duration.Milliseconds(), "error", err)
		return "", err
	}
	if len(resp.Choices) == 0 {
		m.collector.RecordTiming(op, duration, ErrMalformedResult)
		return "", fmt.Errorf("%w: no response choices", ErrMalformedResult)
	}

	choice := resp.Choices[0]
	in, outTokens := tokenUsage(choice.GenerationInfo)
	m.collector.RecordLLMUsage(op, duration, in, outTokens)
	m.logger.Debug("generation done", "op", op, "duration_ms", duration.Milliseconds(), "output_len", len(choice.Content))
	return choice.Content, nil
}

// requiredKeys reads the "required" list of a JSON schema.
func requiredKeys(schema map[string]any) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []any:
		keys := make([]string, 0, len(req))
		for _, k := range req {
			if s, ok := k.(string); ok {
				keys = append(keys, s)
			}
		}
		return keys
	}
	return nil
}

// tokenUsage reads provider token counts from generation info.
// Anthropic reports InputTokens/OutputTokens, OpenAI PromptTokens/CompletionTokens.
func tokenUsage(info map[string]any) (int64, int64) {
	return firstInt(info, "InputTokens", "PromptTokens"), firstInt(info, "OutputTokens", "CompletionTokens")
}

func firstInt(info map[string]any, keys ...string) int64 {
	for _, k := range keys {
		switch v := info[k].(type) {
		case int:
			return int64(v)
		case int32:
			return int64(v)
		case int64:
			return v
		case float64:
			return int64(v)
		}
	}
	return 0
}
