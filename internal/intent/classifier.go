// Package intent scores whether a chat message asks for something to be built or changed.
package intent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/raphaelgruber/chorus/internal/llm"
	"github.com/raphaelgruber/chorus/internal/metrics"
)

// Fixed confidences for the cheap paths.
const (
	// NoKeywordConfidence is returned without a generative call when no vocabulary word matches.
	NoKeywordConfidence = 0.1
	// KeywordOnlyConfidence is returned when a word matched but the score could not be read.
	KeywordOnlyConfidence = 0.6
)

// Vocabulary is the creation and modification vocabulary of the pre-filter.
var Vocabulary = []string{
	"build", "create", "generate", "make", "show", "draw", "render", "plot", "chart",
	"visualize", "visualise", "update", "modify", "change", "edit", "add", "remove",
	"design", "display",
}

// ObjectGenerator produces schema-constrained JSON objects.
type ObjectGenerator interface {
	GenerateObject(ctx context.Context, req llm.ObjectRequest, out any) error
}

// Input is one message to classify.
type Input struct {
	Message     string
	PriorMarkup string // Markup or summary of the room's last generation, may be empty
	History     string // Recent messages joined as "user: content" lines
}

// Result is the classification outcome.
type Result struct {
	Confidence float64
	Keyword    string // First vocabulary word found, empty when none
	Reason     string
	Scored     bool // A generative score was used
}

// Classifier scores visualization intent.
type Classifier struct {
	gen    ObjectGenerator
	logger *slog.Logger
}

// New creates a classifier.
func New(gen ObjectGenerator, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{gen: gen, logger: logger.With("component", "intent")}
}

var scoreSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"score":  map[string]any{"type": "number", "minimum": 0, "maximum": 100},
		"reason": map[string]any{"type": "string"},
	},
	"required": []string{"score", "reason"},
}

const systemPrompt = `You judge whether the latest chat message asks for a visual artifact to be created or changed on a shared canvas: a chart, schedule, timeline, table, checklist or any small web page.
Score 0 when the message is ordinary conversation and 100 when it clearly asks for something to be built or modified. Existing canvas content counts as context for modification requests.`

var userPrompt = llm.NewPrompt(`{{if .prior}}Current canvas:
{{.prior}}

{{end}}{{if .history}}Recent conversation:
{{.history}}

{{end}}Latest message:
{{.message}}`, "message", "prior", "history")

// Classify returns the visualization intent confidence for in, always within [0,1].
// Upstream failures are returned; unreadable scores fall back to KeywordOnlyConfidence.
func (c *Classifier) Classify(ctx context.Context, in Input) (Result, error) {
	keyword := MatchKeyword(in.Message)
	if keyword == "" {
		metrics.ClassifierCalls.WithLabelValues("keyword_miss").Inc()
		return Result{Confidence: NoKeywordConfidence}, nil
	}

	prompt, err := userPrompt.Format(map[string]any{
		"message": in.Message,
		"prior":   truncate(in.PriorMarkup, 2000),
		"history": in.History,
	})
	if err != nil {
		return Result{}, err
	}

	var out struct {
		Score  float64 `json:"score"`
		Reason string  `json:"reason"`
	}
	err = c.gen.GenerateObject(ctx, llm.ObjectRequest{
		System:    systemPrompt,
		Prompt:    prompt,
		Schema:    scoreSchema,
		Hint:      llm.HintFast,
		MaxTokens: 200,
	}, &out)
	if errors.Is(err, llm.ErrMalformedResult) {
		c.logger.Warn("unreadable intent score, using keyword confidence", "keyword", keyword, "error", err)
		metrics.ClassifierCalls.WithLabelValues("keyword_only").Inc()
		return Result{Confidence: KeywordOnlyConfidence, Keyword: keyword}, nil
	}
	if err != nil {
		metrics.UpstreamFailures.WithLabelValues("intent", llm.FailureKind(err)).Inc()
		return Result{}, fmt.Errorf("score intent: %w", err)
	}

	metrics.ClassifierCalls.WithLabelValues("scored").Inc()
	return Result{
		Confidence: clamp(out.Score / 100),
		Keyword:    keyword,
		Reason:     out.Reason,
		Scored:     true,
	}, nil
}

// MatchKeyword returns the first vocabulary word contained in the lower-cased message.
func MatchKeyword(message string) string {
	lower := strings.ToLower(message)
	for _, w := range Vocabulary {
		if strings.Contains(lower, w) {
			return w
		}
	}
	return ""
}

// Meets reports whether confidence reaches threshold (inclusive).
func Meets(confidence, threshold float64) bool {
	return confidence >= threshold
}

func clamp(v float64) float64 {
	return min(max(v, 0), 1)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
