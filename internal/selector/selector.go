// Package selector picks which persona should answer a message.
package selector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/raphaelgruber/chorus/internal/llm"
	"github.com/raphaelgruber/chorus/internal/metrics"
	"github.com/raphaelgruber/chorus/internal/models"
)

// ObjectGenerator produces schema-constrained JSON objects.
type ObjectGenerator interface {
	GenerateObject(ctx context.Context, req llm.ObjectRequest, out any) error
}

// Roster lists the personas to choose from.
type Roster interface {
	All() []models.Agent
}

// Input is the message a persona should answer.
type Input struct {
	RoomID      string
	LastMessage string
	History     string
}

// Selection is the chosen persona.
type Selection struct {
	Agent      models.Agent
	Confidence float64
	Reason     string
}

// Ranking is one persona score returned by the ranking call.
type Ranking struct {
	AgentID    string  `json:"agent_id"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Selector ranks all personas in one generative call.
type Selector struct {
	gen    ObjectGenerator
	roster Roster
	logger *slog.Logger
}

// New creates a selector.
func New(gen ObjectGenerator, roster Roster, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{gen: gen, roster: roster, logger: logger.With("component", "selector")}
}

var rankingSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"rankings": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"agent_id":   map[string]any{"type": "string"},
					"confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
					"reason":     map[string]any{"type": "string"},
				},
				"required": []string{"agent_id", "confidence"},
			},
		},
	},
	"required": []string{"rankings"},
}

const systemPrompt = `You route chat messages to AI personas in a group chat.
Rate every persona listed from 0 to 1 by how naturally it would answer the latest message given its personality and the conversation.
Return one ranking entry per persona using the exact agent_id values given.`

var userPrompt = llm.NewPrompt(`Personas:
{{range .agents}}- agent_id: {{.ID}}
  name: {{.Name}}
  personality: {{.Personality}}
{{end}}
{{if .history}}Conversation:
{{.history}}

{{end}}Latest message:
{{.message}}`, "agents", "history", "message")

type promptAgent struct {
	ID, Name, Personality string
}

// Select returns the persona that should answer, or nil when none should.
// Only upstream failures are returned as errors.
func (s *Selector) Select(ctx context.Context, in Input) (*Selection, error) {
	agents := s.roster.All()
	switch len(agents) {
	case 0:
		return nil, nil
	case 1:
		return &Selection{Agent: agents[0], Confidence: 1, Reason: "only persona"}, nil
	}

	list := make([]promptAgent, len(agents))
	for i, a := range agents {
		list[i] = promptAgent{ID: a.AgentIDString(), Name: a.Name, Personality: a.Personality}
	}
	prompt, err := userPrompt.Format(map[string]any{
		"agents":  list,
		"history": in.History,
		"message": in.LastMessage,
	})
	if err != nil {
		return nil, err
	}

	var out struct {
		Rankings []Ranking `json:"rankings"`
	}
	err = s.gen.GenerateObject(ctx, llm.ObjectRequest{
		System:    systemPrompt,
		Prompt:    prompt,
		Schema:    rankingSchema,
		Hint:      llm.HintFast,
		MaxTokens: 400,
	}, &out)
	if errors.Is(err, llm.ErrMalformedResult) {
		s.logger.Warn("unreadable persona ranking, not responding", "room_id", in.RoomID, "error", err)
		return nil, nil
	}
	if err != nil {
		metrics.UpstreamFailures.WithLabelValues("selector", llm.FailureKind(err)).Inc()
		return nil, fmt.Errorf("rank personas: %w", err)
	}

	sel := Pick(agents, out.Rankings)
	if sel == nil {
		s.logger.Warn("no usable persona ranking, not responding", "room_id", in.RoomID, "rankings", len(out.Rankings))
		return nil, nil
	}
	s.logger.Debug("persona selected", "room_id", in.RoomID, "agent_id", sel.Agent.AgentIDString(), "confidence", sel.Confidence)
	return sel, nil
}

// Pick returns the persona with the strictly highest positive confidence.
// Ties keep roster order, unknown ids are ignored and values above 1 are read as percentages.
func Pick(agents []models.Agent, rankings []Ranking) *Selection {
	scores := make(map[string]Ranking, len(rankings))
	for _, r := range rankings {
		id := strings.TrimPrefix(strings.TrimSpace(r.AgentID), "agent:")
		if r.Confidence > 1 {
			r.Confidence /= 100
		}
		if prev, ok := scores[id]; ok && prev.Confidence >= r.Confidence {
			continue
		}
		scores[id] = r
	}

	var best *Selection
	for _, a := range agents {
		r, ok := scores[a.AgentIDString()]
		if !ok || r.Confidence <= 0 {
			continue
		}
		if best == nil || r.Confidence > best.Confidence {
			best = &Selection{Agent: a, Confidence: min(r.Confidence, 1), Reason: r.Reason}
		}
	}
	return best
}
