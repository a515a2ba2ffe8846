// Package service wires decisions, persona replies and visualizations together for every
// inserted chat message.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/raphaelgruber/chorus/internal/broadcast"
	"github.com/raphaelgruber/chorus/internal/db"
	"github.com/raphaelgruber/chorus/internal/decision"
	"github.com/raphaelgruber/chorus/internal/intent"
	"github.com/raphaelgruber/chorus/internal/llm"
	"github.com/raphaelgruber/chorus/internal/metrics"
	"github.com/raphaelgruber/chorus/internal/models"
	"github.com/raphaelgruber/chorus/internal/pipeline"
	"github.com/raphaelgruber/chorus/internal/selector"
)

// Store is the persistence the orchestrator needs.
type Store interface {
	QueryRecentMessages(ctx context.Context, roomID string, limit int) ([]models.Message, error)
	InsertMessage(ctx context.Context, roomID, userID, content string) (*models.Message, error)
	MarkMessageRead(ctx context.Context, id string) error
	QueryLastGeneration(ctx context.Context, roomID string) (*models.Generation, error)
}

// TextGenerator writes persona replies.
type TextGenerator interface {
	GenerateText(ctx context.Context, req llm.TextRequest) (string, error)
}

// Decider is the response decision engine.
type Decider interface {
	Decide(in decision.Input) decision.Decision
	Forget(roomID, msgID string)
}

// AgentSelector picks the persona that answers.
type AgentSelector interface {
	Select(ctx context.Context, in selector.Input) (*selector.Selection, error)
}

// Classifier scores visualization intent.
type Classifier interface {
	Classify(ctx context.Context, in intent.Input) (intent.Result, error)
}

// Visualizer runs the generation pipeline.
type Visualizer interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Publisher fans events out to viewers.
type Publisher interface {
	NewMessage(ctx context.Context, msg models.Message) error
	UserJoined(ctx context.Context, p models.Participant) error
	UserLeft(ctx context.Context, roomID, userID string) error
	NewGeneration(ctx context.Context, g models.Generation) error
	Status(ctx context.Context, roomID, statusType, message string) error
}

// Roster answers persona lookups.
type Roster interface {
	IsAgent(userID string) bool
	Get(id string) (models.Agent, bool)
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Store      Store
	Generator  TextGenerator
	Decider    Decider
	Selector   AgentSelector
	Classifier Classifier
	Pipeline   Visualizer
	Publisher  Publisher
	Roster     Roster
}

// Options tune the orchestrator.
type Options struct {
	HistoryLimit           int
	VisualizationThreshold float64
	TaskTimeout            time.Duration
	ReplyMaxTokens         int
	ReplyTemperature       float64
}

// DefaultOptions returns the options used when a field is left zero.
func DefaultOptions() Options {
	return Options{
		HistoryLimit:           20,
		VisualizationThreshold: 0.6,
		TaskTimeout:            2 * time.Minute,
		ReplyMaxTokens:         400,
		ReplyTemperature:       0.8,
	}
}

// Orchestrator handles inserted messages, delayed re-checks and participant changes.
// One orchestrator per datastore: response state lives in this process only.
type Orchestrator struct {
	deps   Deps
	opts   Options
	tasks  *TaskManager
	logger *slog.Logger

	// Base context of re-check tasks, cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	closed bool
}

// New creates an orchestrator.
func New(deps Deps, opts Options, logger *slog.Logger) *Orchestrator {
	def := DefaultOptions()
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = def.HistoryLimit
	}
	if opts.VisualizationThreshold <= 0 {
		opts.VisualizationThreshold = def.VisualizationThreshold
	}
	if opts.ReplyMaxTokens <= 0 {
		opts.ReplyMaxTokens = def.ReplyMaxTokens
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "orchestrator")

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		deps:   deps,
		opts:   opts,
		tasks:  NewTaskManager(0, opts.TaskTimeout, logger),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		timers: make(map[*time.Timer]struct{}),
	}
}

// Tasks returns the task manager.
func (o *Orchestrator) Tasks() *TaskManager {
	return o.tasks
}

// PendingRechecks returns the number of scheduled re-checks that have not fired.
func (o *Orchestrator) PendingRechecks() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.timers)
}

// Run consumes change notifications until ctx is done or events is closed.
// Every notification becomes its own task.
func (o *Orchestrator) Run(ctx context.Context, events <-chan db.ChangeEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			o.Dispatch(ctx, ev)
		}
	}
}

// Dispatch starts the task for one change notification.
func (o *Orchestrator) Dispatch(ctx context.Context, ev db.ChangeEvent) {
	switch {
	case ev.Message != nil && ev.Action == db.ActionCreate:
		msg := *ev.Message
		o.tasks.Go(ctx, TaskMessage, msg.RoomID, msg.MessageIDString(), func(ctx context.Context, t *Task) error {
			outcome, err := o.handleMessage(ctx, msg)
			t.SetOutcome(outcome)
			return err
		})

	case ev.Participant != nil && (ev.Action == db.ActionCreate || ev.Action == db.ActionDelete):
		p := *ev.Participant
		o.tasks.Go(ctx, TaskParticipant, p.RoomID, p.UserID, func(ctx context.Context, t *Task) error {
			if ev.Action == db.ActionCreate {
				t.SetOutcome(string(broadcast.EventUserJoined))
				return o.deps.Publisher.UserJoined(ctx, p)
			}
			t.SetOutcome(string(broadcast.EventUserLeft))
			return o.deps.Publisher.UserLeft(ctx, p.RoomID, p.UserID)
		})

	default:
		o.logger.Debug("ignoring change", "table", ev.Table, "action", ev.Action)
	}
}

// HandleMessage runs the reply and visualization branches for an inserted message.
// Persona-authored messages are ignored.
func (o *Orchestrator) HandleMessage(ctx context.Context, msg models.Message) error {
	_, err := o.handleMessage(ctx, msg)
	return err
}

func (o *Orchestrator) handleMessage(ctx context.Context, msg models.Message) (string, error) {
	if o.deps.Roster.IsAgent(msg.UserID) {
		return "agent_message", nil
	}

	window, err := o.deps.Store.QueryRecentMessages(ctx, msg.RoomID, o.opts.HistoryLimit)
	if err != nil {
		metrics.UpstreamFailures.WithLabelValues("store", "transient").Inc()
		return "", fmt.Errorf("load history of %s: %w", msg.RoomID, err)
	}
	window = withTrigger(window, msg)

	// The branches share no cancellation: a failed reply never stops a visualization.
	var (
		g       errgroup.Group
		outcome decision.Outcome
	)
	g.Go(func() error {
		var err error
		outcome, err = o.reply(ctx, msg, window, false)
		return err
	})
	g.Go(func() error {
		return o.visualize(ctx, msg, window)
	})
	err = g.Wait()
	return string(outcome), err
}

// forgetIfTransient releases a permitted response that failed before anything
// was posted, so the next trigger or re-check can answer it.
func (o *Orchestrator) forgetIfTransient(trigger models.Message, err error) {
	if llm.IsTransient(err) {
		o.deps.Decider.Forget(trigger.RoomID, trigger.MessageIDString())
	}
}

// reply decides, selects a persona and stores and publishes its answer.
func (o *Orchestrator) reply(ctx context.Context, trigger models.Message, window []models.Message, recheck bool) (decision.Outcome, error) {
	log := o.logger.With("room_id", trigger.RoomID, "message_id", trigger.MessageIDString())

	d := o.deps.Decider.Decide(decision.Input{
		RoomID:  trigger.RoomID,
		Trigger: trigger,
		Window:  window,
		Recheck: recheck,
	})
	if d.Recheck {
		o.scheduleRecheck(trigger.RoomID, d.RecheckAfter)
	}
	if !d.Respond {
		return d.Outcome, nil
	}

	history := o.formatHistory(window)
	sel, err := o.deps.Selector.Select(ctx, selector.Input{
		RoomID:      trigger.RoomID,
		LastMessage: trigger.Content,
		History:     history,
	})
	if err != nil {
		metrics.UpstreamFailures.WithLabelValues("selector", llm.FailureKind(err)).Inc()
		o.forgetIfTransient(trigger, err)
		return d.Outcome, fmt.Errorf("select persona: %w", err)
	}
	if sel == nil {
		log.Debug("no persona selected")
		return d.Outcome, nil
	}

	agentID := sel.Agent.AgentIDString()
	prompt, err := replyPrompt.Format(map[string]any{
		"name":    sel.Agent.Name,
		"history": history,
		"message": trigger.Content,
	})
	if err != nil {
		return d.Outcome, err
	}
	text, err := o.deps.Generator.GenerateText(ctx, llm.TextRequest{
		System:      personaSystem(sel.Agent),
		Prompt:      prompt,
		MaxTokens:   o.opts.ReplyMaxTokens,
		Temperature: o.opts.ReplyTemperature,
	})
	if err != nil {
		metrics.UpstreamFailures.WithLabelValues("reply", llm.FailureKind(err)).Inc()
		o.forgetIfTransient(trigger, err)
		return d.Outcome, fmt.Errorf("generate reply as %s: %w", agentID, err)
	}
	if text == "" {
		log.Warn("empty persona reply", "agent_id", agentID)
		return d.Outcome, nil
	}

	answer, err := o.deps.Store.InsertMessage(ctx, trigger.RoomID, agentID, text)
	if err != nil {
		metrics.UpstreamFailures.WithLabelValues("store", "transient").Inc()
		o.deps.Decider.Forget(trigger.RoomID, trigger.MessageIDString())
		return d.Outcome, fmt.Errorf("store reply: %w", err)
	}
	if id := trigger.MessageIDString(); id != "" {
		if err := o.deps.Store.MarkMessageRead(ctx, id); err != nil && !errors.Is(err, db.ErrNotFound) {
			log.Warn("failed to mark message read", "error", err)
		}
	}
	if err := o.deps.Publisher.NewMessage(ctx, *answer); err != nil {
		log.Warn("reply stored but not fully delivered", "error", err)
	}

	log.Info("persona replied", "agent_id", agentID, "outcome", d.Outcome, "confidence", sel.Confidence)
	return d.Outcome, nil
}

// visualize classifies the trigger and, above the threshold, runs the pipeline.
func (o *Orchestrator) visualize(ctx context.Context, trigger models.Message, window []models.Message) error {
	log := o.logger.With("room_id", trigger.RoomID, "message_id", trigger.MessageIDString())

	var prior string
	last, err := o.deps.Store.QueryLastGeneration(ctx, trigger.RoomID)
	if err != nil {
		log.Warn("failed to load last generation", "error", err)
	} else if last != nil {
		prior = describeGeneration(*last)
	}

	history := o.formatHistory(window)
	res, err := o.deps.Classifier.Classify(ctx, intent.Input{
		Message:     trigger.Content,
		PriorMarkup: prior,
		History:     history,
	})
	if err != nil {
		return fmt.Errorf("classify intent: %w", err)
	}
	if !intent.Meets(res.Confidence, o.opts.VisualizationThreshold) {
		log.Debug("no visualization intent", "confidence", res.Confidence)
		return nil
	}

	if err := o.deps.Publisher.Status(ctx, trigger.RoomID, broadcast.StatusGenerating, ""); err != nil {
		log.Warn("failed to publish status", "error", err)
	}

	result, err := o.deps.Pipeline.Run(ctx, pipeline.Request{
		RoomID:      trigger.RoomID,
		Prompt:      trigger.Content,
		History:     history,
		PriorMarkup: prior,
		CreatedBy:   trigger.UserID,
		Confidence:  res.Confidence,
	})
	if err != nil {
		if perr := o.deps.Publisher.Status(context.WithoutCancel(ctx), trigger.RoomID, broadcast.StatusError, "Visualization failed"); perr != nil {
			log.Warn("failed to publish status", "error", perr)
		}
		return fmt.Errorf("run pipeline: %w", err)
	}

	if err := o.deps.Publisher.NewGeneration(context.WithoutCancel(ctx), *result.Generation); err != nil {
		log.Warn("generation stored but not fully delivered", "error", err)
	}
	log.Info("visualization stored", "tier", result.Tier, "confidence", res.Confidence, "skipped", len(result.Skipped))
	return nil
}

// scheduleRecheck arms one fire-and-forget re-check of roomID.
func (o *Orchestrator) scheduleRecheck(roomID string, after time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}

	var timer *time.Timer
	timer = time.AfterFunc(after, func() {
		o.mu.Lock()
		delete(o.timers, timer)
		o.mu.Unlock()

		o.tasks.Go(o.ctx, TaskRecheck, roomID, "", func(ctx context.Context, t *Task) error {
			outcome, err := o.recheck(ctx, roomID)
			t.SetOutcome(string(outcome))
			return err
		})
	})
	o.timers[timer] = struct{}{}
	o.logger.Debug("re-check scheduled", "room_id", roomID, "after_ms", after.Milliseconds())
}

// recheck re-evaluates a room with a fresh window, using its newest human message as trigger.
func (o *Orchestrator) recheck(ctx context.Context, roomID string) (decision.Outcome, error) {
	window, err := o.deps.Store.QueryRecentMessages(ctx, roomID, o.opts.HistoryLimit)
	if err != nil {
		metrics.UpstreamFailures.WithLabelValues("store", "transient").Inc()
		return "", fmt.Errorf("load history of %s: %w", roomID, err)
	}
	trigger := decision.LastHuman(window, o.deps.Roster.IsAgent)
	if trigger == nil {
		return "", nil
	}
	return o.reply(ctx, *trigger, window, true)
}

// Close cancels pending re-checks and waits for running tasks.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	for t := range o.timers {
		t.Stop()
	}
	clear(o.timers)
	o.mu.Unlock()

	o.tasks.Wait()
	o.cancel()
}

const replyTemplate = `{{if .history}}Conversation so far:
{{.history}}

{{end}}Reply to the latest message as {{.name}}:
{{.message}}`

var replyPrompt = llm.NewPrompt(replyTemplate, "name", "history", "message")

func personaSystem(a models.Agent) string {
	return fmt.Sprintf(`You are %s, a participant in a group chat with humans and other AI personas.
Personality: %s
Write one short, natural chat message in your own voice. Do not prefix it with your name. Do not use markdown headings.`, a.Name, a.Personality)
}

// formatHistory renders the window as "author: content" lines, naming personas.
func (o *Orchestrator) formatHistory(window []models.Message) string {
	var b strings.Builder
	for _, m := range window {
		author := m.UserID
		if a, ok := o.deps.Roster.Get(m.UserID); ok {
			author = a.Name
		}
		fmt.Fprintf(&b, "%s: %s\n", author, m.Content)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// maxPriorMarkup bounds the prior document quoted back to the classifier, in runes.
const maxPriorMarkup = 1500

func describeGeneration(g models.Generation) string {
	desc := fmt.Sprintf("%s (%s)", g.Summary, g.Type)
	if g.RawMarkup != nil && g.Type == models.GenerationTypeHTML {
		markup := *g.RawMarkup
		if r := []rune(markup); len(r) > maxPriorMarkup {
			markup = string(r[:maxPriorMarkup]) + "..."
		}
		desc += "\n" + markup
	}
	return desc
}

// withTrigger appends msg to window when the query did not return it yet.
func withTrigger(window []models.Message, msg models.Message) []models.Message {
	id := msg.MessageIDString()
	for _, m := range window {
		if m.MessageIDString() == id {
			return window
		}
	}
	return append(window, msg)
}
