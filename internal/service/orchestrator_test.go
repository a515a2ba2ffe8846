package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
	"go.uber.org/goleak"

	"github.com/raphaelgruber/chorus/internal/db"
	"github.com/raphaelgruber/chorus/internal/decision"
	"github.com/raphaelgruber/chorus/internal/intent"
	"github.com/raphaelgruber/chorus/internal/llm"
	"github.com/raphaelgruber/chorus/internal/models"
	"github.com/raphaelgruber/chorus/internal/pipeline"
	"github.com/raphaelgruber/chorus/internal/selector"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func msg(id, user, content string) models.Message {
	return models.Message{
		ID:        surrealmodels.NewRecordID("message", id),
		RoomID:    "lobby",
		UserID:    user,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

var ada = models.Agent{ID: surrealmodels.NewRecordID("agent", "ada"), Name: "Ada", Personality: "curious"}

type fakeStore struct {
	mu         sync.Mutex
	window     []models.Message
	historyErr error
	inserted   []models.Message
	read       []string
	last       *models.Generation
}

func (s *fakeStore) QueryRecentMessages(context.Context, string, int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.window...), s.historyErr
}

func (s *fakeStore) InsertMessage(_ context.Context, roomID, userID, content string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := models.Message{ID: surrealmodels.NewRecordID("message", "reply"), RoomID: roomID, UserID: userID, Content: content}
	s.inserted = append(s.inserted, m)
	return &m, nil
}

func (s *fakeStore) MarkMessageRead(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.read = append(s.read, id)
	return nil
}

func (s *fakeStore) QueryLastGeneration(context.Context, string) (*models.Generation, error) {
	return s.last, nil
}

type fakeText struct {
	text string
	err  error
}

func (f fakeText) GenerateText(context.Context, llm.TextRequest) (string, error) {
	return f.text, f.err
}

type fakeDecider struct {
	mu        sync.Mutex
	decisions []decision.Decision // Consumed in order; the last one repeats
	inputs    []decision.Input
	forgotten []string
}

func (f *fakeDecider) Forget(roomID, msgID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgotten = append(f.forgotten, roomID+"/"+msgID)
}

func (f *fakeDecider) Decide(in decision.Input) decision.Decision {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	d := f.decisions[0]
	if len(f.decisions) > 1 {
		f.decisions = f.decisions[1:]
	}
	return d
}

func (f *fakeDecider) calls() []decision.Input {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]decision.Input(nil), f.inputs...)
}

type fakeSelector struct {
	sel *selector.Selection
	err error
}

func (f fakeSelector) Select(context.Context, selector.Input) (*selector.Selection, error) {
	return f.sel, f.err
}

type fakeClassifier struct {
	confidence float64
	err        error
}

func (f fakeClassifier) Classify(context.Context, intent.Input) (intent.Result, error) {
	return intent.Result{Confidence: f.confidence}, f.err
}

type fakePipeline struct {
	mu   sync.Mutex
	runs int
	err  error
}

func (f *fakePipeline) Run(_ context.Context, req pipeline.Request) (*pipeline.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.Result{
		Generation: &models.Generation{ID: surrealmodels.NewRecordID("generation", "g1"), RoomID: req.RoomID, Type: "chart"},
		Tier:       pipeline.TierTemplate,
	}, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (f *fakePublisher) add(e string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakePublisher) NewMessage(context.Context, models.Message) error {
	return f.add("new-message")
}
func (f *fakePublisher) UserJoined(_ context.Context, p models.Participant) error {
	return f.add("user-joined:" + p.UserID)
}
func (f *fakePublisher) UserLeft(_ context.Context, _, userID string) error {
	return f.add("user-left:" + userID)
}
func (f *fakePublisher) NewGeneration(context.Context, models.Generation) error {
	return f.add("new-generation")
}
func (f *fakePublisher) Status(_ context.Context, _, statusType, _ string) error {
	return f.add("new-status:" + statusType)
}

func (f *fakePublisher) list() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

type fakeRoster struct{}

func (fakeRoster) IsAgent(id string) bool { return id == "ada" }
func (fakeRoster) Get(id string) (models.Agent, bool) {
	if id == "ada" {
		return ada, true
	}
	return models.Agent{}, false
}

type harness struct {
	store     *fakeStore
	decider   *fakeDecider
	pipeline  *fakePipeline
	publisher *fakePublisher
	deps      Deps
}

func newHarness(d ...decision.Decision) *harness {
	if len(d) == 0 {
		d = []decision.Decision{{Respond: true, Outcome: decision.OutcomeRespond}}
	}
	h := &harness{
		store:     &fakeStore{window: []models.Message{msg("m1", "sam", "hi all")}},
		decider:   &fakeDecider{decisions: d},
		pipeline:  &fakePipeline{},
		publisher: &fakePublisher{},
	}
	h.deps = Deps{
		Store:      h.store,
		Generator:  fakeText{text: "hello sam"},
		Decider:    h.decider,
		Selector:   fakeSelector{sel: &selector.Selection{Agent: ada, Confidence: 0.9}},
		Classifier: fakeClassifier{confidence: 0.1},
		Pipeline:   h.pipeline,
		Publisher:  h.publisher,
		Roster:     fakeRoster{},
	}
	return h
}

func (h *harness) orchestrator(t *testing.T) *Orchestrator {
	o := New(h.deps, Options{VisualizationThreshold: 0.6}, nil)
	t.Cleanup(o.Close)
	return o
}

func TestHandleMessageReplies(t *testing.T) {
	h := newHarness()
	o := h.orchestrator(t)

	require.NoError(t, o.HandleMessage(context.Background(), msg("m1", "sam", "hi all")))

	require.Len(t, h.store.inserted, 1)
	assert.Equal(t, "ada", h.store.inserted[0].UserID)
	assert.Equal(t, "hello sam", h.store.inserted[0].Content)
	assert.Equal(t, []string{"m1"}, h.store.read)
	assert.Equal(t, []string{"new-message"}, h.publisher.list())
	assert.Equal(t, 0, h.pipeline.runs)
}

func TestHandleMessageSkipsPersonaMessages(t *testing.T) {
	h := newHarness()
	o := h.orchestrator(t)

	require.NoError(t, o.HandleMessage(context.Background(), msg("m2", "ada", "I am a bot")))
	assert.Empty(t, h.decider.calls())
	assert.Empty(t, h.publisher.list())
}

func TestHandleMessageNotPermitted(t *testing.T) {
	h := newHarness(decision.Decision{Outcome: decision.OutcomeDuplicate})
	o := h.orchestrator(t)

	require.NoError(t, o.HandleMessage(context.Background(), msg("m1", "sam", "hi all")))
	assert.Empty(t, h.store.inserted)
	assert.Empty(t, h.publisher.list())
}

func TestHandleMessageNoPersonaSelected(t *testing.T) {
	h := newHarness()
	h.deps.Selector = fakeSelector{}
	o := h.orchestrator(t)

	require.NoError(t, o.HandleMessage(context.Background(), msg("m1", "sam", "hi all")))
	assert.Empty(t, h.store.inserted)
}

func TestHandleMessageVisualizes(t *testing.T) {
	h := newHarness(decision.Decision{Outcome: decision.OutcomeTooFewMessages})
	h.deps.Classifier = fakeClassifier{confidence: 0.6}
	o := h.orchestrator(t)

	require.NoError(t, o.HandleMessage(context.Background(), msg("m1", "sam", "chart our scores")))
	assert.Equal(t, 1, h.pipeline.runs)
	assert.Equal(t, []string{"new-status:generating", "new-generation"}, h.publisher.list())
}

func TestPipelineFailurePublishesErrorStatus(t *testing.T) {
	h := newHarness(decision.Decision{Outcome: decision.OutcomeTooFewMessages})
	h.deps.Classifier = fakeClassifier{confidence: 0.9}
	h.pipeline.err = errors.New("db down")
	o := h.orchestrator(t)

	err := o.HandleMessage(context.Background(), msg("m1", "sam", "draw a timeline"))
	require.Error(t, err)
	assert.Equal(t, []string{"new-status:generating", "new-status:error"}, h.publisher.list())
}

func TestReplyFailureDoesNotBlockVisualization(t *testing.T) {
	h := newHarness()
	h.deps.Generator = fakeText{err: llm.ErrTransient}
	h.deps.Classifier = fakeClassifier{confidence: 0.9}
	o := h.orchestrator(t)

	err := o.HandleMessage(context.Background(), msg("m1", "sam", "make a chart"))
	require.ErrorIs(t, err, llm.ErrTransient)
	assert.Empty(t, h.store.inserted)
	assert.Equal(t, 1, h.pipeline.runs)
	assert.Contains(t, h.publisher.list(), "new-generation")
}

func TestClassifierFailureDoesNotBlockReply(t *testing.T) {
	h := newHarness()
	h.deps.Classifier = fakeClassifier{err: llm.ErrTransient}
	o := h.orchestrator(t)

	err := o.HandleMessage(context.Background(), msg("m1", "sam", "make a chart"))
	require.Error(t, err)
	assert.Len(t, h.store.inserted, 1)
	assert.Equal(t, 0, h.pipeline.runs)
}

func TestHistoryFailureIsReturned(t *testing.T) {
	h := newHarness()
	h.store.historyErr = db.ErrTransient
	o := h.orchestrator(t)

	err := o.HandleMessage(context.Background(), msg("m1", "sam", "hi"))
	require.ErrorIs(t, err, db.ErrTransient)
	assert.Empty(t, h.decider.calls())
}

func TestRecheckFires(t *testing.T) {
	h := newHarness(
		decision.Decision{Outcome: decision.OutcomeDebounced, Recheck: true, RecheckAfter: 10 * time.Millisecond},
		decision.Decision{Respond: true, Outcome: decision.OutcomeRespond},
	)
	o := h.orchestrator(t)

	require.NoError(t, o.HandleMessage(context.Background(), msg("m1", "sam", "hi all")))

	require.Eventually(t, func() bool {
		return len(h.publisher.list()) == 1
	}, time.Second, 5*time.Millisecond)

	calls := h.decider.calls()
	require.Len(t, calls, 2)
	assert.False(t, calls[0].Recheck)
	assert.True(t, calls[1].Recheck)
	assert.Equal(t, "m1", calls[1].Trigger.MessageIDString())
	assert.Equal(t, 0, o.PendingRechecks())
}

func TestCloseCancelsPendingRechecks(t *testing.T) {
	h := newHarness(decision.Decision{Outcome: decision.OutcomeRateLimited, Recheck: true, RecheckAfter: time.Hour})
	o := New(h.deps, Options{}, nil)

	require.NoError(t, o.HandleMessage(context.Background(), msg("m1", "sam", "hi")))
	assert.Equal(t, 1, o.PendingRechecks())

	o.Close()
	assert.Equal(t, 0, o.PendingRechecks())
	assert.Len(t, h.decider.calls(), 1)
}

func TestRunDispatchesEvents(t *testing.T) {
	h := newHarness()
	o := h.orchestrator(t)

	m := msg("m1", "sam", "hi all")
	events := make(chan db.ChangeEvent, 4)
	events <- db.ChangeEvent{Table: db.TableMessage, Action: db.ActionCreate, Message: &m}
	events <- db.ChangeEvent{Table: db.TableParticipant, Action: db.ActionCreate, Participant: &models.Participant{RoomID: "lobby", UserID: "kim"}}
	events <- db.ChangeEvent{Table: db.TableParticipant, Action: db.ActionDelete, Participant: &models.Participant{RoomID: "lobby", UserID: "lee"}}
	events <- db.ChangeEvent{Table: db.TableMessage, Action: db.ActionUpdate, Message: &m}
	close(events)

	require.NoError(t, o.Run(context.Background(), events))
	o.Tasks().Wait()

	assert.ElementsMatch(t, []string{"new-message", "user-joined:kim", "user-left:lee"}, h.publisher.list())
	assert.Len(t, h.decider.calls(), 1)

	counts := o.Tasks().Counts()
	assert.Equal(t, 3, counts[TaskStatusCompleted])
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness()
	o := h.orchestrator(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := o.Run(ctx, make(chan db.ChangeEvent))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithTrigger(t *testing.T) {
	window := []models.Message{msg("m1", "sam", "a")}
	assert.Len(t, withTrigger(window, msg("m1", "sam", "a")), 1)
	assert.Len(t, withTrigger(window, msg("m2", "sam", "b")), 2)
}

func TestFormatHistoryNamesPersonas(t *testing.T) {
	o := newHarness().orchestrator(t)
	got := o.formatHistory([]models.Message{msg("m1", "sam", "hi"), msg("m2", "ada", "hello")})
	assert.Equal(t, "sam: hi\nAda: hello", got)
}

func TestDescribeGenerationTruncatesByRune(t *testing.T) {
	markup := strings.Repeat("ü", maxPriorMarkup+10)
	g := models.Generation{Summary: "Umlauts", Type: models.GenerationTypeHTML, RawMarkup: &markup}

	got := describeGeneration(g)
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasPrefix(got, "Umlauts (html)\n"))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, maxPriorMarkup, strings.Count(got, "ü"))
}

func TestTransientReplyFailureForgetsDecision(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(h *harness)
		forget bool
	}{
		{"selector transient", func(h *harness) { h.deps.Selector = fakeSelector{err: llm.ErrTransient} }, true},
		{"reply transient", func(h *harness) { h.deps.Generator = fakeText{err: llm.ErrTransient} }, true},
		{"reply timeout", func(h *harness) { h.deps.Generator = fakeText{err: context.DeadlineExceeded} }, true},
		{"reply fatal", func(h *harness) { h.deps.Generator = fakeText{err: llm.ErrFatalAPI} }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			tt.setup(h)
			o := h.orchestrator(t)

			err := o.HandleMessage(context.Background(), msg("m1", "sam", "hi"))
			require.Error(t, err)
			h.decider.mu.Lock()
			defer h.decider.mu.Unlock()
			if tt.forget {
				assert.Equal(t, []string{"lobby/m1"}, h.decider.forgotten)
			} else {
				assert.Empty(t, h.decider.forgotten)
			}
		})
	}
}
