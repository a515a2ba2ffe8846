// Package decision decides whether and when a persona answers a room.
//
// Each room has in-memory response state: the last response time, the ids of
// messages already answered, the ids seen during a burst, a pending re-check
// flag and a consecutive re-check counter. The counter bounds the re-check
// chain started by one trigger; any fresh trigger starts a new chain. Every Decide call runs the whole
// decide-then-record sequence under the room's lock, so concurrent triggers
// for one room are serialized while rooms proceed independently. State is not
// persisted; a restart forgets every room.
package decision

import (
	"log/slog"
	"sync"
	"time"

	"github.com/raphaelgruber/chorus/internal/config"
	"github.com/raphaelgruber/chorus/internal/metrics"
	"github.com/raphaelgruber/chorus/internal/models"
)

// Outcome names the rule that produced a decision.
type Outcome string

// Decision outcomes. Only OutcomeRespond and OutcomeForced permit a response.
const (
	OutcomeRespond        Outcome = "respond"
	OutcomeForced         Outcome = "forced"
	OutcomeDuplicate      Outcome = "duplicate"
	OutcomeRateLimited    Outcome = "rate_limited"
	OutcomeCheckStorm     Outcome = "check_storm"
	OutcomeTooFewMessages Outcome = "too_few_messages"
	OutcomeDebounced      Outcome = "debounced"
	OutcomePending        Outcome = "pending"
)

// Config holds the engine rules.
type Config struct {
	MinResponseInterval  time.Duration
	MaxConsecutiveChecks int
	MinMessages          int
	MaxConsecutiveHuman  int
	RapidThreshold       time.Duration
	RapidWindow          int // Number of inter-arrival gaps inspected
	ResponseDelay        time.Duration
}

// ConfigFromTunables maps configuration tunables to engine rules.
func ConfigFromTunables(t config.Tunables) Config {
	return Config{
		MinResponseInterval:  t.MinResponseInterval(),
		MaxConsecutiveChecks: t.MaxConsecutiveChecks,
		MinMessages:          t.MinMessagesBeforeResponse,
		MaxConsecutiveHuman:  t.MaxConsecutiveHuman,
		RapidThreshold:       t.RapidMessageThreshold(),
		RapidWindow:          t.RapidMessageWindow,
		ResponseDelay:        t.ResponseDelay(),
	}
}

// Input is one candidate trigger.
type Input struct {
	RoomID  string
	Trigger models.Message
	Window  []models.Message // Recent room messages, oldest first, including Trigger
	Recheck bool             // Set when a scheduled re-check fires
}

// Decision is the engine verdict.
type Decision struct {
	Respond      bool
	Outcome      Outcome
	Recheck      bool          // Caller must schedule one re-check
	RecheckAfter time.Duration // Delay before the re-check
}

type roomState struct {
	mu             sync.Mutex
	lastResponse   time.Time
	prevResponse   time.Time // lastResponse before the newest record
	lastAnswered   string
	lastCheck      time.Time
	responded      map[string]struct{}
	seen           map[string]struct{}
	recheckPending bool
	checks         int
}

// RoomSnapshot is a read-only copy of a room's state.
type RoomSnapshot struct {
	RoomID         string    `json:"room_id"`
	LastResponse   time.Time `json:"last_response"`
	LastCheck      time.Time `json:"last_check"`
	Responded      int       `json:"responded"`
	Seen           int       `json:"seen"`
	RecheckPending bool      `json:"recheck_pending"`
	Checks         int       `json:"consecutive_checks"`
}

// Engine is the per-room response state machine.
type Engine struct {
	cfg     Config
	isAgent func(userID string) bool
	now     func() time.Time
	logger  *slog.Logger

	mu    sync.Mutex
	rooms map[string]*roomState
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an engine. isAgent tells persona authors apart from humans.
func New(cfg Config, isAgent func(userID string) bool, opts ...Option) *Engine {
	e := &Engine{
		cfg:     cfg,
		isAgent: isAgent,
		now:     time.Now,
		logger:  slog.Default(),
		rooms:   make(map[string]*roomState),
	}
	for _, o := range opts {
		o(e)
	}
	e.logger = e.logger.With("component", "decision")
	return e
}

func (e *Engine) room(id string) *roomState {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rooms[id]
	if !ok {
		r = &roomState{responded: map[string]struct{}{}, seen: map[string]struct{}{}}
		e.rooms[id] = r
	}
	return r
}

// Decide evaluates a trigger and records the outcome in the room state.
func (e *Engine) Decide(in Input) Decision {
	r := e.room(in.RoomID)
	r.mu.Lock()
	defer r.mu.Unlock()

	d := e.decide(r, in)
	metrics.Decisions.WithLabelValues(string(d.Outcome)).Inc()
	e.logger.Debug("decision",
		"room_id", in.RoomID,
		"message_id", in.Trigger.MessageIDString(),
		"outcome", d.Outcome,
		"recheck", d.Recheck,
		"recheck_after_ms", d.RecheckAfter.Milliseconds(),
		"checks", r.checks,
	)
	return d
}

// decide runs the rules in order. Caller holds r.mu.
func (e *Engine) decide(r *roomState, in Input) Decision {
	now := e.now()
	r.lastCheck = now
	if in.Recheck {
		r.recheckPending = false
		r.checks++
	} else {
		r.checks = 0
	}
	msgID := in.Trigger.MessageIDString()

	// 1. Duplicate suppression
	if _, ok := r.responded[msgID]; ok {
		return Decision{Outcome: OutcomeDuplicate}
	}

	// 2. Minimum inter-response interval
	if !r.lastResponse.IsZero() {
		if since := now.Sub(r.lastResponse); since < e.cfg.MinResponseInterval {
			d := Decision{Outcome: OutcomeRateLimited}
			if !r.recheckPending && r.checks < e.cfg.MaxConsecutiveChecks {
				r.recheckPending = true
				d.Recheck = true
				d.RecheckAfter = e.cfg.MinResponseInterval - since
			}
			return d
		}
	}

	// 3. Check storm guard
	if in.Recheck && r.checks > e.cfg.MaxConsecutiveChecks {
		return Decision{Outcome: OutcomeCheckStorm}
	}

	// 4. Minimum volume
	if len(in.Window) < e.cfg.MinMessages {
		return Decision{Outcome: OutcomeTooFewMessages}
	}

	// 5. Forced response after a long human-only tail
	if ConsecutiveHuman(in.Window, e.isAgent) >= e.cfg.MaxConsecutiveHuman {
		e.record(r, msgID, now)
		return Decision{Respond: true, Outcome: OutcomeForced}
	}

	// 6. Rapid-succession debounce
	if e.inBurst(in.Window, now) {
		_, seen := r.seen[msgID]
		r.seen[msgID] = struct{}{}
		// A redelivered trigger never starts a second delayed check.
		if r.recheckPending || (seen && !in.Recheck) {
			return Decision{Outcome: OutcomePending}
		}
		r.recheckPending = true
		return Decision{Outcome: OutcomeDebounced, Recheck: true, RecheckAfter: e.cfg.ResponseDelay}
	}

	// 7. Respond
	e.record(r, msgID, now)
	return Decision{Respond: true, Outcome: OutcomeRespond}
}

func (e *Engine) record(r *roomState, msgID string, now time.Time) {
	r.prevResponse = r.lastResponse
	r.lastAnswered = msgID
	r.lastResponse = now
	r.responded[msgID] = struct{}{}
	clear(r.seen)
	r.checks = 0
	r.recheckPending = false
}

// inBurst reports whether the newest human messages arrived in rapid succession
// and the newest one is still within the response delay.
func (e *Engine) inBurst(window []models.Message, now time.Time) bool {
	gaps := HumanGaps(window, e.isAgent)
	if e.cfg.RapidWindow < 1 || len(gaps) < e.cfg.RapidWindow {
		return false
	}
	for _, g := range gaps[len(gaps)-e.cfg.RapidWindow:] {
		if g >= e.cfg.RapidThreshold {
			return false
		}
	}
	newest := LastHuman(window, e.isAgent)
	return newest != nil && now.Sub(newest.CreatedAt) < e.cfg.ResponseDelay
}

// Forget undoes the record of a response that was permitted but never
// delivered, so a later trigger or re-check can answer msgID. Only the most
// recent response also rolls back the rate-limit clock.
func (e *Engine) Forget(roomID, msgID string) {
	e.mu.Lock()
	r, ok := e.rooms[roomID]
	e.mu.Unlock()
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.responded[msgID]; !ok {
		return
	}
	delete(r.responded, msgID)
	if r.lastAnswered == msgID {
		r.lastResponse = r.prevResponse
		r.lastAnswered = ""
	}
	e.logger.Debug("response forgotten", "room_id", roomID, "message_id", msgID)
}

// Snapshot returns a copy of a room's state.
func (e *Engine) Snapshot(roomID string) (RoomSnapshot, bool) {
	e.mu.Lock()
	r, ok := e.rooms[roomID]
	e.mu.Unlock()
	if !ok {
		return RoomSnapshot{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return RoomSnapshot{
		RoomID:         roomID,
		LastResponse:   r.lastResponse,
		LastCheck:      r.lastCheck,
		Responded:      len(r.responded),
		Seen:           len(r.seen),
		RecheckPending: r.recheckPending,
		Checks:         r.checks,
	}, true
}

// Rooms returns the ids of rooms with state.
func (e *Engine) Rooms() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.rooms))
	for id := range e.rooms {
		ids = append(ids, id)
	}
	return ids
}

// ConsecutiveHuman counts the non-persona messages at the tail of window.
func ConsecutiveHuman(window []models.Message, isAgent func(string) bool) int {
	n := 0
	for i := len(window) - 1; i >= 0; i-- {
		if isAgent(window[i].UserID) {
			break
		}
		n++
	}
	return n
}

// HumanGaps returns the inter-arrival gaps between consecutive human messages, oldest first.
func HumanGaps(window []models.Message, isAgent func(string) bool) []time.Duration {
	var gaps []time.Duration
	var prev *models.Message
	for i := range window {
		m := &window[i]
		if isAgent(m.UserID) {
			continue
		}
		if prev != nil {
			gaps = append(gaps, m.CreatedAt.Sub(prev.CreatedAt))
		}
		prev = m
	}
	return gaps
}

// LastHuman returns the newest non-persona message in window, or nil.
func LastHuman(window []models.Message, isAgent func(string) bool) *models.Message {
	for i := len(window) - 1; i >= 0; i-- {
		if !isAgent(window[i].UserID) {
			return &window[i]
		}
	}
	return nil
}
