// Copyright 2026 Embercore
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package scheduler drives the companion's single-process ambient loop: poll
// skills, process operator messages, run the persona reflection cycle on
// schedule, orient, pick a capability profile, and dispatch the agentic loop
// under that profile — all gated by a pause flag and an outbound-posting
// rate limit.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/embercore/ember/internal/eventbus"
	"github.com/embercore/ember/pkg/agent"
	"github.com/embercore/ember/pkg/concerns"
	"github.com/embercore/ember/pkg/journal"
	"github.com/embercore/ember/pkg/llm"
	"github.com/embercore/ember/pkg/orientation"
	"github.com/embercore/ember/pkg/persona"
	"github.com/embercore/ember/pkg/presence"
	"github.com/embercore/ember/pkg/store"
	"github.com/embercore/ember/pkg/tools/capability"
)

// tickMetrics is the subset of observability.Metrics the scheduler reports
// to, kept narrow so this package never imports pkg/observability directly.
type tickMetrics interface {
	RecordSchedulerTick(duration time.Duration)
	RecordJournalWrite()
	SetConcernsBySalience(counts map[string]int, allLevels []string)
}

// Event is one item a Skill surfaced this tick.
type Event struct {
	ID             string
	Skill          string
	Summary        string
	AuthoredBySelf bool
}

// Skill is an external content source the scheduler polls every tick; the
// concrete skills themselves (RSS, calendar, inbox, ...) live outside this
// package and only need to satisfy this contract.
type Skill interface {
	Name() string
	Poll(ctx context.Context) ([]Event, error)
}

// AgenticRunner is the subset of *agent.Loop the scheduler depends on,
// narrowed to an interface so it can be swapped for a test double.
type AgenticRunner interface {
	Run(ctx context.Context, systemPrompt string, history []llm.Message, userMessage string, tc agent.ToolContext, opts agent.RunOptions) (*agent.Result, error)
}

// JournalDrafter prompts the model for a journal entry draft. When nil, the
// scheduler falls back to a minimal deterministic draft built from the
// orientation itself.
type JournalDrafter interface {
	Draft(ctx context.Context, o orientation.Orientation, recent []journal.Entry, active []concerns.Concern, events []Event) (journal.Draft, error)
}

// Config tunes one Scheduler.
type Config struct {
	TickInterval       time.Duration
	ReflectionInterval time.Duration
	JournalMinInterval time.Duration
	MaxPostsPerHour    int
	// ConversationTitle names the conversation the scheduler reads operator
	// messages from and posts ambient replies into.
	ConversationTitle string
	MaxHistoryMessages int
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 30 * time.Second
	}
	if c.ReflectionInterval <= 0 {
		c.ReflectionInterval = 6 * time.Hour
	}
	if c.JournalMinInterval <= 0 {
		c.JournalMinInterval = time.Hour
	}
	if c.ConversationTitle == "" {
		c.ConversationTitle = "primary"
	}
	if c.MaxHistoryMessages <= 0 {
		c.MaxHistoryMessages = 20
	}
	return c
}

// TickResult summarizes what one Tick decided and did, published on Bus for
// the HTTP/WebSocket front door to relay.
type TickResult struct {
	Orientation    orientation.Orientation
	SessionContext capability.SessionContext
	EventsSeen     int
	ChatReplied    bool
	AmbientPosted  bool
	JournalWritten bool
}

// Scheduler is the ambient loop: one process-wide driver tying the presence
// sampler, concerns tracker, journal writer, persona tracker, orientation
// engine and agentic loop together on cadence.
type Scheduler struct {
	store       *store.Store
	skills      []Skill
	concerns    *concerns.Tracker
	journal     *journal.Writer
	persona     *persona.Tracker
	orientation *orientation.Engine
	presence    *presence.Sampler
	runner      AgenticRunner
	drafter     JournalDrafter
	bus         *eventbus.Broker[TickResult]
	logger      *zap.Logger
	metrics     tickMetrics
	cfg         Config

	mu              sync.Mutex
	paused          bool
	seenEventIDs    map[string]bool
	postTimestamps  []time.Time
	lastDisposition orientation.Disposition
	lastResult      TickResult
}

// Deps bundles the Scheduler's collaborators; every field is a pre-built
// subsystem, wired once at process startup.
type Deps struct {
	Store       *store.Store
	Skills      []Skill
	Concerns    *concerns.Tracker
	Journal     *journal.Writer
	Persona     *persona.Tracker
	Orientation *orientation.Engine
	Presence    *presence.Sampler
	Runner      AgenticRunner
	Drafter     JournalDrafter
	Bus         *eventbus.Broker[TickResult]
	Logger      *zap.Logger
}

// New builds a Scheduler from its dependencies and config.
func New(d Deps, cfg Config) *Scheduler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		store:           d.Store,
		skills:          d.Skills,
		concerns:        d.Concerns,
		journal:         d.Journal,
		persona:         d.Persona,
		orientation:     d.Orientation,
		presence:        d.Presence,
		runner:          d.Runner,
		drafter:         d.Drafter,
		bus:             d.Bus,
		logger:          logger,
		cfg:             cfg.withDefaults(),
		seenEventIDs:    make(map[string]bool),
		lastDisposition: orientation.DispIdle,
	}
}

// Pause honors an operator's pause request; the next Tick becomes a no-op.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

// Resume clears a prior Pause.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
}

// TogglePause flips the pause flag and reports its new value.
func (s *Scheduler) TogglePause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = !s.paused
	return s.paused
}

// Paused reports the current pause state.
func (s *Scheduler) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Bus exposes the broker TickResults are published on, so the front door can
// relay them over the WebSocket event stream. May be nil if none was wired.
func (s *Scheduler) Bus() *eventbus.Broker[TickResult] {
	return s.bus
}

// LastResult returns the most recent Tick's result, for a status endpoint
// that needs the current orientation without waiting for the next tick.
func (s *Scheduler) LastResult() TickResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResult
}

// SetMetrics wires a metrics collector into Tick. Optional — a Scheduler
// with no metrics set records nothing.
func (s *Scheduler) SetMetrics(m tickMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m
}

func (s *Scheduler) metricsSnapshot() tickMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

var allSalienceLevels = []string{
	string(concerns.Active), string(concerns.Monitoring),
	string(concerns.Background), string(concerns.Dormant),
}

func (s *Scheduler) reportConcernMetrics(ctx context.Context) {
	m := s.metricsSnapshot()
	if m == nil {
		return
	}
	list, err := s.concerns.List(ctx)
	if err != nil {
		s.logger.Warn("listing concerns for metrics failed", zap.Error(err))
		return
	}
	counts := make(map[string]int, len(allSalienceLevels))
	for _, c := range list {
		counts[string(c.Salience)]++
	}
	m.SetConcernsBySalience(counts, allSalienceLevels)
}

// Run drives Tick on cfg.TickInterval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil {
				s.logger.Error("scheduler tick failed", zap.Error(err))
			}
		}
	}
}

// Tick runs exactly one pass of the ambient loop's eight steps, in order.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, error) {
	if s.Paused() {
		return TickResult{}, nil
	}

	tickStart := time.Now()
	defer func() {
		if m := s.metricsSnapshot(); m != nil {
			m.RecordSchedulerTick(time.Since(tickStart))
		}
	}()

	events := s.pollSkills(ctx)

	chatReplied, err := s.processOperatorMessages(ctx, events)
	if err != nil {
		return TickResult{}, fmt.Errorf("process operator messages: %w", err)
	}

	now := time.Now().UTC()
	due, err := s.reflectionDue(ctx, now)
	if err != nil {
		return TickResult{}, fmt.Errorf("check reflection schedule: %w", err)
	}
	if due {
		if err := s.runReflectionCycle(ctx, now); err != nil {
			s.logger.Warn("persona reflection cycle failed", zap.Error(err))
		}
	}

	if _, err := s.concerns.DecaySalience(ctx, now); err != nil {
		s.logger.Warn("concern salience decay failed", zap.Error(err))
	}
	s.touchConcernsFromEvents(ctx, events)
	s.reportConcernMetrics(ctx)

	o, err := s.buildOrientation(ctx, events)
	if err != nil {
		return TickResult{}, fmt.Errorf("build orientation: %w", err)
	}
	if err := orientation.Save(ctx, s.store, o); err != nil {
		return TickResult{}, fmt.Errorf("persist orientation: %w", err)
	}

	sessionCtx := s.selectSessionContext(events, chatReplied, o)

	var ambientPosted bool
	if s.shouldDispatchAmbient(events, chatReplied, o) {
		ambientPosted, err = s.dispatchAmbient(ctx, sessionCtx, o, events)
		if err != nil {
			s.logger.Warn("ambient dispatch failed", zap.Error(err))
		}
	}

	s.mu.Lock()
	previous := s.lastDisposition
	s.lastDisposition = o.Disposition
	s.mu.Unlock()

	var journaled bool
	if should, err := s.journal.ShouldWrite(ctx, string(o.Disposition), string(previous), now); err != nil {
		s.logger.Warn("journal schedule check failed", zap.Error(err))
	} else if should {
		journaled, err = s.writeJournal(ctx, o, events)
		if err != nil {
			s.logger.Warn("journal write failed", zap.Error(err))
		} else if journaled {
			if m := s.metricsSnapshot(); m != nil {
				m.RecordJournalWrite()
			}
		}
	}

	result := TickResult{
		Orientation:    o,
		SessionContext: sessionCtx,
		EventsSeen:     len(events),
		ChatReplied:    chatReplied,
		AmbientPosted:  ambientPosted,
		JournalWritten: journaled,
	}
	s.mu.Lock()
	s.lastResult = result
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(eventbus.NewCreatedEvent(result))
	}
	return result, nil
}

// pollSkills polls every registered skill, discarding events the scheduler
// has already recorded or that the companion authored itself.
func (s *Scheduler) pollSkills(ctx context.Context) []Event {
	var fresh []Event
	for _, sk := range s.skills {
		evs, err := sk.Poll(ctx)
		if err != nil {
			s.logger.Warn("skill poll failed", zap.String("skill", sk.Name()), zap.Error(err))
			continue
		}
		for _, e := range evs {
			if e.AuthoredBySelf {
				continue
			}
			s.mu.Lock()
			already := s.seenEventIDs[e.ID]
			if !already {
				s.seenEventIDs[e.ID] = true
			}
			s.mu.Unlock()
			if already {
				continue
			}
			fresh = append(fresh, e)
		}
	}
	return fresh
}

func (s *Scheduler) touchConcernsFromEvents(ctx context.Context, events []Event) {
	if len(events) == 0 {
		return
	}
	summaries := make([]string, 0, len(events))
	for _, e := range events {
		summaries = append(summaries, e.Summary)
	}
	if _, err := s.concerns.TouchFromText(ctx, strings.Join(summaries, "\n")); err != nil {
		s.logger.Warn("touch concerns from events failed", zap.Error(err))
	}
}

// processOperatorMessages handles step 3: any unprocessed operator messages
// in the active conversation are dispatched through the agentic loop under
// a private-chat profile, and marked processed whether or not a reply was
// produced.
func (s *Scheduler) processOperatorMessages(ctx context.Context, events []Event) (bool, error) {
	convID, err := s.ensureConversation(ctx)
	if err != nil {
		return false, err
	}

	unprocessed, err := s.store.UnprocessedChatMessages(ctx, convID)
	if err != nil {
		return false, fmt.Errorf("list unprocessed messages: %w", err)
	}
	if len(unprocessed) == 0 {
		return false, nil
	}

	exclude := make(map[int64]bool, len(unprocessed))
	for _, m := range unprocessed {
		exclude[m.ID] = true
	}
	history, err := s.historyFor(ctx, convID, exclude)
	if err != nil {
		return false, err
	}
	for _, m := range unprocessed[:len(unprocessed)-1] {
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}
	userMessage := unprocessed[len(unprocessed)-1].Content

	tc := agent.ToolContext{Session: capability.PrivateChat, SessionID: fmt.Sprintf("conversation-%d", convID)}

	markProcessed := func() error {
		for _, m := range unprocessed {
			if err := s.store.MarkChatMessageProcessed(ctx, m.ID); err != nil {
				return fmt.Errorf("mark message %d processed: %w", m.ID, err)
			}
		}
		return nil
	}

	turnID, err := s.store.BeginChatTurn(ctx, convID, string(capability.PrivateChat))
	if err != nil {
		_ = markProcessed()
		return false, fmt.Errorf("begin chat turn: %w", err)
	}

	systemPrompt := s.currentSystemPrompt(ctx)
	_ = s.store.RecordChatTurnPrompt(ctx, turnID, systemPrompt)

	result, runErr := s.runner.Run(ctx, systemPrompt, history, userMessage, tc, agent.RunOptions{})
	if err := markProcessed(); err != nil {
		return false, err
	}
	if runErr != nil {
		return false, fmt.Errorf("dispatch operator reply: %w", runErr)
	}

	if err := s.store.FinishChatTurn(ctx, turnID, result.Iterations, 0, 0, 0); err != nil {
		return false, fmt.Errorf("finish chat turn: %w", err)
	}
	if result.Content != "" {
		if _, err := s.store.AppendChatMessage(ctx, convID, "assistant", result.Content); err != nil {
			return false, fmt.Errorf("append assistant reply: %w", err)
		}
	}
	return true, nil
}

func (s *Scheduler) reflectionDue(ctx context.Context, now time.Time) (bool, error) {
	raw, ok, err := s.store.GetAgentState(ctx, "last_reflection_time")
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	last, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return true, nil
	}
	return now.Sub(last) >= s.cfg.ReflectionInterval, nil
}

func (s *Scheduler) runReflectionCycle(ctx context.Context, now time.Time) error {
	if s.persona == nil {
		return nil
	}
	if _, err := s.persona.CaptureSnapshot(ctx); err != nil {
		return fmt.Errorf("capture persona snapshot: %w", err)
	}
	return s.store.SetAgentState(ctx, "last_reflection_time", now.Format(time.RFC3339Nano))
}

func (s *Scheduler) buildOrientation(ctx context.Context, events []Event) (orientation.Orientation, error) {
	snap, err := s.presence.Sample(ctx)
	if err != nil {
		snap = presence.Snapshot{TimeOfDay: time.Now()}
	}

	active, err := s.concerns.List(ctx)
	if err != nil {
		return orientation.Orientation{}, fmt.Errorf("list concerns: %w", err)
	}
	recentJournal, err := s.journal.Recent(ctx, 5)
	if err != nil {
		return orientation.Orientation{}, fmt.Errorf("recent journal entries: %w", err)
	}

	pending := make([]string, 0, len(events))
	for _, e := range events {
		pending = append(pending, e.Summary)
	}

	in := orientation.Input{
		Presence:      snap,
		Concerns:      active,
		RecentJournal: recentJournal,
		PendingEvents: pending,
	}
	return s.orientation.Orient(ctx, in), nil
}

// selectSessionContext picks the capability profile matching the tick's
// purpose: a direct operator reply is always private-chat; otherwise skill
// events take priority, a journal disposition runs under dream, and
// anything left over is a bare heartbeat.
func (s *Scheduler) selectSessionContext(events []Event, chatReplied bool, o orientation.Orientation) capability.SessionContext {
	switch {
	case chatReplied:
		return capability.PrivateChat
	case len(events) > 0:
		return capability.SkillEvents
	case o.Disposition == orientation.DispJournal:
		return capability.Dream
	default:
		return capability.Heartbeat
	}
}

// shouldDispatchAmbient decides whether this tick warrants an unattended
// agentic-loop dispatch beyond the operator-chat path already handled:
// pending skill events, or a disposition asking the companion to surface
// something proactively.
func (s *Scheduler) shouldDispatchAmbient(events []Event, chatReplied bool, o orientation.Orientation) bool {
	if chatReplied {
		return false
	}
	return len(events) > 0 || o.Disposition == orientation.Observe || o.Disposition == orientation.Surface
}

// dispatchAmbient runs the agentic loop unattended, gated by the
// max-posts-per-hour limit since its output may post externally.
func (s *Scheduler) dispatchAmbient(ctx context.Context, sessionCtx capability.SessionContext, o orientation.Orientation, events []Event) (bool, error) {
	if !s.allowPost(time.Now().UTC()) {
		return false, nil
	}

	convID, err := s.ensureConversation(ctx)
	if err != nil {
		return false, err
	}
	history, err := s.historyFor(ctx, convID, nil)
	if err != nil {
		return false, err
	}

	userMessage := ambientPrompt(o, events)
	tc := agent.ToolContext{Session: sessionCtx, SessionID: fmt.Sprintf("conversation-%d", convID)}

	turnID, err := s.store.BeginChatTurn(ctx, convID, string(sessionCtx))
	if err != nil {
		return false, fmt.Errorf("begin ambient turn: %w", err)
	}
	systemPrompt := s.currentSystemPrompt(ctx)
	_ = s.store.RecordChatTurnPrompt(ctx, turnID, systemPrompt)

	result, err := s.runner.Run(ctx, systemPrompt, history, userMessage, tc, agent.RunOptions{})
	if err != nil {
		return false, fmt.Errorf("dispatch ambient turn: %w", err)
	}
	if err := s.store.FinishChatTurn(ctx, turnID, result.Iterations, 0, 0, 0); err != nil {
		return false, fmt.Errorf("finish ambient turn: %w", err)
	}
	if result.Content != "" {
		if _, err := s.store.AppendChatMessage(ctx, convID, "assistant", result.Content); err != nil {
			return false, fmt.Errorf("append ambient reply: %w", err)
		}
	}
	return true, nil
}

// ambientPrompt synthesizes the user-role message fed to the agentic loop
// for an unattended dispatch, summarizing what prompted it.
func ambientPrompt(o orientation.Orientation, events []Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ambient tick. Mode=%s Disposition=%s.", o.Mode, o.Disposition)
	if o.Summary != "" {
		fmt.Fprintf(&b, " Orientation summary: %s.", o.Summary)
	}
	if len(events) > 0 {
		b.WriteString(" Pending events:")
		for _, e := range events {
			fmt.Fprintf(&b, "\n- [%s] %s", e.Skill, e.Summary)
		}
	}
	return b.String()
}

func (s *Scheduler) writeJournal(ctx context.Context, o orientation.Orientation, events []Event) (bool, error) {
	recent, err := s.journal.Recent(ctx, 5)
	if err != nil {
		return false, fmt.Errorf("recent journal entries: %w", err)
	}
	active, err := s.concerns.List(ctx)
	if err != nil {
		return false, fmt.Errorf("list concerns: %w", err)
	}

	var draft journal.Draft
	if s.drafter != nil {
		draft, err = s.drafter.Draft(ctx, o, recent, active, events)
		if err != nil {
			return false, fmt.Errorf("draft journal entry: %w", err)
		}
	} else {
		draft = journal.Draft{Mood: o.Mood, Narrative: o.Summary}
	}

	known, err := s.concerns.KnownIDs(ctx)
	if err != nil {
		return false, fmt.Errorf("known concern ids: %w", err)
	}
	entry, err := s.journal.Write(ctx, draft, known, o.Mood)
	if err != nil {
		return false, fmt.Errorf("write journal entry: %w", err)
	}
	return entry != nil, nil
}

// allowPost enforces max_posts_per_hour with a trailing sliding window;
// zero or negative disables the limit.
func (s *Scheduler) allowPost(now time.Time) bool {
	if s.cfg.MaxPostsPerHour <= 0 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-time.Hour)
	kept := s.postTimestamps[:0]
	for _, t := range s.postTimestamps {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.postTimestamps = kept
	if len(s.postTimestamps) >= s.cfg.MaxPostsPerHour {
		return false
	}
	s.postTimestamps = append(s.postTimestamps, now)
	return true
}

func (s *Scheduler) ensureConversation(ctx context.Context) (int64, error) {
	id, err := s.store.FindConversationByTitle(ctx, s.cfg.ConversationTitle)
	if errors.Is(err, store.ErrNotFound) {
		return s.store.CreateChatConversation(ctx, s.cfg.ConversationTitle)
	}
	if err != nil {
		return 0, fmt.Errorf("find conversation %q: %w", s.cfg.ConversationTitle, err)
	}
	return id, nil
}

func (s *Scheduler) historyFor(ctx context.Context, convID int64, exclude map[int64]bool) ([]llm.Message, error) {
	recent, err := s.store.RecentChatMessages(ctx, convID, s.cfg.MaxHistoryMessages)
	if err != nil {
		return nil, fmt.Errorf("recent chat messages: %w", err)
	}
	out := make([]llm.Message, 0, len(recent))
	for _, m := range recent {
		if exclude != nil && exclude[m.ID] {
			continue
		}
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out, nil
}

func (s *Scheduler) currentSystemPrompt(ctx context.Context) string {
	prompt, ok, err := s.store.GetAgentState(ctx, "current_system_prompt")
	if err != nil || !ok || prompt == "" {
		return "You are a persistent AI companion. Be concise and helpful."
	}
	return prompt
}
