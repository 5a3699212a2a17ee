// Package session owns the lifecycle of one phone call: tool sequencing,
// transcript accumulation and the single terminal transition.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	contractx "github.com/adhityan/resto-ai-sub001/agent/contract"
	"github.com/adhityan/resto-ai-sub001/agent/tool"
	logx "github.com/adhityan/resto-ai-sub001/pkg/logger"
)

const (
	finalizeTimeout = 15 * time.Second

	ReasonDisconnected = "caller disconnected"
	ReasonShutdown     = "service shutting down"
)

type Config struct {
	ID       string
	Tenant   contractx.TenantConfig
	Backend  contractx.ReservationBackend
	Calls    contractx.CallControl
	CallSID  string
	Customer contractx.CustomerProfile
	// Grounding is the customer context text handed to the model.
	Grounding string

	Catalog    *tool.Catalog
	Sink       contractx.TranscriptSink
	Summarizer contractx.Summarizer

	RequireLookupBeforeCancel bool
	Now                       func() time.Time
}

type Session struct {
	cfg    Config
	logger zerolog.Logger

	// invokeMu serializes tool invocations; mu guards the record and is never
	// held across backend calls.
	invokeMu sync.Mutex
	mu       sync.Mutex
	rec      contractx.CallRecord
	known    map[string]struct{}

	// emitMu keeps sink and subscriber delivery in transcript order.
	emitMu sync.Mutex
	subs   map[int]chan contractx.SessionEvent
	nextID int

	done chan struct{}
}

// New opens an ACTIVE session and reports it to the sink.
func New(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Tenant.TenantID == "" {
		return nil, fmt.Errorf("%w: session needs a resolved tenant", contractx.ErrConfiguration)
	}
	if cfg.Backend == nil {
		return nil, fmt.Errorf("%w: session needs a backend client", contractx.ErrConfiguration)
	}
	cfg = withDefaults(cfg)

	s := &Session{
		cfg:    cfg,
		logger: logx.ForSession(cfg.ID, cfg.Tenant.TenantID, cfg.CallSID),
		rec: contractx.CallRecord{
			SessionID:          cfg.ID,
			TenantID:           cfg.Tenant.TenantID,
			CallSID:            cfg.CallSID,
			InboundPhoneNumber: cfg.Tenant.InboundPhoneNumber,
			CustomerPhone:      cfg.Customer.Phone,
			StartedAt:          cfg.Now().UTC(),
			Status:             contractx.CallActive,
		},
		known: make(map[string]struct{}),
		subs:  make(map[int]chan contractx.SessionEvent),
		done:  make(chan struct{}),
	}

	rec := s.Snapshot()
	s.emit(ctx, func(ctx context.Context) {
		if err := s.cfg.Sink.Started(ctx, rec); err != nil {
			s.logger.Warn().Err(err).Msg("sink rejected session start")
		}
	}, contractx.SessionEvent{Type: contractx.EventSessionStarted, SessionID: rec.SessionID, At: rec.StartedAt, Status: rec.Status})

	s.logger.Info().Msg("call session started")
	return s, nil
}

// NewFailed records a call that could not be routed. No tools are ever
// registered for it.
func NewFailed(ctx context.Context, cfg Config, reason string) contractx.CallRecord {
	cfg = withDefaults(cfg)
	now := cfg.Now().UTC()
	rec := contractx.CallRecord{
		SessionID:          cfg.ID,
		TenantID:           cfg.Tenant.TenantID,
		CallSID:            cfg.CallSID,
		InboundPhoneNumber: cfg.Tenant.InboundPhoneNumber,
		CustomerPhone:      cfg.Customer.Phone,
		StartedAt:          now,
		EndedAt:            &now,
		Status:             contractx.CallFailed,
		EndReason:          reason,
	}

	logger := logx.ForSession(cfg.ID, cfg.Tenant.TenantID, cfg.CallSID)
	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	if err := cfg.Sink.Started(sinkCtx, rec); err != nil {
		logger.Warn().Err(err).Msg("sink rejected failed session start")
	}
	if err := cfg.Sink.Ended(sinkCtx, rec); err != nil {
		logger.Warn().Err(err).Msg("sink rejected failed session end")
	}
	logger.Error().Str("reason", reason).Msg("call session failed before start")
	return rec
}

func withDefaults(cfg Config) Config {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Catalog == nil {
		cfg.Catalog = tool.Default()
	}
	if cfg.Sink == nil {
		cfg.Sink = nopSink{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return cfg
}

func (s *Session) ID() string { return s.cfg.ID }

func (s *Session) Tenant() contractx.TenantConfig { return s.cfg.Tenant }

func (s *Session) Grounding() string { return s.cfg.Grounding }

func (s *Session) Customer() contractx.CustomerProfile { return s.cfg.Customer }

// Tools returns the schemas to register with the model runtime.
func (s *Session) Tools() []*schema.ToolInfo { return s.cfg.Catalog.Infos() }

func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Status() contractx.CallStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.Status
}

// Snapshot returns a copy of the call record.
func (s *Session) Snapshot() contractx.CallRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() contractx.CallRecord {
	rec := s.rec
	rec.Transcript = append([]contractx.TranscriptEntry(nil), s.rec.Transcript...)
	if s.rec.EndedAt != nil {
		ended := *s.rec.EndedAt
		rec.EndedAt = &ended
	}
	return rec
}

// Invoke runs one tool. It fails fast with ErrSessionClosed once the session
// is terminal, and discards the outcome of a tool that was still running when
// the session ended.
func (s *Session) Invoke(ctx context.Context, name string, rawArgs []byte) (contractx.ToolResult, error) {
	s.invokeMu.Lock()
	defer s.invokeMu.Unlock()

	s.mu.Lock()
	if s.rec.Status.IsTerminal() {
		status := s.rec.Status
		s.mu.Unlock()
		s.logger.Warn().Str("tool", name).Str("status", string(status)).Msg("tool call after session end rejected")
		return contractx.Failure(name, contractx.KindSessionClosed, "the call has already ended"), contractx.ErrSessionClosed
	}
	sc := s.sessionContextLocked()
	s.mu.Unlock()

	out := s.cfg.Catalog.Execute(ctx, sc, name, rawArgs)

	s.mu.Lock()
	if s.rec.Status.IsTerminal() {
		s.mu.Unlock()
		s.logger.Info().Str("tool", name).Msg("discarding tool result after session end")
		return contractx.Failure(name, contractx.KindSessionClosed, "the call has already ended"), contractx.ErrSessionClosed
	}

	for _, id := range out.Bookings {
		if id != "" {
			s.known[id] = struct{}{}
		}
	}
	entry := s.appendLocked(contractx.SpeakerAgent, fmt.Sprintf("[%s] %s", name, out.Result.Text()), false)

	ended := false
	switch out.Directive {
	case tool.DirectiveTransfer:
		s.rec.EscalationRequested = true
		if out.Result.OK {
			ended = s.terminateLocked(contractx.CallTransferred, out.Reason)
		} else {
			ended = s.terminateLocked(contractx.CallFailed, out.Reason)
		}
	case tool.DirectiveEndCall:
		ended = s.terminateLocked(contractx.CallCompleted, out.Reason)
	}
	status := s.rec.Status
	result := out.Result
	s.emitLocked(ctx,
		func(ctx context.Context) { s.deliverEntry(ctx, entry) },
		contractx.SessionEvent{Type: contractx.EventTranscript, SessionID: s.cfg.ID, At: entry.Time, Status: status, Entry: &entry},
		contractx.SessionEvent{Type: contractx.EventToolInvoked, SessionID: s.cfg.ID, At: entry.Time, Status: status, Tool: &result},
	)

	if ended {
		s.finish(ctx)
	}
	return out.Result, nil
}

// Say appends a spoken turn.
func (s *Session) Say(ctx context.Context, speaker contractx.Speaker, text string, interrupted bool) error {
	if speaker != contractx.SpeakerUser && speaker != contractx.SpeakerAgent {
		return fmt.Errorf("%w: unknown speaker %q", contractx.ErrValidation, speaker)
	}

	s.mu.Lock()
	if s.rec.Status.IsTerminal() {
		s.mu.Unlock()
		return contractx.ErrSessionClosed
	}
	entry := s.appendLocked(speaker, text, interrupted)
	status := s.rec.Status
	s.emitLocked(ctx,
		func(ctx context.Context) { s.deliverEntry(ctx, entry) },
		contractx.SessionEvent{Type: contractx.EventTranscript, SessionID: s.cfg.ID, At: entry.Time, Status: status, Entry: &entry},
	)
	return nil
}

// Disconnect ends the session as FAILED unless it already reached a terminal
// state. It reports whether this call made the transition.
func (s *Session) Disconnect(ctx context.Context) bool {
	return s.end(ctx, contractx.CallFailed, ReasonDisconnected)
}

// Fail moves an ACTIVE session to FAILED.
func (s *Session) Fail(ctx context.Context, reason string) error {
	if !s.end(ctx, contractx.CallFailed, reason) {
		return contractx.ErrSessionClosed
	}
	return nil
}

// Complete moves an ACTIVE session to COMPLETED without the end_call tool,
// for runtimes that end the call themselves.
func (s *Session) Complete(ctx context.Context, reason string) error {
	if !s.end(ctx, contractx.CallCompleted, reason) {
		return contractx.ErrSessionClosed
	}
	return nil
}

func (s *Session) end(ctx context.Context, status contractx.CallStatus, reason string) bool {
	s.mu.Lock()
	if !s.terminateLocked(status, reason) {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()
	s.finish(ctx)
	return true
}

// terminateLocked performs the single terminal transition.
func (s *Session) terminateLocked(status contractx.CallStatus, reason string) bool {
	if s.rec.Status.IsTerminal() || !status.IsTerminal() {
		return false
	}
	now := s.cfg.Now().UTC()
	s.rec.Status = status
	s.rec.EndedAt = &now
	s.rec.EndReason = reason
	close(s.done)
	return true
}

func (s *Session) finish(ctx context.Context) {
	rec := s.Snapshot()

	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	if s.cfg.Summarizer != nil && len(rec.Transcript) > 0 {
		summary, err := s.cfg.Summarizer.Summarize(sinkCtx, rec.Transcript)
		if err != nil {
			s.logger.Warn().Err(err).Msg("call summary failed")
		} else {
			s.mu.Lock()
			s.rec.Summary = summary
			s.mu.Unlock()
			rec.Summary = summary
		}
	}

	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if err := s.cfg.Sink.Ended(sinkCtx, rec); err != nil {
		s.logger.Warn().Err(err).Msg("sink rejected session end")
	}
	s.publish(contractx.SessionEvent{Type: contractx.EventSessionEnded, SessionID: rec.SessionID, At: *rec.EndedAt, Status: rec.Status})
	s.closeSubscribers()

	s.logger.Info().
		Str("status", string(rec.Status)).
		Bool("escalation_requested", rec.EscalationRequested).
		Str("reason", rec.EndReason).
		Int("turns", len(rec.Transcript)).
		Msg("call session ended")
}

func (s *Session) appendLocked(speaker contractx.Speaker, text string, interrupted bool) contractx.TranscriptEntry {
	entry := contractx.TranscriptEntry{
		Speaker:        speaker,
		Contents:       text,
		WasInterrupted: interrupted,
		Time:           s.cfg.Now().UTC(),
	}
	s.rec.Transcript = append(s.rec.Transcript, entry)
	return entry
}

func (s *Session) sessionContextLocked() tool.SessionContext {
	known := make(knownBookings, len(s.known))
	for id := range s.known {
		known[id] = struct{}{}
	}
	return tool.SessionContext{
		SessionID:     s.cfg.ID,
		Tenant:        s.cfg.Tenant,
		Backend:       s.cfg.Backend,
		Calls:         s.cfg.Calls,
		CallSID:       s.cfg.CallSID,
		CustomerPhone: s.cfg.Customer.Phone,
		KnownBookings: known,
		RequireLookup: s.cfg.RequireLookupBeforeCancel,
	}
}

func (s *Session) deliverEntry(ctx context.Context, entry contractx.TranscriptEntry) {
	if err := s.cfg.Sink.Entry(ctx, s.cfg.ID, entry); err != nil {
		s.logger.Warn().Err(err).Msg("sink rejected transcript entry")
	}
}

type knownBookings map[string]struct{}

func (k knownBookings) Has(id string) bool {
	_, ok := k[id]
	return ok
}

type nopSink struct{}

func (nopSink) Started(context.Context, contractx.CallRecord) error { return nil }

func (nopSink) Entry(context.Context, string, contractx.TranscriptEntry) error { return nil }

func (nopSink) Ended(context.Context, contractx.CallRecord) error { return nil }

// IsClosed reports whether err means the session no longer accepts calls.
func IsClosed(err error) bool {
	return errors.Is(err, contractx.ErrSessionClosed)
}
