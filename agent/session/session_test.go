package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	contractx "github.com/adhityan/resto-ai-sub001/agent/contract"
	"github.com/adhityan/resto-ai-sub001/agent/tool"
)

type recordingSink struct {
	mu      sync.Mutex
	started []contractx.CallRecord
	entries []contractx.TranscriptEntry
	ended   []contractx.CallRecord
}

func (r *recordingSink) Started(_ context.Context, rec contractx.CallRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, rec)
	return nil
}

func (r *recordingSink) Entry(_ context.Context, _ string, e contractx.TranscriptEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *recordingSink) Ended(_ context.Context, rec contractx.CallRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = append(r.ended, rec)
	return nil
}

type stubBackend struct {
	refs      []contractx.ReservationRef
	cancelled []string
	block     chan struct{}
	entered   chan struct{}
}

func (b *stubBackend) CheckAvailability(context.Context, contractx.AvailabilityQuery) (contractx.AvailabilityResult, error) {
	return contractx.AvailabilityResult{Available: true, Description: "A table is available."}, nil
}

func (b *stubBackend) SearchReservations(context.Context, contractx.ReservationFilter) ([]contractx.ReservationRef, error) {
	return b.refs, nil
}

func (b *stubBackend) GetReservationByID(_ context.Context, id string) (contractx.ReservationRef, error) {
	return contractx.ReservationRef{BookingID: id, Description: "Dinner for 4"}, nil
}

func (b *stubBackend) CancelReservation(_ context.Context, id string) (contractx.CancelResult, error) {
	b.cancelled = append(b.cancelled, id)
	return contractx.CancelResult{Description: "Reservation " + id + " has been cancelled."}, nil
}

func (b *stubBackend) GetRestaurantProfile(ctx context.Context) (contractx.RestaurantInfo, error) {
	if b.block != nil {
		close(b.entered)
		<-b.block
	}
	return contractx.RestaurantInfo{ID: "r1", Name: "Chez Marcel"}, nil
}

type stubCalls struct {
	transferErr error
}

func (c *stubCalls) Transfer(context.Context, string, string) error { return c.transferErr }

func (c *stubCalls) Hangup(context.Context, string) error { return nil }

func newTestSession(t *testing.T, be *stubBackend, sink *recordingSink, mutate ...func(*Config)) *Session {
	t.Helper()
	cfg := Config{
		ID: "s1",
		Tenant: contractx.TenantConfig{
			TenantID:           "353816f8-tenant",
			InboundPhoneNumber: "+33753549003",
			ManagerPhoneNumber: "+33100000000",
		},
		Backend:  be,
		CallSID:  "CA123",
		Customer: contractx.CustomerProfile{Phone: "+33612345678", NumberOfCalls: 1},
		Sink:     sink,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	s, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestNewRequiresTenantAndBackend(t *testing.T) {
	t.Parallel()

	if _, err := New(context.Background(), Config{Backend: &stubBackend{}}); !errors.Is(err, contractx.ErrConfiguration) {
		t.Fatalf("New() without tenant error = %v", err)
	}
	if _, err := New(context.Background(), Config{Tenant: contractx.TenantConfig{TenantID: "t"}}); !errors.Is(err, contractx.ErrConfiguration) {
		t.Fatalf("New() without backend error = %v", err)
	}
}

func TestNewStartsActive(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	s := newTestSession(t, &stubBackend{}, sink)
	if s.Status() != contractx.CallActive {
		t.Fatalf("Status() = %s", s.Status())
	}
	if len(sink.started) != 1 || sink.started[0].TenantID != "353816f8-tenant" {
		t.Fatalf("unexpected started records: %+v", sink.started)
	}
	if len(s.Tools()) != 7 {
		t.Fatalf("expected 7 tools, got %d", len(s.Tools()))
	}
}

func TestInvokeAppendsOutcomeToTranscript(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	s := newTestSession(t, &stubBackend{}, sink)

	res, err := s.Invoke(context.Background(), tool.ToolCheckAvailability, []byte(`{"date":"2025-10-25","time":"19:00","party_size":4}`))
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if !res.OK {
		t.Fatalf("unexpected failure: %+v", res)
	}

	rec := s.Snapshot()
	if len(rec.Transcript) != 1 || rec.Transcript[0].Speaker != contractx.SpeakerAgent {
		t.Fatalf("unexpected transcript: %+v", rec.Transcript)
	}
	if !strings.Contains(rec.Transcript[0].Contents, tool.ToolCheckAvailability) {
		t.Fatalf("entry does not name the tool: %q", rec.Transcript[0].Contents)
	}
	if len(sink.entries) != 1 {
		t.Fatalf("expected 1 sink entry, got %d", len(sink.entries))
	}
}

func TestValidationErrorKeepsSessionActive(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, &stubBackend{}, &recordingSink{})
	res, err := s.Invoke(context.Background(), tool.ToolGetReservation, []byte(`{}`))
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if res.OK || res.Kind != contractx.KindValidation {
		t.Fatalf("unexpected result: %+v", res)
	}
	if s.Status() != contractx.CallActive {
		t.Fatalf("Status() = %s", s.Status())
	}
}

func TestToolsRejectedAfterEveryTerminalState(t *testing.T) {
	t.Parallel()

	terminate := map[contractx.CallStatus]func(*Session){
		contractx.CallCompleted: func(s *Session) {
			if _, err := s.Invoke(context.Background(), tool.ToolEndCall, nil); err != nil {
				t.Fatalf("end_call error = %v", err)
			}
		},
		contractx.CallFailed: func(s *Session) {
			if err := s.Fail(context.Background(), "transport exhausted"); err != nil {
				t.Fatalf("Fail() error = %v", err)
			}
		},
		contractx.CallTransferred: func(s *Session) {
			if _, err := s.Invoke(context.Background(), tool.ToolTransferToManager, nil); err != nil {
				t.Fatalf("transfer error = %v", err)
			}
		},
	}

	for want, end := range terminate {
		be := &stubBackend{}
		sink := &recordingSink{}
		s := newTestSession(t, be, sink)
		end(s)

		if s.Status() != want {
			t.Fatalf("Status() = %s, want %s", s.Status(), want)
		}
		res, err := s.Invoke(context.Background(), tool.ToolCancelReservation, []byte(`{"booking_id":"bk_1"}`))
		if !errors.Is(err, contractx.ErrSessionClosed) {
			t.Fatalf("%s: Invoke() error = %v, want ErrSessionClosed", want, err)
		}
		if res.OK || res.Kind != contractx.KindSessionClosed {
			t.Fatalf("%s: unexpected result %+v", want, res)
		}
		if len(be.cancelled) != 0 {
			t.Fatalf("%s: backend reached after terminal state", want)
		}
		if err := s.Say(context.Background(), contractx.SpeakerUser, "hello?", false); !errors.Is(err, contractx.ErrSessionClosed) {
			t.Fatalf("%s: Say() error = %v", want, err)
		}
		if len(sink.ended) != 1 {
			t.Fatalf("%s: expected exactly one end record, got %d", want, len(sink.ended))
		}
		select {
		case <-s.Done():
		default:
			t.Fatalf("%s: Done() not closed", want)
		}
	}
}

func TestTransferSetsEscalationAndEndsCall(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	s := newTestSession(t, &stubBackend{}, sink, func(c *Config) { c.Calls = &stubCalls{} })

	res, err := s.Invoke(context.Background(), tool.ToolTransferToManager, []byte(`{"reason":"wants a human"}`))
	if err != nil || !res.OK {
		t.Fatalf("Invoke() = %+v, %v", res, err)
	}
	rec := s.Snapshot()
	if !rec.EscalationRequested || rec.Status != contractx.CallTransferred {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.EndedAt == nil || rec.EndReason != "wants a human" {
		t.Fatalf("unexpected end fields: %+v", rec)
	}
	if s.Disconnect(context.Background()) {
		t.Fatal("Disconnect() must not override TRANSFERRED")
	}
	if s.Status() != contractx.CallTransferred {
		t.Fatalf("Status() = %s", s.Status())
	}
}

func TestFailedTransferEndsCallAsFailed(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, &stubBackend{}, &recordingSink{}, func(c *Config) {
		c.Calls = &stubCalls{transferErr: errors.New("twilio unavailable")}
	})

	res, err := s.Invoke(context.Background(), tool.ToolTransferToManager, nil)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if res.OK {
		t.Fatal("expected transfer failure")
	}
	rec := s.Snapshot()
	if rec.Status != contractx.CallFailed || !rec.EscalationRequested {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestTransferWithoutManagerEndsCall(t *testing.T) {
	t.Parallel()

	calls := &stubCalls{}
	s := newTestSession(t, &stubBackend{}, &recordingSink{}, func(c *Config) {
		c.Calls = calls
		c.Tenant.ManagerPhoneNumber = ""
	})

	res, err := s.Invoke(context.Background(), tool.ToolTransferToManager, nil)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if res.OK || res.Kind != contractx.KindPrecondition {
		t.Fatalf("unexpected result: %+v", res)
	}
	rec := s.Snapshot()
	if rec.Status != contractx.CallFailed || !rec.EscalationRequested || rec.EndedAt == nil {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if _, err := s.Invoke(context.Background(), tool.ToolRestaurantInfo, nil); !errors.Is(err, contractx.ErrSessionClosed) {
		t.Fatalf("Invoke() after transfer error = %v, want ErrSessionClosed", err)
	}
}

func TestCancelGuardUsesLookups(t *testing.T) {
	t.Parallel()

	be := &stubBackend{refs: []contractx.ReservationRef{{BookingID: "bk_abc123xyz", Description: "Dinner"}}}
	s := newTestSession(t, be, &recordingSink{}, func(c *Config) { c.RequireLookupBeforeCancel = true })

	res, err := s.Invoke(context.Background(), tool.ToolCancelReservation, []byte(`{"booking_id":"bk_abc123xyz"}`))
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if res.Kind != contractx.KindPrecondition || len(be.cancelled) != 0 {
		t.Fatalf("expected precondition failure, got %+v (cancelled %v)", res, be.cancelled)
	}

	if _, err := s.Invoke(context.Background(), tool.ToolSearchReservations, []byte(`{"phone":"+33612345678"}`)); err != nil {
		t.Fatalf("search error = %v", err)
	}
	res, err = s.Invoke(context.Background(), tool.ToolCancelReservation, []byte(`{"booking_id":"bk_abc123xyz"}`))
	if err != nil || !res.OK {
		t.Fatalf("cancel after lookup = %+v, %v", res, err)
	}
	if res.Text() == "" || len(be.cancelled) != 1 {
		t.Fatalf("unexpected cancel outcome: %+v", res)
	}
}

func TestDisconnectDuringToolDiscardsResult(t *testing.T) {
	t.Parallel()

	be := &stubBackend{block: make(chan struct{}), entered: make(chan struct{})}
	sink := &recordingSink{}
	s := newTestSession(t, be, sink)

	type result struct {
		res contractx.ToolResult
		err error
	}
	done := make(chan result, 1)
	go func() {
		res, err := s.Invoke(context.Background(), tool.ToolRestaurantInfo, nil)
		done <- result{res, err}
	}()

	<-be.entered
	if !s.Disconnect(context.Background()) {
		t.Fatal("Disconnect() should end an active session")
	}
	close(be.block)

	select {
	case got := <-done:
		if !errors.Is(got.err, contractx.ErrSessionClosed) {
			t.Fatalf("Invoke() error = %v, want ErrSessionClosed", got.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Invoke() did not return")
	}

	rec := s.Snapshot()
	if rec.Status != contractx.CallFailed || rec.EndReason != ReasonDisconnected {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if len(rec.Transcript) != 0 {
		t.Fatalf("late tool result leaked into transcript: %+v", rec.Transcript)
	}
}

func TestSayKeepsOrder(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	s := newTestSession(t, &stubBackend{}, sink)
	ctx := context.Background()

	if err := s.Say(ctx, contractx.SpeakerAgent, "Bonjour, Chez Marcel.", false); err != nil {
		t.Fatalf("Say() error = %v", err)
	}
	if err := s.Say(ctx, contractx.SpeakerUser, "I want to cancel", true); err != nil {
		t.Fatalf("Say() error = %v", err)
	}
	if err := s.Say(ctx, contractx.Speaker("SYSTEM"), "x", false); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("Say() with unknown speaker error = %v", err)
	}
	if _, err := s.Invoke(ctx, tool.ToolEndCall, nil); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	rec := s.Snapshot()
	if len(rec.Transcript) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(rec.Transcript))
	}
	if rec.Transcript[0].Speaker != contractx.SpeakerAgent || rec.Transcript[1].Speaker != contractx.SpeakerUser || !rec.Transcript[1].WasInterrupted {
		t.Fatalf("unexpected transcript: %+v", rec.Transcript)
	}
	if len(sink.entries) != 3 || sink.entries[1].Contents != "I want to cancel" {
		t.Fatalf("sink order mismatch: %+v", sink.entries)
	}
	if sink.ended[0].Status != contractx.CallCompleted || len(sink.ended[0].Transcript) != 3 {
		t.Fatalf("unexpected end record: %+v", sink.ended[0])
	}
}

func TestSubscribeStreamsUntilEnd(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, &stubBackend{}, &recordingSink{})
	events, cancel := s.Subscribe()
	defer cancel()

	if err := s.Say(context.Background(), contractx.SpeakerUser, "hi", false); err != nil {
		t.Fatalf("Say() error = %v", err)
	}
	s.Disconnect(context.Background())

	var types []contractx.EventType
	for evt := range events {
		types = append(types, evt.Type)
	}
	if len(types) != 2 || types[0] != contractx.EventTranscript || types[1] != contractx.EventSessionEnded {
		t.Fatalf("unexpected events: %v", types)
	}

	late, lateCancel := s.Subscribe()
	defer lateCancel()
	if _, open := <-late; open {
		t.Fatal("subscription after end should be closed")
	}
}

type fakeSummarizer struct{}

func (fakeSummarizer) Summarize(_ context.Context, transcript []contractx.TranscriptEntry) (string, error) {
	return "caller said hello", nil
}

func TestSummaryStoredOnEnd(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	s := newTestSession(t, &stubBackend{}, sink, func(c *Config) { c.Summarizer = fakeSummarizer{} })
	_ = s.Say(context.Background(), contractx.SpeakerUser, "hello", false)
	if err := s.Complete(context.Background(), "runtime ended"); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if err := s.Complete(context.Background(), "again"); !errors.Is(err, contractx.ErrSessionClosed) {
		t.Fatalf("second Complete() error = %v", err)
	}
	if sink.ended[0].Summary != "caller said hello" || s.Snapshot().Summary != "caller said hello" {
		t.Fatalf("summary not stored: %+v", sink.ended[0])
	}
}

func TestNewFailedRecordsTerminalCall(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	rec := NewFailed(context.Background(), Config{Sink: sink, CallSID: "CA9"}, "tenant not found")
	if rec.Status != contractx.CallFailed || rec.EndedAt == nil || rec.SessionID == "" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if len(sink.started) != 1 || len(sink.ended) != 1 {
		t.Fatalf("sink calls = %d started, %d ended", len(sink.started), len(sink.ended))
	}
}
