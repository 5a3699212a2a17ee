package receptionist

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	contractx "github.com/adhityan/resto-ai-sub001/agent/contract"
	nodex "github.com/adhityan/resto-ai-sub001/agent/nodes"
	"github.com/adhityan/resto-ai-sub001/agent/tenant"
	"github.com/adhityan/resto-ai-sub001/agent/transcript"
)

const (
	restaurantNumber = "+33753549003"
	restaurantTenant = "353816f8-0f7e-4a1e-9d41-2b1f3c7e9a10"
)

type fakeClient struct {
	mu        sync.Mutex
	profile   contractx.CustomerProfile
	lookups   []string
	created   []contractx.CallRecord
	finalized []contractx.CallRecord
}

func (f *fakeClient) CheckAvailability(context.Context, contractx.AvailabilityQuery) (contractx.AvailabilityResult, error) {
	return contractx.AvailabilityResult{Available: true, Description: "A table for 2 is available."}, nil
}

func (f *fakeClient) SearchReservations(context.Context, contractx.ReservationFilter) ([]contractx.ReservationRef, error) {
	return nil, nil
}

func (f *fakeClient) GetReservationByID(_ context.Context, id string) (contractx.ReservationRef, error) {
	return contractx.ReservationRef{BookingID: id, Description: "Dinner for 2"}, nil
}

func (f *fakeClient) CancelReservation(context.Context, string) (contractx.CancelResult, error) {
	return contractx.CancelResult{Description: "Cancelled"}, nil
}

func (f *fakeClient) GetRestaurantProfile(context.Context) (contractx.RestaurantInfo, error) {
	return contractx.RestaurantInfo{ID: "r1", Name: "Chez Test"}, nil
}

func (f *fakeClient) GetCustomerByPhone(_ context.Context, phone string) (contractx.CustomerProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups = append(f.lookups, phone)
	p := f.profile
	p.Phone = phone
	return p, nil
}

func (f *fakeClient) CreateCall(_ context.Context, rec contractx.CallRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, rec)
	return nil
}

func (f *fakeClient) AppendTranscript(context.Context, string, []contractx.TranscriptEntry) error {
	return nil
}

func (f *fakeClient) FinalizeCall(_ context.Context, rec contractx.CallRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalized = append(f.finalized, rec)
	return nil
}

type harness struct {
	r       *Receptionist
	client  *fakeClient
	sink    *transcript.Memory
	built   int
	buildMu sync.Mutex
}

func newHarness(t *testing.T, buildErr error) *harness {
	t.Helper()

	reg, err := tenant.New([]contractx.TenantConfig{{
		TenantID:           restaurantTenant,
		InboundPhoneNumber: restaurantNumber,
		APIKey:             "secret",
		ManagerPhoneNumber: "+33600000000",
	}})
	if err != nil {
		t.Fatalf("tenant.New() error = %v", err)
	}

	h := &harness{
		client: &fakeClient{profile: contractx.CustomerProfile{Name: "Marie", NumberOfCalls: 3}},
		sink:   transcript.NewMemory(),
	}
	r, err := New(Config{
		Tenants: reg,
		Clients: func(contractx.TenantConfig) (nodex.Client, error) {
			h.buildMu.Lock()
			h.built++
			h.buildMu.Unlock()
			if buildErr != nil {
				return nil, buildErr
			}
			return h.client, nil
		},
		Sinks:                     []contractx.TranscriptSink{h.sink},
		CallingCode:               "33",
		RequireLookupBeforeCancel: true,
		EvictInterval:             time.Hour,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	h.r = r
	return h
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}); err == nil {
		t.Fatal("New() error = nil, want missing tenant registry")
	}
	reg, _ := tenant.New(nil)
	if _, err := New(Config{Tenants: reg}); err == nil {
		t.Fatal("New() error = nil, want missing client factory")
	}
}

func TestStartCallUnknownNumberRecordsFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	_, err := h.r.StartCall(context.Background(), nodex.GraphInput{
		To:      "+33100000000",
		From:    "+33612345678",
		CallSID: "CA-unknown",
	})
	if !errors.Is(err, contractx.ErrTenantNotFound) {
		t.Fatalf("StartCall() error = %v, want ErrTenantNotFound", err)
	}
	if h.built != 0 {
		t.Fatalf("client factory called %d times, want 0", h.built)
	}

	ids := h.sink.SessionIDs()
	if len(ids) != 1 {
		t.Fatalf("recorded sessions = %d, want 1", len(ids))
	}
	rec, _ := h.sink.Get(ids[0])
	if rec.Status != contractx.CallFailed {
		t.Fatalf("status = %s, want FAILED", rec.Status)
	}
	if rec.InboundPhoneNumber != "+33100000000" || rec.EndedAt == nil {
		t.Fatalf("failed record = %+v", rec)
	}
	if h.r.Active() != 0 {
		t.Fatalf("Active() = %d, want 0", h.r.Active())
	}
}

func TestStartCallNumberIsExactMatch(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	_, err := h.r.StartCall(context.Background(), nodex.GraphInput{To: "0753549003", From: "+33612345678"})
	if !errors.Is(err, contractx.ErrTenantNotFound) {
		t.Fatalf("StartCall() error = %v, want ErrTenantNotFound", err)
	}
}

func TestStartCallRejectsEmptyInbound(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	_, err := h.r.StartCall(context.Background(), nodex.GraphInput{To: "  ", From: "+33612345678"})
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("StartCall() error = %v, want ErrValidation", err)
	}
	if len(h.sink.SessionIDs()) != 0 {
		t.Fatal("invalid input should not be recorded")
	}
}

func TestStartCallOpensActiveSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	s, err := h.r.StartCall(context.Background(), nodex.GraphInput{
		To:      restaurantNumber,
		From:    "06 12 34 56 78",
		CallSID: "CA123",
	})
	if err != nil {
		t.Fatalf("StartCall() error = %v", err)
	}
	if s.Status() != contractx.CallActive {
		t.Fatalf("status = %s, want ACTIVE", s.Status())
	}
	if s.Tenant().TenantID != restaurantTenant {
		t.Fatalf("tenant = %s", s.Tenant().TenantID)
	}
	if len(h.client.lookups) != 1 || h.client.lookups[0] != "+33612345678" {
		t.Fatalf("lookups = %v, want normalized caller number", h.client.lookups)
	}
	if !strings.Contains(s.Grounding(), "+33612345678") || !strings.Contains(s.Grounding(), "Marie") {
		t.Fatalf("grounding = %q", s.Grounding())
	}
	if len(s.Tools()) != 7 {
		t.Fatalf("tools = %d, want 7", len(s.Tools()))
	}
	if len(h.client.created) != 1 {
		t.Fatalf("backend CreateCall calls = %d, want 1", len(h.client.created))
	}

	got, err := h.r.Get(s.ID())
	if err != nil || got != s {
		t.Fatalf("Get() = %v, %v", got, err)
	}
	got, err = h.r.GetByCallSID("CA123")
	if err != nil || got != s {
		t.Fatalf("GetByCallSID() = %v, %v", got, err)
	}
	if h.r.Active() != 1 {
		t.Fatalf("Active() = %d, want 1", h.r.Active())
	}
}

func TestStartCallWithheldNumber(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	s, err := h.r.StartCall(context.Background(), nodex.GraphInput{To: restaurantNumber})
	if err != nil {
		t.Fatalf("StartCall() error = %v", err)
	}
	if len(h.client.lookups) != 0 {
		t.Fatalf("lookups = %v, want none", h.client.lookups)
	}
	if !strings.Contains(s.Grounding(), "withheld") {
		t.Fatalf("grounding = %q", s.Grounding())
	}
}

func TestStartCallClientFailureRecordsFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t, contractx.ErrConfiguration)

	_, err := h.r.StartCall(context.Background(), nodex.GraphInput{To: restaurantNumber, From: "+33612345678"})
	if !errors.Is(err, contractx.ErrConfiguration) {
		t.Fatalf("StartCall() error = %v, want ErrConfiguration", err)
	}
	ids := h.sink.SessionIDs()
	if len(ids) != 1 {
		t.Fatalf("recorded sessions = %d, want 1", len(ids))
	}
	rec, _ := h.sink.Get(ids[0])
	if rec.Status != contractx.CallFailed || rec.TenantID != restaurantTenant {
		t.Fatalf("failed record = %+v", rec)
	}
}

func TestDisconnectFinalizesThroughBackend(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()

	s, err := h.r.StartCall(ctx, nodex.GraphInput{To: restaurantNumber, From: "+33612345678", CallSID: "CA9"})
	if err != nil {
		t.Fatalf("StartCall() error = %v", err)
	}
	rec, err := h.r.Disconnect(ctx, s.ID())
	if err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if rec.Status != contractx.CallFailed {
		t.Fatalf("status = %s, want FAILED", rec.Status)
	}
	if len(h.client.finalized) != 1 {
		t.Fatalf("FinalizeCall calls = %d, want 1", len(h.client.finalized))
	}
	stored, _ := h.sink.Get(s.ID())
	if stored.Status != contractx.CallFailed {
		t.Fatalf("shared sink status = %s", stored.Status)
	}

	if _, err := h.r.Disconnect(ctx, "missing"); !errors.Is(err, contractx.ErrSessionNotFound) {
		t.Fatalf("Disconnect(missing) error = %v", err)
	}
}

func TestCloseFailsLiveCalls(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()

	s, err := h.r.StartCall(ctx, nodex.GraphInput{To: restaurantNumber, From: "+33612345678"})
	if err != nil {
		t.Fatalf("StartCall() error = %v", err)
	}
	if err := h.r.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	rec := s.Snapshot()
	if rec.Status != contractx.CallFailed || rec.EndReason == "" {
		t.Fatalf("record after Close = %+v", rec)
	}
	if _, err := h.r.StartCall(ctx, nodex.GraphInput{To: restaurantNumber}); !errors.Is(err, contractx.ErrSessionClosed) {
		t.Fatalf("StartCall() after Close error = %v", err)
	}
}

func TestEvictRemovesOnlyExpiredSessions(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()

	ended, err := h.r.StartCall(ctx, nodex.GraphInput{To: restaurantNumber, From: "+33612345678", CallSID: "CA-ended"})
	if err != nil {
		t.Fatalf("StartCall() error = %v", err)
	}
	live, err := h.r.StartCall(ctx, nodex.GraphInput{To: restaurantNumber, From: "+33612345679"})
	if err != nil {
		t.Fatalf("StartCall() error = %v", err)
	}
	ended.Disconnect(ctx)

	if n := h.r.evict(); n != 0 {
		t.Fatalf("evict() inside retention = %d, want 0", n)
	}

	h.r.now = func() time.Time { return time.Now().Add(time.Hour) }
	if n := h.r.evict(); n != 1 {
		t.Fatalf("evict() = %d, want 1", n)
	}
	if _, err := h.r.Get(ended.ID()); !errors.Is(err, contractx.ErrSessionNotFound) {
		t.Fatalf("Get(ended) error = %v", err)
	}
	if _, err := h.r.GetByCallSID("CA-ended"); !errors.Is(err, contractx.ErrSessionNotFound) {
		t.Fatalf("GetByCallSID(ended) error = %v", err)
	}
	if _, err := h.r.Get(live.ID()); err != nil {
		t.Fatalf("Get(live) error = %v", err)
	}
}
