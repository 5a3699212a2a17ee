package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	contractx "github.com/adhityan/resto-ai-sub001/agent/contract"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(Config{BaseURL: server.URL, APIKey: "secret-key"}, WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client, server
}

func TestNewRequiresBaseURLAndKey(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{APIKey: "k"}); !errors.Is(err, contractx.ErrConfiguration) {
		t.Fatalf("New() without base url error = %v, want ErrConfiguration", err)
	}
	if _, err := New(Config{BaseURL: "http://backend.local"}); !errors.Is(err, contractx.ErrConfiguration) {
		t.Fatalf("New() without api key error = %v, want ErrConfiguration", err)
	}
	c, err := New(Config{BaseURL: "http://backend.local/", APIKey: "k"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.timeout != DefaultTimeout {
		t.Fatalf("timeout = %v, want %v", c.timeout, DefaultTimeout)
	}
	if c.baseURL != "http://backend.local" {
		t.Fatalf("baseURL = %q", c.baseURL)
	}
}

func TestCheckAvailabilityRejectsMalformedInputBeforeNetwork(t *testing.T) {
	t.Parallel()

	var hits int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		fmt.Fprint(w, `{"available":true,"description":"ok"}`)
	}))

	tests := []struct {
		name string
		q    contractx.AvailabilityQuery
	}{
		{"hour out of range", contractx.AvailabilityQuery{Date: "2025-10-25", Time: "25:00", PartySize: 4}},
		{"zero party size", contractx.AvailabilityQuery{Date: "2025-10-25", Time: "19:00", PartySize: 0}},
		{"negative party size", contractx.AvailabilityQuery{Date: "2025-10-25", PartySize: -2}},
		{"single digit hour", contractx.AvailabilityQuery{Date: "2025-10-25", Time: "7:30", PartySize: 2}},
		{"twelve hour clock", contractx.AvailabilityQuery{Date: "2025-10-25", Time: "07:30pm", PartySize: 2}},
		{"minutes out of range", contractx.AvailabilityQuery{Date: "2025-10-25", Time: "19:60", PartySize: 2}},
		{"bad date format", contractx.AvailabilityQuery{Date: "25/10/2025", PartySize: 2}},
		{"impossible date", contractx.AvailabilityQuery{Date: "2025-02-30", PartySize: 2}},
		{"missing date", contractx.AvailabilityQuery{PartySize: 2}},
	}

	for _, tt := range tests {
		if _, err := client.CheckAvailability(context.Background(), tt.q); !errors.Is(err, contractx.ErrValidation) {
			t.Fatalf("%s: CheckAvailability() error = %v, want ErrValidation", tt.name, err)
		}
	}
	if n := atomic.LoadInt32(&hits); n != 0 {
		t.Fatalf("expected no backend requests, got %d", n)
	}
}

func TestCheckAvailabilityForwardsQuery(t *testing.T) {
	t.Parallel()

	var gotQuery, gotAuth, gotPath string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"available":true,"description":"A table for 4 is available at 19:00."}`)
	}))

	out, err := client.CheckAvailability(context.Background(), contractx.AvailabilityQuery{Date: "2025-10-25", Time: "19:00", PartySize: 4})
	if err != nil {
		t.Fatalf("CheckAvailability() error = %v", err)
	}
	if !out.Available || out.Description == "" {
		t.Fatalf("unexpected result: %+v", out)
	}
	if gotPath != "/reservations/availability" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotQuery != "date=2025-10-25&partySize=4&time=19%3A00" {
		t.Fatalf("query = %q", gotQuery)
	}
	if gotAuth != "Basic secret-key" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
}

func TestSearchReservationsForwardsOnlyPresentFilters(t *testing.T) {
	t.Parallel()

	var gotQuery string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, `[]`)
	}))

	refs, err := client.SearchReservations(context.Background(), contractx.ReservationFilter{Phone: "+33612345678"})
	if err != nil {
		t.Fatalf("SearchReservations() error = %v", err)
	}
	if refs == nil || len(refs) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", refs)
	}
	if gotQuery != "phone=%2B33612345678" {
		t.Fatalf("query = %q", gotQuery)
	}
}

func TestSearchReservationsAcceptsWrappedList(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"reservations":[{"bookingId":"bk_1","description":"Dinner for 2 on Oct 25 at 19:00"}]}`)
	}))

	refs, err := client.SearchReservations(context.Background(), contractx.ReservationFilter{Email: "a@b.c", CustomerName: "Jane"})
	if err != nil {
		t.Fatalf("SearchReservations() error = %v", err)
	}
	if len(refs) != 1 || refs[0].BookingID != "bk_1" {
		t.Fatalf("unexpected refs: %#v", refs)
	}
}

// cancelServer cancels each booking once and then reports it as already cancelled.
func cancelServer(t *testing.T) http.Handler {
	t.Helper()
	var mu sync.Mutex
	cancelled := map[string]bool{}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("unexpected method %s", r.Method)
		}
		id := strings.TrimPrefix(r.URL.Path, "/reservations/")
		mu.Lock()
		defer mu.Unlock()
		if cancelled[id] {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			fmt.Fprint(w, `{"statusCode":409,"message":"Reservation is already cancelled","error":"Conflict"}`)
			return
		}
		cancelled[id] = true
		fmt.Fprintf(w, `{"description":"Reservation %s for 4 people on Oct 25 has been cancelled."}`, id)
	})
}

func TestCancelReservationIsNotIdempotent(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, cancelServer(t))

	out, err := client.CancelReservation(context.Background(), "bk_abc123xyz")
	if err != nil {
		t.Fatalf("CancelReservation() error = %v", err)
	}
	if out.Description == "" {
		t.Fatal("expected non-empty description")
	}

	_, err = client.CancelReservation(context.Background(), "bk_abc123xyz")
	if !errors.Is(err, contractx.ErrBackend) {
		t.Fatalf("second CancelReservation() error = %v, want ErrBackend", err)
	}
	if err.Error() != "Reservation is already cancelled" {
		t.Fatalf("unexpected normalized message: %q", err.Error())
	}
}

func TestCancelReservationRequiresBookingID(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("backend must not be called")
	}))
	if _, err := client.CancelReservation(context.Background(), "  "); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("CancelReservation() error = %v, want ErrValidation", err)
	}
}

func TestGetReservationByIDEscapesPath(t *testing.T) {
	t.Parallel()

	var gotPath string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		fmt.Fprint(w, `{"description":"Lunch for 2"}`)
	}))

	ref, err := client.GetReservationByID(context.Background(), "bk/1")
	if err != nil {
		t.Fatalf("GetReservationByID() error = %v", err)
	}
	if gotPath != "/reservations/bk%2F1" {
		t.Fatalf("path = %q", gotPath)
	}
	if ref.BookingID != "bk/1" {
		t.Fatalf("BookingID = %q, want passthrough id", ref.BookingID)
	}
}

func TestGetRestaurantProfileIsCached(t *testing.T) {
	t.Parallel()

	var hits int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/restaurants/me" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		atomic.AddInt32(&hits, 1)
		fmt.Fprint(w, `{"id":"r1","name":"Chez Marcel","description":"Bistro in Paris"}`)
	}))

	first, err := client.GetRestaurantProfile(context.Background())
	if err != nil {
		t.Fatalf("GetRestaurantProfile() error = %v", err)
	}
	second, err := client.GetRestaurantProfile(context.Background())
	if err != nil {
		t.Fatalf("GetRestaurantProfile() second error = %v", err)
	}
	if first != second {
		t.Fatalf("cached profile differs: %+v vs %+v", first, second)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("expected 1 backend request, got %d", n)
	}
}

func TestGetRestaurantProfileDoesNotCacheFailures(t *testing.T) {
	t.Parallel()

	var hits int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"id":"r1","name":"Chez Marcel"}`)
	}))

	if _, err := client.GetRestaurantProfile(context.Background()); err == nil {
		t.Fatal("expected first call to fail")
	}
	out, err := client.GetRestaurantProfile(context.Background())
	if err != nil {
		t.Fatalf("GetRestaurantProfile() error = %v", err)
	}
	if out.Name != "Chez Marcel" {
		t.Fatalf("unexpected profile: %+v", out)
	}
}

func TestErrorNormalization(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		status      int
		contentType string
		body        []byte
		want        string
	}{
		{"message field", http.StatusBadRequest, "application/json", []byte(`{"message":"Booking not found"}`), "Booking not found"},
		{"message array", http.StatusBadRequest, "application/json", []byte(`{"message":["date must be a date","partySize must be positive"]}`), "date must be a date; partySize must be positive"},
		{"error field only", http.StatusForbidden, "application/json", []byte(`{"error":"Forbidden"}`), "Forbidden"},
		{"plain text", http.StatusBadGateway, "text/plain", []byte("upstream provider down\n"), "upstream provider down"},
		{"empty body", http.StatusInternalServerError, "", nil, "reservation service returned status 500"},
		{"binary body", http.StatusInternalServerError, "application/octet-stream", []byte{0xff, 0xfe, 0x00, 0x01}, "reservation service returned status 500"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.contentType != "" {
					w.Header().Set("Content-Type", tt.contentType)
				}
				w.WriteHeader(tt.status)
				w.Write(tt.body)
			}))

			_, err := client.GetReservationByID(context.Background(), "bk_1")
			var be *Error
			if !errors.As(err, &be) {
				t.Fatalf("expected *Error, got %T (%v)", err, err)
			}
			if be.StatusCode != tt.status {
				t.Fatalf("StatusCode = %d, want %d", be.StatusCode, tt.status)
			}
			if be.Error() != tt.want {
				t.Fatalf("message = %q, want %q", be.Error(), tt.want)
			}
		})
	}
}

func TestTransportErrorsAreNormalized(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client, err := New(Config{BaseURL: url, APIKey: "k"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = client.GetReservationByID(context.Background(), "bk_1")
	if !errors.Is(err, contractx.ErrBackend) {
		t.Fatalf("error = %v, want ErrBackend", err)
	}
	if err.Error() != "reservation service is unreachable" {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestTimeoutIsNormalized(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	client, err := New(Config{BaseURL: server.URL, APIKey: "k", Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = client.SearchReservations(context.Background(), contractx.ReservationFilter{})
	if !errors.Is(err, contractx.ErrBackend) {
		t.Fatalf("error = %v, want ErrBackend", err)
	}
	if err.Error() != "reservation service did not respond in time" {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestCallRecordEndpoints(t *testing.T) {
	t.Parallel()

	type hit struct {
		method string
		path   string
		body   map[string]any
	}
	var mu sync.Mutex
	var hits []hit

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		hits = append(hits, hit{method: r.Method, path: r.URL.Path, body: body})
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))

	now := time.Date(2025, 10, 25, 19, 0, 0, 0, time.UTC)
	rec := contractx.CallRecord{
		SessionID: "s1",
		TenantID:  "t1",
		StartedAt: now,
		Status:    contractx.CallActive,
		Transcript: []contractx.TranscriptEntry{
			{Speaker: contractx.SpeakerUser, Contents: "hello", Time: now},
		},
	}

	ctx := context.Background()
	if err := client.CreateCall(ctx, rec); err != nil {
		t.Fatalf("CreateCall() error = %v", err)
	}
	if err := client.AppendTranscript(ctx, "s1", rec.Transcript); err != nil {
		t.Fatalf("AppendTranscript() error = %v", err)
	}
	if err := client.AppendTranscript(ctx, "s1", nil); err != nil {
		t.Fatalf("AppendTranscript(nil) error = %v", err)
	}
	rec.Status = contractx.CallCompleted
	if err := client.FinalizeCall(ctx, rec); err != nil {
		t.Fatalf("FinalizeCall() error = %v", err)
	}

	if len(hits) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(hits))
	}
	if hits[0].method != http.MethodPost || hits[0].path != "/calls" {
		t.Fatalf("unexpected create request: %+v", hits[0])
	}
	if _, ok := hits[0].body["transcript"]; ok {
		t.Fatal("create call must not carry the transcript")
	}
	if hits[1].path != "/calls/s1/transcripts" {
		t.Fatalf("unexpected transcript path: %s", hits[1].path)
	}
	if hits[2].method != http.MethodPatch || hits[2].body["status"] != "COMPLETED" {
		t.Fatalf("unexpected finalize request: %+v", hits[2])
	}
}
