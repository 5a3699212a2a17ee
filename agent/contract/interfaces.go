package contract

import "context"

// ReservationBackend is the per-tenant reservation API as seen by tools.
type ReservationBackend interface {
	CheckAvailability(ctx context.Context, q AvailabilityQuery) (AvailabilityResult, error)
	SearchReservations(ctx context.Context, f ReservationFilter) ([]ReservationRef, error)
	GetReservationByID(ctx context.Context, bookingID string) (ReservationRef, error)
	CancelReservation(ctx context.Context, bookingID string) (CancelResult, error)
	GetRestaurantProfile(ctx context.Context) (RestaurantInfo, error)
}

type CustomerDirectory interface {
	GetCustomerByPhone(ctx context.Context, phone string) (CustomerProfile, error)
}

// TranscriptSink receives call lifecycle records. Implementations must not
// retain the passed slices.
type TranscriptSink interface {
	Started(ctx context.Context, rec CallRecord) error
	Entry(ctx context.Context, sessionID string, entry TranscriptEntry) error
	Ended(ctx context.Context, rec CallRecord) error
}

// CallControl acts on the live telephony leg.
type CallControl interface {
	Transfer(ctx context.Context, callSID string, to string) error
	Hangup(ctx context.Context, callSID string) error
}

type Summarizer interface {
	Summarize(ctx context.Context, transcript []TranscriptEntry) (string, error)
}
