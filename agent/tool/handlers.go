package tool

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	contractx "github.com/adhityan/resto-ai-sub001/agent/contract"
)

func checkAvailability() Definition {
	return Definition{
		Name:        ToolCheckAvailability,
		Description: "Check whether the restaurant can seat a party on a given date and optionally at a given time. Use this before telling the caller that a table is free.",
		Params: []Param{
			{Name: "date", Type: schema.String, Desc: "Requested date in YYYY-MM-DD format", Required: true},
			{Name: "time", Type: schema.String, Desc: "Requested time in 24-hour HH:MM format, for example 19:30"},
			{Name: "party_size", Type: schema.Integer, Desc: "Number of guests, at least 1", Required: true},
		},
		Handler: func(ctx context.Context, sc SessionContext, args Args) Outcome {
			res, err := sc.Backend.CheckAvailability(ctx, contractx.AvailabilityQuery{
				Date:      args.String("date"),
				Time:      args.String("time"),
				PartySize: args.Int("party_size"),
			})
			if err != nil {
				return Outcome{Result: fail(ToolCheckAvailability, err)}
			}
			return Outcome{Result: contractx.Success(ToolCheckAvailability, res)}
		},
	}
}

func searchReservations() Definition {
	return Definition{
		Name:        ToolSearchReservations,
		Description: "Find existing reservations by phone, email, date or customer name. Any combination may be given. When nothing is given the caller's own phone number is used.",
		Params: []Param{
			{Name: "phone", Type: schema.String, Desc: "Phone number used for the booking"},
			{Name: "email", Type: schema.String, Desc: "Email address used for the booking"},
			{Name: "date", Type: schema.String, Desc: "Reservation date in YYYY-MM-DD format"},
			{Name: "customer_name", Type: schema.String, Desc: "Name the booking was made under"},
		},
		Handler: func(ctx context.Context, sc SessionContext, args Args) Outcome {
			filter := contractx.ReservationFilter{
				Phone:        args.String("phone"),
				Email:        args.String("email"),
				Date:         args.String("date"),
				CustomerName: args.String("customer_name"),
			}
			if filter.IsEmpty() {
				if sc.CustomerPhone == "" {
					return Outcome{Result: contractx.Failure(ToolSearchReservations, contractx.KindValidation,
						"provide at least one of phone, email, date or customer_name")}
				}
				filter.Phone = sc.CustomerPhone
			}

			refs, err := sc.Backend.SearchReservations(ctx, filter)
			if err != nil {
				return Outcome{Result: fail(ToolSearchReservations, err)}
			}
			if len(refs) == 0 {
				return Outcome{Result: contractx.Success(ToolSearchReservations, "No reservations match these details.")}
			}
			ids := make([]string, 0, len(refs))
			for _, r := range refs {
				ids = append(ids, r.BookingID)
			}
			return Outcome{Result: contractx.Success(ToolSearchReservations, refs), Bookings: ids}
		},
	}
}

func getReservation() Definition {
	return Definition{
		Name:        ToolGetReservation,
		Description: "Read the details of one reservation. Only call this once the booking has been identified, either from search_reservations or from an id the caller gave.",
		Params: []Param{
			{Name: "booking_id", Type: schema.String, Desc: "Booking id returned by search_reservations", Required: true},
		},
		Handler: func(ctx context.Context, sc SessionContext, args Args) Outcome {
			id := args.String("booking_id")
			ref, err := sc.Backend.GetReservationByID(ctx, id)
			if err != nil {
				return Outcome{Result: fail(ToolGetReservation, err)}
			}
			return Outcome{Result: contractx.Success(ToolGetReservation, ref), Bookings: []string{id}}
		},
	}
}

func cancelReservation() Definition {
	return Definition{
		Name:        ToolCancelReservation,
		Description: "Cancel a reservation. Only call this after reading the reservation back to the caller and receiving their explicit confirmation that it should be cancelled. This cannot be undone.",
		Params: []Param{
			{Name: "booking_id", Type: schema.String, Desc: "Booking id of the reservation to cancel", Required: true},
		},
		Handler: func(ctx context.Context, sc SessionContext, args Args) Outcome {
			id := args.String("booking_id")
			if sc.RequireLookup && (sc.KnownBookings == nil || !sc.KnownBookings.Has(id)) {
				return Outcome{Result: contractx.Failure(ToolCancelReservation, contractx.KindPrecondition,
					"look the reservation up with search_reservations or get_reservation and confirm it with the caller before cancelling")}
			}
			res, err := sc.Backend.CancelReservation(ctx, id)
			if err != nil {
				return Outcome{Result: fail(ToolCancelReservation, err)}
			}
			return Outcome{Result: contractx.Success(ToolCancelReservation, res.Description)}
		},
	}
}

func restaurantInfo() Definition {
	return Definition{
		Name:        ToolRestaurantInfo,
		Description: "Get the restaurant's name, description, address and phone number.",
		Handler: func(ctx context.Context, sc SessionContext, _ Args) Outcome {
			info, err := sc.Backend.GetRestaurantProfile(ctx)
			if err != nil {
				return Outcome{Result: fail(ToolRestaurantInfo, err)}
			}
			return Outcome{Result: contractx.Success(ToolRestaurantInfo, info)}
		},
	}
}

func transferToManager() Definition {
	return Definition{
		Name:        ToolTransferToManager,
		Description: "Hand the call over to the restaurant manager. Use this when the caller asks for a person or when you cannot help them. Tell the caller you are transferring them before calling this. The call ends for you once it is transferred.",
		Params: []Param{
			{Name: "reason", Type: schema.String, Desc: "Short reason for the transfer"},
		},
		Handler: func(ctx context.Context, sc SessionContext, args Args) Outcome {
			reason := args.String("reason")
			to := sc.Tenant.ManagerPhoneNumber
			if to == "" {
				return Outcome{
					Result: contractx.Failure(ToolTransferToManager, contractx.KindPrecondition,
						"no manager number is configured for this restaurant, the call could not be transferred"),
					Directive: DirectiveTransfer,
					Reason:    "transfer failed: no manager number configured",
				}
			}
			if sc.Calls != nil && sc.CallSID != "" {
				if err := sc.Calls.Transfer(ctx, sc.CallSID, to); err != nil {
					return Outcome{
						Result:    contractx.Failure(ToolTransferToManager, contractx.KindBackend, "the call could not be transferred"),
						Directive: DirectiveTransfer,
						Reason:    fmt.Sprintf("transfer failed: %v", err),
					}
				}
			}
			return Outcome{
				Result:    contractx.Success(ToolTransferToManager, map[string]string{"status": "transferring", "to": to}),
				Directive: DirectiveTransfer,
				Reason:    reason,
			}
		},
	}
}

func endCall() Definition {
	return Definition{
		Name:        ToolEndCall,
		Description: "End the call. Only call this after you have said goodbye to the caller and they have nothing else to ask.",
		Params: []Param{
			{Name: "reason", Type: schema.String, Desc: "Short reason the call is ending"},
		},
		Handler: func(ctx context.Context, sc SessionContext, args Args) Outcome {
			if sc.Calls != nil && sc.CallSID != "" {
				if err := sc.Calls.Hangup(ctx, sc.CallSID); err != nil {
					log.Warn().Err(err).Str("session_id", sc.SessionID).Msg("hangup after end_call failed")
				}
			}
			return Outcome{
				Result:    contractx.Success(ToolEndCall, "The call has ended."),
				Directive: DirectiveEndCall,
				Reason:    args.String("reason"),
			}
		},
	}
}
