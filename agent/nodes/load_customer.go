package setupnode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/adhityan/resto-ai-sub001/agent/contract"
	"github.com/adhityan/resto-ai-sub001/agent/customer"
)

const withheldGrounding = "The caller's phone number is withheld. No reservation history is available for this customer."

// LoadCustomer normalizes the caller number and builds the grounding text.
// A failed lookup never fails the call.
func LoadCustomer(ctx context.Context, in *GraphState, callingCode string) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	if in.From == "" {
		in.Customer = contractx.CustomerProfile{NumberOfCalls: 1}
		in.Grounding = withheldGrounding
		return in, nil
	}

	phone, err := customer.NormalizePhone(in.From, callingCode)
	if err != nil {
		log.Warn().Err(err).Str("session_id", in.SessionID).Msg("caller number not normalized, using it as delivered")
		phone = in.From
	}

	// Lookup logs its own failures and always returns a usable profile.
	profile, _ := customer.Lookup(ctx, in.Client, phone)
	in.Customer = profile
	in.Grounding = customer.Describe(profile)
	return in, nil
}
