package customer

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/adhityan/resto-ai-sub001/agent/backend"
	contractx "github.com/adhityan/resto-ai-sub001/agent/contract"
)

// Lookup always returns a usable profile. An unknown caller is a first-time
// caller; any other backend failure is returned alongside the same fallback so
// the call can proceed without history.
func Lookup(ctx context.Context, dir contractx.CustomerDirectory, phone string) (contractx.CustomerProfile, error) {
	fallback := contractx.CustomerProfile{Phone: phone, NumberOfCalls: 1}
	if dir == nil || phone == "" {
		return fallback, nil
	}

	profile, err := dir.GetCustomerByPhone(ctx, phone)
	if err != nil {
		if backend.IsNotFound(err) {
			return fallback, nil
		}
		log.Warn().Err(err).Msg("customer lookup failed, continuing without history")
		return fallback, err
	}
	if profile.Phone == "" {
		profile.Phone = phone
	}
	if profile.NumberOfCalls < 1 {
		profile.NumberOfCalls = 1
	}
	return profile, nil
}
