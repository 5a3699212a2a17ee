package setupnode

import (
	"context"
	"fmt"

	contractx "github.com/adhityan/resto-ai-sub001/agent/contract"
	"github.com/adhityan/resto-ai-sub001/agent/transcript"
)

// Client is everything one call needs from its tenant's backend.
type Client interface {
	contractx.ReservationBackend
	contractx.CustomerDirectory
	transcript.CallStore
}

// ClientFactory must return a fresh client per call; the restaurant profile
// cache lives on it.
type ClientFactory func(contractx.TenantConfig) (Client, error)

func BuildClient(
	ctx context.Context,
	in *GraphState,
	factory ClientFactory,
	sink contractx.TranscriptSink,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	client, err := factory(in.Tenant)
	if err != nil {
		RecordFailure(ctx, in, sink, ReasonClientFailure)
		return nil, err
	}
	in.Client = client
	return in, nil
}
