package setupnode

import (
	"context"
	"fmt"
	"time"

	contractx "github.com/adhityan/resto-ai-sub001/agent/contract"
	"github.com/adhityan/resto-ai-sub001/agent/session"
)

const (
	ReasonNoTenant      = "no tenant configured for the inbound number"
	ReasonClientFailure = "reservation backend client could not be built"
)

type TenantResolver interface {
	Resolve(phoneNumber string) (contractx.TenantConfig, error)
}

// ResolveTenant matches the dialled number against the registry. An unknown
// number is recorded as a FAILED call before the error is returned.
func ResolveTenant(
	ctx context.Context,
	in *GraphState,
	tenants TenantResolver,
	sink contractx.TranscriptSink,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	t, err := tenants.Resolve(in.To)
	if err != nil {
		RecordFailure(ctx, in, sink, ReasonNoTenant)
		return nil, err
	}
	in.Tenant = t
	return in, nil
}

// RecordFailure reports a call that never reached ACTIVE.
func RecordFailure(ctx context.Context, in *GraphState, sink contractx.TranscriptSink, reason string) contractx.CallRecord {
	tenant := in.Tenant
	if tenant.InboundPhoneNumber == "" {
		tenant.InboundPhoneNumber = in.To
	}
	now := in.Now
	return session.NewFailed(ctx, session.Config{
		ID:       in.SessionID,
		Tenant:   tenant,
		CallSID:  in.CallSID,
		Customer: contractx.CustomerProfile{Phone: in.From},
		Sink:     sink,
		Now:      func() time.Time { return now },
	}, reason)
}
