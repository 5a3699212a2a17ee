package setupnode

import (
	"context"
	"fmt"
	"time"

	contractx "github.com/adhityan/resto-ai-sub001/agent/contract"
	"github.com/adhityan/resto-ai-sub001/agent/session"
	"github.com/adhityan/resto-ai-sub001/agent/tool"
)

type SessionOptions struct {
	Calls      contractx.CallControl
	Catalog    *tool.Catalog
	Summarizer contractx.Summarizer
	// SinkFor composes the per-call sink around the call's own backend client.
	SinkFor func(Client) contractx.TranscriptSink

	RequireLookupBeforeCancel bool
	Now                       func() time.Time
}

func OpenSession(ctx context.Context, in *GraphState, opts SessionOptions) (GraphOutput, error) {
	if in == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	var sink contractx.TranscriptSink
	if opts.SinkFor != nil {
		sink = opts.SinkFor(in.Client)
	}

	s, err := session.New(ctx, session.Config{
		ID:                        in.SessionID,
		Tenant:                    in.Tenant,
		Backend:                   in.Client,
		Calls:                     opts.Calls,
		CallSID:                   in.CallSID,
		Customer:                  in.Customer,
		Grounding:                 in.Grounding,
		Catalog:                   opts.Catalog,
		Sink:                      sink,
		Summarizer:                opts.Summarizer,
		RequireLookupBeforeCancel: opts.RequireLookupBeforeCancel,
		Now:                       opts.Now,
	})
	if err != nil {
		return GraphOutput{}, err
	}
	return GraphOutput{Session: s}, nil
}
