package setupnode

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/adhityan/resto-ai-sub001/agent/contract"
	"github.com/adhityan/resto-ai-sub001/agent/session"
)

type GraphInput struct {
	// To is the dialled restaurant number exactly as the telephony layer
	// delivered it.
	To      string
	From    string
	CallSID string
}

type GraphOutput struct {
	Session *session.Session
}

type GraphState struct {
	SessionID string
	To        string
	From      string
	CallSID   string
	Now       time.Time

	Tenant    contractx.TenantConfig
	Client    Client
	Customer  contractx.CustomerProfile
	Grounding string
}

func ValidateCall(in GraphInput, newID func() string, nowFn func() time.Time) (*GraphState, error) {
	if strings.TrimSpace(in.To) == "" {
		return nil, fmt.Errorf("%w: inbound number is empty", contractx.ErrValidation)
	}

	return &GraphState{
		SessionID: newID(),
		To:        in.To,
		From:      strings.TrimSpace(in.From),
		CallSID:   strings.TrimSpace(in.CallSID),
		Now:       nowFn().UTC(),
	}, nil
}
