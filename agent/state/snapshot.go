package state

import (
	"errors"
	"fmt"
	"time"

	contractx "github.com/adhityan/resto-ai-sub001/agent/contract"
)

var (
	ErrStateNotFound   = errors.New("call snapshot not found")
	ErrNilSnapshot     = errors.New("call snapshot is nil")
	ErrInvalidSession  = errors.New("session id is empty")
	ErrInvalidSnapshot = errors.New("call snapshot is inconsistent")
)

// Snapshot is the cross-instance view of one call. Only the instance that owns
// the live session writes it.
type Snapshot struct {
	Version   int                  `json:"version"`
	Instance  string               `json:"instance,omitempty"`
	Record    contractx.CallRecord `json:"record"`
	UpdatedAt time.Time            `json:"updated_at"`
}

func NewSnapshot(rec contractx.CallRecord, instance string, now time.Time) *Snapshot {
	return &Snapshot{
		Version:   1,
		Instance:  instance,
		Record:    rec,
		UpdatedAt: now.UTC(),
	}
}

func (s *Snapshot) Touch(now time.Time) {
	s.Version++
	s.UpdatedAt = now.UTC()
}

func (s *Snapshot) Validate() error {
	if s == nil {
		return ErrNilSnapshot
	}
	if s.Record.SessionID == "" {
		return ErrInvalidSession
	}
	switch s.Record.Status {
	case contractx.CallActive:
		if s.Record.EndedAt != nil {
			return fmt.Errorf("%w: active call has an end time", ErrInvalidSnapshot)
		}
	case contractx.CallCompleted, contractx.CallFailed, contractx.CallTransferred:
		if s.Record.EndedAt == nil {
			return fmt.Errorf("%w: %s call has no end time", ErrInvalidSnapshot, s.Record.Status)
		}
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidSnapshot, s.Record.Status)
	}
	return nil
}
