// Package transcript holds the call record sinks.
package transcript

import (
	"context"
	"errors"
	"sync"

	contractx "github.com/adhityan/resto-ai-sub001/agent/contract"
)

type Sink = contractx.TranscriptSink

// Multi delivers to every sink in order and joins their errors. One failing
// sink never prevents delivery to the others.
type Multi []Sink

func (m Multi) Started(ctx context.Context, rec contractx.CallRecord) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Started(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Entry(ctx context.Context, sessionID string, entry contractx.TranscriptEntry) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Entry(ctx, sessionID, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Ended(ctx context.Context, rec contractx.CallRecord) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Ended(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Memory keeps every record in process. Used by tests and local runs.
type Memory struct {
	mu      sync.Mutex
	records map[string]*contractx.CallRecord
	order   []string
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]*contractx.CallRecord)}
}

func (m *Memory) Started(_ context.Context, rec contractx.CallRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.SessionID]; !ok {
		m.order = append(m.order, rec.SessionID)
	}
	rec.Transcript = append([]contractx.TranscriptEntry(nil), rec.Transcript...)
	m.records[rec.SessionID] = &rec
	return nil
}

func (m *Memory) Entry(_ context.Context, sessionID string, entry contractx.TranscriptEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[sessionID]
	if !ok {
		return contractx.ErrSessionNotFound
	}
	rec.Transcript = append(rec.Transcript, entry)
	return nil
}

func (m *Memory) Ended(_ context.Context, rec contractx.CallRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.records[rec.SessionID]
	if !ok {
		m.order = append(m.order, rec.SessionID)
		rec.Transcript = append([]contractx.TranscriptEntry(nil), rec.Transcript...)
		m.records[rec.SessionID] = &rec
		return nil
	}
	transcript := existing.Transcript
	*existing = rec
	existing.Transcript = transcript
	return nil
}

func (m *Memory) Get(sessionID string) (contractx.CallRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[sessionID]
	if !ok {
		return contractx.CallRecord{}, false
	}
	out := *rec
	out.Transcript = append([]contractx.TranscriptEntry(nil), rec.Transcript...)
	return out, true
}

func (m *Memory) SessionIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...)
}
