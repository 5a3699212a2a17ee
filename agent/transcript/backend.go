package transcript

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	contractx "github.com/adhityan/resto-ai-sub001/agent/contract"
)

const defaultBatchSize = 20

// CallStore is the tenant backend's call-record surface.
type CallStore interface {
	CreateCall(ctx context.Context, rec contractx.CallRecord) error
	AppendTranscript(ctx context.Context, sessionID string, entries []contractx.TranscriptEntry) error
	FinalizeCall(ctx context.Context, rec contractx.CallRecord) error
}

// BackendSink persists one call through its tenant's backend. Entries are
// buffered and sent in batches; whatever is left is flushed before the call
// is finalized.
type BackendSink struct {
	store     CallStore
	batchSize int

	mu      sync.Mutex
	pending []contractx.TranscriptEntry
}

func NewBackendSink(store CallStore, batchSize int) *BackendSink {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &BackendSink{store: store, batchSize: batchSize}
}

func (b *BackendSink) Started(ctx context.Context, rec contractx.CallRecord) error {
	return b.store.CreateCall(ctx, rec)
}

func (b *BackendSink) Entry(ctx context.Context, sessionID string, entry contractx.TranscriptEntry) error {
	b.mu.Lock()
	b.pending = append(b.pending, entry)
	if len(b.pending) < b.batchSize {
		b.mu.Unlock()
		return nil
	}
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()

	if err := b.store.AppendTranscript(ctx, sessionID, batch); err != nil {
		b.requeue(batch)
		return err
	}
	return nil
}

func (b *BackendSink) Ended(ctx context.Context, rec contractx.CallRecord) error {
	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()

	// The terminal status is stored even when the last batch is lost.
	appendErr := b.store.AppendTranscript(ctx, rec.SessionID, batch)
	if appendErr != nil {
		appendErr = fmt.Errorf("flush transcript: %w", appendErr)
		log.Warn().Err(appendErr).
			Str("session_id", rec.SessionID).
			Int("dropped_entries", len(batch)).
			Msg("final transcript batch not delivered")
	}
	finalizeErr := b.store.FinalizeCall(ctx, rec)
	if finalizeErr != nil {
		finalizeErr = fmt.Errorf("finalize call: %w", finalizeErr)
	}
	return errors.Join(appendErr, finalizeErr)
}

func (b *BackendSink) requeue(batch []contractx.TranscriptEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(batch, b.pending...)
}
