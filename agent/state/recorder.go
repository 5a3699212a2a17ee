package state

import (
	"context"
	"sync"
	"time"

	contractx "github.com/adhityan/resto-ai-sub001/agent/contract"
)

// Recorder mirrors session lifecycle into a Store. Transcript entries are not
// stored; the snapshot carries status and counters only.
type Recorder struct {
	store    Store
	instance string
	now      func() time.Time

	mu       sync.Mutex
	versions map[string]*Snapshot
}

func NewRecorder(store Store, instance string) *Recorder {
	return &Recorder{
		store:    store,
		instance: instance,
		now:      time.Now,
		versions: make(map[string]*Snapshot),
	}
}

func (r *Recorder) Started(ctx context.Context, rec contractx.CallRecord) error {
	rec.Transcript = nil
	snap := NewSnapshot(rec, r.instance, r.now())

	r.mu.Lock()
	if rec.Status.IsTerminal() {
		delete(r.versions, rec.SessionID)
	} else {
		r.versions[rec.SessionID] = snap
	}
	r.mu.Unlock()

	return r.store.Save(ctx, snap)
}

func (r *Recorder) Entry(context.Context, string, contractx.TranscriptEntry) error {
	return nil
}

func (r *Recorder) Ended(ctx context.Context, rec contractx.CallRecord) error {
	rec.Transcript = nil

	r.mu.Lock()
	snap, ok := r.versions[rec.SessionID]
	delete(r.versions, rec.SessionID)
	r.mu.Unlock()

	if !ok {
		snap = NewSnapshot(rec, r.instance, r.now())
	} else {
		snap.Record = rec
		snap.Touch(r.now())
	}
	return r.store.Save(ctx, snap)
}
