// Package receptionist opens call sessions and keeps the live ones addressable
// by id for the lifetime of the process.
package receptionist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/adhityan/resto-ai-sub001/agent/contract"
	nodex "github.com/adhityan/resto-ai-sub001/agent/nodes"
	"github.com/adhityan/resto-ai-sub001/agent/session"
	"github.com/adhityan/resto-ai-sub001/agent/tool"
	"github.com/adhityan/resto-ai-sub001/agent/transcript"
)

const (
	defaultRetention     = 5 * time.Minute
	defaultEvictInterval = time.Minute
	defaultCallingCode   = "33"
)

type Config struct {
	Tenants nodex.TenantResolver
	Clients nodex.ClientFactory
	Calls   contractx.CallControl
	Catalog *tool.Catalog
	// Sinks are shared by every call and also receive calls that fail before
	// a tenant is known.
	Sinks      []contractx.TranscriptSink
	Summarizer contractx.Summarizer

	CallingCode               string
	RequireLookupBeforeCancel bool
	TranscriptBatchSize       int
	// Retention keeps ended sessions readable in memory before eviction.
	Retention     time.Duration
	EvictInterval time.Duration
}

type Receptionist struct {
	tenants     nodex.TenantResolver
	clients     nodex.ClientFactory
	calls       contractx.CallControl
	catalog     *tool.Catalog
	shared      contractx.TranscriptSink
	summarizer  contractx.Summarizer
	callingCode string
	batchSize   int
	retention   time.Duration

	requireLookup bool

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	mu       sync.RWMutex
	sessions map[string]*session.Session
	byCall   map[string]string
	closed   bool

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	newID func() string
	now   func() time.Time
}

func New(cfg Config) (*Receptionist, error) {
	if cfg.Tenants == nil {
		return nil, errors.New("tenant registry is required")
	}
	if cfg.Clients == nil {
		return nil, errors.New("backend client factory is required")
	}
	if cfg.Catalog == nil {
		cfg.Catalog = tool.Default()
	}
	callingCode := strings.TrimPrefix(strings.TrimSpace(cfg.CallingCode), "+")
	if callingCode == "" {
		callingCode = defaultCallingCode
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = defaultRetention
	}
	interval := cfg.EvictInterval
	if interval <= 0 {
		interval = defaultEvictInterval
	}

	r := &Receptionist{
		tenants:       cfg.Tenants,
		clients:       cfg.Clients,
		calls:         cfg.Calls,
		catalog:       cfg.Catalog,
		shared:        transcript.Multi(cfg.Sinks),
		summarizer:    cfg.Summarizer,
		callingCode:   callingCode,
		requireLookup: cfg.RequireLookupBeforeCancel,
		batchSize:     cfg.TranscriptBatchSize,
		retention:     retention,
		sessions:      make(map[string]*session.Session),
		byCall:        make(map[string]string),
		stop:          make(chan struct{}),
		newID:         uuid.NewString,
		now:           time.Now,
	}

	graphRunner, err := r.compileSetupGraph(context.Background())
	if err != nil {
		return nil, err
	}
	r.graphRunner = graphRunner

	r.wg.Add(1)
	go r.evictLoop(interval)
	return r, nil
}

// StartCall runs call setup and registers the resulting ACTIVE session.
// An unroutable call returns contract.ErrTenantNotFound after it has been
// recorded as FAILED.
func (r *Receptionist) StartCall(ctx context.Context, in nodex.GraphInput) (*session.Session, error) {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("%w: receptionist is shutting down", contractx.ErrSessionClosed)
	}

	out, err := r.graphRunner.Invoke(ctx, in)
	if err != nil {
		log.Error().Err(err).Str("to", in.To).Str("call_sid", in.CallSID).Msg("call setup failed")
		return nil, err
	}
	s := out.Session

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		s.Disconnect(ctx)
		return nil, fmt.Errorf("%w: receptionist is shutting down", contractx.ErrSessionClosed)
	}
	r.sessions[s.ID()] = s
	if sid := s.Snapshot().CallSID; sid != "" {
		r.byCall[sid] = s.ID()
	}
	r.mu.Unlock()
	return s, nil
}

func (r *Receptionist) Get(sessionID string) (*session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", contractx.ErrSessionNotFound, sessionID)
	}
	return s, nil
}

func (r *Receptionist) GetByCallSID(callSID string) (*session.Session, error) {
	r.mu.RLock()
	id, ok := r.byCall[callSID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: call %s", contractx.ErrSessionNotFound, callSID)
	}
	return r.Get(id)
}

// Disconnect reports that the caller's leg went away.
func (r *Receptionist) Disconnect(ctx context.Context, sessionID string) (contractx.CallRecord, error) {
	s, err := r.Get(sessionID)
	if err != nil {
		return contractx.CallRecord{}, err
	}
	s.Disconnect(ctx)
	return s.Snapshot(), nil
}

// Active counts sessions that have not reached a terminal state.
func (r *Receptionist) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.sessions {
		if !s.Status().IsTerminal() {
			n++
		}
	}
	return n
}

// Close fails every live call and stops eviction. It is safe to call twice.
func (r *Receptionist) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	live := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		live = append(live, s)
	}
	r.mu.Unlock()

	for _, s := range live {
		if err := s.Fail(ctx, session.ReasonShutdown); err == nil {
			log.Warn().Str("session_id", s.ID()).Msg("call failed on shutdown")
		}
	}

	r.stopOnce.Do(func() { close(r.stop) })
	r.wg.Wait()
	return nil
}

func (r *Receptionist) sessionOptions() nodex.SessionOptions {
	return nodex.SessionOptions{
		Calls:                     r.calls,
		Catalog:                   r.catalog,
		Summarizer:                r.summarizer,
		SinkFor:                   r.sinkFor,
		RequireLookupBeforeCancel: r.requireLookup,
		Now:                       r.now,
	}
}

// sinkFor persists the call through its own tenant backend first, then the
// shared sinks.
func (r *Receptionist) sinkFor(client nodex.Client) contractx.TranscriptSink {
	if client == nil {
		return r.shared
	}
	return transcript.Multi{transcript.NewBackendSink(client, r.batchSize), r.shared}
}

func (r *Receptionist) evictLoop(interval time.Duration) {
	defer r.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			if n := r.evict(); n > 0 {
				log.Debug().Int("evicted", n).Msg("evicted ended call sessions")
			}
		}
	}
}

func (r *Receptionist) evict() int {
	cutoff := r.now().Add(-r.retention)

	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, s := range r.sessions {
		rec := s.Snapshot()
		if rec.EndedAt == nil || rec.EndedAt.After(cutoff) {
			continue
		}
		delete(r.sessions, id)
		if rec.CallSID != "" {
			delete(r.byCall, rec.CallSID)
		}
		n++
	}
	return n
}
