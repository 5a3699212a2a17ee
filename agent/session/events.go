package session

import (
	"context"
	"time"

	contractx "github.com/adhityan/resto-ai-sub001/agent/contract"
)

const (
	sinkTimeout     = 5 * time.Second
	subscriberQueue = 64
)

// Subscribe streams session events until the session ends or cancel is
// called. Slow subscribers drop events rather than stall the call.
func (s *Session) Subscribe() (<-chan contractx.SessionEvent, func()) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	ch := make(chan contractx.SessionEvent, subscriberQueue)
	select {
	case <-s.done:
		if s.subs == nil {
			close(ch)
			return ch, func() {}
		}
	default:
	}

	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	return ch, func() {
		s.emitMu.Lock()
		defer s.emitMu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
}

// emitLocked is called with s.mu held and releases it.
func (s *Session) emitLocked(ctx context.Context, deliver func(context.Context), events ...contractx.SessionEvent) {
	s.emitMu.Lock()
	s.mu.Unlock()
	defer s.emitMu.Unlock()
	s.deliver(ctx, deliver, events...)
}

func (s *Session) emit(ctx context.Context, deliver func(context.Context), events ...contractx.SessionEvent) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	s.deliver(ctx, deliver, events...)
}

func (s *Session) deliver(ctx context.Context, deliver func(context.Context), events ...contractx.SessionEvent) {
	if deliver != nil {
		sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
		deliver(sinkCtx)
		cancel()
	}
	for _, evt := range events {
		s.publish(evt)
	}
}

// publish is called with s.emitMu held.
func (s *Session) publish(evt contractx.SessionEvent) {
	for id, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			s.logger.Debug().Int("subscriber", id).Str("event", string(evt.Type)).Msg("dropping event for slow subscriber")
		}
	}
}

// closeSubscribers is called with s.emitMu held.
func (s *Session) closeSubscribers() {
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.subs = nil
}
