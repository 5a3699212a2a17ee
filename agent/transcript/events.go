package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	contractx "github.com/adhityan/resto-ai-sub001/agent/contract"
	"github.com/adhityan/resto-ai-sub001/pkg/publisher"
)

// EventSink publishes lifecycle events to <prefix>/calls/<session>/<event>.
type EventSink struct {
	pub    publisher.Publisher
	prefix string
	now    func() time.Time
}

func NewEventSink(pub publisher.Publisher, prefix string) *EventSink {
	return &EventSink{pub: pub, prefix: strings.Trim(prefix, "/"), now: time.Now}
}

func (e *EventSink) Topic(sessionID string, typ contractx.EventType) string {
	topic := fmt.Sprintf("calls/%s/%s", sessionID, typ)
	if e.prefix == "" {
		return topic
	}
	return e.prefix + "/" + topic
}

func (e *EventSink) Started(ctx context.Context, rec contractx.CallRecord) error {
	return e.publish(ctx, contractx.SessionEvent{
		Type:      contractx.EventSessionStarted,
		SessionID: rec.SessionID,
		At:        rec.StartedAt,
		Status:    rec.Status,
	})
}

func (e *EventSink) Entry(ctx context.Context, sessionID string, entry contractx.TranscriptEntry) error {
	return e.publish(ctx, contractx.SessionEvent{
		Type:      contractx.EventTranscript,
		SessionID: sessionID,
		At:        entry.Time,
		Status:    contractx.CallActive,
		Entry:     &entry,
	})
}

func (e *EventSink) Ended(ctx context.Context, rec contractx.CallRecord) error {
	at := e.now().UTC()
	if rec.EndedAt != nil {
		at = *rec.EndedAt
	}
	return e.publish(ctx, contractx.SessionEvent{
		Type:      contractx.EventSessionEnded,
		SessionID: rec.SessionID,
		At:        at,
		Status:    rec.Status,
	})
}

func (e *EventSink) publish(ctx context.Context, evt contractx.SessionEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", evt.Type, err)
	}
	if err := e.pub.Publish(ctx, e.Topic(evt.SessionID, evt.Type), payload); err != nil {
		return fmt.Errorf("publish %s event: %w", evt.Type, err)
	}
	return nil
}
