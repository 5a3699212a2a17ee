package transcript

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/adhityan/resto-ai-sub001/agent/contract"
	"github.com/adhityan/resto-ai-sub001/pkg/qstash"
)

// Enqueuer is the part of the QStash client the queue sink needs.
type Enqueuer interface {
	PublishJSON(ctx context.Context, destination string, body any, opts qstash.PublishOptions) (string, error)
}

// QueueSink hands the finished call record, transcript included, to QStash
// for retried delivery to destination.
type QueueSink struct {
	queue       Enqueuer
	destination string
}

func NewQueueSink(queue Enqueuer, destination string) *QueueSink {
	return &QueueSink{queue: queue, destination: destination}
}

func (q *QueueSink) Started(context.Context, contractx.CallRecord) error { return nil }

func (q *QueueSink) Entry(context.Context, string, contractx.TranscriptEntry) error { return nil }

func (q *QueueSink) Ended(ctx context.Context, rec contractx.CallRecord) error {
	id, err := q.queue.PublishJSON(ctx, q.destination, rec, qstash.PublishOptions{
		DeduplicationID: rec.SessionID,
		Headers:         map[string]string{"X-Tenant-Id": rec.TenantID},
	})
	if err != nil {
		return fmt.Errorf("enqueue call record: %w", err)
	}
	log.Debug().Str("session_id", rec.SessionID).Str("message_id", id).Msg("call record enqueued")
	return nil
}
