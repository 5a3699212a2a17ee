package backend

import (
	"context"
	"net/http"
	"net/url"

	contractx "github.com/adhityan/resto-ai-sub001/agent/contract"
)

type transcriptBatch struct {
	Entries []contractx.TranscriptEntry `json:"entries"`
}

// CreateCall registers a new call record with the tenant backend.
func (c *Client) CreateCall(ctx context.Context, rec contractx.CallRecord) error {
	rec.Transcript = nil
	return c.do(ctx, http.MethodPost, "/calls", nil, rec, nil)
}

func (c *Client) AppendTranscript(ctx context.Context, sessionID string, entries []contractx.TranscriptEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return c.do(ctx, http.MethodPost, "/calls/"+url.PathEscape(sessionID)+"/transcripts", nil, transcriptBatch{Entries: entries}, nil)
}

// FinalizeCall stores the terminal status; the transcript is sent separately.
func (c *Client) FinalizeCall(ctx context.Context, rec contractx.CallRecord) error {
	rec.Transcript = nil
	return c.do(ctx, http.MethodPatch, "/calls/"+url.PathEscape(rec.SessionID), nil, rec, nil)
}
