package contract

import (
	"encoding/json"
	"time"
)

// TenantConfig is one restaurant account as configured at process start.
type TenantConfig struct {
	TenantID           string `json:"tenant_id" yaml:"tenant_id"`
	InboundPhoneNumber string `json:"inbound_phone_number" yaml:"inbound_phone_number"`
	APIKey             string `json:"-" yaml:"api_key"`
	ManagerPhoneNumber string `json:"manager_phone_number" yaml:"manager_phone_number"`
}

// CustomerProfile is read from the tenant backend. Empty strings mean the field is unknown.
type CustomerProfile struct {
	Phone         string `json:"phone"`
	Name          string `json:"name,omitempty"`
	Email         string `json:"email,omitempty"`
	Address       string `json:"address,omitempty"`
	NumberOfCalls int    `json:"numberOfCalls"`
}

// ReservationRef is opaque to the agent: the id is passed through and the
// description is pre-rendered by the backend for the model.
type ReservationRef struct {
	BookingID   string `json:"bookingId"`
	Description string `json:"description"`
}

type AvailabilityQuery struct {
	Date      string `json:"date"`
	Time      string `json:"time,omitempty"`
	PartySize int    `json:"partySize"`
}

type AvailabilityResult struct {
	Available   bool   `json:"available"`
	Description string `json:"description"`
}

type ReservationFilter struct {
	Phone        string `json:"phone,omitempty"`
	Email        string `json:"email,omitempty"`
	Date         string `json:"date,omitempty"`
	CustomerName string `json:"customerName,omitempty"`
}

// IsEmpty reports whether no filter is set.
func (f ReservationFilter) IsEmpty() bool {
	return f.Phone == "" && f.Email == "" && f.Date == "" && f.CustomerName == ""
}

type CancelResult struct {
	Description string `json:"description"`
}

type RestaurantInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Address     string `json:"address,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

type CallStatus string

const (
	CallActive      CallStatus = "ACTIVE"
	CallCompleted   CallStatus = "COMPLETED"
	CallFailed      CallStatus = "FAILED"
	CallTransferred CallStatus = "TRANSFERRED"
)

func (s CallStatus) IsTerminal() bool {
	return s == CallCompleted || s == CallFailed || s == CallTransferred
}

type Speaker string

const (
	SpeakerUser  Speaker = "USER"
	SpeakerAgent Speaker = "AGENT"
)

type TranscriptEntry struct {
	Speaker        Speaker   `json:"speaker"`
	Contents       string    `json:"contents"`
	WasInterrupted bool      `json:"wasInterrupted"`
	Time           time.Time `json:"time"`
}

// CallRecord is the persisted view of one call session.
type CallRecord struct {
	SessionID           string            `json:"sessionId"`
	TenantID            string            `json:"tenantId,omitempty"`
	CallSID             string            `json:"callSid,omitempty"`
	InboundPhoneNumber  string            `json:"inboundPhoneNumber,omitempty"`
	CustomerPhone       string            `json:"customerPhone,omitempty"`
	StartedAt           time.Time         `json:"startedAt"`
	EndedAt             *time.Time        `json:"endedAt,omitempty"`
	Status              CallStatus        `json:"status"`
	EscalationRequested bool              `json:"escalationRequested"`
	EndReason           string            `json:"endReason,omitempty"`
	Summary             string            `json:"summary,omitempty"`
	Transcript          []TranscriptEntry `json:"transcript,omitempty"`
}

// ToolResult is the tagged outcome of one tool invocation. Exactly one of
// Result (OK) or Kind/Message (!OK) is meaningful.
type ToolResult struct {
	Tool    string    `json:"tool"`
	OK      bool      `json:"ok"`
	Result  any       `json:"result,omitempty"`
	Kind    ErrorKind `json:"error_kind,omitempty"`
	Message string    `json:"error,omitempty"`
}

func Success(tool string, result any) ToolResult {
	return ToolResult{Tool: tool, OK: true, Result: result}
}

func Failure(tool string, kind ErrorKind, message string) ToolResult {
	return ToolResult{Tool: tool, Kind: kind, Message: message}
}

// Text renders the result as the plain string handed back to the model.
func (r ToolResult) Text() string {
	if !r.OK {
		return "Error: " + r.Message
	}
	switch v := r.Result.(type) {
	case nil:
		return "OK"
	case string:
		return v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return "OK"
		}
		return string(raw)
	}
}

type EventType string

const (
	EventSessionStarted EventType = "session.started"
	EventTranscript     EventType = "transcript"
	EventToolInvoked    EventType = "tool.invoked"
	EventSessionEnded   EventType = "session.ended"
)

// SessionEvent is streamed to observers of a live call.
type SessionEvent struct {
	Type      EventType        `json:"type"`
	SessionID string           `json:"session_id"`
	At        time.Time        `json:"at"`
	Status    CallStatus       `json:"status"`
	Entry     *TranscriptEntry `json:"entry,omitempty"`
	Tool      *ToolResult      `json:"tool,omitempty"`
}
