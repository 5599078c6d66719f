package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the frame exchanged over the websocket in both directions.
// Data is kept raw so signaling payloads pass through the relay untouched.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Client -> server payloads.

type JoinChatPayload struct {
	UserID     string `json:"userId"`
	ReceiverID string `json:"receiverId"`
}

type SendMessagePayload struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Message    string `json:"message"`
	Timestamp  string `json:"timestamp"`
}

type JoinMeetingPayload struct {
	UserID    string `json:"userId"`
	MeetingID string `json:"meetingId"`
}

// SignalPayload carries a WebRTC negotiation message. Exactly one of
// Offer, Answer or Candidate is set depending on the envelope type; the
// relay forwards it verbatim and never looks inside.
type SignalPayload struct {
	MeetingID string          `json:"meetingId"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// Server -> client payloads.

type UserJoinedPayload struct {
	UserID string `json:"userId"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

// ChatMessage is the durable record of a relayed chat message.
type ChatMessage struct {
	ID         uuid.UUID `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Body       string    `json:"message"`
	CreatedAt  time.Time `json:"timestamp"`
}

// Meeting statuses. Status transitions are driven by the HTTP API; the
// signaling layer never enforces scheduling invariants.
const (
	MeetingScheduled = "scheduled"
	MeetingCompleted = "completed"
	MeetingCancelled = "cancelled"
)

// Meeting is a scheduled call between a host and a participant. MeetingID
// is the globally unique identifier clients use to join the meeting room.
type Meeting struct {
	ID          uuid.UUID `json:"id"`
	MeetingID   string    `json:"meetingId"`
	HostID      string    `json:"host"`
	Participant string    `json:"participant"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ValidMeetingStatus reports whether s is one of the known statuses.
func ValidMeetingStatus(s string) bool {
	switch s {
	case MeetingScheduled, MeetingCompleted, MeetingCancelled:
		return true
	}
	return false
}
