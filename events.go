package ripple

import (
	"encoding/json"
	"strconv"
	"time"
)

// ============================================================================
// Wire Format
// ============================================================================

// Envelope is the wire format for all inbound server events.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Command is a client-to-server command.
type Command struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	RequestID string      `json:"requestId,omitempty"`
}

// Inbound event names.
const (
	EventPresenceChanged = "presence-changed"
	EventNewMessage      = "new-message"
	EventMessageUpdated  = "message-updated"
	EventMessageDeleted  = "message-deleted"
	EventUserTyping      = "user-typing"
	EventChannel         = "channel-event"
	EventPong            = "pong"
	EventError           = "error"
)

// Outbound command types.
const (
	cmdPing           = "ping"
	cmdJoinChannels   = "join-channels"
	cmdTypingStart    = "typing-start"
	cmdTypingStop     = "typing-stop"
	cmdPresenceUpdate = "presence-update"
)

// ============================================================================
// Event Payload Types
// ============================================================================

// ServerError is the payload of an "error" event.
type ServerError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ServerError) Error() string {
	return e.Code + ": " + e.Message
}

// PongPayload is the acknowledgment of a liveness probe.
type PongPayload struct {
	RequestID string `json:"requestId"`
}

// PresenceStatus is a user's live availability status.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
	PresenceBusy    PresenceStatus = "busy"
	PresenceOffline PresenceStatus = "offline"
)

// Presence event actions.
const (
	PresenceJoin   = "join"
	PresenceLeave  = "leave"
	PresenceUpdate = "update"
)

// PresenceEvent is the payload of a "presence-changed" event.
type PresenceEvent struct {
	Action    string         `json:"action"`
	UserID    string         `json:"user_id"`
	Username  string         `json:"username"`
	Status    PresenceStatus `json:"status"`
	ChannelID string         `json:"channel_id,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

// TypingEvent is the payload of a "user-typing" event.
type TypingEvent struct {
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	IsTyping  bool   `json:"is_typing"`
}

// ============================================================================
// Canonical Message
// ============================================================================

// Reaction is a single emoji reaction on a message.
type Reaction struct {
	Emoji   string   `json:"emoji"`
	UserIDs []string `json:"userIds,omitempty"`
	Count   int      `json:"count,omitempty"`
}

// Attachment is a file attached to a message.
type Attachment struct {
	ID       string `json:"id,omitempty"`
	URL      string `json:"url"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Message is the canonical, schema-consistent representation of a chat
// message regardless of origin field naming. Messages are only ever built
// by a ChannelStream; consumers must treat them as read-only.
type Message struct {
	ID           string         `json:"id"`
	ChannelID    string         `json:"channelId"`
	Content      string         `json:"content"`
	SenderID     string         `json:"senderId"`
	SenderName   string         `json:"senderName,omitempty"`
	SenderAvatar string         `json:"senderAvatar,omitempty"`
	CreatedAt    string         `json:"createdAt,omitempty"`
	EditedAt     string         `json:"editedAt,omitempty"`
	Type         string         `json:"type,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	ThreadCount  int            `json:"threadCount,omitempty"`
	Reactions    []Reaction     `json:"reactions,omitempty"`
	Attachments  []Attachment   `json:"attachments,omitempty"`
	AgentTag     string         `json:"agentTag,omitempty"`
}

// parseEventTime parses a presence event timestamp, falling back to now.
// Servers send RFC 3339; older ones send unix seconds as a JSON number,
// which arrives here as its decimal string form.
func parseEventTime(s string) time.Time {
	if s == "" {
		return time.Now()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(n, 0)
	}
	return time.Now()
}
