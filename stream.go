package ripple

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// ============================================================================
// Message Stream Normalizer
// ============================================================================

// Message event actions after normalization.
const (
	actionCreated = "created"
	actionUpdated = "updated"
	actionDeleted = "deleted"
)

// rawEvent is a decoded message event before normalization. Upstream
// producers do not share a schema, so every logical attribute is resolved by
// trying an ordered list of candidate field names, first non-empty wins.
type rawEvent map[string]any

func (r rawEvent) firstString(keys ...string) string {
	for _, k := range keys {
		if s, ok := r[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func (r rawEvent) firstInt(keys ...string) int {
	for _, k := range keys {
		switch v := r[k].(type) {
		case float64:
			return int(v)
		case int:
			return v
		}
	}
	return 0
}

func (r rawEvent) firstMap(keys ...string) map[string]any {
	for _, k := range keys {
		if m, ok := r[k].(map[string]any); ok && len(m) > 0 {
			return m
		}
	}
	return nil
}

func (r rawEvent) firstSlice(keys ...string) []any {
	for _, k := range keys {
		if s, ok := r[k].([]any); ok && len(s) > 0 {
			return s
		}
	}
	return nil
}

// normalizeAction maps the raw action discriminator onto the canonical
// action set. An event with no recognizable action is treated as created
// for backward compatibility; the fallback lets delete/update event names
// keep working when their payloads omit the discriminator.
func normalizeAction(raw rawEvent, fallback string) string {
	switch raw.firstString("action", "event", "eventType") {
	case "created", "new":
		return actionCreated
	case "updated", "edited":
		return actionUpdated
	case "deleted":
		return actionDeleted
	}
	if fallback != "" {
		return fallback
	}
	return actionCreated
}

// normalizeMessage builds a canonical message from a raw event.
func normalizeMessage(raw rawEvent) *Message {
	msg := &Message{
		ID:           raw.firstString("message_id", "id", "messageId"),
		ChannelID:    raw.firstString("channel_id", "channelId", "conversation_id", "conversationId"),
		Content:      raw.firstString("content", "body", "text", "message"),
		SenderID:     raw.firstString("user_id", "sender_id", "senderId"),
		SenderName:   raw.firstString("username", "sender_name", "senderName", "display_name", "displayName"),
		SenderAvatar: raw.firstString("avatar_url", "avatarUrl", "sender_avatar", "senderAvatar"),
		CreatedAt:    raw.firstString("created_at", "createdAt", "timestamp"),
		EditedAt:     raw.firstString("edited_at", "editedAt", "updated_at", "updatedAt"),
		Type:         raw.firstString("message_type", "type"),
		Metadata:     raw.firstMap("metadata", "meta"),
		ThreadCount:  raw.firstInt("thread_count", "threadCount", "reply_count", "replyCount"),
		AgentTag:     raw.firstString("agent", "agent_tag", "agentTag"),
	}
	if msg.Type == "" {
		msg.Type = "text"
	}
	for _, entry := range raw.firstSlice("reactions") {
		b, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		var reaction Reaction
		if json.Unmarshal(b, &reaction) == nil {
			msg.Reactions = append(msg.Reactions, reaction)
		}
	}
	for _, entry := range raw.firstSlice("attachments", "files") {
		b, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		var att Attachment
		if json.Unmarshal(b, &att) == nil {
			msg.Attachments = append(msg.Attachments, att)
		}
	}
	return msg
}

// ============================================================================
// Deduplication Window
// ============================================================================

const dedupCapacity = 100

// dedupWindow is a bounded set of recently seen message identities. When
// the capacity is exceeded the oldest half is evicted in one sweep.
type dedupWindow struct {
	capacity int
	seen     map[string]struct{}
	order    []string
}

func newDedupWindow(capacity int) *dedupWindow {
	if capacity <= 0 {
		capacity = dedupCapacity
	}
	return &dedupWindow{
		capacity: capacity,
		seen:     make(map[string]struct{}),
	}
}

// remember records an identity, reporting false when it was already present.
func (w *dedupWindow) remember(id string) bool {
	if _, dup := w.seen[id]; dup {
		return false
	}
	w.seen[id] = struct{}{}
	w.order = append(w.order, id)
	if len(w.order) > w.capacity {
		drop := len(w.order) / 2
		for _, old := range w.order[:drop] {
			delete(w.seen, old)
		}
		w.order = append([]string(nil), w.order[drop:]...)
	}
	return true
}

func (w *dedupWindow) reset() {
	w.seen = make(map[string]struct{})
	w.order = nil
}

func (w *dedupWindow) len() int {
	return len(w.order)
}

// ============================================================================
// Channel Stream
// ============================================================================

// StreamHandlers are the per-channel message consumers.
type StreamHandlers struct {
	OnNew     func(msg *Message)
	OnUpdated func(msg *Message)
	OnDeleted func(messageID string)
}

// ChannelStream normalizes raw message events for one subscribed channel.
// Events for other channels are dropped, created events are deduplicated
// against a bounded window of recent identities, updated events are always
// delivered, and deleted events deliver only the identity.
type ChannelStream struct {
	mu        sync.Mutex
	channelID string
	window    *dedupWindow
	handlers  StreamHandlers
	logger    *slog.Logger
}

// NewChannelStream creates a stream subscribed to the given channel.
func NewChannelStream(channelID string, handlers StreamHandlers) *ChannelStream {
	return &ChannelStream{
		channelID: channelID,
		window:    newDedupWindow(dedupCapacity),
		handlers:  handlers,
		logger:    slog.Default().With("component", "stream", "channel_id", channelID),
	}
}

// Channel returns the currently subscribed channel.
func (s *ChannelStream) Channel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channelID
}

// SetChannel switches the subscription to another channel and resets the
// dedup window, so identities seen under the old subscription may be
// delivered again under the new one.
func (s *ChannelStream) SetChannel(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if channelID == s.channelID {
		return
	}
	s.channelID = channelID
	s.window.reset()
	s.logger = slog.Default().With("component", "stream", "channel_id", channelID)
}

// Reset clears the dedup window without changing the subscription.
func (s *ChannelStream) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window.reset()
}

// Ingest consumes one raw message event. fallbackAction applies when the
// payload carries no recognizable action discriminator; pass "" for the
// created default.
func (s *ChannelStream) Ingest(payload json.RawMessage, fallbackAction string) {
	var raw rawEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		s.logger.Debug("dropping undecodable message event", "error", err)
		return
	}

	action := normalizeAction(raw, fallbackAction)
	msg := normalizeMessage(raw)

	s.mu.Lock()
	if msg.ChannelID != s.channelID {
		s.mu.Unlock()
		s.logger.Debug("dropping message event for other channel", "channel_id", msg.ChannelID)
		return
	}
	if msg.ID == "" {
		s.mu.Unlock()
		s.logger.Debug("dropping message event without identity", "action", action)
		return
	}

	switch action {
	case actionCreated:
		if !s.window.remember(msg.ID) {
			s.mu.Unlock()
			s.logger.Debug("dropping duplicate message", "message_id", msg.ID)
			return
		}
		handler := s.handlers.OnNew
		s.mu.Unlock()
		if handler != nil {
			handler(msg)
		}

	case actionUpdated:
		// No dedup check: edits to an already-seen message must go through.
		handler := s.handlers.OnUpdated
		s.mu.Unlock()
		if handler != nil {
			handler(msg)
		}

	case actionDeleted:
		handler := s.handlers.OnDeleted
		s.mu.Unlock()
		if handler != nil {
			handler(msg.ID)
		}

	default:
		s.mu.Unlock()
	}
}
