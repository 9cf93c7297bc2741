package ripple

import (
	"sync"
	"time"
)

// ============================================================================
// Typing Indicator Tracker
// ============================================================================

// DefaultTypingExpiry is how long a typing indicator stays live without a
// follow-up event before it is expired automatically.
const DefaultTypingExpiry = 3 * time.Second

// TypingTracker tracks per-user typing state for one subscribed channel.
// There is at most one live expiry timer per user; a fresh typing event
// cancels and replaces any existing timer. Close cancels everything so no
// notification fires after the subscription is torn down.
type TypingTracker struct {
	mu        sync.Mutex
	channelID string
	expiry    time.Duration
	timers    map[string]*time.Timer
	seqs      map[string]uint64
	notify    func(userID string, typing bool)
	closed    bool
}

// NewTypingTracker creates a tracker for the given channel. notify is
// invoked with typing=true on a typing event and typing=false when the
// user stops or the indicator expires.
func NewTypingTracker(channelID string, notify func(userID string, typing bool)) *TypingTracker {
	return &TypingTracker{
		channelID: channelID,
		expiry:    DefaultTypingExpiry,
		timers:    make(map[string]*time.Timer),
		seqs:      make(map[string]uint64),
		notify:    notify,
	}
}

// SetChannel switches the tracker to another channel, cancelling all timers
// for the previous one.
func (t *TypingTracker) SetChannel(channelID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if channelID == t.channelID || t.closed {
		return
	}
	t.channelID = channelID
	t.cancelAllLocked()
}

// Handle consumes one typing event. Events scoped to a channel other than
// the tracked one are ignored.
func (t *TypingTracker) Handle(evt TypingEvent) {
	if evt.UserID == "" {
		return
	}

	t.mu.Lock()
	if t.closed || evt.ChannelID != t.channelID {
		t.mu.Unlock()
		return
	}

	if timer, ok := t.timers[evt.UserID]; ok {
		timer.Stop()
		delete(t.timers, evt.UserID)
	}
	// The sequence number makes a stale timer callback that lost the race
	// against Stop a no-op.
	t.seqs[evt.UserID]++

	if evt.IsTyping {
		seq := t.seqs[evt.UserID]
		user := evt.UserID
		t.timers[user] = time.AfterFunc(t.expiry, func() { t.expire(user, seq) })
		t.mu.Unlock()
		t.notify(user, true)
		return
	}

	t.mu.Unlock()
	t.notify(evt.UserID, false)
}

func (t *TypingTracker) expire(userID string, seq uint64) {
	t.mu.Lock()
	if t.closed || t.seqs[userID] != seq {
		t.mu.Unlock()
		return
	}
	delete(t.timers, userID)
	t.mu.Unlock()
	t.notify(userID, false)
}

// Close cancels all expiry timers. The tracker ignores further events.
func (t *TypingTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	t.cancelAllLocked()
}

func (t *TypingTracker) cancelAllLocked() {
	for user, timer := range t.timers {
		timer.Stop()
		delete(t.timers, user)
		t.seqs[user]++
	}
}
