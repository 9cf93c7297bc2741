package ripple

import (
	"sync"
	"testing"
	"time"
)

type typingRecorder struct {
	mu     sync.Mutex
	events []struct {
		userID string
		typing bool
	}
}

func (r *typingRecorder) notify(userID string, typing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, struct {
		userID string
		typing bool
	}{userID, typing})
}

func (r *typingRecorder) snapshot() []struct {
	userID string
	typing bool
} {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]struct {
		userID string
		typing bool
	}, len(r.events))
	copy(out, r.events)
	return out
}

func newTestTracker(channelID string) (*TypingTracker, *typingRecorder) {
	rec := &typingRecorder{}
	tracker := NewTypingTracker(channelID, rec.notify)
	tracker.expiry = 40 * time.Millisecond
	return tracker, rec
}

func TestTypingTrackerHandle(t *testing.T) {
	t.Run("typing notifies immediately and expires once", func(t *testing.T) {
		tracker, rec := newTestTracker("c1")
		defer tracker.Close()

		tracker.Handle(TypingEvent{ChannelID: "c1", UserID: "u1", IsTyping: true})

		time.Sleep(120 * time.Millisecond)

		events := rec.snapshot()
		if len(events) != 2 {
			t.Fatalf("expected 2 notifications, got %d: %v", len(events), events)
		}
		if !events[0].typing || events[1].typing {
			t.Errorf("expected typing then expiry, got %v", events)
		}
	})

	t.Run("explicit stop cancels the expiry timer", func(t *testing.T) {
		tracker, rec := newTestTracker("c1")
		defer tracker.Close()

		tracker.Handle(TypingEvent{ChannelID: "c1", UserID: "u1", IsTyping: true})
		tracker.Handle(TypingEvent{ChannelID: "c1", UserID: "u1", IsTyping: false})

		time.Sleep(120 * time.Millisecond)

		events := rec.snapshot()
		if len(events) != 2 {
			t.Fatalf("expected exactly 2 notifications, got %d: %v", len(events), events)
		}
		if events[1].typing {
			t.Error("expected final notification to be stop")
		}
	})

	t.Run("fresh typing event replaces the pending timer", func(t *testing.T) {
		tracker, rec := newTestTracker("c1")
		defer tracker.Close()

		tracker.Handle(TypingEvent{ChannelID: "c1", UserID: "u1", IsTyping: true})
		time.Sleep(25 * time.Millisecond)
		tracker.Handle(TypingEvent{ChannelID: "c1", UserID: "u1", IsTyping: true})
		time.Sleep(25 * time.Millisecond)

		// The first timer would have fired by now if it were still pending.
		for _, e := range rec.snapshot() {
			if !e.typing {
				t.Fatal("expiry fired despite the refreshed timer")
			}
		}

		time.Sleep(80 * time.Millisecond)

		events := rec.snapshot()
		if n := len(events); n != 3 {
			t.Fatalf("expected 3 notifications, got %d: %v", n, events)
		}
		if events[2].typing {
			t.Error("expected final notification to be expiry")
		}
	})

	t.Run("users are tracked independently", func(t *testing.T) {
		tracker, rec := newTestTracker("c1")
		defer tracker.Close()

		tracker.Handle(TypingEvent{ChannelID: "c1", UserID: "u1", IsTyping: true})
		tracker.Handle(TypingEvent{ChannelID: "c1", UserID: "u2", IsTyping: true})
		tracker.Handle(TypingEvent{ChannelID: "c1", UserID: "u1", IsTyping: false})

		time.Sleep(120 * time.Millisecond)

		stops := map[string]int{}
		for _, e := range rec.snapshot() {
			if !e.typing {
				stops[e.userID]++
			}
		}
		if stops["u1"] != 1 || stops["u2"] != 1 {
			t.Errorf("expected one stop per user, got %v", stops)
		}
	})

	t.Run("events for other channels are ignored", func(t *testing.T) {
		tracker, rec := newTestTracker("c1")
		defer tracker.Close()

		tracker.Handle(TypingEvent{ChannelID: "c2", UserID: "u1", IsTyping: true})

		if len(rec.snapshot()) != 0 {
			t.Error("expected no notifications for other channel")
		}
	})

	t.Run("events without user id are ignored", func(t *testing.T) {
		tracker, rec := newTestTracker("c1")
		defer tracker.Close()

		tracker.Handle(TypingEvent{ChannelID: "c1", IsTyping: true})

		if len(rec.snapshot()) != 0 {
			t.Error("expected no notifications for empty user")
		}
	})
}

func TestTypingTrackerClose(t *testing.T) {
	t.Run("close cancels pending expiries", func(t *testing.T) {
		tracker, rec := newTestTracker("c1")

		tracker.Handle(TypingEvent{ChannelID: "c1", UserID: "u1", IsTyping: true})
		tracker.Close()

		time.Sleep(120 * time.Millisecond)

		events := rec.snapshot()
		if len(events) != 1 {
			t.Fatalf("expected only the initial notification, got %v", events)
		}
	})

	t.Run("events after close are ignored", func(t *testing.T) {
		tracker, rec := newTestTracker("c1")
		tracker.Close()

		tracker.Handle(TypingEvent{ChannelID: "c1", UserID: "u1", IsTyping: true})

		if len(rec.snapshot()) != 0 {
			t.Error("expected no notifications after close")
		}
	})
}

func TestTypingTrackerSetChannel(t *testing.T) {
	tracker, rec := newTestTracker("c1")
	defer tracker.Close()

	tracker.Handle(TypingEvent{ChannelID: "c1", UserID: "u1", IsTyping: true})
	tracker.SetChannel("c2")

	time.Sleep(120 * time.Millisecond)

	events := rec.snapshot()
	if len(events) != 1 {
		t.Fatalf("expected pending expiry to be cancelled, got %v", events)
	}

	tracker.Handle(TypingEvent{ChannelID: "c2", UserID: "u1", IsTyping: true})
	if n := len(rec.snapshot()); n != 2 {
		t.Errorf("expected events for the new channel to flow, got %d", n)
	}
}
