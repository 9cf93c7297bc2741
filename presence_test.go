package ripple

import (
	"testing"
	"time"
)

func TestPresenceSetApply(t *testing.T) {
	t.Run("join adds a record", func(t *testing.T) {
		p := NewPresenceSet()

		p.Apply(PresenceEvent{Action: PresenceJoin, UserID: "u1", Username: "alice", Status: PresenceOnline})

		rec, ok := p.Get("u1")
		if !ok {
			t.Fatal("expected record for u1")
		}
		if rec.Username != "alice" || rec.Status != PresenceOnline {
			t.Errorf("unexpected record: %+v", rec)
		}
		if p.OnlineCount() != 1 {
			t.Errorf("expected 1 online, got %d", p.OnlineCount())
		}
	})

	t.Run("join without status defaults to online", func(t *testing.T) {
		p := NewPresenceSet()

		p.Apply(PresenceEvent{Action: PresenceJoin, UserID: "u1"})

		rec, _ := p.Get("u1")
		if rec.Status != PresenceOnline {
			t.Errorf("expected online, got %s", rec.Status)
		}
	})

	t.Run("leave removes the record entirely", func(t *testing.T) {
		p := NewPresenceSet()

		p.Apply(PresenceEvent{Action: PresenceJoin, UserID: "u1"})
		p.Apply(PresenceEvent{Action: PresenceLeave, UserID: "u1"})

		if _, ok := p.Get("u1"); ok {
			t.Error("expected u1 to be gone after leave")
		}
		if p.Len() != 0 {
			t.Errorf("expected empty set, got %d records", p.Len())
		}
	})

	t.Run("update merges into an existing record", func(t *testing.T) {
		p := NewPresenceSet()

		p.Apply(PresenceEvent{Action: PresenceJoin, UserID: "u1", Username: "alice"})
		p.Apply(PresenceEvent{Action: PresenceUpdate, UserID: "u1", Status: PresenceAway})

		rec, _ := p.Get("u1")
		if rec.Status != PresenceAway {
			t.Errorf("expected away, got %s", rec.Status)
		}
		if rec.Username != "alice" {
			t.Errorf("update without username must keep alice, got %q", rec.Username)
		}
	})

	t.Run("update without prior join is dropped", func(t *testing.T) {
		p := NewPresenceSet()

		p.Apply(PresenceEvent{Action: PresenceUpdate, UserID: "ghost", Status: PresenceOnline})

		if _, ok := p.Get("ghost"); ok {
			t.Error("update must not create a record")
		}
		if p.OnlineCount() != 0 {
			t.Errorf("expected 0 online, got %d", p.OnlineCount())
		}
	})

	t.Run("empty user id is dropped", func(t *testing.T) {
		p := NewPresenceSet()

		p.Apply(PresenceEvent{Action: PresenceJoin, Username: "nobody"})

		if p.Len() != 0 {
			t.Errorf("expected empty set, got %d records", p.Len())
		}
	})

	t.Run("unknown action is dropped", func(t *testing.T) {
		p := NewPresenceSet()

		p.Apply(PresenceEvent{Action: "teleport", UserID: "u1"})

		if p.Len() != 0 {
			t.Errorf("expected empty set, got %d records", p.Len())
		}
	})

	t.Run("timestamp parses RFC 3339 and unix seconds", func(t *testing.T) {
		p := NewPresenceSet()

		p.Apply(PresenceEvent{Action: PresenceJoin, UserID: "u1", Timestamp: "2025-06-01T12:00:00Z"})
		rec, _ := p.Get("u1")
		if want := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC); !rec.LastSeen.Equal(want) {
			t.Errorf("expected %s, got %s", want, rec.LastSeen)
		}

		p.Apply(PresenceEvent{Action: PresenceJoin, UserID: "u2", Timestamp: "1748779200"})
		rec, _ = p.Get("u2")
		if !rec.LastSeen.Equal(time.Unix(1748779200, 0)) {
			t.Errorf("expected unix seconds parse, got %s", rec.LastSeen)
		}
	})
}

func TestPresenceSetOnlineCount(t *testing.T) {
	t.Run("counts only online records", func(t *testing.T) {
		p := NewPresenceSet()

		p.Apply(PresenceEvent{Action: PresenceJoin, UserID: "u1", Status: PresenceOnline})
		p.Apply(PresenceEvent{Action: PresenceJoin, UserID: "u2", Status: PresenceOnline})
		p.Apply(PresenceEvent{Action: PresenceUpdate, UserID: "u1", Status: PresenceAway})

		if p.OnlineCount() != 1 {
			t.Errorf("expected 1 online, got %d", p.OnlineCount())
		}
		if p.Len() != 2 {
			t.Errorf("away user must stay tracked, got %d records", p.Len())
		}
	})

	t.Run("callback fires with the new count after each mutation", func(t *testing.T) {
		p := NewPresenceSet()

		var counts []int
		p.OnCountChange(func(online int) { counts = append(counts, online) })

		p.Apply(PresenceEvent{Action: PresenceJoin, UserID: "u1"})
		p.Apply(PresenceEvent{Action: PresenceJoin, UserID: "u2"})
		p.Apply(PresenceEvent{Action: PresenceLeave, UserID: "u1"})

		want := []int{1, 2, 1}
		if len(counts) != len(want) {
			t.Fatalf("expected %d callbacks, got %d", len(want), len(counts))
		}
		for i := range want {
			if counts[i] != want[i] {
				t.Errorf("callback %d: expected %d, got %d", i, want[i], counts[i])
			}
		}
	})

	t.Run("dropped events do not fire the callback", func(t *testing.T) {
		p := NewPresenceSet()

		calls := 0
		p.OnCountChange(func(int) { calls++ })

		p.Apply(PresenceEvent{Action: PresenceUpdate, UserID: "ghost"})
		p.Apply(PresenceEvent{Action: "unknown", UserID: "u1"})

		if calls != 0 {
			t.Errorf("expected 0 callbacks, got %d", calls)
		}
	})
}

func TestPresenceSetSnapshot(t *testing.T) {
	p := NewPresenceSet()
	p.Apply(PresenceEvent{Action: PresenceJoin, UserID: "u1"})

	snap := p.Snapshot()
	delete(snap, "u1")

	if _, ok := p.Get("u1"); !ok {
		t.Error("mutating the snapshot must not affect the set")
	}
}
