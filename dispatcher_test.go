package ripple

import (
	"encoding/json"
	"testing"
)

func TestDispatcherOn(t *testing.T) {
	t.Run("handlers run in registration order", func(t *testing.T) {
		d := NewDispatcher()

		var got []string
		d.On("evt", func(json.RawMessage) { got = append(got, "first") })
		d.On("evt", func(json.RawMessage) { got = append(got, "second") })
		d.On("evt", func(json.RawMessage) { got = append(got, "third") })

		d.Dispatch("evt", nil)

		want := []string{"first", "second", "third"}
		if len(got) != len(want) {
			t.Fatalf("expected %d calls, got %d", len(want), len(got))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("call %d: expected %q, got %q", i, want[i], got[i])
			}
		}
	})

	t.Run("payload is passed through untouched", func(t *testing.T) {
		d := NewDispatcher()

		payload := json.RawMessage(`{"key":"value"}`)
		var got json.RawMessage
		d.On("evt", func(p json.RawMessage) { got = p })

		d.Dispatch("evt", payload)

		if string(got) != string(payload) {
			t.Errorf("expected payload %s, got %s", payload, got)
		}
	})

	t.Run("handlers are scoped to their event", func(t *testing.T) {
		d := NewDispatcher()

		called := false
		d.On("a", func(json.RawMessage) { called = true })

		d.Dispatch("b", nil)

		if called {
			t.Error("handler for event a ran for event b")
		}
	})
}

func TestDispatcherUnsubscribe(t *testing.T) {
	t.Run("unsubscribed handler no longer runs", func(t *testing.T) {
		d := NewDispatcher()

		calls := 0
		off := d.On("evt", func(json.RawMessage) { calls++ })

		d.Dispatch("evt", nil)
		off()
		d.Dispatch("evt", nil)

		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
		if n := d.HandlerCount("evt"); n != 0 {
			t.Errorf("expected 0 handlers, got %d", n)
		}
	})

	t.Run("unsubscribe removes only its own handler", func(t *testing.T) {
		d := NewDispatcher()

		var got []string
		off := d.On("evt", func(json.RawMessage) { got = append(got, "a") })
		d.On("evt", func(json.RawMessage) { got = append(got, "b") })

		off()
		d.Dispatch("evt", nil)

		if len(got) != 1 || got[0] != "b" {
			t.Errorf("expected only b, got %v", got)
		}
	})

	t.Run("double unsubscribe is harmless", func(t *testing.T) {
		d := NewDispatcher()

		off := d.On("evt", func(json.RawMessage) {})
		d.On("evt", func(json.RawMessage) {})

		off()
		off()

		if n := d.HandlerCount("evt"); n != 1 {
			t.Errorf("expected 1 handler, got %d", n)
		}
	})

	t.Run("unsubscribing during dispatch does not disturb the pass", func(t *testing.T) {
		d := NewDispatcher()

		var got []string
		var offSecond func()
		d.On("evt", func(json.RawMessage) {
			got = append(got, "first")
			offSecond()
		})
		offSecond = d.On("evt", func(json.RawMessage) { got = append(got, "second") })

		d.Dispatch("evt", nil)

		// The pass that was already underway still delivers to both.
		if len(got) != 2 {
			t.Fatalf("expected 2 calls in first pass, got %v", got)
		}

		got = nil
		d.Dispatch("evt", nil)
		if len(got) != 1 || got[0] != "first" {
			t.Errorf("expected only first in second pass, got %v", got)
		}
	})
}

func TestDispatcherDispatchUnknownEvent(t *testing.T) {
	d := NewDispatcher()
	// Must not panic.
	d.Dispatch("nobody-listens", json.RawMessage(`{}`))
}
