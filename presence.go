package ripple

import (
	"log/slog"
	"sync"
	"time"
)

// ============================================================================
// Presence Reconciler
// ============================================================================

// PresenceRecord is the tracked state for one user. A user absent from the
// set is unknown/offline; a record is removed entirely on leave, which is
// distinct from a record whose status was updated to offline.
type PresenceRecord struct {
	UserID    string
	Username  string
	Status    PresenceStatus
	LastSeen  time.Time
	ChannelID string
}

// PresenceSet reconciles join/leave/update events into a map of user id to
// presence record and derives the online count. All mutation happens through
// Apply; accessors hand out copies only.
type PresenceSet struct {
	mu      sync.RWMutex
	records map[string]PresenceRecord
	online  int

	changeMu sync.RWMutex
	onChange []func(online int)

	logger *slog.Logger
}

// NewPresenceSet creates an empty presence set.
func NewPresenceSet() *PresenceSet {
	return &PresenceSet{
		records: make(map[string]PresenceRecord),
		logger:  slog.Default().With("component", "presence"),
	}
}

// OnCountChange registers a callback invoked with the new online count after
// every mutation that changed the set.
func (p *PresenceSet) OnCountChange(fn func(online int)) {
	p.changeMu.Lock()
	p.onChange = append(p.onChange, fn)
	p.changeMu.Unlock()
}

// Apply reconciles one presence event into the set. Events with an empty
// user id or an unrecognized action are dropped.
func (p *PresenceSet) Apply(evt PresenceEvent) {
	if evt.UserID == "" {
		p.logger.Debug("dropping presence event without user id", "action", evt.Action)
		return
	}

	p.mu.Lock()
	switch evt.Action {
	case PresenceJoin:
		status := evt.Status
		if status == "" {
			status = PresenceOnline
		}
		p.records[evt.UserID] = PresenceRecord{
			UserID:    evt.UserID,
			Username:  evt.Username,
			Status:    status,
			LastSeen:  parseEventTime(evt.Timestamp),
			ChannelID: evt.ChannelID,
		}

	case PresenceLeave:
		delete(p.records, evt.UserID)

	case PresenceUpdate:
		rec, ok := p.records[evt.UserID]
		if !ok {
			// Update without a prior join targets nothing.
			p.mu.Unlock()
			p.logger.Debug("dropping presence update for unknown user", "user_id", evt.UserID)
			return
		}
		if evt.Status != "" {
			rec.Status = evt.Status
		}
		if evt.Username != "" {
			rec.Username = evt.Username
		}
		if evt.ChannelID != "" {
			rec.ChannelID = evt.ChannelID
		}
		rec.LastSeen = parseEventTime(evt.Timestamp)
		p.records[evt.UserID] = rec

	default:
		p.mu.Unlock()
		p.logger.Debug("dropping presence event with unknown action", "action", evt.Action)
		return
	}

	// The online count is a filter on status, not the map size: away, busy
	// and offline entries may legitimately remain keyed.
	count := 0
	for _, rec := range p.records {
		if rec.Status == PresenceOnline {
			count++
		}
	}
	p.online = count
	p.mu.Unlock()

	p.changeMu.RLock()
	callbacks := make([]func(int), len(p.onChange))
	copy(callbacks, p.onChange)
	p.changeMu.RUnlock()
	for _, fn := range callbacks {
		fn(count)
	}
}

// Get returns the record for a user, if tracked.
func (p *PresenceSet) Get(userID string) (PresenceRecord, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rec, ok := p.records[userID]
	return rec, ok
}

// Snapshot returns a copy of all tracked records.
func (p *PresenceSet) Snapshot() map[string]PresenceRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]PresenceRecord, len(p.records))
	for id, rec := range p.records {
		out[id] = rec
	}
	return out
}

// OnlineCount returns the number of tracked users whose status is online.
func (p *PresenceSet) OnlineCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.online
}

// Len returns the number of tracked users of any status.
func (p *PresenceSet) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.records)
}
