package ripple

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
)

// ============================================================================
// Configuration
// ============================================================================

// RealtimeConfig configures the realtime connection manager.
type RealtimeConfig struct {
	Token                string
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ManualResumeDelay    time.Duration
	HeartbeatInterval    time.Duration
	Logger               *slog.Logger
}

func (c *RealtimeConfig) defaults() {
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = 1 * time.Second
	}
	if c.ManualResumeDelay == 0 {
		c.ManualResumeDelay = 2 * time.Second
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default().With("component", "realtime")
	}
}

// Status represents the connection state.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusError        Status = "error"
)

// StatusChange is the notification emitted on every state transition.
// Attempt is non-zero only while reconnecting.
type StatusChange struct {
	Status  Status
	Attempt int
	Err     error
}

var (
	// ErrNoToken is returned by Connect when no access token is set.
	ErrNoToken = errors.New("ripple: access token is required")
	// ErrNotConnected is returned by send operations without an open transport.
	ErrNotConnected = errors.New("ripple: not connected")
)

const (
	dialTimeout = 10 * time.Second
	pingTimeout = 10 * time.Second

	// Close status a server uses to reject the handshake credential.
	statusAuthRejected = websocket.StatusCode(4401)
)

func isAuthErrorCode(code string) bool {
	return strings.HasPrefix(code, "AUTH") ||
		code == "UNAUTHORIZED" || code == "TOKEN_EXPIRED"
}

// ============================================================================
// Realtime
// ============================================================================

// Realtime owns the lifecycle of one persistent connection to the realtime
// server: connect, heartbeat, failure detection, bounded reconnection, and
// fan-out of inbound events through its dispatcher. Create one per
// authenticated session via Client.Realtime.
type Realtime struct {
	endpoint   string
	config     *RealtimeConfig
	dispatcher *Dispatcher
	presence   *PresenceSet
	logger     *slog.Logger

	mu               sync.Mutex
	conn             *websocket.Conn
	status           Status
	lastErr          error
	intentionalClose bool
	reconnecting     bool
	resumePending    bool
	cancelFn         context.CancelFunc
	reconnectTimer   *time.Timer
	stopCh           chan struct{}

	statusMu   sync.RWMutex
	statusSubs []statusSubscription

	pendingMu    sync.Mutex
	pendingPings map[string]chan PongPayload
}

type statusSubscription struct {
	id string
	fn func(StatusChange)
}

func newRealtime(endpoint string, config *RealtimeConfig) *Realtime {
	cfg := *config
	cfg.defaults()

	r := &Realtime{
		endpoint:     strings.TrimRight(endpoint, "/"),
		config:       &cfg,
		dispatcher:   NewDispatcher(),
		presence:     NewPresenceSet(),
		logger:       cfg.Logger,
		status:       StatusDisconnected,
		pendingPings: make(map[string]chan PongPayload),
	}

	r.dispatcher.On(EventPresenceChanged, func(payload json.RawMessage) {
		var evt PresenceEvent
		if err := json.Unmarshal(payload, &evt); err != nil {
			r.logger.Debug("dropping undecodable presence event", "error", err)
			return
		}
		r.presence.Apply(evt)
	})

	return r
}

// Status returns the current connection state.
func (r *Realtime) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// LastError returns the most recent connection-level error, if any.
func (r *Realtime) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Presence returns the presence reconciler fed by this connection.
func (r *Realtime) Presence() *PresenceSet {
	return r.presence
}

// On registers a handler for a named server event and returns its
// unsubscribe function.
func (r *Realtime) On(event string, fn Handler) func() {
	return r.dispatcher.On(event, fn)
}

// OnStatusChange registers a callback for connection state transitions and
// returns its unsubscribe function.
func (r *Realtime) OnStatusChange(fn func(StatusChange)) func() {
	id := uuid.NewString()
	r.statusMu.Lock()
	r.statusSubs = append(r.statusSubs, statusSubscription{id: id, fn: fn})
	r.statusMu.Unlock()

	return func() {
		r.statusMu.Lock()
		defer r.statusMu.Unlock()
		for i, s := range r.statusSubs {
			if s.id == id {
				r.statusSubs = append(r.statusSubs[:i:i], r.statusSubs[i+1:]...)
				break
			}
		}
	}
}

func (r *Realtime) setStatus(s Status, attempt int, err error) {
	r.mu.Lock()
	r.status = s
	if err != nil {
		r.lastErr = err
	}
	r.mu.Unlock()

	r.statusMu.RLock()
	subs := make([]statusSubscription, len(r.statusSubs))
	copy(subs, r.statusSubs)
	r.statusMu.RUnlock()

	change := StatusChange{Status: s, Attempt: attempt, Err: err}
	for _, sub := range subs {
		sub.fn(change)
	}
}

// ============================================================================
// Connect / Disconnect
// ============================================================================

// Connect opens the transport and authenticates the session. Without a
// token it does nothing and the manager stays disconnected. If the initial
// dial fails the bounded reconnect loop takes over; the dial error is still
// returned so the caller knows the first attempt did not land.
func (r *Realtime) Connect(ctx context.Context) error {
	if r.config.Token == "" {
		return ErrNoToken
	}

	r.mu.Lock()
	if r.status == StatusConnected || r.status == StatusConnecting ||
		r.reconnecting || r.resumePending {
		r.mu.Unlock()
		return nil
	}
	r.intentionalClose = false
	r.stopCh = make(chan struct{})
	r.mu.Unlock()

	r.setStatus(StatusConnecting, 0, nil)

	if err := r.dial(ctx); err != nil {
		r.beginReconnect(err)
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// dial performs one transport handshake and, on success, transitions to
// connected and starts the read and heartbeat loops.
func (r *Realtime) dial(ctx context.Context) error {
	wsURL := strings.Replace(r.endpoint, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL += "/ws?token=" + url.QueryEscape(r.config.Token)

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return err
	}

	// The session context comes from Background so the connection survives
	// the caller's dial context.
	connCtx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	if r.intentionalClose {
		r.mu.Unlock()
		cancel()
		conn.Close(websocket.StatusNormalClosure, "client disconnect")
		return nil
	}
	r.conn = conn
	r.cancelFn = cancel
	r.mu.Unlock()

	r.setStatus(StatusConnected, 0, nil)

	go r.readLoop(connCtx, conn)
	go r.heartbeatLoop(connCtx)
	return nil
}

// Disconnect tears down the heartbeat and any pending reconnect timer, then
// closes the transport. It is idempotent.
func (r *Realtime) Disconnect() error {
	r.mu.Lock()
	idle := r.status == StatusDisconnected && r.conn == nil &&
		!r.reconnecting && !r.resumePending
	if idle {
		r.mu.Unlock()
		return nil
	}
	r.intentionalClose = true
	r.resumePending = false
	if r.reconnectTimer != nil {
		r.reconnectTimer.Stop()
		r.reconnectTimer = nil
	}
	if r.stopCh != nil {
		close(r.stopCh)
		r.stopCh = nil
	}
	if r.cancelFn != nil {
		r.cancelFn()
		r.cancelFn = nil
	}
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()

	r.clearPendingPings()
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	r.setStatus(StatusDisconnected, 0, nil)
	return nil
}

// ============================================================================
// Read loop
// ============================================================================

func (r *Realtime) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			r.handleReadError(err)
			return
		}
		r.handleFrame(data)
	}
}

func (r *Realtime) handleFrame(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		r.logger.Debug("dropping undecodable frame", "size", len(data))
		return
	}

	if env.Type == EventPong {
		var pong PongPayload
		if json.Unmarshal(env.Payload, &pong) == nil && pong.RequestID != "" {
			r.resolvePing(pong)
		}
	}

	// Delivered synchronously so consumers observe events in transport order.
	r.dispatcher.Dispatch(env.Type, env.Payload)

	if env.Type == EventError {
		var serverErr ServerError
		if json.Unmarshal(env.Payload, &serverErr) == nil && isAuthErrorCode(serverErr.Code) {
			r.failAuth(&serverErr)
		}
	}
}

// failAuth force-closes the transport on an authentication-class server
// error; the manager must never silently remain "connected" past it.
func (r *Realtime) failAuth(err error) {
	r.logger.Error("authentication rejected by server", "error", err)

	r.mu.Lock()
	// Suppresses the reconnect path when the forced close surfaces in the
	// read loop.
	r.intentionalClose = true
	conn := r.conn
	r.conn = nil
	if r.cancelFn != nil {
		r.cancelFn()
		r.cancelFn = nil
	}
	r.mu.Unlock()

	r.clearPendingPings()
	if conn != nil {
		conn.Close(websocket.StatusPolicyViolation, "authentication failed")
	}
	r.setStatus(StatusError, 0, err)
}

func (r *Realtime) handleReadError(err error) {
	r.mu.Lock()
	if r.intentionalClose {
		r.mu.Unlock()
		return
	}
	r.conn = nil
	if r.cancelFn != nil {
		r.cancelFn()
		r.cancelFn = nil
	}
	r.mu.Unlock()

	r.clearPendingPings()

	switch websocket.CloseStatus(err) {
	case websocket.StatusServiceRestart:
		// The server asked clients to resume on their own schedule; racing
		// it with the automatic retry loop would double-connect.
		r.scheduleManualResume()
	case statusAuthRejected:
		r.setStatus(StatusError, 0, fmt.Errorf("authentication rejected: %w", err))
	default:
		r.beginReconnect(err)
	}
}

// ============================================================================
// Reconnection
// ============================================================================

// beginReconnect starts the bounded automatic retry loop unless a manual
// resume is already pending; the two paths are mutually exclusive.
func (r *Realtime) beginReconnect(cause error) {
	r.mu.Lock()
	if r.intentionalClose || r.reconnecting || r.resumePending {
		r.mu.Unlock()
		return
	}
	r.reconnecting = true
	stop := r.stopCh
	r.mu.Unlock()

	go r.reconnectLoop(cause, stop)
}

func (r *Realtime) reconnectLoop(cause error, stop <-chan struct{}) {
	defer func() {
		r.mu.Lock()
		r.reconnecting = false
		r.mu.Unlock()
	}()

	for attempt := 1; attempt <= r.config.MaxReconnectAttempts; attempt++ {
		r.setStatus(StatusReconnecting, attempt, cause)

		timer := time.NewTimer(time.Duration(attempt) * r.config.ReconnectBaseDelay)
		select {
		case <-timer.C:
		case <-stop:
			timer.Stop()
			return
		}

		r.mu.Lock()
		abort := r.intentionalClose
		r.mu.Unlock()
		if abort {
			return
		}

		dialCtx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		err := r.dial(dialCtx)
		cancel()
		if err == nil {
			return
		}
		cause = err
		r.logger.Warn("reconnect attempt failed",
			"attempt", attempt, "max", r.config.MaxReconnectAttempts, "error", err)
	}

	r.setStatus(StatusError, r.config.MaxReconnectAttempts,
		fmt.Errorf("reconnect attempts exhausted: %w", cause))
}

// scheduleManualResume schedules exactly one delayed reconnect in response
// to a server-initiated disconnect.
func (r *Realtime) scheduleManualResume() {
	r.mu.Lock()
	if r.intentionalClose || r.resumePending || r.reconnecting {
		r.mu.Unlock()
		return
	}
	r.resumePending = true
	r.reconnectTimer = time.AfterFunc(r.config.ManualResumeDelay, r.manualResume)
	r.mu.Unlock()

	r.setStatus(StatusReconnecting, 1, nil)
}

func (r *Realtime) manualResume() {
	r.mu.Lock()
	r.resumePending = false
	r.reconnectTimer = nil
	abort := r.intentionalClose
	r.mu.Unlock()
	if abort {
		return
	}

	dialCtx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := r.dial(dialCtx); err != nil {
		r.setStatus(StatusError, 1, fmt.Errorf("resume after server disconnect failed: %w", err))
	}
}

// ============================================================================
// Heartbeat
// ============================================================================

func (r *Realtime) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(r.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.mu.Lock()
			open := r.status == StatusConnected && r.conn != nil
			r.mu.Unlock()
			if !open {
				// A stale or closed transport must not emit probes.
				return
			}

			if _, err := r.Ping(ctx); err != nil {
				r.logger.Warn("heartbeat failed, closing transport", "error", err)
				r.mu.Lock()
				conn := r.conn
				r.mu.Unlock()
				if conn != nil {
					conn.Close(websocket.StatusGoingAway, "heartbeat timeout")
				}
				return
			}
		}
	}
}

// Ping sends a liveness probe and waits for its acknowledgment.
func (r *Realtime) Ping(ctx context.Context) (*PongPayload, error) {
	requestID := uuid.NewString()

	ch := make(chan PongPayload, 1)
	r.pendingMu.Lock()
	r.pendingPings[requestID] = ch
	r.pendingMu.Unlock()

	err := r.Send(ctx, &Command{
		Type:      cmdPing,
		Payload:   map[string]string{"requestId": requestID},
		RequestID: requestID,
	})
	if err != nil {
		r.dropPing(requestID)
		return nil, err
	}

	select {
	case pong, ok := <-ch:
		if !ok {
			return nil, ErrNotConnected
		}
		return &pong, nil
	case <-time.After(pingTimeout):
		r.dropPing(requestID)
		return nil, errors.New("ping timeout")
	case <-ctx.Done():
		r.dropPing(requestID)
		return nil, ctx.Err()
	}
}

func (r *Realtime) resolvePing(pong PongPayload) {
	r.pendingMu.Lock()
	ch, ok := r.pendingPings[pong.RequestID]
	if ok {
		delete(r.pendingPings, pong.RequestID)
	}
	r.pendingMu.Unlock()
	if ok {
		ch <- pong
	}
}

func (r *Realtime) dropPing(requestID string) {
	r.pendingMu.Lock()
	delete(r.pendingPings, requestID)
	r.pendingMu.Unlock()
}

func (r *Realtime) clearPendingPings() {
	r.pendingMu.Lock()
	for id, ch := range r.pendingPings {
		close(ch)
		delete(r.pendingPings, id)
	}
	r.pendingMu.Unlock()
}

// ============================================================================
// Outbound operations
// ============================================================================

// Send writes a raw command to the transport.
func (r *Realtime) Send(ctx context.Context, cmd *Command) error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// JoinChannels subscribes the session to the given channels.
func (r *Realtime) JoinChannels(ctx context.Context, channelIDs ...string) error {
	return r.Send(ctx, &Command{
		Type:    cmdJoinChannels,
		Payload: map[string][]string{"channels": channelIDs},
	})
}

// StartTyping announces that the user is typing in a channel.
func (r *Realtime) StartTyping(ctx context.Context, channelID string) error {
	return r.Send(ctx, &Command{
		Type:    cmdTypingStart,
		Payload: map[string]string{"channel_id": channelID},
	})
}

// StopTyping announces that the user stopped typing in a channel.
func (r *Realtime) StopTyping(ctx context.Context, channelID string) error {
	return r.Send(ctx, &Command{
		Type:    cmdTypingStop,
		Payload: map[string]string{"channel_id": channelID},
	})
}

// UpdatePresence publishes the user's own availability status.
func (r *Realtime) UpdatePresence(ctx context.Context, status PresenceStatus) error {
	return r.Send(ctx, &Command{
		Type:    cmdPresenceUpdate,
		Payload: map[string]string{"status": string(status)},
	})
}

// ============================================================================
// Channel subscription
// ============================================================================

// ChannelSubscription bundles the message stream and typing tracker for one
// channel. Close detaches it from the dispatcher, cancels all typing timers
// and clears the dedup window.
type ChannelSubscription struct {
	stream *ChannelStream
	typing *TypingTracker
	offs   []func()
	once   sync.Once
}

// SubscribeChannel attaches per-channel message consumers to the event
// stream. onTyping may be nil when the consumer has no typing indicator.
func (r *Realtime) SubscribeChannel(channelID string, handlers StreamHandlers, onTyping func(userID string, typing bool)) *ChannelSubscription {
	stream := NewChannelStream(channelID, handlers)
	sub := &ChannelSubscription{stream: stream}

	sub.offs = append(sub.offs,
		r.dispatcher.On(EventNewMessage, func(p json.RawMessage) { stream.Ingest(p, "") }),
		r.dispatcher.On(EventMessageUpdated, func(p json.RawMessage) { stream.Ingest(p, actionUpdated) }),
		r.dispatcher.On(EventMessageDeleted, func(p json.RawMessage) { stream.Ingest(p, actionDeleted) }),
	)

	if onTyping != nil {
		tracker := NewTypingTracker(channelID, onTyping)
		sub.typing = tracker
		sub.offs = append(sub.offs, r.dispatcher.On(EventUserTyping, func(p json.RawMessage) {
			var evt TypingEvent
			if err := json.Unmarshal(p, &evt); err != nil {
				return
			}
			tracker.Handle(evt)
		}))
	}

	return sub
}

// Stream returns the subscription's message stream.
func (s *ChannelSubscription) Stream() *ChannelStream {
	return s.stream
}

// SetChannel retargets the subscription: the dedup window resets and all
// typing timers for the previous channel are cancelled.
func (s *ChannelSubscription) SetChannel(channelID string) {
	s.stream.SetChannel(channelID)
	if s.typing != nil {
		s.typing.SetChannel(channelID)
	}
}

// Close tears the subscription down.
func (s *ChannelSubscription) Close() {
	s.once.Do(func() {
		for _, off := range s.offs {
			off()
		}
		if s.typing != nil {
			s.typing.Close()
		}
		s.stream.Reset()
	})
}
