package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

const (
	maxThrottledFrames = 1000
	unregisterTimeout  = 10 * time.Second
)

var ErrRateLimited = errors.New("websocket: rate limit exceeded")

type SessionConfig struct {
	SendBuffer        int
	MessagesPerSecond float64
	MessageBurst      int
	IdleTimeout       time.Duration
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		SendBuffer:        256,
		MessagesPerSecond: 100,
		MessageBurst:      200,
	}
}

// Session is the lifecycle of one physical connection, independent of the
// transport carrying it: CONNECTING until registered, ACTIVE until the
// transport goes away, then CLOSED for good.
type Session struct {
	hub     *Hub
	cfg     SessionConfig
	id      ConnectionID
	state   atomic.Int32
	limiter *rate.Limiter

	throttled atomic.Int64
	lastSeen  atomic.Int64

	mu         sync.Mutex
	send       chan []byte
	sendClosed bool
	chanClosed bool

	// pending holds the newest throttled code-change per room until the
	// limiter has a token for it.
	pendingMu  sync.Mutex
	pending    map[string]Event
	flushTimer *time.Timer

	closeOnce sync.Once
	closed    chan struct{}
}

func NewSession(hub *Hub, cfg SessionConfig) *Session {
	s := &Session{
		hub:     hub,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.MessagesPerSecond), cfg.MessageBurst),
		send:    make(chan []byte, cfg.SendBuffer),
		pending: make(map[string]Event),
		closed:  make(chan struct{}),
	}
	s.lastSeen.Store(time.Now().UnixNano())
	return s
}

// Open registers the session with the hub. A session that fails to open is
// closed and cannot be reused.
func (s *Session) Open(ctx context.Context) error {
	if s.State() != StateConnecting {
		return ErrSessionClosed
	}
	id, err := s.hub.Register(ctx, s)
	if err != nil {
		s.state.Store(int32(StateClosed))
		s.closeSend()
		s.closeOnce.Do(func() { close(s.closed) })
		return fmt.Errorf("open session: %w", err)
	}
	s.id = id
	if !s.state.CompareAndSwap(int32(StateConnecting), int32(StateActive)) {
		// Closed while registering.
		_ = s.hub.Unregister(ctx, id)
		return ErrSessionClosed
	}
	slog.Debug("session active", "connectionId", id)
	return nil
}

func (s *Session) ID() ConnectionID {
	return s.id
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Send queues frame for the transport without blocking.
func (s *Session) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendClosed || s.State() != StateActive {
		return ErrSessionClosed
	}
	select {
	case s.send <- frame:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Outbound yields frames in delivery order and is closed when the session is.
func (s *Session) Outbound() <-chan []byte {
	return s.send
}

// Receive handles one client frame. ErrMalformedFrame and ErrRateLimited
// mean the transport should disconnect.
//
// Membership events are never throttled. A code-change over the rate limit
// is held back and replaced by any newer one for the same room, so the last
// edit of a burst always goes out once the limiter refills.
func (s *Session) Receive(ctx context.Context, frame []byte) error {
	if s.State() != StateActive {
		return ErrSessionClosed
	}
	s.lastSeen.Store(time.Now().UnixNano())

	ev, err := DecodeEvent(frame)
	if err != nil {
		return err
	}

	switch ev.Name {
	case EventJoinRoom, EventLeaveRoom:
		return s.hub.Dispatch(ctx, s.id, ev)
	case EventCodeChange:
		return s.receiveChange(ctx, ev)
	}

	if !s.limiter.Allow() {
		return s.throttle()
	}
	return s.hub.Dispatch(ctx, s.id, ev)
}

func (s *Session) receiveChange(ctx context.Context, ev Event) error {
	var change CodeChange
	if err := json.Unmarshal(ev.Data, &change); err != nil {
		// The hub logs and ignores bad payloads.
		return s.hub.Dispatch(ctx, s.id, ev)
	}

	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	if s.limiter.Allow() {
		delete(s.pending, change.RoomID)
		return s.hub.Dispatch(ctx, s.id, ev)
	}

	s.pending[change.RoomID] = ev
	if s.flushTimer == nil {
		s.flushTimer = time.AfterFunc(s.refillDelay(), s.flushPending)
	}
	return s.throttle()
}

// flushPending dispatches held-back edits as tokens become available.
func (s *Session) flushPending() {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	s.flushTimer = nil

	if s.State() != StateActive {
		clear(s.pending)
		return
	}

	for roomID, ev := range s.pending {
		if !s.limiter.Allow() {
			break
		}
		ctx, cancel := context.WithTimeout(context.Background(), unregisterTimeout)
		if err := s.hub.Dispatch(ctx, s.id, ev); err != nil {
			slog.Warn("throttled edit not delivered", "connectionId", s.id, "room", roomID, "error", err)
		}
		cancel()
		delete(s.pending, roomID)
	}

	if len(s.pending) > 0 {
		s.flushTimer = time.AfterFunc(s.refillDelay(), s.flushPending)
	}
}

func (s *Session) refillDelay() time.Duration {
	if s.cfg.MessagesPerSecond <= 0 {
		return time.Second
	}
	return max(time.Duration(float64(time.Second)/s.cfg.MessagesPerSecond), time.Millisecond)
}

func (s *Session) throttle() error {
	incThrottled()
	n := s.throttled.Add(1)
	if n%100 == 1 {
		slog.Warn("rate limit exceeded", "connectionId", s.id, "throttled", n)
	}
	if n > maxThrottledFrames {
		return ErrRateLimited
	}
	return nil
}

// Close moves the session to CLOSED. Its membership is released before Close
// returns. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.sendClosed = true
		s.mu.Unlock()

		if s.State() == StateActive {
			ctx, cancel := context.WithTimeout(context.Background(), unregisterTimeout)
			if err := s.hub.Unregister(ctx, s.id); err != nil && !errors.Is(err, ErrHubClosed) {
				slog.Error("unregister failed", "connectionId", s.id, "error", err)
			}
			cancel()
		}

		s.state.Store(int32(StateClosed))
		s.closeSend()
		s.dropPending()
		close(s.closed)
	})
}

// Shutdown closes the session without blocking the caller.
func (s *Session) Shutdown() {
	go s.Close()
}

func (s *Session) Closed() <-chan struct{} {
	return s.closed
}

// Idle reports whether the client has been silent longer than the configured
// idle timeout. It is always false when no timeout is set.
func (s *Session) Idle(now time.Time) bool {
	if s.cfg.IdleTimeout <= 0 {
		return false
	}
	return now.Sub(time.Unix(0, s.lastSeen.Load())) > s.cfg.IdleTimeout
}

func (s *Session) dropPending() {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if s.flushTimer != nil {
		s.flushTimer.Stop()
		s.flushTimer = nil
	}
	clear(s.pending)
}

func (s *Session) closeSend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendClosed = true
	if !s.chanClosed {
		close(s.send)
		s.chanClosed = true
	}
}
