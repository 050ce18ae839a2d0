package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// PollTransport carries sessions over plain request/response HTTP for
// clients that cannot hold a websocket open.
type PollTransport struct {
	hub         *Hub
	cfg         SessionConfig
	timeout     time.Duration
	idleTimeout time.Duration

	mu       sync.Mutex
	sessions map[ConnectionID]*pollSession
}

type pollSession struct {
	*Session
	lastPoll atomic.Int64
}

func NewPollTransport(hub *Hub, cfg SessionConfig, timeout, idleTimeout time.Duration) *PollTransport {
	return &PollTransport{
		hub:         hub,
		cfg:         cfg,
		timeout:     timeout,
		idleTimeout: idleTimeout,
		sessions:    make(map[ConnectionID]*pollSession),
	}
}

func (p *PollTransport) Open(ctx context.Context) (ConnectionID, error) {
	session := NewSession(p.hub, p.cfg)
	if err := session.Open(ctx); err != nil {
		return "", err
	}
	ps := &pollSession{Session: session}
	ps.lastPoll.Store(time.Now().UnixNano())

	p.mu.Lock()
	p.sessions[session.ID()] = ps
	p.mu.Unlock()

	slog.Info("polling session opened", "connectionId", session.ID())
	return session.ID(), nil
}

func (p *PollTransport) lookup(id ConnectionID) (*pollSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ps, ok := p.sessions[id]
	if !ok {
		return nil, ErrUnknownSession
	}
	return ps, nil
}

// Poll waits up to the poll timeout for at least one frame and returns every
// frame queued by then. An empty result means the wait timed out.
func (p *PollTransport) Poll(ctx context.Context, id ConnectionID) ([]json.RawMessage, error) {
	ps, err := p.lookup(id)
	if err != nil {
		return nil, err
	}
	ps.lastPoll.Store(time.Now().UnixNano())
	defer ps.lastPoll.Store(time.Now().UnixNano())

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	outbound := ps.Outbound()
	frames := make([]json.RawMessage, 0)
	select {
	case frame, ok := <-outbound:
		if !ok {
			p.remove(id)
			return nil, ErrSessionClosed
		}
		frames = append(frames, frame)
	case <-timer.C:
		return frames, nil
	case <-ctx.Done():
		return frames, ctx.Err()
	}

	for {
		select {
		case frame, ok := <-outbound:
			if !ok {
				return frames, nil
			}
			frames = append(frames, frame)
		default:
			return frames, nil
		}
	}
}

// Push hands one client frame to the session. A malformed or throttled-out
// frame ends the session.
func (p *PollTransport) Push(ctx context.Context, id ConnectionID, frame []byte) error {
	ps, err := p.lookup(id)
	if err != nil {
		return err
	}
	err = ps.Receive(ctx, frame)
	if errors.Is(err, ErrMalformedFrame) || errors.Is(err, ErrRateLimited) {
		slog.Warn("dropping polling session", "connectionId", id, "error", err)
		p.closeSession(id, ps)
	}
	return err
}

func (p *PollTransport) Close(id ConnectionID) error {
	ps, err := p.lookup(id)
	if err != nil {
		return err
	}
	p.closeSession(id, ps)
	return nil
}

func (p *PollTransport) closeSession(id ConnectionID, ps *pollSession) {
	p.remove(id)
	ps.Close()
	slog.Info("polling session closed", "connectionId", id)
}

func (p *PollTransport) remove(id ConnectionID) {
	p.mu.Lock()
	delete(p.sessions, id)
	p.mu.Unlock()
}

func (p *PollTransport) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// Run closes sessions that stop polling, or go quiet past the idle timeout,
// until ctx is cancelled. Remaining sessions are closed on the way out.
func (p *PollTransport) Run(ctx context.Context) {
	ticker := time.NewTicker(idleCheckInterval(p.idleTimeout))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.closeAll()
			return
		case now := <-ticker.C:
			p.sweep(now)
		}
	}
}

func (p *PollTransport) sweep(now time.Time) {
	var stale []ConnectionID
	p.mu.Lock()
	for id, ps := range p.sessions {
		abandoned := now.Sub(time.Unix(0, ps.lastPoll.Load())) > p.idleTimeout
		if abandoned || ps.Idle(now) || ps.State() == StateClosed {
			stale = append(stale, id)
		}
	}
	p.mu.Unlock()

	for _, id := range stale {
		if ps, err := p.lookup(id); err == nil {
			p.closeSession(id, ps)
		}
	}
}

func (p *PollTransport) closeAll() {
	p.mu.Lock()
	all := p.sessions
	p.sessions = make(map[ConnectionID]*pollSession)
	p.mu.Unlock()

	for _, ps := range all {
		ps.Close()
	}
}
