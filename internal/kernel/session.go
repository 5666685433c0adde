package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/starford/ansuz/internal/apperr"
)

// ReplyFunc consumes one reply.
type ReplyFunc func(Reply)

// Callbacks bundles the continuations stored with a pending request.
// OnOutput receives intermediate messages (status acks, stream output,
// results, errors). OnReply receives the terminal reply unless OnStatus has
// an override for the terminal reply's status.
type Callbacks struct {
	OnReply  ReplyFunc
	OnOutput ReplyFunc
	OnStatus map[string]ReplyFunc
}

type pendingRequest struct {
	req Request
	cb  Callbacks
}

// Settings configures session behavior.
//
// RequestTimeout bounds how long a request may stay pending; zero, the
// default, leaves requests pending indefinitely until the session is
// restarted or killed, which matches the kernel protocol's contract.
type Settings struct {
	RequestTimeout time.Duration
}

// DefaultSettings returns the default session settings.
func DefaultSettings() *Settings {
	return &Settings{}
}

// Session owns the connection to one kernel process and correlates its
// asynchronous replies to requests by message id. Replies may arrive in any
// order relative to issuance; a reply for an unknown or already-consumed id
// is dropped silently.
type Session struct {
	dial     Dialer
	logger   *slog.Logger
	settings *Settings

	mu         sync.Mutex
	transport  Transport
	pending    map[string]*pendingRequest
	started    bool
	ready      bool
	epoch      int
	notebookID string
}

// NewSession creates a session that will connect through dial.
func NewSession(dial Dialer, logger *slog.Logger, settings *Settings) *Session {
	if settings == nil {
		settings = DefaultSettings()
	}
	return &Session{
		dial:     dial,
		logger:   logger,
		settings: settings,
		pending:  map[string]*pendingRequest{},
	}
}

// Start begins the kernel for notebookID. Starting a session that is already
// started is a caller error.
func (s *Session) Start(ctx context.Context, notebookID string) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("start kernel for %q: %w", notebookID, apperr.ErrAlreadyStarted)
	}
	s.started = true
	s.notebookID = notebookID
	s.mu.Unlock()

	transport, err := s.dial(ctx, notebookID, s.handle)
	if err != nil {
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.transport = transport
	s.ready = true
	s.mu.Unlock()
	s.logger.Info("kernel started", slog.String("notebook", notebookID))
	return nil
}

// IsReady gates all request issuance. When false, calls fail with
// ErrKernelNotReady and are dropped, never queued.
func (s *Session) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Execute issues a run request and returns the assigned message id without
// waiting for completion.
func (s *Session) Execute(code string, cb Callbacks) (string, error) {
	return s.issue(Request{Type: MsgExecute, Code: code}, cb)
}

// Complete issues a completion request for text at cursor.
func (s *Session) Complete(text string, cursor int, cb Callbacks) (string, error) {
	return s.issue(Request{Type: MsgComplete, Text: text, CursorPos: cursor}, cb)
}

// Inspect issues an object introspection request for symbol.
func (s *Session) Inspect(symbol string, cb Callbacks) (string, error) {
	return s.issue(Request{Type: MsgInspect, Symbol: symbol}, cb)
}

func (s *Session) issue(req Request, cb Callbacks) (string, error) {
	s.mu.Lock()
	if !s.ready {
		s.mu.Unlock()
		return "", fmt.Errorf("issue %s: %w", req.Type, apperr.ErrKernelNotReady)
	}
	req.MsgID = ulid.Make().String()
	s.pending[req.MsgID] = &pendingRequest{req: req, cb: cb}
	transport := s.transport
	epoch := s.epoch
	s.mu.Unlock()

	if err := transport.Send(req); err != nil {
		s.mu.Lock()
		delete(s.pending, req.MsgID)
		s.mu.Unlock()
		return "", err
	}

	if d := s.settings.RequestTimeout; d > 0 {
		id := req.MsgID
		time.AfterFunc(d, func() { s.expire(id, epoch) })
	}
	return req.MsgID, nil
}

// Interrupt asks the kernel to interrupt the running computation.
func (s *Session) Interrupt() error {
	return s.control(MsgInterrupt)
}

// Restart restarts the kernel process. All pending requests are abandoned;
// late replies for their ids are ignored. The execution counter baseline
// after a restart is kernel-defined. A restart on a not-ready session fails
// without touching pending state.
func (s *Session) Restart() error {
	if !s.IsReady() {
		return fmt.Errorf("%s: %w", MsgRestart, apperr.ErrKernelNotReady)
	}
	s.abandonPending("restart")
	return s.control(MsgRestart)
}

// Kill terminates the kernel and tears the transport down. All pending
// requests are abandoned.
func (s *Session) Kill() error {
	s.abandonPending("kill")

	s.mu.Lock()
	transport := s.transport
	s.transport = nil
	s.ready = false
	s.started = false
	s.mu.Unlock()

	if transport == nil {
		return nil
	}
	// Best effort; the process may already be gone.
	if err := transport.Send(Request{MsgID: ulid.Make().String(), Type: MsgShutdown}); err != nil {
		s.logger.Debug("shutdown request not delivered", slog.String("error", err.Error()))
	}
	return transport.Close()
}

func (s *Session) control(msgType string) error {
	s.mu.Lock()
	if !s.ready {
		s.mu.Unlock()
		return fmt.Errorf("%s: %w", msgType, apperr.ErrKernelNotReady)
	}
	transport := s.transport
	s.mu.Unlock()
	return transport.Send(Request{MsgID: ulid.Make().String(), Type: msgType})
}

func (s *Session) abandonPending(reason string) {
	s.mu.Lock()
	n := len(s.pending)
	s.pending = map[string]*pendingRequest{}
	s.epoch++
	s.mu.Unlock()
	if n > 0 {
		s.logger.Info("abandoned pending kernel requests",
			slog.Int("count", n), slog.String("reason", reason))
	}
}

// handle routes one incoming message. Terminal replies consume the pending
// entry; intermediate messages route to the same callbacks without consuming
// it. Callbacks run without session locks held.
func (s *Session) handle(r Reply) {
	s.mu.Lock()
	p, ok := s.pending[r.ParentID]
	if !ok {
		s.mu.Unlock()
		return
	}
	terminal := Terminal(r.Type)
	if terminal {
		delete(s.pending, r.ParentID)
	}
	s.mu.Unlock()

	if terminal {
		if cb, ok := p.cb.OnStatus[r.Status]; ok {
			cb(r)
			return
		}
		if p.cb.OnReply != nil {
			p.cb.OnReply(r)
		}
		return
	}
	if p.cb.OnOutput != nil {
		p.cb.OnOutput(r)
	}
}

// expire abandons one pending request after the configured timeout and
// reports a synthesized timeout reply. A bumped epoch means the session was
// restarted or killed in the meantime and the entry is already gone.
func (s *Session) expire(id string, epoch int) {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	p, ok := s.pending[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.pending, id)
	s.mu.Unlock()

	r := Reply{ParentID: id, Type: terminalFor(p.req.Type), Status: StatusTimeout}
	if cb, ok := p.cb.OnStatus[StatusTimeout]; ok {
		cb(r)
		return
	}
	if p.cb.OnReply != nil {
		p.cb.OnReply(r)
	}
}

// PendingCount reports the number of in-flight requests.
func (s *Session) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
