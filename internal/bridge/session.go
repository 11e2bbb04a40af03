package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/config"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/coop"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/logging"
)

// Transport delivers encoded frames to the view, in call order.
type Transport interface {
	Send(ctx context.Context, frame []byte) error
}

// Dispatcher sends named events to the view. Session implements it; tests
// substitute bridgetest.Recorder.
type Dispatcher interface {
	DispatchEvent(ctx context.Context, name string, detail any) error
}

// Session is the host side of one embedded view.
type Session struct {
	id          string
	transport   Transport
	registry    *Registry
	exec        *coop.Exec
	log         zerolog.Logger
	maxPayload  int
	evalTimeout time.Duration

	// mu orders the ready flip, the deferred flush and every send.
	mu      sync.Mutex
	ready   bool
	closed  bool
	pending [][]byte

	readyCh   chan struct{}
	readyOnce sync.Once
	closedCh  chan struct{}
	closeOnce sync.Once
}

type Option func(*Session)

// WithExec runs invoked handlers inside e.
func WithExec(e *coop.Exec) Option {
	return func(s *Session) { s.exec = e }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.log = l }
}

func WithMaxPayload(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxPayload = n
		}
	}
}

func WithEvalTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.evalTimeout = d
		}
	}
}

func WithRegistry(r *Registry) Option {
	return func(s *Session) { s.registry = r }
}

func NewSession(t Transport, opts ...Option) *Session {
	s := &Session{
		id:          uuid.NewString(),
		transport:   t,
		registry:    NewRegistry(),
		log:         zerolog.Nop(),
		maxPayload:  config.MaxPayloadBytes,
		evalTimeout: config.EvalTimeout,
		readyCh:     make(chan struct{}),
		closedCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("session", s.id).Logger()
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) Registry() *Registry { return s.registry }

// Register is shorthand for s.Registry().Register.
func (s *Session) Register(bindings ...Binding) {
	s.registry.Register(bindings...)
}

func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// WaitUntilReady blocks until the view has signalled readiness.
func (s *Session) WaitUntilReady(ctx context.Context) error {
	select {
	case <-s.readyCh:
		return nil
	case <-s.closedCh:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MarkReady flips the session to ready and flushes deferred events in the
// order they were dispatched. Only the first call has any effect.
func (s *Session) MarkReady(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready || s.closed {
		return
	}
	s.ready = true
	pending := s.pending
	s.pending = nil
	for _, frame := range pending {
		s.sendLocked(ctx, frame)
	}
	s.readyOnce.Do(func() { close(s.readyCh) })
	s.log.Debug().Int("flushed", len(pending)).Msg("view ready")
}

// DispatchEvent encodes an event and sends it, or defers it until the view
// is ready. A send that overruns the eval timeout is logged and dropped.
func (s *Session) DispatchEvent(ctx context.Context, name string, detail any) error {
	frame, err := encodeEvent(name, detail)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if len(frame) > s.maxPayload {
		return fmt.Errorf("%w: %s is %d bytes (max %d)", ErrPayloadTooLarge, name, len(frame), s.maxPayload)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if !s.ready {
		s.pending = append(s.pending, frame)
		return nil
	}
	return s.sendLocked(ctx, frame)
}

func (s *Session) sendLocked(ctx context.Context, frame []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.evalTimeout)
	defer cancel()
	err := s.transport.Send(ctx, frame)
	if errors.Is(err, context.DeadlineExceeded) {
		s.log.Warn().Dur("timeout", s.evalTimeout).Msg("send exceeded eval timeout, dropped")
		return nil
	}
	return err
}

// Invoke runs the handler registered for method. The handler's context
// carries the session logger tagged with the method name.
func (s *Session) Invoke(ctx context.Context, method Method, args Args) (json.RawMessage, error) {
	if !method.Known() {
		return nil, fmt.Errorf("%w %q", ErrUnknownMethod, method)
	}
	h, ok := s.registry.Lookup(method)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrHandlerNotFound, method)
	}

	ctx, cancel := context.WithTimeout(ctx, s.evalTimeout)
	defer cancel()
	ctx = logging.WithContext(ctx, s.log.With().Str("method", string(method)).Logger())

	var (
		result any
		err    error
	)
	call := func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s: panic: %v", method, r)
			}
		}()
		result, err = h(ctx, args)
	}
	if s.exec != nil {
		s.exec.Run(call)
	} else {
		call()
	}
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("%s: encode result: %w", method, err)
	}
	return raw, nil
}

// HandleFrame processes one frame received from the view. Invocations are
// answered with a result frame before HandleFrame returns, so frames from
// one view are handled in arrival order.
func (s *Session) HandleFrame(ctx context.Context, data []byte) error {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}

	switch f.Type {
	case FrameReady:
		s.MarkReady(ctx)
		return nil
	case FrameInvoke:
		result, err := s.Invoke(ctx, f.Method, f.Args)
		reply := Frame{Type: FrameResult, ID: f.ID, Result: result}
		if err != nil {
			s.log.Warn().Err(err).Str("method", string(f.Method)).Msg("invoke failed")
			reply.Error = err.Error()
		}
		out, encErr := json.Marshal(reply)
		if encErr != nil {
			return fmt.Errorf("encode result: %w", encErr)
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return ErrSessionClosed
		}
		return s.sendLocked(ctx, out)
	default:
		return fmt.Errorf("unexpected frame type %q", f.Type)
	}
}

// Close drops deferred events and rejects further dispatches.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.pending = nil
	s.mu.Unlock()
	s.closeOnce.Do(func() { close(s.closedCh) })
}

// Done is closed when the session closes.
func (s *Session) Done() <-chan struct{} { return s.closedCh }

var _ Dispatcher = (*Session)(nil)
