package common

import (
	"sync"
	"sync/atomic"

	"github.com/browserkit/framesync/log"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/mailru/easyjson"
	"golang.org/x/net/context"
)

// Ensure Session implements the EventEmitter and Executor interfaces.
var _ EventEmitter = &Session{}
var _ cdp.Executor = &Session{}

// session is the subset of Session the frame manager needs: a command
// executor plus an event emitter tied to one target. Tests inject
// fakes through it.
type session interface {
	cdp.Executor
	EventEmitter

	ID() target.SessionID
	Done() <-chan struct{}
}

// Session represents a CDP session to a target.
type Session struct {
	BaseEventEmitter

	ctx       context.Context
	conn      *Connection
	id        target.SessionID
	msgID     int64
	readCh    chan *cdproto.Message
	done      chan struct{}
	closeOnce sync.Once
	logger    *log.Logger
}

// NewSession creates a new session.
func NewSession(ctx context.Context, conn *Connection, id target.SessionID, logger *log.Logger) *Session {
	s := Session{
		BaseEventEmitter: NewBaseEventEmitter(ctx),
		ctx:              ctx,
		conn:             conn,
		id:               id,
		msgID:            0,
		readCh:           make(chan *cdproto.Message),
		done:             make(chan struct{}),
		logger:           logger,
	}
	go s.readLoop()
	return &s
}

// close is safe to call from any goroutine and more than once; the
// connection may close a session both on target detach and on
// connection shutdown.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		// Stop the read loop
		close(s.done)

		s.emit(EventSessionClosed, nil)
	})
}

// readLoop unmarshals messages routed to this session by the
// connection and re-emits them as typed CDP events.
func (s *Session) readLoop() {
	for {
		select {
		case msg := <-s.readCh:
			ev, err := cdproto.UnmarshalMessage(msg)
			if err != nil {
				if _, ok := err.(cdp.ErrUnknownCommandOrEvent); ok {
					// This is most likely an event received from an older
					// Chrome which a newer cdproto doesn't have, as it is
					// deprecated. Ignore that error, and emit raw cdproto.Message.
					s.emit("", msg)
					continue
				}
				s.logger.Errorf("Session:readLoop", "sid:%v unmarshaling message: %v", s.id, err)
				continue
			}
			s.emit(string(msg.Method), ev)
		case <-s.done:
			return
		}
	}
}

// ID returns the session ID.
func (s *Session) ID() target.SessionID {
	return s.id
}

// Done returns a channel that is closed when the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Execute implements the cdp.Executor interface.
func (s *Session) Execute(ctx context.Context, method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
	select {
	case <-s.done:
		return ErrTargetClosed
	default:
	}

	id := atomic.AddInt64(&s.msgID, 1)

	// Setup event handler used to block for response to message being sent.
	ch := make(chan *cdproto.Message, 1)
	evCancelCtx, evCancelFn := context.WithCancel(ctx)
	chEvHandler := make(chan Event)
	go func() {
		for {
			select {
			case <-evCancelCtx.Done():
				return
			case ev := <-chEvHandler:
				if msg, ok := ev.data.(*cdproto.Message); ok && msg.ID == id {
					select {
					case <-evCancelCtx.Done():
					case ch <- msg:
						// We expect only one response with the matching message ID,
						// then remove event handler by cancelling context and stopping goroutine.
						evCancelFn()
						return
					}
				}
			}
		}
	}()
	s.onAll(evCancelCtx, chEvHandler)
	defer evCancelFn() // Remove event handler

	// Send the message
	var buf []byte
	if params != nil {
		var err error
		buf, err = easyjson.Marshal(params)
		if err != nil {
			return err
		}
	}
	msg := &cdproto.Message{
		ID:        id,
		SessionID: s.id,
		Method:    cdproto.MethodType(method),
		Params:    buf,
	}
	return s.conn.send(msg, ch, res)
}
