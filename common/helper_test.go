package common

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/browserkit/framesync/log"

	"github.com/chromedp/cdproto/cdp"
	cdppage "github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/mailru/easyjson"
	"github.com/stretchr/testify/require"
)

func testLogger() *log.Logger {
	return log.NewNullLogger()
}

// fakeSession stands in for a Session in frame manager tests. It
// serves a canned frame tree fetch, records executed methods and lets
// tests script the Runtime.evaluate responses.
type fakeSession struct {
	BaseEventEmitter

	id        target.SessionID
	done      chan struct{}
	frameTree *cdppage.FrameTree

	mu       sync.Mutex
	executed []string
	evalFn   func(params *cdpruntime.EvaluateParams, ret *cdpruntime.EvaluateReturns) error
}

var _ session = &fakeSession{}

func newFakeSession(ctx context.Context, frameTree *cdppage.FrameTree) *fakeSession {
	return &fakeSession{
		BaseEventEmitter: NewBaseEventEmitter(ctx),
		id:               "session_fixture_0123456789",
		done:             make(chan struct{}),
		frameTree:        frameTree,
	}
}

func (s *fakeSession) ID() target.SessionID { return s.id }

func (s *fakeSession) Done() <-chan struct{} { return s.done }

func (s *fakeSession) Execute(ctx context.Context, method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
	s.mu.Lock()
	s.executed = append(s.executed, method)
	s.mu.Unlock()

	switch r := res.(type) {
	case *cdppage.GetFrameTreeReturns:
		r.FrameTree = s.frameTree
	case *cdpruntime.EvaluateReturns:
		if s.evalFn != nil {
			return s.evalFn(params.(*cdpruntime.EvaluateParams), r)
		}
	}
	return nil
}

func frameFixture(id, parentID cdp.FrameID, url string) *cdp.Frame {
	return &cdp.Frame{
		ID:             id,
		ParentID:       parentID,
		URL:            url,
		SecurityOrigin: "https://test.local",
		MimeType:       "text/html",
	}
}

// singleFrameTree is a tree with only a main frame.
func singleFrameTree() *cdppage.FrameTree {
	return &cdppage.FrameTree{
		Frame: frameFixture("f0", "", "https://test.local/"),
	}
}

// threeLevelTree is a 3-level tree with a branching factor of 2,
// 7 frames in total.
func threeLevelTree() *cdppage.FrameTree {
	child := func(id, parentID cdp.FrameID, children ...*cdppage.FrameTree) *cdppage.FrameTree {
		return &cdppage.FrameTree{
			Frame:       frameFixture(id, parentID, "https://test.local/"+string(id)),
			ChildFrames: children,
		}
	}
	return &cdppage.FrameTree{
		Frame: frameFixture("f0", "", "https://test.local/"),
		ChildFrames: []*cdppage.FrameTree{
			child("f1", "f0",
				child("f3", "f1"),
				child("f4", "f1")),
			child("f2", "f0",
				child("f5", "f2"),
				child("f6", "f2")),
		},
	}
}

func newTestFrameManager(t *testing.T, tree *cdppage.FrameTree) (*FrameManager, *fakeSession) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	sess := newFakeSession(ctx, tree)
	fm, err := NewFrameManager(ctx, sess, nil, testLogger())
	require.NoError(t, err)
	return fm, sess
}

// eventRecorder counts emitted events by type.
type eventRecorder struct {
	mu     sync.Mutex
	events []string
}

func recordEvents(t *testing.T, emitter EventEmitter, events []string) *eventRecorder {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	rec := &eventRecorder{}
	ch := make(chan Event)
	emitter.on(ctx, events, ch)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-ch:
				rec.mu.Lock()
				rec.events = append(rec.events, ev.typ)
				rec.mu.Unlock()
			}
		}
	}()
	return rec
}

func (r *eventRecorder) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == event {
			n++
		}
	}
	return n
}

// waitForCount waits until exactly want events of the given type have
// been observed, leaving a settle period to catch spurious extras.
func (r *eventRecorder) waitForCount(t *testing.T, event string, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return r.count(event) >= want
	}, time.Second, 5*time.Millisecond)
	time.Sleep(25 * time.Millisecond)
	require.Equal(t, want, r.count(event))
}
