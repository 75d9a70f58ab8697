package common

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/browserkit/framesync/log"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	cdppage "github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"golang.org/x/net/context"
)

// FrameManager mirrors a target's frame tree and keeps it consistent
// with the stream of CDP frame and execution context lifecycle events.
// It emits EventFrameAttached, EventFrameNavigated and
// EventFrameDetached with the affected *Frame as payload.
type FrameManager struct {
	BaseEventEmitter

	ctx       context.Context
	session   session
	registry  *executionContextRegistry
	formatter ExceptionFormatter
	logger    *log.Logger

	// framesMu serializes all tree mutations. Events are already
	// processed one at a time by the dispatch goroutine; the lock
	// guards the query methods called from other goroutines.
	framesMu  sync.RWMutex
	frames    map[cdp.FrameID]*Frame
	mainFrame *Frame

	eventCh chan Event
}

// NewFrameManager enables the Page and Runtime domains on the session,
// fetches the target's current frame tree and starts reconciling
// lifecycle events against it. A nil formatter falls back to the
// default exception formatter.
func NewFrameManager(ctx context.Context, s session, formatter ExceptionFormatter, logger *log.Logger) (*FrameManager, error) {
	if formatter == nil {
		formatter = defaultExceptionFormatter{}
	}
	m := &FrameManager{
		BaseEventEmitter: NewBaseEventEmitter(ctx),
		ctx:              ctx,
		session:          s,
		registry:         newExecutionContextRegistry(),
		formatter:        formatter,
		logger:           logger,
		frames:           make(map[cdp.FrameID]*Frame),
		eventCh:          make(chan Event),
	}

	if err := m.initDomains(); err != nil {
		return nil, err
	}
	if err := m.initFrameTree(); err != nil {
		return nil, err
	}
	m.initEvents()

	return m, nil
}

func (m *FrameManager) initDomains() error {
	actions := []Action{
		cdppage.Enable(),
		cdpruntime.Enable(),
	}
	for _, action := range actions {
		if err := action.Do(cdp.WithExecutor(m.ctx, m.session)); err != nil {
			return fmt.Errorf("enabling domain on session %q: %w", m.session.ID(), err)
		}
	}
	return nil
}

// initFrameTree recursively enumerates the frames that already exist
// in the target to create the initial in-memory structures.
func (m *FrameManager) initFrameTree() error {
	m.logger.Debugf("FrameManager:initFrameTree", "sid:%v", m.session.ID())

	frameTree, err := cdppage.GetFrameTree().Do(cdp.WithExecutor(m.ctx, m.session))
	if err != nil {
		return fmt.Errorf("getting frame tree: %w", err)
	}
	if frameTree == nil {
		return fmt.Errorf("got a nil frame tree")
	}
	return m.handleFrameTree(frameTree)
}

func (m *FrameManager) handleFrameTree(frameTree *cdppage.FrameTree) error {
	if frameTree.Frame.ParentID != "" {
		m.onFrameAttached(frameTree.Frame.ID, frameTree.Frame.ParentID)
	}
	if err := m.onFrameNavigated(frameTree.Frame); err != nil {
		return err
	}
	for _, child := range frameTree.ChildFrames {
		if err := m.handleFrameTree(child); err != nil {
			return err
		}
	}
	return nil
}

// initEvents subscribes to the session's frame and execution context
// lifecycle events and dispatches them one at a time, so that all tree
// mutations happen on a single goroutine.
func (m *FrameManager) initEvents() {
	events := []string{
		cdproto.EventPageFrameAttached,
		cdproto.EventPageFrameDetached,
		cdproto.EventPageFrameNavigated,
		cdproto.EventRuntimeExecutionContextCreated,
		cdproto.EventRuntimeExecutionContextDestroyed,
		cdproto.EventRuntimeExecutionContextsCleared,
	}
	m.session.on(m.ctx, events, m.eventCh)

	go func() {
		for {
			select {
			case <-m.session.Done():
				m.logger.Debugf("FrameManager:initEvents:session.done", "sid:%v", m.session.ID())
				return
			case <-m.ctx.Done():
				return
			case event := <-m.eventCh:
				switch ev := event.data.(type) {
				case *cdppage.EventFrameAttached:
					m.onFrameAttached(ev.FrameID, ev.ParentFrameID)
				case *cdppage.EventFrameDetached:
					m.onFrameDetached(ev.FrameID)
				case *cdppage.EventFrameNavigated:
					if err := m.onFrameNavigated(ev.Frame); err != nil {
						m.logger.Errorf("FrameManager:initEvents",
							"sid:%v frame navigation: %v", m.session.ID(), err)
					}
				case *cdpruntime.EventExecutionContextCreated:
					m.onExecutionContextCreated(ev)
				case *cdpruntime.EventExecutionContextDestroyed:
					m.onExecutionContextDestroyed(ev.ExecutionContextID)
				case *cdpruntime.EventExecutionContextsCleared:
					m.onExecutionContextsCleared()
				}
			}
		}
	}()
}

// onFrameAttached registers a new frame under an already registered
// parent. Duplicate deliveries are a no-op. An empty parent ID means
// the main frame changed its backend identity, which is handled the
// same way as an unknown-frame navigation.
func (m *FrameManager) onFrameAttached(frameID cdp.FrameID, parentFrameID cdp.FrameID) {
	m.logger.Debugf("FrameManager:onFrameAttached", "fid:%v pfid:%v", frameID, parentFrameID)

	m.framesMu.Lock()
	defer m.framesMu.Unlock()

	if _, ok := m.frames[frameID]; ok {
		return
	}
	if parentFrameID == "" {
		mf := m.mainFrame
		if mf == nil {
			return
		}
		err := m.frameNavigated(&cdp.Frame{
			ID:             frameID,
			Name:           mf.Name(),
			URL:            mf.URL(),
			SecurityOrigin: mf.SecurityOrigin(),
			MimeType:       mf.MimeType(),
		})
		if err != nil {
			m.logger.Errorf("FrameManager:onFrameAttached",
				"fid:%v re-identifying main frame: %v", frameID, err)
		}
		return
	}
	parentFrame, ok := m.frames[parentFrameID]
	if !ok {
		// The parent may already have been removed again; the event
		// stream can redeliver or arrive out of order.
		m.logger.Debugf("FrameManager:onFrameAttached:return",
			"fid:%v pfid:%v missing parent", frameID, parentFrameID)
		return
	}
	frame := NewFrame(m, parentFrameID, frameID)
	m.frames[frameID] = frame
	parentFrame.addChildFrame(frameID)
	m.emit(EventFrameAttached, frame)
}

// onFrameNavigated reconciles a navigation payload against the tree.
func (m *FrameManager) onFrameNavigated(framePayload *cdp.Frame) error {
	m.framesMu.Lock()
	defer m.framesMu.Unlock()
	return m.frameNavigated(framePayload)
}

// frameNavigated expects framesMu to be held. An unknown frame ID
// falls back to the main frame, covering navigations to a new backend
// process that were not preceded by an explicit attach; in that case
// the main frame is re-keyed in place, preserving its identity.
func (m *FrameManager) frameNavigated(framePayload *cdp.Frame) error {
	m.logger.Debugf("FrameManager:frameNavigated", "fid:%v url:%q", framePayload.ID, framePayload.URL)

	isMainFrame := framePayload.ParentID == ""
	frame := m.frames[framePayload.ID]

	if frame == nil && !isMainFrame {
		return fmt.Errorf("navigated frame %q is unknown but carries parent %q: %w",
			framePayload.ID, framePayload.ParentID, ErrInconsistentFrameTree)
	}
	if frame == nil {
		// Navigation to a new backend process that was not preceded by
		// an explicit attach; the main frame changes backend identity.
		frame = m.mainFrame
	}

	if frame != nil {
		for _, id := range frame.childFrameIDs() {
			if child, ok := m.frames[id]; ok {
				m.removeFramesRecursively(child)
			}
		}
	}

	if isMainFrame {
		if frame != nil {
			// Re-key to retain frame identity across the navigation.
			delete(m.frames, frame.ID())
			frame.setID(framePayload.ID)
		} else {
			// Initial main frame navigation.
			frame = NewFrame(m, "", framePayload.ID)
		}
		m.frames[framePayload.ID] = frame
		m.mainFrame = frame
	}

	frame.navigated(framePayload)
	m.emit(EventFrameNavigated, frame)
	return nil
}

// onFrameDetached removes the frame and its whole subtree. Unknown
// frame IDs are ignored; the event stream may redeliver.
func (m *FrameManager) onFrameDetached(frameID cdp.FrameID) {
	m.logger.Debugf("FrameManager:onFrameDetached", "fid:%v", frameID)

	m.framesMu.Lock()
	defer m.framesMu.Unlock()
	frame, ok := m.frames[frameID]
	if !ok {
		return
	}
	m.removeFramesRecursively(frame)
}

// removeFramesRecursively removes the subtree rooted at frame,
// descendants before the frame itself, emitting one EventFrameDetached
// per removed node. Expects framesMu to be held.
func (m *FrameManager) removeFramesRecursively(frame *Frame) {
	for _, id := range frame.childFrameIDs() {
		if child, ok := m.frames[id]; ok {
			m.removeFramesRecursively(child)
		}
	}
	if parent, ok := m.frames[frame.ParentID()]; ok {
		parent.removeChildFrame(frame.ID())
	}
	frame.detach()
	delete(m.frames, frame.ID())
	m.emit(EventFrameDetached, frame)
}

func (m *FrameManager) onExecutionContextCreated(event *cdpruntime.EventExecutionContextCreated) {
	m.logger.Debugf("FrameManager:onExecutionContextCreated",
		"sid:%v ectxid:%d", m.session.ID(), event.Context.ID)

	var aux struct {
		FrameID   cdp.FrameID `json:"frameId"`
		IsDefault bool        `json:"isDefault"`
		Type      string      `json:"type"`
	}
	if len(event.Context.AuxData) > 0 {
		if err := json.Unmarshal(event.Context.AuxData, &aux); err != nil {
			m.logger.Errorf("FrameManager:onExecutionContextCreated",
				"unmarshaling auxData %q: %v", event.Context.AuxData, err)
			return
		}
	}
	// Only the default context of a frame is recorded; isolated worlds
	// and worker contexts don't take part in scoped evaluation.
	if !aux.IsDefault || aux.FrameID == "" {
		m.logger.Debugf("FrameManager:onExecutionContextCreated:return",
			"ectxid:%d not a frame default context", event.Context.ID)
		return
	}
	m.registry.setDefaultContext(aux.FrameID, event.Context.ID)
}

func (m *FrameManager) onExecutionContextDestroyed(execCtxID cdpruntime.ExecutionContextID) {
	m.logger.Debugf("FrameManager:onExecutionContextDestroyed",
		"sid:%v ectxid:%d", m.session.ID(), execCtxID)
	m.registry.deleteContext(execCtxID)
}

func (m *FrameManager) onExecutionContextsCleared() {
	m.logger.Debugf("FrameManager:onExecutionContextsCleared", "sid:%v", m.session.ID())
	m.registry.clear()
}

func (m *FrameManager) getFrameByID(id cdp.FrameID) *Frame {
	m.framesMu.RLock()
	defer m.framesMu.RUnlock()
	return m.frames[id]
}

// MainFrame returns the top frame of the target.
func (m *FrameManager) MainFrame() *Frame {
	m.framesMu.RLock()
	defer m.framesMu.RUnlock()
	return m.mainFrame
}

// Frames returns all live frames.
func (m *FrameManager) Frames() []*Frame {
	m.framesMu.RLock()
	defer m.framesMu.RUnlock()
	frames := make([]*Frame, 0, len(m.frames))
	for _, frame := range m.frames {
		frames = append(frames, frame)
	}
	return frames
}

// Frame returns the frame registered under the given ID, or nil.
func (m *FrameManager) Frame(id cdp.FrameID) *Frame {
	return m.getFrameByID(id)
}
