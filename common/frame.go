package common

import (
	"sync"

	"github.com/chromedp/cdproto/cdp"
)

// Frame represents one node in the document's frame hierarchy. Frames
// live in the manager's arena keyed by their CDP frame ID; the parent
// link is held as an ID (weak lookup, not ownership) and the children
// as an ID set, so that both directions can be kept consistent by the
// manager while events mutate the tree.
type Frame struct {
	manager *FrameManager

	propertiesMu   sync.RWMutex
	id             cdp.FrameID
	parentID       cdp.FrameID
	name           string
	url            string
	securityOrigin string
	mimeType       string
	detached       bool

	childIDsMu sync.RWMutex
	childIDs   map[cdp.FrameID]bool
}

// NewFrame creates a new frame under the given parent, which is empty
// for the main frame.
func NewFrame(m *FrameManager, parentID cdp.FrameID, frameID cdp.FrameID) *Frame {
	return &Frame{
		manager:  m,
		id:       frameID,
		parentID: parentID,
		childIDs: make(map[cdp.FrameID]bool),
	}
}

func (f *Frame) addChildFrame(id cdp.FrameID) {
	f.childIDsMu.Lock()
	f.childIDs[id] = true
	f.childIDsMu.Unlock()
}

func (f *Frame) removeChildFrame(id cdp.FrameID) {
	f.childIDsMu.Lock()
	delete(f.childIDs, id)
	f.childIDsMu.Unlock()
}

func (f *Frame) childFrameIDs() []cdp.FrameID {
	f.childIDsMu.RLock()
	defer f.childIDsMu.RUnlock()
	ids := make([]cdp.FrameID, 0, len(f.childIDs))
	for id := range f.childIDs {
		ids = append(ids, id)
	}
	return ids
}

// setID re-keys the frame. The manager is responsible for moving the
// arena entry and the parent's child set entry along with it.
func (f *Frame) setID(id cdp.FrameID) {
	f.propertiesMu.Lock()
	f.id = id
	f.propertiesMu.Unlock()
}

// navigated updates the descriptive fields from a navigation payload.
// Object identity and the parent edge are untouched.
func (f *Frame) navigated(frame *cdp.Frame) {
	f.propertiesMu.Lock()
	f.name = frame.Name
	f.url = frame.URL
	f.securityOrigin = frame.SecurityOrigin
	f.mimeType = frame.MimeType
	f.propertiesMu.Unlock()
}

// detach marks the frame as detached and severs its parent link.
func (f *Frame) detach() {
	f.propertiesMu.Lock()
	f.detached = true
	f.parentID = ""
	f.propertiesMu.Unlock()
}

// ID returns the frame's CDP frame ID.
func (f *Frame) ID() cdp.FrameID {
	f.propertiesMu.RLock()
	defer f.propertiesMu.RUnlock()
	return f.id
}

// Name returns the frame's name attribute.
func (f *Frame) Name() string {
	f.propertiesMu.RLock()
	defer f.propertiesMu.RUnlock()
	return f.name
}

// URL returns the frame's current document URL.
func (f *Frame) URL() string {
	f.propertiesMu.RLock()
	defer f.propertiesMu.RUnlock()
	return f.url
}

// SecurityOrigin returns the security origin of the frame's document.
func (f *Frame) SecurityOrigin() string {
	f.propertiesMu.RLock()
	defer f.propertiesMu.RUnlock()
	return f.securityOrigin
}

// MimeType returns the MIME type of the frame's document.
func (f *Frame) MimeType() string {
	f.propertiesMu.RLock()
	defer f.propertiesMu.RUnlock()
	return f.mimeType
}

// ParentID returns the parent frame's ID, empty for the main frame.
func (f *Frame) ParentID() cdp.FrameID {
	f.propertiesMu.RLock()
	defer f.propertiesMu.RUnlock()
	return f.parentID
}

// ParentFrame returns the parent frame, or nil for the main frame.
func (f *Frame) ParentFrame() *Frame {
	parentID := f.ParentID()
	if parentID == "" {
		return nil
	}
	return f.manager.getFrameByID(parentID)
}

// ChildFrames returns the frame's direct children.
func (f *Frame) ChildFrames() []*Frame {
	frames := make([]*Frame, 0)
	for _, id := range f.childFrameIDs() {
		if child := f.manager.getFrameByID(id); child != nil {
			frames = append(frames, child)
		}
	}
	return frames
}

// IsMainFrame returns whether this is the top frame: it has no parent
// and is not detached.
func (f *Frame) IsMainFrame() bool {
	f.propertiesMu.RLock()
	defer f.propertiesMu.RUnlock()
	return f.parentID == "" && !f.detached
}

// IsDetached returns whether the frame has been removed from the tree.
func (f *Frame) IsDetached() bool {
	f.propertiesMu.RLock()
	defer f.propertiesMu.RUnlock()
	return f.detached
}
