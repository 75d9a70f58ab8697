package common

import (
	"sync"

	"github.com/chromedp/cdproto/cdp"
	cdpruntime "github.com/chromedp/cdproto/runtime"
)

// executionContextRegistry is a bidirectional map between frame IDs
// and their default execution context IDs. Only default contexts are
// recorded, so it holds at most one context per frame. The reverse
// index exists because context destruction events carry only the
// context ID.
type executionContextRegistry struct {
	mu         sync.RWMutex
	frameToCtx map[cdp.FrameID]cdpruntime.ExecutionContextID
	ctxToFrame map[cdpruntime.ExecutionContextID]cdp.FrameID
}

func newExecutionContextRegistry() *executionContextRegistry {
	return &executionContextRegistry{
		frameToCtx: make(map[cdp.FrameID]cdpruntime.ExecutionContextID),
		ctxToFrame: make(map[cdpruntime.ExecutionContextID]cdp.FrameID),
	}
}

// setDefaultContext records the default context of a frame, replacing
// a stale entry if the frame already had one.
func (r *executionContextRegistry) setDefaultContext(frameID cdp.FrameID, ctxID cdpruntime.ExecutionContextID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.frameToCtx[frameID]; ok {
		delete(r.ctxToFrame, old)
	}
	r.frameToCtx[frameID] = ctxID
	r.ctxToFrame[ctxID] = frameID
}

// deleteContext erases the mapping entry for a destroyed context.
// Unknown context IDs are ignored.
func (r *executionContextRegistry) deleteContext(ctxID cdpruntime.ExecutionContextID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	frameID, ok := r.ctxToFrame[ctxID]
	if !ok {
		return
	}
	delete(r.ctxToFrame, ctxID)
	delete(r.frameToCtx, frameID)
}

// clear drops all recorded contexts.
func (r *executionContextRegistry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frameToCtx = make(map[cdp.FrameID]cdpruntime.ExecutionContextID)
	r.ctxToFrame = make(map[cdpruntime.ExecutionContextID]cdp.FrameID)
}

// lookup returns the default context of a frame. A false return means
// no default context is known yet for the frame, e.g. right after a
// navigation.
func (r *executionContextRegistry) lookup(frameID cdp.FrameID) (cdpruntime.ExecutionContextID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctxID, ok := r.frameToCtx[frameID]
	return ctxID, ok
}
