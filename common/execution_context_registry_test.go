package common

import (
	"testing"

	"github.com/chromedp/cdproto/cdp"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/stretchr/testify/assert"
)

func TestExecutionContextRegistry(t *testing.T) {
	r := newExecutionContextRegistry()

	_, ok := r.lookup("f1")
	assert.False(t, ok)

	r.setDefaultContext("f1", 1)
	r.setDefaultContext("f2", 2)

	id, ok := r.lookup("f1")
	assert.True(t, ok)
	assert.Equal(t, cdpruntime.ExecutionContextID(1), id)

	t.Run("delete by context id", func(t *testing.T) {
		r.deleteContext(1)
		_, ok := r.lookup("f1")
		assert.False(t, ok)

		// Other frames are unaffected.
		id, ok := r.lookup("f2")
		assert.True(t, ok)
		assert.Equal(t, cdpruntime.ExecutionContextID(2), id)
	})

	t.Run("delete unknown context id", func(t *testing.T) {
		r.deleteContext(99)
		_, ok := r.lookup("f2")
		assert.True(t, ok)
	})
}

func TestExecutionContextRegistryReplace(t *testing.T) {
	r := newExecutionContextRegistry()

	r.setDefaultContext("f1", 1)
	r.setDefaultContext("f1", 2)

	id, ok := r.lookup("f1")
	assert.True(t, ok)
	assert.Equal(t, cdpruntime.ExecutionContextID(2), id)

	// The stale reverse entry must be gone: destroying the replaced
	// context leaves the current mapping intact.
	r.deleteContext(1)
	id, ok = r.lookup("f1")
	assert.True(t, ok)
	assert.Equal(t, cdpruntime.ExecutionContextID(2), id)
}

func TestExecutionContextRegistryClear(t *testing.T) {
	r := newExecutionContextRegistry()

	for i, fid := range []cdp.FrameID{"f1", "f2", "f3"} {
		r.setDefaultContext(fid, cdpruntime.ExecutionContextID(i+1))
	}
	r.clear()

	for _, fid := range []cdp.FrameID{"f1", "f2", "f3"} {
		_, ok := r.lookup(fid)
		assert.False(t, ok)
	}

	// The registry stays usable after a clear.
	r.setDefaultContext("f1", 9)
	id, ok := r.lookup("f1")
	assert.True(t, ok)
	assert.Equal(t, cdpruntime.ExecutionContextID(9), id)
}
