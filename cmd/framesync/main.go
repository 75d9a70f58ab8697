// Command framesync is a small inspection tool for the frame
// synchronization engine: it attaches to a running browser over the
// DevTools WebSocket endpoint, mirrors the page's frame tree and can
// evaluate expressions in it.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
