package process

import (
	"errors"
	"os"
	"time"
)

// Terminator stops a running process together with every process it
// spawned. Exactly one implementation is compiled per platform.
type Terminator interface {
	Terminate(p *os.Process) error
}

// NewTerminator returns the platform Terminator. grace is how long a
// politely signaled process group gets before it is killed.
func NewTerminator(grace time.Duration) Terminator {
	return newPlatformTerminator(grace)
}

// killTree runs tree, which kills a process and its descendants, and only
// if that fails falls back to kill for the leader alone. Killing the
// leader first would leave tree nothing to walk.
func killTree(tree, kill func() error) error {
	treeErr := tree()
	if treeErr == nil {
		return nil
	}
	if err := kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return errors.Join(treeErr, err)
	}
	return nil
}
