//go:build windows

package process

import (
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"
)

func prepareCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

type treeTerminator struct {
	grace time.Duration
}

func newPlatformTerminator(grace time.Duration) Terminator {
	return &treeTerminator{grace: grace}
}

// Terminate walks the process tree with taskkill while the leader is
// still alive, so its children can be found by parent PID. A plain kill
// of the leader is the fallback.
func (t *treeTerminator) Terminate(p *os.Process) error {
	if p == nil {
		return nil
	}
	return killTree(
		func() error {
			return exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(p.Pid)).Run()
		},
		p.Kill,
	)
}
