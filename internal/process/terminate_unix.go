//go:build unix

package process

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// prepareCommand puts the child in its own process group so the whole
// tree can be signaled at once.
func prepareCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

type groupTerminator struct {
	grace time.Duration
}

func newPlatformTerminator(grace time.Duration) Terminator {
	return &groupTerminator{grace: grace}
}

// Terminate sends SIGTERM to the process group and schedules SIGKILL for
// the group once the grace period has elapsed.
func (t *groupTerminator) Terminate(p *os.Process) error {
	if p == nil {
		return nil
	}
	pgid := -p.Pid

	if err := unix.Kill(pgid, unix.SIGTERM); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return os.ErrProcessDone
		}
		// Group signaling unavailable: fall back to the leader.
		if kerr := p.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
			return kerr
		}
		return nil
	}

	time.AfterFunc(t.grace, func() {
		_ = unix.Kill(pgid, unix.SIGKILL)
	})
	return nil
}
