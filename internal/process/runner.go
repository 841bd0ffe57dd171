// Package process runs external agent binaries as supervised subprocesses.
//
// Commands are always spawned from an argv vector, never through a shell.
// Output is streamed to an optional observer while it is buffered, and a
// process that outlives its deadline is terminated together with its
// descendants by a platform-specific Terminator.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/ejmockler/brutalist-mcp/internal/domain"
)

// Stream identifies which output channel a chunk came from.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

// Spec describes one command invocation.
type Spec struct {
	Command string
	Args    []string
	// Dir is the working directory; empty means the current one.
	Dir string
	// Env is appended to the parent environment.
	Env     []string
	Stdin   string
	Timeout time.Duration
	// OnOutput, if set, receives output incrementally as it is produced.
	// It is called from the goroutine copying that stream.
	OnOutput func(stream Stream, chunk []byte)
}

// Result is what a finished (or terminated) process produced.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner executes a Spec. Implementations must never return before the
// process has been reaped or abandoned after the kill grace period.
type Runner interface {
	Run(ctx context.Context, spec Spec) (Result, error)
}

// ExecRunner is the os/exec backed Runner.
type ExecRunner struct {
	terminator Terminator
	grace      time.Duration
}

// DefaultGrace is how long a terminated process may take to exit before
// it is killed outright and its pipes are closed.
const DefaultGrace = 3 * time.Second

// NewExecRunner creates a Runner using the platform Terminator.
func NewExecRunner(grace time.Duration) *ExecRunner {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &ExecRunner{terminator: NewTerminator(grace), grace: grace}
}

// Run starts the command and waits for it to exit, time out, or be
// canceled. A non-zero exit is reported as ErrToolFailed together with the
// populated Result; a missing binary is ErrToolNotFound.
func (r *ExecRunner) Run(ctx context.Context, spec Spec) (Result, error) {
	if spec.Command == "" {
		return Result{ExitCode: -1}, domain.Errorf(domain.ErrSpawnFailed, "empty command")
	}

	runCtx := ctx
	cancel := func() {}
	if spec.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
	}
	defer cancel()

	cmd := exec.CommandContext(runCtx, spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	if spec.Stdin != "" {
		cmd.Stdin = strings.NewReader(spec.Stdin)
	}
	prepareCommand(cmd)
	cmd.Cancel = func() error {
		return r.terminator.Terminate(cmd.Process)
	}
	cmd.WaitDelay = r.grace

	stdout := &streamBuffer{stream: Stdout, observer: spec.OnOutput}
	stderr := &streamBuffer{stream: Stderr, observer: spec.OnOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{ExitCode: -1}, classifyStartError(spec.Command, err)
	}

	waitErr := cmd.Wait()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode(cmd, waitErr),
		Duration: time.Since(start),
	}

	switch {
	case waitErr == nil:
		return res, nil
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		return res, domain.Wrap(domain.ErrToolTimeout,
			fmt.Sprintf("%s timed out after %s", spec.Command, spec.Timeout), runCtx.Err())
	case ctx.Err() != nil:
		return res, domain.Wrap(domain.ErrToolCanceled, "", ctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return res, domain.Errorf(domain.ErrToolFailed,
			"%s exited with code %d: %s", spec.Command, res.ExitCode, lastLine(res.Stderr))
	}
	// The process exited cleanly but a descendant kept the pipes open.
	if errors.Is(waitErr, exec.ErrWaitDelay) && res.ExitCode == 0 {
		return res, nil
	}
	return res, domain.Wrap(domain.ErrToolFailed, "", waitErr)
}

func classifyStartError(command string, err error) error {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return domain.Wrap(domain.ErrToolNotFound, fmt.Sprintf("%s: not installed or not on PATH", command), err)
	}
	return domain.Wrap(domain.ErrSpawnFailed, fmt.Sprintf("starting %s", command), err)
}

func exitCode(cmd *exec.Cmd, waitErr error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if waitErr != nil {
		return -1
	}
	return 0
}

// lastLine returns the last non-empty line of s, truncated for messages.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	line := strings.TrimSpace(lines[len(lines)-1])
	if len(line) > 300 {
		line = line[:300] + "..."
	}
	if line == "" {
		return "no stderr output"
	}
	return line
}

// streamBuffer accumulates one output stream and forwards each write to
// the observer.
type streamBuffer struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	stream   Stream
	observer func(Stream, []byte)
}

func (b *streamBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	n, err := b.buf.Write(p)
	b.mu.Unlock()
	if b.observer != nil && n > 0 {
		chunk := make([]byte, n)
		copy(chunk, p[:n])
		b.observer(b.stream, chunk)
	}
	return n, err
}

func (b *streamBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
