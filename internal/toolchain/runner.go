package toolchain

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"
)

// outputTail bounds how much tool output is kept for errors and logs.
const outputTail = 4 << 10

// waitDelay bounds how long Run waits for output pipes after the process is killed.
const waitDelay = 5 * time.Second

// Runner executes one external process to completion.
type Runner interface {
	// Run blocks until the process exits and returns the tail of its combined
	// stdout/stderr. A non-zero exit is reported as an error implementing ExitCoder.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExitCoder is implemented by errors for processes that ran and exited non-zero.
type ExitCoder interface {
	ExitCode() int
}

// ExecRunner runs processes with os/exec. Timeout 0 means no limit.
type ExecRunner struct {
	Timeout time.Duration
}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	var out tailBuffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	if err != nil && ctx.Err() != nil {
		err = fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	return out.Bytes(), err
}

// tailBuffer keeps the last outputTail bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(p)
	if n >= outputTail {
		b.buf = append(b.buf[:0], p[n-outputTail:]...)
		return n, nil
	}
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - outputTail; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return n, nil
}

func (b *tailBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf...)
}
