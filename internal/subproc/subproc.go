// Package subproc isolates shell-out parsing behind a typed wrapper so the
// regex-matched stderr/stdout contracts of spec.md §6 can be exercised with
// injected fake captures in tests (DESIGN NOTES: "Subprocess shell-outs").
package subproc

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/pkg/errors"
)

// ErrTimeout is returned when a run exceeds its deadline and the process
// group was killed.
var ErrTimeout = errors.New("subprocess timed out")

// Result captures everything a caller needs to interpret one invocation.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner executes external tools with an optional hard timeout, capturing
// output for structured error mapping rather than streaming/parsing
// inline, following the teacher's internal/executor package shape.
type Runner struct {
	// Timeout, if non-zero, bounds a single Run call. On expiry the
	// process group is killed (spec.md §4.4's 20-minute ipsw extract
	// contract).
	Timeout time.Duration
}

// Run executes name with args, waiting for completion or the Runner's
// timeout, and returns the captured result regardless of exit status — the
// caller inspects ExitCode/Stderr to classify the outcome per spec.md §6's
// external tool contracts.
func (r Runner) Run(ctx context.Context, dir, name string, args ...string) (Result, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.SysProcAttr = setpgid()
	// Kill the whole group while the leader is still unreaped, so its pgid
	// can still be looked up.
	cmd.Cancel = func() error {
		killProcessGroup(cmd)
		return nil
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	if ctx.Err() == context.DeadlineExceeded {
		killProcessGroup(cmd)
		return res, ErrTimeout
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Non-zero exit is not itself an error here: callers classify
			// ExitCode/Stderr per the tool-specific contract in spec.md §6.
			return res, nil
		}
		return res, errors.Wrapf(err, "running %s", name)
	}
	return res, nil
}

