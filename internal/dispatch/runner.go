package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// Result is the captured outcome of one measurement run.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner launches the external measurement routine. Implementations must
// return promptly once ctx is done.
type Runner interface {
	Run(ctx context.Context) (Result, error)
}

// ExitError reports a measurement process that ran but exited non-zero.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExecRunner runs a fixed command line in a fixed working directory with the
// inherited environment plus Env.
type ExecRunner struct {
	Path string
	Args []string
	Dir  string
	Env  []string

	// WaitDelay bounds how long Run waits for output pipes after the process
	// is killed; see exec.Cmd.WaitDelay.
	WaitDelay time.Duration
}

// NewScriptRunner runs script with the given interpreter and forces
// unbuffered Python output.
func NewScriptRunner(interpreter, script, dir string) *ExecRunner {
	return &ExecRunner{
		Path:      interpreter,
		Args:      []string{script},
		Dir:       dir,
		Env:       []string{"PYTHONUNBUFFERED=1"},
		WaitDelay: 2 * time.Second,
	}
}

// Run starts the command and waits for it to exit or for ctx to end.
func (r *ExecRunner) Run(ctx context.Context) (Result, error) {
	cmd := exec.CommandContext(ctx, r.Path, r.Args...)
	cmd.Dir = r.Dir
	cmd.Env = append(os.Environ(), r.Env...)
	cmd.WaitDelay = r.WaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: -1,
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err != nil && ctx.Err() != nil {
		return res, ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return res, &ExitError{Code: exitErr.ExitCode()}
	}
	return res, err
}
