package common

import (
	"context"
	"fmt"
	"os"
	"os/exec"
)

// Command describes a single external tool invocation.
type Command struct {
	// Name is the executable to run.
	Name string
	// Args are the command line arguments.
	Args []string
	// Dir is the working directory ("" keeps the current one).
	Dir string
	// Env holds extra environment variables in KEY=VALUE form,
	// appended to the inherited environment.
	Env []string
}

// String renders the invocation for log output.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}

	return fmt.Sprintf("%s %v", c.Name, c.Args)
}

// Runner executes external commands. The indirection exists so services
// can be tested without invoking real tools.
type Runner interface {
	// Run executes the command, streaming its output to the terminal,
	// and waits for it to exit.
	Run(ctx context.Context, cmd Command) error
	// Output executes the command silently and returns its stdout.
	Output(ctx context.Context, cmd Command) ([]byte, error)
	// Start launches the command without waiting for it to exit.
	Start(ctx context.Context, cmd Command) error
}

// ExecRunner runs commands via os/exec.
type ExecRunner struct{}

// NewExecRunner returns a Runner backed by os/exec.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run implements Runner.
func (*ExecRunner) Run(ctx context.Context, cmd Command) error {
	execCmd := newExecCmd(ctx, cmd)
	execCmd.Stdout = os.Stdout
	execCmd.Stderr = os.Stderr

	if err := execCmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", cmd.Name, err)
	}

	return nil
}

// Output implements Runner.
func (*ExecRunner) Output(ctx context.Context, cmd Command) ([]byte, error) {
	output, err := newExecCmd(ctx, cmd).Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cmd.Name, err)
	}

	return output, nil
}

// Start implements Runner.
func (*ExecRunner) Start(ctx context.Context, cmd Command) error {
	if err := newExecCmd(ctx, cmd).Start(); err != nil {
		return fmt.Errorf("%s: %w", cmd.Name, err)
	}

	return nil
}

// newExecCmd builds an exec.Cmd with the working directory and environment applied.
func newExecCmd(ctx context.Context, cmd Command) *exec.Cmd {
	execCmd := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	execCmd.Dir = cmd.Dir

	if len(cmd.Env) > 0 {
		execCmd.Env = append(os.Environ(), cmd.Env...)
	}

	return execCmd
}
