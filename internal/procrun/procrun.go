package procrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"carescribe/internal/services"
)

// DefaultTimeout bounds a single external tool invocation.
const DefaultTimeout = 5 * time.Minute

// waitDelay is how long Run waits for output pipes after the process is killed.
const waitDelay = 2 * time.Second

const maxStderrInError = 512

var commandContext = exec.CommandContext

// Command describes one external tool invocation.
type Command struct {
	Name    string
	Args    []string
	Dir     string
	Timeout time.Duration
}

func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result captures the outcome of a finished invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner executes external commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// Exec runs commands as child processes in their own process group so a
// deadline kills the tool together with anything it spawned.
type Exec struct{}

// NewExec returns the process-backed runner.
func NewExec() *Exec {
	return &Exec{}
}

// Run starts the command, waits for it, and returns exactly one result. A run
// past its deadline is hard-killed and reported as services.ErrTimeout; a
// non-zero exit is reported as services.ErrExternalTool with stderr attached.
func (e *Exec) Run(ctx context.Context, command Command) (Result, error) {
	name := strings.TrimSpace(command.Name)
	if name == "" {
		return Result{ExitCode: -1}, services.Wrap(services.ErrValidation, "procrun", "run", "command name is empty", nil)
	}
	timeout := command.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := commandContext(runCtx, name, command.Args...) //nolint:gosec
	cmd.Dir = command.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay
	configureProcessGroup(cmd)

	start := time.Now()
	err := cmd.Run()
	result := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode(cmd, err),
		Duration: time.Since(start),
	}
	if err == nil {
		return result, nil
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return result, services.Wrap(
			services.ErrTimeout,
			"procrun",
			name,
			fmt.Sprintf("killed after %s", timeout),
			runCtx.Err(),
		)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, fmt.Errorf("%s: %w", name, ctxErr)
	}
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return result, services.Wrap(services.ErrExternalTool, "procrun", name, "start failed", err)
	}
	return result, services.Wrap(
		services.ErrExternalTool,
		"procrun",
		name,
		fmt.Sprintf("exit status %d: %s", result.ExitCode, tail(result.Stderr, maxStderrInError)),
		err,
	)
}

func exitCode(cmd *exec.Cmd, err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}

func tail(value string, limit int) string {
	value = strings.TrimSpace(value)
	if len(value) <= limit {
		return value
	}
	return "..." + value[len(value)-limit:]
}
