package chain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultInterpreter runs uploaded test scripts
	DefaultInterpreter = "python"

	// DefaultScriptTimeout bounds a script run
	DefaultScriptTimeout = 60 * time.Second

	timedOutMessage = "The code execution timed out."
)

// ScriptResult captures one script run
type ScriptResult struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	TimedOut bool          `json:"timed_out"`
	Duration time.Duration `json:"duration"`
}

// Passed reports whether the script exited cleanly
func (r *ScriptResult) Passed() bool {
	return !r.TimedOut && r.ExitCode == 0
}

// Document renders the result as the execution_output document
func (r *ScriptResult) Document() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Exit Code: %d\n", r.ExitCode)
	if r.Stdout != "" {
		fmt.Fprintf(&b, "Output:\n%s\n", strings.TrimRight(r.Stdout, "\n"))
	}
	if r.Stderr != "" {
		fmt.Fprintf(&b, "Errors:\n%s\n", strings.TrimRight(r.Stderr, "\n"))
	}
	return strings.TrimRight(b.String(), "\n")
}

// RunScript runs path with interpreter and captures its output. A script
// that fails or times out is not an error; only failing to start it, or
// cancellation of ctx, is.
func RunScript(ctx context.Context, interpreter, path string, timeout time.Duration) (*ScriptResult, error) {
	if interpreter == "" {
		interpreter = DefaultInterpreter
	}
	if timeout <= 0 {
		timeout = DefaultScriptTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, interpreter, path)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	result := &ScriptResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
		result.ExitCode = -1
		result.Stdout = ""
		result.Stderr = timedOutMessage
		log.Warn().Str("path", path).Dur("timeout", timeout).Msg("script timed out")
		return result, nil
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("failed to run %s: %w", path, err)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	log.Debug().
		Str("path", path).
		Int("exit_code", result.ExitCode).
		Dur("duration", result.Duration).
		Msg("script finished")

	return result, nil
}
