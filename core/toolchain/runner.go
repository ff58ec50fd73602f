// Package toolchain runs the external download and transcode binaries as
// child processes and parses their diagnostic output.
package toolchain

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
)

// stderrTailLimit bounds how much stderr a ToolError carries.
const stderrTailLimit = 2000

// Output is the captured output of a successful run.
type Output struct {
	Stdout string
	Stderr string
}

// Runner runs an external binary with arguments in a working directory.
// The ingestion pipeline is tested against a fake implementation.
type Runner interface {
	Run(ctx context.Context, bin string, args []string, dir string) (*Output, error)
}

// ToolError reports a non-zero exit from an external binary, carrying the
// tail of its stderr for diagnosis.
type ToolError struct {
	Bin        string
	Err        error
	StderrTail string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s failed: %v\n%s", filepath.Base(e.Bin), e.Err, e.StderrTail)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

func tail(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[len(s)-limit:]
}

// execRunner is the os/exec implementation of Runner.
type execRunner struct{}

// NewExecRunner returns the production Runner.
func NewExecRunner() Runner {
	return execRunner{}
}

// Run executes bin with args in dir. The context bounds the child's
// lifetime; on cancellation the process is killed, so no zombies remain.
func (execRunner) Run(ctx context.Context, bin string, args []string, dir string) (*Output, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &ToolError{
			Bin:        bin,
			Err:        err,
			StderrTail: tail(stderr.String(), stderrTailLimit),
		}
	}

	return &Output{Stdout: stdout.String(), Stderr: stderr.String()}, nil
}
