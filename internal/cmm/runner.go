// Package cmm drives NirSoft ControlMyMonitor, the external tool that issues
// DDC/CI commands and dumps monitor capabilities.
package cmm

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Runner executes the tool.
type Runner interface {
	Run(ctx context.Context, args ...string) ([]byte, error)
}

// ExecRunner runs the tool as a subprocess.
type ExecRunner struct {
	Path    string
	Timeout time.Duration
}

// NewExecRunner creates a runner for the tool at path.
func NewExecRunner(path string, timeout time.Duration) *ExecRunner {
	return &ExecRunner{Path: path, Timeout: timeout}
}

// Run starts the tool, waits for it to exit and returns its stdout.
func (r *ExecRunner) Run(ctx context.Context, args ...string) ([]byte, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.Path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	err := cmd.Run()

	log.Debug().
		Str("tool", r.Path).
		Int("args", len(args)).
		Dur("elapsed", time.Since(started)).
		Msg("Tool finished")

	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return stdout.Bytes(), fmt.Errorf("run %s: %w: %s", r.Path, err, msg)
		}
		return stdout.Bytes(), fmt.Errorf("run %s: %w", r.Path, err)
	}
	return stdout.Bytes(), nil
}
