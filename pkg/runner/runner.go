/*
Copyright © 2025 the shipit authors
SPDX-License-Identifier: Apache-2.0
*/

// Package runner abstracts external tool invocation (docker, gcloud) behind
// a small interface so pipeline stages can be tested without the binaries
// or daemons they drive in production.
package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// Runner executes external commands.
type Runner interface {
	// Run executes the command, streaming its output, and returns an error
	// if the command fails to start or exits non-zero.
	Run(ctx context.Context, name string, args ...string) error
	// Output executes the command and returns its trimmed stdout.
	Output(ctx context.Context, name string, args ...string) (string, error)
}

// Exec is the production Runner backed by os/exec.
type Exec struct {
	// Dir is the working directory for commands; empty means inherit.
	Dir string
	// Stdout and Stderr receive command output; nil means the process
	// streams of the pipeline itself.
	Stdout io.Writer
	Stderr io.Writer
}

// Run implements Runner.
func (e *Exec) Run(ctx context.Context, name string, args ...string) error {
	slog.Debug("exec", "command", name, "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = e.Dir
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return nil
}

// Output implements Runner.
func (e *Exec) Output(ctx context.Context, name string, args ...string) (string, error) {
	slog.Debug("exec", "command", name, "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = e.Dir

	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}
