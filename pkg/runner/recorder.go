/*
Copyright © 2025 the shipit authors
SPDX-License-Identifier: Apache-2.0
*/

package runner

import (
	"context"
	"strings"
	"sync"
)

// Recorder is a Runner for tests. It records every invocation and can fail
// or answer specific commands via the Respond map, keyed by a substring of
// the full command line.
type Recorder struct {
	mu    sync.Mutex
	calls []string

	// Respond maps a command-line substring to the canned result for any
	// matching invocation.
	Respond map[string]Response
}

// Response is a canned result for a matching command.
type Response struct {
	Stdout string
	Err    error
}

// Run implements Runner.
func (r *Recorder) Run(ctx context.Context, name string, args ...string) error {
	_, err := r.record(name, args)
	return err
}

// Output implements Runner.
func (r *Recorder) Output(ctx context.Context, name string, args ...string) (string, error) {
	return r.record(name, args)
}

// Calls returns the recorded command lines in invocation order.
func (r *Recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// CallsMatching returns the recorded command lines containing substr.
func (r *Recorder) CallsMatching(substr string) []string {
	var matched []string
	for _, call := range r.Calls() {
		if strings.Contains(call, substr) {
			matched = append(matched, call)
		}
	}
	return matched
}

func (r *Recorder) record(name string, args []string) (string, error) {
	line := strings.Join(append([]string{name}, args...), " ")

	r.mu.Lock()
	r.calls = append(r.calls, line)
	r.mu.Unlock()

	for substr, resp := range r.Respond {
		if strings.Contains(line, substr) {
			return resp.Stdout, resp.Err
		}
	}
	return "", nil
}
