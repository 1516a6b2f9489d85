// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// pollInterval is the wait between readiness probes after autostart.
const pollInterval = 500 * time.Millisecond

// findExecutable returns the first of PATH lookups or candidate paths that exists.
func findExecutable(names []string, candidates []string) (string, error) {
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("ollama not found in PATH or %d common installation directories", len(candidates))
}

// startOllamaProcess launches `ollama serve` detached and waits for it to
// answer. The platform files supply the candidate paths and process attributes.
func (c *Client) startOllamaProcess(ctx context.Context) error {
	path, err := findOllamaExecutable()
	if err != nil {
		return &ClientError{Type: ErrTypeNotRunning, Message: ErrNotRunning.Message, Cause: err}
	}

	cmd := exec.Command(path, "serve")
	// GPU-related variables (OLLAMA_VULKAN etc.) must reach the server.
	cmd.Env = os.Environ()
	cmd.SysProcAttr = detachedProcAttr()

	if err := cmd.Start(); err != nil {
		return &ClientError{
			Type:    ErrTypeNotRunning,
			Message: ErrNotRunning.Message,
			Cause:   fmt.Errorf("start %s: %w", path, err),
		}
	}
	if cmd.Process != nil {
		_ = cmd.Process.Release()
	}

	return c.waitReady(ctx, path, startupWait)
}

func (c *Client) waitReady(ctx context.Context, path string, wait time.Duration) error {
	start := time.Now()
	deadline := start.Add(wait)
	c.logger.Info("starting ollama service", "path", path)

	var lastErr error
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return &ClientError{Type: ErrTypeTimeout, Message: "Ollama startup cancelled", Cause: ctx.Err()}
		default:
		}

		checkCtx, cancel := context.WithTimeout(ctx, pollInterval)
		lastErr = c.CheckRunning(checkCtx)
		cancel()
		if lastErr == nil {
			c.logger.Info("ollama service started", "elapsed", time.Since(start).Round(100*time.Millisecond))
			return nil
		}

		select {
		case <-ctx.Done():
		case <-time.After(pollInterval):
		}
	}

	return &ClientError{
		Type:    ErrTypeNotRunning,
		Message: fmt.Sprintf("Ollama started but not responding after %s", wait),
		Cause:   lastErr,
	}
}
