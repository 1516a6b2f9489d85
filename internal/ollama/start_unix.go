// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !windows

package ollama

import (
	"os"
	"path/filepath"
	"syscall"
	"time"
)

const startupWait = 10 * time.Second

func findOllamaExecutable() (string, error) {
	candidates := []string{
		"/usr/local/bin/ollama",
		"/usr/bin/ollama",
		"/opt/ollama/ollama",
	}
	if home := os.Getenv("HOME"); home != "" {
		candidates = append(candidates,
			filepath.Join(home, ".local", "bin", "ollama"),
			filepath.Join(home, "bin", "ollama"),
		)
	}
	// macOS application bundle
	candidates = append(candidates, "/Applications/Ollama.app/Contents/Resources/ollama")

	return findExecutable([]string{"ollama"}, candidates)
}

// detachedProcAttr puts the server in its own process group so it outlives us.
func detachedProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}
