// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestAtomicWriteFile_Basic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := []byte("log_level = \"info\"\n")

	require.NoError(t, AtomicWriteFile(path, data, 0600))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestAtomicWriteFile_CreatesPrivateParent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "launcher")
	path := filepath.Join(dir, "config.toml")

	require.NoError(t, AtomicWriteFile(path, []byte("x"), 0600))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	if runtime.GOOS != "windows" {
		assert.Equal(t, DirPerm, info.Mode().Perm())
	}
}

func TestAtomicWriteFile_OverwritesWithoutLeftovers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	require.NoError(t, AtomicWriteFile(path, []byte("first"), 0600))
	require.NoError(t, AtomicWriteFile(path, []byte("second"), 0600))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "config.toml", entries[0].Name())
}

func TestAtomicWriteFile_Permissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not enforced on windows")
	}
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, AtomicWriteFile(path, nil, 0600))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	assert.Zero(t, info.Size())
}

// =============================================================================
// STRING TESTS
// =============================================================================

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"truncated", "hello world", 8, "hello..."},
		{"tiny limit", "hello", 2, "he"},
		{"zero", "hello", 0, ""},
		{"multibyte", "héllo wörld", 7, "héll..."},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, TruncateRunes(tc.in, tc.max))
		})
	}
}

func TestTruncateWidth(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"fits", "rust async", 20, "rust async"},
		{"ascii", "rust async runtime", 10, "rust as..."},
		{"wide runes", "日本語のページ", 7, "日本..."},
		{"tiny limit", "hello", 3, "hel"},
		{"zero", "hello", 0, ""},
		{"empty", "", 5, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := TruncateWidth(tc.in, tc.max)
			assert.Equal(t, tc.want, got)
			assert.LessOrEqual(t, StringWidth(got), max(tc.max, 0))
		})
	}
}

func TestStringWidth(t *testing.T) {
	assert.Equal(t, 5, StringWidth("hello"))
	assert.Equal(t, 6, StringWidth("日本語"))
	assert.Equal(t, 0, StringWidth(""))
}

func TestPadRight(t *testing.T) {
	assert.Equal(t, "ab   ", PadRight("ab", 5))
	assert.Equal(t, "日本 ", PadRight("日本", 5))
	assert.Equal(t, "abcdef", PadRight("abcdef", 3))
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "title", FirstLine("  title \nbody"))
	assert.Equal(t, "only", FirstLine("only"))
	assert.Empty(t, FirstLine(strings.Repeat("\n", 3)))
}
