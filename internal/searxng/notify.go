// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package searxng

import (
	"context"
	"log/slog"
	"strings"
)

// Notifier receives every successful search after projection. It is the
// hook for a downstream summarization step.
type Notifier interface {
	Notify(ctx context.Context, query string, results []SearchResult) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, query string, results []SearchResult) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, query string, results []SearchResult) error {
	return f(ctx, query, results)
}

// LogNotifier logs the results it would hand to a summarizer.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify logs the query and a "title: url" line per result.
func (n *LogNotifier) Notify(_ context.Context, query string, results []SearchResult) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("sending results to summarizer", "query", query, "results", FormatResults(results))
	return nil
}

// FormatResults renders results as "title: url" lines.
func FormatResults(results []SearchResult) string {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(r.Title)
		b.WriteString(": ")
		b.WriteString(r.URL)
	}
	return b.String()
}
