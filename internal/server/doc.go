// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes the launcher bridge to browser renderers over HTTP.
//
// A renderer served from a dev server (for example http://localhost:5173)
// can call the same channels the terminal panel uses and receive the
// ollama-stream events.
//
// # Endpoints
//
//   - POST /api/invoke/{channel} - Invoke a channel; body is the argument list
//   - GET  /api/channels         - List channels and event names
//   - GET  /api/events           - ollama-stream events as Server-Sent Events
//   - GET  /api/ws               - WebSocket carrying invocations and events
//   - GET  /api/window           - Snapshot of the live window
//   - GET  /health               - Health check including the model runtime
//   - GET  /stats                - Bridge usage counters
//
// Channel results are returned as-is with status 200, including failure
// envelopes. Non-200 statuses are reserved for transport problems: 404 for
// an unknown channel, 400 for rejected arguments, 429 when rate limited and
// 500 for a handler panic.
//
// # Middleware
//
//   - Panic recovery
//   - Structured request logging
//   - CORS restricted to the configured origins
//   - Per-client token bucket on invocations
//
// The server binds to the loopback interface only.
package server
