// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package searxng wraps a local SearXNG metasearch instance behind two
// operations that never fail with a raw error.
//
// # Operations
//
//   - Search: GET /search?q=...&format=json&engines=a,b with a 10s timeout.
//     Upstream results are projected to {title, url}; every other field of
//     the upstream response is passed through unchanged.
//   - Engines: GET /config with a 5s timeout, returning the engine names in
//     the order the aggregator lists them.
//
// # Error classification
//
// Every failure is reported as an envelope message in one of four classes:
//
//   - refused: nothing is listening on the configured URL
//   - status: the aggregator answered with a non-2xx status
//   - no response: the request left the process but no answer came back
//     (includes timeouts)
//   - other: anything else, reported with its own message
//
// # Usage
//
//	client := searxng.NewClient()
//	res := client.Search(ctx, "rust async", "google")
//	if res.Error {
//	    fmt.Println(res.Message)
//	}
package searxng
