// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package panel is the terminal renderer of the launcher: a Bubble Tea
// program drawing the popup window inside the terminal.
//
// The panel owns no launcher state. It calls the bridge for every action,
// follows the surface.Window for visibility and placement, and receives
// ollama-stream events that the bridge forwards from the window.
//
// Input starting with a slash is a command:
//
//	/search <query> [!engine ...]  search, optionally on given engines
//	/engines                       list engines known to SearXNG
//	/models                        list installed models
//	/model <name>                  switch the chat model
//	/copy [n]                      copy the last answer, or result n's URL
//	/clear                         start a new conversation
//	/help                          show this list
//
// Anything else is sent to the model as the next user message.
package panel
