// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles holds the launcher panel's colors and Lip Gloss styles.

Colors are AdaptiveColor values. A Theme resolves them against a fixed
background mode chosen from the ui.theme setting:

	dark  - dark background palette
	light - light background palette
	auto  - ask the terminal (termenv.HasDarkBackground)

The Markdown renderer used for assistant replies follows the same mode
through Theme.GlamourStyle.
*/
package styles
