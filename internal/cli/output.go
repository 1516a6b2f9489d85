// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/rigrun-launcher/internal/searxng"
	"github.com/jeranaias/rigrun-launcher/internal/ui/styles"
	"github.com/jeranaias/rigrun-launcher/internal/util"
)

// =============================================================================
// STYLES
// =============================================================================

var (
	promptStyle = lipgloss.NewStyle().Foreground(styles.Cyan).Bold(true)
	titleStyle  = lipgloss.NewStyle().Foreground(styles.Purple).Bold(true)
	urlStyle    = lipgloss.NewStyle().Foreground(styles.LinkColor)
	dimStyle    = lipgloss.NewStyle().Foreground(styles.TextMuted)
	errorStyle  = lipgloss.NewStyle().Foreground(styles.Rose).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(styles.Amber)
)

// render applies s only when colors are enabled.
func render(s lipgloss.Style, text string) string {
	if !ColorsEnabled() {
		return text
	}
	return s.Render(text)
}

// =============================================================================
// JSON OUTPUT
// =============================================================================

// JSONResponse is the --json output of every one-shot command.
type JSONResponse struct {
	Success   bool    `json:"success"`
	Data      any     `json:"data"`
	Error     *string `json:"error"`
	Timestamp string  `json:"timestamp"`
	Command   string  `json:"command,omitempty"`
}

// NewJSONResponse creates a successful response.
func NewJSONResponse(command string, data any) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// NewJSONErrorResponse creates a failed response.
func NewJSONErrorResponse(command string, err error) *JSONResponse {
	msg := err.Error()
	return &JSONResponse{
		Error:     &msg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Write encodes the response as indented JSON.
func (r *JSONResponse) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// =============================================================================
// TEXT OUTPUT
// =============================================================================

// printResults writes numbered search results sized to width.
func printResults(w io.Writer, resp searxng.SearchResponse, width int) {
	answers := resp.AnswerTexts()
	for _, a := range answers {
		fmt.Fprintln(w, a)
	}
	if len(answers) > 0 {
		fmt.Fprintln(w)
	}

	if len(resp.Results) == 0 {
		fmt.Fprintln(w, render(dimStyle, "No results"))
	}
	for i, r := range resp.Results {
		index := fmt.Sprintf("%2d. ", i+1)
		inner := max(width-len(index), 10)
		title := util.FirstLine(r.Title)
		if title == "" {
			title = r.URL
		}
		fmt.Fprintf(w, "%s%s\n", index, render(titleStyle, util.TruncateWidth(title, inner)))
		fmt.Fprintf(w, "%s%s\n", strings.Repeat(" ", len(index)), render(urlStyle, r.URL))
	}

	if suggestions := resp.SuggestionTexts(); len(suggestions) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, render(dimStyle, "Try: "+strings.Join(suggestions, ", ")))
	}
}

// printList writes one item per line, marking current.
func printList(w io.Writer, items []string, current string) {
	for _, item := range items {
		marker := "  "
		if item == current {
			marker = render(promptStyle, "* ")
		}
		fmt.Fprintln(w, marker+item)
	}
}
