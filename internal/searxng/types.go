// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package searxng

import (
	"encoding/json"
	"fmt"
)

// =============================================================================
// CALLER-FACING TYPES
// =============================================================================

// SearchResult is the simplified projection of an upstream result.
type SearchResult struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// SearchResponse is the search payload handed to callers. Results always
// holds the projection; the other fields come from the aggregator verbatim.
type SearchResponse struct {
	Query       string            `json:"query"`
	Results     []SearchResult    `json:"results"`
	Answers     []json.RawMessage `json:"answers"`
	Corrections []json.RawMessage `json:"corrections"`
	Suggestions []json.RawMessage `json:"suggestions"`
	Infoboxes   []json.RawMessage `json:"infoboxes"`

	// Extra holds upstream top-level fields not modelled above
	// (number_of_results, unresponsive_engines, ...).
	Extra map[string]json.RawMessage `json:"-"`
}

// AnswerTexts returns the display text of each answer. Older aggregators
// send plain strings, newer ones send {"answer": ..., "url": ...} objects.
func (r SearchResponse) AnswerTexts() []string {
	return texts(r.Answers, "answer")
}

// SuggestionTexts returns the suggestions that are plain strings.
func (r SearchResponse) SuggestionTexts() []string {
	return texts(r.Suggestions, "suggestion")
}

// texts extracts a string from each raw value, either the value itself or
// the string under key when the value is an object. Anything else is skipped.
func texts(raw []json.RawMessage, key string) []string {
	var out []string
	for _, v := range raw {
		var s string
		if json.Unmarshal(v, &s) == nil {
			if s != "" {
				out = append(out, s)
			}
			continue
		}
		var obj map[string]json.RawMessage
		if json.Unmarshal(v, &obj) != nil {
			continue
		}
		if json.Unmarshal(obj[key], &s) == nil && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// EngineList is the set of engine identifiers known to the aggregator.
type EngineList struct {
	Engines []string `json:"engines"`
}

// knownFields are the keys SearchResponse models explicitly.
var knownFields = map[string]bool{
	"query":       true,
	"results":     true,
	"answers":     true,
	"corrections": true,
	"suggestions": true,
	"infoboxes":   true,
}

// MarshalJSON merges Extra back into the top-level object.
func (r SearchResponse) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Extra)+len(knownFields))
	for k, v := range r.Extra {
		if !knownFields[k] {
			out[k] = v
		}
	}

	results := r.Results
	if results == nil {
		results = []SearchResult{}
	}
	out["query"] = r.Query
	out["results"] = results
	out["answers"] = r.Answers
	out["corrections"] = r.Corrections
	out["suggestions"] = r.Suggestions
	out["infoboxes"] = r.Infoboxes

	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *SearchResponse) UnmarshalJSON(data []byte) error {
	up, err := decodeUpstream(data)
	if err != nil {
		return err
	}
	*r = up.response(func(u upstreamResult) SearchResult {
		return SearchResult{Title: u.Title, URL: u.URL}
	})
	return nil
}

// =============================================================================
// UPSTREAM TYPES
// =============================================================================

// upstreamResult is one entry of the aggregator's results array.
type upstreamResult struct {
	Title   string   `json:"title"`
	URL     string   `json:"url"`
	Content string   `json:"content,omitempty"`
	Engine  string   `json:"engine"`
	Score   *float64 `json:"score,omitempty"`
}

// upstreamSearch is the decoded /search payload before projection.
type upstreamSearch struct {
	Query       string
	Results     []upstreamResult
	Answers     []json.RawMessage
	Corrections []json.RawMessage
	Suggestions []json.RawMessage
	Infoboxes   []json.RawMessage
	Extra       map[string]json.RawMessage
}

func decodeUpstream(data []byte) (*upstreamSearch, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	up := &upstreamSearch{Extra: make(map[string]json.RawMessage)}
	fields := map[string]any{
		"query":       &up.Query,
		"results":     &up.Results,
		"answers":     &up.Answers,
		"corrections": &up.Corrections,
		"suggestions": &up.Suggestions,
		"infoboxes":   &up.Infoboxes,
	}

	for key, value := range raw {
		target, ok := fields[key]
		if !ok {
			up.Extra[key] = value
			continue
		}
		if err := json.Unmarshal(value, target); err != nil {
			return nil, fmt.Errorf("decode search response field %q: %w", key, err)
		}
	}

	if len(up.Extra) == 0 {
		up.Extra = nil
	}
	return up, nil
}

// response builds the caller payload, projecting each upstream result.
func (u *upstreamSearch) response(project func(upstreamResult) SearchResult) SearchResponse {
	results := make([]SearchResult, 0, len(u.Results))
	for _, r := range u.Results {
		results = append(results, project(r))
	}
	return SearchResponse{
		Query:       u.Query,
		Results:     results,
		Answers:     u.Answers,
		Corrections: u.Corrections,
		Suggestions: u.Suggestions,
		Infoboxes:   u.Infoboxes,
		Extra:       u.Extra,
	}
}
