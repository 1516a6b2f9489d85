// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package relay

import "encoding/json"

// Channel is the surface channel stream events are published on.
const Channel = "ollama-stream"

// EventType discriminates stream events.
type EventType string

const (
	EventChunk EventType = "chunk"
	EventEnd   EventType = "end"
	EventError EventType = "error"
)

// Event is one stream event. Its JSON form depends on Type:
//
//	{"type":"chunk","id":"…","content":"lo","accumulatedContent":"Hello"}
//	{"type":"end","id":"…","content":"Hello, world"}
//	{"type":"error","id":"…","error":"stream interrupted"}
//
// ID names the stream the event belongs to so a renderer can ignore events
// from a superseded chat.
type Event struct {
	Type               EventType
	ID                 string
	Content            string
	AccumulatedContent string
	Error              string
}

// Terminal reports whether the event ends its stream.
func (e Event) Terminal() bool {
	return e.Type == EventEnd || e.Type == EventError
}

type chunkJSON struct {
	Type               EventType `json:"type"`
	ID                 string    `json:"id,omitempty"`
	Content            string    `json:"content"`
	AccumulatedContent string    `json:"accumulatedContent"`
}

type endJSON struct {
	Type    EventType `json:"type"`
	ID      string    `json:"id,omitempty"`
	Content string    `json:"content"`
}

type errorJSON struct {
	Type  EventType `json:"type"`
	ID    string    `json:"id,omitempty"`
	Error string    `json:"error"`
}

// MarshalJSON emits only the fields that belong to the event type.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventChunk:
		return json.Marshal(chunkJSON{e.Type, e.ID, e.Content, e.AccumulatedContent})
	case EventEnd:
		return json.Marshal(endJSON{e.Type, e.ID, e.Content})
	default:
		return json.Marshal(errorJSON{e.Type, e.ID, e.Error})
	}
}

// UnmarshalJSON accepts any of the three shapes.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type               EventType `json:"type"`
		ID                 string    `json:"id"`
		Content            string    `json:"content"`
		AccumulatedContent string    `json:"accumulatedContent"`
		Error              string    `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Event(raw)
	return nil
}
