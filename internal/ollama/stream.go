// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/jeranaias/rigrun-launcher/internal/llm"
)

// maxLineSize bounds a single NDJSON line.
const maxLineSize = 1024 * 1024

// =============================================================================
// STREAM READER
// =============================================================================

// StreamReader turns an NDJSON /api/chat body into a FragmentStream.
//
// Every line carrying content is one fragment. The final done line ends the
// stream and is not itself a fragment unless it carries content. A line that
// is not valid JSON, or that carries an "error" field, fails the stream.
type StreamReader struct {
	body    io.ReadCloser
	scanner *bufio.Scanner

	mu     sync.Mutex
	done   bool
	err    error
	model  string
	closed bool

	closeOnce sync.Once
}

var _ llm.FragmentStream = (*StreamReader)(nil)

// NewStreamReader creates a new stream reader over body.
func NewStreamReader(body io.ReadCloser) *StreamReader {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &StreamReader{body: body, scanner: scanner}
}

// Model returns the model name reported by the most recent line.
func (s *StreamReader) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// Next returns the next fragment, io.EOF once the stream completed, or the
// error that failed it. After a failure the same error is returned again.
func (s *StreamReader) Next() (llm.Fragment, error) {
	s.mu.Lock()
	if s.done {
		err := s.err
		s.mu.Unlock()
		return llm.Fragment{}, err
	}
	s.mu.Unlock()

	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk StreamLine
		if err := json.Unmarshal(line, &chunk); err != nil {
			return llm.Fragment{}, s.finish(&ClientError{
				Type:    ErrTypeStream,
				Message: "malformed stream line from Ollama",
				Cause:   err,
			})
		}
		if chunk.Error != "" {
			return llm.Fragment{}, s.finish(&ClientError{Type: ErrTypeStream, Message: chunk.Error})
		}

		s.mu.Lock()
		if chunk.Model != "" {
			s.model = chunk.Model
		}
		s.mu.Unlock()

		content := chunk.Message.Content
		if chunk.Done {
			s.finish(io.EOF)
			if content == "" {
				return llm.Fragment{}, io.EOF
			}
			return llm.Fragment{Content: content}, nil
		}
		// Every non-final line is a fragment, including empty deltas.
		return llm.Fragment{Content: content}, nil
	}

	if err := s.scanner.Err(); err != nil {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		msg := "stream interrupted"
		if closed {
			msg = "stream closed"
		}
		return llm.Fragment{}, s.finish(&ClientError{Type: ErrTypeStream, Message: msg, Cause: err})
	}

	// Body ended without a done line; treat what arrived as complete.
	return llm.Fragment{}, s.finish(io.EOF)
}

// Close aborts the response body. It is safe to call from another goroutine
// while Next is blocked and more than once.
func (s *StreamReader) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		err = s.body.Close()
	})
	return err
}

func (s *StreamReader) finish(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.done {
		s.done = true
		s.err = err
	}
	return s.err
}

// IsStreamError reports whether err failed a stream part way.
func IsStreamError(err error) bool {
	var clientErr *ClientError
	return errors.As(err, &clientErr) && clientErr.Type == ErrTypeStream
}
