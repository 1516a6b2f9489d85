// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"

	"github.com/jeranaias/rigrun-launcher/internal/llm"
)

// compatAPIKey is sent as the bearer token; Ollama ignores it.
const compatAPIKey = "ollama"

// CompatClient implements llm.Runtime over Ollama's OpenAI-compatible /v1
// endpoints.
type CompatClient struct {
	client       *openai.Client
	defaultModel string
}

var _ llm.Runtime = (*CompatClient)(nil)

// NewCompatClient creates a client for the /v1 API under baseURL, which is
// the same root the native client uses (e.g. http://127.0.0.1:11434).
func NewCompatClient(config *ClientConfig) *CompatClient {
	if config == nil {
		config = DefaultConfig()
	}
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := config.DefaultModel
	if model == "" {
		model = DefaultModel
	}

	oc := openai.DefaultConfig(compatAPIKey)
	oc.BaseURL = baseURL + "/v1"

	return &CompatClient{
		client:       openai.NewClientWithConfig(oc),
		defaultModel: model,
	}
}

// Ping lists models to check the endpoint is up.
func (c *CompatClient) Ping(ctx context.Context) error {
	_, err := c.client.ListModels(ctx)
	return compatError(err)
}

// ListModels returns the model ids served under /v1/models.
func (c *CompatClient) ListModels(ctx context.Context) ([]string, error) {
	list, err := c.client.ListModels(ctx)
	if err != nil {
		return nil, compatError(err)
	}
	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		names = append(names, m.ID)
	}
	return names, nil
}

// Chat opens a streaming chat completion.
func (c *CompatClient) Chat(ctx context.Context, request llm.ChatRequest) (llm.FragmentStream, error) {
	model := request.Model
	if model == "" {
		model = c.defaultModel
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(request.Messages))
	for _, msg := range request.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return nil, compatError(err)
	}
	return &compatStream{stream: stream}, nil
}

type compatStream struct {
	stream    *openai.ChatCompletionStream
	closeOnce sync.Once
}

func (s *compatStream) Next() (llm.Fragment, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return llm.Fragment{}, io.EOF
		}
		if err != nil {
			return llm.Fragment{}, &ClientError{Type: ErrTypeStream, Message: "stream interrupted", Cause: err}
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
			continue
		}
		return llm.Fragment{Content: resp.Choices[0].Delta.Content}, nil
	}
}

func (s *compatStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.stream.Close()
	})
	return err
}

func compatError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusNotFound {
			return &ClientError{Type: ErrTypeModelNotFound, Message: apiErr.Message, Cause: err}
		}
		return &ClientError{Type: ErrTypeInvalidResponse, Message: apiErr.Message, Cause: err}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ClientError{
			Type:    ErrTypeInvalidResponse,
			Message: "request failed: " + http.StatusText(reqErr.HTTPStatusCode),
			Cause:   err,
		}
	}

	return transportError(err)
}
