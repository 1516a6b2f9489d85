// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama implements llm.Runtime against a local Ollama server.
//
// Two clients are provided:
//
//   - Client talks to the native API: GET /api/tags for installed models
//     and a streaming POST /api/chat that answers with newline-delimited
//     JSON, one {"message":{"content":...}} object per line.
//   - CompatClient talks to Ollama's OpenAI-compatible /v1 endpoints through
//     the go-openai SDK.
//
// Both return a FragmentStream that is consumed lazily; nothing is buffered
// beyond the current line. Closing the stream aborts the HTTP response.
//
// Example:
//
//	client := ollama.NewClient()
//	if err := client.Ping(ctx); err != nil {
//	    return err
//	}
//	stream, err := client.Chat(ctx, llm.ChatRequest{Model: "qwen2.5", Messages: msgs})
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
//	for {
//	    frag, err := stream.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	}
package ollama
