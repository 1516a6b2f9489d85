// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-launcher/internal/app"
	"github.com/jeranaias/rigrun-launcher/internal/config"
	"github.com/jeranaias/rigrun-launcher/internal/llm"
	"github.com/jeranaias/rigrun-launcher/internal/relay"
	"github.com/jeranaias/rigrun-launcher/internal/util"
)

func newChatCmd(o *options) *cobra.Command {
	var model string
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with the model",
		Long: `Send one message and stream the answer, or start an interactive chat
when no message is given. Piped stdin is sent as a single message.

Interactive commands:
  /model [name]   show or switch the model
  /clear          start a new conversation
  /quit           exit (also Ctrl+D)`,
		Example: `  launcher chat "explain goroutines in one paragraph"
  git diff | launcher chat
  launcher chat -m llama3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.newApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			startApp(ctx, cmd, a)

			if model != "" {
				if _, err := a.Bridge.SetCurrentModel(ctx, model); err != nil {
					return err
				}
			}

			message := strings.TrimSpace(strings.Join(args, " "))
			if message == "" && !IsTTY() {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				message = strings.TrimSpace(string(data))
			}
			if message != "" {
				_, err := chatOnce(ctx, a, []llm.Message{{Role: llm.RoleUser, Content: message}}, cmd.OutOrStdout())
				return err
			}
			return chatREPL(ctx, a, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", "", "model to use (default runtime.default_model)")
	return cmd
}

// =============================================================================
// STREAMING
// =============================================================================

// chatOnce sends messages, writes the answer to out as it streams and
// returns the final content.
func chatOnce(ctx context.Context, a *app.App, messages []llm.Message, out io.Writer) (string, error) {
	done := make(chan struct{})
	defer close(done)

	events := make(chan relay.Event, 64)
	unsubscribe := a.Bridge.OnOllamaStream(func(ev relay.Event) {
		select {
		case events <- ev:
		case <-done:
		}
	})
	defer unsubscribe()

	res, err := a.Bridge.ChatWithOllama(ctx, messages)
	if err != nil {
		return "", err
	}
	start, err := res.Unwrap()
	if err != nil {
		return "", envelopeError("chat", err.Error())
	}

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return "", ctx.Err()
		case ev := <-events:
			if ev.ID != start.ID {
				continue
			}
			switch ev.Type {
			case relay.EventChunk:
				fmt.Fprint(out, ev.Content)
			case relay.EventEnd:
				fmt.Fprintln(out)
				return ev.Content, nil
			case relay.EventError:
				fmt.Fprintln(out)
				return "", envelopeError("chat", ev.Error)
			}
		}
	}
}

// =============================================================================
// INTERACTIVE
// =============================================================================

// chatREPL runs an interactive conversation with line editing and history.
func chatREPL(ctx context.Context, a *app.App, out io.Writer) error {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	history := historyPath()
	if f, err := os.Open(history); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		saveHistory(line, history)
		line.Close()
	}()

	fmt.Fprintf(out, "%s %s\n", render(titleStyle, "launcher chat"),
		render(dimStyle, "model "+a.Assistant.CurrentModel()+", /quit to exit"))

	var messages []llm.Message
	for {
		input, err := line.Prompt("launcher> ")
		if err != nil {
			// Ctrl+C, Ctrl+D and a closed stdin all end the session.
			fmt.Fprintln(out)
			return nil
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			quit, err := replCommand(ctx, a, input, &messages, out)
			if err != nil {
				fmt.Fprintf(out, "%s %v\n", render(errorStyle, "[X]"), err)
			}
			if quit {
				return nil
			}
			continue
		}

		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: input})
		answer, err := chatOnce(ctx, a, messages, out)
		if err != nil {
			messages = messages[:len(messages)-1]
			// Ctrl+C while an answer streams ends the session.
			if errors.Is(err, context.Canceled) {
				fmt.Fprintln(out, render(warnStyle, "[Cancelled]"))
				return nil
			}
			fmt.Fprintf(out, "%s %v\n", render(errorStyle, "[X]"), err)
			continue
		}
		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: answer})
	}
}

// replCommand runs a slash command and reports whether to quit.
func replCommand(ctx context.Context, a *app.App, input string, messages *[]llm.Message, out io.Writer) (bool, error) {
	name, arg, _ := strings.Cut(strings.TrimPrefix(input, "/"), " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "quit", "q", "exit":
		return true, nil
	case "clear", "c":
		*messages = nil
		fmt.Fprintln(out, render(dimStyle, "New conversation"))
	case "model", "m":
		if arg == "" {
			fmt.Fprintln(out, "Current model: "+a.Assistant.CurrentModel())
			return false, nil
		}
		res, err := a.Bridge.SetCurrentModel(ctx, arg)
		if err != nil {
			return false, err
		}
		fmt.Fprintln(out, "Model set to "+res.CurrentModel)
	default:
		return false, &UsageError{Message: "unknown command /" + name}
	}
	return false, nil
}

func historyPath() string {
	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "chat_history")
}

// saveHistory writes the line history owner-readable only.
func saveHistory(line *liner.State, path string) {
	if err := os.MkdirAll(filepath.Dir(path), util.DirPerm); err != nil {
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = line.WriteHistory(f)
}
