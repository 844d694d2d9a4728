package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/anotherme/anotherme/internal/api"
	"github.com/anotherme/anotherme/internal/chat"
	"github.com/anotherme/anotherme/internal/session"
	"github.com/anotherme/anotherme/internal/stream"
)

// chatResult is the json shape of a one-shot reply.
type chatResult struct {
	SessionID string `json:"session_id"`
	Mode      string `json:"mode"`
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
}

// chatCommand starts a conversation; the root command runs it too.
func chatCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Chat with your other self",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, opts, args)
		},
	}
	applyChatFlags(cmd.Flags(), opts)
	return cmd
}

// runChat answers a prompt once, or opens the TUI (TTY) or a line REPL.
func runChat(cmd *cobra.Command, opts *options, args []string) error {
	if err := validateOutputFormat(opts.OutputFormat); err != nil {
		return err
	}
	a, err := loadApp(opts, true)
	if err != nil {
		return err
	}
	defer a.Close()

	store, err := session.NewStore()
	if err != nil {
		return err
	}
	sessionID, history, err := resolveSession(store, mustCwd(), opts, cmd.InOrStdin(), cmd.OutOrStdout())
	if err != nil {
		return err
	}
	a.logger.Debug("session resolved", "session_id", sessionID, "history", len(history))

	conv := chat.New(
		a.client,
		chat.WithModeDetector(a.selector),
		chat.WithStreamOptions(stream.Options{Strict: opts.Strict || a.settings.StrictStream}),
		chat.WithLogger(a.logger),
		chat.WithHistory(history),
	)
	var recorder chat.Observer = func(chat.Event) {}
	if !opts.NoSessionPersistence {
		recorder = sessionRecorder(store, sessionID, a.logger)
		unsubscribe := conv.Subscribe(recorder)
		defer unsubscribe()
	}

	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt != "" {
		if opts.Sync {
			return runSyncPrompt(cmd.Context(), a, recorder, sessionID, prompt, cmd.OutOrStdout())
		}
		return runPrompt(cmd.Context(), a, conv, sessionID, prompt, cmd.OutOrStdout())
	}

	if isTerminal(cmd.InOrStdin()) && isTerminal(cmd.OutOrStdout()) {
		return runInteractiveTUI(cmd.Context(), a, conv, sessionID)
	}
	return runREPL(cmd.Context(), a, conv, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// runPrompt streams one reply to out as it arrives.
func runPrompt(ctx context.Context, a *app, conv *chat.Conversation, sessionID string, prompt string, out io.Writer) error {
	ctx, stop := withInterrupt(ctx, nil)
	defer stop()

	if a.jsonOutput() {
		sendErr := conv.Send(ctx, prompt)
		return writeJSON(out, lastReply(conv, sessionID, sendErr))
	}

	printer := newStreamPrinter(out)
	unsubscribe := conv.Subscribe(printer.Observe)
	defer unsubscribe()
	err := conv.Send(ctx, prompt)
	printer.EnsureNewline()
	return err
}

// runSyncPrompt uses the non-streaming endpoint and records the exchange.
func runSyncPrompt(ctx context.Context, a *app, recorder chat.Observer, sessionID string, prompt string, out io.Writer) error {
	detected := a.selector.AutoDetectMode(prompt)
	now := time.Now().UnixMilli()
	user := chat.Message{ID: "user-" + uuid.NewString(), Role: chat.RoleUser, Content: prompt, Timestamp: now, Mode: string(detected)}
	recorder(chat.Event{Kind: chat.EventSent, Message: user})

	resp, err := a.client.ChatSync(ctx, api.ChatRequest{Message: prompt, Context: &api.ChatContext{Mode: string(detected)}})
	reply := chat.Message{ID: "assistant-" + uuid.NewString(), Role: chat.RoleAssistant, Timestamp: now, Mode: string(detected)}
	if err != nil {
		recorder(chat.Event{Kind: chat.EventError, Message: reply, Err: err})
		return err
	}
	reply.Content = resp.Message
	recorder(chat.Event{Kind: chat.EventDone, Message: reply})

	if a.jsonOutput() {
		return writeJSON(out, chatResult{SessionID: sessionID, Mode: string(detected), Message: resp.Message})
	}
	fmt.Fprintln(out, resp.Message)
	return nil
}

// lastReply summarizes the newest assistant turn for json output.
func lastReply(conv *chat.Conversation, sessionID string, sendErr error) chatResult {
	result := chatResult{SessionID: sessionID}
	messages := conv.Messages()
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == chat.RoleAssistant {
			result.Message = messages[i].Content
			result.Mode = messages[i].Mode
			break
		}
	}
	if sendErr != nil {
		result.Error = formatError(sendErr)
	}
	return result
}

// sessionRecorder appends finished turns to the session transcript.
func sessionRecorder(store *session.Store, sessionID string, logger *slog.Logger) chat.Observer {
	projectHash := session.ProjectHash(mustCwd())
	return func(event chat.Event) {
		switch event.Kind {
		case chat.EventSent, chat.EventDone, chat.EventError:
		default:
			return
		}
		record := session.MessageRecord{
			ID:        event.Message.ID,
			Role:      string(event.Message.Role),
			Content:   event.Message.Content,
			Timestamp: event.Message.Timestamp,
			Mode:      event.Message.Mode,
		}
		if event.Err != nil {
			record.Error = event.Err.Error()
		}
		if err := store.AppendMessage(sessionID, record); err != nil {
			logger.Warn("persist chat message", "session_id", sessionID, "error", err)
			return
		}
		if event.Kind == chat.EventSent {
			if err := store.SaveLastSession(projectHash, sessionID); err != nil {
				logger.Warn("save last session", "session_id", sessionID, "error", err)
			}
		}
	}
}

// historyFromRecords rebuilds conversation messages from a transcript.
// Replies that never produced text are dropped.
func historyFromRecords(records []session.MessageRecord) []chat.Message {
	messages := make([]chat.Message, 0, len(records))
	for _, record := range records {
		role := chat.Role(record.Role)
		if role != chat.RoleUser && role != chat.RoleAssistant {
			continue
		}
		if role == chat.RoleAssistant && record.Content == "" {
			continue
		}
		messages = append(messages, chat.Message{
			ID:        record.ID,
			Role:      role,
			Content:   record.Content,
			Timestamp: record.Timestamp,
			Mode:      record.Mode,
		})
	}
	return messages
}

// loadSessionMessages reads a transcript; a session without one starts empty.
func loadSessionMessages(store *session.Store, sessionID string) ([]chat.Message, error) {
	records, err := store.LoadMessages(sessionID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return historyFromRecords(records), nil
}

// resolveSession determines the session id and loads its history, if any.
func resolveSession(store *session.Store, cwd string, opts *options, in io.Reader, out io.Writer) (string, []chat.Message, error) {
	if opts.SessionID != "" {
		if _, err := uuid.Parse(opts.SessionID); err != nil {
			return "", nil, fmt.Errorf("invalid session id %q: %w", opts.SessionID, err)
		}
		messages, err := loadSessionMessages(store, opts.SessionID)
		return opts.SessionID, messages, err
	}

	if opts.Continue {
		lastID, err := store.LoadLastSession(session.ProjectHash(cwd))
		if err == nil && lastID != "" {
			messages, err := loadSessionMessages(store, lastID)
			return lastID, messages, err
		}
	}

	if opts.Resume != "" {
		picked := opts.Resume
		if picked == "picker" {
			var err error
			picked, err = pickSession(store, in, out)
			if err != nil {
				return "", nil, err
			}
			if picked == "" {
				return "", nil, errors.New("no session selected")
			}
		}
		messages, err := loadSessionMessages(store, picked)
		return picked, messages, err
	}

	return uuid.NewString(), nil, nil
}

// pickSession shows a numbered chooser of recent sessions.
func pickSession(store *session.Store, in io.Reader, out io.Writer) (string, error) {
	sessions, err := store.ListSessions(10)
	if err != nil {
		return "", err
	}
	if len(sessions) == 0 {
		return "", errors.New("no sessions available")
	}
	fmt.Fprintln(out, "Select a session:")
	for i, info := range sessions {
		fmt.Fprintf(out, "%d) %s  %s\n", i+1, info.ID, info.ModTime.Format("2006-01-02 15:04"))
	}
	fmt.Fprint(out, "Enter number: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", nil
	}
	var index int
	if _, err := fmt.Sscanf(line, "%d", &index); err != nil {
		return "", fmt.Errorf("invalid selection")
	}
	if index < 1 || index > len(sessions) {
		return "", fmt.Errorf("selection out of range")
	}
	return sessions[index-1].ID, nil
}

// isTerminal reports whether rw is an interactive terminal.
func isTerminal(rw any) bool {
	file, ok := rw.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}
