package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/anotherme/anotherme/internal/api"
	"github.com/anotherme/anotherme/internal/chat"
	"github.com/anotherme/anotherme/internal/config"
	"github.com/anotherme/anotherme/internal/mode"
	"github.com/anotherme/anotherme/internal/testutil"
)

// newInteractiveApp builds an app with an in-memory selector and a fake backend.
func newInteractiveApp(t *testing.T, handler http.HandlerFunc) *app {
	t.Helper()
	selector, err := mode.NewSelector(&mode.MemoryStore{})
	testutil.RequireNoError(t, err, "new selector")
	a := &app{
		opts:     &options{OutputFormat: "text"},
		settings: config.DefaultSettings(),
		selector: selector,
	}
	a.settings.Markdown = false
	if handler != nil {
		server := httptest.NewServer(http.StripPrefix("/api/v1", handler))
		t.Cleanup(server.Close)
		a.client = api.NewClient(server.URL+"/api/v1", "", 5*time.Second)
	}
	return a
}

// TestHandleSlashCommandNonSlash verifies chat input is not treated as a command.
func TestHandleSlashCommandNonSlash(t *testing.T) {
	a := newInteractiveApp(t, nil)
	result := handleSlashCommand("hello /work", a.selector, chat.New(nil))
	testutil.RequireTrue(t, !result.Handled, "expected plain input")
}

// TestHandleSlashCommandSwitches verifies mode commands and history.
func TestHandleSlashCommandSwitches(t *testing.T) {
	a := newInteractiveApp(t, nil)
	conv := chat.New(nil)

	result := handleSlashCommand("/life", a.selector, conv)
	testutil.RequireTrue(t, result.Handled, "expected handled")
	testutil.RequireEqual(t, a.selector.Mode(), mode.ModeLife, "mode after /life")

	handleSlashCommand("/ANALYZE", a.selector, conv)
	testutil.RequireEqual(t, a.selector.Capability(), mode.CapabilityAnalyze, "capability after /analyze")

	result = handleSlashCommand("/history", a.selector, conv)
	testutil.RequireStringContains(t, result.Output, "life/mimic", "first history entry")
	testutil.RequireStringContains(t, result.Output, "life/analyze", "second history entry")

	result = handleSlashCommand("/actions", a.selector, conv)
	testutil.RequireStringContains(t, result.Output, "interest_tracking", "life/analyze actions")

	handleSlashCommand("/reset", a.selector, conv)
	testutil.RequireEqual(t, a.selector.State(), mode.DefaultState(), "state after /reset")
	result = handleSlashCommand("/history", a.selector, conv)
	testutil.RequireStringContains(t, result.Output, "No mode switches yet.", "history after reset")
}

// TestHandleSlashCommandAction verifies action lookup and input extraction.
func TestHandleSlashCommandAction(t *testing.T) {
	a := newInteractiveApp(t, nil)
	conv := chat.New(nil)

	result := handleSlashCommand("/action  organize_todos 写文档  评审代码", a.selector, conv)
	testutil.RequireTrue(t, result.Action != nil, "expected action")
	testutil.RequireEqual(t, result.Action.Handler, "organizeTodos", "action handler")
	testutil.RequireEqual(t, result.Input, "写文档  评审代码", "action input")

	result = handleSlashCommand("/action casual_chat hi", a.selector, conv)
	testutil.RequireTrue(t, result.Action == nil, "life action unavailable in work mode")
	testutil.RequireStringContains(t, result.Output, "not available", "unavailable action output")

	result = handleSlashCommand("/action", a.selector, conv)
	testutil.RequireStringContains(t, result.Output, "Usage", "usage output")
}

// TestHandleSlashCommandMisc verifies quit, clear and unknown commands.
func TestHandleSlashCommandMisc(t *testing.T) {
	a := newInteractiveApp(t, nil)
	conv := chat.New(nil)

	testutil.RequireTrue(t, handleSlashCommand("/quit", a.selector, conv).Quit, "expected quit")
	testutil.RequireTrue(t, handleSlashCommand("/clear", a.selector, conv).Cleared, "expected clear")

	result := handleSlashCommand("/nope", a.selector, conv)
	testutil.RequireTrue(t, result.Handled, "unknown commands are handled")
	testutil.RequireStringContains(t, result.Output, "Unknown command: /nope", "unknown output")
}

// TestRunREPL verifies the line loop streams replies and applies commands.
func TestRunREPL(t *testing.T) {
	a := newInteractiveApp(t, func(w http.ResponseWriter, r *http.Request) {
		streamFrames(w, "data: 收到", "data: [DONE]")
	})
	conv := chat.New(a.client, chat.WithModeDetector(a.selector))

	var out, errOut bytes.Buffer
	in := strings.NewReader("/life\n\n你好\n/quit\nignored\n")
	err := runREPL(context.Background(), a, conv, in, &out, &errOut)
	testutil.RequireNoError(t, err, "repl")

	testutil.RequireStringContains(t, out.String(), "收到\n", "streamed reply")
	testutil.RequireEqual(t, errOut.String(), "", "no errors")
	messages := conv.Messages()
	testutil.RequireLen(t, messages, 2, "conversation after repl")
	testutil.RequireEqual(t, messages[1].Mode, "life", "reply scene")
}

// TestTUIKeysSwitchMode verifies the mode shortcuts.
func TestTUIKeysSwitchMode(t *testing.T) {
	a := newInteractiveApp(t, nil)
	model := newTUIModel(context.Background(), a, chat.New(nil), "session-1")

	model.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	testutil.RequireEqual(t, a.selector.Mode(), mode.ModeLife, "ctrl+l")
	model.Update(tea.KeyMsg{Type: tea.KeyCtrlT})
	testutil.RequireEqual(t, a.selector.Capability(), mode.CapabilityAnalyze, "ctrl+t")
	model.Update(tea.KeyMsg{Type: tea.KeyCtrlT})
	testutil.RequireEqual(t, a.selector.Capability(), mode.CapabilityMimic, "ctrl+t toggles back")
	model.Update(tea.KeyMsg{Type: tea.KeyCtrlW})
	testutil.RequireEqual(t, a.selector.Mode(), mode.ModeWork, "ctrl+w")
	model.Update(tea.KeyMsg{Type: tea.KeyCtrlR})
	testutil.RequireLen(t, a.selector.History(), 0, "ctrl+r clears history")
}

// TestTUISlashCommandAndView verifies commands submitted from the input box.
func TestTUISlashCommandAndView(t *testing.T) {
	a := newInteractiveApp(t, nil)
	model := newTUIModel(context.Background(), a, chat.New(nil), "0123456789abcdef")
	model.Update(tea.WindowSizeMsg{Width: 120, Height: 40})

	model.input.SetValue("/life")
	model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	testutil.RequireEqual(t, a.selector.Mode(), mode.ModeLife, "mode after /life")
	testutil.RequireEqual(t, model.input.Value(), "", "input cleared")

	view := model.View()
	testutil.RequireStringContains(t, view, "Another Me", "header")
	testutil.RequireStringContains(t, view, "session 01234567", "short session id")
	testutil.RequireStringContains(t, view, "闲聊", "life actions pane")

	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	testutil.RequireTrue(t, cmd != nil, "expected quit command")
	testutil.RequireTrue(t, model.quitting, "quitting")
}
