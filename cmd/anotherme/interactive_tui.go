package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/anotherme/anotherme/internal/chat"
	"github.com/anotherme/anotherme/internal/mode"
)

// streamDeltaMsg wakes the UI when a reply fragment arrived.
type streamDeltaMsg struct {
	// Text is the fragment.
	Text string
}

// streamDoneMsg signals the end of a Send.
type streamDoneMsg struct {
	// Err is nil when the reply completed normally.
	Err error
}

// actionDoneMsg carries the result of an action run.
type actionDoneMsg struct {
	// Key identifies the action.
	Key string
	// Output is the rendered result.
	Output actionOutput
	// Err is set when the action failed.
	Err error
}

// tuiModel drives the full-screen chat.
type tuiModel struct {
	// ctx bounds every request started from the UI.
	ctx context.Context
	// app provides the client, selector and settings.
	app *app
	// conv owns the message list; the chat pane renders it directly.
	conv *chat.Conversation
	// sessionID identifies the current transcript.
	sessionID string
	// inputHistory stores prior user inputs for recall.
	inputHistory []string
	// historyIndex tracks the active position in inputHistory.
	historyIndex int
	// historyDraft preserves the in-progress input when browsing history.
	historyDraft string
	// chatView renders the conversation.
	chatView viewport.Model
	// actionsView renders available actions and their last output.
	actionsView viewport.Model
	// input collects user input.
	input textarea.Model
	// spinner animates while a request is in flight.
	spinner spinner.Model
	// markdownRenderer formats replies when markdown is enabled.
	markdownRenderer *glamour.TermRenderer
	// actionIndex is the highlighted action in the actions pane.
	actionIndex int
	// actionResult is the output of the most recent action or command.
	actionResult string
	// statusText is the bottom status line.
	statusText string
	// chatAutoScroll keeps the chat viewport pinned to the bottom.
	chatAutoScroll bool
	// width tracks the terminal width.
	width int
	// height tracks the terminal height.
	height int
	// activePane identifies which pane is focused.
	activePane string
	// running indicates an in-flight reply.
	running bool
	// actionRunning indicates an in-flight action.
	actionRunning bool
	// streamCh delivers stream messages into the update loop.
	streamCh chan tea.Msg
	// cancel cancels the current request when present.
	cancel context.CancelFunc
	// quitting indicates a user-requested exit.
	quitting bool
}

// runInteractiveTUI starts the full-screen terminal UI.
func runInteractiveTUI(ctx context.Context, a *app, conv *chat.Conversation, sessionID string) error {
	model := newTUIModel(ctx, a, conv, sessionID)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	return err
}

// newTUIModel constructs the initial TUI state.
func newTUIModel(ctx context.Context, a *app, conv *chat.Conversation, sessionID string) *tuiModel {
	input := textarea.New()
	input.Placeholder = "说点什么... (/help for commands)"
	input.Focus()
	input.CharLimit = 0
	input.Prompt = "> "
	input.SetHeight(3)
	input.SetWidth(20)

	var renderer *glamour.TermRenderer
	if a.settings.Markdown {
		if glam, err := glamour.NewTermRenderer(glamour.WithAutoStyle()); err == nil {
			renderer = glam
		}
	}

	m := &tuiModel{
		ctx:              ctx,
		app:              a,
		conv:             conv,
		sessionID:        sessionID,
		chatView:         viewport.New(20, 10),
		actionsView:      viewport.New(20, 10),
		input:            input,
		spinner:          spinner.New(spinner.WithSpinner(spinner.Dot)),
		markdownRenderer: renderer,
		statusText:       "Enter: send | Alt+Enter: newline | Ctrl+W/L: work/life | Ctrl+T: capability | Ctrl+R: reset | Tab: panes | Ctrl+C: cancel",
		activePane:       "input",
		chatAutoScroll:   true,
	}
	m.refreshChat()
	m.refreshActions()
	return m
}

// Init starts the cursor and spinner.
func (m *tuiModel) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick)
}

// Update handles UI events and streaming updates.
func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.applyWindowSize(typed)
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(typed)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(typed)
		return m, cmd
	case streamDeltaMsg:
		m.refreshChat()
		return m, m.listenStream()
	case streamDoneMsg:
		m.finishSend(typed.Err)
		return m, nil
	case actionDoneMsg:
		m.finishAction(typed)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the full layout.
func (m *tuiModel) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 {
		return "Initializing..."
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.renderHeader(), m.renderBody(), m.renderInput(), m.renderStatus())
}

// handleKey routes keyboard input.
func (m *tuiModel) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "ctrl+c":
		if m.running || m.actionRunning {
			m.cancelRun("Cancelled.")
			return m, nil
		}
		m.quitting = true
		return m, tea.Quit
	case "ctrl+q":
		m.quitting = true
		return m, tea.Quit
	case "ctrl+w":
		m.applySelection(func(selector *mode.Selector) { selector.SwitchMode(mode.ModeWork) })
		return m, nil
	case "ctrl+l":
		m.applySelection(func(selector *mode.Selector) { selector.SwitchMode(mode.ModeLife) })
		return m, nil
	case "ctrl+t":
		m.applySelection(func(selector *mode.Selector) {
			next := mode.CapabilityAnalyze
			if selector.Capability() == mode.CapabilityAnalyze {
				next = mode.CapabilityMimic
			}
			selector.SwitchCapability(next)
		})
		return m, nil
	case "ctrl+r":
		m.applySelection(func(selector *mode.Selector) { selector.ResetMode() })
		return m, nil
	case "tab":
		m.cyclePane(1)
		return m, nil
	case "shift+tab":
		m.cyclePane(-1)
		return m, nil
	case "esc":
		m.setActivePane("input")
		return m, nil
	case "pgup":
		m.scrollActivePane(-10)
		return m, nil
	case "pgdown":
		m.scrollActivePane(10)
		return m, nil
	case "ctrl+p":
		if m.activePane == "input" {
			m.cycleInputHistory(-1)
			return m, nil
		}
	case "ctrl+n":
		if m.activePane == "input" {
			m.cycleInputHistory(1)
			return m, nil
		}
	}

	if key.Type == tea.KeyEnter {
		if key.Alt {
			m.input.InsertString("\n")
			return m, nil
		}
		if m.activePane == "actions" {
			return m.runSelectedAction()
		}
		return m.submitInput()
	}

	switch m.activePane {
	case "actions":
		switch key.String() {
		case "up", "k":
			m.moveActionCursor(-1)
			return m, nil
		case "down", "j":
			m.moveActionCursor(1)
			return m, nil
		}
		return m, nil
	case "chat":
		switch key.String() {
		case "up":
			m.scrollActivePane(-1)
		case "down":
			m.scrollActivePane(1)
		case "home":
			m.chatView.GotoTop()
			m.chatAutoScroll = false
		case "end":
			m.chatView.GotoBottom()
			m.chatAutoScroll = true
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(key)
	return m, cmd
}

// applySelection changes the mode and refreshes dependent panes.
func (m *tuiModel) applySelection(change func(*mode.Selector)) {
	change(m.app.selector)
	m.actionIndex = 0
	m.refreshActions()
	m.statusText = describeState(m.app.selector)
}

// submitInput sends the input as a message or runs it as a slash command.
func (m *tuiModel) submitInput() (tea.Model, tea.Cmd) {
	value := strings.TrimSpace(m.input.Value())
	if value == "" {
		return m, nil
	}

	if result := handleSlashCommand(value, m.app.selector, m.conv); result.Handled {
		m.input.SetValue("")
		m.appendInputHistory(value)
		if result.Quit {
			m.quitting = true
			return m, tea.Quit
		}
		m.actionIndex = 0
		if result.Output != "" {
			m.actionResult = strings.TrimRight(result.Output, "\n")
		}
		if result.Cleared {
			m.refreshChat()
		}
		m.refreshActions()
		if result.Action != nil {
			return m, m.startAction(*result.Action, result.Input)
		}
		return m, nil
	}

	if m.running {
		m.statusText = "Wait for the current reply or cancel with Ctrl+C."
		return m, nil
	}
	m.input.SetValue("")
	m.appendInputHistory(value)

	ctx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel
	m.running = true
	m.chatAutoScroll = true
	m.statusText = "Thinking..."
	m.streamCh = make(chan tea.Msg, 128)
	return m, tea.Batch(m.startSend(ctx, value), m.listenStream(), m.spinner.Tick)
}

// startSend runs Send on a command goroutine and forwards progress.
func (m *tuiModel) startSend(ctx context.Context, value string) tea.Cmd {
	conv := m.conv
	streamCh := m.streamCh
	return func() tea.Msg {
		unsubscribe := conv.Subscribe(func(event chat.Event) {
			if event.Kind != chat.EventChunk && event.Kind != chat.EventSent {
				return
			}
			select {
			case <-ctx.Done():
			case streamCh <- streamDeltaMsg{Text: event.Text}:
			}
		})
		err := conv.Send(ctx, value)
		unsubscribe()
		streamCh <- streamDoneMsg{Err: err}
		close(streamCh)
		return nil
	}
}

// listenStream waits for the next streaming message.
func (m *tuiModel) listenStream() tea.Cmd {
	streamCh := m.streamCh
	if streamCh == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-streamCh
		if !ok {
			return nil
		}
		return msg
	}
}

// finishSend settles UI state after a reply ended.
func (m *tuiModel) finishSend(err error) {
	m.running = false
	m.cancel = nil
	m.streamCh = nil
	m.statusText = ""
	if err != nil {
		m.statusText = formatError(err)
	}
	m.actionIndex = 0
	m.refreshChat()
	m.refreshActions()
}

// runSelectedAction runs the highlighted action with the input as its text.
func (m *tuiModel) runSelectedAction() (tea.Model, tea.Cmd) {
	actions := m.app.selector.AvailableActions()
	if len(actions) == 0 {
		return m, nil
	}
	if m.actionIndex >= len(actions) {
		m.actionIndex = len(actions) - 1
	}
	input := strings.TrimSpace(m.input.Value())
	m.input.SetValue("")
	return m, m.startAction(actions[m.actionIndex], input)
}

// startAction runs action in the background.
func (m *tuiModel) startAction(action mode.ActionConfig, input string) tea.Cmd {
	if m.actionRunning {
		m.statusText = "An action is already running."
		return nil
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel
	m.actionRunning = true
	m.statusText = fmt.Sprintf("Running %s...", action.Label)
	client := m.app.client
	run := func() tea.Msg {
		output, err := runAction(ctx, client, action, input)
		return actionDoneMsg{Key: action.Key, Output: output, Err: err}
	}
	return tea.Batch(run, m.spinner.Tick)
}

// finishAction shows the result of an action.
func (m *tuiModel) finishAction(msg actionDoneMsg) {
	m.actionRunning = false
	if !m.running {
		m.cancel = nil
	}
	if msg.Err != nil {
		m.statusText = formatError(msg.Err)
		m.actionResult = ""
	} else {
		m.statusText = msg.Key + " done"
		m.actionResult = m.renderMarkdown(msg.Output.Text)
	}
	m.refreshActions()
}

// cancelRun cancels in-flight requests and updates status.
func (m *tuiModel) cancelRun(reason string) {
	if m.cancel != nil {
		m.cancel()
	}
	m.statusText = reason
}

// appendInputHistory records an input line for history navigation.
func (m *tuiModel) appendInputHistory(value string) {
	m.inputHistory = append(m.inputHistory, value)
	if len(m.inputHistory) > 200 {
		m.inputHistory = m.inputHistory[len(m.inputHistory)-200:]
	}
	m.historyIndex = len(m.inputHistory)
	m.historyDraft = ""
}

// cycleInputHistory moves the input buffer through stored entries.
func (m *tuiModel) cycleInputHistory(delta int) {
	if len(m.inputHistory) == 0 {
		return
	}
	if m.historyIndex == len(m.inputHistory) {
		m.historyDraft = m.input.Value()
	}
	next := min(max(m.historyIndex+delta, 0), len(m.inputHistory))
	m.historyIndex = next
	if next == len(m.inputHistory) {
		m.input.SetValue(m.historyDraft)
		return
	}
	m.input.SetValue(m.inputHistory[next])
}

// moveActionCursor changes the highlighted action.
func (m *tuiModel) moveActionCursor(delta int) {
	count := len(m.app.selector.AvailableActions())
	if count == 0 {
		return
	}
	m.actionIndex = (m.actionIndex + delta + count) % count
	m.refreshActions()
}

// refreshChat rebuilds the chat viewport from the conversation.
func (m *tuiModel) refreshChat() {
	messages := m.conv.Messages()
	if len(messages) == 0 {
		m.chatView.SetContent("还没有消息。说点什么吧。")
		return
	}
	var builder strings.Builder
	for i, message := range messages {
		streaming := m.running && i == len(messages)-1 && message.Role == chat.RoleAssistant
		builder.WriteString(m.renderMessage(message, streaming))
		builder.WriteString("\n\n")
	}
	m.chatView.SetContent(builder.String())
	if m.chatAutoScroll {
		m.chatView.GotoBottom()
	}
}

// refreshActions rebuilds the actions pane.
func (m *tuiModel) refreshActions() {
	actions := m.app.selector.AvailableActions()
	var builder strings.Builder
	highlight := lipgloss.NewStyle().Reverse(true)
	for i, action := range actions {
		line := fmt.Sprintf("%s %s", action.Icon, action.Label)
		if i == m.actionIndex && m.activePane == "actions" {
			line = highlight.Render(line)
		}
		builder.WriteString(line)
		builder.WriteString("\n")
	}
	if m.activePane == "actions" && m.actionIndex < len(actions) {
		builder.WriteString("\n")
		builder.WriteString(actions[m.actionIndex].Description)
		builder.WriteString("\n")
	}
	if m.actionResult != "" {
		builder.WriteString("\n")
		builder.WriteString(m.actionResult)
	}
	m.actionsView.SetContent(builder.String())
}

// applyWindowSize recalculates the layout for a new window size.
func (m *tuiModel) applyWindowSize(msg tea.WindowSizeMsg) {
	m.width = msg.Width
	m.height = msg.Height

	headerHeight := 1
	statusHeight := 1
	inputHeight := m.input.Height() + 2
	bodyHeight := max(m.height-headerHeight-statusHeight-inputHeight, 4)

	actionsWidth := min(max(28, m.width/3), 60)
	chatWidth := m.width - actionsWidth - 3
	if chatWidth < 20 {
		chatWidth = 20
		actionsWidth = max(20, m.width-chatWidth-3)
	}

	m.chatView.Width = chatWidth - 2
	m.chatView.Height = bodyHeight - 3
	m.actionsView.Width = actionsWidth - 2
	m.actionsView.Height = bodyHeight - 3
	m.input.SetWidth(m.width - 4)

	if m.markdownRenderer != nil {
		if glam, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(m.chatView.Width-2)); err == nil {
			m.markdownRenderer = glam
		}
	}
	m.refreshChat()
	m.refreshActions()
}

// renderHeader shows the mode in the scene color.
func (m *tuiModel) renderHeader() string {
	modeConfig := m.app.selector.ModeConfig()
	style := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(modeConfig.Color))
	session := m.sessionID
	if len(session) > 8 {
		session = session[:8]
	}
	header := fmt.Sprintf("Another Me | %s | session %s", describeState(m.app.selector), session)
	return style.Render(padRight(header, m.width))
}

// renderBody composes the chat and actions panes.
func (m *tuiModel) renderBody() string {
	chatPane := m.renderPane("对话", m.chatView.View(), m.chatView.Width+2, m.activePane == "chat")
	actionsPane := m.renderPane("快捷操作", m.actionsView.View(), m.actionsView.Width+2, m.activePane == "actions")
	return lipgloss.JoinHorizontal(lipgloss.Top, chatPane, actionsPane)
}

// setActivePane updates focus for the requested pane.
func (m *tuiModel) setActivePane(pane string) {
	switch pane {
	case "chat", "actions":
		m.activePane = pane
		m.input.Blur()
	default:
		m.activePane = "input"
		m.input.Focus()
	}
	m.refreshActions()
}

// cyclePane moves focus between input, chat and actions.
func (m *tuiModel) cyclePane(delta int) {
	order := []string{"input", "chat", "actions"}
	index := 0
	for i, name := range order {
		if name == m.activePane {
			index = i
			break
		}
	}
	next := (index + delta + len(order)) % len(order)
	m.setActivePane(order[next])
}

// scrollActivePane scrolls the focused pane.
func (m *tuiModel) scrollActivePane(delta int) {
	view := &m.chatView
	if m.activePane == "actions" {
		view = &m.actionsView
	} else {
		m.chatAutoScroll = false
	}
	if delta > 0 {
		view.LineDown(delta)
	} else {
		view.LineUp(-delta)
	}
}

// renderInput returns the input box.
func (m *tuiModel) renderInput() string {
	style := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	if m.activePane == "input" {
		style = style.BorderForeground(lipgloss.Color(m.app.selector.ModeConfig().Color))
	}
	return style.Render(m.input.View())
}

// renderStatus returns the bottom status line.
func (m *tuiModel) renderStatus() string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	text := m.statusText
	if text == "" {
		text = "Ready"
	}
	if m.running || m.actionRunning {
		text = m.spinner.View() + " " + text
	}
	return style.Render(padRight(fmt.Sprintf("%s | focus:%s", text, m.activePane), m.width))
}

// renderPane formats a bordered pane with a title.
func (m *tuiModel) renderPane(title string, content string, width int, focused bool) string {
	style := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	if focused {
		style = style.BorderForeground(lipgloss.Color(m.app.selector.ModeConfig().Color))
	}
	pane := lipgloss.JoinVertical(lipgloss.Left, lipgloss.NewStyle().Bold(true).Render(title), content)
	return style.Width(width).Render(pane)
}

// renderMessage formats one chat message.
func (m *tuiModel) renderMessage(message chat.Message, streaming bool) string {
	label := "我"
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	content := message.Content
	if message.Role == chat.RoleAssistant {
		label = "另一个我"
		style = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
		switch {
		case streaming && content == "":
			content = m.spinner.View()
		case !streaming:
			content = m.renderMarkdown(content)
		}
	}
	if message.Mode != "" {
		if config, ok := mode.ConfigForMode(mode.Mode(message.Mode)); ok {
			label = label + " " + config.Icon
		}
	}
	return fmt.Sprintf("%s\n%s", style.Render(label+":"), strings.TrimRight(content, "\n"))
}

// renderMarkdown converts markdown for the terminal when enabled.
func (m *tuiModel) renderMarkdown(content string) string {
	if m.markdownRenderer == nil || content == "" {
		return content
	}
	rendered, err := m.markdownRenderer.Render(content)
	if err != nil {
		return content
	}
	return strings.Trim(rendered, "\n")
}

// padRight pads a string with spaces to the target display width.
func padRight(value string, width int) string {
	gap := width - lipgloss.Width(value)
	if gap <= 0 {
		return value
	}
	return value + strings.Repeat(" ", gap)
}
