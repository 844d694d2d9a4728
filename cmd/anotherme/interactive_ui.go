package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/anotherme/anotherme/internal/chat"
	"github.com/anotherme/anotherme/internal/mode"
)

// slashHelp lists the commands understood by both interactive surfaces.
const slashHelp = `Commands:
  /work, /life          switch scene
  /mimic, /analyze      switch capability
  /reset                restore work/mimic and clear mode history
  /mode                 show the current mode
  /actions              list available actions
  /action <key> [text]  run an action
  /history              show mode switches of this run
  /clear                clear the conversation
  /help                 show this help
  /quit                 exit
`

// streamPrinter writes streamed reply fragments for line-oriented runs.
type streamPrinter struct {
	// out receives reply text.
	out io.Writer
	// lineOpen tracks whether a streaming line is in progress.
	lineOpen bool
}

func newStreamPrinter(out io.Writer) *streamPrinter {
	return &streamPrinter{out: out}
}

// Observe prints chunks as they arrive.
func (p *streamPrinter) Observe(event chat.Event) {
	switch event.Kind {
	case chat.EventSent:
		p.lineOpen = false
	case chat.EventChunk:
		if event.Text == "" {
			return
		}
		fmt.Fprint(p.out, event.Text)
		p.lineOpen = true
	}
}

// EnsureNewline terminates a streaming line if one is active.
func (p *streamPrinter) EnsureNewline() {
	if !p.lineOpen {
		return
	}
	fmt.Fprintln(p.out)
	p.lineOpen = false
}

// slashResult describes what a slash command did or still needs.
type slashResult struct {
	// Handled is false for ordinary chat input.
	Handled bool
	// Output is text to show the user.
	Output string
	// Quit asks the surface to exit.
	Quit bool
	// Cleared reports that the conversation was emptied.
	Cleared bool
	// Action is set when the caller must run an action with Input.
	Action *mode.ActionConfig
	// Input is the text passed to Action.
	Input string
}

// handleSlashCommand applies mode and conversation commands. Actions are
// returned to the caller so each surface can run them its own way.
func handleSlashCommand(line string, selector *mode.Selector, conv *chat.Conversation) slashResult {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "/") {
		return slashResult{}
	}
	parts := strings.Fields(strings.TrimPrefix(trimmed, "/"))
	if len(parts) == 0 {
		return slashResult{}
	}
	command := strings.ToLower(parts[0])
	result := slashResult{Handled: true}

	switch command {
	case "work", "life":
		selector.SwitchMode(mode.Mode(command))
		result.Output = describeState(selector)
	case "mimic", "analyze":
		selector.SwitchCapability(mode.Capability(command))
		result.Output = describeState(selector)
	case "reset":
		selector.ResetMode()
		result.Output = describeState(selector)
	case "mode":
		result.Output = describeState(selector) + "\n" + renderActions(selector.AvailableActions())
	case "actions":
		result.Output = renderActions(selector.AvailableActions())
	case "history":
		result.Output = renderHistory(selector.History())
	case "action":
		if len(parts) < 2 {
			result.Output = "Usage: /action <key> [text]"
			return result
		}
		action, err := findAction(selector, parts[1])
		if err != nil {
			result.Output = err.Error()
			return result
		}
		result.Action = &action
		rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "/"))
		rest = strings.TrimSpace(rest[len(parts[0]):])
		result.Input = strings.TrimSpace(rest[len(parts[1]):])
	case "clear":
		conv.Clear()
		result.Cleared = true
		result.Output = "Conversation cleared."
	case "help", "?":
		result.Output = slashHelp
	case "quit", "exit":
		result.Quit = true
	default:
		result.Output = fmt.Sprintf("Unknown command: /%s (try /help)", command)
	}
	return result
}

// runREPL reads one message per line until EOF or /quit.
func runREPL(ctx context.Context, a *app, conv *chat.Conversation, in io.Reader, out io.Writer, errOut io.Writer) error {
	fmt.Fprintln(out, describeState(a.selector))
	printer := newStreamPrinter(out)
	unsubscribe := conv.Subscribe(printer.Observe)
	defer unsubscribe()

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\n> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if result := handleSlashCommand(line, a.selector, conv); result.Handled {
			if result.Output != "" {
				fmt.Fprintln(out, strings.TrimRight(result.Output, "\n"))
			}
			if result.Action != nil {
				runCtx, stop := withInterrupt(ctx, nil)
				output, err := runAction(runCtx, a.client, *result.Action, result.Input)
				stop()
				if err != nil {
					fmt.Fprintln(errOut, formatError(err))
				} else {
					fmt.Fprintln(out, output.Text)
				}
			}
			if result.Quit {
				return nil
			}
			continue
		}

		runCtx, stop := withInterrupt(ctx, nil)
		err := conv.Send(runCtx, line)
		stop()
		printer.EnsureNewline()
		if err != nil {
			fmt.Fprintln(errOut, formatError(err))
		}
	}
	return scanner.Err()
}

// withInterrupt builds a context that is cancelled on SIGINT.
func withInterrupt(parent context.Context, onInterrupt func()) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	done := make(chan struct{})

	go func() {
		select {
		case <-interrupt:
			if onInterrupt != nil {
				onInterrupt()
			}
			cancel()
		case <-done:
		}
	}()

	return ctx, func() {
		close(done)
		signal.Stop(interrupt)
		cancel()
	}
}
