package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/anotherme/anotherme/internal/api"
	"github.com/anotherme/anotherme/internal/mode"
	"github.com/anotherme/anotherme/internal/stream"
	"github.com/anotherme/anotherme/internal/testutil"
)

// fakeStreamer replays a canned body or fails to start.
type fakeStreamer struct {
	mu       sync.Mutex
	body     string
	openErr  error
	requests []api.ChatRequest
	// gate, when set, blocks the body until closed.
	gate chan struct{}
}

func (f *fakeStreamer) OpenChatStream(ctx context.Context, req api.ChatRequest) (io.ReadCloser, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	if f.gate == nil {
		return io.NopCloser(strings.NewReader(f.body)), nil
	}
	reader, writer := io.Pipe()
	go func() {
		<-f.gate
		_, _ = io.WriteString(writer, f.body)
		_ = writer.Close()
	}()
	return reader, nil
}

// fixedDetector always reports the same scene.
type fixedDetector mode.Mode

func (d fixedDetector) AutoDetectMode(string) mode.Mode { return mode.Mode(d) }

func newTestConversation(streamer Streamer, opts ...Option) *Conversation {
	clock := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	opts = append([]Option{WithClock(func() time.Time { return clock })}, opts...)
	return New(streamer, opts...)
}

func TestSendStreamsIntoPlaceholder(t *testing.T) {
	streamer := &fakeStreamer{body: "data: 你好\n\ndata: ，今天\n\ndata: 怎么样\n\ndata: [DONE]\n\n"}
	conversation := newTestConversation(streamer)

	var kinds []EventKind
	var progress []string
	conversation.Subscribe(func(event Event) {
		kinds = append(kinds, event.Kind)
		if event.Kind == EventChunk {
			progress = append(progress, event.Message.Content)
		}
	})

	err := conversation.Send(context.Background(), "  在吗  ")
	testutil.RequireNoError(t, err, "send")

	messages := conversation.Messages()
	testutil.RequireLen(t, messages, 2, "messages")
	testutil.RequireEqual(t, messages[0].Role, RoleUser, "user role")
	testutil.RequireEqual(t, messages[0].Content, "在吗", "trimmed user content")
	testutil.RequireTrue(t, strings.HasPrefix(messages[0].ID, "user-"), "user id prefix")
	testutil.RequireTrue(t, strings.HasPrefix(messages[1].ID, "assistant-"), "assistant id prefix")
	testutil.RequireEqual(t, messages[1].Content, "你好，今天怎么样", "assistant content")
	testutil.RequireEqual(t, messages[1].Timestamp, int64(1714554000000), "timestamp in ms")

	testutil.RequireEqual(t, kinds, []EventKind{EventSent, EventChunk, EventChunk, EventChunk, EventDone}, "event order")
	testutil.RequireEqual(t, progress, []string{"你好", "你好，今天", "你好，今天怎么样"}, "monotonic growth")
	testutil.RequireTrue(t, !conversation.Streaming(), "not streaming after completion")
	testutil.RequireNoError(t, conversation.Err(), "no error recorded")
}

func TestSendRejectsBlankInput(t *testing.T) {
	conversation := newTestConversation(&fakeStreamer{})
	err := conversation.Send(context.Background(), " \n\t ")
	testutil.RequireErrorIs(t, err, ErrEmptyMessage, "blank input")
	testutil.RequireLen(t, conversation.Messages(), 0, "no messages added")
}

func TestSendRemovesPlaceholderWhenStreamNeverStarts(t *testing.T) {
	startErr := &api.APIError{StatusCode: 503}
	conversation := newTestConversation(&fakeStreamer{openErr: startErr})

	var last Event
	conversation.Subscribe(func(event Event) { last = event })

	err := conversation.Send(context.Background(), "hello")
	testutil.RequireErrorIs(t, err, startErr, "start error")

	messages := conversation.Messages()
	testutil.RequireLen(t, messages, 1, "only the user message remains")
	testutil.RequireEqual(t, messages[0].Role, RoleUser, "remaining role")
	testutil.RequireErrorIs(t, conversation.Err(), startErr, "recorded error")
	testutil.RequireEqual(t, last.Kind, EventError, "error event")
	testutil.RequireTrue(t, !conversation.Streaming(), "streaming reset")
}

func TestSendKeepsPartialReplyOnRemoteError(t *testing.T) {
	streamer := &fakeStreamer{body: "data: 部分\n\ndata: [ERROR] quota exceeded\n\ndata: never\n\n"}
	conversation := newTestConversation(streamer)

	err := conversation.Send(context.Background(), "hello")
	var remote *stream.RemoteError
	testutil.RequireTrue(t, errors.As(err, &remote), "expected remote error")
	testutil.RequireEqual(t, remote.Message, "quota exceeded", "remote message")

	messages := conversation.Messages()
	testutil.RequireLen(t, messages, 2, "placeholder kept")
	testutil.RequireEqual(t, messages[1].Content, "部分", "partial content kept")
	testutil.RequireEqual(t, conversation.Err().Error(), "quota exceeded", "recorded error")
}

func TestSendRejectsConcurrentSend(t *testing.T) {
	streamer := &fakeStreamer{body: "data: ok\n\ndata: [DONE]\n\n", gate: make(chan struct{})}
	conversation := newTestConversation(streamer)

	sent := make(chan struct{})
	conversation.Subscribe(func(event Event) {
		if event.Kind == EventSent {
			close(sent)
		}
	})

	done := make(chan error, 1)
	go func() { done <- conversation.Send(context.Background(), "first") }()
	<-sent

	testutil.RequireTrue(t, conversation.Streaming(), "streaming in progress")
	err := conversation.Send(context.Background(), "second")
	testutil.RequireErrorIs(t, err, ErrBusy, "concurrent send")

	close(streamer.gate)
	testutil.RequireNoError(t, <-done, "first send")
	testutil.RequireLen(t, conversation.Messages(), 2, "second send left no messages")
}

func TestSendPassesDetectedMode(t *testing.T) {
	streamer := &fakeStreamer{body: "data: [DONE]\n\n"}
	conversation := newTestConversation(streamer, WithModeDetector(fixedDetector(mode.ModeLife)))

	testutil.RequireNoError(t, conversation.Send(context.Background(), "周末去爬山"), "send")
	testutil.RequireLen(t, streamer.requests, 1, "requests")
	testutil.RequireEqual(t, streamer.requests[0].Context.Mode, "life", "request mode")
	testutil.RequireEqual(t, conversation.Messages()[0].Mode, "life", "message mode")
}

func TestSendWithSelectorSwitchesScene(t *testing.T) {
	selector, err := mode.NewSelector(nil, mode.WithInitialState(mode.State{Mode: mode.ModeLife, Capability: mode.CapabilityMimic}))
	testutil.RequireNoError(t, err, "selector")
	streamer := &fakeStreamer{body: "data: [DONE]\n\n"}
	conversation := newTestConversation(streamer, WithModeDetector(selector))

	testutil.RequireNoError(t, conversation.Send(context.Background(), "帮我整理一下会议纪要"), "send")
	testutil.RequireEqual(t, selector.Mode(), mode.ModeWork, "selector switched")
	testutil.RequireEqual(t, streamer.requests[0].Context.Mode, "work", "request mode")
}

func TestClearAndDelete(t *testing.T) {
	conversation := newTestConversation(&fakeStreamer{body: "data: hi\n\n"}, WithHistory([]Message{
		{ID: "user-old", Role: RoleUser, Content: "earlier"},
	}))
	testutil.RequireNoError(t, conversation.Send(context.Background(), "again"), "send")
	testutil.RequireLen(t, conversation.Messages(), 3, "history plus new turn")

	testutil.RequireTrue(t, conversation.Delete("user-old"), "delete existing")
	testutil.RequireTrue(t, !conversation.Delete("user-old"), "delete missing")
	testutil.RequireLen(t, conversation.Messages(), 2, "after delete")

	conversation.Clear()
	testutil.RequireLen(t, conversation.Messages(), 0, "after clear")
	testutil.RequireNoError(t, conversation.Err(), "error cleared")
}

func TestMessagesReturnsCopy(t *testing.T) {
	conversation := newTestConversation(&fakeStreamer{}, WithHistory([]Message{{ID: "a", Content: "x"}}))
	messages := conversation.Messages()
	messages[0].Content = "mutated"
	testutil.RequireEqual(t, conversation.Messages()[0].Content, "x", "internal state unchanged")
}
