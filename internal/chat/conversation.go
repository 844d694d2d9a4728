package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anotherme/anotherme/internal/api"
	"github.com/anotherme/anotherme/internal/mode"
	"github.com/anotherme/anotherme/internal/stream"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

var (
	// ErrEmptyMessage is returned for blank input.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrBusy is returned when a reply is still streaming.
	ErrBusy = errors.New("a reply is still streaming")
)

// Message is one turn of the conversation.
type Message struct {
	ID      string
	Role    Role
	Content string
	// Timestamp is the creation time in Unix milliseconds.
	Timestamp int64
	// Mode is the scene the turn was sent in.
	Mode string
}

// EventKind classifies conversation events.
type EventKind int

const (
	// EventSent fires once the user message and the reply placeholder are in place.
	EventSent EventKind = iota
	// EventChunk fires for every streamed fragment.
	EventChunk
	// EventDone fires when the reply finished normally.
	EventDone
	// EventError fires when the reply failed or could not start.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventSent:
		return "sent"
	case EventChunk:
		return "chunk"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event reports progress of a Send.
type Event struct {
	Kind EventKind
	// Message is the user turn for EventSent and the assistant turn otherwise.
	Message Message
	// Text is the fragment for EventChunk.
	Text string
	// Err is set for EventError.
	Err error
}

// Observer receives conversation events. It runs on the sending goroutine and
// must not call back into the Conversation.
type Observer func(Event)

// Streamer opens the reply stream for a chat request.
type Streamer interface {
	OpenChatStream(ctx context.Context, req api.ChatRequest) (io.ReadCloser, error)
}

// ModeDetector switches the scene based on message content.
type ModeDetector interface {
	AutoDetectMode(input string) mode.Mode
}

// Option configures a Conversation.
type Option func(*Conversation)

// WithModeDetector classifies each message before it is sent and passes the
// resulting scene as request context.
func WithModeDetector(detector ModeDetector) Option {
	return func(c *Conversation) {
		c.detector = detector
	}
}

// WithStreamOptions tunes the reply decoder.
func WithStreamOptions(opts stream.Options) Option {
	return func(c *Conversation) {
		c.streamOpts = opts
	}
}

// WithClock overrides the time source for message timestamps.
func WithClock(clock func() time.Time) Option {
	return func(c *Conversation) {
		if clock != nil {
			c.now = clock
		}
	}
}

// WithLogger sets the logger used for stream diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Conversation) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHistory seeds the conversation, e.g. from a resumed transcript.
func WithHistory(messages []Message) Option {
	return func(c *Conversation) {
		c.messages = append([]Message(nil), messages...)
	}
}

// Conversation owns the ordered message list of one chat and streams replies
// into it. It is safe for concurrent use.
type Conversation struct {
	mu         sync.Mutex
	messages   []Message
	streaming  bool
	err        error
	streamer   Streamer
	detector   ModeDetector
	streamOpts stream.Options
	now        func() time.Time
	newID      func(prefix string) string
	logger     *slog.Logger
	observers  map[int]Observer
	nextID     int
}

// New constructs a Conversation backed by streamer.
func New(streamer Streamer, opts ...Option) *Conversation {
	c := &Conversation{
		streamer:  streamer,
		now:       time.Now,
		newID:     func(prefix string) string { return prefix + "-" + uuid.NewString() },
		logger:    slog.New(slog.DiscardHandler),
		observers: map[int]Observer{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send appends content as a user message followed by an assistant placeholder
// and streams the reply into the placeholder. It blocks until the stream ends.
// If the stream fails after starting, the placeholder keeps whatever arrived;
// if it never starts, the placeholder is removed.
func (c *Conversation) Send(ctx context.Context, content string) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	if c.streaming {
		c.mu.Unlock()
		return ErrBusy
	}
	c.streaming = true
	c.err = nil
	c.mu.Unlock()

	req := api.ChatRequest{Message: trimmed}
	if c.detector != nil {
		detected := c.detector.AutoDetectMode(trimmed)
		req.Context = &api.ChatContext{Mode: string(detected)}
	}
	sceneMode := ""
	if req.Context != nil {
		sceneMode = req.Context.Mode
	}

	created := c.now().UnixMilli()
	user := Message{ID: c.newID("user"), Role: RoleUser, Content: trimmed, Timestamp: created, Mode: sceneMode}
	reply := Message{ID: c.newID("assistant"), Role: RoleAssistant, Timestamp: created, Mode: sceneMode}

	c.mu.Lock()
	c.messages = append(c.messages, user, reply)
	c.mu.Unlock()
	c.emit(Event{Kind: EventSent, Message: user})

	body, err := c.streamer.OpenChatStream(ctx, req)
	if err != nil {
		c.logger.Debug("chat stream did not start", "error", err)
		c.mu.Lock()
		c.removeLocked(reply.ID)
		c.err = err
		c.streaming = false
		c.mu.Unlock()
		c.emit(Event{Kind: EventError, Message: reply, Err: err})
		return err
	}

	decodeErr := stream.Decode(ctx, body, stream.Handler{
		OnChunk: func(text string) {
			updated, ok := c.appendChunk(reply.ID, text)
			if !ok {
				return
			}
			c.emit(Event{Kind: EventChunk, Message: updated, Text: text})
		},
	}, c.streamOpts)

	c.mu.Lock()
	final, ok := c.findLocked(reply.ID)
	if !ok {
		final = reply
	}
	c.streaming = false
	if decodeErr != nil {
		c.err = decodeErr
	}
	c.mu.Unlock()

	if decodeErr != nil {
		c.logger.Debug("chat stream failed", "message_id", reply.ID, "bytes", len(final.Content), "error", decodeErr)
		c.emit(Event{Kind: EventError, Message: final, Err: decodeErr})
		return decodeErr
	}
	c.logger.Debug("chat stream complete", "message_id", reply.ID, "bytes", len(final.Content))
	c.emit(Event{Kind: EventDone, Message: final})
	return nil
}

// appendChunk extends the placeholder. It reports false if the placeholder
// was deleted or cleared mid-stream.
func (c *Conversation) appendChunk(id string, text string) (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.messages {
		if c.messages[i].ID == id {
			c.messages[i].Content += text
			return c.messages[i], true
		}
	}
	return Message{}, false
}

func (c *Conversation) findLocked(id string) (Message, bool) {
	for _, message := range c.messages {
		if message.ID == id {
			return message, true
		}
	}
	return Message{}, false
}

func (c *Conversation) removeLocked(id string) bool {
	for i, message := range c.messages {
		if message.ID == id {
			c.messages = append(c.messages[:i], c.messages[i+1:]...)
			return true
		}
	}
	return false
}

// Messages returns a copy of the conversation in order.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

// Streaming reports whether a reply is in progress.
func (c *Conversation) Streaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streaming
}

// Err returns the failure of the last Send, if any.
func (c *Conversation) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Clear drops all messages and the last error.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
	c.err = nil
}

// Delete removes the message with id and reports whether it existed.
func (c *Conversation) Delete(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(id)
}

// Subscribe registers an observer and returns a function that removes it.
func (c *Conversation) Subscribe(observer Observer) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.observers[id] = observer
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.observers, id)
	}
}

func (c *Conversation) emit(event Event) {
	c.mu.Lock()
	observers := make([]Observer, 0, len(c.observers))
	for id := 0; id < c.nextID; id++ {
		if observer, ok := c.observers[id]; ok {
			observers = append(observers, observer)
		}
	}
	c.mu.Unlock()

	for _, observer := range observers {
		observer(event)
	}
}
