package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

const (
	// dataPrefix marks a segment as an event frame.
	dataPrefix = "data: "
	// doneSentinel ends the stream normally.
	doneSentinel = "[DONE]"
	// errorSentinel ends the stream with a server-side failure.
	errorSentinel = "[ERROR]"
	// errorStrip is the width of the marker plus its one-byte separator.
	errorStrip = 8
	// defaultReadSize is the read buffer used when Options.ReadSize is unset.
	defaultReadSize = 4096
)

// frameSeparator splits the buffered stream into event segments.
var frameSeparator = []byte("\n\n")

var (
	// ErrMalformedFrame is reported in strict mode for a non-empty segment without the data prefix.
	ErrMalformedFrame = errors.New("malformed stream frame")
	// ErrNilBody is reported when Decode is called without a body.
	ErrNilBody = errors.New("stream body is nil")
)

// RemoteError carries the message of an [ERROR] event sent by the server.
type RemoteError struct {
	// Message is the payload text after the error marker.
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Handler receives decoded events. Only OnChunk is expected; the others may be nil.
type Handler struct {
	// OnChunk receives each forwarded payload in arrival order.
	OnChunk func(text string)
	// OnError fires at most once when the stream terminates with a failure.
	OnError func(err error)
	// OnComplete fires at most once when the stream ends normally.
	OnComplete func()
}

// Options tunes decoder behavior.
type Options struct {
	// Strict reports segments lacking the data prefix instead of dropping them.
	Strict bool
	// ReadSize bounds each read from the body. Zero uses 4096 bytes.
	ReadSize int
}

// Decode consumes body until a sentinel, end of stream, a read failure or
// cancellation of ctx. Exactly one of OnComplete or OnError fires, and body is
// closed before Decode returns. The returned error matches the one passed to
// OnError, or is nil on completion.
func Decode(ctx context.Context, body io.ReadCloser, handler Handler, opts Options) error {
	d := &decoder{handler: handler, strict: opts.Strict}
	if body == nil {
		return d.fail(ErrNilBody)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var closeOnce sync.Once
	closeBody := func() {
		closeOnce.Do(func() {
			_ = body.Close()
		})
	}
	defer closeBody()

	// Closing the body unblocks an in-flight Read when the caller cancels.
	stopWatch := context.AfterFunc(ctx, closeBody)
	defer stopWatch()

	readSize := opts.ReadSize
	if readSize <= 0 {
		readSize = defaultReadSize
	}
	chunk := make([]byte, readSize)

	for {
		if err := ctx.Err(); err != nil {
			return d.fail(err)
		}
		n, readErr := body.Read(chunk)
		if n > 0 {
			d.pending = append(d.pending, chunk[:n]...)
			if d.drain() {
				return d.err
			}
		}
		if readErr == nil {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return d.fail(ctxErr)
		}
		if errors.Is(readErr, io.EOF) {
			d.complete()
			return nil
		}
		return d.fail(readErr)
	}
}

// decoder holds the carry-over buffer and terminal state for one stream.
type decoder struct {
	handler Handler
	strict  bool
	// pending holds bytes after the last complete segment. Segments are cut on
	// "\n\n", which never occurs inside a multi-byte UTF-8 sequence, so a rune
	// split across reads stays intact here until its segment completes.
	pending []byte
	done    bool
	err     error
}

// drain processes every complete segment in pending and reports whether the
// stream reached a terminal state.
func (d *decoder) drain() bool {
	consumed := 0
	for {
		index := bytes.Index(d.pending[consumed:], frameSeparator)
		if index < 0 {
			break
		}
		segment := string(d.pending[consumed : consumed+index])
		consumed += index + len(frameSeparator)
		if d.process(segment) {
			d.pending = nil
			return true
		}
	}
	if consumed > 0 {
		remaining := copy(d.pending, d.pending[consumed:])
		d.pending = d.pending[:remaining]
	}
	return false
}

// process handles one complete segment and reports whether the stream ended.
func (d *decoder) process(segment string) bool {
	payload, ok := ParseFrame(segment)
	if !ok {
		if d.strict && segment != "" {
			d.fail(ErrMalformedFrame)
			return true
		}
		return false
	}
	payload = strings.ToValidUTF8(payload, "\uFFFD")

	switch {
	case payload == doneSentinel:
		d.complete()
		return true
	case strings.HasPrefix(payload, errorSentinel):
		d.fail(&RemoteError{Message: ErrorMessage(payload)})
		return true
	}
	if d.handler.OnChunk != nil {
		d.handler.OnChunk(payload)
	}
	return false
}

func (d *decoder) complete() {
	if d.done {
		return
	}
	d.done = true
	if d.handler.OnComplete != nil {
		d.handler.OnComplete()
	}
}

func (d *decoder) fail(err error) error {
	if d.done {
		return d.err
	}
	d.done = true
	d.err = err
	if d.handler.OnError != nil {
		d.handler.OnError(err)
	}
	return err
}

// ParseFrame returns the payload of an event segment. Only the outer segment is
// checked for the prefix; payload contents are never re-parsed.
func ParseFrame(segment string) (string, bool) {
	if !strings.HasPrefix(segment, dataPrefix) {
		return "", false
	}
	return segment[len(dataPrefix):], true
}

// ErrorMessage strips the error marker and its separator from an [ERROR]
// payload. Servers send "[ERROR] msg" or "[ERROR]:msg", where the fixed
// 8-byte strip applies; a marker glued directly to the message keeps the
// message whole.
func ErrorMessage(payload string) string {
	rest := strings.TrimPrefix(payload, errorSentinel)
	if rest == "" {
		return ""
	}
	switch rest[0] {
	case ' ', ':':
		return payload[errorStrip:]
	}
	return rest
}
