package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/anotherme/anotherme/internal/stream"
)

// ChatContext carries the scene the message was written in.
type ChatContext struct {
	Mode    string `json:"mode"`
	Emotion string `json:"emotion,omitempty"`
}

// ChatRequest is the body of both chat endpoints.
type ChatRequest struct {
	Message string       `json:"message"`
	Context *ChatContext `json:"context,omitempty"`
}

// ChatResponse is the reply of the synchronous chat endpoint.
type ChatResponse struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// ChatSync sends a message and waits for the full reply.
func (c *Client) ChatSync(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var out ChatResponse
	if err := c.doJSON(ctx, http.MethodPost, "/mem/chat-sync", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// OpenChatStream starts a streaming chat and returns the event stream body.
// A non-nil error means the stream never started; the caller owns the body
// otherwise.
func (c *Client) OpenChatStream(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}
	httpReq, err := c.newRequest(ctx, http.MethodPost, c.endpoint("/mem/chat", nil), bytes.NewReader(payload), "application/json")
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("send chat request: %w", ctxErr)
		}
		return nil, &NetworkError{Op: "POST /mem/chat", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, fmt.Errorf("read stream error body: %w", readErr)
		}
		return nil, newAPIError(resp.StatusCode, body)
	}
	c.logger.Debug("chat stream opened", "status", resp.StatusCode)
	return resp.Body, nil
}

// ChatStream opens a streaming chat and decodes it into handler. Open and
// status failures reach handler.OnError once and are also returned.
func (c *Client) ChatStream(ctx context.Context, req ChatRequest, handler stream.Handler, opts stream.Options) error {
	body, err := c.OpenChatStream(ctx, req)
	if err != nil {
		if handler.OnError != nil {
			handler.OnError(err)
		}
		return err
	}
	return stream.Decode(ctx, body, handler, opts)
}
