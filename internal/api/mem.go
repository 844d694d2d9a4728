package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// BaseResponse is the generic acknowledgement shape.
type BaseResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Memory is a remembered fragment of conversation.
type Memory struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	Timestamp  string         `json:"timestamp"`
	Emotion    string         `json:"emotion,omitempty"`
	Importance float64        `json:"importance,omitempty"`
	Category   string         `json:"category,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// MemoryListResponse is a page of memories.
type MemoryListResponse struct {
	Memories []Memory `json:"memories"`
	Total    int      `json:"total"`
}

// TimeRange bounds a recall query.
type TimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// RecallRequest asks for memories presented as a narrative.
type RecallRequest struct {
	Query     string     `json:"query"`
	TimeRange *TimeRange `json:"time_range,omitempty"`
}

// TimelineNode groups recalled memories by date.
type TimelineNode struct {
	Date   string   `json:"date"`
	Events []Memory `json:"events"`
}

// RecallResponse is the narrative recall result.
type RecallResponse struct {
	Success      bool           `json:"success"`
	Memories     []Memory       `json:"memories"`
	Presentation string         `json:"presentation"`
	Timeline     []TimelineNode `json:"timeline,omitempty"`
	Timestamp    string         `json:"timestamp"`
}

// Learn stores a message (and optional context) as a memory.
func (c *Client) Learn(ctx context.Context, message string, learnContext string) (*BaseResponse, error) {
	payload := map[string]string{"message": message}
	if learnContext != "" {
		payload["context"] = learnContext
	}
	var out BaseResponse
	if err := c.doJSON(ctx, http.MethodPost, "/mem/learn", nil, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Memories lists memories. Non-positive limit uses 100.
func (c *Client) Memories(ctx context.Context, limit int, offset int) (*MemoryListResponse, error) {
	if limit <= 0 {
		limit = 100
	}
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(max(offset, 0)))
	var out MemoryListResponse
	if err := c.doJSON(ctx, http.MethodGet, "/mem/memories", query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchMemories runs a semantic memory search. Non-positive limit uses 20.
func (c *Client) SearchMemories(ctx context.Context, queryText string, limit int) (*MemoryListResponse, error) {
	if limit <= 0 {
		limit = 20
	}
	payload := map[string]any{"query": queryText, "limit": limit}
	var out MemoryListResponse
	if err := c.doJSON(ctx, http.MethodPost, "/mem/memories/search", nil, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Recall asks for a narrative over matching memories.
func (c *Client) Recall(ctx context.Context, req RecallRequest) (*RecallResponse, error) {
	var out RecallResponse
	if err := c.doJSON(ctx, http.MethodPost, "/mem/recall", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteMemory removes one memory.
func (c *Client) DeleteMemory(ctx context.Context, id string) (*BaseResponse, error) {
	var out BaseResponse
	if err := c.doJSON(ctx, http.MethodDelete, "/mem/memories/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteMemories removes several memories at once.
func (c *Client) DeleteMemories(ctx context.Context, ids []string) (*BaseResponse, error) {
	var out BaseResponse
	payload := map[string][]string{"memory_ids": ids}
	if err := c.doJSON(ctx, http.MethodPost, "/mem/memories/batch-delete", nil, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExportMemories returns the raw export in format json or csv.
func (c *Client) ExportMemories(ctx context.Context, format string) ([]byte, error) {
	if format == "" {
		format = "json"
	}
	return c.getRaw(ctx, "/mem/memories/export", url.Values{"format": {format}})
}
