package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
)

// DocumentInfo describes an uploaded knowledge document.
type DocumentInfo struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	Size       int64  `json:"size"`
	UploadTime string `json:"upload_time"`
	ChunkCount int    `json:"chunk_count,omitempty"`
}

// DocumentDetail is a document with its content and bookkeeping.
type DocumentDetail struct {
	DocumentInfo
	Content   string         `json:"content"`
	DocType   string         `json:"doc_type"`
	Source    string         `json:"source"`
	Timestamp string         `json:"timestamp"`
	Tags      []string       `json:"tags"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
	Metadata  map[string]any `json:"metadata"`
}

// Pagination describes a page of results.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// DocumentPage is one page of the document listing.
type DocumentPage struct {
	Success    bool           `json:"success"`
	Data       []DocumentInfo `json:"data"`
	Pagination Pagination     `json:"pagination"`
	Timestamp  string         `json:"timestamp"`
}

// UploadResponse acknowledges an upload.
type UploadResponse struct {
	Success    bool   `json:"success"`
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	Message    string `json:"message"`
}

// SearchResult is one knowledge hit.
type SearchResult struct {
	Content  string         `json:"content"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

// SearchResponse lists knowledge hits for a query.
type SearchResponse struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
	Total   int            `json:"total"`
}

// RAGStats summarizes the knowledge base.
type RAGStats struct {
	DocumentCount int   `json:"document_count"`
	TotalChunks   int   `json:"total_chunks"`
	TotalSize     int64 `json:"total_size"`
}

// UploadDocument sends content as the multipart field "file" named filename.
func (c *Client) UploadDocument(ctx context.Context, filename string, content io.Reader) (*UploadResponse, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return nil, fmt.Errorf("create upload part: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("copy upload content: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finish upload body: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.endpoint("/rag/upload", nil), &buf, writer.FormDataContentType())
	if err != nil {
		return nil, err
	}
	raw, err := c.send(c.httpClient, req)
	if err != nil {
		return nil, err
	}
	var out UploadResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parse upload response: %w", err)
	}
	return &out, nil
}

// SearchKnowledge queries the knowledge base. Non-positive topK uses 5.
func (c *Client) SearchKnowledge(ctx context.Context, queryText string, topK int) (*SearchResponse, error) {
	if topK <= 0 {
		topK = 5
	}
	payload := map[string]any{"query": queryText, "top_k": topK}
	var out SearchResponse
	if err := c.doJSON(ctx, http.MethodPost, "/rag/search", nil, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Documents lists one page of documents. Pages start at 1; page size defaults to 20.
func (c *Client) Documents(ctx context.Context, page int, pageSize int) (*DocumentPage, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("page_size", strconv.Itoa(pageSize))
	var out DocumentPage
	if err := c.doJSON(ctx, http.MethodGet, "/rag/documents", query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Document returns one document with its content.
func (c *Client) Document(ctx context.Context, id string) (*DocumentDetail, error) {
	var out DocumentDetail
	if err := c.doJSON(ctx, http.MethodGet, "/rag/documents/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteDocument removes one document.
func (c *Client) DeleteDocument(ctx context.Context, id string) (*BaseResponse, error) {
	var out BaseResponse
	if err := c.doJSON(ctx, http.MethodDelete, "/rag/documents/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteDocuments removes several documents at once.
func (c *Client) DeleteDocuments(ctx context.Context, ids []string) (*BaseResponse, error) {
	var out BaseResponse
	payload := map[string][]string{"document_ids": ids}
	if err := c.doJSON(ctx, http.MethodPost, "/rag/documents/batch-delete", nil, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// KnowledgeStats returns knowledge base totals.
func (c *Client) KnowledgeStats(ctx context.Context) (*RAGStats, error) {
	var out RAGStats
	if err := c.doJSON(ctx, http.MethodGet, "/rag/stats", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
