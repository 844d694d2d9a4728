package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// MoodAnalysisRequest carries a diary-style mood entry.
type MoodAnalysisRequest struct {
	MoodEntry string `json:"mood_entry"`
	EntryTime string `json:"entry_time,omitempty"`
}

// MoodAnalysisResponse is the emotional reading of an entry.
type MoodAnalysisResponse struct {
	Success     bool     `json:"success"`
	Analysis    string   `json:"analysis"`
	Emotion     string   `json:"emotion,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	Timestamp   string   `json:"timestamp"`
}

// Interest is one tracked topic and its trend.
type Interest struct {
	Name      string `json:"name"`
	Frequency int    `json:"frequency"`
	Trend     string `json:"trend"`
}

// InterestTrackingResponse lists interests over a period.
type InterestTrackingResponse struct {
	Success   bool       `json:"success"`
	Interests []Interest `json:"interests"`
	Summary   string     `json:"summary"`
	Timestamp string     `json:"timestamp"`
}

// LifeSummaryResponse summarizes a week, month or year.
type LifeSummaryResponse struct {
	Success    bool     `json:"success"`
	Period     string   `json:"period"`
	Summary    string   `json:"summary"`
	Highlights []string `json:"highlights,omitempty"`
	Insights   []string `json:"insights,omitempty"`
	Timestamp  string   `json:"timestamp"`
}

// LifeSuggestionsResponse lists suggestions with optional reasoning.
type LifeSuggestionsResponse struct {
	Success     bool     `json:"success"`
	Suggestions []string `json:"suggestions"`
	Reasoning   string   `json:"reasoning,omitempty"`
	Timestamp   string   `json:"timestamp"`
}

// LifeEventRequest records something that happened.
type LifeEventRequest struct {
	EventContent string   `json:"event_content"`
	EventType    string   `json:"event_type,omitempty"`
	EventTime    string   `json:"event_time,omitempty"`
	Tags         []string `json:"tags,omitempty"`
}

// LifeEventResponse acknowledges a recorded event.
type LifeEventResponse struct {
	Success   bool   `json:"success"`
	EventID   string `json:"event_id"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// AnalyzeMood reads the emotion of an entry.
func (c *Client) AnalyzeMood(ctx context.Context, req MoodAnalysisRequest) (*MoodAnalysisResponse, error) {
	var out MoodAnalysisResponse
	if err := c.doJSON(ctx, http.MethodPost, "/life/analyze-mood", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TrackInterests lists interests over the last periodDays days (default 30).
func (c *Client) TrackInterests(ctx context.Context, periodDays int) (*InterestTrackingResponse, error) {
	if periodDays <= 0 {
		periodDays = 30
	}
	query := url.Values{"period_days": {strconv.Itoa(periodDays)}}
	var out InterestTrackingResponse
	if err := c.doJSON(ctx, http.MethodGet, "/life/track-interests", query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LifeSummary summarizes period, one of week, month or year.
func (c *Client) LifeSummary(ctx context.Context, period string) (*LifeSummaryResponse, error) {
	if period == "" {
		period = "week"
	}
	var out LifeSummaryResponse
	payload := map[string]string{"period": period}
	if err := c.doJSON(ctx, http.MethodPost, "/life/life-summary", nil, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LifeSuggestions asks for suggestions, optionally grounded in suggestionContext.
func (c *Client) LifeSuggestions(ctx context.Context, suggestionContext string) (*LifeSuggestionsResponse, error) {
	payload := map[string]string{}
	if suggestionContext != "" {
		payload["context"] = suggestionContext
	}
	var out LifeSuggestionsResponse
	if err := c.doJSON(ctx, http.MethodPost, "/life/suggestions", nil, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RecordLifeEvent stores a life event.
func (c *Client) RecordLifeEvent(ctx context.Context, req LifeEventRequest) (*LifeEventResponse, error) {
	var out LifeEventResponse
	if err := c.doJSON(ctx, http.MethodPost, "/life/record-event", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
