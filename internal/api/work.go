package api

import (
	"context"
	"net/http"
)

// WeeklyReportRequest bounds the report period; empty dates mean the current week.
type WeeklyReportRequest struct {
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

// TimeStats breaks down tracked hours.
type TimeStats struct {
	TotalHours float64            `json:"total_hours"`
	Breakdown  map[string]float64 `json:"breakdown"`
}

// ReportInsights are the structured extras of a weekly report.
type ReportInsights struct {
	KeyTasks     []string   `json:"key_tasks,omitempty"`
	Achievements []string   `json:"achievements,omitempty"`
	Challenges   []string   `json:"challenges,omitempty"`
	TimeStats    *TimeStats `json:"time_stats,omitempty"`
}

// WeeklyReportResponse is a generated weekly report.
type WeeklyReportResponse struct {
	Success   bool            `json:"success"`
	Report    string          `json:"report"`
	Insights  *ReportInsights `json:"insights,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// TodoItem is one organized to-do.
type TodoItem struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Priority     string   `json:"priority"`
	Status       string   `json:"status"`
	Deadline     string   `json:"deadline,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	CreatedAt    string   `json:"created_at"`
}

// TodoStatistics counts organized to-dos.
type TodoStatistics struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Pending   int `json:"pending"`
}

// OrganizeTodosResponse groups to-dos by priority.
type OrganizeTodosResponse struct {
	Success        bool           `json:"success"`
	HighPriority   []TodoItem     `json:"high_priority"`
	MediumPriority []TodoItem     `json:"medium_priority"`
	LowPriority    []TodoItem     `json:"low_priority"`
	Statistics     TodoStatistics `json:"statistics"`
	Timestamp      string         `json:"timestamp"`
}

// MeetingInfo describes the meeting being summarized.
type MeetingInfo struct {
	Title        string   `json:"title,omitempty"`
	Date         string   `json:"date,omitempty"`
	Participants []string `json:"participants,omitempty"`
}

// MeetingSummaryRequest carries raw meeting notes.
type MeetingSummaryRequest struct {
	MeetingNotes string       `json:"meeting_notes"`
	MeetingInfo  *MeetingInfo `json:"meeting_info,omitempty"`
}

// MeetingSummaryResponse is the condensed meeting.
type MeetingSummaryResponse struct {
	Success     bool     `json:"success"`
	Summary     string   `json:"summary"`
	KeyPoints   []string `json:"key_points,omitempty"`
	Decisions   []string `json:"decisions,omitempty"`
	ActionItems []string `json:"action_items,omitempty"`
	Timestamp   string   `json:"timestamp"`
}

// Milestone is one tracked project milestone.
type Milestone struct {
	Name       string  `json:"name"`
	Status     string  `json:"status"`
	Completion float64 `json:"completion"`
}

// ProjectProgressResponse reports on a named project.
type ProjectProgressResponse struct {
	Success        bool        `json:"success"`
	ProjectName    string      `json:"project_name"`
	ProgressReport string      `json:"progress_report"`
	Milestones     []Milestone `json:"milestones,omitempty"`
	Timestamp      string      `json:"timestamp"`
}

// Pageable describes a page of suggestions.
type Pageable struct {
	Page       int `json:"page"`
	Size       int `json:"size"`
	TotalCount int `json:"total_count"`
}

// WorkSuggestResponse lists today's work suggestions.
type WorkSuggestResponse struct {
	Code     int      `json:"code"`
	Msg      string   `json:"msg"`
	Data     []string `json:"data"`
	Pageable Pageable `json:"pageable"`
}

// WeeklyReport generates a weekly report.
func (c *Client) WeeklyReport(ctx context.Context, req WeeklyReportRequest) (*WeeklyReportResponse, error) {
	var out WeeklyReportResponse
	if err := c.doJSON(ctx, http.MethodPost, "/work/weekly-report", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// OrganizeTodos prioritizes free-form to-do lines.
func (c *Client) OrganizeTodos(ctx context.Context, todos []string) (*OrganizeTodosResponse, error) {
	var out OrganizeTodosResponse
	payload := map[string][]string{"todos": todos}
	if err := c.doJSON(ctx, http.MethodPost, "/work/organize-todos", nil, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SummarizeMeeting condenses meeting notes.
func (c *Client) SummarizeMeeting(ctx context.Context, req MeetingSummaryRequest) (*MeetingSummaryResponse, error) {
	var out MeetingSummaryResponse
	if err := c.doJSON(ctx, http.MethodPost, "/work/summarize-meeting", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TrackProject reports progress of a named project.
func (c *Client) TrackProject(ctx context.Context, projectName string) (*ProjectProgressResponse, error) {
	var out ProjectProgressResponse
	payload := map[string]string{"project_name": projectName}
	if err := c.doJSON(ctx, http.MethodPost, "/work/track-project", nil, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WorkSuggestions returns today's work suggestions.
func (c *Client) WorkSuggestions(ctx context.Context) (*WorkSuggestResponse, error) {
	var out WorkSuggestResponse
	if err := c.doJSON(ctx, http.MethodGet, "/work/suggest", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
