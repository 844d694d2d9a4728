package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/anotherme/anotherme/internal/api"
	"github.com/anotherme/anotherme/internal/mode"
)

// errActionInputRequired is returned when an action needs text to work on.
var errActionInputRequired = errors.New("action needs input")

// actionOutput is the rendered result of an action.
type actionOutput struct {
	// Text is a markdown rendering for terminals.
	Text string
	// Data is the raw response for json output.
	Data any
}

// actionHandler runs one action against the backend.
type actionHandler func(ctx context.Context, client *api.Client, input string) (actionOutput, error)

// actionHandlers maps the handler names of the action table to API calls.
var actionHandlers = map[string]actionHandler{
	"generateWeeklyReport": runWeeklyReport,
	"organizeTodos":        runOrganizeTodos,
	"summarizeMeeting":     runSummarizeMeeting,
	"trackProjectProgress": runTrackProject,
	"analyzeTimeUsage":     runTimeAnalysis,
	"casualChat":           runCasualChat,
	"recordLifeEvent":      runRecordLifeEvent,
	"analyzeMood":          runAnalyzeMood,
	"trackInterests":       runTrackInterests,
	"generateLifeSummary":  runLifeSummary,
}

// actionCommand runs an action available in the current scene and capability.
func actionCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "action <key> [input]",
		Short: "Run an action available in the current mode",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, true, func(a *app, out io.Writer) error {
				action, err := findAction(a.selector, args[0])
				if err != nil {
					return err
				}
				input := strings.Join(args[1:], " ")
				result, err := runAction(cmd.Context(), a.client, action, input)
				if err != nil {
					return err
				}
				if a.jsonOutput() {
					return writeJSON(out, result.Data)
				}
				fmt.Fprintln(out, result.Text)
				return nil
			})
		},
	}
}

// findAction resolves key among the currently available actions.
func findAction(selector *mode.Selector, key string) (mode.ActionConfig, error) {
	available := selector.AvailableActions()
	for _, action := range available {
		if strings.EqualFold(action.Key, key) {
			return action, nil
		}
	}
	keys := make([]string, 0, len(available))
	for _, action := range available {
		keys = append(keys, action.Key)
	}
	state := selector.State()
	return mode.ActionConfig{}, fmt.Errorf("action %q is not available in %s/%s (available: %s)",
		key, state.Mode, state.Capability, strings.Join(keys, ", "))
}

// runAction dispatches action to its handler.
func runAction(ctx context.Context, client *api.Client, action mode.ActionConfig, input string) (actionOutput, error) {
	handler, ok := actionHandlers[action.Handler]
	if !ok {
		return actionOutput{}, fmt.Errorf("action %s has no handler %q", action.Key, action.Handler)
	}
	result, err := handler(ctx, client, strings.TrimSpace(input))
	if err != nil {
		return actionOutput{}, fmt.Errorf("%s: %w", action.Key, err)
	}
	return result, nil
}

func requireInput(input string, what string) error {
	if input == "" {
		return fmt.Errorf("%w: %s", errActionInputRequired, what)
	}
	return nil
}

func runWeeklyReport(ctx context.Context, client *api.Client, input string) (actionOutput, error) {
	req := api.WeeklyReportRequest{}
	if fields := strings.Fields(input); len(fields) == 2 {
		req.StartDate, req.EndDate = fields[0], fields[1]
	}
	resp, err := client.WeeklyReport(ctx, req)
	if err != nil {
		return actionOutput{}, err
	}
	var builder strings.Builder
	builder.WriteString("# 周报\n\n")
	builder.WriteString(resp.Report)
	if resp.Insights != nil {
		writeBullets(&builder, "关键任务", resp.Insights.KeyTasks)
		writeBullets(&builder, "成果", resp.Insights.Achievements)
		writeBullets(&builder, "挑战", resp.Insights.Challenges)
	}
	return actionOutput{Text: builder.String(), Data: resp}, nil
}

func runOrganizeTodos(ctx context.Context, client *api.Client, input string) (actionOutput, error) {
	if err := requireInput(input, "one to-do per line"); err != nil {
		return actionOutput{}, err
	}
	var todos []string
	for _, line := range strings.Split(input, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			todos = append(todos, line)
		}
	}
	resp, err := client.OrganizeTodos(ctx, todos)
	if err != nil {
		return actionOutput{}, err
	}
	var builder strings.Builder
	builder.WriteString("# 待办整理\n")
	writeTodos(&builder, "高优先级", resp.HighPriority)
	writeTodos(&builder, "中优先级", resp.MediumPriority)
	writeTodos(&builder, "低优先级", resp.LowPriority)
	fmt.Fprintf(&builder, "\n共 %d 项，已完成 %d，待处理 %d\n", resp.Statistics.Total, resp.Statistics.Completed, resp.Statistics.Pending)
	return actionOutput{Text: builder.String(), Data: resp}, nil
}

func runSummarizeMeeting(ctx context.Context, client *api.Client, input string) (actionOutput, error) {
	if err := requireInput(input, "meeting notes"); err != nil {
		return actionOutput{}, err
	}
	resp, err := client.SummarizeMeeting(ctx, api.MeetingSummaryRequest{MeetingNotes: input})
	if err != nil {
		return actionOutput{}, err
	}
	var builder strings.Builder
	builder.WriteString("# 会议总结\n\n")
	builder.WriteString(resp.Summary)
	writeBullets(&builder, "要点", resp.KeyPoints)
	writeBullets(&builder, "决策", resp.Decisions)
	writeBullets(&builder, "行动项", resp.ActionItems)
	return actionOutput{Text: builder.String(), Data: resp}, nil
}

func runTrackProject(ctx context.Context, client *api.Client, input string) (actionOutput, error) {
	if err := requireInput(input, "project name"); err != nil {
		return actionOutput{}, err
	}
	resp, err := client.TrackProject(ctx, input)
	if err != nil {
		return actionOutput{}, err
	}
	var builder strings.Builder
	fmt.Fprintf(&builder, "# 项目进度: %s\n\n%s\n", resp.ProjectName, resp.ProgressReport)
	for _, milestone := range resp.Milestones {
		fmt.Fprintf(&builder, "- %s (%s) %.0f%%\n", milestone.Name, milestone.Status, milestone.Completion)
	}
	return actionOutput{Text: builder.String(), Data: resp}, nil
}

// runTimeAnalysis reads the time statistics of the weekly report.
func runTimeAnalysis(ctx context.Context, client *api.Client, input string) (actionOutput, error) {
	report, err := runWeeklyReport(ctx, client, input)
	if err != nil {
		return actionOutput{}, err
	}
	resp := report.Data.(*api.WeeklyReportResponse)
	if resp.Insights == nil || resp.Insights.TimeStats == nil {
		return actionOutput{Text: "暂无时间统计数据", Data: resp}, nil
	}
	stats := resp.Insights.TimeStats
	var builder strings.Builder
	fmt.Fprintf(&builder, "# 时间分析\n\n总计 %.1f 小时\n\n", stats.TotalHours)
	for _, name := range sortedKeys(stats.Breakdown) {
		fmt.Fprintf(&builder, "- %s: %.1f 小时\n", name, stats.Breakdown[name])
	}
	return actionOutput{Text: builder.String(), Data: stats}, nil
}

func runCasualChat(ctx context.Context, client *api.Client, input string) (actionOutput, error) {
	if err := requireInput(input, "a message"); err != nil {
		return actionOutput{}, err
	}
	resp, err := client.ChatSync(ctx, api.ChatRequest{Message: input, Context: &api.ChatContext{Mode: string(mode.ModeLife)}})
	if err != nil {
		return actionOutput{}, err
	}
	return actionOutput{Text: resp.Message, Data: resp}, nil
}

func runRecordLifeEvent(ctx context.Context, client *api.Client, input string) (actionOutput, error) {
	if err := requireInput(input, "what happened"); err != nil {
		return actionOutput{}, err
	}
	resp, err := client.RecordLifeEvent(ctx, api.LifeEventRequest{EventContent: input})
	if err != nil {
		return actionOutput{}, err
	}
	text := resp.Message
	if text == "" {
		text = "已记录"
	}
	return actionOutput{Text: fmt.Sprintf("%s (%s)", text, resp.EventID), Data: resp}, nil
}

func runAnalyzeMood(ctx context.Context, client *api.Client, input string) (actionOutput, error) {
	if err := requireInput(input, "how you feel"); err != nil {
		return actionOutput{}, err
	}
	resp, err := client.AnalyzeMood(ctx, api.MoodAnalysisRequest{MoodEntry: input})
	if err != nil {
		return actionOutput{}, err
	}
	var builder strings.Builder
	builder.WriteString("# 心情分析\n\n")
	if resp.Emotion != "" {
		fmt.Fprintf(&builder, "情绪: **%s**\n\n", resp.Emotion)
	}
	builder.WriteString(resp.Analysis)
	writeBullets(&builder, "建议", resp.Suggestions)
	return actionOutput{Text: builder.String(), Data: resp}, nil
}

func runTrackInterests(ctx context.Context, client *api.Client, input string) (actionOutput, error) {
	days := 0
	if input != "" {
		parsed, err := strconv.Atoi(input)
		if err != nil {
			return actionOutput{}, fmt.Errorf("period must be a number of days: %w", err)
		}
		days = parsed
	}
	resp, err := client.TrackInterests(ctx, days)
	if err != nil {
		return actionOutput{}, err
	}
	var builder strings.Builder
	builder.WriteString("# 兴趣追踪\n\n")
	for _, interest := range resp.Interests {
		fmt.Fprintf(&builder, "- %s ×%d %s\n", interest.Name, interest.Frequency, trendArrow(interest.Trend))
	}
	if resp.Summary != "" {
		fmt.Fprintf(&builder, "\n%s\n", resp.Summary)
	}
	return actionOutput{Text: builder.String(), Data: resp}, nil
}

func runLifeSummary(ctx context.Context, client *api.Client, input string) (actionOutput, error) {
	period := strings.ToLower(input)
	switch period {
	case "", "week", "month", "year":
	default:
		return actionOutput{}, fmt.Errorf("period must be week, month or year, got %q", input)
	}
	resp, err := client.LifeSummary(ctx, period)
	if err != nil {
		return actionOutput{}, err
	}
	var builder strings.Builder
	fmt.Fprintf(&builder, "# 生活总结 (%s)\n\n%s", resp.Period, resp.Summary)
	writeBullets(&builder, "亮点", resp.Highlights)
	writeBullets(&builder, "洞察", resp.Insights)
	return actionOutput{Text: builder.String(), Data: resp}, nil
}

// writeBullets appends a titled markdown list when items is non-empty.
func writeBullets(builder *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(builder, "\n\n## %s\n", title)
	for _, item := range items {
		fmt.Fprintf(builder, "- %s\n", item)
	}
}

func writeTodos(builder *strings.Builder, title string, items []api.TodoItem) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(builder, "\n## %s\n", title)
	for _, item := range items {
		check := " "
		if item.Status == "completed" {
			check = "x"
		}
		line := fmt.Sprintf("- [%s] %s", check, item.Title)
		if item.Deadline != "" {
			line += " (截止 " + item.Deadline + ")"
		}
		builder.WriteString(line + "\n")
	}
}

func trendArrow(trend string) string {
	switch trend {
	case "rising":
		return "↑"
	case "declining":
		return "↓"
	default:
		return "→"
	}
}

// suggestCommand asks for suggestions that fit the current scene.
func suggestCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "suggest [context]",
		Short: "Get suggestions for the current mode",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, true, func(a *app, out io.Writer) error {
				result, err := suggest(cmd.Context(), a.client, a.selector.Mode(), strings.Join(args, " "))
				if err != nil {
					return err
				}
				if a.jsonOutput() {
					return writeJSON(out, result.Data)
				}
				fmt.Fprintln(out, result.Text)
				return nil
			})
		},
	}
}

// suggest uses the work or life suggestion endpoint depending on the scene.
func suggest(ctx context.Context, client *api.Client, scene mode.Mode, input string) (actionOutput, error) {
	var builder strings.Builder
	if scene == mode.ModeLife {
		resp, err := client.LifeSuggestions(ctx, strings.TrimSpace(input))
		if err != nil {
			return actionOutput{}, err
		}
		builder.WriteString("# 生活建议")
		writeBullets(&builder, "建议", resp.Suggestions)
		if resp.Reasoning != "" {
			fmt.Fprintf(&builder, "\n%s\n", resp.Reasoning)
		}
		return actionOutput{Text: builder.String(), Data: resp}, nil
	}

	resp, err := client.WorkSuggestions(ctx)
	if err != nil {
		return actionOutput{}, err
	}
	builder.WriteString("# 工作建议")
	writeBullets(&builder, "今日建议", resp.Data)
	return actionOutput{Text: builder.String(), Data: resp}, nil
}
