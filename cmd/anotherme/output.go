package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/anotherme/anotherme/internal/api"
	"github.com/anotherme/anotherme/internal/chat"
	"github.com/anotherme/anotherme/internal/stream"
)

// writeJSON writes payload as indented JSON.
func writeJSON(out io.Writer, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

// sortedKeys returns map keys in lexical order.
func sortedKeys[V any](values map[string]V) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// formatBytes renders a byte count for listings.
func formatBytes(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(size)/float64(div), "KMGTPE"[exp])
}

// compactWhitespace collapses internal whitespace into single spaces.
func compactWhitespace(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

// truncateForDisplay shortens long strings without breaking runes.
func truncateForDisplay(value string, max int) string {
	if max <= 0 || utf8.RuneCountInString(value) <= max {
		return value
	}
	runes := []rune(value)
	return string(runes[:max]) + "..."
}

// formatError normalizes errors for terminal output.
func formatError(err error) string {
	if err == nil {
		return ""
	}
	var remote *stream.RemoteError
	switch {
	case errors.Is(err, context.Canceled):
		return "Request cancelled."
	case errors.Is(err, context.DeadlineExceeded):
		return "Request timed out."
	case errors.Is(err, chat.ErrBusy):
		return "Wait for the current reply or cancel with Ctrl+C."
	case errors.Is(err, errActionInputRequired):
		return err.Error()
	case errors.As(err, &remote):
		return "Stream error: " + remote.Message
	case errors.Is(err, stream.ErrMalformedFrame):
		return "Stream error: the server sent a malformed frame."
	default:
		return api.ErrorMessage(err, "操作失败")
	}
}
