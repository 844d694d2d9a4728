package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// networkErrorMessage is shown when the backend could not be reached.
const networkErrorMessage = "网络错误，请检查后端服务是否启动"

// APIError represents a non-2xx response from the backend.
type APIError struct {
	// StatusCode is the HTTP status.
	StatusCode int
	// Body is the trimmed response body.
	Body string
	// Detail is the server-provided reason from detail, message or error.
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Detail)
	}
	if e.Body == "" {
		return fmt.Sprintf("api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Body)
}

// NetworkError wraps a request that never produced a response.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// newAPIError extracts the detail field used by the backend's error bodies.
func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: strings.TrimSpace(string(body))}
	var payload struct {
		Detail  any    `json:"detail"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return apiErr
	}
	switch detail := payload.Detail.(type) {
	case string:
		apiErr.Detail = detail
	case nil:
	default:
		// Validation failures carry a structured detail; keep it readable.
		if encoded, err := json.Marshal(detail); err == nil {
			apiErr.Detail = string(encoded)
		}
	}
	if apiErr.Detail == "" {
		apiErr.Detail = payload.Message
	}
	if apiErr.Detail == "" {
		apiErr.Detail = payload.Error
	}
	return apiErr
}

// IsNetworkError reports whether err came from a request without a response.
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// IsServerError reports a 5xx response.
func IsServerError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode >= 500
}

// IsClientError reports a 4xx response.
func IsClientError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}

// ErrorMessage renders err for display, falling back to fallback when nothing
// better is known.
func ErrorMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		detail := apiErr.Detail
		if detail == "" {
			detail = fallback
		}
		switch apiErr.StatusCode {
		case http.StatusBadRequest:
			return "请求错误: " + detail
		case http.StatusUnauthorized:
			return "未授权，请先登录"
		case http.StatusForbidden:
			return "没有权限访问"
		case http.StatusNotFound:
			return "请求的资源不存在"
		case http.StatusInternalServerError:
			return "服务器内部错误，请稍后重试"
		case http.StatusServiceUnavailable:
			return "服务暂时不可用，请稍后重试"
		default:
			return detail
		}
	}
	if IsNetworkError(err) {
		return networkErrorMessage
	}
	if message := err.Error(); message != "" {
		return message
	}
	return fallback
}
