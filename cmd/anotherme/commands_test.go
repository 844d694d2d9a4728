package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/anotherme/anotherme/internal/session"
	"github.com/anotherme/anotherme/internal/testutil"
)

// testEnv isolates HOME and the state database and serves a fake backend.
type testEnv struct {
	t       *testing.T
	home    string
	stateDB string
	baseURL string
}

func newTestEnv(t *testing.T, handler http.HandlerFunc) *testEnv {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	server := httptest.NewServer(http.StripPrefix("/api/v1", handler))
	t.Cleanup(server.Close)
	return &testEnv{
		t:       t,
		home:    home,
		stateDB: filepath.Join(home, "state.db"),
		baseURL: server.URL + "/api/v1",
	}
}

// run executes the CLI with args and returns stdout.
func (e *testEnv) run(args ...string) (string, error) {
	e.t.Helper()
	cmd := newRootCommand(&options{})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(append(args, "--state-db", e.stateDB, "--api-base-url", e.baseURL))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func respondJSON(t *testing.T, w http.ResponseWriter, status int, body any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	testutil.RequireNoError(t, json.NewEncoder(w).Encode(body), "encode response")
}

func streamFrames(w http.ResponseWriter, frames ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	flusher := w.(http.Flusher)
	for _, frame := range frames {
		_, _ = fmt.Fprintf(w, "%s\n\n", frame)
		flusher.Flush()
	}
}

func notFound(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		http.NotFound(w, r)
	}
}

// TestModeCommandPersistsSelection verifies switches survive across runs.
func TestModeCommandPersistsSelection(t *testing.T) {
	env := newTestEnv(t, notFound(t))

	out, err := env.run("mode", "life", "--output-format", "json")
	testutil.RequireNoError(t, err, "mode life")
	testutil.RequireStringContains(t, out, `"mode": "life"`, "switch output")

	_, err = env.run("mode", "analyze")
	testutil.RequireNoError(t, err, "mode analyze")

	out, err = env.run("mode", "show", "--output-format", "json")
	testutil.RequireNoError(t, err, "mode show")
	var view modeView
	testutil.RequireNoError(t, json.Unmarshal([]byte(out), &view), "decode mode view")
	testutil.RequireEqual(t, string(view.Mode), "life", "persisted mode")
	testutil.RequireEqual(t, string(view.Capability), "analyze", "persisted capability")
	testutil.RequireLen(t, view.Actions, 3, "life/analyze actions")
	testutil.RequireEqual(t, view.Actions[0].Key, "mood_analysis", "first action")

	out, err = env.run("mode", "reset")
	testutil.RequireNoError(t, err, "mode reset")
	testutil.RequireStringContains(t, out, "weekly_report", "reset actions")
}

// TestModeDetectSwitchesScene verifies keyword detection from the CLI.
func TestModeDetectSwitchesScene(t *testing.T) {
	env := newTestEnv(t, notFound(t))

	out, err := env.run("mode", "detect", "今天心情不错", "--output-format", "json")
	testutil.RequireNoError(t, err, "mode detect")
	testutil.RequireStringContains(t, out, `"switched": true`, "detect output")

	out, err = env.run("mode", "actions", "--output-format", "json")
	testutil.RequireNoError(t, err, "mode actions")
	testutil.RequireStringContains(t, out, `"casual_chat"`, "life actions")
}

// TestActionCommandRunsAvailableAction verifies dispatch to the work API.
func TestActionCommandRunsAvailableAction(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		testutil.RequireEqual(t, r.URL.Path, "/work/weekly-report", "report path")
		var body map[string]string
		testutil.RequireNoError(t, json.NewDecoder(r.Body).Decode(&body), "decode report body")
		testutil.RequireEqual(t, body["start_date"], "2024-04-29", "start date")
		testutil.RequireEqual(t, body["end_date"], "2024-05-05", "end date")
		respondJSON(t, w, http.StatusOK, map[string]any{
			"success": true,
			"report":  "本周完成了发布",
			"insights": map[string]any{
				"achievements": []string{"上线 v2"},
			},
		})
	})

	out, err := env.run("action", "weekly_report", "2024-04-29", "2024-05-05")
	testutil.RequireNoError(t, err, "run action")
	testutil.RequireStringContains(t, out, "本周完成了发布", "report text")
	testutil.RequireStringContains(t, out, "- 上线 v2", "achievements")
}

// TestActionCommandRejectsUnavailableAction verifies actions are scoped to the mode.
func TestActionCommandRejectsUnavailableAction(t *testing.T) {
	env := newTestEnv(t, notFound(t))

	_, err := env.run("action", "mood_analysis", "开心")
	testutil.RequireTrue(t, err != nil, "expected unavailable action error")
	testutil.RequireStringContains(t, err.Error(), "not available in work/mimic", "error message")

	_, err = env.run("action", "meeting_summary")
	testutil.RequireErrorIs(t, err, errActionInputRequired, "missing input")
}

// TestChatPromptStreamsAndPersists verifies one-shot chat output and transcript.
func TestChatPromptStreamsAndPersists(t *testing.T) {
	var modes []string
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		testutil.RequireEqual(t, r.URL.Path, "/mem/chat", "chat path")
		var body struct {
			Message string `json:"message"`
			Context struct {
				Mode string `json:"mode"`
			} `json:"context"`
		}
		testutil.RequireNoError(t, json.NewDecoder(r.Body).Decode(&body), "decode chat body")
		modes = append(modes, body.Context.Mode)
		streamFrames(w, "data: 听起来", "data: 不错", "data: [DONE]")
	})

	out, err := env.run("chat", "今天心情不错")
	testutil.RequireNoError(t, err, "chat prompt")
	testutil.RequireEqual(t, out, "听起来不错\n", "streamed reply")

	store := &session.Store{BaseDir: filepath.Join(env.home, ".anotherme")}
	cwd, err := os.Getwd()
	testutil.RequireNoError(t, err, "getwd")
	sessionID, err := store.LoadLastSession(session.ProjectHash(cwd))
	testutil.RequireNoError(t, err, "last session")
	records, err := store.LoadMessages(sessionID)
	testutil.RequireNoError(t, err, "load transcript")
	testutil.RequireLen(t, records, 2, "transcript records")
	testutil.RequireEqual(t, records[0].Content, "今天心情不错", "user record")
	testutil.RequireEqual(t, records[1].Content, "听起来不错", "assistant record")
	testutil.RequireEqual(t, records[1].Mode, "life", "assistant mode")

	out, err = env.run("chat", "--continue", "--output-format", "json", "再聊聊")
	testutil.RequireNoError(t, err, "continue chat")
	var result chatResult
	testutil.RequireNoError(t, json.Unmarshal([]byte(out), &result), "decode chat result")
	testutil.RequireEqual(t, result.SessionID, sessionID, "continued session")
	testutil.RequireEqual(t, result.Message, "听起来不错", "json reply")
	testutil.RequireEqual(t, modes, []string{"life", "life"}, "request modes")

	records, err = store.LoadMessages(sessionID)
	testutil.RequireNoError(t, err, "reload transcript")
	testutil.RequireLen(t, records, 4, "transcript after continue")
}

// TestChatPromptNoSessionPersistence verifies transcripts can be disabled.
func TestChatPromptNoSessionPersistence(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		streamFrames(w, "data: ok", "data: [DONE]")
	})

	_, err := env.run("hello", "--no-session-persistence")
	testutil.RequireNoError(t, err, "root prompt")
	_, err = os.Stat(filepath.Join(env.home, ".anotherme", "sessions"))
	testutil.RequireTrue(t, os.IsNotExist(err), "expected no sessions directory")
}

// TestChatPromptStartFailure verifies a failed start surfaces the API error.
func TestChatPromptStartFailure(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		respondJSON(t, w, http.StatusServiceUnavailable, map[string]string{"detail": "model offline"})
	})

	out, err := env.run("chat", "hello")
	testutil.RequireTrue(t, err != nil, "expected chat error")
	testutil.RequireEqual(t, formatError(err), "服务暂时不可用，请稍后重试", "formatted error")
	testutil.RequireEqual(t, out, "", "no reply output")
}

// TestChatSyncUsesSyncEndpoint verifies --sync skips streaming.
func TestChatSyncUsesSyncEndpoint(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		testutil.RequireEqual(t, r.URL.Path, "/mem/chat-sync", "sync path")
		respondJSON(t, w, http.StatusOK, map[string]string{"message": "同步回复", "timestamp": "2024-05-01T09:00:00Z"})
	})

	out, err := env.run("chat", "--sync", "帮我写周报")
	testutil.RequireNoError(t, err, "sync chat")
	testutil.RequireEqual(t, out, "同步回复\n", "sync reply")
}

// TestHealthCommand verifies the backend check output.
func TestHealthCommand(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		testutil.RequireEqual(t, r.URL.Path, "/health", "health path")
		respondJSON(t, w, http.StatusOK, map[string]string{"status": "healthy", "version": "1.2.0"})
	})

	out, err := env.run("health")
	testutil.RequireNoError(t, err, "health")
	testutil.RequireStringContains(t, out, "healthy (version 1.2.0)", "health output")
}

// TestDocsUploadAndList verifies multipart upload and paging output.
func TestDocsUploadAndList(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rag/upload":
			file, header, err := r.FormFile("file")
			testutil.RequireNoError(t, err, "form file")
			defer file.Close()
			content, _ := io.ReadAll(file)
			testutil.RequireEqual(t, header.Filename, "notes.md", "uploaded name")
			testutil.RequireEqual(t, string(content), "# notes", "uploaded content")
			respondJSON(t, w, http.StatusOK, map[string]any{"success": true, "document_id": "doc-1", "filename": "notes.md"})
		case "/rag/documents":
			testutil.RequireEqual(t, r.URL.Query().Get("page"), "2", "page query")
			respondJSON(t, w, http.StatusOK, map[string]any{
				"success":    true,
				"data":       []map[string]any{{"id": "doc-1", "filename": "notes.md", "size": 2048, "upload_time": "2024-05-01"}},
				"pagination": map[string]int{"page": 2, "page_size": 20, "total": 21, "total_pages": 2},
			})
		default:
			http.NotFound(w, r)
		}
	})

	path := filepath.Join(t.TempDir(), "notes.md")
	testutil.RequireNoError(t, os.WriteFile(path, []byte("# notes"), 0o600), "write upload")

	out, err := env.run("docs", "upload", path)
	testutil.RequireNoError(t, err, "docs upload")
	testutil.RequireStringContains(t, out, "uploaded notes.md -> doc-1", "upload output")

	out, err = env.run("docs", "list", "--page", "2")
	testutil.RequireNoError(t, err, "docs list")
	testutil.RequireStringContains(t, out, "2.0 KiB", "document size")
	testutil.RequireStringContains(t, out, "page 2/2, 21 document(s)", "pagination")
}

// TestGraphCommands verifies edge rendering and argument validation.
func TestGraphCommands(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		testutil.RequireEqual(t, r.URL.Path, "/graph/entity", "entity path")
		testutil.RequireEqual(t, r.URL.Query().Get("entity_name"), "Alice", "entity query")
		respondJSON(t, w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"nodes": []map[string]any{{"id": "1", "name": "Alice"}, {"id": "2", "name": "Project X"}},
				"edges": []map[string]any{{"source": "1", "target": "2", "relation": "works_on"}},
			},
		})
	})

	out, err := env.run("graph", "entity", "Alice")
	testutil.RequireNoError(t, err, "graph entity")
	testutil.RequireStringContains(t, out, "Alice -works_on-> Project X", "edge rendering")

	_, err = env.run("graph", "rag", "travel")
	testutil.RequireTrue(t, err != nil, "expected graph type error")
}

// TestUnsupportedOutputFormat verifies the flag is validated before any work.
func TestUnsupportedOutputFormat(t *testing.T) {
	env := newTestEnv(t, notFound(t))
	_, err := env.run("mode", "--output-format", "yaml")
	testutil.RequireTrue(t, err != nil, "expected output format error")
	testutil.RequireStringContains(t, err.Error(), "unsupported output format", "error message")
}

// TestSuggestFollowsScene verifies suggestions use the endpoint of the current mode.
func TestSuggestFollowsScene(t *testing.T) {
	var paths []string
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case "/work/suggest":
			respondJSON(t, w, http.StatusOK, map[string]any{"code": 0, "data": []string{"先写测试"}})
		case "/life/suggestions":
			respondJSON(t, w, http.StatusOK, map[string]any{"success": true, "suggestions": []string{"去散步"}, "reasoning": "最近久坐"})
		default:
			http.NotFound(w, r)
		}
	})

	out, err := env.run("suggest")
	testutil.RequireNoError(t, err, "work suggest")
	testutil.RequireStringContains(t, out, "- 先写测试", "work suggestion")

	_, err = env.run("mode", "life")
	testutil.RequireNoError(t, err, "switch to life")
	out, err = env.run("suggest", "周末")
	testutil.RequireNoError(t, err, "life suggest")
	testutil.RequireStringContains(t, out, "- 去散步", "life suggestion")
	testutil.RequireStringContains(t, out, "最近久坐", "reasoning")
	testutil.RequireEqual(t, paths, []string{"/work/suggest", "/life/suggestions"}, "endpoints")
}

// TestConfigSetAndShow verifies provider config edits are saved privately.
func TestConfigSetAndShow(t *testing.T) {
	env := newTestEnv(t, notFound(t))

	_, err := env.run("config", "set", "timeout_ms", "1500")
	testutil.RequireNoError(t, err, "set timeout")
	_, err = env.run("config", "set", "api_key", "secret")
	testutil.RequireNoError(t, err, "set key")

	info, err := os.Stat(filepath.Join(env.home, ".anotherme", "config.json"))
	testutil.RequireNoError(t, err, "stat config")
	testutil.RequireEqual(t, info.Mode().Perm(), os.FileMode(0o600), "config permissions")

	out, err := env.run("config", "show")
	testutil.RequireNoError(t, err, "show config")
	testutil.RequireStringContains(t, out, "timeout_ms: 1500", "timeout")
	testutil.RequireStringContains(t, out, "api_key: ********", "masked key")

	_, err = env.run("config", "set", "model", "x")
	testutil.RequireTrue(t, err != nil, "expected unknown key error")
}

// TestConfigClearState verifies the persisted selection can be forgotten.
func TestConfigClearState(t *testing.T) {
	env := newTestEnv(t, notFound(t))

	_, err := env.run("mode", "life")
	testutil.RequireNoError(t, err, "switch to life")
	out, err := env.run("config", "clear-state")
	testutil.RequireNoError(t, err, "clear state")
	testutil.RequireStringContains(t, out, "removed 1 key(s)", "cleared keys")

	out, err = env.run("mode", "show", "--output-format", "json")
	testutil.RequireNoError(t, err, "mode show")
	testutil.RequireStringContains(t, out, `"mode": "work"`, "default mode restored")
}
