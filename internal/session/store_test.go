package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/anotherme/anotherme/internal/testutil"
)

func TestAppendAndLoadMessages(t *testing.T) {
	store := &Store{BaseDir: t.TempDir()}
	testutil.RequireNoError(t, store.AppendMessage("s1", MessageRecord{ID: "user-1", Role: "user", Content: "今天心情不错", Mode: "life"}), "append user")
	testutil.RequireNoError(t, store.AppendEvent("s1", map[string]string{"type": "note"}), "append other record")
	testutil.RequireNoError(t, store.AppendMessage("s1", MessageRecord{ID: "assistant-1", Role: "assistant", Content: "太好了"}), "append assistant")

	// A torn write must not hide the rest of the transcript.
	file, err := os.OpenFile(store.SessionPath("s1"), os.O_APPEND|os.O_WRONLY, 0o600)
	testutil.RequireNoError(t, err, "open transcript")
	_, err = file.WriteString("{\"type\":\"mess\n")
	testutil.RequireNoError(t, err, "write torn line")
	testutil.RequireNoError(t, file.Close(), "close transcript")

	messages, err := store.LoadMessages("s1")
	testutil.RequireNoError(t, err, "load messages")
	testutil.RequireLen(t, messages, 2, "messages")
	testutil.RequireEqual(t, messages[0].Type, "message", "record type")
	testutil.RequireEqual(t, messages[0].Mode, "life", "mode")
	testutil.RequireEqual(t, messages[1].Content, "太好了", "assistant content")
}

func TestAppendEventRequiresSessionID(t *testing.T) {
	store := &Store{BaseDir: t.TempDir()}
	err := store.AppendMessage("", MessageRecord{ID: "x"})
	testutil.RequireTrue(t, err != nil, "expected error for empty session id")
}

func TestLastSessionPerProject(t *testing.T) {
	store := &Store{BaseDir: t.TempDir()}
	hash := ProjectHash("/work/notes/")
	testutil.RequireEqual(t, hash, ProjectHash("/work/notes"), "hash ignores trailing slash")

	_, err := store.LoadLastSession(hash)
	testutil.RequireTrue(t, os.IsNotExist(err), "missing last session")

	testutil.RequireNoError(t, store.SaveLastSession(hash, "abc"), "save last session")
	id, err := store.LoadLastSession(hash)
	testutil.RequireNoError(t, err, "load last session")
	testutil.RequireEqual(t, id, "abc", "last session id")
}

func TestListSessionsNewestFirst(t *testing.T) {
	store := &Store{BaseDir: t.TempDir()}
	sessions, err := store.ListSessions(10)
	testutil.RequireNoError(t, err, "list without dir")
	testutil.RequireLen(t, sessions, 0, "no sessions yet")

	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		testutil.RequireNoError(t, store.AppendMessage(id, MessageRecord{ID: "m", Role: "user"}), "append "+id)
		stamp := base.Add(time.Duration(i) * time.Hour)
		testutil.RequireNoError(t, os.Chtimes(store.SessionPath(id), stamp, stamp), "chtimes "+id)
	}
	testutil.RequireNoError(t, os.WriteFile(filepath.Join(store.BaseDir, "sessions", "README"), []byte("x"), 0o600), "write stray file")

	sessions, err = store.ListSessions(2)
	testutil.RequireNoError(t, err, "list sessions")
	testutil.RequireLen(t, sessions, 2, "limited list")
	testutil.RequireEqual(t, sessions[0].ID, "new", "newest first")
	testutil.RequireEqual(t, sessions[1].ID, "mid", "second newest")
}
