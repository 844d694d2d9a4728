package session

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// messageRecordType marks conversation turns in the transcript.
const messageRecordType = "message"

// Store manages transcript persistence under ~/.anotherme.
type Store struct {
	// BaseDir is the root for all persisted data.
	BaseDir string
}

// MessageRecord is one conversation turn as written to the transcript.
type MessageRecord struct {
	// Type tags the record so loaders can skip other entries.
	Type string `json:"type"`
	// ID is the message identifier assigned by the conversation.
	ID string `json:"id"`
	// Role is user or assistant.
	Role string `json:"role"`
	// Content is the full message text.
	Content string `json:"content"`
	// Timestamp is the creation time in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`
	// Mode is the scene the turn was sent in, if known.
	Mode string `json:"mode,omitempty"`
	// Error records a stream failure that cut the turn short.
	Error string `json:"error,omitempty"`
}

// SessionInfo summarizes a stored transcript.
type SessionInfo struct {
	// ID is the session identifier.
	ID string
	// ModTime is the last write to the transcript.
	ModTime time.Time
}

// NewStore constructs a Store rooted at ~/.anotherme.
func NewStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home dir: %w", err)
	}
	return &Store{BaseDir: filepath.Join(home, ".anotherme")}, nil
}

// ProjectHash returns a stable hash for the current workspace path.
func ProjectHash(path string) string {
	clean := filepath.Clean(path)
	sum := sha256.Sum256([]byte(clean))
	return hex.EncodeToString(sum[:8])
}

// SessionPath returns the JSONL path for a session.
func (s *Store) SessionPath(sessionID string) string {
	return filepath.Join(s.BaseDir, "sessions", sessionID+".jsonl")
}

// AppendEvent writes a JSONL event for the session.
func (s *Store) AppendEvent(sessionID string, event any) error {
	if sessionID == "" {
		return errors.New("session id required")
	}
	path := s.SessionPath(sessionID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open session file: %w", err)
	}
	defer file.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal session event: %w", err)
	}
	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write session event: %w", err)
	}
	return nil
}

// AppendMessage stores a finished conversation turn.
func (s *Store) AppendMessage(sessionID string, record MessageRecord) error {
	record.Type = messageRecordType
	return s.AppendEvent(sessionID, record)
}

// LoadEvents reads all JSONL events from a session file.
func (s *Store) LoadEvents(sessionID string) ([]json.RawMessage, error) {
	file, err := os.Open(s.SessionPath(sessionID))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var events []json.RawMessage
	scanner := bufio.NewScanner(file)
	// Long assistant replies can exceed the default 64KiB line limit.
	const maxEventSize = 10 * 1024 * 1024
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		events = append(events, json.RawMessage(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	return events, nil
}

// LoadMessages returns the stored turns in session order, skipping malformed
// lines left by interrupted writes.
func (s *Store) LoadMessages(sessionID string) ([]MessageRecord, error) {
	events, err := s.LoadEvents(sessionID)
	if err != nil {
		return nil, err
	}
	messages := make([]MessageRecord, 0, len(events))
	for _, raw := range events {
		var record MessageRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			continue
		}
		if record.Type != messageRecordType || record.ID == "" {
			continue
		}
		messages = append(messages, record)
	}
	return messages, nil
}

// SaveLastSession stores the last session id for a project hash.
func (s *Store) SaveLastSession(projectHash string, sessionID string) error {
	path := filepath.Join(s.BaseDir, "projects", projectHash, "last_session")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create project dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(sessionID), 0o600); err != nil {
		return fmt.Errorf("write last session: %w", err)
	}
	return nil
}

// LoadLastSession returns the last session id for a project hash.
func (s *Store) LoadLastSession(projectHash string) (string, error) {
	path := filepath.Join(s.BaseDir, "projects", projectHash, "last_session")
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

// ListSessions returns recent sessions sorted by modification time desc.
// A missing sessions directory yields an empty list.
func (s *Store) ListSessions(limit int) ([]SessionInfo, error) {
	entries, err := os.ReadDir(filepath.Join(s.BaseDir, "sessions"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var list []SessionInfo
	for _, item := range entries {
		if item.IsDir() || filepath.Ext(item.Name()) != ".jsonl" {
			continue
		}
		info, err := item.Info()
		if err != nil {
			continue
		}
		list = append(list, SessionInfo{
			ID:      strings.TrimSuffix(item.Name(), ".jsonl"),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].ModTime.After(list[j].ModTime)
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}
