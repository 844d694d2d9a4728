package mode

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/anotherme/anotherme/internal/kv"
	"github.com/anotherme/anotherme/internal/testutil"
)

// fixedClock returns a clock advancing one second per call.
func fixedClock() func() time.Time {
	current := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

func newTestSelector(t *testing.T, opts ...Option) (*Selector, *MemoryStore) {
	t.Helper()
	store := &MemoryStore{}
	opts = append([]Option{WithClock(fixedClock())}, opts...)
	selector, err := NewSelector(store, opts...)
	testutil.RequireNoError(t, err, "new selector")
	return selector, store
}

func TestSelectorDefaults(t *testing.T) {
	selector, _ := newTestSelector(t)
	testutil.RequireEqual(t, selector.Mode(), ModeWork, "default mode")
	testutil.RequireEqual(t, selector.Capability(), CapabilityMimic, "default capability")
	testutil.RequireLen(t, selector.History(), 0, "initial history")
}

func TestSwitchModeAppendsWithoutDedup(t *testing.T) {
	selector, store := newTestSelector(t)

	selector.SwitchMode(ModeLife)
	selector.SwitchMode(ModeLife)
	selector.SwitchCapability(CapabilityAnalyze)

	history := selector.History()
	testutil.RequireLen(t, history, 3, "history length")
	testutil.RequireEqual(t, history[0].Mode, ModeLife, "first entry mode")
	testutil.RequireEqual(t, history[0].Capability, CapabilityMimic, "first entry capability")
	testutil.RequireEqual(t, history[2].Mode, ModeLife, "third entry mode")
	testutil.RequireEqual(t, history[2].Capability, CapabilityAnalyze, "third entry capability")
	testutil.RequireTrue(t, history[0].Timestamp.Before(history[2].Timestamp), "timestamps in call order")

	saved, ok, _ := store.Load()
	testutil.RequireTrue(t, ok, "expected persisted state")
	testutil.RequireEqual(t, saved, State{Mode: ModeLife, Capability: CapabilityAnalyze}, "persisted state")
	testutil.RequireEqual(t, store.Saves(), 3, "save count")
}

func TestAvailableActionsDeterministic(t *testing.T) {
	wantKeys := map[State][]string{
		{ModeWork, CapabilityMimic}:   {"weekly_report", "organize_todos", "meeting_summary"},
		{ModeWork, CapabilityAnalyze}: {"project_progress", "time_analysis"},
		{ModeLife, CapabilityMimic}:   {"casual_chat", "record_event"},
		{ModeLife, CapabilityAnalyze}: {"mood_analysis", "interest_tracking", "life_summary"},
	}
	for state, keys := range wantKeys {
		selector, _ := newTestSelector(t, WithInitialState(state))
		historyBefore := len(selector.History())

		first := selector.AvailableActions()
		second := selector.AvailableActions()
		testutil.RequireEqual(t, first, second, "repeated lookups")

		got := make([]string, 0, len(first))
		for _, action := range first {
			got = append(got, action.Key)
		}
		testutil.RequireEqual(t, got, keys, "action keys")
		testutil.RequireEqual(t, selector.State(), state, "state unchanged")
		testutil.RequireLen(t, selector.History(), historyBefore, "history unchanged")
	}
}

func TestAvailableActionsReturnsCopy(t *testing.T) {
	selector, _ := newTestSelector(t)
	actions := selector.AvailableActions()
	actions[0].Label = "mutated"
	testutil.RequireEqual(t, selector.AvailableActions()[0].Label, "周报生成", "table must not change")
}

func TestActionsForUnknownPairIsEmpty(t *testing.T) {
	actions := ActionsFor(Mode("sleep"), CapabilityMimic)
	testutil.RequireTrue(t, actions != nil, "expected empty, non-nil slice")
	testutil.RequireLen(t, actions, 0, "unknown pair")
}

func TestAutoDetectMode(t *testing.T) {
	cases := []struct {
		name        string
		start       Mode
		input       string
		want        Mode
		wantHistory int
	}{
		{name: "work keyword", start: ModeLife, input: "帮我写周报", want: ModeWork, wantHistory: 1},
		{name: "life keyword", start: ModeWork, input: "今天心情不错", want: ModeLife, wantHistory: 1},
		{name: "both prefer work", start: ModeLife, input: "和朋友聊了聊项目", want: ModeWork, wantHistory: 1},
		{name: "no match keeps mode", start: ModeLife, input: "hello there", want: ModeLife, wantHistory: 0},
		{name: "empty input", start: ModeWork, input: "", want: ModeWork, wantHistory: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			selector, _ := newTestSelector(t, WithInitialState(State{Mode: tc.start, Capability: CapabilityMimic}))
			got := selector.AutoDetectMode(tc.input)
			testutil.RequireEqual(t, got, tc.want, "detected mode")
			testutil.RequireEqual(t, selector.Mode(), tc.want, "current mode")
			testutil.RequireLen(t, selector.History(), tc.wantHistory, "history length")
		})
	}
}

func TestResetModeClearsHistory(t *testing.T) {
	selector, store := newTestSelector(t)
	for i := 0; i < 5; i++ {
		selector.SwitchMode(ModeLife)
	}
	selector.SwitchCapability(CapabilityAnalyze)
	testutil.RequireLen(t, selector.History(), 6, "history before reset")

	selector.ResetMode()
	testutil.RequireEqual(t, selector.Mode(), ModeWork, "mode after reset")
	testutil.RequireEqual(t, selector.Capability(), CapabilityMimic, "capability after reset")
	testutil.RequireLen(t, selector.History(), 0, "history after reset")

	saved, _, _ := store.Load()
	testutil.RequireEqual(t, saved, DefaultState(), "persisted after reset")
}

func TestHistoryRingEvictsOldest(t *testing.T) {
	selector, _ := newTestSelector(t, WithHistoryLimit(3))
	selector.SwitchMode(ModeLife)
	selector.SwitchCapability(CapabilityAnalyze)
	selector.SwitchMode(ModeWork)
	selector.SwitchCapability(CapabilityMimic)

	history := selector.History()
	testutil.RequireLen(t, history, 3, "bounded history")
	testutil.RequireEqual(t, history[0], Context{Mode: ModeLife, Capability: CapabilityAnalyze, Timestamp: history[0].Timestamp}, "oldest kept entry")
	testutil.RequireEqual(t, history[2].Capability, CapabilityMimic, "newest entry")

	selector.ResetMode()
	selector.SwitchMode(ModeLife)
	testutil.RequireLen(t, selector.History(), 1, "history after reset and switch")
}

func TestSubscribeNotifiesAndUnsubscribes(t *testing.T) {
	selector, _ := newTestSelector(t)
	var seen []State
	unsubscribe := selector.Subscribe(func(state State) {
		seen = append(seen, state)
	})

	selector.SwitchMode(ModeLife)
	selector.AutoDetectMode("nothing here")
	unsubscribe()
	selector.SwitchCapability(CapabilityAnalyze)

	testutil.RequireEqual(t, seen, []State{{Mode: ModeLife, Capability: CapabilityMimic}}, "notifications")
}

func TestCapabilityConfigCarriesActions(t *testing.T) {
	selector, _ := newTestSelector(t, WithInitialState(State{Mode: ModeLife, Capability: CapabilityAnalyze}))
	config := selector.CapabilityConfig()
	testutil.RequireEqual(t, config.Type, CapabilityAnalyze, "capability type")
	testutil.RequireLen(t, config.Actions, 3, "capability actions")
	testutil.RequireEqual(t, selector.ModeConfig().Color, "#52c41a", "mode color")
}

// failingStore fails every Save.
type failingStore struct{ MemoryStore }

func (f *failingStore) Save(State) error { return errors.New("disk full") }

func TestSaveFailureKeepsInMemoryState(t *testing.T) {
	selector, err := NewSelector(&failingStore{})
	testutil.RequireNoError(t, err, "new selector")
	selector.SwitchMode(ModeLife)
	testutil.RequireEqual(t, selector.Mode(), ModeLife, "mode after failed save")
}

func TestKVStoreRoundTripRestoresSelection(t *testing.T) {
	db, err := kv.Open(filepath.Join(t.TempDir(), "state.db"))
	testutil.RequireNoError(t, err, "open kv")
	defer db.Close()

	first, err := NewSelector(NewKVStore(db))
	testutil.RequireNoError(t, err, "first selector")
	first.SwitchMode(ModeLife)
	first.SwitchCapability(CapabilityAnalyze)

	raw, ok, err := db.Get(StorageKey)
	testutil.RequireNoError(t, err, "read raw entry")
	testutil.RequireTrue(t, ok, "expected stored entry")
	testutil.RequireStringContains(t, raw, `"currentMode":"life"`, "stored mode")
	testutil.RequireTrue(t, !containsAny(raw, []string{"history"}), "history must not be persisted")

	second, err := NewSelector(NewKVStore(db))
	testutil.RequireNoError(t, err, "second selector")
	testutil.RequireEqual(t, second.State(), State{Mode: ModeLife, Capability: CapabilityAnalyze}, "restored state")
	testutil.RequireLen(t, second.History(), 0, "history is process-lifetime only")
}

func TestKVStoreSanitizesUnknownValues(t *testing.T) {
	db, err := kv.Open(filepath.Join(t.TempDir(), "state.db"))
	testutil.RequireNoError(t, err, "open kv")
	defer db.Close()
	testutil.RequireNoError(t, db.Set(StorageKey, `{"state":{"currentMode":"sleep","currentCapability":"analyze"},"version":0}`), "seed")

	state, ok, err := NewKVStore(db).Load()
	testutil.RequireNoError(t, err, "load")
	testutil.RequireTrue(t, ok, "expected entry")
	testutil.RequireEqual(t, state, State{Mode: ModeWork, Capability: CapabilityAnalyze}, "sanitized state")
}

func TestParseModeAndCapability(t *testing.T) {
	m, err := ParseMode(" Life ")
	testutil.RequireNoError(t, err, "parse mode")
	testutil.RequireEqual(t, m, ModeLife, "parsed mode")
	_, err = ParseMode("play")
	testutil.RequireTrue(t, err != nil, "expected invalid mode error")

	c, err := ParseCapability("ANALYZE")
	testutil.RequireNoError(t, err, "parse capability")
	testutil.RequireEqual(t, c, CapabilityAnalyze, "parsed capability")
	_, err = ParseCapability("copy")
	testutil.RequireTrue(t, err != nil, "expected invalid capability error")
}
