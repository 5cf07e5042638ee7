package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stupiduntilnot/streamchat/internal/db"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.OpenDB(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatal(err)
	}
	if err := db.InitSchema(database); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

// seedTree inserts one bot process worth of events and returns the root ID.
//
//	process.started (bot)   id=1
//	├── circuit.opened      id=2
//	├── reply.started       id=3
//	│   └── reply.completed id=4
//	├── reply.started       id=5
//	│   └── reply.failed    id=6
//	├── image.generated     id=7
//	└── process.stopped     id=8
func seedTree(t *testing.T, database *sql.DB) int64 {
	t.Helper()
	rootID, _ := db.LogEvent(database, nil, db.EventProcessStarted, map[string]any{"role": "bot", "pid": 100})
	db.LogEvent(database, &rootID, db.EventCircuitOpened, map[string]any{"error_class": "command_source_api"})
	okID, _ := db.LogEvent(database, &rootID, db.EventReplyStarted, map[string]any{"chat_id": 7, "contextful": true})
	db.LogEvent(database, &okID, db.EventReplyCompleted, map[string]any{"latency_ms": 1820})
	badID, _ := db.LogEvent(database, &rootID, db.EventReplyStarted, map[string]any{"chat_id": 8})
	db.LogEvent(database, &badID, db.EventReplyFailed, map[string]any{"kind": "timeout"})
	db.LogEvent(database, &rootID, db.EventImageGenerated, map[string]any{"id": 1})
	db.LogEvent(database, &rootID, db.EventProcessStopped, map[string]any{"pid": 100})
	return rootID
}

func TestLatestProcessRoot(t *testing.T) {
	database := testDB(t)
	rootID := seedTree(t, database)

	got, err := latestProcessRoot(database)
	if err != nil {
		t.Fatal(err)
	}
	if got != rootID {
		t.Errorf("expected root id=%d, got %d", rootID, got)
	}
}

func TestLatestProcessRoot_NoEvents(t *testing.T) {
	database := testDB(t)
	if _, err := latestProcessRoot(database); err == nil {
		t.Fatal("expected error for empty database")
	}
}

func TestLatestProcessRoot_PicksLatest(t *testing.T) {
	database := testDB(t)
	db.LogEvent(database, nil, db.EventProcessStarted, map[string]any{"role": "bot", "pid": 100})
	second, _ := db.LogEvent(database, nil, db.EventProcessStarted, map[string]any{"role": "bot", "pid": 200})

	got, err := latestProcessRoot(database)
	if err != nil {
		t.Fatal(err)
	}
	if got != second {
		t.Errorf("expected latest root id=%d, got %d", second, got)
	}
}

func TestQuerySubtree(t *testing.T) {
	database := testDB(t)
	rootID := seedTree(t, database)

	events, err := querySubtree(database, rootID)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 8 {
		t.Errorf("expected 8 events, got %d", len(events))
	}

	events, err = querySubtree(database, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Errorf("expected 2 events under reply.started, got %d", len(events))
	}
}

func TestBuildTree(t *testing.T) {
	database := testDB(t)
	rootID := seedTree(t, database)

	events, _ := querySubtree(database, rootID)
	root := buildTree(events, rootID)
	if root == nil {
		t.Fatal("root is nil")
	}
	if root.EventType != db.EventProcessStarted {
		t.Errorf("expected process.started, got %s", root.EventType)
	}
	if len(root.Children) != 5 {
		t.Fatalf("expected 5 root children, got %d", len(root.Children))
	}
	reply := root.Children[1]
	if reply.EventType != db.EventReplyStarted || len(reply.Children) != 1 || reply.Children[0].EventType != db.EventReplyCompleted {
		t.Errorf("unexpected reply subtree: %+v", reply)
	}
}

func TestFormatEvent(t *testing.T) {
	ev := &Event{
		ID:        42,
		Timestamp: 1739781001,
		EventType: "reply.started",
		Payload:   sql.NullString{String: `{"chat_id":123,"contextful":true}`, Valid: true},
	}
	line := formatEvent(ev, false)
	for _, want := range []string{"[42]", "2025-02-17", "reply.started", "chat_id=123", "contextful=true"} {
		if !strings.Contains(line, want) {
			t.Errorf("expected %q in %s", want, line)
		}
	}
	if strings.Contains(formatEvent(ev, true), "chat_id") {
		t.Error("expected payload to be hidden")
	}
	ev.Payload = sql.NullString{}
	if !strings.HasSuffix(formatEvent(ev, false), "reply.started") {
		t.Error("null payload should render the bare line")
	}
}

func TestFormatValue(t *testing.T) {
	if v := formatValue(float64(42)); v != "42" {
		t.Errorf("expected 42, got %s", v)
	}
	if v := formatValue(1.5); v != "1.5" {
		t.Errorf("expected 1.5, got %s", v)
	}
	v := formatValue(strings.Repeat("字", 100))
	if !strings.HasSuffix(v, `..."`) || strings.Count(v, "字") != 80 {
		t.Errorf("expected 80 quoted runes and an ellipsis: %s", v)
	}
}

func renderTree(t *testing.T, database *sql.DB, opts eventsOptions) string {
	t.Helper()
	var buf bytes.Buffer
	if err := showEvents(&buf, database, opts); err != nil {
		t.Fatal(err)
	}
	return buf.String()
}

func TestShowEvents_Tree(t *testing.T) {
	database := testDB(t)
	seedTree(t, database)

	out := renderTree(t, database, eventsOptions{})
	for _, want := range []string{"process.started", "circuit.opened", "reply.completed", "reply.failed", "image.generated", "process.stopped"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
	if !strings.Contains(out, "├── ") || !strings.Contains(out, "│   └── ") {
		t.Errorf("expected tree characters:\n%s", out)
	}
}

func TestShowEvents_DepthLimit(t *testing.T) {
	database := testDB(t)
	seedTree(t, database)

	out := renderTree(t, database, eventsOptions{maxDepth: 2})
	if strings.Contains(out, "reply.completed") {
		t.Errorf("reply.completed should be cut at depth 2:\n%s", out)
	}
	if !strings.Contains(out, "[...]") {
		t.Errorf("expected [...] for truncated nodes:\n%s", out)
	}

	out = renderTree(t, database, eventsOptions{maxDepth: 1})
	if lines := strings.Split(strings.TrimSpace(out), "\n"); len(lines) != 2 {
		t.Errorf("expected root and [...], got %d lines:\n%s", len(lines), out)
	}
}

func TestShowEvents_JSON(t *testing.T) {
	database := testDB(t)
	seedTree(t, database)

	out := renderTree(t, database, eventsOptions{jsonOut: true, maxDepth: 2, noPayload: true})
	var je jsonEvent
	if err := json.Unmarshal([]byte(out), &je); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
	if je.EventType != db.EventProcessStarted || len(je.Children) != 5 {
		t.Fatalf("unexpected root: %+v", je)
	}
	for _, child := range je.Children {
		if len(child.Children) > 0 {
			t.Errorf("expected no grandchildren at depth 2, %s has %d", child.EventType, len(child.Children))
		}
	}
	if strings.Contains(out, `"role"`) {
		t.Errorf("expected no payload:\n%s", out)
	}
}

func TestShowEvents_SpecificID(t *testing.T) {
	database := testDB(t)
	seedTree(t, database)

	out := renderTree(t, database, eventsOptions{eventID: 5})
	if !strings.HasPrefix(out, "[5]") || !strings.Contains(out, "reply.failed") || strings.Contains(out, "reply.completed") {
		t.Errorf("unexpected subtree output:\n%s", out)
	}

	var buf bytes.Buffer
	if err := showEvents(&buf, database, eventsOptions{eventID: 999}); err == nil {
		t.Fatal("expected error for a missing event")
	}
}
