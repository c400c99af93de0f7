package activity

import (
	"path/filepath"
	"testing"

	"github.com/camster91/openclaw-hq/store"
)

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "activity.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// The recorder joins task titles; the log itself works without the table,
	// but Recent's LEFT JOIN needs it to exist.
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS tasks (id INTEGER PRIMARY KEY, title TEXT NOT NULL)`); err != nil {
		t.Fatalf("create tasks table: %v", err)
	}

	r, err := NewRecorder(db)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	return r
}

func TestRecorder_AppendAndRecent(t *testing.T) {
	r := newTestRecorder(t)

	taskID := int64(1)
	if _, err := r.db.Exec(`INSERT INTO tasks (id, title) VALUES (1, 'Deploy')`); err != nil {
		t.Fatalf("seed task: %v", err)
	}

	if err := r.Append(&Entry{TaskID: &taskID, Agent: "claw", Action: ActionDispatched, Detail: "sent"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := r.Append(&Entry{TaskID: &taskID, Agent: "claw", Action: ActionCompleted, Detail: "done"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := r.Append(&Entry{Agent: "system", Action: ActionSeeded, Detail: "seed"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	recent, err := r.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("Recent len = %d, want 3", len(recent))
	}
	// Newest first.
	if recent[0].Action != ActionSeeded || recent[2].Action != ActionDispatched {
		t.Errorf("order = [%s %s %s]", recent[0].Action, recent[1].Action, recent[2].Action)
	}
	if recent[2].TaskTitle != "Deploy" {
		t.Errorf("TaskTitle = %q, want joined title", recent[2].TaskTitle)
	}
	if recent[0].TaskID != nil {
		t.Error("seed entry has a task id")
	}
	if recent[0].CreatedAt.IsZero() {
		t.Error("CreatedAt not set by Append")
	}
}

func TestRecorder_ForTask(t *testing.T) {
	r := newTestRecorder(t)

	if _, err := r.db.Exec(`INSERT INTO tasks (id, title) VALUES (1, 'a'), (2, 'b')`); err != nil {
		t.Fatalf("seed tasks: %v", err)
	}

	one, two := int64(1), int64(2)
	if err := r.Append(&Entry{TaskID: &one, Action: ActionCreated}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := r.Append(&Entry{TaskID: &two, Action: ActionCreated}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := r.Append(&Entry{TaskID: &one, Action: ActionDispatched}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	entries, err := r.ForTask(one)
	if err != nil {
		t.Fatalf("ForTask: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("ForTask len = %d, want 2", len(entries))
	}
	if entries[0].Action != ActionDispatched {
		t.Errorf("newest action = %s, want dispatched", entries[0].Action)
	}
}

func TestRecorder_RecentDefaultLimit(t *testing.T) {
	r := newTestRecorder(t)
	for i := 0; i < 25; i++ {
		if err := r.Append(&Entry{Agent: "system", Action: ActionUpdated}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	recent, err := r.Recent(0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 20 {
		t.Errorf("default limit = %d entries, want 20", len(recent))
	}
}
