// Package activity provides the append-only audit trail of state-affecting
// events. Entries are only ever created; nothing updates or deletes them.
package activity

import (
	"database/sql"
	"fmt"
	"time"
)

// Action tags the kind of event an entry records.
type Action string

const (
	ActionCreated    Action = "created"
	ActionUpdated    Action = "updated"
	ActionDeleted    Action = "deleted"
	ActionDispatched Action = "dispatched"
	ActionNeedsInfo  Action = "needs_info"
	ActionCompleted  Action = "completed"
	ActionOutput     Action = "output"
	ActionError      Action = "error"
	ActionSeeded     Action = "seeded"
)

// Entry is one immutable audit record.
type Entry struct {
	ID        int64     `json:"id"`
	TaskID    *int64    `json:"task_id"`
	ClientID  *int64    `json:"client_id"`
	ProjectID *int64    `json:"project_id"`
	Agent     string    `json:"agent"`
	Action    Action    `json:"action"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`

	// Joined display title, populated by reads.
	TaskTitle string `json:"task_title,omitempty"`
}

const schema = `
CREATE TABLE IF NOT EXISTS activity_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id    INTEGER REFERENCES tasks(id) ON DELETE CASCADE,
	client_id  INTEGER,
	project_id INTEGER,
	agent      TEXT NOT NULL DEFAULT '',
	action     TEXT NOT NULL,
	detail     TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);
`

// Recorder appends and reads audit entries.
type Recorder struct {
	db *sql.DB
}

// NewRecorder ensures the activity_log table exists on db.
func NewRecorder(db *sql.DB) (*Recorder, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create activity schema: %w", err)
	}
	return &Recorder{db: db}, nil
}

// Append writes one entry. The entry's CreatedAt is set here.
func (r *Recorder) Append(e *Entry) error {
	e.CreatedAt = time.Now().UTC()
	res, err := r.db.Exec(`
		INSERT INTO activity_log (task_id, client_id, project_id, agent, action, detail, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		nullInt(e.TaskID), nullInt(e.ClientID), nullInt(e.ProjectID),
		e.Agent, string(e.Action), e.Detail, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	e.ID, _ = res.LastInsertId()
	return nil
}

// Recent returns the newest entries, newest first, joined with task titles.
func (r *Recorder) Recent(limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(`
		SELECT al.id, al.task_id, al.client_id, al.project_id, al.agent,
		       al.action, al.detail, al.created_at, COALESCE(t.title, '')
		FROM activity_log al
		LEFT JOIN tasks t ON al.task_id = t.id
		ORDER BY al.id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent activity: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ForTask returns all entries for one task, newest first.
func (r *Recorder) ForTask(taskID int64) ([]*Entry, error) {
	rows, err := r.db.Query(`
		SELECT al.id, al.task_id, al.client_id, al.project_id, al.agent,
		       al.action, al.detail, al.created_at, COALESCE(t.title, '')
		FROM activity_log al
		LEFT JOIN tasks t ON al.task_id = t.id
		WHERE al.task_id = ?
		ORDER BY al.id DESC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("task activity: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var (
			e                        Entry
			taskID, clientID, projID sql.NullInt64
			action                   string
		)
		if err := rows.Scan(&e.ID, &taskID, &clientID, &projID, &e.Agent,
			&action, &e.Detail, &e.CreatedAt, &e.TaskTitle); err != nil {
			return nil, err
		}
		e.Action = Action(action)
		if taskID.Valid {
			e.TaskID = &taskID.Int64
		}
		if clientID.Valid {
			e.ClientID = &clientID.Int64
		}
		if projID.Valid {
			e.ProjectID = &projID.Int64
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func nullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
