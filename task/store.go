package task

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	title              TEXT NOT NULL,
	description        TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL DEFAULT 'queued' CHECK(status IN ('queued','in_progress','needs_info','done','blocked')),
	priority           TEXT NOT NULL DEFAULT 'medium' CHECK(priority IN ('low','medium','high','urgent')),
	agent              TEXT NOT NULL DEFAULT 'unassigned',
	category           TEXT NOT NULL DEFAULT 'general',
	client_id          INTEGER REFERENCES clients(id) ON DELETE SET NULL,
	project_id         INTEGER REFERENCES projects(id) ON DELETE SET NULL,
	notes              TEXT NOT NULL DEFAULT '',
	requirements       TEXT NOT NULL DEFAULT '',
	agent_questions    TEXT NOT NULL DEFAULT '',
	agent_output       TEXT NOT NULL DEFAULT '',
	dispatch_count     INTEGER NOT NULL DEFAULT 0,
	last_dispatched_at DATETIME,
	due_date           DATETIME,
	created_at         DATETIME NOT NULL,
	updated_at         DATETIME NOT NULL,
	completed_at       DATETIME
);
`

const selectTask = `
SELECT t.id, t.title, t.description, t.status, t.priority, t.agent, t.category,
       t.client_id, t.project_id, t.notes, t.requirements, t.agent_questions,
       t.agent_output, t.dispatch_count, t.last_dispatched_at, t.due_date,
       t.created_at, t.updated_at, t.completed_at,
       COALESCE(c.name, ''), COALESCE(p.name, '')
FROM tasks t
LEFT JOIN clients c ON t.client_id = c.id
LEFT JOIN projects p ON t.project_id = p.id`

// SQLiteStore persists tasks in the shared SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore ensures the tasks table exists on db.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create tasks schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Create persists a new task and sets its ID, CreatedAt, and UpdatedAt.
// Empty classification fields get the same defaults the schema declares.
func (s *SQLiteStore) Create(t *Task) (int64, error) {
	if t.Status == "" {
		t.Status = StatusQueued
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.Agent == "" {
		t.Agent = "unassigned"
	}
	if t.Category == "" {
		t.Category = "general"
	}
	if !t.Status.Valid() {
		return 0, fmt.Errorf("invalid status %q", t.Status)
	}
	if !t.Priority.Valid() {
		return 0, fmt.Errorf("invalid priority %q", t.Priority)
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	res, err := s.db.Exec(`
		INSERT INTO tasks
			(title, description, status, priority, agent, category, client_id, project_id,
			 notes, requirements, agent_questions, agent_output,
			 dispatch_count, last_dispatched_at, due_date, created_at, updated_at, completed_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.Title, t.Description, string(t.Status), string(t.Priority), t.Agent, t.Category,
		nullInt(t.ClientID), nullInt(t.ProjectID),
		t.Notes, t.Requirements, t.AgentQuestions, t.AgentOutput,
		t.DispatchCount, nullTime(t.LastDispatchedAt), nullTime(t.DueDate),
		t.CreatedAt, t.UpdatedAt, nullTime(t.CompletedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	t.ID = id
	return id, nil
}

// Get retrieves a task by id.
func (s *SQLiteStore) Get(id int64) (*Task, error) {
	row := s.db.QueryRow(selectTask+" WHERE t.id = ?", id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return t, err
}

// List returns tasks matching the filter, urgent-first then newest.
func (s *SQLiteStore) List(f Filter) ([]*Task, error) {
	q := strings.Builder{}
	q.WriteString(selectTask)
	q.WriteString(" WHERE 1=1")
	args := []any{}

	if f.Agent != "" {
		q.WriteString(" AND t.agent = ?")
		args = append(args, f.Agent)
	}
	if f.Status != nil {
		q.WriteString(" AND t.status = ?")
		args = append(args, string(*f.Status))
	}
	if f.ClientID != nil {
		q.WriteString(" AND t.client_id = ?")
		args = append(args, *f.ClientID)
	}
	if f.ProjectID != nil {
		q.WriteString(" AND t.project_id = ?")
		args = append(args, *f.ProjectID)
	}
	q.WriteString(` ORDER BY CASE t.priority
		WHEN 'urgent' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 ELSE 3 END,
		t.created_at DESC`)
	if f.Limit > 0 {
		q.WriteString(fmt.Sprintf(" LIMIT %d", f.Limit))
	}

	rows, err := s.db.Query(q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateFields applies a partial update to the task.
//
// Shared bookkeeping enforced here for both manual edits and dispatch
// completions:
//   - setting status to done stamps completed_at; setting any other status
//     clears it (completed_at is non-null iff status is done)
//   - supplying requirements while the task is in needs_info, without an
//     explicit status, transitions it back to queued and clears the agent's
//     questions so the caller can re-dispatch
//
// The returned changes cover only caller-supplied fields whose value
// actually changed, formatted old -> new for audit trails.
func (s *SQLiteStore) UpdateFields(id int64, f Fields) (*Task, []Change, error) {
	existing, err := s.Get(id)
	if err != nil {
		return nil, nil, err
	}

	var (
		sets    []string
		args    []any
		changes []Change
	)
	set := func(col string, val any) {
		sets = append(sets, col+" = ?")
		args = append(args, val)
	}
	record := func(field, old, new string) {
		if old != new {
			changes = append(changes, Change{Field: field, Old: old, New: new})
		}
	}

	if f.Title != nil {
		set("title", *f.Title)
		record("title", existing.Title, *f.Title)
	}
	if f.Description != nil {
		set("description", *f.Description)
		record("description", existing.Description, *f.Description)
	}
	if f.Status != nil {
		if !f.Status.Valid() {
			return nil, nil, fmt.Errorf("invalid status %q", *f.Status)
		}
		set("status", string(*f.Status))
		record("status", string(existing.Status), string(*f.Status))
		if *f.Status == StatusDone && existing.Status != StatusDone {
			set("completed_at", time.Now().UTC())
		}
		if *f.Status != StatusDone {
			set("completed_at", nil)
		}
	}
	if f.Priority != nil {
		if !f.Priority.Valid() {
			return nil, nil, fmt.Errorf("invalid priority %q", *f.Priority)
		}
		set("priority", string(*f.Priority))
		record("priority", string(existing.Priority), string(*f.Priority))
	}
	if f.Agent != nil {
		set("agent", *f.Agent)
		record("agent", existing.Agent, *f.Agent)
	}
	if f.Category != nil {
		set("category", *f.Category)
		record("category", existing.Category, *f.Category)
	}
	if f.Notes != nil {
		set("notes", *f.Notes)
		record("notes", existing.Notes, *f.Notes)
	}
	if f.Requirements != nil {
		set("requirements", *f.Requirements)
		record("requirements", existing.Requirements, *f.Requirements)
		// Answering an outstanding needs-info request re-queues the task
		// unless the caller also picked a status explicitly.
		if existing.Status == StatusNeedsInfo && f.Status == nil {
			set("status", string(StatusQueued))
			set("agent_questions", "")
		}
	}
	if f.AgentQuestions != nil {
		set("agent_questions", *f.AgentQuestions)
		record("agent_questions", existing.AgentQuestions, *f.AgentQuestions)
	}
	if f.AgentOutput != nil {
		set("agent_output", *f.AgentOutput)
		record("agent_output", existing.AgentOutput, *f.AgentOutput)
	}
	if f.ClientID != nil {
		set("client_id", nullableInt(*f.ClientID))
		record("client_id", formatRef(existing.ClientID), formatNullInt(*f.ClientID))
	}
	if f.ProjectID != nil {
		set("project_id", nullableInt(*f.ProjectID))
		record("project_id", formatRef(existing.ProjectID), formatNullInt(*f.ProjectID))
	}
	if f.DueDate != nil {
		set("due_date", nullableTime(*f.DueDate))
		record("due_date", formatTimeRef(existing.DueDate), formatNullTime(*f.DueDate))
	}

	set("updated_at", time.Now().UTC())
	args = append(args, id)

	if _, err := s.db.Exec("UPDATE tasks SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...); err != nil {
		return nil, nil, fmt.Errorf("update task %d: %w", id, err)
	}

	updated, err := s.Get(id)
	if err != nil {
		return nil, nil, err
	}
	return updated, changes, nil
}

// MarkDispatched forces the task to in_progress and increments its dispatch
// counter in a single durable write, then returns the fresh snapshot.
func (s *SQLiteStore) MarkDispatched(id int64) (*Task, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(`
		UPDATE tasks SET status = ?, dispatch_count = dispatch_count + 1,
			last_dispatched_at = ?, updated_at = ?
		WHERE id = ?`,
		string(StatusInProgress), now, now, id)
	if err != nil {
		return nil, fmt.Errorf("mark dispatched %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return s.Get(id)
}

// Delete removes a task by id.
func (s *SQLiteStore) Delete(id int64) error {
	res, err := s.db.Exec("DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// scanner abstracts sql.Row and sql.Rows for scanTask.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*Task, error) {
	var (
		t                  Task
		status, priority   string
		clientID, projID   sql.NullInt64
		lastDispatched     sql.NullTime
		dueDate, completed sql.NullTime
	)
	err := s.Scan(
		&t.ID, &t.Title, &t.Description, &status, &priority, &t.Agent, &t.Category,
		&clientID, &projID, &t.Notes, &t.Requirements, &t.AgentQuestions,
		&t.AgentOutput, &t.DispatchCount, &lastDispatched, &dueDate,
		&t.CreatedAt, &t.UpdatedAt, &completed,
		&t.ClientName, &t.ProjectName,
	)
	if err != nil {
		return nil, err
	}
	t.Status = Status(status)
	t.Priority = Priority(priority)
	if clientID.Valid {
		t.ClientID = &clientID.Int64
	}
	if projID.Valid {
		t.ProjectID = &projID.Int64
	}
	if lastDispatched.Valid {
		t.LastDispatchedAt = &lastDispatched.Time
	}
	if dueDate.Valid {
		t.DueDate = &dueDate.Time
	}
	if completed.Valid {
		t.CompletedAt = &completed.Time
	}
	return &t, nil
}

func nullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullableInt(v sql.NullInt64) any {
	if !v.Valid {
		return nil
	}
	return v.Int64
}

func nullableTime(v sql.NullTime) any {
	if !v.Valid {
		return nil
	}
	return v.Time
}

func formatRef(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func formatNullInt(v sql.NullInt64) string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatInt(v.Int64, 10)
}

func formatTimeRef(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func formatNullTime(v sql.NullTime) string {
	if !v.Valid {
		return ""
	}
	return v.Time.Format(time.RFC3339)
}
