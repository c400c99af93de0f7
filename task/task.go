// Package task defines the task model and persistence for agent work items.
package task

import (
	"database/sql"
	"errors"
	"time"
)

// Status represents the lifecycle state of a task. All states are reachable
// from queued and all can return to queued; done and blocked are terminal
// only by convention.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusNeedsInfo  Status = "needs_info"
	StatusDone       Status = "done"
	StatusBlocked    Status = "blocked"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusInProgress, StatusNeedsInfo, StatusDone, StatusBlocked:
		return true
	}
	return false
}

// Priority determines task ordering in listings.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// ErrNotFound is returned when a task id does not exist.
var ErrNotFound = errors.New("task not found")

// Task is a unit of work assigned to an agent.
type Task struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      Status   `json:"status"`
	Priority    Priority `json:"priority"`
	Agent       string   `json:"agent"`
	Category    string   `json:"category"`
	ClientID    *int64   `json:"client_id"`
	ProjectID   *int64   `json:"project_id"`

	Notes          string `json:"notes"`
	Requirements   string `json:"requirements"`
	AgentQuestions string `json:"agent_questions"`
	AgentOutput    string `json:"agent_output"`

	DispatchCount    int        `json:"dispatch_count"`
	LastDispatchedAt *time.Time `json:"last_dispatched_at"`

	DueDate     *time.Time `json:"due_date"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at"`

	// Joined display names, populated by reads.
	ClientName  string `json:"client_name,omitempty"`
	ProjectName string `json:"project_name,omitempty"`
}

// Fields is a partial update. Nil pointers leave the column unchanged.
// For nullable references an invalid NullInt64/NullTime clears the column.
type Fields struct {
	Title          *string
	Description    *string
	Status         *Status
	Priority       *Priority
	Agent          *string
	Category       *string
	Notes          *string
	Requirements   *string
	AgentQuestions *string
	AgentOutput    *string
	ClientID       *sql.NullInt64
	ProjectID      *sql.NullInt64
	DueDate        *sql.NullTime
}

// Change records one field transition applied by UpdateFields.
type Change struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// Filter controls which tasks List returns.
type Filter struct {
	Agent     string
	Status    *Status
	ClientID  *int64
	ProjectID *int64
	Limit     int
}

// Store persists and retrieves tasks.
type Store interface {
	// Create persists a new task and returns its id.
	Create(t *Task) (int64, error)

	// Get retrieves a task by id, or ErrNotFound.
	Get(id int64) (*Task, error)

	// List returns tasks matching the filter, urgent-first then newest.
	List(f Filter) ([]*Task, error)

	// UpdateFields applies a partial update with the shared bookkeeping
	// rules (completed_at, needs_info auto-queue) and returns the updated
	// task plus the per-field changes that were applied.
	UpdateFields(id int64, f Fields) (*Task, []Change, error)

	// MarkDispatched forces the task to in_progress and increments its
	// dispatch counter in one durable write.
	MarkDispatched(id int64) (*Task, error)

	// Delete removes a task by id.
	Delete(id int64) error
}
