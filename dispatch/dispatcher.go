package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/camster91/openclaw-hq/activity"
	"github.com/camster91/openclaw-hq/agent"
	"github.com/camster91/openclaw-hq/crm"
	"github.com/camster91/openclaw-hq/task"
)

// ErrAgentUnassigned is returned when dispatch is requested for a task
// without a dispatchable agent. No state changes and no process is launched.
var ErrAgentUnassigned = errors.New("task must be assigned to an agent before dispatch")

// ContextStore supplies the read-only client/project context for briefings.
type ContextStore interface {
	GetClient(id int64) (*crm.Client, error)
	GetProject(id int64) (*crm.Project, error)
}

// ActivityLog appends audit entries. Entries are best-effort: a failed
// append never rolls back the task state change it describes.
type ActivityLog interface {
	Append(e *activity.Entry) error
}

// CommandFactory builds the agent process command. Swapped out in tests.
type CommandFactory func(ctx context.Context, name string, arg ...string) *exec.Cmd

// Result is the synchronous acknowledgment of a dispatch. The agent keeps
// running in the background after this is returned.
type Result struct {
	Dispatched bool       `json:"dispatched"`
	DispatchID string     `json:"dispatch_id"`
	Task       *task.Task `json:"task"`
	Briefing   string     `json:"briefing"`
}

// Dispatcher drives the task lifecycle around agent runs. It is the only
// component that moves tasks into or out of in_progress as a side effect of
// a background completion.
type Dispatcher struct {
	tasks   task.Store
	crm     ContextStore
	log     ActivityLog
	roster  *agent.Roster
	command string
	timeout time.Duration
	logger  *slog.Logger

	cmdFactory CommandFactory
	wg         sync.WaitGroup
}

// New creates a Dispatcher invoking command (the agent CLI) with the given
// per-run timeout.
func New(tasks task.Store, ctxStore ContextStore, log ActivityLog, roster *agent.Roster, command string, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if command == "" {
		command = "openclaw"
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		tasks:      tasks,
		crm:        ctxStore,
		log:        log,
		roster:     roster,
		command:    command,
		timeout:    timeout,
		logger:     logger,
		cmdFactory: exec.CommandContext,
	}
}

// SetCommandFactory overrides process creation. Test seam.
func (d *Dispatcher) SetCommandFactory(f CommandFactory) { d.cmdFactory = f }

// Wait blocks until all in-flight completions have been applied.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// Dispatch sends the task to its agent.
//
// Synchronously: validates the task and its agent, composes the briefing,
// durably records the in_progress transition (status, dispatch counter,
// last_dispatched_at) and the "dispatched" activity entry, then launches the
// agent process and returns. The returned snapshot already reflects the
// transition; the agent's eventual reply is applied by a background
// continuation. Nothing stops a second dispatch of the same task while one
// is outstanding; both completions write field-level updates and the last
// writer wins.
func (d *Dispatcher) Dispatch(ctx context.Context, taskID int64) (*Result, error) {
	t, err := d.tasks.Get(taskID)
	if err != nil {
		return nil, err
	}
	if !d.roster.Dispatchable(t.Agent) {
		return nil, fmt.Errorf("%w (task %d assigned to %q)", ErrAgentUnassigned, t.ID, t.Agent)
	}

	var client *crm.Client
	if t.ClientID != nil {
		client, err = d.crm.GetClient(*t.ClientID)
		if err != nil && !errors.Is(err, crm.ErrNotFound) {
			return nil, fmt.Errorf("load client %d: %w", *t.ClientID, err)
		}
	}
	var project *crm.Project
	if t.ProjectID != nil {
		project, err = d.crm.GetProject(*t.ProjectID)
		if err != nil && !errors.Is(err, crm.ErrNotFound) {
			return nil, fmt.Errorf("load project %d: %w", *t.ProjectID, err)
		}
	}

	// Composed from the pre-dispatch snapshot: the previous-output section
	// keys off the counter before this attempt.
	briefing := ComposeBriefing(t, client, project)

	// Durably in_progress before the process exists. A crash from here on
	// leaves the task visibly in progress, not silently queued.
	snap, err := d.tasks.MarkDispatched(t.ID)
	if err != nil {
		return nil, err
	}

	dispatchID := uuid.NewString()
	d.record(&activity.Entry{
		TaskID:    &t.ID,
		ClientID:  t.ClientID,
		ProjectID: t.ProjectID,
		Agent:     t.Agent,
		Action:    activity.ActionDispatched,
		Detail:    fmt.Sprintf("Task dispatched to %s: %q (run %s)", t.Agent, t.Title, dispatchID),
	})

	d.logger.Info("task dispatched",
		"task", t.ID, "agent", t.Agent, "dispatch_id", dispatchID,
		"attempt", snap.DispatchCount)

	d.wg.Add(1)
	go d.run(dispatchID, snap, briefing)

	return &Result{Dispatched: true, DispatchID: dispatchID, Task: snap, Briefing: briefing}, nil
}

// run launches the agent process and hands its result to the single
// completion continuation. Runs once per dispatch; every failure path
// resolves into the blocked transition rather than an escaping error.
func (d *Dispatcher) run(dispatchID string, t *task.Task, briefing string) {
	defer d.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	// The briefing travels as one discrete argv element. Titles, notes,
	// and requirements contain arbitrary operator text; none of it is ever
	// interpreted as command syntax and nothing is escaped.
	cmd := d.cmdFactory(ctx, d.command,
		"agent", "--agent", t.Agent, "--message", briefing, "--local", "--json")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		msg := err.Error()
		if ctx.Err() == context.DeadlineExceeded {
			msg = fmt.Sprintf("agent run exceeded the %s time limit", d.timeout)
		} else if detail := strings.TrimSpace(stderr.String()); detail != "" {
			msg += ": " + detail
		}
		d.fail(dispatchID, t, msg)
		return
	}

	d.apply(dispatchID, t, Interpret(stdout.String()))
}

// apply is the completion continuation for a finished agent run. It performs
// exactly one of the outcome transitions and finishes with the matching
// activity entry.
func (d *Dispatcher) apply(dispatchID string, t *task.Task, out Outcome) {
	switch out.Kind {
	case OutcomeNeedsInfo:
		status := task.StatusNeedsInfo
		if !d.update(t, task.Fields{Status: &status, AgentQuestions: &out.Questions, AgentOutput: &out.Output}) {
			return
		}
		d.record(&activity.Entry{
			TaskID: &t.ID, Agent: t.Agent, Action: activity.ActionNeedsInfo,
			Detail: "Agent needs info: " + truncate(out.Questions, 200),
		})

	case OutcomeCompleted:
		status := task.StatusDone
		if !d.update(t, task.Fields{Status: &status, AgentOutput: &out.Output}) {
			return
		}
		d.record(&activity.Entry{
			TaskID: &t.ID, Agent: t.Agent, Action: activity.ActionCompleted,
			Detail: "Task completed: " + truncate(out.Summary, 200),
		})

	default:
		// No markers. Keep the task where it is, store the reply for a
		// human to look at.
		if !d.update(t, task.Fields{AgentOutput: &out.Output}) {
			return
		}
		d.record(&activity.Entry{
			TaskID: &t.ID, Agent: t.Agent, Action: activity.ActionOutput,
			Detail: fmt.Sprintf("Agent output received (%d chars)", len(out.Output)),
		})
	}

	d.logger.Info("dispatch resolved",
		"task", t.ID, "agent", t.Agent, "dispatch_id", dispatchID,
		"outcome", out.Kind.String())
}

// fail applies the blocked transition for a process error or timeout.
func (d *Dispatcher) fail(dispatchID string, t *task.Task, msg string) {
	status := task.StatusBlocked
	output := "DISPATCH ERROR: " + msg
	if !d.update(t, task.Fields{Status: &status, AgentOutput: &output}) {
		return
	}
	d.record(&activity.Entry{
		TaskID: &t.ID, Agent: t.Agent, Action: activity.ActionError,
		Detail: "Dispatch failed: " + truncate(msg, 300),
	})
	d.logger.Warn("dispatch failed",
		"task", t.ID, "agent", t.Agent, "dispatch_id", dispatchID, "error", msg)
}

// update applies a completion write. Store failures are logged, never
// propagated: the continuation must not take the daemon down.
func (d *Dispatcher) update(t *task.Task, f task.Fields) bool {
	if _, _, err := d.tasks.UpdateFields(t.ID, f); err != nil {
		d.logger.Error("apply dispatch outcome", "task", t.ID, "err", err)
		return false
	}
	return true
}

// record appends an activity entry, best-effort.
func (d *Dispatcher) record(e *activity.Entry) {
	if err := d.log.Append(e); err != nil {
		d.logger.Error("append activity entry", "action", string(e.Action), "err", err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
