package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/camster91/openclaw-hq/activity"
	"github.com/camster91/openclaw-hq/agent"
	"github.com/camster91/openclaw-hq/config"
	"github.com/camster91/openclaw-hq/crm"
	"github.com/camster91/openclaw-hq/store"
	"github.com/camster91/openclaw-hq/task"
)

type fixture struct {
	tasks      *task.SQLiteStore
	crm        *crm.SQLiteStore
	activities *activity.Recorder
	dispatcher *Dispatcher
}

func newFixture(t *testing.T, timeout time.Duration) *fixture {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "hq.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	crmStore, err := crm.NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("crm store: %v", err)
	}
	tasks, err := task.NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("task store: %v", err)
	}
	activities, err := activity.NewRecorder(db)
	if err != nil {
		t.Fatalf("recorder: %v", err)
	}
	roster := agent.NewRoster([]config.AgentConfig{
		{ID: "claw", Name: "Claw", Role: "System Admin"},
		{ID: "bernard", Name: "Bernard", Role: "Developer"},
	})
	logger := slog.New(slog.DiscardHandler)
	d := New(tasks, crmStore, activities, roster, "openclaw", timeout, logger)
	return &fixture{tasks: tasks, crm: crmStore, activities: activities, dispatcher: d}
}

// echoFactory replaces the agent CLI with a command printing a fixed reply.
func echoFactory(reply string, captured *[]string) CommandFactory {
	return func(ctx context.Context, name string, arg ...string) *exec.Cmd {
		if captured != nil {
			*captured = append([]string(nil), arg...)
		}
		return exec.CommandContext(ctx, "echo", reply)
	}
}

func (f *fixture) createTask(t *testing.T, tk *task.Task) int64 {
	t.Helper()
	id, err := f.tasks.Create(tk)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return id
}

func (f *fixture) actions(t *testing.T, taskID int64) []activity.Action {
	t.Helper()
	entries, err := f.activities.ForTask(taskID)
	if err != nil {
		t.Fatalf("task activity: %v", err)
	}
	// ForTask is newest first; reverse into event order.
	actions := make([]activity.Action, len(entries))
	for i, e := range entries {
		actions[len(entries)-1-i] = e.Action
	}
	return actions
}

func TestDispatch_Completed(t *testing.T) {
	f := newFixture(t, time.Minute)
	id := f.createTask(t, &task.Task{Title: "Deploy site", Agent: "claw"})
	f.dispatcher.SetCommandFactory(echoFactory("Deployed.\nTASK_COMPLETE: site live", nil))

	res, err := f.dispatcher.Dispatch(context.Background(), id)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !res.Dispatched || res.DispatchID == "" {
		t.Errorf("result = %+v, want dispatched with id", res)
	}
	if res.Task.Status != task.StatusInProgress {
		t.Errorf("ack status = %q, want in_progress", res.Task.Status)
	}
	if res.Task.DispatchCount != 1 {
		t.Errorf("ack dispatch count = %d, want 1", res.Task.DispatchCount)
	}

	f.dispatcher.Wait()

	got, err := f.tasks.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != task.StatusDone {
		t.Errorf("Status = %q, want done", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt not stamped")
	}
	if !strings.Contains(got.AgentOutput, "site live") {
		t.Errorf("AgentOutput = %q, want reply stored", got.AgentOutput)
	}

	actions := f.actions(t, id)
	want := []activity.Action{activity.ActionDispatched, activity.ActionCompleted}
	if len(actions) != 2 || actions[0] != want[0] || actions[1] != want[1] {
		t.Errorf("actions = %v, want %v", actions, want)
	}
}

func TestDispatch_NeedsInfo(t *testing.T) {
	f := newFixture(t, time.Minute)
	id := f.createTask(t, &task.Task{Title: "Update plugin", Agent: "bernard"})
	f.dispatcher.SetCommandFactory(echoFactory("Started.\nNEEDS_INFO: What is the admin login?", nil))

	if _, err := f.dispatcher.Dispatch(context.Background(), id); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	f.dispatcher.Wait()

	got, err := f.tasks.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != task.StatusNeedsInfo {
		t.Errorf("Status = %q, want needs_info", got.Status)
	}
	if got.AgentQuestions != "What is the admin login?" {
		t.Errorf("AgentQuestions = %q", got.AgentQuestions)
	}
	if got.CompletedAt != nil {
		t.Error("CompletedAt set on a needs_info task")
	}

	actions := f.actions(t, id)
	if len(actions) != 2 || actions[1] != activity.ActionNeedsInfo {
		t.Errorf("actions = %v, want dispatched then needs_info", actions)
	}
}

func TestDispatch_Unstructured(t *testing.T) {
	f := newFixture(t, time.Minute)
	id := f.createTask(t, &task.Task{Title: "Audit", Agent: "claw"})
	reply := "Here is my audit so far, no conclusion yet."
	f.dispatcher.SetCommandFactory(echoFactory(reply, nil))

	if _, err := f.dispatcher.Dispatch(context.Background(), id); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	f.dispatcher.Wait()

	got, err := f.tasks.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != task.StatusInProgress {
		t.Errorf("Status = %q, want still in_progress", got.Status)
	}
	if got.AgentOutput != reply {
		t.Errorf("AgentOutput = %q, want %q", got.AgentOutput, reply)
	}

	actions := f.actions(t, id)
	if len(actions) != 2 || actions[1] != activity.ActionOutput {
		t.Errorf("actions = %v, want dispatched then output", actions)
	}
}

func TestDispatch_ProcessFailure(t *testing.T) {
	f := newFixture(t, time.Minute)
	id := f.createTask(t, &task.Task{Title: "Broken run", Agent: "claw"})
	f.dispatcher.SetCommandFactory(func(ctx context.Context, name string, arg ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "false")
	})

	if _, err := f.dispatcher.Dispatch(context.Background(), id); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	f.dispatcher.Wait()

	got, err := f.tasks.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != task.StatusBlocked {
		t.Errorf("Status = %q, want blocked", got.Status)
	}
	if !strings.HasPrefix(got.AgentOutput, "DISPATCH ERROR: ") {
		t.Errorf("AgentOutput = %q, want dispatch-error prefix", got.AgentOutput)
	}
	if got.DispatchCount != 1 {
		t.Errorf("DispatchCount = %d, want 1 even on failure", got.DispatchCount)
	}

	actions := f.actions(t, id)
	if len(actions) != 2 || actions[1] != activity.ActionError {
		t.Errorf("actions = %v, want dispatched then error", actions)
	}
}

func TestDispatch_Timeout(t *testing.T) {
	f := newFixture(t, 50*time.Millisecond)
	id := f.createTask(t, &task.Task{Title: "Hangs", Agent: "claw"})
	f.dispatcher.SetCommandFactory(func(ctx context.Context, name string, arg ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "sleep", "5")
	})

	if _, err := f.dispatcher.Dispatch(context.Background(), id); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	f.dispatcher.Wait()

	got, err := f.tasks.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != task.StatusBlocked {
		t.Errorf("Status = %q, want blocked", got.Status)
	}
	if !strings.Contains(got.AgentOutput, "time limit") {
		t.Errorf("AgentOutput = %q, want timeout message", got.AgentOutput)
	}
}

func TestDispatch_UnassignedRejected(t *testing.T) {
	f := newFixture(t, time.Minute)
	id := f.createTask(t, &task.Task{Title: "Nobody owns this"})

	_, err := f.dispatcher.Dispatch(context.Background(), id)
	if !errors.Is(err, ErrAgentUnassigned) {
		t.Fatalf("Dispatch error = %v, want ErrAgentUnassigned", err)
	}

	got, getErr := f.tasks.Get(id)
	if getErr != nil {
		t.Fatalf("Get: %v", getErr)
	}
	if got.Status != task.StatusQueued || got.DispatchCount != 0 {
		t.Errorf("task mutated by rejected dispatch: status=%s count=%d", got.Status, got.DispatchCount)
	}
	if actions := f.actions(t, id); len(actions) != 0 {
		t.Errorf("activity written for rejected dispatch: %v", actions)
	}
}

func TestDispatch_UnknownAgentRejected(t *testing.T) {
	f := newFixture(t, time.Minute)
	id := f.createTask(t, &task.Task{Title: "Ghost agent", Agent: "phantom"})

	if _, err := f.dispatcher.Dispatch(context.Background(), id); !errors.Is(err, ErrAgentUnassigned) {
		t.Fatalf("Dispatch error = %v, want ErrAgentUnassigned", err)
	}
}

func TestDispatch_TaskNotFound(t *testing.T) {
	f := newFixture(t, time.Minute)
	if _, err := f.dispatcher.Dispatch(context.Background(), 404); !errors.Is(err, task.ErrNotFound) {
		t.Fatalf("Dispatch error = %v, want task.ErrNotFound", err)
	}
}

func TestDispatch_BriefingIsSingleArgument(t *testing.T) {
	f := newFixture(t, time.Minute)
	clientID, err := f.crm.CreateClient(&crm.Client{Name: "PrintCup", Platform: "shopify"})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	id := f.createTask(t, &task.Task{
		Title: `Tricky "title" with; shell $chars`, Agent: "claw", ClientID: &clientID,
	})

	var captured []string
	f.dispatcher.SetCommandFactory(echoFactory("TASK_COMPLETE: ok", &captured))

	res, err := f.dispatcher.Dispatch(context.Background(), id)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	f.dispatcher.Wait()

	want := []string{"agent", "--agent", "claw", "--message", res.Briefing, "--local", "--json"}
	if len(captured) != len(want) {
		t.Fatalf("argv = %q, want %d elements", captured, len(want))
	}
	for i := range want {
		if captured[i] != want[i] {
			t.Errorf("argv[%d] = %q, want %q", i, captured[i], want[i])
		}
	}
	if !strings.Contains(res.Briefing, `Tricky "title" with; shell $chars`) {
		t.Errorf("briefing lost raw title text:\n%s", res.Briefing)
	}
	if !strings.Contains(res.Briefing, "CLIENT: PrintCup") {
		t.Errorf("briefing missing client context:\n%s", res.Briefing)
	}
}

func TestDispatch_RedispatchCarriesPriorOutput(t *testing.T) {
	f := newFixture(t, time.Minute)
	id := f.createTask(t, &task.Task{Title: "Two rounds", Agent: "bernard"})

	f.dispatcher.SetCommandFactory(echoFactory("NEEDS_INFO: which theme?", nil))
	first, err := f.dispatcher.Dispatch(context.Background(), id)
	if err != nil {
		t.Fatalf("first Dispatch: %v", err)
	}
	if strings.Contains(first.Briefing, "PREVIOUS AGENT OUTPUT:") {
		t.Error("first briefing already has a previous-output section")
	}
	f.dispatcher.Wait()

	// Operator answers, task requeues, second dispatch sees round one.
	reqs := "Use the dark theme"
	if _, _, err := f.tasks.UpdateFields(id, task.Fields{Requirements: &reqs}); err != nil {
		t.Fatalf("supply requirements: %v", err)
	}

	f.dispatcher.SetCommandFactory(echoFactory("TASK_COMPLETE: theme applied", nil))
	second, err := f.dispatcher.Dispatch(context.Background(), id)
	if err != nil {
		t.Fatalf("second Dispatch: %v", err)
	}
	f.dispatcher.Wait()

	if !strings.Contains(second.Briefing, "PREVIOUS AGENT OUTPUT:") {
		t.Errorf("second briefing missing previous output:\n%s", second.Briefing)
	}
	if !strings.Contains(second.Briefing, "REQUIREMENTS:\nUse the dark theme") {
		t.Errorf("second briefing missing requirements:\n%s", second.Briefing)
	}

	got, err := f.tasks.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != task.StatusDone || got.DispatchCount != 2 {
		t.Errorf("final state = %s/%d, want done/2", got.Status, got.DispatchCount)
	}
}
