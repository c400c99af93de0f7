package crm

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/camster91/openclaw-hq/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "crm.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	return s
}

func TestClients_CRUD(t *testing.T) {
	s := newTestStore(t)

	id, err := s.CreateClient(&Client{Name: "PrintCup", Source: "upwork", Platform: "shopify"})
	if err != nil {
		t.Fatalf("CreateClient: %v", err)
	}

	got, err := s.GetClient(id)
	if err != nil {
		t.Fatalf("GetClient: %v", err)
	}
	if got.Name != "PrintCup" || got.Status != "active" {
		t.Errorf("client = %s/%s, want PrintCup/active default", got.Name, got.Status)
	}

	newStatus := "paused"
	retainer := 500.0
	got, err = s.UpdateClient(id, ClientFields{Status: &newStatus, MonthlyRetainer: &retainer})
	if err != nil {
		t.Fatalf("UpdateClient: %v", err)
	}
	if got.Status != "paused" || got.MonthlyRetainer != 500 {
		t.Errorf("updated client = %s/%v", got.Status, got.MonthlyRetainer)
	}

	if err := s.DeleteClient(id); err != nil {
		t.Fatalf("DeleteClient: %v", err)
	}
	if _, err := s.GetClient(id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetClient after delete = %v, want ErrNotFound", err)
	}
}

func TestListClients_StatusFilterAndOrder(t *testing.T) {
	s := newTestStore(t)
	mustClient(t, s, &Client{Name: "zeta", Status: "active"})
	mustClient(t, s, &Client{Name: "Alpha", Status: "active"})
	mustClient(t, s, &Client{Name: "done co", Status: "completed"})

	active, err := s.ListClients("active")
	if err != nil {
		t.Fatalf("ListClients: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("active clients = %d, want 2", len(active))
	}
	// Name order, case-insensitive.
	if active[0].Name != "Alpha" || active[1].Name != "zeta" {
		t.Errorf("order = [%s %s]", active[0].Name, active[1].Name)
	}

	all, err := s.ListClients("")
	if err != nil {
		t.Fatalf("ListClients all: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("all clients = %d, want 3", len(all))
	}
}

func TestProjects_CompletionStamp(t *testing.T) {
	s := newTestStore(t)
	clientID := mustClient(t, s, &Client{Name: "Numan"})

	id, err := s.CreateProject(&Project{ClientID: clientID, Name: "Revisions"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	completed := "completed"
	got, err := s.UpdateProject(id, ProjectFields{Status: &completed})
	if err != nil {
		t.Fatalf("UpdateProject: %v", err)
	}
	if got.CompletedAt == nil {
		t.Fatal("CompletedAt not stamped on completion")
	}
	if got.ClientName != "Numan" {
		t.Errorf("ClientName = %q, want joined name", got.ClientName)
	}

	reopened := "active"
	got, err = s.UpdateProject(id, ProjectFields{Status: &reopened})
	if err != nil {
		t.Fatalf("UpdateProject reopen: %v", err)
	}
	if got.CompletedAt != nil {
		t.Error("CompletedAt not cleared on reopen")
	}
}

func TestProjects_ListByClient(t *testing.T) {
	s := newTestStore(t)
	a := mustClient(t, s, &Client{Name: "A"})
	b := mustClient(t, s, &Client{Name: "B"})

	if _, err := s.CreateProject(&Project{ClientID: a, Name: "p1"}); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if _, err := s.CreateProject(&Project{ClientID: b, Name: "p2"}); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	scoped, err := s.ListProjects(&a)
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if len(scoped) != 1 || scoped[0].Name != "p1" {
		t.Errorf("scoped projects = %+v, want only p1", scoped)
	}
}

func TestComms_PendingFilter(t *testing.T) {
	s := newTestStore(t)
	clientID := mustClient(t, s, &Client{Name: "Della"})

	if _, err := s.CreateComm(&Communication{ClientID: &clientID, Subject: "needs reply", ActionNeeded: true}); err != nil {
		t.Fatalf("CreateComm: %v", err)
	}
	if _, err := s.CreateComm(&Communication{ClientID: &clientID, Subject: "handled", ActionNeeded: true, ActionTaken: true}); err != nil {
		t.Fatalf("CreateComm: %v", err)
	}
	if _, err := s.CreateComm(&Communication{Subject: "fyi"}); err != nil {
		t.Fatalf("CreateComm: %v", err)
	}

	pending, err := s.ListComms(CommFilter{ActionNeeded: true})
	if err != nil {
		t.Fatalf("ListComms: %v", err)
	}
	if len(pending) != 1 || pending[0].Subject != "needs reply" {
		t.Errorf("pending = %+v, want only the unanswered comm", pending)
	}

	n, err := s.PendingCommCount()
	if err != nil {
		t.Fatalf("PendingCommCount: %v", err)
	}
	if n != 1 {
		t.Errorf("PendingCommCount = %d, want 1", n)
	}
}

func TestClientCounts(t *testing.T) {
	s := newTestStore(t)
	mustClient(t, s, &Client{Name: "a", Status: "active"})
	mustClient(t, s, &Client{Name: "b", Status: "active"})
	mustClient(t, s, &Client{Name: "c", Status: "completed"})

	total, active, err := s.ClientCounts()
	if err != nil {
		t.Fatalf("ClientCounts: %v", err)
	}
	if total != 3 || active != 2 {
		t.Errorf("ClientCounts = %d/%d, want 3/2", total, active)
	}
}

func mustClient(t *testing.T, s *SQLiteStore, c *Client) int64 {
	t.Helper()
	id, err := s.CreateClient(c)
	if err != nil {
		t.Fatalf("CreateClient %q: %v", c.Name, err)
	}
	return id
}
