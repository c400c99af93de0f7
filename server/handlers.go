package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/camster91/openclaw-hq/activity"
	"github.com/camster91/openclaw-hq/agent"
	"github.com/camster91/openclaw-hq/crm"
	"github.com/camster91/openclaw-hq/dispatch"
	"github.com/camster91/openclaw-hq/task"
)

// pathID parses the {id} path segment.
func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

// parseDate accepts RFC 3339 timestamps or plain YYYY-MM-DD dates.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// --- Task handlers ---

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := task.Filter{}
	if a := q.Get("agent"); a != "" && a != "all" {
		f.Agent = a
	}
	if st := q.Get("status"); st != "" && st != "all" {
		status := task.Status(st)
		f.Status = &status
	}
	if c := q.Get("client_id"); c != "" {
		id, err := strconv.ParseInt(c, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid client_id")
			return
		}
		f.ClientID = &id
	}
	if p := q.Get("project_id"); p != "" {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid project_id")
			return
		}
		f.ProjectID = &id
	}

	tasks, err := s.tasks.List(f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

type taskCreateRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Priority     string `json:"priority"`
	Agent        string `json:"agent"`
	Category     string `json:"category"`
	DueDate      string `json:"due_date"`
	ClientID     *int64 `json:"client_id"`
	ProjectID    *int64 `json:"project_id"`
	Requirements string `json:"requirements"`
	Notes        string `json:"notes"`
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req taskCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.Agent == "" {
		req.Agent = agent.Unassigned
	}
	if !s.roster.Known(req.Agent) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown agent %q", req.Agent))
		return
	}

	t := &task.Task{
		Title:        req.Title,
		Description:  req.Description,
		Priority:     task.Priority(req.Priority),
		Agent:        req.Agent,
		Category:     req.Category,
		ClientID:     req.ClientID,
		ProjectID:    req.ProjectID,
		Requirements: req.Requirements,
		Notes:        req.Notes,
	}
	if req.Priority == "" {
		t.Priority = task.PriorityMedium
	}
	if req.DueDate != "" {
		due, err := parseDate(req.DueDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid due_date")
			return
		}
		t.DueDate = &due
	}

	id, err := s.tasks.Create(t)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.record(&activity.Entry{
		TaskID: &id, ClientID: t.ClientID, ProjectID: t.ProjectID,
		Agent: t.Agent, Action: activity.ActionCreated,
		Detail: fmt.Sprintf("Task %q created", t.Title),
	})

	created, err := s.tasks.Get(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	t, err := s.tasks.Get(id)
	if errors.Is(err, task.ErrNotFound) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type taskPatchRequest struct {
	Title          *string `json:"title"`
	Description    *string `json:"description"`
	Status         *string `json:"status"`
	Priority       *string `json:"priority"`
	Agent          *string `json:"agent"`
	Category       *string `json:"category"`
	DueDate        *string `json:"due_date"` // empty string clears
	Notes          *string `json:"notes"`
	Requirements   *string `json:"requirements"`
	AgentQuestions *string `json:"agent_questions"`
	AgentOutput    *string `json:"agent_output"`
	ClientID       *int64  `json:"client_id"` // zero clears
	ProjectID      *int64  `json:"project_id"`
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	var req taskPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	f := task.Fields{
		Title:          req.Title,
		Description:    req.Description,
		Category:       req.Category,
		Notes:          req.Notes,
		Requirements:   req.Requirements,
		AgentQuestions: req.AgentQuestions,
		AgentOutput:    req.AgentOutput,
	}
	if req.Status != nil {
		status := task.Status(*req.Status)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid status %q", *req.Status))
			return
		}
		f.Status = &status
	}
	if req.Priority != nil {
		priority := task.Priority(*req.Priority)
		if !priority.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid priority %q", *req.Priority))
			return
		}
		f.Priority = &priority
	}
	if req.Agent != nil {
		if !s.roster.Known(*req.Agent) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown agent %q", *req.Agent))
			return
		}
		f.Agent = req.Agent
	}
	if req.DueDate != nil {
		if *req.DueDate == "" {
			f.DueDate = &sql.NullTime{}
		} else {
			due, err := parseDate(*req.DueDate)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid due_date")
				return
			}
			f.DueDate = &sql.NullTime{Time: due, Valid: true}
		}
	}
	if req.ClientID != nil {
		f.ClientID = &sql.NullInt64{Int64: *req.ClientID, Valid: *req.ClientID != 0}
	}
	if req.ProjectID != nil {
		f.ProjectID = &sql.NullInt64{Int64: *req.ProjectID, Valid: *req.ProjectID != 0}
	}

	updated, changes, err := s.tasks.UpdateFields(id, f)
	if errors.Is(err, task.ErrNotFound) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if len(changes) > 0 {
		parts := make([]string, 0, len(changes))
		for _, c := range changes {
			parts = append(parts, fmt.Sprintf("%s: %s -> %s", c.Field, c.Old, c.New))
		}
		s.record(&activity.Entry{
			TaskID: &id, Agent: updated.Agent, Action: activity.ActionUpdated,
			Detail: strings.Join(parts, "; "),
		})
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	existing, err := s.tasks.Get(id)
	if errors.Is(err, task.ErrNotFound) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Recorded without a task reference so the entry survives the
	// cascading delete of the task's own log rows.
	s.record(&activity.Entry{
		Agent: existing.Agent, Action: activity.ActionDeleted,
		Detail: fmt.Sprintf("Task %q (#%d) deleted", existing.Title, id),
	})

	if err := s.tasks.Delete(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) dispatchTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	res, err := s.dispatcher.Dispatch(r.Context(), id)
	switch {
	case errors.Is(err, task.ErrNotFound):
		writeError(w, http.StatusNotFound, "task not found")
	case errors.Is(err, dispatch.ErrAgentUnassigned):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

// --- Client handlers ---

func (s *Server) listClients(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "all" {
		status = ""
	}
	clients, err := s.crm.ListClients(status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if clients == nil {
		clients = []*crm.Client{}
	}
	writeJSON(w, http.StatusOK, clients)
}

func (s *Server) createClient(w http.ResponseWriter, r *http.Request) {
	var c crm.Client
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if c.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	id, err := s.crm.CreateClient(&c)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.record(&activity.Entry{
		ClientID: &id, Action: activity.ActionCreated,
		Detail: fmt.Sprintf("Client %q created", c.Name),
	})
	writeJSON(w, http.StatusCreated, &c)
}

// getClient returns the client plus its projects, tasks, and recent comms.
func (s *Server) getClient(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid client id")
		return
	}
	client, err := s.crm.GetClient(id)
	if errors.Is(err, crm.ErrNotFound) {
		writeError(w, http.StatusNotFound, "client not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	projects, err := s.crm.ListProjects(&id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	tasks, err := s.tasks.List(task.Filter{ClientID: &id})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	comms, err := s.crm.ListComms(crm.CommFilter{ClientID: &id, Limit: 50})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"client":   client,
		"projects": projects,
		"tasks":    tasks,
		"comms":    comms,
	})
}

type clientPatchRequest struct {
	Name            *string  `json:"name"`
	ContactName     *string  `json:"contact_name"`
	ContactEmail    *string  `json:"contact_email"`
	Source          *string  `json:"source"`
	Status          *string  `json:"status"`
	Platform        *string  `json:"platform"`
	WPLoginURL      *string  `json:"wp_login_url"`
	WPUsername      *string  `json:"wp_username"`
	ShopifyStore    *string  `json:"shopify_store"`
	HostingInfo     *string  `json:"hosting_info"`
	MonthlyRetainer *float64 `json:"monthly_retainer"`
	Notes           *string  `json:"notes"`
}

func (s *Server) updateClient(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid client id")
		return
	}
	var req clientPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	client, err := s.crm.UpdateClient(id, crm.ClientFields{
		Name:            req.Name,
		ContactName:     req.ContactName,
		ContactEmail:    req.ContactEmail,
		Source:          req.Source,
		Status:          req.Status,
		Platform:        req.Platform,
		WPLoginURL:      req.WPLoginURL,
		WPUsername:      req.WPUsername,
		ShopifyStore:    req.ShopifyStore,
		HostingInfo:     req.HostingInfo,
		MonthlyRetainer: req.MonthlyRetainer,
		Notes:           req.Notes,
	})
	if errors.Is(err, crm.ErrNotFound) {
		writeError(w, http.StatusNotFound, "client not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, client)
}

func (s *Server) deleteClient(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid client id")
		return
	}
	existing, err := s.crm.GetClient(id)
	if errors.Is(err, crm.ErrNotFound) {
		writeError(w, http.StatusNotFound, "client not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.crm.DeleteClient(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.record(&activity.Entry{
		Action: activity.ActionDeleted,
		Detail: fmt.Sprintf("Client %q (#%d) deleted", existing.Name, id),
	})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// --- Project handlers ---

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	var clientID *int64
	if c := r.URL.Query().Get("client_id"); c != "" {
		id, err := strconv.ParseInt(c, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid client_id")
			return
		}
		clientID = &id
	}
	projects, err := s.crm.ListProjects(clientID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if projects == nil {
		projects = []*crm.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var p crm.Project
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if p.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if p.ClientID == 0 {
		writeError(w, http.StatusBadRequest, "client_id is required")
		return
	}
	id, err := s.crm.CreateProject(&p)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.record(&activity.Entry{
		ClientID: &p.ClientID, ProjectID: &id, Action: activity.ActionCreated,
		Detail: fmt.Sprintf("Project %q created", p.Name),
	})
	writeJSON(w, http.StatusCreated, &p)
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid project id")
		return
	}
	p, err := s.crm.GetProject(id)
	if errors.Is(err, crm.ErrNotFound) {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type projectPatchRequest struct {
	Name             *string  `json:"name"`
	Description      *string  `json:"description"`
	Status           *string  `json:"status"`
	ProjectType      *string  `json:"project_type"`
	Budget           *float64 `json:"budget"`
	HoursEstimated   *float64 `json:"hours_estimated"`
	HoursUsed        *float64 `json:"hours_used"`
	UpworkContractID *string  `json:"upwork_contract_id"`
}

func (s *Server) updateProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid project id")
		return
	}
	var req projectPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	p, err := s.crm.UpdateProject(id, crm.ProjectFields{
		Name:             req.Name,
		Description:      req.Description,
		Status:           req.Status,
		ProjectType:      req.ProjectType,
		Budget:           req.Budget,
		HoursEstimated:   req.HoursEstimated,
		HoursUsed:        req.HoursUsed,
		UpworkContractID: req.UpworkContractID,
	})
	if errors.Is(err, crm.ErrNotFound) {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid project id")
		return
	}
	existing, err := s.crm.GetProject(id)
	if errors.Is(err, crm.ErrNotFound) {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.crm.DeleteProject(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.record(&activity.Entry{
		Action: activity.ActionDeleted,
		Detail: fmt.Sprintf("Project %q (#%d) deleted", existing.Name, id),
	})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// --- Communication handlers ---

func (s *Server) listComms(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := crm.CommFilter{ActionNeeded: q.Get("action_needed") == "1"}
	if c := q.Get("client_id"); c != "" {
		id, err := strconv.ParseInt(c, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid client_id")
			return
		}
		f.ClientID = &id
	}
	comms, err := s.crm.ListComms(f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if comms == nil {
		comms = []*crm.Communication{}
	}
	writeJSON(w, http.StatusOK, comms)
}

func (s *Server) createComm(w http.ResponseWriter, r *http.Request) {
	var co crm.Communication
	if err := json.NewDecoder(r.Body).Decode(&co); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if _, err := s.crm.CreateComm(&co); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, &co)
}

// --- Activity handlers ---

func (s *Server) listActivity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if t := q.Get("task_id"); t != "" {
		id, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid task_id")
			return
		}
		entries, err := s.activities.ForTask(id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, orEmpty(entries))
		return
	}

	limit := 50
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := s.activities.Recent(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(entries))
}

func orEmpty(entries []*activity.Entry) []*activity.Entry {
	if entries == nil {
		return []*activity.Entry{}
	}
	return entries
}

// record appends an activity entry, best-effort.
func (s *Server) record(e *activity.Entry) {
	if err := s.activities.Append(e); err != nil {
		s.logger.Error("append activity entry", "action", string(e.Action), "err", err)
	}
}
