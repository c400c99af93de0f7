package server

import (
	"net/http"

	"github.com/camster91/openclaw-hq/crm"
	"github.com/camster91/openclaw-hq/task"
)

// StatsSource reads dashboard aggregates straight from the SQLite stores.
type StatsSource struct {
	Tasks *task.SQLiteStore
	CRM   *crm.SQLiteStore
}

// handleStats assembles the dashboard payload: task counters, per-agent
// workload, client totals, pending comms, and recent activity.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	byStatus, err := s.stats.Tasks.StatusCounts()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	byPriority, err := s.stats.Tasks.PriorityCounts()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	byAgent, err := s.stats.Tasks.AgentCounts()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	totalClients, activeClients, err := s.stats.CRM.ClientCounts()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	pendingComms, err := s.stats.CRM.PendingCommCount()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	recentComms, err := s.crm.ListComms(crm.CommFilter{Limit: 10})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	recentActivity, err := s.activities.Recent(20)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	needsInfo := task.StatusNeedsInfo
	needsInfoTasks, err := s.tasks.List(task.Filter{Status: &needsInfo})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	total := 0
	for _, n := range byStatus {
		total += n
	}
	if byAgent == nil {
		byAgent = []task.AgentStats{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":            total,
		"by_status":        byStatus,
		"by_priority":      byPriority,
		"by_agent":         byAgent,
		"total_clients":    totalClients,
		"active_clients":   activeClients,
		"pending_comms":    pendingComms,
		"recent_comms":     recentComms,
		"recent_activity":  orEmpty(recentActivity),
		"needs_info_tasks": needsInfoTasks,
	})
}
