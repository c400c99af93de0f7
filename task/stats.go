package task

// AgentStats is the per-agent workload breakdown for the dashboard.
type AgentStats struct {
	Agent      string `json:"agent"`
	Total      int    `json:"total"`
	Done       int    `json:"done"`
	InProgress int    `json:"in_progress"`
	Queued     int    `json:"queued"`
	Blocked    int    `json:"blocked"`
	NeedsInfo  int    `json:"needs_info"`
}

// StatusCounts returns the number of tasks per status.
func (s *SQLiteStore) StatusCounts() (map[string]int, error) {
	return s.countBy("status")
}

// PriorityCounts returns the number of tasks per priority.
func (s *SQLiteStore) PriorityCounts() (map[string]int, error) {
	return s.countBy("priority")
}

func (s *SQLiteStore) countBy(column string) (map[string]int, error) {
	rows, err := s.db.Query("SELECT " + column + ", COUNT(*) FROM tasks GROUP BY " + column)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		counts[key] = n
	}
	return counts, rows.Err()
}

// AgentCounts returns workload stats per agent, ordered by agent id.
func (s *SQLiteStore) AgentCounts() ([]AgentStats, error) {
	rows, err := s.db.Query(`SELECT agent,
		COUNT(*),
		COALESCE(SUM(status = 'done'), 0),
		COALESCE(SUM(status = 'in_progress'), 0),
		COALESCE(SUM(status = 'queued'), 0),
		COALESCE(SUM(status = 'blocked'), 0),
		COALESCE(SUM(status = 'needs_info'), 0)
	FROM tasks GROUP BY agent ORDER BY agent`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []AgentStats
	for rows.Next() {
		var a AgentStats
		if err := rows.Scan(&a.Agent, &a.Total, &a.Done, &a.InProgress, &a.Queued, &a.Blocked, &a.NeedsInfo); err != nil {
			return nil, err
		}
		stats = append(stats, a)
	}
	return stats, rows.Err()
}
