package crm

// ClientCounts returns the total number of clients and how many are active.
func (s *SQLiteStore) ClientCounts() (total, active int, err error) {
	err = s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(status = 'active'), 0) FROM clients`).
		Scan(&total, &active)
	return total, active, err
}

// PendingCommCount counts communications flagged as needing action that
// nobody has acted on yet.
func (s *SQLiteStore) PendingCommCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM communications WHERE action_needed = 1 AND action_taken = 0`).
		Scan(&n)
	return n, err
}
