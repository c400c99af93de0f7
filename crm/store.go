package crm

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const schema = `
CREATE TABLE IF NOT EXISTS clients (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	name             TEXT NOT NULL,
	contact_name     TEXT NOT NULL DEFAULT '',
	contact_email    TEXT NOT NULL DEFAULT '',
	source           TEXT NOT NULL DEFAULT 'direct' CHECK(source IN ('upwork','direct','referral','ashbi','other')),
	status           TEXT NOT NULL DEFAULT 'active' CHECK(status IN ('lead','active','paused','completed','archived')),
	platform         TEXT NOT NULL DEFAULT '',
	wp_login_url     TEXT NOT NULL DEFAULT '',
	wp_username      TEXT NOT NULL DEFAULT '',
	shopify_store    TEXT NOT NULL DEFAULT '',
	hosting_info     TEXT NOT NULL DEFAULT '',
	monthly_retainer REAL NOT NULL DEFAULT 0,
	notes            TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS projects (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	client_id          INTEGER NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
	name               TEXT NOT NULL,
	description        TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL DEFAULT 'active' CHECK(status IN ('planning','active','review','paused','completed','archived')),
	project_type       TEXT NOT NULL DEFAULT 'web-design',
	budget             REAL NOT NULL DEFAULT 0,
	hours_estimated    REAL NOT NULL DEFAULT 0,
	hours_used         REAL NOT NULL DEFAULT 0,
	upwork_contract_id TEXT NOT NULL DEFAULT '',
	due_date           DATETIME,
	created_at         DATETIME NOT NULL,
	updated_at         DATETIME NOT NULL,
	completed_at       DATETIME
);

CREATE TABLE IF NOT EXISTS communications (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	client_id     INTEGER REFERENCES clients(id) ON DELETE SET NULL,
	project_id    INTEGER REFERENCES projects(id) ON DELETE SET NULL,
	channel       TEXT NOT NULL DEFAULT 'email' CHECK(channel IN ('email','upwork','slack','phone','meeting','other')),
	direction     TEXT NOT NULL DEFAULT 'inbound' CHECK(direction IN ('inbound','outbound')),
	subject       TEXT NOT NULL DEFAULT '',
	summary       TEXT NOT NULL DEFAULT '',
	raw_content   TEXT NOT NULL DEFAULT '',
	from_name     TEXT NOT NULL DEFAULT '',
	from_address  TEXT NOT NULL DEFAULT '',
	action_needed INTEGER NOT NULL DEFAULT 0,
	action_taken  INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL
);
`

// SQLiteStore persists clients, projects, and communications.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore ensures the CRM tables exist on db.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create crm schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// --- Clients ---

const selectClient = `
SELECT id, name, contact_name, contact_email, source, status, platform,
       wp_login_url, wp_username, shopify_store, hosting_info,
       monthly_retainer, notes, created_at, updated_at
FROM clients`

// CreateClient persists a new client.
func (s *SQLiteStore) CreateClient(c *Client) (int64, error) {
	if c.Source == "" {
		c.Source = "direct"
	}
	if c.Status == "" {
		c.Status = "active"
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	res, err := s.db.Exec(`
		INSERT INTO clients
			(name, contact_name, contact_email, source, status, platform,
			 wp_login_url, wp_username, shopify_store, hosting_info,
			 monthly_retainer, notes, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.Name, c.ContactName, c.ContactEmail, c.Source, c.Status, c.Platform,
		c.WPLoginURL, c.WPUsername, c.ShopifyStore, c.HostingInfo,
		c.MonthlyRetainer, c.Notes, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert client: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	c.ID = id
	return id, nil
}

// GetClient retrieves a client by id.
func (s *SQLiteStore) GetClient(id int64) (*Client, error) {
	row := s.db.QueryRow(selectClient+" WHERE id = ?", id)
	c, err := scanClient(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return c, err
}

// ListClients returns clients, optionally filtered by status, name-ordered.
func (s *SQLiteStore) ListClients(status string) ([]*Client, error) {
	q := selectClient + " WHERE 1=1"
	args := []any{}
	if status != "" {
		q += " AND status = ?"
		args = append(args, status)
	}
	q += " ORDER BY name COLLATE NOCASE"
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var clients []*Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// UpdateClient applies a partial update and returns the fresh record.
func (s *SQLiteStore) UpdateClient(id int64, f ClientFields) (*Client, error) {
	var sets []string
	var args []any
	set := func(col string, val any) {
		sets = append(sets, col+" = ?")
		args = append(args, val)
	}
	if f.Name != nil {
		set("name", *f.Name)
	}
	if f.ContactName != nil {
		set("contact_name", *f.ContactName)
	}
	if f.ContactEmail != nil {
		set("contact_email", *f.ContactEmail)
	}
	if f.Source != nil {
		set("source", *f.Source)
	}
	if f.Status != nil {
		set("status", *f.Status)
	}
	if f.Platform != nil {
		set("platform", *f.Platform)
	}
	if f.WPLoginURL != nil {
		set("wp_login_url", *f.WPLoginURL)
	}
	if f.WPUsername != nil {
		set("wp_username", *f.WPUsername)
	}
	if f.ShopifyStore != nil {
		set("shopify_store", *f.ShopifyStore)
	}
	if f.HostingInfo != nil {
		set("hosting_info", *f.HostingInfo)
	}
	if f.MonthlyRetainer != nil {
		set("monthly_retainer", *f.MonthlyRetainer)
	}
	if f.Notes != nil {
		set("notes", *f.Notes)
	}
	set("updated_at", time.Now().UTC())
	args = append(args, id)

	res, err := s.db.Exec("UPDATE clients SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("update client %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetClient(id)
}

// DeleteClient removes a client; its projects cascade.
func (s *SQLiteStore) DeleteClient(id int64) error {
	res, err := s.db.Exec("DELETE FROM clients WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete client %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Projects ---

const selectProject = `
SELECT p.id, p.client_id, p.name, p.description, p.status, p.project_type,
       p.budget, p.hours_estimated, p.hours_used, p.upwork_contract_id,
       p.due_date, p.created_at, p.updated_at, p.completed_at,
       COALESCE(c.name, '')
FROM projects p
LEFT JOIN clients c ON p.client_id = c.id`

// CreateProject persists a new project under a client.
func (s *SQLiteStore) CreateProject(p *Project) (int64, error) {
	if p.Status == "" {
		p.Status = "active"
	}
	if p.ProjectType == "" {
		p.ProjectType = "web-design"
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	res, err := s.db.Exec(`
		INSERT INTO projects
			(client_id, name, description, status, project_type, budget,
			 hours_estimated, hours_used, upwork_contract_id, due_date,
			 created_at, updated_at, completed_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ClientID, p.Name, p.Description, p.Status, p.ProjectType, p.Budget,
		p.HoursEstimated, p.HoursUsed, p.UpworkContractID, nullTime(p.DueDate),
		p.CreatedAt, p.UpdatedAt, nullTime(p.CompletedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert project: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	p.ID = id
	return id, nil
}

// GetProject retrieves a project by id.
func (s *SQLiteStore) GetProject(id int64) (*Project, error) {
	row := s.db.QueryRow(selectProject+" WHERE p.id = ?", id)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return p, err
}

// ListProjects returns projects, optionally scoped to one client.
func (s *SQLiteStore) ListProjects(clientID *int64) ([]*Project, error) {
	q := selectProject + " WHERE 1=1"
	args := []any{}
	if clientID != nil {
		q += " AND p.client_id = ?"
		args = append(args, *clientID)
	}
	q += " ORDER BY p.status, p.created_at DESC"
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// UpdateProject applies a partial update and returns the fresh record.
// Completion timestamps follow the same rule tasks use: set when status
// becomes completed, cleared when it leaves completed.
func (s *SQLiteStore) UpdateProject(id int64, f ProjectFields) (*Project, error) {
	var sets []string
	var args []any
	set := func(col string, val any) {
		sets = append(sets, col+" = ?")
		args = append(args, val)
	}
	if f.Name != nil {
		set("name", *f.Name)
	}
	if f.Description != nil {
		set("description", *f.Description)
	}
	if f.Status != nil {
		set("status", *f.Status)
		if *f.Status == "completed" {
			set("completed_at", time.Now().UTC())
		} else {
			set("completed_at", nil)
		}
	}
	if f.ProjectType != nil {
		set("project_type", *f.ProjectType)
	}
	if f.Budget != nil {
		set("budget", *f.Budget)
	}
	if f.HoursEstimated != nil {
		set("hours_estimated", *f.HoursEstimated)
	}
	if f.HoursUsed != nil {
		set("hours_used", *f.HoursUsed)
	}
	if f.UpworkContractID != nil {
		set("upwork_contract_id", *f.UpworkContractID)
	}
	set("updated_at", time.Now().UTC())
	args = append(args, id)

	res, err := s.db.Exec("UPDATE projects SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("update project %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetProject(id)
}

// DeleteProject removes a project.
func (s *SQLiteStore) DeleteProject(id int64) error {
	res, err := s.db.Exec("DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete project %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Communications ---

const selectComm = `
SELECT co.id, co.client_id, co.project_id, co.channel, co.direction,
       co.subject, co.summary, co.raw_content, co.from_name, co.from_address,
       co.action_needed, co.action_taken, co.created_at, COALESCE(c.name, '')
FROM communications co
LEFT JOIN clients c ON co.client_id = c.id`

// CreateComm logs one communication.
func (s *SQLiteStore) CreateComm(co *Communication) (int64, error) {
	if co.Channel == "" {
		co.Channel = "email"
	}
	if co.Direction == "" {
		co.Direction = "inbound"
	}
	co.CreatedAt = time.Now().UTC()
	res, err := s.db.Exec(`
		INSERT INTO communications
			(client_id, project_id, channel, direction, subject, summary,
			 raw_content, from_name, from_address, action_needed, action_taken, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		nullInt(co.ClientID), nullInt(co.ProjectID), co.Channel, co.Direction,
		co.Subject, co.Summary, co.RawContent, co.FromName, co.FromAddress,
		boolInt(co.ActionNeeded), boolInt(co.ActionTaken), co.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert communication: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	co.ID = id
	return id, nil
}

// ListComms returns communications matching the filter, newest first.
func (s *SQLiteStore) ListComms(f CommFilter) ([]*Communication, error) {
	q := selectComm + " WHERE 1=1"
	args := []any{}
	if f.ClientID != nil {
		q += " AND co.client_id = ?"
		args = append(args, *f.ClientID)
	}
	if f.ActionNeeded {
		q += " AND co.action_needed = 1 AND co.action_taken = 0"
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	q += fmt.Sprintf(" ORDER BY co.created_at DESC LIMIT %d", limit)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list communications: %w", err)
	}
	defer rows.Close()

	var comms []*Communication
	for rows.Next() {
		var (
			co                       Communication
			clientID, projID         sql.NullInt64
			actionNeeded, actionDone int
		)
		if err := rows.Scan(&co.ID, &clientID, &projID, &co.Channel, &co.Direction,
			&co.Subject, &co.Summary, &co.RawContent, &co.FromName, &co.FromAddress,
			&actionNeeded, &actionDone, &co.CreatedAt, &co.ClientName); err != nil {
			return nil, err
		}
		if clientID.Valid {
			co.ClientID = &clientID.Int64
		}
		if projID.Valid {
			co.ProjectID = &projID.Int64
		}
		co.ActionNeeded = actionNeeded != 0
		co.ActionTaken = actionDone != 0
		comms = append(comms, &co)
	}
	return comms, rows.Err()
}

// --- scanning helpers ---

type scanner interface {
	Scan(dest ...any) error
}

func scanClient(s scanner) (*Client, error) {
	var c Client
	err := s.Scan(
		&c.ID, &c.Name, &c.ContactName, &c.ContactEmail, &c.Source, &c.Status,
		&c.Platform, &c.WPLoginURL, &c.WPUsername, &c.ShopifyStore,
		&c.HostingInfo, &c.MonthlyRetainer, &c.Notes, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanProject(s scanner) (*Project, error) {
	var p Project
	var dueDate, completed sql.NullTime
	err := s.Scan(
		&p.ID, &p.ClientID, &p.Name, &p.Description, &p.Status, &p.ProjectType,
		&p.Budget, &p.HoursEstimated, &p.HoursUsed, &p.UpworkContractID,
		&dueDate, &p.CreatedAt, &p.UpdatedAt, &completed, &p.ClientName,
	)
	if err != nil {
		return nil, err
	}
	if dueDate.Valid {
		p.DueDate = &dueDate.Time
	}
	if completed.Valid {
		p.CompletedAt = &completed.Time
	}
	return &p, nil
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

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
