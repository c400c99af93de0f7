// Package crm holds the client, project, and communication records that give
// tasks their context. The dispatch core reads these; it never mutates them.
package crm

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("record not found")

// Client is a customer account.
type Client struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	ContactName     string    `json:"contact_name"`
	ContactEmail    string    `json:"contact_email"`
	Source          string    `json:"source"` // upwork, direct, referral, ashbi, other
	Status          string    `json:"status"` // lead, active, paused, completed, archived
	Platform        string    `json:"platform"`
	WPLoginURL      string    `json:"wp_login_url"`
	WPUsername      string    `json:"wp_username"`
	ShopifyStore    string    `json:"shopify_store"`
	HostingInfo     string    `json:"hosting_info"`
	MonthlyRetainer float64   `json:"monthly_retainer"`
	Notes           string    `json:"notes"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ClientFields is a partial client update; nil pointers leave columns alone.
type ClientFields struct {
	Name            *string
	ContactName     *string
	ContactEmail    *string
	Source          *string
	Status          *string
	Platform        *string
	WPLoginURL      *string
	WPUsername      *string
	ShopifyStore    *string
	HostingInfo     *string
	MonthlyRetainer *float64
	Notes           *string
}

// Project is one engagement under a client.
type Project struct {
	ID               int64      `json:"id"`
	ClientID         int64      `json:"client_id"`
	Name             string     `json:"name"`
	Description      string     `json:"description"`
	Status           string     `json:"status"`       // planning, active, review, paused, completed, archived
	ProjectType      string     `json:"project_type"` // web-design, branding, shopify, wordpress, ...
	Budget           float64    `json:"budget"`
	HoursEstimated   float64    `json:"hours_estimated"`
	HoursUsed        float64    `json:"hours_used"`
	UpworkContractID string     `json:"upwork_contract_id"`
	DueDate          *time.Time `json:"due_date"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	CompletedAt      *time.Time `json:"completed_at"`

	ClientName string `json:"client_name,omitempty"`
}

// ProjectFields is a partial project update.
type ProjectFields struct {
	Name             *string
	Description      *string
	Status           *string
	ProjectType      *string
	Budget           *float64
	HoursEstimated   *float64
	HoursUsed        *float64
	UpworkContractID *string
}

// Communication is one logged exchange with a client.
type Communication struct {
	ID           int64     `json:"id"`
	ClientID     *int64    `json:"client_id"`
	ProjectID    *int64    `json:"project_id"`
	Channel      string    `json:"channel"`   // email, upwork, slack, phone, meeting, other
	Direction    string    `json:"direction"` // inbound, outbound
	Subject      string    `json:"subject"`
	Summary      string    `json:"summary"`
	RawContent   string    `json:"raw_content"`
	FromName     string    `json:"from_name"`
	FromAddress  string    `json:"from_address"`
	ActionNeeded bool      `json:"action_needed"`
	ActionTaken  bool      `json:"action_taken"`
	CreatedAt    time.Time `json:"created_at"`

	ClientName string `json:"client_name,omitempty"`
}

// CommFilter controls which communications List returns.
type CommFilter struct {
	ClientID     *int64
	ActionNeeded bool // only entries still awaiting action
	Limit        int
}
