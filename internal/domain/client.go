package domain

import (
	"time"

	"github.com/google/uuid"
)

// ClientRole distinguishes paying customers from operators with
// unlimited credit.
type ClientRole string

const (
	RoleCustomer ClientRole = "customer"
	RoleAdmin    ClientRole = "admin"
)

// ClientStatus is the account standing of a client.
type ClientStatus string

const (
	ClientActive  ClientStatus = "active"
	ClientBlocked ClientStatus = "blocked"
	ClientPending ClientStatus = "pending"
)

// Client is the account on whose behalf jobs run and whose credit
// balance is metered. The core mutates only the credit balance; all
// other fields are managed by the dashboard.
type Client struct {
	ID         uuid.UUID    `json:"id"`
	Name       string       `json:"name"`
	Role       ClientRole   `json:"role"`
	Status     ClientStatus `json:"status"`
	Credits    int          `json:"credits"`
	PartnerKey string       `json:"-"`
	NotifyURL  string       `json:"-"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// IsAdmin reports whether the client bypasses credit metering.
func (c *Client) IsAdmin() bool {
	return c.Role == RoleAdmin
}
