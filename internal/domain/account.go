package domain

import (
	"time"

	"github.com/google/uuid"
)

// Account is a managed automation identity: a third-party credential
// set the system logs into to perform comment actions. The core treats
// it as an opaque credential bundle and writes back fresh session state
// after a successful login.
type Account struct {
	ID             uuid.UUID  `json:"id"`
	Username       string     `json:"username"`
	Password       string     `json:"-"`
	SharedSecret   string     `json:"-"`
	SessionCookies string     `json:"-"`
	LastCommentAt  *time.Time `json:"last_comment_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
