// Package steamweb defines the contract with the external community
// session-login collaborator: the five operations the core depends on
// and the taxonomy of login outcomes.
package steamweb

import (
	"context"
	"errors"
)

// Sentinel errors surfaced by session implementations for outcomes the
// login state machine must distinguish. Implementations wrap provider
// responses into these where the response is unambiguous; everything
// else is classified by message (see Classifier).
var (
	// ErrEmailGuardRequired means the provider sent a verification code
	// to the account's email address.
	ErrEmailGuardRequired = errors.New("email guard code required")

	// ErrMobileGuardRequired means the provider expects a code from the
	// account's mobile authenticator.
	ErrMobileGuardRequired = errors.New("mobile guard code required")

	// ErrCaptchaRequired means the provider demands a captcha solution.
	ErrCaptchaRequired = errors.New("captcha required")

	// ErrThrottled means the provider is rate limiting login attempts.
	ErrThrottled = errors.New("too many login attempts")
)

// Credentials is the material a session needs to authenticate one
// managed account.
type Credentials struct {
	Username  string
	Password  string
	GuardCode string
	// Cookies, when present, lets the session resume a previously
	// persisted login without a full re-authentication.
	Cookies string
}

// Session is one browser-equivalent login against the community site.
// The core depends on exactly these five operations.
type Session interface {
	// Login authenticates with the given credentials. Guard, captcha
	// and throttle outcomes are reported via the sentinel errors above.
	Login(ctx context.Context, creds Credentials) error

	// LoggedIn reports whether the session currently holds a valid
	// login.
	LoggedIn(ctx context.Context) (bool, error)

	// ProfileID returns the remote profile identifier of the logged-in
	// account, empty before a successful login.
	ProfileID() string

	// PostComment posts a comment on the target profile.
	PostComment(ctx context.Context, targetProfileID, text string) error

	// Cookies returns the session cookie state for persistence.
	Cookies() string
}

// SessionFactory produces a fresh Session per managed account.
type SessionFactory func() (Session, error)
