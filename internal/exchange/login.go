// Package exchange implements the automation pipeline: authenticating
// managed accounts and working through their pending comment tasks.
package exchange

import (
	"context"
	"log/slog"
	"time"

	"github.com/promoloop/exchange-api/internal/domain"
	"github.com/promoloop/exchange-api/internal/steamweb"
	"github.com/promoloop/exchange-api/internal/store"
)

// LoginState is the terminal state of one authentication call.
type LoginState int

const (
	// LoginAuthenticated means the session is live and its cookies have
	// been persisted.
	LoginAuthenticated LoginState = iota

	// LoginEmailGuard, LoginMobileGuard and LoginCaptcha require
	// out-of-band verification before another call makes sense. No
	// automatic retry is attempted.
	LoginEmailGuard
	LoginMobileGuard
	LoginCaptcha

	// LoginFatal means the credentials are permanently unusable and the
	// account has been removed from the managed pool.
	LoginFatal

	// LoginFailed means retries were exhausted on an unclassified or
	// transient failure.
	LoginFailed
)

func (s LoginState) String() string {
	switch s {
	case LoginAuthenticated:
		return "authenticated"
	case LoginEmailGuard:
		return "email guard required"
	case LoginMobileGuard:
		return "mobile guard required"
	case LoginCaptcha:
		return "captcha required"
	case LoginFatal:
		return "fatal credential failure"
	case LoginFailed:
		return "login failed"
	}
	return "unknown"
}

// Default retry tuning.
const (
	DefaultLoginRetries = 3
	DefaultThrottleWait = 30 * time.Second
	defaultRetryBackoff = 5 * time.Second
)

// Authenticator drives the per-account login retry state machine.
type Authenticator struct {
	accounts   store.AccountStore
	classifier steamweb.Classifier
	logger     *slog.Logger

	retries      int
	throttleWait time.Duration
	retryBackoff time.Duration
}

// NewAuthenticator creates an Authenticator. Zero retries or wait fall
// back to the defaults.
func NewAuthenticator(
	accounts store.AccountStore,
	classifier steamweb.Classifier,
	logger *slog.Logger,
	retries int,
	throttleWait time.Duration,
) *Authenticator {
	if retries <= 0 {
		retries = DefaultLoginRetries
	}
	if throttleWait <= 0 {
		throttleWait = DefaultThrottleWait
	}
	return &Authenticator{
		accounts:     accounts,
		classifier:   classifier,
		logger:       logger.With("component", "authenticator"),
		retries:      retries,
		throttleWait: throttleWait,
		retryBackoff: defaultRetryBackoff,
	}
}

// Login authenticates the account, retrying per the classified outcome.
// Guard and captcha outcomes return immediately; throttled and
// transient failures wait and retry; a fatal classification deletes the
// account record before returning. On success the fresh session cookies
// are persisted immediately.
func (a *Authenticator) Login(ctx context.Context, sess steamweb.Session, acct *domain.Account) (LoginState, error) {
	log := a.logger.With("account", acct.Username)

	var lastErr error
	for attempt := 1; attempt <= a.retries; attempt++ {
		creds := steamweb.Credentials{
			Username: acct.Username,
			Password: acct.Password,
			Cookies:  acct.SessionCookies,
		}
		if acct.SharedSecret != "" {
			code, err := steamweb.GuardCode(acct.SharedSecret, time.Now())
			if err != nil {
				log.Warn("failed to derive guard code", "error", err)
			} else {
				creds.GuardCode = code
			}
		}

		err := sess.Login(ctx, creds)
		if err == nil {
			if cookies := sess.Cookies(); cookies != "" {
				if updateErr := a.accounts.UpdateSession(ctx, acct.ID, cookies); updateErr != nil {
					log.Warn("failed to persist session cookies", "error", updateErr)
				} else {
					acct.SessionCookies = cookies
				}
			}
			return LoginAuthenticated, nil
		}
		lastErr = err

		switch a.classifier.Classify(err) {
		case steamweb.OutcomeEmailGuard:
			log.Info("login requires email guard code")
			return LoginEmailGuard, err
		case steamweb.OutcomeMobileGuard:
			log.Info("login requires mobile guard code")
			return LoginMobileGuard, err
		case steamweb.OutcomeCaptcha:
			log.Info("login requires captcha")
			return LoginCaptcha, err
		case steamweb.OutcomeFatal:
			log.Warn("fatal credential failure, removing account from pool", "error", err)
			if delErr := a.accounts.Delete(ctx, acct.ID); delErr != nil {
				log.Error("failed to delete account", "error", delErr)
			}
			return LoginFatal, err
		case steamweb.OutcomeThrottled:
			log.Info("login throttled, waiting", "wait", a.throttleWait, "attempt", attempt)
			if sleepErr := sleep(ctx, a.throttleWait); sleepErr != nil {
				return LoginFailed, sleepErr
			}
		case steamweb.OutcomeTransient:
			log.Info("transient login failure, retrying", "error", err, "attempt", attempt)
			if sleepErr := sleep(ctx, a.retryBackoff); sleepErr != nil {
				return LoginFailed, sleepErr
			}
		default:
			log.Warn("unclassified login failure, retrying", "error", err, "attempt", attempt)
			if sleepErr := sleep(ctx, a.retryBackoff); sleepErr != nil {
				return LoginFailed, sleepErr
			}
		}
	}

	return LoginFailed, lastErr
}

// sleep waits for d or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
