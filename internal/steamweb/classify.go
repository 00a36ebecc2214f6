package steamweb

import (
	"errors"
	"strings"
)

// Outcome is the classified result of a failed login attempt.
type Outcome int

const (
	// OutcomeUnknown covers errors no rule matched; the state machine
	// retries these on a short fixed backoff.
	OutcomeUnknown Outcome = iota

	// OutcomeEmailGuard and OutcomeMobileGuard require out-of-band
	// verification before another attempt makes sense.
	OutcomeEmailGuard
	OutcomeMobileGuard

	// OutcomeCaptcha requires a captcha solution.
	OutcomeCaptcha

	// OutcomeThrottled means wait and retry.
	OutcomeThrottled

	// OutcomeFatal means the credentials are permanently unusable; the
	// account must be removed from the pool.
	OutcomeFatal

	// OutcomeTransient means a retryable provider hiccup.
	OutcomeTransient
)

// Classifier maps a login error to an Outcome. The matching rules are
// heuristic; keeping them behind this interface lets them be corrected
// without touching the retry state machine.
type Classifier interface {
	Classify(err error) Outcome
}

// RuleClassifier classifies by sentinel errors first and message
// substrings second.
type RuleClassifier struct {
	fatalPatterns     []string
	transientPatterns []string
}

// NewRuleClassifier returns a RuleClassifier loaded with the default
// rule set observed from provider error text.
func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{
		fatalPatterns: []string{
			"password",
			"invalid credentials",
			"banned",
			"disabled",
			"suspended",
			"denied",
		},
		transientPatterns: []string{
			"too many",
			"rate limit",
			"try again later",
			"temporarily",
			"timeout",
			"service unavailable",
		},
	}
}

var _ Classifier = (*RuleClassifier)(nil)

// Classify maps a login error to an Outcome. Sentinel errors win over
// message matching; fatal patterns win over transient ones.
func (c *RuleClassifier) Classify(err error) Outcome {
	switch {
	case errors.Is(err, ErrEmailGuardRequired):
		return OutcomeEmailGuard
	case errors.Is(err, ErrMobileGuardRequired):
		return OutcomeMobileGuard
	case errors.Is(err, ErrCaptchaRequired):
		return OutcomeCaptcha
	case errors.Is(err, ErrThrottled):
		return OutcomeThrottled
	}

	msg := strings.ToLower(err.Error())
	for _, p := range c.fatalPatterns {
		if strings.Contains(msg, p) {
			return OutcomeFatal
		}
	}
	for _, p := range c.transientPatterns {
		if strings.Contains(msg, p) {
			return OutcomeTransient
		}
	}
	return OutcomeUnknown
}
