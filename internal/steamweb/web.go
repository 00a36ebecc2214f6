package steamweb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the community site the web session talks to.
const DefaultBaseURL = "https://steamcommunity.com"

// WebSession is a minimal HTTP implementation of Session against the
// community site. The heavy lifting (RSA key exchange, OAuth refresh)
// lives in the provider's own endpoints; this wrapper only shuttles
// credentials and cookies.
type WebSession struct {
	baseURL   string
	http      *http.Client
	profileID string
	sessionID string
}

// loginResponse is the provider's login verdict.
type loginResponse struct {
	Success           bool   `json:"success"`
	EmailAuthNeeded   bool   `json:"emailauth_needed"`
	RequiresTwoFactor bool   `json:"requires_twofactor"`
	CaptchaNeeded     bool   `json:"captcha_needed"`
	Message           string `json:"message"`

	TransferParameters struct {
		SteamID string `json:"steamid"`
	} `json:"transfer_parameters"`
}

// NewWebSession creates a session against the given base URL; an empty
// baseURL selects DefaultBaseURL.
func NewWebSession(baseURL string) (*WebSession, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return &WebSession{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Jar:     jar,
			Timeout: 30 * time.Second,
		},
	}, nil
}

var _ Session = (*WebSession)(nil)

// Login authenticates with the given credentials.
func (s *WebSession) Login(ctx context.Context, creds Credentials) error {
	if creds.Cookies != "" {
		s.restoreCookies(creds.Cookies)
		if ok, err := s.LoggedIn(ctx); err == nil && ok {
			return nil
		}
	}

	form := url.Values{
		"username":        {creds.Username},
		"password":        {creds.Password},
		"twofactorcode":   {creds.GuardCode},
		"remember_login":  {"true"},
		"donotcache":      {fmt.Sprint(time.Now().UnixMilli())},
		"captcha_text":    {""},
		"emailauth":       {""},
		"rsatimestamp":    {""},
		"captchagid":      {"-1"},
		"oauth_client_id": {""},
	}

	var resp loginResponse
	if err := s.postForm(ctx, "/login/dologin/", form, &resp); err != nil {
		return err
	}

	switch {
	case resp.Success:
		s.profileID = resp.TransferParameters.SteamID
		// The sessionid cookie lands in the jar with the login response;
		// PostComment needs it as a form field, so capture it here rather
		// than relying on a later Cookies call.
		s.captureSessionID()
		return nil
	case resp.RequiresTwoFactor:
		return ErrMobileGuardRequired
	case resp.EmailAuthNeeded:
		return ErrEmailGuardRequired
	case resp.CaptchaNeeded:
		return ErrCaptchaRequired
	case strings.Contains(strings.ToLower(resp.Message), "too many"):
		return ErrThrottled
	default:
		if resp.Message == "" {
			return fmt.Errorf("login rejected")
		}
		return fmt.Errorf("login rejected: %s", resp.Message)
	}
}

// LoggedIn checks the session against an authenticated endpoint.
func (s *WebSession) LoggedIn(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/my/", nil)
	if err != nil {
		return false, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("login check failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Anonymous sessions are bounced to the login page.
	return resp.StatusCode == http.StatusOK &&
		!strings.Contains(resp.Request.URL.Path, "login"), nil
}

// ProfileID returns the logged-in account's remote profile id.
func (s *WebSession) ProfileID() string {
	return s.profileID
}

// PostComment posts a comment on the target profile.
func (s *WebSession) PostComment(ctx context.Context, targetProfileID, text string) error {
	form := url.Values{
		"comment":   {text},
		"sessionid": {s.sessionID},
		"count":     {"6"},
	}

	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	path := fmt.Sprintf("/comment/Profile/post/%s/-1/", targetProfileID)
	if err := s.postForm(ctx, path, form, &resp); err != nil {
		return err
	}
	if !resp.Success {
		if resp.Error == "" {
			return fmt.Errorf("comment rejected")
		}
		return fmt.Errorf("comment rejected: %s", resp.Error)
	}
	return nil
}

// Cookies serializes the session cookies for persistence.
func (s *WebSession) Cookies() string {
	base, err := url.Parse(s.baseURL)
	if err != nil {
		return ""
	}
	var parts []string
	for _, c := range s.http.Jar.Cookies(base) {
		if c.Name == "sessionid" {
			s.sessionID = c.Value
		}
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// captureSessionID pulls the sessionid cookie out of the jar.
func (s *WebSession) captureSessionID() {
	base, err := url.Parse(s.baseURL)
	if err != nil {
		return
	}
	for _, c := range s.http.Jar.Cookies(base) {
		if c.Name == "sessionid" {
			s.sessionID = c.Value
		}
	}
}

func (s *WebSession) restoreCookies(raw string) {
	base, err := url.Parse(s.baseURL)
	if err != nil {
		return
	}
	var cookies []*http.Cookie
	for _, pair := range strings.Split(raw, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		if name == "sessionid" {
			s.sessionID = value
		}
		cookies = append(cookies, &http.Cookie{Name: name, Value: value})
	}
	s.http.Jar.SetCookies(base, cookies)
}

func (s *WebSession) postForm(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrThrottled
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request to %s failed with status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}
