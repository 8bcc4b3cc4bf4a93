package sso

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/optimal-cyber/launchpad-sub001/pkg/apperr"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultTokenTTL   = 5 * time.Minute
	pendingSessionTTL = 10 * time.Minute
	oidcScope         = "openid profile email"
	maxErrorBody      = 4 << 10
)

// ProviderConfig locates the identity provider. Endpoints default to the
// Keycloak layout under URL/realms/Realm and may be overridden one by one.
type ProviderConfig struct {
	URL          string
	Realm        string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	Timeout      time.Duration
}

func (p ProviderConfig) endpoint(override, name string) string {
	if override != "" {
		return override
	}
	if p.URL == "" {
		return ""
	}
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/%s", strings.TrimRight(p.URL, "/"), url.PathEscape(p.Realm), name)
}

// Access is where the browser should be sent next.
type Access struct {
	URL           string `json:"url"`
	Authenticated bool   `json:"authenticated"`
}

// Result is a completed code exchange.
type Result struct {
	AccessToken string
	ServiceID   string
	ServiceURL  string
	Subject     string
	ExpiresAt   time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Client drives the authorization code flow on behalf of browser sessions.
type Client struct {
	authURL     string
	tokenURL    string
	userInfoURL string
	redirectURI string
	secret      string
	timeout     time.Duration

	services *Registry
	sessions SessionStore
	http     *http.Client
	now      func() time.Time
}

func NewClient(cfg ProviderConfig, services *Registry, sessions SessionStore, httpClient *http.Client) (*Client, error) {
	c := &Client{
		authURL:     cfg.endpoint(cfg.AuthURL, "auth"),
		tokenURL:    cfg.endpoint(cfg.TokenURL, "token"),
		userInfoURL: cfg.endpoint(cfg.UserInfoURL, "userinfo"),
		redirectURI: cfg.RedirectURI,
		secret:      cfg.ClientSecret,
		timeout:     cfg.Timeout,
		services:    services,
		sessions:    sessions,
		http:        httpClient,
		now:         time.Now,
	}
	if c.authURL == "" || c.tokenURL == "" {
		return nil, apperr.NotConfigured("identity provider url or endpoints must be set")
	}
	if c.redirectURI == "" {
		return nil, apperr.NotConfigured("identity provider redirect_uri must be set")
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	return c, nil
}

func (c *Client) Services() *Registry { return c.services }

func (c *Client) session(ctx context.Context, id string) (Session, error) {
	s, err := c.sessions.Get(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return Session{ID: id}, nil
	}
	if err != nil {
		return Session{}, apperr.Internal("failed to load session", err)
	}
	return s, nil
}

// InitiateAccess returns the service URL when the session already holds a
// valid token, and the provider's authorization URL otherwise.
func (c *Client) InitiateAccess(ctx context.Context, sessionID, serviceID string) (Access, error) {
	if sessionID == "" {
		return Access{}, apperr.Validation("session is required")
	}
	svc, ok := c.services.Get(serviceID)
	if !ok {
		return Access{}, apperr.NotConfigured("service %s not configured for SSO", serviceID)
	}
	sess, err := c.session(ctx, sessionID)
	if err != nil {
		return Access{}, err
	}

	now := c.now()
	if sess.Valid(now) {
		u, err := serviceURL(svc, sess.AccessToken)
		if err != nil {
			return Access{}, err
		}
		return Access{URL: u, Authenticated: true}, nil
	}

	authURL, err := c.authorizationURL(svc)
	if err != nil {
		return Access{}, err
	}
	sess.PendingService = svc.ID
	if err := c.sessions.Put(ctx, sess, c.ttl(sess, now)); err != nil {
		return Access{}, apperr.Internal("failed to save session", err)
	}
	return Access{URL: authURL}, nil
}

func (c *Client) ttl(s Session, now time.Time) time.Duration {
	if s.Valid(now) {
		return s.ExpiresAt.Sub(now)
	}
	return pendingSessionTTL
}

func (c *Client) authorizationURL(svc ServiceConfig) (string, error) {
	u, err := url.Parse(c.authURL)
	if err != nil {
		return "", apperr.Internal("invalid authorization endpoint", err)
	}
	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", svc.ClientID)
	q.Set("redirect_uri", c.redirectURI)
	q.Set("scope", oidcScope)
	q.Set("state", svc.ID)
	if len(svc.RequiredRoles) > 0 {
		q.Set("roles", strings.Join(svc.RequiredRoles, " "))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func serviceURL(svc ServiceConfig, token string) (string, error) {
	u, err := url.Parse(svc.URL)
	if err != nil {
		return "", apperr.Internal("invalid service url", err)
	}
	q := u.Query()
	q.Set("sso_token", token)
	q.Set("service", svc.ID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// HandleCallback exchanges an authorization code for an access token and
// stores it on the session. The session is untouched when the exchange fails.
func (c *Client) HandleCallback(ctx context.Context, sessionID, code, state string) (Result, error) {
	if sessionID == "" {
		return Result{}, apperr.Validation("session is required")
	}
	if code == "" {
		return Result{}, apperr.Validation("code is required")
	}
	if state == "" {
		return Result{}, apperr.Validation("state is required")
	}
	svc, ok := c.services.Get(state)
	if !ok {
		return Result{}, apperr.NotConfigured("service %s not configured for SSO", state)
	}
	sess, err := c.session(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}
	if sess.PendingService != "" && sess.PendingService != state {
		return Result{}, apperr.Validation("state does not match the pending sign-in")
	}

	tok, err := c.exchange(ctx, svc, code)
	if err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, apperr.ExchangeFailed(0, err)
	}

	now := c.now()
	ttl := defaultTokenTTL
	if tok.ExpiresIn > 0 {
		ttl = time.Duration(tok.ExpiresIn) * time.Second
	}
	sess = Session{
		ID:          sessionID,
		AccessToken: tok.AccessToken,
		ExpiresAt:   now.Add(ttl),
		Subject:     subjectOf(tok.AccessToken),
	}
	if err := c.sessions.Put(ctx, sess, ttl); err != nil {
		return Result{}, apperr.Internal("failed to save session", err)
	}

	target, err := serviceURL(svc, sess.AccessToken)
	if err != nil {
		return Result{}, err
	}
	return Result{
		AccessToken: sess.AccessToken,
		ServiceID:   svc.ID,
		ServiceURL:  target,
		Subject:     sess.Subject,
		ExpiresAt:   sess.ExpiresAt,
	}, nil
}

func (c *Client) exchange(ctx context.Context, svc ServiceConfig, code string) (tokenResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", svc.ClientID)
	form.Set("code", code)
	form.Set("redirect_uri", c.redirectURI)
	if c.secret != "" {
		form.Set("client_secret", c.secret)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return tokenResponse{}, apperr.ExchangeFailed(0, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return tokenResponse{}, apperr.ExchangeFailed(0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return tokenResponse{}, apperr.ExchangeFailed(resp.StatusCode, fmt.Errorf("token endpoint: %s", strings.TrimSpace(string(body))))
	}
	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return tokenResponse{}, apperr.ExchangeFailed(resp.StatusCode, fmt.Errorf("decode token response: %w", err))
	}
	if tok.AccessToken == "" {
		return tokenResponse{}, apperr.ExchangeFailed(resp.StatusCode, errors.New("token response has no access_token"))
	}
	return tok, nil
}

// subjectOf reads the sub claim of a JWT access token without verifying it.
// Opaque tokens yield an empty subject.
func subjectOf(token string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return ""
	}
	return sub
}

// UserInfo fetches the profile for the session's token. It returns nil when
// the session has no valid token or the provider call fails.
func (c *Client) UserInfo(ctx context.Context, sessionID string) (map[string]any, error) {
	if sessionID == "" || c.userInfoURL == "" {
		return nil, nil
	}
	sess, err := c.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Valid(c.now()) {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userInfoURL, nil)
	if err != nil {
		return nil, nil
	}
	req.Header.Set("Authorization", "Bearer "+sess.AccessToken)
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil
	}
	var profile map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, nil
	}
	return profile, nil
}

// Session returns the stored state for id, or an empty session.
func (c *Client) Session(ctx context.Context, id string) (Session, error) {
	return c.session(ctx, id)
}

// Logout forgets the session's token.
func (c *Client) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := c.sessions.Delete(ctx, sessionID); err != nil {
		return apperr.Internal("failed to clear session", err)
	}
	return nil
}
