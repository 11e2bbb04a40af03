// Package auth keeps the connected Jira site and its OAuth2 credentials in
// the preference store.
package auth

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/prefs"
)

// DefaultAddonURL is the authorization server used when none is stored.
const DefaultAddonURL = "https://jira-sketch-integration.atlassian.io"

// Manager reads and writes the site and token preferences.
type Manager struct {
	prefs *prefs.Store
}

func NewManager(store *prefs.Store) *Manager {
	return &Manager{prefs: store}
}

// SetJiraURL normalizes u to a bare host and stores it. Changing site
// drops the authorization of the previous one.
func (m *Manager) SetJiraURL(u string) error {
	host, err := NormalizeHost(u)
	if err != nil {
		return err
	}
	if prev, err := m.prefs.GetString(prefs.KeyJiraHost); err == nil && prev == host {
		return nil
	}
	if err := m.prefs.Unset(prefs.KeyAuthorized, prefs.KeyAuthToken, prefs.KeyAuthTokenExpiry); err != nil {
		return err
	}
	return m.prefs.SetString(prefs.KeyJiraHost, host)
}

// JiraHost returns the stored host, or "" when none is set.
func (m *Manager) JiraHost() string {
	host, err := m.prefs.GetString(prefs.KeyJiraHost)
	if err != nil {
		return ""
	}
	return host
}

// BaseURL is a rest.BaseURLFunc over the stored host.
func (m *Manager) BaseURL() (string, error) {
	host, err := m.prefs.GetString(prefs.KeyJiraHost)
	if err != nil {
		return "", err
	}
	return "https://" + host, nil
}

func (m *Manager) Authorized() bool {
	return m.prefs.IsSet(prefs.KeyJiraHost, prefs.KeyAuthorized)
}

func (m *Manager) oauthConfig() *oauth2.Config {
	addon, err := m.prefs.GetString(prefs.KeyAddonURL)
	if err != nil {
		addon = DefaultAddonURL
	}
	clientID, _ := m.prefs.GetString(prefs.KeyClientID)
	secret, _ := m.prefs.GetString(prefs.KeySharedSecret)
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: secret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  strings.TrimRight(addon, "/") + "/oauth/authorize",
			TokenURL: strings.TrimRight(addon, "/") + "/oauth/token",
		},
	}
}

// AuthorizationURL is where the user grants the panel access to the site.
func (m *Manager) AuthorizationURL() (string, error) {
	host, err := m.prefs.GetString(prefs.KeyJiraHost)
	if err != nil {
		return "", fmt.Errorf("no site selected: %w", err)
	}
	return m.oauthConfig().AuthCodeURL(host, oauth2.SetAuthURLParam("jiraHost", host)), nil
}

// SaveToken stores a token returned by the authorization server.
func (m *Manager) SaveToken(tok *oauth2.Token) error {
	if err := m.prefs.SetString(prefs.KeyAuthToken, tok.AccessToken); err != nil {
		return err
	}
	if !tok.Expiry.IsZero() {
		return m.prefs.SetString(prefs.KeyAuthTokenExpiry, strconv.FormatInt(tok.Expiry.Unix(), 10))
	}
	return nil
}

// Token implements oauth2.TokenSource over the stored token.
func (m *Manager) Token() (*oauth2.Token, error) {
	access, err := m.prefs.GetString(prefs.KeyAuthToken)
	if err != nil {
		return nil, err
	}
	tok := &oauth2.Token{AccessToken: access, TokenType: "Bearer"}
	if exp, err := m.prefs.GetInt(prefs.KeyAuthTokenExpiry); err == nil {
		tok.Expiry = time.Unix(exp, 0)
	}
	return tok, nil
}

// TokenSource caches the stored token until it expires.
func (m *Manager) TokenSource() oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, m)
}

// Pinger checks the current credentials against the site.
type Pinger interface {
	Myself(ctx context.Context) error
}

// TestAuthorization marks the site authorized when p succeeds.
func (m *Manager) TestAuthorization(ctx context.Context, p Pinger) (bool, error) {
	if err := p.Myself(ctx); err != nil {
		return false, nil
	}
	if err := m.prefs.SetString(prefs.KeyAuthorized, "true"); err != nil {
		return false, err
	}
	return true, nil
}

// NormalizeHost accepts "example", "example.atlassian.net" or a full URL
// and returns the host name.
func NormalizeHost(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("empty site url")
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid site url %q", raw)
	}
	host := strings.ToLower(u.Host)
	if !strings.Contains(host, ".") {
		host += ".atlassian.net"
	}
	return host, nil
}
