package msgraph

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/Tiliavir/boring-time-tracker/internal/securestore"
)

// TokenKey is the securestore key holding the Graph OAuth2 token.
const TokenKey = "msgraph.token"

var requiredScopes = []string{
	"https://graph.microsoft.com/Calendars.Read",
	"offline_access",
}

func msEndpoint(tenantID, path string) string {
	return "https://login.microsoftonline.com/" + tenantID + "/oauth2/v2.0/" + path
}

// OAuth2Config returns the oauth2.Config for Microsoft Graph using the
// provided tenant and client IDs.
func OAuth2Config(tenantID, clientID string) *oauth2.Config {
	return &oauth2.Config{
		ClientID: clientID,
		Scopes:   requiredScopes,
		Endpoint: oauth2.Endpoint{
			DeviceAuthURL: msEndpoint(tenantID, "devicecode"),
			TokenURL:      msEndpoint(tenantID, "token"),
			AuthStyle:     oauth2.AuthStyleInParams,
		},
	}
}

// Authenticator obtains Graph tokens with the device code flow and caches
// them, encrypted, in a securestore.Store.
type Authenticator struct {
	cfg    *oauth2.Config
	tokens *securestore.Store
	out    io.Writer
	log    logrus.FieldLogger
}

// NewAuthenticator returns an Authenticator for cfg. Sign-in instructions
// are written to out.
func NewAuthenticator(cfg *oauth2.Config, tokens *securestore.Store, out io.Writer) *Authenticator {
	return &Authenticator{cfg: cfg, tokens: tokens, out: out, log: logrus.StandardLogger()}
}

func (a *Authenticator) loadToken(ctx context.Context) (*oauth2.Token, error) {
	tok, err := securestore.Load[oauth2.Token](ctx, a.tokens, TokenKey)
	if err != nil {
		return nil, fmt.Errorf("corrupt stored token (run 'btt outlook logout' to re-authenticate): %w", err)
	}
	return tok, nil
}

func (a *Authenticator) saveToken(ctx context.Context, tok *oauth2.Token) error {
	return a.tokens.Put(ctx, TokenKey, tok)
}

// Token loads the saved token, refreshes it if needed, or runs a new
// device code flow if no valid token is available.
func (a *Authenticator) Token(ctx context.Context) (*oauth2.Token, error) {
	tok, err := a.loadToken(ctx)
	if err != nil {
		a.log.WithError(err).Warn("ignoring stored Graph token")
		tok = nil
	}

	if tok != nil && tok.Valid() {
		return tok, nil
	}

	if tok != nil && tok.RefreshToken != "" {
		refreshed, err := a.cfg.TokenSource(ctx, tok).Token()
		if err == nil {
			if err := a.saveToken(ctx, refreshed); err != nil {
				a.log.WithError(err).Warn("could not save refreshed token")
			}
			return refreshed, nil
		}
		a.log.WithError(err).Info("token refresh failed, re-authenticating")
	}

	resp, err := a.cfg.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("device auth request failed: %w", err)
	}

	fmt.Fprintln(a.out)
	fmt.Fprintln(a.out, "To sign in, use a web browser to open the page:")
	fmt.Fprintf(a.out, "  %s\n", resp.VerificationURI)
	fmt.Fprintf(a.out, "Enter the code: %s\n", resp.UserCode)
	fmt.Fprintln(a.out)

	newTok, err := a.cfg.DeviceAccessToken(ctx, resp)
	if err != nil {
		return nil, fmt.Errorf("device authentication failed: %w", err)
	}
	if err := a.saveToken(ctx, newTok); err != nil {
		a.log.WithError(err).Warn("could not save token")
	}
	return newTok, nil
}

// HTTPClient returns an http.Client that authenticates Graph requests and
// persists refreshed tokens.
func (a *Authenticator) HTTPClient(ctx context.Context) (*http.Client, error) {
	tok, err := a.Token(ctx)
	if err != nil {
		return nil, err
	}
	ts := &savingTokenSource{ctx: ctx, ts: a.cfg.TokenSource(ctx, tok), a: a, last: tok.AccessToken}
	return oauth2.NewClient(ctx, ts), nil
}

// Logout forgets the stored token.
func (a *Authenticator) Logout(ctx context.Context) error {
	return a.tokens.Remove(ctx, TokenKey)
}

// savingTokenSource wraps a TokenSource and persists refreshed tokens.
type savingTokenSource struct {
	ctx  context.Context
	ts   oauth2.TokenSource
	a    *Authenticator
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.ts.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := s.a.saveToken(s.ctx, tok); err != nil {
			s.a.log.WithError(err).Warn("could not save refreshed token")
		}
	}
	return tok, nil
}
