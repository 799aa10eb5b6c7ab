package application

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"pointsweep/internal/domain/port/driven"
)

// TokenConfig describes the authorization-code flow used to obtain the
// mobile rewards-platform access token. The defaults target the consumer
// identity provider the portal runs on.
type TokenConfig struct {
	ClientID    string
	AuthURL     string
	TokenURL    string
	RedirectURL string
	Scope       string

	PollInterval time.Duration
	Timeout      time.Duration
}

// DefaultTokenConfig returns the production endpoints and timings.
func DefaultTokenConfig() TokenConfig {
	return TokenConfig{
		ClientID:     "0000000040170455",
		AuthURL:      "https://login.live.com/oauth20_authorize.srf",
		TokenURL:     "https://login.microsoftonline.com/consumers/oauth2/v2.0/token",
		RedirectURL:  "https://login.live.com/oauth20_desktop.srf",
		Scope:        "service::prod.rewardsplatform.microsoft.com::MBI_SSL",
		PollInterval: 5 * time.Second,
		Timeout:      2 * time.Minute,
	}
}

// TokenService rides an already-authenticated page through the authorization
// endpoint and exchanges the granted code for an access token. The identity
// provider auto-approves the grant for a signed-in session, so the only wait
// is the redirect carrying the code.
type TokenService struct {
	cfg    TokenConfig
	logger *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
}

// NewTokenService creates a TokenService.
func NewTokenService(cfg TokenConfig, logger *slog.Logger) *TokenService {
	return &TokenService{cfg: cfg, logger: logger, now: time.Now, sleep: sleepCtx}
}

// Acquire obtains an access token for email using page, which must belong to
// an authenticated session.
func (s *TokenService) Acquire(ctx context.Context, page driven.Page, email string) (string, error) {
	conf := &oauth2.Config{
		ClientID:    s.cfg.ClientID,
		RedirectURL: s.cfg.RedirectURL,
		Scopes:      []string{s.cfg.Scope},
		Endpoint: oauth2.Endpoint{
			AuthURL:  s.cfg.AuthURL,
			TokenURL: s.cfg.TokenURL,
		},
	}

	authURL := conf.AuthCodeURL("", oauth2.SetAuthURLParam("login_hint", email))
	if err := page.Navigate(ctx, authURL, s.cfg.Timeout); err != nil {
		return "", fmt.Errorf("open authorization endpoint: %w", err)
	}

	code, err := s.waitForCode(ctx, page)
	if err != nil {
		return "", err
	}

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("exchange authorization code: %w", err)
	}

	s.logExpiry(email, tok.AccessToken)
	return tok.AccessToken, nil
}

// waitForCode polls the page URL until the redirect carrying the
// authorization code lands.
func (s *TokenService) waitForCode(ctx context.Context, page driven.Page) (string, error) {
	deadline := s.now().Add(s.cfg.Timeout)
	for {
		if u, err := url.Parse(page.CurrentURL()); err == nil {
			if code := u.Query().Get("code"); code != "" {
				return code, nil
			}
		}
		if !s.now().Before(deadline) {
			return "", fmt.Errorf("authorization code redirect not observed within %s", s.cfg.Timeout)
		}
		if !s.sleep(ctx, s.cfg.PollInterval) {
			return "", ctx.Err()
		}
	}
}

// logExpiry surfaces the token lifetime when the token is a parseable JWT.
// Opaque tokens are fine; this is informational only.
func (s *TokenService) logExpiry(email, accessToken string) {
	parsed, _, err := jwt.NewParser().ParseUnverified(accessToken, jwt.MapClaims{})
	if err != nil {
		s.logger.Debug("access token acquired", "account", email)
		return
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		s.logger.Debug("access token acquired", "account", email)
		return
	}
	s.logger.Info("access token acquired",
		"account", email,
		"expires_at", exp.Format(time.RFC3339),
	)
}
