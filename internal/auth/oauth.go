package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-redis/redis/v8"
	"golang.org/x/oauth2"

	"eventflow/internal/config"
	"eventflow/internal/models"
	"eventflow/internal/utils"
)

const (
	oauthStatePrefix = "oauth_state:"
	oauthStateTTL    = 10 * time.Minute
)

var (
	ErrUnknownProvider = errors.New("unknown oauth provider")
	ErrInvalidState    = errors.New("invalid or expired oauth state")
)

// OAuthProviders wires the two external providers: Google (full OIDC, gives a
// verified email) and the wiki provider (plain OAuth2 whose userinfo may not
// include an email at all).
type OAuthProviders struct {
	google         *oauth2.Config
	googleVerifier *oidc.IDTokenVerifier
	wiki           *oauth2.Config
	wikiUserinfo   string
	redis          *redis.Client
	client         *http.Client
}

func NewOAuthProviders(ctx context.Context, cfg config.AuthConfig, baseURL string, rdb *redis.Client, client *http.Client) (*OAuthProviders, error) {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	p := &OAuthProviders{
		redis:        rdb,
		client:       client,
		wikiUserinfo: cfg.WikiUserinfoURL,
	}

	if cfg.GoogleClientID != "" {
		provider, err := oidc.NewProvider(ctx, "https://accounts.google.com")
		if err != nil {
			return nil, fmt.Errorf("failed to create Google OIDC provider: %w", err)
		}
		p.googleVerifier = provider.Verifier(&oidc.Config{ClientID: cfg.GoogleClientID})
		p.google = &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  baseURL + "/api/auth/google/callback",
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
		}
	}

	if cfg.WikiClientID != "" {
		p.wiki = &oauth2.Config{
			ClientID:     cfg.WikiClientID,
			ClientSecret: cfg.WikiClientSecret,
			RedirectURL:  baseURL + "/api/auth/wiki/callback",
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.WikiAuthURL,
				TokenURL: cfg.WikiTokenURL,
			},
		}
	}

	return p, nil
}

func (p *OAuthProviders) config(provider string) (*oauth2.Config, error) {
	switch provider {
	case models.ProviderGoogle:
		if p.google == nil {
			return nil, fmt.Errorf("google oauth not configured")
		}
		return p.google, nil
	case models.ProviderWiki:
		if p.wiki == nil {
			return nil, fmt.Errorf("wiki oauth not configured")
		}
		return p.wiki, nil
	}
	return nil, ErrUnknownProvider
}

// oauthState is the Redis value behind a state nonce. LinkUserID is set when
// the flow was started by a logged-in user linking a provider rather than
// logging in.
type oauthState struct {
	Provider   string `json:"provider"`
	LinkUserID string `json:"link_user_id,omitempty"`
}

// AuthURL generates a state nonce, stores it in Redis and returns the
// provider's authorization URL.
func (p *OAuthProviders) AuthURL(ctx context.Context, provider string) (string, error) {
	return p.authURL(ctx, provider, "")
}

// LinkAuthURL starts an OAuth flow whose callback links the resulting
// identity to userID instead of logging in.
func (p *OAuthProviders) LinkAuthURL(ctx context.Context, provider, userID string) (string, error) {
	return p.authURL(ctx, provider, userID)
}

func (p *OAuthProviders) authURL(ctx context.Context, provider, linkUserID string) (string, error) {
	cfg, err := p.config(provider)
	if err != nil {
		return "", err
	}

	state, err := utils.RandomToken(24)
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	raw, err := json.Marshal(oauthState{Provider: provider, LinkUserID: linkUserID})
	if err != nil {
		return "", err
	}
	if err := p.redis.Set(ctx, oauthStatePrefix+state, raw, oauthStateTTL).Err(); err != nil {
		return "", fmt.Errorf("failed to store oauth state: %w", err)
	}
	return cfg.AuthCodeURL(state), nil
}

// consumeState validates the callback state against Redis. States are
// single-use.
func (p *OAuthProviders) consumeState(ctx context.Context, provider, state string) (*oauthState, error) {
	raw, err := p.redis.GetDel(ctx, oauthStatePrefix+state).Result()
	if err == redis.Nil {
		return nil, ErrInvalidState
	} else if err != nil {
		return nil, fmt.Errorf("failed to check oauth state: %w", err)
	}

	var stored oauthState
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, ErrInvalidState
	}
	if stored.Provider != provider {
		return nil, ErrInvalidState
	}
	return &stored, nil
}

// Exchange validates state, redeems the authorization code and normalizes the
// provider's identity into a ProviderProfile. The second return value is the
// user id of a link-intent flow, empty for plain logins.
func (p *OAuthProviders) Exchange(ctx context.Context, provider, state, code string) (*models.ProviderProfile, string, error) {
	cfg, err := p.config(provider)
	if err != nil {
		return nil, "", err
	}
	stored, err := p.consumeState(ctx, provider, state)
	if err != nil {
		return nil, "", err
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, "", fmt.Errorf("code exchange failed: %w", err)
	}

	var profile *models.ProviderProfile
	switch provider {
	case models.ProviderGoogle:
		profile, err = p.googleProfile(ctx, token)
	case models.ProviderWiki:
		profile, err = p.wikiProfile(ctx, token)
	default:
		return nil, "", ErrUnknownProvider
	}
	if err != nil {
		return nil, "", err
	}
	return profile, stored.LinkUserID, nil
}

func (p *OAuthProviders) googleProfile(ctx context.Context, token *oauth2.Token) (*models.ProviderProfile, error) {
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, errors.New("google response missing id_token")
	}

	idToken, err := p.googleVerifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("invalid google id_token: %w", err)
	}

	var claims struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse google claims: %w", err)
	}

	return &models.ProviderProfile{
		Provider:          models.ProviderGoogle,
		ProviderAccountID: claims.Sub,
		Email:             claims.Email,
		EmailVerified:     claims.EmailVerified,
		FullName:          claims.Name,
	}, nil
}

// wikiProfile fetches userinfo from the wiki provider. The email field is
// frequently absent or unconfirmed, in which case the returned profile
// carries no email and the service layer synthesizes a placeholder.
func (p *OAuthProviders) wikiProfile(ctx context.Context, token *oauth2.Token) (*models.ProviderProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.wikiUserinfo, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wiki userinfo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("wiki userinfo returned %d: %s", resp.StatusCode, string(body))
	}

	var info struct {
		Sub            json.Number `json:"sub"`
		Username       string      `json:"username"`
		Email          string      `json:"email"`
		ConfirmedEmail bool        `json:"confirmed_email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode wiki userinfo: %w", err)
	}
	if info.Sub.String() == "" {
		return nil, errors.New("wiki userinfo missing sub")
	}

	profile := &models.ProviderProfile{
		Provider:          models.ProviderWiki,
		ProviderAccountID: info.Sub.String(),
		FullName:          info.Username,
	}
	if info.Email != "" && info.ConfirmedEmail {
		profile.Email = info.Email
		profile.EmailVerified = true
	}
	return profile, nil
}
