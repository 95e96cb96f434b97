package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/tasklane/tasklane/internal/config"
	"github.com/tasklane/tasklane/internal/model"
	"golang.org/x/oauth2"
)

// Default endpoints for Google sign-in.
const (
	GoogleAuthURL     = "https://accounts.google.com/o/oauth2/auth"
	GoogleTokenURL    = "https://oauth2.googleapis.com/token"
	GoogleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

// maxUserInfoSize bounds the userinfo response read from the provider.
const maxUserInfoSize = 1 << 20

// OAuthProvider signs users in through an OAuth2 authorization code flow
// and an OpenID Connect userinfo endpoint.
type OAuthProvider struct {
	config      *oauth2.Config
	userInfoURL string
}

// New creates a provider from cfg, using Google's endpoints for any left
// empty.
func New(cfg *config.OAuthConfig) *OAuthProvider {
	authURL, tokenURL, userInfoURL := cfg.AuthURL, cfg.TokenURL, cfg.UserInfoURL
	if authURL == "" {
		authURL = GoogleAuthURL
	}
	if tokenURL == "" {
		tokenURL = GoogleTokenURL
	}
	if userInfoURL == "" {
		userInfoURL = GoogleUserInfoURL
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "profile", "email"}
	}
	return &OAuthProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:  authURL,
				TokenURL: tokenURL,
			},
			Scopes: scopes,
		},
		userInfoURL: userInfoURL,
	}
}

// AuthCodeURL returns the provider consent page URL carrying state.
func (p *OAuthProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades an authorization code for the user's profile.
func (p *OAuthProvider) Exchange(ctx context.Context, code string) (*model.OAuthProfile, error) {
	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, errors.Wrap(err, "exchanging code")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.config.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetching userinfo")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	var claims map[string]interface{}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxUserInfoSize)).Decode(&claims); err != nil {
		return nil, errors.Wrap(err, "decoding userinfo")
	}

	var profile model.OAuthProfile
	if err := mapstructure.WeakDecode(claims, &profile); err != nil {
		return nil, errors.Wrap(err, "decoding userinfo")
	}
	if profile.ID == "" {
		return nil, errors.New("userinfo is missing subject")
	}
	if verified, ok := claims["email_verified"].(bool); ok && !verified {
		return nil, errors.New("provider email is not verified")
	}
	return &profile, nil
}
