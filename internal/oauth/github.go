package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const githubUserInfoURL = "https://api.github.com/user"

// GitHubProvider implements Provider for GitHub OAuth2.
type GitHubProvider struct {
	config *oauth2.Config

	// UserInfoURL can be overridden for testing.
	UserInfoURL string

	// HTTPClient is used for the userinfo request. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client
}

// NewGitHubProvider creates a GitHub OAuth2 provider.
func NewGitHubProvider(clientID, clientSecret, redirectURL string) *GitHubProvider {
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
		UserInfoURL: githubUserInfoURL,
	}
}

// SetEndpoint overrides the token endpoint. Used in tests.
func (g *GitHubProvider) SetEndpoint(endpoint oauth2.Endpoint) {
	g.config.Endpoint = endpoint
}

func (g *GitHubProvider) Name() string {
	return "github"
}

func (g *GitHubProvider) AuthCodeURL(state string) string {
	return g.config.AuthCodeURL(state)
}

// Exchange exchanges the authorization code for tokens and fetches the
// user's GitHub profile. GitHub user IDs are numeric in the API response.
func (g *GitHubProvider) Exchange(ctx context.Context, code string) (*Profile, error) {
	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange github code: %w", err)
	}

	userInfo, err := fetchUserInfo(ctx, g.httpClient(), g.UserInfoURL, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to get github user info: %w", err)
	}

	profile := &Profile{
		Provider:       g.Name(),
		ProviderUserID: githubUserID(userInfo["id"]),
		Email:          stringValue(userInfo["email"]),
		Name:           stringValue(userInfo["name"]),
		AccessToken:    token.AccessToken,
		RefreshToken:   token.RefreshToken,
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		profile.TokenExpiresAt = &expiry
	}

	return profile, nil
}

func (g *GitHubProvider) httpClient() *http.Client {
	if g.HTTPClient != nil {
		return g.HTTPClient
	}
	return http.DefaultClient
}

func githubUserID(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return fmt.Sprintf("%.0f", id)
	case json.Number:
		return id.String()
	}
	return ""
}
