package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// GoogleProvider implements Provider for Google OAuth2.
type GoogleProvider struct {
	config *oauth2.Config

	// UserInfoURL can be overridden for testing.
	UserInfoURL string

	// HTTPClient is used for the userinfo request. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client
}

// NewGoogleProvider creates a Google OAuth2 provider.
func NewGoogleProvider(clientID, clientSecret, redirectURL string) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		},
		UserInfoURL: googleUserInfoURL,
	}
}

// SetEndpoint overrides the token endpoint. Used in tests.
func (g *GoogleProvider) SetEndpoint(endpoint oauth2.Endpoint) {
	g.config.Endpoint = endpoint
}

func (g *GoogleProvider) Name() string {
	return "google"
}

func (g *GoogleProvider) AuthCodeURL(state string) string {
	return g.config.AuthCodeURL(state)
}

// Exchange exchanges the authorization code for tokens and fetches the
// user's Google profile.
func (g *GoogleProvider) Exchange(ctx context.Context, code string) (*Profile, error) {
	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange google code: %w", err)
	}

	userInfo, err := fetchUserInfo(ctx, g.httpClient(), g.UserInfoURL, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to get google user info: %w", err)
	}

	profile := &Profile{
		Provider:       g.Name(),
		ProviderUserID: stringValue(userInfo["id"]),
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

func (g *GoogleProvider) httpClient() *http.Client {
	if g.HTTPClient != nil {
		return g.HTTPClient
	}
	return http.DefaultClient
}

func fetchUserInfo(ctx context.Context, client *http.Client, url, accessToken string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user info request failed with status %d", resp.StatusCode)
	}

	var userInfo map[string]any
	if err := json.Unmarshal(body, &userInfo); err != nil {
		return nil, fmt.Errorf("failed to parse user info: %w", err)
	}

	return userInfo, nil
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}
