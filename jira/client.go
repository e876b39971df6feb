package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/justmike1/devx/apperr"
)

// authMode controls how API requests are authenticated.
type authMode string

const (
	authBasic authMode = "basic"
	authOAuth authMode = "oauth"

	atlassianTokenURL        = "https://auth.atlassian.com/oauth/token"
	atlassianResourcesURL    = "https://api.atlassian.com/oauth/token/accessible-resources"
	atlassianOAuthAPIBaseURL = "https://api.atlassian.com/ex/jira"
)

// Client provides access to the Jira Cloud REST API v3.
type Client struct {
	baseURL    string // REST base; differs between Basic Auth and OAuth
	siteURL    string // used for browse links
	user       string
	apiToken   string
	httpClient *http.Client
	mode       authMode
}

// NewClient creates a Jira API client using Basic Auth (user + API token).
func NewClient(baseURL, user, apiToken string) *Client {
	cleanURL := strings.TrimRight(baseURL, "/")
	return &Client{
		baseURL:    cleanURL,
		siteURL:    cleanURL,
		user:       user,
		apiToken:   apiToken,
		httpClient: &http.Client{},
		mode:       authBasic,
	}
}

// NewOAuthClient creates a Jira API client using OAuth 2.0 client credentials.
// Tokens are refreshed by the oauth2 transport. The Atlassian cloud ID for
// siteURL is resolved once and the REST base rewritten to the OAuth gateway.
func NewOAuthClient(ctx context.Context, siteURL, clientID, clientSecret string) (*Client, error) {
	cc := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     atlassianTokenURL,
	}
	c := &Client{
		siteURL:    strings.TrimRight(siteURL, "/"),
		httpClient: cc.Client(ctx),
		mode:       authOAuth,
	}

	cloudID, err := c.resolveCloudID(ctx, atlassianResourcesURL)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve Atlassian cloud ID for %s: %w", c.siteURL, err)
	}
	c.baseURL = fmt.Sprintf("%s/%s", atlassianOAuthAPIBaseURL, cloudID)
	log.Info().Str("component", "jira").Str("site", c.siteURL).Str("base_url", c.baseURL).Msg("OAuth cloud ID resolved")
	return c, nil
}

// resolveCloudID finds the accessible resource matching the site URL, or the
// only resource when there is just one.
func (c *Client) resolveCloudID(ctx context.Context, resourcesURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resourcesURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("accessible-resources returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	var resources []struct {
		ID   string `json:"id"`
		URL  string `json:"url"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &resources); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if len(resources) == 0 {
		return "", fmt.Errorf("no accessible Atlassian sites found, ensure the OAuth app is authorized for your site")
	}

	site := strings.ToLower(c.siteURL)
	for _, r := range resources {
		if strings.TrimRight(strings.ToLower(r.URL), "/") == site {
			return r.ID, nil
		}
	}
	if len(resources) == 1 {
		log.Warn().Str("component", "jira").Str("site", c.siteURL).Str("available", resources[0].URL).
			Msg("site URL did not match, using the only available site")
		return resources[0].ID, nil
	}

	names := make([]string, len(resources))
	for i, r := range resources {
		names[i] = fmt.Sprintf("%s (%s)", r.URL, r.ID)
	}
	return "", fmt.Errorf("site URL %q not found in accessible resources: %v", c.siteURL, names)
}

// AuthMode returns the authentication mode ("basic" or "oauth").
func (c *Client) AuthMode() string {
	return string(c.mode)
}

// BrowseURL returns the human-facing link for an issue key.
func (c *Client) BrowseURL(key string) string {
	return fmt.Sprintf("%s/browse/%s", c.siteURL, key)
}

// do sends a JSON request to path (relative to the REST base) and decodes the
// response into out when out is non-nil. Non-2xx responses become classified
// errors.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.mode == authBasic {
		req.SetBasicAuth(c.user, c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp.StatusCode, respBody)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// apiError turns a Jira error body into a classified error, keeping the
// structured messages when Jira sends them.
func apiError(status int, body []byte) error {
	detail := strings.TrimSpace(string(body))
	var jiraErr struct {
		ErrorMessages []string          `json:"errorMessages"`
		Errors        map[string]string `json:"errors"`
	}
	if json.Unmarshal(body, &jiraErr) == nil {
		var parts []string
		parts = append(parts, jiraErr.ErrorMessages...)
		for field, msg := range jiraErr.Errors {
			parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
		}
		if len(parts) > 0 {
			detail = strings.Join(parts, "; ")
		}
	}
	return apperr.FromStatus(apperr.ServiceJira, status, fmt.Sprintf("jira API error (HTTP %d): %s", status, detail))
}
