package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	DefaultGitHubURL     = "https://api.github.com"
	DefaultProjectKey    = "DEVX"
	DefaultReviewTrigger = "/devx review"
	DefaultAPIVersion    = "2023-12-01-preview"
)

// sections are the environment prefixes read into the settings tree, e.g.
// JIRA_API_TOKEN becomes jira.api_token.
var sections = []string{"JIRA_", "GITHUB_", "SLACK_", "AZURE_", "DEVX_"}

type Jira struct {
	APIToken       string `koanf:"api_token"`
	APIUser        string `koanf:"api_user"`
	APIEndpoint    string `koanf:"api_endpoint"`
	ClientID       string `koanf:"client_id"`
	ClientSecret   string `koanf:"client_secret"`
	DefaultProject string `koanf:"default_project"`
}

type GitHub struct {
	AppID                   int64  `koanf:"app_id"`
	PrivateKey              string `koanf:"private_key"`
	EnterpriseURL           string `koanf:"enterprise_url"`
	WebhookSecret           string `koanf:"webhook_secret"`
	ReviewTrigger           string `koanf:"review_trigger"`
	HandlePullRequestEvents bool   `koanf:"handle_pull_request_events"`
}

type Slack struct {
	BotToken      string `koanf:"bot_token"`
	SigningSecret string `koanf:"signing_secret"`
	AppToken      string `koanf:"app_token"`
}

type Azure struct {
	APIKey     string `koanf:"api_key"`
	Endpoint   string `koanf:"endpoint"`
	Deployment string `koanf:"deployment"`
	APIVersion string `koanf:"api_version"`
	// BaseURL selects a plain OpenAI-compatible endpoint instead of Azure.
	BaseURL string `koanf:"base_url"`
}

type Server struct {
	Port                int      `koanf:"port"`
	LogLevel            string   `koanf:"log_level"`
	LogFormat           string   `koanf:"log_format"`
	PromptsFile         string   `koanf:"prompts_file"`
	WebhookAllowedCIDRs []string `koanf:"webhook_allowed_cidrs"`
	WebhookRateLimit    int      `koanf:"webhook_rate_limit"`
	// TrustedProxyCIDRs are the load balancers whose X-Forwarded-For is
	// believed. Empty means the peer address is the client.
	TrustedProxyCIDRs []string `koanf:"trusted_proxy_cidrs"`
}

// Settings is loaded once at startup and never mutated afterwards.
type Settings struct {
	Jira   Jira   `koanf:"jira"`
	GitHub GitHub `koanf:"github"`
	Slack  Slack  `koanf:"slack"`
	Azure  Azure  `koanf:"azure"`
	Server Server `koanf:"devx"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"jira.default_project":              DefaultProjectKey,
		"github.enterprise_url":             DefaultGitHubURL,
		"github.review_trigger":             DefaultReviewTrigger,
		"github.handle_pull_request_events": false,
		"azure.deployment":                  "gpt-4",
		"azure.api_version":                 DefaultAPIVersion,
		"devx.port":                         8000,
		"devx.log_level":                    "info",
		"devx.log_format":                   "console",
		"devx.webhook_rate_limit":           0,
	}
}

// Load reads defaults, then the optional TOML file at path, then the
// environment. Later sources win.
func Load(path string) (*Settings, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	var s Settings
	if err := k.Unmarshal("", &s); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	s.normalize()
	return &s, nil
}

// envKey maps JIRA_API_TOKEN to jira.api_token. Variables outside the known
// sections are skipped.
func envKey(name string) string {
	for _, prefix := range sections {
		if strings.HasPrefix(name, prefix) && len(name) > len(prefix) {
			section := strings.ToLower(strings.TrimSuffix(prefix, "_"))
			return section + "." + strings.ToLower(strings.TrimPrefix(name, prefix))
		}
	}
	return ""
}

// listKeys hold comma separated values in the environment.
var listKeys = map[string]bool{
	"devx.webhook_allowed_cidrs": true,
	"devx.trusted_proxy_cidrs":   true,
}

func envValue(name, value string) (string, interface{}) {
	key := envKey(name)
	if listKeys[key] {
		return key, splitList([]string{value})
	}
	return key, value
}

// splitList flattens comma separated entries and drops blanks.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

func (s *Settings) normalize() {
	s.Jira.APIEndpoint = strings.TrimRight(s.Jira.APIEndpoint, "/")
	if s.Jira.DefaultProject == "" {
		s.Jira.DefaultProject = DefaultProjectKey
	}
	if s.GitHub.EnterpriseURL == "" {
		s.GitHub.EnterpriseURL = DefaultGitHubURL
	}
	if strings.TrimSpace(s.GitHub.ReviewTrigger) == "" {
		s.GitHub.ReviewTrigger = DefaultReviewTrigger
	}
	if s.Azure.APIVersion == "" {
		s.Azure.APIVersion = DefaultAPIVersion
	}
	s.Server.WebhookAllowedCIDRs = splitList(s.Server.WebhookAllowedCIDRs)
	s.Server.TrustedProxyCIDRs = splitList(s.Server.TrustedProxyCIDRs)
}

// Validate reports every missing required setting at once.
func (s *Settings) Validate() error {
	var errs []error
	require := func(ok bool, name string) {
		if !ok {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}

	require(s.Jira.APIEndpoint != "", "JIRA_API_ENDPOINT")
	if !s.JiraUseOAuth() {
		require(s.Jira.APIUser != "", "JIRA_API_USER")
		require(s.Jira.APIToken != "", "JIRA_API_TOKEN")
	}
	require(s.GitHub.AppID != 0, "GITHUB_APP_ID")
	require(s.GitHub.PrivateKey != "", "GITHUB_PRIVATE_KEY")
	require(s.Slack.BotToken != "", "SLACK_BOT_TOKEN")
	require(s.Slack.SigningSecret != "", "SLACK_SIGNING_SECRET")
	require(s.Azure.APIKey != "", "AZURE_API_KEY")
	require(s.Azure.Endpoint != "" || s.Azure.BaseURL != "", "AZURE_ENDPOINT (or AZURE_BASE_URL)")
	if s.Server.Port <= 0 || s.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("DEVX_PORT %d is out of range", s.Server.Port))
	}

	return errors.Join(errs...)
}

// JiraUseOAuth returns true when OAuth 2.0 client credentials are configured.
func (s *Settings) JiraUseOAuth() bool {
	return s.Jira.ClientID != "" && s.Jira.ClientSecret != ""
}

// UseAzure returns true unless a plain OpenAI-compatible base URL was given.
func (s *Settings) UseAzure() bool {
	return s.Azure.BaseURL == ""
}

// GitHubEnterprise returns true when the source host is not the public API.
func (s *Settings) GitHubEnterprise() bool {
	return strings.TrimRight(s.GitHub.EnterpriseURL, "/") != DefaultGitHubURL
}

// SocketMode returns true when an app-level token allows Socket Mode.
func (s *Settings) SocketMode() bool {
	return s.Slack.AppToken != ""
}
