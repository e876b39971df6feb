package github

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gh "github.com/google/go-github/v60/github"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/justmike1/devx/apperr"
)

const (
	PublicAPIURL = "https://api.github.com"

	appJWTLifetime = 9 * time.Minute
	// Installation tokens live for an hour; reuse them for less than that.
	installationTokenTTL = 50 * time.Minute
	maxCachedTokens      = 256
)

// App authenticates as a GitHub App and hands out installation-scoped clients.
type App struct {
	id      int64
	key     *rsa.PrivateKey
	baseURL string
	apps    *gh.Client
	tokens  *expirable.LRU[int64, *oauth2.Token]
	now     func() time.Time
}

// LoadPrivateKey accepts PEM text (with real or escaped newlines) or a path to
// a PEM file.
func LoadPrivateKey(value string) (*rsa.PrivateKey, error) {
	pemText := value
	if !strings.Contains(value, "-----BEGIN") {
		data, err := os.ReadFile(value)
		if err != nil {
			return nil, fmt.Errorf("failed to read GitHub private key file: %w", err)
		}
		pemText = string(data)
	}
	pemText = strings.ReplaceAll(pemText, `\n`, "\n")

	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(pemText))
	if err != nil {
		return nil, fmt.Errorf("failed to parse GitHub private key: %w", err)
	}
	return key, nil
}

// NewApp returns an App for the public API or, when baseURL is anything else,
// a GitHub Enterprise server.
func NewApp(appID int64, key *rsa.PrivateKey, baseURL string) (*App, error) {
	a := &App{
		id:      appID,
		key:     key,
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  expirable.NewLRU[int64, *oauth2.Token](maxCachedTokens, nil, installationTokenTTL),
		now:     time.Now,
	}
	if a.baseURL == "" {
		a.baseURL = PublicAPIURL
	}

	httpClient := oauth2.NewClient(context.Background(), oauth2.ReuseTokenSource(nil, &jwtSource{app: a}))
	apps, err := a.newClient(httpClient)
	if err != nil {
		return nil, err
	}
	a.apps = apps
	return a, nil
}

func (a *App) newClient(httpClient *http.Client) (*gh.Client, error) {
	c := gh.NewClient(httpClient)
	if a.baseURL == PublicAPIURL {
		return c, nil
	}
	c, err := c.WithEnterpriseURLs(a.baseURL+"/", a.baseURL+"/")
	if err != nil {
		return nil, fmt.Errorf("invalid GitHub Enterprise URL %s: %w", a.baseURL, err)
	}
	return c, nil
}

// jwtSource mints short-lived app JWTs.
type jwtSource struct {
	app *App
}

func (s *jwtSource) Token() (*oauth2.Token, error) {
	now := s.app.now()
	exp := now.Add(appJWTLifetime)
	claims := jwt.RegisteredClaims{
		Issuer: strconv.FormatInt(s.app.id, 10),
		// Backdated to absorb clock drift with the server.
		IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.app.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign app JWT: %w", err)
	}
	// Expire the oauth2 copy early so ReuseTokenSource mints a fresh one in time.
	return &oauth2.Token{AccessToken: signed, TokenType: "Bearer", Expiry: exp.Add(-time.Minute)}, nil
}

// installationSource returns cached installation tokens, exchanging the app
// JWT for a new one when the cache has none. Minting runs under the context
// of the operation that built the client.
type installationSource struct {
	ctx context.Context
	app *App
	id  int64
}

func (s *installationSource) Token() (*oauth2.Token, error) {
	return s.app.InstallationToken(s.ctx, s.id)
}

// InstallationToken returns an access token for the installation.
func (a *App) InstallationToken(ctx context.Context, installationID int64) (*oauth2.Token, error) {
	if tok, ok := a.tokens.Get(installationID); ok && tok.Expiry.After(a.now().Add(time.Minute)) {
		return tok, nil
	}

	it, _, err := a.apps.Apps.CreateInstallationToken(ctx, installationID, nil)
	if err != nil {
		return nil, classify(err, fmt.Sprintf("failed to create token for installation %d", installationID))
	}
	tok := &oauth2.Token{AccessToken: it.GetToken(), TokenType: "token", Expiry: it.GetExpiresAt().Time}
	a.tokens.Add(installationID, tok)
	log.Debug().Str("component", "github").Int64("installation", installationID).
		Time("expires", tok.Expiry).Msg("installation token issued")
	return tok, nil
}

// Client returns an API client acting as the installation, valid for the
// lifetime of ctx.
func (a *App) Client(ctx context.Context, installationID int64) (*gh.Client, error) {
	httpClient := oauth2.NewClient(ctx, &installationSource{ctx: ctx, app: a, id: installationID})
	return a.newClient(httpClient)
}

// FindInstallation returns the installation id of the app on owner/repo.
func (a *App) FindInstallation(ctx context.Context, owner, repo string) (int64, error) {
	inst, _, err := a.apps.Apps.FindRepositoryInstallation(ctx, owner, repo)
	if err != nil {
		return 0, classify(err, fmt.Sprintf("app is not installed on %s/%s", owner, repo))
	}
	return inst.GetID(), nil
}

// classify maps go-github errors to classified errors by HTTP status.
func classify(err error, msg string) error {
	var resp *gh.ErrorResponse
	if errors.As(err, &resp) && resp.Response != nil {
		detail := resp.Message
		if detail == "" {
			detail = resp.Error()
		}
		e := apperr.FromStatus(apperr.ServiceGitHub, resp.Response.StatusCode, msg+": "+detail)
		e.Err = err
		return e
	}
	return fmt.Errorf("%s: %w", msg, err)
}
