package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/justmike1/devx/commands"
	"github.com/justmike1/devx/config"
	"github.com/justmike1/devx/github"
	"github.com/justmike1/devx/jira"
	"github.com/justmike1/devx/llm"
	"github.com/justmike1/devx/prompts"
	devxslack "github.com/justmike1/devx/slack"
	"github.com/justmike1/devx/webhook"
)

const version = "0.1.0"

func main() {
	app := &cli.App{
		Name:    "devx",
		Usage:   "Jira, GitHub and Slack developer assistant",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from TOML `FILE` (environment variables still win)",
			},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the webhook and Slack server",
				Flags:  []cli.Flag{&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Override DEVX_PORT"}},
				Action: serve,
			},
			{
				Name:   "verify-signature",
				Usage:  "Print the X-Hub-Signature-256 header GitHub would send for a payload",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "secret", Usage: "Webhook secret", EnvVars: []string{"GITHUB_WEBHOOK_SECRET"}, Required: true},
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Read the payload from `FILE` instead of stdin"},
				},
				Action: verifySignature,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func setupLogging(level, format string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var out io.Writer = os.Stdout
	if format != "json" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

func serve(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if port := c.Int("port"); port != 0 {
		cfg.Server.Port = port
	}
	setupLogging(cfg.Server.LogLevel, cfg.Server.LogFormat)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := prompts.Load(cfg.Server.PromptsFile)
	if err != nil {
		return err
	}

	model, err := llm.NewModel(llm.Options{
		APIKey:     cfg.Azure.APIKey,
		Model:      cfg.Azure.Deployment,
		Endpoint:   cfg.Azure.Endpoint,
		APIVersion: cfg.Azure.APIVersion,
		BaseURL:    cfg.Azure.BaseURL,
	})
	if err != nil {
		return err
	}
	composer := llm.NewComposer(model, store)
	if cfg.UseAzure() {
		log.Info().Str("endpoint", cfg.Azure.Endpoint).Str("deployment", cfg.Azure.Deployment).Msg("using Azure OpenAI backend")
	} else {
		log.Info().Str("base_url", cfg.Azure.BaseURL).Str("model", cfg.Azure.Deployment).Msg("using OpenAI-compatible backend")
	}

	var jiraClient *jira.Client
	if cfg.JiraUseOAuth() {
		jiraClient, err = jira.NewOAuthClient(ctx, cfg.Jira.APIEndpoint, cfg.Jira.ClientID, cfg.Jira.ClientSecret)
		if err != nil {
			return err
		}
	} else {
		jiraClient = jira.NewClient(cfg.Jira.APIEndpoint, cfg.Jira.APIUser, cfg.Jira.APIToken)
	}
	tickets := jira.NewTickets(jiraClient, cfg.Jira.DefaultProject)
	log.Info().Str("auth", jiraClient.AuthMode()).Str("project", cfg.Jira.DefaultProject).Msg("Jira configured")

	key, err := github.LoadPrivateKey(cfg.GitHub.PrivateKey)
	if err != nil {
		return err
	}
	ghApp, err := github.NewApp(cfg.GitHub.AppID, key, cfg.GitHub.EnterpriseURL)
	if err != nil {
		return err
	}
	reviewer := github.NewReviewer(ghApp, composer, tickets, cfg.GitHub.ReviewTrigger)
	log.Info().Int64("app_id", cfg.GitHub.AppID).Bool("enterprise", cfg.GitHubEnterprise()).Msg("GitHub App configured")

	slackClient := devxslack.NewClient(cfg.Slack.BotToken)
	botUserID, err := slackClient.BotUserID(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("could not resolve bot user id, own messages will not be filtered by id")
	}
	dispatcher := commands.NewDispatcher(tickets, reviewer, composer, commands.NewChannelContext(slackClient))
	slackHandler := devxslack.NewHandler(cfg.Slack.SigningSecret, slackClient, dispatcher, botUserID)

	clients := newClientResolver(cfg.Server.TrustedProxyCIDRs)
	githubWebhook := ipAllowlist(cfg.Server.WebhookAllowedCIDRs, clients,
		rateLimit(cfg.Server.WebhookRateLimit, clients,
			webhook.NewRouter(webhook.NewVerifier(cfg.GitHub.WebhookSecret), reviewer, cfg.GitHub.HandlePullRequestEvents)))

	mux := http.NewServeMux()
	mux.Handle("/github/webhook", githubWebhook)
	mux.Handle("/slack/events", slackHandler)
	mux.HandleFunc("/health", webhook.Health)

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           requestID(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.SocketMode() {
		listener := devxslack.NewSocketListener(cfg.Slack.AppToken, cfg.Slack.BotToken, slackHandler)
		go func() {
			if err := listener.Run(ctx); err != nil {
				log.Error().Err(err).Msg("socket mode stopped")
			}
		}()
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("devx server starting")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		slackHandler.Wait()
	}
	return nil
}

func verifySignature(c *cli.Context) error {
	var in io.Reader = os.Stdin
	if path := c.String("file"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	body, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("failed to read payload: %w", err)
	}
	fmt.Fprintln(c.App.Writer, webhook.Sign(c.String("secret"), body))
	return nil
}
