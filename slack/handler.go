package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	slacklib "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/justmike1/devx/commands"
)

const (
	maxBodyBytes = 1 << 20
	// Commands outlive the request that triggered them; LLM calls are slow.
	commandTimeout = 5 * time.Minute
)

// Dispatcher carries out what arrives from Slack.
type Dispatcher interface {
	Handle(ctx context.Context, cmd commands.SlashCommand, out commands.Responder)
	HandleAction(ctx context.Context, action commands.Action, out commands.Responder)
	HandleMessage(ctx context.Context, channelID, text string, out commands.Responder)
}

// Handler serves the Slack request URL: slash commands, interactive
// payloads and Events API callbacks. Work is acknowledged at once and done
// in the background.
type Handler struct {
	signingSecret string
	client        *Client
	dispatcher    Dispatcher
	botUserID     string
	wg            sync.WaitGroup
}

func NewHandler(signingSecret string, client *Client, dispatcher Dispatcher, botUserID string) *Handler {
	return &Handler{
		signingSecret: signingSecret,
		client:        client,
		dispatcher:    dispatcher,
		botUserID:     botUserID,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	verifier, err := slacklib.NewSecretsVerifier(r.Header, h.signingSecret)
	if err != nil {
		log.Warn().Err(err).Str("component", "slack").Msg("failed to create secrets verifier")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if _, err := verifier.Write(body); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if err := verifier.Ensure(); err != nil {
		log.Warn().Err(err).Str("component", "slack").Msg("signature verification failed")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		h.serveEvent(w, body)
		return
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if payload := form.Get("payload"); payload != "" {
		var cb slacklib.InteractionCallback
		if err := json.Unmarshal([]byte(payload), &cb); err != nil {
			log.Warn().Err(err).Str("component", "slack").Msg("failed to parse interaction payload")
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
		h.Interaction(cb)
		return
	}

	r.Body = io.NopCloser(bytes.NewReader(body))
	cmd, err := slacklib.SlashCommandParse(r)
	if err != nil {
		log.Warn().Err(err).Str("component", "slack").Msg("failed to parse slash command")
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Processing your request..."))
	h.SlashCommand(cmd)
}

func (h *Handler) serveEvent(w http.ResponseWriter, body []byte) {
	event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		log.Warn().Err(err).Str("component", "slack").Msg("failed to parse event")
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	switch event.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(challenge.Challenge))
	case slackevents.CallbackEvent:
		w.WriteHeader(http.StatusOK)
		if msg, ok := event.InnerEvent.Data.(*slackevents.MessageEvent); ok {
			h.Message(msg)
		}
	default:
		w.WriteHeader(http.StatusOK)
	}
}

// SlashCommand runs a /devx command in the background.
func (h *Handler) SlashCommand(sc slacklib.SlashCommand) {
	cmd := commands.Parse(sc.Text)
	cmd.ChannelID = sc.ChannelID
	cmd.UserID = sc.UserID
	out := h.responder(sc.ResponseURL, sc.ChannelID)
	h.background(func(ctx context.Context) {
		h.dispatcher.Handle(ctx, cmd, out)
	})
}

// Interaction runs a form button press in the background.
func (h *Handler) Interaction(cb slacklib.InteractionCallback) {
	if cb.Type != slacklib.InteractionTypeBlockActions || len(cb.ActionCallback.BlockActions) == 0 {
		log.Debug().Str("component", "slack").Str("type", string(cb.Type)).Msg("interaction ignored")
		return
	}
	pressed := cb.ActionCallback.BlockActions[0]
	action := commands.Action{
		ID:        pressed.ActionID,
		Value:     pressed.Value,
		UserID:    cb.User.ID,
		ChannelID: cb.Channel.ID,
		Values:    map[string]map[string]string{},
	}
	if cb.BlockActionState != nil {
		for blockID, inputs := range cb.BlockActionState.Values {
			action.Values[blockID] = map[string]string{}
			for actionID, input := range inputs {
				action.Values[blockID][actionID] = input.Value
			}
		}
	}
	out := h.responder(cb.ResponseURL, cb.Channel.ID)
	h.background(func(ctx context.Context) {
		h.dispatcher.HandleAction(ctx, action, out)
	})
}

// Message passes user messages to the dispatcher. Edits, bot posts and the
// bot's own messages are skipped.
func (h *Handler) Message(ev *slackevents.MessageEvent) {
	if ev.SubType != "" || ev.BotID != "" || (h.botUserID != "" && ev.User == h.botUserID) {
		return
	}
	out := channelResponder{client: h.client, channel: ev.Channel}
	h.background(func(ctx context.Context) {
		h.dispatcher.HandleMessage(ctx, ev.Channel, ev.Text, out)
	})
}

func (h *Handler) responder(responseURL, channelID string) commands.Responder {
	if responseURL != "" {
		return urlResponder{url: responseURL}
	}
	return channelResponder{client: h.client, channel: channelID}
}

func (h *Handler) background(run func(ctx context.Context)) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		run(ctx)
	}()
}

// Wait blocks until background work has finished.
func (h *Handler) Wait() {
	h.wg.Wait()
}
