package slack

import (
	"context"
	"fmt"
	stdlog "log"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	slacklib "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

// SocketListener receives slash commands, interactions and messages over
// Socket Mode (an outbound WebSocket) and hands them to the same Handler
// that serves the HTTP request URL.
type SocketListener struct {
	smClient   *socketmode.Client
	handler    *Handler
	connected  atomic.Bool
	eventCount atomic.Int64
	logger     zerolog.Logger
}

// NewSocketListener creates a Socket Mode listener. appToken is the
// app-level token (xapp-...) with connections:write scope. Wire-level
// logging follows the debug log level.
func NewSocketListener(appToken, botToken string, handler *Handler) *SocketListener {
	logger := log.With().Str("component", "socket-mode").Logger()
	debug := zerolog.GlobalLevel() <= zerolog.DebugLevel

	apiOpts := []slacklib.Option{slacklib.OptionAppLevelToken(appToken)}
	smOpts := []socketmode.Option{}
	if debug {
		wire := stdlog.New(logger, "", 0)
		apiOpts = append(apiOpts, slacklib.OptionDebug(true), slacklib.OptionLog(wire))
		smOpts = append(smOpts, socketmode.OptionDebug(true), socketmode.OptionLog(wire))
	}

	api := slacklib.New(botToken, apiOpts...)
	return &SocketListener{
		smClient: socketmode.New(api, smOpts...),
		handler:  handler,
		logger:   logger,
	}
}

// Run connects to Slack and processes events until ctx is done. It
// reconnects on its own after connection errors.
func (sl *SocketListener) Run(ctx context.Context) error {
	go sl.handleEvents(ctx)

	sl.logger.Info().Msg("connecting to Slack")
	if err := sl.smClient.RunContext(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("socket mode: %w", err)
	}
	return nil
}

func (sl *SocketListener) handleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sl.smClient.Events:
			if !ok {
				sl.logger.Info().Msg("event channel closed, listener stopped")
				return
			}
			sl.eventCount.Add(1)
			sl.handleEvent(evt)
		}
	}
}

func (sl *SocketListener) handleEvent(evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		if sl.connected.Load() {
			sl.logger.Info().Msg("reconnecting")
		}

	case socketmode.EventTypeConnected:
		if !sl.connected.Swap(true) {
			sl.logger.Info().Int64("events", sl.eventCount.Load()).Msg("connected")
		}

	case socketmode.EventTypeConnectionError:
		sl.connected.Store(false)
		sl.logger.Warn().Msg("connection error, will retry")

	case socketmode.EventTypeEventsAPI:
		sl.ack(evt, nil)
		event, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok || event.Type != slackevents.CallbackEvent {
			return
		}
		if msg, ok := event.InnerEvent.Data.(*slackevents.MessageEvent); ok {
			sl.handler.Message(msg)
		}

	case socketmode.EventTypeInteractive:
		sl.ack(evt, nil)
		if cb, ok := evt.Data.(slacklib.InteractionCallback); ok {
			sl.handler.Interaction(cb)
		}

	case socketmode.EventTypeSlashCommand:
		cmd, ok := evt.Data.(slacklib.SlashCommand)
		if !ok {
			sl.logger.Warn().Str("data", fmt.Sprintf("%T", evt.Data)).Msg("unexpected slash command payload")
			sl.ack(evt, nil)
			return
		}
		sl.ack(evt, map[string]interface{}{"text": "Processing your request..."})
		sl.logger.Info().Str("command", cmd.Command).Str("channel", cmd.ChannelID).Str("user", cmd.UserID).Msg("slash command")
		sl.handler.SlashCommand(cmd)

	default:
		sl.logger.Debug().Str("type", string(evt.Type)).Msg("unhandled event")
		sl.ack(evt, nil)
	}
}

// ack acknowledges the envelope so Slack does not redeliver it.
func (sl *SocketListener) ack(evt socketmode.Event, payload interface{}) {
	if evt.Request == nil {
		return
	}
	if payload != nil {
		sl.smClient.Ack(*evt.Request, payload)
		return
	}
	sl.smClient.Ack(*evt.Request)
}
