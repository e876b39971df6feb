package commands

import (
	"context"
	"regexp"

	"github.com/rs/zerolog/log"
)

var helpWord = regexp.MustCompile(`(?i)\bhelp\b`)

// HandleMessage answers channel messages asking for help. Other messages
// are ignored.
func (d *Dispatcher) HandleMessage(ctx context.Context, channelID, text string, out Responder) {
	if !helpWord.MatchString(text) {
		return
	}
	logger := log.With().Str("component", "commands").Str("channel", channelID).Logger()

	msgContext := "User asked for help with DevX"
	if d.channels != nil {
		recent, err := d.channels.Describe(ctx, channelID)
		if err != nil {
			logger.Warn().Err(err).Msg("could not read channel history")
		} else {
			msgContext += "\n\n" + recent
		}
	}

	reply, err := d.composer.ChatReply(ctx, text, msgContext)
	if err != nil {
		d.fail(ctx, logger, err, out)
		return
	}
	if err := out.Respond(ctx, Reply{Text: reply}); err != nil {
		logger.Error().Err(err).Msg("failed to post help reply")
	}
}
