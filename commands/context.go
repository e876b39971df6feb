package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	slacklib "github.com/slack-go/slack"
)

const (
	channelMessageLimit = 20
	channelCacheTTL     = 30 * time.Second
	maxCachedChannels   = 128
)

// ChannelContext renders recent channel messages as context for chat
// replies. Histories are cached briefly per channel.
type ChannelContext struct {
	history History
	cache   *expirable.LRU[string, []slacklib.Message]
}

func NewChannelContext(history History) *ChannelContext {
	return &ChannelContext{
		history: history,
		cache:   expirable.NewLRU[string, []slacklib.Message](maxCachedChannels, nil, channelCacheTTL),
	}
}

// Describe returns the recent messages of the channel, newest first.
func (c *ChannelContext) Describe(ctx context.Context, channelID string) (string, error) {
	if msgs, ok := c.cache.Get(channelID); ok {
		return formatMessages(msgs), nil
	}
	msgs, err := c.history.FetchChannelHistory(ctx, channelID, channelMessageLimit)
	if err != nil {
		return "", fmt.Errorf("failed to fetch channel context: %w", err)
	}
	c.cache.Add(channelID, msgs)
	return formatMessages(msgs), nil
}

func formatMessages(messages []slacklib.Message) string {
	var sb strings.Builder
	n := 0
	for _, msg := range messages {
		text := messageContent(msg)
		if text == "" {
			continue
		}
		n++
		sender := msg.User
		if sender == "" && msg.Username != "" {
			sender = msg.Username
		}
		if sender == "" && msg.BotID != "" {
			sender = "bot:" + msg.BotID
		}
		ts := msg.Timestamp
		if t, err := slackTime(ts); err == nil {
			ts = t.UTC().Format("15:04:05")
		}
		fmt.Fprintf(&sb, "Message %d [%s @%s]: %s\n", n, ts, sender, text)
	}
	if n == 0 {
		return "(no recent messages)"
	}
	return "Recent channel messages, newest first:\n" + sb.String()
}

// messageContent flattens a message and its attachments into text.
func messageContent(msg slacklib.Message) string {
	var parts []string
	if msg.Text != "" {
		parts = append(parts, msg.Text)
	}
	for _, att := range msg.Attachments {
		var lines []string
		if att.Pretext != "" {
			lines = append(lines, att.Pretext)
		}
		if att.Title != "" {
			title := att.Title
			if att.TitleLink != "" {
				title += " (" + att.TitleLink + ")"
			}
			lines = append(lines, title)
		}
		if att.Text != "" {
			lines = append(lines, att.Text)
		}
		for _, f := range att.Fields {
			lines = append(lines, f.Title+": "+f.Value)
		}
		if len(lines) == 0 && att.Fallback != "" {
			lines = append(lines, att.Fallback)
		}
		if len(lines) > 0 {
			parts = append(parts, strings.Join(lines, "\n"))
		}
	}
	return strings.Join(parts, "\n---\n")
}

// slackTime parses a Slack message timestamp such as "1712345678.000200".
func slackTime(ts string) (time.Time, error) {
	sec, _, _ := strings.Cut(ts, ".")
	n, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", ts, err)
	}
	return time.Unix(n, 0), nil
}
