package slack

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/justmike1/devx/commands"
)

type Client struct {
	api *slack.Client
}

func NewClient(botToken string, opts ...slack.Option) *Client {
	return &Client{api: slack.New(botToken, opts...)}
}

func (c *Client) FetchChannelHistory(ctx context.Context, channelID string, limit int) ([]slack.Message, error) {
	params := &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Limit:     limit,
	}

	resp, err := c.api.GetConversationHistoryContext(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch channel history: %w", err)
	}

	return resp.Messages, nil
}

// PostReply posts reply to the channel, as blocks when it has any.
func (c *Client) PostReply(ctx context.Context, channelID string, reply commands.Reply) (string, error) {
	_, ts, err := c.api.PostMessageContext(ctx, channelID, messageOptions(reply)...)
	if err != nil {
		return "", fmt.Errorf("failed to post message: %w", err)
	}
	return ts, nil
}

// BotUserID returns the Slack user ID of the bot token.
func (c *Client) BotUserID(ctx context.Context) (string, error) {
	resp, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to call auth.test: %w", err)
	}
	return resp.UserID, nil
}

func messageOptions(reply commands.Reply) []slack.MsgOption {
	opts := []slack.MsgOption{slack.MsgOptionText(reply.Text, false)}
	if len(reply.Blocks) > 0 {
		opts = append(opts, slack.MsgOptionBlocks(reply.Blocks...))
	}
	return opts
}

// RespondToURL answers a slash command or interaction through its
// response_url.
func RespondToURL(ctx context.Context, responseURL string, reply commands.Reply) error {
	msg := &slack.WebhookMessage{
		ResponseType: "in_channel",
		Text:         reply.Text,
	}
	if len(reply.Blocks) > 0 {
		msg.Blocks = &slack.Blocks{BlockSet: reply.Blocks}
	}
	if err := slack.PostWebhookContext(ctx, responseURL, msg); err != nil {
		return fmt.Errorf("failed to post to response_url: %w", err)
	}
	return nil
}

// urlResponder replies through a response_url.
type urlResponder struct {
	url string
}

func (r urlResponder) Respond(ctx context.Context, reply commands.Reply) error {
	return RespondToURL(ctx, r.url, reply)
}

// channelResponder replies with a new channel message.
type channelResponder struct {
	client  *Client
	channel string
}

func (r channelResponder) Respond(ctx context.Context, reply commands.Reply) error {
	_, err := r.client.PostReply(ctx, r.channel, reply)
	return err
}
