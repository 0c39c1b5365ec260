package notify

import (
	"context"
	"fmt"

	slackgo "github.com/slack-go/slack"

	"github.com/cronboard/cronboard/internal/synchronizer"
)

// SlackNotifier posts transitions to a Slack channel.
type SlackNotifier struct {
	client    *slackgo.Client
	channelID string
}

// NewSlackNotifier creates a notifier using a bot token. opts are passed to
// the Slack client (e.g. slackgo.OptionAPIURL for a self-hosted proxy).
func NewSlackNotifier(botToken, channelID string, opts ...slackgo.Option) (*SlackNotifier, error) {
	if botToken == "" || channelID == "" {
		return nil, fmt.Errorf("slack: bot token and channel id are required")
	}
	return &SlackNotifier{client: slackgo.New(botToken, opts...), channelID: channelID}, nil
}

func (s *SlackNotifier) Name() string { return "slack" }

func (s *SlackNotifier) Notify(ctx context.Context, tr synchronizer.Transition) error {
	_, _, err := s.client.PostMessageContext(ctx, s.channelID,
		slackgo.MsgOptionText(FormatText(tr), false))
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}
