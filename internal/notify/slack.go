package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// SlackSink posts events to a Slack incoming webhook.
type SlackSink struct {
	url string
}

// NewSlackSink creates a Slack webhook sink.
func NewSlackSink(url string) *SlackSink {
	return &SlackSink{url: url}
}

func (s *SlackSink) Name() string { return "slack" }

func (s *SlackSink) Notify(ctx context.Context, ev Event) error {
	if err := slack.PostWebhookContext(ctx, s.url, buildWebhookMessage(ev)); err != nil {
		return fmt.Errorf("notify: slack webhook: %w", err)
	}
	return nil
}

func buildWebhookMessage(ev Event) *slack.WebhookMessage {
	att := slack.Attachment{
		Title:    ev.Title,
		Text:     ev.Body,
		Color:    color(ev.Kind),
		Fallback: ev.Title,
	}
	for _, k := range sortedKeys(ev.Fields) {
		att.Fields = append(att.Fields, slack.AttachmentField{Title: k, Value: ev.Fields[k], Short: true})
	}
	return &slack.WebhookMessage{
		Text:        ev.Title,
		Attachments: []slack.Attachment{att},
	}
}
