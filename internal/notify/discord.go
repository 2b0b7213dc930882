package notify

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// webhookExecutor is the part of the discordgo session used by the sink.
type webhookExecutor interface {
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordSink posts events to a Discord channel webhook.
type DiscordSink struct {
	session webhookExecutor
	id      string
	token   string
}

// NewDiscordSink parses a webhook URL of the form
// https://discord.com/api/webhooks/<id>/<token>.
func NewDiscordSink(webhookURL string) (*DiscordSink, error) {
	id, token, err := parseWebhookURL(webhookURL)
	if err != nil {
		return nil, err
	}
	session, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("notify: discord session: %w", err)
	}
	return &DiscordSink{session: session, id: id, token: token}, nil
}

func (s *DiscordSink) Name() string { return "discord" }

func (s *DiscordSink) Notify(ctx context.Context, ev Event) error {
	_, err := s.session.WebhookExecute(s.id, s.token, false, buildWebhookParams(ev), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("notify: discord webhook: %w", err)
	}
	return nil
}

func buildWebhookParams(ev Event) *discordgo.WebhookParams {
	embed := &discordgo.MessageEmbed{
		Title:       ev.Title,
		Description: ev.Body,
		Color:       parseHexColor(color(ev.Kind)),
	}
	for _, k := range sortedKeys(ev.Fields) {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: k, Value: ev.Fields[k], Inline: true})
	}
	return &discordgo.WebhookParams{Embeds: []*discordgo.MessageEmbed{embed}}
}

func parseWebhookURL(raw string) (id, token string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("notify: discord webhook url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", fmt.Errorf("notify: discord webhook url %q has no /webhooks/<id>/<token>", raw)
}

// parseHexColor converts "#36a64f" to an int.
func parseHexColor(hex string) int {
	v, err := strconv.ParseInt(strings.TrimPrefix(hex, "#"), 16, 32)
	if err != nil {
		return 0
	}
	return int(v)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
