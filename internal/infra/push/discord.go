package push

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	dwh "github.com/nat-echlin/dwhooks"
)

const discordEmbedColour = 0xE67E22 // orange

// discordWebhookBackend posts an embed to a Discord webhook.
type discordWebhookBackend struct {
	id  string
	url string
}

func newDiscordWebhookBackend(parts []string) (*discordWebhookBackend, error) {
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("%w: discord needs <webhook_id>/<webhook_token>", ErrInvalidURL)
	}
	return &discordWebhookBackend{
		id:  parts[0],
		url: fmt.Sprintf("https://discord.com/api/webhooks/%s/%s", parts[0], parts[1]),
	}, nil
}

func (b *discordWebhookBackend) Name() string {
	return "discord://" + b.id
}

func (b *discordWebhookBackend) Send(_ context.Context, title, body string) error {
	emb := dwh.NewEmbed()
	emb.SetTitle(title)
	emb.SetDescription(body)
	emb.SetColour(discordEmbedColour)

	msg := dwh.NewMessage("")
	msg.SetUsername("Warranty Reminders")
	msg.AddEmbed(emb)

	status, err := dwh.NewWebhook(b.url).Send(msg)
	if err != nil || status < 200 || status > 299 {
		return fmt.Errorf("status: %d, err: %v", status, err)
	}
	return nil
}

// discordBotBackend posts a channel message as a bot user.
type discordBotBackend struct {
	session   *discordgo.Session
	channelID string
}

func newDiscordBotBackend(parts []string, opts Options) (*discordBotBackend, error) {
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("%w: discordbot needs <bot_token>/<channel_id>", ErrInvalidURL)
	}
	session, err := discordgo.New("Bot " + parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: discord session: %v", ErrInvalidURL, err)
	}
	session.Client = opts.HTTPClient
	return &discordBotBackend{session: session, channelID: parts[1]}, nil
}

func (b *discordBotBackend) Name() string {
	return "discordbot://" + b.channelID
}

func (b *discordBotBackend) Send(_ context.Context, title, body string) error {
	_, err := b.session.ChannelMessageSend(b.channelID, text(title, body))
	return err
}
