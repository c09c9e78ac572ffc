package discord

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bwmarrin/discordgo"
	discordpkg "github.com/foxseedlab/nyukoku/internal/discord"
)

type Client struct {
	session   *discordgo.Session
	token     string
	botUserID string
}

func NewClient(token string) discordpkg.Client {
	return &Client{
		token: token,
	}
}

func (c *Client) Connect(ctx context.Context) error {
	_ = ctx
	s, err := discordgo.New("Bot " + c.token)
	if err != nil {
		return err
	}
	c.session = s
	s.Identify.Intents = discordgo.MakeIntent(
		discordgo.IntentsGuilds |
			discordgo.IntentsGuildMessages |
			discordgo.IntentsDirectMessages |
			discordgo.IntentsMessageContent,
	)
	if err := s.Open(); err != nil {
		return err
	}
	userID, err := c.GetBotUserID()
	if err != nil {
		return err
	}
	c.botUserID = userID
	return nil
}

func (c *Client) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}

func (c *Client) SendChannelMessage(channelID, content string) error {
	_, err := c.session.ChannelMessageSend(channelID, content)
	return err
}

func (c *Client) SendChannelComplex(channelID string, msg discordpkg.Message) error {
	_, err := c.session.ChannelMessageSendComplex(channelID, toMessageSend(msg))
	return err
}

func (c *Client) SendChannelMessageWithFile(msg discordpkg.FileMessage) error {
	_, err := c.session.ChannelMessageSendComplex(msg.ChannelID, &discordgo.MessageSend{
		Content: msg.Content,
		Files: []*discordgo.File{
			{Name: msg.Filename, ContentType: "text/plain", Reader: bytes.NewReader(msg.FileBody)},
		},
	})
	return err
}

func (c *Client) SendDirectMessage(userID string, msg discordpkg.Message) error {
	ch, err := c.session.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("open dm channel: %w", err)
	}
	_, err = c.session.ChannelMessageSendComplex(ch.ID, toMessageSend(msg))
	return err
}

func (c *Client) RegisterMessageHandler(handler func(discordpkg.MessageEvent)) {
	c.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m == nil || m.Message == nil || m.Author == nil {
			return
		}
		if m.Author.ID == c.botUserID {
			return
		}
		handler(discordpkg.MessageEvent{
			GuildID:         m.GuildID,
			ChannelID:       m.ChannelID,
			ParentChannelID: c.resolveParentChannelID(m.ChannelID),
			AuthorID:        m.Author.ID,
			AuthorIsBot:     m.Author.Bot,
			Content:         m.Content,
			MentionsBot:     c.mentionsBot(m.Message),
			Reply: func(msg discordpkg.Message) error {
				send := toMessageSend(msg)
				send.Reference = m.Reference()
				_, err := s.ChannelMessageSendComplex(m.ChannelID, send)
				return err
			},
		})
	})
}

func (c *Client) RegisterComponentHandler(handler func(discordpkg.ComponentEvent)) {
	c.session.AddHandler(func(s *discordgo.Session, ic *discordgo.InteractionCreate) {
		if ic == nil || ic.Type != discordgo.InteractionMessageComponent {
			return
		}
		data := ic.MessageComponentData()
		if data.CustomID == "" {
			return
		}
		userID := ""
		if ic.Member != nil && ic.Member.User != nil {
			userID = ic.Member.User.ID
		}
		if userID == "" && ic.User != nil {
			userID = ic.User.ID
		}
		if userID == "" {
			return
		}
		slog.Info("component interaction received", "guild_id", ic.GuildID, "channel_id", ic.ChannelID, "custom_id", data.CustomID, "user_id", userID)
		handler(discordpkg.ComponentEvent{
			GuildID:   ic.GuildID,
			ChannelID: ic.ChannelID,
			UserID:    userID,
			CustomID:  data.CustomID,
			Values:    data.Values,
			Responder: newInteractionResponder(s, ic.Interaction),
		})
	})
}

func newInteractionResponder(s *discordgo.Session, in *discordgo.Interaction) *discordpkg.Responder {
	return discordpkg.NewResponder(discordpkg.ResponderFuncs{
		UpdateSource: func(msg discordpkg.Message) error {
			return s.InteractionRespond(in, &discordgo.InteractionResponse{
				Type: discordgo.InteractionResponseUpdateMessage,
				Data: toResponseData(msg, false),
			})
		},
		Defer: func() error {
			return s.InteractionRespond(in, &discordgo.InteractionResponse{
				Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
			})
		},
		Reply: func(msg discordpkg.Message, ephemeral bool) error {
			return s.InteractionRespond(in, &discordgo.InteractionResponse{
				Type: discordgo.InteractionResponseChannelMessageWithSource,
				Data: toResponseData(msg, ephemeral),
			})
		},
		EditReply: func(msg discordpkg.Message) error {
			content := msg.Content
			embeds := toEmbeds(msg.Embeds)
			components := toComponents(msg)
			_, err := s.InteractionResponseEdit(in, &discordgo.WebhookEdit{
				Content:    &content,
				Embeds:     &embeds,
				Components: &components,
			})
			return err
		},
		FollowUp: func(msg discordpkg.Message, ephemeral bool) error {
			params := &discordgo.WebhookParams{
				Content:    msg.Content,
				Embeds:     toEmbeds(msg.Embeds),
				Components: toComponents(msg),
			}
			if ephemeral {
				params.Flags = discordgo.MessageFlagsEphemeral
			}
			_, err := s.FollowupMessageCreate(in, true, params)
			return err
		},
	})
}

func toResponseData(msg discordpkg.Message, ephemeral bool) *discordgo.InteractionResponseData {
	data := &discordgo.InteractionResponseData{
		Content:    msg.Content,
		Embeds:     toEmbeds(msg.Embeds),
		Components: toComponents(msg),
	}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return data
}

func toMessageSend(msg discordpkg.Message) *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Content:    msg.Content,
		Embeds:     toEmbeds(msg.Embeds),
		Components: toComponents(msg),
	}
}

func toEmbeds(embeds []discordpkg.Embed) []*discordgo.MessageEmbed {
	out := make([]*discordgo.MessageEmbed, 0, len(embeds))
	for _, e := range embeds {
		fields := make([]*discordgo.MessageEmbedField, 0, len(e.Fields))
		for _, f := range e.Fields {
			fields = append(fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
		}
		out = append(out, &discordgo.MessageEmbed{
			Title:       e.Title,
			Description: e.Description,
			Color:       e.Color,
			Fields:      fields,
		})
	}
	return out
}

// toComponents always returns a non-nil slice so that edits clear stale rows.
func toComponents(msg discordpkg.Message) []discordgo.MessageComponent {
	rows := make([]discordgo.MessageComponent, 0, 2)
	if msg.Select != nil {
		options := make([]discordgo.SelectMenuOption, 0, len(msg.Select.Options))
		for _, o := range msg.Select.Options {
			options = append(options, discordgo.SelectMenuOption{Label: o.Label, Value: o.Value})
		}
		rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{
				MenuType:    discordgo.StringSelectMenu,
				CustomID:    msg.Select.CustomID,
				Placeholder: msg.Select.Placeholder,
				Options:     options,
			},
		}})
	}
	if len(msg.Buttons) > 0 {
		buttons := make([]discordgo.MessageComponent, 0, len(msg.Buttons))
		for _, b := range msg.Buttons {
			buttons = append(buttons, discordgo.Button{
				Label:    b.Label,
				Style:    toButtonStyle(b.Style),
				CustomID: b.CustomID,
			})
		}
		rows = append(rows, discordgo.ActionsRow{Components: buttons})
	}
	return rows
}

func toButtonStyle(style discordpkg.ButtonStyle) discordgo.ButtonStyle {
	switch style {
	case discordpkg.ButtonSecondary:
		return discordgo.SecondaryButton
	case discordpkg.ButtonSuccess:
		return discordgo.SuccessButton
	case discordpkg.ButtonDanger:
		return discordgo.DangerButton
	default:
		return discordgo.PrimaryButton
	}
}

func (c *Client) mentionsBot(m *discordgo.Message) bool {
	if c.botUserID == "" {
		return false
	}
	for _, u := range m.Mentions {
		if u != nil && u.ID == c.botUserID {
			return true
		}
	}
	return false
}

func (c *Client) resolveParentChannelID(channelID string) string {
	if c.session == nil {
		return ""
	}
	if c.session.State != nil {
		ch, err := c.session.State.Channel(channelID)
		if err == nil && ch != nil {
			return ch.ParentID
		}
	}

	// Cache may be cold right after bot startup; ask Discord API directly as fallback.
	ch, err := c.session.Channel(channelID)
	if err != nil {
		if !isRESTNotFound(err) {
			slog.Warn("failed to resolve channel parent", "error", err, "channel_id", channelID)
		}
		return ""
	}
	return ch.ParentID
}

func isRESTNotFound(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Response == nil {
		return false
	}
	return restErr.Response.StatusCode == http.StatusNotFound
}

func (c *Client) GetBotUserID() (string, error) {
	if c.botUserID != "" {
		return c.botUserID, nil
	}
	if c.session == nil {
		return "", fmt.Errorf("discord session is not initialized")
	}
	if c.session.State != nil && c.session.State.User != nil && c.session.State.User.ID != "" {
		c.botUserID = c.session.State.User.ID
		return c.botUserID, nil
	}
	u, err := c.session.User("@me")
	if err != nil {
		return "", err
	}
	c.botUserID = u.ID
	return c.botUserID, nil
}

func (c *Client) Run() error {
	select {}
}
