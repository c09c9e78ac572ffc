package discord

import "context"

type FileMessage struct {
	ChannelID string
	Content   string
	Filename  string
	FileBody  []byte
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

type Embed struct {
	Title       string
	Description string
	Color       int
	Fields      []EmbedField
}

type ButtonStyle int

const (
	ButtonPrimary ButtonStyle = iota + 1
	ButtonSecondary
	ButtonSuccess
	ButtonDanger
)

type Button struct {
	CustomID string
	Label    string
	Style    ButtonStyle
}

type SelectOption struct {
	Label string
	Value string
}

type SelectMenu struct {
	CustomID    string
	Placeholder string
	Options     []SelectOption
}

// Message is a rich message. Buttons and Select render as separate action rows.
type Message struct {
	Content string
	Embeds  []Embed
	Buttons []Button
	Select  *SelectMenu
}

type MessageEvent struct {
	GuildID         string
	ChannelID       string
	ParentChannelID string
	AuthorID        string
	AuthorIsBot     bool
	Content         string
	MentionsBot     bool
	Reply           func(msg Message) error
}

type ComponentEvent struct {
	GuildID   string
	ChannelID string
	UserID    string
	CustomID  string
	Values    []string
	Responder *Responder
}

type Client interface {
	Connect(ctx context.Context) error
	Close() error
	SendChannelMessage(channelID, content string) error
	SendChannelComplex(channelID string, msg Message) error
	SendChannelMessageWithFile(msg FileMessage) error
	SendDirectMessage(userID string, msg Message) error
	RegisterMessageHandler(handler func(MessageEvent))
	RegisterComponentHandler(handler func(ComponentEvent))
	GetBotUserID() (string, error)
	Run() error
}
