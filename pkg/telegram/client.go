// Package telegram sends deal notifications through a Telegram bot.
package telegram

import (
	"context"
	"fmt"
	"html"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/rotisserie/eris"
)

// Client delivers notification messages to a Telegram chat.
type Client interface {
	Push(ctx context.Context, msg Message) error
}

// Message is a notification to deliver.
type Message struct {
	Title string
	Body  string
	URL   string
}

type sender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

type botClient struct {
	bot    sender
	chatID int64
}

// NewClient creates a Telegram client for the given bot token and chat.
func NewClient(token string, chatID int64) (Client, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, eris.Wrap(err, "telegram: create bot")
	}
	return &botClient{bot: bot, chatID: chatID}, nil
}

func (c *botClient) Push(ctx context.Context, msg Message) error {
	params := tu.Message(tu.ID(c.chatID), formatHTML(msg)).WithParseMode(telego.ModeHTML)
	if _, err := c.bot.SendMessage(ctx, params); err != nil {
		return eris.Wrap(err, "telegram: send message")
	}
	return nil
}

func formatHTML(msg Message) string {
	text := msg.Body
	if msg.Title != "" {
		text = fmt.Sprintf("<b>%s</b>\n\n%s", html.EscapeString(msg.Title), html.EscapeString(msg.Body))
	} else {
		text = html.EscapeString(text)
	}
	if msg.URL != "" {
		text += fmt.Sprintf("\n\n<a href=\"%s\">View deal</a>", html.EscapeString(msg.URL))
	}
	return text
}
