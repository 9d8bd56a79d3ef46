package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/airylvat/trivia-league/db"
	"github.com/airylvat/trivia-league/logging"
	"github.com/airylvat/trivia-league/metrics"
	"github.com/airylvat/trivia-league/trivia"
	"github.com/bwmarrin/discordgo"
)

// Broadcaster posts round traffic to Discord channels.
type Broadcaster struct {
	out    Messenger
	logger *logging.Logger
}

func NewBroadcaster(out Messenger, logger *logging.Logger) *Broadcaster {
	if logger == nil {
		logger = logging.Default()
	}
	return &Broadcaster{out: out, logger: logger.Component("broadcast")}
}

func (b *Broadcaster) SendMessage(_ context.Context, chatID, text string) error {
	err := b.out.ChannelMessageSend(chatID, text)
	countSend(err)
	return err
}

func (b *Broadcaster) SendQuestion(_ context.Context, chatID string, post trivia.QuestionPost) error {
	b.logger.Debug("posting question", "chat_id", chatID, "round_id", post.RoundID.String(), "number", post.Number)
	err := b.out.ChannelMessageSendEmbed(chatID, QuestionEmbed(post))
	countSend(err)
	return err
}

// QuestionEmbed renders a question with its four options.
func QuestionEmbed(post trivia.QuestionPost) *discordgo.MessageEmbed {
	lines := []string{strings.TrimSpace(post.Prompt), ""}
	for _, l := range db.Labels {
		lines = append(lines, fmt.Sprintf("**%s)** %s", l, post.Options[l]))
	}

	title := fmt.Sprintf("Trivia Question %d/%d", post.Number, post.Total)
	if post.Category != "" {
		title += " · " + post.Category
	}

	return &discordgo.MessageEmbed{
		Title:       title,
		Description: strings.Join(lines, "\n"),
		Color:       0x00ff00, // Green sidebar
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("You have %s. Use !!trivia answer A|B|C|D. Only your first answer counts.", post.Window),
		},
		Timestamp: post.Deadline.UTC().Format(time.RFC3339),
	}
}

// AdminAlerter DMs every configured admin.
type AdminAlerter struct {
	out      Messenger
	adminIDs []string
	logger   *logging.Logger
}

func NewAdminAlerter(out Messenger, adminIDs []string, logger *logging.Logger) *AdminAlerter {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminAlerter{out: out, adminIDs: adminIDs, logger: logger.Component("alerts")}
}

// SendAlert tries every admin and returns the joined failures.
func (a *AdminAlerter) SendAlert(_ context.Context, subject, message string) error {
	a.logger.Warn("admin alert", "subject", subject, "message", message)

	var errs []error
	for _, id := range a.adminIDs {
		err := a.out.UserDM(id, fmt.Sprintf("**%s**\n%s", subject, message))
		countSend(err)
		if err != nil {
			errs = append(errs, fmt.Errorf("admin %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func countSend(err error) {
	if err != nil {
		metrics.ChatMessagesSent.WithLabelValues("error").Inc()
		return
	}
	metrics.ChatMessagesSent.WithLabelValues("ok").Inc()
}
