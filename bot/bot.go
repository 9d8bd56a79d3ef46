package bot

import (
	"context"
	"slices"
	"time"

	"github.com/airylvat/trivia-league/config"
	"github.com/airylvat/trivia-league/db"
	"github.com/airylvat/trivia-league/logging"
	"github.com/airylvat/trivia-league/payout"
	"github.com/airylvat/trivia-league/trivia"
	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
)

// Messenger is the slice of the Discord API the bot talks through.
type Messenger interface {
	ChannelMessageSend(channelID, content string) error
	ChannelMessageSendReply(channelID, content string, ref *discordgo.MessageReference) error
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed) error
	UserDM(userID, content string) error
	MemberRoles(guildID, userID string) ([]string, error)
}

// Rounds runs per-channel question rounds.
type Rounds interface {
	StartRound(ctx context.Context, chatID string, questionCount int) error
	SubmitAnswer(ctx context.Context, chatID string, player trivia.Player, label db.Label) error
	Abort(chatID string) bool
	Status(chatID string) trivia.Status
	ActiveRounds() int
	AnswerWindow() time.Duration
}

// Store is the user and score data the commands touch.
type Store interface {
	UpsertUser(ctx context.Context, id, username string) error
	GetOrCreate(ctx context.Context, userID, weekKey string) (*db.WeeklyScore, error)
	GetScore(ctx context.Context, userID, weekKey string) (*db.WeeklyScore, error)
	SetWallet(ctx context.Context, userID, address string) error
}

// Board renders the chat leaderboard.
type Board interface {
	Render(ctx context.Context, weekKey string, n int) (string, error)
}

// Exports runs the weekly export on demand.
type Exports interface {
	RunOnce(ctx context.Context, trigger string) (string, error)
}

// Payouts computes the weekly payout.
type Payouts interface {
	ComputeShares(ctx context.Context, weekKey string, winnersCount int, pool int64) (*payout.Report, error)
}

// Deps is everything the bot is wired to.
type Deps struct {
	Settings *config.Settings
	Session  *discordgo.Session
	Out      Messenger
	Rounds   Rounds
	Store    Store
	Board    Board
	Exports  Exports
	Payouts  Payouts
	Logger   *logging.Logger
}

type Bot struct {
	session  *discordgo.Session
	out      Messenger
	settings *config.Settings
	rounds   Rounds
	store    Store
	board    Board
	exports  Exports
	payouts  Payouts
	now      func() time.Time
	logger   *logging.Logger
}

// NewSession creates the Discord session with the intents the bot needs.
func NewSession(token string) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create discord session")
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent
	return session, nil
}

func NewBot(deps Deps) *Bot {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	b := &Bot{
		session:  deps.Session,
		out:      deps.Out,
		settings: deps.Settings,
		rounds:   deps.Rounds,
		store:    deps.Store,
		board:    deps.Board,
		exports:  deps.Exports,
		payouts:  deps.Payouts,
		now:      time.Now,
		logger:   logger.Component("bot"),
	}
	if b.session != nil {
		b.session.AddHandler(b.handleMessage)
	}
	return b
}

// Run opens the gateway connection and holds it until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return errors.Wrap(err, "failed to open discord session")
	}
	if u := b.session.State.User; u != nil {
		b.logger.Info("bot is running", "user", u.Username, "user_id", u.ID)
	}
	b.logger.Info("bot configured",
		"admin_ids", b.settings.AdminIDs,
		"admin_role_id", b.settings.AdminRoleID,
		"allowed_channels", b.settings.AllowedChannels)

	<-ctx.Done()
	if err := b.session.Close(); err != nil {
		return errors.Wrap(err, "failed to close discord session")
	}
	return nil
}

// incoming is a chat message reduced to what the commands need.
type incoming struct {
	MessageID  string
	ChannelID  string
	GuildID    string
	AuthorID   string
	AuthorName string
	Content    string
}

func (m incoming) reference() *discordgo.MessageReference {
	return &discordgo.MessageReference{MessageID: m.MessageID, ChannelID: m.ChannelID, GuildID: m.GuildID}
}

func (b *Bot) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}

	name := m.Author.GlobalName
	if name == "" {
		name = m.Author.Username
	}
	b.dispatch(context.Background(), incoming{
		MessageID:  m.ID,
		ChannelID:  m.ChannelID,
		GuildID:    m.GuildID,
		AuthorID:   m.Author.ID,
		AuthorName: name,
		Content:    m.Content,
	})
}

// channelAllowed reports whether the bot listens in channelID. No configured
// channels means the bot listens nowhere.
func (b *Bot) channelAllowed(channelID string) bool {
	return slices.Contains(b.settings.AllowedChannels, channelID)
}

func (b *Bot) isAdmin(m incoming) bool {
	if b.settings.IsAdminID(m.AuthorID) {
		return true
	}

	if b.settings.AdminRoleID == "" || m.GuildID == "" {
		return false
	}

	roles, err := b.out.MemberRoles(m.GuildID, m.AuthorID)
	if err != nil {
		b.logger.Error("error fetching member roles", "user_id", m.AuthorID, "error", err.Error())
		return false
	}
	return slices.Contains(roles, b.settings.AdminRoleID)
}

// sessionMessenger adapts a live discordgo session to Messenger.
type sessionMessenger struct {
	s *discordgo.Session
}

// NewMessenger wraps session.
func NewMessenger(session *discordgo.Session) Messenger {
	return sessionMessenger{s: session}
}

func (m sessionMessenger) ChannelMessageSend(channelID, content string) error {
	_, err := m.s.ChannelMessageSend(channelID, content)
	return err
}

func (m sessionMessenger) ChannelMessageSendReply(channelID, content string, ref *discordgo.MessageReference) error {
	_, err := m.s.ChannelMessageSendReply(channelID, content, ref)
	return err
}

func (m sessionMessenger) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed) error {
	_, err := m.s.ChannelMessageSendEmbed(channelID, embed)
	return err
}

func (m sessionMessenger) UserDM(userID, content string) error {
	ch, err := m.s.UserChannelCreate(userID)
	if err != nil {
		return errors.Wrapf(err, "failed to open DM with %s", userID)
	}
	_, err = m.s.ChannelMessageSend(ch.ID, content)
	return err
}

func (m sessionMessenger) MemberRoles(guildID, userID string) ([]string, error) {
	member, err := m.s.GuildMember(guildID, userID)
	if err != nil {
		return nil, err
	}
	return member.Roles, nil
}
