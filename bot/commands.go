package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/airylvat/trivia-league/db"
	"github.com/airylvat/trivia-league/leaderboard"
	"github.com/airylvat/trivia-league/metrics"
	"github.com/airylvat/trivia-league/payout"
	"github.com/airylvat/trivia-league/trivia"
)

const (
	prefix = "!!trivia"

	minWalletLen = 32
	maxWalletLen = 44
)

// dispatch routes one message to its command handler.
func (b *Bot) dispatch(ctx context.Context, m incoming) {
	if !b.channelAllowed(m.ChannelID) {
		return
	}

	fields := strings.Fields(m.Content)
	if len(fields) == 0 || !strings.EqualFold(fields[0], prefix) {
		return
	}
	if len(fields) == 1 {
		b.handleHelp(m)
		return
	}

	cmd := strings.ToLower(fields[1])
	args := fields[2:]
	metrics.ChatCommandTotal.WithLabelValues(cmd).Inc()

	switch cmd {
	case "start":
		b.handleStart(m)
	case "help":
		b.handleHelp(m)
	case "rules":
		b.handleRules(m)
	case "join":
		b.handleJoin(ctx, m)
	case "quiz":
		b.handleQuiz(ctx, m)
	case "answer":
		b.handleAnswer(ctx, m, args)
	case "leaderboard":
		b.handleLeaderboard(ctx, m)
	case "myscore":
		b.handleMyScore(ctx, m)
	case "wallet":
		b.handleWallet(ctx, m, args)
	case "admin":
		b.handleAdmin(ctx, m, args)
	default:
		b.reply(m, "Unknown command. Use `!!trivia help` for the command list.")
	}
}

func (b *Bot) reply(m incoming, text string) {
	err := b.out.ChannelMessageSendReply(m.ChannelID, text, m.reference())
	countSend(err)
	if err != nil {
		b.logger.Error("failed to reply", "channel_id", m.ChannelID, "error", err.Error())
	}
}

func (b *Bot) week() string {
	return db.WeekKey(b.now())
}

// touchUser records the author and refreshes their display name.
func (b *Bot) touchUser(ctx context.Context, m incoming) bool {
	if err := b.store.UpsertUser(ctx, m.AuthorID, m.AuthorName); err != nil {
		b.logger.Error("error saving user", "user_id", m.AuthorID, "error", err.Error())
		b.reply(m, "Something went wrong saving your profile. Try again in a moment.")
		return false
	}
	return true
}

func (b *Bot) handleHelp(m incoming) {
	lines := []string{
		"**Trivia Bot Help**",
		"Here are the available commands:",
		"\n**User Commands:**",
		"- **!!trivia start**: Show the welcome message.",
		"- **!!trivia join**: Enter this week's contest.",
		"- **!!trivia quiz**: Start a round in this channel.",
		"- **!!trivia answer <A|B|C|D>**: Answer the current question. Only your first answer counts.",
		"- **!!trivia leaderboard**: Show this week's top players.",
		"- **!!trivia myscore**: Show your stats for this week.",
		"- **!!trivia wallet <address>**: Set the wallet used for payouts.",
		"- **!!trivia rules**: Show the scoring rules.",
		"- **!!trivia help**: Show this help message.",
		"\n**Admin Commands:**",
		"- **!!trivia admin status**: Show the bot and round status.",
		"- **!!trivia admin endweek**: Export this week's leaderboard to CSV.",
		"- **!!trivia admin payout**: Compute this week's payout for the top players.",
		"- **!!trivia admin reset**: Stop the round running in this channel.",
	}
	b.reply(m, strings.Join(lines, "\n"))
}

func (b *Bot) handleStart(m incoming) {
	b.reply(m, fmt.Sprintf("👋 Welcome to the weekly trivia league, %s! Use `!!trivia join` to enter this week, "+
		"then `!!trivia quiz` to start a round. `!!trivia help` lists every command.", m.AuthorName))
}

func (b *Bot) handleRules(m incoming) {
	lines := []string{
		"**Scoring**",
		fmt.Sprintf("- Correct answer: +%d points.", trivia.CorrectPoints),
		"- Wrong answer: no points, and your streak resets.",
		fmt.Sprintf("- Answer window: %s per question.", b.rounds.AnswerWindow()),
		"- Scores reset every week. Top players share the weekly pool.",
		"Use `!!trivia answer A|B|C|D`.",
	}
	b.reply(m, strings.Join(lines, "\n"))
}

func (b *Bot) handleJoin(ctx context.Context, m incoming) {
	if !b.touchUser(ctx, m) {
		return
	}
	if _, err := b.store.GetOrCreate(ctx, m.AuthorID, b.week()); err != nil {
		b.logger.Error("error creating weekly score", "user_id", m.AuthorID, "error", err.Error())
		b.reply(m, "Error joining this week's contest.")
		return
	}
	b.reply(m, fmt.Sprintf("%s is in for this week! Use `!!trivia quiz` to start a round.", m.AuthorName))
	b.logger.Info("user joined", "user_id", m.AuthorID, "week", b.week())
}

func (b *Bot) handleQuiz(ctx context.Context, m incoming) {
	if !b.touchUser(ctx, m) {
		return
	}

	err := b.rounds.StartRound(ctx, m.ChannelID, b.settings.RoundLen)
	switch {
	case err == nil:
		b.logger.Info("round started", "channel_id", m.ChannelID, "by", m.AuthorID)
	case errors.Is(err, trivia.ErrAlreadyInProgress):
		b.reply(m, "A round is already in progress. Finish it or wait a moment.")
	case errors.Is(err, trivia.ErrSourceUnavailable):
		b.reply(m, "Couldn't fetch questions right now. Try again in a bit.")
	default:
		b.logger.Error("error starting round", "channel_id", m.ChannelID, "error", err.Error())
		b.reply(m, "Error starting the round.")
	}
}

func (b *Bot) handleAnswer(ctx context.Context, m incoming, args []string) {
	if len(args) != 1 {
		b.reply(m, "Usage: `!!trivia answer <A|B|C|D>`")
		return
	}
	label := db.Label(strings.ToUpper(args[0]))
	if !label.Valid() {
		b.reply(m, "Usage: `!!trivia answer <A|B|C|D>`")
		return
	}
	if !b.touchUser(ctx, m) {
		return
	}

	err := b.rounds.SubmitAnswer(ctx, m.ChannelID, trivia.Player{ID: m.AuthorID, Name: m.AuthorName}, label)
	switch {
	case err == nil:
		b.reply(m, "✅ Answer locked in. Wait for the reveal!")
	case errors.Is(err, trivia.ErrNoActiveRound):
		b.reply(m, "No active question. Use `!!trivia quiz` to start.")
	case errors.Is(err, trivia.ErrWindowExpired):
		b.reply(m, "Too late, time is up. Wait for the next question.")
	case errors.Is(err, trivia.ErrAlreadyAnswered):
		b.reply(m, "You already locked in an answer for this question.")
	case errors.Is(err, trivia.ErrInvalidLabel):
		b.reply(m, "Usage: `!!trivia answer <A|B|C|D>`")
	default:
		b.logger.Error("error submitting answer", "channel_id", m.ChannelID, "error", err.Error())
		b.reply(m, "Error recording your answer.")
	}
}

func (b *Bot) handleLeaderboard(ctx context.Context, m incoming) {
	text, err := b.board.Render(ctx, b.week(), leaderboard.ChatLimit)
	if err != nil {
		b.logger.Error("error rendering leaderboard", "error", err.Error())
		b.reply(m, "Error fetching the leaderboard.")
		return
	}
	b.reply(m, text)
}

func (b *Bot) handleMyScore(ctx context.Context, m incoming) {
	if !b.touchUser(ctx, m) {
		return
	}
	score, err := b.store.GetScore(ctx, m.AuthorID, b.week())
	if errors.Is(err, db.ErrNotFound) {
		b.reply(m, "No score yet. Use `!!trivia join` and `!!trivia quiz` to play.")
		return
	}
	if err != nil {
		b.logger.Error("error fetching score", "user_id", m.AuthorID, "error", err.Error())
		b.reply(m, "Error fetching your score.")
		return
	}
	b.reply(m, fmt.Sprintf("Your score this week: %d pts • %d✓/%d✗ • streak %d",
		score.Points, score.Correct, score.Wrong, score.Streak))
}

func (b *Bot) handleWallet(ctx context.Context, m incoming, args []string) {
	if len(args) != 1 {
		b.reply(m, "Usage: `!!trivia wallet <address>`")
		return
	}
	addr := args[0]
	if len(addr) < minWalletLen || len(addr) > maxWalletLen {
		b.reply(m, "That doesn't look like a valid wallet address.")
		return
	}
	if !b.touchUser(ctx, m) {
		return
	}
	if err := b.store.SetWallet(ctx, m.AuthorID, addr); err != nil {
		b.logger.Error("error saving wallet", "user_id", m.AuthorID, "error", err.Error())
		b.reply(m, "Error saving your wallet.")
		return
	}
	b.reply(m, "Wallet saved ✅")
}

func (b *Bot) handleAdmin(ctx context.Context, m incoming, args []string) {
	if !b.isAdmin(m) {
		b.reply(m, "Admins only.")
		return
	}
	if len(args) == 0 {
		b.reply(m, "Usage: `!!trivia admin <status|endweek|payout|reset>`")
		return
	}

	sub := strings.ToLower(args[0])
	b.logger.Info("admin command", "sub", sub, "by", m.AuthorID)
	switch sub {
	case "status":
		b.handleAdminStatus(m)
	case "endweek":
		b.handleEndWeek(ctx, m)
	case "payout":
		b.handlePayout(ctx, m)
	case "reset":
		b.handleReset(m)
	default:
		b.reply(m, "Unknown admin subcommand.")
	}
}

func (b *Bot) handleAdminStatus(m incoming) {
	lines := []string{
		fmt.Sprintf("OK. week=%s dry_run=%t mint=%s active_rounds=%d",
			b.week(), b.settings.PayoutsDryRun, b.settings.TokenMint, b.rounds.ActiveRounds()),
	}
	st := b.rounds.Status(m.ChannelID)
	if st.Active {
		lines = append(lines, fmt.Sprintf("This channel: round %s, question %d/%d, %d answer(s), closes %s",
			st.RoundID, st.Number, st.Total, st.Answers, st.Deadline.UTC().Format("15:04:05 UTC")))
	} else {
		lines = append(lines, "This channel: no round running.")
	}
	b.reply(m, strings.Join(lines, "\n"))
}

func (b *Bot) handleEndWeek(ctx context.Context, m incoming) {
	location, err := b.exports.RunOnce(ctx, "admin")
	if err != nil {
		b.reply(m, "Error exporting the weekly leaderboard.")
		return
	}
	b.reply(m, fmt.Sprintf("Exported weekly CSV for %s: %s", b.week(), location))
}

func (b *Bot) handlePayout(ctx context.Context, m incoming) {
	report, err := b.payouts.ComputeShares(ctx, b.week(), b.settings.WinnersCount, b.settings.PayoutPool)
	if errors.Is(err, payout.ErrNothingToPayout) {
		b.reply(m, "No scores to pay out.")
		return
	}
	if err != nil {
		b.logger.Error("error computing payout", "error", err.Error())
		b.reply(m, "Error computing the payout.")
		return
	}
	b.reply(m, report.String())
}

func (b *Bot) handleReset(m incoming) {
	if b.rounds.Abort(m.ChannelID) {
		b.reply(m, "Round in this channel stopped. Weekly scores are kept; a new week starts on its own.")
		return
	}
	b.reply(m, "No round running in this channel. Weekly scores are kept; a new week starts on its own.")
}
