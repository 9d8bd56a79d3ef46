package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Settings is everything the bot reads from the environment.
type Settings struct {
	DiscordToken    string   `validate:"required"`
	AdminIDs        []string `validate:"dive,required"`
	AdminRoleID     string
	AllowedChannels []string `validate:"dive,required"`

	RoundLen      int `validate:"gte=1,lte=20"`
	AnswerSeconds int `validate:"gte=5,lte=300"`

	WinnersCount  int   `validate:"gte=1"`
	PayoutPool    int64 `validate:"gte=0"`
	PayoutsDryRun bool
	TokenMint     string

	WeeklyResetDay string `validate:"oneof=MON TUE WED THU FRI SAT SUN"`

	DatabaseURL  string
	DatabasePath string `validate:"required_without=DatabaseURL"`

	QuestionsPath   string
	OpenTDBURL      string `validate:"required,url"`
	OpenTDBCategory int    `validate:"gte=0"`

	ExportDir   string `validate:"required"`
	MetricsAddr string `validate:"required"`
	LogLevel    string `validate:"oneof=debug info warn error"`
}

// AnswerWindow is the per-question answer window.
func (s *Settings) AnswerWindow() time.Duration {
	return time.Duration(s.AnswerSeconds) * time.Second
}

// WeeklyExportSpec is the cron spec for the weekly leaderboard export:
// 23:55 UTC on the configured reset day.
func (s *Settings) WeeklyExportSpec() string {
	return fmt.Sprintf("55 23 * * %s", s.WeeklyResetDay)
}

// IsAdminID reports whether userID is on the admin allow-list.
func (s *Settings) IsAdminID(userID string) bool {
	for _, id := range s.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Load reads an optional .env file and the process environment.
func Load() (*Settings, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using process environment")
	}
	return FromEnv()
}

// FromEnv builds and validates Settings from the process environment only.
func FromEnv() (*Settings, error) {
	var errs []error
	envInt := func(key string, defaultValue int) int {
		v, err := getEnvInt(key, defaultValue)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	s := &Settings{
		DiscordToken:    os.Getenv("DISCORD_TOKEN"),
		AdminIDs:        getEnvList("ADMIN_IDS"),
		AdminRoleID:     strings.TrimSpace(os.Getenv("ADMIN_ROLE_ID")),
		AllowedChannels: getEnvList("ALLOWED_CHANNELS"),
		RoundLen:        envInt("ROUND_LEN", 1),
		AnswerSeconds:   envInt("ANSWER_SECONDS", 20),
		WinnersCount:    envInt("WINNERS_COUNT", 3),
		PayoutPool:      int64(envInt("PAYOUT_POOL", 1_000_000)),
		PayoutsDryRun:   strings.ToLower(getEnv("PAYOUTS_DRY_RUN", "true")) == "true",
		TokenMint:       getEnv("TOKEN_MINT", "MINT_PLACEHOLDER"),
		WeeklyResetDay:  strings.ToUpper(getEnv("WEEKLY_RESET_DAY", "SUN")),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		DatabasePath:    getEnv("DATABASE_PATH", "./data/trivia.db"),
		QuestionsPath:   getEnv("QUESTIONS_PATH", "./data/questions.yaml"),
		OpenTDBURL:      getEnv("OPENTDB_URL", "https://opentdb.com"),
		OpenTDBCategory: envInt("OPENTDB_CATEGORY", 12),
		ExportDir:       getEnv("EXPORT_DIR", "./data"),
		MetricsAddr:     getEnv("METRICS_ADDR", ":6060"),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := validator.New().Struct(s); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return s, nil
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable with a default fallback.
// A set but malformed value is an error.
func getEnvInt(key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s must be an integer, got %q", key, value)
	}
	return intValue, nil
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
