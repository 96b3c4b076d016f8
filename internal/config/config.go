package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"scrabble-bot/internal/util"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSheets = "sheets"
)

type Config struct {
	TelegramToken string
	TelegramDebug bool

	StoreBackend string
	RedisURL     string

	SpreadsheetID            string
	GoogleServiceAccountJSON string
	SheetsPollInterval       time.Duration

	// AdminAccounts maps admin email to bcrypt hash.
	AdminAccounts     map[string]string
	SessionSigningKey string
	SessionTTL        time.Duration

	ProofChannel string
	ExportSecret string

	HTTPAddr      string
	BasePublicURL string
	LogLevel      string

	Event Event
}

// Event is the tournament's fixed information. Defaults can be overridden by
// a TOML file named in EVENT_FILE.
type Event struct {
	Name           string    `toml:"name"`
	Venue          string    `toml:"venue"`
	Start          time.Time `toml:"start"`
	Capacity       int       `toml:"capacity"`
	Fee            string    `toml:"fee"`
	WhatsAppNumber string    `toml:"whatsapp_number"`
	ProofEmail     string    `toml:"proof_email"`
	Bank           Bank      `toml:"bank"`
}

type Bank struct {
	AccountNumber string `toml:"account_number"`
	BankName      string `toml:"bank_name"`
	AccountName   string `toml:"account_name"`
}

func DefaultEvent() Event {
	return Event{
		Name:           "Scrabble Open Championship",
		Venue:          "Lagos",
		Start:          time.Date(2026, 2, 7, 9, 0, 0, 0, time.FixedZone("WAT", 60*60)),
		Capacity:       24,
		Fee:            "₦10,000",
		WhatsAppNumber: "2347034849762",
		Bank: Bank{
			AccountNumber: "0916457333",
			BankName:      "Guaranty Trust Bank",
			AccountName:   "Erigi Edafe",
		},
	}
}

func FromEnv() (Config, error) {
	var c Config
	c.TelegramToken = env("TELEGRAM_BOT_TOKEN", "")
	c.TelegramDebug = util.NormalizeBool(os.Getenv("TELEGRAM_DEBUG"))

	c.StoreBackend = strings.ToLower(env("STORE_BACKEND", BackendMemory))
	c.RedisURL = env("REDIS_URL", "redis://localhost:6379/0")
	c.SpreadsheetID = env("GOOGLE_SHEETS_SPREADSHEET_ID", "")
	c.GoogleServiceAccountJSON = env("GOOGLE_SERVICE_ACCOUNT_JSON", "")

	var err error
	if c.SheetsPollInterval, err = envDuration("SHEETS_POLL_INTERVAL", 5*time.Second); err != nil {
		return c, err
	}
	if c.SessionTTL, err = envDuration("ADMIN_SESSION_TTL", 8*time.Hour); err != nil {
		return c, err
	}

	c.AdminAccounts, err = parseAdminAccounts(os.Getenv("ADMIN_ACCOUNTS"))
	if err != nil {
		return c, err
	}
	c.SessionSigningKey = env("ADMIN_SESSION_KEY", "")

	c.ProofChannel = strings.ToLower(env("PROOF_CHANNEL", "whatsapp"))
	c.ExportSecret = env("EXPORT_SECRET", "change-me")

	c.HTTPAddr = env("HTTP_ADDR", ":8080")
	c.BasePublicURL = strings.TrimRight(env("BASE_PUBLIC_URL", ""), "/")
	c.LogLevel = env("LOG_LEVEL", "info")

	c.Event = DefaultEvent()
	if path := env("EVENT_FILE", ""); path != "" {
		if c.Event, err = LoadEvent(path, c.Event); err != nil {
			return c, err
		}
	}
	if v := env("EVENT_CAPACITY", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return c, fmt.Errorf("EVENT_CAPACITY: invalid value %q", v)
		}
		c.Event.Capacity = n
	}

	return c, c.validate()
}

func (c Config) validate() error {
	switch c.StoreBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is empty")
		}
	case BackendSheets:
		if c.SpreadsheetID == "" {
			return fmt.Errorf("GOOGLE_SHEETS_SPREADSHEET_ID is empty")
		}
		if c.GoogleServiceAccountJSON == "" {
			return fmt.Errorf("GOOGLE_SERVICE_ACCOUNT_JSON is empty")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND: %s", c.StoreBackend)
	}
	if len(c.AdminAccounts) > 0 && c.SessionSigningKey == "" {
		return fmt.Errorf("ADMIN_SESSION_KEY is empty")
	}
	return nil
}

// RequireTelegram is checked only by commands that start the bot.
func (c Config) RequireTelegram() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is empty")
	}
	return nil
}

// LoadEvent decodes a TOML event file over base. Keys missing from the file
// keep base's values.
func LoadEvent(path string, base Event) (Event, error) {
	ev := base
	md, err := toml.DecodeFile(path, &ev)
	if err != nil {
		return base, fmt.Errorf("event file %s: %w", path, err)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		return base, fmt.Errorf("event file %s: unknown keys %v", path, undec)
	}
	if ev.Capacity < 0 {
		return base, fmt.Errorf("event file %s: capacity must not be negative", path)
	}
	return ev, nil
}

// parseAdminAccounts reads "email:hash,email:hash". Bcrypt hashes contain no
// commas, and the email ends at the first colon.
func parseAdminAccounts(raw string) (map[string]string, error) {
	m := map[string]string{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return m, nil
	}
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		email, hash, ok := strings.Cut(p, ":")
		email = strings.ToLower(strings.TrimSpace(email))
		hash = strings.TrimSpace(hash)
		if !ok || email == "" || hash == "" {
			return nil, fmt.Errorf("ADMIN_ACCOUNTS: bad entry %q", p)
		}
		m[email] = hash
	}
	return m, nil
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := env(key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}
