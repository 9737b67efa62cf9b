// Package config loads the application configuration from a YAML file and
// converts it into validated domain schedules.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"dcapilot/internal/domain"
)

// Defaults applied when the YAML omits the corresponding field.
const (
	DefaultPlatform     = "binance"
	DefaultDBPath       = "dcapilot.db"
	DefaultJournalDir   = "./wal"
	DefaultPollInterval = 60 * time.Second
)

// Config is the fully decoded and validated application configuration.
type Config struct {
	// Platform selects the price source: binance, bybit or static.
	Platform     string
	DBPath       string
	JournalDir   string
	PollInterval time.Duration
	// StaticPrice is used by the static platform only.
	StaticPrice decimal.Decimal

	Bots []domain.ScheduleConfig
}

// File mirrors the YAML document layout. The setup wizard marshals it
// back to disk, so its shape is part of the config format.
type File struct {
	Platform     string        `yaml:"platform"`
	DBPath       string        `yaml:"db_path"`
	JournalDir   string        `yaml:"journal_dir"`
	PollInterval time.Duration `yaml:"poll_interval"`
	StaticPrice  string        `yaml:"static_price,omitempty"`

	Bots []BotYaml `yaml:"bots"`
}

// BotYaml is one bot entry of the YAML document.
type BotYaml struct {
	Pair               string `yaml:"pair"`
	Amount             string `yaml:"amount"`
	Frequency          string `yaml:"frequency"`
	DayOfWeek          string `yaml:"day_of_week,omitempty"`
	DayOfMonth         int    `yaml:"day_of_month,omitempty"`
	ExecutionTime      string `yaml:"execution_time,omitempty"`
	MaxTotalInvestment string `yaml:"max_total_investment,omitempty"`
	StartDate          string `yaml:"start_date,omitempty"`
	EndDate            string `yaml:"end_date,omitempty"`
	AutoStart          bool   `yaml:"auto_start"`
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Load reads and validates the YAML config at path.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "failed to read config %s", path)
	}

	var file File
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return Config{}, errors.Wrapf(err, "failed to parse config %s", path)
	}

	cfg := Config{
		Platform:     file.Platform,
		DBPath:       file.DBPath,
		JournalDir:   file.JournalDir,
		PollInterval: file.PollInterval,
	}
	if cfg.Platform == "" {
		cfg.Platform = DefaultPlatform
	}
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath
	}
	if cfg.JournalDir == "" {
		cfg.JournalDir = DefaultJournalDir
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	switch cfg.Platform {
	case "binance", "bybit", "static":
	default:
		return Config{}, errors.Errorf("unknown platform %q, expected binance, bybit or static", cfg.Platform)
	}

	if file.StaticPrice != "" {
		if cfg.StaticPrice, err = decimal.NewFromString(file.StaticPrice); err != nil {
			return Config{}, errors.Wrapf(err, "invalid static_price %q", file.StaticPrice)
		}
	}
	if cfg.Platform == "static" && cfg.StaticPrice.LessThanOrEqual(decimal.Zero) {
		return Config{}, errors.New("static platform requires a positive static_price")
	}

	if len(file.Bots) == 0 {
		return Config{}, errors.New("config defines no bots")
	}
	for i, b := range file.Bots {
		schedule, err := b.toSchedule()
		if err != nil {
			return Config{}, errors.Wrapf(err, "invalid bot config at index %d", i)
		}
		cfg.Bots = append(cfg.Bots, schedule)
	}

	return cfg, nil
}

func (b BotYaml) toSchedule() (domain.ScheduleConfig, error) {
	pair, err := domain.PairFromString(b.Pair)
	if err != nil {
		return domain.ScheduleConfig{}, err
	}

	amount, err := decimal.NewFromString(b.Amount)
	if err != nil {
		return domain.ScheduleConfig{}, errors.Wrapf(err, "invalid amount %q", b.Amount)
	}

	cfg := domain.ScheduleConfig{
		Pair:             pair,
		InvestmentAmount: amount,
		Frequency:        domain.Frequency(b.Frequency),
		DayOfMonth:       b.DayOfMonth,
		AutoStart:        b.AutoStart,
	}

	if b.DayOfWeek != "" {
		day, ok := weekdays[strings.ToLower(b.DayOfWeek)]
		if !ok {
			return domain.ScheduleConfig{}, errors.Errorf("unknown day_of_week %q", b.DayOfWeek)
		}
		cfg.DayOfWeek = &day
	}

	if b.ExecutionTime != "" {
		if cfg.ExecutionHour, cfg.ExecutionMinute, err = parseClock(b.ExecutionTime); err != nil {
			return domain.ScheduleConfig{}, err
		}
	}

	if b.MaxTotalInvestment != "" {
		if cfg.MaxTotalInvestment, err = decimal.NewFromString(b.MaxTotalInvestment); err != nil {
			return domain.ScheduleConfig{}, errors.Wrapf(err, "invalid max_total_investment %q", b.MaxTotalInvestment)
		}
	}

	if cfg.StartDate, err = parseDate(b.StartDate); err != nil {
		return domain.ScheduleConfig{}, err
	}
	if cfg.EndDate, err = parseDate(b.EndDate); err != nil {
		return domain.ScheduleConfig{}, err
	}

	if err := cfg.Validate(); err != nil {
		return domain.ScheduleConfig{}, err
	}
	return cfg, nil
}

// parseClock parses a wall-clock time in HH:MM format.
func parseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, errors.Errorf("invalid execution_time %q, expected HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, errors.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return &t, nil
}

// Example returns a starter YAML document, used by the setup wizard.
func Example() string {
	return fmt.Sprintf(`platform: %s
db_path: %s
journal_dir: %s
poll_interval: %s

bots:
  - pair: BTC_USDT
    amount: "50"
    frequency: weekly
    day_of_week: monday
    execution_time: "09:00"
    max_total_investment: "5000"
    auto_start: true
`, DefaultPlatform, DefaultDBPath, DefaultJournalDir, DefaultPollInterval)
}
