// Package setup implements the interactive terminal wizard that writes a
// starter configuration file.
package setup

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"dcapilot/config"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// RunTUI launches the terminal configuration wizard and writes the result
// to config.gen.yaml.
func RunTUI() error {
	var (
		platform      string
		pair          string
		amountStr     string
		frequency     string
		dayOfWeek     string
		dayOfMonthStr string
		executionTime string
		maxTotalStr   string
		autoStart     bool
		confirm       bool
	)

	// defaults
	pair = "BTC_USDT"
	amountStr = "50"
	executionTime = "09:00"
	dayOfMonthStr = "1"
	autoStart = true

	header("STEP 1: PLATFORM")
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select Exchange Platform").
				Options(
					huh.NewOption("Binance", "binance"),
					huh.NewOption("Bybit", "bybit"),
					huh.NewOption("Static price (simulation)", "static"),
				).
				Value(&platform),
		),
	).Run()
	if err != nil {
		return err
	}

	header("STEP 2: ASSET")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Trading Pair").
				Description("Must contain underscore (e.g. BTC_USDT)").
				Value(&pair).
				Validate(func(s string) error {
					if !strings.Contains(s, "_") {
						return fmt.Errorf("invalid format: must be BASE_QUOTE (e.g. BTC_USDT)")
					}
					return nil
				}),
			huh.NewInput().
				Title("Amount per purchase").
				Description("Quote currency amount invested each period (e.g. 50)").
				Value(&amountStr).
				Validate(validatePositiveDecimal),
		),
	).Run()
	if err != nil {
		return err
	}

	header("STEP 3: SCHEDULE")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Purchase Frequency").
				Options(
					huh.NewOption("Daily", "daily"),
					huh.NewOption("Weekly", "weekly"),
					huh.NewOption("Monthly", "monthly"),
				).
				Value(&frequency),
		),
	).Run()
	if err != nil {
		return err
	}

	switch frequency {
	case "weekly":
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewSelect[string]().
					Title("Day of Week").
					Options(
						huh.NewOption("Monday", "monday"),
						huh.NewOption("Tuesday", "tuesday"),
						huh.NewOption("Wednesday", "wednesday"),
						huh.NewOption("Thursday", "thursday"),
						huh.NewOption("Friday", "friday"),
						huh.NewOption("Saturday", "saturday"),
						huh.NewOption("Sunday", "sunday"),
					).
					Value(&dayOfWeek),
			),
		).Run()
	case "monthly":
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Day of Month").
					Description("1-31, days past month end clamp to the last day").
					Value(&dayOfMonthStr).
					Validate(validateDayOfMonth),
			),
		).Run()
	}
	if err != nil {
		return err
	}

	header("STEP 4: TIMING AND BUDGET")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Execution Time").
				Description("Wall clock HH:MM (e.g. 09:00)").
				Value(&executionTime).
				Validate(func(s string) error {
					_, err := time.Parse("15:04", s)
					return err
				}),
			huh.NewInput().
				Title("Max Total Investment").
				Description("Budget cap in quote currency, empty for unlimited").
				Value(&maxTotalStr).
				Validate(func(s string) error {
					if s == "" {
						return nil
					}
					return validatePositiveDecimal(s)
				}),
			huh.NewConfirm().
				Title("Start the bot immediately?").
				Value(&autoStart),
		),
	).Run()
	if err != nil {
		return err
	}

	header("FINAL CONFIRMATION")
	summary := fmt.Sprintf(
		"Platform: %s\nPair: %s\nAmount: %s\nFrequency: %s\nTime: %s\n",
		platform, pair, amountStr, frequency, executionTime,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	bot := config.BotYaml{
		Pair:               pair,
		Amount:             amountStr,
		Frequency:          frequency,
		ExecutionTime:      executionTime,
		MaxTotalInvestment: maxTotalStr,
		AutoStart:          autoStart,
	}
	switch frequency {
	case "weekly":
		bot.DayOfWeek = dayOfWeek
	case "monthly":
		// validated by the form already
		_, _ = fmt.Sscanf(dayOfMonthStr, "%d", &bot.DayOfMonth)
	}

	file := config.File{
		Platform:     platform,
		DBPath:       config.DefaultDBPath,
		JournalDir:   config.DefaultJournalDir,
		PollInterval: config.DefaultPollInterval,
		Bots:         []config.BotYaml{bot},
	}
	if platform == "static" {
		file.StaticPrice = "40000"
	}

	data, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}

	filename := "config.gen.yaml"
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(
		fmt.Sprintf("\n✓ Configuration saved to %s", filename)))
	return nil
}

func header(step string) {
	fmt.Print("\033[H\033[2J") // clear screen
	fmt.Println(headerStyle.Render("DCAPILOT CONFIG WIZARD"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Dollar cost averaging on a schedule.\n"))
	fmt.Println(stepStyle.Render(step))
}

func validatePositiveDecimal(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if d.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validateDayOfMonth(s string) error {
	var day int
	if _, err := fmt.Sscanf(s, "%d", &day); err != nil {
		return fmt.Errorf("must be a number")
	}
	if day < 1 || day > 31 {
		return fmt.Errorf("must be between 1 and 31")
	}
	return nil
}
