package duration

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"

	apperrors "github.com/topmerg/rude-qa-bot/internal/errors"
)

// Duration is the resolved value of a free-text duration query: a number of
// seconds plus the human-readable text that gets templated into chat replies.
// Seconds below zero mean "permanent" and bypass clamping.
type Duration struct {
	Seconds int64
	Text    string
}

// PluralForms holds the three grammatical variants of a unit word, picked by
// the numeral-agreement rule in Plural.
type PluralForms struct {
	Form1 string
	Form2 string
	Form3 string
}

// Unit maps a single-character unit symbol to its rate and unit word forms.
type Unit struct {
	Rate    int64
	Plurals PluralForms
}

// Config is one duration dialect: restrictions and bans carry independent
// unit tables, defaults and bounds.
type Config struct {
	DefaultAmount int64
	DefaultUnit   string
	Min           Duration
	Max           Duration
	// Permanent, when non-zero, is returned for any non-positive amount
	// instead of clamping. Only the ban dialect sets it.
	Permanent Duration
	Units     map[string]Unit
}

var secondsForms = PluralForms{Form1: "секунду", Form2: "секунды", Form3: "секунд"}

// RestrictConfig returns the duration dialect for temporary restrictions:
// seconds through days, defaulting to minutes.
func RestrictConfig() Config {
	return Config{
		DefaultAmount: 5,
		DefaultUnit:   "m",
		Min:           Duration{Seconds: 30, Text: "30 секунд"},
		Max:           Duration{Seconds: 864000, Text: "10 дней"},
		Units: map[string]Unit{
			"s": {Rate: 1, Plurals: secondsForms},
			"m": {Rate: 60, Plurals: PluralForms{Form1: "минуту", Form2: "минуты", Form3: "минут"}},
			"h": {Rate: 3600, Plurals: PluralForms{Form1: "час", Form2: "часа", Form3: "часов"}},
			"d": {Rate: 86400, Plurals: PluralForms{Form1: "день", Form2: "дня", Form3: "дней"}},
		},
	}
}

// BanConfig returns the duration dialect for bans: seconds through years,
// defaulting to permanent.
func BanConfig() Config {
	cfg := RestrictConfig()
	cfg.DefaultAmount = -1
	cfg.DefaultUnit = "s"
	cfg.Max = Duration{Seconds: 315360000, Text: "10 лет"}
	cfg.Permanent = Duration{Seconds: -1, Text: "навсегда"}
	cfg.Units["w"] = Unit{Rate: 604800, Plurals: PluralForms{Form1: "неделю", Form2: "недели", Form3: "недель"}}
	cfg.Units["y"] = Unit{Rate: 31536000, Plurals: PluralForms{Form1: "год", Form2: "года", Form3: "лет"}}
	return cfg
}

// Resolve parses a free-text duration query against cfg. An empty query
// resolves to the configured default, a bare integer is read in the default
// unit, and out-of-bounds results return the configured Min/Max sentinel
// objects as-is.
func Resolve(text string, cfg Config) (Duration, error) {
	if text == "" {
		return Resolve(fmt.Sprintf("%d%s", cfg.DefaultAmount, cfg.DefaultUnit), cfg)
	}

	if amount, err := strconv.ParseInt(text, 10, 64); err == nil {
		return Resolve(fmt.Sprintf("%d%s", amount, cfg.DefaultUnit), cfg)
	}

	if len(text) < 2 {
		return Duration{}, errors.WithMessagef(apperrors.ErrDurationParse, "query %q is too short", text)
	}

	amount, err := strconv.ParseInt(text[:len(text)-1], 10, 64)
	if err != nil {
		return Duration{}, errors.WithMessagef(apperrors.ErrDurationParse, "bad amount in %q", text)
	}
	unit, ok := cfg.Units[text[len(text)-1:]]
	if !ok {
		return Duration{}, errors.WithMessagef(apperrors.ErrDurationParse, "unknown unit in %q", text)
	}

	if cfg.Permanent.Text != "" && amount <= 0 {
		return cfg.Permanent, nil
	}

	seconds := amount * unit.Rate
	if seconds < cfg.Min.Seconds {
		return cfg.Min, nil
	}
	if seconds > cfg.Max.Seconds {
		return cfg.Max, nil
	}

	return Duration{
		Seconds: seconds,
		Text:    fmt.Sprintf("%d %s", amount, Plural(amount, unit.Plurals)),
	}, nil
}

// OfSeconds renders an exact number of seconds as a Duration, used for
// configured floors that are not part of any unit table.
func OfSeconds(seconds int64) Duration {
	return Duration{
		Seconds: seconds,
		Text:    fmt.Sprintf("%d %s", seconds, Plural(seconds, secondsForms)),
	}
}

// Plural picks the unit word form agreeing with n: Form1 for n%10==1 except
// the teens, Form2 for n%10 in 2..4 except the teens, Form3 otherwise.
func Plural(n int64, forms PluralForms) string {
	if n%10 == 1 && n%100 != 11 {
		return forms.Form1
	}
	if n%10 >= 2 && n%10 <= 4 && (n%100 < 10 || n%100 >= 20) {
		return forms.Form2
	}
	return forms.Form3
}
