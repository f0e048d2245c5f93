package duration

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"

	apperrors "github.com/topmerg/rude-qa-bot/internal/errors"
)

func TestResolveDefaults(t *testing.T) {
	t.Parallel()

	restrict := RestrictConfig()
	got, err := Resolve("", restrict)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want, err := Resolve("5m", restrict)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Fatalf("empty query should resolve to default: got %#v want %#v", got, want)
	}

	ban := BanConfig()
	got, err = Resolve("", ban)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != ban.Permanent {
		t.Fatalf("empty ban query should resolve to permanent: got %#v", got)
	}
}

func TestResolveBareInteger(t *testing.T) {
	t.Parallel()

	cfg := RestrictConfig()
	got, err := Resolve("10", cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Seconds != 600 || got.Text != "10 минут" {
		t.Fatalf("bare integer should use default unit: got %#v", got)
	}
}

func TestResolveBounds(t *testing.T) {
	t.Parallel()

	cfg := RestrictConfig()

	got, err := Resolve("5000d", cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != cfg.Max {
		t.Fatalf("above-max query must return the configured max literally: got %#v", got)
	}

	got, err = Resolve("1s", cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != cfg.Min {
		t.Fatalf("below-min query must return the configured min literally: got %#v", got)
	}
}

func TestResolveBanPermanentSentinel(t *testing.T) {
	t.Parallel()

	cfg := BanConfig()
	for _, query := range []string{"-1", "0", "-1s", "0d"} {
		got, err := Resolve(query, cfg)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", query, err)
		}
		if got != cfg.Permanent {
			t.Fatalf("query %q should resolve to permanent, got %#v", query, got)
		}
	}
}

func TestResolveInverseStable(t *testing.T) {
	t.Parallel()

	cfg := RestrictConfig()
	for _, query := range []string{"45s", "2m", "10m", "3h", "5d"} {
		first, err := Resolve(query, cfg)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", query, err)
		}
		var amount int64
		if _, err := fmt.Sscanf(first.Text, "%d", &amount); err != nil {
			t.Fatalf("cant read amount back from %q: %v", first.Text, err)
		}
		again, err := Resolve(fmt.Sprintf("%d%s", amount, query[len(query)-1:]), cfg)
		if err != nil {
			t.Fatalf("unexpected error reparsing %q: %v", query, err)
		}
		if again.Seconds != first.Seconds {
			t.Fatalf("reparse of %q drifted: %d != %d", query, again.Seconds, first.Seconds)
		}
	}
}

func TestResolveRejectsMalformedQueries(t *testing.T) {
	t.Parallel()

	cfg := RestrictConfig()
	for _, query := range []string{"10x", "m", "tenm", "1.5h", "10 m"} {
		if _, err := Resolve(query, cfg); !errors.Is(err, apperrors.ErrDurationParse) {
			t.Fatalf("query %q should fail with ErrDurationParse, got %v", query, err)
		}
	}
}

func TestPlural(t *testing.T) {
	t.Parallel()

	forms := PluralForms{Form1: "минуту", Form2: "минуты", Form3: "минут"}
	tests := []struct {
		n    int64
		want string
	}{
		{1, "минуту"},
		{2, "минуты"},
		{5, "минут"},
		{11, "минут"},
		{12, "минут"},
		{21, "минуту"},
		{22, "минуты"},
		{25, "минут"},
		{100, "минут"},
		{101, "минуту"},
	}
	for _, tt := range tests {
		if got := Plural(tt.n, forms); got != tt.want {
			t.Fatalf("Plural(%d): got %q want %q", tt.n, got, tt.want)
		}
	}
}
