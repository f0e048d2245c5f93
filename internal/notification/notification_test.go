package notification

import (
	"strings"
	"testing"
)

func TestDrawNeverRepeatsBeforeExhaustion(t *testing.T) {
	t.Parallel()

	p, err := NewProvider()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	poolSize := len(p.source[CategoryReadOnly])
	if poolSize < 2 {
		t.Fatalf("read_only pool suspiciously small: %d", poolSize)
	}

	seen := map[string]struct{}{}
	for i := 0; i < poolSize; i++ {
		template := p.draw(CategoryReadOnly)
		if _, ok := seen[template]; ok {
			t.Fatalf("template repeated before pool exhaustion: %q", template)
		}
		seen[template] = struct{}{}
	}

	// One more draw reshuffles and may only repeat now.
	extra := p.draw(CategoryReadOnly)
	if _, ok := seen[extra]; !ok {
		t.Fatalf("post-reshuffle draw returned unknown template: %q", extra)
	}
	if remaining := len(p.pools[CategoryReadOnly]); remaining != poolSize-1 {
		t.Fatalf("expected exactly one reshuffle, pool has %d of %d left", remaining, poolSize)
	}
}

func TestRenderSubstitutesArguments(t *testing.T) {
	t.Parallel()

	p, err := NewProvider()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	text := p.ReadOnly("Вася", "10 минут")
	if !strings.Contains(text, "Вася") {
		t.Fatalf("rendered text misses first name: %q", text)
	}
	if !strings.Contains(text, "10 минут") {
		t.Fatalf("rendered text misses duration: %q", text)
	}

	rebuke := p.UnauthorizedPunishment("Петя", "5 минут")
	if !strings.Contains(rebuke, "Петя") || !strings.Contains(rebuke, "5 минут") {
		t.Fatalf("rendered rebuke is incomplete: %q", rebuke)
	}
}

func TestUnknownCategoryRendersEmpty(t *testing.T) {
	t.Parallel()

	p, err := NewProvider()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := p.draw("no_such_category"); got != "" {
		t.Fatalf("unknown category should draw empty string, got %q", got)
	}
}
