package adapter

import (
	"strings"
	"testing"

	kit "staffbot/internal/transport"
)

func TestSplitTelegramTextShortIsSingleChunk(t *testing.T) {
	t.Parallel()

	got := splitTelegramText("hello", 10, "")
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitTelegramTextPrefersNewlines(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("a", 8) + "\n" + strings.Repeat("b", 8)
	got := splitTelegramText(text, 12, "")
	if len(got) != 2 || got[0] != strings.Repeat("a", 8) || got[1] != strings.Repeat("b", 8) {
		t.Fatalf("got %q", got)
	}
}

func TestSplitTelegramTextKeepsHTMLTagsWhole(t *testing.T) {
	t.Parallel()

	text := "abcdefgh<b>bold</b>"
	got := splitTelegramText(text, 10, "HTML")
	if got[0] != "abcdefgh" {
		t.Fatalf("first chunk %q", got[0])
	}
	if strings.Join(got, "") != text {
		t.Fatalf("content lost: %q", got)
	}
}

func TestSplitTelegramTextCountsRunes(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("я", 25)
	got := splitTelegramText(text, 10, "")
	if len(got) != 3 || len([]rune(got[2])) != 5 {
		t.Fatalf("got %q", got)
	}
}

func TestMenuHashChangesWithContent(t *testing.T) {
	t.Parallel()

	a := menuHash([]kit.BotCommand{{Command: "start", Description: "Начать"}})
	b := menuHash([]kit.BotCommand{{Command: "start", Description: "Старт"}})
	if a == b {
		t.Fatalf("hash should differ")
	}
}
