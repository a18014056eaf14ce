package text

import (
	"strings"
	"testing"
)

func TestRenderColorTag(t *testing.T) {
	got := Render("|red|warning|-| plain")
	if !strings.Contains(got, "warning") {
		t.Fatalf("Render dropped literal text: %q", got)
	}
	if !strings.Contains(got, "\x1b[31m") {
		t.Fatalf("Render missing red escape: %q", got)
	}
	if !strings.Contains(got, "\x1b[0m") {
		t.Fatalf("Render missing reset escape: %q", got)
	}
}

func TestRenderLiteralBarEscape(t *testing.T) {
	got := Render("a||b")
	if got != "a|b" {
		t.Fatalf("Render(%q) = %q, want %q", "a||b", got, "a|b")
	}
}

func TestRenderUnterminatedTagTreatedLiteral(t *testing.T) {
	got := Render("hello |oops")
	if got != "hello |oops" {
		t.Fatalf("Render(%q) = %q, want unchanged", "hello |oops", got)
	}
}

func TestRenderUnknownTagNameIsPlain(t *testing.T) {
	got := Render("|bogus|hi|-|")
	if got != "hi" {
		t.Fatalf("Render(%q) = %q, want %q", "|bogus|hi|-|", got, "hi")
	}
}

func TestStripRemovesMarkup(t *testing.T) {
	got := Strip("|green|go|-| home")
	if got != "go home" {
		t.Fatalf("Strip = %q, want %q", got, "go home")
	}
}

func TestWordListSizes(t *testing.T) {
	cases := []struct {
		in   []string
		want string
	}{
		{nil, ""},
		{[]string{"sword"}, "sword"},
		{[]string{"sword", "shield"}, "sword and shield"},
		{[]string{"sword", "shield", "torch"}, "sword, shield, and torch"},
	}
	for _, c := range cases {
		if got := WordList(c.in); got != c.want {
			t.Errorf("WordList(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestTokenizeCollapsesWhitespace(t *testing.T) {
	got := Tokenize("  look   at   sword  ")
	want := []string{"look", "at", "sword"}
	if len(got) != len(want) {
		t.Fatalf("Tokenize = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Tokenize = %v, want %v", got, want)
		}
	}
}
