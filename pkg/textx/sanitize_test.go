package textx

import "testing"

func TestSanitizeText(t *testing.T) {
	in := "he\x00llo\nwo\x7frld\t!"
	got := SanitizeText(in)
	if got != "hello\nworld\t!" {
		t.Fatalf("unexpected: %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Fatalf("unexpected: %q", got)
	}
	if got := Truncate("0123456789", 4); got != "0123…" {
		t.Fatalf("unexpected: %q", got)
	}
	if got := Truncate("héllo wörld", 5); got != "héllo…" {
		t.Fatalf("unexpected: %q", got)
	}
	if got := Truncate("anything", 0); got != "anything" {
		t.Fatalf("unexpected: %q", got)
	}
}
