package ui

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func makeLines(n int) string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %d", i+1)
	}
	return strings.Join(lines, "\n")
}

func TestTruncateLines(t *testing.T) {
	t.Run("short text unchanged", func(t *testing.T) {
		text := makeLines(10)
		if got := TruncateLines(text, 15, 5); got != text {
			t.Errorf("short text was modified: %q", got)
		}
	})

	t.Run("long text keeps both ends", func(t *testing.T) {
		text := makeLines(30)
		got := TruncateLines(text, 15, 5)
		if !strings.Contains(got, "line 1\n") {
			t.Error("beginning context missing")
		}
		if !strings.HasSuffix(got, "line 30") {
			t.Error("end context missing")
		}
		if strings.Contains(got, "line 15") {
			t.Error("middle line survived truncation")
		}
		if !strings.Contains(got, "20 lines hidden") {
			t.Errorf("hidden count missing: %q", got)
		}
	})

	t.Run("tiny budget cuts from the end", func(t *testing.T) {
		text := makeLines(30)
		got := TruncateLines(text, 4, 5)
		if !strings.HasSuffix(got, "...") {
			t.Errorf("expected plain prefix cut: %q", got)
		}
		if strings.Contains(got, "line 5") {
			t.Errorf("prefix cut kept too much: %q", got)
		}
	})

	t.Run("empty text", func(t *testing.T) {
		if got := TruncateLines("", 15, 5); got != "" {
			t.Errorf("got %q", got)
		}
	})
}

func TestTruncateChars(t *testing.T) {
	t.Run("short text unchanged", func(t *testing.T) {
		if got := TruncateChars("hello", 500, 200); got != "hello" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("long text keeps both ends", func(t *testing.T) {
		text := strings.TrimSpace(strings.Repeat("alpha beta gamma ", 100))
		got := TruncateChars(text, 500, 200)
		if !strings.Contains(got, "chars hidden") {
			t.Errorf("hidden marker missing: %q", got)
		}
		if !strings.HasPrefix(got, "alpha beta gamma") {
			t.Errorf("beginning context missing: %q", got)
		}
		if !strings.HasSuffix(got, "gamma") {
			t.Errorf("end context missing: %q", got)
		}
	})

	t.Run("tiny budget cuts from the end", func(t *testing.T) {
		text := strings.Repeat("word ", 100)
		got := TruncateChars(text, 100, 200)
		if !strings.HasSuffix(got, "...") {
			t.Errorf("expected suffix cut: %q", got)
		}
		if utf8.RuneCountInString(got) > 100 {
			t.Errorf("result too long: %d runes", utf8.RuneCountInString(got))
		}
	})
}

func TestTruncateSimple(t *testing.T) {
	tests := []struct {
		text   string
		maxLen int
		want   string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"hello", 3, "..."},
		{"héllo wörld", 8, "héllo..."},
	}
	for _, tt := range tests {
		if got := TruncateSimple(tt.text, tt.maxLen); got != tt.want {
			t.Errorf("TruncateSimple(%q, %d) = %q, want %q", tt.text, tt.maxLen, got, tt.want)
		}
	}
}

func TestWrapText(t *testing.T) {
	t.Run("wraps at word boundaries", func(t *testing.T) {
		got := WrapText("aaa bbb ccc", 7)
		if got != "aaa bbb\nccc" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("preserves existing breaks", func(t *testing.T) {
		got := WrapText("one\ntwo", 80)
		if got != "one\ntwo" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("overlong word stays whole", func(t *testing.T) {
		got := WrapText("short reallyreallylongword tail", 10)
		for _, line := range strings.Split(got, "\n") {
			if line == "" {
				t.Errorf("empty wrapped line in %q", got)
			}
		}
		if !strings.Contains(got, "reallyreallylongword") {
			t.Errorf("long word was split: %q", got)
		}
	})

	t.Run("non-positive width defaults to 80", func(t *testing.T) {
		text := strings.Repeat("x ", 30)
		if got := WrapText(text, 0); strings.Contains(got, "\n") {
			t.Errorf("60-char line wrapped under default width: %q", got)
		}
	})
}

func TestShouldTruncate(t *testing.T) {
	long := makeLines(30)
	if !ShouldTruncate(long, 15, 0) {
		t.Error("30 lines should exceed a 15-line budget")
	}
	if ShouldTruncate(long, 0, 0) {
		t.Error("zero thresholds never truncate")
	}
	if !ShouldTruncate(strings.Repeat("x", 600), 0, 500) {
		t.Error("600 chars should exceed a 500-char budget")
	}
	if ShouldTruncate("short", 15, 500) {
		t.Error("short text should not truncate")
	}
}
