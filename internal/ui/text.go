package ui

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Default truncation settings for block text display
const (
	DefaultMaxLines     = 15  // max lines before a block's text is elided
	DefaultContextLines = 5   // lines kept at each end when eliding
	DefaultMaxChars     = 500 // max chars for inline truncation
	DefaultContextChars = 200 // chars kept at each end when eliding
)

// TruncateLines truncates text to maxLines, keeping context from the
// beginning and end with a hidden-line marker in the middle. Text with
// fewer lines than maxLines is returned unchanged.
func TruncateLines(text string, maxLines, contextLines int) string {
	if text == "" {
		return text
	}

	lines := strings.Split(text, "\n")
	total := len(lines)
	if total <= maxLines {
		return text
	}

	if contextLines < 1 {
		contextLines = DefaultContextLines
	}
	// Not enough room for head+marker+tail: plain prefix cut.
	if maxLines < contextLines*2+3 {
		return strings.Join(lines[:maxLines], "\n") + "\n..."
	}

	hidden := total - contextLines*2

	var b strings.Builder
	b.WriteString(strings.Join(lines[:contextLines], "\n"))
	b.WriteString("\n")
	b.WriteString(RenderMuted(strings.Repeat("─", 40)))
	b.WriteString("\n")
	b.WriteString(RenderMuted("... [" + strconv.Itoa(hidden) + " lines hidden - use --full for complete text] ..."))
	b.WriteString("\n")
	b.WriteString(RenderMuted(strings.Repeat("─", 40)))
	b.WriteString("\n")
	b.WriteString(strings.Join(lines[total-contextLines:], "\n"))
	return b.String()
}

// TruncateChars truncates text to maxChars, keeping context from the
// beginning and end. Breaks at word boundaries where possible.
func TruncateChars(text string, maxChars, contextChars int) string {
	if text == "" {
		return text
	}

	runeCount := utf8.RuneCountInString(text)
	if runeCount <= maxChars {
		return text
	}

	if contextChars < 50 {
		contextChars = DefaultContextChars
	}
	const markerLen = 50 // approximate width of the hidden-chars marker
	if maxChars < contextChars*2+markerLen {
		return truncateAtWordBoundary(text, maxChars-3) + "..."
	}

	runes := []rune(text)
	begin := truncateAtWordBoundary(string(runes[:contextChars]), contextChars)
	end := truncateFromWordBoundary(string(runes[runeCount-contextChars:]), contextChars)

	hidden := runeCount - utf8.RuneCountInString(begin) - utf8.RuneCountInString(end)
	return begin + "\n" + RenderMuted("... ["+strconv.Itoa(hidden)+" chars hidden] ...") + "\n" + end
}

// TruncateSimple performs plain end truncation with a "..." suffix.
// UTF-8 safe.
func TruncateSimple(text string, maxLen int) string {
	if utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	if maxLen <= 3 {
		return "..."
	}
	runes := []rune(text)
	return string(runes[:maxLen-3]) + "..."
}

// WrapText wraps text at word boundaries to fit within maxWidth.
// Preserves existing line breaks.
func WrapText(text string, maxWidth int) string {
	if maxWidth <= 0 {
		maxWidth = 80
	}

	var b strings.Builder
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(wrapLine(line, maxWidth))
	}
	return b.String()
}

func wrapLine(line string, maxWidth int) string {
	if utf8.RuneCountInString(line) <= maxWidth {
		return line
	}

	var b strings.Builder
	currentLen := 0
	for _, word := range strings.Fields(line) {
		wordLen := utf8.RuneCountInString(word)

		// First word on a line always lands, even when overlong.
		if currentLen == 0 {
			b.WriteString(word)
			currentLen = wordLen
			continue
		}

		if currentLen+1+wordLen <= maxWidth {
			b.WriteString(" ")
			b.WriteString(word)
			currentLen += 1 + wordLen
		} else {
			b.WriteString("\n")
			b.WriteString(word)
			currentLen = wordLen
		}
	}
	return b.String()
}

// truncateAtWordBoundary cuts text down to roughly maxLen runes,
// preferring to break at whitespace within the last 50 runes.
func truncateAtWordBoundary(text string, maxLen int) string {
	if utf8.RuneCountInString(text) <= maxLen {
		return text
	}

	runes := []rune(text)
	if maxLen >= len(runes) {
		return text
	}

	lastSpace := -1
	for i := maxLen - 1; i >= maxLen-50 && i >= 0; i-- {
		if runes[i] == ' ' || runes[i] == '\n' || runes[i] == '\t' {
			lastSpace = i
			break
		}
	}
	if lastSpace > 0 {
		return strings.TrimRight(string(runes[:lastSpace]), " \t")
	}
	return string(runes[:maxLen])
}

// truncateFromWordBoundary removes text from the beginning, keeping
// roughly maxLen runes and preferring to start after whitespace.
func truncateFromWordBoundary(text string, maxLen int) string {
	runeCount := utf8.RuneCountInString(text)
	if runeCount <= maxLen {
		return text
	}

	runes := []rune(text)
	start := runeCount - maxLen
	for i := start; i < start+50 && i < runeCount; i++ {
		if runes[i] == ' ' || runes[i] == '\n' || runes[i] == '\t' {
			return strings.TrimLeft(string(runes[i+1:]), " \t")
		}
	}
	return string(runes[start:])
}

// ShouldTruncate reports whether text exceeds the given thresholds.
func ShouldTruncate(text string, maxLines, maxChars int) bool {
	if maxChars > 0 && utf8.RuneCountInString(text) > maxChars {
		return true
	}
	if maxLines > 0 && strings.Count(text, "\n")+1 > maxLines {
		return true
	}
	return false
}
