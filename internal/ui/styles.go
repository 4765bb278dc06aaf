// Package ui provides terminal styling for membank CLI output.
// Uses the Ayu color theme with adaptive light/dark mode support.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Ayu theme color palette
// Dark: https://terminalcolors.com/themes/ayu/dark/
// Light: https://terminalcolors.com/themes/ayu/light/
var (
	ColorPass = lipgloss.AdaptiveColor{
		Light: "#86b300", // ayu light bright green
		Dark:  "#c2d94c", // ayu dark bright green
	}
	ColorWarn = lipgloss.AdaptiveColor{
		Light: "#f2ae49", // ayu light bright yellow
		Dark:  "#ffb454", // ayu dark bright yellow
	}
	ColorFail = lipgloss.AdaptiveColor{
		Light: "#f07171", // ayu light bright red
		Dark:  "#f07178", // ayu dark bright red
	}
	ColorMuted = lipgloss.AdaptiveColor{
		Light: "#828c99", // ayu light muted
		Dark:  "#6c7680", // ayu dark muted
	}
	ColorAccent = lipgloss.AdaptiveColor{
		Light: "#399ee6", // ayu light bright blue
		Dark:  "#59c2ff", // ayu dark bright blue
	}
	ColorViolet = lipgloss.AdaptiveColor{
		Light: "#a37acc", // ayu light purple
		Dark:  "#d2a6ff", // ayu dark purple
	}
)

// Status styles - consistent across all commands
var (
	PassStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle   = lipgloss.NewStyle().Foreground(ColorFail)
	MutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	AccentStyle = lipgloss.NewStyle().Foreground(ColorAccent)
	VioletStyle = lipgloss.NewStyle().Foreground(ColorViolet)
)

// CategoryStyle for section headers - bold with accent color
var CategoryStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)

// BranchStyle marks the active branch in status and log output.
var BranchStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorViolet)

// Status icons - consistent semantic indicators
const (
	IconPass = "✓"
	IconWarn = "⚠"
	IconFail = "✗"
	IconSkip = "-"
)

// Tree characters for link/hierarchy display
const (
	TreeChild  = "⎿ "  // child indicator
	TreeLast   = "└─ " // last child / detail line
	TreeIndent = "  "  // 2-space indent per level
)

// SeparatorLight divides sections of command output.
const SeparatorLight = "──────────────────────────────────────────"

// blockTypeColors maps each block type to its display color. Types
// missing from the map render in the muted style.
var blockTypeColors = map[string]lipgloss.Style{
	"knowledge":   AccentStyle,
	"doc":         PassStyle,
	"task":        WarnStyle,
	"project":     CategoryStyle,
	"epic":        VioletStyle,
	"bug":         FailStyle,
	"interaction": MutedStyle,
	"log":         MutedStyle,
}

// RenderPass renders text with pass (green) styling
func RenderPass(s string) string {
	return PassStyle.Render(s)
}

// RenderWarn renders text with warning (yellow) styling
func RenderWarn(s string) string {
	return WarnStyle.Render(s)
}

// RenderFail renders text with fail (red) styling
func RenderFail(s string) string {
	return FailStyle.Render(s)
}

// RenderMuted renders text with muted (gray) styling
func RenderMuted(s string) string {
	return MutedStyle.Render(s)
}

// RenderAccent renders text with accent (blue) styling
func RenderAccent(s string) string {
	return AccentStyle.Render(s)
}

// RenderCategory renders a category header in uppercase with accent color
func RenderCategory(s string) string {
	return CategoryStyle.Render(strings.ToUpper(s))
}

// RenderSeparator renders the light separator line in muted color
func RenderSeparator() string {
	return MutedStyle.Render(SeparatorLight)
}

// RenderBlockType renders a block type tag in its semantic color.
func RenderBlockType(blockType string) string {
	if style, ok := blockTypeColors[blockType]; ok {
		return style.Render(blockType)
	}
	return MutedStyle.Render(blockType)
}

// RenderBranch renders a branch name, highlighted when active.
func RenderBranch(name string, active bool) string {
	if active {
		return BranchStyle.Render("* " + name)
	}
	return "  " + name
}

// RenderScore renders a similarity score, colored by strength.
func RenderScore(score float64) string {
	text := fmt.Sprintf("%.3f", score)
	switch {
	case score >= 0.85:
		return PassStyle.Render(text)
	case score >= 0.6:
		return WarnStyle.Render(text)
	default:
		return MutedStyle.Render(text)
	}
}

// RenderKV renders an aligned "key: value" row for status output.
func RenderKV(key, value string) string {
	return fmt.Sprintf("  %s %s", MutedStyle.Render(fmt.Sprintf("%-12s", key+":")), value)
}

// RenderPassIcon renders the pass icon with styling
func RenderPassIcon() string {
	return PassStyle.Render(IconPass)
}

// RenderWarnIcon renders the warning icon with styling
func RenderWarnIcon() string {
	return WarnStyle.Render(IconWarn)
}

// RenderFailIcon renders the fail icon with styling
func RenderFailIcon() string {
	return FailStyle.Render(IconFail)
}

// RenderSkipIcon renders the skip icon with styling
func RenderSkipIcon() string {
	return MutedStyle.Render(IconSkip)
}
