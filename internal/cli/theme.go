package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/docchat/internal/models"
)

// Theme holds the color scheme for terminal output.
type Theme struct {
	Status     lipgloss.Color
	Success    lipgloss.Color
	Error      lipgloss.Color
	Hint       lipgloss.Color
	User       lipgloss.Color
	Assistant  lipgloss.Color
	ProgressBg lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:     lipgloss.Color("#5FAFD7"), // light blue
	Success:    lipgloss.Color("#00D787"), // green
	Error:      lipgloss.Color("#FF005F"), // red
	Hint:       lipgloss.Color("#6C6C6C"), // dim gray
	User:       lipgloss.Color("#AF87FF"), // violet
	Assistant:  lipgloss.Color("#FFAF00"), // amber
	ProgressBg: lipgloss.Color("#3A3A3A"), // dark gray
}

// Style functions for dynamic theming
func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

func (t Theme) authorStyle(a models.Author) lipgloss.Style {
	switch a {
	case models.AuthorUser:
		return lipgloss.NewStyle().Foreground(t.User).Bold(true)
	case models.AuthorAssistant:
		return lipgloss.NewStyle().Foreground(t.Assistant).Bold(true)
	default:
		return lipgloss.NewStyle().Foreground(t.Hint).Bold(true)
	}
}

// messageHeader renders "<avatar> <name>  <time>".
func (t Theme) messageHeader(m models.Message) string {
	name := m.Author.DisplayName()
	if m.Avatar != "" {
		name = m.Avatar + " " + name
	}
	return t.authorStyle(m.Author).Render(name) + "  " + t.hintStyle().Render(m.Timestamp)
}

// renderSources formats citations, one per line.
func (t Theme) renderSources(sources []models.Source) string {
	if len(sources) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(t.hintStyle().Render("Sources:"))
	b.WriteString("\n")
	for i, s := range sources {
		fmt.Fprintf(&b, "  [%d] %s", i+1, s.Title)
		if s.Description != "" {
			fmt.Fprintf(&b, " - %s", s.Description)
		}
		if s.URL != nil && *s.URL != "" {
			b.WriteString(" " + t.hintStyle().Render(*s.URL))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// printMessage writes a complete message with its sources.
func (t Theme) printMessage(w io.Writer, m models.Message) {
	fmt.Fprintln(w, t.messageHeader(m))
	if m.Author == models.AuthorSystem {
		fmt.Fprintln(w, t.hintStyle().Render(m.Content))
	} else {
		fmt.Fprintln(w, m.Content)
	}
	if src := t.renderSources(m.Sources); src != "" {
		fmt.Fprint(w, src)
	}
	fmt.Fprintln(w)
}
