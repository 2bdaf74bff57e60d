package cli

import (
	"fmt"
	"strings"
	"time"

	"checklist/api/internal/checklist"
	"checklist/api/internal/store"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

const progressBarWidth = 20

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func progressBar(ratio float64) string {
	filled := int(ratio*progressBarWidth + 0.5)
	if filled > progressBarWidth {
		filled = progressBarWidth
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", progressBarWidth-filled)
}

func percent(ratio float64) string {
	return fmt.Sprintf("%d%%", int(ratio*100+0.5))
}

// renderSession draws one session with numbered items, mandatory markers,
// attribution and comments.
func renderSession(view checklist.SessionView) string {
	s := view.Session
	p := view.Progress

	var b strings.Builder
	b.WriteString(titleStyle.Render(s.SessionName))
	b.WriteString(mutedStyle.Render(fmt.Sprintf("  %s · %s", s.TemplateName, s.ID)))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s  %d/%d checked · mandatory %d/%d\n",
		progressBar(p.OverallRatio), percent(p.OverallRatio),
		p.CheckedCount, p.Total, p.CheckedMandatoryCount, p.MandatoryCount)
	b.WriteString("\n")

	for i := 0; i < s.Len(); i++ {
		box := "[ ]"
		if s.Checked[i] {
			box = successStyle.Render("[x]")
		}
		marker := " "
		if s.Mandatory[i] {
			marker = warningStyle.Render("*")
		}
		fmt.Fprintf(&b, "%3d. %s %s%s", i+1, box, s.Items[i], marker)
		if user := s.UserNames[i]; user != "" {
			if s.Checked[i] {
				b.WriteString(mutedStyle.Render("  checked by " + user))
			} else {
				b.WriteString(mutedStyle.Render("  last checked by " + user))
			}
		}
		b.WriteString("\n")
		if comment := strings.TrimSpace(s.Comments[i]); comment != "" {
			b.WriteString(mutedStyle.Render("       # " + comment))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	switch {
	case s.Completed:
		b.WriteString(successStyle.Render("COMPLETED"))
	case p.MandatorySatisfied():
		b.WriteString(successStyle.Render("All mandatory items checked, ready to complete"))
	default:
		open := p.MandatoryCount - p.CheckedMandatoryCount
		b.WriteString(warningStyle.Render(fmt.Sprintf("%d mandatory item(s) open", open)))
	}
	return boxStyle.Render(b.String())
}

func renderSessionList(sessions []checklist.SessionSummary, now time.Time) string {
	if len(sessions) == 0 {
		return mutedStyle.Render("No sessions.")
	}
	var b strings.Builder
	for _, s := range sessions {
		fmt.Fprintf(&b, "%s  %s  %s %s  %s\n",
			titleStyle.Render(s.SessionName),
			mutedStyle.Render(s.ID),
			s.TemplateName,
			percent(s.Progress.OverallRatio),
			mutedStyle.Render("started "+humanize.RelTime(s.CreatedAt, now, "ago", "from now")),
		)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderTemplateList(templates []checklist.TemplateSummary) string {
	if len(templates) == 0 {
		return mutedStyle.Render("No templates.")
	}
	var b strings.Builder
	for _, t := range templates {
		fmt.Fprintf(&b, "%s  %d items (%d mandatory)  ~%d min\n",
			titleStyle.Render(t.Name), t.ItemCount, t.MandatoryCount, t.EstimatedMinutes)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderTemplate(tpl store.Template) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(tpl.Name))
	b.WriteString("\n")
	for i, item := range tpl.Items {
		marker := mutedStyle.Render(" (optional)")
		if i < len(tpl.Mandatory) && tpl.Mandatory[i] {
			marker = warningStyle.Render(" *")
		}
		fmt.Fprintf(&b, "%3d. %s%s\n", i+1, item, marker)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderError(err error) string {
	return errorStyle.Render("error: " + err.Error())
}
