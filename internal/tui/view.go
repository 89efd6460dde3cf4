package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/handiism/cloudreve-downloader/internal/download"
	"github.com/handiism/cloudreve-downloader/internal/model"
)

var (
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4F9DDE"))
	headerStyle = accentStyle.Bold(true).MarginBottom(1)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C757D"))
	statsStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#A8DADC"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	summaryBox  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#4F9DDE")).
			Padding(1, 2)
)

// levelMarks decides how each event level is drawn in the event pane.
var levelMarks = map[download.ProgressLevel]struct {
	prefix string
	style  lipgloss.Style
}{
	download.LevelInfo:    {"›", statsStyle},
	download.LevelVerbose: {"·", mutedStyle},
	download.LevelWarning: {"!", lipgloss.NewStyle().Foreground(lipgloss.Color("#FFE66D"))},
	download.LevelError:   {"✗", lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))},
	download.LevelSuccess: {"✓", lipgloss.NewStyle().Foreground(lipgloss.Color("#95E1A3"))},
}

var helpLines = map[State]string{
	StateInitializing: "esc: cancel",
	StateDownloading:  "esc: cancel",
	StateComplete:     "r: new download • q: quit",
	StateError:        "r: new download • q: quit",
}

// View renders the UI.
func (m Model) View() string {
	sections := []string{
		headerStyle.Render("☁ Cloudreve Downloader"),
	}

	switch m.state {
	case StateInput:
		sections = append(sections, m.inputPane())
	case StateInitializing:
		sections = append(sections,
			m.spinner.View()+" "+accentStyle.Render("Listing share and resolving links..."),
			m.eventPane())
	case StateDownloading:
		sections = append(sections, m.transferPane(), m.eventPane())
	case StateComplete:
		sections = append(sections, summaryBox.Render(m.summary()), m.eventPane())
	case StateError:
		sections = append(sections, failStyle.Render("✗ "+errText(m.err)))
	}

	sections = append(sections, mutedStyle.Render(m.help()))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) inputPane() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s\n\n", accentStyle.Render("Share URL:"), m.textInput.View())
	fmt.Fprintf(&b, "%s Refresh cached listing (r)\n", checkbox(m.refresh))
	fmt.Fprintf(&b, "%s Verbose/debug output (v)\n\n", checkbox(m.verbose))
	b.WriteString(mutedStyle.Render(fmt.Sprintf("into %s • log %s", m.settings.DownloadRoot, m.settings.Log.File)))
	b.WriteString("\n")
	return b.String()
}

func (m Model) transferPane() string {
	stats := fmt.Sprintf("%d/%d files • %s/%s",
		m.downloadedFiles, m.totalFiles,
		model.FormatSize(m.receivedBytes), model.FormatSize(m.totalBytes))

	return lipgloss.JoinVertical(lipgloss.Left,
		accentStyle.Render(fmt.Sprintf("Share %s (%d files listed)", m.share, m.fileCount)),
		m.progress.View(),
		statsStyle.Render(stats),
		"",
	)
}

func (m Model) summary() string {
	return fmt.Sprintf("Share %s downloaded\n\n%d/%d files\n%s",
		m.share, m.downloadedFiles, m.totalFiles, model.FormatSize(m.receivedBytes))
}

func (m Model) eventPane() string {
	lines := make([]string, 0, len(m.logs))
	for _, entry := range m.logs {
		mark, ok := levelMarks[entry.Level]
		if !ok {
			mark = levelMarks[download.LevelInfo]
		}
		lines = append(lines, mark.style.Render(mark.prefix+" "+entry.Message))
	}
	return strings.Join(lines, "\n") + "\n"
}

func (m Model) help() string {
	if m.state != StateInput {
		return helpLines[m.state]
	}
	if m.textInput.Focused() {
		return "enter: start • tab: options • esc: quit"
	}
	return "enter: start • r: refresh • v: verbose • tab: edit URL • esc: quit"
}

func checkbox(on bool) string {
	if on {
		return "[×]"
	}
	return "[ ]"
}

func errText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
