package preview

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lepinkainen/og-monitor/pkg/monitor"
	"github.com/lepinkainen/og-monitor/pkg/platforms"
	"github.com/lepinkainen/og-monitor/pkg/validate"
)

// ViewMode represents the current view mode
type ViewMode int

// View modes for the preview TUI
const (
	ListViewMode ViewMode = iota
	DetailViewMode
	PlatformsViewMode
	TagsViewMode
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("12")).Bold(true)
	footerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	statusStyles = map[validate.Status]lipgloss.Style{
		validate.StatusHealthy: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		validate.StatusWarning: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11")),
		validate.StatusBroken:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
	}
)

// Model represents the Bubble Tea model for the preview TUI
type Model struct {
	report        *monitor.Report
	catalog       *platforms.Catalog
	cursor        int
	viewMode      ViewMode
	width         int
	height        int
	selectedIndex int // Index of the issue currently being viewed in detail
	now           func() time.Time
}

// NewModel creates a new preview model. A nil catalog uses the embedded one.
func NewModel(report *monitor.Report, catalog *platforms.Catalog) Model {
	if catalog == nil {
		catalog = platforms.Default()
	}
	return Model{
		report:        report,
		catalog:       catalog,
		viewMode:      ListViewMode,
		selectedIndex: -1,
		now:           time.Now,
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if m.viewMode == ListViewMode {
			return m.updateListView(msg)
		}
		return m.updateOtherView(msg)
	}

	return m, nil
}

// updateListView handles key presses in list view mode
func (m Model) updateListView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.report.Issues)-1 {
			m.cursor++
		}

	case "enter":
		if len(m.report.Issues) > 0 {
			m.selectedIndex = m.cursor
			m.viewMode = DetailViewMode
		}

	case "p":
		m.viewMode = PlatformsViewMode

	case "t":
		m.viewMode = TagsViewMode
	}

	return m, nil
}

// updateOtherView handles key presses outside the list
func (m Model) updateOtherView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.viewMode = ListViewMode
	case "p":
		m.viewMode = PlatformsViewMode
	case "t":
		m.viewMode = TagsViewMode
	}
	return m, nil
}

// View implements tea.Model
func (m Model) View() string {
	switch m.viewMode {
	case DetailViewMode:
		return m.renderDetailView()
	case PlatformsViewMode:
		return m.renderPlatformsView()
	case TagsViewMode:
		return m.renderTagsView()
	}
	return m.renderListView()
}

func (m Model) renderHeader() string {
	style, ok := statusStyles[m.report.Status]
	if !ok {
		style = headerStyle
	}
	return style.Render(strings.ToUpper(string(m.report.Status))) + " " +
		headerStyle.Render(summaryTail(m.report, m.now()))
}

// renderListView renders the metadata and the issue list
func (m Model) renderListView() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")
	b.WriteString(FormatMeta(m.report.Meta))
	b.WriteString("\n")

	issues := m.report.Issues
	if len(issues) == 0 {
		b.WriteString("No issues found\n")
	}

	visibleStart, visibleEnd := 0, len(issues)
	if m.height > 0 {
		maxVisible := max(m.height-16, 3)
		if maxVisible < len(issues) {
			// Keep cursor in the middle of the screen when possible
			visibleStart = max(m.cursor-maxVisible/2, 0)
			visibleEnd = visibleStart + maxVisible
			if visibleEnd > len(issues) {
				visibleEnd = len(issues)
				visibleStart = max(visibleEnd-maxVisible, 0)
			}
		}
	}

	for i := visibleStart; i < visibleEnd; i++ {
		line := FormatCompactIssue(i, issues[i])
		if i == m.cursor {
			b.WriteString(selectedStyle.Render("→ " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(footerStyle.Render("↑/↓ or j/k: navigate • enter: issue details • p: platform cards • t: suggested tags • q: quit"))

	return b.String()
}

// renderDetailView renders the selected issue
func (m Model) renderDetailView() string {
	if m.selectedIndex < 0 || m.selectedIndex >= len(m.report.Issues) {
		return "No issue selected"
	}

	var b strings.Builder
	b.WriteString(FormatDetailedIssue(m.report.Issues[m.selectedIndex]))
	b.WriteString("\n")
	b.WriteString(footerStyle.Render("esc: back to list • p: platform cards • t: suggested tags • q: quit"))
	return b.String()
}

// renderPlatformsView renders one approximate card per platform
func (m Model) renderPlatformsView() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Platform previews"))
	b.WriteString("\n\n")
	for _, p := range m.catalog.All() {
		b.WriteString(FormatPlatformCard(m.report.Meta, p))
		b.WriteString("\n")
	}
	b.WriteString(footerStyle.Render("esc: back to list • t: suggested tags • q: quit"))
	return b.String()
}

// renderTagsView renders the suggested meta tag snippet
func (m Model) renderTagsView() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Suggested meta tags"))
	b.WriteString("\n\n")
	b.WriteString(m.report.Tags)
	b.WriteString("\n")
	b.WriteString(footerStyle.Render("esc: back to list • p: platform cards • q: quit"))
	return b.String()
}

// Run starts the Bubble Tea program
func Run(report *monitor.Report, catalog *platforms.Catalog) error {
	if report == nil {
		fmt.Println("Nothing to preview")
		return nil
	}

	p := tea.NewProgram(NewModel(report, catalog), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
