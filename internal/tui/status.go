// Package tui provides the terminal dashboard for watching the task
// pipeline: queue depths per status, provider availability, and the most
// recent stage completions.
package tui

import (
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nexuscli/nexus/internal/archive"
	"github.com/nexuscli/nexus/pkg/models"
)

// refreshInterval is how often the dashboard re-polls its sources.
const refreshInterval = 2 * time.Second

// recentCount is how many archived completions the dashboard shows.
const recentCount = 8

// ProviderStatus is one row of the provider availability panel.
type ProviderStatus struct {
	Name      string
	Available bool
}

// Source supplies the dashboard's data. Implementations poll the queue,
// the provider registry, and the archive.
type Source interface {
	Counts() map[models.TaskStatus]int
	Providers() []ProviderStatus
	Recent(n int) ([]archive.Completion, error)
}

// snapshot is one polled view of all sources.
type snapshot struct {
	counts    map[models.TaskStatus]int
	providers []ProviderStatus
	recent    []archive.Completion
}

// tickMsg triggers a refresh.
type tickMsg time.Time

// snapshotMsg delivers freshly polled data.
type snapshotMsg snapshot

// StatusModel is the bubbletea model for the status dashboard.
type StatusModel struct {
	// source supplies queue, provider, and archive data.
	source Source
	// snap is the most recent polled data.
	snap snapshot
	// spin indicates background polling activity.
	spin spinner.Model
	// width is the terminal width.
	width int
	// quitting indicates the dashboard is shutting down.
	quitting bool

	headerStyle lipgloss.Style
	labelStyle  lipgloss.Style
	countStyle  lipgloss.Style
	okStyle     lipgloss.Style
	downStyle   lipgloss.Style
	dimStyle    lipgloss.Style
}

// NewStatus creates a dashboard over the given data source.
func NewStatus(source Source) *StatusModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))

	return &StatusModel{
		source: source,
		spin:   sp,
		width:  80,

		headerStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true),
		labelStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(14),
		countStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true),
		okStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")),
		downStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),
		dimStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")),
	}
}

// Init implements tea.Model.
func (m *StatusModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.poll(), tick())
}

// Update implements tea.Model.
func (m *StatusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, m.poll()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tickMsg:
		return m, tea.Batch(m.poll(), tick())

	case snapshotMsg:
		m.snap = snapshot(msg)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m *StatusModel) View() string {
	if m.quitting {
		return ""
	}

	sections := []string{
		m.spin.View() + " " + m.headerStyle.Render("nexus pipeline status"),
		"",
		m.queueView(),
		"",
		m.providerView(),
		"",
		m.recentView(),
		"",
		m.dimStyle.Render("r refresh · q quit"),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// queueView renders one line per task status.
func (m *StatusModel) queueView() string {
	lines := []string{m.headerStyle.Render("Queues")}
	for _, status := range models.AllStatuses() {
		lines = append(lines,
			m.labelStyle.Render(string(status))+
				m.countStyle.Render(strconv.Itoa(m.snap.counts[status])))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// providerView renders provider availability.
func (m *StatusModel) providerView() string {
	lines := []string{m.headerStyle.Render("Providers")}
	if len(m.snap.providers) == 0 {
		lines = append(lines, m.dimStyle.Render("none configured"))
	}
	for _, p := range m.snap.providers {
		mark := m.downStyle.Render("✗ down")
		if p.Available {
			mark = m.okStyle.Render("✓ up")
		}
		lines = append(lines, m.labelStyle.Render(p.Name)+mark)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// recentView renders the latest archived stage completions.
func (m *StatusModel) recentView() string {
	lines := []string{m.headerStyle.Render("Recent completions")}
	if len(m.snap.recent) == 0 {
		lines = append(lines, m.dimStyle.Render("nothing archived yet"))
	}
	for _, c := range m.snap.recent {
		lines = append(lines,
			m.dimStyle.Render(c.CreatedAt.Format("15:04:05"))+"  "+
				m.countStyle.Render(c.TaskID)+"  "+
				m.labelStyle.Render(c.Role)+
				m.dimStyle.Render(c.Provider+"/"+c.Model))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// poll fetches a fresh snapshot off the update loop.
func (m *StatusModel) poll() tea.Cmd {
	source := m.source
	return func() tea.Msg {
		snap := snapshot{
			counts:    source.Counts(),
			providers: source.Providers(),
		}
		if recent, err := source.Recent(recentCount); err == nil {
			snap.recent = recent
		}
		return snapshotMsg(snap)
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// RunStatus launches the dashboard and blocks until the user quits.
func RunStatus(source Source) error {
	p := tea.NewProgram(NewStatus(source), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
