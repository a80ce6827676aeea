package audit

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/richroberts-prog/air-demand/internal/model"
)

var (
	pickerTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				Padding(1, 0, 1, 2)

	pickerItemStyle = lipgloss.NewStyle().
			Padding(0, 0, 0, 4)

	pickerSelectedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39")).
				Bold(true).
				Padding(0, 0, 0, 2)

	pickerHintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Padding(1, 0, 0, 2)
)

// Scope is one selectable slice of the role table.
type Scope struct {
	Label string
	Query model.RoleQuery
}

// DefaultScopes are the slices offered by the audit picker.
func DefaultScopes(now time.Time) []Scope {
	return []Scope{
		{Label: "Active roles", Query: model.RoleQuery{Statuses: []model.LifecycleStatus{model.StatusActive}}},
		{Label: "Seen in the last 24h", Query: model.RoleQuery{SeenSince: now.Add(-24 * time.Hour)}},
		{Label: "Missing, pending removal", Query: model.RoleQuery{Statuses: []model.LifecycleStatus{model.StatusMissingPending}}},
		{Label: "Removed", Query: model.RoleQuery{Statuses: []model.LifecycleStatus{model.StatusRemoved}, Sort: "last_seen"}},
		{Label: "Everything", Query: model.RoleQuery{}},
	}
}

type pickerModel struct {
	scopes []Scope
	cursor int
	chosen int // -1 = no choice yet, -2 = quit
}

func (m pickerModel) Init() tea.Cmd {
	return nil
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.chosen = -2
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.scopes)-1 {
				m.cursor++
			}
		case "enter":
			m.chosen = m.cursor
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m pickerModel) View() string {
	s := pickerTitleStyle.Render("Gate Audit: select roles")
	s += "\n"

	for i, sc := range m.scopes {
		if i == m.cursor {
			s += pickerSelectedStyle.Render("> "+sc.Label) + "\n"
		} else {
			s += pickerItemStyle.Render(sc.Label) + "\n"
		}
	}

	s += pickerHintStyle.Render("↑/↓/j/k navigate  enter select  q quit")
	return s
}

// RunScopePicker shows an interactive scope selector.
// Returns the index of the chosen scope, or a negative value if the user quit.
func RunScopePicker(scopes []Scope) (int, error) {
	m := pickerModel{
		scopes: scopes,
		chosen: -1,
	}

	p := tea.NewProgram(m)
	result, err := p.Run()
	if err != nil {
		return -1, err
	}

	final := result.(pickerModel)
	return final.chosen, nil
}
