// Package tui provides terminal user interface components for netbsd-imager
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/firefly-engineering/netbsd-imager/internal/release"
)

// Action represents the action to take after picker selection
type Action int

const (
	ActionNone Action = iota
	ActionSelect
	ActionQuit
)

// PickerResult holds the result of the picker
type PickerResult struct {
	Action  Action
	Release *release.Release
}

// releaseItem implements list.Item for release display
type releaseItem struct {
	release *release.Release
	current bool
}

func (i releaseItem) Title() string {
	if i.current {
		return i.release.Name + " (current)"
	}
	return i.release.Name
}

func (i releaseItem) Description() string {
	if !i.release.Dated() {
		return fmt.Sprintf("%s | undated", i.release.Branch)
	}
	return fmt.Sprintf("%s | %s | %s",
		i.release.Branch,
		i.release.Time.UTC().Format("2006-01-02 15:04 MST"),
		humanize.Time(i.release.Time),
	)
}

func (i releaseItem) FilterValue() string {
	return i.release.Name
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			MarginBottom(1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginTop(1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)
)

// Model is the bubbletea model for the release picker
type Model struct {
	list     list.Model
	result   PickerResult
	quitting bool
	width    int
	height   int
}

// NewPicker creates a new release picker. current marks the release the
// work directory was installed from, if any.
func NewPicker(releases []release.Release, current string) Model {
	items := make([]list.Item, len(releases))
	for i := range releases {
		items[i] = releaseItem{
			release: &releases[i],
			current: releases[i].Name == current,
		}
	}

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = selectedStyle
	delegate.Styles.SelectedDesc = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	title := "NetBSD Imager - Select Release"
	if len(releases) > 0 {
		title = fmt.Sprintf("NetBSD Imager - %s releases", releases[0].Branch)
	}

	l := list.New(items, delegate, 80, 20)
	l.Title = title
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = titleStyle

	return Model{list: l}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width, msg.Height-4)
		return m, nil

	case tea.KeyMsg:
		// Don't handle keys if filtering
		if m.list.FilterState() == list.Filtering {
			break
		}

		switch msg.String() {
		case "enter":
			if item, ok := m.list.SelectedItem().(releaseItem); ok {
				m.result = PickerResult{
					Action:  ActionSelect,
					Release: item.release,
				}
				m.quitting = true
				return m, tea.Quit
			}

		case "q", "esc":
			m.result = PickerResult{Action: ActionQuit}
			m.quitting = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	help := helpStyle.Render("[enter] Select  [/] Filter  [q] Quit")

	return m.list.View() + "\n" + help
}

// Result returns the picker result
func (m Model) Result() PickerResult {
	return m.result
}

// RunPicker runs the interactive release picker
func RunPicker(releases []release.Release, current string) (PickerResult, error) {
	if len(releases) == 0 {
		return PickerResult{Action: ActionNone}, nil
	}

	m := NewPicker(releases, current)
	p := tea.NewProgram(m, tea.WithAltScreen())

	finalModel, err := p.Run()
	if err != nil {
		return PickerResult{}, err
	}

	return finalModel.(Model).Result(), nil
}

// SimpleList renders releases as plain text for non-interactive output
func SimpleList(branch string, releases []release.Release, current string) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("NetBSD Imager - %s releases\n", branch))
	sb.WriteString(strings.Repeat("─", 60) + "\n\n")

	if len(releases) == 0 {
		sb.WriteString("No releases found.\n")
		sb.WriteString("Check the mirror settings, or set mirror.allow_undated.\n")
		return sb.String()
	}

	for i := range releases {
		r := &releases[i]
		marker := " "
		if r.Name == current {
			marker = "*"
		}
		when := "undated"
		if r.Dated() {
			when = r.Time.UTC().Format("2006-01-02 15:04 MST")
		}
		sb.WriteString(fmt.Sprintf("%s %s  %s\n", marker, r.Name, when))
	}

	return sb.String()
}
