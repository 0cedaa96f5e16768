package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/wippyai/rive-ograf/asset"
	"github.com/wippyai/rive-ograf/config"
	"github.com/wippyai/rive-ograf/engine"
	"github.com/wippyai/rive-ograf/introspect"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	kindStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	takenStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			Strikethrough(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type pickState int

const (
	statePickPlay pickState = iota
	statePickStop
	stateEnterID
	stateDone
)

type pickerModel struct {
	err      error
	load     func() tea.Msg
	filename string
	play     string
	stop     string
	props    []engine.Property
	triggers []string
	id       textinput.Model
	selected int
	state    pickState
	loaded   bool
}

type propsMsg struct {
	err   error
	props []engine.Property
}

func newPickerModel(filename, id string, load func() tea.Msg) *pickerModel {
	ti := textinput.New()
	ti.Prompt = "id: "
	ti.Placeholder = "graphic id"
	ti.Width = 40
	ti.SetValue(id)

	return &pickerModel{
		filename: filename,
		load:     load,
		id:       ti,
		state:    statePickPlay,
	}
}

func (m *pickerModel) Init() tea.Cmd {
	return m.load
}

func (m *pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state != stateEnterID {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state != stateEnterID && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state != stateEnterID && m.selected < len(m.triggers)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case statePickPlay:
				if len(m.triggers) == 0 {
					return m, nil
				}
				m.play = m.triggers[m.selected]
				m.state = statePickStop
				m.selected = 0
				return m, nil

			case statePickStop:
				name := m.triggers[m.selected]
				if name == m.play {
					return m, nil
				}
				m.stop = name
				m.state = stateEnterID
				m.id.Focus()
				return m, textinput.Blink

			case stateEnterID:
				m.state = stateDone
				return m, tea.Quit
			}

		case "esc":
			switch m.state {
			case statePickStop:
				m.state = statePickPlay
				m.play = ""
			case stateEnterID:
				m.id.Blur()
				m.state = statePickStop
				m.stop = ""
			}
			m.selected = 0
			return m, nil
		}

	case propsMsg:
		m.loaded = true
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.props = msg.props
		for _, p := range msg.props {
			if p.Kind == engine.KindTrigger {
				m.triggers = append(m.triggers, p.Name)
			}
		}
		if len(m.triggers) < 2 {
			m.err = fmt.Errorf("%s has %d trigger(s), play and stop need two", m.filename, len(m.triggers))
		}
		return m, nil
	}

	if m.state == stateEnterID {
		var cmd tea.Cmd
		m.id, cmd = m.id.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *pickerModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if !m.loaded {
		return "Reading view model..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("OGraf Packager"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	switch m.state {
	case statePickPlay, statePickStop:
		action := "playAction"
		if m.state == statePickStop {
			action = "stopAction"
		}
		b.WriteString(fmt.Sprintf("Select the trigger fired by %s:\n\n", nameStyle.Render(action)))
		for i, name := range m.triggers {
			line := name
			switch {
			case name == m.play:
				b.WriteString("  " + takenStyle.Render(line+" (play)"))
			case i == m.selected:
				b.WriteString(selectedStyle.Render("> " + line))
			default:
				b.WriteString("  " + nameStyle.Render(line))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(m.propertySummary())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter choose • esc back • q quit"))

	case stateEnterID:
		b.WriteString(fmt.Sprintf("play: %s  stop: %s\n\n", nameStyle.Render(m.play), nameStyle.Render(m.stop)))
		b.WriteString(m.id.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter build • esc back"))
	}

	return b.String()
}

func (m *pickerModel) propertySummary() string {
	var parts []string
	for _, p := range m.props {
		if p.Kind == engine.KindTrigger {
			continue
		}
		parts = append(parts, p.Name+": "+kindStyle.Render(p.Kind.String()))
	}
	if len(parts) == 0 {
		return helpStyle.Render("no bindable properties")
	}
	return "Bindable: " + strings.Join(parts, ", ")
}

// pickTriggers lets the user choose the lifecycle triggers and graphic id,
// writing them into cfg.
func pickTriggers(ctx context.Context, eng engine.Engine, cfg *config.Config) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("interactive mode needs a terminal")
	}

	a, err := asset.Load(ctx, eng, asset.Source{Path: cfg.Asset})
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	intro := introspect.New(a, engine.InstanceOptions{StateMachine: cfg.Graphic.StateMachine})
	defer intro.Close(context.WithoutCancel(ctx))

	id := cfg.Package.ID
	if id == "" {
		id = a.Name()
	}
	model := newPickerModel(cfg.Asset, id, func() tea.Msg {
		props, err := intro.Properties(ctx)
		return propsMsg{props: props, err: err}
	})

	final, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil {
		return err
	}
	m := final.(*pickerModel)
	if m.state != stateDone {
		return fmt.Errorf("cancelled")
	}
	cfg.Triggers.Play = m.play
	cfg.Triggers.Stop = m.stop
	if v := strings.TrimSpace(m.id.Value()); v != "" {
		cfg.Package.ID = v
	}
	return nil
}
