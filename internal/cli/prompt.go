package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/wippyai/witdeps/compose"
	"github.com/wippyai/witdeps/errors"
	"github.com/wippyai/witdeps/pipeline"
	"golang.org/x/term"
)

func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// Prompt asks for the component and interfaces in the terminal.
type Prompt struct {
	ComponentID string

	run func(*chooser) (*chooser, error)
}

func (p *Prompt) Component(ids []string) (string, error) {
	if p.ComponentID != "" || len(ids) < 2 {
		return pipeline.Scripted{ComponentID: p.ComponentID}.Component(ids)
	}
	items := make([]choice, len(ids))
	for i, id := range ids {
		items[i] = choice{value: id}
	}
	picked, err := p.choose(newChooser("Select the component to add dependencies to", items, false))
	if err != nil {
		return "", err
	}
	return picked[0], nil
}

func (p *Prompt) Interfaces(candidates []compose.Candidate) (compose.Selection, error) {
	var items []choice
	for _, c := range candidates {
		items = append(items, choice{value: c.Package.String(), note: "all interfaces"})
		for _, q := range c.Qualified() {
			items = append(items, choice{value: q, indent: true})
		}
	}
	picked, err := p.choose(newChooser("Select interfaces to import", items, true))
	if err != nil {
		return compose.Selection{}, err
	}
	return compose.SelectInterfaces(candidates, picked...)
}

func (p *Prompt) choose(m *chooser) ([]string, error) {
	run := p.run
	if run == nil {
		run = runChooser
	}
	final, err := run(m)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseSelect, errors.KindIOFailure, err, "prompt")
	}
	if final.canceled {
		return nil, errors.InvalidInput(errors.PhaseSelect, "selection canceled")
	}
	picked := final.values()
	if len(picked) == 0 {
		return nil, errors.InvalidInput(errors.PhaseSelect, "nothing selected")
	}
	return picked, nil
}

func runChooser(m *chooser) (*chooser, error) {
	out, err := tea.NewProgram(m).Run()
	if err != nil {
		return nil, err
	}
	return out.(*chooser), nil
}

type choice struct {
	value  string
	note   string
	indent bool
}

// chooser is a filterable list with single or multiple selection.
type chooser struct {
	title    string
	items    []choice
	visible  []int
	picked   map[int]bool
	filter   textinput.Model
	cursor   int
	multi    bool
	done     bool
	canceled bool
}

func newChooser(title string, items []choice, multi bool) *chooser {
	ti := textinput.New()
	ti.Placeholder = "type to filter"
	ti.Prompt = "/ "
	ti.Width = 40
	ti.Focus()
	m := &chooser{
		title:  title,
		items:  items,
		picked: map[int]bool{},
		filter: ti,
		multi:  multi,
	}
	m.refilter()
	return m
}

func (m *chooser) Init() tea.Cmd {
	return textinput.Blink
}

func (m *chooser) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		return m, cmd
	}
	switch key.String() {
	case "ctrl+c", "esc":
		m.canceled = true
		return m, tea.Quit
	case "up":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case "down":
		if m.cursor < len(m.visible)-1 {
			m.cursor++
		}
		return m, nil
	case " ", "space", "tab":
		if m.multi {
			if i, ok := m.current(); ok {
				m.picked[i] = !m.picked[i]
			}
			return m, nil
		}
	case "enter":
		i, ok := m.current()
		if !m.multi {
			m.picked = map[int]bool{}
		}
		if ok && (!m.multi || len(m.values()) == 0) {
			m.picked[i] = true
		}
		m.done = true
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m.refilter()
	return m, cmd
}

func (m *chooser) current() (int, bool) {
	if m.cursor < 0 || m.cursor >= len(m.visible) {
		return 0, false
	}
	return m.visible[m.cursor], true
}

func (m *chooser) refilter() {
	q := strings.ToLower(strings.TrimSpace(m.filter.Value()))
	m.visible = m.visible[:0]
	for i, it := range m.items {
		if q == "" || strings.Contains(strings.ToLower(it.value), q) {
			m.visible = append(m.visible, i)
		}
	}
	if m.cursor >= len(m.visible) {
		m.cursor = max(len(m.visible)-1, 0)
	}
}

// values returns the picked items in list order.
func (m *chooser) values() []string {
	var out []string
	for i, it := range m.items {
		if m.picked[i] {
			out = append(out, it.value)
		}
	}
	return out
}

func (m *chooser) View() string {
	if m.done || m.canceled {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")
	b.WriteString(m.filter.View())
	b.WriteString("\n\n")
	if len(m.visible) == 0 {
		b.WriteString(errorStyle.Render("no match"))
		b.WriteString("\n")
	}
	for row, i := range m.visible {
		it := m.items[i]
		line := it.value
		if it.indent {
			line = "  " + line
		}
		if m.multi {
			box := "[ ] "
			if m.picked[i] {
				box = "[x] "
			}
			line = box + line
		}
		if it.note != "" {
			line += " " + helpStyle.Render("("+it.note+")")
		}
		if row == m.cursor {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString("  " + nameStyle.Render(line))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	if m.multi {
		b.WriteString(helpStyle.Render(fmt.Sprintf("↑/↓ move • space toggle • enter confirm (%d picked) • esc cancel", len(m.values()))))
	} else {
		b.WriteString(helpStyle.Render("↑/↓ move • enter select • esc cancel"))
	}
	return b.String()
}
