package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/wippyai/wasm-dsp/plugin"
)

type interactiveModel struct {
	ctx      context.Context
	p        *plugin.Plugin
	opts     renderOpts
	label    string
	params   []plugin.Parameter
	values   []float32
	input    textinput.Model
	last     *renderResult
	err      error
	selected int
	state    modelState
}

type modelState int

const (
	stateSelectParam modelState = iota
	stateEditValue
)

func newInteractiveModel(ctx context.Context, p *plugin.Plugin, opts renderOpts) *interactiveModel {
	m := &interactiveModel{
		ctx:   ctx,
		p:     p,
		opts:  opts,
		label: p.Label(ctx),
		state: stateSelectParam,
	}
	m.params = p.Parameters(ctx)
	m.refreshValues()
	m.render()
	return m
}

func (m *interactiveModel) Init() tea.Cmd {
	return nil
}

// render is synchronous. The plugin is driven from the Update goroutine only.
func (m *interactiveModel) render() {
	res := render(m.ctx, m.p, m.opts)
	m.last = &res
}

func (m *interactiveModel) refreshValues() {
	m.values = make([]float32, len(m.params))
	for i, prm := range m.params {
		m.values[i] = m.p.ParameterValue(m.ctx, prm.Index)
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.state == stateEditValue {
			return m.updateEdit(msg)
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.selected < len(m.params)-1 {
				m.selected++
			}

		case "r":
			m.render()

		case "enter":
			if len(m.params) == 0 {
				return m, nil
			}
			ti := textinput.New()
			ti.Prompt = m.params[m.selected].Name + ": "
			ti.Placeholder = fmt.Sprintf("%g", m.values[m.selected])
			ti.Width = 20
			ti.Focus()
			m.input = ti
			m.err = nil
			m.state = stateEditValue
		}
	}
	return m, nil
}

func (m *interactiveModel) updateEdit(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit

	case "esc":
		m.state = stateSelectParam
		return m, nil

	case "enter":
		v, err := strconv.ParseFloat(strings.TrimSpace(m.input.Value()), 32)
		if err != nil {
			m.err = fmt.Errorf("value: %w", err)
			return m, nil
		}
		m.p.SetParameterValue(m.ctx, m.params[m.selected].Index, float32(v))
		m.refreshValues()
		m.render()
		m.state = stateSelectParam
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(m.label))
	b.WriteString(" ")
	b.WriteString(m.p.Engine().Name())
	b.WriteString("\n\n")

	for i, prm := range m.params {
		line := fmt.Sprintf("%-16s %10s  [%g..%g] %s", prm.Name,
			fmt.Sprintf("%g", m.values[i]), prm.Min, prm.Max, prm.Hints)
		if i == m.selected {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString("  " + nameStyle.Render(line))
		}
		b.WriteString("\n")
	}
	if len(m.params) == 0 {
		b.WriteString(helpStyle.Render("guest declares no parameters"))
		b.WriteString("\n")
	}

	if m.last != nil {
		b.WriteString("\n")
		for c, ch := range m.last.channels {
			b.WriteString(fmt.Sprintf("out %d: peak %s rms %s\n", c,
				valueStyle.Render(fmt.Sprintf("%.4f", ch.peak)),
				valueStyle.Render(fmt.Sprintf("%.4f", ch.rms()))))
		}
		if m.last.failed > 0 {
			b.WriteString(errorStyle.Render(fmt.Sprintf("%d blocks failed (engine %s)", m.last.failed, m.p.State())))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	if m.state == stateEditValue {
		b.WriteString(m.input.View())
		b.WriteString("\n")
		if m.err != nil {
			b.WriteString(errorStyle.Render(m.err.Error()))
			b.WriteString("\n")
		}
		b.WriteString(helpStyle.Render("enter apply • esc back"))
	} else {
		b.WriteString(helpStyle.Render("↑/↓ select • enter edit • r render • q quit"))
	}
	return b.String()
}

func runInteractive(ctx context.Context, p *plugin.Plugin, opts renderOpts) error {
	if opts.frames > p.MaxFrames() {
		return fmt.Errorf("frames: %d exceeds guest capacity of %d", opts.frames, p.MaxFrames())
	}
	prog := tea.NewProgram(newInteractiveModel(ctx, p, opts), tea.WithAltScreen())
	_, err := prog.Run()
	return err
}
