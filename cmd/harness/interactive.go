package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/component-harness/host"
	"github.com/wippyai/component-harness/linker"
	"github.com/wippyai/component-harness/runtime"
)

var (
	accent = lipgloss.Color("#7D56F4")

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FAFAFA")).Background(accent).Padding(0, 1)
	nameStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#98FB98"))
	witStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB"))
	cursorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FAFAFA")).Background(accent)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#90EE90"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	hintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputArgs
	stateShowResult
)

type interactiveModel struct {
	ctx      context.Context
	err      error
	module   *runtime.Module
	imports  host.Imports
	instance *linker.Instance
	filename string
	result   string
	funcs    []*linker.Func
	inputs   []textinput.Model
	selected int
	focusIdx int
	state    modelState
	loaded   bool
}

type loadedMsg struct {
	err  error
	inst *linker.Instance
}

type callResultMsg struct {
	err    error
	result string
}

func newInteractiveModel(ctx context.Context, filename string, mod *runtime.Module, imports host.Imports) *interactiveModel {
	return &interactiveModel{
		ctx:      ctx,
		module:   mod,
		imports:  imports,
		filename: filename,
		state:    stateSelectFunc,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.instantiate
}

func (m *interactiveModel) instantiate() tea.Msg {
	inst, err := m.module.Instantiate(m.ctx, m.imports)
	return loadedMsg{inst: inst, err: err}
}

func (m *interactiveModel) close() {
	if m.instance != nil {
		_ = m.instance.Close(m.ctx)
		m.instance = nil
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.close()
			return m, tea.Quit
		}
		switch m.state {
		case stateSelectFunc:
			return m.selectKey(msg)
		case stateInputArgs:
			return m.inputKey(msg)
		case stateShowResult:
			return m.resultKey(msg)
		}

	case loadedMsg:
		m.loaded = true
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.instance = msg.inst
		for _, path := range msg.inst.Exports() {
			if fn, ok := msg.inst.Func(path); ok {
				m.funcs = append(m.funcs, fn)
			}
		}

	case callResultMsg:
		m.result, m.err = msg.result, msg.err
		m.state = stateShowResult
	}
	return m, nil
}

func (m *interactiveModel) selectKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		m.close()
		return m, tea.Quit
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		if m.selected < len(m.funcs)-1 {
			m.selected++
		}
	case "enter":
		if len(m.funcs) == 0 {
			return m, nil
		}
		m.prepareInputs()
		if len(m.inputs) == 0 {
			return m, m.callFunction
		}
		m.state = stateInputArgs
	}
	return m, nil
}

// inputKey handles navigation keys and forwards everything else to the
// focused argument field.
func (m *interactiveModel) inputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		return m, m.callFunction
	case "esc":
		m.state = stateSelectFunc
		m.inputs = nil
		return m, nil
	case "tab", "shift+tab":
		step := 1
		if msg.String() == "shift+tab" {
			step = len(m.inputs) - 1
		}
		m.inputs[m.focusIdx].Blur()
		m.focusIdx = (m.focusIdx + step) % len(m.inputs)
		return m, m.inputs[m.focusIdx].Focus()
	}
	var cmd tea.Cmd
	m.inputs[m.focusIdx], cmd = m.inputs[m.focusIdx].Update(msg)
	return m, cmd
}

func (m *interactiveModel) resultKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		m.close()
		return m, tea.Quit
	case "enter", "esc":
		m.state = stateSelectFunc
		m.result, m.err = "", nil
	}
	return m, nil
}

func (m *interactiveModel) prepareInputs() {
	f := m.funcs[m.selected]
	names := f.ParamNames()
	m.inputs = make([]textinput.Model, len(f.Params()))
	for i, p := range f.Params() {
		ti := textinput.New()
		ti.Placeholder = witType(p)
		ti.Prompt = names[i] + ": "
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) callFunction() tea.Msg {
	f := m.funcs[m.selected]
	raw := make([]string, len(m.inputs))
	for i, input := range m.inputs {
		raw[i] = input.Value()
	}
	args, err := convertArgs(f, raw)
	if err != nil {
		return callResultMsg{err: err}
	}

	result, err := f.Call(m.ctx, args...)
	if err != nil {
		return callResultMsg{err: err}
	}
	if f.Result() == nil {
		return callResultMsg{result: "(no result)"}
	}
	return callResultMsg{result: fmt.Sprintf("%v", result)}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return failStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if !m.loaded {
		return "Instantiating component..."
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("harness call"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		if len(m.funcs) == 0 {
			b.WriteString("The component exports no functions.\n\n")
			b.WriteString(hintStyle.Render("q quit"))
			break
		}
		b.WriteString("Select a function to call:\n\n")
		for i, f := range m.funcs {
			if i == m.selected {
				b.WriteString(cursorStyle.Render("> " + m.formatFunc(f)))
			} else {
				b.WriteString("  " + m.formatFunc(f))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(hintStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		f := m.funcs[m.selected]
		fmt.Fprintf(&b, "Calling %s\n\n", nameStyle.Render(f.Name()))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(witStyle.Render(witType(f.Params()[i])))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(hintStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		f := m.funcs[m.selected]
		fmt.Fprintf(&b, "Result of %s:\n\n", nameStyle.Render(f.Name()))
		if m.err != nil {
			b.WriteString(failStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(okStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(hintStyle.Render("enter continue • q quit"))
	}
	return b.String()
}

func (m *interactiveModel) formatFunc(f *linker.Func) string {
	names := f.ParamNames()
	params := make([]string, len(f.Params()))
	for i, p := range f.Params() {
		params[i] = names[i] + ": " + witStyle.Render(witType(p))
	}
	result := ""
	if f.Result() != nil {
		result = " -> " + witStyle.Render(witType(f.Result()))
	}
	return nameStyle.Render(f.Name()) + "(" + strings.Join(params, ", ") + ")" + result
}

func runInteractive(ctx context.Context, filename string, mod *runtime.Module, imports host.Imports) error {
	m := newInteractiveModel(ctx, filename, mod, imports)
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	m.close()
	return err
}
