package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/scripthost-io/scripthost/deferred"
	"github.com/scripthost-io/scripthost/host"
	"github.com/scripthost-io/scripthost/manifest"
	"github.com/scripthost-io/scripthost/variant"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	memberStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type memberKind int

const (
	kindMethod memberKind = iota
	kindProperty
)

type memberInfo struct {
	name     string
	typ      string
	result   string
	kind     memberKind
	readOnly bool
	zone     int
	params   []paramInfo
}

type paramInfo struct {
	name string
	typ  string
}

type modelState int

const (
	stateSelectMember modelState = iota
	stateInputArgs
	stateShowResult
)

type consoleModel struct {
	err          error
	rt           *host.Runtime
	inst         *host.Instance
	handle       deferred.Handle[variant.Variant]
	pluginPath   string
	manifestPath string
	result       string
	members      []memberInfo
	inputs       []textinput.Model
	selected     int
	focusIdx     int
	state        modelState
	pending      bool
}

func newConsoleModel(pluginPath, manifestPath string) *consoleModel {
	return &consoleModel{
		pluginPath:   pluginPath,
		manifestPath: manifestPath,
		state:        stateSelectMember,
	}
}

type loadedMsg struct {
	err     error
	rt      *host.Runtime
	inst    *host.Instance
	members []memberInfo
}

type reloadedMsg struct {
	err     error
	members []memberInfo
}

type callResultMsg struct {
	err     error
	result  string
	pending bool
	handle  deferred.Handle[variant.Variant]
}

func (c *consoleModel) Init() tea.Cmd {
	return c.loadPlugin
}

func (c *consoleModel) loadPlugin() tea.Msg {
	ctx := context.Background()

	m, err := manifest.Load(c.manifestPath)
	if err != nil {
		return loadedMsg{err: err}
	}

	data, err := os.ReadFile(c.pluginPath)
	if err != nil {
		return loadedMsg{err: err}
	}

	rt, err := host.New(ctx, &host.Options{MemoryLimitPages: m.Limits.MemoryPages})
	if err != nil {
		return loadedMsg{err: err}
	}

	plug, err := rt.Load(ctx, data, m)
	if err != nil {
		rt.Close(ctx)
		return loadedMsg{err: err}
	}

	inst, err := plug.Instantiate(ctx)
	if err != nil {
		rt.Close(ctx)
		return loadedMsg{err: err}
	}

	return loadedMsg{rt: rt, inst: inst, members: collectMembers(m)}
}

func collectMembers(m *manifest.Manifest) []memberInfo {
	members := make([]memberInfo, 0, len(m.Methods)+len(m.Properties))
	for _, method := range m.Methods {
		mi := memberInfo{
			name:   method.Name,
			kind:   kindMethod,
			result: method.Result,
			zone:   method.Zone,
		}
		for _, p := range method.Params {
			mi.params = append(mi.params, paramInfo{name: p.Name, typ: p.Type})
		}
		members = append(members, mi)
	}
	for _, p := range m.Properties {
		members = append(members, memberInfo{
			name:     p.Name,
			kind:     kindProperty,
			typ:      p.Type,
			readOnly: p.ReadOnly,
			zone:     p.Zone,
		})
	}
	return members
}

func (c *consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if c.state == stateInputArgs && msg.String() == "q" {
				break
			}
			ctx := context.Background()
			if c.inst != nil {
				c.inst.Close(ctx)
			}
			if c.rt != nil {
				c.rt.Close(ctx)
			}
			return c, tea.Quit

		case "up", "k":
			if c.state == stateSelectMember && c.selected > 0 {
				c.selected--
			}

		case "down", "j":
			if c.state == stateSelectMember && c.selected < len(c.members)-1 {
				c.selected++
			}

		case "enter":
			switch c.state {
			case stateSelectMember:
				if len(c.members) == 0 {
					break
				}
				c.prepareInputs()
				if len(c.inputs) == 0 {
					return c, c.callMember
				}
				c.state = stateInputArgs

			case stateInputArgs:
				return c, c.callMember

			case stateShowResult:
				c.state = stateSelectMember
				c.result = ""
				c.err = nil
				c.pending = false
			}

		case "tab":
			if c.state == stateInputArgs && len(c.inputs) > 1 {
				c.inputs[c.focusIdx].Blur()
				c.focusIdx = (c.focusIdx + 1) % len(c.inputs)
				c.inputs[c.focusIdx].Focus()
			}

		case "p":
			if c.state == stateShowResult && c.pending {
				return c, c.pump
			}

		case "r":
			if c.state == stateSelectMember {
				return c, c.reloadManifest
			}

		case "esc":
			switch c.state {
			case stateInputArgs:
				c.state = stateSelectMember
				c.inputs = nil
			case stateShowResult:
				c.state = stateSelectMember
				c.result = ""
				c.err = nil
				c.pending = false
			}
		}

	case loadedMsg:
		if msg.err != nil {
			c.err = msg.err
			return c, nil
		}
		c.rt = msg.rt
		c.inst = msg.inst
		c.members = msg.members

	case reloadedMsg:
		c.state = stateShowResult
		c.pending = false
		if msg.err != nil {
			c.err = msg.err
			return c, nil
		}
		c.members = msg.members
		if c.selected >= len(c.members) {
			c.selected = 0
		}
		c.result = fmt.Sprintf("manifest reloaded, %d member(s)", len(c.members))

	case callResultMsg:
		c.result = msg.result
		c.err = msg.err
		c.pending = msg.pending
		if msg.pending {
			c.handle = msg.handle
		}
		c.state = stateShowResult
	}

	if c.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range c.inputs {
			var cmd tea.Cmd
			c.inputs[i], cmd = c.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return c, tea.Batch(cmds...)
	}

	return c, nil
}

func (c *consoleModel) prepareInputs() {
	mem := c.members[c.selected]

	if mem.kind == kindProperty {
		if mem.readOnly {
			c.inputs = nil
			return
		}
		ti := textinput.New()
		ti.Placeholder = mem.typ + " (empty reads)"
		ti.Prompt = "value: "
		ti.Width = 40
		ti.Focus()
		c.inputs = []textinput.Model{ti}
		c.focusIdx = 0
		return
	}

	c.inputs = make([]textinput.Model, len(mem.params))
	for i, p := range mem.params {
		ti := textinput.New()
		ti.Placeholder = p.typ
		ti.Prompt = p.name + ": "
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		c.inputs[i] = ti
	}
	c.focusIdx = 0
}

func (c *consoleModel) callMember() tea.Msg {
	ctx := context.Background()
	mem := c.members[c.selected]

	if mem.kind == kindProperty {
		if len(c.inputs) == 1 && c.inputs[0].Value() != "" {
			v := variant.New(convertArg(c.inputs[0].Value(), mem.typ))
			if err := c.inst.Set(ctx, mem.name, v); err != nil {
				return callResultMsg{err: err}
			}
		}
		return drainHandle(c.inst.Get(ctx, mem.name))
	}

	args := make([]any, len(c.inputs))
	for i := range c.inputs {
		args[i] = convertArg(c.inputs[i].Value(), mem.params[i].typ)
	}
	return drainHandle(c.inst.Invoke(ctx, mem.name, variant.MakeList(args...)))
}

func (c *consoleModel) pump() tea.Msg {
	if err := c.inst.Pump(context.Background()); err != nil {
		return callResultMsg{err: err}
	}
	return drainHandle(c.handle)
}

func (c *consoleModel) reloadManifest() tea.Msg {
	m, err := manifest.Load(c.manifestPath)
	if err != nil {
		return reloadedMsg{err: err}
	}
	return reloadedMsg{members: collectMembers(m)}
}

// drainHandle reports a settled handle's outcome, or marks the call
// pending so the p key can pump it.
func drainHandle(h deferred.Handle[variant.Variant]) callResultMsg {
	var (
		msg     callResultMsg
		settled bool
	)
	h.Done(func(v variant.Variant) {
		msg.result = v.String()
		settled = true
	}).Fail(func(err error) {
		msg.err = err
		settled = true
	})

	if !settled {
		return callResultMsg{pending: true, handle: h, result: "pending"}
	}
	return msg
}

func (c *consoleModel) View() string {
	if c.err != nil && c.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", c.err))
	}

	if len(c.members) == 0 {
		return "Loading plugin..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Plugin Console"))
	b.WriteString(" ")
	b.WriteString(c.pluginPath)
	b.WriteString("\n\n")

	switch c.state {
	case stateSelectMember:
		b.WriteString("Select a member:\n\n")
		for i, mem := range c.members {
			cursor := "  "
			if i == c.selected {
				cursor = "> "
				b.WriteString(selectedStyle.Render(cursor + c.formatMember(mem)))
			} else {
				b.WriteString(cursor + c.formatMember(mem))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • r reload manifest • q quit"))

	case stateInputArgs:
		mem := c.members[c.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", memberStyle.Render(mem.name)))
		for _, input := range c.inputs {
			b.WriteString(input.View())
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		mem := c.members[c.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", memberStyle.Render(mem.name)))
		switch {
		case c.err != nil:
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", c.err)))
		case c.pending:
			b.WriteString(typeStyle.Render("pending"))
		default:
			b.WriteString(resultStyle.Render(c.result))
		}
		b.WriteString("\n\n")
		if c.pending {
			b.WriteString(helpStyle.Render("p pump • enter continue • q quit"))
		} else {
			b.WriteString(helpStyle.Render("enter continue • q quit"))
		}
	}

	return b.String()
}

func (c *consoleModel) formatMember(mem memberInfo) string {
	var line string
	switch mem.kind {
	case kindMethod:
		var params []string
		for _, p := range mem.params {
			params = append(params, p.name+": "+typeStyle.Render(p.typ))
		}
		line = memberStyle.Render(mem.name) + "(" + strings.Join(params, ", ") + ")"
		if mem.result != "" {
			line += " -> " + typeStyle.Render(mem.result)
		}
	case kindProperty:
		line = memberStyle.Render(mem.name) + ": " + typeStyle.Render(mem.typ)
		if mem.readOnly {
			line += helpStyle.Render(" (read-only)")
		}
	}
	if mem.zone > 0 {
		line += helpStyle.Render(fmt.Sprintf(" [zone %d]", mem.zone))
	}
	return line
}

func runInteractive(pluginPath, manifestPath string) error {
	p := tea.NewProgram(newConsoleModel(pluginPath, manifestPath), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
