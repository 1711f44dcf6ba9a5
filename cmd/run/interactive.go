package main

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/tasklet-runtime/code"
	"github.com/wippyai/tasklet-runtime/config"
	"github.com/wippyai/tasklet-runtime/resource"
	"github.com/wippyai/tasklet-runtime/runtime"
	"github.com/wippyai/tasklet-runtime/scheduler"
	"github.com/wippyai/tasklet-runtime/tasklet"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD700"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#666666")).
			Padding(0, 1)
)

const (
	codeRadius  = 5
	outputLines = 6
)

type keyMap struct {
	Step  key.Binding
	Ticks key.Binding
	Run   key.Binding
	Next  key.Binding
	Prev  key.Binding
	Help  key.Binding
	Quit  key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Step, k.Run, k.Next, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Step, k.Ticks, k.Run},
		{k.Next, k.Prev},
		{k.Help, k.Quit},
	}
}

var keys = keyMap{
	Step:  key.NewBinding(key.WithKeys("s", " "), key.WithHelp("s/space", "tick")),
	Ticks: key.NewBinding(key.WithKeys(":"), key.WithHelp(":", "run n ticks")),
	Run:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "run to end")),
	Next:  key.NewBinding(key.WithKeys("tab", "down", "j"), key.WithHelp("tab/↓", "next tasklet")),
	Prev:  key.NewBinding(key.WithKeys("shift+tab", "up", "k"), key.WithHelp("↑", "prev tasklet")),
	Help:  key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Quit:  key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type stepperModel struct {
	ctx      context.Context
	err      error
	escaped  error
	rt       *runtime.Runtime
	output   *bytes.Buffer
	input    textinput.Model
	help     help.Model
	filename string
	selected int
	// remaining ticks of the current run; negative runs until done
	remaining int
	prompting bool
	running   bool
}

type tickMsg struct{}

type waitedMsg struct{ err error }

func newStepperModel(ctx context.Context, filename string, rt *runtime.Runtime, out *bytes.Buffer) *stepperModel {
	ti := textinput.New()
	ti.Placeholder = "ticks"
	ti.Prompt = "run ticks: "
	ti.Width = 12
	ti.CharLimit = 9

	return &stepperModel{
		ctx:      ctx,
		rt:       rt,
		output:   out,
		input:    ti,
		help:     help.New(),
		filename: filename,
	}
}

func (m *stepperModel) Init() tea.Cmd {
	return nil
}

func (m *stepperModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.prompting {
			return m.updatePrompt(msg)
		}
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		case key.Matches(msg, keys.Next):
			if n := len(m.rt.Scheduler().Tasklets()); n > 0 {
				m.selected = (m.selected + 1) % n
			}
		case key.Matches(msg, keys.Prev):
			if n := len(m.rt.Scheduler().Tasklets()); n > 0 {
				m.selected = (m.selected + n - 1) % n
			}
		case key.Matches(msg, keys.Step):
			if !m.running {
				return m, m.start(1)
			}
		case key.Matches(msg, keys.Run):
			if !m.running {
				return m, m.start(-1)
			}
		case key.Matches(msg, keys.Ticks):
			if !m.running {
				m.prompting = true
				m.input.SetValue("")
				return m, m.input.Focus()
			}
		}

	case tickMsg:
		return m, m.advance()

	case waitedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.running = false
			return m, nil
		}
		return m, m.advance()
	}
	return m, nil
}

func (m *stepperModel) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.prompting = false
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		m.prompting = false
		m.input.Blur()
		n, err := strconv.Atoi(strings.TrimSpace(m.input.Value()))
		if err != nil || n <= 0 {
			m.err = fmt.Errorf("invalid tick count %q", m.input.Value())
			return m, nil
		}
		return m, m.start(n)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *stepperModel) start(n int) tea.Cmd {
	m.err = nil
	m.remaining = n
	m.running = true
	return func() tea.Msg { return tickMsg{} }
}

// advance runs one tick on the UI goroutine. When every tasklet is
// suspended it waits for native work off the UI goroutine instead.
func (m *stepperModel) advance() tea.Cmd {
	sched := m.rt.Scheduler()
	if sched.Done() || m.remaining == 0 {
		m.running = false
		return nil
	}

	if !sched.Runnable() {
		return func() tea.Msg {
			return waitedMsg{err: sched.Wait(m.ctx)}
		}
	}

	if err := sched.Tick(m.ctx); err != nil {
		if m.ctx.Err() != nil {
			m.err = err
			m.running = false
			return nil
		}
		m.escaped = multierr.Append(m.escaped, err)
	}
	if m.remaining > 0 {
		m.remaining--
	}
	return func() tea.Msg { return tickMsg{} }
}

func (m *stepperModel) View() string {
	sched := m.rt.Scheduler()
	receipts := sched.Tasklets()

	var b strings.Builder
	b.WriteString(titleStyle.Render("Tasklet Stepper"))
	fmt.Fprintf(&b, " %s  tick %d", m.filename, sched.TickCount())
	if sched.Done() {
		b.WriteString(resultStyle.Render("  done"))
	} else if m.running {
		b.WriteString(pendingStyle.Render("  running"))
	}
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("Tasklets"))
	b.WriteString("\n")
	for i, r := range receipts {
		line := formatTasklet(r)
		if i == m.selected {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if m.selected < len(receipts) {
		b.WriteString(m.renderDetail(receipts[m.selected].Snapshot()))
		b.WriteString("\n")
	}

	b.WriteString(headerStyle.Render("Handles"))
	b.WriteString("\n")
	b.WriteString(formatHandles(m.rt.Registry().Active()))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Output"))
	b.WriteString("\n")
	b.WriteString(tail(m.output.String(), outputLines))
	b.WriteString("\n")

	if m.escaped != nil {
		for _, e := range multierr.Errors(m.escaped) {
			b.WriteString(errorStyle.Render(e.Error()))
			b.WriteString("\n")
		}
	}
	if m.err != nil {
		b.WriteString(errorStyle.Render("Error: " + m.err.Error()))
		b.WriteString("\n")
	}
	if m.prompting {
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.help.View(keys))
	return b.String()
}

func formatTasklet(r *scheduler.Receipt) string {
	snap := r.Snapshot()
	line := fmt.Sprintf("%-12s %s  %-9s %5d instr", snap.Name, snap.ID.String()[:8], snap.State, snap.Executed)
	switch {
	case snap.State == tasklet.Suspended && snap.Pending != nil:
		line += pendingStyle.Render("  waiting on " + snap.Pending.Builtin)
	case snap.State == tasklet.Completed && r.Abandoned():
		line += "  abandoned"
	case snap.State == tasklet.Completed && snap.Failure != nil:
		line += errorStyle.Render("  " + snap.Failure.Error())
	case snap.State == tasklet.Completed:
		line += resultStyle.Render("  => " + code.Repr(snap.Result))
	}
	return line
}

func (m *stepperModel) renderDetail(snap tasklet.Snapshot) string {
	if len(snap.Frames) == 0 {
		return ""
	}
	top := snap.Frames[len(snap.Frames)-1]

	var src strings.Builder
	fmt.Fprintf(&src, "%s  depth %d\n", top.Callable, len(snap.Frames))
	src.WriteString(code.Disassemble(top.Callable, top.PC, codeRadius))

	var data strings.Builder
	data.WriteString("stack:\n")
	if len(top.Stack) == 0 {
		data.WriteString("  (empty)\n")
	}
	for i := len(top.Stack) - 1; i >= 0; i-- {
		fmt.Fprintf(&data, "  %s\n", code.Repr(top.Stack[i]))
	}
	data.WriteString("locals:\n")
	for i, v := range top.Locals {
		fmt.Fprintf(&data, "  %d: %s\n", i, code.Repr(v))
	}
	if top.Handlers > 0 {
		fmt.Fprintf(&data, "handlers: %d\n", top.Handlers)
	}

	return lipgloss.JoinHorizontal(lipgloss.Top,
		paneStyle.Render(strings.TrimRight(src.String(), "\n")),
		paneStyle.Render(strings.TrimRight(data.String(), "\n")),
	)
}

func formatHandles(entries []resource.Entry) string {
	if len(entries) == 0 {
		return "  (none)\n"
	}
	var b strings.Builder
	for _, e := range entries {
		desc := resource.Describe(e.Kind, e.Handle)
		if e.Pending {
			fmt.Fprintf(&b, "  %s %s\n", desc, pendingStyle.Render("pending"))
			continue
		}
		fmt.Fprintf(&b, "  %s %s\n", desc, code.Repr(e.Value))
	}
	return b.String()
}

func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func runInteractive(programFile string, cfg *config.Config) (err error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	prog, err := code.LoadProgramFile(programFile)
	if err != nil {
		return err
	}

	var out bytes.Buffer
	rt, err := runtime.New(ctx, cfg, runtime.WithOutput(&out), runtime.WithLogger(zap.NewNop()))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, rt.Close())
	}()

	if _, err := rt.Load(prog); err != nil {
		return err
	}

	p := tea.NewProgram(newStepperModel(ctx, programFile, rt, &out), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
