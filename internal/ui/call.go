package ui

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Phase is where the call stands from the user's point of view.
type Phase int

const (
	PhaseDialing Phase = iota
	PhaseIncoming
	PhaseConnecting
	PhaseConnected
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseDialing:
		return "Ringing"
	case PhaseIncoming:
		return "Incoming call"
	case PhaseConnecting:
		return "Connecting"
	case PhaseConnected:
		return "Connected"
	case PhaseEnded:
		return "Call ended"
	default:
		return "Unknown"
	}
}

// Action is a user decision taken from the keyboard.
type Action int

const (
	ActionAccept Action = iota + 1
	ActionReject
	ActionHangup
)

type phaseMsg struct {
	phase  Phase
	detail string
}

type statsMsg struct {
	tracks int
	bytes  uint64
}

// TickMsg refreshes the call timer.
type TickMsg time.Time

// CallUI drives the interactive call screen
type CallUI struct {
	program *tea.Program
	model   *callModel
	actions chan Action
	wg      sync.WaitGroup
	started atomic.Bool
	stop    sync.Once
}

type callModel struct {
	peer        string
	phase       Phase
	detail      string
	spinner     spinner.Model
	connectedAt time.Time
	now         func() time.Time
	tracks      int
	bytes       uint64
	actions     chan<- Action
	quitting    bool
}

func newCallModel(peer string, phase Phase, actions chan<- Action) *callModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &callModel{
		peer:    peer,
		phase:   phase,
		spinner: s,
		now:     time.Now,
		actions: actions,
	}
}

// NewCallUI creates the call screen. incoming starts it at the accept prompt.
func NewCallUI(peer string, incoming bool, opts ...tea.ProgramOption) *CallUI {
	phase := PhaseDialing
	if incoming {
		phase = PhaseIncoming
	}
	actions := make(chan Action, 4)
	model := newCallModel(peer, phase, actions)
	return &CallUI{
		program: tea.NewProgram(model, opts...),
		model:   model,
		actions: actions,
	}
}

// Start starts the UI in a goroutine
func (ui *CallUI) Start() {
	if !ui.started.CompareAndSwap(false, true) {
		return
	}
	ui.wg.Add(1)
	go func() {
		defer ui.wg.Done()
		if _, err := ui.program.Run(); err != nil {
			fmt.Printf("UI error: %v\n", err)
		}
	}()
}

// Actions delivers accept, reject and hangup requests.
func (ui *CallUI) Actions() <-chan Action {
	return ui.actions
}

func (ui *CallUI) SetPhase(phase Phase, detail string) {
	if !ui.started.Load() {
		return
	}
	ui.program.Send(phaseMsg{phase: phase, detail: detail})
}

func (ui *CallUI) UpdateStats(tracks int, bytes uint64) {
	if !ui.started.Load() {
		return
	}
	ui.program.Send(statsMsg{tracks: tracks, bytes: bytes})
}

// Stop stops the UI and waits for the terminal to be restored.
func (ui *CallUI) Stop() {
	ui.stop.Do(func() {
		if !ui.started.Load() {
			return
		}
		ui.program.Quit()
		ui.wg.Wait()
	})
}

func (m *callModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m *callModel) act(a Action) {
	select {
	case m.actions <- a:
	default:
	}
}

func (m *callModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "a", "y":
			if m.phase == PhaseIncoming {
				m.act(ActionAccept)
				m.phase = PhaseConnecting
			}
		case "r", "n":
			if m.phase == PhaseIncoming {
				m.act(ActionReject)
				m.phase = PhaseEnded
				m.detail = "rejected"
				m.quitting = true
				return m, tea.Quit
			}
		case "q", "ctrl+c":
			if m.phase == PhaseIncoming {
				m.act(ActionReject)
			} else {
				m.act(ActionHangup)
			}
			m.phase = PhaseEnded
			m.detail = "hung up"
			m.quitting = true
			return m, tea.Quit
		}

	case phaseMsg:
		if msg.phase == PhaseConnected && m.phase != PhaseConnected {
			m.connectedAt = m.now()
		}
		m.phase = msg.phase
		m.detail = msg.detail
		if m.phase == PhaseEnded {
			m.quitting = true
			return m, tea.Quit
		}

	case statsMsg:
		m.tracks = msg.tracks
		m.bytes = msg.bytes

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TickMsg:
		if !m.quitting {
			return m, tick()
		}
	}

	return m, nil
}

func (m *callModel) elapsed() time.Duration {
	if m.connectedAt.IsZero() {
		return 0
	}
	return m.now().Sub(m.connectedAt)
}

func (m *callModel) View() string {
	var b strings.Builder

	b.WriteString(HeaderStyle.Render(fmt.Sprintf("%s %s", IconPhone, m.peer)))
	b.WriteString("\n")

	switch m.phase {
	case PhaseIncoming:
		b.WriteString(IncomingBoxStyle.Render(fmt.Sprintf("%s %s is calling", IconRinging, BoldStyle.Render(m.peer))))
		b.WriteString("\n")
		b.WriteString(FooterStyle.Render("a accept • r reject"))
	case PhaseDialing, PhaseConnecting:
		b.WriteString(fmt.Sprintf("%s %s", m.spinner.View(), m.status()))
		b.WriteString("\n")
		b.WriteString(FooterStyle.Render("q hang up"))
	case PhaseConnected:
		b.WriteString(fmt.Sprintf("%s %s  %s %s", StatusStyle.Render(m.status()), IconTime, FormatDuration(m.elapsed()), m.detailSuffix()))
		b.WriteString("\n")
		b.WriteString(MutedStyle.Render(fmt.Sprintf("%s %d tracks • %s received", IconVideo, m.tracks, FormatSize(m.bytes))))
		b.WriteString("\n")
		b.WriteString(FooterStyle.Render("q hang up"))
	case PhaseEnded:
		b.WriteString(fmt.Sprintf("%s %s", IconHangup, m.status()))
	}

	return b.String() + "\n"
}

func (m *callModel) status() string {
	if m.detail == "" || m.phase == PhaseConnected {
		return m.phase.String()
	}
	return fmt.Sprintf("%s (%s)", m.phase, m.detail)
}

func (m *callModel) detailSuffix() string {
	if m.detail == "" {
		return ""
	}
	return MutedStyle.Render(m.detail)
}
