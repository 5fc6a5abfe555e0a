package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zeidlos/gridcall/internal/game"
	"github.com/zeidlos/gridcall/internal/rtc"
)

// BoardUpdate is a message sent from the session goroutines to update the UI.
type BoardUpdate struct {
	Type     BoardUpdateType
	Snapshot game.Snapshot
	Phase    rtc.Phase
	Err      error
}

type BoardUpdateType int

const (
	UpdateSnapshot BoardUpdateType = iota
	UpdatePhase
	UpdatePeerError
)

// TickMsg drives the once-a-second stats refresh.
type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// Intents are the callbacks the board fires on key presses. All of them go
// through the session layer; the board never talks to the relay directly and
// never updates the grid optimistically.
type Intents struct {
	Move         func(index int)
	Restart      func()
	ToggleCamera func() bool
	ToggleMic    func() bool
	Stats        func() (packets, bytes uint64)
}

// BoardModel is the main Bubble Tea model: the 3x3 grid plus the call status
// pane. The grid only ever renders the latest replicated snapshot.
type BoardModel struct {
	roomCode string
	origin   string
	intents  Intents

	mu        sync.RWMutex
	snapshot  game.Snapshot
	phase     rtc.Phase
	camOn     bool
	micOn     bool
	peerErr   error
	rxPackets uint64
	rxBytes   uint64

	spinner spinner.Model

	updateChan chan BoardUpdate
	done       chan struct{}

	width  int
	height int
}

// NewBoardModel creates the board for one room visit. origin identifies this
// player inside the snapshot's player list.
func NewBoardModel(roomCode, origin string, intents Intents) *BoardModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &BoardModel{
		roomCode:   roomCode,
		origin:     origin,
		intents:    intents,
		snapshot:   game.NewSnapshot(),
		camOn:      true,
		micOn:      true,
		spinner:    s,
		updateChan: make(chan BoardUpdate, 100),
		done:       make(chan struct{}),
		width:      80,
		height:     24,
	}
}

// UpdateChannel returns the channel session goroutines push updates into.
func (m *BoardModel) UpdateChannel() chan<- BoardUpdate {
	return m.updateChan
}

// Close releases the update listener.
func (m *BoardModel) Close() {
	close(m.done)
}

func (m *BoardModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.waitForUpdates(),
		tickCmd(),
	)
}

func (m *BoardModel) waitForUpdates() tea.Cmd {
	return func() tea.Msg {
		select {
		case update := <-m.updateChan:
			return update
		case <-m.done:
			return nil
		}
	}
}

func (m *BoardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch key := msg.String(); key {
		case "q", "ctrl+c":
			return m, tea.Quit

		case "1", "2", "3", "4", "5", "6", "7", "8", "9":
			if m.intents.Move != nil {
				m.intents.Move(int(key[0]-'0') - 1)
			}

		case "r":
			if m.intents.Restart != nil {
				m.intents.Restart()
			}

		case "c":
			if m.intents.ToggleCamera != nil {
				on := m.intents.ToggleCamera()
				m.mu.Lock()
				m.camOn = on
				m.mu.Unlock()
			}

		case "m":
			if m.intents.ToggleMic != nil {
				on := m.intents.ToggleMic()
				m.mu.Lock()
				m.micOn = on
				m.mu.Unlock()
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case TickMsg:
		if m.intents.Stats != nil {
			packets, bytes := m.intents.Stats()
			m.mu.Lock()
			m.rxPackets = packets
			m.rxBytes = bytes
			m.mu.Unlock()
		}
		cmds = append(cmds, tickCmd())

	case BoardUpdate:
		m.handleUpdate(msg)
		cmds = append(cmds, m.waitForUpdates())
	}

	return m, tea.Batch(cmds...)
}

func (m *BoardModel) handleUpdate(update BoardUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch update.Type {
	case UpdateSnapshot:
		// Full replacement, never a merge.
		m.snapshot = update.Snapshot

	case UpdatePhase:
		m.phase = update.Phase

	case UpdatePeerError:
		m.peerErr = update.Err
	}
}

// yourMark resolves this player's symbol from the replicated player list.
func (m *BoardModel) yourMark() (game.Mark, bool) {
	for i, p := range m.snapshot.Players {
		if p == m.origin {
			if i == 0 {
				return game.MarkX, true
			}
			return game.MarkO, true
		}
	}
	return "", false
}

func (m *BoardModel) View() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var b strings.Builder

	header := HeaderStyle.Render(fmt.Sprintf("%s GridCall - Room %s", IconGame, m.roomCode))
	b.WriteString(header + "\n\n")

	b.WriteString(m.viewBoard())
	b.WriteString("\n")
	b.WriteString(m.viewGameStatus())
	b.WriteString("\n\n")
	b.WriteString(m.viewCall())

	if m.peerErr != nil {
		b.WriteString("\n\n")
		b.WriteString(WarningStyle.Render(fmt.Sprintf("%s Call unavailable: %v (game continues)", IconWarning, m.peerErr)))
	}

	b.WriteString("\n" + m.viewFooter())

	return ContainerStyle.Render(b.String())
}

func (m *BoardModel) viewBoard() string {
	var rows []string
	for r := 0; r < 3; r++ {
		var cells []string
		for c := 0; c < 3; c++ {
			i := r*3 + c
			cells = append(cells, m.viewCell(i))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m *BoardModel) viewCell(i int) string {
	cell := m.snapshot.Board[i]
	if cell == nil {
		return CellHintStyle.Render(fmt.Sprintf("%d", i+1))
	}
	if *cell == game.MarkX {
		return CellXStyle.Render("X")
	}
	return CellOStyle.Render("O")
}

func (m *BoardModel) viewGameStatus() string {
	s := m.snapshot

	if s.Winner != nil {
		switch *s.Winner {
		case game.WinnerDraw:
			return WarningStyle.Render("It's a draw!") + MutedStyle.Render("  press 'r' for a rematch")
		default:
			you, ok := m.yourMark()
			verdict := fmt.Sprintf("%s %s wins!", IconTrophy, *s.Winner)
			if ok && game.Winner(you) == *s.Winner {
				return SuccessStyle.Render(verdict) + MutedStyle.Render("  press 'r' for a rematch")
			}
			return ErrorStyle.Render(verdict) + MutedStyle.Render("  press 'r' for a rematch")
		}
	}

	if len(s.Players) < 2 {
		return fmt.Sprintf("%s Waiting for an opponent, share code %s",
			m.spinner.View(), BoldStyle.Foreground(Primary).Render(m.roomCode))
	}

	you, ok := m.yourMark()
	if ok && s.Turn == you {
		return SuccessStyle.Render(fmt.Sprintf("Your turn (%s)", you)) + MutedStyle.Render("  press 1-9 to play")
	}
	return MutedStyle.Render(fmt.Sprintf("Opponent's turn (%s)", s.Turn))
}

func (m *BoardModel) viewCall() string {
	var status string
	switch m.phase {
	case rtc.PhaseIdle, rtc.PhaseAcquiringMedia:
		status = fmt.Sprintf("%s Starting camera and microphone", m.spinner.View())
	case rtc.PhaseAwaitingPeer:
		status = fmt.Sprintf("%s Waiting for peer media", m.spinner.View())
	case rtc.PhaseNegotiating:
		status = fmt.Sprintf("%s Connecting call", m.spinner.View())
	case rtc.PhaseConnected:
		status = SuccessStyle.Render(fmt.Sprintf("%s Call connected", IconConnect))
	case rtc.PhaseFailed:
		status = ErrorStyle.Render(fmt.Sprintf("%s Call failed", IconError))
	case rtc.PhaseClosed:
		status = MutedStyle.Render("Call ended")
	}

	cam := MutedStyle.Render("off")
	if m.camOn {
		cam = SuccessStyle.Render("on")
	}
	mic := MutedStyle.Render("off")
	if m.micOn {
		mic = SuccessStyle.Render("on")
	}

	line := fmt.Sprintf("%s   %s %s  %s %s", status, IconCamera, cam, IconMic, mic)

	if m.phase == rtc.PhaseConnected {
		line += MutedStyle.Render(fmt.Sprintf("   rx %d pkts / %s", m.rxPackets, formatBytes(int64(m.rxBytes))))
	}

	return line
}

func (m *BoardModel) viewFooter() string {
	return FooterStyle.Render("1-9 play · r restart · c camera · m mic · q quit")
}
