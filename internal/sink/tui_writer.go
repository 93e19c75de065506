package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"edgeops-sim/internal/bus"
	"edgeops-sim/internal/fleet"
	"edgeops-sim/internal/world"
)

const (
	colorReset   = "\x1b[0m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorGray    = "\x1b[90m"
)

const maxEventLines = 500

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// eventMsg carries a rendered event line for the viewport.
type eventMsg struct{ line string }

// worldMsg carries a world state snapshot for the header.
type worldMsg struct{ world.State }

// healthMsg carries a fleet health snapshot for the status table.
type healthMsg struct{ fleet.Health }

// TUIWriter renders the event stream, world state, and fleet health as a
// bubbletea TUI.
type TUIWriter struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool
}

// NewTUIWriter starts a bubbletea program and returns a TUIWriter. When the
// user quits the TUI, an interrupt is raised so the simulator shuts down with
// it.
func NewTUIWriter(siteName string) *TUIWriter {
	w := &TUIWriter{done: make(chan struct{})}
	w.sendSignal.Store(true)
	p := tea.NewProgram(newTUIModel(siteName), tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

// WriteEvent implements EventWriter.
func (w *TUIWriter) WriteEvent(e bus.Event) error {
	c := eventColor(e.Type)
	payload, _ := json.Marshal(e.Payload)
	line := fmt.Sprintf("%s[%s]%s %s%-28s%s %s",
		colorGray, e.Timestamp.Format(time.RFC3339), colorReset,
		c, e.Type, colorReset,
		string(payload))
	w.program.Send(eventMsg{line: line})
	return nil
}

// UpdateWorld pushes a world state snapshot into the header.
func (w *TUIWriter) UpdateWorld(s world.State) {
	w.program.Send(worldMsg{State: s})
}

// UpdateHealth pushes a fleet health snapshot into the status table.
func (w *TUIWriter) UpdateHealth(h fleet.Health) {
	w.program.Send(healthMsg{Health: h})
}

// Close stops the TUI without signalling the process.
func (w *TUIWriter) Close() {
	w.sendSignal.Store(false)
	if p, ok := w.program.(*tea.Program); ok {
		p.Quit()
		<-w.done
	}
}

func eventColor(t bus.Type) string {
	switch t {
	case bus.TypeLeakAlert, bus.TypeAlertCreated, bus.TypeAgentOffline:
		return colorRed
	case bus.TypeValveActuationRequested, bus.TypeValveActuationCompleted:
		return colorYellow
	case bus.TypeAnomalyDetected:
		return colorMagenta
	case bus.TypeAgentDiscovered, bus.TypeMissionStarted, bus.TypeMissionCompleted:
		return colorGreen
	case bus.TypeTelemetryTick:
		return colorGray
	case bus.TypeDeviceStatus, bus.TypeAgentTelemetry:
		return colorBlue
	default:
		return colorCyan
	}
}

type tuiModel struct {
	siteName   string
	table      table.Model
	vp         viewport.Model
	logs       []string
	state      world.State
	health     fleet.Health
	haveState  bool
	wrap       bool
	autoscroll bool
	height     int
}

func newTUIModel(siteName string) tuiModel {
	cols := []table.Column{
		{Title: "Fleet", Width: 14},
		{Title: "Count", Width: 8},
	}
	t := table.New(table.WithColumns(cols), table.WithHeight(6))
	return tuiModel{
		siteName:   siteName,
		table:      t,
		vp:         viewport.New(0, 0),
		autoscroll: true,
	}
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.vp.Width = msg.Width
		m.height = msg.Height
		m.updateViewportHeight()
		m.refreshViewport()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
		case "s":
			m.autoscroll = !m.autoscroll
		case "up", "k":
			m.vp.LineUp(1)
		case "down", "j":
			m.vp.LineDown(1)
		}
	case eventMsg:
		m.logs = append(m.logs, msg.line)
		if len(m.logs) > maxEventLines {
			m.logs = m.logs[len(m.logs)-maxEventLines:]
		}
		m.refreshViewport()
	case worldMsg:
		m.state = msg.State
		m.haveState = true
	case healthMsg:
		m.health = msg.Health
		m.table.SetRows(healthRows(msg.Health))
	}
	return m, nil
}

func healthRows(h fleet.Health) []table.Row {
	kinds := make([]fleet.Kind, 0, len(h.ByType))
	for k := range h.ByType {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	rows := make([]table.Row, 0, len(kinds)+1)
	for _, k := range kinds {
		rows = append(rows, table.Row{string(k), fmt.Sprintf("%d", h.ByType[k])})
	}
	rows = append(rows, table.Row{"total", fmt.Sprintf("%d", h.TotalAgents)})
	return rows
}

func (m *tuiModel) updateViewportHeight() {
	headerHeight := lipgloss.Height(m.renderHeader())
	h := m.height - headerHeight - 3
	if h < 3 {
		h = 3
	}
	m.vp.Height = h
}

func (m *tuiModel) refreshViewport() {
	lines := m.logs
	if m.wrap && m.vp.Width > 0 {
		lines = make([]string, 0, len(m.logs))
		for _, l := range m.logs {
			lines = append(lines, wordwrap.String(l, m.vp.Width))
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m tuiModel) View() string {
	divider := strings.Repeat("─", max(1, m.vp.Width))
	sections := []string{
		m.renderHeader(),
		divider,
		m.vp.View(),
		divider,
		m.renderFooter(),
	}
	return strings.Join(sections, "\n")
}

func (m tuiModel) renderHeader() string {
	title := lipgloss.NewStyle().Bold(true).Render("edgeops-sim · " + m.siteName)
	if !m.haveState {
		return title + "\n(waiting for first tick)"
	}
	scenario := m.state.ActiveScenario
	if scenario == "" {
		scenario = "none"
	}
	info := fmt.Sprintf(
		"tick=%d  time=%05.2fh  weather=%.2f  load=%.2f  temp=%.1f°C  wind=%.1fm/s  vis=%.1fkm  scenario=%s",
		m.state.Tick, m.state.TimeOfDayHours, m.state.WeatherFactor, m.state.OperationalLoad,
		m.state.AmbientTemperatureC, m.state.WindSpeedMps, m.state.VisibilityKm, scenario)

	healthColor := lipgloss.Color("2")
	if m.health.HealthScore < 80 {
		healthColor = lipgloss.Color("3")
	}
	if m.health.HealthScore < 50 {
		healthColor = lipgloss.Color("1")
	}
	score := lipgloss.NewStyle().Foreground(healthColor).
		Render(fmt.Sprintf("health=%d%%  online=%d  offline=%d  degraded=%d",
			m.health.HealthScore, m.health.OnlineAgents, m.health.OfflineAgents, m.health.DegradedAgents))

	sep := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render("│")
	left := strings.Join([]string{title, info, score}, "\n")
	return lipgloss.JoinHorizontal(lipgloss.Top, left, " "+sep+" ", m.table.View())
}

func (m tuiModel) renderFooter() string {
	wrapState := "off"
	if m.wrap {
		wrapState = "on"
	}
	scrollState := "on"
	if !m.autoscroll {
		scrollState = "off"
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("8")).
		Render(fmt.Sprintf("q quit · w wrap [%s] · s autoscroll [%s] · ↑/↓ scroll", wrapState, scrollState))
}
