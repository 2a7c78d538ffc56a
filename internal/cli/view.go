package cli

import (
	"context"
	"fmt"
	"image/color"
	"strings"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
	lipgloss "charm.land/lipgloss/v2"
	"github.com/raphaelgruber/radar/internal/models"
)

// streamFunc is the client call the live view drains. Both the NDJSON and
// the WebSocket transports satisfy it.
type streamFunc func(context.Context, models.ScanRequest, func(models.StreamLine) error) error

// Theme holds the color scheme for the live scan display.
type Theme struct {
	Status  color.Color
	Success color.Color
	Error   color.Color
	Hint    color.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

// Style functions for dynamic theming
func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) successStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// scanLineMsg carries one stream event into the view.
type scanLineMsg models.StreamLine

// scanDoneMsg reports the end of the stream.
type scanDoneMsg struct {
	err error
}

// scanModel is the bubbletea model for a streaming scan.
type scanModel struct {
	topic    string
	events   <-chan tea.Msg
	cancel   context.CancelFunc
	spinner  spinner.Model
	theme    Theme
	status   string
	signals  []models.Signal
	warnings []string
	done     bool
	quitting bool
	err      error
}

// newScanModel creates a new scan view model.
func newScanModel(topic string, events <-chan tea.Msg, cancel context.CancelFunc) scanModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = defaultTheme.statusStyle()

	return scanModel{
		topic:   topic,
		events:  events,
		cancel:  cancel,
		spinner: sp,
		theme:   defaultTheme,
		status:  "starting scan...",
	}
}

// Init returns the initial commands (spinner plus the stream drain).
func (m scanModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		waitForEvent(m.events),
	)
}

// Update handles messages and returns the updated model.
func (m scanModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			// Cancel the scan but keep draining until the stream
			// goroutine reports done, so nothing blocks behind us.
			m.quitting = true
			m.cancel()
			return m, nil
		}

	case scanLineMsg:
		line := models.StreamLine(msg)
		switch {
		case line.Payload() != nil:
			m.signals = append(m.signals, *line.Payload())
		case line.Status == models.LineError:
			m.warnings = append(m.warnings, line.Msg)
		case line.Msg != "":
			m.status = line.Msg
		}
		return m, waitForEvent(m.events)

	case scanDoneMsg:
		m.done = true
		if !m.quitting {
			m.err = msg.err
		}
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the scan display.
func (m scanModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

// renderContent builds the display string.
func (m scanModel) renderContent() string {
	if m.done {
		return m.finalView()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Scanning: %s\n\n", m.topic)
	b.WriteString(m.renderSignals())
	b.WriteString(m.renderWarnings())
	fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), m.theme.statusStyle().Render(m.status))
	b.WriteString(m.theme.hintStyle().Render("Press Ctrl+C to stop the scan"))
	b.WriteString("\n")
	return b.String()
}

// renderSignals lists the signals received so far.
func (m scanModel) renderSignals() string {
	if len(m.signals) == 0 {
		return ""
	}

	var b strings.Builder
	for i, sig := range m.signals {
		fmt.Fprintf(&b, "%2d. %s [%s]\n", i+1, sig.Title, sig.Mission)
	}
	b.WriteString("\n")
	return b.String()
}

// renderWarnings lists non-fatal stream errors.
func (m scanModel) renderWarnings() string {
	if len(m.warnings) == 0 {
		return ""
	}

	var b strings.Builder
	for _, w := range m.warnings {
		b.WriteString(m.theme.errorStyle().Render(fmt.Sprintf("! %s", w)))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}

// finalView renders the completion message.
func (m scanModel) finalView() string {
	var b strings.Builder
	b.WriteString(m.renderSignals())
	b.WriteString(m.renderWarnings())

	switch {
	case m.quitting:
		b.WriteString(m.theme.hintStyle().Render("Scan stopped."))
	case m.err != nil:
		b.WriteString(m.theme.errorStyle().Render(fmt.Sprintf("✗ Scan failed: %s", m.err)))
	default:
		b.WriteString(m.theme.successStyle().Render(fmt.Sprintf("✓ %s", m.status)))
	}
	b.WriteString("\n")
	return b.String()
}

// waitForEvent receives the next stream message.
// Runs as a command so the channel read never blocks Update().
func waitForEvent(events <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-events
	}
}

// runScanView runs the interactive display for a streaming scan.
// Returns the stream error, or nil when the user stopped the scan early.
func runScanView(req models.ScanRequest, stream streamFunc) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan tea.Msg, 32)
	go func() {
		err := stream(ctx, req, func(line models.StreamLine) error {
			events <- scanLineMsg(line)
			return nil
		})
		events <- scanDoneMsg{err: err}
	}()

	p := tea.NewProgram(newScanModel(req.Topic, events, cancel))
	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("scan view error: %w", err)
	}

	if m, ok := finalModel.(scanModel); ok {
		if m.quitting {
			return nil
		}
		return m.err
	}

	return nil
}
