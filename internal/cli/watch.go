package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/chorus/internal/broadcast"
	"github.com/raphaelgruber/chorus/internal/client"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// maxWatchLines bounds the scrollback kept by the interactive view.
const maxWatchLines = 200

var watchPlain bool

var watchCmd = &cobra.Command{
	Use:   "watch <room>",
	Short: "Follow a room's live events",
	Long: `Follow a room's live events: messages, joins and leaves, generation
status and finished visualizations with a link to their rendered page.

The interactive view is used when stdout is a terminal. Use --plain (or
pipe the output) for one line per event.

Examples:
  chorus watch lobby
  chorus watch lobby --plain | tee lobby.log`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchPlain, "plain", false, "print one line per event instead of the interactive view")
}

func runWatch(cmd *cobra.Command, args []string) error {
	room := args[0]
	if watchPlain || !term.IsTerminal(int(os.Stdout.Fd())) {
		return apiClient.Watch(cmd.Context(), room, func(f client.Frame) error {
			fmt.Println(describeFrame(f, apiClient.RenderURL))
			return nil
		})
	}
	return runWatchUI(apiClient, room)
}

// Theme holds the color scheme for the watch display.
type Theme struct {
	Status lipgloss.Color
	Agent  lipgloss.Color
	Error  lipgloss.Color
	Hint   lipgloss.Color
}

var defaultTheme = Theme{
	Status: lipgloss.Color("#5FAFD7"), // light blue
	Agent:  lipgloss.Color("#00D787"), // green
	Error:  lipgloss.Color("#FF005F"), // red
	Hint:   lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) agentStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Agent).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// frameMsg carries one websocket frame into the UI.
type frameMsg client.Frame

// watchDoneMsg reports that the websocket closed.
type watchDoneMsg struct{ err error }

// watchModel is the bubbletea model for following a room.
type watchModel struct {
	room       string
	renderURL  func(string) string
	lines      []string
	spinner    spinner.Model
	generating bool
	theme      Theme
	quitting   bool
	err        error
}

func newWatchModel(room string, renderURL func(string) string) watchModel {
	return watchModel{
		room:      room,
		renderURL: renderURL,
		spinner:   spinner.New(),
		theme:     defaultTheme,
	}
}

func (m watchModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case frameMsg:
		f := client.Frame(msg)
		if broadcast.Event(f.Event) == broadcast.EventNewStatus {
			m.generating = statusOf(f) == broadcast.StatusGenerating
		} else if broadcast.Event(f.Event) == broadcast.EventNewGeneration {
			m.generating = false
		}
		m.lines = append(m.lines, m.styleLine(f, describeFrame(f, m.renderURL)))
		if len(m.lines) > maxWatchLines {
			m.lines = m.lines[len(m.lines)-maxWatchLines:]
		}
		return m, nil

	case watchDoneMsg:
		m.err = msg.err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m watchModel) View() tea.View {
	var b strings.Builder
	b.WriteString(m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.room)) + "\n\n")
	for _, line := range m.lines {
		b.WriteString(line + "\n")
	}
	if m.err != nil {
		b.WriteString(m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Connection lost: %s\n", m.err)))
	}
	if m.generating {
		b.WriteString("\n" + m.spinner.View() + " generating visualization...\n")
	}
	if !m.quitting {
		b.WriteString("\n" + m.theme.hintStyle().Render("Press q to stop watching") + "\n")
	}
	return tea.NewView(b.String())
}

func (m watchModel) styleLine(f client.Frame, line string) string {
	switch broadcast.Event(f.Event) {
	case broadcast.EventNewGeneration:
		return m.theme.agentStyle().Render(line)
	case broadcast.EventNewStatus:
		if statusOf(f) == broadcast.StatusError {
			return m.theme.errorStyle().Render(line)
		}
		return m.theme.statusStyle().Render(line)
	case broadcast.EventUserJoined, broadcast.EventUserLeft:
		return m.theme.hintStyle().Render(line)
	}
	return line
}

// runWatchUI runs the interactive view until the user quits or the connection closes.
func runWatchUI(c *client.Client, room string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := tea.NewProgram(newWatchModel(room, c.RenderURL))
	go func() {
		err := c.Watch(ctx, room, func(f client.Frame) error {
			p.Send(frameMsg(f))
			return nil
		})
		p.Send(watchDoneMsg{err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("watch UI error: %w", err)
	}
	if m, ok := final.(watchModel); ok && !m.quitting && m.err != nil {
		return m.err
	}
	return nil
}

func statusOf(f client.Frame) string {
	var s broadcast.NewStatus
	_ = json.Unmarshal(f.Data, &s)
	return s.StatusType
}

// describeFrame renders one frame as a single human-readable line.
func describeFrame(f client.Frame, renderURL func(string) string) string {
	switch broadcast.Event(f.Event) {
	case broadcast.EventNewMessage:
		var m broadcast.NewMessage
		if json.Unmarshal(f.Data, &m) == nil {
			return fmt.Sprintf("%s %-12s %s", clock(m.CreatedAt), m.UserID, m.Content)
		}
	case broadcast.EventUserJoined:
		var u broadcast.UserJoined
		if json.Unmarshal(f.Data, &u) == nil {
			return fmt.Sprintf("%s → %s joined", clock(u.JoinedAt), u.UserID)
		}
	case broadcast.EventUserLeft:
		var u broadcast.UserLeft
		if json.Unmarshal(f.Data, &u) == nil {
			return fmt.Sprintf("%s ← %s left", clock(time.Time{}), u.UserID)
		}
	case broadcast.EventNewGeneration:
		var g broadcast.NewGeneration
		if json.Unmarshal(f.Data, &g) == nil {
			return fmt.Sprintf("%s ✓ %s ready: %s", clock(g.CreatedAt), g.Type, renderURL(g.GenerationID))
		}
	case broadcast.EventNewStatus:
		var s broadcast.NewStatus
		if json.Unmarshal(f.Data, &s) == nil {
			line := fmt.Sprintf("%s • %s", clock(time.Time{}), s.StatusType)
			if s.Message != "" {
				line += ": " + s.Message
			}
			return line
		}
	}
	return fmt.Sprintf("%s %s %s", clock(time.Time{}), f.Event, string(f.Data))
}

// clock formats t as a local time of day; the zero time means now.
func clock(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.Local().Format("15:04:05")
}
