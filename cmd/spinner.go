package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/neoxalle/nx/internal/application"
	"github.com/neoxalle/nx/internal/domain"
)

type rosterMsg struct {
	slaves []domain.SlaveInfo
}

type scanDoneMsg struct {
	slaves []domain.SlaveInfo
	err    error
}

// scanModel spins while the hub answers a scan, counting pods as the
// roster fills in.
type scanModel struct {
	spinner   spinner.Model
	updates   <-chan application.View
	scan      tea.Cmd
	connected int
	known     int
	slaves    []domain.SlaveInfo
	err       error
	done      bool
}

func newScanModel(updates <-chan application.View, scan tea.Cmd) scanModel {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("69"))),
	)

	return scanModel{
		spinner: s,
		updates: updates,
		scan:    scan,
	}
}

func (m scanModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.scan, waitForRoster(m.updates))
}

func (m scanModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case rosterMsg:
		m.count(msg.slaves)
		return m, waitForRoster(m.updates)
	case scanDoneMsg:
		m.done = true
		m.err = msg.err
		m.slaves = msg.slaves
		m.count(msg.slaves)
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m *scanModel) count(slaves []domain.SlaveInfo) {
	m.known = len(slaves)
	m.connected = 0
	for _, slave := range slaves {
		if slave.Connected {
			m.connected++
		}
	}
}

func (m scanModel) View() string {
	if m.done {
		return ""
	}
	if m.known == 0 {
		return fmt.Sprintf("%s Scanning for pods...", m.spinner.View())
	}
	return fmt.Sprintf("%s Scanning for pods... %d of %d connected", m.spinner.View(), m.connected, m.known)
}

// waitForRoster reads the next controller snapshot. A closed stream ends
// the watch.
func waitForRoster(updates <-chan application.View) tea.Cmd {
	if updates == nil {
		return nil
	}
	return func() tea.Msg {
		view, ok := <-updates
		if !ok {
			return nil
		}
		return rosterMsg{slaves: view.Slaves}
	}
}

// runScanProgress scans the hub while drawing progress on output and returns
// the roster scanRoster settled on.
func runScanProgress(ctx context.Context, output io.Writer, ctrl *application.Controller, timeout time.Duration) ([]domain.SlaveInfo, error) {
	scan := func() tea.Msg {
		slaves, err := scanRoster(ctx, ctrl, timeout)
		return scanDoneMsg{slaves: slaves, err: err}
	}

	p := tea.NewProgram(
		newScanModel(ctrl.Updates(), scan),
		tea.WithInput(nil),
		tea.WithOutput(output),
		tea.WithContext(ctx),
	)

	finalModel, err := p.Run()
	if err != nil {
		return nil, err
	}

	result, ok := finalModel.(scanModel)
	if !ok {
		return nil, fmt.Errorf("unexpected final scan model type %T", finalModel)
	}

	return result.slaves, result.err
}
