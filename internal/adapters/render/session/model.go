package session

import (
	"errors"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/neoxalle/nx/internal/application"
	"github.com/neoxalle/nx/internal/domain"
)

var ErrUnexpectedRenderModel = errors.New("unexpected final bubbletea model type")

type renderReadyMsg struct{}

type model struct {
	records []domain.SessionRecord
	stats   application.HistoryStats
	opts    RenderOptions
	styles  styles
	output  string
}

func newModel(records []domain.SessionRecord, stats application.HistoryStats, opts RenderOptions) model {
	return model{
		records: records,
		stats:   stats,
		opts:    opts,
		styles:  newStyles(),
	}
}

func (m model) Init() tea.Cmd {
	return func() tea.Msg {
		return renderReadyMsg{}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg.(type) {
	case renderReadyMsg:
		m.output = renderHistory(m.records, m.stats, m.opts, m.styles)
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m model) View() string {
	return m.output
}

// RenderHistory draws the stats header followed by one block per record.
func RenderHistory(records []domain.SessionRecord, stats application.HistoryStats, opts RenderOptions) (string, error) {
	p := tea.NewProgram(
		newModel(records, stats, opts),
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
	)

	finalModel, err := p.Run()
	if err != nil {
		return "", err
	}

	rendered, ok := finalModel.(model)
	if !ok {
		return "", ErrUnexpectedRenderModel
	}

	return rendered.View(), nil
}
