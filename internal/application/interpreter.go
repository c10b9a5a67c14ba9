package application

import (
	"github.com/neoxalle/nx/internal/domain"
	"github.com/neoxalle/nx/internal/protocol"
	"go.uber.org/zap"
)

// Interpreter turns decoded frames into domain events and keeps the roster
// in step with them. It is the only writer of roster connectivity.
type Interpreter struct {
	roster  *domain.Roster
	logger  *zap.Logger
	dropped int
}

func NewInterpreter(roster *domain.Roster, logger *zap.Logger) *Interpreter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interpreter{roster: roster, logger: logger}
}

// Interpret returns the event for frame, or false when the frame is dropped.
func (i *Interpreter) Interpret(frame string) (domain.Event, bool) {
	event, err := protocol.ParseEvent([]byte(frame))
	if err != nil {
		i.dropped++
		i.logger.Debug("drop frame", zap.String("frame", frame), zap.Error(err))
		return nil, false
	}

	if i.roster.Apply(event) {
		i.logger.Debug("roster updated",
			zap.String("event", string(event.Kind())),
			zap.Int("connected", i.roster.ConnectedCount()),
		)
	}
	return event, true
}

func (i *Interpreter) Dropped() int {
	return i.dropped
}
