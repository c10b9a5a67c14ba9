package application

import "errors"

var (
	ErrNotEnoughSlaves  = errors.New("not enough connected slaves")
	ErrInvalidInput     = errors.New("input not accepted in current phase")
	ErrNoTopology       = errors.New("slave topology not established")
	ErrDisconnected     = errors.New("channel disconnected")
	ErrNotDelivered     = errors.New("command not delivered")
	ErrControllerClosed = errors.New("controller closed")
)
