package domain

import "errors"

var (
	ErrUnknownMode     = errors.New("unknown game mode")
	ErrInvalidPlayers  = errors.New("invalid number of players")
	ErrNoParticipants  = errors.New("no participants")
	ErrPresetNotFound  = errors.New("preset not found")
	ErrSessionNotFound = errors.New("session record not found")
)
