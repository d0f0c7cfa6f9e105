package strategy

import "errors"

var (
	ErrStopped        = errors.New("instance is stopping")
	ErrNotInTrade     = errors.New("no open position")
	ErrAlreadyInTrade = errors.New("position already open")
	ErrInvalidSide    = errors.New("trail side must be BUY or SELL")
)
