package domain

import "errors"

var (
	ErrNoData                = errors.New("no book data")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrNotConnected          = errors.New("not connected")
	ErrRetryBudgetExhausted  = errors.New("reconnect retry budget exhausted")
	ErrUnrecognizedMessage   = errors.New("unrecognized message shape")
	ErrNotFound              = errors.New("not found")
)
