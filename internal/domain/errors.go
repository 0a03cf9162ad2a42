package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrEmptySide    = errors.New("orderbook side is empty")
	ErrRateLimited  = errors.New("rate limited")
	ErrWSDisconnect = errors.New("websocket disconnected")
)
