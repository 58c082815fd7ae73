package transport

import "github.com/pkg/errors"

var ErrSinkClosed = errors.New("transport: sink is closed")
