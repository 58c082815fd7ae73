package collector

import "github.com/pkg/errors"

var (
	ErrAlreadyRunning = errors.New("collector: already running on this thread")
	ErrUnknownEvent   = errors.New("collector: unknown hardware counter event")
	ErrNoCapturer     = errors.New("collector: no stack capturer configured")
	ErrBadRate        = errors.New("collector: invalid sample rate")
	ErrBadThreshold   = errors.New("collector: invalid overflow threshold")
)
