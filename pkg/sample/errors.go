package sample

import "github.com/pkg/errors"

var ErrNoSink = errors.New("sample: no transport sink configured")
