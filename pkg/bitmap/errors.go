package bitmap

import "github.com/pkg/errors"

var (
	ErrEmptyAddressSet = errors.New("cannot build a bitmap from an empty address set")
	ErrBadMessageSize  = errors.New("bitmap message byte length does not match its range width")
)
