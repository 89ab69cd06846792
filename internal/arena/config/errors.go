package config

import "errors"

// ErrInvalidMatchConfig is returned (wrapped) whenever a match setting is out
// of range.
var ErrInvalidMatchConfig = errors.New("invalid match configuration")
