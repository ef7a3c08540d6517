package service

import "errors"

var (
	ErrUnknownPlacement = errors.New("unknown placement")
	ErrNoItems          = errors.New("no slot items requested")
	ErrDuplicateItem    = errors.New("duplicate slot item in request")
	ErrPastDate         = errors.New("slot date is in the past")
)
