package dataset

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrStorage       = errors.New("storage failure")
	ErrInvalidName   = errors.New("invalid name")
)
