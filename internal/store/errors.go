package store

import "errors"

// ErrNotFound indicates a missing record.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate indicates a create that collides with an existing segment.
var ErrDuplicate = errors.New("segment already exists")
