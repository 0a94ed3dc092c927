package store

import (
	"errors"

	"github.com/jacentio/pathstore/internal/nested"
	"github.com/jacentio/pathstore/pathcodec"
)

var (
	// ErrInvalidPath is returned when a path has fewer segments than the operation requires.
	ErrInvalidPath = pathcodec.ErrInvalidPath

	// ErrInvalidArgument is returned when an operation receives a value it cannot apply,
	// e.g. replacing a whole document with a non-map value.
	ErrInvalidArgument = errors.New("pathstore: invalid argument")

	// ErrNotList is returned by backends when a list operation targets a non-list value.
	ErrNotList = nested.ErrNotList

	// ErrNotMap is returned by backends when a field path walks through a non-map value.
	ErrNotMap = nested.ErrNotMap
)
