// Package apperr defines the sentinel errors shared by the tree core, the
// remote store and the transport layers.
package apperr

import "errors"

// Remote store errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
)

// Tree core errors.
var (
	// ErrTransport reports a network or remote failure returned by a DataSource.
	ErrTransport = errors.New("transport failure")

	// ErrMapping reports a response record that could not be converted into a node.
	ErrMapping = errors.New("mapping failure")
)
