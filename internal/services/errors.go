package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures for mapping onto HTTP statuses.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindNotFound
	KindStorage
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNotFound:
		return "not_found"
	case KindStorage:
		return "storage"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

var ErrTaskNotFound = errors.New("task not found")

// StorageError wraps any failure raised by the storage layer.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func NewStorageError(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// KindOf reports the kind of err. Anything not recognised as not-found is a
// storage failure.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrTaskNotFound):
		return KindNotFound
	default:
		return KindStorage
	}
}
