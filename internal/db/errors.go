package db

import "errors"

var (
	// ErrKeyNotFound is returned by Get for a missing key.
	ErrKeyNotFound = errors.New("db: key not found")
	// ErrIndexExists is returned by CreateIndex when the index is already defined.
	ErrIndexExists = errors.New("db: index already exists")
)

// Op names the failing command in an Error.
type Op string

// Commands issued by the store.
const (
	OpCreateIndex Op = "FT.CREATE"
	OpIndexInfo   Op = "FT.INFO"
	OpSearch      Op = "FT.SEARCH"
	OpHGetAll     Op = "HGETALL"
	OpScan        Op = "SCAN"
	OpGet         Op = "GET"
	OpSet         Op = "SET"
)

// Error carries the failing command and, when known, the key or index it targeted.
type Error struct {
	Op     Op
	Target string
	Err    error
}

func (e *Error) Error() string {
	if e.Target == "" {
		return string(e.Op) + ": " + e.Err.Error()
	}
	return string(e.Op) + " " + e.Target + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }
