//go:build !cgo

package sqldb

import (
	_ "github.com/mattn/go-sqlite3" // registers a stub that reports the missing cgo toolchain
)

func isMattnTransient(error) bool { return false }
