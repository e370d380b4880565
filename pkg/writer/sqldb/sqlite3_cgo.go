//go:build cgo

package sqldb

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

func isMattnTransient(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}
