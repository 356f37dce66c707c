//go:build cgo

package sqlite

import (
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// mattnCode returns the extended result code of a go-sqlite3 error, or 0.
func mattnCode(err error) int {
	var e sqlite3.Error
	if errors.As(err, &e) {
		return int(e.ExtendedCode)
	}
	return 0
}
