//go:build !cgo

package sqlite

// mattnCode is 0 without cgo: go-sqlite3 only registers a stub driver then.
func mattnCode(error) int { return 0 }
