package sqlite

import (
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/websql/pkg/types"
)

// unsafeFileChars matches what may not appear in a database file name.
var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// dataFile maps a database name to its file under dir. Characters outside
// [A-Za-z0-9._-] become underscores.
func dataFile(dir, name string) string {
	return filepath.Join(dir, unsafeFileChars.ReplaceAllString(name, "_")+".db")
}

// dsn builds the data source name for driver. Both drivers take the busy
// timeout in milliseconds, under different parameter names.
func dsn(driver, path string, busy time.Duration) string {
	ms := busy.Milliseconds()
	switch driver {
	case types.DriverMattn:
		return fmt.Sprintf("file:%s?_busy_timeout=%d", path, ms)
	default:
		return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", path, ms)
	}
}

// nativeError wraps err with context and classifies it into a *types.Error
// carrying the driver's result code. Errors that already carry a kind keep it.
func nativeError(kind types.ErrorKind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if k := types.KindOf(err); k != 0 {
		kind = k
	}
	return &types.Error{
		Kind: kind,
		Code: nativeCode(err),
		Err:  errors.Wrapf(err, format, args...),
	}
}

// nativeCode returns the extended SQLite result code of err, or 0.
func nativeCode(err error) int {
	var coded interface{ Code() int }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return mattnCode(err)
}
