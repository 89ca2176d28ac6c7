package common

import (
	"errors"
	"fmt"
)

type GoDBErrorCode int

const (
	// DuplicateObjectError indicates an attempt to create a table that already exists in the catalog.
	DuplicateObjectError GoDBErrorCode = iota
	// NoSuchObjectError indicates a request for a table, field index or field name that does
	// not exist.
	NoSuchObjectError
	// DeadlockError is returned by the lock manager when granting a request would close a cycle
	// in the wait-for graph. The requesting transaction must be aborted.
	DeadlockError
	// LogClosedError indicates an attempt to write to the log after it has been shut down.
	LogClosedError
	// SchemaMismatchError indicates a tuple whose TupleDesc is incompatible with the target
	// table or page.
	SchemaMismatchError
	// BufferPoolFullError is returned when a page must be brought in but every resident page
	// is dirty, so nothing can be evicted.
	BufferPoolFullError
	// PageFullError indicates an insertion into a page with no free slot.
	PageFullError
	// TupleNotFoundError indicates a delete of a tuple that does not live where its RecordID
	// says it does.
	TupleNotFoundError
	// CorruptPageError indicates on-disk page content that cannot be parsed.
	CorruptPageError
	// IOError indicates a failed read or write of a page.
	IOError
)

func (ec GoDBErrorCode) String() string {
	switch ec {
	case DuplicateObjectError:
		return "DuplicateObjectError"
	case NoSuchObjectError:
		return "NoSuchObjectError"
	case DeadlockError:
		return "DeadlockError"
	case LogClosedError:
		return "LogClosedError"
	case SchemaMismatchError:
		return "SchemaMismatchError"
	case BufferPoolFullError:
		return "BufferPoolFullError"
	case PageFullError:
		return "PageFullError"
	case TupleNotFoundError:
		return "TupleNotFoundError"
	case CorruptPageError:
		return "CorruptPageError"
	case IOError:
		return "IOError"
	}
	return "unknown"
}

// GoDBError is the custom error type for the storage engine. It carries a GoDBErrorCode that
// callers branch on (e.g. aborting a transaction on DeadlockError) along with a message.
type GoDBError struct {
	Code      GoDBErrorCode
	ErrString string
}

func (e GoDBError) Error() string {
	return fmt.Sprintf("err: %s; msg: %s", e.Code.String(), e.ErrString)
}

// Is reports whether target is a GoDBError with the same code, so errors.Is can match on the
// code regardless of the message or any wrapping.
func (e GoDBError) Is(target error) bool {
	var other GoDBError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// Sentinels for errors.Is comparisons.
var (
	ErrDuplicateObject = GoDBError{Code: DuplicateObjectError}
	ErrNoSuchObject    = GoDBError{Code: NoSuchObjectError}
	ErrDeadlock        = GoDBError{Code: DeadlockError}
	ErrLogClosed       = GoDBError{Code: LogClosedError}
	ErrSchemaMismatch  = GoDBError{Code: SchemaMismatchError}
	ErrBufferPoolFull  = GoDBError{Code: BufferPoolFullError}
	ErrPageFull        = GoDBError{Code: PageFullError}
	ErrTupleNotFound   = GoDBError{Code: TupleNotFoundError}
	ErrCorruptPage     = GoDBError{Code: CorruptPageError}
	ErrIO              = GoDBError{Code: IOError}
)

// NewError builds a GoDBError with a formatted message.
func NewError(code GoDBErrorCode, format string, args ...any) GoDBError {
	return GoDBError{Code: code, ErrString: fmt.Sprintf(format, args...)}
}

// ErrorCode extracts the GoDBErrorCode from err, looking through any wrapping.
func ErrorCode(err error) (GoDBErrorCode, bool) {
	var gerr GoDBError
	if errors.As(err, &gerr) {
		return gerr.Code, true
	}
	return 0, false
}

// IsDeadlock reports whether err signals that the calling transaction must abort.
func IsDeadlock(err error) bool {
	return errors.Is(err, ErrDeadlock)
}
