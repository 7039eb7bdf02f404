// Package daverr defines the error taxonomy shared by the resolver, the
// repository-service adapter and the WebDAV filesystem. Handlers switch on
// Kind to pick an HTTP/WebDAV status instead of string-matching error text.
package daverr

import "fmt"

// Kind classifies an error into one of the buckets the DAV layer needs to
// translate into a response status.
type Kind int

const (
	// KindInternal covers anything not classified below (maps to 500).
	KindInternal Kind = iota
	// KindBadRequest is an invalid path, malformed name or bad argument (400).
	KindBadRequest
	// KindForbidden is a permission or quota denial (403).
	KindForbidden
	// KindNotFound is a missing repo, directory or file (404).
	KindNotFound
	// KindConflict is a name collision or parent-missing-on-write (409).
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a typed error carrying enough information for the DAV layer to
// pick a status code without re-parsing the message.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "resolve", "put_file"
	Path string // repo-relative path involved, if any
	Err  error  // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s", e.Op, e.Kind)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// BadRequest wraps err as a KindBadRequest error.
func BadRequest(op, path string, err error) error { return newErr(KindBadRequest, op, path, err) }

// Forbidden wraps err as a KindForbidden error.
func Forbidden(op, path string, err error) error { return newErr(KindForbidden, op, path, err) }

// NotFound wraps err as a KindNotFound error.
func NotFound(op, path string, err error) error { return newErr(KindNotFound, op, path, err) }

// Conflict wraps err as a KindConflict error.
func Conflict(op, path string, err error) error { return newErr(KindConflict, op, path, err) }

// Internal wraps err as a KindInternal error.
func Internal(op, path string, err error) error { return newErr(KindInternal, op, path, err) }

// KindOf extracts the Kind from err, defaulting to KindInternal for errors
// that were never classified (e.g. a raw error from a dependency).
func KindOf(err error) Kind {
	var de *Error
	for u := err; u != nil; {
		if e, ok := u.(*Error); ok {
			de = e
			break
		}
		uw, ok := u.(interface{ Unwrap() error })
		if !ok {
			break
		}
		u = uw.Unwrap()
	}
	if de == nil {
		return KindInternal
	}
	return de.Kind
}
