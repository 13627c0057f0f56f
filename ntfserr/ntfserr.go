// Package ntfserr defines the small, closed set of error kinds the rest of this module raises. It follows the shape
// of the standard library's *fs.PathError and *os.LinkError: an operation label plus a wrapped cause, switchable on
// with Is, rather than a grab-bag of ad-hoc fmt.Errorf strings.
package ntfserr

import "fmt"

// Kind identifies one of the fail-fast error categories the core can raise. A Kind is never raised on its own; it is
// always carried inside an *Error together with the operation that triggered it and, usually, a wrapped cause.
type Kind int

const (
	// Overrun indicates an attempted read beyond the bounds of a byte source.
	Overrun Kind = iota
	// Fixup indicates an update-sequence mismatch while applying MFT record or INDX block fixups.
	Fixup
	// InvalidRecord indicates a bad magic signature or an internally inconsistent record header.
	InvalidRecord
	// AttributeNotFound indicates a requested attribute type is absent from a record.
	AttributeNotFound
	// ChildNotFound indicates a named child does not exist in a directory.
	ChildNotFound
	// DirectoryNotFound indicates a path component did not resolve to a directory.
	DirectoryNotFound
	// NoParent indicates a record has no resolvable parent (e.g. the root, or a missing FILE_NAME attribute).
	NoParent
	// UnsupportedPath indicates a path mixed '/' and '\' separators.
	UnsupportedPath
	// CorruptFilesystem indicates that neither the $MFT nor its mirror could be read to their final byte.
	CorruptFilesystem
	// Value indicates a decoded value cannot be represented: a FILETIME outside the representable range, or UTF-16LE
	// text of odd length or that does not decode.
	Value
)

func (k Kind) String() string {
	switch k {
	case Overrun:
		return "overrun"
	case Fixup:
		return "fixup"
	case InvalidRecord:
		return "invalid-record"
	case AttributeNotFound:
		return "attribute-not-found"
	case ChildNotFound:
		return "child-not-found"
	case DirectoryNotFound:
		return "directory-not-found"
	case NoParent:
		return "no-parent"
	case UnsupportedPath:
		return "unsupported-path"
	case CorruptFilesystem:
		return "corrupt-filesystem"
	case Value:
		return "value"
	}
	return "unknown"
}

// Error is the concrete error type raised by this module. Op names the operation that failed (typically
// "package.Func"), Kind is the category from the taxonomy above, and Err, when present, is the underlying cause.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap allows errors.Is/errors.As to see through to the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an *Error with no wrapped cause.
func New(op string, kind Kind) error {
	return &Error{Op: op, Kind: kind}
}

// Wrap creates an *Error wrapping err. If err is nil, Wrap returns nil, so it is safe to use as
// `return ntfserr.Wrap(op, kind, err)` after a call that may or may not have failed.
func Wrap(op string, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// Is reports whether the first *Error found in err's Unwrap chain (err itself, if it is one) has the given Kind.
// *Errors wrapped inside that first one are not consulted.
func Is(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind == kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
