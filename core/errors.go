package core

import "fmt"

// LexError reports an invalid byte sequence encountered during tokenization.
type LexError struct {
	Pos int64  // Byte position in the input
	Msg string // Description of the invalid input
}

func (e *LexError) Error() string {
	return fmt.Sprintf("lex error at %d: %s", e.Pos, e.Msg)
}

// ParseError reports structurally invalid PDF syntax: unbalanced delimiters,
// a missing dictionary key, a truncated stream, and so on.
type ParseError struct {
	Pos int64  // Byte position where the problem was detected, -1 if unknown
	Msg string
	Err error  // Underlying cause, if any
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("parse error: %s", e.Msg)
}

func (e *ParseError) Unwrap() error { return e.Err }

// XrefError reports a broken cross-reference chain: a bad startxref offset,
// a cyclic /Prev chain, or an entry pointing outside the file. Xref errors
// are recoverable — the reader falls back to a linear object scan before
// giving up with CorruptError.
type XrefError struct {
	Offset int64 // Offset that could not be used, -1 if not applicable
	Msg    string
	Err    error
}

func (e *XrefError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("xref error at offset %d: %s: %v", e.Offset, e.Msg, e.Err)
	}
	return fmt.Sprintf("xref error at offset %d: %s", e.Offset, e.Msg)
}

func (e *XrefError) Unwrap() error { return e.Err }

// CorruptError reports a document that cannot be read even after recovery:
// xref reconstruction failed, or the page tree is cyclic or too deep.
// It is terminal for the affected document.
type CorruptError struct {
	Msg string
	Err error
}

func (e *CorruptError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("document corrupt: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("document corrupt: %s", e.Msg)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// FilterError reports a decode filter failure, naming the filter that failed.
// A filter error is terminal for that stream but not for the document.
type FilterError struct {
	Filter string // PDF filter name, e.g. "FlateDecode"
	Err    error
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("filter %s: %v", e.Filter, e.Err)
}

func (e *FilterError) Unwrap() error { return e.Err }
