// Package pdferr defines the error kinds reported while reading and merging PDF files.
//
// Kinds are matched with errors.As; the sentinel values with errors.Is.
package pdferr

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfcombine/ir/raw"
)

var (
	// ErrEncrypted indicates the document carries an /Encrypt dictionary.
	ErrEncrypted = errors.New("document is encrypted")

	// ErrNoInputs indicates a merge was requested with no input documents.
	ErrNoInputs = errors.New("no input documents")

	// ErrNoRoot indicates no document catalog could be located, even by repair.
	ErrNoRoot = errors.New("no document catalog found")
)

// LexError reports a byte sequence that matches no lexical class.
type LexError struct {
	Offset int64
	Msg    string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("lex error at offset %d: %s", e.Offset, e.Msg)
}

// ParseError reports malformed or truncated object syntax.
type ParseError struct {
	Offset int64
	Object int // 0 when not inside a numbered object
	Err    error
}

func (e *ParseError) Error() string {
	if e.Object > 0 {
		return fmt.Sprintf("parse error in object %d at offset %d: %v", e.Object, e.Offset, e.Err)
	}
	return fmt.Sprintf("parse error at offset %d: %v", e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// XrefCorruptionError reports cross-reference data that could not be read or repaired.
type XrefCorruptionError struct {
	Offset int64
	Err    error
}

func (e *XrefCorruptionError) Error() string {
	return fmt.Sprintf("xref corrupt at offset %d: %v", e.Offset, e.Err)
}

func (e *XrefCorruptionError) Unwrap() error { return e.Err }

// DanglingReferenceError reports a reference to an object that does not exist.
type DanglingReferenceError struct {
	Ref raw.ObjectRef
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("dangling reference %s", e.Ref)
}

// StructuralError reports a cyclic or malformed page tree or catalog.
type StructuralError struct {
	Ref raw.ObjectRef
	Msg string
}

func (e *StructuralError) Error() string {
	if e.Ref.Num > 0 {
		return fmt.Sprintf("structural error at %s: %s", e.Ref, e.Msg)
	}
	return "structural error: " + e.Msg
}

// UnsupportedFeatureError reports a document feature this library does not handle.
type UnsupportedFeatureError struct {
	Feature string
	Err     error
}

func (e *UnsupportedFeatureError) Error() string {
	return fmt.Sprintf("unsupported feature %s: %v", e.Feature, e.Err)
}

func (e *UnsupportedFeatureError) Unwrap() error { return e.Err }

// IoError reports a failure of the underlying output writer.
type IoError struct {
	Err error
}

func (e *IoError) Error() string { return "write output: " + e.Err.Error() }
func (e *IoError) Unwrap() error { return e.Err }

// MergeError is returned by merge operations. Input is the index of the
// failing input document, or -1 when the failure is not specific to one input.
type MergeError struct {
	Input int
	Op    string
	Err   error
}

func (e *MergeError) Error() string {
	if e.Input >= 0 {
		return fmt.Sprintf("merge: %s input %d: %v", e.Op, e.Input, e.Err)
	}
	return fmt.Sprintf("merge: %s: %v", e.Op, e.Err)
}

func (e *MergeError) Unwrap() error { return e.Err }
