// Package vellum provides a fluent API for reading PDF files: page text,
// document metadata, and the raw content stream operations.
//
// Basic usage:
//
//	text, warnings, err := vellum.Open("document.pdf").Text()
//	if err != nil {
//	    // handle error
//	}
//	if len(warnings) > 0 {
//	    log.Println("Warnings:", vellum.FormatWarnings(warnings))
//	}
//
// With options:
//
//	text, _, err := vellum.Open("locked.pdf").
//	    Password("hunter2").
//	    Pages(1, 2, 3).
//	    Text()
//
// For advanced use cases, the lower-level reader package is also available.
package vellum

import (
	"io"

	"github.com/tsawler/vellum/reader"
)

// Open opens a PDF file and returns an Extractor for fluent configuration.
// The returned Extractor must be closed when done, either explicitly via
// Close() or implicitly when calling a terminal operation like Text().
//
// Example:
//
//	text, warnings, err := vellum.Open("document.pdf").Text()
func Open(filename string) *Extractor {
	return &Extractor{
		filename: filename,
		options:  defaultOptions(),
	}
}

// FromReader creates an Extractor from an in-memory or already-opened
// source. The caller keeps ownership of r.
//
// Example:
//
//	text, warnings, err := vellum.FromReader(bytes.NewReader(data)).Text()
func FromReader(r io.ReadSeeker) *Extractor {
	return &Extractor{
		src:     r,
		options: defaultOptions(),
	}
}

// Must is a helper that wraps a call to a function returning (T, error)
// and panics if the error is non-nil. It is intended for use in scripts
// or tests where error handling would be cumbersome.
//
// Example:
//
//	count := vellum.Must(vellum.Open("document.pdf").PageCount())
func Must[T any](val T, err error) T {
	if err != nil {
		panic(err)
	}
	return val
}

// MustText is a helper that wraps a call to Text() and panics if the error
// is non-nil. It discards warnings and returns just the value. It is
// intended for use in scripts or tests where error handling would be
// cumbersome.
//
// Example:
//
//	text := vellum.MustText(vellum.Open("document.pdf").Text())
func MustText[T any](val T, _ []Warning, err error) T {
	if err != nil {
		panic(err)
	}
	return val
}

// Metadata re-exports the reader type so simple callers need only this
// package.
type Metadata = reader.Metadata
