// Package core provides low-level PDF parsing primitives and object types.
//
// It implements the building blocks the rest of the module is assembled
// from: the eight basic PDF object variants plus streams and indirect
// references, a tokenizer and recursive-descent parser for PDF syntax,
// cross-reference resolution (classic tables and xref streams), object
// streams, and stream filter decoding.
//
// # Object Types
//
// Every PDF object variant satisfies the [Object] interface:
//
//   - [Null], [Bool], [Int], [Real] - scalars
//   - [String] - string objects (literal or hexadecimal source form)
//   - [Name] - name objects (/Type, /Font, ...)
//   - [Array], [Dict] - containers
//   - [Stream] - a dictionary plus raw bytes
//   - [IndirectRef] - an unresolved "n g R" reference
//
// Objects are immutable once parsed; indirect references stay unresolved
// until a resolver (the reader package's Document) is asked for them.
//
// # Parsing
//
// [Lexer] turns bytes into tokens; [Parser] assembles tokens into objects
// and whole indirect object definitions, including stream payload handling
// with a scan-for-endstream fallback when /Length is unusable.
//
// # Cross-References
//
// [XRefParser] locates the startxref pointer, reads classic tables and xref
// streams, follows /Prev chains with cycle protection and overlays the
// sections so incremental updates shadow older object versions.
// [ObjectStream] unpacks compressed objects referenced by xref stream
// entries.
//
// # Errors
//
// The package defines the typed error taxonomy used across the module:
// [LexError], [ParseError], [XrefError], [CorruptError] and [FilterError].
// Xref errors are recoverable (the reader falls back to a whole-file scan);
// corrupt errors are terminal for the document.
package core
