// Package reader assembles parsed objects into a navigable document.
//
// A [Document] owns the cross-reference table, a cache of resolved objects
// keyed by object number and generation, and the decryption state for
// encrypted files. Object access goes through [Document.Resolve] and
// [Document.ResolveReference]; both are safe for concurrent use.
//
// Loading is tolerant where the file format allows it to be. A damaged
// cross-reference table triggers a single linear-scan recovery pass over the
// whole file before the document is declared unreadable.
package reader
