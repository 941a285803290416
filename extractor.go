package vellum

import (
	"fmt"
	"io"
	"os"

	"github.com/tsawler/vellum/contentstream"
	"github.com/tsawler/vellum/crypt"
	"github.com/tsawler/vellum/reader"
	"github.com/tsawler/vellum/text"
)

// Extractor provides a fluent interface for reading PDF content. Each
// configuration method returns a new Extractor instance, making it safe for
// concurrent use and allowing method chaining.
type Extractor struct {
	// Source
	filename string
	src      io.ReadSeeker

	// Lifecycle
	file      *os.File // set when we opened the file ourselves
	doc       *reader.Document
	docLoaded bool

	// Configuration
	options ExtractOptions

	// Accumulated error (fail-fast)
	err error

	// Warnings accumulated during processing
	warnings []Warning
}

// clone creates a shallow copy of the Extractor with a deep copy of options.
// This ensures immutability - each chain method returns a new instance.
func (e *Extractor) clone() *Extractor {
	return &Extractor{
		filename:  e.filename,
		src:       e.src,
		file:      e.file,
		doc:       e.doc,
		docLoaded: e.docLoaded,
		options:   e.options.clone(),
		err:       e.err,
		warnings:  append([]Warning(nil), e.warnings...),
	}
}

// ensureDoc opens the source and loads the document if not already loaded.
func (e *Extractor) ensureDoc() error {
	if e.err != nil {
		return e.err
	}
	if e.docLoaded {
		return nil
	}

	if e.src == nil {
		if e.filename == "" {
			return fmt.Errorf("no source specified")
		}
		f, err := os.Open(e.filename)
		if err != nil {
			return fmt.Errorf("failed to open PDF: %w", err)
		}
		e.file = f
		e.src = f
	}

	doc, err := reader.NewDocument(e.src, reader.Options{
		Password:             e.options.password,
		MetadataRequiresAuth: e.options.metadataRequiresAuth,
		DisableRecovery:      e.options.disableRecovery,
	})
	if err != nil {
		return err
	}
	for _, msg := range doc.Warnings() {
		e.warnings = append(e.warnings, Warning{Message: msg})
	}
	e.doc = doc
	e.docLoaded = true
	return nil
}

// Close releases resources associated with the Extractor.
// It is safe to call Close multiple times.
func (e *Extractor) Close() error {
	if e.file != nil {
		err := e.file.Close()
		e.file = nil
		return err
	}
	return nil
}

// ============================================================================
// Configuration Methods (return new Extractor instance)
// ============================================================================

// Password supplies the password for encrypted documents. The empty password
// is always tried as well.
//
// Example:
//
//	text, _, err := vellum.Open("locked.pdf").Password("hunter2").Text()
func (e *Extractor) Password(password string) *Extractor {
	newExt := e.clone()
	newExt.options.password = password
	return newExt
}

// Pages specifies which pages to extract from (1-indexed).
// Multiple calls are cumulative.
//
// Example:
//
//	text, _, err := vellum.Open("doc.pdf").Pages(1, 3, 5).Text()
func (e *Extractor) Pages(pages ...int) *Extractor {
	newExt := e.clone()
	newExt.options.pages = append(newExt.options.pages, pages...)
	return newExt
}

// PageRange specifies a range of pages to extract (1-indexed, inclusive).
func (e *Extractor) PageRange(first, last int) *Extractor {
	newExt := e.clone()
	if first < 1 || last < first {
		newExt.err = fmt.Errorf("invalid page range %d-%d", first, last)
		return newExt
	}
	for p := first; p <= last; p++ {
		newExt.options.pages = append(newExt.options.pages, p)
	}
	return newExt
}

// PageSeparator sets the string placed between pages in Text output.
// The default is a blank line.
func (e *Extractor) PageSeparator(sep string) *Extractor {
	newExt := e.clone()
	newExt.options.pageSeparator = sep
	return newExt
}

// MetadataRequiresAuth withholds document metadata until a password has been
// accepted. By default metadata stays readable on encrypted files.
func (e *Extractor) MetadataRequiresAuth() *Extractor {
	newExt := e.clone()
	newExt.options.metadataRequiresAuth = true
	return newExt
}

// WithoutRecovery disables the linear-scan rebuild used when the
// cross-reference table is damaged, failing fast instead.
func (e *Extractor) WithoutRecovery() *Extractor {
	newExt := e.clone()
	newExt.options.disableRecovery = true
	return newExt
}

// ============================================================================
// Terminal Operations
// ============================================================================

// Text extracts the selected pages' text, joined by the page separator.
func (e *Extractor) Text() (string, []Warning, error) {
	if err := e.ensureDoc(); err != nil {
		return "", e.warnings, err
	}
	defer e.Close()

	indices, err := e.pageIndices()
	if err != nil {
		return "", e.warnings, err
	}

	extractor := text.NewExtractor()
	out := ""
	for i, idx := range indices {
		content, err := e.doc.PageContent(idx)
		if err != nil {
			return "", e.warnings, fmt.Errorf("page %d: %w", idx+1, err)
		}
		pageText, opErrs, err := extractor.FromContent(content)
		if err != nil {
			return "", e.warnings, fmt.Errorf("page %d: %w", idx+1, err)
		}
		for _, opErr := range opErrs {
			e.warnings = append(e.warnings, Warning{Page: idx + 1, Message: opErr.Error()})
		}
		if i > 0 {
			out += e.options.pageSeparator
		}
		out += pageText
	}
	return out, e.warnings, nil
}

// Operations parses the content of one page (1-indexed) into its operation
// list. Skipped operators are reported as warnings.
func (e *Extractor) Operations(page int) ([]contentstream.Operation, []Warning, error) {
	if err := e.ensureDoc(); err != nil {
		return nil, e.warnings, err
	}
	defer e.Close()

	ops, opErrs, err := e.doc.Operations(page - 1)
	if err != nil {
		return nil, e.warnings, err
	}
	for _, opErr := range opErrs {
		e.warnings = append(e.warnings, Warning{Page: page, Message: opErr.Error()})
	}
	return ops, e.warnings, nil
}

// PageCount returns the number of pages in the document.
func (e *Extractor) PageCount() (int, error) {
	if err := e.ensureDoc(); err != nil {
		return 0, err
	}
	defer e.Close()
	return e.doc.PageCount()
}

// Metadata returns the document information entries.
func (e *Extractor) Metadata() (*Metadata, error) {
	if err := e.ensureDoc(); err != nil {
		return nil, err
	}
	defer e.Close()
	return e.doc.Metadata()
}

// AuthResult reports the outcome of password authentication. Plaintext
// documents report owner access.
func (e *Extractor) AuthResult() (crypt.AuthResult, error) {
	if err := e.ensureDoc(); err != nil {
		return crypt.AuthDenied, err
	}
	defer e.Close()
	return e.doc.AuthResult(), nil
}

// Document loads and returns the underlying reader.Document for lower-level
// access. The caller becomes responsible for closing the Extractor.
func (e *Extractor) Document() (*reader.Document, error) {
	if err := e.ensureDoc(); err != nil {
		return nil, err
	}
	return e.doc, nil
}

// pageIndices maps the configured 1-indexed selection to 0-indexed pages,
// defaulting to all pages.
func (e *Extractor) pageIndices() ([]int, error) {
	count, err := e.doc.PageCount()
	if err != nil {
		return nil, err
	}
	if len(e.options.pages) == 0 {
		indices := make([]int, count)
		for i := range indices {
			indices[i] = i
		}
		return indices, nil
	}

	indices := make([]int, 0, len(e.options.pages))
	for _, p := range e.options.pages {
		if p < 1 || p > count {
			return nil, fmt.Errorf("page %d out of range [1, %d]", p, count)
		}
		indices = append(indices, p-1)
	}
	return indices, nil
}
