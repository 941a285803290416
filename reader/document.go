package reader

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/tsawler/vellum/contentstream"
	"github.com/tsawler/vellum/core"
	"github.com/tsawler/vellum/crypt"
	"github.com/tsawler/vellum/pages"
)

// headerWindow is how far into the file the %PDF- header may sit. Some
// producers prepend junk; viewers tolerate up to 1KB of it.
const headerWindow = 1024

// Options configures document loading.
type Options struct {
	// Password is tried against the document's security handler. The empty
	// password is always tried, matching the behavior users expect from
	// files encrypted with owner restrictions only.
	Password string

	// MetadataRequiresAuth withholds document information entries from
	// unauthenticated callers. By default metadata stays readable even when
	// page content is locked.
	MetadataRequiresAuth bool

	// DisableRecovery turns off the linear-scan fallback used when the
	// cross-reference machinery is damaged.
	DisableRecovery bool
}

type cacheKey struct {
	num int
	gen int
}

// Document is a parsed PDF file.
type Document struct {
	r    io.ReadSeeker
	size int64
	opts Options

	version string
	xref    *core.XRefTable

	// fileMu serializes seeks and reads on the shared source.
	fileMu sync.Mutex

	// mu guards the object caches.
	mu         sync.RWMutex
	cache      map[cacheKey]core.Object
	objStreams map[int]*core.ObjectStream

	// loadingStreams holds object stream numbers currently being loaded, so
	// a containment cycle (a stream recorded as stored inside itself) is
	// caught instead of recursing forever.
	loadingStreams map[int]bool

	handler    *crypt.StandardHandler
	authResult crypt.AuthResult
	encryptRef *core.IndirectRef // the /Encrypt object itself is never decrypted

	catalog  *pages.Catalog
	pageTree *pages.PageTree

	recovered bool
	warnings  []string

	closer io.Closer // set by Open; nil for NewDocument
}

// Open loads the document at filename. Close releases the underlying file.
func Open(filename string, opts Options) (*Document, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	d, err := NewDocument(f, opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	d.closer = f
	return d, nil
}

// Close releases the file held by Open. Documents built with NewDocument own
// nothing and Close is a no-op.
func (d *Document) Close() error {
	if d.closer == nil {
		return nil
	}
	err := d.closer.Close()
	d.closer = nil
	return err
}

// NewDocument loads a document from r.
func NewDocument(r io.ReadSeeker, opts Options) (*Document, error) {
	d := &Document{
		r:              r,
		opts:           opts,
		cache:          make(map[cacheKey]core.Object),
		objStreams:     make(map[int]*core.ObjectStream),
		loadingStreams: make(map[int]bool),
	}

	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to measure source: %w", err)
	}
	d.size = size

	if err := d.parseHeader(); err != nil {
		return nil, err
	}
	if err := d.loadXref(); err != nil {
		return nil, err
	}
	if err := d.setupEncryption(); err != nil {
		return nil, err
	}
	return d, nil
}

// parseHeader locates "%PDF-" in the leading window and records the version.
func (d *Document) parseHeader() error {
	if _, err := d.r.Seek(0, io.SeekStart); err != nil {
		return &core.CorruptError{Msg: "seek to start failed", Err: err}
	}

	window := int64(headerWindow)
	if d.size < window {
		window = d.size
	}
	buf := make([]byte, window)
	n, err := io.ReadFull(d.r, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return &core.CorruptError{Msg: "failed to read header", Err: err}
	}
	buf = buf[:n]

	idx := bytes.Index(buf, []byte("%PDF-"))
	if idx == -1 {
		return &core.CorruptError{Msg: "no %PDF- header found"}
	}
	if idx > 0 {
		d.warn(fmt.Sprintf("header preceded by %d bytes of junk", idx))
	}

	rest := buf[idx+len("%PDF-"):]
	end := 0
	for end < len(rest) && (rest[end] == '.' || rest[end] >= '0' && rest[end] <= '9') {
		end++
	}
	d.version = string(rest[:end])
	if d.version == "" {
		d.warn("header carries no version number")
	}
	return nil
}

// loadXref loads the cross-reference chain, falling back to a recovery scan
// once if the chain is unusable.
func (d *Document) loadXref() error {
	xref, err := d.loadXrefChain()
	if err == nil {
		d.xref = xref
		return nil
	}
	if d.opts.DisableRecovery {
		return &core.CorruptError{Msg: "cross-reference data unusable", Err: err}
	}

	d.warn(fmt.Sprintf("cross-reference load failed (%v), rebuilding by scan", err))
	recovered, recErr := d.recoverXref()
	if recErr != nil {
		// The original failure is the interesting one.
		return &core.CorruptError{Msg: "cross-reference data unusable and recovery failed", Err: err}
	}
	d.xref = recovered
	d.recovered = true
	return nil
}

func (d *Document) loadXrefChain() (*core.XRefTable, error) {
	parser, err := core.NewXRefParser(d.r)
	if err != nil {
		return nil, err
	}
	start, err := parser.FindStartXref()
	if err != nil {
		return nil, err
	}
	return parser.LoadAll(start)
}

// setupEncryption builds the security handler from the trailer /Encrypt entry
// and runs the initial password attempt.
func (d *Document) setupEncryption() error {
	encObj := d.xref.Trailer.Get("Encrypt")
	if encObj == nil {
		return nil
	}

	if ref, ok := encObj.(core.IndirectRef); ok {
		d.encryptRef = &ref
		resolved, err := d.ResolveReference(ref)
		if err != nil {
			return &core.CorruptError{Msg: "failed to resolve /Encrypt", Err: err}
		}
		encObj = resolved
	}
	encDict, ok := encObj.(core.Dict)
	if !ok {
		return &core.CorruptError{Msg: fmt.Sprintf("/Encrypt is %T, not a dictionary", encObj)}
	}

	var docID []byte
	if idArr, ok := d.xref.Trailer.GetArray("ID"); ok && len(idArr) > 0 {
		if first, ok := idArr[0].(core.String); ok {
			docID = []byte(first)
		}
	}

	handler, err := crypt.NewStandardHandler(encDict, docID)
	if err != nil {
		return err
	}
	d.handler = handler

	d.authResult = handler.Authenticate(d.opts.Password)
	if d.authResult == crypt.AuthDenied && d.opts.Password != "" {
		// Fall back to the empty password; restriction-only files accept it.
		d.authResult = handler.Authenticate("")
	}
	return nil
}

// Version returns the header version string, e.g. "1.7".
func (d *Document) Version() string { return d.version }

// Trailer returns the effective trailer dictionary.
func (d *Document) Trailer() core.Dict { return d.xref.Trailer }

// Recovered reports whether the cross-reference table was rebuilt by scan.
func (d *Document) Recovered() bool { return d.recovered }

// Warnings returns the non-fatal problems noticed while loading.
func (d *Document) Warnings() []string { return d.warnings }

func (d *Document) warn(msg string) {
	d.warnings = append(d.warnings, msg)
}

// IsEncrypted reports whether the document carries a security handler.
func (d *Document) IsEncrypted() bool { return d.handler != nil }

// AuthResult returns the outcome of the most recent password attempt.
// Unencrypted documents report AuthOwner; there is nothing to deny.
func (d *Document) AuthResult() crypt.AuthResult {
	if d.handler == nil {
		return crypt.AuthOwner
	}
	return d.authResult
}

// Authenticate tries another password against the security handler.
func (d *Document) Authenticate(password string) crypt.AuthResult {
	if d.handler == nil {
		return crypt.AuthOwner
	}
	result := d.handler.Authenticate(password)
	if result != crypt.AuthDenied {
		d.authResult = result
		// Objects cached before authentication hold ciphertext.
		d.mu.Lock()
		d.cache = make(map[cacheKey]core.Object)
		d.objStreams = make(map[int]*core.ObjectStream)
		d.mu.Unlock()
		d.catalog = nil
		d.pageTree = nil
	}
	return result
}

// Encryption returns the security handler, or nil for plaintext documents.
func (d *Document) Encryption() *crypt.StandardHandler { return d.handler }

// contentLocked reports whether content access must be refused.
func (d *Document) contentLocked() bool {
	return d.handler != nil && !d.handler.Authenticated()
}

// Resolve returns obj itself unless it is an indirect reference, in which
// case the referenced object is returned.
func (d *Document) Resolve(obj core.Object) (core.Object, error) {
	if ref, ok := obj.(core.IndirectRef); ok {
		return d.ResolveReference(ref)
	}
	return obj, nil
}

// ResolveReference loads the object an indirect reference points at. Free,
// absent and generation-mismatched entries resolve to null, as viewers treat
// them. Results are cached by (number, generation).
func (d *Document) ResolveReference(ref core.IndirectRef) (core.Object, error) {
	key := cacheKey{num: ref.Number, gen: ref.Generation}

	d.mu.RLock()
	obj, ok := d.cache[key]
	d.mu.RUnlock()
	if ok {
		return obj, nil
	}

	entry, ok := d.xref.Get(ref.Number)
	if !ok || entry.Kind == core.KindFree {
		return core.Null{}, nil
	}

	var err error
	switch entry.Kind {
	case core.KindInUse:
		if entry.Generation != ref.Generation {
			return core.Null{}, nil
		}
		obj, err = d.loadObjectAt(entry.Offset, ref)
	case core.KindCompressed:
		if ref.Generation != 0 {
			return core.Null{}, nil
		}
		obj, err = d.loadCompressedObject(entry, ref.Number)
	default:
		return core.Null{}, nil
	}
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.cache[key] = obj
	d.mu.Unlock()
	return obj, nil
}

// loadObjectAt parses the indirect object at a byte offset and decrypts it.
func (d *Document) loadObjectAt(offset int64, ref core.IndirectRef) (core.Object, error) {
	if offset < 0 || offset >= d.size {
		return nil, &core.XrefError{Offset: offset, Msg: fmt.Sprintf("object %d offset out of bounds", ref.Number)}
	}

	d.fileMu.Lock()
	indObj, err := d.parseAt(offset)
	d.fileMu.Unlock()
	if err != nil {
		return nil, &core.XrefError{Offset: offset, Msg: fmt.Sprintf("failed to parse object %d", ref.Number), Err: err}
	}
	if indObj.Ref.Number != ref.Number {
		return nil, &core.XrefError{
			Offset: offset,
			Msg:    fmt.Sprintf("offset holds object %d, expected %d", indObj.Ref.Number, ref.Number),
		}
	}
	return d.decryptObject(indObj.Object, ref.Number, ref.Generation)
}

// parseAt parses one indirect object at offset. Caller holds fileMu.
func (d *Document) parseAt(offset int64) (*core.IndirectObject, error) {
	if _, err := d.r.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}
	parser := core.NewParser(d.r)
	parser.SetReferenceResolver(lengthResolver{d: d})
	return parser.ParseIndirectObject()
}

// lengthResolver resolves indirect /Length values during stream parsing. It
// bypasses the document's own cache path to avoid re-entering fileMu.
type lengthResolver struct {
	d *Document
}

func (lr lengthResolver) ResolveReference(ref core.IndirectRef) (core.Object, error) {
	d := lr.d

	d.mu.RLock()
	obj, ok := d.cache[cacheKey{num: ref.Number, gen: ref.Generation}]
	d.mu.RUnlock()
	if ok {
		return obj, nil
	}

	entry, ok := d.xref.Get(ref.Number)
	if !ok || entry.Kind != core.KindInUse || entry.Generation != ref.Generation {
		return core.Null{}, nil
	}

	// Save and restore the outer parse position.
	pos, err := d.r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	defer d.r.Seek(pos, io.SeekStart)

	if _, err := d.r.Seek(entry.Offset, io.SeekStart); err != nil {
		return nil, err
	}
	indObj, err := core.NewParser(d.r).ParseIndirectObject()
	if err != nil {
		return nil, err
	}
	return indObj.Object, nil
}

// loadCompressedObject pulls an object out of its containing object stream.
func (d *Document) loadCompressedObject(entry *core.XRefEntry, objNum int) (core.Object, error) {
	objStm, err := d.objectStream(entry.StreamNum)
	if err != nil {
		return nil, err
	}

	// The recorded index is authoritative; fall back to a number search when
	// it disagrees with the header.
	obj, gotNum, err := objStm.GetObjectByIndex(entry.StreamIndex)
	if err == nil && gotNum == objNum {
		return obj, nil
	}
	obj, err = objStm.GetObjectByNumber(objNum)
	if err != nil {
		return nil, &core.XrefError{
			Offset: -1,
			Msg:    fmt.Sprintf("object %d not found in object stream %d", objNum, entry.StreamNum),
			Err:    err,
		}
	}
	return obj, nil
}

// objectStream returns the parsed object stream with the given object number,
// loading and caching it on first use. The container stream is decrypted as a
// whole; objects inside it are stored in the clear.
func (d *Document) objectStream(streamNum int) (*core.ObjectStream, error) {
	d.mu.RLock()
	objStm, ok := d.objStreams[streamNum]
	d.mu.RUnlock()
	if ok {
		return objStm, nil
	}

	d.mu.Lock()
	if d.loadingStreams[streamNum] {
		d.mu.Unlock()
		return nil, &core.CorruptError{Msg: fmt.Sprintf("object stream containment cycle at stream %d", streamNum)}
	}
	d.loadingStreams[streamNum] = true
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.loadingStreams, streamNum)
		d.mu.Unlock()
	}()

	container, err := d.ResolveReference(core.IndirectRef{Number: streamNum})
	if err != nil {
		return nil, err
	}
	stream, ok := container.(*core.Stream)
	if !ok {
		return nil, &core.XrefError{Offset: -1, Msg: fmt.Sprintf("object %d is %T, not an object stream", streamNum, container)}
	}
	objStm, err = core.NewObjectStream(stream)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.objStreams[streamNum] = objStm
	d.mu.Unlock()
	return objStm, nil
}

// decryptObject decrypts the strings and stream payload of a freshly loaded
// object. Cross-reference streams are never encrypted, nor is the /Encrypt
// dictionary itself; metadata streams follow the EncryptMetadata flag.
func (d *Document) decryptObject(obj core.Object, objNum, genNum int) (core.Object, error) {
	if d.handler == nil {
		return obj, nil
	}
	if d.encryptRef != nil && d.encryptRef.Number == objNum {
		return obj, nil
	}
	if !d.handler.Authenticated() {
		// Leave the object encrypted; content access is gated elsewhere and
		// structural navigation does not need string values.
		return obj, nil
	}
	return d.decryptValue(obj, objNum, genNum)
}

func (d *Document) decryptValue(obj core.Object, objNum, genNum int) (core.Object, error) {
	switch v := obj.(type) {
	case core.String:
		plain, err := d.handler.DecryptString([]byte(v), objNum, genNum)
		if err != nil {
			return nil, err
		}
		return core.String(plain), nil

	case core.Array:
		out := make(core.Array, len(v))
		for i, elem := range v {
			dec, err := d.decryptValue(elem, objNum, genNum)
			if err != nil {
				return nil, err
			}
			out[i] = dec
		}
		return out, nil

	case core.Dict:
		out := make(core.Dict, len(v))
		for key, val := range v {
			dec, err := d.decryptValue(val, objNum, genNum)
			if err != nil {
				return nil, err
			}
			out[key] = dec
		}
		return out, nil

	case *core.Stream:
		if typeName, _ := v.Dict.GetName("Type"); typeName == "XRef" {
			return v, nil
		}
		if typeName, _ := v.Dict.GetName("Type"); typeName == "Metadata" && !d.handler.EncryptMetadata() {
			return v, nil
		}
		dictObj, err := d.decryptValue(v.Dict, objNum, genNum)
		if err != nil {
			return nil, err
		}
		plain, err := d.handler.DecryptStream(v.Data, objNum, genNum)
		if err != nil {
			return nil, err
		}
		return &core.Stream{Dict: dictObj.(core.Dict), Data: plain}, nil

	default:
		return obj, nil
	}
}

// Catalog returns the document catalog.
func (d *Document) Catalog() (*pages.Catalog, error) {
	if d.catalog != nil {
		return d.catalog, nil
	}

	rootObj := d.xref.Trailer.Get("Root")
	if rootObj == nil {
		return nil, &core.CorruptError{Msg: "trailer has no /Root"}
	}
	resolved, err := d.Resolve(rootObj)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve /Root: %w", err)
	}
	dict, ok := resolved.(core.Dict)
	if !ok {
		return nil, &core.CorruptError{Msg: fmt.Sprintf("/Root is %T, not a dictionary", resolved)}
	}

	d.catalog = pages.NewCatalog(dict, d)
	return d.catalog, nil
}

// tree returns the lazily built page tree.
func (d *Document) tree() (*pages.PageTree, error) {
	if d.pageTree != nil {
		return d.pageTree, nil
	}
	catalog, err := d.Catalog()
	if err != nil {
		return nil, err
	}
	root, err := catalog.Pages()
	if err != nil {
		return nil, err
	}
	d.pageTree = pages.NewPageTree(root, d)
	return d.pageTree, nil
}

// PageCount returns the number of pages.
func (d *Document) PageCount() (int, error) {
	tree, err := d.tree()
	if err != nil {
		return 0, err
	}
	return tree.Count()
}

// Page returns the page at index (0-based). Encrypted documents require a
// successful Authenticate first.
func (d *Document) Page(index int) (*pages.Page, error) {
	if d.contentLocked() {
		return nil, crypt.ErrNotAuthenticated
	}
	tree, err := d.tree()
	if err != nil {
		return nil, err
	}
	return tree.Page(index)
}

// Pages returns every page in order. Encrypted documents require a
// successful Authenticate first.
func (d *Document) Pages() ([]*pages.Page, error) {
	if d.contentLocked() {
		return nil, crypt.ErrNotAuthenticated
	}
	tree, err := d.tree()
	if err != nil {
		return nil, err
	}
	return tree.Pages()
}

// PageContent returns the decoded content of the page at index, multiple
// content streams concatenated with a newline between them. An empty page
// yields an empty slice.
func (d *Document) PageContent(index int) ([]byte, error) {
	page, err := d.Page(index)
	if err != nil {
		return nil, err
	}
	streams, err := page.Contents()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	for i, stream := range streams {
		data, err := stream.Decode()
		if err != nil {
			return nil, fmt.Errorf("failed to decode content stream %d of page %d: %w", i, index, err)
		}
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.Write(data)
	}
	return buf.Bytes(), nil
}

// Operations parses the content of the page at index into its operation
// list. Skipped operators come back as the second return value; the page
// remains usable when some operators were malformed.
func (d *Document) Operations(index int) ([]contentstream.Operation, []*contentstream.OperatorError, error) {
	content, err := d.PageContent(index)
	if err != nil {
		return nil, nil, err
	}
	parser := contentstream.NewParser(content)
	ops, err := parser.Parse()
	if err != nil {
		return nil, nil, err
	}
	return ops, parser.Errors(), nil
}
