package reader

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/tsawler/vellum/core"
	"github.com/tsawler/vellum/crypt"
)

// pdfBuilder assembles a syntactically valid file in memory, tracking object
// offsets so the cross-reference table comes out correct.
type pdfBuilder struct {
	buf     bytes.Buffer
	offsets map[int]int
}

func newPDFBuilder() *pdfBuilder {
	b := &pdfBuilder{offsets: make(map[int]int)}
	b.buf.WriteString("%PDF-1.7\n")
	return b
}

func (b *pdfBuilder) addObject(num int, body string) {
	b.offsets[num] = b.buf.Len()
	fmt.Fprintf(&b.buf, "%d 0 obj\n%s\nendobj\n", num, body)
}

func (b *pdfBuilder) addStream(num int, dict, data string) {
	b.offsets[num] = b.buf.Len()
	fmt.Fprintf(&b.buf, "%d 0 obj\n%s\nstream\n%s\nendstream\nendobj\n", num, dict, data)
}

// finish writes a classic xref table and trailer. extra is spliced into the
// trailer dictionary.
func (b *pdfBuilder) finish(extra string) []byte {
	maxNum := 0
	for num := range b.offsets {
		if num > maxNum {
			maxNum = num
		}
	}

	xrefStart := b.buf.Len()
	fmt.Fprintf(&b.buf, "xref\n0 %d\n", maxNum+1)
	b.buf.WriteString("0000000000 65535 f \n")
	for num := 1; num <= maxNum; num++ {
		if off, ok := b.offsets[num]; ok {
			fmt.Fprintf(&b.buf, "%010d 00000 n \n", off)
		} else {
			b.buf.WriteString("0000000000 65535 f \n")
		}
	}
	fmt.Fprintf(&b.buf, "trailer\n<< /Size %d /Root 1 0 R %s>>\nstartxref\n%d\n%%%%EOF\n", maxNum+1, extra, xrefStart)
	return b.buf.Bytes()
}

// simplePDF is a one-page document with the content "BT /F1 12 Tf ET".
func simplePDF() []byte {
	b := newPDFBuilder()
	b.addObject(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.addObject(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	b.addObject(3, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R >>")
	b.addStream(4, "<< /Length 15 >>", "BT /F1 12 Tf ET")
	return b.finish("")
}

func mustOpen(t *testing.T, data []byte, opts Options) *Document {
	t.Helper()
	doc, err := NewDocument(bytes.NewReader(data), opts)
	if err != nil {
		t.Fatalf("NewDocument error: %v", err)
	}
	return doc
}

func TestDocumentBasics(t *testing.T) {
	doc := mustOpen(t, simplePDF(), Options{})

	if doc.Version() != "1.7" {
		t.Errorf("Version() = %q, want \"1.7\"", doc.Version())
	}
	if doc.IsEncrypted() {
		t.Error("IsEncrypted() = true for a plaintext file")
	}
	count, err := doc.PageCount()
	if err != nil {
		t.Fatalf("PageCount() error: %v", err)
	}
	if count != 1 {
		t.Errorf("PageCount() = %d, want 1", count)
	}

	content, err := doc.PageContent(0)
	if err != nil {
		t.Fatalf("PageContent(0) error: %v", err)
	}
	if string(content) != "BT /F1 12 Tf ET" {
		t.Errorf("PageContent(0) = %q", content)
	}
}

func TestDocumentHeaderJunkTolerated(t *testing.T) {
	junk := append([]byte("garbage bytes before the file\n"), simplePDF()...)
	// Object offsets are now shifted, so only header parsing plus recovery
	// can load this.
	doc := mustOpen(t, junk, Options{})
	if doc.Version() != "1.7" {
		t.Errorf("Version() = %q, want \"1.7\"", doc.Version())
	}
}

func TestDocumentMissingObjectIsNull(t *testing.T) {
	doc := mustOpen(t, simplePDF(), Options{})
	obj, err := doc.ResolveReference(core.IndirectRef{Number: 99})
	if err != nil {
		t.Fatalf("ResolveReference error: %v", err)
	}
	if _, ok := obj.(core.Null); !ok {
		t.Errorf("absent object resolved to %T, want core.Null", obj)
	}
}

func TestDocumentGenerationMismatchIsNull(t *testing.T) {
	doc := mustOpen(t, simplePDF(), Options{})
	obj, err := doc.ResolveReference(core.IndirectRef{Number: 1, Generation: 5})
	if err != nil {
		t.Fatalf("ResolveReference error: %v", err)
	}
	if _, ok := obj.(core.Null); !ok {
		t.Errorf("stale generation resolved to %T, want core.Null", obj)
	}
}

func TestDocumentIncrementalUpdateShadows(t *testing.T) {
	base := simplePDF()
	baseXref := bytes.Index(base, []byte("xref"))

	// Append a replacement content stream for object 4 and a new section
	// whose /Prev points at the original table.
	var buf bytes.Buffer
	buf.Write(base)
	newObjOffset := buf.Len()
	buf.WriteString("4 0 obj\n<< /Length 21 >>\nstream\nBT (updated) Tj ET xx\nendstream\nendobj\n")
	newXref := buf.Len()
	fmt.Fprintf(&buf, "xref\n4 1\n%010d 00000 n \n", newObjOffset)
	fmt.Fprintf(&buf, "trailer\n<< /Size 5 /Root 1 0 R /Prev %d >>\nstartxref\n%d\n%%%%EOF\n", baseXref, newXref)

	doc := mustOpen(t, buf.Bytes(), Options{})
	content, err := doc.PageContent(0)
	if err != nil {
		t.Fatalf("PageContent(0) error: %v", err)
	}
	if !strings.Contains(string(content), "updated") {
		t.Errorf("PageContent(0) = %q, want the shadowing body", content)
	}
}

func TestDocumentXrefStreamAndObjectStream(t *testing.T) {
	// Objects 1-3 live compressed inside object stream 5; object 4 is the
	// content stream; object 6 is the xref stream.
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.5\n")

	contentOffset := buf.Len()
	buf.WriteString("4 0 obj\n<< /Length 15 >>\nstream\nBT /F1 12 Tf ET\nendstream\nendobj\n")

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R >>",
	}
	var body bytes.Buffer
	var header bytes.Buffer
	for i, obj := range objects {
		fmt.Fprintf(&header, "%d %d ", i+1, body.Len())
		body.WriteString(obj)
		body.WriteByte(' ')
	}
	plain := append(header.Bytes(), body.Bytes()...)

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	zw.Write(plain)
	zw.Close()

	objStmOffset := buf.Len()
	fmt.Fprintf(&buf, "5 0 obj\n<< /Type /ObjStm /N 3 /First %d /Length %d /Filter /FlateDecode >>\nstream\n",
		header.Len(), compressed.Len())
	buf.Write(compressed.Bytes())
	buf.WriteString("\nendstream\nendobj\n")

	xrefOffset := buf.Len()
	row := func(kind, f2, f3 int) []byte {
		return []byte{byte(kind), byte(f2 >> 8), byte(f2), byte(f3 >> 8), byte(f3)}
	}
	var rows bytes.Buffer
	rows.Write(row(0, 0, 0xFFFF))           // 0: free
	rows.Write(row(2, 5, 0))                // 1: in stream 5, index 0
	rows.Write(row(2, 5, 1))                // 2
	rows.Write(row(2, 5, 2))                // 3
	rows.Write(row(1, contentOffset, 0))    // 4
	rows.Write(row(1, objStmOffset, 0))     // 5
	rows.Write(row(1, xrefOffset, 0))       // 6
	fmt.Fprintf(&buf, "6 0 obj\n<< /Type /XRef /Size 7 /W [1 2 2] /Root 1 0 R /Length %d >>\nstream\n", rows.Len())
	buf.Write(rows.Bytes())
	buf.WriteString("\nendstream\nendobj\n")
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", xrefOffset)

	doc := mustOpen(t, buf.Bytes(), Options{DisableRecovery: true})
	count, err := doc.PageCount()
	if err != nil {
		t.Fatalf("PageCount() error: %v", err)
	}
	if count != 1 {
		t.Errorf("PageCount() = %d, want 1", count)
	}
	content, err := doc.PageContent(0)
	if err != nil {
		t.Fatalf("PageContent(0) error: %v", err)
	}
	if string(content) != "BT /F1 12 Tf ET" {
		t.Errorf("PageContent(0) = %q", content)
	}
}

func TestDocumentRecoversFromBrokenStartxref(t *testing.T) {
	data := simplePDF()
	// Point startxref into the void.
	broken := bytes.Replace(data, []byte("startxref\n"), []byte("startxref\n999999\n%junk "), 1)

	doc := mustOpen(t, broken, Options{})
	if !doc.Recovered() {
		t.Fatal("Recovered() = false, want recovery to have run")
	}
	count, err := doc.PageCount()
	if err != nil {
		t.Fatalf("PageCount() after recovery error: %v", err)
	}
	if count != 1 {
		t.Errorf("PageCount() = %d, want 1", count)
	}
	if len(doc.Warnings()) == 0 {
		t.Error("Warnings() empty after recovery")
	}
}

func TestDocumentRecoveryDisabled(t *testing.T) {
	data := simplePDF()
	broken := bytes.Replace(data, []byte("startxref"), []byte("sturtxref"), 1)

	_, err := NewDocument(bytes.NewReader(broken), Options{DisableRecovery: true})
	var corrupt *core.CorruptError
	if !errors.As(err, &corrupt) {
		t.Fatalf("got %v, want *core.CorruptError", err)
	}
}

func TestDocumentNoTrailerFindsCatalogByScan(t *testing.T) {
	b := newPDFBuilder()
	b.addObject(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.addObject(2, "<< /Type /Pages /Kids [] /Count 0 >>")
	// No xref, no trailer, no startxref at all.
	data := append(b.buf.Bytes(), []byte("%%EOF\n")...)

	doc := mustOpen(t, data, Options{})
	if !doc.Recovered() {
		t.Fatal("Recovered() = false")
	}
	count, err := doc.PageCount()
	if err != nil {
		t.Fatalf("PageCount() error: %v", err)
	}
	if count != 0 {
		t.Errorf("PageCount() = %d, want 0", count)
	}
}

func TestMetadata(t *testing.T) {
	b := newPDFBuilder()
	b.addObject(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.addObject(2, "<< /Type /Pages /Kids [] /Count 0 >>")
	b.addObject(5, "<< /Title (Quarterly Report) /Author (Ada) /CreationDate (D:20240115093000+01'00') /Dept (Finance) >>")
	data := b.finish("/Info 5 0 R ")

	doc := mustOpen(t, data, Options{})
	meta, err := doc.Metadata()
	if err != nil {
		t.Fatalf("Metadata() error: %v", err)
	}
	if meta.Title != "Quarterly Report" {
		t.Errorf("Title = %q", meta.Title)
	}
	if meta.Author != "Ada" {
		t.Errorf("Author = %q", meta.Author)
	}
	if meta.CreationDate.IsZero() {
		t.Error("CreationDate is zero")
	}
	if got := meta.CreationDate.UTC().Format("2006-01-02 15:04"); got != "2024-01-15 08:30" {
		t.Errorf("CreationDate = %s, want 2024-01-15 08:30 UTC", got)
	}
	if meta.Custom["Dept"] != "Finance" {
		t.Errorf("Custom[Dept] = %q", meta.Custom["Dept"])
	}
}

func TestMetadataAbsentInfo(t *testing.T) {
	doc := mustOpen(t, simplePDF(), Options{})
	meta, err := doc.Metadata()
	if err != nil {
		t.Fatalf("Metadata() error: %v", err)
	}
	if meta.Title != "" || len(meta.Custom) != 0 {
		t.Errorf("Metadata() = %+v, want empty", meta)
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		want    string // UTC, "2006-01-02 15:04:05"
		wantErr bool
	}{
		{"D:20240115093000", "2024-01-15 09:30:00", false},
		{"D:20240115093000Z", "2024-01-15 09:30:00", false},
		{"D:20240115093000+01'00'", "2024-01-15 08:30:00", false},
		{"D:20240115093000-05'30'", "2024-01-15 15:00:00", false},
		{"D:2024", "2024-01-01 00:00:00", false},
		{"20240115", "2024-01-15 00:00:00", false}, // missing D: prefix
		{"D:20", "", true},
		{"D:20249901", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDate(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseDate(%q) = %v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDate(%q) error: %v", tt.in, err)
			}
			if s := got.UTC().Format("2006-01-02 15:04:05"); s != tt.want {
				t.Errorf("ParseDate(%q) = %s, want %s", tt.in, s, tt.want)
			}
		})
	}
}

func TestDecodeTextString(t *testing.T) {
	utf16 := string([]byte{0xFE, 0xFF, 0x00, 'H', 0x00, 'i', 0x20, 0xAC})
	if got := DecodeTextString(utf16); got != "Hi€" {
		t.Errorf("DecodeTextString(utf16) = %q, want %q", got, "Hi€")
	}
	if got := DecodeTextString("plain"); got != "plain" {
		t.Errorf("DecodeTextString(plain) = %q", got)
	}
}

func TestDocumentJunkHeaderWarns(t *testing.T) {
	junk := append([]byte("x\n"), simplePDF()...)
	doc := mustOpen(t, junk, Options{})
	warnings := doc.Warnings()
	if len(warnings) == 0 {
		t.Fatal("expected at least the junk-header warning")
	}
	if !strings.Contains(warnings[0], "junk") {
		t.Errorf("warnings[0] = %q, want the header warning first", warnings[0])
	}
}

func TestDocumentContentLockedWithoutPassword(t *testing.T) {
	doc := &Document{handler: nil}
	if doc.contentLocked() {
		t.Error("plaintext document reported locked")
	}
	if doc.AuthResult() != crypt.AuthOwner {
		t.Errorf("AuthResult() = %v, want owner for plaintext", doc.AuthResult())
	}
}

func TestDocumentPageRefusedUntilAuthenticated(t *testing.T) {
	encDict := core.Dict{
		"Filter": core.Name("Standard"),
		"V":      core.Int(1),
		"R":      core.Int(2),
		"O":      core.String(strings.Repeat("x", 32)),
		"U":      core.String(strings.Repeat("y", 32)),
		"P":      core.Int(-1),
	}
	handler, err := crypt.NewStandardHandler(encDict, nil)
	if err != nil {
		t.Fatalf("NewStandardHandler error: %v", err)
	}
	if handler.Authenticated() {
		t.Fatal("handler authenticated before any password attempt")
	}

	doc := &Document{handler: handler, authResult: crypt.AuthDenied}
	if _, err := doc.Page(0); !errors.Is(err, crypt.ErrNotAuthenticated) {
		t.Errorf("Page(0) = %v, want ErrNotAuthenticated", err)
	}
	if _, err := doc.Pages(); !errors.Is(err, crypt.ErrNotAuthenticated) {
		t.Errorf("Pages() = %v, want ErrNotAuthenticated", err)
	}
}

func TestDocumentResolveUsesCache(t *testing.T) {
	doc := mustOpen(t, simplePDF(), Options{})
	ref := core.IndirectRef{Number: 3}

	first, err := doc.ResolveReference(ref)
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	second, err := doc.ResolveReference(ref)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	d1, ok1 := first.(core.Dict)
	d2, ok2 := second.(core.Dict)
	if !ok1 || !ok2 {
		t.Fatalf("resolved to %T / %T, want dicts", first, second)
	}
	if reflect.ValueOf(d1).Pointer() != reflect.ValueOf(d2).Pointer() {
		t.Error("second resolve did not hit the cache")
	}
	if !reflect.DeepEqual(d1, d2) {
		t.Error("cached object differs from first resolution")
	}
}

func TestDocumentBadStreamIsolatedPerPage(t *testing.T) {
	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	zw.Write([]byte("BT (broken) Tj ET"))
	zw.Close()
	truncated := compressed.Bytes()[:compressed.Len()/2]

	b := newPDFBuilder()
	b.addObject(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.addObject(2, "<< /Type /Pages /Kids [3 0 R 5 0 R] /Count 2 >>")
	b.addObject(3, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R >>")
	b.addStream(4, fmt.Sprintf("<< /Length %d /Filter /FlateDecode >>", len(truncated)), string(truncated))
	b.addObject(5, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 6 0 R >>")
	b.addStream(6, "<< /Length 15 >>", "BT (ok) Tj   ET")

	doc := mustOpen(t, b.finish(""), Options{})

	_, err := doc.PageContent(0)
	var fe *core.FilterError
	if !errors.As(err, &fe) {
		t.Fatalf("PageContent(0) = %v, want *core.FilterError", err)
	}
	if fe.Filter != "FlateDecode" {
		t.Errorf("failed filter = %q", fe.Filter)
	}

	content, err := doc.PageContent(1)
	if err != nil {
		t.Fatalf("PageContent(1) error: %v", err)
	}
	if string(content) != "BT (ok) Tj   ET" {
		t.Errorf("PageContent(1) = %q", content)
	}
}

func TestOpenAndClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.pdf")
	if err := os.WriteFile(path, simplePDF(), 0o644); err != nil {
		t.Fatal(err)
	}

	doc, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	count, err := doc.PageCount()
	if err != nil || count != 1 {
		t.Fatalf("PageCount() = %d, %v", count, err)
	}
	if err := doc.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := doc.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestOpenMissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "absent.pdf"), Options{}); err == nil {
		t.Fatal("Open succeeded on a missing file")
	}
}

func TestDocumentObjectStreamContainmentCycle(t *testing.T) {
	// Object 1 is recorded as compressed inside object stream 1, so loading
	// the stream resolves object 1 again. The load must fail, not recurse.
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.5\n")

	xrefOffset := buf.Len()
	row := func(kind, f2, f3 int) []byte {
		return []byte{byte(kind), byte(f2 >> 8), byte(f2), byte(f3 >> 8), byte(f3)}
	}
	var rows bytes.Buffer
	rows.Write(row(0, 0, 0xFFFF))     // 0: free
	rows.Write(row(2, 1, 0))          // 1: claims to live inside stream 1
	rows.Write(row(1, xrefOffset, 0)) // 2: the xref stream
	fmt.Fprintf(&buf, "2 0 obj\n<< /Type /XRef /Size 3 /W [1 2 2] /Root 1 0 R /Length %d >>\nstream\n", rows.Len())
	buf.Write(rows.Bytes())
	buf.WriteString("\nendstream\nendobj\n")
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", xrefOffset)

	doc := mustOpen(t, buf.Bytes(), Options{DisableRecovery: true})
	_, err := doc.Catalog()
	var corrupt *core.CorruptError
	if !errors.As(err, &corrupt) {
		t.Fatalf("Catalog() error = %v, want *core.CorruptError", err)
	}
}
