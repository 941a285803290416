package core

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"testing"
)

func TestFindStartXref(t *testing.T) {
	data := []byte("%PDF-1.4\njunk\nstartxref\n1234\n%%EOF\n")
	p, err := NewXRefParser(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	offset, err := p.FindStartXref()
	if err != nil {
		t.Fatalf("FindStartXref: %v", err)
	}
	if offset != 1234 {
		t.Errorf("offset = %d, want 1234", offset)
	}
}

func TestFindStartXrefRequiresEOFMarker(t *testing.T) {
	data := []byte("%PDF-1.4\nstartxref\n1234\n")
	p, _ := NewXRefParser(bytes.NewReader(data))
	if _, err := p.FindStartXref(); err == nil {
		t.Fatal("startxref without an EOF marker accepted")
	}
}

func TestParseClassicSection(t *testing.T) {
	section := "xref\n" +
		"0 3\n" +
		"0000000000 65535 f \n" +
		"0000000042 00000 n \n" +
		"0000000123 00002 n \n" +
		"trailer\n<< /Size 3 /Root 1 0 R >>\n"
	p, _ := NewXRefParser(bytes.NewReader([]byte(section)))
	table, err := p.ParseSection(0)
	if err != nil {
		t.Fatalf("ParseSection: %v", err)
	}

	if entry, _ := table.Get(0); entry.Kind != KindFree {
		t.Errorf("entry 0 kind = %v, want free", entry.Kind)
	}
	entry, ok := table.Get(1)
	if !ok || entry.Kind != KindInUse || entry.Offset != 42 {
		t.Errorf("entry 1 = %+v", entry)
	}
	if entry, _ := table.Get(2); entry.Generation != 2 {
		t.Errorf("entry 2 generation = %d, want 2", entry.Generation)
	}
	if size, _ := table.Trailer.GetInt("Size"); size != 3 {
		t.Errorf("trailer /Size = %d", size)
	}
}

func TestParseClassicSectionMultipleSubsections(t *testing.T) {
	section := "xref\n" +
		"0 1\n0000000000 65535 f \n" +
		"10 2\n0000000100 00000 n \n0000000200 00000 n \n" +
		"trailer\n<< /Size 12 >>\n"
	p, _ := NewXRefParser(bytes.NewReader([]byte(section)))
	table, err := p.ParseSection(0)
	if err != nil {
		t.Fatalf("ParseSection: %v", err)
	}
	if entry, ok := table.Get(11); !ok || entry.Offset != 200 {
		t.Errorf("entry 11 = %+v", entry)
	}
	if _, ok := table.Get(5); ok {
		t.Error("entry 5 exists, want only 0, 10, 11")
	}
}

func TestParseStreamSection(t *testing.T) {
	// Rows for W [1 2 1]: type, offset/stream, gen/index.
	rows := []byte{
		0, 0x00, 0x00, 0xFF, // 0: free
		1, 0x00, 0x2A, 0x00, // 1: in use at 42
		2, 0x00, 0x05, 0x03, // 2: in stream 5, index 3
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "9 0 obj\n<< /Type /XRef /Size 3 /W [1 2 1] /Length %d >>\nstream\n", len(rows))
	buf.Write(rows)
	buf.WriteString("\nendstream\nendobj\n")

	p, _ := NewXRefParser(bytes.NewReader(buf.Bytes()))
	table, err := p.ParseSection(0)
	if err != nil {
		t.Fatalf("ParseSection: %v", err)
	}

	if entry, _ := table.Get(1); entry.Kind != KindInUse || entry.Offset != 42 {
		t.Errorf("entry 1 = %+v", entry)
	}
	entry, _ := table.Get(2)
	if entry.Kind != KindCompressed || entry.StreamNum != 5 || entry.StreamIndex != 3 {
		t.Errorf("entry 2 = %+v", entry)
	}
}

func TestParseStreamSectionZeroWidthTypeDefaultsToInUse(t *testing.T) {
	// W [0 2 1]: the type field is absent and defaults to 1.
	rows := []byte{0x00, 0x10, 0x00}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "9 0 obj\n<< /Type /XRef /Size 1 /W [0 2 1] /Index [7 1] /Length %d >>\nstream\n", len(rows))
	buf.Write(rows)
	buf.WriteString("\nendstream\nendobj\n")

	p, _ := NewXRefParser(bytes.NewReader(buf.Bytes()))
	table, err := p.ParseSection(0)
	if err != nil {
		t.Fatalf("ParseSection: %v", err)
	}
	entry, ok := table.Get(7)
	if !ok || entry.Kind != KindInUse || entry.Offset != 16 {
		t.Errorf("entry 7 = %+v", entry)
	}
}

// buildChain writes two classic sections where the newer one (parsed first)
// shadows object 1 of the older one.
func buildChain(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	oldOffset := buf.Len()
	buf.WriteString("xref\n0 2\n0000000000 65535 f \n0000000111 00000 n \ntrailer\n<< /Size 2 >>\n")

	newOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n1 1\n0000000222 00000 n \ntrailer\n<< /Size 2 /Prev %d >>\n", oldOffset)
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", newOffset)
	return buf.Bytes()
}

func TestLoadAllShadowsOlderEntries(t *testing.T) {
	data := buildChain(t)
	p, _ := NewXRefParser(bytes.NewReader(data))
	start, err := p.FindStartXref()
	if err != nil {
		t.Fatal(err)
	}
	table, err := p.LoadAll(start)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	entry, _ := table.Get(1)
	if entry.Offset != 222 {
		t.Errorf("entry 1 offset = %d, want the newer 222", entry.Offset)
	}
	// The newest trailer wins.
	if !table.Trailer.Has("Prev") {
		t.Error("merged trailer is not the newest one")
	}
}

func TestLoadAllDetectsCyclicPrev(t *testing.T) {
	var buf bytes.Buffer
	offset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 1\n0000000000 65535 f \ntrailer\n<< /Size 1 /Prev %d >>\n", offset)

	p, _ := NewXRefParser(bytes.NewReader(buf.Bytes()))
	_, err := p.LoadAll(0)
	if _, ok := err.(*XrefError); !ok {
		t.Fatalf("got %v, want *XrefError", err)
	}
}

func TestLoadAllHybridXRefStm(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	// Companion xref stream marks object 1 as compressed.
	stmOffset := buf.Len()
	rows := []byte{
		0, 0, 0xFF,
		2, 9, 0, // object 1: in object stream 9
	}
	fmt.Fprintf(&buf, "8 0 obj\n<< /Type /XRef /Size 2 /W [1 1 1] /Length %d >>\nstream\n", len(rows))
	buf.Write(rows)
	buf.WriteString("\nendstream\nendobj\n")

	// Classic section says object 1 is at offset 111; the stream overrides.
	classicOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 2\n0000000000 65535 f \n0000000111 00000 n \ntrailer\n<< /Size 2 /XRefStm %d >>\n", stmOffset)

	p, _ := NewXRefParser(bytes.NewReader(buf.Bytes()))
	table, err := p.LoadAll(int64(classicOffset))
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	entry, _ := table.Get(1)
	if entry.Kind != KindCompressed || entry.StreamNum != 9 {
		t.Errorf("entry 1 = %+v, want the stream's compressed entry", entry)
	}
}

func TestObjectStream(t *testing.T) {
	payload := "11 0 12 6 (one) 42"
	first := len("11 0 12 6 ")

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	zw.Write([]byte(payload))
	zw.Close()

	stream := &Stream{
		Dict: Dict{
			"Type":   Name("ObjStm"),
			"N":      Int(2),
			"First":  Int(first),
			"Filter": Name("FlateDecode"),
		},
		Data: compressed.Bytes(),
	}
	objStm, err := NewObjectStream(stream)
	if err != nil {
		t.Fatalf("NewObjectStream: %v", err)
	}

	obj, num, err := objStm.GetObjectByIndex(0)
	if err != nil {
		t.Fatalf("GetObjectByIndex(0): %v", err)
	}
	if num != 11 || obj != String("one") {
		t.Errorf("index 0 = obj %d %#v", num, obj)
	}

	obj, err = objStm.GetObjectByNumber(12)
	if err != nil {
		t.Fatalf("GetObjectByNumber(12): %v", err)
	}
	if obj != Int(42) {
		t.Errorf("object 12 = %#v, want 42", obj)
	}

	nums, err := objStm.ObjectNumbers()
	if err != nil {
		t.Fatal(err)
	}
	if len(nums) != 2 || nums[0] != 11 || nums[1] != 12 {
		t.Errorf("ObjectNumbers = %v", nums)
	}
}

func TestObjectStreamRejectsWrongType(t *testing.T) {
	stream := &Stream{Dict: Dict{"Type": Name("XRef"), "N": Int(0), "First": Int(0)}}
	if _, err := NewObjectStream(stream); err == nil {
		t.Fatal("non-ObjStm accepted")
	}
}

func TestObjectStreamMissingObjectNumber(t *testing.T) {
	stream := &Stream{
		Dict: Dict{"Type": Name("ObjStm"), "N": Int(1), "First": Int(4)},
		Data: []byte("7 0 13"),
	}
	objStm, err := NewObjectStream(stream)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := objStm.GetObjectByNumber(99); err == nil {
		t.Fatal("absent object number found")
	}
}
