package core

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Tunables for xref resolution. Real-world producers disagree on the fine
// details, so the thresholds live here rather than inline.
const (
	// StartxrefWindow is how many bytes before EOF are searched for the
	// "startxref" keyword and the trailing "%%EOF" marker.
	StartxrefWindow = 2048

	// MaxPrevChain bounds the /Prev chain length so a cyclic or absurdly
	// long chain of incremental updates cannot loop the loader.
	MaxPrevChain = 1024
)

// XRefEntryKind distinguishes the three cross-reference entry forms.
type XRefEntryKind int

const (
	KindFree       XRefEntryKind = iota // object number is unused
	KindInUse                           // object stored at a byte offset
	KindCompressed                      // object stored inside an object stream
)

// XRefEntry locates one object. For KindInUse, Offset and Generation are
// meaningful. For KindCompressed, StreamNum names the containing object
// stream and StreamIndex the position within it (generation is implicitly 0).
type XRefEntry struct {
	Kind        XRefEntryKind
	Offset      int64
	Generation  int
	StreamNum   int
	StreamIndex int
}

// XRefTable maps object numbers to their effective entries, together with the
// trailer dictionary of the section(s) it came from.
type XRefTable struct {
	Entries map[int]*XRefEntry
	Trailer Dict
}

// NewXRefTable returns an empty table.
func NewXRefTable() *XRefTable {
	return &XRefTable{Entries: make(map[int]*XRefEntry), Trailer: make(Dict)}
}

// Get returns the entry for objNum.
func (x *XRefTable) Get(objNum int) (*XRefEntry, bool) {
	entry, ok := x.Entries[objNum]
	return entry, ok
}

// Set stores an entry for objNum.
func (x *XRefTable) Set(objNum int, entry *XRefEntry) {
	x.Entries[objNum] = entry
}

// Size returns the number of entries.
func (x *XRefTable) Size() int { return len(x.Entries) }

// XRefParser reads cross-reference data (classic tables and xref streams)
// from a seekable source.
type XRefParser struct {
	reader io.ReadSeeker
	size   int64
}

// NewXRefParser creates a parser over r. The source size is captured up front
// so offsets can be validated before seeking.
func NewXRefParser(r io.ReadSeeker) (*XRefParser, error) {
	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to measure source: %w", err)
	}
	return &XRefParser{reader: r, size: size}, nil
}

// FindStartXref locates the startxref offset by scanning the tail of the
// source. The file must also carry a trailing %%EOF marker; its absence means
// the tail is damaged and the value cannot be trusted.
func (x *XRefParser) FindStartXref() (int64, error) {
	readSize := int64(StartxrefWindow)
	if x.size < readSize {
		readSize = x.size
	}

	if _, err := x.reader.Seek(x.size-readSize, io.SeekStart); err != nil {
		return 0, &XrefError{Offset: x.size - readSize, Msg: "seek failed", Err: err}
	}

	buf := make([]byte, readSize)
	n, err := io.ReadFull(x.reader, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return 0, &XrefError{Offset: -1, Msg: "failed to read file tail", Err: err}
	}
	tail := string(buf[:n])

	if !strings.Contains(tail, "%%EOF") {
		return 0, &XrefError{Offset: -1, Msg: "missing %%EOF marker"}
	}

	idx := strings.LastIndex(tail, "startxref")
	if idx == -1 {
		return 0, &XrefError{Offset: -1, Msg: "startxref not found"}
	}

	rest := strings.TrimSpace(tail[idx+len("startxref"):])
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return 0, &XrefError{Offset: -1, Msg: "startxref has no offset"}
	}
	offset, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, &XrefError{Offset: -1, Msg: "invalid startxref offset", Err: err}
	}
	return offset, nil
}

// ParseSection parses the cross-reference section at offset, which may be a
// classic table or an xref stream.
func (x *XRefParser) ParseSection(offset int64) (*XRefTable, error) {
	if offset < 0 || offset >= x.size {
		return nil, &XrefError{Offset: offset, Msg: "offset out of bounds"}
	}
	if _, err := x.reader.Seek(offset, io.SeekStart); err != nil {
		return nil, &XrefError{Offset: offset, Msg: "seek failed", Err: err}
	}

	// A classic section starts with the "xref" keyword; an xref stream
	// starts with an indirect object header ("N G obj").
	probe := make([]byte, 4)
	n, _ := x.reader.Read(probe)
	if _, err := x.reader.Seek(offset, io.SeekStart); err != nil {
		return nil, &XrefError{Offset: offset, Msg: "seek failed", Err: err}
	}
	if n >= 4 && string(probe[:4]) == "xref" {
		return x.parseClassicSection(offset)
	}
	return x.parseStreamSection(offset)
}

// parseClassicSection parses "xref\n<subsections>\ntrailer\n<<...>>".
func (x *XRefParser) parseClassicSection(offset int64) (*XRefTable, error) {
	lexer := NewLexer(x.reader)

	tok, err := lexer.NextToken()
	if err != nil {
		return nil, &XrefError{Offset: offset, Msg: "failed to read xref keyword", Err: err}
	}
	if tok.Type != TokenKeyword || string(tok.Value) != "xref" {
		return nil, &XrefError{Offset: offset, Msg: "expected 'xref' keyword"}
	}

	table := NewXRefTable()
	for {
		tok, err := lexer.NextToken()
		if err != nil {
			return nil, &XrefError{Offset: offset, Msg: "failed to read subsection header", Err: err}
		}

		if tok.Type == TokenKeyword && string(tok.Value) == "trailer" {
			break
		}
		if tok.Type != TokenInteger {
			return nil, &XrefError{Offset: offset, Msg: "expected subsection start or 'trailer'"}
		}
		first, err := strconv.Atoi(string(tok.Value))
		if err != nil {
			return nil, &XrefError{Offset: offset, Msg: "bad subsection start", Err: err}
		}

		tok, err = lexer.NextToken()
		if err != nil || tok.Type != TokenInteger {
			return nil, &XrefError{Offset: offset, Msg: "expected subsection count"}
		}
		count, err := strconv.Atoi(string(tok.Value))
		if err != nil || count < 0 {
			return nil, &XrefError{Offset: offset, Msg: "bad subsection count"}
		}

		for i := 0; i < count; i++ {
			entry, err := x.parseClassicEntry(lexer)
			if err != nil {
				return nil, &XrefError{Offset: offset, Msg: fmt.Sprintf("bad entry %d", first+i), Err: err}
			}
			table.Set(first+i, entry)
		}
	}

	// The trailer dictionary follows the "trailer" keyword. It must be read
	// through the same lexer to preserve its read-ahead buffer.
	trailerObj, err := parseDictAfterTrailer(lexer)
	if err != nil {
		return nil, &XrefError{Offset: offset, Msg: "failed to parse trailer dictionary", Err: err}
	}
	table.Trailer = trailerObj
	return table, nil
}

// parseDictAfterTrailer parses the trailer dictionary using the same lexer
// that consumed the table, preserving its read-ahead buffer.
func parseDictAfterTrailer(lexer *Lexer) (Dict, error) {
	p := &Parser{lexer: lexer}
	p.nextToken()
	p.nextToken()
	obj, err := p.ParseObject()
	if err != nil {
		return nil, err
	}
	dict, ok := obj.(Dict)
	if !ok {
		return nil, fmt.Errorf("trailer is %T, not a dictionary", obj)
	}
	return dict, nil
}

// parseClassicEntry reads one 20-byte entry: "nnnnnnnnnn ggggg n|f".
func (x *XRefParser) parseClassicEntry(lexer *Lexer) (*XRefEntry, error) {
	offTok, err := lexer.NextToken()
	if err != nil || offTok.Type != TokenInteger {
		return nil, fmt.Errorf("expected entry offset")
	}
	offset, err := strconv.ParseInt(string(offTok.Value), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad entry offset: %w", err)
	}

	genTok, err := lexer.NextToken()
	if err != nil || genTok.Type != TokenInteger {
		return nil, fmt.Errorf("expected entry generation")
	}
	gen, err := strconv.Atoi(string(genTok.Value))
	if err != nil {
		return nil, fmt.Errorf("bad entry generation: %w", err)
	}

	flagTok, err := lexer.NextToken()
	if err != nil || flagTok.Type != TokenKeyword {
		return nil, fmt.Errorf("expected entry flag")
	}
	switch string(flagTok.Value) {
	case "n":
		return &XRefEntry{Kind: KindInUse, Offset: offset, Generation: gen}, nil
	case "f":
		return &XRefEntry{Kind: KindFree, Offset: offset, Generation: gen}, nil
	}
	return nil, fmt.Errorf("invalid entry flag %q", flagTok.Value)
}

// parseStreamSection parses an xref stream (PDF 1.5+): an indirect stream
// object with /Type /XRef, /W field widths and optional /Index subsections.
func (x *XRefParser) parseStreamSection(offset int64) (*XRefTable, error) {
	parser := NewParser(x.reader)
	indObj, err := parser.ParseIndirectObject()
	if err != nil {
		return nil, &XrefError{Offset: offset, Msg: "not an xref table or stream", Err: err}
	}
	stream, ok := indObj.Object.(*Stream)
	if !ok {
		return nil, &XrefError{Offset: offset, Msg: fmt.Sprintf("object at offset is %T, not a stream", indObj.Object)}
	}
	if typeName, _ := stream.Dict.GetName("Type"); typeName != "XRef" {
		return nil, &XrefError{Offset: offset, Msg: "stream /Type is not /XRef"}
	}

	data, err := stream.Decode()
	if err != nil {
		return nil, &XrefError{Offset: offset, Msg: "failed to decode xref stream", Err: err}
	}

	wArr, ok := stream.Dict.GetArray("W")
	if !ok || len(wArr) < 3 {
		return nil, &XrefError{Offset: offset, Msg: "xref stream missing /W"}
	}
	widths := make([]int, 3)
	for i := 0; i < 3; i++ {
		w, ok := wArr.GetInt(i)
		if !ok || w < 0 {
			return nil, &XrefError{Offset: offset, Msg: "bad /W entry"}
		}
		widths[i] = int(w)
	}

	size, ok := stream.Dict.GetInt("Size")
	if !ok {
		return nil, &XrefError{Offset: offset, Msg: "xref stream missing /Size"}
	}

	// /Index defaults to one subsection covering [0, Size).
	index := []int{0, int(size)}
	if idxArr, ok := stream.Dict.GetArray("Index"); ok {
		if len(idxArr)%2 != 0 {
			return nil, &XrefError{Offset: offset, Msg: "odd /Index length"}
		}
		index = index[:0]
		for i := 0; i < len(idxArr); i++ {
			v, ok := idxArr.GetInt(i)
			if !ok {
				return nil, &XrefError{Offset: offset, Msg: "non-integer /Index value"}
			}
			index = append(index, int(v))
		}
	}

	rowWidth := widths[0] + widths[1] + widths[2]
	if rowWidth == 0 {
		return nil, &XrefError{Offset: offset, Msg: "zero-width xref stream rows"}
	}

	table := NewXRefTable()
	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		first, count := index[i], index[i+1]
		for j := 0; j < count; j++ {
			if pos+rowWidth > len(data) {
				return nil, &XrefError{Offset: offset, Msg: "xref stream data truncated"}
			}
			f1 := decodeField(data[pos:pos+widths[0]], 1) // type defaults to 1
			f2 := decodeField(data[pos+widths[0]:pos+widths[0]+widths[1]], 0)
			f3 := decodeField(data[pos+widths[0]+widths[1]:pos+rowWidth], 0)
			pos += rowWidth

			objNum := first + j
			switch f1 {
			case 0:
				table.Set(objNum, &XRefEntry{Kind: KindFree, Offset: f2, Generation: int(f3)})
			case 1:
				table.Set(objNum, &XRefEntry{Kind: KindInUse, Offset: f2, Generation: int(f3)})
			case 2:
				table.Set(objNum, &XRefEntry{Kind: KindCompressed, StreamNum: int(f2), StreamIndex: int(f3)})
			default:
				// Unknown entry types must be skipped, not rejected.
			}
		}
	}

	table.Trailer = stream.Dict
	return table, nil
}

// decodeField reads a big-endian integer of len(b) bytes. A zero-width field
// takes its default value.
func decodeField(b []byte, def int64) int64 {
	if len(b) == 0 {
		return def
	}
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

// LoadAll walks the /Prev chain starting at the given offset and returns the
// effective table: sections are overlaid earliest-first so later incremental
// updates shadow earlier entries. Hybrid files' /XRefStm streams are applied
// on top of their classic companions. A cyclic or overlong chain is an
// *XrefError.
func (x *XRefParser) LoadAll(startOffset int64) (*XRefTable, error) {
	type section struct {
		table *XRefTable
		// hybrid stream entries override the classic table they accompany
		hybrid *XRefTable
	}

	var sections []section
	visited := make(map[int64]bool)
	offset := startOffset

	for offset >= 0 {
		if visited[offset] {
			return nil, &XrefError{Offset: offset, Msg: "cyclic /Prev chain"}
		}
		if len(sections) >= MaxPrevChain {
			return nil, &XrefError{Offset: offset, Msg: "incremental update chain too long"}
		}
		visited[offset] = true

		table, err := x.ParseSection(offset)
		if err != nil {
			return nil, err
		}

		sec := section{table: table}
		if stm, ok := table.Trailer.GetInt("XRefStm"); ok {
			hybrid, err := x.ParseSection(int64(stm))
			if err == nil {
				sec.hybrid = hybrid
			}
			// A broken XRefStm is ignored; the classic entries still stand.
		}
		sections = append(sections, sec)

		prev, ok := table.Trailer.GetInt("Prev")
		if !ok {
			break
		}
		offset = int64(prev)
	}

	// Overlay earliest first. sections[0] is the newest, so walk backwards.
	merged := NewXRefTable()
	for i := len(sections) - 1; i >= 0; i-- {
		for objNum, entry := range sections[i].table.Entries {
			merged.Set(objNum, entry)
		}
		if sections[i].hybrid != nil {
			for objNum, entry := range sections[i].hybrid.Entries {
				merged.Set(objNum, entry)
			}
		}
	}
	// The newest trailer names the catalog.
	merged.Trailer = sections[0].table.Trailer
	return merged, nil
}
