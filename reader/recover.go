package reader

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"

	"github.com/tsawler/vellum/core"
)

// objHeaderRe matches an indirect object header, "N G obj". Recovery scans
// the raw file for these rather than trusting any cross-reference data.
var objHeaderRe = regexp.MustCompile(`(\d{1,10})[ \t]+(\d{1,5})[ \t]+obj\b`)

// recoverXref rebuilds a cross-reference table by scanning the whole file for
// object headers. The last definition of each object number wins, mirroring
// how incremental updates shadow older bodies. The newest trailer dictionary
// is reused when one survives; otherwise the catalog is found by inspection.
func (d *Document) recoverXref() (*core.XRefTable, error) {
	if _, err := d.r.Seek(0, io.SeekStart); err != nil {
		return nil, &core.CorruptError{Msg: "seek to start failed", Err: err}
	}
	data, err := io.ReadAll(d.r)
	if err != nil {
		return nil, &core.CorruptError{Msg: "failed to read file for recovery", Err: err}
	}

	table := core.NewXRefTable()
	for _, m := range objHeaderRe.FindAllSubmatchIndex(data, -1) {
		// A header must sit at the start of the file or after whitespace,
		// otherwise it is a digit run inside stream data.
		if m[0] > 0 && !isPDFWhitespace(data[m[0]-1]) {
			continue
		}
		num, err := strconv.Atoi(string(data[m[2]:m[3]]))
		if err != nil || num <= 0 {
			continue
		}
		gen, err := strconv.Atoi(string(data[m[4]:m[5]]))
		if err != nil {
			continue
		}
		table.Set(num, &core.XRefEntry{
			Kind:       core.KindInUse,
			Offset:     int64(m[0]),
			Generation: gen,
		})
	}
	if table.Size() == 0 {
		return nil, &core.CorruptError{Msg: "no indirect objects found by scan"}
	}

	if idx := bytes.LastIndex(data, []byte("trailer")); idx != -1 {
		parser := core.NewParser(bytes.NewReader(data[idx+len("trailer"):]))
		if obj, err := parser.ParseObject(); err == nil {
			if dict, ok := obj.(core.Dict); ok {
				table.Trailer = dict
			}
		}
	}

	if !table.Trailer.Has("Root") {
		rootRef, err := findCatalog(data, table)
		if err != nil {
			return nil, err
		}
		table.Trailer.Set("Root", rootRef)
	}
	return table, nil
}

// findCatalog parses each recovered object until one turns out to be the
// document catalog. Object numbers are tried in ascending order so repeated
// runs pick the same catalog.
func findCatalog(data []byte, table *core.XRefTable) (core.IndirectRef, error) {
	nums := make([]int, 0, table.Size())
	for num := range table.Entries {
		nums = append(nums, num)
	}
	sort.Ints(nums)

	for _, num := range nums {
		entry, _ := table.Get(num)
		if entry.Offset >= int64(len(data)) {
			continue
		}
		parser := core.NewParser(bytes.NewReader(data[entry.Offset:]))
		indObj, err := parser.ParseIndirectObject()
		if err != nil {
			continue
		}
		dict, ok := indObj.Object.(core.Dict)
		if !ok {
			continue
		}
		if typeName, _ := dict.GetName("Type"); typeName == "Catalog" {
			return indObj.Ref, nil
		}
	}
	return core.IndirectRef{}, &core.CorruptError{Msg: fmt.Sprintf("no catalog among %d recovered objects", table.Size())}
}

func isPDFWhitespace(b byte) bool {
	switch b {
	case 0x00, 0x09, 0x0A, 0x0C, 0x0D, 0x20:
		return true
	}
	return false
}
