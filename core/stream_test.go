package core

import (
	"bytes"
	"compress/zlib"
	"encoding/hex"
	"errors"
	"testing"
)

func zlibCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatal(err)
	}
	zw.Close()
	return buf.Bytes()
}

func TestStreamDecodeNoFilter(t *testing.T) {
	s := &Stream{Dict: Dict{}, Data: []byte("raw bytes")}
	got, err := s.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(got) != "raw bytes" {
		t.Errorf("got %q", got)
	}
}

func TestStreamDecodeSingleFilter(t *testing.T) {
	s := &Stream{
		Dict: Dict{"Filter": Name("FlateDecode")},
		Data: zlibCompress(t, []byte("payload")),
	}
	got, err := s.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("got %q", got)
	}
}

func TestStreamDecodeFilterChain(t *testing.T) {
	// Flate output wrapped in ASCIIHex; decoding runs the chain in order.
	compressed := zlibCompress(t, []byte("chained"))
	hexed := hex.EncodeToString(compressed) + ">"

	s := &Stream{
		Dict: Dict{"Filter": Array{Name("ASCIIHexDecode"), Name("FlateDecode")}},
		Data: []byte(hexed),
	}
	got, err := s.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(got) != "chained" {
		t.Errorf("got %q", got)
	}
}

func TestStreamDecodeAbbreviatedName(t *testing.T) {
	s := &Stream{
		Dict: Dict{"Filter": Name("AHx")},
		Data: []byte("4869>"),
	}
	got, err := s.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(got) != "Hi" {
		t.Errorf("got %q", got)
	}
}

func TestStreamDecodeTruncatedFlate(t *testing.T) {
	compressed := zlibCompress(t, []byte("this will be cut off"))
	s := &Stream{
		Dict: Dict{"Filter": Name("FlateDecode")},
		Data: compressed[:len(compressed)/2],
	}
	_, err := s.Decode()
	var fe *FilterError
	if !errors.As(err, &fe) {
		t.Fatalf("got %v, want *FilterError", err)
	}
	if fe.Filter != "FlateDecode" {
		t.Errorf("Filter = %q", fe.Filter)
	}
}

func TestStreamDecodeUnsupportedFilter(t *testing.T) {
	s := &Stream{Dict: Dict{"Filter": Name("NoSuchFilter")}, Data: []byte("x")}
	_, err := s.Decode()
	var fe *FilterError
	if !errors.As(err, &fe) || fe.Filter != "NoSuchFilter" {
		t.Fatalf("got %v, want *FilterError naming the filter", err)
	}
}

func TestStreamDecodeImagePassthrough(t *testing.T) {
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0}
	s := &Stream{Dict: Dict{"Filter": Name("DCTDecode")}, Data: jpeg}
	got, err := s.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got, jpeg) {
		t.Errorf("got %v", got)
	}
}

func TestStreamDecodeCachesResult(t *testing.T) {
	s := &Stream{
		Dict: Dict{"Filter": Name("FlateDecode")},
		Data: zlibCompress(t, []byte("cached")),
	}
	first, err := s.Decode()
	if err != nil {
		t.Fatal(err)
	}
	// Mutating the raw bytes must not affect the cached decode.
	s.Data = nil
	second, err := s.Decode()
	if err != nil {
		t.Fatal(err)
	}
	if &first[0] != &second[0] {
		t.Error("second Decode did not return the cached slice")
	}
}

func TestStreamSetDataDropsCache(t *testing.T) {
	s := &Stream{Dict: Dict{}, Data: []byte("old")}
	if _, err := s.Decode(); err != nil {
		t.Fatal(err)
	}
	s.SetData([]byte("new"))
	got, err := s.Decode()
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "new" {
		t.Errorf("got %q", got)
	}
}
