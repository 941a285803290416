package filters

import (
	"bytes"
	"compress/zlib"
	"testing"

	"github.com/hhrutter/lzw"
)

func TestASCIIHexDecode(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain", "48656C6C6F>", "Hello", false},
		{"whitespace ignored", "48 65\n6C 6C\t6F>", "Hello", false},
		{"odd digit pads zero", "414>", "A@", false},
		{"missing EOD tolerated", "4142", "AB", false},
		{"data after EOD ignored", "41>42", "A", false},
		{"bad digit", "4G>", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ASCIIHexDecode([]byte(tt.in))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("decoded %q, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestASCII85Decode(t *testing.T) {
	// "easy" in ascii85 is "ARTY*".
	got, err := ASCII85Decode([]byte("ARTY*~>"))
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if string(got) != "easy" {
		t.Errorf("got %q, want easy", got)
	}
}

func TestASCII85DecodeStripsWrapper(t *testing.T) {
	got, err := ASCII85Decode([]byte("<~ARTY*~>"))
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if string(got) != "easy" {
		t.Errorf("got %q, want easy", got)
	}
}

func TestASCII85DecodeZShortcut(t *testing.T) {
	got, err := ASCII85Decode([]byte("z~>"))
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if !bytes.Equal(got, []byte{0, 0, 0, 0}) {
		t.Errorf("got %v, want four zero bytes", got)
	}
}

func TestRunLengthDecode(t *testing.T) {
	tests := []struct {
		name    string
		in      []byte
		want    []byte
		wantErr bool
	}{
		{"literal run", []byte{2, 'a', 'b', 'c', 128}, []byte("abc"), false},
		{"repeat run", []byte{254, 'x', 128}, []byte("xxx"), false},
		{"mixed", []byte{0, 'a', 255, 'b', 128}, []byte("abb"), false},
		{"missing EOD tolerated", []byte{1, 'h', 'i'}, []byte("hi"), false},
		{"truncated literal", []byte{5, 'a'}, nil, true},
		{"truncated repeat", []byte{200}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RunLengthDecode(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("decoded %q, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("error: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func deflate(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatal(err)
	}
	zw.Close()
	return buf.Bytes()
}

func TestFlateDecode(t *testing.T) {
	payload := []byte("hello flate world")
	got, err := FlateDecode(deflate(t, payload), nil)
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("got %q, want %q", got, payload)
	}
}

func TestFlateDecodeBadHeader(t *testing.T) {
	if _, err := FlateDecode([]byte("not zlib at all"), nil); err == nil {
		t.Fatal("garbage accepted")
	}
}

func TestFlateDecodePNGPredictor(t *testing.T) {
	// Two rows of 4 samples. Row 1 uses None, row 2 uses Up with +1 deltas,
	// row 3 uses Sub.
	raw := []byte{
		0, 1, 2, 3, 4,
		2, 1, 1, 1, 1,
		1, 5, 1, 1, 1,
	}
	params := Params{"Predictor": 12, "Columns": 4}
	got, err := FlateDecode(deflate(t, raw), params)
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	want := []byte{
		1, 2, 3, 4,
		2, 3, 4, 5,
		5, 6, 7, 8,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestFlateDecodeTIFFPredictor(t *testing.T) {
	raw := []byte{1, 1, 1, 2, 1, 1}
	params := Params{"Predictor": 2, "Columns": 3}
	got, err := FlateDecode(deflate(t, raw), params)
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	want := []byte{1, 2, 3, 2, 3, 4}
	if !bytes.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestFlateDecodePredictorRowMismatch(t *testing.T) {
	raw := []byte{0, 1, 2} // not a multiple of columns+1
	params := Params{"Predictor": 12, "Columns": 4}
	if _, err := FlateDecode(deflate(t, raw), params); err == nil {
		t.Fatal("short row accepted")
	}
}

func TestLZWDecodeRoundTrip(t *testing.T) {
	payload := []byte("repeated repeated repeated text compresses")

	for _, earlyChange := range []int{0, 1} {
		var buf bytes.Buffer
		zw := lzw.NewWriter(&buf, earlyChange == 1)
		if _, err := zw.Write(payload); err != nil {
			t.Fatal(err)
		}
		zw.Close()

		var params Params
		if earlyChange == 0 {
			params = Params{"EarlyChange": 0}
		}
		got, err := LZWDecode(buf.Bytes(), params)
		if err != nil {
			t.Fatalf("EarlyChange=%d error: %v", earlyChange, err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("EarlyChange=%d got %q, want %q", earlyChange, got, payload)
		}
	}
}

func TestParamHelpers(t *testing.T) {
	params := Params{"A": 7, "B": true, "F": 2.0}
	if got := getIntParam(params, "A", 1); got != 7 {
		t.Errorf("getIntParam(A) = %d", got)
	}
	if got := getIntParam(params, "Missing", 42); got != 42 {
		t.Errorf("getIntParam default = %d", got)
	}
	if got := getIntParam(params, "F", 1); got != 2 {
		t.Errorf("getIntParam(float) = %d", got)
	}
	if !getBoolParam(params, "B", false) {
		t.Error("getBoolParam(B) = false")
	}
	if getBoolParam(nil, "B", false) {
		t.Error("getBoolParam(nil) = true")
	}
}
