package core

import (
	"bytes"
	"fmt"
)

// ObjectStream is a PDF object stream (/Type /ObjStm, PDF 1.5+): multiple
// non-stream objects packed into one compressed stream. Entries in an xref
// stream of kind KindCompressed point into one of these.
type ObjectStream struct {
	stream  *Stream
	n       int // number of objects
	first   int // byte offset of the first object in the decoded data
	objects map[int]Object // parsed objects by index
	offsets []objStreamOffset
	decoded []byte
}

// objStreamOffset pairs an object number with its offset in the decoded data,
// relative to First.
type objStreamOffset struct {
	ObjNum int
	Offset int
}

// NewObjectStream validates the /ObjStm dictionary and wraps the stream.
// Decoding and header parsing are deferred until first access.
func NewObjectStream(stream *Stream) (*ObjectStream, error) {
	if stream == nil {
		return nil, &ParseError{Pos: -1, Msg: "nil object stream"}
	}
	if typeName, _ := stream.Dict.GetName("Type"); typeName != "ObjStm" {
		return nil, &ParseError{Pos: -1, Msg: "stream /Type is not /ObjStm"}
	}

	n, ok := stream.Dict.GetInt("N")
	if !ok || n < 0 {
		return nil, &ParseError{Pos: -1, Msg: "object stream has missing or bad /N"}
	}
	first, ok := stream.Dict.GetInt("First")
	if !ok || first < 0 {
		return nil, &ParseError{Pos: -1, Msg: "object stream has missing or bad /First"}
	}

	return &ObjectStream{
		stream:  stream,
		n:       int(n),
		first:   int(first),
		objects: make(map[int]Object),
	}, nil
}

// N returns the number of objects stored in the stream.
func (os *ObjectStream) N() int { return os.n }

// decode decompresses the stream and parses the header pairs. Lazy.
func (os *ObjectStream) decode() error {
	if os.decoded != nil {
		return nil
	}

	decoded, err := os.stream.Decode()
	if err != nil {
		return fmt.Errorf("failed to decode object stream: %w", err)
	}
	if os.first > len(decoded) {
		return &ParseError{Pos: -1, Msg: fmt.Sprintf("/First %d exceeds decoded length %d", os.first, len(decoded))}
	}
	os.decoded = decoded

	// Header: N pairs of "objNum offset" as plain integers.
	parser := NewParser(bytes.NewReader(decoded[:os.first]))
	os.offsets = make([]objStreamOffset, 0, os.n)
	for i := 0; i < os.n; i++ {
		numObj, err := parser.ParseObject()
		if err != nil {
			return &ParseError{Pos: -1, Msg: fmt.Sprintf("bad header pair %d", i), Err: err}
		}
		num, ok := numObj.(Int)
		if !ok {
			return &ParseError{Pos: -1, Msg: fmt.Sprintf("header object number %d is %T", i, numObj)}
		}

		offObj, err := parser.ParseObject()
		if err != nil {
			return &ParseError{Pos: -1, Msg: fmt.Sprintf("bad header pair %d", i), Err: err}
		}
		off, ok := offObj.(Int)
		if !ok {
			return &ParseError{Pos: -1, Msg: fmt.Sprintf("header offset %d is %T", i, offObj)}
		}

		os.offsets = append(os.offsets, objStreamOffset{ObjNum: int(num), Offset: int(off)})
	}
	return nil
}

// GetObjectByIndex returns the object at the given header index (0-based)
// together with its object number.
func (os *ObjectStream) GetObjectByIndex(index int) (Object, int, error) {
	if err := os.decode(); err != nil {
		return nil, 0, err
	}
	if index < 0 || index >= len(os.offsets) {
		return nil, 0, fmt.Errorf("object stream index %d out of range [0, %d)", index, len(os.offsets))
	}

	if obj, ok := os.objects[index]; ok {
		return obj, os.offsets[index].ObjNum, nil
	}

	start := os.first + os.offsets[index].Offset
	end := len(os.decoded)
	if index+1 < len(os.offsets) {
		end = os.first + os.offsets[index+1].Offset
	}
	if start >= len(os.decoded) {
		return nil, 0, &ParseError{Pos: -1, Msg: fmt.Sprintf("object offset %d exceeds decoded length %d", start, len(os.decoded))}
	}
	if end > len(os.decoded) {
		end = len(os.decoded)
	}

	parser := NewParser(bytes.NewReader(os.decoded[start:end]))
	obj, err := parser.ParseObject()
	if err != nil {
		return nil, 0, &ParseError{Pos: -1, Msg: fmt.Sprintf("bad object at index %d", index), Err: err}
	}

	os.objects[index] = obj
	return obj, os.offsets[index].ObjNum, nil
}

// GetObjectByNumber returns the object with the given object number.
func (os *ObjectStream) GetObjectByNumber(objNum int) (Object, error) {
	if err := os.decode(); err != nil {
		return nil, err
	}
	for i, entry := range os.offsets {
		if entry.ObjNum == objNum {
			obj, _, err := os.GetObjectByIndex(i)
			return obj, err
		}
	}
	return nil, fmt.Errorf("object %d not found in object stream", objNum)
}

// ObjectNumbers returns the object numbers stored in this stream, in header order.
func (os *ObjectStream) ObjectNumbers() ([]int, error) {
	if err := os.decode(); err != nil {
		return nil, err
	}
	nums := make([]int, len(os.offsets))
	for i, entry := range os.offsets {
		nums[i] = entry.ObjNum
	}
	return nums, nil
}
