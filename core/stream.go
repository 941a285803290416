package core

import (
	"fmt"

	"github.com/tsawler/vellum/internal/filters"
)

// Decode applies the stream's /Filter chain, each filter consuming the
// previous filter's output, and caches the result. A failing filter yields a
// *FilterError naming it; the error is terminal for this stream only.
func (s *Stream) Decode() ([]byte, error) {
	if s.decoded != nil {
		return s.decoded, nil
	}

	filterObj := s.Dict.Get("Filter")
	if filterObj == nil {
		s.decoded = s.Data
		return s.decoded, nil
	}

	paramsObj := s.Dict.Get("DecodeParms")
	if paramsObj == nil {
		paramsObj = s.Dict.Get("DP") // abbreviated form
	}

	var chain Array
	switch v := filterObj.(type) {
	case Name:
		chain = Array{v}
	case Array:
		chain = v
	default:
		return nil, &ParseError{Pos: -1, Msg: fmt.Sprintf("invalid /Filter type %T", filterObj)}
	}

	data := s.Data
	for i, filter := range chain {
		filterName, ok := filter.(Name)
		if !ok {
			return nil, &ParseError{Pos: -1, Msg: fmt.Sprintf("filter %d is not a name: %T", i, filter)}
		}

		var params Dict
		if paramsArray, ok := paramsObj.(Array); ok {
			if i < len(paramsArray) {
				params = paramsToDict(paramsArray[i])
			}
		} else {
			params = paramsToDict(paramsObj)
		}

		decoded, err := decodeWithFilter(data, string(filterName), params)
		if err != nil {
			return nil, err
		}
		data = decoded
	}

	s.decoded = data
	return s.decoded, nil
}

// SetData replaces the raw stream bytes and drops any cached decode. The
// reader uses this after decrypting a stream's payload.
func (s *Stream) SetData(data []byte) {
	s.Data = data
	s.decoded = nil
}

// decodeWithFilter applies one decode filter. Both the full and abbreviated
// PDF filter names are accepted.
func decodeWithFilter(data []byte, filterName string, params Dict) ([]byte, error) {
	var (
		out []byte
		err error
	)
	switch filterName {
	case "FlateDecode", "Fl":
		out, err = filters.FlateDecode(data, dictToParams(params))
	case "LZWDecode", "LZW":
		out, err = filters.LZWDecode(data, dictToParams(params))
	case "ASCIIHexDecode", "AHx":
		out, err = filters.ASCIIHexDecode(data)
	case "ASCII85Decode", "A85":
		out, err = filters.ASCII85Decode(data)
	case "RunLengthDecode", "RL":
		out, err = filters.RunLengthDecode(data)
	case "CCITTFaxDecode", "CCF":
		out, err = filters.CCITTFaxDecode(data, dictToParams(params))
	case "DCTDecode", "DCT", "JPXDecode":
		// Compressed image payloads are passed through; image decoding is
		// not part of this engine.
		return data, nil
	default:
		return nil, &FilterError{Filter: filterName, Err: fmt.Errorf("unsupported filter")}
	}
	if err != nil {
		return nil, &FilterError{Filter: filterName, Err: err}
	}
	return out, nil
}

// paramsToDict normalizes a DecodeParms entry to a Dict (nil when absent or null).
func paramsToDict(obj Object) Dict {
	if dict, ok := obj.(Dict); ok {
		return dict
	}
	return nil
}

// dictToParams converts a Dict to filters.Params, translating PDF object
// variants to Go primitives.
func dictToParams(dict Dict) filters.Params {
	if dict == nil {
		return nil
	}
	params := make(filters.Params, len(dict))
	for k, v := range dict {
		switch obj := v.(type) {
		case Int:
			params[k] = int(obj)
		case Real:
			params[k] = float64(obj)
		case Bool:
			params[k] = bool(obj)
		case String:
			params[k] = string(obj)
		case Name:
			params[k] = string(obj)
		default:
			params[k] = v
		}
	}
	return params
}
