package filters

import (
	"bytes"
	"encoding/ascii85"
	"fmt"
	"io"
)

// ASCIIHexDecode decodes ASCII hexadecimal data. Pairs of hex digits become
// bytes, whitespace is ignored, and '>' ends the data. An odd number of
// digits implies a trailing zero digit.
func ASCIIHexDecode(data []byte) ([]byte, error) {
	var out bytes.Buffer
	var pending byte
	havePending := false

	for i := 0; i < len(data); i++ {
		c := data[i]
		switch {
		case isWhitespace(c):
			continue
		case c == '>':
			if havePending {
				out.WriteByte(pending << 4)
			}
			return out.Bytes(), nil
		default:
			v, err := hexDigit(c)
			if err != nil {
				return nil, err
			}
			if havePending {
				out.WriteByte(pending<<4 | v)
				havePending = false
			} else {
				pending = v
				havePending = true
			}
		}
	}

	// Missing '>' is tolerated at end of input.
	if havePending {
		out.WriteByte(pending << 4)
	}
	return out.Bytes(), nil
}

// ASCII85Decode decodes ASCII base-85 data. The optional <~ prefix and the
// ~> end-of-data marker are stripped, as is all whitespace.
func ASCII85Decode(data []byte) ([]byte, error) {
	data = bytes.TrimSpace(data)
	data = bytes.TrimPrefix(data, []byte("<~"))
	if idx := bytes.Index(data, []byte("~>")); idx >= 0 {
		data = data[:idx]
	}

	// The stdlib decoder rejects embedded whitespace only in some
	// positions; strip it all up front.
	compact := make([]byte, 0, len(data))
	for _, c := range data {
		if !isWhitespace(c) {
			compact = append(compact, c)
		}
	}

	decoder := ascii85.NewDecoder(bytes.NewReader(compact))
	out, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("ascii85 decode failed: %w", err)
	}
	return out, nil
}

func hexDigit(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	}
	return 0, fmt.Errorf("invalid hex digit %q", c)
}

func isWhitespace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == 0
}
