package filters

import (
	"bytes"
	"fmt"
)

// RunLengthDecode decompresses run-length encoded data. Each run starts with
// a length byte n: n < 128 copies the next n+1 bytes literally, n > 128
// repeats the next byte 257-n times, and n == 128 marks end of data.
func RunLengthDecode(data []byte) ([]byte, error) {
	var out bytes.Buffer
	i := 0
	for i < len(data) {
		n := int(data[i])
		i++
		switch {
		case n == 128:
			return out.Bytes(), nil
		case n < 128:
			count := n + 1
			if i+count > len(data) {
				return nil, fmt.Errorf("literal run of %d bytes truncated at offset %d", count, i)
			}
			out.Write(data[i : i+count])
			i += count
		default:
			if i >= len(data) {
				return nil, fmt.Errorf("replicated run truncated at offset %d", i)
			}
			count := 257 - n
			for j := 0; j < count; j++ {
				out.WriteByte(data[i])
			}
			i++
		}
	}
	// Missing EOD marker is tolerated at end of input.
	return out.Bytes(), nil
}
