package filters

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hhrutter/lzw"
)

// LZWDecode decompresses LZW data as used by PDF: MSB-first codes with the
// EarlyChange code-width switch enabled by default. The standard library's
// compress/lzw cannot express EarlyChange, so the pdfcpu project's decoder
// is used instead. Predictors apply the same way as for Flate.
func LZWDecode(data []byte, params Params) ([]byte, error) {
	earlyChange := getIntParam(params, "EarlyChange", 1) == 1

	reader := lzw.NewReader(bytes.NewReader(data), earlyChange)
	defer reader.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return nil, fmt.Errorf("lzw decompression failed: %w", err)
	}

	return applyPredictor(buf.Bytes(), params)
}
