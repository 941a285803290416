package filters

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
)

// FlateDecode decompresses zlib/deflate data, the most common PDF filter,
// and applies the optional predictor from the decode parameters. A truncated
// or corrupted payload is an error; partial output is never returned.
func FlateDecode(data []byte, params Params) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("bad zlib header: %w", err)
	}
	defer reader.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return nil, fmt.Errorf("decompression failed: %w", err)
	}

	return applyPredictor(buf.Bytes(), params)
}

// applyPredictor undoes the prediction transform named in the decode
// parameters. Predictor 1 is the identity, 2 is TIFF predictor 2, and 10-15
// select the PNG predictors (each row carries its own algorithm byte).
func applyPredictor(data []byte, params Params) ([]byte, error) {
	predictor := getIntParam(params, "Predictor", 1)
	switch {
	case predictor == 1:
		return data, nil
	case predictor == 2:
		return undoTIFFPredictor(data, params)
	case predictor >= 10 && predictor <= 15:
		return undoPNGPredictor(data, params)
	}
	return nil, fmt.Errorf("unsupported predictor %d", predictor)
}

// undoTIFFPredictor reverses TIFF predictor 2: each sample was stored as a
// delta against the sample to its left.
func undoTIFFPredictor(data []byte, params Params) ([]byte, error) {
	columns := getIntParam(params, "Columns", 1)
	colors := getIntParam(params, "Colors", 1)
	bpc := getIntParam(params, "BitsPerComponent", 8)

	if bpc != 8 {
		return nil, fmt.Errorf("TIFF predictor supports only 8 bits per component, got %d", bpc)
	}
	rowSize := columns * colors
	if rowSize <= 0 || len(data)%rowSize != 0 {
		return nil, fmt.Errorf("data size %d not a multiple of row size %d", len(data), rowSize)
	}

	out := make([]byte, len(data))
	for row := 0; row < len(data)/rowSize; row++ {
		base := row * rowSize
		for col := 0; col < rowSize; col++ {
			if col < colors {
				out[base+col] = data[base+col]
			} else {
				out[base+col] = data[base+col] + out[base+col-colors]
			}
		}
	}
	return out, nil
}

// undoPNGPredictor reverses the PNG row predictors. Every encoded row starts
// with one predictor byte (0=None, 1=Sub, 2=Up, 3=Average, 4=Paeth) followed
// by the filtered samples.
func undoPNGPredictor(data []byte, params Params) ([]byte, error) {
	columns := getIntParam(params, "Columns", 1)
	colors := getIntParam(params, "Colors", 1)
	bpc := getIntParam(params, "BitsPerComponent", 8)

	if bpc != 8 {
		return nil, fmt.Errorf("PNG predictor supports only 8 bits per component, got %d", bpc)
	}

	bytesPerPixel := colors
	rowLen := columns * colors
	encRowLen := rowLen + 1 // leading predictor byte
	if rowLen <= 0 || len(data)%encRowLen != 0 {
		return nil, fmt.Errorf("data size %d not a multiple of row size %d", len(data), encRowLen)
	}

	numRows := len(data) / encRowLen
	out := make([]byte, numRows*rowLen)

	for row := 0; row < numRows; row++ {
		ftype := data[row*encRowLen]
		src := data[row*encRowLen+1 : (row+1)*encRowLen]
		dst := out[row*rowLen : (row+1)*rowLen]
		var prev []byte
		if row > 0 {
			prev = out[(row-1)*rowLen : row*rowLen]
		}

		for i := 0; i < rowLen; i++ {
			var left, up, upLeft byte
			if i >= bytesPerPixel {
				left = dst[i-bytesPerPixel]
			}
			if prev != nil {
				up = prev[i]
				if i >= bytesPerPixel {
					upLeft = prev[i-bytesPerPixel]
				}
			}

			var predicted byte
			switch ftype {
			case 0:
				predicted = 0
			case 1:
				predicted = left
			case 2:
				predicted = up
			case 3:
				predicted = byte((int(left) + int(up)) / 2)
			case 4:
				predicted = paeth(left, up, upLeft)
			default:
				return nil, fmt.Errorf("unknown PNG row predictor %d in row %d", ftype, row)
			}
			dst[i] = src[i] + predicted
		}
	}
	return out, nil
}

// paeth picks the neighbor closest to the linear prediction, per the PNG
// specification.
func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa := abs(p - int(a))
	pb := abs(p - int(b))
	pc := abs(p - int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
