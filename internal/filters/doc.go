// Package filters implements the PDF stream decode filters used by the
// engine: ASCIIHexDecode, ASCII85Decode, FlateDecode (with TIFF and PNG
// predictors), LZWDecode (with EarlyChange), RunLengthDecode and
// CCITTFaxDecode.
//
// Each filter is a pure function from encoded bytes (plus decode parameters)
// to decoded bytes. Filter chaining and PDF-object parameter translation
// happen one level up, in the core package's stream decoding.
package filters
