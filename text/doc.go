// Package text turns content stream operations into plain text.
//
// The extractor tracks the text and line matrices through BT/ET blocks and
// the positioning operators, and emits show-operator strings (Tj, TJ, ', ")
// in reading order. A drop in the baseline starts a new output line. Glyph
// metrics and font encodings are not consulted; strings pass through as the
// content stream carries them, with UTF-16BE sequences transcoded to UTF-8.
package text
