// Package contentstream parses page content into a flat operation list.
//
// A content stream is a sequence of operands followed by an operator, e.g.
// "1 0 0 1 72 720 cm". [Parser.Parse] returns the operations in stream order.
// Malformed input does not stop the parse: an unknown operator, an operand
// pile-up or a bad operand is recorded as an [OperatorError], the pending
// operands are dropped, and parsing continues with the next token. The
// collected errors are available from [Parser.Errors] afterwards.
//
// Inline images (BI ... ID <binary> EI) are returned as a single "BI"
// operation whose operands are the image dictionary and the raw image bytes.
package contentstream
