package core

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
)

// ReferenceResolver resolves indirect references. The parser needs one when a
// stream's /Length is itself an indirect reference.
type ReferenceResolver interface {
	ResolveReference(ref IndirectRef) (Object, error)
}

// Parser parses PDF objects from an io.Reader using a Lexer for tokenization.
// It handles every object variant, indirect object definitions, and streams.
type Parser struct {
	lexer        *Lexer
	currentToken *Token
	peekToken    *Token
	resolver     ReferenceResolver

	// lexErr is the first tokenization failure. Once set, the lookahead
	// drains and the structure being parsed reports this error instead of a
	// generic truncation.
	lexErr error
}

// NewParser creates a parser for r and primes the two-token lookahead.
func NewParser(r io.Reader) *Parser {
	p := &Parser{lexer: NewLexer(r)}
	p.nextToken()
	p.nextToken()
	return p
}

// SetReferenceResolver installs the resolver used for indirect stream lengths.
func (p *Parser) SetReferenceResolver(resolver ReferenceResolver) {
	p.resolver = resolver
}

// nextToken shifts the lookahead window by one token.
func (p *Parser) nextToken() error {
	p.currentToken = p.peekToken

	if p.lexErr != nil {
		p.peekToken = nil
		return p.lexErr
	}

	// Once "stream" is the current token the next bytes are binary data, so
	// no further token may be read until parseStream has consumed them.
	if p.currentToken != nil &&
		p.currentToken.Type == TokenKeyword &&
		string(p.currentToken.Value) == "stream" {
		p.peekToken = nil
		return nil
	}

	token, err := p.lexer.NextToken()
	if err != nil {
		p.lexErr = err
		p.peekToken = nil
		return err
	}
	p.peekToken = token
	return nil
}

func (p *Parser) skipComments() error {
	for p.currentToken != nil && p.currentToken.Type == TokenComment {
		if err := p.nextToken(); err != nil {
			return err
		}
	}
	return nil
}

// ParseObject parses and returns the next object from the input.
func (p *Parser) ParseObject() (Object, error) {
	if err := p.skipComments(); err != nil {
		return nil, err
	}

	if p.currentToken == nil {
		if p.lexErr != nil {
			return nil, p.lexErr
		}
		return nil, &ParseError{Pos: p.lexer.Pos(), Msg: "unexpected end of input"}
	}

	switch p.currentToken.Type {
	case TokenEOF:
		return nil, io.EOF

	case TokenKeyword:
		keyword := string(p.currentToken.Value)
		switch keyword {
		case "null":
			p.nextToken()
			return Null{}, nil
		case "true":
			p.nextToken()
			return Bool(true), nil
		case "false":
			p.nextToken()
			return Bool(false), nil
		default:
			return nil, &ParseError{Pos: p.currentToken.Pos, Msg: "unexpected keyword " + strconv.Quote(keyword)}
		}

	case TokenInteger:
		// Integer, or the start of "num gen R".
		return p.parseNumber()

	case TokenReal:
		val, err := strconv.ParseFloat(string(p.currentToken.Value), 64)
		if err != nil {
			return nil, &ParseError{Pos: p.currentToken.Pos, Msg: "invalid real number", Err: err}
		}
		p.nextToken()
		return Real(val), nil

	case TokenString:
		val := string(p.currentToken.Value)
		p.nextToken()
		return String(val), nil

	case TokenHexString:
		val, err := DecodeHexDigits(p.currentToken.Value)
		if err != nil {
			return nil, &ParseError{Pos: p.currentToken.Pos, Msg: "invalid hex string", Err: err}
		}
		p.nextToken()
		return String(val), nil

	case TokenName:
		val := string(p.currentToken.Value)
		p.nextToken()
		return Name(val), nil

	case TokenArrayStart:
		return p.parseArray()

	case TokenDictStart:
		return p.parseDict()

	default:
		return nil, &ParseError{
			Pos: p.currentToken.Pos,
			Msg: fmt.Sprintf("unexpected token type %d", p.currentToken.Type),
		}
	}
}

// DecodeHexDigits converts hex string token digits to bytes. An odd digit
// count gets an implied trailing zero, per the PDF grammar.
func DecodeHexDigits(digits []byte) ([]byte, error) {
	if len(digits)%2 != 0 {
		digits = append(append([]byte{}, digits...), '0')
	}
	out := make([]byte, len(digits)/2)
	for i := 0; i < len(digits); i += 2 {
		if !isHexDigit(digits[i]) || !isHexDigit(digits[i+1]) {
			return nil, fmt.Errorf("non-hex digit in %q", digits)
		}
		out[i/2] = hexValue(digits[i])<<4 | hexValue(digits[i+1])
	}
	return out, nil
}

// parseNumber parses an integer, a real, or an indirect reference detected by
// the "num gen R" lookahead pattern.
func (p *Parser) parseNumber() (Object, error) {
	firstToken := string(p.currentToken.Value)

	firstInt, err := strconv.ParseInt(firstToken, 10, 64)
	if err != nil {
		f, err := strconv.ParseFloat(firstToken, 64)
		if err != nil {
			return nil, &ParseError{Pos: p.currentToken.Pos, Msg: "invalid number " + strconv.Quote(firstToken)}
		}
		p.nextToken()
		return Real(f), nil
	}

	if p.peekToken != nil && p.peekToken.Type == TokenInteger {
		secondInt, err := strconv.ParseInt(string(p.peekToken.Value), 10, 64)
		if err == nil {
			p.nextToken() // now at the second integer
			if p.peekToken != nil && p.peekToken.Type == TokenIndirectRef {
				p.nextToken() // at R
				p.nextToken() // past R
				return IndirectRef{Number: int(firstInt), Generation: int(secondInt)}, nil
			}
			// Not a reference; the second integer stays current and the
			// first one is returned.
			return Int(firstInt), nil
		}
	}

	p.nextToken()
	return Int(firstInt), nil
}

func (p *Parser) parseArray() (Object, error) {
	start := p.currentToken.Pos
	p.nextToken()

	arr := Array{}
	for {
		if err := p.skipComments(); err != nil {
			return nil, err
		}
		if p.currentToken == nil {
			if p.lexErr != nil {
				return nil, p.lexErr
			}
			return nil, &ParseError{Pos: start, Msg: "unexpected end of input in array"}
		}
		if p.currentToken.Type == TokenArrayEnd {
			p.nextToken()
			break
		}
		if p.currentToken.Type == TokenEOF {
			return nil, &ParseError{Pos: start, Msg: "unterminated array"}
		}

		obj, err := p.ParseObject()
		if err != nil {
			return nil, &ParseError{Pos: start, Msg: "bad array element", Err: err}
		}
		arr = append(arr, obj)
	}

	return arr, nil
}

func (p *Parser) parseDict() (Object, error) {
	start := p.currentToken.Pos
	p.nextToken()

	dict := make(Dict)
	for {
		if err := p.skipComments(); err != nil {
			return nil, err
		}
		if p.currentToken == nil {
			if p.lexErr != nil {
				return nil, p.lexErr
			}
			return nil, &ParseError{Pos: start, Msg: "unexpected end of input in dictionary"}
		}
		if p.currentToken.Type == TokenDictEnd {
			p.nextToken()
			break
		}
		if p.currentToken.Type == TokenEOF {
			return nil, &ParseError{Pos: start, Msg: "unterminated dictionary"}
		}

		if p.currentToken.Type != TokenName {
			return nil, &ParseError{
				Pos: p.currentToken.Pos,
				Msg: fmt.Sprintf("dictionary key must be a name, got token type %d", p.currentToken.Type),
			}
		}
		key := string(p.currentToken.Value)
		p.nextToken()

		value, err := p.ParseObject()
		if err != nil {
			return nil, &ParseError{Pos: start, Msg: "bad value for key " + strconv.Quote(key), Err: err}
		}
		dict[key] = value
	}

	return dict, nil
}

// ParseIndirectObject parses "num gen obj <object> endobj", including stream
// objects ("<dict> stream ... endstream").
func (p *Parser) ParseIndirectObject() (*IndirectObject, error) {
	if err := p.skipComments(); err != nil {
		return nil, err
	}

	if p.currentToken == nil || p.currentToken.Type != TokenInteger {
		if p.currentToken == nil && p.lexErr != nil {
			return nil, p.lexErr
		}
		return nil, &ParseError{Pos: p.lexer.Pos(), Msg: "expected object number"}
	}
	num, err := strconv.ParseInt(string(p.currentToken.Value), 10, 64)
	if err != nil {
		return nil, &ParseError{Pos: p.currentToken.Pos, Msg: "invalid object number", Err: err}
	}
	p.nextToken()

	if p.currentToken == nil || p.currentToken.Type != TokenInteger {
		return nil, &ParseError{Pos: p.lexer.Pos(), Msg: "expected generation number"}
	}
	gen, err := strconv.ParseInt(string(p.currentToken.Value), 10, 64)
	if err != nil {
		return nil, &ParseError{Pos: p.currentToken.Pos, Msg: "invalid generation number", Err: err}
	}
	p.nextToken()

	if p.currentToken == nil || p.currentToken.Type != TokenKeyword || string(p.currentToken.Value) != "obj" {
		return nil, &ParseError{Pos: p.lexer.Pos(), Msg: "expected 'obj' keyword"}
	}
	p.nextToken()

	obj, err := p.ParseObject()
	if err != nil {
		return nil, &ParseError{Pos: -1, Msg: fmt.Sprintf("bad value for object %d %d", num, gen), Err: err}
	}

	if p.currentToken != nil && p.currentToken.Type == TokenKeyword && string(p.currentToken.Value) == "stream" {
		dict, ok := obj.(Dict)
		if !ok {
			return nil, &ParseError{Pos: p.currentToken.Pos, Msg: "stream keyword not preceded by a dictionary"}
		}
		stream, err := p.parseStream(dict)
		if err != nil {
			return nil, err
		}
		obj = stream
	}

	if p.currentToken == nil || p.currentToken.Type != TokenKeyword || string(p.currentToken.Value) != "endobj" {
		return nil, &ParseError{Pos: p.lexer.Pos(), Msg: fmt.Sprintf("missing 'endobj' for object %d %d", num, gen)}
	}
	p.nextToken()

	return &IndirectObject{
		Ref:    IndirectRef{Number: int(num), Generation: int(gen)},
		Object: obj,
	}, nil
}

// streamLength returns the declared /Length, resolving an indirect reference
// through the installed resolver. It returns -1 when the length cannot be
// determined; the caller then falls back to scanning for "endstream".
func (p *Parser) streamLength(dict Dict) int {
	switch v := dict.Get("Length").(type) {
	case Int:
		if v >= 0 {
			return int(v)
		}
	case IndirectRef:
		if p.resolver == nil {
			return -1
		}
		resolved, err := p.resolver.ResolveReference(v)
		if err != nil {
			return -1
		}
		if n, ok := resolved.(Int); ok && n >= 0 {
			return int(n)
		}
	}
	return -1
}

// parseStream reads the binary stream payload that follows the "stream"
// keyword. The declared /Length is used when available and correct; an
// unresolvable or mismatched length triggers a scan for the "endstream"
// keyword instead. Scanning is a defensive fallback, not an error.
func (p *Parser) parseStream(dict Dict) (*Stream, error) {
	if err := p.lexer.SkipStreamEOL(); err != nil {
		return nil, &ParseError{Pos: p.lexer.Pos(), Msg: "missing EOL after 'stream'", Err: err}
	}

	var data []byte
	length := p.streamLength(dict)
	if length >= 0 {
		read, err := p.lexer.ReadBytes(length)
		if err != nil {
			return nil, &ParseError{Pos: p.lexer.Pos(), Msg: "truncated stream data", Err: err}
		}
		if p.atEndstream() {
			data = read
		} else {
			// Declared length disagrees with the file. Keep what was read
			// and extend it up to the real endstream keyword.
			rest, err := p.scanToEndstream()
			if err != nil {
				return nil, err
			}
			data = append(read, rest...)
		}
	} else {
		scanned, err := p.scanToEndstream()
		if err != nil {
			return nil, err
		}
		data = scanned
	}

	// Reload the lookahead window; the next token is the one after endstream.
	p.currentToken = nil
	p.peekToken = nil
	p.nextToken()
	p.nextToken()

	return &Stream{Dict: dict, Data: data}, nil
}

// atEndstream consumes the "endstream" keyword if it comes next (optionally
// preceded by whitespace) and reports whether it did. Nothing is consumed on
// a miss, so the scan fallback sees the input intact.
func (p *Parser) atEndstream() bool {
	const keyword = "endstream"

	skip := 0
	for {
		buf, err := p.lexer.peekN(skip + 1)
		if err != nil || len(buf) <= skip {
			return false
		}
		if !isWhitespace(buf[skip]) {
			break
		}
		skip++
	}

	buf, err := p.lexer.peekN(skip + len(keyword))
	if err != nil || string(buf[skip:]) != keyword {
		return false
	}
	for i := 0; i < skip+len(keyword); i++ {
		p.lexer.ReadByte()
	}
	return true
}

// scanToEndstream reads bytes until the "endstream" keyword, consuming it.
// The end-of-line marker immediately before the keyword is not part of the
// stream data and is trimmed.
func (p *Parser) scanToEndstream() ([]byte, error) {
	const keyword = "endstream"
	var buf bytes.Buffer

	for {
		window, err := p.lexer.peekN(len(keyword))
		if err == nil && string(window) == keyword {
			for i := 0; i < len(keyword); i++ {
				p.lexer.ReadByte()
			}
			break
		}
		b, err := p.lexer.ReadByte()
		if err != nil {
			return nil, &ParseError{Pos: p.lexer.Pos(), Msg: "missing 'endstream' keyword", Err: err}
		}
		buf.WriteByte(b)
	}

	data := buf.Bytes()
	if n := len(data); n > 0 && data[n-1] == '\n' {
		data = data[:n-1]
		if n := len(data); n > 0 && data[n-1] == '\r' {
			data = data[:n-1]
		}
	} else if n > 0 && data[n-1] == '\r' {
		data = data[:n-1]
	}
	return data, nil
}
