package contentstream

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/tsawler/vellum/core"
)

// maxOperands bounds the operand stack. The richest legitimate operators
// (scn with a pattern name, Type 3 d1) take at most seven operands, so a
// pile-up this deep means operators are missing from the stream.
const maxOperands = 32

// Operation is one operator together with the operands that preceded it.
type Operation struct {
	Operator string
	Operands []core.Object
}

// String renders the operation roughly as it appeared in the stream.
func (op Operation) String() string {
	var sb bytes.Buffer
	for _, operand := range op.Operands {
		sb.WriteString(operand.String())
		sb.WriteByte(' ')
	}
	sb.WriteString(op.Operator)
	return sb.String()
}

// OperatorError records one spot where the stream deviated from the grammar.
// The parse continues past it.
type OperatorError struct {
	Operator string // empty when no operator was involved
	Pos      int64
	Msg      string
}

func (e *OperatorError) Error() string {
	if e.Operator != "" {
		return fmt.Sprintf("content operator %q at %d: %s", e.Operator, e.Pos, e.Msg)
	}
	return fmt.Sprintf("content stream at %d: %s", e.Pos, e.Msg)
}

// Parser tokenizes one content stream (or several concatenated ones) into
// operations.
type Parser struct {
	lexer    *core.Lexer
	operands []core.Object
	errs     []*OperatorError
}

// NewParser creates a parser over decoded content bytes.
func NewParser(data []byte) *Parser {
	return &Parser{lexer: core.NewLexer(bytes.NewReader(data))}
}

// Errors returns the grammar deviations skipped during Parse.
func (p *Parser) Errors() []*OperatorError { return p.errs }

// Parse consumes the whole stream and returns its operations in order.
// Grammar deviations are skipped and collected; only a lexical failure that
// makes further progress impossible is returned as an error.
func (p *Parser) Parse() ([]Operation, error) {
	var ops []Operation

	for {
		tok, err := p.lexer.NextToken()
		if err != nil {
			return ops, err
		}

		switch tok.Type {
		case core.TokenEOF:
			if len(p.operands) > 0 {
				p.fail("", "operands left at end of stream")
			}
			return ops, nil

		case core.TokenComment:
			continue

		case core.TokenKeyword, core.TokenIndirectRef:
			operator := string(tok.Value)
			if tok.Type == core.TokenIndirectRef {
				operator = "R"
			}
			switch operator {
			case "true":
				p.push(core.Bool(true))
			case "false":
				p.push(core.Bool(false))
			case "null":
				p.push(core.Null{})
			case "BI":
				op, err := p.parseInlineImage()
				if err != nil {
					return ops, err
				}
				if op != nil {
					ops = append(ops, *op)
				}
			default:
				a, ok := knownOperators[operator]
				if !ok {
					p.fail(operator, "unknown operator")
					continue
				}
				if n := len(p.operands); n < a.min || (a.max >= 0 && n > a.max) {
					p.fail(operator, fmt.Sprintf("operand count %d, want %s", n, a))
					continue
				}
				ops = append(ops, Operation{Operator: operator, Operands: p.takeOperands()})
			}

		default:
			value, err := p.parseValue(tok)
			if err != nil {
				p.fail("", err.Error())
				continue
			}
			p.push(value)
		}
	}
}

func (p *Parser) push(obj core.Object) {
	if len(p.operands) >= maxOperands {
		p.fail("", "operand stack overflow")
		return
	}
	p.operands = append(p.operands, obj)
}

// takeOperands hands the pending operands to an operation and resets the
// stack.
func (p *Parser) takeOperands() []core.Object {
	operands := p.operands
	p.operands = nil
	return operands
}

// fail records an error and drops the pending operands.
func (p *Parser) fail(operator, msg string) {
	p.errs = append(p.errs, &OperatorError{Operator: operator, Pos: p.lexer.Pos(), Msg: msg})
	p.operands = nil
}

// parseValue converts a non-keyword token into an object, recursing for
// arrays and dictionaries (TJ arrays, BDC property lists).
func (p *Parser) parseValue(tok *core.Token) (core.Object, error) {
	switch tok.Type {
	case core.TokenInteger:
		v, err := strconv.ParseInt(string(tok.Value), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad integer %q", tok.Value)
		}
		return core.Int(v), nil
	case core.TokenReal:
		v, err := strconv.ParseFloat(string(tok.Value), 64)
		if err != nil {
			return nil, fmt.Errorf("bad real %q", tok.Value)
		}
		return core.Real(v), nil
	case core.TokenString:
		return core.String(tok.Value), nil
	case core.TokenHexString:
		decoded, err := core.DecodeHexDigits(tok.Value)
		if err != nil {
			return nil, err
		}
		return core.String(decoded), nil
	case core.TokenName:
		return core.Name(tok.Value), nil
	case core.TokenArrayStart:
		return p.parseArray()
	case core.TokenDictStart:
		return p.parseDict()
	}
	return nil, fmt.Errorf("unexpected token type %d", tok.Type)
}

func (p *Parser) parseArray() (core.Object, error) {
	arr := core.Array{}
	for {
		tok, err := p.lexer.NextToken()
		if err != nil {
			return nil, err
		}
		switch tok.Type {
		case core.TokenArrayEnd:
			return arr, nil
		case core.TokenEOF:
			return nil, fmt.Errorf("unterminated array")
		case core.TokenKeyword:
			switch string(tok.Value) {
			case "true":
				arr = append(arr, core.Bool(true))
			case "false":
				arr = append(arr, core.Bool(false))
			case "null":
				arr = append(arr, core.Null{})
			default:
				return nil, fmt.Errorf("keyword %q inside array", tok.Value)
			}
		default:
			elem, err := p.parseValue(tok)
			if err != nil {
				return nil, err
			}
			arr = append(arr, elem)
		}
	}
}

func (p *Parser) parseDict() (core.Object, error) {
	dict := make(core.Dict)
	for {
		tok, err := p.lexer.NextToken()
		if err != nil {
			return nil, err
		}
		if tok.Type == core.TokenDictEnd {
			return dict, nil
		}
		if tok.Type == core.TokenEOF {
			return nil, fmt.Errorf("unterminated dictionary")
		}
		if tok.Type != core.TokenName {
			return nil, fmt.Errorf("dictionary key is token type %d, not a name", tok.Type)
		}
		key := string(tok.Value)

		valTok, err := p.lexer.NextToken()
		if err != nil {
			return nil, err
		}
		value, err := p.parseValue(valTok)
		if err != nil {
			return nil, err
		}
		dict[key] = value
	}
}

// parseInlineImage handles BI ... ID <binary> EI. The result is a "BI"
// operation carrying the image dictionary and the raw (still encoded) image
// bytes. A malformed image is recorded and skipped, returning nil.
func (p *Parser) parseInlineImage() (*Operation, error) {
	dict := make(core.Dict)
	for {
		tok, err := p.lexer.NextToken()
		if err != nil {
			return nil, err
		}
		if tok.Type == core.TokenKeyword && string(tok.Value) == "ID" {
			break
		}
		if tok.Type == core.TokenEOF {
			p.fail("BI", "inline image without ID")
			return nil, nil
		}
		if tok.Type != core.TokenName {
			p.fail("BI", "inline image key is not a name")
			return nil, nil
		}
		key := string(tok.Value)

		valTok, err := p.lexer.NextToken()
		if err != nil {
			return nil, err
		}
		value, err := p.parseValue(valTok)
		if err != nil {
			p.fail("BI", err.Error())
			return nil, nil
		}
		dict[key] = value
	}

	// One whitespace byte separates ID from the data.
	if b, err := p.lexer.Peek(); err == nil && isSpace(b) {
		p.lexer.ReadByte()
	}

	data, err := p.readToEI()
	if err != nil {
		p.fail("BI", "inline image without EI")
		return nil, nil
	}

	p.operands = nil
	return &Operation{Operator: "BI", Operands: []core.Object{dict, core.String(data)}}, nil
}

// readToEI consumes bytes up to a whitespace-delimited EI keyword.
func (p *Parser) readToEI() ([]byte, error) {
	var data []byte
	for {
		b, err := p.lexer.ReadByte()
		if err != nil {
			return nil, err
		}
		data = append(data, b)

		n := len(data)
		if n >= 3 && data[n-1] == 'I' && data[n-2] == 'E' && isSpace(data[n-3]) {
			next, err := p.lexer.Peek()
			if err != nil || isSpace(next) || isDelim(next) {
				return data[:n-3], nil
			}
		}
	}
}

func isSpace(b byte) bool {
	switch b {
	case 0x00, 0x09, 0x0A, 0x0C, 0x0D, 0x20:
		return true
	}
	return false
}

func isDelim(b byte) bool {
	switch b {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}
