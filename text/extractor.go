package text

import (
	"strings"

	"golang.org/x/text/encoding/unicode"

	"github.com/tsawler/vellum/contentstream"
	"github.com/tsawler/vellum/core"
)

// lineTolerance is how far (in text space units) the baseline may drift
// before a fragment counts as a new line.
const lineTolerance = 0.5

// matrix is a PDF transform [a b c d e f]; e and f are the translation.
type matrix [6]float64

func identity() matrix { return matrix{1, 0, 0, 1, 0, 0} }

// mul returns m applied before n.
func mul(m, n matrix) matrix {
	return matrix{
		m[0]*n[0] + m[1]*n[2],
		m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2],
		m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4],
		m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

func translation(tx, ty float64) matrix { return matrix{1, 0, 0, 1, tx, ty} }

// fragment is one shown string with its baseline position.
type fragment struct {
	x, y float64
	text string
}

// Extractor converts operation lists to text.
type Extractor struct {
	textMatrix matrix
	lineMatrix matrix
	leading    float64
	inText     bool

	fragments []fragment
}

// NewExtractor returns a fresh extractor.
func NewExtractor() *Extractor {
	return &Extractor{textMatrix: identity(), lineMatrix: identity()}
}

// FromContent parses decoded content bytes and extracts their text. The
// operator errors skipped during parsing are returned alongside the result.
func (e *Extractor) FromContent(data []byte) (string, []*contentstream.OperatorError, error) {
	parser := contentstream.NewParser(data)
	ops, err := parser.Parse()
	if err != nil {
		return "", parser.Errors(), err
	}
	return e.FromOperations(ops), parser.Errors(), nil
}

// FromOperations extracts text from an already parsed operation list.
func (e *Extractor) FromOperations(ops []contentstream.Operation) string {
	e.fragments = e.fragments[:0]
	for _, op := range ops {
		e.apply(op)
	}
	return e.assemble()
}

func (e *Extractor) apply(op contentstream.Operation) {
	switch op.Operator {
	case "BT":
		e.inText = true
		e.textMatrix = identity()
		e.lineMatrix = identity()
	case "ET":
		e.inText = false

	case "TL":
		if v, ok := number(op.Operands, 0); ok {
			e.leading = v
		}
	case "Td":
		tx, okX := number(op.Operands, 0)
		ty, okY := number(op.Operands, 1)
		if okX && okY {
			e.newLineAt(tx, ty)
		}
	case "TD":
		tx, okX := number(op.Operands, 0)
		ty, okY := number(op.Operands, 1)
		if okX && okY {
			e.leading = -ty
			e.newLineAt(tx, ty)
		}
	case "Tm":
		if len(op.Operands) >= 6 {
			var m matrix
			ok := true
			for i := 0; i < 6; i++ {
				m[i], ok = number(op.Operands, i)
				if !ok {
					return
				}
			}
			e.textMatrix = m
			e.lineMatrix = m
		}
	case "T*":
		e.newLineAt(0, -e.leading)

	case "Tj":
		if s, ok := str(op.Operands, 0); ok {
			e.show(s)
		}
	case "'":
		e.newLineAt(0, -e.leading)
		if s, ok := str(op.Operands, 0); ok {
			e.show(s)
		}
	case "\"":
		// aw ac string "
		e.newLineAt(0, -e.leading)
		if s, ok := str(op.Operands, 2); ok {
			e.show(s)
		}
	case "TJ":
		if len(op.Operands) == 0 {
			return
		}
		arr, ok := op.Operands[0].(core.Array)
		if !ok {
			return
		}
		var sb strings.Builder
		for _, elem := range arr {
			if s, ok := elem.(core.String); ok {
				sb.WriteString(decodeString(string(s)))
			}
		}
		e.showDecoded(sb.String())
	}
}

// newLineAt moves the line matrix and resets the text matrix to it.
func (e *Extractor) newLineAt(tx, ty float64) {
	e.lineMatrix = mul(translation(tx, ty), e.lineMatrix)
	e.textMatrix = e.lineMatrix
}

func (e *Extractor) show(raw string) {
	e.showDecoded(decodeString(raw))
}

func (e *Extractor) showDecoded(s string) {
	if s == "" {
		return
	}
	e.fragments = append(e.fragments, fragment{
		x:    e.textMatrix[4],
		y:    e.textMatrix[5],
		text: s,
	})
}

// assemble joins fragments, starting a new line whenever the baseline moves.
func (e *Extractor) assemble() string {
	var sb strings.Builder
	for i, frag := range e.fragments {
		if i > 0 {
			prev := e.fragments[i-1]
			dy := prev.y - frag.y
			if dy > lineTolerance || dy < -lineTolerance {
				sb.WriteByte('\n')
			} else if frag.x > prev.x && !strings.HasSuffix(prev.text, " ") {
				// Same baseline but a horizontal gap; a space keeps the
				// words apart since glyph widths are unknown.
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(frag.text)
	}
	return sb.String()
}

// decodeString converts a shown string to UTF-8 when it carries a UTF-16BE
// byte order mark; other strings pass through unchanged.
func decodeString(s string) string {
	b := []byte(s)
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		decoder := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		if out, err := decoder.Bytes(b); err == nil {
			return string(out)
		}
	}
	return s
}

func number(operands []core.Object, i int) (float64, bool) {
	if i >= len(operands) {
		return 0, false
	}
	switch v := operands[i].(type) {
	case core.Int:
		return float64(v), true
	case core.Real:
		return float64(v), true
	}
	return 0, false
}

func str(operands []core.Object, i int) (string, bool) {
	if i >= len(operands) {
		return "", false
	}
	s, ok := operands[i].(core.String)
	return string(s), ok
}
