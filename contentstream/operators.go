package contentstream

import (
	"fmt"
	"strconv"
)

// arity bounds the operand count for one operator. max < 0 means no upper
// bound beyond the parser's stack limit.
type arity struct {
	min, max int
}

func (a arity) String() string {
	switch {
	case a.min == a.max:
		return strconv.Itoa(a.min)
	case a.max < 0:
		return fmt.Sprintf("at least %d", a.min)
	default:
		return fmt.Sprintf("%d to %d", a.min, a.max)
	}
}

// knownOperators is the full operator set from the content stream grammar
// with the operand counts each one takes. Operators outside this set, or
// reached with the wrong number of operands, are recorded as errors and
// skipped.
var knownOperators = map[string]arity{
	// Graphics state
	"q": {0, 0}, "Q": {0, 0}, "cm": {6, 6}, "w": {1, 1}, "J": {1, 1},
	"j": {1, 1}, "M": {1, 1}, "d": {2, 2}, "ri": {1, 1}, "i": {1, 1},
	"gs": {1, 1},

	// Path construction and painting
	"m": {2, 2}, "l": {2, 2}, "c": {6, 6}, "v": {4, 4}, "y": {4, 4},
	"h": {0, 0}, "re": {4, 4}, "S": {0, 0}, "s": {0, 0}, "f": {0, 0},
	"F": {0, 0}, "f*": {0, 0}, "B": {0, 0}, "B*": {0, 0}, "b": {0, 0},
	"b*": {0, 0}, "n": {0, 0},

	// Clipping
	"W": {0, 0}, "W*": {0, 0},

	// Text objects and state
	"BT": {0, 0}, "ET": {0, 0},
	"Tc": {1, 1}, "Tw": {1, 1}, "Tz": {1, 1}, "TL": {1, 1}, "Tf": {2, 2},
	"Tr": {1, 1}, "Ts": {1, 1},

	// Text positioning and showing
	"Td": {2, 2}, "TD": {2, 2}, "Tm": {6, 6}, "T*": {0, 0},
	"Tj": {1, 1}, "TJ": {1, 1}, "'": {1, 1}, "\"": {3, 3},

	// Type 3 fonts
	"d0": {2, 2}, "d1": {6, 6},

	// Color. The sc/scn family takes one operand per colorant, so only a
	// lower bound applies.
	"CS": {1, 1}, "cs": {1, 1},
	"SC": {1, -1}, "SCN": {1, -1}, "sc": {1, -1}, "scn": {1, -1},
	"G": {1, 1}, "g": {1, 1}, "RG": {3, 3}, "rg": {3, 3},
	"K": {4, 4}, "k": {4, 4},

	// Shading and XObjects
	"sh": {1, 1}, "Do": {1, 1},

	// Inline images. BI is handled by the inline image reader; a stray ID
	// or EI outside one is an empty operation.
	"BI": {0, 0}, "ID": {0, 0}, "EI": {0, 0},

	// Marked content
	"MP": {1, 1}, "DP": {2, 2}, "BMC": {1, 1}, "BDC": {2, 2}, "EMC": {0, 0},

	// Compatibility
	"BX": {0, 0}, "EX": {0, 0},
}
