package seqalpha

// CharTable converts between state codes and the printable characters used
// in PHYLIP/FASTA output. This is the minimal default implementation the
// simulator falls back on, built the same way
// fredericlemoine-goalign/align/const.go builds its alphabet tables
// (stdnucleotides, stdaminoacid) — a caller may supply its own CharTable
// (e.g. one backed by goalign's own tables) since OutputSink only depends
// on this interface.
type CharTable interface {
	StateToChar(s uint16) rune
	CharToState(r rune) (uint16, bool)
	GapChar() rune
}

var dnaChars = []rune{'A', 'C', 'G', 'T'}
var aaChars = []rune{
	'A', 'R', 'N', 'D', 'C', 'Q', 'E', 'G', 'H', 'I',
	'L', 'K', 'M', 'F', 'P', 'S', 'T', 'W', 'Y', 'V',
}
var binChars = []rune{'0', '1'}

const gapChar = '-'

type defaultTable struct {
	ctx   *Ctx
	chars []rune
}

// DefaultCharTable returns the simulator's built-in CharTable for ctx.
// CODON and MORPH alphabets use numeric placeholders (codon index, state
// index) since there is no universal single-character codon alphabet.
func DefaultCharTable(ctx *Ctx) CharTable {
	switch ctx.Kind {
	case BIN:
		return &defaultTable{ctx: ctx, chars: binChars}
	case DNA, NT2AA:
		return &defaultTable{ctx: ctx, chars: dnaChars}
	case AA:
		return &defaultTable{ctx: ctx, chars: aaChars}
	default:
		return &defaultTable{ctx: ctx, chars: nil}
	}
}

func (t *defaultTable) StateToChar(s uint16) rune {
	if t.ctx.IsUnknown(s) {
		return gapChar
	}
	if t.chars != nil && int(s) < len(t.chars) {
		return t.chars[s]
	}
	// CODON/MORPH: fold the index into the printable ASCII range starting
	// at '0' for debug-friendly, lossy-but-stable output.
	return rune('0' + int(s)%10)
}

func (t *defaultTable) CharToState(r rune) (uint16, bool) {
	if r == gapChar {
		return t.ctx.Unknown, true
	}
	for i, c := range t.chars {
		if c == r {
			return uint16(i), true
		}
	}
	return 0, false
}

func (t *defaultTable) GapChar() rune { return gapChar }
