package pdftext

import (
	"bytes"
	"encoding/hex"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/encoding/charmap"
	xunicode "golang.org/x/text/encoding/unicode"
)

type tokenKind int

const (
	tokOther tokenKind = iota
	tokString
	tokNumber
	tokOperator
	tokArrayStart
	tokArrayEnd
	tokArray
)

type token struct {
	kind  tokenKind
	str   []byte
	num   float64
	op    string
	items []token
}

// kerningSpace is the TJ displacement, in thousandths of an em, beyond
// which a gap is rendered as a word break.
const kerningSpace = -200

// textFromStream renders the text-showing operators of a page content
// stream, breaking lines on line moves and text-block ends.
func textFromStream(data []byte) string {
	var (
		w        lineWriter
		operands []token
		array    []token
		inArray  bool
	)
	lx := lexer{data: data}
	for tok, ok := lx.token(); ok; tok, ok = lx.token() {
		switch tok.kind {
		case tokArrayStart:
			inArray, array = true, nil
		case tokArrayEnd:
			inArray = false
			operands = append(operands, token{kind: tokArray, items: array})
		case tokString, tokNumber:
			if inArray {
				array = append(array, tok)
			} else {
				operands = append(operands, tok)
			}
		case tokOperator:
			w.apply(tok.op, operands)
			operands = operands[:0]
		}
	}
	return tidy(w.String())
}

type lineWriter struct {
	strings.Builder
}

func (w *lineWriter) apply(op string, operands []token) {
	switch op {
	case "Tj":
		w.show(operands)
	case "'", `"`:
		w.newline()
		w.show(operands)
	case "TJ":
		for _, o := range operands {
			if o.kind != tokArray {
				continue
			}
			for _, it := range o.items {
				switch {
				case it.kind == tokString:
					w.WriteString(decodeText(it.str))
				case it.num < kerningSpace:
					w.space()
				}
			}
		}
	case "Td", "TD":
		if len(operands) >= 2 && operands[1].num != 0 {
			w.newline()
		} else {
			w.space()
		}
	case "T*", "ET", "Tm":
		w.newline()
	}
}

func (w *lineWriter) show(operands []token) {
	for _, o := range operands {
		if o.kind == tokString {
			w.WriteString(decodeText(o.str))
		}
	}
}

func (w *lineWriter) last() byte {
	s := w.String()
	if s == "" {
		return '\n'
	}
	return s[len(s)-1]
}

func (w *lineWriter) newline() {
	if w.last() != '\n' {
		w.WriteByte('\n')
	}
}

func (w *lineWriter) space() {
	if c := w.last(); c != ' ' && c != '\n' {
		w.WriteByte(' ')
	}
}

// decodeText converts a PDF string to UTF-8. Strings with a UTF-16 byte
// order mark are UTF-16BE; everything else is read as WinAnsi.
func decodeText(b []byte) string {
	if bytes.HasPrefix(b, []byte{0xFE, 0xFF}) {
		dec := xunicode.UTF16(xunicode.BigEndian, xunicode.ExpectBOM).NewDecoder()
		if out, err := dec.Bytes(b); err == nil {
			return string(out)
		}
		return ""
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		return ""
	}
	return string(out)
}

// tidy drops unprintable runes, collapses spaces and removes empty lines.
func tidy(s string) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.Map(func(r rune) rune {
			if unicode.IsPrint(r) || r == '\t' {
				return r
			}
			return -1
		}, line)
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

type lexer struct {
	data []byte
	pos  int
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == 0
}

func isDelimiter(c byte) bool {
	return strings.IndexByte("()<>[]{}/%", c) >= 0
}

func (l *lexer) peek(off int) byte {
	if l.pos+off < len(l.data) {
		return l.data[l.pos+off]
	}
	return 0
}

func (l *lexer) skip() {
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		if c == '%' {
			for l.pos < len(l.data) && l.data[l.pos] != '\n' {
				l.pos++
			}
			continue
		}
		if !isSpace(c) {
			return
		}
		l.pos++
	}
}

func (l *lexer) regular() string {
	start := l.pos
	for l.pos < len(l.data) && !isSpace(l.data[l.pos]) && !isDelimiter(l.data[l.pos]) {
		l.pos++
	}
	return string(l.data[start:l.pos])
}

func (l *lexer) token() (token, bool) {
	l.skip()
	if l.pos >= len(l.data) {
		return token{}, false
	}

	c := l.data[l.pos]
	switch {
	case c == '(':
		return token{kind: tokString, str: l.literal()}, true
	case c == '<' && l.peek(1) == '<', c == '>' && l.peek(1) == '>':
		l.pos += 2
		return token{kind: tokOther}, true
	case c == '<':
		return token{kind: tokString, str: l.hexString()}, true
	case c == '[':
		l.pos++
		return token{kind: tokArrayStart}, true
	case c == ']':
		l.pos++
		return token{kind: tokArrayEnd}, true
	case c == '/':
		l.pos++
		l.regular()
		return token{kind: tokOther}, true
	case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
		s := l.regular()
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return token{kind: tokOther}, true
		}
		return token{kind: tokNumber, num: n}, true
	}

	op := l.regular()
	if op == "" {
		l.pos++
		return token{kind: tokOther}, true
	}
	return token{kind: tokOperator, op: op}, true
}

func (l *lexer) literal() []byte {
	var out []byte
	depth := 0
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		l.pos++
		switch c {
		case '(':
			depth++
			if depth == 1 {
				continue
			}
		case ')':
			depth--
			if depth == 0 {
				return out
			}
		case '\\':
			out = append(out, l.escape()...)
			continue
		}
		out = append(out, c)
	}
	return out
}

func (l *lexer) escape() []byte {
	if l.pos >= len(l.data) {
		return nil
	}
	c := l.data[l.pos]
	l.pos++
	switch c {
	case 'n':
		return []byte{'\n'}
	case 'r':
		return []byte{'\r'}
	case 't':
		return []byte{'\t'}
	case 'b':
		return []byte{'\b'}
	case 'f':
		return []byte{'\f'}
	case '\r':
		if l.peek(0) == '\n' {
			l.pos++
		}
		return nil
	case '\n':
		return nil
	}
	if c >= '0' && c <= '7' {
		val := int(c - '0')
		for i := 0; i < 2 && l.peek(0) >= '0' && l.peek(0) <= '7'; i++ {
			val = val*8 + int(l.data[l.pos]-'0')
			l.pos++
		}
		return []byte{byte(val)}
	}
	return []byte{c}
}

// hexString decodes <...>. Strings that are neither UTF-16 nor printable
// single-byte text are glyph ids and are dropped.
func (l *lexer) hexString() []byte {
	l.pos++
	var digits []byte
	for l.pos < len(l.data) && l.data[l.pos] != '>' {
		if c := l.data[l.pos]; !isSpace(c) {
			digits = append(digits, c)
		}
		l.pos++
	}
	l.pos++
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, len(digits)/2)
	if _, err := hex.Decode(out, digits); err != nil {
		return nil
	}
	if bytes.HasPrefix(out, []byte{0xFE, 0xFF}) {
		return out
	}
	for _, b := range out {
		if b < 0x20 {
			return nil
		}
	}
	return out
}
