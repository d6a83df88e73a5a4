package lexer

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/skua-js/skua/pkg/jsstr"
)

// Lexer holds the state of the scanner. It always lexes '/' as a division
// operator; the parser asks for a regex rescan when a '/' appears where an
// expression is expected, and for a template rescan when a '}' closes a
// substitution.
type Lexer struct {
	input     string
	pos       int // byte offset of the next unread character
	line      int // 1-based line of pos
	lineStart int // byte offset where the current line begins

	newline bool // a line terminator was skipped before the pending token
}

// State is an opaque snapshot used for parser backtracking.
type State struct {
	pos, line, lineStart int
}

// NewLexer creates a new Lexer.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input, line: 1}
	// Hashbang comment is only recognised at the very start of the input.
	if strings.HasPrefix(input, "#!") {
		for l.pos < len(l.input) && !l.atLineTerminator() {
			l.pos++
		}
	}
	return l
}

// Snapshot captures the current scanning position.
func (l *Lexer) Snapshot() State {
	return State{pos: l.pos, line: l.line, lineStart: l.lineStart}
}

// Restore rewinds the lexer to a snapshot.
func (l *Lexer) Restore(s State) {
	l.pos, l.line, l.lineStart = s.pos, s.line, s.lineStart
}

// Input returns the full source text.
func (l *Lexer) Input() string { return l.input }

func (l *Lexer) peekByte(off int) byte {
	if l.pos+off < len(l.input) {
		return l.input[l.pos+off]
	}
	return 0
}

func (l *Lexer) peekRune() (rune, int) {
	if l.pos >= len(l.input) {
		return -1, 0
	}
	c := l.input[l.pos]
	if c < utf8.RuneSelf {
		return rune(c), 1
	}
	return utf8.DecodeRuneInString(l.input[l.pos:])
}

func (l *Lexer) atLineTerminator() bool {
	r, _ := l.peekRune()
	return isLineTerminator(r)
}

func isLineTerminator(r rune) bool {
	return r == '\n' || r == '\r' || r == 0x2028 || r == 0x2029
}

func isWhitespace(r rune) bool {
	switch r {
	case ' ', '\t', '\v', '\f', 0xA0, 0xFEFF:
		return true
	}
	return r > 0x7F && unicode.Is(unicode.Zs, r)
}

// IsIDStart reports whether r may begin an identifier.
func IsIDStart(r rune) bool {
	if r < utf8.RuneSelf {
		return r == '$' || r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
	}
	return unicode.IsLetter(r) || unicode.Is(unicode.Nl, r) || unicode.Is(unicode.Other_ID_Start, r)
}

// IsIDPart reports whether r may continue an identifier.
func IsIDPart(r rune) bool {
	if r < utf8.RuneSelf {
		return IsIDStart(r) || (r >= '0' && r <= '9')
	}
	return IsIDStart(r) || unicode.In(r, unicode.Mn, unicode.Mc, unicode.Nd, unicode.Pc, unicode.Other_ID_Continue) || r == 0x200C || r == 0x200D
}

// consumeLineTerminator advances past one line terminator (treating \r\n
// as one) and updates line bookkeeping.
func (l *Lexer) consumeLineTerminator() {
	r, size := l.peekRune()
	l.pos += size
	if r == '\r' && l.peekByte(0) == '\n' {
		l.pos++
	}
	l.line++
	l.lineStart = l.pos
}

// skipTrivia skips whitespace and comments. It returns an error message
// for an unterminated block comment.
func (l *Lexer) skipTrivia() string {
	for l.pos < len(l.input) {
		r, size := l.peekRune()
		switch {
		case isLineTerminator(r):
			l.consumeLineTerminator()
			l.newline = true
		case isWhitespace(r):
			l.pos += size
		case r == '/' && l.peekByte(1) == '/':
			l.skipLineComment()
		case r == '/' && l.peekByte(1) == '*':
			start := l.pos
			l.pos += 2
			closed := false
			for l.pos < len(l.input) {
				if l.input[l.pos] == '*' && l.peekByte(1) == '/' {
					l.pos += 2
					closed = true
					break
				}
				if l.atLineTerminator() {
					l.consumeLineTerminator()
					l.newline = true
					continue
				}
				_, sz := l.peekRune()
				l.pos += sz
			}
			if !closed {
				l.pos = start + 2
				return "Unterminated multi-line comment"
			}
		case r == '<' && strings.HasPrefix(l.input[l.pos:], "<!--"):
			l.skipLineComment()
		case r == '-' && (l.newline || l.pos == 0) && strings.HasPrefix(l.input[l.pos:], "-->"):
			l.skipLineComment()
		default:
			return ""
		}
	}
	return ""
}

func (l *Lexer) skipLineComment() {
	for l.pos < len(l.input) && !l.atLineTerminator() {
		_, size := l.peekRune()
		l.pos += size
	}
}

func (l *Lexer) makeToken(t TokenType, start, startLine, startCol int) Token {
	return Token{
		Type:          t,
		Literal:       l.input[start:l.pos],
		Value:         l.input[start:l.pos],
		Line:          startLine,
		Column:        startCol,
		StartPos:      start,
		EndPos:        l.pos,
		NewlineBefore: l.newline,
	}
}

func (l *Lexer) illegal(start, startLine, startCol int, format string, args ...any) Token {
	if l.pos == start && l.pos < len(l.input) {
		_, size := l.peekRune()
		l.pos += size
	}
	tok := l.makeToken(ILLEGAL, start, startLine, startCol)
	tok.Value = fmt.Sprintf(format, args...)
	return tok
}

// NextToken scans and returns the next token.
func (l *Lexer) NextToken() Token {
	l.newline = false
	if msg := l.skipTrivia(); msg != "" {
		return l.illegal(l.pos, l.line, l.pos-l.lineStart+1, "%s", msg)
	}
	start, startLine, startCol := l.pos, l.line, l.pos-l.lineStart+1
	if l.pos >= len(l.input) {
		return l.makeToken(EOF, start, startLine, startCol)
	}

	r, size := l.peekRune()
	switch {
	case IsIDStart(r) || r == '\\':
		return l.readIdentifier(start, startLine, startCol, false)
	case r >= '0' && r <= '9':
		return l.readNumber(start, startLine, startCol)
	case r == '.' && l.peekByte(1) >= '0' && l.peekByte(1) <= '9':
		return l.readNumber(start, startLine, startCol)
	case r == '"' || r == '\'':
		return l.readString(start, startLine, startCol, byte(r))
	case r == '`':
		l.pos++
		return l.readTemplate(start, startLine, startCol)
	case r == '#':
		l.pos++
		nr, _ := l.peekRune()
		if IsIDStart(nr) || nr == '\\' {
			tok := l.readIdentifier(start, startLine, startCol, true)
			return tok
		}
		return l.illegal(start, startLine, startCol, "Invalid or unexpected token")
	}

	l.pos += size
	var t TokenType
	switch r {
	case '{':
		t = LBRACE
	case '}':
		t = RBRACE
	case '(':
		t = LPAREN
	case ')':
		t = RPAREN
	case '[':
		t = LBRACKET
	case ']':
		t = RBRACKET
	case ';':
		t = SEMICOLON
	case ',':
		t = COMMA
	case ':':
		t = COLON
	case '~':
		t = BITWISE_NOT
	case '@':
		t = AT
	case '.':
		if l.peekByte(0) == '.' && l.peekByte(1) == '.' {
			l.pos += 2
			t = SPREAD
		} else {
			t = DOT
		}
	case '?':
		switch {
		case l.peekByte(0) == '?':
			l.pos++
			t = l.assignVariant(COALESCE, COALESCE_ASSIGN)
		case l.peekByte(0) == '.' && !(l.peekByte(1) >= '0' && l.peekByte(1) <= '9'):
			l.pos++
			t = OPTIONAL
		default:
			t = QUESTION
		}
	case '=':
		switch {
		case l.peekByte(0) == '>':
			l.pos++
			t = ARROW
		case l.peekByte(0) == '=' && l.peekByte(1) == '=':
			l.pos += 2
			t = STRICT_EQ
		case l.peekByte(0) == '=':
			l.pos++
			t = EQ
		default:
			t = ASSIGN
		}
	case '!':
		switch {
		case l.peekByte(0) == '=' && l.peekByte(1) == '=':
			l.pos += 2
			t = STRICT_NE
		case l.peekByte(0) == '=':
			l.pos++
			t = NOT_EQ
		default:
			t = BANG
		}
	case '+':
		if l.peekByte(0) == '+' {
			l.pos++
			t = INC
		} else {
			t = l.assignVariant(PLUS, PLUS_ASSIGN)
		}
	case '-':
		if l.peekByte(0) == '-' {
			l.pos++
			t = DEC
		} else {
			t = l.assignVariant(MINUS, MINUS_ASSIGN)
		}
	case '*':
		if l.peekByte(0) == '*' {
			l.pos++
			t = l.assignVariant(EXPONENT, EXPONENT_ASSIGN)
		} else {
			t = l.assignVariant(ASTERISK, ASTERISK_ASSIGN)
		}
	case '/':
		t = l.assignVariant(SLASH, SLASH_ASSIGN)
	case '%':
		t = l.assignVariant(REMAINDER, REMAINDER_ASSIGN)
	case '^':
		t = l.assignVariant(BITWISE_XOR, XOR_ASSIGN)
	case '&':
		if l.peekByte(0) == '&' {
			l.pos++
			t = l.assignVariant(LOGICAL_AND, LOGICAL_AND_ASSIGN)
		} else {
			t = l.assignVariant(BITWISE_AND, AND_ASSIGN)
		}
	case '|':
		if l.peekByte(0) == '|' {
			l.pos++
			t = l.assignVariant(LOGICAL_OR, LOGICAL_OR_ASSIGN)
		} else {
			t = l.assignVariant(BITWISE_OR, OR_ASSIGN)
		}
	case '<':
		if l.peekByte(0) == '<' {
			l.pos++
			t = l.assignVariant(LEFT_SHIFT, LEFT_SHIFT_ASSIGN)
		} else {
			t = l.assignVariant(LT, LE)
		}
	case '>':
		switch {
		case l.peekByte(0) == '>' && l.peekByte(1) == '>':
			l.pos += 2
			t = l.assignVariant(URIGHT_SHIFT, URIGHT_SHIFT_ASSIGN)
		case l.peekByte(0) == '>':
			l.pos++
			t = l.assignVariant(RIGHT_SHIFT, RIGHT_SHIFT_ASSIGN)
		default:
			t = l.assignVariant(GT, GE)
		}
	default:
		return l.illegal(start, startLine, startCol, "Invalid or unexpected token")
	}
	return l.makeToken(t, start, startLine, startCol)
}

func (l *Lexer) assignVariant(plain, assign TokenType) TokenType {
	if l.peekByte(0) == '=' {
		l.pos++
		return assign
	}
	return plain
}

// readIdentifier reads an IdentifierName, decoding \u escapes.
func (l *Lexer) readIdentifier(start, startLine, startCol int, private bool) Token {
	var sb strings.Builder
	escaped := false
	first := true
	for l.pos < len(l.input) {
		r, size := l.peekRune()
		if r == '\\' {
			if l.peekByte(1) != 'u' {
				return l.illegal(start, startLine, startCol, "Invalid Unicode escape sequence")
			}
			l.pos += 2
			cp, ok := l.readUnicodeEscapeBody()
			if !ok || (first && !IsIDStart(cp)) || (!first && !IsIDPart(cp)) {
				return l.illegal(start, startLine, startCol, "Invalid Unicode escape sequence")
			}
			sb.WriteRune(cp)
			escaped = true
			first = false
			continue
		}
		if (first && !IsIDStart(r)) || (!first && !IsIDPart(r)) {
			break
		}
		sb.WriteRune(r)
		l.pos += size
		first = false
	}
	name := sb.String()
	t := IDENT
	if private {
		t = PRIVATE_IDENT
	} else if !escaped {
		t = LookupIdent(name)
	}
	tok := l.makeToken(t, start, startLine, startCol)
	tok.Value = name
	tok.Escaped = escaped
	return tok
}

// readUnicodeEscapeBody reads XXXX or {X...} after "\u".
func (l *Lexer) readUnicodeEscapeBody() (rune, bool) {
	if l.peekByte(0) == '{' {
		l.pos++
		var v rune
		digits := 0
		for {
			c := l.peekByte(0)
			if c == '}' {
				l.pos++
				break
			}
			d := hexVal(c)
			if d < 0 {
				return 0, false
			}
			v = v*16 + rune(d)
			if v > 0x10FFFF {
				return 0, false
			}
			digits++
			l.pos++
		}
		return v, digits > 0
	}
	var v rune
	for i := 0; i < 4; i++ {
		d := hexVal(l.peekByte(0))
		if d < 0 {
			return 0, false
		}
		v = v*16 + rune(d)
		l.pos++
	}
	return v, true
}

func hexVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return -1
}

func digitVal(c byte, radix int) bool {
	d := hexVal(c)
	return d >= 0 && d < radix
}

// readDigits consumes digits of the given radix with numeric separators.
// It returns the digits without separators and an error message.
func (l *Lexer) readDigits(radix int) (string, string) {
	var sb strings.Builder
	lastSep := false
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if c == '_' {
			if sb.Len() == 0 || lastSep {
				return "", "Numeric separators are not allowed here"
			}
			lastSep = true
			l.pos++
			continue
		}
		if !digitVal(c, radix) {
			break
		}
		sb.WriteByte(c)
		lastSep = false
		l.pos++
	}
	if lastSep {
		return "", "Numeric separators are not allowed at the end of numeric literals"
	}
	return sb.String(), ""
}

func (l *Lexer) readNumber(start, startLine, startCol int) Token {
	finish := func(t TokenType, value float64, text string, legacy bool) Token {
		// Numeric literal must not be immediately followed by identifier
		// start or a digit.
		if r, _ := l.peekRune(); IsIDStart(r) || r == '\\' || (r >= '0' && r <= '9') {
			return l.illegal(start, startLine, startCol, "Numeric literal must not be immediately followed by identifier")
		}
		tok := l.makeToken(t, start, startLine, startCol)
		tok.Number = value
		tok.LegacyOctal = legacy
		if t == BIGINT {
			tok.Value = text
		}
		return tok
	}

	c := l.input[l.pos]
	if c == '0' && l.pos+1 < len(l.input) {
		radix := 0
		switch l.input[l.pos+1] {
		case 'x', 'X':
			radix = 16
		case 'o', 'O':
			radix = 8
		case 'b', 'B':
			radix = 2
		}
		if radix != 0 {
			l.pos += 2
			digits, msg := l.readDigits(radix)
			if msg != "" {
				return l.illegal(start, startLine, startCol, "%s", msg)
			}
			if digits == "" {
				return l.illegal(start, startLine, startCol, "Invalid or unexpected token")
			}
			n := new(big.Int)
			n.SetString(digits, radix)
			if l.peekByte(0) == 'n' {
				l.pos++
				return finish(BIGINT, 0, n.String(), false)
			}
			f, _ := new(big.Float).SetInt(n).Float64()
			return finish(NUMBER, f, "", false)
		}
		// Legacy octal (017) and non-octal decimal (089) literals.
		if d := l.input[l.pos+1]; d >= '0' && d <= '9' {
			l.pos++
			j := l.pos
			octal := true
			for j < len(l.input) && l.input[j] >= '0' && l.input[j] <= '9' {
				if l.input[j] >= '8' {
					octal = false
				}
				j++
			}
			if octal {
				v, _ := strconv.ParseUint(l.input[l.pos:j], 8, 64)
				l.pos = j
				return finish(NUMBER, float64(v), "", true)
			}
			// Non-octal decimal integer literal; may have a fraction.
			l.pos = j
			text := l.input[start:j]
			if l.peekByte(0) == '.' {
				l.pos++
				frac, _ := l.readDigits(10)
				text += "." + frac
			}
			f, _ := strconv.ParseFloat(text, 64)
			return finish(NUMBER, f, "", true)
		}
	}

	var text strings.Builder
	intPart := ""
	if c != '.' {
		digits, msg := l.readDigits(10)
		if msg != "" {
			return l.illegal(start, startLine, startCol, "%s", msg)
		}
		intPart = digits
		text.WriteString(digits)
		if l.peekByte(0) == 'n' {
			l.pos++
			v := strings.TrimLeft(digits, "0")
			if v == "" {
				v = "0"
			}
			return finish(BIGINT, 0, v, false)
		}
	}
	if l.peekByte(0) == '.' {
		l.pos++
		text.WriteByte('.')
		if digitVal(l.peekByte(0), 10) {
			frac, msg := l.readDigits(10)
			if msg != "" {
				return l.illegal(start, startLine, startCol, "%s", msg)
			}
			text.WriteString(frac)
		} else if intPart == "" {
			return l.illegal(start, startLine, startCol, "Invalid or unexpected token")
		}
	}
	if e := l.peekByte(0); e == 'e' || e == 'E' {
		save := l.pos
		l.pos++
		text.WriteByte('e')
		if s := l.peekByte(0); s == '+' || s == '-' {
			text.WriteByte(s)
			l.pos++
		}
		if !digitVal(l.peekByte(0), 10) {
			l.pos = save
			return l.illegal(start, startLine, startCol, "Invalid or unexpected token")
		}
		exp, msg := l.readDigits(10)
		if msg != "" {
			return l.illegal(start, startLine, startCol, "%s", msg)
		}
		text.WriteString(exp)
	}
	f, err := strconv.ParseFloat(text.String(), 64)
	if err != nil {
		// Out-of-range literals round to infinity, matching the literal's
		// mathematical value.
		if ne, ok := err.(*strconv.NumError); !ok || ne.Err != strconv.ErrRange {
			return l.illegal(start, startLine, startCol, "Invalid or unexpected token")
		}
		if f == 0 {
			f = 0
		} else {
			f = math.Inf(1)
		}
	}
	return finish(NUMBER, f, "", false)
}

// readEscape decodes one escape sequence after the backslash. It appends
// to units and reports whether the escape was valid, and whether it was a
// legacy octal escape.
func (l *Lexer) readEscape(units []uint16, inTemplate bool) ([]uint16, bool, bool) {
	if l.pos >= len(l.input) {
		return units, false, false
	}
	r, size := l.peekRune()
	if isLineTerminator(r) {
		l.consumeLineTerminator()
		return units, true, false
	}
	l.pos += size
	switch r {
	case 'n':
		return append(units, '\n'), true, false
	case 't':
		return append(units, '\t'), true, false
	case 'r':
		return append(units, '\r'), true, false
	case 'b':
		return append(units, '\b'), true, false
	case 'f':
		return append(units, '\f'), true, false
	case 'v':
		return append(units, '\v'), true, false
	case 'x':
		h1, h2 := hexVal(l.peekByte(0)), hexVal(l.peekByte(1))
		if h1 < 0 || h2 < 0 {
			return units, false, false
		}
		l.pos += 2
		return append(units, uint16(h1*16+h2)), true, false
	case 'u':
		cp, ok := l.readUnicodeEscapeBody()
		if !ok {
			return units, false, false
		}
		return jsstr.AppendUnits(units, cp), true, false
	case '0', '1', '2', '3', '4', '5', '6', '7':
		if r == '0' && !digitVal(l.peekByte(0), 10) {
			return append(units, 0), true, false
		}
		if inTemplate {
			return units, false, false
		}
		v := int(r - '0')
		maxDigits := 2
		if r >= '4' {
			maxDigits = 1
		}
		for i := 0; i < maxDigits && digitVal(l.peekByte(0), 8); i++ {
			v = v*8 + int(l.peekByte(0)-'0')
			l.pos++
		}
		return append(units, uint16(v)), true, true
	case '8', '9':
		if inTemplate {
			return units, false, false
		}
		return append(units, uint16(r)), true, true
	}
	return jsstr.AppendUnits(units, r), true, false
}

func (l *Lexer) readString(start, startLine, startCol int, quote byte) Token {
	l.pos++
	var units []uint16
	escaped, legacy := false, false
	for {
		if l.pos >= len(l.input) {
			return l.illegal(start, startLine, startCol, "Invalid or unexpected token")
		}
		c := l.input[l.pos]
		if c == quote {
			l.pos++
			break
		}
		if c == '\\' {
			l.pos++
			escaped = true
			var ok, oct bool
			units, ok, oct = l.readEscape(units, false)
			if !ok {
				return l.illegal(start, startLine, startCol, "Invalid escape sequence")
			}
			legacy = legacy || oct
			continue
		}
		if c == '\n' || c == '\r' {
			return l.illegal(start, startLine, startCol, "Invalid or unexpected token")
		}
		r, size := l.peekRune()
		l.pos += size
		units = jsstr.AppendUnits(units, r)
	}
	tok := l.makeToken(STRING, start, startLine, startCol)
	tok.Value = jsstr.FromUnits(units)
	tok.Escaped = escaped
	tok.LegacyOctal = legacy
	return tok
}

// readTemplate reads a template segment after '`' or '}', stopping at
// "${" or the closing backtick.
func (l *Lexer) readTemplate(start, startLine, startCol int) Token {
	var units []uint16
	var raw strings.Builder
	valid := true
	tail := false
	for {
		if l.pos >= len(l.input) {
			return l.illegal(start, startLine, startCol, "Unterminated template literal")
		}
		c := l.input[l.pos]
		if c == '`' {
			l.pos++
			tail = true
			break
		}
		if c == '$' && l.peekByte(1) == '{' {
			l.pos += 2
			break
		}
		if c == '\\' {
			escStart := l.pos
			l.pos++
			var ok bool
			units, ok, _ = l.readEscape(units, true)
			if !ok {
				valid = false
				// Skip the malformed escape up to the next character.
				if l.pos == escStart+1 && l.pos < len(l.input) {
					_, size := l.peekRune()
					l.pos += size
				}
			}
			raw.WriteString(normalizeRaw(l.input[escStart:l.pos]))
			continue
		}
		if c == '\r' {
			l.consumeLineTerminator()
			units = append(units, '\n')
			raw.WriteByte('\n')
			continue
		}
		if isLineTerminator(rune(c)) || (c >= utf8.RuneSelf && l.atLineTerminator()) {
			r, _ := l.peekRune()
			l.consumeLineTerminator()
			units = jsstr.AppendUnits(units, r)
			raw.WriteString(string(r))
			continue
		}
		r, size := l.peekRune()
		l.pos += size
		units = jsstr.AppendUnits(units, r)
		raw.WriteRune(r)
	}
	tok := l.makeToken(TEMPLATE, start, startLine, startCol)
	tok.Raw = raw.String()
	tok.CookedValid = valid
	if valid {
		tok.Value = jsstr.FromUnits(units)
	} else {
		tok.Value = ""
	}
	tok.Tail = tail
	return tok
}

func normalizeRaw(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// RescanTemplateContinuation re-lexes from a '}' token that closes a
// template substitution.
func (l *Lexer) RescanTemplateContinuation(brace Token) Token {
	l.pos = brace.StartPos + 1
	l.line = brace.Line
	l.lineStart = brace.StartPos - (brace.Column - 1)
	l.newline = false
	return l.readTemplate(brace.StartPos, brace.Line, brace.Column)
}

// RescanRegex re-lexes a '/' or '/=' token as a regular expression literal.
func (l *Lexer) RescanRegex(slash Token) Token {
	l.pos = slash.StartPos + 1
	l.line = slash.Line
	l.lineStart = slash.StartPos - (slash.Column - 1)
	l.newline = slash.NewlineBefore
	start, startLine, startCol := slash.StartPos, slash.Line, slash.Column

	inClass := false
	var pattern strings.Builder
	for {
		if l.pos >= len(l.input) || l.atLineTerminator() {
			return l.illegal(start, startLine, startCol, "Invalid regular expression: missing /")
		}
		r, size := l.peekRune()
		if r == '\\' {
			pattern.WriteRune(r)
			l.pos++
			if l.pos >= len(l.input) || l.atLineTerminator() {
				return l.illegal(start, startLine, startCol, "Invalid regular expression: missing /")
			}
			r2, size2 := l.peekRune()
			pattern.WriteRune(r2)
			l.pos += size2
			continue
		}
		l.pos += size
		if r == '[' {
			inClass = true
		} else if r == ']' {
			inClass = false
		} else if r == '/' && !inClass {
			break
		}
		pattern.WriteRune(r)
	}
	flagStart := l.pos
	for l.pos < len(l.input) {
		r, size := l.peekRune()
		if !IsIDPart(r) {
			break
		}
		l.pos += size
	}
	flags := l.input[flagStart:l.pos]
	for i, f := range flags {
		if !strings.ContainsRune("dgimsuvy", f) || strings.ContainsRune(flags[i+1:], f) {
			return l.illegal(start, startLine, startCol, "Invalid regular expression flags")
		}
	}
	tok := l.makeToken(REGEX, start, startLine, startCol)
	tok.Value = pattern.String()
	tok.Flags = flags
	return tok
}
