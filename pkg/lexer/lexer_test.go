package lexer

import (
	"testing"
)

func TestNextTokenPunctuators(t *testing.T) {
	input := `a ?. b ?? c ??= d **= e >>>= f => ... #p !== 0x1F 1_000n`
	tests := []struct {
		expectedType    TokenType
		expectedLiteral string
	}{
		{IDENT, "a"},
		{OPTIONAL, "?."},
		{IDENT, "b"},
		{COALESCE, "??"},
		{IDENT, "c"},
		{COALESCE_ASSIGN, "??="},
		{IDENT, "d"},
		{EXPONENT_ASSIGN, "**="},
		{IDENT, "e"},
		{URIGHT_SHIFT_ASSIGN, ">>>="},
		{IDENT, "f"},
		{ARROW, "=>"},
		{SPREAD, "..."},
		{PRIVATE_IDENT, "#p"},
		{STRICT_NE, "!=="},
		{NUMBER, "0x1F"},
		{BIGINT, "1_000n"},
		{EOF, ""},
	}

	l := NewLexer(input)
	for i, tt := range tests {
		tok := l.NextToken()
		if tok.Type != tt.expectedType {
			t.Fatalf("tests[%d] - tokentype wrong. expected=%q, got=%q (%q)", i, tt.expectedType, tok.Type, tok.Value)
		}
		if tok.Literal != tt.expectedLiteral {
			t.Fatalf("tests[%d] - literal wrong. expected=%q, got=%q", i, tt.expectedLiteral, tok.Literal)
		}
	}
}

func TestOptionalChainBeforeDigit(t *testing.T) {
	l := NewLexer("a?.5:1")
	want := []TokenType{IDENT, QUESTION, NUMBER, COLON, NUMBER, EOF}
	for i, w := range want {
		if tok := l.NextToken(); tok.Type != w {
			t.Fatalf("token %d: expected %q, got %q", i, w, tok.Type)
		}
	}
}

func TestNumbers(t *testing.T) {
	tests := []struct {
		input  string
		value  float64
		legacy bool
	}{
		{"0", 0, false},
		{"1.5e3", 1500, false},
		{".25", 0.25, false},
		{"0b101", 5, false},
		{"0o17", 15, false},
		{"017", 15, true},
		{"019", 19, true},
		{"1_000_000", 1e6, false},
		{"1e400", 0, false},
	}
	for _, tt := range tests {
		tok := NewLexer(tt.input).NextToken()
		if tok.Type != NUMBER {
			t.Fatalf("%q: expected NUMBER, got %q (%s)", tt.input, tok.Type, tok.Value)
		}
		if tt.input == "1e400" {
			if tok.Number <= 1e308 {
				t.Errorf("%q: expected infinity, got %v", tt.input, tok.Number)
			}
			continue
		}
		if tok.Number != tt.value || tok.LegacyOctal != tt.legacy {
			t.Errorf("%q: got %v legacy=%v", tt.input, tok.Number, tok.LegacyOctal)
		}
	}
}

func TestNumberFollowedByIdentifier(t *testing.T) {
	tok := NewLexer("3in x").NextToken()
	if tok.Type != ILLEGAL {
		t.Fatalf("expected ILLEGAL, got %q", tok.Type)
	}
	if tok.Value != "Numeric literal must not be immediately followed by identifier" {
		t.Errorf("unexpected message %q", tok.Value)
	}
}

func TestStringEscapes(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		legacy   bool
	}{
		{`"a\nb"`, "a\nb", false},
		{`'\x41B\u{43}'`, "ABC", false},
		{`"\101"`, "A", true},
		{`"\0"`, "\x00", false},
		{`"line\
continued"`, "linecontinued", false},
	}
	for _, tt := range tests {
		tok := NewLexer(tt.input).NextToken()
		if tok.Type != STRING {
			t.Fatalf("%s: expected STRING, got %q", tt.input, tok.Type)
		}
		if tok.Value != tt.expected || tok.LegacyOctal != tt.legacy {
			t.Errorf("%s: got %q legacy=%v", tt.input, tok.Value, tok.LegacyOctal)
		}
	}
}

func TestTemplateCookedAndRaw(t *testing.T) {
	tok := NewLexer("`\\u{10FFFFF}`").NextToken()
	if tok.Type != TEMPLATE || !tok.Tail {
		t.Fatalf("expected tail template, got %q", tok.Type)
	}
	if tok.CookedValid {
		t.Errorf("expected cooked value to be invalid")
	}
	if tok.Raw != `\u{10FFFFF}` {
		t.Errorf("raw mismatch: %q", tok.Raw)
	}

	l := NewLexer("`a${x}b\\n`")
	head := l.NextToken()
	if head.Tail || head.Value != "a" {
		t.Fatalf("bad head %+v", head)
	}
	if id := l.NextToken(); id.Value != "x" {
		t.Fatalf("expected x, got %q", id.Value)
	}
	brace := l.NextToken()
	if brace.Type != RBRACE {
		t.Fatalf("expected }, got %q", brace.Type)
	}
	tail := l.RescanTemplateContinuation(brace)
	if !tail.Tail || tail.Value != "b\n" || tail.Raw != `b\n` {
		t.Errorf("bad tail %+v", tail)
	}
}

func TestRegexRescan(t *testing.T) {
	l := NewLexer("/[/]+/gi.test(s)")
	slash := l.NextToken()
	if slash.Type != SLASH {
		t.Fatalf("expected SLASH, got %q", slash.Type)
	}
	re := l.RescanRegex(slash)
	if re.Type != REGEX || re.Value != "[/]+" || re.Flags != "gi" {
		t.Fatalf("bad regex token %+v", re)
	}
	if dot := l.NextToken(); dot.Type != DOT {
		t.Errorf("expected DOT after regex, got %q", dot.Type)
	}
}

func TestNewlineBefore(t *testing.T) {
	l := NewLexer("a /* x\n */ b\nc")
	a, b, c := l.NextToken(), l.NextToken(), l.NextToken()
	if a.NewlineBefore || !b.NewlineBefore || !c.NewlineBefore {
		t.Errorf("newline flags wrong: %v %v %v", a.NewlineBefore, b.NewlineBefore, c.NewlineBefore)
	}
	if c.Line != 3 || c.Column != 1 {
		t.Errorf("expected c at 3:1, got %d:%d", c.Line, c.Column)
	}
}

func TestEscapedIdentifierIsNotKeyword(t *testing.T) {
	tok := NewLexer(`\u0069f`).NextToken()
	if tok.Type != IDENT || tok.Value != "if" || !tok.Escaped {
		t.Errorf("unexpected token %+v", tok)
	}
}
