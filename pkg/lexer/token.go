package lexer

// TokenType represents the type of a token.
type TokenType string

// Token represents a lexical token.
type Token struct {
	Type     TokenType
	Literal  string // The raw source text of the token
	Line     int    // 1-based line number where the token starts
	Column   int    // 1-based column number where the token starts
	StartPos int    // 0-based byte offset where the token starts
	EndPos   int    // 0-based byte offset after the token ends

	// NewlineBefore is set when a line terminator (or a comment containing
	// one) separates this token from the previous one. It drives automatic
	// semicolon insertion and the restricted productions.
	NewlineBefore bool

	// Value is the decoded form: identifier name, string value (WTF-8),
	// template cooked text, regex pattern, or BigInt digits.
	Value string

	// Escaped marks identifiers and strings that contained escape sequences.
	Escaped bool
	// LegacyOctal marks 017-style numbers and \0nn string escapes, both
	// rejected in strict code.
	LegacyOctal bool

	// Template segments.
	Raw         string
	CookedValid bool
	Tail        bool

	// Regex literal flags.
	Flags string

	// Number holds the parsed value of NUMBER tokens.
	Number float64
}

const (
	ILLEGAL TokenType = "ILLEGAL"
	EOF     TokenType = "EOF"

	IDENT         TokenType = "IDENT"
	PRIVATE_IDENT TokenType = "PRIVATE_IDENT" // #name
	NUMBER        TokenType = "NUMBER"
	BIGINT        TokenType = "BIGINT"
	STRING        TokenType = "STRING"
	TEMPLATE      TokenType = "TEMPLATE"
	REGEX         TokenType = "REGEX"

	// Operators
	ASSIGN       TokenType = "="
	PLUS         TokenType = "+"
	MINUS        TokenType = "-"
	BANG         TokenType = "!"
	ASTERISK     TokenType = "*"
	EXPONENT     TokenType = "**"
	SLASH        TokenType = "/"
	REMAINDER    TokenType = "%"
	LT           TokenType = "<"
	GT           TokenType = ">"
	LE           TokenType = "<="
	GE           TokenType = ">="
	EQ           TokenType = "=="
	NOT_EQ       TokenType = "!="
	STRICT_EQ    TokenType = "==="
	STRICT_NE    TokenType = "!=="
	BITWISE_AND  TokenType = "&"
	BITWISE_OR   TokenType = "|"
	BITWISE_XOR  TokenType = "^"
	BITWISE_NOT  TokenType = "~"
	LEFT_SHIFT   TokenType = "<<"
	RIGHT_SHIFT  TokenType = ">>"
	URIGHT_SHIFT TokenType = ">>>"
	LOGICAL_AND  TokenType = "&&"
	LOGICAL_OR   TokenType = "||"
	COALESCE     TokenType = "??"
	INC          TokenType = "++"
	DEC          TokenType = "--"
	QUESTION     TokenType = "?"
	OPTIONAL     TokenType = "?."
	ARROW        TokenType = "=>"
	DOT          TokenType = "."
	SPREAD       TokenType = "..."

	// Compound assignment
	PLUS_ASSIGN         TokenType = "+="
	MINUS_ASSIGN        TokenType = "-="
	ASTERISK_ASSIGN     TokenType = "*="
	SLASH_ASSIGN        TokenType = "/="
	REMAINDER_ASSIGN    TokenType = "%="
	EXPONENT_ASSIGN     TokenType = "**="
	LEFT_SHIFT_ASSIGN   TokenType = "<<="
	RIGHT_SHIFT_ASSIGN  TokenType = ">>="
	URIGHT_SHIFT_ASSIGN TokenType = ">>>="
	AND_ASSIGN          TokenType = "&="
	OR_ASSIGN           TokenType = "|="
	XOR_ASSIGN          TokenType = "^="
	LOGICAL_AND_ASSIGN  TokenType = "&&="
	LOGICAL_OR_ASSIGN   TokenType = "||="
	COALESCE_ASSIGN     TokenType = "??="

	// Delimiters
	COMMA     TokenType = ","
	SEMICOLON TokenType = ";"
	COLON     TokenType = ":"
	LPAREN    TokenType = "("
	RPAREN    TokenType = ")"
	LBRACE    TokenType = "{"
	RBRACE    TokenType = "}"
	LBRACKET  TokenType = "["
	RBRACKET  TokenType = "]"
	AT        TokenType = "@"

	// Keywords
	BREAK      TokenType = "BREAK"
	CASE       TokenType = "CASE"
	CATCH      TokenType = "CATCH"
	CLASS      TokenType = "CLASS"
	CONST      TokenType = "CONST"
	CONTINUE   TokenType = "CONTINUE"
	DEBUGGER   TokenType = "DEBUGGER"
	DEFAULT    TokenType = "DEFAULT"
	DELETE     TokenType = "DELETE"
	DO         TokenType = "DO"
	ELSE       TokenType = "ELSE"
	ENUM       TokenType = "ENUM"
	EXPORT     TokenType = "EXPORT"
	EXTENDS    TokenType = "EXTENDS"
	FALSE      TokenType = "FALSE"
	FINALLY    TokenType = "FINALLY"
	FOR        TokenType = "FOR"
	FUNCTION   TokenType = "FUNCTION"
	IF         TokenType = "IF"
	IMPORT     TokenType = "IMPORT"
	IN         TokenType = "IN"
	INSTANCEOF TokenType = "INSTANCEOF"
	NEW        TokenType = "NEW"
	NULL       TokenType = "NULL"
	RETURN     TokenType = "RETURN"
	SUPER      TokenType = "SUPER"
	SWITCH     TokenType = "SWITCH"
	THIS       TokenType = "THIS"
	THROW      TokenType = "THROW"
	TRUE       TokenType = "TRUE"
	TRY        TokenType = "TRY"
	TYPEOF     TokenType = "TYPEOF"
	VAR        TokenType = "VAR"
	VOID       TokenType = "VOID"
	WHILE      TokenType = "WHILE"
	WITH       TokenType = "WITH"
)

// Contextual keywords such as let, static, yield, await, async, of, get,
// set and using are lexed as IDENT; the parser decides their role.
var keywords = map[string]TokenType{
	"break":      BREAK,
	"case":       CASE,
	"catch":      CATCH,
	"class":      CLASS,
	"const":      CONST,
	"continue":   CONTINUE,
	"debugger":   DEBUGGER,
	"default":    DEFAULT,
	"delete":     DELETE,
	"do":         DO,
	"else":       ELSE,
	"enum":       ENUM,
	"export":     EXPORT,
	"extends":    EXTENDS,
	"false":      FALSE,
	"finally":    FINALLY,
	"for":        FOR,
	"function":   FUNCTION,
	"if":         IF,
	"import":     IMPORT,
	"in":         IN,
	"instanceof": INSTANCEOF,
	"new":        NEW,
	"null":       NULL,
	"return":     RETURN,
	"super":      SUPER,
	"switch":     SWITCH,
	"this":       THIS,
	"throw":      THROW,
	"true":       TRUE,
	"try":        TRY,
	"typeof":     TYPEOF,
	"var":        VAR,
	"void":       VOID,
	"while":      WHILE,
	"with":       WITH,
}

// LookupIdent checks the keywords table for an identifier.
func LookupIdent(ident string) TokenType {
	if tokType, ok := keywords[ident]; ok {
		return tokType
	}
	return IDENT
}

// IsKeyword reports whether name is a reserved word in every context.
func IsKeyword(name string) bool {
	_, ok := keywords[name]
	return ok
}

// IsStrictReserved reports the words that are reserved only in strict code.
func IsStrictReserved(name string) bool {
	switch name {
	case "implements", "interface", "let", "package", "private", "protected", "public", "static", "yield":
		return true
	}
	return false
}

// IsIdentifierName reports whether the token can serve as a property name
// after a dot or in an object literal key, which admits reserved words.
func (t Token) IsIdentifierName() bool {
	if t.Type == IDENT {
		return true
	}
	_, ok := keywords[t.Literal]
	return ok && !t.Escaped
}

// Is reports whether the token is the unescaped contextual keyword word.
func (t Token) Is(word string) bool {
	return t.Type == IDENT && t.Value == word && !t.Escaped
}
