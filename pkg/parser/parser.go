package parser

import (
	"fmt"

	"github.com/skua-js/skua/pkg/errors"
	"github.com/skua-js/skua/pkg/lexer"
	"github.com/skua-js/skua/pkg/source"
)

// Operator precedence levels for binary expressions.
const (
	_ int = iota
	LOWEST
	COALESCE    // ??
	LOGICAL_OR  // ||
	LOGICAL_AND // &&
	BITWISE_OR  // |
	BITWISE_XOR // ^
	BITWISE_AND // &
	EQUALITY    // == != === !==
	RELATIONAL  // < > <= >= instanceof in
	SHIFT       // << >> >>>
	SUM         // + -
	PRODUCT     // * / %
	EXPONENT    // ** (right associative)
)

var precedences = map[lexer.TokenType]int{
	lexer.COALESCE:     COALESCE,
	lexer.LOGICAL_OR:   LOGICAL_OR,
	lexer.LOGICAL_AND:  LOGICAL_AND,
	lexer.BITWISE_OR:   BITWISE_OR,
	lexer.BITWISE_XOR:  BITWISE_XOR,
	lexer.BITWISE_AND:  BITWISE_AND,
	lexer.EQ:           EQUALITY,
	lexer.NOT_EQ:       EQUALITY,
	lexer.STRICT_EQ:    EQUALITY,
	lexer.STRICT_NE:    EQUALITY,
	lexer.LT:           RELATIONAL,
	lexer.GT:           RELATIONAL,
	lexer.LE:           RELATIONAL,
	lexer.GE:           RELATIONAL,
	lexer.INSTANCEOF:   RELATIONAL,
	lexer.IN:           RELATIONAL,
	lexer.LEFT_SHIFT:   SHIFT,
	lexer.RIGHT_SHIFT:  SHIFT,
	lexer.URIGHT_SHIFT: SHIFT,
	lexer.PLUS:         SUM,
	lexer.MINUS:        SUM,
	lexer.ASTERISK:     PRODUCT,
	lexer.SLASH:        PRODUCT,
	lexer.REMAINDER:    PRODUCT,
	lexer.EXPONENT:     EXPONENT,
}

// Mode selects the goal symbol.
type Mode int

const (
	ModeScript Mode = iota
	ModeModule
	// ModeEval parses direct or indirect eval code.
	ModeEval
	// ModeFunctionBody parses the body passed to the Function constructor.
	ModeFunctionBody
)

// Options configures a parse.
type Options struct {
	Mode   Mode
	Strict bool
	// Eval context flags: what the code surrounding a direct eval allows.
	AllowNewTarget   bool
	AllowSuperProp   bool
	AllowSuperCall   bool
	InClassFieldInit bool
	// Function constructor flags.
	Async     bool
	Generator bool
	// PrivateNames lists the #names visible to direct eval code.
	PrivateNames []string
}

// bailout is panicked to abandon the parse at the first syntax error.
type bailout struct{}

type label struct {
	name   string
	isLoop bool
}

// funcContext tracks the syntactic context of the innermost function.
type funcContext struct {
	parent      *funcContext
	strict      bool
	isAsync     bool
	isGenerator bool
	isArrow     bool
	inFunction  bool
	superProp   bool
	superCall   bool
	newTarget   bool
	classField  bool
	staticBlock bool
	labels      []label
	breakable   int
	loops       int
	// blocks counts the enclosing blocks and case clauses within this
	// function or script body.
	blocks int
	// inParams is set while parsing the parameter list, where yield and
	// await expressions are not allowed.
	inParams bool
}

// Parser produces an AST from JavaScript source.
type Parser struct {
	l   *lexer.Lexer
	src *source.SourceFile

	tok     lexer.Token // current token, not yet consumed
	prev    lexer.Token // last consumed token
	peekTok lexer.Token
	hasPeek bool

	opts Options
	ctx  *funcContext
	noIn bool
	errs []errors.SkuaError
	// classes holds the private names declared by the enclosing class bodies.
	classes []*classScope
	// sawAwait records top-level await in modules.
	sawAwait bool
	// exported tracks export names for duplicate detection.
	exported map[string]bool
}

type classScope struct {
	// declared maps each #name to its kind: field, method, get, set or
	// accessor (a get/set pair), prefixed with "static " when static.
	declared map[string]string
	used     []*PrivateIdentifier
}

// NewParser creates a parser over src.
func NewParser(src *source.SourceFile, opts Options) *Parser {
	p := &Parser{
		l:    lexer.NewLexer(src.Content),
		src:  src,
		opts: opts,
	}
	p.ctx = &funcContext{
		strict:     opts.Strict || opts.Mode == ModeModule,
		isAsync:    opts.Mode == ModeModule || opts.Async,
		newTarget:  opts.AllowNewTarget,
		superProp:  opts.AllowSuperProp,
		superCall:  opts.AllowSuperCall,
		classField: opts.InClassFieldInit,
	}
	if opts.Mode == ModeFunctionBody {
		p.ctx.inFunction = true
		p.ctx.newTarget = true
		p.ctx.isGenerator = opts.Generator
	}
	if len(opts.PrivateNames) > 0 {
		cs := &classScope{declared: map[string]string{}}
		for _, name := range opts.PrivateNames {
			cs.declared[name] = "field"
		}
		p.classes = append(p.classes, cs)
	}
	p.tok = p.l.NextToken()
	return p
}

// Errors returns the syntax errors found.
func (p *Parser) Errors() []errors.SkuaError { return p.errs }

// ParseScript parses a complete script.
func ParseScript(src *source.SourceFile, strict bool) (*Program, []errors.SkuaError) {
	return NewParser(src, Options{Mode: ModeScript, Strict: strict}).ParseProgram()
}

// ParseModule parses a complete module.
func ParseModule(src *source.SourceFile) (*Program, []errors.SkuaError) {
	return NewParser(src, Options{Mode: ModeModule}).ParseProgram()
}

// ParseProgram parses the whole input according to the configured mode.
func (p *Parser) ParseProgram() (prog *Program, errs []errors.SkuaError) {
	prog = &Program{Source: p.src, IsModule: p.opts.Mode == ModeModule}
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); !ok {
				panic(r)
			}
			prog, errs = nil, p.errs
		}
	}()
	if p.opts.Mode != ModeModule {
		p.parseDirectives(&prog.Statements)
	}
	for p.tok.Type != lexer.EOF {
		prog.Statements = append(prog.Statements, p.parseStatementListItem())
	}
	prog.Strict = p.ctx.strict
	prog.HasTopLevelAwait = p.sawAwait
	return prog, nil
}

// --- Token helpers ---

func (p *Parser) next() {
	if p.tok.Type == lexer.ILLEGAL {
		p.failAt(p.tok, "%s", p.tok.Value)
	}
	p.prev = p.tok
	if p.hasPeek {
		p.tok = p.peekTok
		p.hasPeek = false
	} else {
		p.tok = p.l.NextToken()
	}
}

func (p *Parser) peek() lexer.Token {
	if !p.hasPeek {
		p.peekTok = p.l.NextToken()
		p.hasPeek = true
	}
	return p.peekTok
}

func (p *Parser) is(t lexer.TokenType) bool { return p.tok.Type == t }

func (p *Parser) eat(t lexer.TokenType) bool {
	if p.tok.Type == t {
		p.next()
		return true
	}
	return false
}

func (p *Parser) expect(t lexer.TokenType) lexer.Token {
	if p.tok.Type != t {
		p.unexpected()
	}
	tok := p.tok
	p.next()
	return tok
}

func (p *Parser) fail(format string, args ...any) {
	p.failAt(p.tok, format, args...)
}

func (p *Parser) failAt(tok lexer.Token, format string, args ...any) {
	p.errs = append(p.errs, &errors.SyntaxError{
		Position: errors.Position{
			Line:     tok.Line,
			Column:   tok.Column,
			StartPos: tok.StartPos,
			EndPos:   tok.EndPos,
			Source:   p.src,
		},
		Msg: fmt.Sprintf(format, args...),
	})
	panic(bailout{})
}

func (p *Parser) unexpected() {
	switch p.tok.Type {
	case lexer.ILLEGAL:
		p.fail("%s", p.tok.Value)
	case lexer.EOF:
		p.fail("Unexpected end of input")
	case lexer.STRING:
		p.fail("Unexpected string")
	case lexer.NUMBER, lexer.BIGINT:
		p.fail("Unexpected number")
	case lexer.TEMPLATE:
		p.fail("Unexpected template string")
	case lexer.IDENT:
		if p.strict() && lexer.IsStrictReserved(p.tok.Value) {
			p.fail("Unexpected strict mode reserved word")
		}
		p.fail("Unexpected identifier '%s'", p.tok.Value)
	}
	p.fail("Unexpected token '%s'", p.tok.Literal)
}

// consumeSemicolon implements automatic semicolon insertion.
func (p *Parser) consumeSemicolon() {
	if p.eat(lexer.SEMICOLON) {
		return
	}
	if p.is(lexer.RBRACE) || p.is(lexer.EOF) || p.tok.NewlineBefore {
		return
	}
	p.unexpected()
}

func (p *Parser) strict() bool { return p.ctx.strict }

func (p *Parser) inAsync() bool { return p.ctx.isAsync }

func (p *Parser) inGenerator() bool { return p.ctx.isGenerator }

// withNoIn runs fn with the `in` operator enabled or disabled.
func (p *Parser) withNoIn(noIn bool, fn func()) {
	saved := p.noIn
	p.noIn = noIn
	defer func() { p.noIn = saved }()
	fn()
}

// --- Directives ---

// parseDirectives parses the directive prologue and applies "use strict".
// It returns whether "use strict" was found.
func (p *Parser) parseDirectives(out *[]Statement) bool {
	found := false
	var legacy []lexer.Token
	for p.is(lexer.STRING) {
		tok := p.tok
		next := p.peek()
		if next.Type != lexer.SEMICOLON && next.Type != lexer.RBRACE && next.Type != lexer.EOF && !next.NewlineBefore {
			break
		}
		raw := tok.Literal[1 : len(tok.Literal)-1]
		if tok.LegacyOctal {
			legacy = append(legacy, tok)
		}
		if raw == "use strict" {
			found = true
			p.ctx.strict = true
			if len(legacy) > 0 {
				p.failAt(legacy[0], "Octal escape sequences are not allowed in strict mode.")
			}
		}
		stmt := p.parseStatement()
		if es, ok := stmt.(*ExpressionStatement); ok {
			es.Directive = raw
		}
		*out = append(*out, stmt)
	}
	return found
}

// --- Identifiers ---

// isIdentifierToken reports whether the current token can be a binding or
// reference identifier in the current context.
func (p *Parser) isIdentifierToken(tok lexer.Token) bool {
	if tok.Type != lexer.IDENT {
		return false
	}
	switch tok.Value {
	case "yield":
		return !p.inGenerator() && !p.strict()
	case "await":
		return !p.inAsync() && !p.ctx.staticBlock && p.opts.Mode != ModeModule
	}
	if p.strict() && lexer.IsStrictReserved(tok.Value) {
		return false
	}
	if lexer.IsKeyword(tok.Value) || tok.Value == "enum" {
		return false
	}
	return true
}

// parseIdentifierReference parses an identifier used as a reference.
func (p *Parser) parseIdentifierReference() *Identifier {
	if !p.isIdentifierToken(p.tok) {
		if p.tok.Type == lexer.IDENT && p.tok.Value == "await" && p.ctx.classField {
			p.fail("Unexpected reserved word")
		}
		if p.tok.Type == lexer.IDENT && (p.tok.Value == "await" || p.tok.Value == "yield" || lexer.IsKeyword(p.tok.Value)) {
			p.fail("Unexpected reserved word")
		}
		p.unexpected()
	}
	if p.tok.Value == "arguments" && p.ctx.argumentsForbidden() {
		p.fail("'arguments' is not allowed in class field initializer or static initialization block")
	}
	id := &Identifier{Token: p.tok, Value: p.tok.Value}
	p.next()
	return id
}

// argumentsForbidden reports whether the innermost non-arrow context is a
// class field initializer or static block.
func (c *funcContext) argumentsForbidden() bool {
	for f := c; f != nil; f = f.parent {
		if f.isArrow {
			continue
		}
		return f.classField || f.staticBlock
	}
	return false
}

// parseBindingIdentifier parses an identifier that introduces a binding.
func (p *Parser) parseBindingIdentifier() *Identifier {
	tok := p.tok
	id := p.parseIdentifierReference()
	p.checkBindingName(tok, id.Value)
	return id
}

func (p *Parser) checkBindingName(tok lexer.Token, name string) {
	if p.strict() && (name == "eval" || name == "arguments") {
		p.failAt(tok, "Unexpected eval or arguments in strict mode")
	}
	if p.strict() && lexer.IsStrictReserved(name) {
		p.failAt(tok, "Unexpected strict mode reserved word")
	}
}

// parsePropertyName parses a property key in object literals and classes.
// It returns the key and whether it is computed.
func (p *Parser) parsePropertyName() (Expression, bool) {
	tok := p.tok
	switch tok.Type {
	case lexer.STRING:
		p.checkLegacyOctal(tok)
		p.next()
		return &StringLiteral{Token: tok, Value: tok.Value}, false
	case lexer.NUMBER:
		p.checkLegacyOctal(tok)
		p.next()
		return &NumberLiteral{Token: tok, Value: tok.Number}, false
	case lexer.BIGINT:
		p.next()
		return &BigIntLiteral{Token: tok, Digits: tok.Value}, false
	case lexer.LBRACKET:
		p.next()
		var key Expression
		p.withNoIn(false, func() { key = p.parseAssignment() })
		p.expect(lexer.RBRACKET)
		return key, true
	case lexer.PRIVATE_IDENT:
		p.next()
		return &PrivateIdentifier{Token: tok, Name: tok.Value}, false
	}
	if tok.IsIdentifierName() {
		p.next()
		return &Identifier{Token: tok, Value: tok.Value}, false
	}
	p.unexpected()
	return nil, false
}

func (p *Parser) checkLegacyOctal(tok lexer.Token) {
	if tok.LegacyOctal && p.strict() {
		if tok.Type == lexer.STRING {
			p.failAt(tok, "Octal escape sequences are not allowed in strict mode.")
		}
		p.failAt(tok, "Unprefixed octal number not allowed in strict mode")
	}
}

// --- Private names ---

func (p *Parser) usePrivateName(id *PrivateIdentifier) {
	if len(p.classes) == 0 {
		p.failAt(id.Token, "Private field '#%s' must be declared in an enclosing class", id.Name)
	}
	cs := p.classes[len(p.classes)-1]
	cs.used = append(cs.used, id)
}

// --- Labels ---

func (p *Parser) findLabel(name string) *label {
	for i := len(p.ctx.labels) - 1; i >= 0; i-- {
		if p.ctx.labels[i].name == name {
			return &p.ctx.labels[i]
		}
	}
	return nil
}
