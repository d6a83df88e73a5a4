package parser

import (
	"github.com/skua-js/skua/pkg/lexer"
)

// parseStatementListItem parses a statement or a declaration.
func (p *Parser) parseStatementListItem() Statement {
	switch p.tok.Type {
	case lexer.FUNCTION:
		return p.parseFunctionDeclaration(false, p.tok)
	case lexer.CLASS:
		return p.parseClassDeclaration()
	case lexer.CONST:
		return p.parseLexicalDeclaration(true)
	case lexer.IMPORT:
		if next := p.peek(); next.Type != lexer.LPAREN && next.Type != lexer.DOT {
			if p.opts.Mode != ModeModule || p.ctx.parent != nil {
				p.fail("Cannot use import statement outside a module")
			}
			return p.parseImportDeclaration()
		}
	case lexer.EXPORT:
		if p.opts.Mode != ModeModule || p.ctx.parent != nil {
			p.fail("Unexpected token 'export'")
		}
		return p.parseExportDeclaration()
	case lexer.IDENT:
		if p.tok.Is("let") && p.isLetDeclaration() {
			return p.parseLexicalDeclaration(true)
		}
		if p.tok.Is("async") && !p.tok.Escaped {
			if next := p.peek(); next.Type == lexer.FUNCTION && !next.NewlineBefore {
				start := p.tok
				p.next()
				return p.parseFunctionDeclaration(true, start)
			}
		}
		if p.isUsingDeclaration() {
			return p.parseUsingDeclaration(false)
		}
		if p.isAwaitUsingDeclaration() {
			return p.parseUsingDeclaration(true)
		}
	}
	return p.parseStatement()
}

// isLetDeclaration decides whether `let` starts a lexical declaration.
func (p *Parser) isLetDeclaration() bool {
	next := p.peek()
	switch next.Type {
	case lexer.LBRACKET, lexer.LBRACE:
		return true
	case lexer.IDENT:
		if next.Value == "in" || next.Value == "instanceof" {
			return false
		}
		if next.Value == "of" && !next.NewlineBefore {
			return true
		}
		return true
	}
	return false
}

// isUsingDeclaration checks for `using x` with no line break in between.
func (p *Parser) isUsingDeclaration() bool {
	if !p.tok.Is("using") {
		return false
	}
	next := p.peek()
	return next.Type == lexer.IDENT && !next.NewlineBefore && next.Value != "in" && !(next.Value == "of" && !next.Escaped && p.usingOfAmbiguous())
}

// usingOfAmbiguous resolves `using of` by looking past `of`: `using of =`
// declares a binding named of, anything else treats `using` as an identifier.
func (p *Parser) usingOfAmbiguous() bool {
	state := p.l.Snapshot()
	tok, peekTok, hasPeek, prev := p.tok, p.peekTok, p.hasPeek, p.prev
	defer func() {
		p.l.Restore(state)
		p.tok, p.peekTok, p.hasPeek, p.prev = tok, peekTok, hasPeek, prev
	}()
	p.next() // using
	p.next() // of
	return !(p.is(lexer.ASSIGN) || p.is(lexer.SEMICOLON) || p.is(lexer.COMMA))
}

// isAwaitUsingDeclaration checks for `await using x` in async contexts.
func (p *Parser) isAwaitUsingDeclaration() bool {
	if !p.tok.Is("await") || !p.inAsync() {
		return false
	}
	next := p.peek()
	if !next.Is("using") || next.NewlineBefore {
		return false
	}
	state := p.l.Snapshot()
	tok, peekTok, hasPeek, prev := p.tok, p.peekTok, p.hasPeek, p.prev
	defer func() {
		p.l.Restore(state)
		p.tok, p.peekTok, p.hasPeek, p.prev = tok, peekTok, hasPeek, prev
	}()
	p.next()
	p.next()
	return p.tok.Type == lexer.IDENT && !p.tok.NewlineBefore
}

// parseStatement parses a statement (not a declaration).
func (p *Parser) parseStatement() Statement {
	switch p.tok.Type {
	case lexer.LBRACE:
		return p.parseBlockStatement()
	case lexer.SEMICOLON:
		tok := p.tok
		p.next()
		return &EmptyStatement{Token: tok}
	case lexer.VAR:
		tok := p.tok
		p.next()
		decl := p.parseVariableDeclarationList(tok, "var", false)
		p.consumeSemicolon()
		return decl
	case lexer.IF:
		return p.parseIfStatement()
	case lexer.FOR:
		return p.parseForStatement()
	case lexer.WHILE:
		return p.parseWhileStatement()
	case lexer.DO:
		return p.parseDoWhileStatement()
	case lexer.RETURN:
		return p.parseReturnStatement()
	case lexer.BREAK, lexer.CONTINUE:
		return p.parseBreakContinue()
	case lexer.THROW:
		return p.parseThrowStatement()
	case lexer.TRY:
		return p.parseTryStatement()
	case lexer.SWITCH:
		return p.parseSwitchStatement()
	case lexer.WITH:
		return p.parseWithStatement()
	case lexer.DEBUGGER:
		tok := p.tok
		p.next()
		p.consumeSemicolon()
		return &DebuggerStatement{Token: tok}
	case lexer.FUNCTION:
		// Function declarations in statement position are only legal as
		// Annex B if-bodies or labelled items, handled by the callers.
		if p.strict() {
			p.fail("In strict mode code, functions can only be declared at top level or inside a block.")
		}
		p.fail("In non-strict mode code, functions can only be declared at top level, inside a block, or as the body of an if statement.")
	case lexer.CLASS, lexer.CONST:
		p.fail("Lexical declaration cannot appear in a single-statement context")
	case lexer.IDENT:
		if p.tok.Is("let") && p.peek().Type == lexer.LBRACKET {
			p.fail("Lexical declaration cannot appear in a single-statement context")
		}
		if p.peek().Type == lexer.COLON && p.isIdentifierToken(p.tok) {
			return p.parseLabeledStatement()
		}
		if p.tok.Is("async") {
			if next := p.peek(); next.Type == lexer.FUNCTION && !next.NewlineBefore {
				p.fail("Async functions can only be declared at the top level or inside a block.")
			}
		}
	}
	return p.parseExpressionStatement()
}

func (p *Parser) parseBlockStatement() *BlockStatement {
	block := &BlockStatement{Token: p.expect(lexer.LBRACE)}
	p.ctx.blocks++
	defer func() { p.ctx.blocks-- }()
	for !p.is(lexer.RBRACE) {
		if p.is(lexer.EOF) {
			p.unexpected()
		}
		block.Statements = append(block.Statements, p.parseStatementListItem())
	}
	p.next()
	return block
}

func (p *Parser) parseExpressionStatement() Statement {
	tok := p.tok
	expr := p.parseExpression()
	p.consumeSemicolon()
	return &ExpressionStatement{Token: tok, Expression: expr}
}

// parseVariableDeclarationList parses the declarators after var/let/const.
// In a for-statement head, initializers are optional for all kinds.
func (p *Parser) parseVariableDeclarationList(tok lexer.Token, kind string, inForHead bool) *VariableDeclaration {
	decl := &VariableDeclaration{Token: tok, Kind: kind}
	for {
		dtok := p.tok
		var target Expression
		if p.is(lexer.LBRACKET) || p.is(lexer.LBRACE) {
			if decl.IsUsing() {
				p.fail("Using declarations may not have binding patterns")
			}
			target = p.parseBindingPattern()
		} else {
			id := p.parseBindingIdentifier()
			if kind != "var" && id.Value == "let" {
				p.failAt(dtok, "let is disallowed as a lexically bound name")
			}
			target = id
		}
		d := &VariableDeclarator{Token: dtok, Target: target}
		if p.eat(lexer.ASSIGN) {
			d.Init = p.parseAssignment()
		} else if !inForHead {
			if kind == "const" {
				p.fail("Missing initializer in const declaration")
			}
			if decl.IsUsing() {
				p.fail("Missing initializer in %s declaration", kind)
			}
			if _, ok := target.(*Identifier); !ok {
				p.fail("Missing initializer in destructuring declaration")
			}
		}
		decl.Declarations = append(decl.Declarations, d)
		if !p.eat(lexer.COMMA) {
			break
		}
	}
	if decl.IsUsing() {
		seen := map[string]bool{}
		for _, d := range decl.Declarations {
			name := d.Target.(*Identifier).Value
			if seen[name] {
				p.failAt(d.Token, "Identifier '%s' has already been declared", name)
			}
			seen[name] = true
		}
	}
	return decl
}

func (p *Parser) parseLexicalDeclaration(consumeSemi bool) *VariableDeclaration {
	tok := p.tok
	kind := "let"
	if tok.Type == lexer.CONST {
		kind = "const"
	}
	p.next()
	decl := p.parseVariableDeclarationList(tok, kind, false)
	if consumeSemi {
		p.consumeSemicolon()
	}
	return decl
}

func (p *Parser) parseUsingDeclaration(await bool) *VariableDeclaration {
	tok := p.tok
	kind := "using"
	if await {
		kind = "await using"
		p.next()
	}
	p.next()
	decl := p.parseVariableDeclarationList(tok, kind, false)
	if p.ctx.parent == nil && p.ctx.blocks == 0 && p.opts.Mode == ModeScript {
		p.failAt(tok, "Using declarations are not allowed at the top level of a script")
	}
	p.consumeSemicolon()
	return decl
}

func (p *Parser) parseIfStatement() Statement {
	stmt := &IfStatement{Token: p.expect(lexer.IF)}
	p.expect(lexer.LPAREN)
	stmt.Test = p.parseExpression()
	p.expect(lexer.RPAREN)
	stmt.Consequent = p.parseIfBody()
	if p.eat(lexer.ELSE) {
		stmt.Alternate = p.parseIfBody()
	}
	return stmt
}

// parseIfBody allows a plain function declaration as an if body in sloppy
// mode, treating it as if it were wrapped in a block.
func (p *Parser) parseIfBody() Statement {
	if p.is(lexer.FUNCTION) && !p.strict() {
		tok := p.tok
		fn := p.parseFunctionDeclaration(false, tok)
		if f := fn.(*FunctionDeclaration).Function; f.IsGenerator || f.IsAsync {
			p.failAt(tok, "Generators can only be declared at the top level or inside a block.")
		}
		return &BlockStatement{Token: tok, Statements: []Statement{fn}}
	}
	return p.parseStatement()
}

func (p *Parser) parseLoopBody() Statement {
	p.ctx.breakable++
	p.ctx.loops++
	defer func() {
		p.ctx.breakable--
		p.ctx.loops--
	}()
	return p.parseStatement()
}

func (p *Parser) parseWhileStatement() Statement {
	stmt := &WhileStatement{Token: p.expect(lexer.WHILE)}
	p.expect(lexer.LPAREN)
	stmt.Test = p.parseExpression()
	p.expect(lexer.RPAREN)
	stmt.Body = p.parseLoopBody()
	return stmt
}

func (p *Parser) parseDoWhileStatement() Statement {
	stmt := &DoWhileStatement{Token: p.expect(lexer.DO)}
	stmt.Body = p.parseLoopBody()
	p.expect(lexer.WHILE)
	p.expect(lexer.LPAREN)
	stmt.Test = p.parseExpression()
	p.expect(lexer.RPAREN)
	// A semicolon after do-while is always optional.
	p.eat(lexer.SEMICOLON)
	return stmt
}

func (p *Parser) parseForStatement() Statement {
	tok := p.expect(lexer.FOR)
	isAwait := false
	if p.tok.Is("await") {
		if !p.inAsync() {
			p.fail("Unexpected reserved word")
		}
		if p.ctx.parent == nil && p.opts.Mode == ModeModule {
			p.sawAwait = true
		}
		isAwait = true
		p.next()
	}
	p.expect(lexer.LPAREN)

	var init Node
	switch {
	case p.is(lexer.SEMICOLON):
		// no init
	case p.is(lexer.VAR) || p.is(lexer.CONST) || (p.tok.Is("let") && p.isLetDeclaration()):
		declTok := p.tok
		kind := "var"
		switch {
		case p.is(lexer.CONST):
			kind = "const"
		case p.tok.Is("let"):
			kind = "let"
		}
		p.next()
		var decl *VariableDeclaration
		p.withNoIn(true, func() { decl = p.parseVariableDeclarationList(declTok, kind, true) })
		if p.is(lexer.IN) || p.tok.Is("of") {
			return p.parseForInOfRest(tok, decl, isAwait)
		}
		for _, d := range decl.Declarations {
			if d.Init == nil {
				if kind == "const" {
					p.failAt(d.Token, "Missing initializer in const declaration")
				}
				if _, ok := d.Target.(*Identifier); !ok {
					p.failAt(d.Token, "Missing initializer in destructuring declaration")
				}
			}
		}
		init = decl
	case p.isUsingDeclaration() || p.isAwaitUsingDeclaration():
		declTok := p.tok
		kind := "using"
		if p.tok.Is("await") {
			kind = "await using"
			p.next()
		}
		p.next()
		var decl *VariableDeclaration
		p.withNoIn(true, func() { decl = p.parseVariableDeclarationList(declTok, kind, true) })
		if p.is(lexer.IN) {
			p.fail("The left-hand side of a for-in loop may not be a using declaration")
		}
		if p.tok.Is("of") {
			return p.parseForInOfRest(tok, decl, isAwait)
		}
		for _, d := range decl.Declarations {
			if d.Init == nil {
				p.failAt(d.Token, "Missing initializer in %s declaration", kind)
			}
		}
		init = decl
	default:
		startTok := p.tok
		startsWithLet := p.tok.Is("let")
		startsWithAsync := p.tok.Is("async") && !p.tok.Escaped
		var expr Expression
		p.withNoIn(true, func() { expr = p.parseExpression() })
		if p.is(lexer.IN) || p.tok.Is("of") {
			if p.tok.Is("of") && startsWithLet {
				p.failAt(startTok, "The left-hand side of a for-of loop may not be 'let'.")
			}
			if p.tok.Is("of") && startsWithAsync && !isAwait {
				if id, ok := expr.(*Identifier); ok && id.Value == "async" {
					p.failAt(startTok, "The left-hand side of a for-of loop may not be 'async'.")
				}
			}
			target := p.toAssignmentTarget(expr, false)
			return p.parseForInOfRest(tok, target, isAwait)
		}
		init = expr
	}
	if isAwait {
		p.unexpected()
	}

	stmt := &ForStatement{Token: tok, Init: init}
	p.expect(lexer.SEMICOLON)
	if !p.is(lexer.SEMICOLON) {
		stmt.Test = p.parseExpression()
	}
	p.expect(lexer.SEMICOLON)
	if !p.is(lexer.RPAREN) {
		stmt.Update = p.parseExpression()
	}
	p.expect(lexer.RPAREN)
	stmt.Body = p.parseLoopBody()
	return stmt
}

// parseForInOfRest parses the remainder of a for-in/of statement after the
// left-hand side.
func (p *Parser) parseForInOfRest(tok lexer.Token, left Node, isAwait bool) Statement {
	if decl, ok := left.(*VariableDeclaration); ok {
		if len(decl.Declarations) != 1 {
			p.failAt(decl.Token, "Invalid left-hand side in for-%s loop: Must have a single binding.", p.tok.Value)
		}
		if d := decl.Declarations[0]; d.Init != nil {
			_, isIdent := d.Target.(*Identifier)
			// Annex B allows `for (var x = 1 in o)` in sloppy code.
			if !(p.is(lexer.IN) && decl.Kind == "var" && isIdent && !p.strict()) {
				p.failAt(d.Token, "for-%s loop variable declaration may not have an initializer.", p.tok.Value)
			}
		}
	}
	if p.eat(lexer.IN) {
		if isAwait {
			p.unexpected()
		}
		stmt := &ForInStatement{Token: tok, Left: left}
		stmt.Right = p.parseExpression()
		p.expect(lexer.RPAREN)
		stmt.Body = p.parseLoopBody()
		return stmt
	}
	p.next() // of
	stmt := &ForOfStatement{Token: tok, Left: left, Await: isAwait}
	p.withNoIn(false, func() { stmt.Right = p.parseAssignment() })
	p.expect(lexer.RPAREN)
	stmt.Body = p.parseLoopBody()
	return stmt
}

func (p *Parser) parseReturnStatement() Statement {
	tok := p.expect(lexer.RETURN)
	if !p.ctx.canReturn() {
		p.failAt(tok, "Illegal return statement")
	}
	stmt := &ReturnStatement{Token: tok}
	if !p.is(lexer.SEMICOLON) && !p.is(lexer.RBRACE) && !p.is(lexer.EOF) && !p.tok.NewlineBefore {
		stmt.Argument = p.parseExpression()
	}
	p.consumeSemicolon()
	return stmt
}

// canReturn reports whether `return` is allowed.
func (c *funcContext) canReturn() bool {
	return c.inFunction && !c.classField && !c.staticBlock
}

func (p *Parser) parseBreakContinue() Statement {
	tok := p.tok
	isBreak := tok.Type == lexer.BREAK
	p.next()
	labelName := ""
	if p.tok.Type == lexer.IDENT && !p.tok.NewlineBefore && p.isIdentifierToken(p.tok) {
		labelName = p.tok.Value
		l := p.findLabel(labelName)
		if l == nil {
			p.fail("Undefined label '%s'", labelName)
		}
		if !isBreak && !l.isLoop {
			p.fail("Illegal continue statement: '%s' does not denote an iteration statement", labelName)
		}
		p.next()
	} else if isBreak && p.ctx.breakable == 0 {
		p.failAt(tok, "Illegal break statement")
	} else if !isBreak && p.ctx.loops == 0 {
		p.failAt(tok, "Illegal continue statement: no surrounding iteration statement")
	}
	p.consumeSemicolon()
	if isBreak {
		return &BreakStatement{Token: tok, Label: labelName}
	}
	return &ContinueStatement{Token: tok, Label: labelName}
}

func (p *Parser) parseThrowStatement() Statement {
	tok := p.expect(lexer.THROW)
	if p.tok.NewlineBefore {
		p.fail("Illegal newline after throw")
	}
	stmt := &ThrowStatement{Token: tok, Argument: p.parseExpression()}
	p.consumeSemicolon()
	return stmt
}

func (p *Parser) parseTryStatement() Statement {
	stmt := &TryStatement{Token: p.expect(lexer.TRY)}
	stmt.Block = p.parseBlockStatement()
	if p.eat(lexer.CATCH) {
		if p.eat(lexer.LPAREN) {
			if p.is(lexer.LBRACKET) || p.is(lexer.LBRACE) {
				stmt.Param = p.parseBindingPattern()
			} else {
				stmt.Param = p.parseBindingIdentifier()
			}
			p.expect(lexer.RPAREN)
		}
		stmt.Handler = p.parseBlockStatement()
	}
	if p.eat(lexer.FINALLY) {
		stmt.Finalizer = p.parseBlockStatement()
	}
	if stmt.Handler == nil && stmt.Finalizer == nil {
		p.fail("Missing catch or finally after try")
	}
	return stmt
}

func (p *Parser) parseSwitchStatement() Statement {
	stmt := &SwitchStatement{Token: p.expect(lexer.SWITCH)}
	p.expect(lexer.LPAREN)
	stmt.Discriminant = p.parseExpression()
	p.expect(lexer.RPAREN)
	p.expect(lexer.LBRACE)
	p.ctx.breakable++
	defer func() { p.ctx.breakable-- }()
	sawDefault := false
	for !p.eat(lexer.RBRACE) {
		c := &SwitchCase{Token: p.tok}
		switch {
		case p.eat(lexer.CASE):
			c.Test = p.parseExpression()
		case p.eat(lexer.DEFAULT):
			if sawDefault {
				p.failAt(c.Token, "More than one default clause in switch statement")
			}
			sawDefault = true
		default:
			p.unexpected()
		}
		p.expect(lexer.COLON)
		p.ctx.blocks++
		for !p.is(lexer.CASE) && !p.is(lexer.DEFAULT) && !p.is(lexer.RBRACE) {
			if p.is(lexer.EOF) {
				p.unexpected()
			}
			c.Consequent = append(c.Consequent, p.parseStatementListItem())
		}
		p.ctx.blocks--
		stmt.Cases = append(stmt.Cases, c)
	}
	return stmt
}

func (p *Parser) parseWithStatement() Statement {
	tok := p.expect(lexer.WITH)
	if p.strict() {
		p.failAt(tok, "Strict mode code may not include a with statement")
	}
	stmt := &WithStatement{Token: tok}
	p.expect(lexer.LPAREN)
	stmt.Object = p.parseExpression()
	p.expect(lexer.RPAREN)
	stmt.Body = p.parseStatement()
	return stmt
}

func (p *Parser) parseLabeledStatement() Statement {
	tok := p.tok
	name := p.tok.Value
	if p.findLabel(name) != nil {
		p.fail("Label '%s' has already been declared", name)
	}
	p.next()
	p.expect(lexer.COLON)

	isLoop := p.is(lexer.FOR) || p.is(lexer.WHILE) || p.is(lexer.DO)
	// A label in front of another label inherits its loop-ness.
	if !isLoop && p.tok.Type == lexer.IDENT && p.peek().Type == lexer.COLON {
		isLoop = p.labelChainEndsInLoop()
	}
	p.ctx.labels = append(p.ctx.labels, label{name: name, isLoop: isLoop})
	p.ctx.breakable++
	defer func() {
		p.ctx.labels = p.ctx.labels[:len(p.ctx.labels)-1]
		p.ctx.breakable--
	}()

	var body Statement
	if p.is(lexer.FUNCTION) {
		if p.strict() {
			p.fail("In strict mode code, functions can only be declared at top level or inside a block.")
		}
		body = p.parseFunctionDeclaration(false, p.tok)
		if f := body.(*FunctionDeclaration).Function; f.IsGenerator || f.IsAsync {
			p.failAt(f.Token, "Generators can only be declared at the top level or inside a block.")
		}
	} else {
		body = p.parseStatement()
	}
	return &LabeledStatement{Token: tok, Label: name, Body: body}
}

// labelChainEndsInLoop scans ahead over `a: b: c:` to see whether the
// labelled statement is an iteration statement.
func (p *Parser) labelChainEndsInLoop() bool {
	state := p.l.Snapshot()
	tok, peekTok, hasPeek, prev := p.tok, p.peekTok, p.hasPeek, p.prev
	defer func() {
		p.l.Restore(state)
		p.tok, p.peekTok, p.hasPeek, p.prev = tok, peekTok, hasPeek, prev
	}()
	for p.tok.Type == lexer.IDENT && p.peek().Type == lexer.COLON {
		p.next()
		p.next()
	}
	return p.is(lexer.FOR) || p.is(lexer.WHILE) || p.is(lexer.DO)
}
