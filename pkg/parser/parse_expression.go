package parser

import (
	"github.com/skua-js/skua/pkg/lexer"
)

// arrowParams is the cover node produced for `(a, b)`, `()` or `async(a)`
// when an arrow follows. It never survives into the final AST.
type arrowParams struct {
	Token  lexer.Token
	Params []Expression
	Async  bool
}

func (a *arrowParams) expressionNode()      {}
func (a *arrowParams) TokenLiteral() string { return a.Token.Literal }
func (a *arrowParams) Pos() lexer.Token     { return a.Token }
func (a *arrowParams) String() string       { return "(...) =>" }

var assignOperators = map[lexer.TokenType]bool{
	lexer.ASSIGN:              true,
	lexer.PLUS_ASSIGN:         true,
	lexer.MINUS_ASSIGN:        true,
	lexer.ASTERISK_ASSIGN:     true,
	lexer.SLASH_ASSIGN:        true,
	lexer.REMAINDER_ASSIGN:    true,
	lexer.EXPONENT_ASSIGN:     true,
	lexer.LEFT_SHIFT_ASSIGN:   true,
	lexer.RIGHT_SHIFT_ASSIGN:  true,
	lexer.URIGHT_SHIFT_ASSIGN: true,
	lexer.AND_ASSIGN:          true,
	lexer.OR_ASSIGN:           true,
	lexer.XOR_ASSIGN:          true,
	lexer.LOGICAL_AND_ASSIGN:  true,
	lexer.LOGICAL_OR_ASSIGN:   true,
	lexer.COALESCE_ASSIGN:     true,
}

// parseExpression parses a comma-separated expression.
func (p *Parser) parseExpression() Expression {
	tok := p.tok
	expr := p.parseAssignment()
	if !p.is(lexer.COMMA) {
		return expr
	}
	seq := &SequenceExpression{Token: tok, Expressions: []Expression{expr}}
	for p.eat(lexer.COMMA) {
		seq.Expressions = append(seq.Expressions, p.parseAssignment())
	}
	return seq
}

// parseAssignment parses an AssignmentExpression, including arrows and yield.
func (p *Parser) parseAssignment() Expression {
	if p.tok.Is("yield") && p.inGenerator() {
		return p.parseYield()
	}
	start := p.tok

	// async x => ...
	if p.tok.Is("async") {
		if next := p.peek(); next.Type == lexer.IDENT && !next.NewlineBefore {
			p.next()
			savedAsync := p.ctx.isAsync
			p.ctx.isAsync = true
			param := p.parseBindingIdentifier()
			p.ctx.isAsync = savedAsync
			if !p.is(lexer.ARROW) || p.tok.NewlineBefore {
				p.unexpected()
			}
			return p.parseArrowFunction(start, []Expression{param}, true)
		}
	}
	// x => ...
	if p.tok.Type == lexer.IDENT && p.peek().Type == lexer.ARROW && p.isIdentifierToken(p.tok) {
		if p.peek().NewlineBefore {
			p.next()
			p.unexpected()
		}
		param := p.parseBindingIdentifier()
		return p.parseArrowFunction(start, []Expression{param}, false)
	}

	left := p.parseConditional()

	if p.is(lexer.ARROW) {
		ap, ok := left.(*arrowParams)
		if !ok || p.tok.NewlineBefore {
			p.unexpected()
		}
		return p.parseArrowFunction(start, ap.Params, ap.Async)
	}

	if !assignOperators[p.tok.Type] {
		return left
	}
	opTok := p.tok
	var target Expression
	if opTok.Type == lexer.ASSIGN {
		target = p.toAssignmentTarget(left, false)
	} else {
		target = p.checkSimpleTarget(left, "Invalid left-hand side in assignment")
	}
	p.next()
	value := p.parseAssignment()
	return &AssignmentExpression{Token: opTok, Operator: opTok.Literal, Target: target, Value: value}
}

func (p *Parser) parseYield() Expression {
	tok := p.tok
	if p.ctx.inParams {
		p.fail("Yield expression not allowed in formal parameter")
	}
	p.next()
	y := &YieldExpression{Token: tok}
	if p.tok.NewlineBefore {
		return y
	}
	if p.eat(lexer.ASTERISK) {
		y.Delegate = true
		y.Argument = p.parseAssignment()
		return y
	}
	switch p.tok.Type {
	case lexer.RPAREN, lexer.RBRACKET, lexer.RBRACE, lexer.COMMA, lexer.SEMICOLON,
		lexer.COLON, lexer.EOF, lexer.IN, lexer.QUESTION:
		return y
	}
	if p.tok.Is("of") {
		return y
	}
	y.Argument = p.parseAssignment()
	return y
}

func (p *Parser) parseConditional() Expression {
	test := p.parseBinary(COALESCE)
	if _, isArrow := test.(*arrowParams); isArrow {
		return test
	}
	if !p.is(lexer.QUESTION) {
		return test
	}
	qTok := p.tok
	p.next()
	var consequent Expression
	p.withNoIn(false, func() { consequent = p.parseAssignment() })
	p.expect(lexer.COLON)
	alternate := p.parseAssignment()
	return &ConditionalExpression{Token: qTok, Test: test, Consequent: consequent, Alternate: alternate}
}

// parseBinary is a precedence-climbing parser over the binary operators.
func (p *Parser) parseBinary(minPrec int) Expression {
	var left Expression
	if p.is(lexer.PRIVATE_IDENT) {
		tok := p.tok
		p.next()
		if !p.is(lexer.IN) || p.noIn || minPrec > RELATIONAL {
			p.failAt(tok, "Unexpected identifier '#%s'", tok.Value)
		}
		id := &PrivateIdentifier{Token: tok, Name: tok.Value}
		p.usePrivateName(id)
		left = id
	} else {
		left = p.parseUnary()
	}
	for {
		prec, ok := precedences[p.tok.Type]
		if !ok || prec < minPrec {
			return left
		}
		if p.is(lexer.IN) && p.noIn {
			return left
		}
		if _, isArrow := left.(*arrowParams); isArrow {
			return left
		}
		opTok := p.tok
		p.next()
		var right Expression
		if opTok.Type == lexer.EXPONENT {
			switch left.(type) {
			case *UnaryExpression, *AwaitExpression:
				p.failAt(opTok, "Unary operator used immediately before exponentiation expression. Parenthesis must be used to disambiguate operator precedence")
			}
			right = p.parseBinary(prec)
		} else {
			right = p.parseBinary(prec + 1)
		}
		switch opTok.Type {
		case lexer.LOGICAL_AND, lexer.LOGICAL_OR, lexer.COALESCE:
			p.checkCoalesceMix(opTok, left, right)
			left = &LogicalExpression{Token: opTok, Operator: opTok.Literal, Left: left, Right: right}
		default:
			left = &BinaryExpression{Token: opTok, Operator: opTok.Literal, Left: left, Right: right}
		}
	}
}

// checkCoalesceMix rejects ?? mixed with && or || without parentheses.
func (p *Parser) checkCoalesceMix(op lexer.Token, left, right Expression) {
	isCoalesce := op.Type == lexer.COALESCE
	for _, side := range []Expression{left, right} {
		le, ok := side.(*LogicalExpression)
		if !ok {
			continue
		}
		if (le.Operator == "??") != isCoalesce {
			p.failAt(op, "Unexpected token '%s'", op.Literal)
		}
	}
}

func (p *Parser) parseUnary() Expression {
	tok := p.tok
	switch tok.Type {
	case lexer.DELETE, lexer.VOID, lexer.TYPEOF, lexer.PLUS, lexer.MINUS, lexer.BANG, lexer.BITWISE_NOT:
		p.next()
		operand := p.parseUnary()
		if tok.Type == lexer.DELETE {
			target := unparen(operand)
			if _, ok := target.(*Identifier); ok && p.strict() {
				p.failAt(tok, "Delete of an unqualified identifier in strict mode.")
			}
			if me := memberOf(target); me != nil {
				if _, ok := me.Property.(*PrivateIdentifier); ok {
					p.failAt(tok, "Private fields can not be deleted")
				}
			}
		}
		return &UnaryExpression{Token: tok, Operator: tok.Literal, Operand: operand}
	case lexer.INC, lexer.DEC:
		p.next()
		operandTok := p.tok
		operand := p.parseUnary()
		msg := "Invalid left-hand side expression in prefix operation"
		target := p.checkSimpleTargetAt(operandTok, operand, msg)
		return &UpdateExpression{Token: tok, Operator: tok.Literal, Prefix: true, Argument: target}
	case lexer.IDENT:
		if tok.Is("await") && p.inAsync() {
			return p.parseAwait()
		}
	}
	expr := p.parseCallOrMember()
	if (p.is(lexer.INC) || p.is(lexer.DEC)) && !p.tok.NewlineBefore {
		if _, isArrow := expr.(*arrowParams); isArrow {
			return expr
		}
		opTok := p.tok
		target := p.checkSimpleTargetAt(tok, expr, "Invalid left-hand side expression in postfix operation")
		p.next()
		return &UpdateExpression{Token: opTok, Operator: opTok.Literal, Argument: target}
	}
	return expr
}

func (p *Parser) parseAwait() Expression {
	tok := p.tok
	if p.ctx.inParams {
		p.fail("Illegal await-expression in formal parameters of async function")
	}
	if p.ctx.parent == nil && p.opts.Mode == ModeModule {
		p.sawAwait = true
	}
	p.next()
	return &AwaitExpression{Token: tok, Argument: p.parseUnary()}
}

// unparen strips grouping parentheses.
func unparen(e Expression) Expression {
	for {
		pe, ok := e.(*ParenthesizedExpression)
		if !ok {
			return e
		}
		e = pe.Expression
	}
}

func memberOf(e Expression) *MemberExpression {
	if oc, ok := e.(*OptionalChain); ok {
		e = oc.Expression
	}
	me, _ := e.(*MemberExpression)
	return me
}

// --- Left-hand-side expressions ---

func (p *Parser) parseCallOrMember() Expression {
	var expr Expression
	switch p.tok.Type {
	case lexer.NEW:
		expr = p.parseNew()
	case lexer.SUPER:
		expr = p.parseSuper()
	case lexer.IMPORT:
		expr = p.parseImportExpression()
	default:
		expr = p.parsePrimary()
		if _, isArrow := expr.(*arrowParams); isArrow {
			return expr
		}
	}
	return p.parseChain(expr, true)
}

// parseLeftHandSide parses a LeftHandSideExpression, as used by `extends`.
func (p *Parser) parseLeftHandSide() Expression {
	expr := p.parseCallOrMember()
	if _, isArrow := expr.(*arrowParams); isArrow {
		p.unexpected()
	}
	return expr
}

// parseChain parses member accesses, calls, tagged templates and optional
// links after expr. With allowCall false it stops at the first argument
// list, as needed for the callee of `new`.
func (p *Parser) parseChain(expr Expression, allowCall bool) Expression {
	optional := false
	chainTok := p.tok
	for {
		switch p.tok.Type {
		case lexer.DOT:
			p.next()
			expr = p.parseMemberName(expr, false)
		case lexer.LBRACKET:
			tok := p.tok
			p.next()
			var prop Expression
			p.withNoIn(false, func() { prop = p.parseExpression() })
			p.expect(lexer.RBRACKET)
			expr = &MemberExpression{Token: tok, Object: expr, Property: prop, Computed: true}
		case lexer.TEMPLATE:
			if optional {
				p.fail("Invalid tagged template on optional chain")
			}
			tok := p.tok
			quasi := p.parseTemplateLiteral(true)
			expr = &TaggedTemplate{Token: tok, Tag: expr, Quasi: quasi}
		case lexer.LPAREN:
			if !allowCall {
				return expr
			}
			if id, ok := expr.(*Identifier); ok && id.Token.Is("async") && !p.tok.NewlineBefore && !optional && id.Token.EndPos == p.prev.EndPos {
				tok := p.tok
				args := p.parseArguments()
				if p.is(lexer.ARROW) && !p.tok.NewlineBefore {
					return &arrowParams{Token: id.Token, Params: args, Async: true}
				}
				expr = &CallExpression{Token: tok, Callee: expr, Arguments: args}
				continue
			}
			tok := p.tok
			expr = &CallExpression{Token: tok, Callee: expr, Arguments: p.parseArguments()}
		case lexer.OPTIONAL:
			if !allowCall {
				p.fail("Invalid optional chain from new expression")
			}
			if _, isSuper := expr.(*SuperExpression); isSuper {
				p.fail("'super' keyword unexpected here")
			}
			tok := p.tok
			p.next()
			optional = true
			switch p.tok.Type {
			case lexer.LPAREN:
				expr = &CallExpression{Token: tok, Callee: expr, Arguments: p.parseArguments(), Optional: true}
			case lexer.LBRACKET:
				p.next()
				var prop Expression
				p.withNoIn(false, func() { prop = p.parseExpression() })
				p.expect(lexer.RBRACKET)
				expr = &MemberExpression{Token: tok, Object: expr, Property: prop, Computed: true, Optional: true}
			case lexer.TEMPLATE:
				p.fail("Invalid tagged template on optional chain")
			default:
				expr = p.parseMemberName(expr, true)
			}
		default:
			if optional {
				return &OptionalChain{Token: chainTok, Expression: expr}
			}
			return expr
		}
	}
}

// parseMemberName parses the name after `.` or `?.`.
func (p *Parser) parseMemberName(object Expression, optional bool) Expression {
	tok := p.tok
	if tok.Type == lexer.PRIVATE_IDENT {
		if _, isSuper := object.(*SuperExpression); isSuper {
			p.fail("Unexpected private field")
		}
		p.next()
		id := &PrivateIdentifier{Token: tok, Name: tok.Value}
		p.usePrivateName(id)
		return &MemberExpression{Token: tok, Object: object, Property: id, Optional: optional}
	}
	if !tok.IsIdentifierName() {
		p.unexpected()
	}
	p.next()
	return &MemberExpression{Token: tok, Object: object, Property: &Identifier{Token: tok, Value: tok.Value}, Optional: optional}
}

func (p *Parser) parseArguments() []Expression {
	p.expect(lexer.LPAREN)
	var args []Expression
	p.withNoIn(false, func() {
		for !p.is(lexer.RPAREN) {
			if p.is(lexer.SPREAD) {
				tok := p.tok
				p.next()
				args = append(args, &SpreadElement{Token: tok, Argument: p.parseAssignment()})
			} else {
				args = append(args, p.parseAssignment())
			}
			if !p.is(lexer.RPAREN) {
				p.expect(lexer.COMMA)
			}
		}
	})
	p.next()
	return args
}

func (p *Parser) parseNew() Expression {
	tok := p.expect(lexer.NEW)
	if p.is(lexer.DOT) {
		p.next()
		if !p.tok.Is("target") {
			p.unexpected()
		}
		if !p.ctx.newTarget {
			p.fail("new.target expression is not allowed here")
		}
		p.next()
		return &MetaProperty{Token: tok, Meta: "new", Property: "target"}
	}
	var callee Expression
	switch p.tok.Type {
	case lexer.NEW:
		callee = p.parseNew()
	case lexer.SUPER:
		callee = p.parseSuper()
	case lexer.IMPORT:
		next := p.peek()
		if next.Type == lexer.LPAREN {
			p.fail("Cannot use new with import")
		}
		callee = p.parseImportExpression()
	default:
		callee = p.parsePrimary()
		if _, isArrow := callee.(*arrowParams); isArrow {
			p.unexpected()
		}
	}
	callee = p.parseChain(callee, false)
	ne := &NewExpression{Token: tok, Callee: callee}
	if p.is(lexer.LPAREN) {
		ne.Arguments = p.parseArguments()
	}
	return ne
}

func (p *Parser) parseSuper() Expression {
	tok := p.expect(lexer.SUPER)
	switch p.tok.Type {
	case lexer.LPAREN:
		if !p.ctx.superCall {
			p.failAt(tok, "'super' keyword unexpected here")
		}
	case lexer.DOT, lexer.LBRACKET:
		if !p.ctx.superProp {
			p.failAt(tok, "'super' keyword unexpected here")
		}
	default:
		p.failAt(tok, "'super' keyword unexpected here")
	}
	return &SuperExpression{Token: tok}
}

// parseImportExpression parses import(...) and import.meta.
func (p *Parser) parseImportExpression() Expression {
	tok := p.expect(lexer.IMPORT)
	if p.eat(lexer.DOT) {
		if !p.tok.Is("meta") {
			p.unexpected()
		}
		if p.opts.Mode != ModeModule {
			p.failAt(tok, "Cannot use 'import.meta' outside a module")
		}
		p.next()
		return &MetaProperty{Token: tok, Meta: "import", Property: "meta"}
	}
	p.expect(lexer.LPAREN)
	ic := &ImportCall{Token: tok}
	p.withNoIn(false, func() {
		if p.is(lexer.RPAREN) {
			p.unexpected()
		}
		ic.Source = p.parseAssignment()
		if p.eat(lexer.COMMA) && !p.is(lexer.RPAREN) {
			ic.Options = p.parseAssignment()
			p.eat(lexer.COMMA)
		}
	})
	p.expect(lexer.RPAREN)
	return ic
}

// --- Primary expressions ---

func (p *Parser) parsePrimary() Expression {
	tok := p.tok
	switch tok.Type {
	case lexer.THIS:
		p.next()
		return &ThisExpression{Token: tok}
	case lexer.IDENT:
		if tok.Is("async") {
			if next := p.peek(); next.Type == lexer.FUNCTION && !next.NewlineBefore {
				p.next()
				return p.parseFunctionLiteral(tok, true, true, true)
			}
		}
		return p.parseIdentifierReference()
	case lexer.NUMBER:
		p.checkLegacyOctal(tok)
		p.next()
		return &NumberLiteral{Token: tok, Value: tok.Number}
	case lexer.BIGINT:
		p.next()
		return &BigIntLiteral{Token: tok, Digits: tok.Value}
	case lexer.STRING:
		p.checkLegacyOctal(tok)
		p.next()
		return &StringLiteral{Token: tok, Value: tok.Value}
	case lexer.TRUE, lexer.FALSE:
		p.next()
		return &BooleanLiteral{Token: tok, Value: tok.Type == lexer.TRUE}
	case lexer.NULL:
		p.next()
		return &NullLiteral{Token: tok}
	case lexer.TEMPLATE:
		return p.parseTemplateLiteral(false)
	case lexer.SLASH, lexer.SLASH_ASSIGN:
		p.tok = p.l.RescanRegex(tok)
		p.hasPeek = false
		if p.tok.Type == lexer.ILLEGAL {
			p.fail("%s", p.tok.Value)
		}
		re := &RegExpLiteral{Token: p.tok, Pattern: p.tok.Value, Flags: p.tok.Flags}
		p.next()
		return re
	case lexer.LBRACKET:
		return p.parseArrayLiteral()
	case lexer.LBRACE:
		return p.parseObjectLiteral()
	case lexer.FUNCTION:
		return p.parseFunctionLiteral(tok, false, true, true)
	case lexer.CLASS:
		return p.parseClass(true, true)
	case lexer.LPAREN:
		return p.parseParenthesized()
	case lexer.PRIVATE_IDENT:
		p.fail("Unexpected identifier '#%s'", tok.Value)
	}
	p.unexpected()
	return nil
}

// parseParenthesized parses `( ... )`, which is either a grouping or the
// parameter list of an arrow function.
func (p *Parser) parseParenthesized() Expression {
	tok := p.expect(lexer.LPAREN)
	if p.eat(lexer.RPAREN) {
		if !p.is(lexer.ARROW) {
			p.unexpected()
		}
		return &arrowParams{Token: tok}
	}
	var items []Expression
	trailingComma := false
	var rest *RestElement
	p.withNoIn(false, func() {
		for {
			if p.is(lexer.SPREAD) {
				spreadTok := p.tok
				p.next()
				rest = &RestElement{Token: spreadTok, Target: p.parseBindingTarget()}
				if p.is(lexer.ASSIGN) {
					p.fail("Rest parameter may not have a default initializer")
				}
				if !p.is(lexer.RPAREN) {
					p.fail("Rest parameter must be last formal parameter")
				}
				return
			}
			items = append(items, p.parseAssignment())
			if !p.eat(lexer.COMMA) {
				return
			}
			if p.is(lexer.RPAREN) {
				trailingComma = true
				return
			}
		}
	})
	p.expect(lexer.RPAREN)
	if rest != nil || trailingComma || p.is(lexer.ARROW) {
		if !p.is(lexer.ARROW) {
			p.unexpected()
		}
		params := items
		if rest != nil {
			params = append(params, rest)
		}
		return &arrowParams{Token: tok, Params: params}
	}
	var inner Expression
	if len(items) == 1 {
		inner = items[0]
	} else {
		inner = &SequenceExpression{Token: items[0].Pos(), Expressions: items}
	}
	return &ParenthesizedExpression{Token: tok, Expression: inner}
}

func (p *Parser) parseArrayLiteral() Expression {
	arr := &ArrayLiteral{Token: p.expect(lexer.LBRACKET)}
	p.withNoIn(false, func() {
		for !p.is(lexer.RBRACKET) {
			if p.is(lexer.COMMA) {
				p.next()
				arr.Elements = append(arr.Elements, nil)
				continue
			}
			var el Expression
			isSpread := false
			if p.is(lexer.SPREAD) {
				tok := p.tok
				p.next()
				el = &SpreadElement{Token: tok, Argument: p.parseAssignment()}
				isSpread = true
			} else {
				el = p.parseAssignment()
			}
			arr.Elements = append(arr.Elements, el)
			if p.is(lexer.RBRACKET) {
				break
			}
			p.expect(lexer.COMMA)
			if isSpread {
				arr.TrailingCommaAfterSpread = true
			} else {
				arr.TrailingCommaAfterSpread = false
			}
		}
	})
	p.expect(lexer.RBRACKET)
	if n := len(arr.Elements); n == 0 || !isSpreadElement(arr.Elements[n-1]) {
		arr.TrailingCommaAfterSpread = false
	}
	return arr
}

func isSpreadElement(e Expression) bool {
	_, ok := e.(*SpreadElement)
	return ok
}

func (p *Parser) parseObjectLiteral() Expression {
	obj := &ObjectLiteral{Token: p.expect(lexer.LBRACE)}
	sawProto := false
	p.withNoIn(false, func() {
		for !p.is(lexer.RBRACE) {
			prop := p.parseObjectProperty()
			if prop.Kind == PropertyProto {
				if sawProto {
					p.failAt(prop.Token, "Duplicate __proto__ fields are not allowed in object literals")
				}
				sawProto = true
			}
			obj.Properties = append(obj.Properties, prop)
			if !p.is(lexer.RBRACE) {
				p.expect(lexer.COMMA)
			}
		}
	})
	p.next()
	return obj
}

// isPropertyNameEnd reports whether the token after a contextual word such as
// get, set, async or static means the word is itself the property name.
func isPropertyNameEnd(t lexer.Token) bool {
	switch t.Type {
	case lexer.COMMA, lexer.COLON, lexer.LPAREN, lexer.RBRACE, lexer.ASSIGN, lexer.SEMICOLON, lexer.EOF:
		return true
	}
	return false
}

func (p *Parser) parseObjectProperty() *Property {
	tok := p.tok
	if p.eat(lexer.SPREAD) {
		return &Property{Token: tok, Kind: PropertySpread, Value: p.parseAssignment()}
	}
	isAsync, isGenerator := false, false
	kind := PropertyInit
	if p.tok.Is("async") {
		if next := p.peek(); !isPropertyNameEnd(next) && !next.NewlineBefore {
			p.next()
			isAsync = true
		}
	}
	if p.eat(lexer.ASTERISK) {
		isGenerator = true
	}
	if !isAsync && !isGenerator && (p.tok.Is("get") || p.tok.Is("set")) {
		if next := p.peek(); !isPropertyNameEnd(next) {
			if p.tok.Value == "get" {
				kind = PropertyGet
			} else {
				kind = PropertySet
			}
			p.next()
		}
	}
	keyTok := p.tok
	key, computed := p.parsePropertyName()
	if _, isPrivate := key.(*PrivateIdentifier); isPrivate {
		p.failAt(keyTok, "Unexpected identifier '#%s'", keyTok.Value)
	}
	prop := &Property{Token: tok, Kind: kind, Key: key, Computed: computed}

	if kind == PropertyGet || kind == PropertySet {
		fk := FunctionGetter
		if kind == PropertySet {
			fk = FunctionSetter
		}
		prop.Value = p.parseMethod(tok, fk, false, false)
		return prop
	}
	if isAsync || isGenerator || p.is(lexer.LPAREN) {
		prop.Kind = PropertyMethod
		prop.Value = p.parseMethod(tok, FunctionMethod, isAsync, isGenerator)
		return prop
	}
	if p.eat(lexer.COLON) {
		prop.Value = p.parseAssignment()
		if !computed && propertyKeyName(key) == "__proto__" {
			prop.Kind = PropertyProto
		}
		return prop
	}

	// Shorthand: {a} or the cover form {a = 1}.
	id, ok := key.(*Identifier)
	if !ok || computed || !p.isIdentifierToken(keyTok) {
		if keyTok.Type == lexer.IDENT && (keyTok.Value == "await" || keyTok.Value == "yield" || lexer.IsKeyword(keyTok.Value)) {
			p.failAt(keyTok, "Unexpected reserved word")
		}
		p.failAt(keyTok, "Unexpected token '%s'", p.tok.Literal)
	}
	if keyTok.Value == "arguments" && p.ctx.argumentsForbidden() {
		p.failAt(keyTok, "'arguments' is not allowed in class field initializer or static initialization block")
	}
	ref := &Identifier{Token: id.Token, Value: id.Value}
	prop.Shorthand = true
	if p.is(lexer.ASSIGN) {
		assignTok := p.tok
		p.next()
		prop.Value = &AssignmentPattern{Token: assignTok, Target: ref, Default: p.parseAssignment()}
		return prop
	}
	prop.Value = ref
	return prop
}

// propertyKeyName returns the static name of a non-computed key.
func propertyKeyName(key Expression) string {
	switch k := key.(type) {
	case *Identifier:
		return k.Value
	case *StringLiteral:
		return k.Value
	case *PrivateIdentifier:
		return "#" + k.Name
	}
	return ""
}

// parseTemplateLiteral parses a template starting at the current TEMPLATE
// token. Untagged templates reject malformed escapes.
func (p *Parser) parseTemplateLiteral(tagged bool) *TemplateLiteral {
	tok := p.tok
	tl := &TemplateLiteral{Token: tok}
	for {
		seg := p.tok
		if seg.Type == lexer.ILLEGAL {
			p.fail("%s", seg.Value)
		}
		if seg.Type != lexer.TEMPLATE {
			p.unexpected()
		}
		if !seg.CookedValid && !tagged {
			p.failAt(seg, "Invalid escape sequence in template")
		}
		tl.Quasis = append(tl.Quasis, &TemplateElement{Token: seg, Cooked: seg.Value, CookedValid: seg.CookedValid, Raw: seg.Raw})
		if seg.Tail {
			p.next()
			return tl
		}
		p.next()
		var expr Expression
		p.withNoIn(false, func() { expr = p.parseExpression() })
		tl.Expressions = append(tl.Expressions, expr)
		if !p.is(lexer.RBRACE) {
			p.unexpected()
		}
		p.tok = p.l.RescanTemplateContinuation(p.tok)
		p.hasPeek = false
	}
}

// --- Assignment targets ---

// checkSimpleTarget validates the target of a compound assignment.
func (p *Parser) checkSimpleTarget(expr Expression, msg string) Expression {
	return p.checkSimpleTargetAt(expr.Pos(), expr, msg)
}

func (p *Parser) checkSimpleTargetAt(tok lexer.Token, expr Expression, msg string) Expression {
	target := unparen(expr)
	switch t := target.(type) {
	case *Identifier:
		if p.strict() && (t.Value == "eval" || t.Value == "arguments") {
			p.failAt(t.Token, "Unexpected eval or arguments in strict mode")
		}
		return t
	case *MemberExpression:
		return t
	}
	p.failAt(tok, "%s", msg)
	return nil
}

// toAssignmentTarget converts an expression parsed under the cover grammar
// into an assignment target. With binding set the target must be a binding
// (identifiers and nested patterns only), as in arrow parameters.
func (p *Parser) toAssignmentTarget(expr Expression, binding bool) Expression {
	switch e := expr.(type) {
	case *Identifier:
		if binding {
			p.checkBindingName(e.Token, e.Value)
		} else if p.strict() && (e.Value == "eval" || e.Value == "arguments") {
			p.failAt(e.Token, "Unexpected eval or arguments in strict mode")
		}
		return e
	case *MemberExpression:
		if binding {
			p.failAt(e.Token, "Invalid destructuring assignment target")
		}
		return e
	case *ArrayLiteral:
		pat := &ArrayPattern{Token: e.Token}
		for i, el := range e.Elements {
			if el == nil {
				pat.Elements = append(pat.Elements, nil)
				continue
			}
			if sp, ok := el.(*SpreadElement); ok {
				if i != len(e.Elements)-1 || e.TrailingCommaAfterSpread {
					p.failAt(sp.Token, "Rest element must be last element")
				}
				target := p.toAssignmentTarget(sp.Argument, binding)
				if _, hasDefault := target.(*AssignmentPattern); hasDefault {
					p.failAt(sp.Token, "Invalid destructuring assignment target")
				}
				pat.Elements = append(pat.Elements, &RestElement{Token: sp.Token, Target: target})
				continue
			}
			pat.Elements = append(pat.Elements, p.toAssignmentElement(el, binding))
		}
		return pat
	case *ObjectLiteral:
		pat := &ObjectPattern{Token: e.Token}
		for i, prop := range e.Properties {
			switch prop.Kind {
			case PropertySpread:
				if i != len(e.Properties)-1 {
					p.failAt(prop.Token, "Rest element must be last element")
				}
				target := p.toAssignmentTarget(prop.Value, binding)
				switch target.(type) {
				case *Identifier, *MemberExpression:
				default:
					p.failAt(prop.Token, "`...` must be followed by an assignable reference in assignment contexts")
				}
				pat.Rest = target
			case PropertyInit, PropertyProto:
				pat.Properties = append(pat.Properties, &PatternProperty{
					Token:    prop.Token,
					Key:      prop.Key,
					Computed: prop.Computed,
					Value:    p.toAssignmentElement(prop.Value, binding),
				})
			default:
				p.failAt(prop.Token, "Invalid destructuring assignment target")
			}
		}
		return pat
	case *AssignmentPattern:
		e.Target = p.toAssignmentTarget(e.Target, binding)
		return e
	case *ArrayPattern:
		if binding {
			for _, el := range e.Elements {
				if el != nil {
					p.toAssignmentTarget(el, true)
				}
			}
		}
		return e
	case *ObjectPattern:
		if binding {
			for _, prop := range e.Properties {
				p.toAssignmentTarget(prop.Value, true)
			}
			if e.Rest != nil {
				p.toAssignmentTarget(e.Rest, true)
			}
		}
		return e
	case *RestElement:
		e.Target = p.toAssignmentTarget(e.Target, binding)
		return e
	case *ParenthesizedExpression:
		if !binding {
			switch inner := unparen(e).(type) {
			case *Identifier, *MemberExpression:
				return p.toAssignmentTarget(inner, false)
			}
		}
	}
	if binding {
		p.failAt(expr.Pos(), "Invalid destructuring assignment target")
	}
	p.failAt(expr.Pos(), "Invalid left-hand side in assignment")
	return nil
}

// toAssignmentElement converts one element of a pattern, turning `x = d`
// into a defaulted target.
func (p *Parser) toAssignmentElement(el Expression, binding bool) Expression {
	if ae, ok := el.(*AssignmentExpression); ok {
		if ae.Operator != "=" {
			p.failAt(ae.Token, "Invalid destructuring assignment target")
		}
		return &AssignmentPattern{Token: ae.Token, Target: p.toAssignmentTarget(ae.Target, binding), Default: ae.Value}
	}
	return p.toAssignmentTarget(el, binding)
}
