package parser

import (
	"github.com/skua-js/skua/pkg/errors"
	"github.com/skua-js/skua/pkg/lexer"
	"github.com/skua-js/skua/pkg/source"
)

// pushContext enters a new function body. Arrows inherit the this-related
// permissions of the enclosing function.
func (p *Parser) pushContext(kind FunctionKind, isAsync, isGenerator bool) {
	parent := p.ctx
	c := &funcContext{
		parent:      parent,
		strict:      parent.strict,
		isAsync:     isAsync,
		isGenerator: isGenerator,
		inFunction:  true,
	}
	switch kind {
	case FunctionArrow:
		c.isArrow = true
		c.newTarget = parent.newTarget
		c.superProp = parent.superProp
		c.superCall = parent.superCall
	case FunctionMethod, FunctionGetter, FunctionSetter, FunctionClassConstructor:
		c.newTarget, c.superProp = true, true
	case FunctionDerivedConstructor:
		c.newTarget, c.superProp, c.superCall = true, true, true
	case FunctionClassFieldInit:
		c.newTarget, c.superProp, c.classField = true, true, true
	default:
		c.newTarget = true
	}
	p.ctx = c
}

func (p *Parser) popContext() { p.ctx = p.ctx.parent }

// parseFunctionDeclaration parses `function name(...) {...}`; start is the
// `function` or `async` token.
func (p *Parser) parseFunctionDeclaration(isAsync bool, start lexer.Token) Statement {
	return &FunctionDeclaration{Function: p.parseFunctionLiteral(start, isAsync, false, false)}
}

// parseFunctionLiteral parses a function from the `function` keyword on.
func (p *Parser) parseFunctionLiteral(start lexer.Token, isAsync, isExpr, nameOptional bool) *FunctionLiteral {
	p.expect(lexer.FUNCTION)
	fn := &FunctionLiteral{
		Token:        start,
		IsAsync:      isAsync,
		Start:        start.StartPos,
		IsExpression: isExpr,
	}
	if p.eat(lexer.ASTERISK) {
		fn.IsGenerator = true
	}
	if !p.is(lexer.LPAREN) {
		if isExpr {
			// The name of a function expression follows the function's own
			// yield/await rules.
			savedAsync, savedGen := p.ctx.isAsync, p.ctx.isGenerator
			p.ctx.isAsync, p.ctx.isGenerator = isAsync, fn.IsGenerator
			fn.Name = p.parseBindingIdentifier()
			p.ctx.isAsync, p.ctx.isGenerator = savedAsync, savedGen
		} else {
			fn.Name = p.parseBindingIdentifier()
		}
	} else if !isExpr && !nameOptional {
		p.unexpected()
	}
	p.pushContext(FunctionNormal, isAsync, fn.IsGenerator)
	defer p.popContext()
	p.parseFormalParams(fn)
	p.parseFunctionBody(fn)
	return fn
}

// parseMethod parses the parameters and body of an object or class method.
func (p *Parser) parseMethod(start lexer.Token, kind FunctionKind, isAsync, isGenerator bool) *FunctionLiteral {
	fn := &FunctionLiteral{
		Token:       start,
		Kind:        kind,
		IsAsync:     isAsync,
		IsGenerator: isGenerator,
		Start:       start.StartPos,
	}
	p.pushContext(kind, isAsync, isGenerator)
	defer p.popContext()
	p.parseFormalParams(fn)
	switch kind {
	case FunctionGetter:
		if len(fn.Params) != 0 {
			p.failAt(start, "Getter must not have any formal parameters.")
		}
	case FunctionSetter:
		if len(fn.Params) != 1 {
			p.failAt(start, "Setter must have exactly one formal parameter.")
		}
		if _, isRest := fn.Params[0].(*RestElement); isRest {
			p.failAt(start, "Setter function argument must not be a rest parameter")
		}
	}
	p.parseFunctionBody(fn)
	return fn
}

// parseArrowFunction parses the body of an arrow whose parameters have
// already been read under the cover grammar.
func (p *Parser) parseArrowFunction(start lexer.Token, params []Expression, isAsync bool) Expression {
	fn := &FunctionLiteral{
		Token:   start,
		Kind:    FunctionArrow,
		IsAsync: isAsync,
		Start:   start.StartPos,
	}
	simple := true
	for i, prm := range params {
		switch e := prm.(type) {
		case *SpreadElement:
			if i != len(params)-1 {
				p.failAt(e.Token, "Rest parameter must be last formal parameter")
			}
			target := p.toAssignmentTarget(e.Argument, true)
			if _, hasDefault := target.(*AssignmentPattern); hasDefault {
				p.failAt(e.Token, "Rest parameter may not have a default initializer")
			}
			fn.Params = append(fn.Params, &RestElement{Token: e.Token, Target: target})
			simple = false
		case *RestElement:
			fn.Params = append(fn.Params, p.toAssignmentTarget(e, true))
			simple = false
		default:
			converted := p.toAssignmentElement(prm, true)
			if _, ok := converted.(*Identifier); !ok {
				simple = false
			}
			if id, ok := converted.(*Identifier); ok && isAsync && id.Value == "await" {
				p.failAt(id.Token, "Unexpected reserved word")
			}
			fn.Params = append(fn.Params, converted)
		}
	}
	fn.SimpleParams = simple
	p.expect(lexer.ARROW)

	p.pushContext(FunctionArrow, isAsync, false)
	defer p.popContext()
	if p.is(lexer.LBRACE) {
		p.parseFunctionBody(fn)
		return fn
	}
	bodyTok := p.tok
	wasStrict := p.ctx.strict
	expr := p.parseAssignment()
	fn.Body = &BlockStatement{Token: bodyTok, Statements: []Statement{&ReturnStatement{Token: bodyTok, Argument: expr}}}
	fn.ExpressionBody = true
	fn.Strict = wasStrict
	fn.End = p.prev.EndPos
	p.validateParams(fn)
	return fn
}

// parseFormalParams parses `(a, [b], {c} = d, ...e)`.
func (p *Parser) parseFormalParams(fn *FunctionLiteral) {
	p.expect(lexer.LPAREN)
	p.ctx.inParams = true
	simple := true
	p.withNoIn(false, func() {
		for !p.is(lexer.RPAREN) {
			if p.is(lexer.SPREAD) {
				tok := p.tok
				p.next()
				target := p.parseBindingTarget()
				if p.is(lexer.ASSIGN) {
					p.fail("Rest parameter may not have a default initializer")
				}
				fn.Params = append(fn.Params, &RestElement{Token: tok, Target: target})
				simple = false
				if !p.is(lexer.RPAREN) {
					p.fail("Rest parameter must be last formal parameter")
				}
				break
			}
			el := p.parseBindingElement()
			if _, ok := el.(*Identifier); !ok {
				simple = false
			}
			fn.Params = append(fn.Params, el)
			if !p.is(lexer.RPAREN) {
				p.expect(lexer.COMMA)
			}
		}
	})
	p.expect(lexer.RPAREN)
	p.ctx.inParams = false
	fn.SimpleParams = simple
}

// parseFunctionBody parses `{ directives statements }` and applies a
// "use strict" directive retroactively to the name and parameters.
func (p *Parser) parseFunctionBody(fn *FunctionLiteral) {
	tok := p.expect(lexer.LBRACE)
	body := &BlockStatement{Token: tok}
	if p.parseDirectives(&body.Statements) && !fn.SimpleParams {
		p.failAt(tok, "Illegal 'use strict' directive in function with non-simple parameter list")
	}
	for !p.is(lexer.RBRACE) {
		if p.is(lexer.EOF) {
			p.unexpected()
		}
		body.Statements = append(body.Statements, p.parseStatementListItem())
	}
	p.next()
	fn.Body = body
	fn.Strict = p.ctx.strict
	fn.End = p.prev.EndPos
	if fn.Strict && fn.Name != nil {
		p.checkBindingName(fn.Name.Token, fn.Name.Value)
	}
	p.validateParams(fn)
}

// validateParams applies the parameter-list early errors that depend on the
// final strictness of the function.
func (p *Parser) validateParams(fn *FunctionLiteral) {
	var names []*Identifier
	for _, prm := range fn.Params {
		names = CollectBoundNames(prm, names)
	}
	strictOrSpecial := fn.Strict || !fn.SimpleParams || fn.Kind != FunctionNormal
	seen := make(map[string]bool, len(names))
	for _, id := range names {
		if fn.Strict {
			if id.Value == "eval" || id.Value == "arguments" {
				p.failAt(id.Token, "Unexpected eval or arguments in strict mode")
			}
			if lexer.IsStrictReserved(id.Value) {
				p.failAt(id.Token, "Unexpected strict mode reserved word")
			}
		}
		if seen[id.Value] && strictOrSpecial {
			p.failAt(id.Token, "Duplicate parameter name not allowed in this context")
		}
		seen[id.Value] = true
	}
}

// CollectBoundNames appends the identifiers bound by a binding target.
func CollectBoundNames(target Expression, out []*Identifier) []*Identifier {
	switch t := target.(type) {
	case *Identifier:
		out = append(out, t)
	case *AssignmentPattern:
		out = CollectBoundNames(t.Target, out)
	case *RestElement:
		out = CollectBoundNames(t.Target, out)
	case *ArrayPattern:
		for _, el := range t.Elements {
			if el != nil {
				out = CollectBoundNames(el, out)
			}
		}
	case *ObjectPattern:
		for _, prop := range t.Properties {
			out = CollectBoundNames(prop.Value, out)
		}
		if t.Rest != nil {
			out = CollectBoundNames(t.Rest, out)
		}
	}
	return out
}

// --- Binding patterns ---

// parseBindingTarget parses an identifier or a destructuring pattern.
func (p *Parser) parseBindingTarget() Expression {
	if p.is(lexer.LBRACKET) || p.is(lexer.LBRACE) {
		return p.parseBindingPattern()
	}
	return p.parseBindingIdentifier()
}

// parseBindingElement parses a binding target with an optional default.
func (p *Parser) parseBindingElement() Expression {
	target := p.parseBindingTarget()
	if p.is(lexer.ASSIGN) {
		tok := p.tok
		p.next()
		var def Expression
		p.withNoIn(false, func() { def = p.parseAssignment() })
		return &AssignmentPattern{Token: tok, Target: target, Default: def}
	}
	return target
}

// parseBindingPattern parses [..] or {..} in a binding position.
func (p *Parser) parseBindingPattern() Expression {
	tok := p.tok
	if p.eat(lexer.LBRACKET) {
		pat := &ArrayPattern{Token: tok}
		for !p.is(lexer.RBRACKET) {
			if p.eat(lexer.COMMA) {
				pat.Elements = append(pat.Elements, nil)
				continue
			}
			if p.is(lexer.SPREAD) {
				restTok := p.tok
				p.next()
				pat.Elements = append(pat.Elements, &RestElement{Token: restTok, Target: p.parseBindingTarget()})
				if !p.is(lexer.RBRACKET) {
					p.fail("Rest element must be last element")
				}
				break
			}
			pat.Elements = append(pat.Elements, p.parseBindingElement())
			if !p.is(lexer.RBRACKET) {
				p.expect(lexer.COMMA)
			}
		}
		p.expect(lexer.RBRACKET)
		return pat
	}
	p.expect(lexer.LBRACE)
	pat := &ObjectPattern{Token: tok}
	for !p.is(lexer.RBRACE) {
		if p.is(lexer.SPREAD) {
			p.next()
			pat.Rest = p.parseBindingIdentifier()
			if !p.is(lexer.RBRACE) {
				p.fail("Rest element must be last element")
			}
			break
		}
		propTok := p.tok
		key, computed := p.parsePropertyName()
		if _, isPrivate := key.(*PrivateIdentifier); isPrivate {
			p.failAt(propTok, "Unexpected identifier '#%s'", propTok.Value)
		}
		prop := &PatternProperty{Token: propTok, Key: key, Computed: computed}
		if p.eat(lexer.COLON) {
			prop.Value = p.parseBindingElement()
		} else {
			id, ok := key.(*Identifier)
			if !ok || computed || !p.isIdentifierToken(propTok) {
				p.failAt(propTok, "Unexpected token '%s'", propTok.Literal)
			}
			p.checkBindingName(propTok, id.Value)
			var target Expression = &Identifier{Token: id.Token, Value: id.Value}
			if p.is(lexer.ASSIGN) {
				assignTok := p.tok
				p.next()
				var def Expression
				p.withNoIn(false, func() { def = p.parseAssignment() })
				target = &AssignmentPattern{Token: assignTok, Target: target, Default: def}
			}
			prop.Value = target
		}
		pat.Properties = append(pat.Properties, prop)
		if !p.is(lexer.RBRACE) {
			p.expect(lexer.COMMA)
		}
	}
	p.expect(lexer.RBRACE)
	return pat
}

// ParseFunctionParts parses the pieces handed to the Function, AsyncFunction
// and GeneratorFunction constructors. The body and parameter list are checked
// on their own first so that neither can close the function early.
func ParseFunctionParts(params, body string, isAsync, isGenerator bool) (*FunctionLiteral, *source.SourceFile, []errors.SkuaError) {
	bodySrc := source.NewEvalSource(body)
	bp := NewParser(bodySrc, Options{Mode: ModeFunctionBody, Async: isAsync, Generator: isGenerator})
	if _, errs := bp.ParseProgram(); len(errs) > 0 {
		return nil, nil, errs
	}

	prefix := "function"
	if isAsync {
		prefix = "async function"
	}
	if isGenerator {
		prefix += "*"
	}
	text := "(" + prefix + " anonymous(" + params + "\n) {\n" + body + "\n})"
	src := source.NewEvalSource(text)
	p := NewParser(src, Options{Mode: ModeScript})
	var fn *FunctionLiteral
	err := p.run(func() {
		p.expect(lexer.LPAREN)
		start := p.tok
		if isAsync {
			p.next()
		}
		fn = p.parseFunctionLiteral(start, isAsync, true, false)
		p.expect(lexer.RPAREN)
		if !p.is(lexer.EOF) {
			p.unexpected()
		}
	})
	if err != nil {
		return nil, nil, err
	}
	fn.Start = len("(")
	fn.End = len(text) - len(")")
	fn.IsExpression = false
	return fn, src, nil
}

// run executes fn, converting a parse bailout into the collected errors.
func (p *Parser) run(fn func()) (errs []errors.SkuaError) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); !ok {
				panic(r)
			}
			errs = p.errs
		}
	}()
	fn()
	return nil
}
