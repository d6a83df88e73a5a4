package compiler

import (
	"math/big"

	"github.com/skua-js/skua/pkg/parser"
	"github.com/skua-js/skua/pkg/vm"
)

func parseBigInt(digits string) (*big.Int, bool) {
	return new(big.Int).SetString(digits, 10)
}

// bigIntKey is the property key a BigInt literal key stands for.
func bigIntKey(digits string) string {
	n, ok := parseBigInt(digits)
	if !ok {
		return digits
	}
	return n.String()
}

func (c *Compiler) bigInt(x *parser.BigIntLiteral, dst Register) {
	n, ok := parseBigInt(x.Digits)
	if !ok {
		c.fail(x.Token, "Invalid BigInt literal %sn", x.Digits)
	}
	c.emit(vm.OpLoadConst, int(dst), c.chunk.AddConstant(vm.BigIntValue(n)))
}

// regExp validates the literal now so that a bad pattern is an early
// error, and creates a fresh object on every evaluation.
func (c *Compiler) regExp(x *parser.RegExpLiteral, dst Register) {
	if _, err := vm.CompileRegExp(x.Pattern, x.Flags); err != nil {
		c.fail(x.Token, "%s", err.Error())
	}
	c.markPos(x.Token)
	c.emit(vm.OpNewRegExp, int(dst), c.constString(x.Pattern), c.constString(x.Flags))
}

func (c *Compiler) template(x *parser.TemplateLiteral, dst Register) {
	acc := c.regs.Alloc()
	c.loadString(acc, x.Quasis[0].Cooked)
	part := c.regs.Alloc()
	for i, e := range x.Expressions {
		c.expr(e, part)
		c.markPos(x.Token)
		c.emit(vm.OpToString, int(part), int(part))
		c.emit(vm.OpAdd, int(acc), int(acc), int(part))
		if q := x.Quasis[i+1].Cooked; q != "" {
			c.loadString(part, q)
			c.emit(vm.OpAdd, int(acc), int(acc), int(part))
		}
	}
	c.emit(vm.OpMove, int(dst), int(acc))
}

// templateSite registers the strings of a tagged template. Each site
// keeps one template object per realm.
func (c *Compiler) templateSite(x *parser.TemplateLiteral) int {
	site := &vm.TemplateSite{}
	for _, q := range x.Quasis {
		if q.CookedValid {
			site.Cooked = append(site.Cooked, vm.NewStringValue(q.Cooked))
		} else {
			site.Cooked = append(site.Cooked, vm.Undefined)
		}
		site.Raw = append(site.Raw, vm.NewStringValue(q.Raw))
	}
	c.tmpl.TemplateSites = append(c.tmpl.TemplateSites, site)
	return len(c.tmpl.TemplateSites) - 1
}

func (c *Compiler) taggedTemplate(x *parser.TaggedTemplate, dst Register) {
	fn := c.regs.AllocN(2)
	mark := c.regs.Mark()
	c.callee(x.Tag, fn)
	c.regs.Release(mark)
	args := c.regs.Alloc()
	c.emit(vm.OpGetTemplateObject, int(args), c.templateSite(x.Quasi))
	for _, e := range x.Quasi.Expressions {
		r := c.regs.Alloc()
		c.expr(e, r)
	}
	c.markPos(x.Token)
	c.emit(vm.OpCall, int(dst), int(fn), int(fn+1), int(args), len(x.Quasi.Expressions)+1)
}
