package parser

import (
	"github.com/dekarrin/vela/internal/ast"
	"github.com/dekarrin/vela/internal/source"
	"github.com/dekarrin/vela/internal/token"
)

// parseExpr parses a full expression at the lowest precedence level
// (assignment).
func (p *Parser) parseExpr() *ast.Expr {
	return p.parseAssignment()
}

// parseAssignment is right-associative: `a = b = c` parses as `a = (b = c)`.
func (p *Parser) parseAssignment() *ast.Expr {
	left := p.parseLogicalOr()
	if p.at(token.Assign) {
		start := left.Span.Start
		p.advance()
		right := p.parseAssignment()
		return &ast.Expr{Kind: ast.Assign, Left: left, Right: right, Span: p.span(start)}
	}
	return left
}

func (p *Parser) parseLogicalOr() *ast.Expr  { return p.parseLeftAssoc(token.PipePipe, p.parseLogicalAnd) }
func (p *Parser) parseLogicalAnd() *ast.Expr { return p.parseLeftAssoc(token.AmpAmp, p.parseEquality) }

func (p *Parser) parseEquality() *ast.Expr {
	return p.parseLeftAssocAny([]token.Kind{token.Eq, token.NotEq}, p.parseComparison)
}

func (p *Parser) parseComparison() *ast.Expr {
	return p.parseLeftAssocAny([]token.Kind{token.Lt, token.LtEq, token.Gt, token.GtEq}, p.parseBitOr)
}

func (p *Parser) parseBitOr() *ast.Expr  { return p.parseLeftAssoc(token.Pipe, p.parseBitXor) }
func (p *Parser) parseBitXor() *ast.Expr { return p.parseLeftAssoc(token.Caret, p.parseBitAnd) }
func (p *Parser) parseBitAnd() *ast.Expr { return p.parseLeftAssoc(token.Amp, p.parseShift) }

func (p *Parser) parseShift() *ast.Expr {
	return p.parseLeftAssocAny([]token.Kind{token.Shl, token.Shr}, p.parseAdditive)
}

func (p *Parser) parseAdditive() *ast.Expr {
	return p.parseLeftAssocAny([]token.Kind{token.Plus, token.Minus}, p.parseMultiplicative)
}

func (p *Parser) parseMultiplicative() *ast.Expr {
	return p.parseLeftAssocAny([]token.Kind{token.Star, token.Slash, token.Percent}, p.parseUnary)
}

func (p *Parser) parseLeftAssoc(k token.Kind, next func() *ast.Expr) *ast.Expr {
	return p.parseLeftAssocAny([]token.Kind{k}, next)
}

func (p *Parser) parseLeftAssocAny(kinds []token.Kind, next func() *ast.Expr) *ast.Expr {
	left := next()
	for {
		matched := false
		for _, k := range kinds {
			if p.at(k) {
				matched = true
				start := left.Span.Start
				op := p.advance()
				right := next()
				left = &ast.Expr{Kind: ast.Binary, Op: op.Kind.String(), Left: left, Right: right, Span: p.span(start)}
				break
			}
		}
		if !matched {
			return left
		}
	}
}

// parseUnary handles the prefix forms `&`, `&mut`, `*`, `-`, `!`.
func (p *Parser) parseUnary() *ast.Expr {
	start := p.cur().Span.Start
	switch p.cur().Kind {
	case token.Amp:
		p.advance()
		mut := false
		if p.at(token.KwMut) {
			p.advance()
			mut = true
		}
		operand := p.parseUnary()
		return &ast.Expr{Kind: ast.Ref, Mutable: mut, Operand: operand, Span: p.span(start)}
	case token.Star:
		p.advance()
		operand := p.parseUnary()
		return &ast.Expr{Kind: ast.Deref, Operand: operand, Span: p.span(start)}
	case token.Minus, token.Bang:
		op := p.advance()
		operand := p.parseUnary()
		return &ast.Expr{Kind: ast.Unary, Op: op.Kind.String(), Operand: operand, Span: p.span(start)}
	default:
		return p.parsePostfix()
	}
}

// parsePostfix handles call, index, and field access chained to any depth,
// the highest-precedence level of the ladder.
func (p *Parser) parsePostfix() *ast.Expr {
	e := p.parsePrimary()
	for {
		start := e.Span.Start
		switch p.cur().Kind {
		case token.LParen:
			p.advance()
			var args []*ast.Expr
			for !p.at(token.RParen) && !p.at(token.EOF) {
				args = append(args, p.parseExpr())
				if p.at(token.Comma) {
					p.advance()
				} else {
					break
				}
			}
			p.expect(token.RParen)
			e = &ast.Expr{Kind: ast.Call, Callee: e, Args: args, Span: p.span(start)}
		case token.Dot:
			p.advance()
			name, _ := p.expect(token.Ident)
			if p.at(token.LParen) {
				p.advance()
				var args []*ast.Expr
				for !p.at(token.RParen) && !p.at(token.EOF) {
					args = append(args, p.parseExpr())
					if p.at(token.Comma) {
						p.advance()
					} else {
						break
					}
				}
				p.expect(token.RParen)
				e = &ast.Expr{Kind: ast.MethodCall, Receiver: e, Method: name.Text, Args: args, Span: p.span(start)}
			} else {
				e = &ast.Expr{Kind: ast.Field, Base: e, Name: name.Text, Span: p.span(start)}
			}
		case token.LBracket:
			p.advance()
			idx := p.parseExpr()
			p.expect(token.RBracket)
			e = &ast.Expr{Kind: ast.Index, Base: e, IndexExpr: idx, Span: p.span(start)}
		default:
			return e
		}
	}
}

func (p *Parser) parsePrimary() *ast.Expr {
	t := p.cur()
	start := t.Span.Start
	switch t.Kind {
	case token.IntLit:
		p.advance()
		return &ast.Expr{Kind: ast.IntLit, IntValue: t.IntValue, Span: t.Span}
	case token.FloatLit:
		p.advance()
		return &ast.Expr{Kind: ast.FloatLit, FloatValue: t.FloatValue, Span: t.Span}
	case token.StringLit:
		p.advance()
		return &ast.Expr{Kind: ast.StringLit, StringValue: t.StringValue, Span: t.Span}
	case token.CharLit:
		p.advance()
		return &ast.Expr{Kind: ast.CharLit, CharValue: t.CharValue, Span: t.Span}
	case token.KwTrue:
		p.advance()
		return &ast.Expr{Kind: ast.BoolLit, BoolValue: true, Span: t.Span}
	case token.KwFalse:
		p.advance()
		return &ast.Expr{Kind: ast.BoolLit, BoolValue: false, Span: t.Span}
	case token.Ident:
		return p.parseIdentOrStructLit()
	case token.LParen:
		return p.parseParenOrTuple()
	case token.LBracket:
		return p.parseArrayLit()
	case token.LBrace:
		return p.parseBlock()
	case token.KwIf:
		return p.parseIf()
	case token.KwMatch:
		return p.parseMatch()
	case token.Pipe, token.PipePipe:
		return p.parseClosure()
	default:
		p.errorf("unexpected token %s in expression", t)
		p.advance()
		return &ast.Expr{Kind: ast.InvalidExpr, Span: p.span(start)}
	}
}

func (p *Parser) parseIdentOrStructLit() *ast.Expr {
	t := p.advance()
	// A struct literal is `Name { field: value, ... }`. Suppressed in
	// condition position (noStructLit) so `if x {` never misparses `x {`
	// as the start of a literal.
	if p.at(token.LBrace) && p.noStructLit == 0 {
		return p.parseStructLitBody(t.Text, t.Span.Start)
	}
	return &ast.Expr{Kind: ast.IdentExpr, Name: t.Text, Span: t.Span}
}

func (p *Parser) parseStructLitBody(name string, start source.Position) *ast.Expr {
	p.advance() // '{'
	var fields []ast.StructFieldInit
	for !p.at(token.RBrace) && !p.at(token.EOF) {
		fname, _ := p.expect(token.Ident)
		p.expect(token.Colon)
		val := p.withStructLit(p.parseExpr)
		fields = append(fields, ast.StructFieldInit{Name: fname.Text, Value: val})
		if p.at(token.Comma) {
			p.advance()
		} else {
			break
		}
	}
	p.expect(token.RBrace)
	return &ast.Expr{Kind: ast.StructLit, TypeName: name, StructFields: fields, Span: p.span(start)}
}

// withNoStructLit disables struct-literal parsing for the duration of fn,
// used while parsing the condition of if/while/match/for.
func (p *Parser) withNoStructLit(fn func() *ast.Expr) *ast.Expr {
	p.noStructLit++
	e := fn()
	p.noStructLit--
	return e
}

// withStructLit re-enables struct-literal parsing inside a context where it
// had been suppressed (e.g. a struct literal field value nested inside an
// if-condition's... it never is, but call sites like struct field values
// that are themselves unambiguous use this to restore normal parsing).
func (p *Parser) withStructLit(fn func() *ast.Expr) *ast.Expr {
	saved := p.noStructLit
	p.noStructLit = 0
	e := fn()
	p.noStructLit = saved
	return e
}
