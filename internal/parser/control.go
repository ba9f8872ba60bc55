package parser

import (
	"github.com/dekarrin/vela/internal/ast"
	"github.com/dekarrin/vela/internal/token"
	"github.com/dekarrin/vela/internal/types"
)

// parseBlock parses a brace-delimited statement sequence. A block
// expression's value is its trailing expression (if any) or unit.
func (p *Parser) parseBlock() *ast.Expr {
	start := p.cur().Span.Start
	p.expect(token.LBrace)

	var stmts []*ast.Stmt
	var tail *ast.Expr

	for !p.at(token.RBrace) && !p.at(token.EOF) {
		if stmtKeyword[p.cur().Kind] {
			stmts = append(stmts, p.parseKeywordStmt())
			continue
		}

		e := p.parseExpr()
		if p.at(token.Semicolon) {
			p.advance()
			stmts = append(stmts, &ast.Stmt{Kind: ast.ExprStmt, Value: e, Span: e.Span})
			continue
		}
		if p.at(token.RBrace) {
			tail = e
			break
		}
		// a block-like expression may stand as a statement without a
		// trailing semicolon when another statement follows immediately.
		stmts = append(stmts, &ast.Stmt{Kind: ast.ExprStmt, Value: e, Span: e.Span})
	}

	p.expect(token.RBrace)
	return &ast.Expr{Kind: ast.BlockExpr, Stmts: stmts, Tail: tail, Span: p.span(start)}
}

var stmtKeyword = map[token.Kind]bool{
	token.KwLet: true, token.KwReturn: true, token.KwWhile: true,
	token.KwFor: true, token.KwLoop: true, token.KwBreak: true,
	token.KwContinue: true,
}

func (p *Parser) parseKeywordStmt() *ast.Stmt {
	switch p.cur().Kind {
	case token.KwLet:
		return p.parseLet()
	case token.KwReturn:
		return p.parseReturn()
	case token.KwWhile:
		return p.parseWhile()
	case token.KwFor:
		return p.parseFor()
	case token.KwLoop:
		return p.parseLoop()
	case token.KwBreak:
		return p.parseBreak()
	case token.KwContinue:
		return p.parseContinue()
	default:
		p.errorf("unexpected token %s at start of statement", p.cur())
		p.recover()
		return &ast.Stmt{Kind: ast.InvalidStmt}
	}
}

func (p *Parser) parseLet() *ast.Stmt {
	start := p.cur().Span.Start
	p.advance() // 'let'
	mut := false
	if p.at(token.KwMut) {
		p.advance()
		mut = true
	}
	name, _ := p.expect(token.Ident)

	var declType *types.Type
	if p.at(token.Colon) {
		p.advance()
		declType = p.parseType()
	}

	var init *ast.Expr
	if p.at(token.Assign) {
		p.advance()
		init = p.parseExpr()
	}

	if _, ok := p.expect(token.Semicolon); !ok {
		p.recover()
	}

	return &ast.Stmt{
		Kind: ast.LetStmt, Name: name.Text, Mutable: mut,
		DeclaredType: declType, Init: init, Span: p.span(start),
	}
}

func (p *Parser) parseReturn() *ast.Stmt {
	start := p.cur().Span.Start
	p.advance()
	var val *ast.Expr
	if !p.at(token.Semicolon) {
		val = p.parseExpr()
	}
	if _, ok := p.expect(token.Semicolon); !ok {
		p.recover()
	}
	return &ast.Stmt{Kind: ast.ReturnStmt, Value: val, Span: p.span(start)}
}

func (p *Parser) parseWhile() *ast.Stmt {
	start := p.cur().Span.Start
	p.advance()
	cond := p.withNoStructLit(p.parseExpr)
	body := p.parseBlock()
	return &ast.Stmt{Kind: ast.WhileStmt, Cond: cond, Body: body, Span: p.span(start)}
}

func (p *Parser) parseFor() *ast.Stmt {
	start := p.cur().Span.Start
	p.advance()
	name, _ := p.expect(token.Ident)
	p.expect(token.KwIn)
	iter := p.withNoStructLit(p.parseExpr)
	body := p.parseBlock()
	return &ast.Stmt{Kind: ast.ForStmt, ForVar: name.Text, IterExpr: iter, Body: body, Span: p.span(start)}
}

func (p *Parser) parseLoop() *ast.Stmt {
	start := p.cur().Span.Start
	p.advance()
	body := p.parseBlock()
	return &ast.Stmt{Kind: ast.LoopStmt, Body: body, Span: p.span(start)}
}

func (p *Parser) parseBreak() *ast.Stmt {
	start := p.cur().Span.Start
	p.advance()
	var val *ast.Expr
	if !p.at(token.Semicolon) {
		val = p.parseExpr()
	}
	if _, ok := p.expect(token.Semicolon); !ok {
		p.recover()
	}
	return &ast.Stmt{Kind: ast.BreakStmt, Value: val, Span: p.span(start)}
}

func (p *Parser) parseContinue() *ast.Stmt {
	start := p.cur().Span.Start
	p.advance()
	if _, ok := p.expect(token.Semicolon); !ok {
		p.recover()
	}
	return &ast.Stmt{Kind: ast.ContinueStmt, Span: p.span(start)}
}

// parseIf parses an if expression. Branches are mandatory braces (i.e. are
// themselves block expressions).
func (p *Parser) parseIf() *ast.Expr {
	start := p.cur().Span.Start
	p.advance() // 'if'
	cond := p.withNoStructLit(p.parseExpr)
	then := p.parseBlock()

	var elseBranch *ast.Expr
	if p.at(token.KwElse) {
		p.advance()
		if p.at(token.KwIf) {
			elseBranch = p.parseIf()
		} else {
			elseBranch = p.parseBlock()
		}
	}

	return &ast.Expr{Kind: ast.IfExpr, Cond: cond, Then: then, Else: elseBranch, Span: p.span(start)}
}

// parseMatch parses a match expression: `match scrutinee { pattern =>
// body, ... }`.
func (p *Parser) parseMatch() *ast.Expr {
	start := p.cur().Span.Start
	p.advance() // 'match'
	scrutinee := p.withNoStructLit(p.parseExpr)
	p.expect(token.LBrace)

	var arms []ast.MatchArm
	for !p.at(token.RBrace) && !p.at(token.EOF) {
		pat := p.parsePattern()
		p.expect(token.FatArrow)
		body := p.withStructLit(p.parseExpr)
		arms = append(arms, ast.MatchArm{Pattern: pat, Body: body})
		if p.at(token.Comma) {
			p.advance()
		}
	}
	p.expect(token.RBrace)

	return &ast.Expr{Kind: ast.MatchExpr, Scrutinee: scrutinee, Arms: arms, Span: p.span(start)}
}

func (p *Parser) parsePattern() ast.Pattern {
	start := p.cur().Span.Start
	if p.at(token.Ident) && p.cur().Text == "_" {
		p.advance()
		return ast.Pattern{Kind: ast.WildcardPattern, Span: p.span(start)}
	}
	if p.at(token.Ident) {
		name := p.advance().Text
		return ast.Pattern{Kind: ast.BindingPattern, Name: name, Span: p.span(start)}
	}
	lit := p.parsePrimary()
	return ast.Pattern{Kind: ast.LiteralPattern, Lit: lit, Span: p.span(start)}
}

// parseClosure parses `|params| expr` or `|| expr`, optionally with typed
// parameters (`|x: i32, y| ...`).
func (p *Parser) parseClosure() *ast.Expr {
	start := p.cur().Span.Start
	var params []ast.ClosureParam
	if p.at(token.PipePipe) {
		p.advance() // '||' consumed whole
	} else {
		p.expect(token.Pipe)
		for !p.at(token.Pipe) && !p.at(token.EOF) {
			name, _ := p.expect(token.Ident)
			var t *types.Type
			if p.at(token.Colon) {
				p.advance()
				t = p.parseType()
			}
			params = append(params, ast.ClosureParam{Name: name.Text, Type: t})
			if p.at(token.Comma) {
				p.advance()
			} else {
				break
			}
		}
		p.expect(token.Pipe)
	}
	body := p.parseExpr()
	return &ast.Expr{Kind: ast.Closure, Params: params, Body: body, Span: p.span(start)}
}

func (p *Parser) parseParenOrTuple() *ast.Expr {
	start := p.cur().Span.Start
	p.advance() // '('
	if p.at(token.RParen) {
		p.advance()
		return &ast.Expr{Kind: ast.TupleLit, Span: p.span(start)}
	}
	first := p.withStructLit(p.parseExpr)
	if p.at(token.Comma) {
		elems := []*ast.Expr{first}
		for p.at(token.Comma) {
			p.advance()
			if p.at(token.RParen) {
				break
			}
			elems = append(elems, p.withStructLit(p.parseExpr))
		}
		p.expect(token.RParen)
		return &ast.Expr{Kind: ast.TupleLit, Elements: elems, Span: p.span(start)}
	}
	p.expect(token.RParen)
	return first
}

func (p *Parser) parseArrayLit() *ast.Expr {
	start := p.cur().Span.Start
	p.advance() // '['
	var elems []*ast.Expr
	for !p.at(token.RBracket) && !p.at(token.EOF) {
		elems = append(elems, p.withStructLit(p.parseExpr))
		if p.at(token.Comma) {
			p.advance()
		} else {
			break
		}
	}
	p.expect(token.RBracket)
	return &ast.Expr{Kind: ast.ArrayLit, Elements: elems, Span: p.span(start)}
}
