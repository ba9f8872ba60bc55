package parser

import (
	"strconv"

	"github.com/dekarrin/vela/internal/ast"
	"github.com/dekarrin/vela/internal/token"
	"github.com/dekarrin/vela/internal/types"
)

// parseItem dispatches on the leading keyword to one of the eight item
// forms. On failure it recovers to the next item-start keyword so each
// item is its own error-recovery unit.
func (p *Parser) parseItem() *ast.Item {
	switch p.cur().Kind {
	case token.KwFn:
		return p.parseFn()
	case token.KwStruct:
		return p.parseStruct()
	case token.KwEnum:
		return p.parseEnum()
	case token.KwConst:
		return p.parseConst()
	case token.KwStatic:
		return p.parseStatic()
	case token.KwUse:
		return p.parseUse()
	case token.KwTrait:
		return p.parseTrait()
	case token.KwImpl:
		return p.parseImpl()
	default:
		p.errorf("expected an item (fn, struct, enum, const, static, use, trait, impl), found %s", p.cur())
		p.advance()
		p.recover()
		return nil
	}
}

// parseGenerics parses an optional `<T1, T2, ...>` generic parameter list.
func (p *Parser) parseGenerics() []string {
	if !p.at(token.Lt) {
		return nil
	}
	p.advance()
	var names []string
	for !p.at(token.Gt) && !p.at(token.EOF) {
		name, _ := p.expect(token.Ident)
		names = append(names, name.Text)
		if p.at(token.Comma) {
			p.advance()
		} else {
			break
		}
	}
	p.expect(token.Gt)
	return names
}

func (p *Parser) parseFn() *ast.Item {
	start := p.cur().Span.Start
	p.advance() // 'fn'
	name, _ := p.expect(token.Ident)
	generics := p.parseGenerics()
	p.expect(token.LParen)

	var params []ast.Param
	for !p.at(token.RParen) && !p.at(token.EOF) {
		mut := false
		if p.at(token.KwMut) {
			p.advance()
			mut = true
		}
		pname, _ := p.expect(token.Ident)
		p.expect(token.Colon)
		ptype := p.parseType()
		params = append(params, ast.Param{Name: pname.Text, Type: ptype, Mutable: mut, Span: pname.Span})
		if p.at(token.Comma) {
			p.advance()
		} else {
			break
		}
	}
	p.expect(token.RParen)

	ret := types.NewUnit()
	if p.at(token.Arrow) {
		p.advance()
		ret = p.parseType()
	}

	var body *ast.Expr
	if p.at(token.Semicolon) {
		p.advance() // trait method signature with no body
	} else {
		body = p.parseBlock()
	}

	return &ast.Item{
		Kind: ast.FnItem, Name: name.Text, Generics: generics,
		Params: params, ReturnType: ret, Body: body, Span: p.span(start),
	}
}

func (p *Parser) parseStruct() *ast.Item {
	start := p.cur().Span.Start
	p.advance() // 'struct'
	name, _ := p.expect(token.Ident)
	generics := p.parseGenerics()
	p.expect(token.LBrace)

	var fields []ast.StructField
	for !p.at(token.RBrace) && !p.at(token.EOF) {
		fname, _ := p.expect(token.Ident)
		p.expect(token.Colon)
		ftype := p.parseType()
		fields = append(fields, ast.StructField{Name: fname.Text, Type: ftype, Span: fname.Span})
		if p.at(token.Comma) {
			p.advance()
		} else {
			break
		}
	}
	p.expect(token.RBrace)

	return &ast.Item{Kind: ast.StructItem, Name: name.Text, Generics: generics, Fields: fields, Span: p.span(start)}
}

func (p *Parser) parseEnum() *ast.Item {
	start := p.cur().Span.Start
	p.advance() // 'enum'
	name, _ := p.expect(token.Ident)
	generics := p.parseGenerics()
	p.expect(token.LBrace)

	var variants []ast.EnumVariant
	for !p.at(token.RBrace) && !p.at(token.EOF) {
		vname, _ := p.expect(token.Ident)
		variant := ast.EnumVariant{Name: vname.Text, Span: vname.Span}
		if p.at(token.LBrace) {
			p.advance()
			for !p.at(token.RBrace) && !p.at(token.EOF) {
				fname, _ := p.expect(token.Ident)
				p.expect(token.Colon)
				ftype := p.parseType()
				variant.Fields = append(variant.Fields, ast.StructField{Name: fname.Text, Type: ftype, Span: fname.Span})
				if p.at(token.Comma) {
					p.advance()
				} else {
					break
				}
			}
			p.expect(token.RBrace)
		} else if p.at(token.LParen) {
			p.advance()
			i := 0
			for !p.at(token.RParen) && !p.at(token.EOF) {
				ftype := p.parseType()
				variant.Fields = append(variant.Fields, ast.StructField{Name: positionalFieldName(i), Type: ftype})
				i++
				if p.at(token.Comma) {
					p.advance()
				} else {
					break
				}
			}
			p.expect(token.RParen)
		}
		variants = append(variants, variant)
		if p.at(token.Comma) {
			p.advance()
		} else {
			break
		}
	}
	p.expect(token.RBrace)

	return &ast.Item{Kind: ast.EnumItem, Name: name.Text, Generics: generics, Variants: variants, Span: p.span(start)}
}

func positionalFieldName(i int) string {
	return strconv.Itoa(i)
}

func (p *Parser) parseConst() *ast.Item {
	start := p.cur().Span.Start
	p.advance() // 'const'
	name, _ := p.expect(token.Ident)
	p.expect(token.Colon)
	declType := p.parseType()
	p.expect(token.Assign)
	val := p.parseExpr()
	p.expect(token.Semicolon)
	return &ast.Item{Kind: ast.ConstItem, Name: name.Text, DeclaredType: declType, ValueExpr: val, Span: p.span(start)}
}

func (p *Parser) parseStatic() *ast.Item {
	start := p.cur().Span.Start
	p.advance() // 'static'
	mut := false
	if p.at(token.KwMut) {
		p.advance()
		mut = true
	}
	name, _ := p.expect(token.Ident)
	p.expect(token.Colon)
	declType := p.parseType()
	p.expect(token.Assign)
	val := p.parseExpr()
	p.expect(token.Semicolon)
	return &ast.Item{Kind: ast.StaticItem, Name: name.Text, Mutable: mut, DeclaredType: declType, ValueExpr: val, Span: p.span(start)}
}

func (p *Parser) parseUse() *ast.Item {
	start := p.cur().Span.Start
	p.advance() // 'use'
	var path []string
	first, _ := p.expect(token.Ident)
	path = append(path, first.Text)
	for p.at(token.ColonColon) {
		p.advance()
		seg, _ := p.expect(token.Ident)
		path = append(path, seg.Text)
	}
	alias := ""
	if p.at(token.KwAs) {
		p.advance()
		a, _ := p.expect(token.Ident)
		alias = a.Text
	}
	p.expect(token.Semicolon)
	name := path[len(path)-1]
	if alias != "" {
		name = alias
	}
	return &ast.Item{Kind: ast.UseItem, Name: name, Path: path, Alias: alias, Span: p.span(start)}
}

func (p *Parser) parseTrait() *ast.Item {
	start := p.cur().Span.Start
	p.advance() // 'trait'
	name, _ := p.expect(token.Ident)
	generics := p.parseGenerics()
	p.expect(token.LBrace)

	var methods []*ast.Item
	for !p.at(token.RBrace) && !p.at(token.EOF) {
		if !p.at(token.KwFn) {
			p.errorf("expected fn in trait body, found %s", p.cur())
			p.recover()
			continue
		}
		methods = append(methods, p.parseFn())
	}
	p.expect(token.RBrace)

	return &ast.Item{Kind: ast.TraitItem, Name: name.Text, Generics: generics, Methods: methods, Span: p.span(start)}
}

func (p *Parser) parseImpl() *ast.Item {
	start := p.cur().Span.Start
	p.advance() // 'impl'
	p.parseGenerics()

	first := p.parseType()
	traitName := ""
	target := first
	if p.at(token.KwFor) {
		p.advance()
		target = p.parseType()
		if first.Kind == types.Named {
			traitName = first.Name
		}
	}

	p.expect(token.LBrace)
	var items []*ast.Item
	for !p.at(token.RBrace) && !p.at(token.EOF) {
		if !p.at(token.KwFn) {
			p.errorf("expected fn in impl body, found %s", p.cur())
			p.recover()
			continue
		}
		items = append(items, p.parseFn())
	}
	p.expect(token.RBrace)

	return &ast.Item{
		Kind: ast.ImplItem, Name: target.String(), TraitName: traitName,
		TargetType: target, ImplItems: items, Span: p.span(start),
	}
}
