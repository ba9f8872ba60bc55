// Package parser implements the recursive-descent, one-token-lookahead
// parser: operator-precedence climbing for binary expressions, explicit
// keyword dispatch for items and statements, and a skip-to-next-statement
// recovery policy on error. The grammar is small enough that direct
// recursive descent stays clearer than a table-driven parser.
package parser

import (
	"fmt"

	"github.com/dekarrin/vela/internal/ast"
	"github.com/dekarrin/vela/internal/diag"
	"github.com/dekarrin/vela/internal/source"
	"github.com/dekarrin/vela/internal/token"
	"github.com/dekarrin/vela/internal/types"
)

// Parser holds a flat token slice and a single read cursor (one token of
// lookahead).
type Parser struct {
	toks  []token.Token
	pos   int
	file  source.FileID
	diags *diag.Collector

	// noStructLit is >0 while parsing a condition position (if/while/for/
	// match scrutinee), where `Name {` must be parsed as the start of a
	// block, not a struct literal.
	noStructLit int
}

// New returns a Parser over the given file's already-lexed tokens. toks must
// end with an EOF token, as internal/lexer.Lex guarantees.
func New(file source.FileID, toks []token.Token) *Parser {
	return &Parser{toks: toks, file: file, diags: diag.NewCollector()}
}

// Diagnostics returns the parse diagnostics accumulated so far.
func (p *Parser) Diagnostics() *diag.Collector {
	return p.diags
}

// ParseFile parses an entire compilation unit: a sequence of items until
// EOF. Each item-level parse failure is recovered from at item
// granularity, so a single source produces as many actionable diagnostics
// as possible.
func (p *Parser) ParseFile() *ast.File {
	f := &ast.File{FileID: p.file}
	for !p.at(token.EOF) {
		item := p.parseItem()
		if item != nil {
			f.Items = append(f.Items, item)
		}
	}
	return f
}

func (p *Parser) cur() token.Token {
	return p.toks[p.pos]
}

func (p *Parser) peekAt(offset int) token.Token {
	idx := p.pos + offset
	if idx >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[idx]
}

func (p *Parser) at(k token.Kind) bool {
	return p.cur().Kind == k
}

func (p *Parser) advance() token.Token {
	t := p.cur()
	if !t.IsEOF() {
		p.pos++
	}
	return t
}

// expect consumes the current token if it matches k, else emits a
// position-tagged diagnostic and returns the zero Token with ok=false.
func (p *Parser) expect(k token.Kind) (token.Token, bool) {
	if p.at(k) {
		return p.advance(), true
	}
	p.errorf("expected %s, found %s", k, p.cur())
	return token.Token{}, false
}

func (p *Parser) errorf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	p.diags.Add(diag.Errorf("E1000", p.cur().Span, "%s", msg))
}

// statementStart is the set of keywords recovery skips forward to.
var statementStart = map[token.Kind]bool{
	token.KwLet: true, token.KwReturn: true, token.KwIf: true,
	token.KwWhile: true, token.KwFor: true, token.KwLoop: true,
	token.KwBreak: true, token.KwContinue: true, token.KwFn: true,
	token.KwStruct: true, token.KwEnum: true, token.KwConst: true,
	token.KwStatic: true, token.KwUse: true, token.KwTrait: true,
	token.KwImpl: true,
}

// recover skips tokens until a statement-start keyword, a closing brace,
// or EOF.
func (p *Parser) recover() {
	for !p.at(token.EOF) {
		if statementStart[p.cur().Kind] || p.at(token.RBrace) {
			return
		}
		p.advance()
	}
}

func (p *Parser) span(start source.Position) source.Span {
	return source.Span{Start: start, End: p.toks[max(0, p.pos-1)].Span.End}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// parseType parses a type annotation into the shared internal/types
// representation.
func (p *Parser) parseType() *types.Type {
	switch p.cur().Kind {
	case token.Amp:
		p.advance()
		mut := false
		if p.at(token.KwMut) {
			p.advance()
			mut = true
		}
		return types.NewReference(mut, p.parseType())
	case token.Star:
		p.advance()
		mut := false
		if p.at(token.KwMut) {
			p.advance()
			mut = true
		} else if p.at(token.KwConst) {
			p.advance()
		}
		return types.NewRawPointer(mut, p.parseType())
	case token.LBracket:
		p.advance()
		elem := p.parseType()
		known := false
		var size int64
		if p.at(token.Semicolon) {
			p.advance()
			if p.at(token.IntLit) {
				size = p.cur().IntValue
				known = true
				p.advance()
			}
			p.expect(token.RBracket)
			return types.NewArray(elem, size, known)
		}
		p.expect(token.RBracket)
		return types.NewSlice(elem)
	case token.LParen:
		p.advance()
		var elems []*types.Type
		for !p.at(token.RParen) && !p.at(token.EOF) {
			elems = append(elems, p.parseType())
			if p.at(token.Comma) {
				p.advance()
			} else {
				break
			}
		}
		p.expect(token.RParen)
		if len(elems) == 0 {
			return types.NewUnit()
		}
		return types.NewTuple(elems...)
	case token.KwFn:
		p.advance()
		p.expect(token.LParen)
		var params []*types.Type
		for !p.at(token.RParen) && !p.at(token.EOF) {
			params = append(params, p.parseType())
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
		return types.NewFunction(params, ret)
	case token.Ident:
		name := p.advance().Text
		if prim, ok := primitiveNames[name]; ok {
			return types.NewPrimitive(prim)
		}
		if name == "bool" {
			return types.NewPrimitive(types.Bool)
		}
		if p.at(token.Lt) {
			p.advance()
			var args []*types.Type
			for !p.at(token.Gt) && !p.at(token.EOF) {
				args = append(args, p.parseType())
				if p.at(token.Comma) {
					p.advance()
				} else {
					break
				}
			}
			p.expect(token.Gt)
			return types.NewGeneric(name, args...)
		}
		return types.NewNamed(name)
	default:
		p.errorf("expected a type, found %s", p.cur())
		return types.NewNamed("<error>")
	}
}

var primitiveNames = map[string]types.PrimKind{
	"i8": types.I8, "i16": types.I16, "i32": types.I32, "i64": types.I64,
	"u8": types.U8, "u16": types.U16, "u32": types.U32, "u64": types.U64,
	"f32": types.F32, "f64": types.F64,
	"char": types.Char, "str": types.Str,
}
