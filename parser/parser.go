// Package parser builds raw object trees from scanner tokens.
//
// A Parser reads direct objects (ParseObject) and indirect object
// definitions of the form "num gen obj ... endobj" (ParseIndirect), including
// stream payloads whose length is supplied by a LengthResolver.
package parser

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfcombine/ir/raw"
	"github.com/wudi/pdfcombine/pdferr"
	"github.com/wudi/pdfcombine/recovery"
	"github.com/wudi/pdfcombine/scanner"
)

const defaultMaxDepth = 256

type Config struct {
	Recovery recovery.Strategy
	// MaxDepth bounds array and dictionary nesting. Zero selects a default.
	MaxDepth int
}

// LengthResolver returns the payload length declared by a stream dictionary.
// A negative result makes the scanner search for the endstream keyword.
type LengthResolver func(d *raw.DictObj) (int64, error)

// DirectLength resolves only direct /Length values.
func DirectLength(d *raw.DictObj) (int64, error) {
	if n, ok := raw.IntOf(d, "Length"); ok && n >= 0 {
		return n, nil
	}
	return -1, nil
}

type Parser struct {
	s        scanner.Scanner
	tr       *tokenReader
	rec      recovery.Strategy
	maxDepth int
	num, gen int
}

func New(s scanner.Scanner, cfg Config) *Parser {
	depth := cfg.MaxDepth
	if depth <= 0 {
		depth = defaultMaxDepth
	}
	return &Parser{s: s, tr: newTokenReader(s), rec: cfg.Recovery, maxDepth: depth}
}

// Next returns the next token, honouring pushed-back tokens.
func (p *Parser) Next() (scanner.Token, error) { return p.tr.next() }

// Unread pushes a token back so the next call to Next returns it.
func (p *Parser) Unread(tok scanner.Token) { p.tr.unread(tok) }

// SeekTo repositions the underlying scanner and drops pushed-back tokens.
func (p *Parser) SeekTo(offset int64) error {
	p.tr.reset()
	return p.s.SeekTo(offset)
}

// Position reports the offset of the next unread token, or the scanner
// offset when nothing is pushed back.
func (p *Parser) Position() int64 {
	if n := len(p.tr.buf); n > 0 {
		return p.tr.buf[n-1].Pos
	}
	return p.s.Position()
}

// ParseObject parses one direct object at the current position.
func (p *Parser) ParseObject() (raw.Object, error) {
	p.num, p.gen = 0, 0
	return p.parseObject(0)
}

// ParseIndirect parses "num gen obj <body> endobj" at the current position.
func (p *Parser) ParseIndirect(lengthOf LengthResolver) (raw.ObjectRef, raw.Object, error) {
	start := p.s.Position()
	tokNum, err := p.tr.next()
	if err != nil {
		return raw.ObjectRef{}, nil, p.wrap(start, err)
	}
	tokGen, err := p.tr.next()
	if err != nil {
		return raw.ObjectRef{}, nil, p.wrap(start, err)
	}
	if tokNum.Type != scanner.TokenNumber || !tokNum.IsInt || tokNum.Int < 0 ||
		tokGen.Type != scanner.TokenNumber || !tokGen.IsInt || tokGen.Int < 0 {
		return raw.ObjectRef{}, nil, &pdferr.ParseError{Offset: tokNum.Pos, Err: errors.New("expected object header")}
	}
	tokObj, err := p.tr.next()
	if err != nil {
		return raw.ObjectRef{}, nil, p.wrap(start, err)
	}
	if !tokObj.IsKeyword("obj") {
		return raw.ObjectRef{}, nil, &pdferr.ParseError{Offset: tokObj.Pos, Object: int(tokNum.Int), Err: errors.New("expected obj keyword")}
	}
	ref := raw.ObjectRef{Num: int(tokNum.Int), Gen: int(tokGen.Int)}
	obj, err := p.ParseBody(ref, lengthOf)
	return ref, obj, err
}

// ParseBody parses the body of an indirect object whose "num gen obj" header
// has already been consumed, then the optional stream payload and endobj.
func (p *Parser) ParseBody(ref raw.ObjectRef, lengthOf LengthResolver) (raw.Object, error) {
	p.num, p.gen = ref.Num, ref.Gen
	start := p.s.Position()
	tok, err := p.tr.next()
	if err != nil {
		return nil, p.wrap(start, err)
	}
	if tok.IsKeyword("endobj") {
		// "n g obj endobj" is an empty definition; treat it as null.
		return raw.NullObj{}, nil
	}
	p.tr.unread(tok)
	obj, err := p.parseObject(0)
	if err != nil {
		return nil, err
	}
	if dict, ok := obj.(*raw.DictObj); ok {
		if lengthOf == nil {
			lengthOf = DirectLength
		}
		hint, err := lengthOf(dict)
		if err != nil {
			hint = -1
		}
		if hint >= 0 {
			p.tr.setStreamLengthHint(hint)
		} else {
			p.tr.clearStreamLengthHint()
		}
		next, err := p.tr.next()
		switch {
		case err != nil && errors.Is(err, io.EOF):
			return obj, nil
		case err != nil:
			return nil, p.wrap(p.s.Position(), err)
		case next.Type == scanner.TokenStream:
			obj = raw.NewStream(dict, next.Bytes)
		default:
			p.tr.clearStreamLengthHint()
			p.tr.unread(next)
		}
	}
	p.consumeEndobj()
	return obj, nil
}

// consumeEndobj reads a trailing endobj if present. A missing endobj is
// tolerated; whatever follows is left for the caller.
func (p *Parser) consumeEndobj() {
	tok, err := p.tr.next()
	if err != nil {
		return
	}
	if !tok.IsKeyword("endobj") {
		p.tr.unread(tok)
	}
}

func (p *Parser) parseObject(depth int) (raw.Object, error) {
	tok, err := p.tr.next()
	if err != nil {
		return nil, p.wrap(p.s.Position(), err)
	}
	switch tok.Type {
	case scanner.TokenName:
		return raw.NameObj{Val: tok.Str}, nil
	case scanner.TokenNumber:
		if tok.IsInt {
			return raw.NumberObj{I: tok.Int, IsInt: true}, nil
		}
		return raw.NumberObj{F: tok.Float}, nil
	case scanner.TokenBoolean:
		return raw.BoolObj{V: tok.Bool}, nil
	case scanner.TokenNull:
		return raw.NullObj{}, nil
	case scanner.TokenString:
		return raw.StringObj{Bytes: tok.Bytes, Hex: tok.Hex}, nil
	case scanner.TokenRef:
		return raw.RefObj{R: raw.ObjectRef{Num: int(tok.Int), Gen: tok.Gen}}, nil
	case scanner.TokenArray:
		if depth >= p.maxDepth {
			return nil, p.errorf(tok.Pos, "nesting deeper than %d", p.maxDepth)
		}
		return p.parseArray(depth + 1)
	case scanner.TokenDict:
		if depth >= p.maxDepth {
			return nil, p.errorf(tok.Pos, "nesting deeper than %d", p.maxDepth)
		}
		return p.parseDict(depth + 1)
	case scanner.TokenStream:
		return nil, p.errorf(tok.Pos, "stream without dictionary")
	}
	return nil, p.errorf(tok.Pos, "unexpected %q", tok.Str)
}

func (p *Parser) parseArray(depth int) (raw.Object, error) {
	arr := &raw.ArrayObj{}
	for {
		tok, err := p.tr.next()
		if err != nil {
			return nil, p.wrap(p.s.Position(), err)
		}
		if tok.IsKeyword("]") {
			return arr, nil
		}
		if tok.IsKeyword("endobj") || tok.IsKeyword(">>") {
			if p.fixable(tok.Pos, fmt.Errorf("unterminated array before %q", tok.Str)) {
				p.tr.unread(tok)
				return arr, nil
			}
			return nil, p.errorf(tok.Pos, "unterminated array before %q", tok.Str)
		}
		p.tr.unread(tok)
		item, err := p.parseObject(depth)
		if err != nil {
			return nil, err
		}
		arr.Append(item)
	}
}

func (p *Parser) parseDict(depth int) (raw.Object, error) {
	d := raw.Dict()
	for {
		tok, err := p.tr.next()
		if err != nil {
			return nil, p.wrap(p.s.Position(), err)
		}
		if tok.IsKeyword(">>") {
			return d, nil
		}
		if tok.Type != scanner.TokenName {
			if tok.IsKeyword("endobj") || tok.Type == scanner.TokenStream {
				if p.fixable(tok.Pos, errors.New("unexpected end of dictionary (missing >>?)")) {
					p.tr.unread(tok)
					return d, nil
				}
			}
			return nil, p.errorf(tok.Pos, "expected name key in dictionary, got %s", tok.Type)
		}
		val, err := p.parseObject(depth)
		if err != nil {
			return nil, err
		}
		// A null value is equivalent to an absent entry.
		if _, isNull := val.(raw.NullObj); isNull {
			continue
		}
		d.Set(raw.NameObj{Val: tok.Str}, val)
	}
}

func (p *Parser) fixable(offset int64, err error) bool {
	if p.rec == nil {
		return false
	}
	action := p.rec.OnError(context.Background(), err, recovery.Location{
		ByteOffset: offset,
		ObjectNum:  p.num,
		ObjectGen:  p.gen,
		Component:  "parser",
	})
	return action.Continue()
}

func (p *Parser) errorf(offset int64, format string, args ...any) error {
	return &pdferr.ParseError{Offset: offset, Object: p.num, Err: fmt.Errorf(format, args...)}
}

// wrap converts scanner failures into ParseError. Lex errors pass through
// unchanged; end of input inside an object becomes io.ErrUnexpectedEOF.
func (p *Parser) wrap(offset int64, err error) error {
	var lex *pdferr.LexError
	if errors.As(err, &lex) {
		return err
	}
	var pe *pdferr.ParseError
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return &pdferr.ParseError{Offset: offset, Object: p.num, Err: err}
}
