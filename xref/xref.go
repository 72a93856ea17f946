// Package xref locates and reads cross-reference data: classic tables,
// cross-reference streams, Prev chains of incremental updates and hybrid
// files. When the data is missing or inconsistent the resolver rebuilds the
// table by scanning the whole file.
package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfcombine/filters"
	"github.com/wudi/pdfcombine/ir/raw"
	"github.com/wudi/pdfcombine/observability"
	"github.com/wudi/pdfcombine/parser"
	"github.com/wudi/pdfcombine/pdferr"
	"github.com/wudi/pdfcombine/recovery"
	"github.com/wudi/pdfcombine/scanner"
)

// Resolver locates and parses xref information in a PDF.
type Resolver interface {
	Resolve(ctx context.Context, r io.ReaderAt) (Table, error)
	// Trailer returns the effective trailer of the last Resolve.
	Trailer() *raw.DictObj
	// Repaired reports whether the last Resolve rebuilt the table by scanning.
	Repaired() bool
	// Linearized reports whether the file starts with a linearization
	// dictionary. Hint tables are never used.
	Linearized() bool
	// Incremental returns the individual sections, newest first.
	Incremental() []Table
}

type ResolverConfig struct {
	MaxXRefDepth        int
	MaxDecompressedSize int64
	// Recovery is notified when the xref data is corrupt. Repair is attempted
	// regardless of the returned action.
	Recovery recovery.Strategy
	Logger   observability.Logger
}

const defaultMaxXRefDepth = 50

func NewResolver(cfg ResolverConfig) Resolver {
	if cfg.MaxXRefDepth <= 0 {
		cfg.MaxXRefDepth = defaultMaxXRefDepth
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	return &resolver{
		cfg:      cfg,
		pipeline: filters.NewDefaultPipeline(filters.Limits{MaxDecompressedSize: cfg.MaxDecompressedSize}),
	}
}

type resolver struct {
	cfg      ResolverConfig
	pipeline *filters.Pipeline

	data       []byte
	sections   []*table
	trailer    *raw.DictObj
	repaired   bool
	linearized bool
}

func (r *resolver) Resolve(ctx context.Context, ra io.ReaderAt) (Table, error) {
	r.sections = nil
	r.trailer = nil
	r.repaired = false
	r.data = readAll(ra)
	r.linearized = detectLinearized(r.data)

	t, err := r.readChain(ctx)
	if err == nil {
		err = r.validate(t)
	}
	if err == nil {
		r.trailer = t.trailer
		return t, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	var offset int64
	var xe *pdferr.XrefCorruptionError
	if errors.As(err, &xe) {
		offset = xe.Offset
	}
	if r.cfg.Recovery != nil {
		r.cfg.Recovery.OnError(ctx, err, recovery.Location{ByteOffset: offset, Component: "xref"})
	}
	r.cfg.Logger.Warn("cross-reference data unusable, scanning file",
		observability.Int64("offset", offset),
		observability.Error("cause", err),
	)

	rt, rerr := repair(ctx, r.data, r.pipeline, r.cfg.Logger)
	if rerr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &pdferr.XrefCorruptionError{Offset: offset, Err: rerr}
	}
	r.repaired = true
	r.sections = []*table{rt}
	r.trailer = rt.trailer
	r.cfg.Logger.Info("cross-reference table rebuilt", observability.Int("objects", len(rt.entries)))
	return rt, nil
}

func (r *resolver) Trailer() *raw.DictObj { return r.trailer }
func (r *resolver) Repaired() bool        { return r.repaired }
func (r *resolver) Linearized() bool      { return r.linearized }

func (r *resolver) Incremental() []Table {
	out := make([]Table, len(r.sections))
	for i, s := range r.sections {
		out[i] = s
	}
	return out
}

func corrupt(offset int64, format string, args ...any) error {
	return &pdferr.XrefCorruptionError{Offset: offset, Err: fmt.Errorf(format, args...)}
}

// readChain follows startxref and the Prev chain. Sections are visited newest
// first, so an entry already present is never replaced by an older one.
func (r *resolver) readChain(ctx context.Context) (*table, error) {
	offset, err := findStartXRef(r.data)
	if err != nil {
		return nil, err
	}
	merged := newTable("")
	var trailer *raw.DictObj
	visited := make(map[int64]bool)
	for depth := 0; ; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if depth >= r.cfg.MaxXRefDepth {
			return nil, corrupt(offset, "xref chain deeper than %d sections", r.cfg.MaxXRefDepth)
		}
		if visited[offset] {
			return nil, corrupt(offset, "xref Prev chain loops")
		}
		visited[offset] = true

		sec, err := r.readSection(ctx, offset)
		if err != nil {
			return nil, err
		}
		r.sections = append(r.sections, sec)
		if depth == 0 {
			merged.kind = sec.kind
		}
		merged.fill(sec)
		trailer = mergeTrailers(trailer, sec.trailer)

		prev, ok := raw.IntOf(sec.trailer, "Prev")
		if !ok {
			break
		}
		offset = prev
	}
	merged.trailer = trailer
	return merged, nil
}

func (r *resolver) newParser() *parser.Parser {
	s := scanner.NewBytes(r.data, scanner.Config{Recovery: r.cfg.Recovery})
	return parser.New(s, parser.Config{Recovery: r.cfg.Recovery})
}

func (r *resolver) readSection(ctx context.Context, offset int64) (*table, error) {
	if offset <= 0 || offset >= int64(len(r.data)) {
		return nil, corrupt(offset, "xref offset out of range")
	}
	p := r.newParser()
	if err := p.SeekTo(offset); err != nil {
		return nil, corrupt(offset, "seek: %v", err)
	}
	tok, err := p.Next()
	if err != nil {
		return nil, corrupt(offset, "read xref: %v", err)
	}
	if tok.IsKeyword("xref") {
		return r.readClassic(ctx, p, offset)
	}
	p.Unread(tok)
	return r.readStreamSection(ctx, p, offset)
}

// readClassic parses "xref" subsections up to and including the trailer
// dictionary. A hybrid file's XRefStm section fills numbers the table omits.
func (r *resolver) readClassic(ctx context.Context, p *parser.Parser, offset int64) (*table, error) {
	t := newTable("table")
	for {
		tok, err := p.Next()
		if err != nil {
			return nil, corrupt(offset, "xref table truncated: %v", err)
		}
		if tok.IsKeyword("trailer") {
			break
		}
		cnt, err := p.Next()
		if err != nil {
			return nil, corrupt(offset, "xref table truncated: %v", err)
		}
		if tok.Type != scanner.TokenNumber || !tok.IsInt || tok.Int < 0 ||
			cnt.Type != scanner.TokenNumber || !cnt.IsInt || cnt.Int < 0 {
			return nil, corrupt(tok.Pos, "invalid xref subsection header")
		}
		first := int(tok.Int)
		for i := 0; i < int(cnt.Int); i++ {
			off, err1 := p.Next()
			gen, err2 := p.Next()
			kind, err3 := p.Next()
			if err := errors.Join(err1, err2, err3); err != nil {
				return nil, corrupt(offset, "xref entry %d truncated: %v", first+i, err)
			}
			if off.Type != scanner.TokenNumber || !off.IsInt || gen.Type != scanner.TokenNumber || !gen.IsInt {
				return nil, corrupt(off.Pos, "invalid xref entry for object %d", first+i)
			}
			switch {
			case kind.IsKeyword("n"):
				t.entries[first+i] = Entry{Kind: EntryInUse, Offset: off.Int, Gen: int(gen.Int)}
			case kind.IsKeyword("f"):
				t.entries[first+i] = Entry{Kind: EntryFree, Gen: int(gen.Int)}
			default:
				return nil, corrupt(kind.Pos, "invalid xref entry type for object %d", first+i)
			}
		}
	}
	obj, err := p.ParseObject()
	if err != nil {
		return nil, corrupt(offset, "parse trailer: %v", err)
	}
	dict, ok := obj.(*raw.DictObj)
	if !ok {
		return nil, corrupt(offset, "trailer is %s, not a dictionary", obj.Type())
	}
	t.trailer = dict

	if xs, ok := raw.IntOf(dict, "XRefStm"); ok {
		sp := r.newParser()
		if err := sp.SeekTo(xs); err != nil {
			return nil, corrupt(xs, "seek XRefStm: %v", err)
		}
		stm, err := r.readStreamSection(ctx, sp, xs)
		if err != nil {
			return nil, err
		}
		t.fill(stm)
	}
	return t, nil
}

func (r *resolver) readStreamSection(ctx context.Context, p *parser.Parser, offset int64) (*table, error) {
	_, obj, err := p.ParseIndirect(parser.DirectLength)
	if err != nil {
		return nil, corrupt(offset, "parse xref stream: %v", err)
	}
	st, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil, corrupt(offset, "no xref table or stream at offset")
	}
	if typ, _ := raw.NameOf(st.Dict, "Type"); typ != "XRef" {
		return nil, corrupt(offset, "stream at offset is not /Type /XRef")
	}
	t, err := decodeXRefStream(ctx, r.pipeline, st)
	if err != nil {
		return nil, corrupt(offset, "%v", err)
	}
	return t, nil
}

// validate checks that the trailer names a catalog and that every in-use
// offset points at the header of the object it claims to hold.
func (r *resolver) validate(t *table) error {
	root, ok := raw.RefOf(t.trailer, "Root")
	if !ok {
		return corrupt(0, "trailer has no Root: %w", pdferr.ErrNoRoot)
	}
	if _, ok := t.entries[root.Num]; !ok {
		return corrupt(0, "Root object %d not in xref", root.Num)
	}
	for num, e := range t.entries {
		switch e.Kind {
		case EntryInUse:
			n, _, ok := objectHeaderAt(r.data, e.Offset)
			if !ok || n != num {
				return corrupt(e.Offset, "object %d not found at recorded offset", num)
			}
		case EntryCompressed:
			if se, ok := t.entries[e.Stream]; !ok || se.Kind != EntryInUse {
				return corrupt(0, "object %d stored in missing object stream %d", num, e.Stream)
			}
		}
	}
	return nil
}

// findStartXRef returns the offset recorded after the last startxref keyword.
func findStartXRef(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, corrupt(int64(len(data)), "startxref not found")
	}
	i := skipSpace(data, idx+len("startxref"))
	v, _, ok := readUint(data, i)
	if !ok {
		return 0, corrupt(int64(idx), "startxref offset missing")
	}
	return int64(v), nil
}

func detectLinearized(data []byte) bool {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	return bytes.Contains(head, []byte("/Linearized"))
}

// objectHeaderAt reports whether "num gen obj" starts at off, allowing
// leading whitespace.
func objectHeaderAt(data []byte, off int64) (num, gen int, ok bool) {
	if off < 0 || off >= int64(len(data)) {
		return 0, 0, false
	}
	i := skipSpace(data, int(off))
	num, i, ok = readUint(data, i)
	if !ok {
		return 0, 0, false
	}
	j := skipSpace(data, i)
	if j == i {
		return 0, 0, false
	}
	gen, i, ok = readUint(data, j)
	if !ok {
		return 0, 0, false
	}
	j = skipSpace(data, i)
	if j == i || !bytes.HasPrefix(data[j:], []byte("obj")) {
		return 0, 0, false
	}
	if k := j + 3; k < len(data) && isRegular(data[k]) {
		return 0, 0, false
	}
	return num, gen, true
}

// readUint parses decimal digits at i. Values beyond 1<<40 are rejected.
func readUint(data []byte, i int) (int, int, bool) {
	start := i
	v := 0
	for i < len(data) && data[i] >= '0' && data[i] <= '9' {
		v = v*10 + int(data[i]-'0')
		if v > 1<<40 {
			return 0, i, false
		}
		i++
	}
	return v, i, i > start
}

func skipSpace(data []byte, i int) int {
	for i < len(data) && isSpace(data[i]) {
		i++
	}
	return i
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isRegular(c byte) bool {
	if isSpace(c) {
		return false
	}
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return false
	}
	return true
}

func readAll(r io.ReaderAt) []byte {
	if br, ok := r.(interface{ Bytes() []byte }); ok {
		return br.Bytes()
	}
	var buf bytes.Buffer
	const chunk = int64(32 * 1024)
	tmp := make([]byte, chunk)
	for off := int64(0); ; off += chunk {
		n, err := r.ReadAt(tmp, off)
		if n > 0 {
			buf.Write(tmp[:n])
		}
		if err != nil || int64(n) < chunk {
			break
		}
	}
	return buf.Bytes()
}
