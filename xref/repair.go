package xref

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/wudi/pdfcombine/filters"
	"github.com/wudi/pdfcombine/ir/raw"
	"github.com/wudi/pdfcombine/observability"
	"github.com/wudi/pdfcombine/parser"
	"github.com/wudi/pdfcombine/pdferr"
	"github.com/wudi/pdfcombine/recovery"
	"github.com/wudi/pdfcombine/scanner"
)

type trailerCandidate struct {
	offset int64
	dict   *raw.DictObj
}

type objStmCandidate struct {
	num int
	st  *raw.StreamObj
}

// repair scans the entire file to reconstruct the xref table.
// It looks for "<num> <gen> obj" headers and "trailer" dictionaries; a later
// definition of an object number replaces an earlier one.
func repair(ctx context.Context, data []byte, pipeline *filters.Pipeline, logger observability.Logger) (*table, error) {
	rec := recovery.NewLenientStrategy()
	s := scanner.NewBytes(data, scanner.Config{Recovery: rec})
	p := parser.New(s, parser.Config{Recovery: rec})

	t := newTable("repaired")
	var trailers []trailerCandidate
	var objStreams []objStmCandidate
	var catalog raw.ObjectRef
	haveCatalog := false

	pos := 0
	for iter := 0; pos < len(data); iter++ {
		if iter%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		hdr, after := nextObjectHeader(data, pos)
		if hdr < 0 {
			break
		}
		if err := p.SeekTo(int64(hdr)); err != nil {
			pos = after
			continue
		}
		ref, obj, err := p.ParseIndirect(parser.DirectLength)
		if err != nil {
			pos = after
			continue
		}
		t.entries[ref.Num] = Entry{Kind: EntryInUse, Offset: int64(hdr), Gen: ref.Gen}

		if d, ok := raw.DictOf(obj); ok {
			switch typ, _ := raw.NameOf(d, "Type"); typ {
			case "XRef":
				trailers = append(trailers, trailerCandidate{offset: int64(hdr), dict: d})
			case "ObjStm":
				if st, ok := obj.(*raw.StreamObj); ok {
					objStreams = append(objStreams, objStmCandidate{num: ref.Num, st: st})
				}
			case "Catalog":
				catalog, haveCatalog = raw.ObjectRef{Num: ref.Num, Gen: ref.Gen}, true
			}
		}

		next := int(p.Position())
		if next <= hdr {
			next = after
		}
		pos = next
	}

	trailers = append(trailers, scanTrailers(data, rec)...)
	sort.SliceStable(trailers, func(i, j int) bool { return trailers[i].offset < trailers[j].offset })

	direct := make(map[int]bool, len(t.entries))
	for num := range t.entries {
		direct[num] = true
	}
	for _, c := range objStreams {
		decoded, err := pipeline.DecodeStream(ctx, c.st)
		if err != nil {
			logger.Debug("skipping undecodable object stream", observability.Int("object", c.num), observability.Error("error", err))
			continue
		}
		ostm, err := parser.NewObjectStream(c.st.Dict, decoded)
		if err != nil {
			logger.Debug("skipping malformed object stream", observability.Int("object", c.num), observability.Error("error", err))
			continue
		}
		for idx, e := range ostm.Entries {
			if direct[e.Num] {
				continue
			}
			t.entries[e.Num] = Entry{Kind: EntryCompressed, Stream: c.num, Index: idx}
			if !haveCatalog {
				if _, obj, err := ostm.Object(idx, parser.Config{}); err == nil {
					if d, ok := obj.(*raw.DictObj); ok {
						if typ, _ := raw.NameOf(d, "Type"); typ == "Catalog" {
							catalog, haveCatalog = raw.ObjectRef{Num: e.Num}, true
						}
					}
				}
			}
		}
		logger.Debug("expanded object stream", observability.Int("object", c.num), observability.Int("entries", len(ostm.Entries)))
	}

	if len(t.entries) == 0 {
		return nil, fmt.Errorf("no objects found: %w", pdferr.ErrNoRoot)
	}

	var chosen *raw.DictObj
	for i := len(trailers) - 1; i >= 0; i-- {
		root, ok := raw.RefOf(trailers[i].dict, "Root")
		if !ok {
			continue
		}
		if _, defined := t.entries[root.Num]; defined {
			chosen = trailers[i].dict
			break
		}
	}
	trailer := mergeTrailers(chosen, nil)
	if chosen == nil {
		if !haveCatalog {
			return nil, fmt.Errorf("repair: %w", pdferr.ErrNoRoot)
		}
		trailer.Set(raw.NameLiteral("Root"), raw.RefObj{R: catalog})
		// keep a document information dictionary from any trailer
		for i := len(trailers) - 1; i >= 0; i-- {
			if info, ok := raw.RefOf(trailers[i].dict, "Info"); ok {
				trailer.Set(raw.NameLiteral("Info"), raw.RefObj{R: info})
				break
			}
		}
	}
	maxNum := 0
	for num := range t.entries {
		if num > maxNum {
			maxNum = num
		}
	}
	trailer.Set(raw.NameLiteral("Size"), raw.NumberInt(int64(maxNum+1)))
	t.trailer = trailer
	return t, nil
}

// scanTrailers parses every "trailer" keyword followed by a dictionary.
func scanTrailers(data []byte, rec recovery.Strategy) []trailerCandidate {
	var out []trailerCandidate
	kw := []byte("trailer")
	for pos := 0; ; {
		i := bytes.Index(data[pos:], kw)
		if i < 0 {
			return out
		}
		at := pos + i
		pos = at + len(kw)
		if at > 0 && isRegular(data[at-1]) {
			continue
		}
		s := scanner.NewBytes(data, scanner.Config{Recovery: rec})
		p := parser.New(s, parser.Config{Recovery: rec})
		if err := p.SeekTo(int64(pos)); err != nil {
			continue
		}
		obj, err := p.ParseObject()
		if err != nil {
			continue
		}
		if d, ok := obj.(*raw.DictObj); ok {
			out = append(out, trailerCandidate{offset: int64(at), dict: d})
		}
	}
}

// nextObjectHeader finds the next "<int> <int> obj" at or after from. It
// returns the offset of the object number and the offset just past "obj",
// or -1 when none remain.
func nextObjectHeader(data []byte, from int) (int, int) {
	kw := []byte("obj")
	lowest := from
	for from < len(data) {
		i := bytes.Index(data[from:], kw)
		if i < 0 {
			return -1, len(data)
		}
		at := from + i
		after := at + len(kw)
		from = after
		if after < len(data) && isRegular(data[after]) {
			continue
		}
		// walk backwards over: space, generation, space, number
		j := at - 1
		spaces := 0
		for j >= 0 && isSpace(data[j]) {
			j--
			spaces++
		}
		genEnd := j
		for j >= 0 && data[j] >= '0' && data[j] <= '9' {
			j--
		}
		if spaces == 0 || j == genEnd {
			continue
		}
		spaces = 0
		for j >= 0 && isSpace(data[j]) {
			j--
			spaces++
		}
		numEnd := j
		for j >= 0 && data[j] >= '0' && data[j] <= '9' {
			j--
		}
		if spaces == 0 || j == numEnd {
			continue
		}
		if j >= 0 && isRegular(data[j]) {
			continue
		}
		start := j + 1
		if start < lowest {
			continue
		}
		return start, after
	}
	return -1, len(data)
}
