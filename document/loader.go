package document

import (
	"context"
	"fmt"

	"github.com/wudi/pdfcombine/ir/raw"
	"github.com/wudi/pdfcombine/observability"
	"github.com/wudi/pdfcombine/parser"
	"github.com/wudi/pdfcombine/pdferr"
	"github.com/wudi/pdfcombine/scanner"
	"github.com/wudi/pdfcombine/xref"
)

// resolveLocked assumes the caller holds d.mu.
func (d *Document) resolveLocked(ref raw.ObjectRef) (raw.Object, error) {
	if obj, ok := d.cache[ref.Num]; ok {
		return obj, nil
	}
	if d.loading[ref.Num] {
		return nil, &pdferr.StructuralError{Ref: ref, Msg: "object depends on itself while loading"}
	}
	entry, ok := d.table.Entry(ref.Num)
	if !ok || entry.Kind == xref.EntryFree {
		return nil, &pdferr.DanglingReferenceError{Ref: ref}
	}

	d.loading[ref.Num] = true
	defer delete(d.loading, ref.Num)

	var obj raw.Object
	var err error
	switch entry.Kind {
	case xref.EntryInUse:
		obj, err = d.loadAtOffset(ref.Num, entry.Offset)
	case xref.EntryCompressed:
		obj, err = d.loadFromObjectStream(ref.Num, entry.Stream, entry.Index)
	}
	if err != nil {
		return nil, err
	}
	d.cache[ref.Num] = obj
	return obj, nil
}

func (d *Document) newParser() *parser.Parser {
	s := scanner.NewBytes(d.data, scanner.Config{
		Recovery:        d.rec,
		MaxStringLength: d.limits.MaxStringLength,
		MaxStreamLength: d.limits.MaxStreamLength,
	})
	return parser.New(s, parser.Config{Recovery: d.rec, MaxDepth: d.limits.MaxIndirectDepth})
}

func (d *Document) loadAtOffset(objNum int, offset int64) (raw.Object, error) {
	p := d.newParser()
	if err := p.SeekTo(offset); err != nil {
		return nil, &pdferr.ParseError{Offset: offset, Object: objNum, Err: err}
	}
	ref, obj, err := p.ParseIndirect(d.streamLength)
	if err != nil {
		return nil, err
	}
	if ref.Num != objNum {
		return nil, &pdferr.ParseError{Offset: offset, Object: objNum, Err: fmt.Errorf("found object %d at offset", ref.Num)}
	}
	return obj, nil
}

// streamLength resolves /Length, following an indirect reference with a
// separate parser so the caller's position is kept. Unusable values make the
// scanner search for endstream.
func (d *Document) streamLength(dict *raw.DictObj) (int64, error) {
	switch v := dict.KV["Length"].(type) {
	case raw.NumberObj:
		if v.Int() >= 0 {
			return v.Int(), nil
		}
	case raw.RefObj:
		obj, err := d.resolveLocked(v.R)
		if err != nil {
			d.logger.Debug("stream length unresolved", observability.String("ref", v.R.String()), observability.Error("error", err))
			return -1, nil
		}
		if n, ok := obj.(raw.NumberObj); ok && n.Int() >= 0 {
			return n.Int(), nil
		}
	}
	return -1, nil
}

func (d *Document) loadFromObjectStream(objNum, streamNum, idx int) (raw.Object, error) {
	stm, err := d.objectStream(streamNum)
	if err != nil {
		return nil, fmt.Errorf("object %d: %w", objNum, err)
	}
	// the index from the xref is a hint; fall back to a search by number
	if idx < 0 || idx >= len(stm.Entries) || stm.Entries[idx].Num != objNum {
		idx = -1
		for i, e := range stm.Entries {
			if e.Num == objNum {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, &pdferr.DanglingReferenceError{Ref: raw.ObjectRef{Num: objNum}}
		}
	}
	_, obj, err := stm.Object(idx, parser.Config{Recovery: d.rec, MaxDepth: d.limits.MaxIndirectDepth})
	return obj, err
}

func (d *Document) objectStream(num int) (*parser.ObjectStream, error) {
	if stm, ok := d.objStms[num]; ok {
		return stm, nil
	}
	obj, err := d.resolveLocked(raw.ObjectRef{Num: num})
	if err != nil {
		return nil, fmt.Errorf("load object stream %d: %w", num, err)
	}
	st, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil, &pdferr.StructuralError{Ref: raw.ObjectRef{Num: num}, Msg: "object stream is not a stream"}
	}
	decoded, err := d.pipeline.DecodeStream(context.Background(), st)
	if err != nil {
		return nil, &pdferr.ParseError{Object: num, Err: fmt.Errorf("decode object stream: %w", err)}
	}
	stm, err := parser.NewObjectStream(st.Dict, decoded)
	if err != nil {
		return nil, &pdferr.ParseError{Object: num, Err: err}
	}
	d.objStms[num] = stm
	d.logger.Debug("expanded object stream", observability.Int("object", num), observability.Int("entries", len(stm.Entries)))
	return stm, nil
}
