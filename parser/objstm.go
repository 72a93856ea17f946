package parser

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfcombine/ir/raw"
	"github.com/wudi/pdfcombine/pdferr"
	"github.com/wudi/pdfcombine/scanner"
)

// ObjStmEntry is one "num offset" pair from an object stream header.
// Offset is relative to the stream's First entry.
type ObjStmEntry struct {
	Num    int
	Offset int64
}

// ObjectStream is a decoded /Type /ObjStm payload.
type ObjectStream struct {
	Entries []ObjStmEntry
	First   int64
	Data    []byte
}

// NewObjectStream reads the header of a decoded object stream described by dict.
func NewObjectStream(dict *raw.DictObj, decoded []byte) (*ObjectStream, error) {
	n, ok := raw.IntOf(dict, "N")
	if !ok || n < 0 || n > int64(len(decoded)) {
		return nil, errors.New("object stream N missing or out of range")
	}
	first, ok := raw.IntOf(dict, "First")
	if !ok || first < 0 || first > int64(len(decoded)) {
		return nil, errors.New("object stream First out of range")
	}
	s := scanner.NewBytes(decoded[:first], scanner.Config{})
	entries := make([]ObjStmEntry, 0, n)
	for i := int64(0); i < n; i++ {
		numTok, err := s.Next()
		if err != nil {
			return nil, fmt.Errorf("object stream header pair %d: %w", i, err)
		}
		offTok, err := s.Next()
		if err != nil {
			return nil, fmt.Errorf("object stream header pair %d: %w", i, err)
		}
		if numTok.Type != scanner.TokenNumber || !numTok.IsInt || numTok.Int <= 0 ||
			offTok.Type != scanner.TokenNumber || !offTok.IsInt || offTok.Int < 0 {
			return nil, &pdferr.ParseError{Offset: numTok.Pos, Err: fmt.Errorf("object stream header pair %d malformed", i)}
		}
		entries = append(entries, ObjStmEntry{Num: int(numTok.Int), Offset: offTok.Int})
	}
	return &ObjectStream{Entries: entries, First: first, Data: decoded}, nil
}

// Object parses the idx-th object of the stream. Streams cannot be nested in
// object streams, so a dictionary is never followed by a payload here.
func (o *ObjectStream) Object(idx int, cfg Config) (raw.ObjectRef, raw.Object, error) {
	if idx < 0 || idx >= len(o.Entries) {
		return raw.ObjectRef{}, nil, fmt.Errorf("object stream index %d out of range", idx)
	}
	e := o.Entries[idx]
	start := o.First + e.Offset
	if start >= int64(len(o.Data)) {
		return raw.ObjectRef{}, nil, fmt.Errorf("object %d offset beyond object stream", e.Num)
	}
	end := int64(len(o.Data))
	if idx+1 < len(o.Entries) {
		if next := o.First + o.Entries[idx+1].Offset; next > start && next <= end {
			end = next
		}
	}
	s := scanner.NewBytes(o.Data[start:end], scanner.Config{Recovery: cfg.Recovery})
	p := New(s, cfg)
	p.num = e.Num
	obj, err := p.parseObject(0)
	if err != nil {
		return raw.ObjectRef{}, nil, err
	}
	return raw.ObjectRef{Num: e.Num}, obj, nil
}
