package parser

import "github.com/wudi/pdfcombine/scanner"

type streamLengthSetter interface{ SetNextStreamLength(int64) }

// tokenReader adds pushback on top of a scanner.
type tokenReader struct {
	s            scanner.Scanner
	buf          []scanner.Token
	lengthSetter streamLengthSetter
}

func newTokenReader(src scanner.Scanner) *tokenReader {
	return &tokenReader{s: src, lengthSetter: src}
}

func (r *tokenReader) next() (scanner.Token, error) {
	if l := len(r.buf); l > 0 {
		t := r.buf[l-1]
		r.buf = r.buf[:l-1]
		return t, nil
	}
	return r.s.Next()
}

func (r *tokenReader) unread(tok scanner.Token) { r.buf = append(r.buf, tok) }

func (r *tokenReader) reset() { r.buf = r.buf[:0] }

func (r *tokenReader) setStreamLengthHint(n int64) {
	if r.lengthSetter != nil {
		r.lengthSetter.SetNextStreamLength(n)
	}
}

func (r *tokenReader) clearStreamLengthHint() {
	if r.lengthSetter != nil {
		r.lengthSetter.SetNextStreamLength(-1)
	}
}
