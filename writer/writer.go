// Package writer serializes a set of numbered objects as a complete PDF file:
// header, body, cross-reference section and trailer.
package writer

import (
	"github.com/wudi/pdfcombine/ir/raw"
)

type PDFVersion string

const (
	PDF14 PDFVersion = "1.4"
	PDF15 PDFVersion = "1.5"
	PDF17 PDFVersion = "1.7"
)

type Config struct {
	// Version is used when the Document does not name one.
	Version PDFVersion
	// Compression is the zlib level for cross-reference streams. Zero selects
	// the zlib default.
	Compression int
	// XRefStreams writes a compressed cross-reference stream (PDF 1.5)
	// instead of a classic table.
	XRefStreams bool
	// Deterministic derives the file identifier from the written bytes only.
	Deterministic bool
}

// Document is the input to Write. Objects are keyed by object number; all
// generations are written as 0.
type Document struct {
	Version string
	Objects map[int]raw.Object
	Root    raw.ObjectRef
	// Info is optional; a zero Num omits the trailer entry.
	Info raw.ObjectRef
}

type Writer interface {
	Write(ctx Context, doc *Document, w WriterAt, cfg Config) error
	SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error)
}

// Interceptor observes objects as they are written.
type Interceptor interface {
	BeforeWrite(ctx Context, ref raw.ObjectRef, obj raw.Object) error
	AfterWrite(ctx Context, ref raw.ObjectRef, bytesWritten int64) error
}

type WriterBuilder struct{ interceptors []Interceptor }

func (b *WriterBuilder) WithInterceptor(i Interceptor) *WriterBuilder {
	b.interceptors = append(b.interceptors, i)
	return b
}
func (b *WriterBuilder) Build() Writer { return &impl{interceptors: b.interceptors} }

type WriterAt interface {
	Write(p []byte) (n int, err error)
}

type Context interface{ Done() <-chan struct{} }
