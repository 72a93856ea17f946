// Package document exposes one parsed input file: its version, trailer,
// lazily resolved objects, catalog and flattened page sequence.
//
// A Document is built once by Open and is read-only afterwards. Resolved
// objects are memoized per document, keyed by object number.
package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/wudi/pdfcombine/filters"
	"github.com/wudi/pdfcombine/ir/raw"
	"github.com/wudi/pdfcombine/observability"
	"github.com/wudi/pdfcombine/parser"
	"github.com/wudi/pdfcombine/pdferr"
	"github.com/wudi/pdfcombine/recovery"
	"github.com/wudi/pdfcombine/security"
	"github.com/wudi/pdfcombine/textenc"
	"github.com/wudi/pdfcombine/xref"
)

// headerWindow is how far into the file the %PDF- marker is searched for.
const headerWindow = 1024

type Config struct {
	// ID distinguishes documents taking part in one merge.
	ID       int
	Recovery recovery.Strategy
	Limits   security.Limits
	Logger   observability.Logger
}

type Document struct {
	id       int
	version  string
	data     []byte
	table    xref.Table
	trailer  *raw.DictObj
	repaired bool
	linear   bool

	limits   security.Limits
	rec      recovery.Strategy
	logger   observability.Logger
	pipeline *filters.Pipeline

	mu      sync.Mutex
	cache   map[int]raw.Object
	loading map[int]bool
	objStms map[int]*parser.ObjectStream
}

// Open parses the header and cross-reference data of a PDF held in data.
// Objects are not parsed until they are resolved.
func Open(ctx context.Context, data []byte, cfg Config) (*Document, error) {
	limits := cfg.Limits.WithDefaults()
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger{}
	}
	rec := cfg.Recovery
	if rec == nil {
		rec = recovery.NewLenientStrategy().WithLogger(logger)
	}

	start, version, err := findHeader(data)
	if err != nil {
		return nil, err
	}
	if start > 0 {
		logger.Debug("skipping bytes before header", observability.Int("bytes", start))
	}
	data = data[start:]

	resolver := xref.NewResolver(xref.ResolverConfig{
		MaxXRefDepth:        limits.MaxXRefDepth,
		MaxDecompressedSize: limits.MaxDecompressedSize,
		Recovery:            rec,
		Logger:              logger,
	})
	table, err := resolver.Resolve(ctx, source(data))
	if err != nil {
		return nil, fmt.Errorf("resolve xref: %w", err)
	}
	trailer := resolver.Trailer()
	if err := security.CheckEncryption(trailer); err != nil {
		return nil, err
	}

	d := &Document{
		id:       cfg.ID,
		version:  version,
		data:     data,
		table:    table,
		trailer:  trailer,
		repaired: resolver.Repaired(),
		linear:   resolver.Linearized(),
		limits:   limits,
		rec:      rec,
		logger:   logger,
		pipeline: filters.NewDefaultPipeline(filters.Limits{MaxDecompressedSize: limits.MaxDecompressedSize}),
		cache:    make(map[int]raw.Object),
		loading:  make(map[int]bool),
		objStms:  make(map[int]*parser.ObjectStream),
	}
	if d.linear {
		logger.Debug("ignoring linearization hints")
	}
	if v := d.catalogVersion(); v != "" && CompareVersions(v, version) > 0 {
		d.version = v
	}
	return d, nil
}

// source serves an in-memory file to the xref resolver without copying.
type source []byte

func (s source) Bytes() []byte { return s }

func (s source) ReadAt(p []byte, off int64) (int, error) {
	return bytes.NewReader(s).ReadAt(p, off)
}

func findHeader(data []byte) (int, string, error) {
	window := data
	if len(window) > headerWindow {
		window = window[:headerWindow]
	}
	idx := bytes.Index(window, []byte("%PDF-"))
	if idx < 0 {
		return 0, "", &pdferr.ParseError{Offset: 0, Err: errors.New("missing %PDF- header")}
	}
	v := data[idx+len("%PDF-"):]
	end := 0
	for end < len(v) && end < 8 && (v[end] == '.' || (v[end] >= '0' && v[end] <= '9')) {
		end++
	}
	version := string(v[:end])
	if _, _, ok := splitVersion(version); !ok {
		return 0, "", &pdferr.ParseError{Offset: int64(idx), Err: fmt.Errorf("malformed header version %q", version)}
	}
	return idx, version, nil
}

// ID is the identity given in Config.
func (d *Document) ID() int { return d.id }

// Version is the header version, raised by a catalog /Version entry.
func (d *Document) Version() string { return d.version }

func (d *Document) Trailer() *raw.DictObj { return d.trailer }

// Repaired reports whether the cross-reference table was rebuilt by scanning.
func (d *Document) Repaired() bool { return d.repaired }

// Linearized reports whether the file was saved for incremental loading.
// Objects are still read through the cross-reference data.
func (d *Document) Linearized() bool { return d.linear }

// ObjectCount is the number of objects the cross-reference table knows.
func (d *Document) ObjectCount() int { return len(d.table.Objects()) }

// CacheLen reports how many objects have been resolved and memoized.
func (d *Document) CacheLen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.cache)
}

// Resolve returns the object stored under ref. Results are memoized.
func (d *Document) Resolve(ref raw.ObjectRef) (raw.Object, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resolveLocked(ref)
}

// Deref follows o if it is a reference; other values are returned as is.
func (d *Document) Deref(o raw.Object) (raw.Object, error) {
	r, ok := o.(raw.RefObj)
	if !ok {
		return o, nil
	}
	return d.Resolve(r.R)
}

// Catalog resolves the trailer's Root dictionary.
func (d *Document) Catalog() (*raw.DictObj, raw.ObjectRef, error) {
	root, ok := raw.RefOf(d.trailer, "Root")
	if !ok {
		return nil, raw.ObjectRef{}, &pdferr.StructuralError{Msg: "trailer has no Root reference"}
	}
	obj, err := d.Resolve(root)
	if err != nil {
		return nil, root, err
	}
	cat, ok := obj.(*raw.DictObj)
	if !ok {
		return nil, root, &pdferr.StructuralError{Ref: root, Msg: "catalog is not a dictionary"}
	}
	return cat, root, nil
}

// Title returns the document information Title, decoded to UTF-8.
func (d *Document) Title() string {
	info, err := d.Deref(d.trailer.KV["Info"])
	if err != nil {
		return ""
	}
	dict, ok := info.(*raw.DictObj)
	if !ok {
		return ""
	}
	title, err := d.Deref(dict.KV["Title"])
	if err != nil {
		return ""
	}
	if s, ok := title.(raw.StringObj); ok {
		return textenc.Decode(s.Bytes)
	}
	return ""
}

func (d *Document) catalogVersion() string {
	cat, _, err := d.Catalog()
	if err != nil {
		return ""
	}
	v, ok := raw.NameOf(cat, "Version")
	if !ok {
		return ""
	}
	if _, _, ok := splitVersion(v); !ok {
		return ""
	}
	return v
}

func splitVersion(v string) (int, int, bool) {
	dot := bytes.IndexByte([]byte(v), '.')
	if dot <= 0 || dot == len(v)-1 {
		return 0, 0, false
	}
	major, err1 := strconv.Atoi(v[:dot])
	minor, err2 := strconv.Atoi(v[dot+1:])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return major, minor, true
}

// CompareVersions orders PDF version strings such as "1.4" and "2.0".
// Malformed versions sort first.
func CompareVersions(a, b string) int {
	amaj, amin, aok := splitVersion(a)
	bmaj, bmin, bok := splitVersion(b)
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return -1
	case !bok:
		return 1
	case amaj != bmaj:
		return amaj - bmaj
	}
	return amin - bmin
}
