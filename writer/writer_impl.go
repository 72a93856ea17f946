package writer

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"crypto/rand"
	"errors"
	"fmt"
	"hash"
	"io"
	"sort"

	"golang.org/x/crypto/blake2b"

	"github.com/wudi/pdfcombine/ir/raw"
	"github.com/wudi/pdfcombine/pdferr"
)

const binaryComment = "%\xE2\xE3\xCF\xD3\n"

type impl struct{ interceptors []Interceptor }

// countingWriter tracks the byte offset and feeds the file identifier hash.
type countingWriter struct {
	w   *bufio.Writer
	h   hash.Hash
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.h.Write(p[:n])
	c.n += int64(n)
	if err != nil {
		c.err = err
	}
	return n, err
}

func (w *impl) Write(ctx Context, doc *Document, out WriterAt, cfg Config) error {
	if doc == nil || len(doc.Objects) == 0 {
		return errors.New("writer: empty document")
	}
	if _, ok := doc.Objects[doc.Root.Num]; !ok || doc.Root.Num <= 0 {
		return fmt.Errorf("writer: root object %d not present", doc.Root.Num)
	}
	h, err := blake2b.New(16, nil)
	if err != nil {
		return err
	}
	cw := &countingWriter{w: bufio.NewWriter(out), h: h}

	version := doc.Version
	if version == "" {
		version = string(cfg.Version)
	}
	if version == "" {
		version = string(PDF17)
	}
	fmt.Fprintf(cw, "%%PDF-%s\n%s", version, binaryComment)

	nums := make([]int, 0, len(doc.Objects))
	for n := range doc.Objects {
		if n > 0 {
			nums = append(nums, n)
		}
	}
	sort.Ints(nums)
	offsets := make(map[int]int64, len(nums))
	for _, n := range nums {
		select {
		case <-ctx.Done():
			return contextErr(ctx)
		default:
		}
		ref := raw.ObjectRef{Num: n}
		obj := doc.Objects[n]
		for _, ic := range w.interceptors {
			if err := ic.BeforeWrite(ctx, ref, obj); err != nil {
				return err
			}
		}
		data, err := w.SerializeObject(ref, obj)
		if err != nil {
			return err
		}
		offsets[n] = cw.n
		if _, err := cw.Write(data); err != nil {
			return &pdferr.IoError{Err: err}
		}
		for _, ic := range w.interceptors {
			if err := ic.AfterWrite(ctx, ref, int64(len(data))); err != nil {
				return err
			}
		}
	}

	maxNum := nums[len(nums)-1]
	id := w.fileID(cw.h, cfg)
	trailer := raw.Dict()
	trailer.Set(raw.NameLiteral("Root"), raw.Ref(doc.Root.Num, 0))
	if doc.Info.Num > 0 {
		trailer.Set(raw.NameLiteral("Info"), raw.Ref(doc.Info.Num, 0))
	}
	trailer.Set(raw.NameLiteral("ID"), raw.NewArray(raw.HexStr(id), raw.HexStr(id)))

	xrefOffset := cw.n
	if cfg.XRefStreams {
		err = writeXRefStream(cw, offsets, maxNum, trailer, cfg)
	} else {
		err = writeXRefTable(cw, offsets, maxNum, trailer)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cw, "startxref\n%d\n%%%%EOF\n", xrefOffset)
	if cw.err != nil {
		return &pdferr.IoError{Err: cw.err}
	}
	if err := cw.w.Flush(); err != nil {
		return &pdferr.IoError{Err: err}
	}
	return nil
}

// fileID is a 16-byte BLAKE2b digest of everything written so far. Unless
// the output is deterministic, random bytes are mixed in.
func (w *impl) fileID(h hash.Hash, cfg Config) []byte {
	if !cfg.Deterministic {
		salt := make([]byte, 16)
		if _, err := rand.Read(salt); err == nil {
			h.Write(salt)
		}
	}
	return h.Sum(nil)
}

// freeList returns the next-free links for numbers in [0, maxNum] without an
// offset. Object 0 heads the list and the last free entry points back to 0.
func freeList(offsets map[int]int64, maxNum int) map[int]int {
	next := make(map[int]int)
	prev := 0
	for n := 1; n <= maxNum; n++ {
		if _, ok := offsets[n]; ok {
			continue
		}
		next[prev] = n
		prev = n
	}
	next[prev] = 0
	return next
}

func writeXRefTable(w io.Writer, offsets map[int]int64, maxNum int, trailer *raw.DictObj) error {
	free := freeList(offsets, maxNum)
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "xref\n0 %d\n", maxNum+1)
	for n := 0; n <= maxNum; n++ {
		if off, ok := offsets[n]; ok && n > 0 {
			fmt.Fprintf(&buf, "%010d 00000 n\r\n", off)
			continue
		}
		gen := 0
		if n == 0 {
			gen = 65535
		}
		fmt.Fprintf(&buf, "%010d %05d f\r\n", free[n], gen)
	}
	trailer.Set(raw.NameLiteral("Size"), raw.NumberInt(int64(maxNum+1)))
	buf.WriteString("trailer\n")
	appendObject(&buf, trailer)
	buf.WriteString("\n")
	if _, err := w.Write(buf.Bytes()); err != nil {
		return &pdferr.IoError{Err: err}
	}
	return nil
}

// writeXRefStream writes the cross-reference stream as object maxNum+1.
// Rows are W [1 n 2]: type, offset (or next free), generation.
func writeXRefStream(w *countingWriter, offsets map[int]int64, maxNum int, trailer *raw.DictObj, cfg Config) error {
	selfNum := maxNum + 1
	selfOffset := w.n
	all := make(map[int]int64, len(offsets)+1)
	for k, v := range offsets {
		all[k] = v
	}
	all[selfNum] = selfOffset
	free := freeList(all, selfNum)

	width := offsetWidth(selfOffset)
	rows := make([]byte, 0, (selfNum+1)*(width+3))
	for n := 0; n <= selfNum; n++ {
		if off, ok := all[n]; ok && n > 0 {
			rows = appendXRefStreamEntry(rows, width, 1, off, 0)
			continue
		}
		gen := 0
		if n == 0 {
			gen = 65535
		}
		rows = appendXRefStreamEntry(rows, width, 0, int64(free[n]), gen)
	}

	level := cfg.Compression
	if level == 0 {
		level = zlib.DefaultCompression
	}
	var zbuf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&zbuf, level)
	if err != nil {
		return err
	}
	if _, err := zw.Write(rows); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}

	dict := trailer
	dict.Set(raw.NameLiteral("Type"), raw.NameLiteral("XRef"))
	dict.Set(raw.NameLiteral("Size"), raw.NumberInt(int64(selfNum+1)))
	dict.Set(raw.NameLiteral("W"), raw.NewArray(raw.NumberInt(1), raw.NumberInt(int64(width)), raw.NumberInt(2)))
	dict.Set(raw.NameLiteral("Filter"), raw.NameLiteral("FlateDecode"))

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d 0 obj\n", selfNum)
	appendObject(&buf, raw.NewStream(dict, zbuf.Bytes()))
	buf.WriteString("\nendobj\n")
	if _, err := w.Write(buf.Bytes()); err != nil {
		return &pdferr.IoError{Err: err}
	}
	return nil
}

func offsetWidth(maxOffset int64) int {
	width := 1
	for v := maxOffset >> 8; v > 0; v >>= 8 {
		width++
	}
	return width
}

func appendXRefStreamEntry(buf []byte, width, typ int, field2 int64, gen int) []byte {
	buf = append(buf, byte(typ))
	for i := width - 1; i >= 0; i-- {
		buf = append(buf, byte(field2>>(8*i)))
	}
	return append(buf, byte(gen>>8), byte(gen))
}

func contextErr(ctx Context) error {
	if c, ok := ctx.(interface{ Err() error }); ok && c.Err() != nil {
		return c.Err()
	}
	return errors.New("writer: canceled")
}
