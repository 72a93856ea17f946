// Package testpdf assembles small PDF files for tests.
package testpdf

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type object struct {
	num  int
	body string
}

// Builder collects object bodies and lays them out with a cross-reference
// section. Object numbers need not be contiguous.
type Builder struct {
	Version string

	objs    []object
	objStms map[int][]object
	offsets map[int]int64
	wrong   map[int]int64
}

func New() *Builder {
	return &Builder{Version: "1.7", objStms: make(map[int][]object), wrong: make(map[int]int64)}
}

// Add appends "num 0 obj body endobj".
func (b *Builder) Add(num int, body string) *Builder {
	b.objs = append(b.objs, object{num: num, body: body})
	return b
}

// AddStream appends a stream object; Length is filled in from data.
func (b *Builder) AddStream(num int, dictEntries string, data []byte) *Builder {
	body := fmt.Sprintf("<< %s /Length %d >>\nstream\n%s\nendstream", dictEntries, len(data), data)
	return b.Add(num, body)
}

// AddCompressed stores body in object stream stm. Only honoured by
// BytesXRefStream.
func (b *Builder) AddCompressed(stm, num int, body string) *Builder {
	b.objStms[stm] = append(b.objStms[stm], object{num: num, body: body})
	return b
}

// WrongOffset makes the xref entry for num an in-use entry at off, even when
// num is also stored in an object stream.
func (b *Builder) WrongOffset(num int, off int64) *Builder {
	b.wrong[num] = off
	return b
}

// Offsets returns the byte offset of every directly written object from the
// last call to Bytes or BytesXRefStream.
func (b *Builder) Offsets() map[int]int64 { return b.offsets }

func (b *Builder) writeObjects(buf *bytes.Buffer) int {
	b.offsets = make(map[int]int64)
	fmt.Fprintf(buf, "%%PDF-%s\n%%\xE2\xE3\xCF\xD3\n", b.Version)
	maxNum := 0
	for _, o := range b.objs {
		b.offsets[o.num] = int64(buf.Len())
		fmt.Fprintf(buf, "%d 0 obj\n%s\nendobj\n", o.num, o.body)
		if o.num > maxNum {
			maxNum = o.num
		}
	}
	return maxNum
}

// Bytes lays out the objects followed by a classic xref table and a trailer
// holding Size plus trailerEntries (for example "/Root 1 0 R").
func (b *Builder) Bytes(trailerEntries string) []byte {
	var buf bytes.Buffer
	maxNum := b.writeObjects(&buf)
	xrefOff := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", maxNum+1)
	for n := 1; n <= maxNum; n++ {
		off, ok := b.offsets[n]
		if w, bad := b.wrong[n]; bad {
			off, ok = w, true
		}
		if ok {
			fmt.Fprintf(&buf, "%010d 00000 n \n", off)
		} else {
			buf.WriteString("0000000000 65535 f \n")
		}
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d %s >>\nstartxref\n%d\n%%%%EOF\n", maxNum+1, trailerEntries, xrefOff)
	return buf.Bytes()
}

// BytesXRefStream lays out the objects, any object streams, and a flate
// compressed cross-reference stream with PNG Up prediction.
func (b *Builder) BytesXRefStream(trailerEntries string) []byte {
	var buf bytes.Buffer
	maxNum := b.writeObjects(&buf)

	type loc struct{ stm, idx int }
	compressed := make(map[int]loc)
	stms := make([]int, 0, len(b.objStms))
	for stm := range b.objStms {
		stms = append(stms, stm)
	}
	sort.Ints(stms)
	for _, stm := range stms {
		members := b.objStms[stm]
		var head, body strings.Builder
		for i, m := range members {
			fmt.Fprintf(&head, "%d %d ", m.num, body.Len())
			body.WriteString(m.body)
			body.WriteString("\n")
			compressed[m.num] = loc{stm: stm, idx: i}
			if m.num > maxNum {
				maxNum = m.num
			}
		}
		payload := zlibBytes([]byte(head.String() + body.String()))
		b.offsets[stm] = int64(buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n<< /Type /ObjStm /N %d /First %d /Filter /FlateDecode /Length %d >>\nstream\n",
			stm, len(members), head.Len(), len(payload))
		buf.Write(payload)
		buf.WriteString("\nendstream\nendobj\n")
		if stm > maxNum {
			maxNum = stm
		}
	}

	xrefNum := maxNum + 1
	xrefOff := int64(buf.Len())
	b.offsets[xrefNum] = xrefOff
	size := xrefNum + 1
	const rowLen = 1 + 4 + 2
	rows := make([]byte, 0, size*(rowLen+1))
	prev := make([]byte, rowLen)
	for n := 0; n < size; n++ {
		row := make([]byte, rowLen)
		if w, bad := b.wrong[n]; bad {
			row[0] = 1
			putUint(row[1:5], w)
		} else if c, ok := compressed[n]; ok {
			row[0] = 2
			putUint(row[1:5], int64(c.stm))
			putUint(row[5:7], int64(c.idx))
		} else if off, ok := b.offsets[n]; ok {
			row[0] = 1
			putUint(row[1:5], off)
		} else if n == 0 {
			putUint(row[5:7], 65535)
		}
		// PNG Up filter
		rows = append(rows, 2)
		for i := range row {
			rows = append(rows, row[i]-prev[i])
		}
		prev = row
	}
	payload := zlibBytes(rows)
	fmt.Fprintf(&buf, "%d 0 obj\n<< /Type /XRef /Size %d /W [1 4 2] /Filter /FlateDecode /DecodeParms << /Predictor 12 /Columns %d >> %s /Length %d >>\nstream\n",
		xrefNum, size, rowLen, trailerEntries, len(payload))
	buf.Write(payload)
	fmt.Fprintf(&buf, "\nendstream\nendobj\nstartxref\n%d\n%%%%EOF\n", xrefOff)
	return buf.Bytes()
}

// Append adds an incremental update to base: the given objects, a classic
// xref section listing only them, and a trailer with Prev set to the
// previous startxref offset.
func Append(base []byte, trailerEntries string, objs map[int]string) []byte {
	prev := lastStartXRef(base)
	var buf bytes.Buffer
	buf.Write(base)
	nums := make([]int, 0, len(objs))
	for n := range objs {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	offsets := make(map[int]int, len(nums))
	maxNum := 0
	for _, n := range nums {
		offsets[n] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", n, objs[n])
		if n > maxNum {
			maxNum = n
		}
	}
	xrefOff := buf.Len()
	buf.WriteString("xref\n0 1\n0000000000 65535 f \n")
	for _, n := range nums {
		fmt.Fprintf(&buf, "%d 1\n%010d 00000 n \n", n, offsets[n])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Prev %d %s >>\nstartxref\n%d\n%%%%EOF\n", maxNum+1, prev, trailerEntries, xrefOff)
	return buf.Bytes()
}

func lastStartXRef(data []byte) int64 {
	i := bytes.LastIndex(data, []byte("startxref"))
	if i < 0 {
		return 0
	}
	fields := bytes.Fields(data[i+len("startxref"):])
	if len(fields) == 0 {
		return 0
	}
	v, err := strconv.ParseInt(string(fields[0]), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func putUint(dst []byte, v int64) {
	for i := len(dst) - 1; i >= 0; i-- {
		dst[i] = byte(v)
		v >>= 8
	}
}

func zlibBytes(data []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	w.Write(data)
	w.Close()
	return buf.Bytes()
}

// Doc builds a document with n pages under one Pages node. Every page draws
// label and its page number with a font shared by all pages.
func Doc(n int, label string) []byte {
	b := New()
	kids := make([]string, n)
	for i := 0; i < n; i++ {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	b.Add(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.Add(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d /MediaBox [0 0 612 792] >>", strings.Join(kids, " "), n))
	b.Add(3, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")
	for i := 0; i < n; i++ {
		page, content := 4+2*i, 5+2*i
		b.Add(page, fmt.Sprintf("<< /Type /Page /Parent 2 0 R /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", content))
		b.AddStream(content, "", []byte(fmt.Sprintf("BT /F1 24 Tf 72 700 Td (%s page %d) Tj ET", label, i+1)))
	}
	return b.Bytes("/Root 1 0 R")
}
