// Package textenc converts between Go strings and PDF text strings.
package textenc

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

var (
	bomUTF16BE = []byte{0xFE, 0xFF}
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
)

// pdfDocOverrides lists the PDFDocEncoding code points that differ from ISO 8859-1.
var pdfDocOverrides = map[byte]rune{
	0x18: '˘', 0x19: 'ˇ', 0x1A: 'ˆ', 0x1B: '˙',
	0x1C: '˝', 0x1D: '˛', 0x1E: '˚', 0x1F: '˜',
	0x80: '•', 0x81: '†', 0x82: '‡', 0x83: '…',
	0x84: '—', 0x85: '–', 0x86: 'ƒ', 0x87: '⁄',
	0x88: '‹', 0x89: '›', 0x8A: '−', 0x8B: '‰',
	0x8C: '„', 0x8D: '“', 0x8E: '”', 0x8F: '‘',
	0x90: '’', 0x91: '‚', 0x92: '™', 0x93: 'ﬁ',
	0x94: 'ﬂ', 0x95: 'Ł', 0x96: 'Œ', 0x97: 'Š',
	0x98: 'Ÿ', 0x99: 'Ž', 0x9A: 'ı', 0x9B: 'ł',
	0x9C: 'œ', 0x9D: 'š', 0x9E: 'ž', 0x9F: utf8.RuneError,
	0xA0: '€',
}

// Encode returns the PDF text string bytes for s: printable ASCII as is,
// anything else as UTF-16BE with a byte order mark.
func Encode(s string) []byte {
	ascii := true
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 0x80 || (c < 0x20 && c != '\n' && c != '\r' && c != '\t') {
			ascii = false
			break
		}
	}
	if ascii {
		return []byte(s)
	}
	out, err := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder().Bytes([]byte(s))
	if err != nil {
		return []byte(s)
	}
	return out
}

// Decode interprets b as a PDF text string: UTF-16BE or UTF-8 when a byte
// order mark is present, PDFDocEncoding otherwise.
func Decode(b []byte) string {
	switch {
	case bytes.HasPrefix(b, bomUTF16BE):
		out, err := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder().Bytes(b)
		if err == nil {
			return string(out)
		}
	case bytes.HasPrefix(b, bomUTF8):
		return string(b[len(bomUTF8):])
	}
	var sb bytes.Buffer
	for _, c := range b {
		if r, ok := pdfDocOverrides[c]; ok {
			sb.WriteRune(r)
			continue
		}
		sb.WriteRune(charmap.ISO8859_1.DecodeByte(c))
	}
	return sb.String()
}
