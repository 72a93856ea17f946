package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/wudi/pdfcombine/pdferr"
	"github.com/wudi/pdfcombine/recovery"
)

type TokenType int

const (
	TokenDict    TokenType = iota // '<<'
	TokenArray                    // '['
	TokenName                     // '/Name'
	TokenString                   // literal or hex string
	TokenNumber                   // numeric value
	TokenBoolean                  // true/false
	TokenNull                     // null
	TokenRef                      // indirect ref '5 0 R'
	TokenStream                   // 'stream' keyword with its payload
	TokenKeyword                  // other keywords (obj, endobj, >>, ], trailer, etc.)
)

func (t TokenType) String() string {
	switch t {
	case TokenDict:
		return "dict"
	case TokenArray:
		return "array"
	case TokenName:
		return "name"
	case TokenString:
		return "string"
	case TokenNumber:
		return "number"
	case TokenBoolean:
		return "boolean"
	case TokenNull:
		return "null"
	case TokenRef:
		return "ref"
	case TokenStream:
		return "stream"
	case TokenKeyword:
		return "keyword"
	}
	return "unknown"
}

// Token is one lexical unit. For TokenRef, Int holds the object number and
// Gen the generation.
type Token struct {
	Type  TokenType
	Str   string
	Int   int64
	Float float64
	IsInt bool
	Bool  bool
	Bytes []byte
	Hex   bool
	Gen   int
	Pos   int64
}

// IsKeyword reports whether the token is the keyword kw.
func (t Token) IsKeyword(kw string) bool { return t.Type == TokenKeyword && t.Str == kw }

type Scanner interface {
	Next() (Token, error)
	Position() int64
	SeekTo(offset int64) error
	SetNextStreamLength(n int64)
}

type Config struct {
	MaxStringLength int64
	MaxStreamLength int64
	WindowSize      int64
	Recovery        recovery.Strategy
}

type ReaderAt interface {
	ReadAt(p []byte, off int64) (n int, err error)
}

// pdfScanner incrementally buffers PDF data from a ReaderAt in fixed-size windows.
type pdfScanner struct {
	reader        ReaderAt
	data          []byte
	pos           int64
	cfg           Config
	nextStreamLen int64
	chunkSize     int64
	eof           bool
}

// New returns a scanner positioned at offset 0 of r.
func New(r ReaderAt, cfg Config) Scanner {
	chunk := cfg.WindowSize
	if chunk <= 0 {
		chunk = 64 * 1024
	}
	return &pdfScanner{reader: r, cfg: cfg, nextStreamLen: -1, chunkSize: chunk}
}

// NewBytes returns a scanner over an in-memory buffer. The buffer is used in
// place and must not be modified while the scanner is in use.
func NewBytes(data []byte, cfg Config) Scanner {
	return &pdfScanner{data: data, cfg: cfg, nextStreamLen: -1, eof: true}
}

func (s *pdfScanner) Position() int64 { return s.pos }

func (s *pdfScanner) SeekTo(offset int64) error {
	if offset < 0 {
		return fmt.Errorf("seek out of range: %d", offset)
	}
	if offset > 0 {
		if err := s.ensure(offset - 1); err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("seek out of range: %d", offset)
			}
			return err
		}
	}
	s.pos = offset
	s.nextStreamLen = -1
	return nil
}

// SetNextStreamLength sets the payload length used by the next 'stream'
// keyword. A negative value makes the scanner search for 'endstream'.
func (s *pdfScanner) SetNextStreamLength(n int64) { s.nextStreamLen = n }

func (s *pdfScanner) Next() (Token, error) {
	if err := s.skipWSAndComments(); err != nil {
		return Token{}, err
	}
	start := s.pos
	c := s.data[s.pos]
	switch c {
	case '<':
		if s.peekAhead(1) == '<' {
			s.pos += 2
			return Token{Type: TokenDict, Str: "<<", Pos: start}, nil
		}
		return s.scanHexString()
	case '>':
		if s.peekAhead(1) == '>' {
			s.pos += 2
			return Token{Type: TokenKeyword, Str: ">>", Pos: start}, nil
		}
		s.pos++
		return Token{}, s.lexError(start, "unexpected '>'")
	case '[':
		s.pos++
		return Token{Type: TokenArray, Str: "[", Pos: start}, nil
	case ']', '{', '}':
		s.pos++
		return Token{Type: TokenKeyword, Str: string(c), Pos: start}, nil
	case '(':
		return s.scanLiteralString()
	case ')':
		s.pos++
		return Token{}, s.lexError(start, "unbalanced ')'")
	case '/':
		return s.scanName()
	}
	if isDigitStart(c) {
		return s.scanNumberOrRef()
	}
	if isRegular(c) {
		return s.scanKeyword()
	}
	s.pos++
	return Token{}, s.lexError(start, fmt.Sprintf("unexpected byte 0x%02x", c))
}

// Helpers
func (s *pdfScanner) skipWSAndComments() error {
	for {
		if err := s.ensure(s.pos); err != nil {
			return err
		}
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for {
				s.pos++
				if err := s.ensure(s.pos); err != nil {
					return err
				}
				if isEOL(s.data[s.pos]) {
					break
				}
			}
			continue
		}
		return nil
	}
}

// ensure makes data[n] addressable, returning io.EOF when n is past the input.
func (s *pdfScanner) ensure(n int64) error {
	for int64(len(s.data)) <= n {
		if s.eof {
			return io.EOF
		}
		if err := s.loadMore(); err != nil {
			return err
		}
	}
	return nil
}

func (s *pdfScanner) loadMore() error {
	buf := make([]byte, s.chunkSize)
	off := int64(len(s.data))
	n, err := s.reader.ReadAt(buf, off)
	if n > 0 {
		s.data = append(s.data, buf[:n]...)
	}
	if err == io.EOF || (err == nil && n == 0) {
		s.eof = true
		return nil
	}
	return err
}

func (s *pdfScanner) loadAll() error {
	for !s.eof {
		if err := s.loadMore(); err != nil {
			return err
		}
	}
	return nil
}

func (s *pdfScanner) byteAt(i int64) (byte, bool) {
	if err := s.ensure(i); err != nil {
		return 0, false
	}
	return s.data[i], true
}

func (s *pdfScanner) peekAhead(n int64) byte {
	c, _ := s.byteAt(s.pos + n)
	return c
}

func (s *pdfScanner) scanName() (Token, error) {
	start := s.pos
	s.pos++ // skip '/'
	var out bytes.Buffer
	for {
		c, ok := s.byteAt(s.pos)
		if !ok || isDelimiter(c) {
			break
		}
		if c == '#' { // hex escape in name
			a, okA := s.byteAt(s.pos + 1)
			b, okB := s.byteAt(s.pos + 2)
			if okA && okB && isHex(a) && isHex(b) {
				out.WriteByte(fromHex(a)<<4 | fromHex(b))
				s.pos += 3
				continue
			}
		}
		out.WriteByte(c)
		s.pos++
	}
	return Token{Type: TokenName, Str: out.String(), Pos: start}, nil
}

func (s *pdfScanner) scanLiteralString() (Token, error) { /* PDF 7.3.4.2 */
	start := s.pos
	s.pos++ // skip '('
	var buf bytes.Buffer
	depth := 1
	for depth > 0 {
		c, ok := s.byteAt(s.pos)
		if !ok {
			break
		}
		s.pos++
		switch c {
		case '\\':
			esc, ok := s.byteAt(s.pos)
			if !ok {
				continue
			}
			s.pos++
			switch {
			case esc == '\r': // line continuation
				if n, ok := s.byteAt(s.pos); ok && n == '\n' {
					s.pos++
				}
			case esc == '\n':
			case esc >= '0' && esc <= '7':
				val := int(esc - '0')
				for k := 0; k < 2; k++ {
					d, ok := s.byteAt(s.pos)
					if !ok || d < '0' || d > '7' {
						break
					}
					val = val<<3 + int(d-'0')
					s.pos++
				}
				buf.WriteByte(byte(val))
			default:
				buf.WriteByte(translateEscape(esc))
			}
		case '(':
			depth++
			buf.WriteByte(c)
		case ')':
			depth--
			if depth > 0 {
				buf.WriteByte(c)
			}
		default:
			buf.WriteByte(c)
		}
		if s.cfg.MaxStringLength > 0 && int64(buf.Len()) > s.cfg.MaxStringLength {
			return Token{}, s.lexError(start, "literal string too long")
		}
	}
	if depth != 0 {
		if err := s.recover(s.lexError(start, "unterminated literal string"), "literal"); err != nil {
			return Token{}, err
		}
	}
	return Token{Type: TokenString, Bytes: buf.Bytes(), Pos: start}, nil
}

func (s *pdfScanner) scanHexString() (Token, error) {
	start := s.pos
	s.pos++ // skip '<'
	var hexbuf []byte
	closed := false
	for {
		c, ok := s.byteAt(s.pos)
		if !ok {
			break
		}
		s.pos++
		if c == '>' {
			closed = true
			break
		}
		if isWhitespace(c) {
			continue
		}
		if !isHex(c) {
			if err := s.recover(s.lexError(s.pos-1, fmt.Sprintf("invalid hex digit %q", c)), "hex"); err != nil {
				return Token{}, err
			}
			continue
		}
		hexbuf = append(hexbuf, c)
	}
	if !closed {
		if err := s.recover(s.lexError(start, "unterminated hex string"), "hex"); err != nil {
			return Token{}, err
		}
	}
	// If odd number of nibbles, pad with 0
	if len(hexbuf)%2 == 1 {
		hexbuf = append(hexbuf, '0')
	}
	if s.cfg.MaxStringLength > 0 && int64(len(hexbuf)/2) > s.cfg.MaxStringLength {
		return Token{}, s.lexError(start, "hex string too long")
	}
	out := make([]byte, 0, len(hexbuf)/2)
	for i := 0; i < len(hexbuf); i += 2 {
		out = append(out, fromHex(hexbuf[i])<<4|fromHex(hexbuf[i+1]))
	}
	return Token{Type: TokenString, Bytes: out, Hex: true, Pos: start}, nil
}

// scanStream reads the payload following the 'stream' keyword. With a length
// hint the payload is exactly that many bytes, provided 'endstream' follows;
// otherwise the scanner searches for the 'endstream' marker.
func (s *pdfScanner) scanStream(start int64) (Token, error) {
	length := s.nextStreamLen
	s.nextStreamLen = -1
	// PDF 7.3.8: EOL after 'stream'. Tolerate stray spaces and a bare CR.
	for {
		c, ok := s.byteAt(s.pos)
		if !ok || c != ' ' {
			break
		}
		s.pos++
	}
	if c, ok := s.byteAt(s.pos); ok && c == '\r' {
		s.pos++
		if n, ok := s.byteAt(s.pos); ok && n == '\n' {
			s.pos++
		}
	} else if ok && c == '\n' {
		s.pos++
	}
	dataStart := s.pos

	if length >= 0 {
		if s.cfg.MaxStreamLength > 0 && length > s.cfg.MaxStreamLength {
			return Token{}, s.lexError(start, "stream too long")
		}
		end := dataStart + length
		if end == dataStart || s.ensure(end-1) == nil {
			p := end
			for {
				c, ok := s.byteAt(p)
				if !ok || !isWhitespace(c) {
					break
				}
				p++
			}
			if s.hasKeywordAt(p, "endstream") {
				payload := append([]byte(nil), s.data[dataStart:end]...)
				s.pos = p + int64(len("endstream"))
				return Token{Type: TokenStream, Bytes: payload, Pos: start}, nil
			}
		}
		if err := s.recover(fmt.Errorf("stream at offset %d: Length %d does not end at endstream", start, length), "stream"); err != nil {
			return Token{}, &pdferr.LexError{Offset: start, Msg: err.Error()}
		}
	}

	if err := s.loadAll(); err != nil {
		return Token{}, err
	}
	idx := s.findEndstream(dataStart)
	if idx < 0 {
		if err := s.recover(s.lexError(start, "endstream not found"), "stream"); err != nil {
			return Token{}, err
		}
		idx = int64(len(s.data))
	}
	end := idx
	if end > dataStart && s.data[end-1] == '\n' {
		end--
	}
	if end > dataStart && s.data[end-1] == '\r' {
		end--
	}
	if s.cfg.MaxStreamLength > 0 && end-dataStart > s.cfg.MaxStreamLength {
		return Token{}, s.lexError(start, "stream too long")
	}
	payload := append([]byte(nil), s.data[dataStart:end]...)
	s.pos = idx
	if idx < int64(len(s.data)) {
		s.pos += int64(len("endstream"))
	}
	return Token{Type: TokenStream, Bytes: payload, Pos: start}, nil
}

// findEndstream returns the offset of the first 'endstream' marker at or after
// from that sits on a token boundary, or -1.
func (s *pdfScanner) findEndstream(from int64) int64 {
	needle := []byte("endstream")
	for i := from; i < int64(len(s.data)); {
		rel := bytes.Index(s.data[i:], needle)
		if rel < 0 {
			return -1
		}
		at := i + int64(rel)
		if s.hasKeywordAt(at, "endstream") {
			return at
		}
		i = at + 1
	}
	return -1
}

func (s *pdfScanner) hasKeywordAt(p int64, kw string) bool {
	if err := s.ensure(p + int64(len(kw)) - 1); err != nil {
		return false
	}
	if !bytes.Equal(s.data[p:p+int64(len(kw))], []byte(kw)) {
		return false
	}
	next, ok := s.byteAt(p + int64(len(kw)))
	return !ok || isDelimiter(next)
}

func (s *pdfScanner) scanKeyword() (Token, error) {
	start := s.pos
	for {
		c, ok := s.byteAt(s.pos)
		if !ok || isDelimiter(c) {
			break
		}
		s.pos++
	}
	kw := string(s.data[start:s.pos])
	switch kw {
	case "true", "false":
		return Token{Type: TokenBoolean, Bool: kw == "true", Str: kw, Pos: start}, nil
	case "null":
		return Token{Type: TokenNull, Str: kw, Pos: start}, nil
	case "stream":
		return s.scanStream(start)
	default:
		return Token{Type: TokenKeyword, Str: kw, Pos: start}, nil
	}
}

func (s *pdfScanner) scanNumberOrRef() (Token, error) {
	start := s.pos
	num1 := s.scanNumberString()
	if num1 == "" {
		s.pos++
		return Token{}, s.lexError(start, "malformed number")
	}

	// "<int> <int> R" is a reference; anything else rewinds to the first number.
	if isUnsignedInt(num1) {
		save := s.pos
		if ref, ok := s.tryRefTail(num1, start); ok {
			return ref, nil
		}
		s.pos = save
	}
	if i, err := strconv.ParseInt(num1, 10, 64); err == nil {
		return Token{Type: TokenNumber, Int: i, Float: float64(i), IsInt: true, Pos: start}, nil
	}
	f, err := strconv.ParseFloat(num1, 64)
	if err != nil {
		return Token{}, s.lexError(start, fmt.Sprintf("malformed number %q", num1))
	}
	return Token{Type: TokenNumber, Float: f, Int: int64(f), Pos: start}, nil
}

func (s *pdfScanner) tryRefTail(num1 string, start int64) (Token, bool) {
	if s.skipWhitespace() == 0 {
		return Token{}, false
	}
	num2 := s.scanNumberString()
	if num2 == "" || !isUnsignedInt(num2) {
		return Token{}, false
	}
	if s.skipWhitespace() == 0 {
		return Token{}, false
	}
	if c, ok := s.byteAt(s.pos); !ok || c != 'R' {
		return Token{}, false
	}
	if c, ok := s.byteAt(s.pos + 1); ok && !isDelimiter(c) {
		return Token{}, false
	}
	n1, err1 := strconv.ParseInt(num1, 10, 64)
	n2, err2 := strconv.Atoi(num2)
	if err1 != nil || err2 != nil {
		return Token{}, false
	}
	s.pos++
	return Token{Type: TokenRef, Int: n1, Gen: n2, IsInt: true, Pos: start}, true
}

func (s *pdfScanner) skipWhitespace() int {
	n := 0
	for {
		c, ok := s.byteAt(s.pos)
		if !ok || !isWhitespace(c) {
			return n
		}
		s.pos++
		n++
	}
}

// scanNumberString consumes an optional sign followed by digits and at most
// one decimal point. It returns "" (without consuming) when no digit is present.
func (s *pdfScanner) scanNumberString() string {
	start := s.pos
	seenDigit, seenDot := false, false
	for {
		c, ok := s.byteAt(s.pos)
		if !ok {
			break
		}
		if (c == '+' || c == '-') && s.pos == start {
			s.pos++
			continue
		}
		if c == '.' && !seenDot {
			seenDot = true
			s.pos++
			continue
		}
		if c >= '0' && c <= '9' {
			seenDigit = true
			s.pos++
			continue
		}
		break
	}
	if !seenDigit {
		s.pos = start
		return ""
	}
	return string(s.data[start:s.pos])
}

func (s *pdfScanner) lexError(offset int64, msg string) error {
	return &pdferr.LexError{Offset: offset, Msg: msg}
}

// recover consults the configured strategy. A nil result means the caller may
// continue with what it has; otherwise the returned error should be reported.
func (s *pdfScanner) recover(err error, component string) error {
	if s.cfg.Recovery == nil {
		return err
	}
	action := s.cfg.Recovery.OnError(context.Background(), err, recovery.Location{
		ByteOffset: s.pos,
		Component:  "scanner:" + component,
	})
	if action.Continue() {
		return nil
	}
	return err
}

func isDigitStart(c byte) bool { return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') }

// isRegular reports printable ASCII that is neither whitespace nor a delimiter.
func isRegular(c byte) bool { return c > 0x20 && c < 0x7f && !isDelimiter(c) }

func isUnsignedInt(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isWhitespace(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}
func isEOL(c byte) bool { return c == '\r' || c == '\n' }
func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	default:
		return isWhitespace(c)
	}
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'F') || (c >= 'a' && c <= 'f')
}

func fromHex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return 0
	}
}

func translateEscape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	default:
		return c
	}
}
