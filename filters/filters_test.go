package filters

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"context"
	"errors"
	"testing"

	"github.com/hhrutter/lzw"

	"github.com/wudi/pdfcombine/ir/raw"
)

func zlibBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.Close()
	return buf.Bytes()
}

func pngParams(columns int) *raw.DictObj {
	params := raw.Dict()
	params.Set(raw.NameObj{Val: "Predictor"}, raw.NumberInt(12))
	params.Set(raw.NameObj{Val: "Colors"}, raw.NumberInt(1))
	params.Set(raw.NameObj{Val: "BitsPerComponent"}, raw.NumberInt(8))
	params.Set(raw.NameObj{Val: "Columns"}, raw.NumberInt(int64(columns)))
	return params
}

func TestFlateDecode(t *testing.T) {
	dec := NewFlateDecoder(0)
	out, err := dec.Decode(context.Background(), zlibBytes(t, []byte("hello world")), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFlateDecodeRawDeflate(t *testing.T) {
	var buf bytes.Buffer
	w, _ := flate.NewWriter(&buf, flate.BestSpeed)
	w.Write([]byte("hello world"))
	w.Close()

	out, err := NewFlateDecoder(0).Decode(context.Background(), buf.Bytes(), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFlateDecodeTruncated(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789abcdef"), 12800)
	var buf bytes.Buffer
	w, _ := zlib.NewWriterLevel(&buf, zlib.NoCompression)
	w.Write(payload)
	w.Close()
	data := buf.Bytes()
	data = data[:len(data)/2]

	out, err := NewFlateDecoder(0).Decode(context.Background(), data, nil)
	if err != nil {
		t.Fatalf("truncated decode: %v", err)
	}
	if len(out) == 0 || !bytes.HasPrefix(payload, out) {
		t.Fatalf("expected a prefix of the payload, got %d bytes", len(out))
	}
}

func TestFlateDecodeSizeLimit(t *testing.T) {
	data := zlibBytes(t, bytes.Repeat([]byte{'x'}, 4096))
	_, err := NewFlateDecoder(1024).Decode(context.Background(), data, nil)
	if !errors.Is(err, ErrSizeLimit) {
		t.Fatalf("expected size limit error, got %v", err)
	}
}

func TestFlateDecodeWithPredictor(t *testing.T) {
	// PNG predictor row: filter byte 1 (Sub), then row bytes.
	comp := zlibBytes(t, []byte{1, 10, 12, 20})
	out, err := NewFlateDecoder(0).Decode(context.Background(), comp, pngParams(3))
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	want := []byte{10, 22, 42}
	if !bytes.Equal(out, want) {
		t.Fatalf("predictor output mismatch: got %v want %v", out, want)
	}
}

func TestPNGPredictorUpAndPaeth(t *testing.T) {
	rows := []byte{
		0, 1, 2, 3,
		2, 1, 1, 1, // Up
		4, 1, 1, 1, // Paeth
	}
	out, err := applyPredictor(rows, pngParams(3))
	if err != nil {
		t.Fatalf("predictor: %v", err)
	}
	want := []byte{1, 2, 3, 2, 3, 4, 3, 4, 5}
	if !bytes.Equal(out, want) {
		t.Fatalf("got %v want %v", out, want)
	}
}

func TestPNGPredictorBadFilterType(t *testing.T) {
	if _, err := applyPredictor([]byte{9, 1, 2, 3}, pngParams(3)); err == nil {
		t.Fatalf("expected error for filter type 9")
	}
}

func TestTIFFPredictor(t *testing.T) {
	params := raw.Dict()
	params.Set(raw.NameObj{Val: "Predictor"}, raw.NumberInt(2))
	params.Set(raw.NameObj{Val: "Columns"}, raw.NumberInt(3))
	out, err := applyPredictor([]byte{1, 1, 1, 5, 1, 1}, params)
	if err != nil {
		t.Fatalf("predictor: %v", err)
	}
	if want := []byte{1, 2, 3, 5, 6, 7}; !bytes.Equal(out, want) {
		t.Fatalf("got %v want %v", out, want)
	}
}

func TestLZWDecode(t *testing.T) {
	// long enough for the code width to grow past 9 bits
	long := make([]byte, 4096)
	for i := range long {
		long[i] = byte(i*7 + i/13)
	}
	off := raw.Dict()
	off.Set(raw.NameLiteral("EarlyChange"), raw.NumberInt(0))
	tests := []struct {
		name   string
		early  bool
		params raw.Dictionary
		input  []byte
	}{
		{"default early change", true, nil, []byte("hello hello hello")},
		{"default early change wide codes", true, nil, long},
		{"early change off", false, off, long},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			w := lzw.NewWriter(&buf, tc.early)
			if _, err := w.Write(tc.input); err != nil {
				t.Fatalf("write: %v", err)
			}
			w.Close()

			out, err := NewLZWDecoder(0).Decode(context.Background(), buf.Bytes(), tc.params)
			if err != nil {
				t.Fatalf("decode error: %v", err)
			}
			if !bytes.Equal(out, tc.input) {
				t.Fatalf("unexpected output of %d bytes", len(out))
			}
		})
	}
}

func TestRunLengthDecode(t *testing.T) {
	// literal run of 3 bytes (len=2), then repeat 'A' 2 times (len=255 => count=2), then EOD 128
	data := []byte{2, 'h', 'i', '!', 255, 'A', 128}
	out, err := NewRunLengthDecoder().Decode(context.Background(), data, nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hi!AA" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestASCII85Decode(t *testing.T) {
	out, err := NewASCII85Decoder().Decode(context.Background(), []byte("<~87cURD_*#4DfTZ)+T~>"), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "Hello, World!" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestASCIIHexDecode(t *testing.T) {
	out, err := NewASCIIHexDecoder().Decode(context.Background(), []byte("68 656c6c6f20776f726c6\n>"), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hello worl`" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestPipelineChainsFilters(t *testing.T) {
	hexed := []byte("")
	for _, b := range zlibBytes(t, []byte("chained")) {
		hexed = append(hexed, "0123456789abcdef"[b>>4], "0123456789abcdef"[b&15])
	}
	st := raw.NewStream(raw.Dict(), append(hexed, '>'))
	st.Dict.Set(raw.NameLiteral("Filter"), raw.NewArray(raw.NameLiteral("AHx"), raw.NameLiteral("FlateDecode")))

	out, err := NewDefaultPipeline(Limits{}).DecodeStream(context.Background(), st)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(out) != "chained" {
		t.Fatalf("got %q", out)
	}
}

func TestUnsupportedFilters(t *testing.T) {
	fp := NewDefaultPipeline(Limits{})
	_, err := fp.Decode(context.Background(), []byte{0x00}, []string{"JPXDecode"}, nil)
	var ue UnsupportedError
	if err == nil || !errors.As(err, &ue) || ue.Filter != "JPXDecode" {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestExtractFiltersAlignsParams(t *testing.T) {
	d := raw.Dict()
	d.Set(raw.NameLiteral("Filter"), raw.NewArray(raw.NameLiteral("ASCIIHexDecode"), raw.NameLiteral("FlateDecode")))
	d.Set(raw.NameLiteral("DecodeParms"), raw.NewArray(raw.NullObj{}, pngParams(4)))
	names, params := ExtractFilters(d)
	if len(names) != 2 || len(params) != 2 {
		t.Fatalf("names=%v params=%v", names, params)
	}
	if params[0] != nil {
		t.Fatalf("first params should be nil")
	}
	if paramInt(params[1], "Columns", 0) != 4 {
		t.Fatalf("second params not aligned")
	}
}
