package filters

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"context"
	"errors"
	"io"

	"github.com/hhrutter/lzw"

	"github.com/wudi/pdfcombine/ir/raw"
)

type flateDecoder struct{ maxSize int64 }

func (flateDecoder) Name() string { return "FlateDecode" }

// NewFlateDecoder returns a FlateDecode decoder. A positive maxSize bounds the
// inflated output.
func NewFlateDecoder(maxSize int64) Decoder { return flateDecoder{maxSize: maxSize} }

// Decode inflates zlib data. Payloads without a valid zlib header are retried
// as raw deflate, and truncated payloads return what was inflated before the
// damage.
func (d flateDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	var src io.ReadCloser
	zr, err := zlib.NewReader(bytes.NewReader(in))
	if err != nil {
		src = flate.NewReader(bytes.NewReader(in))
	} else {
		src = zr
	}
	defer src.Close()

	out, err := readLimited(src, d.maxSize)
	if err != nil {
		return nil, err
	}
	return applyPredictor(out, params)
}

type lzwDecoder struct{ maxSize int64 }

func (lzwDecoder) Name() string { return "LZWDecode" }

// NewLZWDecoder returns an LZWDecode decoder. EarlyChange defaults to 1,
// which compress/lzw cannot read.
func NewLZWDecoder(maxSize int64) Decoder { return lzwDecoder{maxSize: maxSize} }

func (d lzwDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	early := paramInt(params, "EarlyChange", 1) != 0
	r := lzw.NewReader(bytes.NewReader(in), early)
	defer r.Close()
	out, err := readLimited(r, d.maxSize)
	if err != nil {
		return nil, err
	}
	return applyPredictor(out, params)
}

// readLimited drains r. Corruption after some output has been produced is
// tolerated and the partial output returned.
func readLimited(r io.Reader, maxSize int64) ([]byte, error) {
	var out bytes.Buffer
	src := r
	if maxSize > 0 {
		src = io.LimitReader(r, maxSize+1)
	}
	_, err := io.Copy(&out, src)
	if maxSize > 0 && int64(out.Len()) > maxSize {
		return nil, ErrSizeLimit
	}
	if err != nil {
		if out.Len() > 0 && isTruncation(err) {
			return out.Bytes(), nil
		}
		return nil, err
	}
	return out.Bytes(), nil
}

func isTruncation(err error) bool {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var ce flate.CorruptInputError
	if errors.As(err, &ce) {
		return true
	}
	return errors.Is(err, zlib.ErrChecksum)
}
