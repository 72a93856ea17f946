// Package filters decodes PDF stream payloads.
//
// Only the filters needed to read cross-reference streams and object streams
// are decoded; other payloads are copied through untouched by the merger.
package filters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wudi/pdfcombine/ir/raw"
)

type Decoder interface {
	Name() string
	Decode(ctx context.Context, input []byte, params raw.Dictionary) ([]byte, error)
}

// UnsupportedError reports a filter the pipeline has no decoder for.
type UnsupportedError struct{ Filter string }

func (e UnsupportedError) Error() string { return "unsupported filter: " + e.Filter }

// ErrSizeLimit indicates a decoded payload grew past Limits.MaxDecompressedSize.
var ErrSizeLimit = errors.New("decompressed size exceeds limit")

type Limits struct {
	MaxDecompressedSize int64
	MaxDecodeTime       time.Duration
}

type Pipeline struct {
	decoders []Decoder
	limits   Limits
}

// NewPipeline constructs a pipeline with provided decoders and limits.
func NewPipeline(decoders []Decoder, limits Limits) *Pipeline {
	return &Pipeline{decoders: decoders, limits: limits}
}

// NewDefaultPipeline returns a pipeline with every decoder in this package.
func NewDefaultPipeline(limits Limits) *Pipeline {
	return NewPipeline([]Decoder{
		NewFlateDecoder(limits.MaxDecompressedSize),
		NewLZWDecoder(limits.MaxDecompressedSize),
		NewASCII85Decoder(),
		NewASCIIHexDecoder(),
		NewRunLengthDecoder(),
	}, limits)
}

func (p *Pipeline) findDecoder(name string) Decoder {
	for _, d := range p.decoders {
		if d.Name() == name {
			return d
		}
	}
	return nil
}

func (p *Pipeline) Decode(ctx context.Context, input []byte, filterNames []string, params []raw.Dictionary) ([]byte, error) {
	if p.limits.MaxDecodeTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.limits.MaxDecodeTime)
		defer cancel()
	}
	data := input
	for i, name := range filterNames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dec := p.findDecoder(canonicalName(name))
		if dec == nil {
			return nil, UnsupportedError{Filter: name}
		}
		var param raw.Dictionary
		if i < len(params) {
			param = params[i]
		}
		out, err := dec.Decode(ctx, data, param)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if p.limits.MaxDecompressedSize > 0 && int64(len(out)) > p.limits.MaxDecompressedSize {
			return nil, ErrSizeLimit
		}
		data = out
	}
	return data, nil
}

// DecodeStream decodes a stream payload according to its Filter and
// DecodeParms entries.
func (p *Pipeline) DecodeStream(ctx context.Context, st *raw.StreamObj) ([]byte, error) {
	if st == nil {
		return nil, errors.New("nil stream")
	}
	if st.Dict == nil {
		return st.Data, nil
	}
	names, params := ExtractFilters(st.Dict)
	if len(names) == 0 {
		return st.Data, nil
	}
	return p.Decode(ctx, st.Data, names, params)
}

// canonicalName maps the abbreviated filter names allowed in inline images.
func canonicalName(name string) string {
	switch name {
	case "Fl":
		return "FlateDecode"
	case "LZW":
		return "LZWDecode"
	case "A85":
		return "ASCII85Decode"
	case "AHx":
		return "ASCIIHexDecode"
	case "RL":
		return "RunLengthDecode"
	}
	return name
}

type Registry struct{ decoders map[string]Decoder }

func (r *Registry) Register(d Decoder) {
	if r.decoders == nil {
		r.decoders = make(map[string]Decoder)
	}
	r.decoders[d.Name()] = d
}
func (r *Registry) Get(name string) (Decoder, bool) { d, ok := r.decoders[name]; return d, ok }

// Pipeline builds a pipeline from every registered decoder.
func (r *Registry) Pipeline(limits Limits) *Pipeline {
	decoders := make([]Decoder, 0, len(r.decoders))
	for _, d := range r.decoders {
		decoders = append(decoders, d)
	}
	return NewPipeline(decoders, limits)
}
