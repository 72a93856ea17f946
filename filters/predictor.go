package filters

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfcombine/ir/raw"
)

// applyPredictor reverses a TIFF (2) or PNG (10-15) predictor described by
// DecodeParms. Predictor 1 or an absent entry leaves data unchanged.
func applyPredictor(data []byte, params raw.Dictionary) ([]byte, error) {
	predictor := paramInt(params, "Predictor", 1)
	if predictor <= 1 {
		return data, nil
	}
	colors := paramInt(params, "Colors", 1)
	bpc := paramInt(params, "BitsPerComponent", 8)
	columns := paramInt(params, "Columns", 1)
	if colors < 1 || bpc < 1 || columns < 1 {
		return nil, fmt.Errorf("invalid predictor parameters colors=%d bpc=%d columns=%d", colors, bpc, columns)
	}
	bpp := (colors*bpc + 7) / 8
	rowLen := (colors*bpc*columns + 7) / 8

	switch {
	case predictor == 2:
		if bpc != 8 {
			return nil, fmt.Errorf("TIFF predictor with %d bits per component", bpc)
		}
		return tiffPredict(data, rowLen, bpp), nil
	case predictor >= 10 && predictor <= 15:
		return pngPredict(data, rowLen, bpp)
	}
	return nil, fmt.Errorf("unsupported predictor %d", predictor)
}

func tiffPredict(data []byte, rowLen, bpp int) []byte {
	out := append([]byte(nil), data...)
	for row := 0; row+rowLen <= len(out); row += rowLen {
		for i := bpp; i < rowLen; i++ {
			out[row+i] += out[row+i-bpp]
		}
	}
	return out
}

// pngPredict undoes per-row PNG filters. Each encoded row carries a leading
// filter-type byte. A short final row is decoded as far as it goes.
func pngPredict(data []byte, rowLen, bpp int) ([]byte, error) {
	stride := rowLen + 1
	out := make([]byte, 0, len(data)/stride*rowLen)
	prev := make([]byte, rowLen)
	cur := make([]byte, rowLen)
	for off := 0; off < len(data); off += stride {
		end := off + stride
		if end > len(data) {
			end = len(data)
		}
		row := data[off:end]
		if len(row) < 2 {
			break
		}
		ft := row[0]
		n := copy(cur, row[1:])
		for i := n; i < rowLen; i++ {
			cur[i] = 0
		}
		for i := 0; i < n; i++ {
			var left, up, upLeft byte
			if i >= bpp {
				left = cur[i-bpp]
				upLeft = prev[i-bpp]
			}
			up = prev[i]
			switch ft {
			case 0:
			case 1:
				cur[i] += left
			case 2:
				cur[i] += up
			case 3:
				cur[i] += byte((int(left) + int(up)) / 2)
			case 4:
				cur[i] += paeth(left, up, upLeft)
			default:
				return nil, errors.New("invalid PNG filter type")
			}
		}
		out = append(out, cur[:n]...)
		prev, cur = cur, prev
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
