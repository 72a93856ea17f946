package filters

import (
	"context"
	"testing"

	"github.com/wudi/pdfcombine/ir/raw"
)

func FuzzFilters(f *testing.F) {
	f.Add([]byte("some compressed data"), "FlateDecode")
	f.Add([]byte("some ascii85 data"), "ASCII85Decode")
	f.Add([]byte("some hex data"), "ASCIIHexDecode")

	f.Fuzz(func(t *testing.T, data []byte, filterName string) {
		known := map[string]bool{
			"FlateDecode":     true,
			"ASCII85Decode":   true,
			"ASCIIHexDecode":  true,
			"RunLengthDecode": true,
			"LZWDecode":       true,
		}
		if !known[filterName] {
			return
		}
		p := NewDefaultPipeline(Limits{MaxDecompressedSize: 1024 * 1024})
		_, _ = p.Decode(context.Background(), data, []string{filterName}, []raw.Dictionary{nil})
	})
}
