package textenc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeASCIIUnchanged(t *testing.T) {
	assert.Equal(t, []byte("Quarterly report"), Encode("Quarterly report"))
}

func TestEncodeNonASCIIUsesUTF16(t *testing.T) {
	got := Encode("Zoë")
	assert.Equal(t, []byte{0xFE, 0xFF, 0x00, 'Z', 0x00, 'o', 0x00, 0xEB}, got)
}

func TestDecodeRoundTrip(t *testing.T) {
	for _, s := range []string{"plain", "Résumé", "日本語", "emoji 🙂"} {
		assert.Equal(t, s, Decode(Encode(s)), s)
	}
}

func TestDecodePDFDocEncoding(t *testing.T) {
	assert.Equal(t, "•Café€", Decode([]byte{0x80, 'C', 'a', 'f', 0xE9, 0xA0}))
	assert.Equal(t, "fi ligature: ﬁ", Decode(append([]byte("fi ligature: "), 0x93)))
}

func TestDecodeUTF8BOM(t *testing.T) {
	assert.Equal(t, "naïve", Decode(append([]byte{0xEF, 0xBB, 0xBF}, "naïve"...)))
}
