package security

import (
	"github.com/wudi/pdfcombine/ir/raw"
	"github.com/wudi/pdfcombine/pdferr"
)

// CheckEncryption rejects documents whose trailer names an encryption
// dictionary. Decryption is not supported, so such files are reported
// instead of producing unreadable output.
func CheckEncryption(trailer *raw.DictObj) error {
	if trailer == nil {
		return nil
	}
	enc, ok := trailer.Get(raw.NameLiteral("Encrypt"))
	if !ok {
		return nil
	}
	if _, isNull := enc.(raw.NullObj); isNull {
		return nil
	}
	return &pdferr.UnsupportedFeatureError{Feature: "encryption", Err: pdferr.ErrEncrypted}
}
