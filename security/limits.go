package security

// Limits defines security boundaries for parsing and processing PDFs.
// These limits help prevent resource exhaustion on hostile input.
type Limits struct {
	// Maximum decompressed stream size (prevent zip bombs). Default: 100 MB.
	MaxDecompressedSize int64

	// Maximum nesting depth of arrays, dictionaries and page trees. Default: 100.
	MaxIndirectDepth int

	// Maximum XRef chain depth (Prev entries). Default: 50.
	MaxXRefDepth int

	// Maximum string length (bytes). Default: 10 MB.
	MaxStringLength int64

	// Maximum raw stream length (bytes). Default: 50 MB.
	MaxStreamLength int64

	// Maximum number of pages accepted from one document. Default: 100,000.
	MaxPages int

	// Maximum number of objects copied along with one page. Default: 1,000,000.
	MaxClosureObjects int
}

// DefaultLimits returns a Limits struct with safe default values.
func DefaultLimits() Limits {
	return Limits{
		MaxDecompressedSize: 100 * 1024 * 1024, // 100 MB
		MaxIndirectDepth:    100,
		MaxXRefDepth:        50,
		MaxStringLength:     10 * 1024 * 1024, // 10 MB
		MaxStreamLength:     50 * 1024 * 1024, // 50 MB
		MaxPages:            100000,
		MaxClosureObjects:   1000000,
	}
}

// WithDefaults fills zero fields from DefaultLimits.
func (l Limits) WithDefaults() Limits {
	d := DefaultLimits()
	if l.MaxDecompressedSize == 0 {
		l.MaxDecompressedSize = d.MaxDecompressedSize
	}
	if l.MaxIndirectDepth == 0 {
		l.MaxIndirectDepth = d.MaxIndirectDepth
	}
	if l.MaxXRefDepth == 0 {
		l.MaxXRefDepth = d.MaxXRefDepth
	}
	if l.MaxStringLength == 0 {
		l.MaxStringLength = d.MaxStringLength
	}
	if l.MaxStreamLength == 0 {
		l.MaxStreamLength = d.MaxStreamLength
	}
	if l.MaxPages == 0 {
		l.MaxPages = d.MaxPages
	}
	if l.MaxClosureObjects == 0 {
		l.MaxClosureObjects = d.MaxClosureObjects
	}
	return l
}
