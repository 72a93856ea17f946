package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfcombine/internal/testpdf"
)

func TestSummarize(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, summarize(&out, testpdf.Doc(2, "A"), false))
	s := out.String()
	assert.Contains(t, s, "version:  1.7")
	assert.Contains(t, s, "pages:    2")
	assert.Contains(t, s, "repaired: false")
	assert.Equal(t, 2, strings.Count(s, "depth 1"))
	assert.Contains(t, s, "mediabox [0 0 612 792]")
}

func TestDumpTokens(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, dumpTokens(&out, []byte("1 0 obj << /A [2 0 R (x) 1.5] >> endobj"), 100))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.NotEmpty(t, lines)
	assert.Contains(t, out.String(), "2 0 R")
	assert.Contains(t, out.String(), `"x"`)

	out.Reset()
	require.NoError(t, dumpTokens(&out, []byte("1 2 3 4"), 2))
	assert.Len(t, strings.Split(strings.TrimSpace(out.String()), "\n"), 2)
}
