package document

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfcombine/internal/testpdf"
	"github.com/wudi/pdfcombine/ir/raw"
	"github.com/wudi/pdfcombine/pdferr"
)

func open(t *testing.T, data []byte) *Document {
	t.Helper()
	d, err := Open(context.Background(), data, Config{})
	require.NoError(t, err)
	return d
}

func TestOpenSimpleDocument(t *testing.T) {
	d := open(t, testpdf.Doc(3, "A"))
	assert.Equal(t, "1.7", d.Version())
	assert.False(t, d.Repaired())

	cat, ref, err := d.Catalog()
	require.NoError(t, err)
	assert.Equal(t, 1, ref.Num)
	typ, _ := raw.NameOf(cat, "Type")
	assert.Equal(t, "Catalog", typ)

	n, err := d.PageCount()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestResolveMemoizes(t *testing.T) {
	d := open(t, testpdf.Doc(1, "A"))
	before := d.CacheLen()
	first, err := d.Resolve(raw.ObjectRef{Num: 3})
	require.NoError(t, err)
	assert.Equal(t, before+1, d.CacheLen())
	second, err := d.Resolve(raw.ObjectRef{Num: 3})
	require.NoError(t, err)
	assert.Same(t, first.(*raw.DictObj), second.(*raw.DictObj))
	assert.Equal(t, before+1, d.CacheLen())
}

func TestResolveDangling(t *testing.T) {
	d := open(t, testpdf.Doc(1, "A"))
	_, err := d.Resolve(raw.ObjectRef{Num: 99})
	var de *pdferr.DanglingReferenceError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 99, de.Ref.Num)
}

func TestHeaderAfterJunk(t *testing.T) {
	data := append([]byte("junk\r\n"), testpdf.Doc(2, "A")...)
	d := open(t, data)
	n, err := d.PageCount()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMissingHeaderIsParseError(t *testing.T) {
	_, err := Open(context.Background(), []byte("this is not a pdf"), Config{})
	var pe *pdferr.ParseError
	require.ErrorAs(t, err, &pe)
}

func TestEncryptedDocumentRejected(t *testing.T) {
	b := testpdf.New()
	b.Add(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.Add(2, "<< /Type /Pages /Kids [] /Count 0 >>")
	b.Add(3, "<< /Filter /Standard /V 2 /R 3 >>")
	_, err := Open(context.Background(), b.Bytes("/Root 1 0 R /Encrypt 3 0 R"), Config{})
	var ue *pdferr.UnsupportedFeatureError
	require.ErrorAs(t, err, &ue)
	assert.True(t, errors.Is(err, pdferr.ErrEncrypted))
}

func TestCatalogVersionOverridesHeader(t *testing.T) {
	b := testpdf.New()
	b.Version = "1.4"
	b.Add(1, "<< /Type /Catalog /Pages 2 0 R /Version /1.6 >>")
	b.Add(2, "<< /Type /Pages /Kids [] /Count 0 >>")
	d := open(t, b.Bytes("/Root 1 0 R"))
	assert.Equal(t, "1.6", d.Version())
}

func TestIndirectStreamLength(t *testing.T) {
	b := testpdf.New()
	b.Add(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.Add(2, "<< /Type /Pages /Kids [] /Count 0 >>")
	b.Add(3, "<< /Length 4 0 R >>\nstream\nab\ncd endstream-ish\nendstream")
	b.Add(4, "19")
	d := open(t, b.Bytes("/Root 1 0 R"))
	obj, err := d.Resolve(raw.ObjectRef{Num: 3})
	require.NoError(t, err)
	st, ok := obj.(*raw.StreamObj)
	require.True(t, ok)
	assert.Equal(t, "ab\ncd endstream-ish", string(st.Data))
}

func TestObjectStreamResolution(t *testing.T) {
	b := testpdf.New()
	b.Add(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.AddCompressed(10, 2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	b.AddCompressed(10, 3, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 100 100] >>")
	d := open(t, b.BytesXRefStream("/Root 1 0 R"))

	pages, err := d.Pages()
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 3, pages[0].Ref.Num)
}

func TestRepairedDocumentResolves(t *testing.T) {
	b := testpdf.New()
	b.Add(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.Add(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	b.Add(3, "<< /Type /Page /Parent 2 0 R >>")
	d := open(t, b.WrongOffset(3, 20).Bytes("/Root 1 0 R"))
	assert.True(t, d.Repaired())
	n, err := d.PageCount()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTitleDecoding(t *testing.T) {
	b := testpdf.New()
	b.Add(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.Add(2, "<< /Type /Pages /Kids [] /Count 0 >>")
	b.Add(3, "<< /Title <FEFF005A006F00EB> >>")
	d := open(t, b.Bytes("/Root 1 0 R /Info 3 0 R"))
	assert.Equal(t, "Zoë", d.Title())
}

func TestCompareVersions(t *testing.T) {
	assert.Greater(t, CompareVersions("1.7", "1.4"), 0)
	assert.Less(t, CompareVersions("1.7", "2.0"), 0)
	assert.Equal(t, 0, CompareVersions("1.5", "1.5"))
	assert.Less(t, CompareVersions("junk", "1.0"), 0)
}

func TestOpenIdentity(t *testing.T) {
	d, err := Open(context.Background(), testpdf.Doc(1, "A"), Config{ID: 7})
	require.NoError(t, err)
	assert.Equal(t, 7, d.ID())
	assert.Equal(t, 5, d.ObjectCount())
}

func TestLinearizedFileReadsThroughXRef(t *testing.T) {
	b := testpdf.New()
	b.Add(1, "<< /Linearized 1 /L 200 /O 3 /N 1 /H [ 10 20 ] >>")
	b.Add(2, "<< /Type /Catalog /Pages 4 0 R >>")
	b.Add(3, "<< /Type /Page /Parent 4 0 R >>")
	b.Add(4, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	d := open(t, b.Bytes("/Root 2 0 R"))
	assert.True(t, d.Linearized())
	assert.False(t, d.Repaired())
	n, err := d.PageCount()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.False(t, open(t, testpdf.Doc(1, "A")).Linearized())
}
