package merge

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfcombine/closure"
	"github.com/wudi/pdfcombine/internal/testpdf"
	"github.com/wudi/pdfcombine/ir/raw"
	"github.com/wudi/pdfcombine/observability"
	"github.com/wudi/pdfcombine/pdferr"
	"github.com/wudi/pdfcombine/recovery"
	"github.com/wudi/pdfcombine/security"
	"github.com/wudi/pdfcombine/writer"
)

func TestClosureLimit(t *testing.T) {
	_, err := Merge(context.Background(), [][]byte{testpdf.Doc(1, "A")},
		WithLimits(security.Limits{MaxClosureObjects: 1}))
	var me *pdferr.MergeError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, 0, me.Input)
	assert.ErrorIs(t, err, closure.ErrTooLarge)
}

type recordingInterceptor struct{ nums []int }

func (r *recordingInterceptor) BeforeWrite(_ writer.Context, ref raw.ObjectRef, _ raw.Object) error {
	r.nums = append(r.nums, ref.Num)
	return nil
}

func (r *recordingInterceptor) AfterWrite(writer.Context, raw.ObjectRef, int64) error { return nil }

func TestWriteInterceptor(t *testing.T) {
	ic := &recordingInterceptor{}
	_, err := Merge(context.Background(), [][]byte{testpdf.Doc(2, "A")}, WithWriteInterceptor(ic))
	require.NoError(t, err)
	// two pages, two contents, one font, pages root, catalog, info
	assert.Len(t, ic.nums, 8)
	assert.IsIncreasing(t, ic.nums)
}

type recordingTracer struct {
	mu    sync.Mutex
	spans []string
}

func (r *recordingTracer) StartSpan(ctx context.Context, name string) (context.Context, observability.Span) {
	r.mu.Lock()
	r.spans = append(r.spans, name)
	r.mu.Unlock()
	_, span := observability.NopTracer().StartSpan(ctx, name)
	return ctx, span
}

func TestTracerSpans(t *testing.T) {
	tr := &recordingTracer{}
	_, err := Merge(context.Background(), [][]byte{testpdf.Doc(1, "A"), testpdf.Doc(1, "B")}, WithTracer(tr))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"merge", "parse", "parse"}, tr.spans)
}

func TestStrictRecoveryStillRepairsXref(t *testing.T) {
	b := testpdf.New()
	b.Add(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.Add(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	b.Add(3, "<< /Type /Page /Parent 2 0 R >>")
	_, err := Merge(context.Background(), [][]byte{b.WrongOffset(2, 1).Bytes("/Root 1 0 R")},
		WithRecovery(recovery.NewStrictStrategy()))
	require.NoError(t, err)
}

func TestLenientRecoveryRecordsFaults(t *testing.T) {
	b := testpdf.New()
	b.Add(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.Add(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	b.Add(3, "<< /Type /Page /Parent 2 0 R >>")
	lenient := recovery.NewLenientStrategy()
	_, err := Merge(context.Background(), [][]byte{b.WrongOffset(3, 1).Bytes("/Root 1 0 R")}, WithRecovery(lenient))
	require.NoError(t, err)
	assert.NotEmpty(t, lenient.Errors())
}
