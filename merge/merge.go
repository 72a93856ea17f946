// Package merge concatenates PDF documents. Inputs are parsed in parallel;
// their pages are then copied one by one, with everything each page depends
// on, into a fresh document that is written in a single pass.
package merge

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/wudi/pdfcombine/document"
	"github.com/wudi/pdfcombine/observability"
	"github.com/wudi/pdfcombine/pdferr"
	"github.com/wudi/pdfcombine/recovery"
	"github.com/wudi/pdfcombine/writer"
)

// Merge returns the pages of all inputs, in input order, as one PDF. Any
// failure yields a *pdferr.MergeError and no output.
func Merge(ctx context.Context, inputs [][]byte, opts ...Option) ([]byte, error) {
	var buf bytes.Buffer
	if err := MergeTo(ctx, &buf, inputs, opts...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MergeTo is Merge writing to w. Nothing is written to w unless every input
// was merged successfully.
func MergeTo(ctx context.Context, w io.Writer, inputs [][]byte, opts ...Option) (err error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	ctx, span := cfg.tracer.StartSpan(ctx, "merge")
	defer func() {
		if err != nil {
			span.SetError(err)
		}
		span.Finish()
	}()
	span.SetTag(observability.MetricInputCount, len(inputs))

	if len(inputs) == 0 {
		return &pdferr.MergeError{Input: -1, Op: "merge", Err: pdferr.ErrNoInputs}
	}
	if cfg.recovery == nil {
		cfg.recovery = recovery.NewLenientStrategy().WithLogger(cfg.logger)
	}

	docs, err := openAll(ctx, inputs, cfg)
	if err != nil {
		return err
	}

	state := NewState()
	merger := NewMerger(state, cfg.limits, cfg.logger)
	version := string(cfg.writer.Version)
	if cfg.writer.XRefStreams && document.CompareVersions(version, string(writer.PDF15)) < 0 {
		version = string(writer.PDF15)
	}
	for i, doc := range docs {
		n, err := merger.AddDocument(ctx, doc)
		if err != nil {
			return &pdferr.MergeError{Input: i, Op: "copy pages", Err: err}
		}
		if document.CompareVersions(doc.Version(), version) > 0 {
			version = doc.Version()
		}
		cfg.logger.Debug("input merged", observability.Int("input", i), observability.Int("pages", n))
	}
	catalog, info, err := merger.Finish(cfg.title, cfg.producer)
	if err != nil {
		return &pdferr.MergeError{Input: -1, Op: "build page tree", Err: err}
	}

	// The whole file is rendered before w sees a byte.
	start := time.Now()
	var out bytes.Buffer
	wb := &writer.WriterBuilder{}
	for _, ic := range cfg.interceptors {
		wb.WithInterceptor(ic)
	}
	doc := &writer.Document{Version: version, Objects: state.Objects(), Root: catalog, Info: info}
	if err := wb.Build().Write(ctx, doc, &out, cfg.writer); err != nil {
		return &pdferr.MergeError{Input: -1, Op: "write", Err: err}
	}
	span.SetTag(observability.MetricWriteTime, time.Since(start).Milliseconds())
	span.SetTag(observability.MetricOutputBytes, out.Len())

	if _, err := w.Write(out.Bytes()); err != nil {
		return &pdferr.MergeError{Input: -1, Op: "write", Err: &pdferr.IoError{Err: err}}
	}
	cfg.logger.Info("merge complete",
		observability.Int("inputs", len(inputs)),
		observability.Int("pages", len(state.Pages())),
		observability.Int("objects", state.Len()),
		observability.Int("bytes", out.Len()),
		observability.String("version", version),
	)
	return nil
}

// openAll parses every input with at most cfg.parallelism workers. The
// first failure, in input order, is returned.
func openAll(ctx context.Context, inputs [][]byte, cfg config) ([]*document.Document, error) {
	docs := make([]*document.Document, len(inputs))
	errs := make([]error, len(inputs))

	sem := make(chan struct{}, cfg.parallelism)
	var wg sync.WaitGroup
	for i, data := range inputs {
		wg.Add(1)
		go func(i int, data []byte) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				errs[i] = ctx.Err()
				return
			}
			defer func() { <-sem }()
			docs[i], errs[i] = openOne(ctx, i, data, cfg)
		}(i, data)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, &pdferr.MergeError{Input: i, Op: "parse", Err: err}
		}
	}
	return docs, nil
}

func openOne(ctx context.Context, i int, data []byte, cfg config) (*document.Document, error) {
	ctx, span := cfg.tracer.StartSpan(ctx, "parse")
	defer span.Finish()
	start := time.Now()
	logger := cfg.logger.With(observability.Int("input", i))
	logger.Debug("parsing input", observability.Int("bytes", len(data)))

	doc, err := document.Open(ctx, data, document.Config{
		ID:       i,
		Recovery: cfg.recovery,
		Limits:   cfg.limits,
		Logger:   logger,
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	pages, err := doc.PageCount()
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	span.SetTag(observability.MetricParseTime, time.Since(start).Milliseconds())
	span.SetTag(observability.MetricObjectCount, doc.ObjectCount())
	span.SetTag(observability.MetricPageCount, pages)
	if doc.Repaired() {
		logger.Warn("cross-reference table rebuilt by scanning")
	}
	logger.Info("parsed input",
		observability.String("version", doc.Version()),
		observability.Int("objects", doc.ObjectCount()),
		observability.Int("pages", pages),
		observability.String("title", doc.Title()),
	)
	return doc, nil
}
