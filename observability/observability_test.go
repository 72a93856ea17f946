package observability

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNopTracer(t *testing.T) {
	tracer := NopTracer()
	ctx := context.Background()
	ctx2, span := tracer.StartSpan(ctx, "test")
	if ctx2 != ctx {
		t.Fatalf("nop tracer should return same context")
	}
	span.SetTag("key", "value")
	span.SetError(nil)
	span.Finish()
}

func TestSlogLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	logger.With(String("input", "a.pdf")).Info("parsed", Int("pages", 3), Int64("bytes", 1024))

	out := buf.String()
	for _, want := range []string{"msg=parsed", "input=a.pdf", "pages=3", "bytes=1024"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}

func TestNopLoggerWith(t *testing.T) {
	var l Logger = NopLogger{}
	l.With(Error("error", nil)).Warn("ignored")
}
