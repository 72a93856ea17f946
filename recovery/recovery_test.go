package recovery_test

import (
	"context"
	"errors"
	"testing"

	"github.com/wudi/pdfcombine/observability"
	"github.com/wudi/pdfcombine/recovery"
)

type captureLogger struct {
	observability.NopLogger
	warns []string
}

func (c *captureLogger) Warn(msg string, fields ...observability.Field) { c.warns = append(c.warns, msg) }

func TestRecoveryStrategies(t *testing.T) {
	fault := errors.New("unterminated literal string")
	loc := recovery.Location{ByteOffset: 42, Component: "scanner:literal"}

	t.Run("StrictStrategy", func(t *testing.T) {
		if got := recovery.NewStrictStrategy().OnError(context.Background(), fault, loc); got != recovery.ActionFail {
			t.Fatalf("expected fail, got %v", got)
		}
	})

	t.Run("LenientStrategy", func(t *testing.T) {
		logger := &captureLogger{}
		rec := recovery.NewLenientStrategy().WithLogger(logger)
		action := rec.OnError(context.Background(), fault, loc)
		if !action.Continue() {
			t.Fatalf("expected lenient strategy to continue, got %v", action)
		}
		errs := rec.Errors()
		if len(errs) != 1 || !errors.Is(errs[0], fault) {
			t.Fatalf("expected recorded fault, got %v", errs)
		}
		if len(logger.warns) != 1 {
			t.Fatalf("expected one warning, got %d", len(logger.warns))
		}
	})
}
