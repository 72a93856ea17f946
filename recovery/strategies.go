package recovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/wudi/pdfcombine/observability"
)

// StrictStrategy implements a fail-fast recovery strategy.
type StrictStrategy struct{}

func NewStrictStrategy() *StrictStrategy {
	return &StrictStrategy{}
}

func (s *StrictStrategy) OnError(ctx context.Context, err error, location Location) Action {
	return ActionFail
}

// LenientStrategy implements a best-effort recovery strategy. Every fault is
// recorded, logged at warn level, and answered with ActionFix.
type LenientStrategy struct {
	mu     sync.Mutex
	errs   []error
	logger observability.Logger
}

func NewLenientStrategy() *LenientStrategy {
	return &LenientStrategy{logger: observability.NopLogger{}}
}

// WithLogger sets the logger that receives recovered faults.
func (s *LenientStrategy) WithLogger(l observability.Logger) *LenientStrategy {
	if l != nil {
		s.logger = l
	}
	return s
}

func (s *LenientStrategy) OnError(ctx context.Context, err error, location Location) Action {
	s.mu.Lock()
	s.errs = append(s.errs, fmt.Errorf("[%s] offset %d: %w", location.Component, location.ByteOffset, err))
	s.mu.Unlock()
	s.logger.Warn("recovered from malformed input",
		observability.String("component", location.Component),
		observability.Int64("offset", location.ByteOffset),
		observability.Int("object", location.ObjectNum),
		observability.Error("error", err),
	)
	return ActionFix
}

// Errors returns the faults recorded so far.
func (s *LenientStrategy) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}
