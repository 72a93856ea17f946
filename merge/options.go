package merge

import (
	"runtime"

	"github.com/wudi/pdfcombine/observability"
	"github.com/wudi/pdfcombine/recovery"
	"github.com/wudi/pdfcombine/security"
	"github.com/wudi/pdfcombine/writer"
)

// DefaultProducer is written to the output Info dictionary.
const DefaultProducer = "pdfcombine"

type config struct {
	logger       observability.Logger
	tracer       observability.Tracer
	limits       security.Limits
	writer       writer.Config
	recovery     recovery.Strategy
	parallelism  int
	title        string
	producer     string
	interceptors []writer.Interceptor
}

func defaultConfig() config {
	return config{
		logger:      observability.NopLogger{},
		tracer:      observability.NopTracer(),
		limits:      security.DefaultLimits(),
		writer:      writer.Config{Version: writer.PDF17},
		parallelism: runtime.GOMAXPROCS(0),
		producer:    DefaultProducer,
	}
}

type Option func(*config)

func WithLogger(l observability.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithTracer(t observability.Tracer) Option {
	return func(c *config) {
		if t != nil {
			c.tracer = t
		}
	}
}

func WithLimits(l security.Limits) Option {
	return func(c *config) { c.limits = l.WithDefaults() }
}

func WithWriterConfig(w writer.Config) Option {
	return func(c *config) { c.writer = w }
}

// WithWriteInterceptor observes every object the writer emits.
func WithWriteInterceptor(i writer.Interceptor) Option {
	return func(c *config) { c.interceptors = append(c.interceptors, i) }
}

// WithRecovery sets the strategy consulted on malformed input. The default
// is a lenient strategy reporting to the configured logger.
func WithRecovery(s recovery.Strategy) Option {
	return func(c *config) { c.recovery = s }
}

// WithParallelism bounds how many inputs are parsed concurrently.
func WithParallelism(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.parallelism = n
		}
	}
}

// WithInfo sets the output Title and Producer. An empty producer keeps the
// default.
func WithInfo(title, producer string) Option {
	return func(c *config) {
		c.title = title
		if producer != "" {
			c.producer = producer
		}
	}
}
