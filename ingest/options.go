package ingest

import (
	"runtime"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/linger"
	"github.com/dogmatiq/linger/backoff"
)

var (
	// DefaultConcurrencyLimit is the default number of process instances to
	// reconcile concurrently within a single batch.
	//
	// It is overridden by the WithConcurrencyLimit() option.
	DefaultConcurrencyLimit = uint(runtime.GOMAXPROCS(0) * 2)

	// DefaultWriteAttempts is the default number of times a document write
	// is attempted before an optimistic concurrency conflict is reported as
	// a failure.
	//
	// It is overridden by the WithWriteAttempts() option.
	DefaultWriteAttempts = uint(5)

	// DefaultWriteBackoff is the default backoff strategy for document
	// write retries.
	//
	// It is overridden by the WithWriteBackoff() option.
	DefaultWriteBackoff backoff.Strategy = backoff.WithTransforms(
		backoff.Exponential(10*time.Millisecond),
		linger.FullJitter,
		linger.Limiter(0, 5*time.Second),
	)

	// DefaultLogger is the default target for log messages produced by the
	// coordinator.
	//
	// It is overridden by the WithLogger() option.
	DefaultLogger = logging.DefaultLogger
)

// Option configures the behavior of a coordinator.
type Option func(*options)

// WithConcurrencyLimit returns an option that sets the number of process
// instances to reconcile concurrently within a single batch.
//
// If this option is omitted or n is zero, DefaultConcurrencyLimit is used.
func WithConcurrencyLimit(n uint) Option {
	return func(opts *options) {
		opts.ConcurrencyLimit = n
	}
}

// WithWriteAttempts returns an option that sets the number of times a
// document write is attempted before an optimistic concurrency conflict is
// reported as a failure.
//
// If this option is omitted or n is zero, DefaultWriteAttempts is used.
func WithWriteAttempts(n uint) Option {
	return func(opts *options) {
		opts.WriteAttempts = n
	}
}

// WithWriteBackoff returns an option that sets the backoff strategy for
// document write retries.
//
// If this option is omitted or s is nil, DefaultWriteBackoff is used.
func WithWriteBackoff(s backoff.Strategy) Option {
	return func(opts *options) {
		opts.WriteBackoff = s
	}
}

// WithLogger returns an option that sets the target for log messages
// produced by the coordinator.
//
// If this option is omitted or l is nil, DefaultLogger is used.
func WithLogger(l logging.Logger) Option {
	return func(opts *options) {
		opts.Logger = l
	}
}

// options is a container for a fully-resolved set of coordinator options.
type options struct {
	ConcurrencyLimit uint
	WriteAttempts    uint
	WriteBackoff     backoff.Strategy
	Logger           logging.Logger
}

// resolveOptions returns an options value with all defaults applied.
func resolveOptions(opts []Option) *options {
	resolved := &options{}

	for _, opt := range opts {
		opt(resolved)
	}

	if resolved.ConcurrencyLimit == 0 {
		resolved.ConcurrencyLimit = DefaultConcurrencyLimit
	}

	if resolved.WriteAttempts == 0 {
		resolved.WriteAttempts = DefaultWriteAttempts
	}

	if resolved.WriteBackoff == nil {
		resolved.WriteBackoff = DefaultWriteBackoff
	}

	if resolved.Logger == nil {
		resolved.Logger = DefaultLogger
	}

	return resolved
}
