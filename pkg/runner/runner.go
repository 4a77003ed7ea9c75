// Package runner drives a list of vectors against a probe, one exchange at a
// time, and aggregates the verdicts.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/OpenTraceLab/dapcheck/pkg/compare"
	"github.com/OpenTraceLab/dapcheck/pkg/transport"
	"github.com/OpenTraceLab/dapcheck/pkg/vector"
)

// Outcome is the verdict for one executed vector.
type Outcome struct {
	Vector  vector.Vector
	Actual  []byte
	Verdict compare.Verdict
	Elapsed time.Duration
}

// Result is the aggregate of one Run. Vectors that were never issued because
// the run aborted are absent from Outcomes.
type Result struct {
	Suite    string
	Total    int
	Outcomes []Outcome

	// Complete is false when a transport fault stopped the run; Fault holds
	// the cause.
	Complete bool
	Fault    error

	Elapsed time.Duration
}

// Passed counts passing outcomes.
func (r *Result) Passed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Verdict.Pass {
			n++
		}
	}
	return n
}

// Failed counts failing outcomes.
func (r *Result) Failed() int {
	return len(r.Outcomes) - r.Passed()
}

// OK reports whether the run completed with every vector passing.
func (r *Result) OK() bool {
	return r.Complete && r.Failed() == 0
}

// Failures returns the failing outcomes.
func (r *Result) Failures() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if !o.Verdict.Pass {
			out = append(out, o)
		}
	}
	return out
}

// Summary converts the result for a Reporter.
func (r *Result) Summary() compare.Summary {
	return compare.Summary{
		Suite:    r.Suite,
		Total:    r.Total,
		Executed: len(r.Outcomes),
		Passed:   r.Passed(),
		Failed:   r.Failed(),
		Complete: r.Complete,
		Fault:    r.Fault,
		Elapsed:  r.Elapsed,
	}
}

// Config holds the runner settings.
type Config struct {
	Logger      zerolog.Logger
	Reporter    compare.Reporter
	Timeout     time.Duration
	MaxResponse int
	Compare     compare.Options
	Suite       string
}

func defaultConfig() Config {
	return Config{
		Logger:      zerolog.Nop(),
		Reporter:    compare.NopReporter{},
		Timeout:     transport.DefaultTimeout,
		MaxResponse: transport.MaxResponseSize,
	}
}

// Option is a functional option for configuring the Runner.
type Option func(*Config)

// WithLogger sets the structured logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithReporter sets where per-vector results are written.
func WithReporter(r compare.Reporter) Option {
	return func(c *Config) {
		if r != nil {
			c.Reporter = r
		}
	}
}

// WithTimeout sets the receive timeout for every exchange.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.Timeout = d
		}
	}
}

// WithMaxResponse caps the size of a single response read.
func WithMaxResponse(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxResponse = n
		}
	}
}

// WithCompareOptions sets how responses are judged.
func WithCompareOptions(o compare.Options) Option {
	return func(c *Config) {
		c.Compare = o
	}
}

// WithSuite names the run in results and reports.
func WithSuite(name string) Option {
	return func(c *Config) {
		c.Suite = name
	}
}

// Runner owns a transport for the duration of its runs.
type Runner struct {
	t   transport.Transport
	cfg Config
}

// New returns a Runner over t. The caller keeps responsibility for closing t.
func New(t transport.Transport, opts ...Option) *Runner {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Runner{t: t, cfg: cfg}
}

// Run executes vectors in order. A mismatch is recorded and the run goes on;
// a transport error stops it, leaves the remaining vectors unexecuted and is
// returned alongside the partial result. ctx is checked between vectors.
func (r *Runner) Run(ctx context.Context, vectors []vector.Vector) (*Result, error) {
	log := r.cfg.Logger
	res := &Result{
		Suite:    r.cfg.Suite,
		Total:    len(vectors),
		Outcomes: make([]Outcome, 0, len(vectors)),
		Complete: true,
	}
	start := time.Now()

	r.cfg.Reporter.Begin(r.cfg.Suite, len(vectors))
	defer func() {
		res.Elapsed = time.Since(start)
		r.cfg.Reporter.End(res.Summary())
	}()

	for i, v := range vectors {
		if err := ctx.Err(); err != nil {
			res.Complete = false
			res.Fault = err
			log.Warn().Err(err).Int("executed", i).Msg("run cancelled")
			return res, err
		}

		vlog := log.With().Str("vector", v.Name()).Str("family", v.Family()).Logger()

		outcome, err := r.exchange(v)
		if err != nil {
			err = fmt.Errorf("vector %q: %w", v.Name(), err)
			res.Complete = false
			res.Fault = err
			r.cfg.Reporter.Fault(v, err)

			ev := vlog.Error().Err(err)
			if terr, ok := transport.AsError(err); ok {
				ev = ev.Str("kind", terr.Kind.String())
			}
			ev.Int("remaining", len(vectors)-i).Msg("transport fault, aborting run")
			return res, err
		}

		res.Outcomes = append(res.Outcomes, outcome)
		r.cfg.Reporter.Report(v, outcome.Actual, outcome.Verdict)

		if outcome.Verdict.Pass {
			vlog.Debug().Int("bytes", len(outcome.Actual)).Dur("elapsed", outcome.Elapsed).Msg("pass")
		} else {
			vlog.Info().
				Int("bytes", len(outcome.Actual)).
				Int("mismatches", len(outcome.Verdict.Mismatches)).
				Bool("length_mismatch", outcome.Verdict.LengthMismatch).
				Int("first", outcome.Verdict.FirstMismatch()).
				Msg("fail")
		}
	}

	log.Info().Int("passed", res.Passed()).Int("failed", res.Failed()).Msg("run finished")
	return res, nil
}

func (r *Runner) exchange(v vector.Vector) (Outcome, error) {
	start := time.Now()
	input := v.Input()

	if _, err := r.t.Send(input); err != nil {
		return Outcome{}, err
	}
	actual, err := r.t.Receive(r.cfg.MaxResponse, r.cfg.Timeout)
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{
		Vector:  v,
		Actual:  actual,
		Verdict: r.cfg.Compare.Compare(actual, v.Expected()),
		Elapsed: time.Since(start),
	}, nil
}
