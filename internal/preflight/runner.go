// Package preflight verifies a deployment environment before the
// application starts: runtime version, dependency pins, credentials and
// connectivity. Checks run strictly in registration order and the first
// failure aborts the run.
package preflight

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Check is one verification step
type Check struct {
	// Name identifies the check in logs and errors
	Name string
	// Run performs the check and returns a short result description
	Run func(ctx context.Context) (string, error)
}

// Result records one passed check
type Result struct {
	Name   string
	Detail string
	Took   time.Duration
}

// Runner executes checks one at a time, in order, without retries
type Runner struct {
	checks  []Check
	log     *zap.Logger
	timeout time.Duration
}

// NewRunner creates a runner. timeout bounds each check, zero means no limit.
func NewRunner(log *zap.Logger, timeout time.Duration) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{log: log, timeout: timeout}
}

// Add appends checks to the sequence
func (r *Runner) Add(checks ...Check) {
	r.checks = append(r.checks, checks...)
}

// Run executes every check in registration order. The first failing check
// stops the run: its error is returned and later checks do not execute.
// The results of the checks that passed are returned either way.
func (r *Runner) Run(ctx context.Context) ([]Result, error) {
	results := make([]Result, 0, len(r.checks))
	for i, c := range r.checks {
		cctx := ctx
		cancel := func() {}
		if r.timeout > 0 {
			cctx, cancel = context.WithTimeout(ctx, r.timeout)
		}
		start := time.Now()
		detail, err := c.Run(cctx)
		cancel()
		took := time.Since(start)

		if err != nil {
			r.log.Error("preflight check failed",
				zap.String("check", c.Name),
				zap.Int("step", i+1),
				zap.Duration("took", took),
				zap.Error(err))
			return results, fmt.Errorf("check %s failed: %w", c.Name, err)
		}
		r.log.Info("preflight check passed",
			zap.String("check", c.Name),
			zap.Int("step", i+1),
			zap.String("detail", detail),
			zap.Duration("took", took))
		results = append(results, Result{Name: c.Name, Detail: detail, Took: took})
	}
	return results, nil
}
