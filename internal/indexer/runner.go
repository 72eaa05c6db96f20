package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"intentScope/internal/alert"
	"intentScope/internal/model"
)

const DefaultMaxPasses = 20

// RunConfig bounds one run.
type RunConfig struct {
	MaxPasses int
}

// ChainReport is the outcome of one run for one chain.
type ChainReport struct {
	ChainID     uint64   `json:"chain_id"`
	Name        string   `json:"name,omitempty"`
	PassesRun   int      `json:"passes_run"`
	EventsFound int      `json:"events_found"`
	LastBlock   uint64   `json:"last_block"`
	CaughtUp    bool     `json:"caught_up"`
	Errors      []string `json:"errors"`

	failures []error
}

// Failed reports whether the chain stopped on an error.
func (r ChainReport) Failed() bool { return len(r.failures) > 0 }

// Err joins the chain's errors.
func (r ChainReport) Err() error { return errors.Join(r.failures...) }

func (r *ChainReport) addError(err error) {
	r.failures = append(r.failures, err)
	r.Errors = append(r.Errors, err.Error())
}

// Alert builds the operator alert for a failed chain. ok is false when the
// chain ran cleanly.
func (r ChainReport) Alert(at time.Time) (alert.Alert, bool) {
	if !r.Failed() {
		return alert.Alert{}, false
	}
	severity := alert.SeverityWarning
	var commitErr *model.CommitError
	if errors.As(r.Err(), &commitErr) {
		severity = alert.SeverityCritical
	}
	name := r.Name
	if name == "" {
		name = fmt.Sprintf("chain %d", r.ChainID)
	}
	return alert.Alert{
		Title:    fmt.Sprintf("%s indexing failed", name),
		Message:  r.Err().Error(),
		Severity: severity,
		ChainID:  r.ChainID,
		At:       at.UTC(),
	}, true
}

// Runner drives every configured chain through sequential passes.
type Runner struct {
	cfg       RunConfig
	pipelines []*Pipeline
	logger    *zap.Logger
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, pipelines []*Pipeline, logger *zap.Logger) *Runner {
	if cfg.MaxPasses <= 0 {
		cfg.MaxPasses = DefaultMaxPasses
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{cfg: cfg, pipelines: pipelines, logger: logger}
}

// Run executes one run. Chains run concurrently and independently; a failing
// chain never stops another. Reports are returned in pipeline order.
func (r *Runner) Run(ctx context.Context) []ChainReport {
	reports := make([]ChainReport, len(r.pipelines))
	var g errgroup.Group
	for i, p := range r.pipelines {
		i, p := i, p
		g.Go(func() error {
			reports[i] = r.runChain(ctx, p)
			return nil
		})
	}
	_ = g.Wait()
	return reports
}

func (r *Runner) runChain(ctx context.Context, p *Pipeline) (report ChainReport) {
	report = ChainReport{ChainID: p.ChainID(), Name: p.Name(), Errors: []string{}}
	logger := r.logger.With(zap.Uint64("chain_id", p.ChainID()))

	defer func() {
		if rec := recover(); rec != nil {
			report.addError(fmt.Errorf("chain %d panicked: %v", p.ChainID(), rec))
			logger.Error("chain panicked", zap.Any("panic", rec))
		}
	}()

	for report.PassesRun < r.cfg.MaxPasses {
		// A cancelled run finishes the pass in flight but starts no new one.
		if ctx.Err() != nil {
			logger.Info("run cancelled", zap.Int("passes", report.PassesRun))
			return report
		}

		logger.Debug("pass start", zap.Int("pass", report.PassesRun+1))
		res, err := p.RunPass(context.WithoutCancel(ctx))
		report.PassesRun++
		if err != nil {
			report.addError(err)
			logger.Error("pass failed", zap.Int("pass", report.PassesRun), zap.Error(err))
			return report
		}
		report.EventsFound += res.NewEvents
		if res.ToBlock > report.LastBlock {
			report.LastBlock = res.ToBlock
		}
		if res.CaughtUp {
			report.CaughtUp = true
			return report
		}
	}

	logger.Info("pass budget exhausted", zap.Int("passes", report.PassesRun), zap.Uint64("last_block", report.LastBlock))
	return report
}
