// Package optimizer runs the curve fits requested by a configuration and
// writes the chosen results back into the workspace.
package optimizer

import (
	"context"
	"fmt"

	"github.com/iwvelando/curve-forecast/internal/adoption"
	"github.com/iwvelando/curve-forecast/internal/config"
	"github.com/iwvelando/curve-forecast/internal/fitting"
	"github.com/iwvelando/curve-forecast/internal/persistency"
	"github.com/iwvelando/curve-forecast/pkg/optimization"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	scopeAdoption    = "adoption"
	scopePersistency = "persistency"
)

// Runner fits every configured model against the observed data.
type Runner struct {
	logger   *zap.Logger
	resolved *config.Resolved
}

// Result holds the fits of both sides, keyed by model. A model that could
// not be fitted is absent.
type Result struct {
	Adoption        map[adoption.Model]*adoption.FitResult
	AdoptionBest    *adoption.FitResult
	Persistency     map[persistency.Model]*persistency.FitResult
	PersistencyBest *persistency.FitResult

	// Applied names the models whose fits were written back, per scope.
	Applied map[string]string
}

// Empty indicates whether any fit was produced.
func (r Result) Empty() bool {
	return len(r.Adoption) == 0 && len(r.Persistency) == 0
}

// job is one model fit; run stores its result in a preallocated slot.
type job struct {
	scope string
	model string
	run   func() (*fitting.Metrics, bool, error)
}

// NewRunner constructs a Runner for the provided workspace.
func NewRunner(logger *zap.Logger, resolved *config.Resolved) (*Runner, error) {
	if resolved == nil {
		return nil, fmt.Errorf("resolved configuration cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{logger: logger, resolved: resolved}, nil
}

// Run fits every requested model concurrently. Each fit is single threaded
// and works on its own copy of the parameters, so results do not depend on
// scheduling.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	res := &Result{
		Adoption:    make(map[adoption.Model]*adoption.FitResult),
		Persistency: make(map[persistency.Model]*persistency.FitResult),
		Applied:     make(map[string]string),
	}

	adoptionModels := r.resolved.AdoptionModels
	if len(adoptionModels) == 0 {
		adoptionModels = adoption.FittableModels
	}
	persistencyModels := r.resolved.PersistencyModels
	if len(persistencyModels) == 0 {
		persistencyModels = persistency.FittableModels
	}

	adoptionSlots := make([]*adoption.FitResult, len(adoptionModels))
	persistencySlots := make([]*persistency.FitResult, len(persistencyModels))

	var jobs []job
	if len(r.resolved.AdoptionObserved) > 0 {
		_, core, params := r.resolved.Adoption.Effective()
		opts := r.resolved.Fit.AdoptionOptions()
		observed := r.resolved.AdoptionObserved
		for i, m := range adoptionModels {
			i, m := i, m
			jobs = append(jobs, job{scope: scopeAdoption, model: string(m), run: func() (*fitting.Metrics, bool, error) {
				fit, err := adoption.Fit(m, core, params, observed, opts)
				if err != nil || fit == nil {
					return nil, false, err
				}
				adoptionSlots[i] = fit
				return &fit.Metrics, fit.Converged, nil
			}})
		}
	} else {
		r.logger.Debug("no adoption observations, skipping adoption fits",
			zap.String("op", "optimizer.Run"),
		)
	}

	if len(r.resolved.PersistencyObserved) > 0 {
		_, params := r.resolved.Persistency.Effective()
		horizon := r.resolved.Persistency.Horizon
		opts := r.resolved.Fit.PersistencyOptions()
		observed := r.resolved.PersistencyObserved
		for i, m := range persistencyModels {
			i, m := i, m
			jobs = append(jobs, job{scope: scopePersistency, model: string(m), run: func() (*fitting.Metrics, bool, error) {
				fit, err := persistency.Fit(m, params, horizon, observed, opts)
				if err != nil || fit == nil {
					return nil, false, err
				}
				persistencySlots[i] = fit
				return &fit.Metrics, fit.Converged, nil
			}})
		}
	} else {
		r.logger.Debug("no persistency observations, skipping persistency fits",
			zap.String("op", "optimizer.Run"),
		)
	}

	if len(jobs) == 0 {
		return res, nil
	}

	limit := r.resolved.Fit.Concurrency
	if limit <= 0 {
		limit = len(jobs)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			metrics, converged, err := j.run()
			if err != nil {
				return fmt.Errorf("%s fit %s: %w", j.scope, j.model, err)
			}
			if metrics == nil {
				r.logger.Debug("model skipped",
					zap.String("op", "optimizer.Run"),
					zap.String("scope", j.scope),
					zap.String("model", j.model),
				)
				return nil
			}
			r.logger.Info("model fitted",
				zap.String("op", "optimizer.Run"),
				zap.String("scope", j.scope),
				zap.String("model", j.model),
				zap.Float64("r2", metrics.R2),
				zap.Float64("rmse", metrics.RMSE),
				zap.Float64("sse", metrics.SSE),
				zap.Int("points", metrics.N),
				zap.Bool("converged", converged),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, m := range adoptionModels {
		if adoptionSlots[i] != nil {
			res.Adoption[m] = adoptionSlots[i]
		}
	}
	for i, m := range persistencyModels {
		if persistencySlots[i] != nil {
			res.Persistency[m] = persistencySlots[i]
		}
	}
	res.AdoptionBest = adoption.Best(res.Adoption)
	res.PersistencyBest = persistency.Best(res.Persistency)

	if res.AdoptionBest != nil {
		r.logger.Info("best adoption fit",
			zap.String("op", "optimizer.Run"),
			zap.String("model", string(res.AdoptionBest.Model)),
			zap.Float64("rmse", res.AdoptionBest.Metrics.RMSE),
		)
	}
	if res.PersistencyBest != nil {
		r.logger.Info("best persistency fit",
			zap.String("op", "optimizer.Run"),
			zap.String("model", string(res.PersistencyBest.Model)),
			zap.Float64("sse", res.PersistencyBest.Metrics.SSE),
		)
	}

	return res, nil
}

// adoptionChoice picks the adoption fit to apply for mode, or nil.
func (r *Result) adoptionChoice(mode string, active adoption.Model) *adoption.FitResult {
	switch mode {
	case config.FitApplyNone:
		return nil
	case config.FitApplyBest:
		return r.AdoptionBest
	case config.FitApplyStaged:
		if fit := r.Adoption[active]; fit != nil {
			return fit
		}
		return r.AdoptionBest
	default:
		m, err := adoption.ParseModel(mode)
		if err != nil {
			return nil
		}
		return r.Adoption[m]
	}
}

func (r *Result) persistencyChoice(mode string, active persistency.Model) *persistency.FitResult {
	switch mode {
	case config.FitApplyNone:
		return nil
	case config.FitApplyBest:
		return r.PersistencyBest
	case config.FitApplyStaged:
		if fit := r.Persistency[active]; fit != nil {
			return fit
		}
		return r.PersistencyBest
	default:
		m, err := persistency.ParseModel(mode)
		if err != nil {
			return nil
		}
		return r.Persistency[m]
	}
}

// Apply writes the fits selected by resolved.Fit.Apply into the live states
// of resolved. It returns notes describing what changed.
func (r *Result) Apply(resolved *config.Resolved) ([]string, error) {
	if resolved == nil {
		return nil, fmt.Errorf("resolved configuration cannot be nil")
	}
	if r.Applied == nil {
		r.Applied = make(map[string]string)
	}
	mode := config.CanonicalApplyMode(resolved.Fit.Apply)
	if mode == config.FitApplyNone {
		return nil, nil
	}

	var notes []string
	if fit := r.adoptionChoice(mode, resolved.Adoption.Model); fit != nil {
		state, err := adoption.ApplyFit(resolved.Adoption, *fit)
		if err != nil {
			return notes, fmt.Errorf("apply adoption fit: %w", err)
		}
		resolved.Adoption = state
		r.Applied[scopeAdoption] = string(fit.Model)
		notes = append(notes, fmt.Sprintf("Applied %s fit to the adoption curve (R² %.4f)", fit.Model.Label(), fit.Metrics.R2))
	}
	if fit := r.persistencyChoice(mode, resolved.Persistency.Model); fit != nil {
		state, err := persistency.ApplyFit(resolved.Persistency, *fit)
		if err != nil {
			return notes, fmt.Errorf("apply persistency fit: %w", err)
		}
		resolved.Persistency = state
		r.Applied[scopePersistency] = string(fit.Model)
		notes = append(notes, fmt.Sprintf("Applied %s fit to the persistency curve (R² %.4f)", fit.Model.Label(), fit.Metrics.R2))
	}
	if len(notes) == 0 && !r.Empty() {
		notes = append(notes, fmt.Sprintf("No fit result matches apply mode %q", mode))
	}
	return notes, nil
}

// Summaries flattens the fits for output, adoption first, each side in
// model order.
func (r Result) Summaries() []optimization.Summary {
	var out []optimization.Summary
	for _, m := range adoption.Models {
		fit := r.Adoption[m]
		if fit == nil {
			continue
		}
		out = append(out, summary(scopeAdoption, string(m), fit.Params, fit.Metrics, fit.Loss, fit.Iterations, fit.Converged,
			fit == r.AdoptionBest, r.Applied[scopeAdoption] == string(m)))
	}
	for _, m := range persistency.Models {
		fit := r.Persistency[m]
		if fit == nil {
			continue
		}
		out = append(out, summary(scopePersistency, string(m), fit.Params, fit.Metrics, fit.Loss, fit.Iterations, fit.Converged,
			fit == r.PersistencyBest, r.Applied[scopePersistency] == string(m)))
	}
	return out
}

func summary(scope, model string, params map[string]float64, m fitting.Metrics, loss float64, iterations int, converged, best, applied bool) optimization.Summary {
	s := optimization.Summary{
		Scope:      scope,
		Model:      model,
		Params:     params,
		R2:         m.R2,
		RMSE:       m.RMSE,
		SSE:        m.SSE,
		MAPE:       m.MAPE,
		Loss:       loss,
		Iterations: iterations,
		Converged:  converged,
		Best:       best,
		Applied:    applied,
	}
	if !converged {
		s.Notes = append(s.Notes, "iteration limit reached before convergence")
	}
	return s
}
