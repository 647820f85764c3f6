// Package optimization finds long-only, fully invested portfolio weights.
package optimization

import (
	"fmt"
	"math"

	"github.com/aristath/portfolio-analytics/internal/domain"
	"github.com/aristath/portfolio-analytics/pkg/formulas"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

const (
	ObjectiveMaxSharpe   = "max_sharpe"
	ObjectiveMinVariance = "min_variance"
)

// Config bounds the solver.
type Config struct {
	// MaxIterations caps major iterations of each solver run.
	MaxIterations int
	// Tolerance is the gradient threshold in softmax coordinates and the
	// relative function-convergence threshold.
	Tolerance float64
}

// DefaultConfig returns the solver limits used when none are configured.
func DefaultConfig() Config {
	return Config{
		MaxIterations: 10000,
		Tolerance:     1e-9,
	}
}

// Result is a converged optimization.
type Result struct {
	Objective  string              `json:"objective"`
	Weights    domain.WeightVector `json:"weights"`
	Iterations int                 `json:"iterations"`
	Residual   float64             `json:"residual"`
}

// Optimizer solves MaxSharpe and MinVariance over the simplex
// w_i >= 0, sum(w) = 1. Weights are parametrized as w = softmax(z), which
// keeps the constraints exact, and z is minimized with BFGS falling back to
// Nelder-Mead, starting from uniform weights.
// It holds no mutable state, so one Optimizer may serve concurrent calls.
type Optimizer struct {
	cfg Config
	log zerolog.Logger
}

// NewOptimizer creates a new optimizer
func NewOptimizer(cfg Config, log zerolog.Logger) *Optimizer {
	defaults := DefaultConfig()
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaults.MaxIterations
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = defaults.Tolerance
	}
	return &Optimizer{
		cfg: cfg,
		log: log.With().Str("component", "optimizer").Logger(),
	}
}

// objective is a smooth function on the simplex and its gradient.
type objective struct {
	name  string
	value func(w []float64) float64
	grad  func(dst, w []float64)
}

// MaxSharpe maximizes (portfolioReturn(w) - riskFreeRate) / portfolioVolatility(w)
// with annualized return 252*(mu.w) and volatility sqrt(252*w'Cov w).
func (o *Optimizer) MaxSharpe(in *Inputs, riskFreeRate float64) (*Result, error) {
	if err := o.check(in, ObjectiveMaxSharpe); err != nil {
		return nil, err
	}

	cov := in.Covariance.Matrix
	mu := in.MeanReturns
	n := len(mu)
	sw := make([]float64, n)

	obj := objective{
		name: ObjectiveMaxSharpe,
		value: func(w []float64) float64 {
			ret, vol := annualized(mu, cov, w)
			if vol <= 0 {
				return math.Inf(1)
			}
			return -(ret - riskFreeRate) / vol
		},
		grad: func(dst, w []float64) {
			ret, vol := annualized(mu, cov, w)
			mulSym(sw, cov, w)
			excess := ret - riskFreeRate
			// d/dw of -(R - rf)/V with dR = 252 mu and dV = 252 Cov w / V
			for i := range dst {
				dR := formulas.TradingDaysPerYear * mu[i]
				dV := formulas.TradingDaysPerYear * sw[i] / vol
				dst[i] = -(dR*vol - excess*dV) / (vol * vol)
			}
		},
	}

	return o.solve(in.Tickers, obj)
}

// MinVariance minimizes portfolio volatility. The solver works on annualized
// variance, which has the same minimizer and a smooth gradient at zero.
func (o *Optimizer) MinVariance(in *Inputs) (*Result, error) {
	if err := o.check(in, ObjectiveMinVariance); err != nil {
		return nil, err
	}

	cov := in.Covariance.Matrix
	sw := make([]float64, len(in.Tickers))

	obj := objective{
		name: ObjectiveMinVariance,
		value: func(w []float64) float64 {
			mulSym(sw, cov, w)
			return formulas.TradingDaysPerYear * floats.Dot(w, sw)
		},
		grad: func(dst, w []float64) {
			mulSym(dst, cov, w)
			floats.Scale(2*formulas.TradingDaysPerYear, dst)
		},
	}

	return o.solve(in.Tickers, obj)
}

// Performance reports the annualized return, volatility and Sharpe ratio
// of weights under in. Sharpe is undefined when volatility is zero.
func (o *Optimizer) Performance(in *Inputs, weights []float64, riskFreeRate float64) (domain.PortfolioPerformance, error) {
	if err := in.validate(); err != nil {
		return domain.PortfolioPerformance{}, err
	}
	if len(weights) != len(in.Tickers) {
		return domain.PortfolioPerformance{}, fmt.Errorf("got %d weights for %d tickers", len(weights), len(in.Tickers))
	}

	ret, vol := annualized(in.MeanReturns, in.Covariance.Matrix, weights)
	perf := domain.PortfolioPerformance{
		ExpectedReturn:     ret,
		ExpectedVolatility: vol,
		SharpeRatio:        domain.Undefined(),
	}
	if vol > 0 {
		perf.SharpeRatio = domain.NewValue((ret - riskFreeRate) / vol)
	}
	return perf, nil
}

func (o *Optimizer) check(in *Inputs, name string) error {
	if in != nil && len(in.Tickers) < 2 {
		return &domain.InsufficientAssetsError{Operation: name, Required: 2, Got: len(in.Tickers)}
	}
	if err := in.validate(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	for i, m := range in.MeanReturns {
		if math.IsNaN(m) || math.IsInf(m, 0) {
			return fmt.Errorf("%s: non-finite mean return for %s", name, in.Tickers[i])
		}
	}
	return nil
}

// dustWeight is the level below which a converged weight is reported as zero.
const dustWeight = 1e-9

func (o *Optimizer) solve(tickers []string, obj objective) (*Result, error) {
	n := len(tickers)

	fw := obj.value(uniformWeights(n))
	if math.IsNaN(fw) || math.IsInf(fw, 0) {
		return nil, &domain.OptimizationDidNotConvergeError{
			Objective: obj.name,
			Reason:    "objective is not finite at the uniform starting point",
		}
	}

	problem := optimize.Problem{
		Func: func(z []float64) float64 {
			w := make([]float64, n)
			softmax(w, z)
			return obj.value(w)
		},
		Grad: func(grad, z []float64) {
			w := make([]float64, n)
			g := make([]float64, n)
			softmax(w, z)
			obj.grad(g, w)
			softmaxGrad(grad, w, g)
		},
	}

	// z = 0 is the uniform portfolio
	initial := make([]float64, n)

	result, err := optimize.Minimize(problem, initial, o.settings(), &optimize.BFGS{})
	if err != nil || !accepted(result) {
		start := initial
		if result != nil && allFinite(result.X) {
			start = result.X
		}
		o.log.Debug().
			Str("objective", obj.name).
			Str("status", statusOf(result)).
			Err(err).
			Msg("BFGS did not converge, retrying with Nelder-Mead")
		result, err = optimize.Minimize(problem, start, o.settings(), &optimize.NelderMead{})
	}

	if err != nil || !accepted(result) {
		return nil, o.notConverged(obj, problem, result, err)
	}

	w := make([]float64, n)
	softmax(w, result.X)
	return o.converged(tickers, obj.name, w, result.MajorIterations, residual(problem, result.X)), nil
}

// settings are built per run; gonum's converger carries state.
func (o *Optimizer) settings() *optimize.Settings {
	return &optimize.Settings{
		GradientThreshold: o.cfg.Tolerance,
		MajorIterations:   o.cfg.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-14,
			Relative:   o.cfg.Tolerance,
			Iterations: 20,
		},
	}
}

func accepted(result *optimize.Result) bool {
	if result == nil {
		return false
	}
	switch result.Status {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence:
		return allFinite(result.X) && !math.IsNaN(result.F) && !math.IsInf(result.F, 0)
	}
	return false
}

func (o *Optimizer) notConverged(obj objective, problem optimize.Problem, result *optimize.Result, err error) error {
	out := &domain.OptimizationDidNotConvergeError{
		Objective: obj.name,
		Residual:  math.Inf(1),
		Reason:    "status=" + statusOf(result),
	}
	if err != nil {
		out.Reason += ": " + err.Error()
	}
	if result != nil {
		out.Iterations = result.MajorIterations
		switch result.Status {
		case optimize.IterationLimit, optimize.FunctionEvaluationLimit, optimize.RuntimeLimit:
			out.BudgetExhausted = true
		}
		if allFinite(result.X) {
			out.Residual = residual(problem, result.X)
		}
	}

	o.log.Warn().
		Str("objective", obj.name).
		Int("iterations", out.Iterations).
		Float64("residual", out.Residual).
		Bool("budget_exhausted", out.BudgetExhausted).
		Str("reason", out.Reason).
		Msg("Optimization did not converge")

	return out
}

func statusOf(result *optimize.Result) string {
	if result == nil {
		return "none"
	}
	return result.Status.String()
}

// residual is ||grad F(z)||_inf, the stationarity measure in softmax coordinates.
func residual(problem optimize.Problem, z []float64) float64 {
	g := make([]float64, len(z))
	problem.Grad(g, z)
	if !allFinite(g) {
		return math.Inf(1)
	}
	return floats.Norm(g, math.Inf(1))
}

func (o *Optimizer) converged(tickers []string, name string, w []float64, iters int, residual float64) *Result {
	weights := make([]float64, len(w))
	copy(weights, w)
	// softmax never reaches zero; report excluded assets as exactly zero
	for i, v := range weights {
		if v < dustWeight {
			weights[i] = 0
		}
	}
	floats.Scale(1/floats.Sum(weights), weights)

	o.log.Debug().
		Str("objective", name).
		Int("iterations", iters).
		Float64("residual", residual).
		Msg("Optimization converged")

	return &Result{
		Objective: name,
		Weights: domain.WeightVector{
			Tickers: append([]string(nil), tickers...),
			Weights: weights,
		},
		Iterations: iters,
		Residual:   residual,
	}
}

// annualized returns 252*(mu.w) and sqrt(252*w'Cov w).
func annualized(mu []float64, cov *mat.SymDense, w []float64) (ret, vol float64) {
	sw := make([]float64, len(w))
	mulSym(sw, cov, w)
	variance := formulas.TradingDaysPerYear * floats.Dot(w, sw)
	if variance < 0 {
		variance = 0
	}
	return formulas.TradingDaysPerYear * floats.Dot(mu, w), math.Sqrt(variance)
}

func mulSym(dst []float64, cov *mat.SymDense, w []float64) {
	mat.NewVecDense(len(dst), dst).MulVec(cov, mat.NewVecDense(len(w), w))
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
