// Package montecarlo estimates tail risk from simulated lognormal paths.
package montecarlo

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/aristath/portfolio-analytics/internal/domain"
	"github.com/aristath/portfolio-analytics/pkg/formulas"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat/distuv"
)

// Confidence is the level used for simulated VaR and CVaR.
const Confidence = 0.95

// DefaultMaxIterations caps the number of paths per run.
const DefaultMaxIterations = 100000

// MaxPathCells caps iterations x steps, the number of normal draws per run.
const MaxPathCells = 100_000_000

// Simulator draws N paths of Steps i.i.d. Normal(Mu, Sigma) log-returns.
// A path's value is exp of the running sum of its draws, starting from 1,
// so its terminal value is exp(sum of all draws).
type Simulator struct {
	maxIterations int
	log           zerolog.Logger
}

// NewSimulator creates a new simulator. maxIterations <= 0 uses DefaultMaxIterations.
func NewSimulator(maxIterations int, log zerolog.Logger) *Simulator {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return &Simulator{
		maxIterations: maxIterations,
		log:           log.With().Str("component", "monte_carlo").Logger(),
	}
}

// Options control a single run.
type Options struct {
	Iterations int
	// Seed makes the run reproducible. Nil draws from a fresh random source.
	Seed *uint64
}

// Run simulates opts.Iterations terminal values and their VaR and CVaR.
func (s *Simulator) Run(params Params, opts Options) (*domain.SimulationResult, error) {
	if opts.Iterations < 1 {
		return nil, fmt.Errorf("iterations must be positive, got %d", opts.Iterations)
	}
	if opts.Iterations > s.maxIterations {
		return nil, &domain.ResourceLimitExceededError{
			Resource:  "monte_carlo_iterations",
			Limit:     s.maxIterations,
			Requested: opts.Iterations,
		}
	}
	if params.Steps < 1 {
		return nil, &domain.InsufficientDataError{Operation: "monte_carlo", Required: 1, Got: params.Steps}
	}
	if cells := int64(opts.Iterations) * int64(params.Steps); cells > MaxPathCells {
		return nil, &domain.ResourceLimitExceededError{
			Resource:  "monte_carlo_path_cells",
			Limit:     MaxPathCells,
			Requested: int(cells),
		}
	}
	if params.Sigma < 0 || math.IsNaN(params.Sigma) || math.IsNaN(params.Mu) {
		return nil, fmt.Errorf("invalid distribution mu=%v sigma=%v", params.Mu, params.Sigma)
	}

	terminal := make([]float64, opts.Iterations)
	if params.Sigma == 0 {
		// Degenerate distribution; every draw equals Mu.
		v := math.Exp(params.Mu * float64(params.Steps))
		for i := range terminal {
			terminal[i] = v
		}
	} else {
		dist := distuv.Normal{Mu: params.Mu, Sigma: params.Sigma, Src: source(opts.Seed)}
		for i := range terminal {
			var logValue float64
			for t := 0; t < params.Steps; t++ {
				logValue += dist.Rand()
			}
			terminal[i] = math.Exp(logValue)
		}
	}

	cvar, valueAtRisk := formulas.CalculateCVaR(terminal, Confidence)

	s.log.Debug().
		Int("iterations", opts.Iterations).
		Int("steps", params.Steps).
		Float64("mu", params.Mu).
		Float64("sigma", params.Sigma).
		Bool("seeded", opts.Seed != nil).
		Msg("Monte Carlo run complete")

	return &domain.SimulationResult{
		VaR95:          valueAtRisk,
		CVaR95:         cvar,
		TerminalValues: terminal,
		Mu:             params.Mu,
		Sigma:          params.Sigma,
		Iterations:     opts.Iterations,
		Steps:          params.Steps,
	}, nil
}

// Path returns the full value path exp(cumsum(draws)) of a single
// simulation. Reports carry it as an example trajectory next to the
// terminal-value histogram.
func (s *Simulator) Path(params Params, seed *uint64) []float64 {
	dist := distuv.Normal{Mu: params.Mu, Sigma: params.Sigma, Src: source(seed)}
	draws := make([]float64, params.Steps)
	for t := range draws {
		if params.Sigma == 0 {
			draws[t] = params.Mu
			continue
		}
		draws[t] = dist.Rand()
	}
	path := formulas.CumulativeSum(draws)
	for t, v := range path {
		path[t] = math.Exp(v)
	}
	return path
}

func source(seed *uint64) rand.Source {
	if seed != nil {
		return rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15)
	}
	return rand.NewPCG(rand.Uint64(), rand.Uint64())
}
