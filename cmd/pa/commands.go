package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"github.com/aristath/portfolio-analytics/internal/modules/holdings"
	"github.com/aristath/portfolio-analytics/internal/utils"
)

// holdingsCmd lists the stored positions.
type holdingsCmd struct {
	tickers string
}

func (*holdingsCmd) Name() string     { return "holdings" }
func (*holdingsCmd) Synopsis() string { return "list the stored positions" }
func (*holdingsCmd) Usage() string {
	return `pa [-user <id>] holdings [-t AAPL,MSFT]

  Prints the user's positions as JSON, optionally restricted to some tickers.
`
}

func (c *holdingsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.tickers, "t", "", "comma separated tickers to show")
}

func (c *holdingsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(func(a *app) error { return c.run(ctx, a) })
}

type position struct {
	Ticker   string  `json:"ticker"`
	Quantity float64 `json:"quantity"`
}

func (c *holdingsCmd) run(ctx context.Context, a *app) error {
	held, err := a.holdings.Load(ctx, a.user)
	if err != nil {
		return err
	}

	only := utils.ParseTickers(c.tickers)
	positions := make([]position, 0, len(held))
	if len(only) > 0 {
		for _, t := range only {
			if q, ok := held[t]; ok {
				positions = append(positions, position{Ticker: t, Quantity: q})
			}
		}
	} else {
		for t, q := range held {
			positions = append(positions, position{Ticker: t, Quantity: q})
		}
		sort.Slice(positions, func(i, j int) bool { return positions[i].Ticker < positions[j].Ticker })
	}

	return a.print(positions)
}

// addCmd adds a quantity to a position.
type addCmd struct{}

func (*addCmd) Name() string     { return "add" }
func (*addCmd) Synopsis() string { return "add shares to a position" }
func (*addCmd) Usage() string {
	return `pa [-user <id>] add <ticker> <quantity>

  Adds quantity to the position, creating it if needed.
`
}

func (*addCmd) SetFlags(*flag.FlagSet) {}

func (c *addCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 2 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	qty, err := decimal.NewFromString(f.Arg(1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid quantity %q: %v\n", f.Arg(1), err)
		return subcommands.ExitUsageError
	}

	return withApp(func(a *app) error { return c.run(ctx, a, f.Arg(0), qty) })
}

func (c *addCmd) run(ctx context.Context, a *app, ticker string, qty decimal.Decimal) error {
	total, err := a.holdings.Add(ctx, a.user, ticker, qty)
	if err != nil {
		return err
	}
	return a.print(map[string]interface{}{
		"ticker":   holdings.NormalizeTicker(ticker),
		"quantity": total,
	})
}

// metricsCmd computes the performance and risk metrics.
type metricsCmd struct{}

func (*metricsCmd) Name() string     { return "metrics" }
func (*metricsCmd) Synopsis() string { return "compute portfolio metrics" }
func (*metricsCmd) Usage() string {
	return `pa [-user <id>] metrics

  Fetches prices for the held tickers and prints the portfolio metrics.
`
}

func (*metricsCmd) SetFlags(*flag.FlagSet) {}

func (c *metricsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(func(a *app) error {
		report, err := a.analytics.Metrics(ctx, a.user)
		if err != nil {
			return err
		}
		return a.print(report)
	})
}

// optimizeCmd computes the max-Sharpe and min-variance portfolios.
type optimizeCmd struct {
	riskFree float64
}

func (*optimizeCmd) Name() string     { return "optimize" }
func (*optimizeCmd) Synopsis() string { return "compute optimal portfolio weights" }
func (*optimizeCmd) Usage() string {
	return `pa [-user <id>] optimize [-rf 0.02]

  Prints the maximum Sharpe and minimum variance weights with their expected
  performance, next to the current portfolio.
`
}

func (c *optimizeCmd) SetFlags(f *flag.FlagSet) {
	f.Float64Var(&c.riskFree, "rf", -1, "annual risk-free rate (default from PA_RISK_FREE_RATE)")
}

func (c *optimizeCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	var rf *float64
	if c.riskFree >= 0 {
		rf = &c.riskFree
	}
	return withApp(func(a *app) error {
		report, err := a.analytics.Optimize(ctx, a.user, rf)
		if err != nil {
			return err
		}
		return a.print(report)
	})
}

// simulateCmd runs the Monte Carlo simulation.
type simulateCmd struct {
	iterations int
	seed       uint64
	seeded     bool
}

func (*simulateCmd) Name() string     { return "simulate" }
func (*simulateCmd) Synopsis() string { return "run a Monte Carlo simulation" }
func (*simulateCmd) Usage() string {
	return `pa [-user <id>] simulate [-n 10000] [-seed 42]

  Simulates one year of portfolio value paths and prints the terminal value
  statistics and histogram.
`
}

func (c *simulateCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.iterations, "n", 0, "number of paths (default from PA_MC_ITERATIONS)")
	f.Uint64Var(&c.seed, "seed", 0, "random seed for a reproducible run")
}

func (c *simulateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	f.Visit(func(fl *flag.Flag) {
		if fl.Name == "seed" {
			c.seeded = true
		}
	})
	if c.iterations < 0 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}

	var seed *uint64
	if c.seeded {
		seed = &c.seed
	}
	return withApp(func(a *app) error {
		report, err := a.analytics.Simulate(ctx, a.user, c.iterations, seed)
		if err != nil {
			return err
		}
		return a.print(report)
	})
}
