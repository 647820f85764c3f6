package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"
	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-analytics/internal/clientdata"
	"github.com/aristath/portfolio-analytics/internal/clients/yahoo"
	"github.com/aristath/portfolio-analytics/internal/config"
	"github.com/aristath/portfolio-analytics/internal/database"
	"github.com/aristath/portfolio-analytics/internal/modules/analytics"
	"github.com/aristath/portfolio-analytics/internal/modules/holdings"
	"github.com/aristath/portfolio-analytics/pkg/logger"
)

// Commands lists every subcommand of pa.
var Commands = []subcommands.Command{
	&holdingsCmd{},
	&addCmd{},
	&metricsCmd{},
	&optimizeCmd{},
	&simulateCmd{},
}

var (
	userFlag = flag.String("user", getEnv("PA_USER", "default"), "user whose portfolio is read")
	quiet    = flag.Bool("q", false, "only log errors")
)

// app holds the services shared by the subcommands.
type app struct {
	user      string
	holdings  *holdings.Repository
	analytics *analytics.Service
	out       io.Writer
	closers   []io.Closer
}

// openApp loads configuration and opens the local databases.
func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if *quiet {
		level = "error"
	}
	log := logger.New(logger.Config{Level: level, Pretty: true, Output: os.Stderr})

	return newApp(cfg, *userFlag, os.Stdout, log)
}

func newApp(cfg *config.Config, user string, out io.Writer, log zerolog.Logger) (*app, error) {
	holdingsDB, err := database.Open(database.Config{
		Path:    cfg.DatabasePath("holdings"),
		Profile: database.ProfileStandard,
		Name:    "holdings",
		Driver:  cfg.SQLiteDriver,
	})
	if err != nil {
		return nil, err
	}

	cacheDB, err := database.Open(database.Config{
		Path:    cfg.DatabasePath("cache"),
		Profile: database.ProfileCache,
		Name:    "cache",
		Driver:  cfg.SQLiteDriver,
	})
	if err != nil {
		_ = holdingsDB.Close()
		return nil, err
	}

	repo := holdings.NewRepository(holdingsDB.Conn(), log)
	prices := yahoo.NewClient(cfg.Prices.BaseURL, clientdata.NewRepository(cacheDB.Conn()), log)

	return &app{
		user:      user,
		holdings:  repo,
		analytics: analytics.NewService(repo, prices, analytics.NewConfig(cfg.Analytics), log),
		out:       out,
		closers:   []io.Closer{cacheDB, holdingsDB},
	}, nil
}

func (a *app) Close() {
	for _, c := range a.closers {
		_ = c.Close()
	}
}

// print writes v as indented JSON.
func (a *app) print(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// withApp opens the app, runs fn and maps its error to an exit status.
func withApp(fn func(a *app) error) subcommands.ExitStatus {
	a, err := openApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening databases: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	if err := fn(a); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
