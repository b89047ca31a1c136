// Command ruleengine runs the real-time transaction rule engine service:
// consume from the input topic, evaluate the rule catalog, publish
// alerts.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/scorpius-io/rule-engine/config"
	"github.com/scorpius-io/rule-engine/memo"
	"github.com/scorpius-io/rule-engine/metrics"
	"github.com/scorpius-io/rule-engine/pipeline"
	"github.com/scorpius-io/rule-engine/risk"
	"github.com/scorpius-io/rule-engine/rlog"
	"github.com/scorpius-io/rule-engine/rules"
)

// watchlistCacheTTL bounds how long a memoized Suspicious() lookup is
// trusted in Redis before the next call re-queries the watchlist store. The
// in-process fallback of memo.Cache keeps entries for the process lifetime.
const watchlistCacheTTL = 30 * time.Second

func main() {
	app := &cli.App{
		Name:  "ruleengine",
		Usage: "real-time blockchain transaction rule engine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to YAML config file",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		rlog.Debug(fmt.Sprintf(format, args...))
	})); err != nil {
		rlog.Warn("automaxprocs: failed to set GOMAXPROCS", "error", err)
	}

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}

	rlog.New(cfg.LogLevel, cfg.LogFile)
	rlog.Info("starting rule engine", "config", c.String("config"))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := rules.NewStore(ctx, cfg.PostgresURL, cfg.MaxDBConnections)
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	defer store.Close()

	catalog := rules.NewCatalog(store)
	if err := catalog.Reload(ctx); err != nil {
		rlog.Warn("initial catalog load failed, starting with an empty snapshot", "error", err)
	}
	stopTicker := catalog.StartBackgroundTicker(ctx, cfg.RuleReloadInterval.Duration(), make(chan struct{}, 1))
	defer stopTicker()

	executor := rules.NewExecutor(cfg.MaxConcurrentRules, cfg.RuleTimeout())

	var oracle risk.AddressOracle = risk.NoopOracle{}
	watchlist, err := risk.NewPostgresWatchlist(ctx, cfg.PostgresURL, 2)
	if err != nil {
		rlog.Warn("watchlist store unavailable, address suspicion checks disabled", "error", err)
	} else {
		if closer, ok := watchlist.(interface{ Close() }); ok {
			defer closer.Close()
		}
		memoCache := memo.New(cfg.RedisURL, watchlistCacheTTL)
		defer memoCache.Close()
		oracle = risk.NewMemoizedOracle(memoCache, watchlist)
	}

	driver := pipeline.New(cfg, catalog, executor, oracle)

	sampler := metrics.NewSystemSampler(cfg.RuleReloadInterval.Duration())
	go sampler.Run(ctx)

	go func() {
		if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
			rlog.Error("metrics server stopped", "error", err)
		}
	}()

	if err := driver.Run(ctx); err != nil {
		return fmt.Errorf("pipeline driver: %w", err)
	}

	rlog.Info("rule engine shut down cleanly")
	return nil
}
