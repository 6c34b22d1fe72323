// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/brit/playwrightium/internal/browser"
	"github.com/brit/playwrightium/internal/config"
	"github.com/brit/playwrightium/internal/observability"
	"github.com/brit/playwrightium/internal/scenario"
)

// newRunCmd creates the `run` command. Its flags are bound to v so they
// override the config file and environment.
func newRunCmd(v *viper.Viper, opts ...browser.ManagerOption) *cobra.Command {
	var (
		baseURL string
		verbose bool
	)
	runCmd := &cobra.Command{
		Use:   "run <flow.yaml>...",
		Short: "Run scenario flow files, each in its own session",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			scenarios, err := parseAll(args)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()
			manager := browser.NewManager(cfg, logger, opts...)

			r := &scenarioRun{
				cfg:     cfg,
				manager: manager,
				logger:  logger,
				baseURL: baseURL,
				verbose: verbose,
				out:     cmd.OutOrStdout(),
			}
			failed := r.runAll(cmd.Context(), scenarios)

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), cfg.Timeouts.Quit)
			defer cancel()
			if err := manager.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Browser manager shutdown failed.", zap.Error(err))
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\n%d scenarios, %d failed\n", len(scenarios), failed)
			if failed > 0 {
				return fmt.Errorf("%d of %d scenarios failed", failed, len(scenarios))
			}
			return nil
		},
	}

	flags := runCmd.Flags()
	flags.StringVar(&baseURL, "base-url", "", "resolve relative open URLs against this URL")
	flags.BoolVarP(&verbose, "verbose", "v", false, "print every step")
	flags.String("transport", "", "browser transport: cdp or htmldoc (overrides config/env)")
	flags.IntP("concurrency", "j", 0, "scenarios run at once (overrides config/env)")
	flags.Bool("fail-fast", false, "stop starting scenarios after the first failure")
	flags.Bool("headless", true, "run the browser without a window (cdp only)")

	for key, name := range map[string]string{
		"browser.transport":    "transport",
		"browser.headless":     "headless",
		"scenario.concurrency": "concurrency",
		"scenario.fail_fast":   "fail-fast",
	} {
		// Lookup cannot fail for flags defined above.
		_ = v.BindPFlag(key, flags.Lookup(name))
	}
	return runCmd
}

func parseAll(paths []string) ([]*scenario.Scenario, error) {
	var (
		scenarios []*scenario.Scenario
		errs      error
	)
	for _, p := range paths {
		sc, err := scenario.ParseFile(p)
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		scenarios = append(scenarios, sc)
	}
	return scenarios, errs
}

type scenarioRun struct {
	cfg     *config.Config
	manager *browser.Manager
	logger  *zap.Logger
	baseURL string
	verbose bool

	mu  sync.Mutex
	out io.Writer
}

// runAll executes the scenarios with bounded concurrency and returns how
// many failed. With fail_fast the first failure cancels the rest.
func (r *scenarioRun) runAll(ctx context.Context, scenarios []*scenario.Scenario) int {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Scenario.Concurrency)

	var (
		mu     sync.Mutex
		failed int
	)
	for _, sc := range scenarios {
		g.Go(func() error {
			if gctx.Err() != nil {
				r.print(sc, nil, fmt.Errorf("not started: %w", context.Cause(gctx)))
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			report, err := r.runOne(gctx, sc)
			r.print(sc, report, err)
			if err == nil && !report.Failed() {
				return nil
			}
			mu.Lock()
			failed++
			mu.Unlock()
			if r.cfg.Scenario.FailFast {
				if err == nil {
					err = report.Err()
				}
				return err
			}
			return nil
		})
	}
	// Goroutines only return errors to trigger fail-fast cancellation.
	_ = g.Wait()
	return failed
}

func (r *scenarioRun) runOne(ctx context.Context, sc *scenario.Scenario) (*scenario.Report, error) {
	d, err := r.manager.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := r.manager.Release(context.WithoutCancel(ctx), d); err != nil {
			r.logger.Warn("Failed to release session.", zap.String("session_id", d.ID()), zap.Error(err))
		}
	}()

	runner := scenario.NewRunner(d,
		scenario.WithLogger(r.logger),
		scenario.WithWait(r.cfg.Timeouts.Wait, r.cfg.Timeouts.PollInterval),
		scenario.WithBaseURL(r.baseURL),
	)
	return runner.Run(ctx, sc), nil
}

// print writes one scenario's outcome as a block so concurrent scenarios
// do not interleave.
func (r *scenarioRun) print(sc *scenario.Scenario, report *scenario.Report, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		fmt.Fprintf(r.out, "FAIL  %s (%s)\n      %v\n", sc.Name, sc.Path, err)
		return
	}
	status := "PASS"
	if report.Failed() {
		status = "FAIL"
	}
	fmt.Fprintf(r.out, "%s  %s (%s) %s\n", status, sc.Name, sc.Path, report.Duration.Round(time.Millisecond))
	for _, res := range report.Results {
		switch {
		case res.Status == scenario.StatusFailed:
			fmt.Fprintf(r.out, "      %v\n", report.Err())
		case r.verbose:
			fmt.Fprintf(r.out, "      %-7s line %d %s\n", res.Status, res.Step.Line, res.Step.Kind)
		}
	}
}
