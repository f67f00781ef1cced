package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/body-refine/go-controller/internal/config"
	"github.com/danielpatrickdp/body-refine/go-controller/internal/replay"
	"github.com/danielpatrickdp/body-refine/go-controller/internal/validate"
)

var (
	configPath  string
	concurrency int
	verbose     bool
)

// errMismatch makes the process exit 1 without cobra printing usage.
var errMismatch = errors.New("replay: expectation mismatch")

// #region main

var rootCmd = &cobra.Command{
	Use:           "replay <fixture.json>...",
	Short:         "Replay validator fixtures and report expectation mismatches",
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func main() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to YAML config for rule thresholds and gender rules")
	rootCmd.Flags().IntVar(&concurrency, "concurrency", 0, "cases replayed in parallel (0 uses config)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print passing cases too")
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errMismatch) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

// #endregion main

// #region run

func run(cmd *cobra.Command, paths []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	rules, err := cfg.GenderRuleSet()
	if err != nil {
		return err
	}
	if concurrency <= 0 {
		concurrency = cfg.Replay.Concurrency
	}
	h := replay.Harness{
		Validator:   validate.New(cfg.ValidatorConfig()),
		GenderRules: rules,
		Concurrency: concurrency,
	}

	var total replay.Summary
	for _, path := range paths {
		f, err := replay.LoadFixture(path)
		if err != nil {
			return err
		}
		results, err := h.Run(cmd.Context(), f.Cases)
		if err != nil {
			return err
		}

		fmt.Printf("=== %s (%s) ===\n", path, f.Description)
		for _, r := range results {
			switch {
			case r.Err != nil:
				fmt.Printf("ERROR  %-32s  %v\n", r.Name, r.Err)
			case !r.Passed:
				fmt.Printf("FAIL   %-32s\n", r.Name)
				for _, msg := range r.Failures {
					fmt.Printf("         %s\n", msg)
				}
			case verbose:
				fmt.Printf("PASS   %-32s  corrections=%d\n", r.Name, r.Result.Audit.OutOfRangeCount())
			}
		}

		s := replay.Summarize(results)
		fmt.Printf("Cases: %d  Passed: %d  Failed: %d  Errors: %d\n\n", s.Total, s.Passed, s.Failed, s.Errors)
		total.Total += s.Total
		total.Passed += s.Passed
		total.Failed += s.Failed
		total.Errors += s.Errors
	}

	if total.Failed > 0 || total.Errors > 0 {
		return errMismatch
	}
	fmt.Println("OK")
	return nil
}

// #endregion run
