package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"faultguard/common"
	"faultguard/fault"
	"faultguard/internal/scenario"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate <scenario.yaml>",
	Short: "Replay a fault-injection scenario file",
	Long: `Replay a scenario against a fresh supervisor, one step per tick.

Prints the per-tick trace and every unmet expectation, and exits non-zero
when the scenario fails.

Example:
  faultmon simulate internal/scenario/testdata/single_fault_recovery.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	params, err := cfg.Params()
	if err != nil {
		return err
	}
	sc, err := scenario.Load(args[0])
	if err != nil {
		return err
	}

	var logger common.Logger = common.NewNoOpLogger()
	if verbose || cfg.Verbose {
		logger = common.NewStdLogger(common.SeverityDebug)
	}
	res, err := scenario.NewPlayer(params, logger).Run(sc)
	if err != nil {
		return err
	}

	fmt.Printf("scenario: %s\n", sc.Name)
	for _, rec := range res.Trace {
		line := fmt.Sprintf("tick %3d  state=%-10s aggregate=%-15s power=%-10s power:%s clock:%s memory:%s",
			rec.Tick, rec.State, rec.Aggregate, rec.Power,
			rec.Subs[fault.Power], rec.Subs[fault.Clock], rec.Subs[fault.Memory])
		if rec.Err != nil {
			line += "  err=" + rec.Err.Error()
		}
		fmt.Println(line)
	}

	if res.Failed() {
		fmt.Printf("\n%d expectation(s) unmet:\n", len(res.Failures))
		for _, f := range res.Failures {
			fmt.Printf("  %s\n", f)
		}
		return fmt.Errorf("scenario %q failed", sc.Name)
	}
	fmt.Printf("\nscenario %q passed (%d ticks)\n", sc.Name, len(res.Trace))
	return nil
}
