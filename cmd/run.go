package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/paged-kv-sim/sim"
	"github.com/inference-sim/paged-kv-sim/sim/model"
	"github.com/inference-sim/paged-kv-sim/sim/trace"
)

var (
	scenarioPath  string        // Path to a YAML scenario file
	runFlags      scenarioFlags // Overrides applied on top of the scenario
	traceLevel    string        // Event recording verbosity
	traceOut      string        // Path of the JSONL trace export
	traceCompress bool          // zstd-compress the trace export
)

// runCmd executes a scenario using parameters from the scenario file and CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a paged KV cache scenario",
	Run: func(cmd *cobra.Command, args []string) {
		sc, err := loadScenario(scenarioPath)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if err := runFlags.apply(cmd.Flags(), &sc); err != nil {
			logrus.Fatalf("invalid configuration: %v", err)
		}
		if !trace.IsValidTraceLevel(traceLevel) {
			logrus.Fatalf("Invalid trace level: %s", traceLevel)
		}

		logrus.Infof("Starting simulation with %d pages of %d slots, model %dx%dx%d, %d requests (%s)",
			sc.Sim.Pool.NumPages, sc.Sim.Pool.PageSize, sc.Sim.Model.Layers, sc.Sim.Model.Heads, sc.Sim.Model.HeadDim,
			len(sc.Requests), sc.Mode)

		recorder := trace.NewRecorder(trace.TraceLevel(traceLevel))
		res, runErr := runScenario(sc, recorder)
		if res != nil {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "=== Requests ===")
			printRequests(out, res.Requests)
			if res.Completed != nil {
				fmt.Fprintln(out, "\n=== Pages before release ===")
				printPages(out, res.Completed)
			}
			fmt.Fprintln(out, "\n=== Pages after release ===")
			printPages(out, res.Final)
			fmt.Fprintln(out, "\n=== Events ===")
			printSummary(out, trace.Summarize(recorder.Records()))
			fmt.Fprintf(out, "\npage faults=%d frees=%d peak in use=%d/%d cache hit rate=%.2f\n",
				res.Stats.PageFaults, res.Stats.PageFrees, res.Stats.PeakInUse, sc.Sim.Pool.NumPages, res.CacheHitRate)
		}
		if traceOut != "" {
			if err := exportTrace(traceOut, sc.Sim, recorder.Records(), traceCompress); err != nil {
				logrus.Fatalf("%v", err)
			}
			logrus.Infof("Trace written to %s", traceOut)
		}
		if runErr != nil {
			logrus.Fatalf("simulation failed: %v", runErr)
		}
		logrus.Info("Simulation complete.")
	},
}

// runScenario builds the synthetic collaborators and runs sc.
func runScenario(sc Scenario, sink sim.EventSink) (*sim.Result, error) {
	tokenizer := model.NewWhitespaceTokenizer(model.DefaultVocabSize)
	synth := model.NewSynthetic(sc.Sim.Model, tokenizer.VocabSize(), model.SimulationKey(sc.Sim.Seed))
	s := sim.NewSimulator(sc.Sim, tokenizer, synth, synth, sink)
	return s.Run(sc.Requests, sc.Mode)
}

func exportTrace(path string, cfg sim.SimConfig, records []trace.Record, compress bool) error {
	if compress && !strings.HasSuffix(path, ".zst") {
		path += ".zst"
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating trace file %s: %w", path, err)
	}
	if err := trace.WriteJSONL(f, trace.NewHeader(cfg, records), records, compress); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func init() {
	runCmd.Flags().StringVar(&scenarioPath, "config", "", "Path to a YAML scenario file")
	runFlags.register(runCmd.Flags())
	runCmd.Flags().StringVar(&traceLevel, "trace-level", string(trace.TraceLevelAll), "Event recording level (none, pages, all)")
	runCmd.Flags().StringVar(&traceOut, "trace-out", "", "Write the event trace as JSONL to this path")
	runCmd.Flags().BoolVar(&traceCompress, "trace-compress", false, "zstd-compress the trace export")

	rootCmd.AddCommand(runCmd)
}
