package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joelkehle/trendsim/internal/report"
	"github.com/joelkehle/trendsim/internal/simulation"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	simInput   string
	simFixture string
	simFormat  string
	simOutput  string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run one scenario and print the result",
	Long: `Run a single scenario read from a JSON file (or stdin with --input -).
Nothing is stored. On failure the error envelope is printed and the exit
status is non-zero.

Examples:
  trendsim simulate --input scenario.json --fixture trends.yaml
  trendsim simulate --input - --format markdown < scenario.json`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().StringVar(&simInput, "input", "-", "Scenario JSON file, - for stdin")
	simulateCmd.Flags().StringVar(&simFixture, "fixture", "", "YAML fixture serving lifecycle and risk data")
	simulateCmd.Flags().StringVar(&simFormat, "format", "json", "Output format: json, markdown, html")
	simulateCmd.Flags().StringVar(&simOutput, "output", "", "Write to this file instead of stdout")
}

func readScenario(path string) (simulation.ScenarioInput, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return simulation.ScenarioInput{}, err
		}
		defer f.Close()
		r = f
	}
	var in simulation.ScenarioInput
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return simulation.ScenarioInput{}, fmt.Errorf("decode scenario: %w", err)
	}
	return in, nil
}

// openOutput returns stdout when path is empty.
func openOutput(path string) (io.Writer, func() error, error) {
	if path == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if simFixture != "" {
		cfg.Collaborators.FixturePath = simFixture
	}
	in, err := readScenario(simInput)
	if err != nil {
		return err
	}
	d, err := openDeps(cfg, false)
	if err != nil {
		return err
	}
	defer d.close()

	out, closeOut, err := openOutput(simOutput)
	if err != nil {
		return err
	}
	defer closeOut()

	res, runErr := d.runner.Simulate(cmd.Context(), in, func(stage, message string) {
		log.Debug().Str("stage", stage).Msg(message)
	})
	if runErr != nil {
		if err := writeJSON(out, simulation.BuildErrorResponse(runErr)); err != nil {
			return err
		}
		return fmt.Errorf("simulation failed at %s: %w", simulation.StageNameFromError(runErr), runErr)
	}

	switch strings.ToLower(simFormat) {
	case "json":
		return writeJSON(out, res.Response)
	case "markdown", "md":
		_, err = io.WriteString(out, simulation.BuildMarkdown(res.Result))
		return err
	case "html":
		doc, err := report.HTML(simulation.BuildMarkdown(res.Result), report.MetaFor(res.Result, 0))
		if err != nil {
			return err
		}
		_, err = io.WriteString(out, doc)
		return err
	default:
		return fmt.Errorf("unknown format %q", simFormat)
	}
}
