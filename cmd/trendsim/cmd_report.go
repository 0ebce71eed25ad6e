package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/joelkehle/trendsim/internal/report"
	"github.com/joelkehle/trendsim/internal/runner"
	"github.com/spf13/cobra"
)

var (
	reportFormat string
	reportOutput string
)

var reportCmd = &cobra.Command{
	Use:   "report <scenario-id>",
	Short: "Render the last stored result of a scenario",
	Long: `Render the most recent simulation result of a stored scenario as markdown,
HTML or PDF. PDF output needs a local Chrome or Chromium (CHROME_PATH).

Examples:
  trendsim report launch-a
  trendsim report launch-a --format pdf --output launch-a.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringVar(&reportFormat, "format", "md", "Output format: md, html, pdf")
	reportCmd.Flags().StringVar(&reportOutput, "output", "", "Write to this file instead of stdout")
}

func runReport(cmd *cobra.Command, args []string) error {
	format := strings.ToLower(reportFormat)
	if format == "pdf" && reportOutput == "" {
		return fmt.Errorf("--output is required for pdf")
	}
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	rep, err := (&runner.Runner{Scenarios: store}).Report(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	markdown, meta := rep.Markdown, rep.Meta

	out, closeOut, err := openOutput(reportOutput)
	if err != nil {
		return err
	}
	defer closeOut()

	switch format {
	case "md", "markdown":
		_, err = io.WriteString(out, markdown)
	case "html":
		var doc string
		if doc, err = report.HTML(markdown, meta); err == nil {
			_, err = io.WriteString(out, doc)
		}
	case "pdf":
		var pdf []byte
		if pdf, err = report.NewPDFRenderer().Render(cmd.Context(), markdown, meta); err == nil {
			_, err = out.Write(pdf)
		}
	default:
		err = fmt.Errorf("unknown format %q", reportFormat)
	}
	return err
}
