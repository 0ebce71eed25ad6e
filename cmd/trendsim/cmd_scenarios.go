package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/joelkehle/trendsim/internal/scenariostore"
	"github.com/joelkehle/trendsim/internal/simulation"
	"github.com/spf13/cobra"
)

var (
	listTrendID string
	listStage   string
	listLimit   int
	listJSON    bool
)

var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "Inspect stored scenarios",
}

var scenariosListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored scenarios, newest first",
	RunE:  runScenariosList,
}

var scenariosGetCmd = &cobra.Command{
	Use:   "get <scenario-id>",
	Short: "Print a stored scenario and its last result as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runScenariosGet,
}

var scenariosVersionsCmd = &cobra.Command{
	Use:   "versions <scenario-id>",
	Short: "Print every stored version of a scenario as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runScenariosVersions,
}

func init() {
	rootCmd.AddCommand(scenariosCmd)
	scenariosCmd.AddCommand(scenariosListCmd, scenariosGetCmd, scenariosVersionsCmd)
	scenariosListCmd.Flags().StringVar(&listTrendID, "trend-id", "", "Only scenarios for this trend")
	scenariosListCmd.Flags().StringVar(&listStage, "stage", "", "Only scenarios at this lifecycle stage")
	scenariosListCmd.Flags().IntVar(&listLimit, "limit", 50, "Maximum rows")
	scenariosListCmd.Flags().BoolVar(&listJSON, "json", false, "Print JSON instead of a table")
}

func openStore() (*scenariostore.Store, error) {
	store, err := scenariostore.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("open scenario store: %w", err)
	}
	return store, nil
}

func runScenariosList(cmd *cobra.Command, args []string) error {
	stage := simulation.LifecycleStage(listStage)
	if stage != "" && !stage.Valid() {
		return fmt.Errorf("unknown lifecycle stage %q", listStage)
	}
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := store.List(cmd.Context(), scenariostore.Filter{TrendID: listTrendID, LifecycleStage: stage, Limit: listLimit})
	if err != nil {
		return err
	}
	if listJSON {
		return writeJSON(os.Stdout, list)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SCENARIO\tVERSION\tTREND\tSTAGE\tUPDATED")
	for _, sc := range list {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", sc.ID, sc.Version, sc.TrendID, sc.LifecycleStage, sc.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runScenariosGet(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	rec, err := store.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return writeJSON(os.Stdout, rec)
}

func runScenariosVersions(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	versions, err := store.Versions(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return writeJSON(os.Stdout, versions)
}
