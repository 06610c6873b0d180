package commands

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/catherinevee/integration-auditor/internal/config"
	"github.com/catherinevee/integration-auditor/internal/state"
)

var (
	stateOperatorID   string
	stateCleanupDays  int
	stateExportPath   string
	stateImportPath   string
	stateResetConfirm string
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect and manage the processing-state store",
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print per-operator processing statistics",
	RunE:  runStateShow,
}

var stateCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove records older than --older-than-days",
	RunE:  runStateCleanup,
}

var stateExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the state store to --file as a portable snapshot",
	RunE:  runStateExport,
}

var stateImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Load a snapshot written by `state export` into the store",
	RunE:  runStateImport,
}

var stateResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Erase every record (requires --confirm RESET-STATE-STORE)",
	RunE:  runStateReset,
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateShowCmd, stateCleanupCmd, stateExportCmd, stateImportCmd, stateResetCmd)

	stateCmd.PersistentFlags().StringVar(&stateOperatorID, "operator-id", "", "operator id to scope the query to")
	stateCleanupCmd.Flags().IntVar(&stateCleanupDays, "older-than-days", 30, "remove records last processed more than this many days ago")
	stateExportCmd.Flags().StringVar(&stateExportPath, "file", "state-export.json", "path to write the snapshot to")
	stateImportCmd.Flags().StringVar(&stateImportPath, "file", "state-export.json", "path to read the snapshot from")
	stateResetCmd.Flags().StringVar(&stateResetConfirm, "confirm", "", "must equal RESET-STATE-STORE")
}

func openStateStore() (*state.Store, error) {
	cfgMgr, err := config.NewManager("auditor.yaml", rootLogger())
	if err != nil {
		return nil, err
	}
	path := cfgMgr.Get().StateDBPath
	if path == "" {
		path = "state/integration-auditor.db"
	}
	return state.Open(path)
}

func runStateShow(cmd *cobra.Command, args []string) error {
	store, err := openStateStore()
	if err != nil {
		return exitErr(2, err)
	}
	defer store.Close()

	stats, err := store.GetProcessingStats(stateOperatorID)
	if err != nil {
		return exitErr(2, err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Field", "Value"})
	table.SetBorder(false)
	table.Append([]string{"Total records", fmt.Sprintf("%d", stats.Total)})
	for status, count := range stats.ByStatus {
		table.Append([]string{"Status: " + string(status), fmt.Sprintf("%d", count)})
	}
	table.Append([]string{"Oldest run", stats.OldestRun.Format("2006-01-02T15:04:05Z")})
	table.Append([]string{"Newest run", stats.NewestRun.Format("2006-01-02T15:04:05Z")})
	table.Render()
	return nil
}

func runStateCleanup(cmd *cobra.Command, args []string) error {
	store, err := openStateStore()
	if err != nil {
		return exitErr(2, err)
	}
	defer store.Close()

	removed, err := store.Cleanup(stateCleanupDays)
	if err != nil {
		return exitErr(2, err)
	}
	fmt.Printf("removed %d record(s) older than %d days\n", removed, stateCleanupDays)
	return nil
}

func runStateExport(cmd *cobra.Command, args []string) error {
	store, err := openStateStore()
	if err != nil {
		return exitErr(2, err)
	}
	defer store.Close()

	data, err := store.ExportState()
	if err != nil {
		return exitErr(2, err)
	}
	if err := os.WriteFile(stateExportPath, data, 0o644); err != nil {
		return exitErr(2, fmt.Errorf("writing %s: %w", stateExportPath, err))
	}
	fmt.Printf("exported state store to %s\n", stateExportPath)
	return nil
}

func runStateImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(stateImportPath)
	if err != nil {
		return exitErr(2, fmt.Errorf("reading %s: %w", stateImportPath, err))
	}

	store, err := openStateStore()
	if err != nil {
		return exitErr(2, err)
	}
	defer store.Close()

	if err := store.ImportState(data); err != nil {
		return exitErr(2, err)
	}
	fmt.Printf("imported state store from %s\n", stateImportPath)
	return nil
}

func runStateReset(cmd *cobra.Command, args []string) error {
	store, err := openStateStore()
	if err != nil {
		return exitErr(2, err)
	}
	defer store.Close()

	if err := store.Reset(stateResetConfirm); err != nil {
		return exitErr(2, err)
	}
	fmt.Println("state store reset")
	return nil
}
