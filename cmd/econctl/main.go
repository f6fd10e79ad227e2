// econctl computes fee estimates, settlements, CVPI scores and reputation
// tiers offline, with the same tables the API server uses.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mbd888/aw3econ/internal/config"
	"github.com/mbd888/aw3econ/internal/logging"
	"github.com/mbd888/aw3econ/internal/tables"
)

// app carries what every subcommand needs once the root has loaded config.
type app struct {
	tables  tables.Tables
	logger  *slog.Logger
	out     io.Writer
	compact bool
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out}
	var (
		tablesFile string
		verbose    bool
	)

	root := &cobra.Command{
		Use:           "econctl",
		Short:         "Campaign economics calculator",
		Long:          "Computes fee estimates, settlements, CVPI scores and reputation tiers offline. Results are JSON with amounts as decimal strings.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := "warn"
			if verbose {
				level = "debug"
			}
			a.logger = logging.NewWriter(errOut, level, "text")

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if tablesFile != "" {
				cfg.TablesFile = tablesFile
			}
			t, err := cfg.Tables()
			if err != nil {
				return fmt.Errorf("load tables: %w", err)
			}
			a.tables = t
			a.logger.Debug("tables loaded", "file", cfg.TablesFile)
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&tablesFile, "tables", "", "YAML file overriding the default economic tables (env: ECON_TABLES_FILE)")
	pf.BoolVar(&a.compact, "compact", false, "print single-line JSON")
	pf.BoolVarP(&verbose, "verbose", "v", false, "debug logging to stderr")

	root.AddCommand(
		newFeeCmd(a),
		newSettleCmd(a),
		newDistributeCmd(a),
		newCVPICmd(a),
		newTierCmd(a),
		newTablesCmd(a),
	)
	return root
}

// print writes v as JSON.
func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	if !a.compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

func main() {
	root := newRootCmd(os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
