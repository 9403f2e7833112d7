// datactl is the operator CLI for datactld: it reads requests, sessions,
// and outcome counters off the daemon's debug/status API using the
// bearer token datactld persisted at startup.
//
// Usage:
//
//	datactl requests 0           # outstanding requests for slot 0
//	datactl sessions 0           # live sessions for slot 0
//	datactl metrics              # handover/retry/failure counters
//	datactl watch                # stream live transitions and handovers
//	datactl settings             # show the data-enabled gate
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/radiocore/datad/pkg/util"
)

var (
	apiAddrFlag string
	tokenFlag   string
	jsonOutput  bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "datactl",
	Short:             "Inspect and watch the mobile-data control plane",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		util.SetLogLevel("warn")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddrFlag, "api-addr", "", "debug/status API address (overrides settings file)")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "bearer token (overrides settings file)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "JSON output")

	rootCmd.AddCommand(
		newRequestsCmd(),
		newSessionsCmd(),
		newMetricsCmd(),
		newWatchCmd(),
		newSettingsCmd(),
	)
}
